package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
)

type APIConfig struct {
	BaseURL string
	Timeout time.Duration
}

type StoreConfig struct {
	DataDir      string
	Secure       bool
	DeviceSecret string
}

type MockBankConfig struct {
	Addr       string
	JWTSecret  string
	AccessTTL  time.Duration
	RefreshTTL time.Duration
}

type AppConfig struct {
	Environment string
	LogLevel    string
	API         APIConfig
	Store       StoreConfig
	MockBank    MockBankConfig
}

// Load reads configuration from an optional config.yaml and WILLBANK_*
// environment variables.
func Load() (*AppConfig, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")

	v.SetEnvPrefix("WILLBANK")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("load config file: %w", err)
		}
	}

	var cfg AppConfig
	if err := v.Unmarshal(&cfg, func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "mapstructure"
		dc.DecodeHook = mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
		)
	}); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("environment", "development")
	v.SetDefault("loglevel", "info")

	v.SetDefault("api.baseurl", "http://localhost:8081")
	v.SetDefault("api.timeout", "10s")

	v.SetDefault("store.datadir", "./data")
	v.SetDefault("store.secure", false)
	v.SetDefault("store.devicesecret", "")

	v.SetDefault("mockbank.addr", ":8081")
	v.SetDefault("mockbank.jwtsecret", "dev-secret-change-me")
	v.SetDefault("mockbank.accessttl", "15m")
	v.SetDefault("mockbank.refreshttl", "720h")
}
