package logging

import (
	"os"
	"time"

	"github.com/rs/zerolog"
)

// New returns a console logger for the binaries. Library packages take the
// logger as an option and default to zerolog.Nop().
func New(environment, level string) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil || lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}

	output := zerolog.ConsoleWriter{
		Out:        os.Stderr,
		TimeFormat: time.RFC3339,
		NoColor:    environment == "production",
	}

	return zerolog.New(output).Level(lvl).With().
		Timestamp().
		Str("env", environment).
		Logger()
}
