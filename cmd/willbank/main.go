// Package main provides the willbank CLI, the reference composition root
// for the session manager: it wires config, storage, the auth API client
// and the manager, and exposes the session operations as subcommands.
package main

import (
	"encoding/json"
	"fmt"
	"os"
	"runtime"

	"github.com/common-nighthawk/go-figure"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/willbank/go-session-client/authapi"
	"github.com/willbank/go-session-client/internal/config"
	"github.com/willbank/go-session-client/internal/logging"
	"github.com/willbank/go-session-client/session"
	"github.com/willbank/go-session-client/store"
)

const (
	version = "0.1.0"
	appName = "willbank"
)

func main() {
	defer func() {
		if r := recover(); r != nil {
			buf := make([]byte, 4096)
			n := runtime.Stack(buf, false)
			_, _ = fmt.Fprintf(os.Stderr, "PANIC: %v\nStack trace:\n%s\n", r, string(buf[:n]))
			os.Exit(2)
		}
	}()

	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   appName,
		Short: "willbank account session CLI",
		Long: `Manage a willbank session from the command line.

The session (tokens, client id, cached profile) is persisted in the data
directory and restored on every invocation, exactly as the mobile and web
clients do on startup.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			figure.NewFigure(appName, "cybermedium", true).Print()
			fmt.Println()
			return cmd.Help()
		},
	}

	cmd.AddCommand(loginCmd(), registerCmd(), logoutCmd(), whoamiCmd(), refreshCmd(), versionCmd())
	return cmd
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("%s version %s\n", appName, version)
		},
	}
}

func loginCmd() *cobra.Command {
	var email, password string

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Sign in and persist the session",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			if err := a.manager.Initialize(ctx); err != nil {
				return err
			}
			if err := a.manager.Login(ctx, email, password); err != nil {
				return err
			}
			current := a.manager.Current()
			fmt.Printf("Signed in as %s (client %d)\n", current.Profile.FullName(), current.ClientID)
			return nil
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "Account email")
	cmd.Flags().StringVar(&password, "password", "", "Account password")
	_ = cmd.MarkFlagRequired("email")
	_ = cmd.MarkFlagRequired("password")
	return cmd
}

func registerCmd() *cobra.Command {
	var req authapi.RegisterRequest

	cmd := &cobra.Command{
		Use:   "register",
		Short: "Create an account and sign in",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			if err := a.manager.Initialize(ctx); err != nil {
				return err
			}
			if err := a.manager.Register(ctx, req); err != nil {
				return err
			}
			current := a.manager.Current()
			fmt.Printf("Registered %s (client %d)\n", current.Profile.FullName(), current.ClientID)
			return nil
		},
	}
	cmd.Flags().StringVar(&req.FirstName, "first-name", "", "First name")
	cmd.Flags().StringVar(&req.LastName, "last-name", "", "Last name")
	cmd.Flags().StringVar(&req.Email, "email", "", "Email address")
	cmd.Flags().StringVar(&req.Password, "password", "", "Password")
	cmd.Flags().StringVar(&req.Phone, "phone", "", "Phone number")
	cmd.Flags().StringVar(&req.Address, "address", "", "Postal address")
	cmd.Flags().StringVar(&req.CIN, "cin", "", "National identity card number")
	for _, flag := range []string{"first-name", "last-name", "email", "password", "phone", "address", "cin"} {
		_ = cmd.MarkFlagRequired(flag)
	}
	return cmd
}

func logoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Sign out and clear the persisted session",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			if err := a.manager.Initialize(ctx); err != nil {
				return err
			}
			if err := a.manager.Logout(ctx); err != nil {
				return err
			}
			fmt.Println("Signed out")
			return nil
		},
	}
}

func whoamiCmd() *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "whoami",
		Short: "Show the signed-in client",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			if err := a.manager.Initialize(cmd.Context()); err != nil {
				return err
			}
			current := a.manager.Current()
			if !current.Authenticated() {
				return fmt.Errorf("not signed in")
			}
			if asJSON {
				blob, err := json.MarshalIndent(current.Profile, "", "  ")
				if err != nil {
					return err
				}
				fmt.Println(string(blob))
				return nil
			}
			fmt.Printf("%s <%s> (client %d)\n", current.Profile.FullName(), current.Profile.Email, current.ClientID)
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the full profile as JSON")
	return cmd
}

func refreshCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "refresh",
		Short: "Refresh the access token",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			if err := a.manager.Initialize(ctx); err != nil {
				return err
			}
			if !a.manager.Current().Authenticated() {
				return fmt.Errorf("not signed in")
			}
			if err := a.manager.RefreshAccessToken(ctx); err != nil {
				return err
			}
			if exp, err := authapi.TokenExpiry(a.manager.AccessToken()); err == nil && !exp.IsZero() {
				fmt.Printf("Access token refreshed, valid until %s\n", exp.Format("2006-01-02 15:04:05"))
				return nil
			}
			fmt.Println("Access token refreshed")
			return nil
		},
	}
}

// app holds the wired collaborators for one CLI invocation.
type app struct {
	cfg     *config.AppConfig
	log     zerolog.Logger
	manager *session.Manager
}

func newApp() (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	logger := logging.New(cfg.Environment, cfg.LogLevel)

	st, err := buildStore(cfg.Store)
	if err != nil {
		return nil, err
	}

	// The token provider closes over the manager variable: the API client
	// needs the manager's token, and the manager needs the API client.
	var manager *session.Manager
	api, err := authapi.NewHTTPClient(cfg.API.BaseURL,
		authapi.WithHTTPTimeout(cfg.API.Timeout),
		authapi.WithHTTPLogger(logger),
		authapi.WithTokenProvider(func() string {
			if manager == nil {
				return ""
			}
			return manager.AccessToken()
		}),
	)
	if err != nil {
		return nil, err
	}

	manager, err = session.New(session.Deps{API: api, Store: st}, session.WithLogger(logger))
	if err != nil {
		return nil, err
	}

	return &app{cfg: cfg, log: logger, manager: manager}, nil
}

func buildStore(cfg config.StoreConfig) (store.Store, error) {
	if cfg.Secure {
		return store.NewSecureStore(cfg.DataDir, []byte(cfg.DeviceSecret))
	}
	return store.NewFileStore(cfg.DataDir)
}
