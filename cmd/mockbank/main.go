package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"
	"time"

	"github.com/willbank/go-session-client/internal/config"
	"github.com/willbank/go-session-client/internal/logging"
	"github.com/willbank/go-session-client/internal/mockbank"
)

func main() {
	if err := run(); err != nil {
		log.Fatalf("Error running mockbank: %s\n", err)
	}
	log.Printf("Mockbank stopped\n")
}

func run() (returnError error) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("Recovered from panic: %v\n", r)
			debug.PrintStack()
			returnError = errors.New("panic recovered")
		}
	}()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("config.Load: %w", err)
	}
	logger := logging.New(cfg.Environment, cfg.LogLevel)

	srv, err := mockbank.NewServer(cfg.MockBank, logger)
	if err != nil {
		return fmt.Errorf("mockbank.NewServer: %w", err)
	}
	if err := srv.StartJobs(); err != nil {
		return fmt.Errorf("mockbank.StartJobs: %w", err)
	}
	defer srv.StopJobs()

	httpServer := &http.Server{Addr: cfg.MockBank.Addr, Handler: srv.Handler()}
	go listenAndServe(httpServer)
	logger.Info().Str("addr", cfg.MockBank.Addr).Msg("mockbank listening")

	waitForStopSignal()
	return shutdown(httpServer)
}

func listenAndServe(server *http.Server) {
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Printf("server.ListenAndServe: %s\n", err)
	}
}

func waitForStopSignal() {
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop
}

func shutdown(server *http.Server) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server.Shutdown: %w", err)
	}
	return nil
}
