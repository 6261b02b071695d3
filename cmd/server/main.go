// Package main runs the portal API as a standalone HTTP server.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/kylejryan/ucehub-portal/internal/app"
	"github.com/kylejryan/ucehub-portal/internal/config"
	"github.com/kylejryan/ucehub-portal/internal/logging"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// Version is set at build time with -ldflags.
var Version = "dev"

const shutdownTimeout = 15 * time.Second

func main() {
	rootCmd := &cobra.Command{
		Use:     "ucehub",
		Short:   "UCEHub portal backend",
		Version: Version,
	}
	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(versionCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintln(cmd.OutOrStdout(), Version)
		},
	}
}

func serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP API",
		Long: `Serve the HTTP API until SIGINT or SIGTERM.

Configuration comes from the environment and, when UCEHUB_CONFIG is set,
from that YAML file. Flags override both.

Examples:
  ucehub serve --addr :3001
  UCEHUB_CONFIG=./ucehub.yaml ucehub serve --log-level debug`,
		RunE: runServe,
	}
	cmd.Flags().String("addr", ":3001", "listen address")
	cmd.Flags().String("log-level", "info", "log level (debug, info, warn, error)")
	return cmd
}

func runServe(cmd *cobra.Command, _ []string) error {
	v, err := config.New()
	if err != nil {
		return err
	}
	if err := v.BindPFlag("HTTP_ADDR", cmd.Flags().Lookup("addr")); err != nil {
		return err
	}
	if err := v.BindPFlag("LOG_LEVEL", cmd.Flags().Lookup("log-level")); err != nil {
		return err
	}
	env, err := config.FromViper(v)
	if err != nil {
		return err
	}

	log, err := logging.New(env.LogLevel, env.AppEnv)
	if err != nil {
		return err
	}
	defer log.Sync() //nolint:errcheck

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, env, log, app.Queued)
	if err != nil {
		return fmt.Errorf("init: %w", err)
	}

	srv := &http.Server{
		Addr:              env.HTTPAddr,
		Handler:           a.Router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("listening", zap.String("addr", env.HTTPAddr), zap.String("version", Version))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			_ = a.Close(context.Background())
			return err
		}
	case <-ctx.Done():
		log.Info("shutting down")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warn("http shutdown", zap.Error(err))
	}
	if err := a.Close(shutdownCtx); err != nil {
		log.Warn("drain", zap.Error(err))
	}
	return nil
}
