package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"pgsentry/internal/auth"
	"pgsentry/internal/banner"
	"pgsentry/internal/catalog"
	"pgsentry/internal/config"
)

// loadSettings loads the settings file and the catalog it points to.
func loadSettings() (*config.Config, *catalog.Catalog, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, err
	}
	cat, err := catalog.Load(catalog.Paths{
		AlertsPath:  cfg.Catalog.AlertsPath,
		ActionsPath: cfg.Catalog.ActionsPath,
		ViewsPath:   cfg.Catalog.ViewsPath,
	})
	if err != nil {
		return nil, nil, err
	}
	return cfg, cat, nil
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, cat, err := loadSettings()
	if err != nil {
		return err
	}

	logger := initLogger(&cfg.Logger)
	banner.Print(cmd.OutOrStdout())

	logger.Info("configuration loaded",
		"path", configPath,
		"storage_mode", cfg.Storage.Mode,
		"targets", len(cfg.Targets),
		"actions", len(cat.Actions()),
		"views", len(cat.Views()),
		"alerts", len(cat.AlertDefinitions()),
	)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	deps, cleanup, err := initDependencies(ctx, cfg, cat, logger)
	defer cleanup()
	if err != nil {
		return fmt.Errorf("failed to initialize dependencies: %w", err)
	}

	if deps.worker != nil {
		go func() {
			if err := deps.worker.Run(ctx); err != nil && ctx.Err() == nil {
				logger.Error("notification worker error", "error", err)
				cancel()
			}
		}()
	}

	go func() {
		if err := deps.server.Start(); err != nil {
			logger.Error("server error", "error", err)
			cancel()
		}
	}()

	logger.Info("pgsentry started",
		"address", cfg.Server.Address(),
		"storage_mode", cfg.Storage.Mode,
		"notifications", cfg.Notifications.Enabled,
	)

	<-ctx.Done()
	logger.Info("shutdown signal received")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.WriteTimeout)
	defer shutdownCancel()

	if err := deps.server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", "error", err)
	}

	logger.Info("pgsentry stopped")
	return nil
}

func runValidate(cmd *cobra.Command, _ []string) error {
	cfg, cat, err := loadSettings()
	if err != nil {
		return fmt.Errorf("%s is invalid: %w", configPath, err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "settings: %s (storage mode %s)\n", configPath, cfg.Storage.Mode)
	fmt.Fprintf(out, "targets:  %d\n", len(cfg.Targets))
	fmt.Fprintf(out, "actions:  %d\n", len(cat.Actions()))
	fmt.Fprintf(out, "views:    %d\n", len(cat.Views()))
	fmt.Fprintf(out, "alerts:   %d\n", len(cat.AlertDefinitions()))
	fmt.Fprintln(out, "ok")
	return nil
}

func runToken(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	ttl, err := time.ParseDuration(tokenTTL)
	if err != nil {
		return fmt.Errorf("invalid --ttl: %w", err)
	}

	token, err := auth.NewAuthenticator(&cfg.Auth).IssueToken(tokenUserID, ttl)
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), token)
	return nil
}

// initLogger creates the application logger from the logger settings.
func initLogger(cfg *config.LoggerConfig) *slog.Logger {
	opts := &slog.HandlerOptions{Level: parseLevel(cfg.Level)}

	var handler slog.Handler
	if strings.EqualFold(cfg.Format, "text") {
		handler = slog.NewTextHandler(os.Stdout, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}

	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger
}

func parseLevel(level string) slog.Level {
	var l slog.Level
	if err := l.UnmarshalText([]byte(level)); err != nil {
		return slog.LevelInfo
	}
	return l
}
