// Copyright 2026 The Keystone Authors
// SPDX-License-Identifier: Apache-2.0

// Keystoned runs the homeserver protocol core: it loads the signing
// key, opens the room store, and keeps the room cache swept until it
// receives SIGINT or SIGTERM. With metrics enabled it also serves
// /metrics.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/keystone-hs/keystone/lib/config"
	"github.com/keystone-hs/keystone/lib/homeserver"
	"github.com/keystone-hs/keystone/lib/version"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	var configPath string
	var showVersion bool

	flagSet := pflag.NewFlagSet("keystoned", pflag.ContinueOnError)
	flagSet.StringVar(&configPath, "config", "", "path to config file (default: $KEYSTONE_CONFIG)")
	flagSet.BoolVar(&showVersion, "version", false, "print version information and exit")
	if err := flagSet.Parse(args); err != nil {
		if err == pflag.ErrHelp {
			return nil
		}
		return err
	}
	if showVersion {
		return version.Print(os.Stdout, "keystoned")
	}
	if rest := flagSet.Args(); len(rest) > 0 {
		return fmt.Errorf("unexpected argument: %s", rest[0])
	}

	cfg, err := loadConfig(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	if err := cfg.EnsurePaths(); err != nil {
		return err
	}

	logger := newLogger(cfg.Log)
	slog.SetDefault(logger)
	logger.Info("starting keystoned",
		"version", version.Info(),
		"environment", string(cfg.Environment),
		"server_name", cfg.ServerName,
	)

	server, err := homeserver.New(cfg, homeserver.Options{Logger: logger})
	if err != nil {
		return err
	}
	defer server.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := server.Run(ctx); err != nil {
		return err
	}
	logger.Info("shutdown complete")
	return nil
}

func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.LoadFile(path)
	}
	return config.Load()
}

func newLogger(cfg config.LogConfig) *slog.Logger {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	options := &slog.HandlerOptions{Level: level}
	if cfg.Format == "text" {
		return slog.New(slog.NewTextHandler(os.Stderr, options))
	}
	return slog.New(slog.NewJSONHandler(os.Stderr, options))
}
