// Copyright 2026 The Resources Authors
// SPDX-License-Identifier: Apache-2.0

// resourcesd is the telemetry daemon. It owns the process-data
// producer, the app association state, and the hardware probes, and
// refreshes all of them on a fixed interval, logging a summary per
// snapshot.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"

	"github.com/spf13/pflag"
	"golang.org/x/sys/unix"

	"github.com/nokyan/resources-sub000/lib/apps"
	"github.com/nokyan/resources-sub000/lib/clock"
	"github.com/nokyan/resources-sub000/lib/config"
	"github.com/nokyan/resources-sub000/lib/procsource"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var configPath string
	var logLevel string
	var once bool

	flagSet := pflag.NewFlagSet("resourcesd", pflag.ContinueOnError)
	flagSet.StringVar(&configPath, "config", "", "config file (default: $RESOURCES_CONFIG, else built-in defaults)")
	flagSet.StringVar(&logLevel, "log-level", "info", "log level (debug, info, warn, error)")
	flagSet.BoolVar(&once, "once", false, "take two snapshots one interval apart, then exit")
	if err := flagSet.Parse(os.Args[1:]); err != nil {
		if err == pflag.ErrHelp {
			return nil
		}
		return err
	}

	var level slog.Level
	if err := level.UnmarshalText([]byte(logLevel)); err != nil {
		return fmt.Errorf("invalid log level %q: %w", logLevel, err)
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	// When an install prefix is configured, the privileged helpers
	// resolve there too; pkexec needs absolute paths anyway.
	if cfg.Paths.Bin != "" {
		apps.KillHelper = filepath.Join(cfg.Paths.Bin, apps.KillHelper)
		apps.AdjustHelper = filepath.Join(cfg.Paths.Bin, apps.AdjustHelper)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, unix.SIGTERM)
	defer stop()

	client, err := procsource.Spawn(producerBinary(cfg), cfg.Producer.ReadTimeout)
	if err != nil {
		return fmt.Errorf("spawning producer: %w", err)
	}

	s := newSampler(cfg, clock.Real(), client, apps.NewAppsContext(cfg.Paths.DataDirs))
	defer s.close()

	slog.Info("resourcesd starting",
		"interval", cfg.Refresh.Interval,
		"producer", cfg.Producer.Binary,
		"gpus", len(s.gpus),
		"npus", len(s.npus),
		"drives", len(s.drives),
		"interfaces", len(s.interfaces),
		"batteries", len(s.batteries))

	if once {
		s.snapshot()
		s.clk.Sleep(cfg.Refresh.Interval)
		s.snapshot()
		return nil
	}
	return s.loop(ctx)
}

func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.LoadFile(path)
	}
	return config.Load()
}

func producerBinary(cfg *config.Config) string {
	if cfg.Paths.Bin != "" {
		return filepath.Join(cfg.Paths.Bin, cfg.Producer.Binary)
	}
	return cfg.Producer.Binary
}
