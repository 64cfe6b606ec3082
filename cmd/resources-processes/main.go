// Copyright 2026 The Resources Authors
// SPDX-License-Identifier: Apache-2.0

// resources-processes is the process-data producer. The daemon spawns
// it (through flatpak-spawn --host when sandboxed, so the full /proc
// is visible) and requests one batch per refresh over stdin/stdout.
//
// Each batch is a full /proc walk plus, where an NVIDIA GPU is
// present, per-process utilization samples from NVML merged into the
// fdinfo-derived usage stats. Keeping this in a separate process keeps
// the NVML handle and the /proc traversal out of the daemon; a crash
// here costs one request, not the session.
package main

import (
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/pflag"

	"github.com/nokyan/resources-sub000/lib/hwinfo/gpu"
	"github.com/nokyan/resources-sub000/lib/procdata"
	"github.com/nokyan/resources-sub000/lib/procsource"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var logLevel string

	flagSet := pflag.NewFlagSet("resources-processes", pflag.ContinueOnError)
	flagSet.StringVar(&logLevel, "log-level", "warn", "log level (debug, info, warn, error)")
	if err := flagSet.Parse(os.Args[1:]); err != nil {
		if err == pflag.ErrHelp {
			return nil
		}
		return err
	}

	// Stdout carries the wire protocol; logging goes to stderr, which
	// the daemon passes through.
	var level slog.Level
	if err := level.UnmarshalText([]byte(logLevel)); err != nil {
		return fmt.Errorf("invalid log level %q: %w", logLevel, err)
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	collector := procdata.NewCollector()

	// The NVML per-process counters are deltas against the previous
	// query, so the handles live as long as the producer.
	var nvidias []*gpu.Nvidia
	for _, g := range gpu.Enumerate() {
		if n, ok := g.(*gpu.Nvidia); ok {
			nvidias = append(nvidias, n)
		}
	}
	slog.Info("producer ready", "nvidia_gpus", len(nvidias))

	collect := func() ([]procdata.ProcessData, error) {
		timestampMs := uint64(time.Now().UnixMilli())
		batch, err := collector.Collect(timestampMs)
		if err != nil {
			return nil, err
		}
		for _, n := range nvidias {
			samples, err := n.ProcessSamples()
			if err != nil {
				slog.Debug("querying nvml process samples", "slot", n.Slot(), "error", err)
				continue
			}
			procdata.MergeNvidia(batch, n.Slot(), samples)
		}
		return batch, nil
	}

	return procsource.Serve(os.Stdin, os.Stdout, collect)
}
