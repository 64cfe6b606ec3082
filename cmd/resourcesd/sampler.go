// Copyright 2026 The Resources Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/nokyan/resources-sub000/lib/apps"
	"github.com/nokyan/resources-sub000/lib/clock"
	"github.com/nokyan/resources-sub000/lib/config"
	"github.com/nokyan/resources-sub000/lib/hwinfo"
	"github.com/nokyan/resources-sub000/lib/hwinfo/battery"
	"github.com/nokyan/resources-sub000/lib/hwinfo/drive"
	"github.com/nokyan/resources-sub000/lib/hwinfo/gpu"
	netinfo "github.com/nokyan/resources-sub000/lib/hwinfo/net"
	"github.com/nokyan/resources-sub000/lib/hwinfo/npu"
	"github.com/nokyan/resources-sub000/lib/procdata"
	"github.com/nokyan/resources-sub000/lib/procsource"
)

// sampler drives one refresh cycle: request a process batch from the
// producer, fold it into the app state, and sample every hardware
// probe. Rate computations keep the previous counters here; the first
// snapshot after startup reports rates of zero.
type sampler struct {
	cfg    *config.Config
	clk    clock.Clock
	client *procsource.Client
	apps   *apps.AppsContext

	gpus       []gpu.Gpu
	npus       []npu.Npu
	drives     []drive.Drive
	interfaces []netinfo.Interface
	batteries  []battery.Battery

	cpuPrev   hwinfo.StatSample
	driveLast map[string]drive.Stats
	netLast   map[string]netinfo.Stats
	lastTick  time.Time
}

func newSampler(cfg *config.Config, clk clock.Clock, client *procsource.Client, appsCtx *apps.AppsContext) *sampler {
	return &sampler{
		cfg:        cfg,
		clk:        clk,
		client:     client,
		apps:       appsCtx,
		gpus:       gpu.Enumerate(),
		npus:       npu.Enumerate(),
		drives:     drive.Enumerate(cfg.Drives.IncludeVirtual),
		interfaces: netinfo.Enumerate(),
		batteries:  battery.Enumerate(),
		driveLast:  make(map[string]drive.Stats),
		netLast:    make(map[string]netinfo.Stats),
	}
}

func (s *sampler) close() {
	if s.client != nil {
		if err := s.client.Close(); err != nil {
			slog.Debug("closing producer", "error", err)
		}
	}
}

func (s *sampler) loop(ctx context.Context) error {
	s.snapshot()

	ticker := s.clk.NewTicker(s.cfg.Refresh.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			slog.Info("resourcesd stopping")
			return nil
		case <-ticker.C:
			s.snapshot()
		}
	}
}

// request fetches one batch, restarting the producer after a timeout.
// A timed-out client killed its producer and is not reusable.
func (s *sampler) request() ([]procdata.ProcessData, error) {
	batch, err := s.client.Request()
	var timeout *procsource.TimeoutError
	if errors.As(err, &timeout) {
		slog.Warn("producer wedged, restarting", "timeout", timeout.Timeout)
		s.client.Close()
		s.client, err = procsource.Spawn(producerBinary(s.cfg), s.cfg.Producer.ReadTimeout)
		if err != nil {
			return nil, err
		}
		return s.client.Request()
	}
	return batch, err
}

func (s *sampler) snapshot() {
	now := s.clk.Now()
	var elapsedMs uint64
	if !s.lastTick.IsZero() {
		elapsedMs = uint64(now.Sub(s.lastTick).Milliseconds())
	}
	s.lastTick = now

	batch, err := s.request()
	if err != nil {
		slog.Error("requesting process batch", "error", err)
		return
	}
	s.apps.Refresh(batch)

	cpuRatio := 0.0
	if stat, err := hwinfo.ReadStat(); err == nil {
		cpuRatio = hwinfo.UsageRatio(s.cpuPrev.Aggregate, stat.Aggregate)
		s.cpuPrev = stat
	} else {
		slog.Debug("reading /proc/stat", "error", err)
	}

	var memUsed, memTotal uint64
	if mem, err := hwinfo.SnapshotMem(); err == nil {
		memUsed, memTotal = mem.UsedMem(), mem.TotalMem
	} else {
		slog.Debug("reading /proc/meminfo", "error", err)
	}

	slog.Info("snapshot",
		"processes", len(batch),
		"running_apps", len(s.apps.RunningApps()),
		"cpu", cpuRatio,
		"mem_used", memUsed,
		"mem_total", memTotal)

	s.sampleGpus()
	s.sampleNpus()
	s.sampleDrives(elapsedMs)
	s.sampleInterfaces(elapsedMs)
	s.sampleBatteries()
}

func (s *sampler) sampleGpus() {
	for _, g := range s.gpus {
		data := gpu.Snapshot(g)
		slog.Debug("gpu",
			"slot", data.Slot,
			"driver", data.Driver,
			"usage", data.Usage.Or(0),
			"vram_used", data.UsedVram.Or(0),
			"temperature", data.Temperature.Or(0),
			"power", data.PowerUsage.Or(0),
			"app_usage", s.apps.GpuFraction(data.Slot))
	}
}

func (s *sampler) sampleNpus() {
	for _, n := range s.npus {
		data := npu.Snapshot(n)
		slog.Debug("npu",
			"slot", data.Slot,
			"driver", data.Driver,
			"usage", data.Usage.Or(0),
			"memory_used", data.UsedMemory.Or(0))
	}
}

func (s *sampler) sampleDrives(elapsedMs uint64) {
	for i := range s.drives {
		d := &s.drives[i]
		stats, err := d.Stats()
		if err != nil {
			slog.Debug("reading drive stats", "drive", d.Name, "error", err)
			continue
		}
		previous := s.driveLast[d.Name]
		s.driveLast[d.Name] = stats
		slog.Debug("drive",
			"name", d.Name,
			"read", drive.ReadSpeed(previous, stats, elapsedMs),
			"write", drive.WriteSpeed(previous, stats, elapsedMs),
			"busy", drive.Busy(previous, stats, elapsedMs))
	}
}

func (s *sampler) sampleInterfaces(elapsedMs uint64) {
	for i := range s.interfaces {
		iface := &s.interfaces[i]
		if iface.Kind == netinfo.KindLoopback {
			continue
		}
		stats, err := iface.Stats()
		if err != nil {
			slog.Debug("reading interface stats", "interface", iface.Name, "error", err)
			continue
		}
		previous := s.netLast[iface.Name]
		s.netLast[iface.Name] = stats
		slog.Debug("interface",
			"name", iface.Name,
			"kind", iface.Kind,
			"rx", netinfo.RxSpeed(previous, stats, elapsedMs),
			"tx", netinfo.TxSpeed(previous, stats, elapsedMs))
	}
}

func (s *sampler) sampleBatteries() {
	for i := range s.batteries {
		data := battery.Snapshot(&s.batteries[i])
		slog.Debug("battery",
			"name", data.Name,
			"charge", data.Charge.Or(0),
			"state", data.State.Or(battery.StateUnknown),
			"power", data.PowerUsage.Or(0))
	}
}
