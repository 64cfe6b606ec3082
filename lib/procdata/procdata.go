// Copyright 2026 The Resources Authors
// SPDX-License-Identifier: Apache-2.0

// Package procdata defines the per-process record the producer
// collects from /proc and streams to the daemon, along with the
// per-device GPU and NPU usage counters attached to each record.
//
// Records are raw cumulative counters, not rates: the consumer side
// (lib/apps) holds the previous sample per PID and computes rates by
// delta. That keeps the producer stateless apart from the NVIDIA
// sampling handle.
package procdata

import (
	"github.com/nokyan/resources-sub000/lib/pci"
)

// Containerization classifies how a process is packaged.
type Containerization string

const (
	ContainerizationNone     Containerization = "none"
	ContainerizationFlatpak  Containerization = "flatpak"
	ContainerizationSnap     Containerization = "snap"
	ContainerizationAppImage Containerization = "appimage"
	ContainerizationPortable Containerization = "portable"
)

// ProcessData is one process sample. CPU times and start time are in
// jiffies (USER_HZ ticks), memory values in bytes, the timestamp in
// Unix milliseconds.
type ProcessData struct {
	Pid       int32  `cbor:"pid"`
	ParentPid int32  `cbor:"parent_pid"`
	Uid       uint32 `cbor:"uid"`

	Comm        string `cbor:"comm"`
	Commandline string `cbor:"commandline"`

	UserCPUTime   uint64 `cbor:"user_cpu_time"`
	SystemCPUTime uint64 `cbor:"system_cpu_time"`
	Niceness      int32  `cbor:"niceness"`
	Affinity      []bool `cbor:"affinity"`
	StartTime     uint64 `cbor:"starttime"`

	Memory uint64 `cbor:"memory"`
	Swap   uint64 `cbor:"swap"`

	// Cgroup is the sanitized systemd scope identity, nil when the
	// process has no usable cgroup. This is the primary key for
	// app association.
	Cgroup *string `cbor:"cgroup"`

	Containerization Containerization `cbor:"containerization"`

	// ReadBytes and WriteBytes are nil when /proc/pid/io is not
	// readable (other users' processes without privileges).
	ReadBytes  *uint64 `cbor:"read_bytes"`
	WriteBytes *uint64 `cbor:"write_bytes"`

	TimestampMs uint64 `cbor:"timestamp_ms"`

	GpuUsage map[pci.Slot]GpuUsage `cbor:"gpu_usage,omitempty"`
	NpuUsage map[pci.Slot]NpuUsage `cbor:"npu_usage,omitempty"`
}
