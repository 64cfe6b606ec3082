// Copyright 2026 The Resources Authors
// SPDX-License-Identifier: Apache-2.0

package procdata

import (
	"github.com/nokyan/resources-sub000/lib/hwinfo"
	"github.com/nokyan/resources-sub000/lib/pci"
)

// GpuUsageKind identifies which driver produced a GpuUsage record
// and therefore which of its counter fields are meaningful.
type GpuUsageKind string

const (
	GpuUsageAmdgpu GpuUsageKind = "amdgpu"
	GpuUsageI915   GpuUsageKind = "i915"
	GpuUsageNvidia GpuUsageKind = "nvidia"
	GpuUsageV3d    GpuUsageKind = "v3d"
	GpuUsageXe     GpuUsageKind = "xe"
)

// GpuUsage is one per-process, per-device GPU usage sample. The Kind
// field selects the counter family:
//
//   - amdgpu: GfxNs, EncNs, DecNs are cumulative engine busy times.
//   - i915: GfxNs (render engine) and VideoNs are cumulative busy
//     times; video covers both encode and decode.
//   - nvidia: GfxPercent, EncPercent, DecPercent are utilization
//     percentages the driver already normalized over its own sampling
//     window; they are read directly, never delta'd.
//   - v3d: GfxNs only.
//   - xe: Cycles and TotalCycles are cumulative; usage is the ratio
//     of their deltas.
//
// Mem is the device memory attributed to the process in bytes, valid
// for every kind.
type GpuUsage struct {
	Kind GpuUsageKind `cbor:"kind"`

	GfxNs   uint64 `cbor:"gfx_ns,omitempty"`
	EncNs   uint64 `cbor:"enc_ns,omitempty"`
	DecNs   uint64 `cbor:"dec_ns,omitempty"`
	VideoNs uint64 `cbor:"video_ns,omitempty"`

	Cycles      uint64 `cbor:"cycles,omitempty"`
	TotalCycles uint64 `cbor:"total_cycles,omitempty"`

	GfxPercent uint32 `cbor:"gfx_percent,omitempty"`
	EncPercent uint32 `cbor:"enc_percent,omitempty"`
	DecPercent uint32 `cbor:"dec_percent,omitempty"`

	Mem uint64 `cbor:"mem,omitempty"`
}

// nsFraction converts a cumulative busy-time delta to a usage
// fraction over an elapsed wall-clock interval in milliseconds.
func nsFraction(currentNs, previousNs, deltaTimeMs uint64) float64 {
	if currentNs < previousNs || deltaTimeMs == 0 {
		return 0
	}
	return hwinfo.FiniteOr(float64(currentNs-previousNs)/(float64(deltaTimeMs)*1e6), 0)
}

// GfxFraction returns the 3D/compute engine usage fraction between
// two samples. For delta-based kinds a zero-valued previous sample
// (no prior reading) yields exactly 0; the nvidia kind ignores the
// previous sample entirely.
func (u GpuUsage) GfxFraction(previous GpuUsage, deltaTimeMs uint64) float64 {
	switch u.Kind {
	case GpuUsageAmdgpu, GpuUsageI915, GpuUsageV3d:
		return nsFraction(u.GfxNs, previous.GfxNs, deltaTimeMs)
	case GpuUsageNvidia:
		return hwinfo.FiniteOr(float64(u.GfxPercent)/100, 0)
	case GpuUsageXe:
		if u.Cycles < previous.Cycles || u.TotalCycles <= previous.TotalCycles {
			return 0
		}
		ratio := float64(u.Cycles-previous.Cycles) / float64(u.TotalCycles-previous.TotalCycles)
		return hwinfo.FiniteOr(ratio, 0)
	}
	return 0
}

// EncFraction returns the video encode engine usage fraction. The
// i915 driver reports a single video engine covering encode and
// decode.
func (u GpuUsage) EncFraction(previous GpuUsage, deltaTimeMs uint64) float64 {
	switch u.Kind {
	case GpuUsageAmdgpu:
		return nsFraction(u.EncNs, previous.EncNs, deltaTimeMs)
	case GpuUsageI915:
		return nsFraction(u.VideoNs, previous.VideoNs, deltaTimeMs)
	case GpuUsageNvidia:
		return hwinfo.FiniteOr(float64(u.EncPercent)/100, 0)
	}
	return 0
}

// DecFraction returns the video decode engine usage fraction.
func (u GpuUsage) DecFraction(previous GpuUsage, deltaTimeMs uint64) float64 {
	switch u.Kind {
	case GpuUsageAmdgpu:
		return nsFraction(u.DecNs, previous.DecNs, deltaTimeMs)
	case GpuUsageI915:
		return nsFraction(u.VideoNs, previous.VideoNs, deltaTimeMs)
	case GpuUsageNvidia:
		return hwinfo.FiniteOr(float64(u.DecPercent)/100, 0)
	}
	return 0
}

// Greater merges two samples for the same device by taking the
// larger of each counter. A process can hold several file
// descriptors on the same device; the per-fd counters double-count
// shared contexts, so fieldwise max is the faithful merge.
func (u GpuUsage) Greater(other GpuUsage) GpuUsage {
	merged := u
	if other.Kind != "" {
		merged.Kind = other.Kind
	}
	if u.Kind != "" {
		merged.Kind = u.Kind
	}
	merged.GfxNs = max(u.GfxNs, other.GfxNs)
	merged.EncNs = max(u.EncNs, other.EncNs)
	merged.DecNs = max(u.DecNs, other.DecNs)
	merged.VideoNs = max(u.VideoNs, other.VideoNs)
	merged.Cycles = max(u.Cycles, other.Cycles)
	merged.TotalCycles = max(u.TotalCycles, other.TotalCycles)
	merged.GfxPercent = max(u.GfxPercent, other.GfxPercent)
	merged.EncPercent = max(u.EncPercent, other.EncPercent)
	merged.DecPercent = max(u.DecPercent, other.DecPercent)
	merged.Mem = max(u.Mem, other.Mem)
	return merged
}

// NpuUsage is one per-process, per-device NPU usage sample: a
// cumulative busy-time counter plus attributed device memory.
type NpuUsage struct {
	BusyNs uint64 `cbor:"busy_ns,omitempty"`
	Mem    uint64 `cbor:"mem,omitempty"`
}

// Fraction returns the NPU usage fraction between two samples.
func (u NpuUsage) Fraction(previous NpuUsage, deltaTimeMs uint64) float64 {
	return nsFraction(u.BusyNs, previous.BusyNs, deltaTimeMs)
}

// Greater merges two samples by fieldwise max.
func (u NpuUsage) Greater(other NpuUsage) NpuUsage {
	return NpuUsage{
		BusyNs: max(u.BusyNs, other.BusyNs),
		Mem:    max(u.Mem, other.Mem),
	}
}

// MergeNvidia folds driver-level per-process samples for one device
// into a batch of process records. Samples are keyed by PID;
// processes without a sample are left untouched.
func MergeNvidia(processes []ProcessData, slot pci.Slot, samples map[int32]GpuUsage) {
	for i := range processes {
		sample, ok := samples[processes[i].Pid]
		if !ok {
			continue
		}
		sample.Kind = GpuUsageNvidia
		if processes[i].GpuUsage == nil {
			processes[i].GpuUsage = make(map[pci.Slot]GpuUsage)
		}
		processes[i].GpuUsage[slot] = processes[i].GpuUsage[slot].Greater(sample)
	}
}
