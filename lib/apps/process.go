// Copyright 2026 The Resources Authors
// SPDX-License-Identifier: Apache-2.0

package apps

import (
	"runtime"
	"strings"

	"github.com/nokyan/resources-sub000/lib/hwinfo"
	"github.com/nokyan/resources-sub000/lib/pci"
	"github.com/nokyan/resources-sub000/lib/procdata"
)

// logicalCPUs normalizes CPU ratios so a fully loaded machine reads
// 1.0 regardless of core count. Tests override it.
var logicalCPUs = runtime.NumCPU()

// Process is one live OS process: the latest raw sample plus the
// previous refresh's counters, which turn cumulative values into
// rates. A zero previous timestamp marks the first observation; every
// rate is exactly 0 until a second sample arrives.
type Process struct {
	Data procdata.ProcessData

	cpuTimeLast    uint64
	timestampLast  uint64
	readBytesLast  *uint64
	writeBytesLast *uint64
	gpuUsageLast   map[pci.Slot]procdata.GpuUsage
	npuUsageLast   map[pci.Slot]procdata.NpuUsage
}

// newProcess wraps a first observation. All "last" fields stay zero
// so the rate methods report 0 until the next refresh.
func newProcess(data procdata.ProcessData) *Process {
	return &Process{Data: data}
}

// update rolls the current counters into the "last" fields, then
// replaces the sample. The roll must happen first or deltas would
// measure zero elapsed time.
func (p *Process) update(data procdata.ProcessData) {
	p.cpuTimeLast = p.Data.UserCPUTime + p.Data.SystemCPUTime
	p.timestampLast = p.Data.TimestampMs
	p.readBytesLast = p.Data.ReadBytes
	p.writeBytesLast = p.Data.WriteBytes
	p.gpuUsageLast = p.Data.GpuUsage
	p.npuUsageLast = p.Data.NpuUsage
	p.Data = data
}

// elapsedMs returns the wall-clock interval covered by the current
// sample, 0 on first observation.
func (p *Process) elapsedMs() uint64 {
	if p.timestampLast == 0 || p.Data.TimestampMs < p.timestampLast {
		return 0
	}
	return p.Data.TimestampMs - p.timestampLast
}

// CPUTimeRatio returns the fraction of total machine CPU capacity
// this process used over the last interval, in [0, 1] on a healthy
// clock.
func (p *Process) CPUTimeRatio() float64 {
	elapsed := p.elapsedMs()
	if elapsed == 0 {
		return 0
	}
	cpuTime := p.Data.UserCPUTime + p.Data.SystemCPUTime
	if cpuTime < p.cpuTimeLast {
		return 0
	}
	delta := cpuTime - p.cpuTimeLast
	ratio := float64(delta) * 1000 /
		(float64(elapsed) * hwinfo.TicksPerSecond * float64(logicalCPUs))
	return hwinfo.FiniteOr(ratio, 0)
}

// ReadSpeed returns the read throughput in bytes per second. The
// second value is false when the kernel counter itself is unreadable
// (typically another user's process), which callers must render as
// unknown rather than zero.
func (p *Process) ReadSpeed() (float64, bool) {
	return p.ioSpeed(p.Data.ReadBytes, p.readBytesLast)
}

// WriteSpeed returns the write throughput in bytes per second.
func (p *Process) WriteSpeed() (float64, bool) {
	return p.ioSpeed(p.Data.WriteBytes, p.writeBytesLast)
}

func (p *Process) ioSpeed(current, last *uint64) (float64, bool) {
	if current == nil {
		return 0, false
	}
	elapsed := p.elapsedMs()
	if elapsed == 0 || last == nil || *current < *last {
		return 0, true
	}
	return hwinfo.FiniteOr(float64(*current-*last)/float64(elapsed)*1000, 0), true
}

// GpuUsage returns the highest 3D/compute engine fraction across
// every GPU the process touched. A slot without a previous sample
// contributes 0 unless the driver reports pre-normalized percentages.
func (p *Process) GpuUsage() float64 {
	return p.maxGpuFraction(procdata.GpuUsage.GfxFraction)
}

// EncUsage returns the highest video encode fraction across GPUs.
func (p *Process) EncUsage() float64 {
	return p.maxGpuFraction(procdata.GpuUsage.EncFraction)
}

// DecUsage returns the highest video decode fraction across GPUs.
func (p *Process) DecUsage() float64 {
	return p.maxGpuFraction(procdata.GpuUsage.DecFraction)
}

func (p *Process) maxGpuFraction(fraction func(procdata.GpuUsage, procdata.GpuUsage, uint64) float64) float64 {
	elapsed := p.elapsedMs()
	best := 0.0
	for slot, usage := range p.Data.GpuUsage {
		previous, sampled := p.gpuUsageLast[slot]
		if !sampled && usage.Kind != procdata.GpuUsageNvidia {
			continue
		}
		best = max(best, fraction(usage, previous, elapsed))
	}
	return best
}

// GpuUsageFor returns this process's usage fraction on one device,
// for per-device aggregation.
func (p *Process) GpuUsageFor(slot pci.Slot) float64 {
	return p.gpuFractionFor(slot, procdata.GpuUsage.GfxFraction)
}

// EncUsageFor returns the encode fraction on one device.
func (p *Process) EncUsageFor(slot pci.Slot) float64 {
	return p.gpuFractionFor(slot, procdata.GpuUsage.EncFraction)
}

// DecUsageFor returns the decode fraction on one device.
func (p *Process) DecUsageFor(slot pci.Slot) float64 {
	return p.gpuFractionFor(slot, procdata.GpuUsage.DecFraction)
}

func (p *Process) gpuFractionFor(slot pci.Slot, fraction func(procdata.GpuUsage, procdata.GpuUsage, uint64) float64) float64 {
	usage, ok := p.Data.GpuUsage[slot]
	if !ok {
		return 0
	}
	previous, sampled := p.gpuUsageLast[slot]
	if !sampled && usage.Kind != procdata.GpuUsageNvidia {
		return 0
	}
	return fraction(usage, previous, p.elapsedMs())
}

// GpuMemUsage returns the largest device memory attribution across
// GPUs, in bytes.
func (p *Process) GpuMemUsage() uint64 {
	var best uint64
	for _, usage := range p.Data.GpuUsage {
		best = max(best, usage.Mem)
	}
	return best
}

// NpuUsage returns the highest NPU busy fraction across devices.
func (p *Process) NpuUsage() float64 {
	elapsed := p.elapsedMs()
	best := 0.0
	for slot, usage := range p.Data.NpuUsage {
		previous, sampled := p.npuUsageLast[slot]
		if !sampled {
			continue
		}
		best = max(best, usage.Fraction(previous, elapsed))
	}
	return best
}

// NpuMemUsage returns the largest NPU memory attribution in bytes.
func (p *Process) NpuMemUsage() uint64 {
	var best uint64
	for _, usage := range p.Data.NpuUsage {
		best = max(best, usage.Mem)
	}
	return best
}

// StartTimeSeconds returns when the process started, in seconds since
// boot.
func (p *Process) StartTimeSeconds() float64 {
	return float64(p.Data.StartTime) / hwinfo.TicksPerSecond
}

// ExecutablePath returns the first NUL-separated token of the command
// line, the process's executable as the kernel recorded it.
func (p *Process) ExecutablePath() string {
	path, _, _ := strings.Cut(p.Data.Commandline, "\x00")
	return path
}

// ExecutableName returns the basename of the executable path.
func (p *Process) ExecutableName() string {
	path := p.ExecutablePath()
	if i := strings.LastIndexByte(path, '/'); i >= 0 {
		return path[i+1:]
	}
	return path
}
