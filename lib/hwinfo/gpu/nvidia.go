// Copyright 2026 The Resources Authors
// SPDX-License-Identifier: Apache-2.0

package gpu

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/NVIDIA/go-nvml/pkg/nvml"

	"github.com/nokyan/resources-sub000/lib/procdata"
)

// nvmlAvailable initializes NVML once per process. Initialization
// fails on systems without the NVIDIA userspace driver; the GPU then
// runs on the generic sysfs fallbacks.
var nvmlAvailable = sync.OnceValue(func() bool {
	if ret := nvml.Init(); ret != nvml.SUCCESS {
		slog.Debug("NVML unavailable", "error", nvml.ErrorString(ret))
		return false
	}
	return true
})

// nvmlError converts an NVML return code into an error, nil on
// success.
func nvmlError(operation string, ret nvml.Return) error {
	if ret == nvml.SUCCESS {
		return nil
	}
	return fmt.Errorf("nvml %s: %s", operation, nvml.ErrorString(ret))
}

// Nvidia is a GPU bound to the proprietary NVIDIA driver. Metrics go
// through NVML, correlated by PCI bus id; every accessor falls back
// to the generic sysfs path when NVML cannot answer.
type Nvidia struct {
	device
	handle    nvml.Device
	hasHandle bool

	// lastSeen bounds GetProcessUtilization queries to samples newer
	// than the previous call.
	lastSeen uint64
}

// newNvidia resolves the NVML handle for a card by its PCI address.
// NVML expects the extended form with a 32-bit domain.
func newNvidia(base device) *Nvidia {
	gpu := &Nvidia{device: base}
	if !nvmlAvailable() {
		return gpu
	}
	busID := fmt.Sprintf("%08x:%02x:%02x.%x",
		base.slot.Domain, base.slot.Bus, base.slot.Number, base.slot.Function)
	handle, ret := nvml.DeviceGetHandleByPciBusId(busID)
	if ret != nvml.SUCCESS {
		slog.Debug("no NVML handle for device",
			"slot", base.slot, "error", nvml.ErrorString(ret))
		return gpu
	}
	gpu.handle = handle
	gpu.hasHandle = true
	return gpu
}

func (g *Nvidia) Name() (string, error) {
	if g.hasHandle {
		if name, ret := g.handle.GetName(); ret == nvml.SUCCESS {
			return name, nil
		}
	}
	return g.device.Name()
}

func (g *Nvidia) Usage() (float64, error) {
	if g.hasHandle {
		if utilization, ret := g.handle.GetUtilizationRates(); ret == nvml.SUCCESS {
			return float64(utilization.Gpu) / 100, nil
		}
	}
	return g.device.Usage()
}

func (g *Nvidia) UsedVram() (uint64, error) {
	if g.hasHandle {
		if memory, ret := g.handle.GetMemoryInfo(); ret == nvml.SUCCESS {
			return memory.Used, nil
		}
	}
	return g.device.UsedVram()
}

func (g *Nvidia) TotalVram() (uint64, error) {
	if g.hasHandle {
		if memory, ret := g.handle.GetMemoryInfo(); ret == nvml.SUCCESS {
			return memory.Total, nil
		}
	}
	return g.device.TotalVram()
}

func (g *Nvidia) Temperature() (float64, error) {
	if g.hasHandle {
		if celsius, ret := g.handle.GetTemperature(nvml.TEMPERATURE_GPU); ret == nvml.SUCCESS {
			return float64(celsius), nil
		}
	}
	return g.device.Temperature()
}

func (g *Nvidia) PowerUsage() (float64, error) {
	if g.hasHandle {
		if milliwatts, ret := g.handle.GetPowerUsage(); ret == nvml.SUCCESS {
			return float64(milliwatts) / 1000, nil
		}
	}
	return g.device.PowerUsage()
}

func (g *Nvidia) CoreFrequency() (uint64, error) {
	if g.hasHandle {
		if megahertz, ret := g.handle.GetClockInfo(nvml.CLOCK_GRAPHICS); ret == nvml.SUCCESS {
			return uint64(megahertz) * 1_000_000, nil
		}
	}
	return g.device.CoreFrequency()
}

func (g *Nvidia) VramFrequency() (uint64, error) {
	if g.hasHandle {
		if megahertz, ret := g.handle.GetClockInfo(nvml.CLOCK_MEM); ret == nvml.SUCCESS {
			return uint64(megahertz) * 1_000_000, nil
		}
	}
	return g.device.VramFrequency()
}

func (g *Nvidia) PowerCap() (float64, error) {
	if g.hasHandle {
		if milliwatts, ret := g.handle.GetPowerManagementLimit(); ret == nvml.SUCCESS {
			return float64(milliwatts) / 1000, nil
		}
	}
	return g.device.PowerCap()
}

func (g *Nvidia) PowerCapMax() (float64, error) {
	if g.hasHandle {
		if _, maxLimit, ret := g.handle.GetPowerManagementLimitConstraints(); ret == nvml.SUCCESS {
			return float64(maxLimit) / 1000, nil
		}
	}
	return g.device.PowerCapMax()
}

// ProcessSamples returns per-process utilization and memory for this
// GPU, keyed by pid, in the shape the producer merges into its
// batches. Utilization comes from the driver's own sampling window,
// memory from the running-process lists.
func (g *Nvidia) ProcessSamples() (map[int32]procdata.GpuUsage, error) {
	if !g.hasHandle {
		return nil, fmt.Errorf("no NVML handle for %s", g.slot)
	}

	samples := make(map[int32]procdata.GpuUsage)

	utilization, ret := g.handle.GetProcessUtilization(g.lastSeen)
	// NOT_FOUND means no process ran since lastSeen, which is not an
	// error.
	if err := nvmlError("GetProcessUtilization", ret); err != nil && ret != nvml.ERROR_NOT_FOUND {
		return nil, err
	}
	for _, sample := range utilization {
		g.lastSeen = max(g.lastSeen, sample.TimeStamp)
		pid := int32(sample.Pid)
		usage := samples[pid]
		usage.Kind = procdata.GpuUsageNvidia
		usage.GfxPercent = max(usage.GfxPercent, sample.SmUtil)
		usage.EncPercent = max(usage.EncPercent, sample.EncUtil)
		usage.DecPercent = max(usage.DecPercent, sample.DecUtil)
		samples[pid] = usage
	}

	for _, list := range [][]nvml.ProcessInfo{
		firstOk(g.handle.GetComputeRunningProcesses()),
		firstOk(g.handle.GetGraphicsRunningProcesses()),
	} {
		for _, info := range list {
			pid := int32(info.Pid)
			usage := samples[pid]
			usage.Kind = procdata.GpuUsageNvidia
			usage.Mem = max(usage.Mem, info.UsedGpuMemory)
			samples[pid] = usage
		}
	}
	return samples, nil
}

func firstOk(list []nvml.ProcessInfo, ret nvml.Return) []nvml.ProcessInfo {
	if ret != nvml.SUCCESS {
		return nil
	}
	return list
}
