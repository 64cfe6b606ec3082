// Copyright 2026 The Resources Authors
// SPDX-License-Identifier: Apache-2.0

// Package npu enumerates neural accelerators from /sys/class/accel.
// The vendor set is closed: Intel (the ivpu driver, which exposes a
// cumulative busy-time counter this package turns into a usage
// fraction) and Other, which runs entirely on the generic DRM and
// hwmon fallbacks shared with GPUs.
package npu

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/nokyan/resources-sub000/lib/clock"
	"github.com/nokyan/resources-sub000/lib/hwinfo"
	"github.com/nokyan/resources-sub000/lib/pci"
	"github.com/nokyan/resources-sub000/lib/pciids"
)

// Npu is one enumerated accelerator. The implementing set is closed:
// Intel and Other.
type Npu interface {
	Slot() pci.Slot
	Driver() string
	Name() (string, error)
	Usage() (float64, error)
	UsedMemory() (uint64, error)
	TotalMemory() (uint64, error)
	Temperature() (float64, error)
	PowerUsage() (float64, error)

	isNpu()
}

type device struct {
	slot       pci.Slot
	driver     string
	devicePath string
	hwmonPath  string
	identity   hwinfo.PCIIdentity
}

func (d *device) isNpu() {}

func (d *device) Slot() pci.Slot { return d.slot }

func (d *device) Driver() string { return d.driver }

func (d *device) Name() (string, error) {
	if name, ok := pciids.Default().DeviceName(d.identity.VendorID, d.identity.DeviceID); ok {
		return name, nil
	}
	return "", fmt.Errorf("device %04x:%04x not in pci.ids", d.identity.VendorID, d.identity.DeviceID)
}

// Usage has no generic DRM counter for accelerators.
func (d *device) Usage() (float64, error) {
	return 0, fmt.Errorf("%s: driver exposes no usage counter", d.driver)
}

func (d *device) UsedMemory() (uint64, error) {
	return hwinfo.ReadUint64(filepath.Join(d.devicePath, "npu_memory_utilization"))
}

func (d *device) TotalMemory() (uint64, error) {
	return hwinfo.ReadUint64(filepath.Join(d.devicePath, "npu_memory_total"))
}

func (d *device) Temperature() (float64, error) {
	if d.hwmonPath == "" {
		return 0, fmt.Errorf("%s: no hwmon", d.devicePath)
	}
	milli, err := hwinfo.ReadInt64(filepath.Join(d.hwmonPath, "temp1_input"))
	if err != nil {
		return 0, err
	}
	return float64(milli) / 1000, nil
}

func (d *device) PowerUsage() (float64, error) {
	if d.hwmonPath == "" {
		return 0, fmt.Errorf("%s: no hwmon", d.devicePath)
	}
	micro, err := hwinfo.ReadInt64(filepath.Join(d.hwmonPath, "power1_average"))
	if err != nil {
		micro, err = hwinfo.ReadInt64(filepath.Join(d.hwmonPath, "power1_input"))
	}
	if err != nil {
		return 0, err
	}
	return float64(micro) / 1e6, nil
}

// Intel is an accelerator bound to the ivpu driver. Its
// npu_busy_time_us attribute counts cumulative busy microseconds;
// Usage deltas it against the previous call, so the first call after
// startup reads 0.
type Intel struct {
	device
	clock clock.Clock

	lastBusyUs uint64
	lastSample time.Time
}

// Usage returns the busy fraction since the previous Usage call.
func (g *Intel) Usage() (float64, error) {
	busyUs, err := hwinfo.ReadUint64(filepath.Join(g.devicePath, "npu_busy_time_us"))
	if err != nil {
		return 0, err
	}
	now := g.clock.Now()

	defer func() {
		g.lastBusyUs = busyUs
		g.lastSample = now
	}()

	if g.lastSample.IsZero() || busyUs < g.lastBusyUs {
		return 0, nil
	}
	elapsedUs := float64(now.Sub(g.lastSample).Microseconds())
	return hwinfo.FiniteOr(float64(busyUs-g.lastBusyUs)/elapsedUs, 0), nil
}

// Other is any accelerator without a vendor-specific backend.
type Other struct {
	device
}

// Enumerate discovers accelerators under /sys/class/accel.
func Enumerate() []Npu {
	return enumerateFrom("/sys", clock.Real())
}

func enumerateFrom(sysRoot string, clk clock.Clock) []Npu {
	accelBase := filepath.Join(sysRoot, "class", "accel")
	entries, err := os.ReadDir(accelBase)
	if err != nil {
		return nil
	}

	var npus []Npu
	for _, entry := range entries {
		if !hwinfo.IsAccelDevice(entry.Name()) {
			continue
		}
		devicePath := filepath.Join(accelBase, entry.Name(), "device")

		driver, err := hwinfo.DriverName(devicePath)
		if err != nil {
			continue
		}
		identity, err := hwinfo.ReadPCIIdentity(devicePath)
		if err != nil {
			continue
		}

		base := device{
			slot:       identity.Slot,
			driver:     driver,
			devicePath: devicePath,
			identity:   identity,
		}
		if hwmon, err := hwinfo.HwmonPath(devicePath); err == nil {
			base.hwmonPath = hwmon
		}

		if driver == "intel_vpu" || driver == "ivpu" {
			npus = append(npus, &Intel{device: base, clock: clk})
		} else {
			npus = append(npus, &Other{device: base})
		}
	}
	return npus
}

// NpuData is one refresh's snapshot of an accelerator.
type NpuData struct {
	Slot   pci.Slot
	Driver string

	Name        hwinfo.Value[string]
	Usage       hwinfo.Value[float64]
	UsedMemory  hwinfo.Value[uint64]
	TotalMemory hwinfo.Value[uint64]
	Temperature hwinfo.Value[float64]
	PowerUsage  hwinfo.Value[float64]
}

func value[T any](v T, err error) hwinfo.Value[T] {
	if err != nil {
		return hwinfo.Err[T](err)
	}
	return hwinfo.Ok(v)
}

// Snapshot queries every metric of an accelerator once.
func Snapshot(n Npu) NpuData {
	return NpuData{
		Slot:        n.Slot(),
		Driver:      n.Driver(),
		Name:        value(n.Name()),
		Usage:       value(n.Usage()),
		UsedMemory:  value(n.UsedMemory()),
		TotalMemory: value(n.TotalMemory()),
		Temperature: value(n.Temperature()),
		PowerUsage:  value(n.PowerUsage()),
	}
}
