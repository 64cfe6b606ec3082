// Copyright 2026 The Resources Authors
// SPDX-License-Identifier: Apache-2.0

// Package gpu enumerates GPUs from /sys/class/drm and exposes their
// metrics behind a closed vendor abstraction. Every vendor backend
// falls back to the generic DRM and hwmon attributes; vendor-specific
// paths (NVML for NVIDIA, amdgpu.ids naming for AMD) take precedence
// when they answer.
//
// All accessors return an error for "this driver does not expose
// that" so callers can render N/A. Zero is always a measured zero.
package gpu

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/nokyan/resources-sub000/lib/hwinfo"
	"github.com/nokyan/resources-sub000/lib/pci"
	"github.com/nokyan/resources-sub000/lib/pciids"
)

// Gpu is one enumerated GPU. The implementing set is closed: Amd,
// Intel, Nvidia, V3d, and Other.
type Gpu interface {
	// Slot is the PCI address correlating this GPU with per-process
	// fdinfo usage and topology data.
	Slot() pci.Slot
	// Driver is the bound kernel driver name.
	Driver() string
	Name() (string, error)
	Usage() (float64, error)
	UsedVram() (uint64, error)
	TotalVram() (uint64, error)
	Temperature() (float64, error)
	PowerUsage() (float64, error)
	CoreFrequency() (uint64, error)
	VramFrequency() (uint64, error)
	PowerCap() (float64, error)
	PowerCapMax() (float64, error)

	// linkPath is the sysfs device directory, for PCIe link reads.
	linkPath() string

	isGpu()
}

// device carries the sysfs locations shared by every vendor and
// implements the generic DRM/hwmon fallbacks.
type device struct {
	slot       pci.Slot
	driver     string
	devicePath string
	hwmonPath  string
	identity   hwinfo.PCIIdentity
}

func (d *device) isGpu() {}

func (d *device) linkPath() string { return d.devicePath }

func (d *device) Slot() pci.Slot { return d.slot }

func (d *device) Driver() string { return d.driver }

// Name resolves through the pci.ids database; vendors with better
// sources override this.
func (d *device) Name() (string, error) {
	if name, ok := pciids.Default().DeviceName(d.identity.VendorID, d.identity.DeviceID); ok {
		return name, nil
	}
	return "", fmt.Errorf("device %04x:%04x not in pci.ids", d.identity.VendorID, d.identity.DeviceID)
}

// Usage reads the generic DRM busy percentage as a fraction.
func (d *device) Usage() (float64, error) {
	percent, err := hwinfo.ReadUint64(filepath.Join(d.devicePath, "gpu_busy_percent"))
	if err != nil {
		return 0, err
	}
	return float64(percent) / 100, nil
}

func (d *device) UsedVram() (uint64, error) {
	return hwinfo.ReadUint64(filepath.Join(d.devicePath, "mem_info_vram_used"))
}

func (d *device) TotalVram() (uint64, error) {
	return hwinfo.ReadUint64(filepath.Join(d.devicePath, "mem_info_vram_total"))
}

// Temperature reads the first hwmon temperature in degrees Celsius.
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

// PowerUsage reads the hwmon power draw in watts, preferring the
// averaged reading over the instantaneous one.
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

// CoreFrequency reads the first hwmon frequency channel in Hz.
func (d *device) CoreFrequency() (uint64, error) {
	if d.hwmonPath == "" {
		return 0, fmt.Errorf("%s: no hwmon", d.devicePath)
	}
	return hwinfo.ReadUint64(filepath.Join(d.hwmonPath, "freq1_input"))
}

// VramFrequency reads the second hwmon frequency channel in Hz.
func (d *device) VramFrequency() (uint64, error) {
	if d.hwmonPath == "" {
		return 0, fmt.Errorf("%s: no hwmon", d.devicePath)
	}
	return hwinfo.ReadUint64(filepath.Join(d.hwmonPath, "freq2_input"))
}

func (d *device) PowerCap() (float64, error) {
	if d.hwmonPath == "" {
		return 0, fmt.Errorf("%s: no hwmon", d.devicePath)
	}
	micro, err := hwinfo.ReadInt64(filepath.Join(d.hwmonPath, "power1_cap"))
	if err != nil {
		return 0, err
	}
	return float64(micro) / 1e6, nil
}

func (d *device) PowerCapMax() (float64, error) {
	if d.hwmonPath == "" {
		return 0, fmt.Errorf("%s: no hwmon", d.devicePath)
	}
	micro, err := hwinfo.ReadInt64(filepath.Join(d.hwmonPath, "power1_cap_max"))
	if err != nil {
		return 0, err
	}
	return float64(micro) / 1e6, nil
}

// Amd is a GPU bound to the amdgpu driver. The generic DRM attributes
// cover its metrics; only naming differs, going through amdgpu.ids
// first because pci.ids rarely carries consumer marketing names.
type Amd struct {
	device
}

func (g *Amd) Name() (string, error) {
	if name, ok := pciids.DefaultAmdgpu().Name(g.identity.DeviceID, g.identity.Revision); ok {
		return name, nil
	}
	return g.device.Name()
}

// Intel is a GPU bound to i915 or xe. Intel integrated GPUs expose no
// gpu_busy_percent or VRAM attributes; those report errors and
// callers fall back to per-process fdinfo aggregation.
type Intel struct {
	device
}

// V3d is a Broadcom VideoCore GPU (Raspberry Pi). It sits on the
// platform bus, so its slot is the zero value.
type V3d struct {
	device
}

// Other is any GPU without a vendor-specific backend, served entirely
// by the generic fallbacks.
type Other struct {
	device
}

// Enumerate discovers GPUs under /sys/class/drm. Simple framebuffer
// devices are not GPUs and are skipped, as are card nodes whose
// driver or PCI identity cannot be established (except v3d, which has
// no PCI identity at all).
func Enumerate() []Gpu {
	return enumerateFrom("/sys")
}

func enumerateFrom(sysRoot string) []Gpu {
	drmBase := filepath.Join(sysRoot, "class", "drm")
	entries, err := os.ReadDir(drmBase)
	if err != nil {
		return nil
	}

	var gpus []Gpu
	for _, entry := range entries {
		if !hwinfo.IsCardDevice(entry.Name()) {
			continue
		}
		devicePath := filepath.Join(drmBase, entry.Name(), "device")

		driver, err := hwinfo.DriverName(devicePath)
		if err != nil {
			continue
		}
		if driver == "simple-framebuffer" || driver == "simpledrm" {
			continue
		}

		base := device{
			driver:     driver,
			devicePath: devicePath,
		}
		if hwmon, err := hwinfo.HwmonPath(devicePath); err == nil {
			base.hwmonPath = hwmon
		}

		identity, identityErr := hwinfo.ReadPCIIdentity(devicePath)
		if identityErr == nil {
			base.identity = identity
			base.slot = identity.Slot
		}

		switch {
		case driver == "v3d":
			gpus = append(gpus, &V3d{device: base})
		case identityErr != nil:
			// PCI identity is the correlation key for everything
			// else; without it the device cannot be tracked.
			continue
		case driver == "amdgpu":
			gpus = append(gpus, &Amd{device: base})
		case driver == "i915" || driver == "xe":
			gpus = append(gpus, &Intel{device: base})
		case driver == "nvidia":
			gpus = append(gpus, newNvidia(base))
		default:
			gpus = append(gpus, &Other{device: base})
		}
	}
	return gpus
}
