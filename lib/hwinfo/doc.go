// Copyright 2026 The Resources Authors
// SPDX-License-Identifier: Apache-2.0

// Package hwinfo reads hardware state from /proc and /sys on Linux.
//
// # Snapshots and deltas
//
// Dynamic readings come as snapshot structs ([CPUData], [MemData])
// that carry cumulative counters; rates and usage fractions are
// computed by delta'ing two snapshots ([UsageRatio]). With no prior
// snapshot every rate is exactly 0, and every exported ratio passes
// through [FiniteOr] so a zero interval reads as 0, never NaN.
//
// # Error taxonomy
//
// A sensor that cannot be read is an error, not a zero. Readings that
// can fail independently are carried as [Value] pairs so consumers
// can tell "absent" from "read zero" per field.
//
// # Sysfs helpers
//
// Shared helpers used by the vendor subpackages: DRM node filtering
// ([IsCardDevice], [IsAccelDevice]), uevent and PCI identity parsing
// ([ReadPCIIdentity]), driver identification ([DriverName]), hwmon
// resolution ([HwmonPath]), and typed single-value file readers.
//
// # Link layer
//
// The [Link] types classify the interconnect behind a device (PCIe,
// SATA, USB, Wi-Fi) with both the negotiated and maximum
// configuration, each independently fallible.
//
// # Subpackages
//
//   - hwinfo/gpu: GPU enumeration and telemetry across the amdgpu,
//     i915/xe, nvidia, and v3d drivers.
//   - hwinfo/npu: NPU accelerator nodes (intel ivpu and others).
//   - hwinfo/drive: block device snapshots from /sys/block.
//   - hwinfo/net: network interface snapshots and Wi-Fi link details.
//   - hwinfo/battery: power supply snapshots.
package hwinfo
