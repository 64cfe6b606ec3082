// Copyright 2026 The Resources Authors
// SPDX-License-Identifier: Apache-2.0

package hwinfo

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/nokyan/resources-sub000/lib/pci"
)

// IsCardDevice returns true for DRM card device names (card0, card1,
// ...) but not connectors (card0-DP-1) or render nodes (renderD128).
func IsCardDevice(name string) bool {
	return isNumberedDevice(name, "card")
}

// IsAccelDevice returns true for DRM accelerator node names (accel0,
// accel1, ...), the node class NPU drivers register under.
func IsAccelDevice(name string) bool {
	return isNumberedDevice(name, "accel")
}

func isNumberedDevice(name, prefix string) bool {
	if !strings.HasPrefix(name, prefix) {
		return false
	}
	suffix := name[len(prefix):]
	if len(suffix) == 0 {
		return false
	}
	for _, character := range suffix {
		if character < '0' || character > '9' {
			return false
		}
	}
	return true
}

// ReadString reads a single-line sysfs file and returns its trimmed
// content. A missing or unreadable file is an error, never an empty
// string: callers distinguish "sensor absent" from "sensor read zero".
func ReadString(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(data)), nil
}

// ReadInt64 reads a decimal integer from a sysfs file.
func ReadInt64(path string) (int64, error) {
	value, err := ReadString(path)
	if err != nil {
		return 0, err
	}
	result, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parsing %s: %w", path, err)
	}
	return result, nil
}

// ReadUint64 reads a decimal unsigned integer from a sysfs file.
func ReadUint64(path string) (uint64, error) {
	value, err := ReadString(path)
	if err != nil {
		return 0, err
	}
	result, err := strconv.ParseUint(value, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parsing %s: %w", path, err)
	}
	return result, nil
}

// ReadFloat reads a floating point value from a sysfs file.
func ReadFloat(path string) (float64, error) {
	value, err := ReadString(path)
	if err != nil {
		return 0, err
	}
	result, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return 0, fmt.Errorf("parsing %s: %w", path, err)
	}
	return result, nil
}

// ReadHexUint reads a hexadecimal value (with or without a 0x prefix)
// from a sysfs file, as found in the "revision" and
// "subsystem_device" attributes.
func ReadHexUint(path string) (uint64, error) {
	value, err := ReadString(path)
	if err != nil {
		return 0, err
	}
	value = strings.TrimPrefix(value, "0x")
	result, err := strconv.ParseUint(value, 16, 64)
	if err != nil {
		return 0, fmt.Errorf("parsing %s: %w", path, err)
	}
	return result, nil
}

// ReadUevent parses a device's uevent file into a key/value map.
// The file contains lines like:
//
//	DRIVER=amdgpu
//	PCI_ID=1002:744C
//	PCI_SLOT_NAME=0000:c3:00.0
func ReadUevent(devicePath string) (map[string]string, error) {
	data, err := os.ReadFile(filepath.Join(devicePath, "uevent"))
	if err != nil {
		return nil, err
	}

	values := make(map[string]string)
	for _, line := range strings.Split(string(data), "\n") {
		key, value, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		values[key] = value
	}
	return values, nil
}

// PCIIdentity is the PCI identity of a device, extracted from its
// uevent and revision attributes.
type PCIIdentity struct {
	VendorID uint16
	DeviceID uint16
	Slot     pci.Slot
	Revision uint8
}

// ReadPCIIdentity reads a device's PCI identity. The vendor/device
// pair comes from the uevent PCI_ID line ("1002:744C", uppercase
// hex), the slot from PCI_SLOT_NAME, and the revision from the
// sibling "revision" attribute (absent on some buses, reported as 0).
func ReadPCIIdentity(devicePath string) (PCIIdentity, error) {
	uevent, err := ReadUevent(devicePath)
	if err != nil {
		return PCIIdentity{}, err
	}

	pciID, ok := uevent["PCI_ID"]
	if !ok {
		return PCIIdentity{}, fmt.Errorf("%s: uevent has no PCI_ID", devicePath)
	}
	vendorPart, devicePart, ok := strings.Cut(pciID, ":")
	if !ok {
		return PCIIdentity{}, fmt.Errorf("%s: malformed PCI_ID %q", devicePath, pciID)
	}
	vendor, err := strconv.ParseUint(vendorPart, 16, 16)
	if err != nil {
		return PCIIdentity{}, fmt.Errorf("%s: malformed PCI_ID vendor %q: %w", devicePath, vendorPart, err)
	}
	device, err := strconv.ParseUint(devicePart, 16, 16)
	if err != nil {
		return PCIIdentity{}, fmt.Errorf("%s: malformed PCI_ID device %q: %w", devicePath, devicePart, err)
	}

	slotName, ok := uevent["PCI_SLOT_NAME"]
	if !ok {
		return PCIIdentity{}, fmt.Errorf("%s: uevent has no PCI_SLOT_NAME", devicePath)
	}
	slot, err := pci.Parse(slotName)
	if err != nil {
		return PCIIdentity{}, fmt.Errorf("%s: %w", devicePath, err)
	}

	identity := PCIIdentity{
		VendorID: uint16(vendor),
		DeviceID: uint16(device),
		Slot:     slot,
	}
	if revision, err := ReadHexUint(filepath.Join(devicePath, "revision")); err == nil {
		identity.Revision = uint8(revision)
	}
	return identity, nil
}

// DriverName returns the kernel driver bound to a device by reading
// the basename of the "driver" symlink in the device directory.
func DriverName(devicePath string) (string, error) {
	link, err := os.Readlink(filepath.Join(devicePath, "driver"))
	if err != nil {
		return "", err
	}
	return filepath.Base(link), nil
}

// HwmonPath resolves the first hwmon directory registered under a
// device (device/hwmon/hwmonN). Sensor attributes like temp1_input
// and power1_average live there.
func HwmonPath(devicePath string) (string, error) {
	hwmonBase := filepath.Join(devicePath, "hwmon")
	entries, err := os.ReadDir(hwmonBase)
	if err != nil {
		return "", err
	}
	for _, entry := range entries {
		if strings.HasPrefix(entry.Name(), "hwmon") {
			return filepath.Join(hwmonBase, entry.Name()), nil
		}
	}
	return "", fmt.Errorf("%s: no hwmon directory", devicePath)
}
