// Copyright 2026 The Resources Authors
// SPDX-License-Identifier: Apache-2.0

// Package pciids provides lazily-loaded hardware name databases: the
// hwdata pci.ids file for vendor and device names, and the libdrm
// amdgpu.ids file for AMD marketing names keyed by device and
// revision id.
//
// Both databases load at most once per process. A missing or
// malformed file degrades to an empty database (lookups miss), it
// never fails the caller.
package pciids

import (
	"bufio"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"sync"
)

const (
	defaultPCIIDsPath    = "/usr/share/hwdata/pci.ids"
	defaultAmdgpuIDsPath = "/usr/share/libdrm/amdgpu.ids"
)

// DB is the parsed pci.ids database.
type DB struct {
	vendors map[uint16]vendorEntry
}

type vendorEntry struct {
	name    string
	devices map[uint16]string
}

// VendorName returns the vendor name for a PCI vendor id.
func (db *DB) VendorName(vendor uint16) (string, bool) {
	entry, ok := db.vendors[vendor]
	if !ok {
		return "", false
	}
	return entry.name, true
}

// DeviceName returns the device name for a vendor/device id pair.
func (db *DB) DeviceName(vendor, device uint16) (string, bool) {
	entry, ok := db.vendors[vendor]
	if !ok {
		return "", false
	}
	name, ok := entry.devices[device]
	return name, ok
}

// Parse reads the pci.ids format: vendor lines ("vvvv  name"),
// device lines indented with one tab, subsystem lines with two tabs
// (skipped), and a trailing class section introduced by "C " lines
// (terminates parsing).
func Parse(r io.Reader) (*DB, error) {
	db := &DB{vendors: make(map[uint16]vendorEntry)}
	var current *vendorEntry

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if strings.HasPrefix(line, "C ") {
			// Device class section, nothing we need.
			break
		}

		switch {
		case strings.HasPrefix(line, "\t\t"):
			continue
		case strings.HasPrefix(line, "\t"):
			if current == nil {
				continue
			}
			id, name, ok := splitIDLine(line[1:])
			if !ok {
				continue
			}
			device, err := strconv.ParseUint(id, 16, 16)
			if err != nil {
				continue
			}
			current.devices[uint16(device)] = name
		default:
			id, name, ok := splitIDLine(line)
			if !ok {
				continue
			}
			vendor, err := strconv.ParseUint(id, 16, 16)
			if err != nil {
				continue
			}
			entry := vendorEntry{name: name, devices: make(map[uint16]string)}
			db.vendors[uint16(vendor)] = entry
			current = &entry
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading pci.ids: %w", err)
	}
	return db, nil
}

// splitIDLine splits "iiii  name" on the double-space separator.
func splitIDLine(s string) (id, name string, ok bool) {
	id, name, ok = strings.Cut(s, "  ")
	if !ok {
		return "", "", false
	}
	return strings.TrimSpace(id), strings.TrimSpace(name), true
}

// Load parses a pci.ids file from disk.
func Load(path string) (*DB, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return Parse(f)
}

// Default returns the process-wide pci.ids database, loaded on first
// use from the standard hwdata location.
var Default = sync.OnceValue(func() *DB {
	db, err := Load(defaultPCIIDsPath)
	if err != nil {
		slog.Debug("pci.ids unavailable", "path", defaultPCIIDsPath, "error", err)
		return &DB{vendors: map[uint16]vendorEntry{}}
	}
	return db
})

// AmdgpuDB maps AMD device and revision ids to marketing names.
type AmdgpuDB struct {
	names map[amdgpuKey]string
}

type amdgpuKey struct {
	device   uint16
	revision uint8
}

// Name returns the marketing name for a device/revision pair.
func (db *AmdgpuDB) Name(device uint16, revision uint8) (string, bool) {
	name, ok := db.names[amdgpuKey{device: device, revision: revision}]
	return name, ok
}

// ParseAmdgpu reads the amdgpu.ids format: a version line, then
// "device, revision, name" rows with hexadecimal ids.
func ParseAmdgpu(r io.Reader) (*AmdgpuDB, error) {
	db := &AmdgpuDB{names: make(map[amdgpuKey]string)}

	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		parts := strings.SplitN(line, ",", 3)
		if len(parts) != 3 {
			// Version line or malformed row.
			continue
		}

		device, err := strconv.ParseUint(strings.TrimSpace(parts[0]), 16, 16)
		if err != nil {
			continue
		}
		revision, err := strconv.ParseUint(strings.TrimSpace(parts[1]), 16, 8)
		if err != nil {
			continue
		}
		name := strings.TrimSpace(parts[2])
		if name == "" {
			continue
		}
		db.names[amdgpuKey{device: uint16(device), revision: uint8(revision)}] = name
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading amdgpu.ids: %w", err)
	}
	return db, nil
}

// LoadAmdgpu parses an amdgpu.ids file from disk.
func LoadAmdgpu(path string) (*AmdgpuDB, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return ParseAmdgpu(f)
}

// DefaultAmdgpu returns the process-wide amdgpu.ids database, loaded
// on first use from the standard libdrm location.
var DefaultAmdgpu = sync.OnceValue(func() *AmdgpuDB {
	db, err := LoadAmdgpu(defaultAmdgpuIDsPath)
	if err != nil {
		slog.Debug("amdgpu.ids unavailable", "path", defaultAmdgpuIDsPath, "error", err)
		return &AmdgpuDB{names: map[amdgpuKey]string{}}
	}
	return db
})
