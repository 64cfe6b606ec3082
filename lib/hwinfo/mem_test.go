// Copyright 2026 The Resources Authors
// SPDX-License-Identifier: Apache-2.0

package hwinfo

import (
	"path/filepath"
	"runtime"
	"testing"
)

const sampleMeminfo = `MemTotal:       32614312 kB
MemFree:         1878140 kB
MemAvailable:   24491624 kB
Buffers:          523140 kB
Cached:         20837516 kB
SwapTotal:       8388604 kB
SwapFree:        8388604 kB
`

func TestSnapshotMem(t *testing.T) {
	root := t.TempDir()
	writeSyntheticFile(t, root, "meminfo", sampleMeminfo)

	data, err := snapshotMemFrom(filepath.Join(root, "meminfo"))
	if err != nil {
		t.Fatalf("snapshotMemFrom: %v", err)
	}

	// kB lines convert with the decimal factor: 1 kB = 1000 bytes.
	if data.TotalMem != 32614312000 {
		t.Errorf("TotalMem = %d, want 32614312000", data.TotalMem)
	}
	if data.AvailableMem != 24491624000 {
		t.Errorf("AvailableMem = %d, want 24491624000", data.AvailableMem)
	}
	if data.FreeMem != 1878140000 {
		t.Errorf("FreeMem = %d, want 1878140000", data.FreeMem)
	}
	if data.TotalSwap != 8388604000 {
		t.Errorf("TotalSwap = %d, want 8388604000", data.TotalSwap)
	}

	if got := data.UsedMem(); got != 32614312000-24491624000 {
		t.Errorf("UsedMem = %d", got)
	}
	if got := data.UsedSwap(); got != 0 {
		t.Errorf("UsedSwap = %d, want 0", got)
	}
}

func TestSnapshotMem_Malformed(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"empty", ""},
		{"no MemTotal", "MemFree: 100 kB\n"},
		{"bad number", "MemTotal: lots kB\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			root := t.TempDir()
			writeSyntheticFile(t, root, "meminfo", tt.content)
			if _, err := snapshotMemFrom(filepath.Join(root, "meminfo")); err == nil {
				t.Error("expected error, got nil")
			}
		})
	}
}

func TestSnapshotMemLive(t *testing.T) {
	if runtime.GOOS != "linux" {
		t.Skip("requires /proc")
	}

	data, err := SnapshotMem()
	if err != nil {
		t.Fatalf("SnapshotMem: %v", err)
	}
	if data.TotalMem == 0 {
		t.Error("live TotalMem should be nonzero")
	}

	sysTotal, _, err := SysinfoMem()
	if err != nil {
		t.Fatalf("SysinfoMem: %v", err)
	}
	if sysTotal == 0 {
		t.Error("sysinfo total should be nonzero")
	}
}

const sampleDmidecode = `Memory Device
	Total Width: 64 bits
	Size: 16 GB
	Form Factor: SODIMM
	Locator: DIMM A
	Type: DDR4
	Speed: 3200 MT/s

Memory Device
	Size: No Module Installed
	Form Factor: Unknown
	Type: Unknown
	Speed: Unknown

Memory Device
	Size: 512 MB
	Form Factor: DIMM
	Type: DDR3
	Speed: 1333 MT/s
`

func TestParseMemoryDevices(t *testing.T) {
	devices := parseMemoryDevices(sampleDmidecode)
	if len(devices) != 3 {
		t.Fatalf("device count = %d, want 3", len(devices))
	}

	first := devices[0]
	if !first.Installed {
		t.Error("first slot should be installed")
	}
	if first.SizeBytes != 16_000_000_000 {
		t.Errorf("first size = %d, want 16000000000", first.SizeBytes)
	}
	if first.FormFactor != "SODIMM" || first.Type != "DDR4" {
		t.Errorf("first form/type = %q/%q", first.FormFactor, first.Type)
	}
	if first.SpeedMTs != 3200 {
		t.Errorf("first speed = %d, want 3200", first.SpeedMTs)
	}

	if devices[1].Installed {
		t.Error("empty slot should not be installed")
	}

	if devices[2].SizeBytes != 512_000_000 {
		t.Errorf("third size = %d, want 512000000", devices[2].SizeBytes)
	}
}

func TestParseMemoryDevices_Empty(t *testing.T) {
	if devices := parseMemoryDevices(""); len(devices) != 0 {
		t.Errorf("empty output should parse to no devices, got %d", len(devices))
	}
}
