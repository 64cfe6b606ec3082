// Copyright 2026 The Resources Authors
// SPDX-License-Identifier: Apache-2.0

package pciids

import (
	"strings"
	"testing"
)

const samplePCIIDs = `#
#	List of PCI ID's
#

1002  Advanced Micro Devices, Inc. [AMD/ATI]
	731f  Navi 10 [Radeon RX 5600 OEM/5600 XT / 5700/5700 XT]
		1da2 e410  Radeon RX 5700 XT
	744c  Navi 31 [Radeon RX 7900 XT/7900 XTX/7900M]
10de  NVIDIA Corporation
	2684  AD102 [GeForce RTX 4090]
8086  Intel Corporation
	56a0  DG2 [Arc A770]

C 00  Unclassified device
	00  Non-VGA unclassified device
`

func TestParsePCIIDs(t *testing.T) {
	db, err := Parse(strings.NewReader(samplePCIIDs))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}

	tests := []struct {
		vendor uint16
		want   string
	}{
		{0x1002, "Advanced Micro Devices, Inc. [AMD/ATI]"},
		{0x10de, "NVIDIA Corporation"},
		{0x8086, "Intel Corporation"},
	}
	for _, tt := range tests {
		got, ok := db.VendorName(tt.vendor)
		if !ok {
			t.Errorf("VendorName(%04x): missing", tt.vendor)
			continue
		}
		if got != tt.want {
			t.Errorf("VendorName(%04x) = %q, want %q", tt.vendor, got, tt.want)
		}
	}

	if got, ok := db.DeviceName(0x10de, 0x2684); !ok || got != "AD102 [GeForce RTX 4090]" {
		t.Errorf("DeviceName(10de, 2684) = %q, %v", got, ok)
	}
	if got, ok := db.DeviceName(0x1002, 0x744c); !ok || !strings.Contains(got, "Navi 31") {
		t.Errorf("DeviceName(1002, 744c) = %q, %v", got, ok)
	}
}

func TestParsePCIIDs_Misses(t *testing.T) {
	db, err := Parse(strings.NewReader(samplePCIIDs))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}

	if _, ok := db.VendorName(0xdead); ok {
		t.Error("unknown vendor should miss")
	}
	if _, ok := db.DeviceName(0x1002, 0xffff); ok {
		t.Error("unknown device should miss")
	}
	// The class section must not be parsed as a vendor.
	if _, ok := db.VendorName(0x00); ok {
		t.Error("class section leaked into vendor table")
	}
}

func TestParsePCIIDs_Empty(t *testing.T) {
	db, err := Parse(strings.NewReader(""))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if _, ok := db.VendorName(0x1002); ok {
		t.Error("empty database should miss")
	}
}

const sampleAmdgpuIDs = `# List of AMDGPU IDs
1.0.0
15D8,	C1,	AMD Radeon(TM) Vega 8 Graphics
731F,	C1,	AMD Radeon RX 5700 XT
731F,	C4,	AMD Radeon RX 5700
744C,	C8,	AMD Radeon RX 7900 XTX
`

func TestParseAmdgpuIDs(t *testing.T) {
	db, err := ParseAmdgpu(strings.NewReader(sampleAmdgpuIDs))
	if err != nil {
		t.Fatalf("ParseAmdgpu: %v", err)
	}

	tests := []struct {
		device   uint16
		revision uint8
		want     string
	}{
		{0x731f, 0xc1, "AMD Radeon RX 5700 XT"},
		{0x731f, 0xc4, "AMD Radeon RX 5700"},
		{0x744c, 0xc8, "AMD Radeon RX 7900 XTX"},
	}
	for _, tt := range tests {
		got, ok := db.Name(tt.device, tt.revision)
		if !ok {
			t.Errorf("Name(%04x, %02x): missing", tt.device, tt.revision)
			continue
		}
		if got != tt.want {
			t.Errorf("Name(%04x, %02x) = %q, want %q", tt.device, tt.revision, got, tt.want)
		}
	}

	// Same device, unknown revision misses.
	if _, ok := db.Name(0x731f, 0x00); ok {
		t.Error("unknown revision should miss")
	}
}

func TestParseAmdgpuIDs_SkipsVersionLine(t *testing.T) {
	db, err := ParseAmdgpu(strings.NewReader("1.0.0\n"))
	if err != nil {
		t.Fatalf("ParseAmdgpu: %v", err)
	}
	if len(db.names) != 0 {
		t.Errorf("version line parsed as entry: %v", db.names)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load("/nonexistent/pci.ids"); err == nil {
		t.Error("Load of missing file should error")
	}
	if _, err := LoadAmdgpu("/nonexistent/amdgpu.ids"); err == nil {
		t.Error("LoadAmdgpu of missing file should error")
	}
}
