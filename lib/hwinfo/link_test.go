// Copyright 2026 The Resources Authors
// SPDX-License-Identifier: Apache-2.0

package hwinfo

import (
	"errors"
	"path/filepath"
	"testing"
)

func TestParsePcieSpeed(t *testing.T) {
	tests := []struct {
		input string
		want  PcieSpeed
	}{
		{"2.5 GT/s", Pcie1},
		{"2.5 GT/s PCIe", Pcie1},
		{"5.0 GT/s PCIe", Pcie2},
		{"8.0 GT/s PCIe", Pcie3},
		{"16.0 GT/s PCIe", Pcie4},
		{"32.0 GT/s PCIe", Pcie5},
		{"64.0 GT/s PCIe", Pcie6},
		{"128.0 GT/s PCIe", Pcie7},
	}
	for _, tt := range tests {
		got, err := ParsePcieSpeed(tt.input)
		if err != nil {
			t.Errorf("ParsePcieSpeed(%q): %v", tt.input, err)
			continue
		}
		if got != tt.want {
			t.Errorf("ParsePcieSpeed(%q) = %v, want %v", tt.input, got, tt.want)
		}
	}
}

func TestParsePcieSpeed_Unknown(t *testing.T) {
	_, err := ParsePcieSpeed("11.0 GT/s PCIe")
	if err == nil {
		t.Fatal("expected error for unknown speed")
	}
	var unknownErr *UnknownLinkValueError
	if !errors.As(err, &unknownErr) {
		t.Fatalf("expected UnknownLinkValueError, got %T", err)
	}
	if unknownErr.Value != "11.0 GT/s PCIe" {
		t.Errorf("error value = %q", unknownErr.Value)
	}
}

func TestParseSataSpeed(t *testing.T) {
	tests := []struct {
		input string
		want  SataSpeed
	}{
		{"1.5 Gbps", Sata1},
		{"3.0 Gbps", Sata2},
		{"6.0 Gbps", Sata3},
	}
	for _, tt := range tests {
		got, err := ParseSataSpeed(tt.input)
		if err != nil {
			t.Errorf("ParseSataSpeed(%q): %v", tt.input, err)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseSataSpeed(%q) = %v, want %v", tt.input, got, tt.want)
		}
	}

	if _, err := ParseSataSpeed("12.0 Gbps"); err == nil {
		t.Error("expected error for unknown SATA speed")
	}
}

func TestParseUsbSpeed(t *testing.T) {
	tests := []struct {
		input string
		want  UsbSpeed
	}{
		{"1.5", Usb1LowSpeed},
		{"12", Usb1FullSpeed},
		{"480", Usb2},
		{"5000", Usb3Gen1},
		{"10000", Usb3Gen2},
		{"20000", Usb3Gen2x2},
		{"40000", Usb4Gen3},
		{"80000", Usb4Gen4},
	}
	for _, tt := range tests {
		got, err := ParseUsbSpeed(tt.input)
		if err != nil {
			t.Errorf("ParseUsbSpeed(%q): %v", tt.input, err)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseUsbSpeed(%q) = %v, want %v", tt.input, got, tt.want)
		}
	}

	if _, err := ParseUsbSpeed("9600"); err == nil {
		t.Error("expected error for unknown USB speed")
	}
}

func TestLinkDataString(t *testing.T) {
	gen4x8 := PcieLink{Speed: Pcie4, Width: 8}
	gen4x16 := PcieLink{Speed: Pcie4, Width: 16}
	unavailable := errors.New("unavailable")

	tests := []struct {
		name string
		data LinkData[PcieLink]
		want string
	}{
		{
			name: "current differs from max",
			data: LinkData[PcieLink]{Current: Ok(gen4x8), Max: Ok(gen4x16)},
			want: "PCIe 4.0 ×8 / PCIe 4.0 ×16",
		},
		{
			name: "current equals max",
			data: LinkData[PcieLink]{Current: Ok(gen4x16), Max: Ok(gen4x16)},
			want: "PCIe 4.0 ×16",
		},
		{
			name: "max unknown",
			data: LinkData[PcieLink]{Current: Ok(gen4x8), Max: Err[PcieLink](unavailable)},
			want: "PCIe 4.0 ×8",
		},
		{
			name: "current unknown",
			data: LinkData[PcieLink]{Current: Err[PcieLink](unavailable), Max: Ok(gen4x16)},
			want: "N/A",
		},
		{
			name: "both unknown",
			data: LinkData[PcieLink]{Current: Err[PcieLink](unavailable), Max: Err[PcieLink](unavailable)},
			want: "N/A",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.data.String(); got != tt.want {
				t.Errorf("String() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestReadPcieLink(t *testing.T) {
	root := t.TempDir()
	writeSyntheticFile(t, root, "device/current_link_speed", "16.0 GT/s PCIe\n")
	writeSyntheticFile(t, root, "device/current_link_width", "8\n")
	writeSyntheticFile(t, root, "device/max_link_speed", "16.0 GT/s PCIe\n")
	writeSyntheticFile(t, root, "device/max_link_width", "16\n")

	link := ReadPcieLink(filepath.Join(root, "device"))

	current, err := link.Current.Get()
	if err != nil {
		t.Fatalf("current: %v", err)
	}
	if current != (PcieLink{Speed: Pcie4, Width: 8}) {
		t.Errorf("current = %+v", current)
	}

	if got := link.LinkData.String(); got != "PCIe 4.0 ×8 / PCIe 4.0 ×16" {
		t.Errorf("String() = %q", got)
	}
}

func TestReadPcieLink_MissingAttributes(t *testing.T) {
	link := ReadPcieLink(t.TempDir())
	if link.Current.IsOk() || link.Max.IsOk() {
		t.Error("missing attributes should carry errors")
	}
	if got := link.LinkData.String(); got != "N/A" {
		t.Errorf("String() = %q, want N/A", got)
	}
}

func TestWifiGenerationString(t *testing.T) {
	tests := []struct {
		generation WifiGeneration
		want       string
	}{
		{Wifi4, "Wi-Fi 4"},
		{Wifi5, "Wi-Fi 5"},
		{Wifi6, "Wi-Fi 6"},
		{Wifi6E, "Wi-Fi 6E"},
		{Wifi7, "Wi-Fi 7"},
	}
	for _, tt := range tests {
		if got := tt.generation.String(); got != tt.want {
			t.Errorf("String() = %q, want %q", got, tt.want)
		}
	}
}

func TestFiniteOr(t *testing.T) {
	if got := FiniteOr(0.5, 0); got != 0.5 {
		t.Errorf("finite value changed: %v", got)
	}
	nan := 0.0
	if got := FiniteOr(nan/nan, 0); got != 0 {
		t.Errorf("NaN should map to default, got %v", got)
	}
	one := 1.0
	if got := FiniteOr(one/nan, 0); got != 0 {
		t.Errorf("+Inf should map to default, got %v", got)
	}
	if got := FiniteOr(-one/nan, 0); got != 0 {
		t.Errorf("-Inf should map to default, got %v", got)
	}
}
