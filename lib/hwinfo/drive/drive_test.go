// Copyright 2026 The Resources Authors
// SPDX-License-Identifier: Apache-2.0

package drive

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"
)

func writeSyntheticFile(t *testing.T, root, path, content string) {
	t.Helper()
	fullPath := filepath.Join(root, path)
	if err := os.MkdirAll(filepath.Dir(fullPath), 0755); err != nil {
		t.Fatalf("mkdir %s: %v", filepath.Dir(fullPath), err)
	}
	if err := os.WriteFile(fullPath, []byte(content), 0644); err != nil {
		t.Fatalf("write %s: %v", fullPath, err)
	}
}

const sampleStat = "  120000  3400  9600000  84000  45000  1200  2400000  52000  0  61000  137000\n"

func TestEnumerate(t *testing.T) {
	sysRoot := t.TempDir()
	writeSyntheticFile(t, sysRoot, "block/sda/device/model", "Samsung SSD 870\n")
	writeSyntheticFile(t, sysRoot, "block/sda/queue/rotational", "0\n")
	writeSyntheticFile(t, sysRoot, "block/sda/size", "1953525168\n")
	writeSyntheticFile(t, sysRoot, "block/sda/removable", "0\n")
	writeSyntheticFile(t, sysRoot, "block/sdb/queue/rotational", "1\n")
	writeSyntheticFile(t, sysRoot, "block/nvme0n1/size", "2000409264\n")
	writeSyntheticFile(t, sysRoot, "block/sr0/size", "0\n")
	writeSyntheticFile(t, sysRoot, "block/loop0/size", "8\n")
	writeSyntheticFile(t, sysRoot, "block/zram0/size", "16384\n")

	drives := enumerateFrom(sysRoot, false)
	if len(drives) != 4 {
		t.Fatalf("enumerated %d drives, want 4 without virtual", len(drives))
	}

	byName := make(map[string]Drive)
	for _, d := range drives {
		byName[d.Name] = d
	}
	if d := byName["sda"]; d.Kind != KindSsd || d.Model != "Samsung SSD 870" || d.CapacityBytes != 1953525168*512 {
		t.Errorf("sda = %+v", d)
	}
	if byName["sdb"].Kind != KindHdd {
		t.Errorf("sdb kind = %s", byName["sdb"].Kind)
	}
	if byName["nvme0n1"].Kind != KindNvme {
		t.Errorf("nvme0n1 kind = %s", byName["nvme0n1"].Kind)
	}
	if byName["sr0"].Kind != KindCdDvd {
		t.Errorf("sr0 kind = %s", byName["sr0"].Kind)
	}

	withVirtual := enumerateFrom(sysRoot, true)
	if len(withVirtual) != 6 {
		t.Errorf("enumerated %d drives, want 6 with virtual", len(withVirtual))
	}
	for _, d := range withVirtual {
		if (d.Name == "loop0" || d.Name == "zram0") && d.Kind != KindVirtual {
			t.Errorf("%s kind = %s, want virtual", d.Name, d.Kind)
		}
	}
}

func TestStats(t *testing.T) {
	sysRoot := t.TempDir()
	writeSyntheticFile(t, sysRoot, "block/sda/stat", sampleStat)
	writeSyntheticFile(t, sysRoot, "block/sda/queue/rotational", "0\n")

	drives := enumerateFrom(sysRoot, false)
	if len(drives) != 1 {
		t.Fatalf("enumerated %d drives, want 1", len(drives))
	}

	stats, err := drives[0].Stats()
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	want := Stats{
		ReadOps:        120000,
		SectorsRead:    9600000,
		WriteOps:       45000,
		SectorsWritten: 2400000,
		BusyMs:         61000,
	}
	if stats != want {
		t.Errorf("Stats = %+v, want %+v", stats, want)
	}
}

func TestStats_Malformed(t *testing.T) {
	sysRoot := t.TempDir()
	writeSyntheticFile(t, sysRoot, "block/sda/stat", "1 2 3\n")
	writeSyntheticFile(t, sysRoot, "block/sda/queue/rotational", "0\n")

	drives := enumerateFrom(sysRoot, false)
	if _, err := drives[0].Stats(); err == nil {
		t.Error("short stat line accepted")
	}
}

func TestSpeeds(t *testing.T) {
	previous := Stats{SectorsRead: 1000, SectorsWritten: 500, BusyMs: 100}
	current := Stats{SectorsRead: 3000, SectorsWritten: 500, BusyMs: 600}

	// 2000 sectors over 1s.
	if got := ReadSpeed(previous, current, 1000); got != 2000*SectorSize {
		t.Errorf("ReadSpeed = %v, want %d", got, 2000*SectorSize)
	}
	if got := WriteSpeed(previous, current, 1000); got != 0 {
		t.Errorf("WriteSpeed = %v, want 0", got)
	}
	if got := Busy(previous, current, 1000); got != 0.5 {
		t.Errorf("Busy = %v, want 0.5", got)
	}

	// First sample and backwards counters read 0.
	if got := ReadSpeed(Stats{}, current, 0); got != 0 {
		t.Errorf("zero-interval ReadSpeed = %v, want 0", got)
	}
	if got := ReadSpeed(current, previous, 1000); got != 0 {
		t.Errorf("backwards ReadSpeed = %v, want 0", got)
	}

	// A busy counter can exceed the interval on queued devices; the
	// fraction clamps at 1.
	if got := Busy(Stats{}, Stats{BusyMs: 5000}, 1000); got != 1 {
		t.Errorf("Busy = %v, want clamped 1", got)
	}
}

func TestSataLink(t *testing.T) {
	sysRoot := t.TempDir()

	// A realistic resolved block path embedding the ata number.
	realPath := "devices/pci0000:00/0000:00:17.0/ata2/host1/target1:0:0/1:0:0:0/block/sda"
	writeSyntheticFile(t, sysRoot, filepath.Join(realPath, "stat"), sampleStat)
	writeSyntheticFile(t, sysRoot, "class/ata_link/link2/sata_spd", "6.0 Gbps\n")
	writeSyntheticFile(t, sysRoot, "class/ata_link/link2/sata_spd_max", "6.0 Gbps\n")

	if err := os.MkdirAll(filepath.Join(sysRoot, "block"), 0755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.Symlink(filepath.Join(sysRoot, realPath), filepath.Join(sysRoot, "block", "sda")); err != nil {
		t.Fatalf("symlink: %v", err)
	}

	link := sataLinkFrom(filepath.Join(sysRoot, "block", "sda"))
	if got := link.String(); got != "SATA 3" {
		t.Errorf("link = %q, want %q", got, "SATA 3")
	}
}

func TestSataLink_NotAta(t *testing.T) {
	sysRoot := t.TempDir()
	writeSyntheticFile(t, sysRoot, "block/nvme0n1/stat", sampleStat)

	link := sataLinkFrom(filepath.Join(sysRoot, "block", "nvme0n1"))
	if link.Current.IsOk() {
		t.Error("non-ATA device resolved a SATA link")
	}
	if got := link.String(); got != "N/A" {
		t.Errorf("link = %q, want N/A", got)
	}
}

func TestLink_NvmeResolvesPcieParent(t *testing.T) {
	sysRoot := t.TempDir()

	pciDir := "devices/pci0000:00/0000:01:00.0"
	writeSyntheticFile(t, sysRoot, filepath.Join(pciDir, "current_link_speed"), "16.0 GT/s PCIe\n")
	writeSyntheticFile(t, sysRoot, filepath.Join(pciDir, "current_link_width"), "4\n")
	writeSyntheticFile(t, sysRoot, filepath.Join(pciDir, "max_link_speed"), "16.0 GT/s PCIe\n")
	writeSyntheticFile(t, sysRoot, filepath.Join(pciDir, "max_link_width"), "4\n")

	realPath := filepath.Join(pciDir, "nvme/nvme0/nvme0n1")
	writeSyntheticFile(t, sysRoot, filepath.Join(realPath, "stat"), sampleStat)

	if err := os.MkdirAll(filepath.Join(sysRoot, "block"), 0755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.Symlink(filepath.Join(sysRoot, realPath), filepath.Join(sysRoot, "block", "nvme0n1")); err != nil {
		t.Fatalf("symlink: %v", err)
	}

	drives := enumerateFrom(sysRoot, false)
	if len(drives) != 1 {
		t.Fatalf("enumerated %d drives, want 1", len(drives))
	}
	if got := drives[0].Link().String(); got != "PCIe 4.0 ×4" {
		t.Errorf("link = %q, want %q", got, "PCIe 4.0 ×4")
	}
}

func TestEnumerateLive(t *testing.T) {
	if runtime.GOOS != "linux" {
		t.Skip("requires Linux")
	}
	for _, d := range Enumerate(true) {
		if d.Name == "" {
			t.Error("enumerated drive without a name")
		}
	}
}
