// Copyright 2026 The Resources Authors
// SPDX-License-Identifier: Apache-2.0

package hwinfo

import (
	"fmt"
	"path/filepath"
	"runtime"
	"testing"
)

const sampleStat = `cpu  10000 200 3000 50000 500 100 200 0 0 0
cpu0 5000 100 1500 25000 250 50 100 0 0 0
cpu1 5000 100 1500 25000 250 50 100 0 0 0
intr 12345
ctxt 6789
`

func TestReadStat(t *testing.T) {
	root := t.TempDir()
	writeSyntheticFile(t, root, "stat", sampleStat)

	sample, err := readStatFrom(filepath.Join(root, "stat"))
	if err != nil {
		t.Fatalf("readStatFrom: %v", err)
	}

	// busy = 10000+200+3000+100+200+0 = 13500, total = busy+50000+500.
	wantAggregate := CPUReading{Busy: 13500, Total: 64000}
	if sample.Aggregate != wantAggregate {
		t.Errorf("aggregate = %+v, want %+v", sample.Aggregate, wantAggregate)
	}

	if len(sample.PerCore) != 2 {
		t.Fatalf("per-core count = %d, want 2", len(sample.PerCore))
	}
	wantCore := CPUReading{Busy: 6750, Total: 32000}
	for i, core := range sample.PerCore {
		if core != wantCore {
			t.Errorf("core %d = %+v, want %+v", i, core, wantCore)
		}
	}
}

func TestReadStat_Malformed(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"empty", ""},
		{"no aggregate", "intr 1 2 3\n"},
		{"short line", "cpu 1 2 3\n"},
		{"non-numeric", "cpu  a b c d e f g h\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			root := t.TempDir()
			writeSyntheticFile(t, root, "stat", tt.content)
			if _, err := readStatFrom(filepath.Join(root, "stat")); err == nil {
				t.Error("expected error, got nil")
			}
		})
	}
}

func TestUsageRatio(t *testing.T) {
	tests := []struct {
		name     string
		previous CPUReading
		current  CPUReading
		want     float64
	}{
		{
			name:     "half busy",
			previous: CPUReading{Busy: 100, Total: 1000},
			current:  CPUReading{Busy: 150, Total: 1100},
			want:     0.5,
		},
		{
			name:     "fully busy",
			previous: CPUReading{Busy: 100, Total: 1000},
			current:  CPUReading{Busy: 200, Total: 1100},
			want:     1.0,
		},
		{
			name:     "idle",
			previous: CPUReading{Busy: 100, Total: 1000},
			current:  CPUReading{Busy: 100, Total: 1100},
			want:     0,
		},
		{
			name:     "no prior sample",
			previous: CPUReading{},
			current:  CPUReading{Busy: 13500, Total: 64000},
			want:     0,
		},
		{
			name:     "no elapsed jiffies",
			previous: CPUReading{Busy: 100, Total: 1000},
			current:  CPUReading{Busy: 100, Total: 1000},
			want:     0,
		},
		{
			name:     "counter went backwards",
			previous: CPUReading{Busy: 200, Total: 2000},
			current:  CPUReading{Busy: 100, Total: 1000},
			want:     0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := UsageRatio(tt.previous, tt.current)
			if got != tt.want {
				t.Errorf("UsageRatio = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestProbeCPUFromSyntheticFS(t *testing.T) {
	root := t.TempDir()

	writeSyntheticFile(t, root, "proc/cpuinfo",
		"processor\t: 0\nmodel name\t: AMD Ryzen 9 7950X 16-Core Processor\n"+
			"flags\t\t: fpu vme svm sse2\n\n"+
			"processor\t: 1\nmodel name\t: AMD Ryzen 9 7950X 16-Core Processor\n\n")

	// 1 socket, 2 cores, 2 threads per core (4 logical CPUs).
	for i, config := range []struct {
		packageID, coreID, siblings string
	}{
		{"0", "0", "0,2"},
		{"0", "1", "1,3"},
		{"0", "0", "0,2"},
		{"0", "1", "1,3"},
	} {
		cpuDir := fmt.Sprintf("sys/devices/system/cpu/cpu%d/topology", i)
		writeSyntheticFile(t, root, filepath.Join(cpuDir, "physical_package_id"), config.packageID)
		writeSyntheticFile(t, root, filepath.Join(cpuDir, "core_id"), config.coreID)
		writeSyntheticFile(t, root, filepath.Join(cpuDir, "thread_siblings_list"), config.siblings)
	}

	writeSyntheticFile(t, root, "sys/devices/system/cpu/cpu0/cache/index3/size", "32768K")
	writeSyntheticFile(t, root, "sys/devices/system/cpu/cpu0/cpufreq/cpuinfo_max_freq", "5759000")

	info := probeCPUFrom(filepath.Join(root, "proc"), filepath.Join(root, "sys"))

	if info.ModelName != "AMD Ryzen 9 7950X 16-Core Processor" {
		t.Errorf("model = %q", info.ModelName)
	}
	if info.LogicalCPUs != 4 {
		t.Errorf("logical CPUs = %d, want 4", info.LogicalCPUs)
	}
	if info.Sockets != 1 {
		t.Errorf("sockets = %d, want 1", info.Sockets)
	}
	if info.PhysicalCores != 2 {
		t.Errorf("physical cores = %d, want 2", info.PhysicalCores)
	}
	if info.ThreadsPerCore != 2 {
		t.Errorf("threads per core = %d, want 2", info.ThreadsPerCore)
	}
	if info.L3CacheKB != 32768 {
		t.Errorf("L3 cache = %d, want 32768", info.L3CacheKB)
	}
	if maxHz, err := info.MaxFrequencyHz.Get(); err != nil || maxHz != 5759000000 {
		t.Errorf("max frequency = %d, %v, want 5759000000", maxHz, err)
	}
	if virt, err := info.Virtualization.Get(); err != nil || virt != "AMD-V" {
		t.Errorf("virtualization = %q, %v, want AMD-V", virt, err)
	}
}

func TestProbeCPU_EmptyFS(t *testing.T) {
	root := t.TempDir()
	info := probeCPUFrom(filepath.Join(root, "proc"), filepath.Join(root, "sys"))

	if info.ModelName != "" || info.LogicalCPUs != 0 {
		t.Errorf("empty filesystem should produce zero inventory: %+v", info)
	}
	if info.MaxFrequencyHz.IsOk() {
		t.Error("missing cpufreq should be an error, not zero")
	}
}

func TestSnapshotCPUFromSyntheticFS(t *testing.T) {
	root := t.TempDir()
	writeSyntheticFile(t, root, "proc/stat", sampleStat)
	writeSyntheticFile(t, root, "sys/devices/system/cpu/cpu0/cpufreq/scaling_cur_freq", "4500000")
	// cpu1 has no cpufreq directory, its frequency must carry an error.
	writeSyntheticFile(t, root, "sys/class/hwmon/hwmon2/name", "k10temp\n")
	writeSyntheticFile(t, root, "sys/class/hwmon/hwmon2/temp1_input", "65500\n")

	data, err := snapshotCPUFrom(filepath.Join(root, "proc"), filepath.Join(root, "sys"))
	if err != nil {
		t.Fatalf("snapshotCPUFrom: %v", err)
	}

	if len(data.FrequenciesHz) != 2 {
		t.Fatalf("frequency count = %d, want 2", len(data.FrequenciesHz))
	}
	if hz, err := data.FrequenciesHz[0].Get(); err != nil || hz != 4500000000 {
		t.Errorf("cpu0 frequency = %d, %v, want 4500000000", hz, err)
	}
	if data.FrequenciesHz[1].IsOk() {
		t.Error("cpu1 frequency should be an error, not zero")
	}

	if temp, err := data.TemperatureC.Get(); err != nil || temp != 65.5 {
		t.Errorf("temperature = %v, %v, want 65.5", temp, err)
	}
}

func TestSnapshotCPU_NoTemperatureHwmon(t *testing.T) {
	root := t.TempDir()
	writeSyntheticFile(t, root, "proc/stat", sampleStat)
	writeSyntheticFile(t, root, "sys/class/hwmon/hwmon0/name", "nvme\n")

	data, err := snapshotCPUFrom(filepath.Join(root, "proc"), filepath.Join(root, "sys"))
	if err != nil {
		t.Fatalf("snapshotCPUFrom: %v", err)
	}
	if data.TemperatureC.IsOk() {
		t.Error("absent CPU hwmon should be an error, not zero degrees")
	}
}

func TestSnapshotCPULive(t *testing.T) {
	if runtime.GOOS != "linux" {
		t.Skip("requires /proc and /sys")
	}

	data, err := SnapshotCPU()
	if err != nil {
		t.Fatalf("SnapshotCPU: %v", err)
	}
	if data.Sample.Aggregate.Total == 0 {
		t.Error("live aggregate total should be nonzero")
	}
	if len(data.Sample.PerCore) == 0 {
		t.Error("live snapshot should report per-core readings")
	}
}
