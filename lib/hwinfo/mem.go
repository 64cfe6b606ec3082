// Copyright 2026 The Resources Authors
// SPDX-License-Identifier: Apache-2.0

package hwinfo

import (
	"bufio"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"

	"golang.org/x/sys/unix"
)

// MemData is one memory snapshot from /proc/meminfo. All values are
// bytes, converted from the kernel's kB lines with the decimal factor
// the rest of the pipeline uses (1 kB = 1000 bytes).
type MemData struct {
	TotalMem     uint64
	AvailableMem uint64
	FreeMem      uint64
	TotalSwap    uint64
	FreeSwap     uint64
}

// UsedMem returns total minus available memory.
func (m MemData) UsedMem() uint64 {
	if m.AvailableMem > m.TotalMem {
		return 0
	}
	return m.TotalMem - m.AvailableMem
}

// UsedSwap returns total minus free swap.
func (m MemData) UsedSwap() uint64 {
	if m.FreeSwap > m.TotalSwap {
		return 0
	}
	return m.TotalSwap - m.FreeSwap
}

// SnapshotMem reads /proc/meminfo.
func SnapshotMem() (MemData, error) {
	return snapshotMemFrom("/proc/meminfo")
}

func snapshotMemFrom(path string) (MemData, error) {
	file, err := os.Open(path)
	if err != nil {
		return MemData{}, err
	}
	defer file.Close()

	fields := map[string]*uint64{}
	var data MemData
	fields["MemTotal"] = &data.TotalMem
	fields["MemAvailable"] = &data.AvailableMem
	fields["MemFree"] = &data.FreeMem
	fields["SwapTotal"] = &data.TotalSwap
	fields["SwapFree"] = &data.FreeSwap

	sawTotal := false
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := scanner.Text()
		name, rest, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		target, wanted := fields[name]
		if !wanted {
			continue
		}
		value := strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(rest), "kB"))
		kilobytes, err := strconv.ParseUint(strings.TrimSpace(value), 10, 64)
		if err != nil {
			return MemData{}, fmt.Errorf("%s: %s line %q: %w", path, name, line, err)
		}
		*target = kilobytes * 1000
		if name == "MemTotal" {
			sawTotal = true
		}
	}
	if err := scanner.Err(); err != nil {
		return MemData{}, err
	}
	if !sawTotal {
		return MemData{}, fmt.Errorf("%s: no MemTotal line", path)
	}
	return data, nil
}

// SysinfoMem cross-checks total memory and swap via sysinfo(2),
// returning bytes.
func SysinfoMem() (totalMem, totalSwap uint64, err error) {
	var info unix.Sysinfo_t
	if err := unix.Sysinfo(&info); err != nil {
		return 0, 0, err
	}
	unitSize := uint64(info.Unit)
	return uint64(info.Totalram) * unitSize, uint64(info.Totalswap) * unitSize, nil
}

// MemoryDevice describes one populated DIMM slot as reported by
// dmidecode --type 17.
type MemoryDevice struct {
	SizeBytes  uint64
	FormFactor string
	Type       string
	SpeedMTs   uint64
	Installed  bool
}

// ProbeMemoryDevices runs dmidecode to inventory DIMM slots.
// dmidecode needs CAP_SYS_ADMIN or root; without it the error is
// surfaced, not hidden behind an empty result.
func ProbeMemoryDevices() ([]MemoryDevice, error) {
	output, err := exec.Command("dmidecode", "--type", "17", "--quiet").Output()
	if err != nil {
		return nil, fmt.Errorf("running dmidecode: %w", err)
	}
	return parseMemoryDevices(string(output)), nil
}

// parseMemoryDevices parses dmidecode --type 17 output. Each "Memory
// Device" block describes one slot; "Size: No Module Installed" marks
// an empty slot.
func parseMemoryDevices(output string) []MemoryDevice {
	var devices []MemoryDevice
	var current *MemoryDevice

	scanner := bufio.NewScanner(strings.NewReader(output))
	for scanner.Scan() {
		line := scanner.Text()

		if strings.HasPrefix(line, "Memory Device") {
			devices = append(devices, MemoryDevice{})
			current = &devices[len(devices)-1]
			continue
		}
		if current == nil {
			continue
		}

		key, value, ok := strings.Cut(strings.TrimSpace(line), ":")
		if !ok {
			continue
		}
		value = strings.TrimSpace(value)

		switch key {
		case "Size":
			if size, ok := parseDmiSize(value); ok {
				current.SizeBytes = size
				current.Installed = true
			}
		case "Form Factor":
			current.FormFactor = value
		case "Type":
			current.Type = value
		case "Speed":
			if mts, ok := parseDmiSpeed(value); ok {
				current.SpeedMTs = mts
			}
		}
	}
	return devices
}

// parseDmiSize parses "16 GB" or "512 MB". "No Module Installed" and
// "Unknown" report false.
func parseDmiSize(value string) (uint64, bool) {
	amount, unit, ok := strings.Cut(value, " ")
	if !ok {
		return 0, false
	}
	n, err := strconv.ParseUint(amount, 10, 64)
	if err != nil {
		return 0, false
	}
	switch unit {
	case "MB":
		return n * 1000 * 1000, true
	case "GB":
		return n * 1000 * 1000 * 1000, true
	case "TB":
		return n * 1000 * 1000 * 1000 * 1000, true
	}
	return 0, false
}

// parseDmiSpeed parses "3200 MT/s". "Unknown" reports false.
func parseDmiSpeed(value string) (uint64, bool) {
	amount, _, ok := strings.Cut(value, " ")
	if !ok {
		return 0, false
	}
	n, err := strconv.ParseUint(amount, 10, 64)
	if err != nil {
		return 0, false
	}
	return n, true
}
