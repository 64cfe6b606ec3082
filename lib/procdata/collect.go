// Copyright 2026 The Resources Authors
// SPDX-License-Identifier: Apache-2.0

package procdata

import (
	"fmt"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/nokyan/resources-sub000/lib/pci"
)

// Collector reads process samples from /proc. It is stateless: every
// Collect walks the full process list and returns raw counters.
type Collector struct {
	procRoot string
}

// NewCollector returns a Collector reading from /proc.
func NewCollector() *Collector {
	return newCollectorFrom("/proc")
}

// newCollectorFrom is the testable constructor that accepts a proc
// root path.
func newCollectorFrom(procRoot string) *Collector {
	return &Collector{procRoot: procRoot}
}

// Collect samples every process visible under the proc root.
// Processes that vanish mid-walk or whose stat file cannot be parsed
// are skipped; only a missing proc root is an error.
func (c *Collector) Collect(timestampMs uint64) ([]ProcessData, error) {
	entries, err := os.ReadDir(c.procRoot)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", c.procRoot, err)
	}

	var processes []ProcessData
	for _, entry := range entries {
		pid, err := strconv.ParseInt(entry.Name(), 10, 32)
		if err != nil {
			continue
		}
		process, err := c.collectOne(int32(pid), timestampMs)
		if err != nil {
			// Raced with process exit, or a malformed entry.
			continue
		}
		processes = append(processes, process)
	}
	return processes, nil
}

var (
	uidPattern        = regexp.MustCompile(`(?m)^Uid:\s*(\d+)`)
	vmRSSPattern      = regexp.MustCompile(`(?m)^VmRSS:\s*(\d+)\s*kB`)
	vmSwapPattern     = regexp.MustCompile(`(?m)^VmSwap:\s*(\d+)\s*kB`)
	affinityPattern   = regexp.MustCompile(`(?m)^Cpus_allowed:\s*([0-9a-fA-F,]+)`)
	readBytesPattern  = regexp.MustCompile(`(?m)^read_bytes:\s*(\d+)`)
	writeBytesPattern = regexp.MustCompile(`(?m)^write_bytes:\s*(\d+)`)
)

func (c *Collector) collectOne(pid int32, timestampMs uint64) (ProcessData, error) {
	pidRoot := filepath.Join(c.procRoot, strconv.Itoa(int(pid)))

	statData, err := os.ReadFile(filepath.Join(pidRoot, "stat"))
	if err != nil {
		return ProcessData{}, err
	}
	statusData, err := os.ReadFile(filepath.Join(pidRoot, "status"))
	if err != nil {
		return ProcessData{}, err
	}

	process := ProcessData{
		Pid:              pid,
		TimestampMs:      timestampMs,
		Containerization: ContainerizationNone,
	}

	if err := parseStat(string(statData), &process); err != nil {
		return ProcessData{}, err
	}
	if err := parseStatus(string(statusData), &process); err != nil {
		return ProcessData{}, err
	}

	if cmdline, err := os.ReadFile(filepath.Join(pidRoot, "cmdline")); err == nil {
		process.Commandline = strings.TrimRight(string(cmdline), "\x00")
	}

	rawCgroup := readCgroup(filepath.Join(pidRoot, "cgroup"))
	process.Cgroup = sanitizeCgroup(rawCgroup)

	// /proc/pid/io needs the same uid or privileges; absence is a
	// nil counter, not zero bytes.
	if ioData, err := os.ReadFile(filepath.Join(pidRoot, "io")); err == nil {
		if m := readBytesPattern.FindSubmatch(ioData); m != nil {
			if v, err := strconv.ParseUint(string(m[1]), 10, 64); err == nil {
				process.ReadBytes = &v
			}
		}
		if m := writeBytesPattern.FindSubmatch(ioData); m != nil {
			if v, err := strconv.ParseUint(string(m[1]), 10, 64); err == nil {
				process.WriteBytes = &v
			}
		}
	}

	process.Containerization = detectContainerization(pidRoot, rawCgroup)
	process.GpuUsage, process.NpuUsage = collectFdinfo(pidRoot)

	return process, nil
}

// parseStat extracts the fields following the comm. The comm itself
// may contain spaces and parentheses, so the split happens after the
// last ')'.
//
// Field numbering (0-based, whole line): state=2, ppid=3, utime=13,
// stime=14, nice=18, starttime=21. After cutting at the last ')'
// those become indices 0, 1, 11, 12, 16, 19.
func parseStat(stat string, process *ProcessData) error {
	openParen := strings.IndexByte(stat, '(')
	closeParen := strings.LastIndexByte(stat, ')')
	if openParen < 0 || closeParen < 0 || closeParen < openParen {
		return fmt.Errorf("pid %d: malformed stat line", process.Pid)
	}
	process.Comm = stat[openParen+1 : closeParen]

	fields := strings.Fields(stat[closeParen+1:])
	if len(fields) < 20 {
		return fmt.Errorf("pid %d: short stat line (%d fields)", process.Pid, len(fields))
	}

	parent, err := strconv.ParseInt(fields[1], 10, 32)
	if err != nil {
		return fmt.Errorf("pid %d: ppid: %w", process.Pid, err)
	}
	process.ParentPid = int32(parent)

	utime, err := strconv.ParseUint(fields[11], 10, 64)
	if err != nil {
		return fmt.Errorf("pid %d: utime: %w", process.Pid, err)
	}
	process.UserCPUTime = utime

	stime, err := strconv.ParseUint(fields[12], 10, 64)
	if err != nil {
		return fmt.Errorf("pid %d: stime: %w", process.Pid, err)
	}
	process.SystemCPUTime = stime

	nice, err := strconv.ParseInt(fields[16], 10, 32)
	if err != nil {
		return fmt.Errorf("pid %d: nice: %w", process.Pid, err)
	}
	process.Niceness = int32(nice)

	starttime, err := strconv.ParseUint(fields[19], 10, 64)
	if err != nil {
		return fmt.Errorf("pid %d: starttime: %w", process.Pid, err)
	}
	process.StartTime = starttime

	return nil
}

// parseStatus extracts uid, memory, swap, and the CPU affinity mask.
// VmRSS and VmSwap are absent for kernel threads; they read as 0.
func parseStatus(status string, process *ProcessData) error {
	m := uidPattern.FindStringSubmatch(status)
	if m == nil {
		return fmt.Errorf("pid %d: no Uid line", process.Pid)
	}
	uid, err := strconv.ParseUint(m[1], 10, 32)
	if err != nil {
		return fmt.Errorf("pid %d: uid: %w", process.Pid, err)
	}
	process.Uid = uint32(uid)

	if m := vmRSSPattern.FindStringSubmatch(status); m != nil {
		if kb, err := strconv.ParseUint(m[1], 10, 64); err == nil {
			process.Memory = kb * 1000
		}
	}
	if m := vmSwapPattern.FindStringSubmatch(status); m != nil {
		if kb, err := strconv.ParseUint(m[1], 10, 64); err == nil {
			process.Swap = kb * 1000
		}
	}

	if m := affinityPattern.FindStringSubmatch(status); m != nil {
		process.Affinity = parseAffinityMask(m[1])
	}

	return nil
}

// parseAffinityMask expands a Cpus_allowed hex mask ("ff" or
// "ffffffff,00000001" for >32 CPUs) into a per-CPU bool slice indexed
// by CPU number. Comma groups are 32 bits each, most significant
// group first.
func parseAffinityMask(mask string) []bool {
	groups := strings.Split(mask, ",")
	affinity := make([]bool, 0, len(groups)*32)

	// Walk groups from least significant (last) to most significant.
	for i := len(groups) - 1; i >= 0; i-- {
		bits, err := strconv.ParseUint(groups[i], 16, 64)
		if err != nil {
			return nil
		}
		for bit := 0; bit < 32; bit++ {
			affinity = append(affinity, bits&(1<<bit) != 0)
		}
	}

	// Trim the unpopulated high end so a "ff" mask on an 8-CPU
	// machine reports 8 entries, not 32.
	last := len(affinity) - 1
	for last > 0 && !affinity[last] {
		last--
	}
	return affinity[:last+1]
}

// readCgroup returns the cgroup v2 path (the "0::" line) from a
// /proc/pid/cgroup file, or "".
func readCgroup(path string) string {
	data, err := os.ReadFile(path)
	if err != nil {
		return ""
	}
	for _, line := range strings.Split(string(data), "\n") {
		if rest, ok := strings.CutPrefix(line, "0::"); ok {
			return rest
		}
	}
	return ""
}

var (
	cgroupHexEscape = regexp.MustCompile(`\\x([0-9a-fA-F]{2})`)
	allDigits       = regexp.MustCompile(`^\d+$`)
)

// cgroupLauncherTokens are scope-name prefixes added by desktop
// launchers, not part of the application identity.
var cgroupLauncherTokens = map[string]struct{}{
	"app":     {},
	"gnome":   {},
	"flatpak": {},
	"snap":    {},
	"dbus":    {},
}

// sanitizeCgroup extracts the application identity from a systemd
// scope path. Scope names follow
// app[-<launcher>]-<AppID>-<RANDOM>.scope; the launcher prefixes and
// the random suffix are stripped, and systemd's \xNN escapes are
// decoded. Non-scope cgroups (session slices, kernel threads) carry
// no identity and return nil.
func sanitizeCgroup(raw string) *string {
	if raw == "" {
		return nil
	}

	name := path.Base(raw)
	if !strings.HasSuffix(name, ".scope") {
		return nil
	}
	name = strings.TrimSuffix(name, ".scope")

	// Split before decoding escapes: systemd writes literal dashes in
	// unit names as \x2d, so escaped dashes must not act as token
	// separators.
	tokens := strings.Split(name, "-")

	for len(tokens) > 0 {
		if _, launcher := cgroupLauncherTokens[tokens[0]]; !launcher {
			break
		}
		tokens = tokens[1:]
	}
	for len(tokens) > 0 && allDigits.MatchString(tokens[len(tokens)-1]) {
		tokens = tokens[:len(tokens)-1]
	}

	if len(tokens) == 0 {
		return nil
	}
	identity := strings.Join(tokens, "-")
	identity = cgroupHexEscape.ReplaceAllStringFunc(identity, func(escape string) string {
		value, err := strconv.ParseUint(escape[2:], 16, 8)
		if err != nil {
			return escape
		}
		return string(rune(value))
	})
	return &identity
}

// detectContainerization classifies the packaging of a process.
// Flatpak leaves a .flatpak-info file in the mount namespace root,
// snap names its cgroups, and AppImage exports an APPIMAGE
// environment variable.
func detectContainerization(pidRoot, rawCgroup string) Containerization {
	if _, err := os.Stat(filepath.Join(pidRoot, "root", ".flatpak-info")); err == nil {
		return ContainerizationFlatpak
	}
	if strings.Contains(rawCgroup, "snap.") {
		return ContainerizationSnap
	}
	if environ, err := os.ReadFile(filepath.Join(pidRoot, "environ")); err == nil {
		for _, entry := range strings.Split(string(environ), "\x00") {
			if strings.HasPrefix(entry, "APPIMAGE=") {
				return ContainerizationAppImage
			}
		}
	}
	return ContainerizationNone
}

// collectFdinfo walks /proc/pid/fdinfo and aggregates DRM usage per
// device. Counters from multiple fds on the same device merge by
// fieldwise max, and fds sharing a drm-client-id are counted once.
func collectFdinfo(pidRoot string) (map[pci.Slot]GpuUsage, map[pci.Slot]NpuUsage) {
	entries, err := os.ReadDir(filepath.Join(pidRoot, "fdinfo"))
	if err != nil {
		return nil, nil
	}

	type clientKey struct {
		slot   pci.Slot
		client string
	}
	seen := make(map[clientKey]struct{})

	var gpus map[pci.Slot]GpuUsage
	var npus map[pci.Slot]NpuUsage

	for _, entry := range entries {
		data, err := os.ReadFile(filepath.Join(pidRoot, "fdinfo", entry.Name()))
		if err != nil {
			continue
		}
		fields := parseFdinfo(string(data))

		pdev, ok := fields["drm-pdev"]
		if !ok {
			continue
		}
		slot, err := pci.Parse(pdev)
		if err != nil {
			continue
		}

		if client, ok := fields["drm-client-id"]; ok {
			key := clientKey{slot: slot, client: client}
			if _, duplicate := seen[key]; duplicate {
				continue
			}
			seen[key] = struct{}{}
		}

		switch fields["drm-driver"] {
		case "amdxdna_accel_driver", "amdxdna":
			usage := NpuUsage{
				BusyNs: parseNsValue(fields["drm-engine-npu"]),
				Mem:    parseKiBValue(fields["drm-total-memory"]),
			}
			if npus == nil {
				npus = make(map[pci.Slot]NpuUsage)
			}
			npus[slot] = npus[slot].Greater(usage)
		default:
			usage, ok := gpuUsageFromFdinfo(fields)
			if !ok {
				continue
			}
			if gpus == nil {
				gpus = make(map[pci.Slot]GpuUsage)
			}
			gpus[slot] = gpus[slot].Greater(usage)
		}
	}
	return gpus, npus
}

// gpuUsageFromFdinfo builds a GpuUsage from the driver-specific
// fdinfo counter names.
func gpuUsageFromFdinfo(fields map[string]string) (GpuUsage, bool) {
	switch fields["drm-driver"] {
	case "amdgpu":
		return GpuUsage{
			Kind:  GpuUsageAmdgpu,
			GfxNs: parseNsValue(fields["drm-engine-gfx"]),
			EncNs: parseNsValue(fields["drm-engine-enc"]),
			DecNs: parseNsValue(fields["drm-engine-dec"]),
			Mem:   parseKiBValue(fields["drm-memory-vram"]),
		}, true
	case "i915":
		return GpuUsage{
			Kind:    GpuUsageI915,
			GfxNs:   parseNsValue(fields["drm-engine-render"]),
			VideoNs: parseNsValue(fields["drm-engine-video"]),
			Mem:     parseKiBValue(fields["drm-memory-local"]),
		}, true
	case "xe":
		return GpuUsage{
			Kind:        GpuUsageXe,
			Cycles:      parseNumeric(fields["drm-cycles-rcs"]),
			TotalCycles: parseNumeric(fields["drm-total-cycles-rcs"]),
			Mem:         parseKiBValue(fields["drm-total-vram0"]),
		}, true
	case "v3d":
		return GpuUsage{
			Kind:  GpuUsageV3d,
			GfxNs: parseNsValue(fields["drm-engine-render"]),
		}, true
	}
	return GpuUsage{}, false
}

// parseFdinfo splits "key:\tvalue" lines into a map.
func parseFdinfo(data string) map[string]string {
	fields := make(map[string]string)
	for _, line := range strings.Split(data, "\n") {
		key, value, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		fields[strings.TrimSpace(key)] = strings.TrimSpace(value)
	}
	return fields
}

// parseNsValue parses an engine counter like "12345678 ns".
func parseNsValue(value string) uint64 {
	amount, _, _ := strings.Cut(value, " ")
	n, err := strconv.ParseUint(amount, 10, 64)
	if err != nil {
		return 0
	}
	return n
}

// parseKiBValue parses a memory counter like "524288 KiB" to bytes.
func parseKiBValue(value string) uint64 {
	amount, unit, ok := strings.Cut(value, " ")
	if !ok {
		return 0
	}
	n, err := strconv.ParseUint(amount, 10, 64)
	if err != nil {
		return 0
	}
	switch unit {
	case "KiB":
		return n * 1024
	case "MiB":
		return n * 1024 * 1024
	}
	return n
}

// parseNumeric parses a bare cumulative counter.
func parseNumeric(value string) uint64 {
	n, err := strconv.ParseUint(value, 10, 64)
	if err != nil {
		return 0
	}
	return n
}
