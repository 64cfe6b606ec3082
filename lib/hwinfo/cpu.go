// Copyright 2026 The Resources Authors
// SPDX-License-Identifier: Apache-2.0

package hwinfo

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
)

// TicksPerSecond is the kernel USER_HZ constant that scales the
// jiffy counters in /proc/stat and /proc/pid/stat. It is fixed at 100
// on every supported Linux architecture (the sysconf(_SC_CLK_TCK)
// value userspace sees, independent of the kernel's internal HZ).
const TicksPerSecond = 100

// CPUReading captures cumulative busy and total jiffies for one CPU
// (or the aggregate line) from /proc/stat, for delta computation.
//
//	cpu  user nice system idle iowait irq softirq steal guest guest_nice
//
// busy = user + nice + system + irq + softirq + steal
// total = busy + idle + iowait
//
// guest and guest_nice are already included in user/nice (kernel
// accounting) so they are not added separately.
type CPUReading struct {
	Busy  uint64
	Total uint64
}

// StatSample is one parse of /proc/stat: the aggregate reading plus
// one reading per logical CPU, indexed by CPU number.
type StatSample struct {
	Aggregate CPUReading
	PerCore   []CPUReading
}

// ReadStat parses /proc/stat.
func ReadStat() (StatSample, error) {
	return readStatFrom("/proc/stat")
}

// readStatFrom is the testable version of ReadStat that accepts a
// file path.
func readStatFrom(path string) (StatSample, error) {
	file, err := os.Open(path)
	if err != nil {
		return StatSample{}, err
	}
	defer file.Close()

	var sample StatSample
	sawAggregate := false

	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "cpu") {
			// CPU lines come first; once they stop we are done.
			break
		}
		fields := strings.Fields(line)
		if len(fields) < 9 {
			return StatSample{}, fmt.Errorf("%s: short cpu line %q", path, line)
		}

		values := make([]uint64, len(fields)-1)
		for i := 1; i < len(fields); i++ {
			parsed, err := strconv.ParseUint(fields[i], 10, 64)
			if err != nil {
				return StatSample{}, fmt.Errorf("%s: field %q: %w", path, fields[i], err)
			}
			values[i-1] = parsed
		}

		// Fields (0-indexed after stripping the label):
		//   0=user, 1=nice, 2=system, 3=idle, 4=iowait,
		//   5=irq, 6=softirq, 7=steal
		busy := values[0] + values[1] + values[2] + values[5] + values[6] + values[7]
		reading := CPUReading{Busy: busy, Total: busy + values[3] + values[4]}

		if fields[0] == "cpu" {
			sample.Aggregate = reading
			sawAggregate = true
		} else {
			sample.PerCore = append(sample.PerCore, reading)
		}
	}
	if err := scanner.Err(); err != nil {
		return StatSample{}, err
	}
	if !sawAggregate {
		return StatSample{}, fmt.Errorf("%s: no aggregate cpu line", path)
	}
	return sample, nil
}

// UsageRatio computes the busy fraction between two sequential
// readings of the same CPU. With no prior sample (zero-valued
// previous reading) or no elapsed jiffies it returns exactly 0.
func UsageRatio(previous, current CPUReading) float64 {
	if previous.Total == 0 {
		return 0
	}
	busyDelta := float64(current.Busy) - float64(previous.Busy)
	totalDelta := float64(current.Total) - float64(previous.Total)
	if totalDelta <= 0 {
		return 0
	}
	return FiniteOr(busyDelta/totalDelta, 0)
}

// CPUInfo is the static CPU inventory.
type CPUInfo struct {
	ModelName      string
	Architecture   string
	LogicalCPUs    int
	PhysicalCores  int
	Sockets        int
	ThreadsPerCore int
	L3CacheKB      int
	MaxFrequencyHz Value[uint64]
	Virtualization Value[string]
}

// ProbeCPU collects the static CPU inventory. Missing or unreadable
// topology files produce zero-valued fields rather than failures; the
// fallible sensors (max frequency, virtualization support) carry
// their errors.
func ProbeCPU() CPUInfo {
	return probeCPUFrom("/proc", "/sys")
}

// probeCPUFrom is the testable implementation of ProbeCPU. It accepts
// root paths for /proc and /sys so tests can point at synthetic
// filesystems.
func probeCPUFrom(procRoot, sysRoot string) CPUInfo {
	info := CPUInfo{Architecture: runtime.GOARCH}
	info.ModelName = readCPUModel(filepath.Join(procRoot, "cpuinfo"))
	info.Virtualization = readVirtualization(filepath.Join(procRoot, "cpuinfo"))

	cpuBase := filepath.Join(sysRoot, "devices/system/cpu")
	info.LogicalCPUs = countCPUDirs(cpuBase)
	info.Sockets = countUniqueTopologyValues(cpuBase, "physical_package_id")
	info.PhysicalCores = countUniqueCoreIDs(cpuBase)
	info.ThreadsPerCore = probeThreadsPerCore(cpuBase)
	info.L3CacheKB = readCacheSize(filepath.Join(cpuBase, "cpu0/cache/index3/size"))

	if maxKHz, err := ReadUint64(filepath.Join(cpuBase, "cpu0/cpufreq/cpuinfo_max_freq")); err != nil {
		info.MaxFrequencyHz = Err[uint64](err)
	} else {
		info.MaxFrequencyHz = Ok(maxKHz * 1000)
	}

	return info
}

// readCPUModel extracts the first "model name" line from
// /proc/cpuinfo.
func readCPUModel(path string) string {
	file, err := os.Open(path)
	if err != nil {
		return ""
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := scanner.Text()
		if strings.HasPrefix(line, "model name") {
			parts := strings.SplitN(line, ":", 2)
			if len(parts) == 2 {
				return strings.TrimSpace(parts[1])
			}
		}
	}
	return ""
}

// readVirtualization reports the hardware virtualization flavor from
// the cpuinfo flags line: "VT-x" for Intel vmx, "AMD-V" for svm.
func readVirtualization(path string) Value[string] {
	file, err := os.Open(path)
	if err != nil {
		return Err[string](err)
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "flags") {
			continue
		}
		for _, flag := range strings.Fields(line) {
			switch flag {
			case "vmx":
				return Ok("VT-x")
			case "svm":
				return Ok("AMD-V")
			}
		}
		return Err[string](fmt.Errorf("%s: no virtualization flag", path))
	}
	return Err[string](fmt.Errorf("%s: no flags line", path))
}

// countCPUDirs counts cpuN directories (logical CPUs).
func countCPUDirs(cpuBase string) int {
	entries, err := os.ReadDir(cpuBase)
	if err != nil {
		return 0
	}
	count := 0
	for _, entry := range entries {
		if isNumberedDevice(entry.Name(), "cpu") {
			count++
		}
	}
	return count
}

// countUniqueTopologyValues counts unique values of a topology field
// (e.g., physical_package_id) across all CPU directories.
func countUniqueTopologyValues(cpuBase, field string) int {
	entries, err := os.ReadDir(cpuBase)
	if err != nil {
		return 0
	}

	unique := make(map[string]struct{})
	for _, entry := range entries {
		if !isNumberedDevice(entry.Name(), "cpu") {
			continue
		}
		value, err := ReadString(filepath.Join(cpuBase, entry.Name(), "topology", field))
		if err == nil && value != "" {
			unique[value] = struct{}{}
		}
	}
	return len(unique)
}

// countUniqueCoreIDs counts unique (physical_package_id, core_id)
// pairs across all CPUs. Core IDs repeat across sockets, so the pair
// is the physical core identity.
func countUniqueCoreIDs(cpuBase string) int {
	entries, err := os.ReadDir(cpuBase)
	if err != nil {
		return 0
	}

	type coreKey struct {
		packageID string
		coreID    string
	}
	unique := make(map[coreKey]struct{})

	for _, entry := range entries {
		if !isNumberedDevice(entry.Name(), "cpu") {
			continue
		}
		topologyDir := filepath.Join(cpuBase, entry.Name(), "topology")
		packageID, errPackage := ReadString(filepath.Join(topologyDir, "physical_package_id"))
		coreID, errCore := ReadString(filepath.Join(topologyDir, "core_id"))
		if errPackage == nil && errCore == nil && packageID != "" && coreID != "" {
			unique[coreKey{packageID, coreID}] = struct{}{}
		}
	}
	return len(unique)
}

// probeThreadsPerCore determines threads per core from the first
// CPU's thread_siblings_list. The format is "0,96" meaning CPUs 0 and
// 96 share a core, so 2 threads per core. A value of "0" alone means 1.
func probeThreadsPerCore(cpuBase string) int {
	siblings, err := ReadString(filepath.Join(cpuBase, "cpu0/topology/thread_siblings_list"))
	if err != nil || siblings == "" {
		return 1
	}
	count := strings.Count(siblings, ",") + 1
	if count < 1 {
		return 1
	}
	return count
}

// readCacheSize parses a cache size file (e.g., "32768K") and returns
// the value in kilobytes.
func readCacheSize(path string) int {
	value, err := ReadString(path)
	if err != nil {
		return 0
	}
	value = strings.TrimSuffix(value, "K")
	kilobytes, err := strconv.Atoi(value)
	if err != nil {
		return 0
	}
	return kilobytes
}

// CPUData is one dynamic CPU snapshot. Usage fractions come from
// delta'ing two snapshots' Sample fields with UsageRatio.
type CPUData struct {
	Sample        StatSample
	FrequenciesHz []Value[uint64]
	TemperatureC  Value[float64]
}

// SnapshotCPU reads the dynamic CPU state.
func SnapshotCPU() (CPUData, error) {
	return snapshotCPUFrom("/proc", "/sys")
}

func snapshotCPUFrom(procRoot, sysRoot string) (CPUData, error) {
	sample, err := readStatFrom(filepath.Join(procRoot, "stat"))
	if err != nil {
		return CPUData{}, err
	}

	data := CPUData{Sample: sample}

	cpuBase := filepath.Join(sysRoot, "devices/system/cpu")
	for core := range sample.PerCore {
		freqPath := filepath.Join(cpuBase, fmt.Sprintf("cpu%d", core), "cpufreq/scaling_cur_freq")
		if kHz, err := ReadUint64(freqPath); err != nil {
			data.FrequenciesHz = append(data.FrequenciesHz, Err[uint64](err))
		} else {
			data.FrequenciesHz = append(data.FrequenciesHz, Ok(kHz*1000))
		}
	}

	data.TemperatureC = readCPUTemperature(sysRoot)
	return data, nil
}

// cpuHwmonNames are the hwmon driver names that report package
// temperature on the CPUs we care about.
var cpuHwmonNames = map[string]struct{}{
	"coretemp":    {},
	"k10temp":     {},
	"zenpower":    {},
	"cpu_thermal": {},
}

// readCPUTemperature scans /sys/class/hwmon for a CPU temperature
// driver and returns temp1_input scaled from millidegrees to degrees
// Celsius.
func readCPUTemperature(sysRoot string) Value[float64] {
	hwmonBase := filepath.Join(sysRoot, "class/hwmon")
	entries, err := os.ReadDir(hwmonBase)
	if err != nil {
		return Err[float64](err)
	}

	for _, entry := range entries {
		hwmonDir := filepath.Join(hwmonBase, entry.Name())
		name, err := ReadString(filepath.Join(hwmonDir, "name"))
		if err != nil {
			continue
		}
		if _, ok := cpuHwmonNames[name]; !ok {
			continue
		}
		milli, err := ReadInt64(filepath.Join(hwmonDir, "temp1_input"))
		if err != nil {
			return Err[float64](err)
		}
		return Ok(float64(milli) / 1000)
	}
	return Err[float64](fmt.Errorf("%s: no CPU temperature hwmon", hwmonBase))
}
