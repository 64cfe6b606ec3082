// Copyright 2026 The Resources Authors
// SPDX-License-Identifier: Apache-2.0

// Package drive enumerates block devices from /sys/block and samples
// their cumulative I/O counters. Counters are raw; callers delta two
// samples for rates, the same scheme the process layer uses.
package drive

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/nokyan/resources-sub000/lib/hwinfo"
)

// SectorSize is the unit of the sectors fields in a block device's
// stat file. The kernel reports sectors in 512-byte units regardless
// of the device's physical sector size.
const SectorSize = 512

// Kind classifies a block device for display purposes.
type Kind string

const (
	KindHdd     Kind = "hdd"
	KindSsd     Kind = "ssd"
	KindNvme    Kind = "nvme"
	KindCdDvd   Kind = "cd-dvd"
	KindFlash   Kind = "flash"
	KindVirtual Kind = "virtual"
	KindUnknown Kind = "unknown"
)

// Drive is one enumerated block device.
type Drive struct {
	Name      string
	Model     string
	Kind      Kind
	Removable bool

	// CapacityBytes is the device size. Zero-sized devices (empty
	// card readers) enumerate with capacity 0.
	CapacityBytes uint64

	sysPath string
}

// virtualPrefixes are device names backed by memory or mappings, not
// hardware.
var virtualPrefixes = []string{"loop", "ram", "zram", "dm-", "md"}

// Enumerate lists block devices. Virtual devices (loopbacks, device
// mapper targets) are excluded unless includeVirtual is set.
func Enumerate(includeVirtual bool) []Drive {
	return enumerateFrom("/sys", includeVirtual)
}

func enumerateFrom(sysRoot string, includeVirtual bool) []Drive {
	blockBase := filepath.Join(sysRoot, "block")
	entries, err := os.ReadDir(blockBase)
	if err != nil {
		return nil
	}

	var drives []Drive
	for _, entry := range entries {
		name := entry.Name()
		virtual := isVirtual(name)
		if virtual && !includeVirtual {
			continue
		}

		sysPath := filepath.Join(blockBase, name)
		drive := Drive{
			Name:    name,
			Kind:    classify(sysPath, name, virtual),
			sysPath: sysPath,
		}
		if model, err := hwinfo.ReadString(filepath.Join(sysPath, "device", "model")); err == nil {
			drive.Model = model
		}
		if removable, err := hwinfo.ReadUint64(filepath.Join(sysPath, "removable")); err == nil {
			drive.Removable = removable != 0
		}
		if sectors, err := hwinfo.ReadUint64(filepath.Join(sysPath, "size")); err == nil {
			drive.CapacityBytes = sectors * SectorSize
		}
		drives = append(drives, drive)
	}
	return drives
}

func isVirtual(name string) bool {
	for _, prefix := range virtualPrefixes {
		if strings.HasPrefix(name, prefix) {
			return true
		}
	}
	return false
}

func classify(sysPath, name string, virtual bool) Kind {
	switch {
	case virtual:
		return KindVirtual
	case strings.HasPrefix(name, "nvme"):
		return KindNvme
	case strings.HasPrefix(name, "sr") || strings.HasPrefix(name, "scd"):
		return KindCdDvd
	case strings.HasPrefix(name, "mmcblk"):
		return KindFlash
	}
	rotational, err := hwinfo.ReadUint64(filepath.Join(sysPath, "queue", "rotational"))
	if err != nil {
		return KindUnknown
	}
	if rotational != 0 {
		return KindHdd
	}
	return KindSsd
}

// Stats is one sample of a device's cumulative I/O counters.
type Stats struct {
	ReadOps        uint64
	SectorsRead    uint64
	WriteOps       uint64
	SectorsWritten uint64

	// BusyMs counts milliseconds the device had I/O in flight.
	BusyMs uint64
}

// Stats reads the device's stat file. Field positions follow the
// kernel's block stat format: reads completed, sectors read, writes
// completed, sectors written, io_ticks.
func (d *Drive) Stats() (Stats, error) {
	raw, err := hwinfo.ReadString(filepath.Join(d.sysPath, "stat"))
	if err != nil {
		return Stats{}, err
	}
	fields := strings.Fields(raw)
	if len(fields) < 10 {
		return Stats{}, fmt.Errorf("%s: short stat line (%d fields)", d.Name, len(fields))
	}

	parse := func(index int) (uint64, error) {
		value, err := strconv.ParseUint(fields[index], 10, 64)
		if err != nil {
			return 0, fmt.Errorf("%s: stat field %d: %w", d.Name, index, err)
		}
		return value, nil
	}

	var stats Stats
	if stats.ReadOps, err = parse(0); err != nil {
		return Stats{}, err
	}
	if stats.SectorsRead, err = parse(2); err != nil {
		return Stats{}, err
	}
	if stats.WriteOps, err = parse(4); err != nil {
		return Stats{}, err
	}
	if stats.SectorsWritten, err = parse(6); err != nil {
		return Stats{}, err
	}
	if stats.BusyMs, err = parse(9); err != nil {
		return Stats{}, err
	}
	return stats, nil
}

// ReadSpeed converts two samples into a read rate in bytes per
// second. A first sample (zero elapsed time) reads 0.
func ReadSpeed(previous, current Stats, elapsedMs uint64) float64 {
	return sectorRate(current.SectorsRead, previous.SectorsRead, elapsedMs)
}

// WriteSpeed converts two samples into a write rate in bytes per
// second.
func WriteSpeed(previous, current Stats, elapsedMs uint64) float64 {
	return sectorRate(current.SectorsWritten, previous.SectorsWritten, elapsedMs)
}

// Busy converts two samples into the fraction of the interval the
// device spent with I/O in flight.
func Busy(previous, current Stats, elapsedMs uint64) float64 {
	if elapsedMs == 0 || current.BusyMs < previous.BusyMs {
		return 0
	}
	return hwinfo.FiniteOr(min(float64(current.BusyMs-previous.BusyMs)/float64(elapsedMs), 1), 0)
}

func sectorRate(current, previous, elapsedMs uint64) float64 {
	if elapsedMs == 0 || current < previous {
		return 0
	}
	return hwinfo.FiniteOr(float64((current-previous)*SectorSize)/float64(elapsedMs)*1000, 0)
}

// Link resolves the drive's interconnect: the ATA link for SATA
// drives, otherwise the PCIe link of the controller (NVMe) or the USB
// device the drive hangs off, found by walking the resolved device
// path toward the bus.
func (d *Drive) Link() hwinfo.Link {
	if sata := d.SataLink(); sata.Current.IsOk() {
		return sata
	}

	resolved, err := filepath.EvalSymlinks(d.sysPath)
	if err != nil {
		return hwinfo.Unknown{}
	}
	for dir := filepath.Dir(resolved); strings.Contains(dir, "/devices/"); dir = filepath.Dir(dir) {
		if pcie := hwinfo.ReadPcieLink(dir); pcie.Current.IsOk() {
			return pcie
		}
		if usb := hwinfo.ReadUsbLink(dir); usb.Current.IsOk() {
			return usb
		}
	}
	return hwinfo.Unknown{}
}

var ataLinkPattern = regexp.MustCompile(`ata(\d+)`)

// SataLink resolves a SATA drive's negotiated and maximum link speed
// through its ATA link directory. The drive's resolved sysfs path
// embeds the ata number that names the link.
func (d *Drive) SataLink() hwinfo.Sata {
	return sataLinkFrom(d.sysPath)
}

func sataLinkFrom(sysPath string) hwinfo.Sata {
	resolved, err := filepath.EvalSymlinks(sysPath)
	if err != nil {
		return hwinfo.Sata{LinkData: hwinfo.LinkData[hwinfo.SataSpeed]{
			Current: hwinfo.Err[hwinfo.SataSpeed](err),
			Max:     hwinfo.Err[hwinfo.SataSpeed](err),
		}}
	}
	match := ataLinkPattern.FindStringSubmatch(resolved)
	rootEnd := strings.Index(resolved, "/devices/")
	if match == nil || rootEnd < 0 {
		err := fmt.Errorf("%s: not an ATA device", sysPath)
		return hwinfo.Sata{LinkData: hwinfo.LinkData[hwinfo.SataSpeed]{
			Current: hwinfo.Err[hwinfo.SataSpeed](err),
			Max:     hwinfo.Err[hwinfo.SataSpeed](err),
		}}
	}

	// The link directory lives beside the device under the same
	// sysfs root: class/ata_link/linkN.
	linkDir := filepath.Join(resolved[:rootEnd], "class", "ata_link", "link"+match[1])
	return hwinfo.ReadSataLink(linkDir)
}
