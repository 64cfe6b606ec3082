// Copyright 2026 The Resources Authors
// SPDX-License-Identifier: Apache-2.0

// Package net enumerates network interfaces from /sys/class/net and
// samples their cumulative byte and packet counters. Wireless
// interfaces additionally resolve their link details (generation,
// bitrates) over nl80211.
package net

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/nokyan/resources-sub000/lib/hwinfo"
)

// Kind classifies a network interface.
type Kind string

const (
	KindEthernet  Kind = "ethernet"
	KindWlan      Kind = "wlan"
	KindBridge    Kind = "bridge"
	KindBond      Kind = "bond"
	KindVlan      Kind = "vlan"
	KindTun       Kind = "tun"
	KindVeth      Kind = "veth"
	KindDocker    Kind = "docker"
	KindLoopback  Kind = "loopback"
	KindWireguard Kind = "wireguard"
	KindOther     Kind = "other"
)

// Interface is one enumerated network interface.
type Interface struct {
	Name            string
	Kind            Kind
	HardwareAddress string

	// Driver is the kernel driver of the underlying device, empty
	// for purely virtual interfaces.
	Driver string

	sysPath string
}

// Enumerate lists the interfaces under /sys/class/net.
func Enumerate() []Interface {
	return enumerateFrom("/sys")
}

func enumerateFrom(sysRoot string) []Interface {
	netBase := filepath.Join(sysRoot, "class", "net")
	entries, err := os.ReadDir(netBase)
	if err != nil {
		return nil
	}

	var interfaces []Interface
	for _, entry := range entries {
		name := entry.Name()
		sysPath := filepath.Join(netBase, name)
		iface := Interface{
			Name:    name,
			Kind:    classify(sysPath, name),
			sysPath: sysPath,
		}
		if address, err := hwinfo.ReadString(filepath.Join(sysPath, "address")); err == nil {
			iface.HardwareAddress = address
		}
		if driver, err := hwinfo.DriverName(filepath.Join(sysPath, "device")); err == nil {
			iface.Driver = driver
		}
		interfaces = append(interfaces, iface)
	}
	return interfaces
}

// classify resolves the interface type: the uevent DEVTYPE where the
// kernel provides one, otherwise structural markers (wireless
// directory, tun flags) and name conventions.
func classify(sysPath, name string) Kind {
	if name == "lo" {
		return KindLoopback
	}
	if uevent, err := hwinfo.ReadUevent(sysPath); err == nil {
		switch uevent["DEVTYPE"] {
		case "wlan":
			return KindWlan
		case "bridge":
			return KindBridge
		case "bond":
			return KindBond
		case "vlan":
			return KindVlan
		case "wireguard":
			return KindWireguard
		}
	}
	if _, err := os.Stat(filepath.Join(sysPath, "wireless")); err == nil {
		return KindWlan
	}
	if _, err := os.Stat(filepath.Join(sysPath, "tun_flags")); err == nil {
		return KindTun
	}
	switch {
	case strings.HasPrefix(name, "veth"):
		return KindVeth
	case strings.HasPrefix(name, "docker"):
		return KindDocker
	case strings.HasPrefix(name, "wg"):
		return KindWireguard
	}
	if _, err := os.Stat(filepath.Join(sysPath, "device")); err == nil {
		return KindEthernet
	}
	return KindOther
}

// Stats is one sample of an interface's cumulative traffic counters.
type Stats struct {
	RxBytes   uint64
	TxBytes   uint64
	RxPackets uint64
	TxPackets uint64
}

// Stats reads the statistics directory. All four counters must be
// present; an interface without statistics is not sampleable.
func (i *Interface) Stats() (Stats, error) {
	statsDir := filepath.Join(i.sysPath, "statistics")
	var stats Stats
	var err error
	if stats.RxBytes, err = hwinfo.ReadUint64(filepath.Join(statsDir, "rx_bytes")); err != nil {
		return Stats{}, err
	}
	if stats.TxBytes, err = hwinfo.ReadUint64(filepath.Join(statsDir, "tx_bytes")); err != nil {
		return Stats{}, err
	}
	if stats.RxPackets, err = hwinfo.ReadUint64(filepath.Join(statsDir, "rx_packets")); err != nil {
		return Stats{}, err
	}
	if stats.TxPackets, err = hwinfo.ReadUint64(filepath.Join(statsDir, "tx_packets")); err != nil {
		return Stats{}, err
	}
	return stats, nil
}

// MTU reads the interface's maximum transmission unit.
func (i *Interface) MTU() (uint64, error) {
	return hwinfo.ReadUint64(filepath.Join(i.sysPath, "mtu"))
}

// SpeedBitsPerSecond reads the negotiated link speed. The sysfs value
// is in Mbit/s; -1 (link down or speed unknown) is an error.
func (i *Interface) SpeedBitsPerSecond() (uint64, error) {
	megabits, err := hwinfo.ReadInt64(filepath.Join(i.sysPath, "speed"))
	if err != nil {
		return 0, err
	}
	if megabits < 0 {
		return 0, fmt.Errorf("%s: link speed unknown", i.Name)
	}
	return uint64(megabits) * 1_000_000, nil
}

// Link resolves the interconnect of the interface: nl80211 details
// for wireless interfaces, the PCIe or USB link of the underlying
// device otherwise.
func (i *Interface) Link() hwinfo.Link {
	if i.Kind == KindWlan {
		if wifi, err := StationLink(i.Name); err == nil {
			return wifi
		}
		return hwinfo.Unknown{}
	}

	devicePath := filepath.Join(i.sysPath, "device")
	if pcie := hwinfo.ReadPcieLink(devicePath); pcie.Current.IsOk() {
		return pcie
	}
	// USB NICs hang one level further up, off their USB device.
	if usb := hwinfo.ReadUsbLink(filepath.Join(devicePath, "..")); usb.Current.IsOk() {
		return usb
	}
	return hwinfo.Unknown{}
}

// RxSpeed converts two samples into a receive rate in bytes per
// second. A first sample (zero elapsed time) reads 0.
func RxSpeed(previous, current Stats, elapsedMs uint64) float64 {
	return byteRate(current.RxBytes, previous.RxBytes, elapsedMs)
}

// TxSpeed converts two samples into a transmit rate in bytes per
// second.
func TxSpeed(previous, current Stats, elapsedMs uint64) float64 {
	return byteRate(current.TxBytes, previous.TxBytes, elapsedMs)
}

func byteRate(current, previous, elapsedMs uint64) float64 {
	if elapsedMs == 0 || current < previous {
		return 0
	}
	return hwinfo.FiniteOr(float64(current-previous)/float64(elapsedMs)*1000, 0)
}
