// Copyright 2026 The Resources Authors
// SPDX-License-Identifier: Apache-2.0

package hwinfo

import (
	"fmt"
	"path/filepath"
)

// Link describes the interconnect a device hangs off: PCIe, SATA,
// USB, or Wi-Fi. It is a closed set; the only implementations live in
// this package.
type Link interface {
	fmt.Stringer
	isLink()
}

// LinkData pairs the currently negotiated value of a link property
// with the device's maximum. Both sides are independently fallible:
// sysfs exposes the current speed on some devices but not the
// maximum, and vice versa.
type LinkData[T comparable] struct {
	Current Value[T]
	Max     Value[T]
}

// String renders "current / max" when the maximum is known and
// differs from the current value, and just "current" otherwise. A
// failed current reading renders "N/A" regardless of max: a maximum
// without a current value is not a link state.
func (l LinkData[T]) String() string {
	current, err := l.Current.Get()
	if err != nil {
		return "N/A"
	}
	max, err := l.Max.Get()
	if err != nil || max == current {
		return fmt.Sprintf("%v", current)
	}
	return fmt.Sprintf("%v / %v", current, max)
}

// PcieSpeed is a PCIe generation, identified by its per-lane transfer
// rate.
type PcieSpeed uint8

const (
	Pcie1 PcieSpeed = 1 + iota
	Pcie2
	Pcie3
	Pcie4
	Pcie5
	Pcie6
	Pcie7
)

func (s PcieSpeed) String() string {
	switch s {
	case Pcie1:
		return "PCIe 1.0"
	case Pcie2:
		return "PCIe 2.0"
	case Pcie3:
		return "PCIe 3.0"
	case Pcie4:
		return "PCIe 4.0"
	case Pcie5:
		return "PCIe 5.0"
	case Pcie6:
		return "PCIe 6.0"
	case Pcie7:
		return "PCIe 7.0"
	}
	return fmt.Sprintf("PCIe(%d)", uint8(s))
}

// UnknownLinkValueError reports a sysfs link attribute string that
// matches no known table entry.
type UnknownLinkValueError struct {
	Attribute string
	Value     string
}

func (e *UnknownLinkValueError) Error() string {
	return fmt.Sprintf("unknown %s value %q", e.Attribute, e.Value)
}

// ParsePcieSpeed maps a sysfs current_link_speed/max_link_speed
// string ("8.0 GT/s PCIe") to a generation.
func ParsePcieSpeed(s string) (PcieSpeed, error) {
	switch s {
	case "2.5 GT/s", "2.5 GT/s PCIe":
		return Pcie1, nil
	case "5.0 GT/s", "5.0 GT/s PCIe":
		return Pcie2, nil
	case "8.0 GT/s", "8.0 GT/s PCIe":
		return Pcie3, nil
	case "16.0 GT/s", "16.0 GT/s PCIe":
		return Pcie4, nil
	case "32.0 GT/s", "32.0 GT/s PCIe":
		return Pcie5, nil
	case "64.0 GT/s", "64.0 GT/s PCIe":
		return Pcie6, nil
	case "128.0 GT/s", "128.0 GT/s PCIe":
		return Pcie7, nil
	}
	return 0, &UnknownLinkValueError{Attribute: "link_speed", Value: s}
}

// PcieLink is one negotiated PCIe configuration: generation and lane
// width.
type PcieLink struct {
	Speed PcieSpeed
	Width uint8
}

func (l PcieLink) String() string {
	return fmt.Sprintf("%s ×%d", l.Speed, l.Width)
}

// Pcie is a PCIe link.
type Pcie struct {
	LinkData[PcieLink]
}

func (Pcie) isLink() {}

// ReadPcieLink reads the four PCIe link attributes from a device
// directory.
func ReadPcieLink(devicePath string) Pcie {
	return Pcie{LinkData[PcieLink]{
		Current: readPcieSide(devicePath, "current_link_speed", "current_link_width"),
		Max:     readPcieSide(devicePath, "max_link_speed", "max_link_width"),
	}}
}

func readPcieSide(devicePath, speedAttr, widthAttr string) Value[PcieLink] {
	speedRaw, err := ReadString(filepath.Join(devicePath, speedAttr))
	if err != nil {
		return Err[PcieLink](err)
	}
	speed, err := ParsePcieSpeed(speedRaw)
	if err != nil {
		return Err[PcieLink](err)
	}
	width, err := ReadUint64(filepath.Join(devicePath, widthAttr))
	if err != nil {
		return Err[PcieLink](err)
	}
	return Ok(PcieLink{Speed: speed, Width: uint8(width)})
}

// SataSpeed is a SATA revision, identified by its signaling rate.
type SataSpeed uint8

const (
	Sata1 SataSpeed = 1 + iota
	Sata2
	Sata3
)

func (s SataSpeed) String() string {
	switch s {
	case Sata1:
		return "SATA 1"
	case Sata2:
		return "SATA 2"
	case Sata3:
		return "SATA 3"
	}
	return fmt.Sprintf("SATA(%d)", uint8(s))
}

// ParseSataSpeed maps a sata_spd string ("6.0 Gbps") to a revision.
func ParseSataSpeed(s string) (SataSpeed, error) {
	switch s {
	case "1.5 Gbps":
		return Sata1, nil
	case "3.0 Gbps":
		return Sata2, nil
	case "6.0 Gbps":
		return Sata3, nil
	}
	return 0, &UnknownLinkValueError{Attribute: "sata_spd", Value: s}
}

// Sata is a SATA link.
type Sata struct {
	LinkData[SataSpeed]
}

func (Sata) isLink() {}

// ReadSataLink reads the negotiated and maximum speed from an
// ata_link directory (/sys/class/ata_link/linkN).
func ReadSataLink(linkDir string) Sata {
	return Sata{LinkData[SataSpeed]{
		Current: readSataSide(filepath.Join(linkDir, "sata_spd")),
		Max:     readSataSide(filepath.Join(linkDir, "sata_spd_max")),
	}}
}

func readSataSide(path string) Value[SataSpeed] {
	raw, err := ReadString(path)
	if err != nil {
		return Err[SataSpeed](err)
	}
	speed, err := ParseSataSpeed(raw)
	if err != nil {
		return Err[SataSpeed](err)
	}
	return Ok(speed)
}

// UsbSpeed is a USB version, identified by its signaling rate in
// Mb/s as reported by the sysfs "speed" attribute.
type UsbSpeed uint8

const (
	Usb1LowSpeed UsbSpeed = 1 + iota
	Usb1FullSpeed
	Usb2
	Usb3Gen1
	Usb3Gen2
	Usb3Gen2x2
	Usb4Gen3
	Usb4Gen4
)

func (s UsbSpeed) String() string {
	switch s {
	case Usb1LowSpeed:
		return "USB 1.0"
	case Usb1FullSpeed:
		return "USB 1.1"
	case Usb2:
		return "USB 2.0"
	case Usb3Gen1:
		return "USB 3.0 (5 Gb/s)"
	case Usb3Gen2:
		return "USB 3.1 (10 Gb/s)"
	case Usb3Gen2x2:
		return "USB 3.2 (20 Gb/s)"
	case Usb4Gen3:
		return "USB4 (40 Gb/s)"
	case Usb4Gen4:
		return "USB4 (80 Gb/s)"
	}
	return fmt.Sprintf("USB(%d)", uint8(s))
}

// ParseUsbSpeed maps a sysfs "speed" value in Mb/s to a USB version.
func ParseUsbSpeed(megabitsPerSecond string) (UsbSpeed, error) {
	switch megabitsPerSecond {
	case "1.5":
		return Usb1LowSpeed, nil
	case "12":
		return Usb1FullSpeed, nil
	case "480":
		return Usb2, nil
	case "5000":
		return Usb3Gen1, nil
	case "10000":
		return Usb3Gen2, nil
	case "20000":
		return Usb3Gen2x2, nil
	case "40000":
		return Usb4Gen3, nil
	case "80000":
		return Usb4Gen4, nil
	}
	return 0, &UnknownLinkValueError{Attribute: "speed", Value: megabitsPerSecond}
}

// Usb is a USB link.
type Usb struct {
	LinkData[UsbSpeed]
}

func (Usb) isLink() {}

// ReadUsbLink reads a USB device's negotiated speed. Sysfs exposes no
// maximum attribute, so Max always fails and the link renders as the
// current speed alone.
func ReadUsbLink(devicePath string) Usb {
	link := Usb{LinkData[UsbSpeed]{
		Max: Err[UsbSpeed](fmt.Errorf("%s: usb exposes no maximum speed", devicePath)),
	}}
	raw, err := ReadString(filepath.Join(devicePath, "speed"))
	if err != nil {
		link.Current = Err[UsbSpeed](err)
		return link
	}
	speed, err := ParseUsbSpeed(raw)
	if err != nil {
		link.Current = Err[UsbSpeed](err)
		return link
	}
	link.Current = Ok(speed)
	return link
}

// WifiGeneration is a Wi-Fi generation, inferred from which rate-info
// MCS attribute the kernel reports for the current station.
type WifiGeneration uint8

const (
	Wifi4 WifiGeneration = iota + 4 // 802.11n (HT)
	Wifi5                           // 802.11ac (VHT)
	Wifi6                           // 802.11ax (HE)
	Wifi7                           // 802.11be (EHT)
)

// Wifi6E is Wi-Fi 6 on the 6 GHz band. It shares Wifi6's HE rate
// info and is distinguished by frequency.
const Wifi6E WifiGeneration = 0xe6

func (g WifiGeneration) String() string {
	switch g {
	case Wifi4:
		return "Wi-Fi 4"
	case Wifi5:
		return "Wi-Fi 5"
	case Wifi6:
		return "Wi-Fi 6"
	case Wifi6E:
		return "Wi-Fi 6E"
	case Wifi7:
		return "Wi-Fi 7"
	}
	return fmt.Sprintf("Wi-Fi(%d)", uint8(g))
}

// Wifi is a wireless link: generation plus the negotiated receive and
// transmit bitrates in bits per second.
type Wifi struct {
	Generation      WifiGeneration
	RxBitsPerSecond Value[uint64]
	TxBitsPerSecond Value[uint64]
}

func (Wifi) isLink() {}

func (w Wifi) String() string {
	return w.Generation.String()
}

// Unknown is a device with no recognizable interconnect.
type Unknown struct{}

func (Unknown) isLink() {}

func (Unknown) String() string { return "N/A" }
