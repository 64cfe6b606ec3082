// Copyright 2026 The Resources Authors
// SPDX-License-Identifier: Apache-2.0

// Package battery reads battery state from /sys/class/power_supply.
// Every measurement is independently fallible; a battery that exposes
// charge but no power draw still yields a usable snapshot.
package battery

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/nokyan/resources-sub000/lib/hwinfo"
)

// State is the charging state reported by the status attribute.
type State string

const (
	StateCharging    State = "charging"
	StateDischarging State = "discharging"
	StateEmpty       State = "empty"
	StateFull        State = "full"
	StateUnknown     State = "unknown"
)

// ParseState maps a status attribute string to a State. Unrecognized
// values collapse to StateUnknown rather than erroring; the kernel
// grows new states occasionally.
func ParseState(s string) State {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "charging":
		return StateCharging
	case "discharging":
		return StateDischarging
	case "empty":
		return StateEmpty
	case "full":
		return StateFull
	}
	return StateUnknown
}

// Technology is the battery chemistry reported by the technology
// attribute.
type Technology string

const (
	TechNickelMetalHydride Technology = "nickel-metal hydride"
	TechNickelCadmium      Technology = "nickel-cadmium"
	TechNickelZinc         Technology = "nickel-zinc"
	TechLeadAcid           Technology = "lead-acid"
	TechLithiumIon         Technology = "lithium-ion"
	TechLithiumIronPhos    Technology = "lithium iron phosphate"
	TechLithiumPolymer     Technology = "lithium polymer"
	TechRechargeableAlkali Technology = "rechargeable alkaline manganese"
	TechUnknown            Technology = "unknown"
)

// ParseTechnology maps the sysfs technology string to a chemistry.
func ParseTechnology(s string) Technology {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "nimh":
		return TechNickelMetalHydride
	case "nicd":
		return TechNickelCadmium
	case "nizn":
		return TechNickelZinc
	case "pb", "pbac":
		return TechLeadAcid
	case "li-i", "li-ion", "lion":
		return TechLithiumIon
	case "life":
		return TechLithiumIronPhos
	case "lip", "lipo", "li-poly":
		return TechLithiumPolymer
	case "ram":
		return TechRechargeableAlkali
	}
	return TechUnknown
}

// Battery is one enumerated battery with its static identity.
type Battery struct {
	Name         string
	Manufacturer string
	ModelName    string
	Technology   Technology

	// DesignCapacityWh is the factory capacity in watt hours, when
	// the supply exposes either energy or charge design attributes.
	DesignCapacityWh hwinfo.Value[float64]

	sysPath string
}

// Enumerate lists the power supplies of type "Battery".
func Enumerate() []Battery {
	return enumerateFrom("/sys")
}

func enumerateFrom(sysRoot string) []Battery {
	supplyBase := filepath.Join(sysRoot, "class", "power_supply")
	entries, err := os.ReadDir(supplyBase)
	if err != nil {
		return nil
	}

	var batteries []Battery
	for _, entry := range entries {
		sysPath := filepath.Join(supplyBase, entry.Name())
		kind, err := hwinfo.ReadString(filepath.Join(sysPath, "type"))
		if err != nil || !strings.EqualFold(kind, "battery") {
			continue
		}
		batteries = append(batteries, newBattery(entry.Name(), sysPath))
	}
	return batteries
}

func newBattery(name, sysPath string) Battery {
	b := Battery{Name: name, Technology: TechUnknown, sysPath: sysPath}
	if manufacturer, err := hwinfo.ReadString(filepath.Join(sysPath, "manufacturer")); err == nil {
		b.Manufacturer = manufacturer
	}
	if model, err := hwinfo.ReadString(filepath.Join(sysPath, "model_name")); err == nil {
		b.ModelName = model
	}
	if technology, err := hwinfo.ReadString(filepath.Join(sysPath, "technology")); err == nil {
		b.Technology = ParseTechnology(technology)
	}
	if micro, err := b.readEnergyFamily("energy_full_design", "charge_full_design"); err == nil {
		b.DesignCapacityWh = hwinfo.Ok(float64(micro) / 1_000_000)
	} else {
		b.DesignCapacityWh = hwinfo.Err[float64](err)
	}
	return b
}

// readEnergyFamily reads the energy_* attribute, falling back to the
// charge_* sibling. Batteries report one family or the other; charge
// values are in µAh rather than µWh but the health and capacity
// ratios this package computes cancel the unit out.
func (b *Battery) readEnergyFamily(energyAttr, chargeAttr string) (uint64, error) {
	if value, err := hwinfo.ReadUint64(filepath.Join(b.sysPath, energyAttr)); err == nil {
		return value, nil
	}
	return hwinfo.ReadUint64(filepath.Join(b.sysPath, chargeAttr))
}

// Charge returns the fill level as a fraction in [0, 1].
func (b *Battery) Charge() (float64, error) {
	percent, err := hwinfo.ReadUint64(filepath.Join(b.sysPath, "capacity"))
	if err != nil {
		return 0, err
	}
	if percent > 100 {
		return 0, fmt.Errorf("%s: capacity %d%% out of range", b.Name, percent)
	}
	return float64(percent) / 100, nil
}

// Health is the ratio of the battery's current full capacity to its
// design capacity.
func (b *Battery) Health() (float64, error) {
	full, err := b.readEnergyFamily("energy_full", "charge_full")
	if err != nil {
		return 0, err
	}
	design, err := b.readEnergyFamily("energy_full_design", "charge_full_design")
	if err != nil {
		return 0, err
	}
	if design == 0 {
		return 0, fmt.Errorf("%s: zero design capacity", b.Name)
	}
	return hwinfo.FiniteOr(float64(full)/float64(design), 0), nil
}

// PowerUsage is the instantaneous draw (or charge rate) in watts.
func (b *Battery) PowerUsage() (float64, error) {
	microwatts, err := hwinfo.ReadUint64(filepath.Join(b.sysPath, "power_now"))
	if err != nil {
		return 0, err
	}
	return float64(microwatts) / 1_000_000, nil
}

// State reads the charging state.
func (b *Battery) State() (State, error) {
	status, err := hwinfo.ReadString(filepath.Join(b.sysPath, "status"))
	if err != nil {
		return StateUnknown, err
	}
	return ParseState(status), nil
}

// ChargeCycles reads the lifetime charge cycle count.
func (b *Battery) ChargeCycles() (uint64, error) {
	return hwinfo.ReadUint64(filepath.Join(b.sysPath, "cycle_count"))
}

// BatteryData is one point-in-time snapshot of a battery.
type BatteryData struct {
	Name         string
	Manufacturer string
	ModelName    string
	Technology   Technology

	Charge       hwinfo.Value[float64]
	PowerUsage   hwinfo.Value[float64]
	Health       hwinfo.Value[float64]
	State        hwinfo.Value[State]
	ChargeCycles hwinfo.Value[uint64]
}

func value[T any](v T, err error) hwinfo.Value[T] {
	if err != nil {
		return hwinfo.Err[T](err)
	}
	return hwinfo.Ok(v)
}

// Snapshot samples every measurement of a battery.
func Snapshot(b *Battery) BatteryData {
	return BatteryData{
		Name:         b.Name,
		Manufacturer: b.Manufacturer,
		ModelName:    b.ModelName,
		Technology:   b.Technology,
		Charge:       value(b.Charge()),
		PowerUsage:   value(b.PowerUsage()),
		Health:       value(b.Health()),
		State:        value(b.State()),
		ChargeCycles: value(b.ChargeCycles()),
	}
}
