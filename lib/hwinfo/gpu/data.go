// Copyright 2026 The Resources Authors
// SPDX-License-Identifier: Apache-2.0

package gpu

import (
	"github.com/nokyan/resources-sub000/lib/hwinfo"
	"github.com/nokyan/resources-sub000/lib/pci"
)

// GpuData is one refresh's snapshot of a GPU. Every metric carries
// its own error so an unsupported sensor renders as N/A instead of a
// fake zero.
type GpuData struct {
	Slot   pci.Slot
	Driver string

	Name          hwinfo.Value[string]
	Usage         hwinfo.Value[float64]
	UsedVram      hwinfo.Value[uint64]
	TotalVram     hwinfo.Value[uint64]
	Temperature   hwinfo.Value[float64]
	PowerUsage    hwinfo.Value[float64]
	CoreFrequency hwinfo.Value[uint64]
	VramFrequency hwinfo.Value[uint64]
	PowerCap      hwinfo.Value[float64]
	PowerCapMax   hwinfo.Value[float64]

	Link hwinfo.Pcie
}

func value[T any](v T, err error) hwinfo.Value[T] {
	if err != nil {
		return hwinfo.Err[T](err)
	}
	return hwinfo.Ok(v)
}

// Snapshot queries every metric of a GPU once.
func Snapshot(g Gpu) GpuData {
	data := GpuData{
		Slot:          g.Slot(),
		Driver:        g.Driver(),
		Name:          value(g.Name()),
		Usage:         value(g.Usage()),
		UsedVram:      value(g.UsedVram()),
		TotalVram:     value(g.TotalVram()),
		Temperature:   value(g.Temperature()),
		PowerUsage:    value(g.PowerUsage()),
		CoreFrequency: value(g.CoreFrequency()),
		VramFrequency: value(g.VramFrequency()),
		PowerCap:      value(g.PowerCap()),
		PowerCapMax:   value(g.PowerCapMax()),
	}
	data.Link = hwinfo.ReadPcieLink(g.linkPath())
	return data
}
