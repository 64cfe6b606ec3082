// Copyright 2026 The Resources Authors
// SPDX-License-Identifier: Apache-2.0

package net

import (
	"fmt"
	stdnet "net"

	"github.com/mdlayher/genetlink"
	"github.com/mdlayher/netlink"

	"github.com/nokyan/resources-sub000/lib/hwinfo"
)

// nl80211 protocol constants, from the kernel's nl80211.h. Only the
// slice this package consumes.
const (
	nl80211CmdGetInterface = 5
	nl80211CmdGetStation   = 17

	nl80211AttrIfindex   = 3
	nl80211AttrStaInfo   = 21
	nl80211AttrWiphyFreq = 38

	nl80211StaInfoTxBitrate = 8
	nl80211StaInfoRxBitrate = 14

	nl80211RateInfoMCS       = 2
	nl80211RateInfoBitrate32 = 5
	nl80211RateInfoVhtMCS    = 6
	nl80211RateInfoHeMCS     = 13
	nl80211RateInfoEhtMCS    = 19
)

// rateInfo is one parsed nl80211 rate-info block. The MCS attribute
// the kernel populates reveals the negotiated 802.11 generation; the
// bitrate comes in units of 100 kbit/s.
type rateInfo struct {
	bitsPerSecond uint64
	hasHT         bool
	hasVHT        bool
	hasHE         bool
	hasEHT        bool
}

func parseRateInfo(data []byte) (rateInfo, error) {
	decoder, err := netlink.NewAttributeDecoder(data)
	if err != nil {
		return rateInfo{}, err
	}
	var info rateInfo
	for decoder.Next() {
		switch decoder.Type() {
		case nl80211RateInfoBitrate32:
			info.bitsPerSecond = uint64(decoder.Uint32()) * 100_000
		case nl80211RateInfoMCS:
			info.hasHT = true
		case nl80211RateInfoVhtMCS:
			info.hasVHT = true
		case nl80211RateInfoHeMCS:
			info.hasHE = true
		case nl80211RateInfoEhtMCS:
			info.hasEHT = true
		}
	}
	return info, decoder.Err()
}

// wifiGeneration infers the Wi-Fi generation from which MCS fields
// the station reports, checked in ascending order so the newest
// populated capability wins. HE splits into 6 and 6E by whether the
// channel sits in the 6 GHz band.
func wifiGeneration(tx, rx rateInfo, frequencyMHz uint32) (hwinfo.WifiGeneration, bool) {
	var generation hwinfo.WifiGeneration
	found := false
	if tx.hasHT || rx.hasHT {
		generation, found = hwinfo.Wifi4, true
	}
	if tx.hasVHT || rx.hasVHT {
		generation, found = hwinfo.Wifi5, true
	}
	if tx.hasHE || rx.hasHE {
		if frequencyMHz >= 5925 && frequencyMHz <= 7125 {
			generation, found = hwinfo.Wifi6E, true
		} else {
			generation, found = hwinfo.Wifi6, true
		}
	}
	if tx.hasEHT || rx.hasEHT {
		generation, found = hwinfo.Wifi7, true
	}
	return generation, found
}

// StationLink queries nl80211 for the station an interface is
// associated with and derives the wireless link details. Each call
// opens its own generic netlink socket.
func StationLink(interfaceName string) (hwinfo.Wifi, error) {
	iface, err := stdnet.InterfaceByName(interfaceName)
	if err != nil {
		return hwinfo.Wifi{}, fmt.Errorf("resolving %s: %w", interfaceName, err)
	}

	conn, err := genetlink.Dial(nil)
	if err != nil {
		return hwinfo.Wifi{}, fmt.Errorf("dialing generic netlink: %w", err)
	}
	defer conn.Close()

	family, err := conn.GetFamily("nl80211")
	if err != nil {
		return hwinfo.Wifi{}, fmt.Errorf("resolving nl80211 family: %w", err)
	}

	frequency, err := interfaceFrequency(conn, family, iface.Index)
	if err != nil {
		frequency = 0
	}

	tx, rx, err := stationRates(conn, family, iface.Index)
	if err != nil {
		return hwinfo.Wifi{}, err
	}

	wifi := hwinfo.Wifi{
		RxBitsPerSecond: hwinfo.Ok(rx.bitsPerSecond),
		TxBitsPerSecond: hwinfo.Ok(tx.bitsPerSecond),
	}
	if generation, ok := wifiGeneration(tx, rx, frequency); ok {
		wifi.Generation = generation
	} else {
		return hwinfo.Wifi{}, fmt.Errorf("%s: station reports no MCS rate info", interfaceName)
	}
	return wifi, nil
}

func ifindexAttribute(index int) ([]byte, error) {
	encoder := netlink.NewAttributeEncoder()
	encoder.Uint32(nl80211AttrIfindex, uint32(index))
	return encoder.Encode()
}

// interfaceFrequency asks nl80211 for the interface's current channel
// frequency in MHz.
func interfaceFrequency(conn *genetlink.Conn, family genetlink.Family, index int) (uint32, error) {
	attributes, err := ifindexAttribute(index)
	if err != nil {
		return 0, err
	}
	messages, err := conn.Execute(genetlink.Message{
		Header: genetlink.Header{
			Command: nl80211CmdGetInterface,
			Version: family.Version,
		},
		Data: attributes,
	}, family.ID, netlink.Request)
	if err != nil {
		return 0, fmt.Errorf("nl80211 get interface: %w", err)
	}

	for _, message := range messages {
		decoder, err := netlink.NewAttributeDecoder(message.Data)
		if err != nil {
			return 0, err
		}
		for decoder.Next() {
			if decoder.Type() == nl80211AttrWiphyFreq {
				return decoder.Uint32(), nil
			}
		}
		if err := decoder.Err(); err != nil {
			return 0, err
		}
	}
	return 0, fmt.Errorf("interface %d: no frequency attribute", index)
}

// stationRates dumps the interface's stations and returns the first
// station's transmit and receive rate info.
func stationRates(conn *genetlink.Conn, family genetlink.Family, index int) (tx, rx rateInfo, err error) {
	attributes, err := ifindexAttribute(index)
	if err != nil {
		return rateInfo{}, rateInfo{}, err
	}
	messages, err := conn.Execute(genetlink.Message{
		Header: genetlink.Header{
			Command: nl80211CmdGetStation,
			Version: family.Version,
		},
		Data: attributes,
	}, family.ID, netlink.Request|netlink.Dump)
	if err != nil {
		return rateInfo{}, rateInfo{}, fmt.Errorf("nl80211 get station: %w", err)
	}
	if len(messages) == 0 {
		return rateInfo{}, rateInfo{}, fmt.Errorf("interface %d: not associated with a station", index)
	}

	decoder, err := netlink.NewAttributeDecoder(messages[0].Data)
	if err != nil {
		return rateInfo{}, rateInfo{}, err
	}
	for decoder.Next() {
		if decoder.Type() != nl80211AttrStaInfo {
			continue
		}
		infoDecoder, err := netlink.NewAttributeDecoder(decoder.Bytes())
		if err != nil {
			return rateInfo{}, rateInfo{}, err
		}
		for infoDecoder.Next() {
			switch infoDecoder.Type() {
			case nl80211StaInfoTxBitrate:
				tx, err = parseRateInfo(infoDecoder.Bytes())
			case nl80211StaInfoRxBitrate:
				rx, err = parseRateInfo(infoDecoder.Bytes())
			}
			if err != nil {
				return rateInfo{}, rateInfo{}, err
			}
		}
		if err := infoDecoder.Err(); err != nil {
			return rateInfo{}, rateInfo{}, err
		}
	}
	return tx, rx, decoder.Err()
}
