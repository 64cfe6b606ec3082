// Copyright 2026 The Resources Authors
// SPDX-License-Identifier: Apache-2.0

// Package pci provides the Slot value type that identifies a PCI
// device by its bus address. Slots key the per-process GPU and NPU
// usage maps, so the type is comparable, totally ordered, and
// round-trips bit-exactly through its text form.
package pci

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Slot is a PCI bus address in the dddd:bb:nn.f form used by sysfs
// (PCI_SLOT_NAME) and lspci: 16-bit domain, 8-bit bus, 5-bit device
// number, 3-bit function.
type Slot struct {
	Domain   uint16
	Bus      uint8
	Number   uint8
	Function uint8
}

// Field range errors returned by New and Parse.
var (
	ErrNumberRange   = errors.New("device number out of range (max 0x1f)")
	ErrFunctionRange = errors.New("function out of range (max 0x7)")
)

// ParseError reports a malformed slot string. Field names the part
// that failed when the overall shape was recognized.
type ParseError struct {
	Input string
	Field string
	Err   error
}

func (e *ParseError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("malformed PCI slot %q: %v", e.Input, e.Err)
	}
	return fmt.Sprintf("malformed PCI slot %q: %s: %v", e.Input, e.Field, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// New builds a Slot, validating that number and function fit their
// 5- and 3-bit fields. Domain and bus use their full width and cannot
// be out of range.
func New(domain uint16, bus, number, function uint8) (Slot, error) {
	if number > 0x1f {
		return Slot{}, ErrNumberRange
	}
	if function > 0x7 {
		return Slot{}, ErrFunctionRange
	}
	return Slot{Domain: domain, Bus: bus, Number: number, Function: function}, nil
}

// Parse parses a dddd:bb:nn.f slot string. The input must contain
// exactly one '.', and the part before it exactly two ':'. All fields
// are hexadecimal.
func Parse(s string) (Slot, error) {
	dotParts := strings.Split(s, ".")
	if len(dotParts) != 2 {
		return Slot{}, &ParseError{Input: s, Err: errors.New("expected exactly one '.'")}
	}

	colonParts := strings.Split(dotParts[0], ":")
	if len(colonParts) != 3 {
		return Slot{}, &ParseError{Input: s, Err: errors.New("expected exactly two ':' before the '.'")}
	}

	domain, err := strconv.ParseUint(colonParts[0], 16, 16)
	if err != nil {
		return Slot{}, &ParseError{Input: s, Field: "domain", Err: err}
	}
	bus, err := strconv.ParseUint(colonParts[1], 16, 8)
	if err != nil {
		return Slot{}, &ParseError{Input: s, Field: "bus", Err: err}
	}
	number, err := strconv.ParseUint(colonParts[2], 16, 8)
	if err != nil {
		return Slot{}, &ParseError{Input: s, Field: "number", Err: err}
	}
	function, err := strconv.ParseUint(dotParts[1], 16, 8)
	if err != nil {
		return Slot{}, &ParseError{Input: s, Field: "function", Err: err}
	}

	slot, err := New(uint16(domain), uint8(bus), uint8(number), uint8(function))
	if err != nil {
		return Slot{}, &ParseError{Input: s, Field: "range", Err: err}
	}
	return slot, nil
}

// String formats the slot as dddd:bb:nn.f with lowercase hex digits.
func (s Slot) String() string {
	return fmt.Sprintf("%04x:%02x:%02x.%x", s.Domain, s.Bus, s.Number, s.Function)
}

// U32 packs the slot into a single integer whose ordering matches the
// lexicographic ordering of the text form: domain, then bus, then
// number, then function.
func (s Slot) U32() uint32 {
	return uint32(s.Domain)<<16 | uint32(s.Bus)<<8 | uint32(s.Number)<<3 | uint32(s.Function)
}

// FromU32 unpacks a slot packed with U32.
func FromU32(v uint32) Slot {
	return Slot{
		Domain:   uint16(v >> 16),
		Bus:      uint8(v >> 8),
		Number:   uint8(v>>3) & 0x1f,
		Function: uint8(v) & 0x7,
	}
}

// Compare orders slots by domain, bus, number, function. It returns
// -1, 0, or +1, suitable for slices.SortFunc.
func (s Slot) Compare(other Slot) int {
	a, b := s.U32(), other.U32()
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

// MarshalText implements encoding.TextMarshaler so slots serialize as
// text strings (and key CBOR maps deterministically).
func (s Slot) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *Slot) UnmarshalText(text []byte) error {
	parsed, err := Parse(string(text))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}
