// Copyright 2026 The Resources Authors
// SPDX-License-Identifier: Apache-2.0

package apps

import (
	"runtime"
	"testing"
)

func TestAffinityBitstringRoundtrip(t *testing.T) {
	mask := []bool{true, false, true, true, false}
	bits := AffinityBitstring(mask)
	if bits != "10110" {
		t.Fatalf("AffinityBitstring = %q", bits)
	}
	parsed, err := ParseAffinityBitstring(bits)
	if err != nil {
		t.Fatalf("ParseAffinityBitstring: %v", err)
	}
	if len(parsed) != len(mask) {
		t.Fatalf("parsed length = %d", len(parsed))
	}
	for i := range mask {
		if parsed[i] != mask[i] {
			t.Errorf("bit %d = %v, want %v", i, parsed[i], mask[i])
		}
	}
}

func TestParseAffinityBitstringRejectsJunk(t *testing.T) {
	if _, err := ParseAffinityBitstring("10x1"); err == nil {
		t.Error("invalid byte accepted")
	}
}

func TestSendSignalUnknownName(t *testing.T) {
	if err := SendSignal(1, "HUP"); err == nil {
		t.Error("unknown signal name accepted")
	}
}

func TestSendSignalVanishedProcess(t *testing.T) {
	if runtime.GOOS != "linux" {
		t.Skip("requires Linux")
	}
	// A pid far beyond pid_max cannot exist; ESRCH counts as success
	// because the goal state (process gone) already holds.
	if err := SendSignal(999999999, "TERM"); err != nil {
		t.Errorf("signaling vanished process = %v, want nil", err)
	}
}

func TestSetAffinityRejectsEmptyMask(t *testing.T) {
	if err := SetAffinity(1, nil); err == nil {
		t.Error("empty mask accepted")
	}
	if err := SetAffinity(1, []bool{false, false}); err == nil {
		t.Error("all-false mask accepted")
	}
}
