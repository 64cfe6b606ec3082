// Copyright 2026 The Resources Authors
// SPDX-License-Identifier: Apache-2.0

package apps

import (
	"errors"
	"fmt"
	"os/exec"
	"strconv"
	"strings"

	"golang.org/x/sys/unix"
)

// Helper binary names resolved through PATH (or a polkit rules
// install prefix). Overridable for tests and packaging.
var (
	KillHelper   = "resources-kill"
	AdjustHelper = "resources-adjust"
)

// signalNames maps action names to signals, the vocabulary shared
// with the privileged kill helper.
var signalNames = map[string]unix.Signal{
	"STOP": unix.SIGSTOP,
	"CONT": unix.SIGCONT,
	"TERM": unix.SIGTERM,
	"KILL": unix.SIGKILL,
}

// runElevated invokes a helper through pkexec. Exit code 3 means the
// target process was already gone, which counts as success. Tests
// replace this.
var runElevated = func(helper string, arguments ...string) error {
	command := exec.Command("pkexec", append([]string{helper}, arguments...)...)
	err := command.Run()
	var exitError *exec.ExitError
	if errors.As(err, &exitError) && exitError.ExitCode() == 3 {
		return nil
	}
	if err != nil {
		return fmt.Errorf("running %s via pkexec: %w", helper, err)
	}
	return nil
}

// SignalByName resolves an action name to its signal. The kill helper
// uses the same vocabulary so elevation cannot change which signal is
// delivered.
func SignalByName(name string) (unix.Signal, bool) {
	signal, ok := signalNames[name]
	return signal, ok
}

// needsElevation reports whether a syscall failed only for lack of
// privileges, the case worth retrying through pkexec.
func needsElevation(err error) bool {
	return errors.Is(err, unix.EPERM) || errors.Is(err, unix.EACCES)
}

// SendSignal delivers a named signal (STOP, CONT, TERM, KILL) to a
// process, escalating through the privileged helper when the direct
// syscall is denied. A process that exited in the meantime is not an
// error.
func SendSignal(pid int32, name string) error {
	signal, ok := signalNames[name]
	if !ok {
		return fmt.Errorf("unknown signal name %q", name)
	}
	err := unix.Kill(int(pid), signal)
	switch {
	case err == nil, errors.Is(err, unix.ESRCH):
		return nil
	case needsElevation(err):
		return runElevated(KillHelper, strconv.Itoa(int(pid)), name)
	}
	return fmt.Errorf("signaling pid %d: %w", pid, err)
}

// SetNiceness adjusts a process's scheduling priority, escalating
// when denied. Lowering niceness always requires privileges for
// unowned processes.
func SetNiceness(pid int32, niceness int) error {
	err := unix.Setpriority(unix.PRIO_PROCESS, int(pid), niceness)
	switch {
	case err == nil, errors.Is(err, unix.ESRCH):
		return nil
	case needsElevation(err):
		return runElevated(AdjustHelper,
			strconv.Itoa(int(pid)), strconv.Itoa(niceness), "")
	}
	return fmt.Errorf("setting niceness of pid %d: %w", pid, err)
}

// SetAffinity pins a process to the CPUs marked true in the mask,
// escalating when denied. An empty or all-false mask is rejected
// because it would make the process unschedulable.
func SetAffinity(pid int32, affinity []bool) error {
	var set unix.CPUSet
	any := false
	for cpu, allowed := range affinity {
		if allowed {
			set.Set(cpu)
			any = true
		}
	}
	if !any {
		return errors.New("affinity mask selects no CPUs")
	}

	err := unix.SchedSetaffinity(int(pid), &set)
	switch {
	case err == nil, errors.Is(err, unix.ESRCH):
		return nil
	case needsElevation(err):
		return runElevated(AdjustHelper,
			strconv.Itoa(int(pid)), "", AffinityBitstring(affinity))
	}
	return fmt.Errorf("setting affinity of pid %d: %w", pid, err)
}

// AffinityBitstring renders an affinity mask as the "10110..."
// string the adjust helper takes on its command line, CPU 0 first.
func AffinityBitstring(affinity []bool) string {
	var builder strings.Builder
	for _, allowed := range affinity {
		if allowed {
			builder.WriteByte('1')
		} else {
			builder.WriteByte('0')
		}
	}
	return builder.String()
}

// ParseAffinityBitstring is the inverse of AffinityBitstring, used by
// the adjust helper.
func ParseAffinityBitstring(bits string) ([]bool, error) {
	affinity := make([]bool, len(bits))
	for i := 0; i < len(bits); i++ {
		switch bits[i] {
		case '1':
			affinity[i] = true
		case '0':
		default:
			return nil, fmt.Errorf("affinity bitstring %q: invalid byte %q", bits, bits[i])
		}
	}
	return affinity, nil
}
