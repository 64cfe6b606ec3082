// Copyright 2026 The Resources Authors
// SPDX-License-Identifier: Apache-2.0

// resources-adjust changes a process's niceness and CPU affinity with
// elevated privileges. The monitor invokes it through pkexec when the
// direct syscalls are denied (lowering niceness on an unowned process
// always is).
//
// Usage: resources-adjust <pid> <niceness> <affinity-bitstring>
//
// An empty niceness or affinity argument skips that adjustment. The
// affinity bitstring is one '0' or '1' per logical CPU, CPU 0 first.
//
// Exit codes: 0 adjusted, 1 bad invocation or failure, 3 the process
// was already gone (treated as success by the caller).
package main

import (
	"errors"
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/pflag"
	"golang.org/x/sys/unix"

	"github.com/nokyan/resources-sub000/lib/apps"
)

const exitGone = 3

func main() {
	flagSet := pflag.NewFlagSet("resources-adjust", pflag.ContinueOnError)
	flagSet.Usage = func() {
		fmt.Fprintln(os.Stderr, "usage: resources-adjust <pid> <niceness> <affinity-bitstring>")
	}
	if err := flagSet.Parse(os.Args[1:]); err != nil {
		if err == pflag.ErrHelp {
			return
		}
		os.Exit(1)
	}

	arguments := flagSet.Args()
	if len(arguments) != 3 {
		flagSet.Usage()
		os.Exit(1)
	}

	pid, err := strconv.ParseInt(arguments[0], 10, 32)
	if err != nil || pid <= 0 {
		fail("invalid pid %q", arguments[0])
	}

	if arguments[1] != "" {
		niceness, err := strconv.Atoi(arguments[1])
		if err != nil || niceness < -20 || niceness > 19 {
			fail("invalid niceness %q", arguments[1])
		}
		switch err := unix.Setpriority(unix.PRIO_PROCESS, int(pid), niceness); {
		case err == nil:
		case errors.Is(err, unix.ESRCH):
			os.Exit(exitGone)
		default:
			fail("setting niceness of pid %d: %v", pid, err)
		}
	}

	if arguments[2] != "" {
		affinity, err := apps.ParseAffinityBitstring(arguments[2])
		if err != nil {
			fail("%v", err)
		}
		var set unix.CPUSet
		selected := false
		for cpu, allowed := range affinity {
			if allowed {
				set.Set(cpu)
				selected = true
			}
		}
		if !selected {
			fail("affinity mask selects no CPUs")
		}
		switch err := unix.SchedSetaffinity(int(pid), &set); {
		case err == nil:
		case errors.Is(err, unix.ESRCH):
			os.Exit(exitGone)
		default:
			fail("setting affinity of pid %d: %v", pid, err)
		}
	}
}

func fail(format string, arguments ...any) {
	fmt.Fprintf(os.Stderr, "error: "+format+"\n", arguments...)
	os.Exit(1)
}
