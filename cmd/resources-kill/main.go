// Copyright 2026 The Resources Authors
// SPDX-License-Identifier: Apache-2.0

// resources-kill delivers a signal to a process with elevated
// privileges. The monitor invokes it through pkexec when a direct
// kill is denied; the matching polkit action file restricts who may
// do that.
//
// Usage: resources-kill <pid> <STOP|CONT|TERM|KILL>
//
// Exit codes: 0 signal delivered, 1 bad invocation or delivery
// failure, 3 the process was already gone. The caller treats 3 as
// success: the goal state holds either way.
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
	flagSet := pflag.NewFlagSet("resources-kill", pflag.ContinueOnError)
	flagSet.Usage = func() {
		fmt.Fprintln(os.Stderr, "usage: resources-kill <pid> <STOP|CONT|TERM|KILL>")
	}
	if err := flagSet.Parse(os.Args[1:]); err != nil {
		if err == pflag.ErrHelp {
			return
		}
		os.Exit(1)
	}

	arguments := flagSet.Args()
	if len(arguments) != 2 {
		flagSet.Usage()
		os.Exit(1)
	}

	pid, err := strconv.ParseInt(arguments[0], 10, 32)
	if err != nil || pid <= 0 {
		fmt.Fprintf(os.Stderr, "error: invalid pid %q\n", arguments[0])
		os.Exit(1)
	}
	signal, ok := apps.SignalByName(arguments[1])
	if !ok {
		fmt.Fprintf(os.Stderr, "error: unknown signal name %q\n", arguments[1])
		os.Exit(1)
	}

	switch err := unix.Kill(int(pid), signal); {
	case err == nil:
	case errors.Is(err, unix.ESRCH):
		os.Exit(exitGone)
	default:
		fmt.Fprintf(os.Stderr, "error: signaling pid %d: %v\n", pid, err)
		os.Exit(1)
	}
}
