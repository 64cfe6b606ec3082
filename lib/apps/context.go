// Copyright 2026 The Resources Authors
// SPDX-License-Identifier: Apache-2.0

// Package apps maintains the live process table and its association
// with installed application identities. An AppsContext owns every
// Process and App; it is mutated only through Refresh and is intended
// for a single refresh driver, so it carries no internal locking.
package apps

import (
	"log/slog"
	"slices"
	"strings"

	"github.com/nokyan/resources-sub000/lib/pci"
	"github.com/nokyan/resources-sub000/lib/procdata"
)

// portalPrefix marks background desktop-portal helpers that must not
// show up as running applications.
const portalPrefix = "xdg-desktop-portal"

// systemProcessesName labels the synthetic bucket for processes with
// no application identity.
const systemProcessesName = "System Processes"

// AppsContext owns the process registry and the app catalog. Every
// tracked pid belongs to exactly one app's member list; unmatched
// processes belong to the empty-id "System Processes" app.
type AppsContext struct {
	apps      map[string]*App
	processes map[int32]*Process
}

// NewAppsContext scans the applications directories under dataDirs
// and builds the catalog. This walks and parses every desktop entry,
// so it is meant to be called once at startup.
func NewAppsContext(dataDirs []string) *AppsContext {
	apps := loadDesktopEntries(dataDirs)
	apps[""] = &App{DisplayName: systemProcessesName}
	slog.Debug("app catalog built", "apps", len(apps)-1, "data_dirs", len(dataDirs))
	return &AppsContext{
		apps:      apps,
		processes: make(map[int32]*Process),
	}
}

// Refresh ingests one producer batch: updates known processes,
// creates and associates new ones, folds exited members' I/O into
// their app's residue counters, and drops exited pids.
func (c *AppsContext) Refresh(batch []procdata.ProcessData) {
	seen := make(map[int32]struct{}, len(batch))
	for _, data := range batch {
		seen[data.Pid] = struct{}{}
		if process, ok := c.processes[data.Pid]; ok {
			process.update(data)
			continue
		}
		process := newProcess(data)
		c.processes[data.Pid] = process
		app := c.associate(process)
		app.processes = append(app.processes, data.Pid)
	}

	for _, app := range c.apps {
		c.retireDead(app, seen)
	}

	for pid := range c.processes {
		if _, alive := seen[pid]; !alive {
			delete(c.processes, pid)
		}
	}
}

// associate finds the owning app for a new process. First match wins:
// cgroup identity, then executable path, then executable name, then a
// scan over the catalog's matching heuristics. Everything else lands
// in System Processes.
func (c *AppsContext) associate(process *Process) *App {
	if process.Data.Cgroup != nil {
		if app, ok := c.apps[*process.Data.Cgroup]; ok {
			return app
		}
	}
	executablePath := process.ExecutablePath()
	if app, ok := c.apps[executablePath]; ok {
		return app
	}
	executableName := process.ExecutableName()
	if app, ok := c.apps[executableName]; ok {
		return app
	}
	for _, app := range c.apps {
		if app.ID == "" {
			continue
		}
		if executablePath != "" && app.Commandline == executablePath {
			return app
		}
		if executableName != "" && app.Executable == executableName {
			return app
		}
		if substitute, ok := knownExecutableExceptions[executableName]; ok && substitute == app.Executable {
			return app
		}
	}
	return c.apps[""]
}

// retireDead folds the last-known I/O counters of members missing
// from this batch into the app's residue, prunes them, and resets the
// residue when no live member remains.
func (c *AppsContext) retireDead(app *App, seen map[int32]struct{}) {
	live := app.processes[:0]
	for _, pid := range app.processes {
		if _, alive := seen[pid]; alive {
			live = append(live, pid)
			continue
		}
		if process, ok := c.processes[pid]; ok {
			if process.Data.ReadBytes != nil {
				app.readBytesFromDead += *process.Data.ReadBytes
			}
			if process.Data.WriteBytes != nil {
				app.writeBytesFromDead += *process.Data.WriteBytes
			}
		}
	}
	app.processes = live
	if len(app.processes) == 0 {
		app.readBytesFromDead = 0
		app.writeBytesFromDead = 0
	}
}

// Process returns the tracked process for a pid, or nil.
func (c *AppsContext) Process(pid int32) *Process {
	return c.processes[pid]
}

// App returns the app with the given id, or nil. The empty id is the
// System Processes bucket.
func (c *AppsContext) App(id string) *App {
	return c.apps[id]
}

// Processes returns every tracked process.
func (c *AppsContext) Processes() []*Process {
	processes := make([]*Process, 0, len(c.processes))
	for _, process := range c.processes {
		processes = append(processes, process)
	}
	return processes
}

// RunningApps returns apps with at least one live process, excluding
// desktop-portal helpers, sorted by display name for stable output.
func (c *AppsContext) RunningApps() []*App {
	var running []*App
	for id, app := range c.apps {
		if id == "" || strings.HasPrefix(id, portalPrefix) {
			continue
		}
		if app.IsRunning() {
			running = append(running, app)
		}
	}
	slices.SortFunc(running, func(a, b *App) int {
		return strings.Compare(a.DisplayName, b.DisplayName)
	})
	return running
}

// AppItems returns the display list: every running app except portal
// helpers, with the System Processes bucket appended last.
func (c *AppsContext) AppItems() []*App {
	items := c.RunningApps()
	return append(items, c.apps[""])
}

// GpuFraction returns the summed usage fraction of one GPU across all
// tracked processes, clamped to [0, 1].
func (c *AppsContext) GpuFraction(slot pci.Slot) float64 {
	return c.sumFraction(func(p *Process) float64 { return p.GpuUsageFor(slot) })
}

// EncoderFraction returns the summed encode fraction of one GPU,
// clamped to [0, 1].
func (c *AppsContext) EncoderFraction(slot pci.Slot) float64 {
	return c.sumFraction(func(p *Process) float64 { return p.EncUsageFor(slot) })
}

// DecoderFraction returns the summed decode fraction of one GPU,
// clamped to [0, 1].
func (c *AppsContext) DecoderFraction(slot pci.Slot) float64 {
	return c.sumFraction(func(p *Process) float64 { return p.DecUsageFor(slot) })
}

func (c *AppsContext) sumFraction(fraction func(*Process) float64) float64 {
	sum := 0.0
	for _, process := range c.processes {
		sum += fraction(process)
	}
	return min(max(sum, 0), 1)
}

// Memory returns the summed resident memory of the app's live
// processes in bytes.
func (a *App) Memory(c *AppsContext) uint64 {
	var total uint64
	for _, pid := range a.processes {
		if process := c.processes[pid]; process != nil {
			total += process.Data.Memory
		}
	}
	return total
}

// CPUTimeRatio returns the summed CPU fraction of the app's live
// processes.
func (a *App) CPUTimeRatio(c *AppsContext) float64 {
	total := 0.0
	for _, pid := range a.processes {
		if process := c.processes[pid]; process != nil {
			total += process.CPUTimeRatio()
		}
	}
	return total
}

// ReadSpeed returns the summed read throughput of live members in
// bytes per second.
func (a *App) ReadSpeed(c *AppsContext) float64 {
	total := 0.0
	for _, pid := range a.processes {
		if process := c.processes[pid]; process != nil {
			if speed, ok := process.ReadSpeed(); ok {
				total += speed
			}
		}
	}
	return total
}

// WriteSpeed returns the summed write throughput of live members in
// bytes per second.
func (a *App) WriteSpeed(c *AppsContext) float64 {
	total := 0.0
	for _, pid := range a.processes {
		if process := c.processes[pid]; process != nil {
			if speed, ok := process.WriteSpeed(); ok {
				total += speed
			}
		}
	}
	return total
}

// ReadTotal returns the app's cumulative read bytes: live members'
// counters plus the residue of exited members. The total never
// shrinks because a member exited.
func (a *App) ReadTotal(c *AppsContext) uint64 {
	total := a.readBytesFromDead
	for _, pid := range a.processes {
		if process := c.processes[pid]; process != nil && process.Data.ReadBytes != nil {
			total += *process.Data.ReadBytes
		}
	}
	return total
}

// WriteTotal returns the app's cumulative written bytes including the
// dead-process residue.
func (a *App) WriteTotal(c *AppsContext) uint64 {
	total := a.writeBytesFromDead
	for _, pid := range a.processes {
		if process := c.processes[pid]; process != nil && process.Data.WriteBytes != nil {
			total += *process.Data.WriteBytes
		}
	}
	return total
}

// GpuUsage returns the summed peak GPU fraction of live members.
func (a *App) GpuUsage(c *AppsContext) float64 {
	total := 0.0
	for _, pid := range a.processes {
		if process := c.processes[pid]; process != nil {
			total += process.GpuUsage()
		}
	}
	return total
}

// GpuMemUsage returns the summed GPU memory attribution of live
// members in bytes.
func (a *App) GpuMemUsage(c *AppsContext) uint64 {
	var total uint64
	for _, pid := range a.processes {
		if process := c.processes[pid]; process != nil {
			total += process.GpuMemUsage()
		}
	}
	return total
}
