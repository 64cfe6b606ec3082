// Copyright 2026 The Resources Authors
// SPDX-License-Identifier: Apache-2.0

package apps

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/ini.v1"
)

// App is an installable application identity from a desktop entry,
// independent of whether it is currently running. The empty ID is
// reserved for the synthetic "System Processes" bucket that absorbs
// unmatched processes.
type App struct {
	ID          string
	DisplayName string
	Description string
	Icon        string

	// Commandline and Executable are the matching heuristics: the
	// Exec line's resolved first token and its basename.
	Commandline string
	Executable  string

	// processes are the pids currently associated with this app.
	processes []int32

	// Dead member processes fold their last-known I/O totals in here
	// so an app's cumulative I/O never shrinks when a member exits.
	// Both reset once the app has no live processes left.
	readBytesFromDead  uint64
	writeBytesFromDead uint64
}

// knownExecutableExceptions maps executable names the kernel reports
// to the names desktop entries carry. Some launchers exec a
// differently named binary than their Exec line suggests.
var knownExecutableExceptions = map[string]string{
	"firefox-bin":      "firefox",
	"oosplash":         "libreoffice",
	"soffice.bin":      "libreoffice",
	"chrome":           "google-chrome-stable",
	"wine64":           "wine",
	"wine64-preloader": "wine",
	"wine-preloader":   "wine",
}

// desktopLoadOptions tolerates the quirks of real-world desktop
// entries: duplicate keys and values containing unescaped characters
// ini parsers normally reject.
var desktopLoadOptions = ini.LoadOptions{
	Insensitive:         false,
	IgnoreInlineComment: true,
	AllowShadows:        true,
}

// appFromDesktopEntry parses one .desktop file. It returns nil, nil
// for entries that exist but must not appear in the app list
// (NoDisplay, or no Desktop Entry group at all).
func appFromDesktopEntry(path string) (*App, error) {
	file, err := ini.LoadSources(desktopLoadOptions, path)
	if err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}

	section, err := file.GetSection("Desktop Entry")
	if err != nil {
		return nil, nil
	}
	if section.Key("NoDisplay").MustBool(false) {
		return nil, nil
	}

	app := &App{
		ID:          desktopEntryID(path, section),
		DisplayName: localizedKey(section, "Name"),
		Description: localizedKey(section, "Comment"),
		Icon:        section.Key("Icon").String(),
	}

	if exec := section.Key("Exec").String(); exec != "" {
		command, _, _ := strings.Cut(exec, " ")
		app.Commandline = command
		app.Executable = filepath.Base(command)
	}
	if app.DisplayName == "" {
		app.DisplayName = app.ID
	}
	return app, nil
}

// desktopEntryID resolves the stable app identity. Flatpak and Snap
// record theirs explicitly; for native entries the file stem is the
// conventional reverse-DNS id that also names the app's systemd
// scope.
func desktopEntryID(path string, section *ini.Section) string {
	if id := section.Key("X-Flatpak").String(); id != "" {
		return id
	}
	if id := section.Key("X-SnapInstanceName").String(); id != "" {
		return id
	}
	return strings.TrimSuffix(filepath.Base(path), ".desktop")
}

// localizedKey resolves a key through the desktop-entry locale
// fallback chain: each candidate locale is tried with and without its
// encoding and country parts before falling back to the bare key.
func localizedKey(section *ini.Section, name string) string {
	for _, locale := range localeCandidates() {
		if value := section.Key(name + "[" + locale + "]").String(); value != "" {
			return value
		}
	}
	return section.Key(name).String()
}

// localeCandidates expands the locale environment into lookup order:
// LC_MESSAGES beats LANGUAGE beats LANG beats LC_ALL, and each locale
// contributes its full form, its encoding-stripped form, and its
// country-stripped form.
func localeCandidates() []string {
	var candidates []string
	seen := make(map[string]struct{})
	add := func(locale string) {
		if locale == "" || locale == "C" || locale == "POSIX" {
			return
		}
		if _, dup := seen[locale]; dup {
			return
		}
		seen[locale] = struct{}{}
		candidates = append(candidates, locale)
	}

	for _, variable := range []string{"LC_MESSAGES", "LANGUAGE", "LANG", "LC_ALL"} {
		for _, locale := range strings.Split(os.Getenv(variable), ":") {
			add(locale)
			if stripped, _, ok := strings.Cut(locale, "."); ok {
				add(stripped)
			}
			if stripped, _, ok := strings.Cut(locale, "_"); ok {
				add(stripped)
			}
		}
	}
	return candidates
}

// loadDesktopEntries scans the applications directory under each data
// dir. Unreadable directories and malformed entries are skipped;
// entries in earlier dirs shadow later ones with the same id, which
// matches desktop-environment precedence.
func loadDesktopEntries(dataDirs []string) map[string]*App {
	apps := make(map[string]*App)
	for _, dir := range dataDirs {
		entries, err := os.ReadDir(filepath.Join(dir, "applications"))
		if err != nil {
			continue
		}
		for _, entry := range entries {
			if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".desktop") {
				continue
			}
			app, err := appFromDesktopEntry(filepath.Join(dir, "applications", entry.Name()))
			if err != nil || app == nil {
				continue
			}
			if _, shadowed := apps[app.ID]; shadowed {
				continue
			}
			apps[app.ID] = app
		}
	}
	return apps
}

// Processes returns the pids currently associated with this app.
func (a *App) Processes() []int32 {
	return a.processes
}

// IsRunning reports whether the app has at least one live process.
func (a *App) IsRunning() bool {
	return len(a.processes) > 0
}
