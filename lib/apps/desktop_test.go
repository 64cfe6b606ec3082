// Copyright 2026 The Resources Authors
// SPDX-License-Identifier: Apache-2.0

package apps

import (
	"os"
	"path/filepath"
	"testing"
)

func writeDesktopEntry(t *testing.T, dir, name, content string) string {
	t.Helper()
	appsDir := filepath.Join(dir, "applications")
	if err := os.MkdirAll(appsDir, 0755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	path := filepath.Join(appsDir, name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
	return path
}

func TestAppFromDesktopEntry(t *testing.T) {
	path := writeDesktopEntry(t, t.TempDir(), "org.gnome.Builder.desktop", `[Desktop Entry]
Name=Builder
Comment=An IDE for GNOME
Icon=org.gnome.Builder
Exec=gnome-builder %U
Type=Application
`)

	app, err := appFromDesktopEntry(path)
	if err != nil {
		t.Fatalf("appFromDesktopEntry: %v", err)
	}
	if app.ID != "org.gnome.Builder" {
		t.Errorf("ID = %q", app.ID)
	}
	if app.DisplayName != "Builder" || app.Description != "An IDE for GNOME" {
		t.Errorf("name/description = %q/%q", app.DisplayName, app.Description)
	}
	if app.Commandline != "gnome-builder" || app.Executable != "gnome-builder" {
		t.Errorf("commandline/executable = %q/%q", app.Commandline, app.Executable)
	}
}

func TestAppFromDesktopEntry_FlatpakID(t *testing.T) {
	path := writeDesktopEntry(t, t.TempDir(), "firefox.desktop", `[Desktop Entry]
Name=Firefox
Exec=/app/bin/firefox
X-Flatpak=org.mozilla.firefox
`)

	app, err := appFromDesktopEntry(path)
	if err != nil {
		t.Fatalf("appFromDesktopEntry: %v", err)
	}
	if app.ID != "org.mozilla.firefox" {
		t.Errorf("ID = %q, want the Flatpak identity", app.ID)
	}
}

func TestAppFromDesktopEntry_NoDisplay(t *testing.T) {
	path := writeDesktopEntry(t, t.TempDir(), "hidden.desktop", `[Desktop Entry]
Name=Hidden Helper
NoDisplay=true
`)

	app, err := appFromDesktopEntry(path)
	if err != nil {
		t.Fatalf("appFromDesktopEntry: %v", err)
	}
	if app != nil {
		t.Errorf("NoDisplay entry produced app %+v", app)
	}
}

func TestAppFromDesktopEntry_LocalizedName(t *testing.T) {
	t.Setenv("LC_MESSAGES", "de_DE.UTF-8")
	t.Setenv("LANGUAGE", "")
	t.Setenv("LANG", "")
	t.Setenv("LC_ALL", "")

	path := writeDesktopEntry(t, t.TempDir(), "org.example.Files.desktop", `[Desktop Entry]
Name=Files
Name[de]=Dateien
Exec=files
`)

	app, err := appFromDesktopEntry(path)
	if err != nil {
		t.Fatalf("appFromDesktopEntry: %v", err)
	}
	// de_DE.UTF-8 has no exact key; the language-stripped variant
	// "de" must be found before the unlocalized fallback.
	if app.DisplayName != "Dateien" {
		t.Errorf("DisplayName = %q, want localized %q", app.DisplayName, "Dateien")
	}
}

func TestLoadDesktopEntries_EarlierDirsShadow(t *testing.T) {
	first := t.TempDir()
	second := t.TempDir()
	writeDesktopEntry(t, first, "org.example.App.desktop", "[Desktop Entry]\nName=First\n")
	writeDesktopEntry(t, second, "org.example.App.desktop", "[Desktop Entry]\nName=Second\n")
	writeDesktopEntry(t, second, "org.example.Other.desktop", "[Desktop Entry]\nName=Other\n")

	apps := loadDesktopEntries([]string{first, second, filepath.Join(first, "missing")})
	if len(apps) != 2 {
		t.Fatalf("got %d apps, want 2", len(apps))
	}
	if apps["org.example.App"].DisplayName != "First" {
		t.Errorf("shadowing broken: %q", apps["org.example.App"].DisplayName)
	}
}

func TestNewAppsContextHasSystemBucket(t *testing.T) {
	context := NewAppsContext([]string{t.TempDir()})
	system := context.App("")
	if system == nil || system.DisplayName != systemProcessesName {
		t.Fatalf("system bucket = %+v", system)
	}
}
