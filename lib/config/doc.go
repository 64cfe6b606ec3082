// Copyright 2026 The Resources Authors
// SPDX-License-Identifier: Apache-2.0

// Package config provides YAML configuration loading for the daemon.
//
// Configuration is loaded from a single file specified by either the
// RESOURCES_CONFIG environment variable (via [Load]) or a --config
// flag (via [LoadFile]). When neither is given, the built-in defaults
// are a complete working configuration, so a config file is optional.
//
// Variable expansion is performed on path fields after loading:
// ${HOME} and ${VAR:-default} patterns are expanded, one nesting level
// deep so the XDG idiom ${XDG_DATA_HOME:-${HOME}/.local/share} works.
// No other environment variables override config values.
//
// Key exports:
//
//   - [Config] -- master struct with Refresh, Producer, Paths, Drives
//   - [Default] -- returns the built-in defaults
//   - [Load] and [LoadFile] -- the two entry points for loading
//
// This package depends on no other packages in this module.
package config
