// Copyright 2026 The Resources Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the daemon configuration.
type Config struct {
	// Refresh configures the sampling loop.
	Refresh RefreshConfig `yaml:"refresh"`

	// Producer configures the companion process-data producer.
	Producer ProducerConfig `yaml:"producer"`

	// Paths configures data file and helper binary locations.
	Paths PathsConfig `yaml:"paths"`

	// Drives configures block device enumeration.
	Drives DrivesConfig `yaml:"drives"`
}

// RefreshConfig configures the sampling loop.
type RefreshConfig struct {
	// Interval between snapshots. Default: 2s.
	Interval time.Duration `yaml:"interval"`
}

// ProducerConfig configures the companion producer process.
type ProducerConfig struct {
	// Binary is the producer executable name. Resolved via
	// Paths.Bin first, then PATH. Default: resources-processes.
	Binary string `yaml:"binary"`

	// ReadTimeout bounds how long a single batch read may take
	// before the producer is considered wedged and restarted.
	// Default: 5s.
	ReadTimeout time.Duration `yaml:"read_timeout"`
}

// PathsConfig configures file locations.
type PathsConfig struct {
	// Bin is where the helper binaries are installed. When set,
	// helpers resolve here before falling back to PATH.
	Bin string `yaml:"bin"`

	// DataDirs are the directories scanned for .desktop entries.
	// Defaults follow the XDG data search order.
	DataDirs []string `yaml:"data_dirs"`

	// PCIIDs is the hardware database used for vendor and device
	// names. Default: /usr/share/hwdata/pci.ids.
	PCIIDs string `yaml:"pci_ids"`

	// AmdgpuIDs maps AMD device and revision ids to marketing
	// names. Default: /usr/share/libdrm/amdgpu.ids.
	AmdgpuIDs string `yaml:"amdgpu_ids"`
}

// DrivesConfig configures block device enumeration.
type DrivesConfig struct {
	// IncludeVirtual includes loop, ram, and zram devices.
	// Default: false.
	IncludeVirtual bool `yaml:"include_virtual"`
}

// Default returns the default configuration. These defaults are a
// complete working configuration; a config file only overrides them.
func Default() *Config {
	return &Config{
		Refresh: RefreshConfig{
			Interval: 2 * time.Second,
		},
		Producer: ProducerConfig{
			Binary:      "resources-processes",
			ReadTimeout: 5 * time.Second,
		},
		Paths: PathsConfig{
			DataDirs: []string{
				"${XDG_DATA_HOME:-${HOME}/.local/share}",
				"/usr/share",
				"/usr/local/share",
				"/var/lib/flatpak/exports/share",
				"${HOME}/.local/share/flatpak/exports/share",
				"/run/host/usr/share",
			},
			PCIIDs:    "/usr/share/hwdata/pci.ids",
			AmdgpuIDs: "/usr/share/libdrm/amdgpu.ids",
		},
		Drives: DrivesConfig{
			IncludeVirtual: false,
		},
	}
}

// Load loads configuration from the path in the RESOURCES_CONFIG
// environment variable, or returns the defaults when it is unset.
func Load() (*Config, error) {
	configPath := os.Getenv("RESOURCES_CONFIG")
	if configPath == "" {
		return Default(), nil
	}
	return LoadFile(configPath)
}

// LoadFile loads configuration from a specific file path, merging it
// over the defaults. The only expansion performed is ${VAR} and
// ${VAR:-default} in path entries, for portability across home
// directories.
func LoadFile(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}

	cfg.expandVariables()
	return cfg, nil
}

// expandVariables expands ${VAR} and ${VAR:-default} patterns in the
// path fields.
func (c *Config) expandVariables() {
	vars := map[string]string{
		"HOME": os.Getenv("HOME"),
	}

	c.Paths.Bin = expandVars(c.Paths.Bin, vars)
	for i, dir := range c.Paths.DataDirs {
		c.Paths.DataDirs[i] = expandVars(dir, vars)
	}
	c.Paths.PCIIDs = expandVars(c.Paths.PCIIDs, vars)
	c.Paths.AmdgpuIDs = expandVars(c.Paths.AmdgpuIDs, vars)
}

// expandVars expands ${VAR} and ${VAR:-default} patterns. Nested
// defaults expand one level deep, which covers the XDG idiom
// ${XDG_DATA_HOME:-${HOME}/.local/share}.
var varPattern = regexp.MustCompile(`\$\{([^}:]+)(?::-([^}]*))?\}`)

func expandVars(s string, vars map[string]string) string {
	for i := 0; i < 2; i++ {
		if !varPattern.MatchString(s) {
			break
		}
		s = varPattern.ReplaceAllStringFunc(s, func(match string) string {
			parts := varPattern.FindStringSubmatch(match)
			if len(parts) < 2 {
				return match
			}

			name := parts[1]
			defaultValue := ""
			if len(parts) >= 3 {
				defaultValue = parts[2]
			}

			// Check provided vars first, then environment.
			if value, ok := vars[name]; ok && value != "" {
				return value
			}
			if value := os.Getenv(name); value != "" {
				return value
			}
			return defaultValue
		})
	}
	return s
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	var errs []error

	if c.Refresh.Interval <= 0 {
		errs = append(errs, fmt.Errorf("refresh.interval must be positive, got %s", c.Refresh.Interval))
	}

	if c.Producer.Binary == "" {
		errs = append(errs, fmt.Errorf("producer.binary is required"))
	}
	if c.Producer.ReadTimeout <= 0 {
		errs = append(errs, fmt.Errorf("producer.read_timeout must be positive, got %s", c.Producer.ReadTimeout))
	}

	if len(c.Paths.DataDirs) == 0 {
		errs = append(errs, fmt.Errorf("paths.data_dirs must not be empty"))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

// BinaryPath returns the full path to a helper binary. It looks in
// Paths.Bin first, then falls back to exec.LookPath. This provides
// hermetic binary resolution when Bin is configured.
func (c *Config) BinaryPath(name string) (string, error) {
	if c.Paths.Bin != "" {
		binPath := filepath.Join(c.Paths.Bin, name)
		if _, err := os.Stat(binPath); err == nil {
			return binPath, nil
		}
	}

	path, err := exec.LookPath(name)
	if err != nil {
		if c.Paths.Bin != "" {
			return "", fmt.Errorf("%s not found in %s or PATH", name, c.Paths.Bin)
		}
		return "", fmt.Errorf("%s not found in PATH", name)
	}
	return path, nil
}
