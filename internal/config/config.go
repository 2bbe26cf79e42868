// Package config handles loading and validating the regtriage.toml
// configuration file.
package config

import (
	"fmt"
	"os"
	"runtime"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

// Config is the top-level configuration.
type Config struct {
	Sources   SourcesConfig   `toml:"sources"`
	Window    WindowConfig    `toml:"window"`
	Output    OutputConfig    `toml:"output"`
	Artifacts map[string]bool `toml:"artifacts"`
	Baseline  BaselineConfig  `toml:"baseline"`
	Sigma     SigmaConfig     `toml:"sigma"`
}

// SourcesConfig selects where artifacts come from. Live and HiveDir are
// mutually exclusive; EVTX files can accompany either.
type SourcesConfig struct {
	// Live reads the running system's registry (Windows only).
	Live bool `toml:"live"`
	// HiveDir is a directory of exported hive files (SYSTEM, SOFTWARE,
	// SAM, NTUSER.DAT) from a mounted image.
	HiveDir string `toml:"hive_dir"`
	// EVTX lists event log files or directories to parse.
	EVTX []string `toml:"evtx"`
}

// WindowConfig bounds the timeline. Registry timestamps are UTC;
// be mindful that the window is interpreted in UTC as well.
type WindowConfig struct {
	Since string `toml:"since"` // RFC 3339, empty = unbounded
	Until string `toml:"until"`
}

// OutputConfig configures output behavior.
type OutputConfig struct {
	Dir     string `toml:"dir"`
	Format  string `toml:"format"` // jsonl | csv | both
	KeepRaw bool   `toml:"keep_raw"`
}

// BaselineConfig declares known-good artifacts on this host that should
// not be flagged. Matching artifacts are annotated, never dropped, so
// the evidence stays complete.
type BaselineConfig struct {
	// KnownPaths are directory or file path prefixes belonging to
	// trusted tools/operators. Example: ["D:\\tool", "C:\\monitoring"]
	KnownPaths []string `toml:"known_paths"`
	// KnownAccounts are local account names that are expected.
	KnownAccounts []string `toml:"known_accounts"`
	// KnownProcesses are executable names (without path) that are
	// known-good. Example: ["backup.exe"]
	KnownProcesses []string `toml:"known_processes"`
}

// SigmaConfig configures detection rule matching.
type SigmaConfig struct {
	// RulesDir holds additional Sigma rules loaded next to the
	// embedded set.
	RulesDir string `toml:"rules_dir"`
	// MinLevel suppresses event_log artifacts below this Windows log
	// level during noise filtering (0 = keep everything).
	MinLevel int `toml:"min_level"`
}

// Load reads a TOML config file and returns a validated Config.
// A missing file yields the defaults so `regtriage --live` works
// without any setup.
func Load(path string) (*Config, error) {
	cfg := &Config{
		Output: OutputConfig{
			Dir:     "output",
			Format:  "both",
			KeepRaw: true,
		},
		Artifacts: make(map[string]bool),
	}

	if _, err := toml.DecodeFile(path, cfg); err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("decode %s: %w", path, err)
		}
	}

	// Environment variable overrides
	if dir := os.Getenv("REGTRIAGE_HIVE_DIR"); dir != "" {
		cfg.Sources.HiveDir = dir
	}
	if dir := os.Getenv("REGTRIAGE_OUTPUT_DIR"); dir != "" {
		cfg.Output.Dir = dir
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Revalidate re-runs validation after CLI flags mutate the config.
func (c *Config) Revalidate() error {
	return c.validate()
}

func (c *Config) validate() error {
	c.Output.Format = strings.ToLower(c.Output.Format)
	switch c.Output.Format {
	case "jsonl", "csv", "both":
	case "":
		c.Output.Format = "both"
	default:
		return fmt.Errorf("unsupported output.format: %q (jsonl, csv, both)", c.Output.Format)
	}

	if c.Output.Dir == "" {
		c.Output.Dir = "output"
	}

	if c.Sources.Live && c.Sources.HiveDir != "" {
		return fmt.Errorf("sources.live and sources.hive_dir are mutually exclusive")
	}
	if c.Sources.Live && runtime.GOOS != "windows" {
		return fmt.Errorf("sources.live requires windows")
	}
	if c.Sources.HiveDir != "" {
		info, err := os.Stat(c.Sources.HiveDir)
		if err != nil {
			return fmt.Errorf("sources.hive_dir: %w", err)
		}
		if !info.IsDir() {
			return fmt.Errorf("sources.hive_dir is not a directory: %s", c.Sources.HiveDir)
		}
	}

	if _, _, err := c.ParseWindow(); err != nil {
		return err
	}
	return nil
}

// ParseWindow returns the configured time bounds. Zero times mean
// unbounded.
func (c *Config) ParseWindow() (since, until time.Time, err error) {
	if c.Window.Since != "" {
		since, err = time.Parse(time.RFC3339, c.Window.Since)
		if err != nil {
			return since, until, fmt.Errorf("window.since: %w", err)
		}
	}
	if c.Window.Until != "" {
		until, err = time.Parse(time.RFC3339, c.Window.Until)
		if err != nil {
			return since, until, fmt.Errorf("window.until: %w", err)
		}
	}
	if !since.IsZero() && !until.IsZero() && until.Before(since) {
		return since, until, fmt.Errorf("window.until is before window.since")
	}
	return since.UTC(), until.UTC(), nil
}
