package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/caarlos0/env/v11"
	"github.com/lucasb-eyer/go-colorful"

	"github.com/arcanaland/cardcheck/internal/progress"
)

// DefaultDepth is the default maximum folder depth below the scan root
const DefaultDepth = 3

// Color modes for status output
const (
	ColorAuto   = "auto"
	ColorAlways = "always"
	ColorNever  = "never"
)

// Config represents the application configuration
type Config struct {
	Depth    int            `toml:"depth" env:"DEPTH"`
	Verbose  bool           `toml:"verbose" env:"VERBOSE"`
	Color    string         `toml:"color" env:"COLOR"`
	Progress ProgressConfig `toml:"progress" envPrefix:"PROGRESS_"`
}

// ProgressConfig represents the [progress] table
type ProgressConfig struct {
	Style        string `toml:"style" env:"STYLE"`
	GradientFrom string `toml:"gradient_from" env:"GRADIENT_FROM"`
	GradientTo   string `toml:"gradient_to" env:"GRADIENT_TO"`
}

// Default returns the configuration used when no file or environment overrides exist
func Default() Config {
	return Config{
		Depth: DefaultDepth,
		Color: ColorAuto,
		Progress: ProgressConfig{
			Style: string(progress.StyleAuto),
		},
	}
}

// GetXDGConfigHome returns XDG_CONFIG_HOME or default path
func GetXDGConfigHome() string {
	if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
		return xdgConfig
	}
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(homeDir, ".config")
}

// GetConfigFilePath returns the path to the config file. CARDCHECK_CONFIG overrides it.
func GetConfigFilePath() string {
	if p := os.Getenv("CARDCHECK_CONFIG"); p != "" {
		return p
	}
	return filepath.Join(GetXDGConfigHome(), "cardcheck", "config.toml")
}

// LoadConfig loads defaults, then the config file if present, then CARDCHECK_* environment variables.
// The file is only ever read.
func LoadConfig() (*Config, error) {
	cfg := Default()

	if err := decodeFile(GetConfigFilePath(), &cfg); err != nil {
		return nil, err
	}

	if err := env.ParseWithOptions(&cfg, env.Options{Prefix: "CARDCHECK_"}); err != nil {
		return nil, fmt.Errorf("error parsing environment: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// decodeFile overlays the TOML file at path onto cfg. A missing file is not an error.
func decodeFile(path string, cfg *Config) error {
	if path == "" {
		return nil
	}
	md, err := toml.DecodeFile(path, cfg)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("error decoding config file %s: %w", path, err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		return fmt.Errorf("unknown keys in config file %s: %s", path, strings.Join(keys, ", "))
	}
	return nil
}

// Validate checks mode names and colours
func (c *Config) Validate() error {
	switch c.Color {
	case ColorAuto, ColorAlways, ColorNever:
	default:
		return fmt.Errorf("invalid color mode %q (want auto, always or never)", c.Color)
	}

	if _, err := progress.ParseStyle(c.Progress.Style); err != nil {
		return err
	}

	if (c.Progress.GradientFrom == "") != (c.Progress.GradientTo == "") {
		return fmt.Errorf("progress gradient needs both gradient_from and gradient_to")
	}
	for _, hex := range []string{c.Progress.GradientFrom, c.Progress.GradientTo} {
		if hex == "" {
			continue
		}
		if _, err := colorful.Hex(hex); err != nil {
			return fmt.Errorf("invalid progress colour %q: %w", hex, err)
		}
	}
	return nil
}

// ProgressStyle returns the parsed progress style. Validate must have passed.
func (c *Config) ProgressStyle() progress.Style {
	st, _ := progress.ParseStyle(c.Progress.Style)
	return st
}
