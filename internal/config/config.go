package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all tcpmon configuration.
type Config struct {
	RefreshInterval time.Duration `yaml:"refresh_interval"`
	CycleTimeout    time.Duration `yaml:"cycle_timeout"` // must be below refresh_interval
	HistorySize     int           `yaml:"history_size"`
	Source          string        `yaml:"source"` // "gopsutil" or "lsof"
	SuspiciousPorts []uint32      `yaml:"suspicious_ports"`
	Filter          string        `yaml:"filter"`
	MetricsAddr     string        `yaml:"metrics_addr"`
	LogLevel        string        `yaml:"log_level"`
	LogFile         string        `yaml:"log_file"`
	ColorEnabled    bool          `yaml:"color_enabled"`
}

// Sources accepted in the source field.
var validSources = map[string]bool{
	"gopsutil": true,
	"lsof":     true,
}

// Default returns a Config with sensible default values.
func Default() *Config {
	return &Config{
		RefreshInterval: 2 * time.Second,
		CycleTimeout:    1500 * time.Millisecond,
		HistorySize:     30,
		Source:          "gopsutil",
		SuspiciousPorts: []uint32{21, 22, 23, 25, 1337, 3389, 4444, 6666},
		Filter:          "",
		MetricsAddr:     ":9137",
		LogLevel:        "info",
		LogFile:         "",
		ColorEnabled:    true,
	}
}

// Load loads config from the given path. If path is empty, it uses the
// default location (~/.config/tcpmon/config.yaml). If the file does not
// exist, it returns defaults without creating the file.
func Load(path string) (*Config, error) {
	if path == "" {
		path = DefaultPath()
		if path == "" {
			return Default(), nil
		}
	}

	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return Default(), nil
	}

	return LoadFrom(path)
}

// LoadFrom loads and parses config from the given path. Missing fields
// keep their default values.
func LoadFrom(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config file %s: %w", path, err)
	}

	return cfg, nil
}

// Validate checks the values that would make the monitor misbehave.
func (c *Config) Validate() error {
	var errs []error

	if c.RefreshInterval <= 0 {
		errs = append(errs, fmt.Errorf("refresh_interval must be positive, got %s", c.RefreshInterval))
	}
	if c.CycleTimeout < 0 {
		errs = append(errs, fmt.Errorf("cycle_timeout must not be negative, got %s", c.CycleTimeout))
	}
	if c.RefreshInterval > 0 && c.CycleTimeout >= c.RefreshInterval {
		errs = append(errs, fmt.Errorf("cycle_timeout (%s) must be below refresh_interval (%s)", c.CycleTimeout, c.RefreshInterval))
	}
	if c.HistorySize < 1 {
		errs = append(errs, fmt.Errorf("history_size must be at least 1, got %d", c.HistorySize))
	}
	if !validSources[c.Source] {
		errs = append(errs, fmt.Errorf("unknown source %q (use gopsutil or lsof)", c.Source))
	}
	for _, p := range c.SuspiciousPorts {
		if p < 1 || p > 65535 {
			errs = append(errs, fmt.Errorf("suspicious port %d out of range 1-65535", p))
		}
	}

	return errors.Join(errs...)
}

// Save marshals the config to YAML and writes it to the given path,
// creating parent directories as needed.
func (c *Config) Save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// DefaultPath returns the default config file path.
func DefaultPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".config", "tcpmon", "config.yaml")
}
