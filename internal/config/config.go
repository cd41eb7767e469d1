package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/marcelocantos/subby/pipeline"
)

// Config holds the global subby configuration.
type Config struct {
	Run   RunConfig   `yaml:"run"`
	Audit AuditConfig `yaml:"audit"`
	Log   LogConfig   `yaml:"log"`
}

// RunConfig supplies pipeline defaults. Durations use time.ParseDuration
// syntax ("30s", "1m").
type RunConfig struct {
	Mode               string `yaml:"mode"`
	Timeout            string `yaml:"timeout"`
	AllowedReturnCodes []int  `yaml:"allowed_return_codes"`
	CaptureStderr      *bool  `yaml:"capture_stderr"`
	Echo               *bool  `yaml:"echo"`
	Shell              string `yaml:"shell"`
	KillGrace          string `yaml:"kill_grace"`
}

// AuditConfig controls audit log settings.
type AuditConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// LogConfig controls diagnostic logging on stderr.
type LogConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // text or json
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	home, _ := os.UserHomeDir()
	return &Config{
		Run: RunConfig{
			Mode: "text",
		},
		Audit: AuditConfig{
			Enabled: true,
			Path:    filepath.Join(home, ".local", "share", "subby", "audit.jsonl"),
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load reads the config from the standard location (~/.config/subby/config.yaml).
// If the file doesn't exist, returns the default config.
func Load() (*Config, error) {
	if _, err := os.UserHomeDir(); err != nil {
		return DefaultConfig(), nil
	}
	return LoadFrom(ConfigPath())
}

// LoadFrom reads the config from the given path.
func LoadFrom(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return DefaultConfig(), nil
		}
		return nil, fmt.Errorf("read config: %w", err)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	cfg.Audit.Path = expandHome(cfg.Audit.Path)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks values that YAML cannot type-check.
func (c *Config) Validate() error {
	if _, err := pipeline.ParseMode(c.Run.Mode); err != nil {
		return fmt.Errorf("run.mode: %w", err)
	}
	if _, err := parseDuration(c.Run.Timeout); err != nil {
		return fmt.Errorf("run.timeout: %w", err)
	}
	if _, err := parseDuration(c.Run.KillGrace); err != nil {
		return fmt.Errorf("run.kill_grace: %w", err)
	}
	switch c.Log.Format {
	case "", "text", "json":
	default:
		return fmt.Errorf("log.format: unknown format %q", c.Log.Format)
	}
	return nil
}

// ApplyTo overlays the run defaults onto cfg. Unset fields leave cfg alone.
func (r *RunConfig) ApplyTo(cfg *pipeline.Config) error {
	mode, err := pipeline.ParseMode(r.Mode)
	if err != nil {
		return err
	}
	cfg.Mode = mode

	timeout, err := parseDuration(r.Timeout)
	if err != nil {
		return fmt.Errorf("timeout: %w", err)
	}
	if timeout > 0 {
		cfg.Timeout = timeout
	}
	grace, err := parseDuration(r.KillGrace)
	if err != nil {
		return fmt.Errorf("kill_grace: %w", err)
	}
	if grace > 0 {
		cfg.KillGrace = grace
	}

	if len(r.AllowedReturnCodes) > 0 {
		cfg.AllowedReturnCodes = append([]int(nil), r.AllowedReturnCodes...)
	}
	if r.CaptureStderr != nil {
		cfg.CaptureStderr = *r.CaptureStderr
	}
	if r.Echo != nil {
		cfg.Echo = *r.Echo
	}
	if r.Shell != "" {
		cfg.Shell = r.Shell
	}
	return nil
}

// ConfigPath returns the standard config file path.
func ConfigPath() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".config", "subby", "config.yaml")
}

func parseDuration(s string) (time.Duration, error) {
	if s == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, err
	}
	if d < 0 {
		return 0, fmt.Errorf("negative duration %s", s)
	}
	return d, nil
}

func expandHome(path string) string {
	if path == "" || path[0] != '~' {
		return path
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, path[1:])
}
