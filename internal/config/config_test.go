package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/marcelocantos/subby/pipeline"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadMissingReturnsDefaults(t *testing.T) {
	cfg, err := LoadFrom(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Run.Mode != "text" || !cfg.Audit.Enabled || cfg.Log.Level != "info" {
		t.Errorf("unexpected defaults %+v", cfg)
	}
	if !strings.HasSuffix(cfg.Audit.Path, filepath.Join("subby", "audit.jsonl")) {
		t.Errorf("audit path = %q", cfg.Audit.Path)
	}
}

func TestLoadOverrides(t *testing.T) {
	path := writeConfig(t, `
run:
  mode: raw
  timeout: 30s
  allowed_return_codes: [0, 1]
  capture_stderr: false
  shell: /bin/sh
  kill_grace: 500ms
audit:
  enabled: false
  path: ~/logs/audit.jsonl
log:
  level: debug
  format: json
`)
	cfg, err := LoadFrom(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Audit.Enabled {
		t.Error("audit should be disabled")
	}
	home, _ := os.UserHomeDir()
	if want := filepath.Join(home, "logs", "audit.jsonl"); cfg.Audit.Path != want {
		t.Errorf("audit path = %q, want %q", cfg.Audit.Path, want)
	}
	if cfg.Log.Format != "json" {
		t.Errorf("log format = %q", cfg.Log.Format)
	}

	pc := pipeline.DefaultConfig()
	if err := cfg.Run.ApplyTo(&pc); err != nil {
		t.Fatal(err)
	}
	if pc.Mode != pipeline.ModeRaw {
		t.Errorf("mode = %s", pc.Mode)
	}
	if pc.Timeout != 30*time.Second || pc.KillGrace != 500*time.Millisecond {
		t.Errorf("durations = %s, %s", pc.Timeout, pc.KillGrace)
	}
	if len(pc.AllowedReturnCodes) != 2 || pc.AllowedReturnCodes[1] != 1 {
		t.Errorf("allowed = %v", pc.AllowedReturnCodes)
	}
	if pc.CaptureStderr {
		t.Error("capture_stderr should be off")
	}
	if !pc.Echo {
		t.Error("unset echo should keep the default")
	}
	if pc.Shell != "/bin/sh" {
		t.Errorf("shell = %q", pc.Shell)
	}
}

func TestLoadRejectsBadValues(t *testing.T) {
	cases := map[string]string{
		"mode":       "run: {mode: hex}",
		"timeout":    "run: {timeout: soon}",
		"negative":   "run: {kill_grace: -1s}",
		"log format": "log: {format: xml}",
		"yaml":       "run: [",
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := LoadFrom(writeConfig(t, body)); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}

func TestBadModeWrapsSentinel(t *testing.T) {
	_, err := LoadFrom(writeConfig(t, "run: {mode: hex}"))
	if !errors.Is(err, pipeline.ErrInvalidOption) {
		t.Errorf("expected ErrInvalidOption, got %v", err)
	}
}
