package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rcalder/wallcue/internal/config"
)

func writeFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestDefaultIsValid(t *testing.T) {
	cfg := config.Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
	if cfg.OSC.Port != 2269 {
		t.Errorf("default osc.port = %d, want 2269", cfg.OSC.Port)
	}
	if cfg.OSC.StartingClip != 1 {
		t.Errorf("default osc.starting_clip = %d, want 1", cfg.OSC.StartingClip)
	}
	if cfg.Messages.DedupCooldown != "30s" {
		t.Errorf("default dedup_cooldown = %q, want 30s", cfg.Messages.DedupCooldown)
	}
	if cfg.Messages.SweepInterval != "15s" {
		t.Errorf("default sweep_interval = %q, want 15s", cfg.Messages.SweepInterval)
	}
}

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := config.Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Node.Port != config.Default().Node.Port {
		t.Errorf("missing file should produce defaults")
	}
}

func TestLoadOverlaysFileOnDefaults(t *testing.T) {
	path := writeFile(t, `
node:
  port: 9999
osc:
  host: 10.1.2.3
  layer: 4
  starting_clip: 5
sync:
  peers: ["10.1.2.4:8080"]
  wall_owner: false
`)
	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Node.Port != 9999 {
		t.Errorf("node.port = %d, want 9999", cfg.Node.Port)
	}
	if cfg.OSC.Host != "10.1.2.3" || cfg.OSC.Layer != 4 || cfg.OSC.StartingClip != 5 {
		t.Errorf("osc section not overlaid: %+v", cfg.OSC)
	}
	if cfg.OSC.Port != 2269 {
		t.Errorf("untouched osc.port = %d, want default 2269", cfg.OSC.Port)
	}
	if len(cfg.Sync.Peers) != 1 || cfg.Sync.Peers[0] != "10.1.2.4:8080" {
		t.Errorf("sync.peers = %v", cfg.Sync.Peers)
	}
	if cfg.Sync.WallOwner {
		t.Error("sync.wall_owner should be false")
	}
}

func TestLoadMalformedYAML(t *testing.T) {
	path := writeFile(t, "node: [not: a: mapping")
	if _, err := config.Load(path); err == nil {
		t.Fatal("expected error for malformed YAML")
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("WALLCUE_API_KEY", "secret-key")
	t.Setenv("WALLCUE_DATA_DIR", "/var/lib/wallcue")
	t.Setenv("WALLCUE_PORT", "7777")
	t.Setenv("WALLCUE_OSC_HOST", "192.168.1.50")

	cfg, err := config.Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if !cfg.Auth.Enabled || cfg.Auth.APIKey != "secret-key" {
		t.Errorf("auth not enabled by env: %+v", cfg.Auth)
	}
	if cfg.Node.DataDir != "/var/lib/wallcue" {
		t.Errorf("data_dir = %q", cfg.Node.DataDir)
	}
	if cfg.Node.Port != 7777 {
		t.Errorf("port = %d", cfg.Node.Port)
	}
	if cfg.OSC.Host != "192.168.1.50" {
		t.Errorf("osc.host = %q", cfg.OSC.Host)
	}
}

func TestEnvPortIgnoredWhenInvalid(t *testing.T) {
	t.Setenv("WALLCUE_PORT", "not-a-port")
	cfg, err := config.Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Node.Port != config.Default().Node.Port {
		t.Errorf("port = %d, want default", cfg.Node.Port)
	}
}

func TestValidateErrors(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*config.Config)
	}{
		{"zero node port", func(c *config.Config) { c.Node.Port = 0 }},
		{"huge node port", func(c *config.Config) { c.Node.Port = 70000 }},
		{"empty data dir", func(c *config.Config) { c.Node.DataDir = "" }},
		{"empty osc host", func(c *config.Config) { c.OSC.Host = "" }},
		{"zero osc port", func(c *config.Config) { c.OSC.Port = 0 }},
		{"zero layer", func(c *config.Config) { c.OSC.Layer = 0 }},
		{"zero starting clip", func(c *config.Config) { c.OSC.StartingClip = 0 }},
		{"bad countdown", func(c *config.Config) { c.Messages.Countdown = "tomorrow" }},
		{"bad heartbeat", func(c *config.Config) { c.Sync.HeartbeatInterval = "10 parsecs" }},
		{"auth without key", func(c *config.Config) { c.Auth.Enabled = true; c.Auth.APIKey = "" }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := config.Default()
			tc.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Errorf("expected validation error")
			}
		})
	}
}

func TestDurationHelper(t *testing.T) {
	if got := config.Duration("90s", time.Minute); got != 90*time.Second {
		t.Errorf("Duration(90s) = %v", got)
	}
	if got := config.Duration("", time.Minute); got != time.Minute {
		t.Errorf("Duration(empty) = %v, want fallback", got)
	}
	if got := config.Duration("garbage", time.Minute); got != time.Minute {
		t.Errorf("Duration(garbage) = %v, want fallback", got)
	}
}
