// Package config holds all configuration types and loading logic for WallCue.
// Config structure never shrinks — fields are only added, never renamed or removed.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration for a WallCue server instance.
type Config struct {
	Node     NodeConfig    `yaml:"node"`
	OSC      OSCConfig     `yaml:"osc"`
	Messages MessageConfig `yaml:"messages"`
	Sync     SyncConfig    `yaml:"sync"`
	Auth     AuthConfig    `yaml:"auth"`
	Metrics  MetricsConfig `yaml:"metrics"`
}

// NodeConfig holds identity and network settings for this device.
type NodeConfig struct {
	// ID is a ULID string. Use "auto" to generate and persist one on first start.
	ID      string `yaml:"id"`
	Host    string `yaml:"host"`
	Port    int    `yaml:"port"`
	DataDir string `yaml:"data_dir"`
}

// OSCConfig addresses the video engine that drives the LED wall.
type OSCConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
	// Layer is the composition layer holding the text clips.
	Layer int `yaml:"layer"`
	// StartingClip is the first of the three rotation clips. The clear clip
	// is always StartingClip+3 and is not configurable.
	StartingClip int `yaml:"starting_clip"`
}

// MessageConfig controls the message lifecycle.
type MessageConfig struct {
	// Countdown is how long a sent message stays live before expiring.
	// Zero disables expiration.
	Countdown string `yaml:"countdown"`
	// DedupCooldown suppresses repeat dispatches of an already-sent message.
	DedupCooldown string `yaml:"dedup_cooldown"`
	// SweepInterval is how often the expiration sweep runs.
	SweepInterval string `yaml:"sweep_interval"`
	// AutoCycleInterval paces the automatic queue rotation when enabled.
	AutoCycleInterval string `yaml:"auto_cycle_interval"`
}

// SyncConfig controls peer-device synchronization.
type SyncConfig struct {
	// Peers lists the host:port addresses of other WallCue devices.
	Peers []string `yaml:"peers"`
	// HeartbeatInterval paces liveness announcements to peers.
	HeartbeatInterval string `yaml:"heartbeat_interval"`
	// WallOwner marks the one device that drives the physical wall.
	WallOwner bool `yaml:"wall_owner"`
	// SettingsAuthority marks the device whose OSC settings win.
	SettingsAuthority bool `yaml:"settings_authority"`
}

// AuthConfig controls API key authentication.
type AuthConfig struct {
	Enabled bool   `yaml:"enabled"`
	APIKey  string `yaml:"api_key"`
}

// MetricsConfig controls the Prometheus metrics endpoint.
type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`
}

// Default returns a Config populated with safe, sensible defaults.
// It is the canonical source of truth for default values.
func Default() *Config {
	return &Config{
		Node: NodeConfig{
			ID:      "auto",
			Host:    "0.0.0.0",
			Port:    8080,
			DataDir: "./data",
		},
		OSC: OSCConfig{
			Host:         "127.0.0.1",
			Port:         2269,
			Layer:        1,
			StartingClip: 1,
		},
		Messages: MessageConfig{
			Countdown:         "10m",
			DedupCooldown:     "30s",
			SweepInterval:     "15s",
			AutoCycleInterval: "45s",
		},
		Sync: SyncConfig{
			Peers:             []string{},
			HeartbeatInterval: "10s",
			WallOwner:         true,
			SettingsAuthority: true,
		},
		Auth: AuthConfig{
			Enabled: false,
			APIKey:  "",
		},
		Metrics: MetricsConfig{
			Enabled: true,
		},
	}
}

// Load reads a YAML config file at path and overlays it on top of Default().
// If the file does not exist the default config is returned without error,
// making it easy to run WallCue with no config file at all.
//
// After loading the file, environment variables are applied as overrides:
//
//	WALLCUE_API_KEY    — sets auth.api_key and enables auth (auth.enabled = true)
//	WALLCUE_DATA_DIR   — sets node.data_dir
//	WALLCUE_PORT       — sets node.port
//	WALLCUE_OSC_HOST   — sets osc.host
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			applyEnv(cfg)
			return cfg, nil
		}
		return nil, err
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}

	applyEnv(cfg)
	return cfg, nil
}

// applyEnv overlays environment variable overrides onto cfg.
func applyEnv(cfg *Config) {
	if v := os.Getenv("WALLCUE_API_KEY"); v != "" {
		cfg.Auth.APIKey = v
		cfg.Auth.Enabled = true
	}
	if v := os.Getenv("WALLCUE_DATA_DIR"); v != "" {
		cfg.Node.DataDir = v
	}
	if v := os.Getenv("WALLCUE_PORT"); v != "" {
		var p int
		if _, err := fmt.Sscanf(v, "%d", &p); err == nil && p > 0 {
			cfg.Node.Port = p
		}
	}
	if v := os.Getenv("WALLCUE_OSC_HOST"); v != "" {
		cfg.OSC.Host = v
	}
}

// Validate checks that the config values are consistent and within acceptable
// ranges. It returns the first error found.
func (c *Config) Validate() error {
	if c.Node.Port < 1 || c.Node.Port > 65535 {
		return errors.New("node.port must be between 1 and 65535")
	}
	if c.Node.DataDir == "" {
		return errors.New("node.data_dir must not be empty")
	}
	if c.OSC.Host == "" {
		return errors.New("osc.host must not be empty")
	}
	if c.OSC.Port < 1 || c.OSC.Port > 65535 {
		return errors.New("osc.port must be between 1 and 65535")
	}
	if c.OSC.Layer < 1 {
		return errors.New("osc.layer must be at least 1")
	}
	if c.OSC.StartingClip < 1 {
		return errors.New("osc.starting_clip must be at least 1")
	}
	for _, field := range []struct {
		name, value string
	}{
		{"messages.countdown", c.Messages.Countdown},
		{"messages.dedup_cooldown", c.Messages.DedupCooldown},
		{"messages.sweep_interval", c.Messages.SweepInterval},
		{"messages.auto_cycle_interval", c.Messages.AutoCycleInterval},
		{"sync.heartbeat_interval", c.Sync.HeartbeatInterval},
	} {
		if field.value == "" {
			continue
		}
		if _, err := time.ParseDuration(field.value); err != nil {
			return fmt.Errorf("%s: invalid duration %q", field.name, field.value)
		}
	}
	if c.Auth.Enabled && c.Auth.APIKey == "" {
		return errors.New("auth.api_key must be set when auth.enabled is true")
	}
	return nil
}

// Duration parses one of the config's duration strings, falling back to def
// when the string is empty. Call Validate first; a malformed value here is a
// programming error and returns def.
func Duration(s string, def time.Duration) time.Duration {
	if s == "" {
		return def
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return def
	}
	return d
}
