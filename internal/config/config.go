// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package config loads the harnessd daemon's configuration, following
// trellis's internal/config/loader.go pattern exactly: read file bytes,
// unmarshal HJSON into a map, round-trip through encoding/json into a
// typed struct, then apply defaults.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/hjson/hjson-go/v4"
)

// Config is the daemon's full configuration.
type Config struct {
	Listen       ListenConfig `json:"listen"`
	Auth         AuthConfig   `json:"auth"`
	RuntimeDir   string       `json:"runtime_dir"`
	SnapshotPath string       `json:"snapshot_path"`
	SeedFile     string       `json:"seed_file"`

	RingBufferBytes   int           `json:"ring_buffer_bytes"`
	ExitGraceTTL      time.Duration `json:"-"`
	ExitGraceTTLRaw   string        `json:"exit_grace_ttl"`
	SubscriptionQueue int           `json:"subscription_queue_depth"`
	RetentionPerSub   int           `json:"retention_per_subscription"`
	ShutdownGraceRaw  string        `json:"shutdown_grace"`
	ShutdownGrace     time.Duration `json:"-"`

	Admin AdminConfig `json:"admin"`
}

// ListenConfig is the control-plane listener address.
type ListenConfig struct {
	Network string `json:"network"` // "tcp" or "unix"
	Address string `json:"address"`
}

// AuthConfig carries the bearer token compared byte-exact during the
// auth handshake (spec §6).
type AuthConfig struct {
	Token string `json:"token"`
}

// AdminConfig configures the additive read-only admin HTTP surface
// (SPEC_FULL.md DOMAIN STACK, gorilla/mux + gorilla/websocket).
type AdminConfig struct {
	Host         string `json:"host"`
	Port         int    `json:"port"`
	TLSCert      string `json:"tls_cert"`
	TLSKey       string `json:"tls_key"`
	TLSTailscale bool   `json:"tls_tailscale"`
}

// applyDefaults fills unset fields, matching loader.go's
// LoadWithDefaults contract.
func applyDefaults(cfg *Config) {
	if cfg.Listen.Network == "" {
		cfg.Listen.Network = "tcp"
	}
	if cfg.Listen.Address == "" {
		cfg.Listen.Address = "127.0.0.1:7420"
	}
	if cfg.RuntimeDir == "" {
		cfg.RuntimeDir = defaultRuntimeDir()
	}
	if cfg.RingBufferBytes <= 0 {
		cfg.RingBufferBytes = 1 << 20
	}
	if cfg.SubscriptionQueue <= 0 {
		cfg.SubscriptionQueue = 256
	}
	if cfg.RetentionPerSub <= 0 {
		cfg.RetentionPerSub = 1000
	}
	if cfg.ExitGraceTTLRaw == "" {
		cfg.ExitGraceTTLRaw = "10m"
	}
	if cfg.ShutdownGraceRaw == "" {
		cfg.ShutdownGraceRaw = "10s"
	}
	cfg.ExitGraceTTL, _ = time.ParseDuration(cfg.ExitGraceTTLRaw)
	cfg.ShutdownGrace, _ = time.ParseDuration(cfg.ShutdownGraceRaw)
	if cfg.Admin.Host == "" {
		cfg.Admin.Host = "127.0.0.1"
	}
}

func defaultRuntimeDir() string {
	if dir := os.Getenv("HARNESS_RUNTIME"); dir != "" {
		return dir
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".harnessd"
	}
	return filepath.Join(home, ".harnessd")
}

// GatewayRecordPath returns the path of the gateway record file inside
// the configured runtime directory (spec §6).
func (c *Config) GatewayRecordPath() string {
	return filepath.Join(c.RuntimeDir, "gateway.json")
}

// Loader reads harness.hjson/harness.json files.
type Loader struct{}

// NewLoader returns a ready-to-use Loader.
func NewLoader() *Loader {
	return &Loader{}
}

// Load reads and parses the configuration from path.
func (l *Loader) Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var raw map[string]interface{}
	if err := hjson.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse hjson: %w", err)
	}

	jsonData, err := json.Marshal(raw)
	if err != nil {
		return nil, fmt.Errorf("convert to json: %w", err)
	}

	var cfg Config
	if err := json.Unmarshal(jsonData, &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	applyDefaults(&cfg)
	return &cfg, nil
}

// LoadWithDefaults loads path if non-empty, or returns a config built
// entirely from defaults otherwise; environment overrides are not applied
// here.
func (l *Loader) LoadWithDefaults(path string) (*Config, error) {
	if path == "" {
		cfg := &Config{}
		applyDefaults(cfg)
		return cfg, nil
	}
	return l.Load(path)
}

// FindConfig searches the current directory for harness.hjson then
// harness.json, mirroring loader.go's FindConfig.
func (l *Loader) FindConfig() string {
	for _, name := range []string{"harness.hjson", "harness.json"} {
		path := filepath.Join(".", name)
		if _, err := os.Stat(path); err == nil {
			abs, err := filepath.Abs(path)
			if err != nil {
				return path
			}
			return abs
		}
	}
	return ""
}

// ApplyEnv overrides listen port and auth token from environment
// variables (spec §6 "Environment").
func (c *Config) ApplyEnv() {
	if v := os.Getenv("HARNESS_CONTROL_PLANE_PORT"); v != "" {
		c.Listen.Network = "tcp"
		c.Listen.Address = "127.0.0.1:" + v
	}
	if v := os.Getenv("HARNESS_CONTROL_PLANE_TOKEN"); v != "" {
		c.Auth.Token = v
	}
}
