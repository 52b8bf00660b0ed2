// Package shmipccfg loads the TOML configuration recognized by the demo
// server and client binaries: ring dimensions, stream timeouts, and
// whether the client should auto-reconnect.
package shmipccfg

import (
	"os"
	"time"

	"github.com/pelletier/go-toml/v2"
)

// Options is the recognized configuration set, with the documented
// defaults applied by Defaults.
type Options struct {
	NodeCount            uint32 `toml:"node_count"`
	NodeSize             uint32 `toml:"node_size"`
	ReadTimeoutMs        int64  `toml:"read_timeout_ms"`
	WriteTimeoutMs       int64  `toml:"write_timeout_ms"`
	SpinAcquireTimeoutMs int64  `toml:"spin_acquire_timeout_ms"`
	AutoReconnect        bool   `toml:"auto_reconnect"`
}

// Config is the top-level demo configuration file shape: one named
// section of shared options plus a map of named listen points.
type Config struct {
	Options Options                 `toml:"options"`
	Listen  map[string]ListenConfig `toml:"listen"`
}

// ListenConfig names one rendezvous endpoint. The demo server and client
// take their endpoint name from a command-line flag and do not read this
// section.
type ListenConfig struct {
	Name    string `toml:"name"`
	Enabled bool   `toml:"enabled"`
}

// Defaults returns the baseline option values applied before a config
// file is parsed on top of them.
func Defaults() Options {
	return Options{
		NodeCount:            1024,
		NodeSize:             4096,
		ReadTimeoutMs:        1000,
		WriteTimeoutMs:       1000,
		SpinAcquireTimeoutMs: 30000,
		AutoReconnect:        true,
	}
}

// ReadTimeout returns the configured read timeout as a time.Duration.
func (o Options) ReadTimeout() time.Duration {
	return time.Duration(o.ReadTimeoutMs) * time.Millisecond
}

// WriteTimeout returns the configured write timeout as a time.Duration.
func (o Options) WriteTimeout() time.Duration {
	return time.Duration(o.WriteTimeoutMs) * time.Millisecond
}

// SpinAcquireTimeout returns the configured spin-acquire timeout as a time.Duration.
func (o Options) SpinAcquireTimeout() time.Duration {
	return time.Duration(o.SpinAcquireTimeoutMs) * time.Millisecond
}

// Load reads and parses a TOML config file, filling unset fields with
// Defaults().
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	cfg := Config{Options: Defaults()}
	if err := toml.Unmarshal(b, &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}
