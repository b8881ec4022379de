// Package config defines the runtime configuration for chrdev and the
// validation rules that keep it consistent.
package config

import (
	"path/filepath"
	"time"

	"chrdev/internal/errors"
	"chrdev/internal/session"
)

// Config holds every tuneable for one chrdev device.
type Config struct {
	// ── Registration ─────────────────────────────────────────────────
	DeviceName string `toml:"name"`
	ClassName  string `toml:"class"`
	Major      int    `toml:"major"` // 0 → pick a free major
	Minor      int    `toml:"minor"`
	Root       string `toml:"root"` // host directory for regions, classes, nodes

	// ── Sessions ─────────────────────────────────────────────────────
	BufLen       int   `toml:"buf_len"`
	ByteOriented bool  `toml:"byte_oriented"` // no terminator byte reserved
	MaxSessions  int   `toml:"max_sessions"`  // 0 → unlimited
	MemoryLimit  int64 `toml:"memory_limit"`  // bytes across all buffers, 0 → unlimited

	// ── Serving ──────────────────────────────────────────────────────
	Socket       string        `toml:"socket"`
	DialTimeout  time.Duration `toml:"-"`
	OTelEndpoint string        `toml:"otel_endpoint"`

	// ── Output ───────────────────────────────────────────────────────
	Verbose int  `toml:"verbose"`
	JSON    bool `toml:"json"`
}

// Default returns a Config populated from defaults.go.
func Default() *Config {
	return &Config{
		DeviceName:  DefaultDeviceName,
		ClassName:   DefaultClassName,
		Root:        DefaultRoot,
		BufLen:      DefaultBufLen,
		Socket:      filepath.Join(DefaultRoot, DefaultSocketName),
		DialTimeout: DefaultDialTimeout,
	}
}

// Limits converts the session settings into buffer limits.
func (c *Config) Limits() session.Limits {
	l := session.Limits{BufLen: c.BufLen, Reserve: session.TerminatorReserve}
	if c.ByteOriented {
		l.Reserve = 0
	}
	return l
}

// ── Validation ───────────────────────────────────────────────────────

// Validate checks that the configuration is internally consistent.
func (c *Config) Validate() error {
	if c.DeviceName == "" {
		return &errors.ConfigError{
			Field:   "name",
			Message: "device name is required",
		}
	}
	if filepath.Base(c.DeviceName) != c.DeviceName {
		return &errors.ConfigError{
			Field:   "name",
			Value:   c.DeviceName,
			Message: "must not contain a path separator",
			Hint:    "the node is created as <root>/dev/<name>",
		}
	}
	if c.Major < 0 || c.Major > MaxMajor {
		return &errors.ConfigError{
			Field:   "major",
			Value:   c.Major,
			Message: "out of range",
			Hint:    "use 0 to have a free major picked for you",
		}
	}
	if c.Minor < 0 || c.Minor > MaxMinor {
		return &errors.ConfigError{
			Field:   "minor",
			Value:   c.Minor,
			Message: "out of range 0-255",
		}
	}

	floor := MinBufLen
	if c.ByteOriented {
		floor = 1
	}
	if c.BufLen < floor || c.BufLen > MaxBufLen {
		return &errors.ConfigError{
			Field:   "buf-len",
			Value:   c.BufLen,
			Message: "out of range",
			Hint:    "one byte is reserved unless --byte-oriented is set; the maximum is 65536",
		}
	}
	if c.MaxSessions < 0 {
		return &errors.ConfigError{
			Field:   "max-sessions",
			Value:   c.MaxSessions,
			Message: "must not be negative",
			Hint:    "use 0 for no limit or 1 for a single-client device",
		}
	}
	if c.MemoryLimit < 0 {
		return &errors.ConfigError{
			Field:   "memory-limit",
			Value:   c.MemoryLimit,
			Message: "must not be negative",
		}
	}
	if c.MemoryLimit > 0 && c.MemoryLimit < int64(c.BufLen) {
		return &errors.ConfigError{
			Field:   "memory-limit",
			Value:   c.MemoryLimit,
			Message: "smaller than one session buffer",
			Hint:    "raise it to at least --buf-len or use 0 for no limit",
		}
	}
	if c.Root == "" {
		return &errors.ConfigError{
			Field:   "root",
			Message: "host directory is required",
		}
	}
	return nil
}
