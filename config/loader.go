package config

// loader.go - configuration loading from a TOML file and the
// environment.
//
// Precedence order (highest wins):
//   1. CLI flags  (handled by cmd/root.go)
//   2. Environment variables
//   3. Config file (--config)
//   4. Defaults   (defaults.go)

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
)

// LoadFile overlays the TOML file at path onto cfg.  Keys absent from
// the file leave cfg unchanged; unknown keys are an error.
func LoadFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("loading config %q: %w", path, err)
	}
	return Parse(cfg, data)
}

// Parse decodes TOML data onto cfg.
func Parse(cfg *Config, data []byte) error {
	md, err := toml.Decode(string(data), cfg)
	if err != nil {
		return fmt.Errorf("parsing config: %w", err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		return fmt.Errorf("parsing config: unknown keys %s", strings.Join(keys, ", "))
	}
	return nil
}

// ── Environment variable mapping ─────────────────────────────────────
//
// Every supported env var uses the CHRDEV_ prefix.  Boolean values
// accept "1", "true", "yes" (case-insensitive).

// LoadFromEnv overlays environment variables onto cfg.  Only non-empty
// env vars override the existing value.  This should be called BEFORE
// CLI flag parsing so that flags take precedence.
func LoadFromEnv(cfg *Config) {
	if v := os.Getenv("CHRDEV_NAME"); v != "" {
		cfg.DeviceName = v
	}
	if v := os.Getenv("CHRDEV_CLASS"); v != "" {
		cfg.ClassName = v
	}
	if v := envInt("CHRDEV_MAJOR"); v > 0 {
		cfg.Major = v
	}
	if v := envInt("CHRDEV_MINOR"); v > 0 {
		cfg.Minor = v
	}
	if v := os.Getenv("CHRDEV_ROOT"); v != "" {
		cfg.Root = v
	}

	// Sessions
	if v := envInt("CHRDEV_BUF_LEN"); v > 0 {
		cfg.BufLen = v
	}
	if envBool("CHRDEV_BYTE_ORIENTED") {
		cfg.ByteOriented = true
	}
	if v := envInt("CHRDEV_MAX_SESSIONS"); v > 0 {
		cfg.MaxSessions = v
	}
	if v := envInt("CHRDEV_MEMORY_LIMIT"); v > 0 {
		cfg.MemoryLimit = int64(v)
	}

	// Serving
	if v := os.Getenv("CHRDEV_SOCKET"); v != "" {
		cfg.Socket = v
	}
	if v := os.Getenv("CHRDEV_OTEL_ENDPOINT"); v != "" {
		cfg.OTelEndpoint = v
	}

	// Output
	if v := envInt("CHRDEV_VERBOSE"); v > 0 {
		cfg.Verbose = v
	}
	if envBool("CHRDEV_JSON") {
		cfg.JSON = true
	}
}

// ── helpers ──────────────────────────────────────────────────────────

func envInt(key string) int {
	v := os.Getenv(key)
	if v == "" {
		return 0
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0
	}
	return n
}

func envBool(key string) bool {
	v := strings.ToLower(os.Getenv(key))
	return v == "1" || v == "true" || v == "yes"
}
