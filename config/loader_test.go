package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestLoadFromEnv_Strings(t *testing.T) {
	t.Setenv("CHRDEV_NAME", "mydev")
	t.Setenv("CHRDEV_ROOT", "/var/run/chr")
	t.Setenv("CHRDEV_SOCKET", "/var/run/chr/s")
	cfg := Default()
	LoadFromEnv(cfg)
	if cfg.DeviceName != "mydev" || cfg.Root != "/var/run/chr" || cfg.Socket != "/var/run/chr/s" {
		t.Errorf("cfg = %+v", cfg)
	}
}

func TestLoadFromEnv_Numbers(t *testing.T) {
	t.Setenv("CHRDEV_MAJOR", "250")
	t.Setenv("CHRDEV_BUF_LEN", "2048")
	t.Setenv("CHRDEV_MAX_SESSIONS", "1")
	t.Setenv("CHRDEV_MEMORY_LIMIT", "8192")
	cfg := Default()
	LoadFromEnv(cfg)
	if cfg.Major != 250 || cfg.BufLen != 2048 || cfg.MaxSessions != 1 || cfg.MemoryLimit != 8192 {
		t.Errorf("cfg = %+v", cfg)
	}
}

func TestLoadFromEnv_Booleans(t *testing.T) {
	for _, v := range []string{"1", "true", "yes", "TRUE", "Yes"} {
		t.Run(v, func(t *testing.T) {
			t.Setenv("CHRDEV_BYTE_ORIENTED", v)
			t.Setenv("CHRDEV_JSON", v)
			cfg := Default()
			LoadFromEnv(cfg)
			if !cfg.ByteOriented || !cfg.JSON {
				t.Errorf("%q should enable booleans: %+v", v, cfg)
			}
		})
	}
}

func TestLoadFromEnv_InvalidIgnored(t *testing.T) {
	t.Setenv("CHRDEV_BUF_LEN", "lots")
	cfg := Default()
	LoadFromEnv(cfg)
	if cfg.BufLen != DefaultBufLen {
		t.Errorf("BufLen = %d, invalid env should be ignored", cfg.BufLen)
	}
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "chrdev.toml")
	data := `
name = "filedev"
major = 243
buf_len = 512
byte_oriented = true
max_sessions = 4
`
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg := Default()
	if err := LoadFile(cfg, path); err != nil {
		t.Fatal(err)
	}
	if cfg.DeviceName != "filedev" || cfg.Major != 243 || cfg.BufLen != 512 ||
		!cfg.ByteOriented || cfg.MaxSessions != 4 {
		t.Errorf("cfg = %+v", cfg)
	}
	if cfg.ClassName != DefaultClassName {
		t.Errorf("absent keys must keep defaults, class = %q", cfg.ClassName)
	}
}

func TestParse_UnknownKey(t *testing.T) {
	err := Parse(Default(), []byte(`buffer_size = 10`))
	if err == nil || !strings.Contains(err.Error(), "buffer_size") {
		t.Errorf("err = %v, want unknown key error", err)
	}
}

func TestParse_Malformed(t *testing.T) {
	if err := Parse(Default(), []byte(`name = `)); err == nil {
		t.Error("expected a parse error")
	}
}

func TestLoadFile_Missing(t *testing.T) {
	if err := LoadFile(Default(), filepath.Join(t.TempDir(), "nope.toml")); err == nil {
		t.Error("expected an error for a missing file")
	}
}
