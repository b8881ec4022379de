package errors

import (
	"fmt"
	"testing"
)

func TestDeviceError_Format(t *testing.T) {
	tests := []struct {
		name string
		err  DeviceError
		want string
	}{
		{
			name: "with session",
			err:  DeviceError{Op: "write", Session: 3, Err: ErrOutOfSpace},
			want: "write session 3: no space left in buffer",
		},
		{
			name: "no session",
			err:  DeviceError{Op: "open", Err: ErrNotFound},
			want: "open: no such device or handle",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestOp(t *testing.T) {
	if Op("read", 1, nil) != nil {
		t.Error("nil error should stay nil")
	}
	err := Op("read", 1, ErrNoData)
	if !Is(err, ErrNoData) {
		t.Error("should unwrap to ErrNoData")
	}
	var de *DeviceError
	if !As(err, &de) || de.Session != 1 {
		t.Errorf("As DeviceError failed: %v", err)
	}
}

func TestStageError(t *testing.T) {
	inner := fmt.Errorf("busy")
	err := &StageError{Stage: "region", Err: inner}
	if got, want := err.Error(), "register region: busy"; got != want {
		t.Errorf("got %q, want %q", got, want)
	}
	if !Is(err, inner) {
		t.Error("should unwrap to inner error")
	}
}

func TestConfigError_Format(t *testing.T) {
	tests := []struct {
		name string
		err  ConfigError
		want string
	}{
		{
			name: "with value and hint",
			err: ConfigError{
				Field:   "buf-len",
				Value:   1,
				Message: "too small",
				Hint:    "use at least 2 bytes",
			},
			want: "config: --buf-len=1: too small\n  hint: use at least 2 bytes",
		},
		{
			name: "missing value no hint",
			err:  ConfigError{Field: "name", Message: "required"},
			want: "config: --name: required",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.want {
				t.Errorf("got:\n%s\nwant:\n%s", got, tt.want)
			}
		})
	}
}

func TestCodeRoundTrip(t *testing.T) {
	sentinels := []error{
		ErrNotFound, ErrAllocation, ErrNoData, ErrOutOfSpace, ErrContractViolation,
	}
	for _, s := range sentinels {
		t.Run(s.Error(), func(t *testing.T) {
			code := Code(Op("write", 1, s))
			if code == CodeOK || code == CodeInternal {
				t.Fatalf("Code = %d, want a sentinel code", code)
			}
			back := FromCode(code, "x")
			if !Is(back, s) {
				t.Errorf("FromCode(%d) = %v, should match %v", code, back, s)
			}
		})
	}
}

func TestCode_Unclassified(t *testing.T) {
	if Code(nil) != CodeOK {
		t.Error("nil should be CodeOK")
	}
	if Code(fmt.Errorf("boom")) != CodeInternal {
		t.Error("plain error should be CodeInternal")
	}
	if FromCode(CodeOK, "") != nil {
		t.Error("CodeOK should decode to nil")
	}
	err := FromCode(CodeInternal, "boom")
	if err == nil || err.Error() != "remote: boom" {
		t.Errorf("FromCode(internal) = %v", err)
	}
}

func TestSentinels(t *testing.T) {
	sentinels := []error{
		ErrNotFound, ErrAllocation, ErrNoData, ErrOutOfSpace, ErrContractViolation,
	}
	for i, a := range sentinels {
		for j, b := range sentinels {
			if i != j && Is(a, b) {
				t.Errorf("sentinel %d and %d should not match", i, j)
			}
		}
	}
}
