package util

import (
	"fmt"
	"io"
	"net"
	"testing"
)

func TestFramePool_RoundTrip(t *testing.T) {
	buf := GetFrame()
	if buf == nil {
		t.Fatal("GetFrame returned nil")
	}
	if len(*buf) != MaxFrameSize {
		t.Errorf("frame size = %d, want %d", len(*buf), MaxFrameSize)
	}
	(*buf)[0] = 0xFF
	PutFrame(buf)

	buf2 := GetFrame()
	if buf2 == nil {
		t.Fatal("second GetFrame returned nil")
	}
	PutFrame(buf2)
}

func TestPutFrame_Nil(t *testing.T) {
	// Should not panic.
	PutFrame(nil)
}

func TestIsHarmless(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, true},
		{"eof", io.EOF, true},
		{"wrapped eof", fmt.Errorf("read frame: %w", io.EOF), true},
		{"unexpected eof", io.ErrUnexpectedEOF, true},
		{"closed", net.ErrClosed, true},
		{"op closed", &net.OpError{Op: "accept", Err: net.ErrClosed}, true},
		{"other", fmt.Errorf("boom"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsHarmless(tt.err); got != tt.want {
				t.Errorf("IsHarmless(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}
