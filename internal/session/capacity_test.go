package session

import "testing"

func TestRemainingCapacity(t *testing.T) {
	tests := []struct {
		bufLen, written, want int
	}{
		{1024, 0, 1023},
		{1024, 14, 1009},
		{1024, 1022, 1},
		{1024, 1023, 0},
		{1024, 1024, 0},
		{1024, 5000, 0},
		{1, 0, 0},
		{0, 0, 0},
	}
	for _, tt := range tests {
		if got := RemainingCapacity(tt.bufLen, tt.written); got != tt.want {
			t.Errorf("RemainingCapacity(%d, %d) = %d, want %d",
				tt.bufLen, tt.written, got, tt.want)
		}
	}
}

func TestLimits_ByteOriented(t *testing.T) {
	l := Limits{BufLen: 1024}
	if got := l.Payload(); got != 1024 {
		t.Errorf("Payload = %d, want 1024", got)
	}
	if got := l.Remaining(1000); got != 24 {
		t.Errorf("Remaining(1000) = %d, want 24", got)
	}
}

func TestDefaultLimits(t *testing.T) {
	if got := DefaultLimits().Payload(); got != 1023 {
		t.Errorf("default payload = %d, want 1023", got)
	}
}
