package session

import (
	"bytes"
	"strings"
	"testing"

	"chrdev/internal/errors"
	"chrdev/internal/metrics"
	"chrdev/util"
)

func newEngine(t *testing.T, opts Options) (*Engine, *Manager) {
	t.Helper()
	mgr := NewManager(opts)
	return NewEngine(DefaultLimits(), mgr, nil, nil), mgr
}

func mustCreate(t *testing.T, mgr *Manager) *Session {
	t.Helper()
	s, err := mgr.Create()
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	return s
}

func mustWrite(t *testing.T, e *Engine, s *Session, data string) int {
	t.Helper()
	n, err := e.Write(s, []byte(data))
	if err != nil {
		t.Fatalf("Write(%q): %v", data, err)
	}
	return n
}

func readN(t *testing.T, e *Engine, s *Session, size int) string {
	t.Helper()
	buf := make([]byte, size)
	n, err := e.Read(s, buf)
	if err != nil {
		t.Fatalf("Read(%d): %v", size, err)
	}
	return string(buf[:n])
}

// TestScenarios covers the reference test-program cases.
func TestScenarios(t *testing.T) {
	tests := []struct {
		name   string
		writes []string
		reads  []int
		want   []string
	}{
		{"full read", []string{"Testing string"}, []int{1024}, []string{"Testing string"}},
		{"short read", []string{"Testing string"}, []int{10}, []string{"Testing st"}},
		{"oversized request", []string{"Test 3: testing string"}, []int{3000}, []string{"Test 3: testing string"}},
		{
			"two writes",
			[]string{"Testing string", "Again testing string"},
			[]int{1025},
			[]string{"Testing stringAgain testing string"},
		},
		{
			"two partial reads",
			[]string{"Testing string", "Again testing string"},
			[]int{10, 10},
			[]string{"Testing st", "ringAgain "},
		},
		{"read past end", []string{"Testing string"}, []int{100, 100}, []string{"Testing string", ""}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e, mgr := newEngine(t, Options{})
			s := mustCreate(t, mgr)
			for _, w := range tt.writes {
				if n := mustWrite(t, e, s, w); n != len(w) {
					t.Fatalf("Write(%q) = %d, want %d", w, n, len(w))
				}
			}
			for i, size := range tt.reads {
				if got := readN(t, e, s, size); got != tt.want[i] {
					t.Errorf("read %d: got %q, want %q", i, got, tt.want[i])
				}
			}
		})
	}
}

func TestRead_CursorAdvances(t *testing.T) {
	e, mgr := newEngine(t, Options{})
	s := mustCreate(t, mgr)
	mustWrite(t, e, s, "Testing string")
	readN(t, e, s, 10)

	st := s.Stats()
	if st.ReadCursor != 10 || st.BytesRead != 10 {
		t.Errorf("cursor=%d bytesRead=%d, want 10/10", st.ReadCursor, st.BytesRead)
	}
	if st.WriteCursor != 14 || st.BytesWritten != 14 {
		t.Errorf("write cursor=%d bytesWritten=%d, want 14/14", st.WriteCursor, st.BytesWritten)
	}
}

func TestRead_BeforeWrite(t *testing.T) {
	e, mgr := newEngine(t, Options{})
	s := mustCreate(t, mgr)

	_, err := e.Read(s, make([]byte, 10))
	if !errors.Is(err, errors.ErrNoData) {
		t.Fatalf("err = %v, want ErrNoData", err)
	}
}

func TestRead_EndOfStreamRepeats(t *testing.T) {
	e, mgr := newEngine(t, Options{})
	s := mustCreate(t, mgr)
	mustWrite(t, e, s, "abc")
	readN(t, e, s, 3)

	for i := 0; i < 3; i++ {
		n, err := e.Read(s, make([]byte, 8))
		if err != nil || n != 0 {
			t.Fatalf("read %d at end = (%d, %v), want (0, nil)", i, n, err)
		}
	}
}

func TestRead_TruncationWarns(t *testing.T) {
	var logs bytes.Buffer
	logger := util.NewLogger(1)
	logger.SetOutput(&logs)
	logger.SetTimestamps(false)
	col := metrics.New()

	mgr := NewManager(Options{})
	e := NewEngine(DefaultLimits(), mgr, logger, col)
	s := mustCreate(t, mgr)
	mustWrite(t, e, s, "Testing string")
	readN(t, e, s, 1024)

	if !strings.Contains(logs.String(), "[WRN]") {
		t.Errorf("expected warning, got %q", logs.String())
	}
	if col.TruncatedReads() != 1 {
		t.Errorf("truncated reads = %d, want 1", col.TruncatedReads())
	}
}

func TestWrite_CapacityLimit(t *testing.T) {
	e, mgr := newEngine(t, Options{})
	s := mustCreate(t, mgr)

	n, err := e.Write(s, bytes.Repeat([]byte("x"), 1023))
	if err != nil || n != 1023 {
		t.Fatalf("Write(1023) = (%d, %v)", n, err)
	}
	n, err = e.Write(s, []byte("y"))
	if n != 0 || !errors.Is(err, errors.ErrOutOfSpace) {
		t.Fatalf("Write past capacity = (%d, %v), want (0, ErrOutOfSpace)", n, err)
	}
}

func TestWrite_ShortWriteAbsorbsOverflow(t *testing.T) {
	e, mgr := newEngine(t, Options{})
	s := mustCreate(t, mgr)

	src := make([]byte, 1500)
	for i := range src {
		src[i] = byte(i)
	}
	n, err := e.Write(s, src)
	if err != nil {
		t.Fatalf("Write: %v", err)
	}
	if n != 1023 {
		t.Fatalf("stored %d, want 1023", n)
	}

	out := make([]byte, 2048)
	got, _ := e.Read(s, out)
	if got != 1023 || !bytes.Equal(out[:got], src[:1023]) {
		t.Errorf("read back %d bytes, mismatch with first 1023 written", got)
	}
}

func TestWrite_ByteAtATimeMatchesBulk(t *testing.T) {
	payload := []byte("Testing stringAgain testing string")

	bulkE, bulkM := newEngine(t, Options{})
	bulk := mustCreate(t, bulkM)
	if _, err := bulkE.Write(bulk, payload); err != nil {
		t.Fatal(err)
	}

	oneE, oneM := newEngine(t, Options{})
	one := mustCreate(t, oneM)
	for i := range payload {
		if _, err := oneE.Write(one, payload[i:i+1]); err != nil {
			t.Fatal(err)
		}
	}

	if a, b := bulk.Stats(), one.Stats(); a.WriteCursor != b.WriteCursor || a.BytesWritten != b.BytesWritten {
		t.Errorf("bulk %+v != byte-wise %+v", a, b)
	}
	if a, b := readN(t, bulkE, bulk, 100), readN(t, oneE, one, 100); a != b {
		t.Errorf("bulk %q != byte-wise %q", a, b)
	}
}

func TestWrite_AllocatesOnce(t *testing.T) {
	e, mgr := newEngine(t, Options{})
	s := mustCreate(t, mgr)

	if s.Stats().Allocated {
		t.Fatal("buffer must not be allocated before the first write")
	}
	mustWrite(t, e, s, "Testing string")
	mustWrite(t, e, s, "Again testing string")

	if got := mgr.Totals().BufferBytes; got != DefaultBufLen {
		t.Errorf("buffer bytes = %d, want one buffer of %d", got, DefaultBufLen)
	}
	if got := readN(t, e, s, 1025); got != "Testing stringAgain testing string" {
		t.Errorf("second write must not discard the first: got %q", got)
	}
}

func TestWrite_AllocationFailure(t *testing.T) {
	e, mgr := newEngine(t, Options{MemoryLimit: DefaultBufLen})
	a := mustCreate(t, mgr)
	b := mustCreate(t, mgr)

	mustWrite(t, e, a, "fits")
	n, err := e.Write(b, []byte("does not"))
	if n != 0 || !errors.Is(err, errors.ErrAllocation) {
		t.Fatalf("Write = (%d, %v), want (0, ErrAllocation)", n, err)
	}
	if b.Stats().Allocated {
		t.Error("failed allocation must leave the session unallocated")
	}

	if _, err := mgr.End(a); err != nil {
		t.Fatal(err)
	}
	if n := mustWrite(t, e, b, "now fits"); n != 8 {
		t.Errorf("Write after release = %d, want 8", n)
	}
}

func TestWrite_EmptyAllocates(t *testing.T) {
	e, mgr := newEngine(t, Options{})
	s := mustCreate(t, mgr)

	n, err := e.Write(s, nil)
	if n != 0 || err != nil {
		t.Fatalf("empty write = (%d, %v), want (0, nil)", n, err)
	}
	if !s.Stats().Allocated {
		t.Error("first write call allocates even when empty")
	}
	if _, err := e.Read(s, make([]byte, 1)); !errors.Is(err, errors.ErrNoData) {
		t.Errorf("read after empty write = %v, want ErrNoData", err)
	}
}

func TestEndedSession_Rejected(t *testing.T) {
	e, mgr := newEngine(t, Options{})
	s := mustCreate(t, mgr)
	mustWrite(t, e, s, "x")
	if _, err := mgr.End(s); err != nil {
		t.Fatal(err)
	}

	if _, err := e.Write(s, []byte("y")); !errors.Is(err, errors.ErrContractViolation) {
		t.Errorf("write after end = %v, want ErrContractViolation", err)
	}
	if _, err := e.Read(s, make([]byte, 1)); !errors.Is(err, errors.ErrContractViolation) {
		t.Errorf("read after end = %v, want ErrContractViolation", err)
	}
}

func TestByteOrientedLimits(t *testing.T) {
	mgr := NewManager(Options{})
	e := NewEngine(Limits{BufLen: 16}, mgr, nil, nil)
	s := mustCreate(t, mgr)

	n, err := e.Write(s, bytes.Repeat([]byte("z"), 20))
	if err != nil || n != 16 {
		t.Fatalf("Write = (%d, %v), want (16, nil)", n, err)
	}
}
