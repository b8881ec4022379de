package session

import (
	"sync"

	"chrdev/internal/errors"
)

// Options bound the resources a Manager hands out.  Zero values mean
// unlimited.
type Options struct {
	// MaxSessions caps concurrently active sessions.  1 gives the
	// classic one-client-at-a-time device.
	MaxSessions int
	// MemoryLimit caps the bytes held by all allocated session buffers.
	MemoryLimit int64
}

// Totals is a snapshot of the device-wide counters.
type Totals struct {
	Sessions     int64  `json:"sessions"`      // ids issued so far
	Active       int    `json:"active"`        // sessions not yet ended
	BytesRead    uint64 `json:"bytes_read"`    // folded from ended sessions
	BytesWritten uint64 `json:"bytes_written"` // folded from ended sessions
	BufferBytes  int64  `json:"buffer_bytes"`  // currently allocated
}

// Manager issues session ids and folds per-session statistics into
// device lifetime totals.  All of its fields are guarded by mu.
type Manager struct {
	opts Options

	mu           sync.Mutex
	counter      int64
	active       int
	totalRead    uint64
	totalWritten uint64
	allocated    int64
}

// NewManager returns a Manager with no sessions issued.
func NewManager(opts Options) *Manager {
	return &Manager{opts: opts}
}

// Create starts a new session with the next id.  Ids start at 1 and
// are never reused.
func (m *Manager) Create() (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.opts.MaxSessions > 0 && m.active >= m.opts.MaxSessions {
		return nil, errors.Op("open", 0, errors.ErrContractViolation)
	}
	m.counter++
	m.active++
	return &Session{id: m.counter}, nil
}

// End finalizes s: its byte counters are added to the device totals
// and its buffer is released.  Ending a session twice fails with
// ErrContractViolation and changes nothing.
func (m *Manager) End(s *Session) (Stats, error) {
	s.mu.Lock()
	if s.ended {
		s.mu.Unlock()
		return Stats{}, errors.Op("close", s.id, errors.ErrContractViolation)
	}
	s.ended = true
	freed := len(s.buf)
	s.buf = nil
	s.allocated = false
	final := Stats{
		ID:           s.id,
		WriteCursor:  s.writeCursor,
		ReadCursor:   s.readCursor,
		BytesRead:    s.bytesRead,
		BytesWritten: s.bytesWritten,
		Ended:        true,
	}
	s.mu.Unlock()

	m.mu.Lock()
	m.totalRead += final.BytesRead
	m.totalWritten += final.BytesWritten
	m.allocated -= int64(freed)
	m.active--
	m.mu.Unlock()

	return final, nil
}

// Totals returns the current device-wide counters.
func (m *Manager) Totals() Totals {
	m.mu.Lock()
	defer m.mu.Unlock()
	return Totals{
		Sessions:     m.counter,
		Active:       m.active,
		BytesRead:    m.totalRead,
		BytesWritten: m.totalWritten,
		BufferBytes:  m.allocated,
	}
}

// reserve claims n bytes of the memory budget for a new buffer.
func (m *Manager) reserve(n int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.opts.MemoryLimit > 0 && m.allocated+int64(n) > m.opts.MemoryLimit {
		return errors.ErrAllocation
	}
	m.allocated += int64(n)
	return nil
}
