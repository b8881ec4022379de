// Package session holds the per-client buffer state of a chrdev device
// and the rules for moving bytes in and out of it.
//
// A Session is created by a Manager, filled and drained through an
// Engine, and handed back to the Manager exactly once when the client
// closes it.  The Manager lock guards only device-wide counters; the
// per-session lock guards cursors and the buffer, so copies never run
// under the device lock.
package session

import "sync"

// Session is one client's view of the device: a lazily allocated,
// fixed-size buffer with a write cursor and a read cursor.
//
// Invariant: 0 <= readCursor <= writeCursor <= len(buf).
type Session struct {
	id int64

	mu           sync.Mutex
	allocated    bool
	buf          []byte
	writeCursor  int
	readCursor   int
	bytesRead    uint64
	bytesWritten uint64
	ended        bool
}

// ID returns the identifier assigned at creation.  It never changes.
func (s *Session) ID() int64 { return s.id }

// Stats is a point-in-time copy of a session's cursors and counters.
type Stats struct {
	ID           int64  `json:"id"`
	Allocated    bool   `json:"allocated"`
	WriteCursor  int    `json:"write_cursor"`
	ReadCursor   int    `json:"read_cursor"`
	BytesRead    uint64 `json:"bytes_read"`
	BytesWritten uint64 `json:"bytes_written"`
	Ended        bool   `json:"ended"`
}

// Stats returns the session's current cursors and counters.
func (s *Session) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Stats{
		ID:           s.id,
		Allocated:    s.allocated,
		WriteCursor:  s.writeCursor,
		ReadCursor:   s.readCursor,
		BytesRead:    s.bytesRead,
		BytesWritten: s.bytesWritten,
		Ended:        s.ended,
	}
}
