package session

import (
	"chrdev/internal/errors"
	"chrdev/internal/metrics"
	"chrdev/util"
)

// Engine moves bytes between callers and session buffers.
type Engine struct {
	limits  Limits
	mgr     *Manager
	logger  *util.Logger
	metrics *metrics.Collector
}

// NewEngine returns an Engine that sizes buffers by limits and charges
// their memory to mgr.  logger and collector may be nil.
func NewEngine(limits Limits, mgr *Manager, logger *util.Logger, collector *metrics.Collector) *Engine {
	if logger == nil {
		logger = util.Discard()
	}
	return &Engine{limits: limits, mgr: mgr, logger: logger, metrics: collector}
}

// Limits returns the buffer limits the engine enforces.
func (e *Engine) Limits() Limits { return e.limits }

// Write appends as much of src as fits to the session buffer and
// returns the number of bytes stored.  A short count is backpressure,
// not an error; ErrOutOfSpace is returned only when nothing fits.
func (e *Engine) Write(s *Session, src []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ended {
		return 0, errors.Op("write", s.id, errors.ErrContractViolation)
	}
	if !s.allocated {
		if err := e.mgr.reserve(e.limits.BufLen); err != nil {
			return 0, errors.Op("write", s.id, err)
		}
		s.buf = make([]byte, e.limits.BufLen)
		s.allocated = true
		e.logger.Debug("session %d: allocated %d-byte buffer", s.id, e.limits.BufLen)
	}

	room := e.limits.Remaining(s.writeCursor)
	if room == 0 {
		return 0, errors.Op("write", s.id, errors.ErrOutOfSpace)
	}

	n := min(len(src), room)
	copy(s.buf[s.writeCursor:], src[:n])
	s.writeCursor += n
	s.bytesWritten += uint64(n)

	if n < len(src) {
		e.logger.Verbose("session %d: short write %d of %d bytes", s.id, n, len(src))
	}
	e.metrics.Written(int64(n), n < len(src))
	return n, nil
}

// Read copies unread bytes into dst and returns how many were copied.
// It returns 0 with a nil error at end of stream.  Reading a session
// that was never written fails with ErrNoData.
func (e *Engine) Read(s *Session, dst []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ended {
		return 0, errors.Op("read", s.id, errors.ErrContractViolation)
	}
	if s.bytesWritten == 0 {
		return 0, errors.Op("read", s.id, errors.ErrNoData)
	}
	if s.readCursor >= s.writeCursor {
		return 0, nil
	}

	avail := s.writeCursor - s.readCursor
	n := min(len(dst), avail)
	truncated := len(dst) > avail
	if truncated {
		e.logger.Warn("session %d: read of %d bytes truncated to %d", s.id, len(dst), avail)
	}

	copy(dst, s.buf[s.readCursor:s.readCursor+n])
	s.readCursor += n
	s.bytesRead += uint64(n)

	e.metrics.Read(int64(n), truncated)
	return n, nil
}
