// Package metrics provides lightweight, lock-free counters and gauges
// for tracking runtime statistics of a chrdev device.
//
// All methods are safe for concurrent use.  A nil *Collector is a
// valid no-op receiver, so callers never need to nil-check.
package metrics

import (
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"
)

// Collector tracks runtime metrics for one device instance.
// A nil Collector is safe to use; all methods become no-ops.
type Collector struct {
	sessionsActive atomic.Int64
	sessionsTotal  atomic.Int64
	bytesRead      atomic.Int64
	bytesWritten   atomic.Int64
	shortWrites    atomic.Int64
	truncatedReads atomic.Int64
	errorsTotal    atomic.Int64

	mu           sync.RWMutex
	startTime    time.Time
	lastError    time.Time
	lastErrorMsg string
}

// New creates a metrics collector with the start time set to now.
func New() *Collector {
	return &Collector{startTime: time.Now()}
}

// ── Session metrics ──────────────────────────────────────────────────

// SessionOpened increments both the active and total counters.
func (c *Collector) SessionOpened() {
	if c == nil {
		return
	}
	c.sessionsActive.Add(1)
	c.sessionsTotal.Add(1)
}

// SessionClosed decrements the active session counter.
func (c *Collector) SessionClosed() {
	if c == nil {
		return
	}
	c.sessionsActive.Add(-1)
}

// ActiveSessions returns the current number of open sessions.
func (c *Collector) ActiveSessions() int64 {
	if c == nil {
		return 0
	}
	return c.sessionsActive.Load()
}

// TotalSessions returns the lifetime session count.
func (c *Collector) TotalSessions() int64 {
	if c == nil {
		return 0
	}
	return c.sessionsTotal.Load()
}

// ── I/O metrics ──────────────────────────────────────────────────────

// Read records n bytes copied out of a session buffer.  truncated is
// set when the caller asked for more than was available.
func (c *Collector) Read(n int64, truncated bool) {
	if c == nil {
		return
	}
	c.bytesRead.Add(n)
	if truncated {
		c.truncatedReads.Add(1)
	}
}

// Written records n bytes stored into a session buffer.  short is set
// when fewer bytes were stored than requested.
func (c *Collector) Written(n int64, short bool) {
	if c == nil {
		return
	}
	c.bytesWritten.Add(n)
	if short {
		c.shortWrites.Add(1)
	}
}

// BytesRead returns total bytes read across all sessions.
func (c *Collector) BytesRead() int64 {
	if c == nil {
		return 0
	}
	return c.bytesRead.Load()
}

// BytesWritten returns total bytes written across all sessions.
func (c *Collector) BytesWritten() int64 {
	if c == nil {
		return 0
	}
	return c.bytesWritten.Load()
}

// ShortWrites returns how many writes stored fewer bytes than asked.
func (c *Collector) ShortWrites() int64 {
	if c == nil {
		return 0
	}
	return c.shortWrites.Load()
}

// TruncatedReads returns how many reads were cut to the available data.
func (c *Collector) TruncatedReads() int64 {
	if c == nil {
		return 0
	}
	return c.truncatedReads.Load()
}

// ── Error metrics ────────────────────────────────────────────────────

// RecordError increments the error counter and stores the message.
func (c *Collector) RecordError(msg string) {
	if c == nil {
		return
	}
	c.errorsTotal.Add(1)
	c.mu.Lock()
	c.lastError = time.Now()
	c.lastErrorMsg = msg
	c.mu.Unlock()
}

// ErrorCount returns the total number of errors recorded.
func (c *Collector) ErrorCount() int64 {
	if c == nil {
		return 0
	}
	return c.errorsTotal.Load()
}

// ── Snapshot ─────────────────────────────────────────────────────────

// Snapshot is a point-in-time view of all metrics.
type Snapshot struct {
	Uptime           string `json:"uptime"`
	SessionsActive   int64  `json:"sessions_active"`
	SessionsTotal    int64  `json:"sessions_total"`
	BytesRead        int64  `json:"bytes_read"`
	BytesWritten     int64  `json:"bytes_written"`
	ShortWrites      int64  `json:"short_writes"`
	TruncatedReads   int64  `json:"truncated_reads"`
	ErrorsTotal      int64  `json:"errors_total"`
	LastError        string `json:"last_error,omitempty"`
	LastErrorMessage string `json:"last_error_message,omitempty"`
}

// Snapshot returns a copy of all current metrics.
func (c *Collector) Snapshot() Snapshot {
	if c == nil {
		return Snapshot{}
	}
	c.mu.RLock()
	defer c.mu.RUnlock()

	s := Snapshot{
		Uptime:         time.Since(c.startTime).Truncate(time.Second).String(),
		SessionsActive: c.sessionsActive.Load(),
		SessionsTotal:  c.sessionsTotal.Load(),
		BytesRead:      c.bytesRead.Load(),
		BytesWritten:   c.bytesWritten.Load(),
		ShortWrites:    c.shortWrites.Load(),
		TruncatedReads: c.truncatedReads.Load(),
		ErrorsTotal:    c.errorsTotal.Load(),
	}
	if !c.lastError.IsZero() {
		s.LastError = c.lastError.Format(time.RFC3339)
		s.LastErrorMessage = c.lastErrorMsg
	}
	return s
}

// JSON returns the snapshot as an indented JSON string.
func (c *Collector) JSON() string {
	s := c.Snapshot()
	data, _ := json.MarshalIndent(s, "", "  ")
	return string(data)
}
