// Package device is the client-facing side of a chrdev device: it maps
// open handles to sessions and routes read, write and close calls to
// the session engine.
//
// Any number of clients may hold sessions at once unless
// Config.MaxSessions limits it; MaxSessions 1 restores the classic
// single-client device where a second open fails until the first
// client closes.
package device

import (
	"context"
	"sync"

	"chrdev/internal/errors"
	"chrdev/internal/metrics"
	"chrdev/internal/session"
	"chrdev/internal/telemetry"
	"chrdev/util"
)

// Config sizes a Device.
type Config struct {
	Name        string
	Limits      session.Limits
	MaxSessions int
	MemoryLimit int64
}

// Option customises a Device.
type Option func(*Device)

// WithLogger sets the device logger.
func WithLogger(l *util.Logger) Option {
	return func(d *Device) { d.logger = l }
}

// WithMetrics sets the collector that receives session and byte counts.
func WithMetrics(c *metrics.Collector) Option {
	return func(d *Device) { d.metrics = c }
}

// Device owns the session table and the device-wide totals.  It
// implements register.Operations.
type Device struct {
	name    string
	mgr     *session.Manager
	engine  *session.Engine
	logger  *util.Logger
	metrics *metrics.Collector

	mu       sync.RWMutex
	sessions map[int64]*session.Session
	shutdown bool
}

// New returns a device with no sessions.  A zero Limits means
// session.DefaultLimits.
func New(cfg Config, opts ...Option) *Device {
	if cfg.Limits == (session.Limits{}) {
		cfg.Limits = session.DefaultLimits()
	}
	d := &Device{
		name:     cfg.Name,
		sessions: make(map[int64]*session.Session),
		logger:   util.Discard(),
	}
	for _, o := range opts {
		o(d)
	}
	d.logger = d.logger.With(cfg.Name)
	d.mgr = session.NewManager(session.Options{
		MaxSessions: cfg.MaxSessions,
		MemoryLimit: cfg.MemoryLimit,
	})
	d.engine = session.NewEngine(cfg.Limits, d.mgr, d.logger, d.metrics)
	return d
}

// Name returns the device name.
func (d *Device) Name() string { return d.name }

// Limits returns the per-session buffer limits.
func (d *Device) Limits() session.Limits { return d.engine.Limits() }

// Open starts a session and returns its handle.
func (d *Device) Open() (int64, error) {
	d.mu.Lock()
	if d.shutdown {
		d.mu.Unlock()
		return 0, d.fail("open", 0, errors.ErrNotFound)
	}
	s, err := d.mgr.Create()
	if err != nil {
		d.mu.Unlock()
		d.metrics.RecordError(err.Error())
		telemetry.RecordOpen(context.Background(), d.name, 0, err)
		return 0, err
	}
	d.sessions[s.ID()] = s
	d.mu.Unlock()

	d.metrics.SessionOpened()
	telemetry.RecordOpen(context.Background(), d.name, s.ID(), nil)
	d.logger.Verbose("session %d opened", s.ID())
	return s.ID(), nil
}

// Write stores as much of p as fits in the session buffer.  See
// session.Engine.Write for the short-write contract.
func (d *Device) Write(h int64, p []byte) (int, error) {
	s, err := d.lookup("write", h)
	if err != nil {
		return 0, err
	}
	n, err := d.engine.Write(s, p)
	telemetry.RecordWrite(context.Background(), d.name, len(p), n, err)
	if err != nil {
		d.metrics.RecordError(err.Error())
	}
	return n, err
}

// Read copies unread session bytes into p.  It returns 0 and a nil
// error at end of stream, and ErrNoData if nothing was ever written.
func (d *Device) Read(h int64, p []byte) (int, error) {
	s, err := d.lookup("read", h)
	if err != nil {
		return 0, err
	}
	n, err := d.engine.Read(s, p)
	telemetry.RecordRead(context.Background(), d.name, len(p), n, err)
	if err != nil {
		d.metrics.RecordError(err.Error())
	}
	return n, err
}

// Close ends the session, folding its byte counts into the device
// totals.  The handle is invalid afterwards.
func (d *Device) Close(h int64) error {
	d.mu.Lock()
	s, ok := d.sessions[h]
	if ok {
		delete(d.sessions, h)
	}
	d.mu.Unlock()
	if !ok {
		_, err := d.lookup("close", h)
		return err
	}
	return d.end(s)
}

// Session returns the current cursors and counters of an open session.
func (d *Device) Session(h int64) (session.Stats, error) {
	s, err := d.lookup("stat", h)
	if err != nil {
		return session.Stats{}, err
	}
	return s.Stats(), nil
}

// Totals returns the device lifetime counters.
func (d *Device) Totals() session.Totals { return d.mgr.Totals() }

// Shutdown ends every open session and makes the device refuse further
// calls with ErrNotFound.  Calling it again does nothing.
func (d *Device) Shutdown() error {
	d.mu.Lock()
	if d.shutdown {
		d.mu.Unlock()
		return nil
	}
	d.shutdown = true
	live := d.sessions
	d.sessions = make(map[int64]*session.Session)
	d.mu.Unlock()

	var errs []error
	for _, s := range live {
		if err := d.end(s); err != nil {
			errs = append(errs, err)
		}
	}
	if len(live) > 0 {
		d.logger.Info("shutdown ended %d open session(s)", len(live))
	}
	return errors.Join(errs...)
}

func (d *Device) end(s *session.Session) error {
	final, err := d.mgr.End(s)
	if err != nil {
		return err
	}
	d.metrics.SessionClosed()
	telemetry.RecordClose(context.Background(), d.name, final.ID, final.BytesRead, final.BytesWritten)
	d.logger.Verbose("session %d closed: read %d, wrote %d",
		final.ID, final.BytesRead, final.BytesWritten)
	return nil
}

// lookup resolves h.  A handle that was issued and since closed is a
// contract violation; one that was never issued is not found.
func (d *Device) lookup(op string, h int64) (*session.Session, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.shutdown {
		return nil, d.fail(op, h, errors.ErrNotFound)
	}
	if s, ok := d.sessions[h]; ok {
		return s, nil
	}
	if h > 0 && h <= d.mgr.Totals().Sessions {
		return nil, d.fail(op, h, errors.ErrContractViolation)
	}
	return nil, d.fail(op, h, errors.ErrNotFound)
}

func (d *Device) fail(op string, h int64, err error) error {
	err = errors.Op(op, h, err)
	d.metrics.RecordError(err.Error())
	return err
}
