// Package errors provides the failure taxonomy shared by every chrdev
// layer.
//
// The sentinels name the kind of failure; the structured types carry the
// operation and session that failed so callers and logs get context
// without string parsing.  None of these failures is retried internally.
package errors

import (
	"errors"
	"fmt"
)

// ── Sentinel errors ──────────────────────────────────────────────────

var (
	ErrNotFound          = errors.New("no such device or handle")
	ErrAllocation        = errors.New("allocation failed")
	ErrNoData            = errors.New("no data written")
	ErrOutOfSpace        = errors.New("no space left in buffer")
	ErrContractViolation = errors.New("operation not valid in current state")
)

// ── Structured error types ───────────────────────────────────────────

// DeviceError reports a failed device operation.
type DeviceError struct {
	Op      string // "open", "read", "write", "close"
	Session int64  // session id, 0 when none was involved
	Err     error
}

func (e *DeviceError) Error() string {
	if e.Session > 0 {
		return fmt.Sprintf("%s session %d: %v", e.Op, e.Session, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *DeviceError) Unwrap() error { return e.Err }

// StageError reports a registration stage that could not be completed.
type StageError struct {
	Stage string
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("register %s: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }

// ConfigError represents an invalid configuration value.
type ConfigError struct {
	Field   string      // config field name
	Value   interface{} // the invalid value (nil if missing)
	Message string      // human-readable explanation
	Hint    string      // suggestion for the user (optional)
}

func (e *ConfigError) Error() string {
	msg := fmt.Sprintf("config: --%s", e.Field)
	if e.Value != nil {
		msg += fmt.Sprintf("=%v", e.Value)
	}
	msg += ": " + e.Message
	if e.Hint != "" {
		msg += "\n  hint: " + e.Hint
	}
	return msg
}

// ── Constructors ─────────────────────────────────────────────────────

// Op wraps err as a DeviceError for the given operation and session.
// A nil err yields nil.
func Op(op string, session int64, err error) error {
	if err == nil {
		return nil
	}
	return &DeviceError{Op: op, Session: session, Err: err}
}

// ── Wire codes ───────────────────────────────────────────────────────
//
// Codes travel in the transport status byte.  Zero is success.

const (
	CodeOK uint8 = iota
	CodeNotFound
	CodeAllocation
	CodeNoData
	CodeOutOfSpace
	CodeContractViolation
	CodeInternal
)

var codeSentinels = map[uint8]error{
	CodeNotFound:          ErrNotFound,
	CodeAllocation:        ErrAllocation,
	CodeNoData:            ErrNoData,
	CodeOutOfSpace:        ErrOutOfSpace,
	CodeContractViolation: ErrContractViolation,
}

// Code classifies err into its wire code.
func Code(err error) uint8 {
	if err == nil {
		return CodeOK
	}
	for code, sentinel := range codeSentinels {
		if errors.Is(err, sentinel) {
			return code
		}
	}
	return CodeInternal
}

// FromCode rebuilds an error from a wire code and message so that
// errors.Is still matches the sending side's sentinel.
func FromCode(code uint8, msg string) error {
	if code == CodeOK {
		return nil
	}
	sentinel, ok := codeSentinels[code]
	if !ok {
		return &RemoteError{Message: msg}
	}
	return &RemoteError{Message: msg, Err: sentinel}
}

// RemoteError is a failure reported by the other end of a transport.
type RemoteError struct {
	Message string
	Err     error
}

func (e *RemoteError) Error() string { return "remote: " + e.Message }

func (e *RemoteError) Unwrap() error { return e.Err }

// ── Re-exports for convenience ───────────────────────────────────────

// As is [errors.As].
func As(err error, target interface{}) bool { return errors.As(err, target) }

// Is is [errors.Is].
func Is(err, target error) bool { return errors.Is(err, target) }

// New is [errors.New].
func New(text string) error { return errors.New(text) }

// Unwrap is [errors.Unwrap].
func Unwrap(err error) error { return errors.Unwrap(err) }

// Join is [errors.Join].
func Join(errs ...error) error { return errors.Join(errs...) }
