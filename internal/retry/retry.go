// Package retry repeats an operation with exponential backoff until it
// succeeds, fails permanently, or runs out of attempts or time.
//
// chrdev uses it to wait for a device server's socket while the server
// is still registering.
package retry

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"syscall"
	"time"
)

// PermanentError stops the retry loop.  Return [Permanent](err) from
// the operation to give up at once.
type PermanentError struct {
	Err error
}

func (e *PermanentError) Error() string { return e.Err.Error() }
func (e *PermanentError) Unwrap() error { return e.Err }

// Permanent marks err as not worth retrying.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &PermanentError{Err: err}
}

// IsPermanent reports whether err has been marked as permanent.
func IsPermanent(err error) bool {
	var pe *PermanentError
	return errors.As(err, &pe)
}

// SocketNotReady reports whether a dial failed only because nothing is
// listening yet: the socket file is missing or refuses connections.
func SocketNotReady(err error) bool {
	return errors.Is(err, syscall.ENOENT) || errors.Is(err, syscall.ECONNREFUSED)
}

// Backoff is an exponential retry policy.  The zero value retries
// forever with the default delays.
type Backoff struct {
	InitialDelay time.Duration // first wait, default 50ms
	MaxDelay     time.Duration // cap on one wait, default 1s
	Multiplier   float64       // growth per attempt, default 2
	MaxAttempts  int           // counts the first try; 0 retries until ctx is done
	Jitter       bool          // spread each wait by ±25%

	// Retryable, when set, decides which failures are worth another
	// attempt.  Anything it rejects ends the loop as if permanent.
	Retryable func(error) bool
}

// DefaultBackoff suits a local socket: short first waits and a bounded
// number of tries.
func DefaultBackoff() *Backoff {
	return &Backoff{
		InitialDelay: 50 * time.Millisecond,
		MaxDelay:     time.Second,
		Multiplier:   2,
		MaxAttempts:  8,
		Jitter:       true,
	}
}

// DialBackoff is DefaultBackoff retrying only while the server socket
// is not ready.
func DialBackoff() *Backoff {
	b := DefaultBackoff()
	b.Retryable = SocketNotReady
	return b
}

// Do calls fn until it returns nil or a failure that should not be
// retried, or until the attempt budget or ctx is exhausted.  attempt
// is 1-based.
func (b *Backoff) Do(ctx context.Context, fn func(attempt int) error) error {
	wait := b.first()
	for attempt := 1; ; attempt++ {
		err := fn(attempt)
		switch {
		case err == nil:
			return nil
		case IsPermanent(err):
			return errors.Unwrap(err)
		case b.Retryable != nil && !b.Retryable(err):
			return err
		case b.MaxAttempts > 0 && attempt >= b.MaxAttempts:
			return fmt.Errorf("gave up after %d attempts: %w", attempt, err)
		}

		if cerr := sleep(ctx, b.spread(wait)); cerr != nil {
			return fmt.Errorf("retry cancelled: %w", errors.Join(cerr, err))
		}
		wait = b.grow(wait)
	}
}

func (b *Backoff) first() time.Duration {
	if b.InitialDelay > 0 {
		return b.InitialDelay
	}
	return 50 * time.Millisecond
}

func (b *Backoff) grow(d time.Duration) time.Duration {
	m := b.Multiplier
	if m <= 0 {
		m = 2
	}
	limit := b.MaxDelay
	if limit <= 0 {
		limit = time.Second
	}
	return min(time.Duration(float64(d)*m), limit)
}

// spread applies ±25% jitter when enabled, never going below 1ms.
func (b *Backoff) spread(d time.Duration) time.Duration {
	if !b.Jitter {
		return d
	}
	quarter := float64(d) / 4
	return max(d+time.Duration(rand.Float64()*2*quarter-quarter), time.Millisecond)
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
