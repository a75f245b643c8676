// Package retry runs operations again after transient failures, with
// exponential backoff and jitter.
//
// Classification is explicit: an operation marks an error retryable by
// wrapping it with Transient. Unwrapped errors are treated as permanent
// and returned immediately. Permanent exists to override a broader
// transient wrapper from deeper in the call chain.
package retry

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"time"
)

// Config controls attempt count and backoff shape.
type Config struct {
	// MaxAttempts is the total number of tries, including the first.
	MaxAttempts int

	// InitialDelay is the wait after the first failure.
	InitialDelay time.Duration

	// MaxDelay caps the backoff growth.
	MaxDelay time.Duration

	// Base is the exponential growth factor between attempts.
	Base float64

	// Jitter randomizes each delay by 0.8x to 1.2x to avoid thundering herds.
	Jitter bool
}

// Default is a balanced profile for unclassified work.
func Default() Config {
	return Config{MaxAttempts: 3, InitialDelay: 100 * time.Millisecond, MaxDelay: 5 * time.Second, Base: 2.0, Jitter: true}
}

// Database is a conservative profile for short database operations.
func Database() Config {
	return Config{MaxAttempts: 3, InitialDelay: 50 * time.Millisecond, MaxDelay: 2 * time.Second, Base: 2.0, Jitter: true}
}

// Network is a patient profile for outbound network calls such as SMTP.
func Network() Config {
	return Config{MaxAttempts: 5, InitialDelay: 200 * time.Millisecond, MaxDelay: 10 * time.Second, Base: 2.0, Jitter: true}
}

// Gentle is a low-effort profile for non-critical work.
func Gentle() Config {
	return Config{MaxAttempts: 2, InitialDelay: 100 * time.Millisecond, MaxDelay: time.Second, Base: 1.5, Jitter: false}
}

// Delay returns the backoff before the given retry (attempt is 1-based:
// the delay after the attempt-th failure).
func (c Config) Delay(attempt int) time.Duration {
	base := float64(c.InitialDelay)
	d := base * math.Pow(c.Base, float64(attempt-1))
	if max := float64(c.MaxDelay); d > max {
		d = max
	}
	if c.Jitter {
		d *= 0.8 + 0.4*rand.Float64()
	}
	return time.Duration(d)
}

type transientError struct{ err error }

func (e *transientError) Error() string { return e.err.Error() }
func (e *transientError) Unwrap() error { return e.err }

type permanentError struct{ err error }

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Transient marks err as worth retrying. Returns nil for nil.
func Transient(err error) error {
	if err == nil {
		return nil
	}
	return &transientError{err: err}
}

// Permanent marks err as not retryable even when a caller further down
// wrapped it as transient. Returns nil for nil.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// IsTransient reports whether err should be retried. A Permanent mark
// closer to the surface wins over a Transient mark underneath.
func IsTransient(err error) bool {
	for err != nil {
		switch err.(type) {
		case *permanentError:
			return false
		case *transientError:
			return true
		}
		err = errors.Unwrap(err)
	}
	return false
}

// Do runs op until it succeeds, fails permanently, exhausts cfg.MaxAttempts,
// or ctx is done. The last error is returned unwrapped of retry markers.
func Do(ctx context.Context, cfg Config, op func(ctx context.Context) error) error {
	attempts := cfg.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		err = op(ctx)
		if err == nil {
			return nil
		}
		if !IsTransient(err) || attempt == attempts {
			return unmark(err)
		}

		timer := time.NewTimer(cfg.Delay(attempt))
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
	return unmark(err)
}

// unmark strips retry classification wrappers from the surface of err.
func unmark(err error) error {
	for {
		switch e := err.(type) {
		case *transientError:
			err = e.err
		case *permanentError:
			err = e.err
		default:
			return err
		}
	}
}
