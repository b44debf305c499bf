// Package retry provides bounded exponential-backoff retry with
// transient/permanent error classification.
package retry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/orderstream-io/orderstream/pkg/fault"
)

// Config bounds a retry loop. The delay sequence is
// 0, initial, initial*multiplier, ... capped at MaxDelay.
type Config struct {
	// MaxAttempts is the total number of attempts, including the first.
	MaxAttempts int

	// InitialDelay is the sleep before the second attempt.
	InitialDelay time.Duration

	// MaxDelay caps the growing delay.
	MaxDelay time.Duration

	// Multiplier grows the delay between attempts. Must be > 1.
	Multiplier float64
}

// AggressiveConfig is the profile used on the broker publish path.
func AggressiveConfig() Config {
	return Config{
		MaxAttempts:  5,
		InitialDelay: 100 * time.Millisecond,
		MaxDelay:     500 * time.Millisecond,
		Multiplier:   2.0,
	}
}

// Observer receives attempt-level callbacks, e.g. for metrics.
type Observer interface {
	RecordRetryAttempt(op string, attempt int)
	RecordRetrySuccess(op string)
	RecordRetryFailure(op string)
}

// ErrExhausted marks failures where the error stayed transient but the
// attempt budget ran out. Match with errors.Is.
var ErrExhausted = errors.New("retry attempts exhausted")

// Failure wraps the final error of a retry loop together with what the loop
// observed. The consumer uses Attempts and FirstAttempt to populate
// dead-letter rows.
type Failure struct {
	// Op names the retried operation.
	Op string

	// Attempts is how many attempts were performed.
	Attempts int

	// Permanent is true when classification stopped the loop, false when
	// the budget ran out.
	Permanent bool

	// FirstAttempt and LastAttempt bracket the loop in wall time.
	FirstAttempt time.Time
	LastAttempt  time.Time

	// Err is the error of the final attempt.
	Err error
}

func (f *Failure) Error() string {
	if f.Permanent {
		return fmt.Sprintf("%s failed permanently after %d attempt(s): %v", f.Op, f.Attempts, f.Err)
	}
	return fmt.Sprintf("%s exhausted %d attempt(s): %v", f.Op, f.Attempts, f.Err)
}

func (f *Failure) Unwrap() error {
	return f.Err
}

// Is matches ErrExhausted for non-permanent failures.
func (f *Failure) Is(target error) bool {
	return target == ErrExhausted && !f.Permanent
}

// AsFailure extracts a *Failure from an error chain.
func AsFailure(err error) (*Failure, bool) {
	var f *Failure
	ok := errors.As(err, &f)
	return f, ok
}

type options struct {
	observer Observer
	timer    backoff.Timer
	now      func() time.Time
}

// Option configures a Do call.
type Option func(*options)

// WithObserver attaches attempt-level callbacks.
func WithObserver(obs Observer) Option {
	return func(o *options) {
		o.observer = obs
	}
}

// WithTimer replaces the sleep timer; tests inject a fake to observe the
// delay sequence without sleeping.
func WithTimer(t backoff.Timer) Option {
	return func(o *options) {
		o.timer = t
	}
}

// WithClock replaces the wall clock used for attempt timestamps.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		o.now = now
	}
}

// Do runs fn with at most cfg.MaxAttempts attempts. fn receives the
// 1-indexed attempt number so it can tag logs and metrics.
//
// The first attempt runs immediately. Errors that fault.IsTransient rejects
// stop the loop at once; transient errors sleep the current delay and retry
// until the budget runs out. The returned error is a *Failure on any
// unsuccessful outcome.
func Do[T any](ctx context.Context, cfg Config, op string, fn func(ctx context.Context, attempt int) (T, error), opts ...Option) (T, error) {
	o := options{now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}

	var zero T
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = cfg.InitialDelay
	policy.MaxInterval = cfg.MaxDelay
	policy.Multiplier = cfg.Multiplier
	policy.RandomizationFactor = 0
	policy.MaxElapsedTime = 0
	policy.Reset()

	var bo backoff.BackOff = policy
	if cfg.MaxAttempts > 0 {
		bo = backoff.WithMaxRetries(bo, uint64(cfg.MaxAttempts-1))
	}
	bo = backoff.WithContext(bo, ctx)

	var (
		result    T
		attempt   int
		permanent bool
		first     time.Time
		last      time.Time
	)

	operation := func() error {
		attempt++
		if o.observer != nil {
			o.observer.RecordRetryAttempt(op, attempt)
		}
		now := o.now()
		if first.IsZero() {
			first = now
		}
		last = now

		v, err := fn(ctx, attempt)
		if err == nil {
			result = v
			return nil
		}
		if !fault.IsTransient(err) {
			permanent = true
			return backoff.Permanent(err)
		}
		return err
	}

	err := backoff.RetryNotifyWithTimer(operation, bo, nil, o.timer)
	if err == nil {
		if o.observer != nil {
			o.observer.RecordRetrySuccess(op)
		}
		return result, nil
	}

	if o.observer != nil {
		o.observer.RecordRetryFailure(op)
	}
	return zero, &Failure{
		Op:           op,
		Attempts:     attempt,
		Permanent:    permanent,
		FirstAttempt: first,
		LastAttempt:  last,
		Err:          err,
	}
}
