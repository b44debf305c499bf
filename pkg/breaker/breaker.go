// Package breaker guards broker calls with a three-state circuit breaker.
package breaker

import (
	"errors"
	"log/slog"
	"time"

	"github.com/sony/gobreaker"

	"github.com/orderstream-io/orderstream/pkg/fault"
)

// Config tunes the breaker.
type Config struct {
	// Name identifies the breaker in logs and metrics.
	Name string

	// FailureThreshold is the number of consecutive failures in Closed
	// that trips the breaker Open.
	FailureThreshold uint32

	// Timeout is the cooldown in Open before a probe call is allowed.
	Timeout time.Duration

	// SuccessThreshold is the number of consecutive probe successes in
	// HalfOpen that closes the breaker again.
	SuccessThreshold uint32
}

// DefaultConfig returns the engine defaults.
func DefaultConfig(name string) Config {
	return Config{
		Name:             name,
		FailureThreshold: 5,
		Timeout:          30 * time.Second,
		SuccessThreshold: 3,
	}
}

// StateGauge receives state transitions; the metrics registry satisfies it
// with circuit_breaker_state (0=Closed, 1=Open, 2=HalfOpen).
type StateGauge interface {
	Set(value float64)
}

// Breaker wraps a downstream call. A rejected call fails fast with
// fault.ErrCircuitOpen and is never counted as a downstream failure.
type Breaker struct {
	cb     *gobreaker.CircuitBreaker
	logger *slog.Logger
}

// Option configures a Breaker.
type Option func(*settings)

type settings struct {
	logger *slog.Logger
	gauge  StateGauge
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *settings) {
		s.logger = logger
	}
}

// WithStateGauge publishes state transitions to a gauge.
func WithStateGauge(gauge StateGauge) Option {
	return func(s *settings) {
		s.gauge = gauge
	}
}

// New creates a breaker with the given config.
func New(cfg Config, opts ...Option) *Breaker {
	s := settings{logger: slog.Default()}
	for _, opt := range opts {
		opt(&s)
	}

	b := &Breaker{logger: s.logger}

	b.cb = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        cfg.Name,
		MaxRequests: cfg.SuccessThreshold,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.FailureThreshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			s.logger.Warn("circuit breaker state change",
				"breaker", name,
				"from", from.String(),
				"to", to.String())
			if s.gauge != nil {
				s.gauge.Set(stateValue(to))
			}
		},
	})

	if s.gauge != nil {
		s.gauge.Set(stateValue(gobreaker.StateClosed))
	}
	return b
}

// Execute runs op through the breaker. Rejections surface as
// fault.ErrCircuitOpen (transient); downstream errors pass through
// unchanged.
func (b *Breaker) Execute(op func() (any, error)) (any, error) {
	v, err := b.cb.Execute(op)
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, fault.Wrap(fault.KindCircuitOpen, fault.ErrCircuitOpen, "breaker %s rejected call", b.cb.Name())
		}
		return nil, err
	}
	return v, nil
}

// State returns the current state name, for health reporting.
func (b *Breaker) State() string {
	return b.cb.State().String()
}

func stateValue(s gobreaker.State) float64 {
	switch s {
	case gobreaker.StateOpen:
		return 1
	case gobreaker.StateHalfOpen:
		return 2
	default:
		return 0
	}
}
