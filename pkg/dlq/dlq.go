// Package dlq is the durable sink for messages that exhausted retries or
// failed permanently on the outbox publish path.
package dlq

import (
	"context"
	"log/slog"
	"time"

	"github.com/orderstream-io/orderstream/pkg/fault"
	"github.com/orderstream-io/orderstream/pkg/retry"
)

// Row is one dead-lettered message with enough data to replay it manually.
type Row struct {
	ID            string
	AggregateID   string
	EventType     string
	Payload       string
	ErrorMessage  string
	FailureCount  int
	FirstFailedAt time.Time
	LastFailedAt  time.Time
	CreatedAt     time.Time
}

// Store persists dead-letter rows. Insert is an idempotent upsert on ID so
// CDC re-delivery cannot duplicate rows.
type Store interface {
	// Insert writes or overwrites the row keyed by its ID.
	Insert(ctx context.Context, row Row) error

	// List returns up to limit rows for operator inspection.
	List(ctx context.Context, limit int) ([]Row, error)

	// Count returns the number of dead-letter rows.
	Count(ctx context.Context) (int64, error)
}

// Counter receives dead-letter totals; the metrics registry satisfies it.
type Counter interface {
	RecordDeadLetter(eventType string)
}

// Sink writes dead-letter rows through the retry engine. An insert that
// still fails after dlq.max_insert_retries is a fatal, alertable condition:
// the returned error carries KindDlqInsertFailed and the caller must hold
// the CDC checkpoint.
type Sink struct {
	store     Store
	retryCfg  retry.Config
	logger    *slog.Logger
	counter   Counter
	retryOpts []retry.Option
}

// Option configures a Sink.
type Option func(*Sink)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Sink) {
		s.logger = logger
	}
}

// WithCounter publishes dead-letter totals to metrics.
func WithCounter(c Counter) Option {
	return func(s *Sink) {
		s.counter = c
	}
}

// WithRetryOptions passes options through to the insert retry loop.
func WithRetryOptions(opts ...retry.Option) Option {
	return func(s *Sink) {
		s.retryOpts = opts
	}
}

// NewSink creates a sink over the given store. maxInsertRetries bounds the
// insert retry loop.
func NewSink(store Store, maxInsertRetries int, opts ...Option) *Sink {
	s := &Sink{
		store: store,
		retryCfg: retry.Config{
			MaxAttempts:  maxInsertRetries,
			InitialDelay: 100 * time.Millisecond,
			MaxDelay:     time.Second,
			Multiplier:   2.0,
		},
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Add inserts the row, retrying transient store failures.
func (s *Sink) Add(ctx context.Context, row Row) error {
	if row.CreatedAt.IsZero() {
		row.CreatedAt = time.Now().UTC()
	}

	_, err := retry.Do(ctx, s.retryCfg, "dlq_insert", func(ctx context.Context, attempt int) (struct{}, error) {
		return struct{}{}, s.store.Insert(ctx, row)
	}, s.retryOpts...)
	if err != nil {
		s.logger.Error("FATAL: dead-letter insert failed, checkpoint must not advance",
			"id", row.ID,
			"aggregate_id", row.AggregateID,
			"event_type", row.EventType,
			"error", err)
		return fault.Wrap(fault.KindDlqInsertFailed, err, "dead-letter insert for %s", row.ID)
	}

	if s.counter != nil {
		s.counter.RecordDeadLetter(row.EventType)
	}
	s.logger.Warn("message dead-lettered",
		"id", row.ID,
		"aggregate_id", row.AggregateID,
		"event_type", row.EventType,
		"failure_count", row.FailureCount,
		"error_message", row.ErrorMessage)
	return nil
}

// List exposes the store's operator read API.
func (s *Sink) List(ctx context.Context, limit int) ([]Row, error) {
	return s.store.List(ctx, limit)
}

// Count exposes the store's operator read API.
func (s *Sink) Count(ctx context.Context) (int64, error) {
	return s.store.Count(ctx)
}
