package cdc

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/orderstream-io/orderstream/pkg/breaker"
	"github.com/orderstream-io/orderstream/pkg/broker"
	"github.com/orderstream-io/orderstream/pkg/dlq"
	"github.com/orderstream-io/orderstream/pkg/fault"
	"github.com/orderstream-io/orderstream/pkg/idgen"
	"github.com/orderstream-io/orderstream/pkg/outbox"
	"github.com/orderstream-io/orderstream/pkg/retry"
)

// Metrics receives per-record outcomes; the metrics registry satisfies it.
type Metrics interface {
	RecordProcessed(eventType string)
	RecordFailed(eventType, reason string)
	ObserveProcessing(eventType string, d time.Duration)
}

// Consumer drives outbox change records to their terminal state:
// Received → Decoded → Publishing → Delivered | DeadLettered. The stream's
// checkpoint only advances once a record is terminal, and every failure
// path ends in the dead-letter sink, so an acknowledged record is either at
// the broker or in the DLQ.
type Consumer struct {
	stream    Stream
	publisher broker.Publisher
	brk       *breaker.Breaker
	sink      *dlq.Sink
	retryCfg  retry.Config
	retryOpts []retry.Option
	logger    *slog.Logger
	tracer    trace.Tracer
	metrics   Metrics
	now       func() time.Time
}

// ConsumerOption configures a Consumer.
type ConsumerOption func(*Consumer)

// WithRetryConfig overrides the publish retry profile (aggressive by
// default).
func WithRetryConfig(cfg retry.Config) ConsumerOption {
	return func(c *Consumer) {
		c.retryCfg = cfg
	}
}

// WithRetryOptions passes options through to the publish retry loop.
func WithRetryOptions(opts ...retry.Option) ConsumerOption {
	return func(c *Consumer) {
		c.retryOpts = opts
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) ConsumerOption {
	return func(c *Consumer) {
		c.logger = logger
	}
}

// WithTracer sets the OpenTelemetry tracer.
func WithTracer(tracer trace.Tracer) ConsumerOption {
	return func(c *Consumer) {
		c.tracer = tracer
	}
}

// WithMetrics publishes per-record outcomes.
func WithMetrics(m Metrics) ConsumerOption {
	return func(c *Consumer) {
		c.metrics = m
	}
}

// WithClock replaces the wall clock.
func WithClock(now func() time.Time) ConsumerOption {
	return func(c *Consumer) {
		c.now = now
	}
}

// NewConsumer wires a consumer over a stream, a publisher guarded by the
// breaker, and a dead-letter sink.
func NewConsumer(stream Stream, publisher broker.Publisher, brk *breaker.Breaker, sink *dlq.Sink, opts ...ConsumerOption) *Consumer {
	c := &Consumer{
		stream:    stream,
		publisher: publisher,
		brk:       brk,
		sink:      sink,
		retryCfg:  retry.AggressiveConfig(),
		logger:    slog.Default(),
		tracer:    noop.NewTracerProvider().Tracer("cdc"),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Run consumes records until ctx is done or the pipeline hits a condition
// that must hold the checkpoint (dead-letter insert failure). Each record
// is fully processed and committed before the next is read, which preserves
// the stream's per-partition order at the broker.
func (c *Consumer) Run(ctx context.Context) error {
	for {
		record, err := c.stream.Next(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		}

		if err := c.processRecord(ctx, record); err != nil {
			// Only a failed dead-letter insert lands here; committing
			// would silently lose the message.
			return err
		}

		if err := c.stream.Commit(ctx, record); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
	}
}

// processRecord takes one record to a terminal state. A nil return means
// the record may be acknowledged.
func (c *Consumer) processRecord(ctx context.Context, record *ChangeRecord) error {
	if record.Operation != OpRowInsert && record.Operation != OpPostImage {
		return nil
	}

	ctx, span := c.tracer.Start(ctx, "cdc.process_record")
	defer span.End()
	start := c.now()

	row, missing := decodeRow(record)
	span.SetAttributes(
		attribute.String("outbox.id", row.ID),
		attribute.String("event.type", row.EventType),
	)

	if len(missing) > 0 {
		err := fault.New(fault.KindEncodingFailed, "outbox change record missing required columns %v", missing)
		span.RecordError(err)
		c.recordFailed(row.EventType, "decode")
		return c.deadLetter(ctx, dlq.Row{
			ID:            row.ID,
			AggregateID:   row.AggregateID,
			EventType:     row.EventType,
			Payload:       row.Payload,
			ErrorMessage:  err.Error(),
			FailureCount:  0,
			FirstFailedAt: start,
			LastFailedAt:  start,
		})
	}

	err := c.publish(ctx, row)
	if err == nil {
		if c.metrics != nil {
			c.metrics.RecordProcessed(row.EventType)
			c.metrics.ObserveProcessing(row.EventType, c.now().Sub(start))
		}
		c.logger.Debug("outbox row delivered",
			"id", row.ID,
			"event_id", row.EventID,
			"topic", row.Topic)
		return nil
	}

	span.RecordError(err)
	failure, _ := retry.AsFailure(err)
	dead := dlq.Row{
		ID:           row.ID,
		AggregateID:  row.AggregateID,
		EventType:    row.EventType,
		Payload:      row.Payload,
		ErrorMessage: err.Error(),
	}
	if failure != nil {
		dead.FailureCount = failure.Attempts
		dead.FirstFailedAt = failure.FirstAttempt
		dead.LastFailedAt = failure.LastAttempt
	} else {
		dead.FailureCount = 1
		dead.FirstFailedAt = start
		dead.LastFailedAt = c.now()
	}

	c.recordFailed(row.EventType, failureReason(err))
	if derr := c.deadLetter(ctx, dead); derr != nil {
		return derr
	}
	if c.metrics != nil {
		c.metrics.ObserveProcessing(row.EventType, c.now().Sub(start))
	}
	return nil
}

// publish sends the row through the breaker with the aggressive retry
// profile. The broker preserves per-key order, so the partition key rides
// as the message key and the event ID as the dedup key.
func (c *Consumer) publish(ctx context.Context, row outbox.Row) error {
	msg := broker.Message{
		Topic:   row.Topic,
		Key:     row.PartitionKey,
		Value:   []byte(row.Payload),
		DedupID: row.EventID,
		Headers: map[string]string{
			"aggregate_id":   row.AggregateID,
			"aggregate_type": row.AggregateType,
			"event_type":     row.EventType,
			"correlation_id": row.CorrelationID,
		},
	}

	_, err := retry.Do(ctx, c.retryCfg, "broker_publish", func(ctx context.Context, attempt int) (struct{}, error) {
		c.logger.Debug("publishing outbox row",
			"id", row.ID,
			"event_id", row.EventID,
			"attempt", attempt)
		_, err := c.brk.Execute(func() (any, error) {
			return nil, c.publisher.Publish(ctx, msg)
		})
		return struct{}{}, err
	}, c.retryOpts...)
	return err
}

func (c *Consumer) deadLetter(ctx context.Context, dead dlq.Row) error {
	if dead.ID == "" {
		dead.ID = idgen.MustNewSortableID()
	}
	return c.sink.Add(ctx, dead)
}

func (c *Consumer) recordFailed(eventType, reason string) {
	if c.metrics != nil {
		c.metrics.RecordFailed(eventType, reason)
	}
}

// decodeRow extracts the outbox row from the change record, reporting
// which required columns were absent.
func decodeRow(record *ChangeRecord) (outbox.Row, []string) {
	var row outbox.Row
	var missing []string

	get := func(col string, required bool, into *string) {
		v, ok := record.StringColumn(col)
		if !ok {
			if required {
				missing = append(missing, col)
			}
			return
		}
		*into = v
	}

	get(outbox.ColID, true, &row.ID)
	get(outbox.ColAggregateID, true, &row.AggregateID)
	get(outbox.ColAggregateType, false, &row.AggregateType)
	get(outbox.ColEventID, true, &row.EventID)
	get(outbox.ColEventType, true, &row.EventType)
	get(outbox.ColPayload, true, &row.Payload)
	get(outbox.ColTopic, true, &row.Topic)
	get(outbox.ColPartitionKey, true, &row.PartitionKey)
	get(outbox.ColCausationID, false, &row.CausationID)
	get(outbox.ColCorrelationID, false, &row.CorrelationID)

	if v, ok := record.IntColumn(outbox.ColEventVersion); ok {
		row.EventVersion = v
	}
	if t, ok := record.TimeColumn(outbox.ColCreatedAt); ok {
		row.CreatedAt = t
	}
	if v, ok := record.IntColumn(outbox.ColAttempts); ok {
		row.Attempts = v
	}

	return row, missing
}

// failureReason maps an error to the reason label of
// cdc_events_failed_total.
func failureReason(err error) string {
	if errors.Is(err, retry.ErrExhausted) {
		return "retry_exhausted"
	}
	switch fault.KindOf(err) {
	case fault.KindEncodingFailed:
		return "decode"
	case fault.KindCircuitOpen:
		return "circuit_open"
	case fault.KindBrokerUnavailable:
		return "broker_unavailable"
	default:
		return "permanent"
	}
}
