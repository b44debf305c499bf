package eventsourcing

import (
	"context"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/orderstream-io/orderstream/pkg/fault"
	"github.com/orderstream-io/orderstream/pkg/idgen"
)

// CommandHandler executes commands against one aggregate type: load history,
// hand the command to the aggregate, wrap produced events in envelopes, and
// append them under the optimistic version guard.
//
// The handler never retries: concurrency conflicts carry enough metadata for
// a higher layer to rerun the load+handle cycle, and domain errors surface
// verbatim.
type CommandHandler[A Aggregate] struct {
	store   EventStore
	factory func() A
	logger  *slog.Logger
	tracer  trace.Tracer
	now     func() time.Time
}

// HandlerOption configures a CommandHandler.
type HandlerOption[A Aggregate] func(*CommandHandler[A])

// WithHandlerLogger sets the logger.
func WithHandlerLogger[A Aggregate](logger *slog.Logger) HandlerOption[A] {
	return func(h *CommandHandler[A]) {
		h.logger = logger
	}
}

// WithHandlerTracer sets the OpenTelemetry tracer.
func WithHandlerTracer[A Aggregate](tracer trace.Tracer) HandlerOption[A] {
	return func(h *CommandHandler[A]) {
		h.tracer = tracer
	}
}

// WithHandlerClock sets the time source used for envelope timestamps.
func WithHandlerClock[A Aggregate](now func() time.Time) HandlerOption[A] {
	return func(h *CommandHandler[A]) {
		h.now = now
	}
}

// NewCommandHandler creates a handler for the aggregate type produced by
// factory.
func NewCommandHandler[A Aggregate](store EventStore, factory func() A, opts ...HandlerOption[A]) *CommandHandler[A] {
	h := &CommandHandler[A]{
		store:   store,
		factory: factory,
		logger:  slog.Default(),
		tracer:  noop.NewTracerProvider().Tracer("eventsourcing"),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Execute runs one command. Returns the aggregate's new version.
func (h *CommandHandler[A]) Execute(ctx context.Context, cmd Command, meta CommandMetadata) (int64, error) {
	ctx, span := h.tracer.Start(ctx, "command.execute")
	defer span.End()

	aggregateID := cmd.AggregateID()
	correlationID := meta.CorrelationID
	if correlationID == "" {
		correlationID = idgen.NewCorrelationID()
	}

	span.SetAttributes(
		attribute.String("command.type", cmd.CommandType()),
		attribute.String("aggregate.id", aggregateID),
		attribute.String("correlation.id", correlationID),
	)

	agg, expectedVersion, err := h.prepare(ctx, cmd)
	if err != nil {
		span.RecordError(err)
		return 0, err
	}

	events, err := agg.HandleCommand(cmd)
	if err != nil {
		span.RecordError(err)
		h.logger.Warn("command rejected by aggregate",
			"command_type", cmd.CommandType(),
			"aggregate_id", aggregateID,
			"error", err)
		return 0, fault.Wrap(fault.KindDomainViolation, err, "%s rejected by aggregate %s", cmd.CommandType(), aggregateID)
	}
	if len(events) == 0 {
		return expectedVersion, nil
	}

	ts := h.now()
	envelopes := make([]*Envelope, len(events))
	for i, event := range events {
		env, err := NewEnvelope(aggregateID, agg.AggregateType(), expectedVersion+int64(i)+1, ts, event, EventMetadata{
			CausationID:   cmd.CommandID(),
			CorrelationID: correlationID,
			UserID:        meta.UserID,
			Custom:        meta.Custom,
		})
		if err != nil {
			span.RecordError(err)
			return 0, err
		}
		envelopes[i] = env
	}

	newVersion, err := h.store.AppendEvents(ctx, aggregateID, expectedVersion, envelopes, true)
	if err != nil {
		span.RecordError(err)
		return 0, err
	}

	h.logger.Info("command executed",
		"command_type", cmd.CommandType(),
		"aggregate_id", aggregateID,
		"correlation_id", correlationID,
		"events", len(envelopes),
		"new_version", newVersion)

	return newVersion, nil
}

// prepare resolves the target aggregate and the expected version. A missing
// aggregate is only acceptable for creation commands.
func (h *CommandHandler[A]) prepare(ctx context.Context, cmd Command) (A, int64, error) {
	var zero A

	exists, err := h.store.AggregateExists(ctx, cmd.AggregateID())
	if err != nil {
		return zero, 0, err
	}

	if !exists {
		if _, ok := cmd.(Creator); !ok {
			return zero, 0, fault.New(fault.KindInvalidInput, "aggregate %s does not exist and %s is not a creation command", cmd.AggregateID(), cmd.CommandType())
		}
		return h.factory(), 0, nil
	}

	agg, err := LoadAggregate(ctx, h.store, cmd.AggregateID(), h.factory)
	if err != nil {
		return zero, 0, err
	}
	return agg, agg.Version(), nil
}
