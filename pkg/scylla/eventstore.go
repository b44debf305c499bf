package scylla

import (
	"context"
	"log/slog"
	"time"

	"github.com/gocql/gocql"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/orderstream-io/orderstream/pkg/eventsourcing"
	"github.com/orderstream-io/orderstream/pkg/fault"
	"github.com/orderstream-io/orderstream/pkg/idgen"
)

const (
	insertEventStmt = `INSERT INTO event_store (
		aggregate_id, sequence_number, aggregate_type, event_id, event_type,
		event_version, event_data, causation_id, correlation_id, user_id,
		timestamp, metadata
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	insertOutboxStmt = `INSERT INTO outbox_messages (
		id, aggregate_id, aggregate_type, event_id, event_type, event_version,
		payload, topic, partition_key, causation_id, correlation_id,
		created_at, attempts
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?) USING TTL ?`

	createSequenceStmt = `INSERT INTO aggregate_sequence (aggregate_id, current_sequence, updated_at)
		VALUES (?, ?, ?) IF NOT EXISTS`

	advanceSequenceStmt = `UPDATE aggregate_sequence SET current_sequence = ?, updated_at = ?
		WHERE aggregate_id = ? IF current_sequence = ?`

	selectEventsStmt = `SELECT sequence_number, aggregate_type, event_id, event_type,
		event_version, event_data, causation_id, correlation_id, user_id,
		timestamp, metadata
		FROM event_store WHERE aggregate_id = ?`

	selectSequenceStmt = `SELECT current_sequence FROM aggregate_sequence WHERE aggregate_id = ?`
)

// Store is the gocql-backed event store with its transactional outbox.
//
// Commit mechanics: the aggregate_sequence advance is a lightweight
// transaction conditioned on the expected version; only the winner
// proceeds to a logged batch holding the event rows and their outbox rows.
// Events and outbox rows therefore commit atomically with respect to each
// other, and a lost race writes nothing.
type Store struct {
	session      *gocql.Session
	topics       map[string]string
	defaultTopic string
	logger       *slog.Logger
	tracer       trace.Tracer
	now          func() time.Time
}

// StoreOption configures a Store.
type StoreOption func(*Store)

// WithTopicMap routes aggregate types to outbox topics.
func WithTopicMap(topics map[string]string) StoreOption {
	return func(s *Store) {
		s.topics = topics
	}
}

// WithDefaultTopic sets the topic for aggregate types missing from the
// topic map.
func WithDefaultTopic(topic string) StoreOption {
	return func(s *Store) {
		s.defaultTopic = topic
	}
}

// WithStoreLogger sets the logger.
func WithStoreLogger(logger *slog.Logger) StoreOption {
	return func(s *Store) {
		s.logger = logger
	}
}

// WithStoreTracer sets the OpenTelemetry tracer.
func WithStoreTracer(tracer trace.Tracer) StoreOption {
	return func(s *Store) {
		s.tracer = tracer
	}
}

// WithStoreClock replaces the wall clock.
func WithStoreClock(now func() time.Time) StoreOption {
	return func(s *Store) {
		s.now = now
	}
}

// NewStore creates a store over an established session.
func NewStore(session *gocql.Session, opts ...StoreOption) *Store {
	s := &Store{
		session:      session,
		topics:       map[string]string{},
		defaultTopic: "events",
		logger:       slog.Default(),
		tracer:       noop.NewTracerProvider().Tracer("scylla"),
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// AppendEvents implements eventsourcing.EventStore.
func (s *Store) AppendEvents(ctx context.Context, aggregateID string, expectedVersion int64, envelopes []*eventsourcing.Envelope, publishToOutbox bool) (int64, error) {
	ctx, span := s.tracer.Start(ctx, "eventstore.append")
	defer span.End()
	span.SetAttributes(
		attribute.String("aggregate.id", aggregateID),
		attribute.Int64("expected.version", expectedVersion),
		attribute.Int("events", len(envelopes)),
	)

	if err := eventsourcing.ValidateAppend(aggregateID, expectedVersion, envelopes); err != nil {
		span.RecordError(err)
		return 0, err
	}

	// Serialize outbox payloads up front so an encoding failure writes
	// nothing.
	payloads := make([]string, len(envelopes))
	if publishToOutbox {
		for i, env := range envelopes {
			data, err := eventsourcing.EncodeEnvelope(env)
			if err != nil {
				span.RecordError(err)
				return 0, err
			}
			payloads[i] = string(data)
		}
	}

	newVersion := expectedVersion + int64(len(envelopes))
	if err := s.advanceSequence(ctx, aggregateID, expectedVersion, newVersion); err != nil {
		span.RecordError(err)
		return 0, err
	}

	batch := s.session.NewBatch(gocql.LoggedBatch).WithContext(ctx)
	for i, env := range envelopes {
		batch.Query(insertEventStmt,
			env.AggregateID,
			env.SequenceNumber,
			env.AggregateType,
			env.EventID,
			env.EventType,
			env.EventVersion,
			env.EventData,
			env.CausationID,
			env.CorrelationID,
			env.UserID,
			env.Timestamp,
			env.Metadata,
		)
		if publishToOutbox {
			batch.Query(insertOutboxStmt,
				idgen.MustNewSortableID(),
				env.AggregateID,
				env.AggregateType,
				env.EventID,
				env.EventType,
				env.EventVersion,
				payloads[i],
				s.topicFor(env.AggregateType),
				env.AggregateID,
				env.CausationID,
				env.CorrelationID,
				env.Timestamp,
				0,
				outboxTTLSeconds,
			)
		}
	}

	if err := s.session.ExecuteBatch(batch); err != nil {
		span.RecordError(err)
		return 0, storageFault(err, "commit %d event(s) for aggregate %s", len(envelopes), aggregateID)
	}

	s.logger.Debug("events appended",
		"aggregate_id", aggregateID,
		"events", len(envelopes),
		"new_version", newVersion,
		"outbox", publishToOutbox)
	return newVersion, nil
}

// advanceSequence performs the conditional version advance. A failed
// condition means a concurrent writer won; nothing has been written.
func (s *Store) advanceSequence(ctx context.Context, aggregateID string, expectedVersion, newVersion int64) error {
	var (
		query *gocql.Query
		now   = s.now().UTC()
	)
	if expectedVersion == 0 {
		query = s.session.Query(createSequenceStmt, aggregateID, newVersion, now)
	} else {
		query = s.session.Query(advanceSequenceStmt, newVersion, now, aggregateID, expectedVersion)
	}

	previous := map[string]interface{}{}
	applied, err := query.WithContext(ctx).MapScanCAS(previous)
	if err != nil {
		return storageFault(err, "advance sequence for aggregate %s", aggregateID)
	}
	if !applied {
		actual := int64(0)
		if v, ok := previous["current_sequence"].(int64); ok {
			actual = v
		}
		return fault.Wrap(fault.KindConcurrencyConflict, fault.ErrConcurrencyConflict,
			"aggregate %s at version %d, expected %d", aggregateID, actual, expectedVersion)
	}
	return nil
}

// LoadEvents implements eventsourcing.EventStore.
func (s *Store) LoadEvents(ctx context.Context, aggregateID string) ([]*eventsourcing.Envelope, error) {
	ctx, span := s.tracer.Start(ctx, "eventstore.load")
	defer span.End()
	span.SetAttributes(attribute.String("aggregate.id", aggregateID))

	iter := s.session.Query(selectEventsStmt, aggregateID).WithContext(ctx).Iter()

	var envelopes []*eventsourcing.Envelope
	for {
		env := &eventsourcing.Envelope{AggregateID: aggregateID}
		if !iter.Scan(
			&env.SequenceNumber,
			&env.AggregateType,
			&env.EventID,
			&env.EventType,
			&env.EventVersion,
			&env.EventData,
			&env.CausationID,
			&env.CorrelationID,
			&env.UserID,
			&env.Timestamp,
			&env.Metadata,
		) {
			break
		}
		env.Timestamp = env.Timestamp.UTC()
		if env.Metadata == nil {
			env.Metadata = map[string]string{}
		}
		envelopes = append(envelopes, env)
	}
	if err := iter.Close(); err != nil {
		span.RecordError(err)
		return nil, storageFault(err, "load events for aggregate %s", aggregateID)
	}
	return envelopes, nil
}

// GetCurrentVersion implements eventsourcing.EventStore.
func (s *Store) GetCurrentVersion(ctx context.Context, aggregateID string) (int64, error) {
	var current int64
	err := s.session.Query(selectSequenceStmt, aggregateID).WithContext(ctx).Scan(&current)
	if err == gocql.ErrNotFound {
		return 0, nil
	}
	if err != nil {
		return 0, storageFault(err, "read version of aggregate %s", aggregateID)
	}
	return current, nil
}

// AggregateExists implements eventsourcing.EventStore.
func (s *Store) AggregateExists(ctx context.Context, aggregateID string) (bool, error) {
	version, err := s.GetCurrentVersion(ctx, aggregateID)
	if err != nil {
		return false, err
	}
	return version > 0, nil
}

// topicFor derives the outbox topic from the aggregate type.
func (s *Store) topicFor(aggregateType string) string {
	if topic, ok := s.topics[aggregateType]; ok {
		return topic
	}
	return s.defaultTopic
}

var _ eventsourcing.EventStore = (*Store)(nil)
