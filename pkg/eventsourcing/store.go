package eventsourcing

import (
	"context"

	"github.com/orderstream-io/orderstream/pkg/fault"
)

// EventStore persists envelopes append-only under an optimistic version
// guard and co-commits outbox rows for reliable propagation.
type EventStore interface {
	// AppendEvents atomically appends envelopes to the aggregate's stream
	// and, when publishToOutbox is set, the matching outbox rows. The
	// commit applies only if the aggregate's current version equals
	// expectedVersion; otherwise it fails with a concurrency conflict and
	// writes nothing. Returns the new version on success.
	AppendEvents(ctx context.Context, aggregateID string, expectedVersion int64, envelopes []*Envelope, publishToOutbox bool) (int64, error)

	// LoadEvents returns the aggregate's envelopes in ascending sequence
	// order. Never partial: a read failure mid-stream surfaces as an error.
	LoadEvents(ctx context.Context, aggregateID string) ([]*Envelope, error)

	// GetCurrentVersion returns the last committed sequence number,
	// 0 if the aggregate has no events.
	GetCurrentVersion(ctx context.Context, aggregateID string) (int64, error)

	// AggregateExists reports whether the aggregate has any events.
	AggregateExists(ctx context.Context, aggregateID string) (bool, error)
}

// ValidateAppend checks the append_events input contract: envelopes
// non-empty, aggregate IDs matching, and sequence numbers contiguous from
// expectedVersion+1. Store implementations call this before touching
// storage.
func ValidateAppend(aggregateID string, expectedVersion int64, envelopes []*Envelope) error {
	if aggregateID == "" {
		return fault.New(fault.KindInvalidInput, "aggregate id must not be empty")
	}
	if expectedVersion < 0 {
		return fault.New(fault.KindInvalidInput, "expected version must not be negative, got %d", expectedVersion)
	}
	if len(envelopes) == 0 {
		return fault.New(fault.KindInvalidInput, "append requires at least one envelope")
	}
	for i, env := range envelopes {
		if env.AggregateID != aggregateID {
			return fault.New(fault.KindInvalidInput, "envelope %d targets aggregate %q, want %q", i, env.AggregateID, aggregateID)
		}
		want := expectedVersion + int64(i) + 1
		if env.SequenceNumber != want {
			return fault.New(fault.KindInvalidInput, "envelope %d has sequence %d, want %d", i, env.SequenceNumber, want)
		}
	}
	return nil
}

// LoadAggregate loads the aggregate's history and folds it into a fresh
// instance from factory.
func LoadAggregate[A Aggregate](ctx context.Context, store EventStore, aggregateID string, factory func() A) (A, error) {
	var zero A
	envelopes, err := store.LoadEvents(ctx, aggregateID)
	if err != nil {
		return zero, err
	}
	return LoadFromHistory(factory, envelopes)
}
