package eventsourcing

import (
	"context"
	"sync"

	"github.com/orderstream-io/orderstream/pkg/fault"
)

// InMemoryEventStore is a map-backed EventStore for tests and local
// development. It honors the same version-guard and atomicity contract as
// the production store and records would-be outbox rows for inspection.
type InMemoryEventStore struct {
	mu      sync.RWMutex
	streams map[string][]*Envelope
	outbox  []*Envelope
}

// NewInMemoryEventStore creates an empty in-memory event store.
func NewInMemoryEventStore() *InMemoryEventStore {
	return &InMemoryEventStore{
		streams: make(map[string][]*Envelope),
	}
}

// AppendEvents implements EventStore.
func (s *InMemoryEventStore) AppendEvents(ctx context.Context, aggregateID string, expectedVersion int64, envelopes []*Envelope, publishToOutbox bool) (int64, error) {
	if err := ValidateAppend(aggregateID, expectedVersion, envelopes); err != nil {
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	stream := s.streams[aggregateID]
	current := int64(len(stream))
	if current != expectedVersion {
		return 0, fault.Wrap(fault.KindConcurrencyConflict, fault.ErrConcurrencyConflict, "aggregate %s at version %d, expected %d", aggregateID, current, expectedVersion)
	}

	s.streams[aggregateID] = append(stream, envelopes...)
	if publishToOutbox {
		s.outbox = append(s.outbox, envelopes...)
	}
	return expectedVersion + int64(len(envelopes)), nil
}

// LoadEvents implements EventStore.
func (s *InMemoryEventStore) LoadEvents(ctx context.Context, aggregateID string) ([]*Envelope, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stream := s.streams[aggregateID]
	out := make([]*Envelope, len(stream))
	copy(out, stream)
	return out, nil
}

// GetCurrentVersion implements EventStore.
func (s *InMemoryEventStore) GetCurrentVersion(ctx context.Context, aggregateID string) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return int64(len(s.streams[aggregateID])), nil
}

// AggregateExists implements EventStore.
func (s *InMemoryEventStore) AggregateExists(ctx context.Context, aggregateID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.streams[aggregateID]) > 0, nil
}

// OutboxEntries returns the envelopes that were routed to the outbox, in
// commit order.
func (s *InMemoryEventStore) OutboxEntries() []*Envelope {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*Envelope, len(s.outbox))
	copy(out, s.outbox)
	return out
}
