package eventsourcing

import (
	"github.com/orderstream-io/orderstream/pkg/fault"
)

// DomainEvent is the taxonomy contract every concrete event shape
// implements. The envelope's event_type and event_version come from here.
type DomainEvent interface {
	// EventType returns the short stable name, e.g. "OrderCreated".
	EventType() string

	// EventVersion returns the schema revision of the event body.
	EventVersion() int
}

// Aggregate is the capability set the engine requires from any aggregate
// type. Aggregates are transient: rebuilt on demand from history, never
// persisted as state.
type Aggregate interface {
	// AggregateID returns the identifier of this instance.
	AggregateID() string

	// AggregateType returns the type name, e.g. "Order".
	AggregateType() string

	// Version returns the sequence number of the last applied event,
	// 0 before any event has been applied.
	Version() int64

	// ApplyFirstEvent constructs initial state from the creation event.
	// Fails if the event is not a valid creator.
	ApplyFirstEvent(env *Envelope) error

	// ApplyEvent mutates current state. Fails if the event is illegal for
	// the current state.
	ApplyEvent(env *Envelope) error

	// HandleCommand returns the events a valid command would produce
	// without mutating state. Domain errors surface verbatim.
	HandleCommand(cmd Command) ([]DomainEvent, error)
}

// Root provides identity and version bookkeeping for aggregate
// implementations. Embed it by pointer-receiver convention:
//
//	type Order struct {
//	    eventsourcing.Root
//	    ...
//	}
type Root struct {
	id            string
	aggregateType string
	version       int64
}

// NewRoot creates the embeddable base for an aggregate of the given type.
func NewRoot(aggregateType string) Root {
	return Root{aggregateType: aggregateType}
}

// AggregateID returns the aggregate's identifier.
func (r *Root) AggregateID() string {
	return r.id
}

// AggregateType returns the aggregate's type name.
func (r *Root) AggregateType() string {
	return r.aggregateType
}

// Version returns the sequence number of the last applied event.
func (r *Root) Version() int64 {
	return r.version
}

// advance records the position after an envelope was applied. Called by
// LoadFromHistory; promoted through embedding.
func (r *Root) advance(env *Envelope) {
	r.id = env.AggregateID
	r.version = env.SequenceNumber
}

// positioned is satisfied by any aggregate embedding Root.
type positioned interface {
	advance(env *Envelope)
}

// LoadFromHistory folds envelopes in order into a fresh aggregate from
// factory. The first envelope goes through ApplyFirstEvent, the rest through
// ApplyEvent; the aggregate's version ends at the last envelope's sequence
// number.
func LoadFromHistory[A Aggregate](factory func() A, envelopes []*Envelope) (A, error) {
	var zero A
	if len(envelopes) == 0 {
		return zero, fault.ErrAggregateNotFound
	}

	agg := factory()
	for i, env := range envelopes {
		var err error
		if i == 0 {
			err = agg.ApplyFirstEvent(env)
		} else {
			err = agg.ApplyEvent(env)
		}
		if err != nil {
			return zero, fault.Wrap(fault.KindDomainViolation, err, "apply event %s (seq %d) to aggregate %s", env.EventType, env.SequenceNumber, env.AggregateID)
		}
		if p, ok := any(agg).(positioned); ok {
			p.advance(env)
		}
	}
	return agg, nil
}
