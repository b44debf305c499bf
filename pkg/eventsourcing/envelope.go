package eventsourcing

import (
	"time"

	"github.com/orderstream-io/orderstream/pkg/fault"
	"github.com/orderstream-io/orderstream/pkg/idgen"
)

// Envelope wraps a domain event with identity, ordering, causation, and
// correlation metadata. Envelopes are immutable facts once the event store
// commits them.
type Envelope struct {
	// EventID is the globally unique identifier of this event.
	EventID string `json:"event_id"`

	// AggregateID identifies the owning aggregate instance.
	AggregateID string `json:"aggregate_id"`

	// AggregateType is the type name of the aggregate (e.g. "Order").
	AggregateType string `json:"aggregate_type"`

	// SequenceNumber is strictly monotonic per aggregate, starting at 1.
	SequenceNumber int64 `json:"sequence_number"`

	// EventType is the short stable name of the event (e.g. "OrderCreated").
	EventType string `json:"event_type"`

	// EventVersion is the schema revision of the event body.
	EventVersion int `json:"event_version"`

	// EventData is the serialized event payload (UTF-8 text).
	EventData string `json:"event_data"`

	// CausationID is the identifier of the command or event that caused
	// this one. Empty when unknown.
	CausationID string `json:"causation_id,omitempty"`

	// CorrelationID groups related events across aggregates within one
	// request.
	CorrelationID string `json:"correlation_id"`

	// UserID identifies the principal that triggered the event, if any.
	UserID string `json:"user_id,omitempty"`

	// Timestamp is the UTC instant the envelope was built.
	Timestamp time.Time `json:"timestamp"`

	// Metadata carries application-specific key/value pairs.
	Metadata map[string]string `json:"metadata"`
}

// EventMetadata carries the contextual fields threaded from a command into
// the envelopes it produces.
type EventMetadata struct {
	// CausationID is the ID of the command or event that caused this event.
	CausationID string

	// CorrelationID traces related events across aggregates.
	CorrelationID string

	// UserID is the principal that triggered the event.
	UserID string

	// Custom allows application-specific metadata.
	Custom map[string]string
}

// NewEnvelope builds an envelope for one domain event. The event body is
// serialized with the codec; event type and schema version come from the
// event's own taxonomy, never guessed from the payload.
func NewEnvelope(aggregateID, aggregateType string, sequence int64, ts time.Time, event DomainEvent, meta EventMetadata) (*Envelope, error) {
	if sequence < 1 {
		return nil, fault.New(fault.KindInvalidInput, "sequence number must be positive, got %d", sequence)
	}
	data, err := MarshalEventData(event)
	if err != nil {
		return nil, err
	}

	md := make(map[string]string, len(meta.Custom))
	for k, v := range meta.Custom {
		md[k] = v
	}

	return &Envelope{
		EventID:        idgen.NewEventID(),
		AggregateID:    aggregateID,
		AggregateType:  aggregateType,
		SequenceNumber: sequence,
		EventType:      event.EventType(),
		EventVersion:   event.EventVersion(),
		EventData:      data,
		CausationID:    meta.CausationID,
		CorrelationID:  meta.CorrelationID,
		UserID:         meta.UserID,
		Timestamp:      ts.UTC(),
		Metadata:       md,
	}, nil
}
