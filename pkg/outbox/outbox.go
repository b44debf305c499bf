// Package outbox defines the row shape shared by the event store (writer)
// and the CDC consumer (reader) of the outbox_messages table.
package outbox

import "time"

// Column names of outbox_messages, shared between the insert path and the
// CDC decode path so the two cannot drift apart.
const (
	ColID            = "id"
	ColAggregateID   = "aggregate_id"
	ColAggregateType = "aggregate_type"
	ColEventID       = "event_id"
	ColEventType     = "event_type"
	ColEventVersion  = "event_version"
	ColPayload       = "payload"
	ColTopic         = "topic"
	ColPartitionKey  = "partition_key"
	ColCausationID   = "causation_id"
	ColCorrelationID = "correlation_id"
	ColCreatedAt     = "created_at"
	ColAttempts      = "attempts"
)

// Row is one pending outbound message, co-committed with the events it
// mirrors and surfaced to the consumer via CDC.
type Row struct {
	// ID is the unique row identifier and the logical delivery key.
	ID string

	AggregateID   string
	AggregateType string
	EventID       string
	EventType     string
	EventVersion  int

	// Payload is the serialized envelope, same text downstream consumers
	// decode.
	Payload string

	// Topic is the destination logical channel, derived from the
	// aggregate type.
	Topic string

	// PartitionKey routes the message so the broker preserves
	// per-aggregate order; typically the aggregate ID.
	PartitionKey string

	CausationID   string
	CorrelationID string
	CreatedAt     time.Time

	// Attempts is informational only.
	Attempts int
}
