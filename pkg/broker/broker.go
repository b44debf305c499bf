// Package broker defines the message broker contract the CDC consumer
// publishes through.
package broker

import "context"

// Message is one outbound publish. The broker (or its downstream
// consumers) dedupes by DedupID, so re-delivery is harmless.
type Message struct {
	// Topic is the destination logical channel.
	Topic string

	// Key routes the message; messages with the same key preserve their
	// submission order.
	Key string

	// Value is the serialized envelope payload.
	Value []byte

	// DedupID is the event ID used for idempotent delivery.
	DedupID string

	// Headers carry routing metadata for downstream consumers.
	Headers map[string]string
}

// Publisher delivers messages to the broker. Publish returns nil only after
// broker-side acknowledgment.
type Publisher interface {
	Publish(ctx context.Context, msg Message) error
	Close() error
}
