// Package idgen generates the identifiers used across the engine.
package idgen

import (
	"math/rand"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
)

// NewEventID returns a globally unique event identifier.
func NewEventID() string {
	return uuid.NewString()
}

// NewCorrelationID returns an identifier grouping related events across
// aggregates within one request.
func NewCorrelationID() string {
	return uuid.NewString()
}

// MustNewSortableID returns a ULID. Outbox rows use these so that lexical
// order roughly tracks insertion order.
func MustNewSortableID() string {
	entropy := rand.New(rand.NewSource(time.Now().UnixNano()))
	ms := ulid.Timestamp(time.Now())
	id, err := ulid.New(ms, entropy)
	if err != nil {
		panic(err)
	}
	return id.String()
}
