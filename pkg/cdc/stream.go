// Package cdc consumes the change stream of the outbox table and converts
// row inserts into broker publishes with at-least-once, ordered-per-key
// delivery.
package cdc

import (
	"context"
	"time"
)

// Operation tags one change record with the row operation that produced
// it. Values mirror the storage engine's CDC log encoding.
type Operation int8

const (
	OpPreImage        Operation = 0
	OpRowUpdate       Operation = 1
	OpRowInsert       Operation = 2
	OpRowDelete       Operation = 3
	OpPartitionDelete Operation = 4
	OpPostImage       Operation = 9
)

// String returns the operation name.
func (o Operation) String() string {
	switch o {
	case OpPreImage:
		return "pre_image"
	case OpRowUpdate:
		return "row_update"
	case OpRowInsert:
		return "row_insert"
	case OpRowDelete:
		return "row_delete"
	case OpPartitionDelete:
		return "partition_delete"
	case OpPostImage:
		return "post_image"
	default:
		return "unknown"
	}
}

// ChangeRecord is one row-level change surfaced by the CDC stream. Column
// accessors return ok=false for absent or null columns.
type ChangeRecord struct {
	// StreamID identifies the CDC stream partition this record came from.
	StreamID []byte

	// Time is the change's commit-order position within its stream.
	Time time.Time

	// Operation tags what happened to the row.
	Operation Operation

	columns map[string]any
}

// NewChangeRecord builds a record from decoded column values. Nil values
// are treated as absent.
func NewChangeRecord(streamID []byte, t time.Time, op Operation, columns map[string]any) *ChangeRecord {
	return &ChangeRecord{
		StreamID:  streamID,
		Time:      t,
		Operation: op,
		columns:   columns,
	}
}

// Column returns a raw column value. Stream implementations use it to
// carry positions through to Commit.
func (r *ChangeRecord) Column(name string) (any, bool) {
	v, ok := r.columns[name]
	if !ok || v == nil {
		return nil, false
	}
	return v, true
}

// StringColumn returns a text column value.
func (r *ChangeRecord) StringColumn(name string) (string, bool) {
	v, ok := r.columns[name]
	if !ok || v == nil {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

// IntColumn returns an integer column value.
func (r *ChangeRecord) IntColumn(name string) (int, bool) {
	v, ok := r.columns[name]
	if !ok || v == nil {
		return 0, false
	}
	switch n := v.(type) {
	case int:
		return n, true
	case int32:
		return int(n), true
	case int64:
		return int(n), true
	}
	return 0, false
}

// TimeColumn returns a timestamp column value.
func (r *ChangeRecord) TimeColumn(name string) (time.Time, bool) {
	v, ok := r.columns[name]
	if !ok || v == nil {
		return time.Time{}, false
	}
	t, ok := v.(time.Time)
	return t, ok
}

// Stream is the CDC source the consumer reads. Implementations own
// checkpointing: Commit marks the record processed so it is not re-read
// after a restart, and records within one stream partition arrive in
// commit order.
type Stream interface {
	// Next blocks until a record is available or ctx is done.
	Next(ctx context.Context) (*ChangeRecord, error)

	// Commit advances the stream's checkpoint past the record.
	Commit(ctx context.Context, record *ChangeRecord) error

	// Close releases the stream.
	Close() error
}
