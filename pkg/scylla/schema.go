package scylla

import (
	"context"

	"github.com/gocql/gocql"
)

// Table names used by the engine.
const (
	TableEventStore        = "event_store"
	TableAggregateSequence = "aggregate_sequence"
	TableOutboxMessages    = "outbox_messages"
	TableDeadLetterQueue   = "dead_letter_queue"
	TableCDCCheckpoints    = "cdc_checkpoints"

	// TableOutboxCDCLog is the log table the storage engine maintains for
	// the CDC-enabled outbox.
	TableOutboxCDCLog = "outbox_messages_scylla_cdc_log"
)

// outboxTTLSeconds bounds outbox retention to the consumer window.
const outboxTTLSeconds = 24 * 60 * 60

// schemaStatements creates the engine's tables. CDC on the outbox is
// enabled with post-images and a TTL matching the row TTL.
var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS event_store (
		aggregate_id text,
		sequence_number bigint,
		aggregate_type text,
		event_id text,
		event_type text,
		event_version int,
		event_data text,
		causation_id text,
		correlation_id text,
		user_id text,
		timestamp timestamp,
		metadata map<text, text>,
		PRIMARY KEY (aggregate_id, sequence_number)
	) WITH CLUSTERING ORDER BY (sequence_number ASC)`,

	`CREATE TABLE IF NOT EXISTS aggregate_sequence (
		aggregate_id text PRIMARY KEY,
		current_sequence bigint,
		updated_at timestamp
	)`,

	`CREATE TABLE IF NOT EXISTS outbox_messages (
		id text PRIMARY KEY,
		aggregate_id text,
		aggregate_type text,
		event_id text,
		event_type text,
		event_version int,
		payload text,
		topic text,
		partition_key text,
		causation_id text,
		correlation_id text,
		created_at timestamp,
		attempts int
	) WITH cdc = {'enabled': true, 'postimage': true, 'ttl': 86400}
	AND default_time_to_live = 86400`,

	`CREATE TABLE IF NOT EXISTS dead_letter_queue (
		id text PRIMARY KEY,
		aggregate_id text,
		event_type text,
		payload text,
		error_message text,
		failure_count int,
		first_failed_at timestamp,
		last_failed_at timestamp,
		created_at timestamp
	)`,

	`CREATE TABLE IF NOT EXISTS cdc_checkpoints (
		stream_id blob PRIMARY KEY,
		last_time timeuuid,
		updated_at timestamp
	)`,
}

// EnsureSchema creates the engine tables if they do not exist. Keyspace
// creation stays with the hosting process.
func EnsureSchema(ctx context.Context, session *gocql.Session) error {
	for _, stmt := range schemaStatements {
		if err := session.Query(stmt).WithContext(ctx).Exec(); err != nil {
			return storageFault(err, "apply schema statement")
		}
	}
	return nil
}
