package scylla

import (
	"context"
	"time"

	"github.com/gocql/gocql"

	"github.com/orderstream-io/orderstream/pkg/dlq"
)

const (
	insertDeadLetterStmt = `INSERT INTO dead_letter_queue (
		id, aggregate_id, event_type, payload, error_message, failure_count,
		first_failed_at, last_failed_at, created_at
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`

	selectDeadLettersStmt = `SELECT id, aggregate_id, event_type, payload, error_message,
		failure_count, first_failed_at, last_failed_at, created_at
		FROM dead_letter_queue LIMIT ?`

	countDeadLettersStmt = `SELECT COUNT(*) FROM dead_letter_queue`
)

// DLQStore persists dead-letter rows. The insert is a plain upsert keyed
// by id, so re-delivered failures overwrite rather than duplicate.
type DLQStore struct {
	session *gocql.Session
}

// NewDLQStore creates a store over an established session.
func NewDLQStore(session *gocql.Session) *DLQStore {
	return &DLQStore{session: session}
}

// Insert implements dlq.Store.
func (s *DLQStore) Insert(ctx context.Context, row dlq.Row) error {
	createdAt := row.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	err := s.session.Query(insertDeadLetterStmt,
		row.ID,
		row.AggregateID,
		row.EventType,
		row.Payload,
		row.ErrorMessage,
		row.FailureCount,
		row.FirstFailedAt,
		row.LastFailedAt,
		createdAt,
	).WithContext(ctx).Exec()
	if err != nil {
		return storageFault(err, "insert dead-letter row %s", row.ID)
	}
	return nil
}

// List implements dlq.Store.
func (s *DLQStore) List(ctx context.Context, limit int) ([]dlq.Row, error) {
	if limit <= 0 {
		limit = 100
	}

	iter := s.session.Query(selectDeadLettersStmt, limit).WithContext(ctx).Iter()

	var rows []dlq.Row
	for {
		var row dlq.Row
		if !iter.Scan(
			&row.ID,
			&row.AggregateID,
			&row.EventType,
			&row.Payload,
			&row.ErrorMessage,
			&row.FailureCount,
			&row.FirstFailedAt,
			&row.LastFailedAt,
			&row.CreatedAt,
		) {
			break
		}
		rows = append(rows, row)
	}
	if err := iter.Close(); err != nil {
		return nil, storageFault(err, "list dead-letter rows")
	}
	return rows, nil
}

// Count implements dlq.Store.
func (s *DLQStore) Count(ctx context.Context) (int64, error) {
	var count int64
	if err := s.session.Query(countDeadLettersStmt).WithContext(ctx).Scan(&count); err != nil {
		return 0, storageFault(err, "count dead-letter rows")
	}
	return count, nil
}

var _ dlq.Store = (*DLQStore)(nil)
