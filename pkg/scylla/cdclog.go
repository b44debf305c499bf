package scylla

import (
	"context"
	"log/slog"
	"time"

	"github.com/gocql/gocql"

	"github.com/orderstream-io/orderstream/pkg/cdc"
)

const (
	// colStreamID, colTime, and colOperation are the bookkeeping columns
	// the storage engine adds to every CDC log row.
	colStreamID  = "cdc$stream_id"
	colTime      = "cdc$time"
	colOperation = "cdc$operation"

	discoverStreamsStmt = `SELECT DISTINCT "cdc$stream_id" FROM ` + TableOutboxCDCLog

	fetchFromStmt = `SELECT * FROM ` + TableOutboxCDCLog + ` WHERE "cdc$stream_id" = ? AND "cdc$time" > ?`

	fetchAllStmt = `SELECT * FROM ` + TableOutboxCDCLog + ` WHERE "cdc$stream_id" = ?`

	loadCheckpointStmt = `SELECT last_time FROM cdc_checkpoints WHERE stream_id = ?`

	saveCheckpointStmt = `INSERT INTO cdc_checkpoints (stream_id, last_time, updated_at) VALUES (?, ?, ?)`
)

// LogReader implements cdc.Stream over the outbox's CDC log table.
//
// Stream partitions are discovered from the log itself and refreshed
// periodically, which also picks up new generations after a topology
// change. Rows within one stream are fetched in cdc$time order and the
// per-stream checkpoint advances only on Commit, so a crash re-delivers
// the uncommitted tail rather than losing it.
type LogReader struct {
	session         *gocql.Session
	pollInterval    time.Duration
	refreshInterval time.Duration
	logger          *slog.Logger

	queue       []*cdc.ChangeRecord
	streams     [][]byte
	lastRefresh time.Time
	position    map[string]gocql.UUID
	hasPosition map[string]bool
}

// LogReaderOption configures a LogReader.
type LogReaderOption func(*LogReader)

// WithPollInterval sets the idle poll interval. Default 500ms.
func WithPollInterval(d time.Duration) LogReaderOption {
	return func(r *LogReader) {
		r.pollInterval = d
	}
}

// WithStreamRefreshInterval sets how often stream partitions are
// rediscovered. Default 1 minute.
func WithStreamRefreshInterval(d time.Duration) LogReaderOption {
	return func(r *LogReader) {
		r.refreshInterval = d
	}
}

// WithLogReaderLogger sets the logger.
func WithLogReaderLogger(logger *slog.Logger) LogReaderOption {
	return func(r *LogReader) {
		r.logger = logger
	}
}

// NewLogReader creates a reader over an established session.
func NewLogReader(session *gocql.Session, opts ...LogReaderOption) *LogReader {
	r := &LogReader{
		session:         session,
		pollInterval:    500 * time.Millisecond,
		refreshInterval: time.Minute,
		logger:          slog.Default(),
		position:        make(map[string]gocql.UUID),
		hasPosition:     make(map[string]bool),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Next implements cdc.Stream.
func (r *LogReader) Next(ctx context.Context) (*cdc.ChangeRecord, error) {
	for {
		if len(r.queue) > 0 {
			record := r.queue[0]
			r.queue = r.queue[1:]
			return record, nil
		}

		if err := r.poll(ctx); err != nil {
			return nil, err
		}
		if len(r.queue) > 0 {
			continue
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(r.pollInterval):
		}
	}
}

// Commit implements cdc.Stream: persist the record's position as the
// stream's durable checkpoint.
func (r *LogReader) Commit(ctx context.Context, record *cdc.ChangeRecord) error {
	raw, ok := record.Column(colTime)
	if !ok {
		return nil
	}
	timeUUID, ok := raw.(gocql.UUID)
	if !ok {
		return nil
	}

	err := r.session.Query(saveCheckpointStmt, record.StreamID, timeUUID, time.Now().UTC()).
		WithContext(ctx).Exec()
	if err != nil {
		return storageFault(err, "save checkpoint for stream %x", record.StreamID)
	}
	return nil
}

// Close implements cdc.Stream. The session is shared and owned by the
// caller.
func (r *LogReader) Close() error {
	return nil
}

// poll fetches new rows from every stream partition, preserving per-stream
// order in the queue.
func (r *LogReader) poll(ctx context.Context) error {
	if time.Since(r.lastRefresh) >= r.refreshInterval || len(r.streams) == 0 {
		if err := r.refreshStreams(ctx); err != nil {
			return err
		}
	}

	for _, streamID := range r.streams {
		if err := r.fetchStream(ctx, streamID); err != nil {
			return err
		}
	}
	return nil
}

// refreshStreams rediscovers the log's stream partitions and loads the
// durable checkpoint of any stream seen for the first time.
func (r *LogReader) refreshStreams(ctx context.Context) error {
	iter := r.session.Query(discoverStreamsStmt).WithContext(ctx).Iter()

	var streams [][]byte
	var streamID []byte
	for iter.Scan(&streamID) {
		id := make([]byte, len(streamID))
		copy(id, streamID)
		streams = append(streams, id)
	}
	if err := iter.Close(); err != nil {
		return storageFault(err, "discover cdc streams")
	}

	for _, id := range streams {
		key := string(id)
		if r.hasPosition[key] {
			continue
		}
		var last gocql.UUID
		err := r.session.Query(loadCheckpointStmt, id).WithContext(ctx).Scan(&last)
		if err == gocql.ErrNotFound {
			continue
		}
		if err != nil {
			return storageFault(err, "load checkpoint for stream %x", id)
		}
		r.position[key] = last
		r.hasPosition[key] = true
	}

	if len(streams) != len(r.streams) {
		r.logger.Debug("cdc streams refreshed", "count", len(streams))
	}
	r.streams = streams
	r.lastRefresh = time.Now()
	return nil
}

// fetchStream reads one stream partition forward from its last fetched
// position.
func (r *LogReader) fetchStream(ctx context.Context, streamID []byte) error {
	key := string(streamID)

	var query *gocql.Query
	if r.hasPosition[key] {
		query = r.session.Query(fetchFromStmt, streamID, r.position[key])
	} else {
		query = r.session.Query(fetchAllStmt, streamID)
	}

	iter := query.WithContext(ctx).Iter()
	for {
		row := map[string]interface{}{}
		if !iter.MapScan(row) {
			break
		}

		timeUUID, ok := row[colTime].(gocql.UUID)
		if !ok {
			continue
		}
		record := cdc.NewChangeRecord(streamID, timeUUID.Time(), operationFrom(row[colOperation]), row)
		r.queue = append(r.queue, record)
		r.position[key] = timeUUID
		r.hasPosition[key] = true
	}
	if err := iter.Close(); err != nil {
		return storageFault(err, "fetch cdc rows for stream %x", streamID)
	}
	return nil
}

// operationFrom decodes the cdc$operation tinyint.
func operationFrom(v interface{}) cdc.Operation {
	switch n := v.(type) {
	case int8:
		return cdc.Operation(n)
	case int16:
		return cdc.Operation(n)
	case int:
		return cdc.Operation(n)
	case int64:
		return cdc.Operation(n)
	default:
		return cdc.Operation(-1)
	}
}

var _ cdc.Stream = (*LogReader)(nil)
