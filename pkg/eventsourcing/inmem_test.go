package eventsourcing_test

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/orderstream-io/orderstream/pkg/domain/order"
	"github.com/orderstream-io/orderstream/pkg/eventsourcing"
	"github.com/orderstream-io/orderstream/pkg/fault"
)

func appendBatch(t *testing.T, store eventsourcing.EventStore, aggregateID string, expected int64, n int) {
	t.Helper()
	envelopes := make([]*eventsourcing.Envelope, n)
	for i := range envelopes {
		env, err := eventsourcing.NewEnvelope(aggregateID, order.AggregateType, expected+int64(i)+1, time.Now(), order.ItemAdded{
			Item: order.LineItem{ProductID: fmt.Sprintf("p-%d", i), Quantity: 1},
		}, eventsourcing.EventMetadata{CorrelationID: "corr"})
		require.NoError(t, err)
		envelopes[i] = env
	}
	_, err := store.AppendEvents(context.Background(), aggregateID, expected, envelopes, true)
	require.NoError(t, err)
}

func TestAppendAcrossCommitsKeepsSequencesGapFree(t *testing.T) {
	store := eventsourcing.NewInMemoryEventStore()
	ctx := context.Background()

	// Three commits of sizes 2, 1, 2.
	appendBatch(t, store, "agg-1", 0, 2)
	appendBatch(t, store, "agg-1", 2, 1)
	appendBatch(t, store, "agg-1", 3, 2)

	version, err := store.GetCurrentVersion(ctx, "agg-1")
	require.NoError(t, err)
	require.Equal(t, int64(5), version)

	envelopes, err := store.LoadEvents(ctx, "agg-1")
	require.NoError(t, err)
	require.Len(t, envelopes, 5)
	for i, env := range envelopes {
		require.Equal(t, int64(i)+1, env.SequenceNumber)
	}
}

func TestAppendValidatesInput(t *testing.T) {
	store := eventsourcing.NewInMemoryEventStore()
	ctx := context.Background()

	_, err := store.AppendEvents(ctx, "agg-1", 0, nil, true)
	require.Equal(t, fault.KindInvalidInput, fault.KindOf(err))

	env, err := eventsourcing.NewEnvelope("other", order.AggregateType, 1, time.Now(), order.Cancelled{}, eventsourcing.EventMetadata{CorrelationID: "c"})
	require.NoError(t, err)
	_, err = store.AppendEvents(ctx, "agg-1", 0, []*eventsourcing.Envelope{env}, true)
	require.Equal(t, fault.KindInvalidInput, fault.KindOf(err))

	env2, err := eventsourcing.NewEnvelope("agg-1", order.AggregateType, 2, time.Now(), order.Cancelled{}, eventsourcing.EventMetadata{CorrelationID: "c"})
	require.NoError(t, err)
	_, err = store.AppendEvents(ctx, "agg-1", 0, []*eventsourcing.Envelope{env2}, true)
	require.Equal(t, fault.KindInvalidInput, fault.KindOf(err))
}

func TestConcurrentAppendsAdmitExactlyOneWinner(t *testing.T) {
	store := eventsourcing.NewInMemoryEventStore()

	const writers = 8
	var wg sync.WaitGroup
	errs := make([]error, writers)

	for w := 0; w < writers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			env, err := eventsourcing.NewEnvelope("agg-1", order.AggregateType, 1, time.Now(), order.Created{
				OrderID: "agg-1", CustomerID: fmt.Sprintf("writer-%d", w),
			}, eventsourcing.EventMetadata{CorrelationID: "c"})
			if err != nil {
				errs[w] = err
				return
			}
			_, errs[w] = store.AppendEvents(context.Background(), "agg-1", 0, []*eventsourcing.Envelope{env}, true)
		}(w)
	}
	wg.Wait()

	won := 0
	for _, err := range errs {
		if err == nil {
			won++
		} else {
			require.ErrorIs(t, err, fault.ErrConcurrencyConflict)
		}
	}
	require.Equal(t, 1, won)

	envelopes, err := store.LoadEvents(context.Background(), "agg-1")
	require.NoError(t, err)
	require.Len(t, envelopes, 1)
}

func TestOutboxSkippedWhenDisabled(t *testing.T) {
	store := eventsourcing.NewInMemoryEventStore()
	env, err := eventsourcing.NewEnvelope("agg-1", order.AggregateType, 1, time.Now(), order.Created{OrderID: "agg-1"}, eventsourcing.EventMetadata{CorrelationID: "c"})
	require.NoError(t, err)

	_, err = store.AppendEvents(context.Background(), "agg-1", 0, []*eventsourcing.Envelope{env}, false)
	require.NoError(t, err)
	require.Empty(t, store.OutboxEntries())
}
