package eventsourcing_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/orderstream-io/orderstream/pkg/domain/order"
	"github.com/orderstream-io/orderstream/pkg/eventsourcing"
	"github.com/orderstream-io/orderstream/pkg/fault"
)

func TestEnvelopeRoundTrip(t *testing.T) {
	ts := time.Date(2025, 6, 14, 9, 30, 0, 123456789, time.UTC)
	env, err := eventsourcing.NewEnvelope("order-1", order.AggregateType, 1, ts, order.Created{
		OrderID:    "order-1",
		CustomerID: "customer-7",
	}, eventsourcing.EventMetadata{
		CausationID:   "cmd-1",
		CorrelationID: "corr-1",
		UserID:        "user-9",
		Custom:        map[string]string{"source": "api"},
	})
	require.NoError(t, err)
	require.NotEmpty(t, env.EventID)
	require.Equal(t, "OrderCreated", env.EventType)
	require.Equal(t, 1, env.EventVersion)

	data, err := eventsourcing.EncodeEnvelope(env)
	require.NoError(t, err)

	decoded, err := eventsourcing.DecodeEnvelope(data)
	require.NoError(t, err)

	require.True(t, decoded.Timestamp.Equal(env.Timestamp), "timestamp must survive the round trip")
	decoded.Timestamp = env.Timestamp
	require.Equal(t, env, decoded)
}

func TestEnvelopeRoundTripMinimal(t *testing.T) {
	env, err := eventsourcing.NewEnvelope("order-2", order.AggregateType, 3, time.Now(), order.Cancelled{Reason: "test"}, eventsourcing.EventMetadata{
		CorrelationID: "corr-2",
	})
	require.NoError(t, err)
	require.Empty(t, env.CausationID)
	require.Empty(t, env.UserID)
	require.NotNil(t, env.Metadata)

	data, err := eventsourcing.EncodeEnvelope(env)
	require.NoError(t, err)

	decoded, err := eventsourcing.DecodeEnvelope(data)
	require.NoError(t, err)
	decoded.Timestamp = env.Timestamp
	require.Equal(t, env, decoded)
}

func TestNewEnvelopeRejectsNonPositiveSequence(t *testing.T) {
	_, err := eventsourcing.NewEnvelope("order-1", order.AggregateType, 0, time.Now(), order.Cancelled{}, eventsourcing.EventMetadata{})
	require.Error(t, err)
	require.Equal(t, fault.KindInvalidInput, fault.KindOf(err))
}

func TestDecodeEnvelopeRejectsGarbage(t *testing.T) {
	_, err := eventsourcing.DecodeEnvelope([]byte("{not json"))
	require.Error(t, err)
	require.Equal(t, fault.KindEncodingFailed, fault.KindOf(err))
}

func TestEncodeEnvelopeRejectsNil(t *testing.T) {
	_, err := eventsourcing.EncodeEnvelope(nil)
	require.Error(t, err)
	require.Equal(t, fault.KindInvalidInput, fault.KindOf(err))
}
