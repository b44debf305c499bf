package nats_test

import (
	"context"
	"testing"
	"time"

	natsgo "github.com/nats-io/nats.go"
	"github.com/stretchr/testify/require"

	"github.com/orderstream-io/orderstream/pkg/broker"
	natsbroker "github.com/orderstream-io/orderstream/pkg/broker/nats"
	"github.com/orderstream-io/orderstream/pkg/fault"
)

func startPublisher(t *testing.T) (*natsbroker.Publisher, string) {
	t.Helper()
	srv, err := natsbroker.StartEmbeddedServer(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(srv.Shutdown)

	cfg := natsbroker.DefaultConfig(srv.URL(), []string{"orders"})
	cfg.DedupWindow = time.Minute
	pub, err := natsbroker.NewPublisher(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = pub.Close() })

	return pub, srv.URL()
}

func TestPublishRoundTrip(t *testing.T) {
	pub, url := startPublisher(t)

	msg := broker.Message{
		Topic:   "orders",
		Key:     "order-1",
		Value:   []byte(`{"event_id":"e1"}`),
		DedupID: "e1",
		Headers: map[string]string{"event_type": "OrderCreated"},
	}
	require.NoError(t, pub.Publish(context.Background(), msg))

	nc, err := natsgo.Connect(url)
	require.NoError(t, err)
	defer nc.Close()
	js, err := nc.JetStream()
	require.NoError(t, err)

	sub, err := js.SubscribeSync("orders.>")
	require.NoError(t, err)
	defer sub.Unsubscribe()

	received, err := sub.NextMsg(5 * time.Second)
	require.NoError(t, err)
	require.Equal(t, "orders.order-1", received.Subject)
	require.Equal(t, msg.Value, received.Data)
	require.Equal(t, "OrderCreated", received.Header.Get("event_type"))
}

func TestPublishDedupesByEventID(t *testing.T) {
	pub, url := startPublisher(t)

	msg := broker.Message{
		Topic:   "orders",
		Key:     "order-1",
		Value:   []byte(`{"event_id":"e1"}`),
		DedupID: "e1",
	}
	// Re-delivery of the same event must not duplicate at the broker.
	require.NoError(t, pub.Publish(context.Background(), msg))
	require.NoError(t, pub.Publish(context.Background(), msg))

	nc, err := natsgo.Connect(url)
	require.NoError(t, err)
	defer nc.Close()
	js, err := nc.JetStream()
	require.NoError(t, err)

	info, err := js.StreamInfo("OUTBOX")
	require.NoError(t, err)
	require.Equal(t, uint64(1), info.State.Msgs)
}

func TestPublisherPreservesPerKeyOrder(t *testing.T) {
	pub, url := startPublisher(t)

	for i := 1; i <= 3; i++ {
		require.NoError(t, pub.Publish(context.Background(), broker.Message{
			Topic:   "orders",
			Key:     "order-1",
			Value:   []byte{byte('0' + i)},
			DedupID: string(rune('a' + i)),
		}))
	}

	nc, err := natsgo.Connect(url)
	require.NoError(t, err)
	defer nc.Close()
	js, err := nc.JetStream()
	require.NoError(t, err)

	sub, err := js.SubscribeSync("orders.order-1")
	require.NoError(t, err)
	defer sub.Unsubscribe()

	for i := 1; i <= 3; i++ {
		received, err := sub.NextMsg(5 * time.Second)
		require.NoError(t, err)
		require.Equal(t, []byte{byte('0' + i)}, received.Data)
	}
}

func TestSubjectKeySanitization(t *testing.T) {
	pub, url := startPublisher(t)

	require.NoError(t, pub.Publish(context.Background(), broker.Message{
		Topic:   "orders",
		Key:     "order.1 *x",
		Value:   []byte("v"),
		DedupID: "e9",
	}))

	nc, err := natsgo.Connect(url)
	require.NoError(t, err)
	defer nc.Close()
	js, err := nc.JetStream()
	require.NoError(t, err)

	sub, err := js.SubscribeSync("orders.>")
	require.NoError(t, err)
	defer sub.Unsubscribe()

	received, err := sub.NextMsg(5 * time.Second)
	require.NoError(t, err)
	require.Equal(t, "orders.order_1__x", received.Subject)
}

func TestNewPublisherValidatesTopics(t *testing.T) {
	_, err := natsbroker.NewPublisher(natsbroker.DefaultConfig("nats://127.0.0.1:4222", nil))
	require.Error(t, err)
	require.Equal(t, fault.KindInvalidInput, fault.KindOf(err))
}

func TestNewPublisherUnreachableBrokerIsTransient(t *testing.T) {
	_, err := natsbroker.NewPublisher(natsbroker.DefaultConfig("nats://127.0.0.1:1", []string{"orders"}))
	require.Error(t, err)
	require.True(t, fault.IsTransient(err))
}
