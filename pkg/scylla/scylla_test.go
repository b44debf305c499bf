package scylla

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/orderstream-io/orderstream/pkg/cdc"
	"github.com/orderstream-io/orderstream/pkg/domain/order"
	"github.com/orderstream-io/orderstream/pkg/eventsourcing"
	"github.com/orderstream-io/orderstream/pkg/fault"
)

func TestAppendRejectsInvalidInputBeforeTouchingStorage(t *testing.T) {
	// No session: validation must fail before any storage call.
	store := NewStore(nil)

	_, err := store.AppendEvents(context.Background(), "agg-1", 0, nil, true)
	if fault.KindOf(err) != fault.KindInvalidInput {
		t.Fatalf("expected invalid_input, got %v", err)
	}

	env, err := eventsourcing.NewEnvelope("agg-1", order.AggregateType, 5, time.Now(), order.Cancelled{}, eventsourcing.EventMetadata{CorrelationID: "c"})
	if err != nil {
		t.Fatal(err)
	}
	_, err = store.AppendEvents(context.Background(), "agg-1", 0, []*eventsourcing.Envelope{env}, true)
	if fault.KindOf(err) != fault.KindInvalidInput {
		t.Fatalf("non-contiguous sequence must be invalid_input, got %v", err)
	}

	_, err = store.AppendEvents(context.Background(), "agg-1", -1, []*eventsourcing.Envelope{env}, true)
	if fault.KindOf(err) != fault.KindInvalidInput {
		t.Fatalf("negative expected version must be invalid_input, got %v", err)
	}
}

func TestTopicDerivation(t *testing.T) {
	store := NewStore(nil,
		WithTopicMap(map[string]string{"Order": "orders", "Customer": "customers"}),
		WithDefaultTopic("events"),
	)

	if got := store.topicFor("Order"); got != "orders" {
		t.Errorf("topicFor(Order) = %q", got)
	}
	if got := store.topicFor("Customer"); got != "customers" {
		t.Errorf("topicFor(Customer) = %q", got)
	}
	if got := store.topicFor("Shipment"); got != "events" {
		t.Errorf("unmapped types fall back to the default topic, got %q", got)
	}
}

func TestSessionConfigValidation(t *testing.T) {
	_, err := NewSession(SessionConfig{Keyspace: "ks"})
	if fault.KindOf(err) != fault.KindInvalidInput {
		t.Fatalf("missing contact points must be invalid_input, got %v", err)
	}

	_, err = NewSession(SessionConfig{ContactPoints: []string{"h:9042"}})
	if fault.KindOf(err) != fault.KindInvalidInput {
		t.Fatalf("missing keyspace must be invalid_input, got %v", err)
	}
}

func TestOperationDecoding(t *testing.T) {
	cases := []struct {
		raw  interface{}
		want cdc.Operation
	}{
		{int8(2), cdc.OpRowInsert},
		{int16(9), cdc.OpPostImage},
		{int(1), cdc.OpRowUpdate},
		{int64(0), cdc.OpPreImage},
		{"bogus", cdc.Operation(-1)},
		{nil, cdc.Operation(-1)},
	}
	for _, tc := range cases {
		if got := operationFrom(tc.raw); got != tc.want {
			t.Errorf("operationFrom(%v) = %v, want %v", tc.raw, got, tc.want)
		}
	}
}

func TestSchemaEnablesCDCOnOutbox(t *testing.T) {
	var outboxDDL string
	for _, stmt := range schemaStatements {
		if strings.Contains(stmt, "CREATE TABLE IF NOT EXISTS outbox_messages ") ||
			strings.Contains(stmt, "CREATE TABLE IF NOT EXISTS outbox_messages (") {
			outboxDDL = stmt
		}
	}
	if outboxDDL == "" {
		t.Fatal("outbox_messages DDL missing")
	}
	for _, fragment := range []string{"'enabled': true", "'postimage': true", "'ttl': 86400", "default_time_to_live = 86400"} {
		if !strings.Contains(outboxDDL, fragment) {
			t.Errorf("outbox DDL missing %q", fragment)
		}
	}
}

func TestSchemaCoversAllEngineTables(t *testing.T) {
	tables := []string{
		TableEventStore,
		TableAggregateSequence,
		TableOutboxMessages,
		TableDeadLetterQueue,
		TableCDCCheckpoints,
	}
	all := strings.Join(schemaStatements, "\n")
	for _, table := range tables {
		if !strings.Contains(all, "CREATE TABLE IF NOT EXISTS "+table) {
			t.Errorf("schema missing table %s", table)
		}
	}
}
