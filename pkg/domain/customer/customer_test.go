package customer_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/orderstream-io/orderstream/pkg/domain/customer"
	"github.com/orderstream-io/orderstream/pkg/eventsourcing"
)

func apply(t *testing.T, c *customer.Customer, seq int64, event eventsourcing.DomainEvent) {
	t.Helper()
	env, err := eventsourcing.NewEnvelope("customer-1", customer.AggregateType, seq, time.Now(), event, eventsourcing.EventMetadata{CorrelationID: "c"})
	require.NoError(t, err)
	if seq == 1 {
		require.NoError(t, c.ApplyFirstEvent(env))
	} else {
		require.NoError(t, c.ApplyEvent(env))
	}
}

func TestCreateCustomerValidatesEmail(t *testing.T) {
	c := customer.New()

	_, err := c.HandleCommand(&customer.CreateCustomer{ID: "c1", CustomerID: "customer-1", Name: "Ada", Email: "not-an-email"})
	require.ErrorIs(t, err, customer.ErrInvalidEmail)

	_, err = c.HandleCommand(&customer.CreateCustomer{ID: "c1", CustomerID: "customer-1", Email: "ada@example.com"})
	require.ErrorIs(t, err, customer.ErrEmptyName)

	events, err := c.HandleCommand(&customer.CreateCustomer{ID: "c1", CustomerID: "customer-1", Name: "Ada", Email: "ada@example.com"})
	require.NoError(t, err)
	require.Len(t, events, 1)
	require.Equal(t, "CustomerCreated", events[0].EventType())
}

func TestEmailChange(t *testing.T) {
	c := customer.New()
	apply(t, c, 1, customer.Created{CustomerID: "customer-1", Name: "Ada", Email: "ada@example.com"})
	require.True(t, c.Active)

	_, err := c.HandleCommand(&customer.ChangeEmail{ID: "c2", CustomerID: "customer-1", Email: "bad"})
	require.ErrorIs(t, err, customer.ErrInvalidEmail)

	events, err := c.HandleCommand(&customer.ChangeEmail{ID: "c2", CustomerID: "customer-1", Email: "ada@new.example.com"})
	require.NoError(t, err)

	apply(t, c, 2, events[0])
	require.Equal(t, "ada@new.example.com", c.Email)
}

func TestDeactivatedCustomerRejectsCommands(t *testing.T) {
	c := customer.New()
	apply(t, c, 1, customer.Created{CustomerID: "customer-1", Name: "Ada", Email: "ada@example.com"})

	events, err := c.HandleCommand(&customer.DeactivateCustomer{ID: "c2", CustomerID: "customer-1", Reason: "requested"})
	require.NoError(t, err)
	apply(t, c, 2, events[0])
	require.False(t, c.Active)

	_, err = c.HandleCommand(&customer.ChangeEmail{ID: "c3", CustomerID: "customer-1", Email: "ada@new.example.com"})
	require.ErrorIs(t, err, customer.ErrDeactivated)
	_, err = c.HandleCommand(&customer.DeactivateCustomer{ID: "c4", CustomerID: "customer-1"})
	require.ErrorIs(t, err, customer.ErrDeactivated)
}

func TestRebuildFromHistory(t *testing.T) {
	history := make([]*eventsourcing.Envelope, 0, 2)
	events := []eventsourcing.DomainEvent{
		customer.Created{CustomerID: "customer-1", Name: "Ada", Email: "ada@example.com"},
		customer.EmailChanged{Email: "ada@new.example.com"},
	}
	for i, event := range events {
		env, err := eventsourcing.NewEnvelope("customer-1", customer.AggregateType, int64(i)+1, time.Now(), event, eventsourcing.EventMetadata{CorrelationID: "c"})
		require.NoError(t, err)
		history = append(history, env)
	}

	c, err := eventsourcing.LoadFromHistory(customer.New, history)
	require.NoError(t, err)
	require.Equal(t, int64(2), c.Version())
	require.Equal(t, "ada@new.example.com", c.Email)
	require.True(t, c.Active)
}
