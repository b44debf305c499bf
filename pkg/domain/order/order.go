// Package order is a representative aggregate proving the engine is
// generic over event types. Its rules are deliberately small: an order is
// created with items, may gain items while open, and ends submitted or
// cancelled.
package order

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/orderstream-io/orderstream/pkg/eventsourcing"
)

// Status is the order lifecycle state.
type Status string

const (
	StatusOpen      Status = "open"
	StatusSubmitted Status = "submitted"
	StatusCancelled Status = "cancelled"
)

// Domain errors. The engine surfaces these verbatim and never retries
// them.
var (
	ErrAlreadyExists = errors.New("order already exists")
	ErrNotOpen       = errors.New("order is not open")
	ErrNoItems       = errors.New("order requires at least one item")
	ErrBadQuantity   = errors.New("item quantity must be positive")
	ErrBadPrice      = errors.New("item unit price must not be negative")
)

// Order is the aggregate state, rebuilt from history on demand.
type Order struct {
	eventsourcing.Root

	CustomerID string
	Items      []LineItem
	Status     Status
	Total      decimal.Decimal
}

// New returns an empty order ready to replay history or handle a creation
// command.
func New() *Order {
	return &Order{Root: eventsourcing.NewRoot(AggregateType)}
}

// ApplyFirstEvent implements eventsourcing.Aggregate.
func (o *Order) ApplyFirstEvent(env *eventsourcing.Envelope) error {
	if env.EventType != (Created{}).EventType() {
		return fmt.Errorf("%s cannot create an order", env.EventType)
	}
	var e Created
	if err := eventsourcing.UnmarshalEventData(env, &e); err != nil {
		return err
	}
	o.CustomerID = e.CustomerID
	o.Items = append([]LineItem(nil), e.Items...)
	o.Status = StatusOpen
	return nil
}

// ApplyEvent implements eventsourcing.Aggregate.
func (o *Order) ApplyEvent(env *eventsourcing.Envelope) error {
	switch env.EventType {
	case (ItemAdded{}).EventType():
		if o.Status != StatusOpen {
			return fmt.Errorf("cannot add item to %s order", o.Status)
		}
		var e ItemAdded
		if err := eventsourcing.UnmarshalEventData(env, &e); err != nil {
			return err
		}
		o.Items = append(o.Items, e.Item)
		return nil

	case (Submitted{}).EventType():
		if o.Status != StatusOpen {
			return fmt.Errorf("cannot submit %s order", o.Status)
		}
		var e Submitted
		if err := eventsourcing.UnmarshalEventData(env, &e); err != nil {
			return err
		}
		o.Status = StatusSubmitted
		o.Total = e.Total
		return nil

	case (Cancelled{}).EventType():
		if o.Status != StatusOpen {
			return fmt.Errorf("cannot cancel %s order", o.Status)
		}
		o.Status = StatusCancelled
		return nil

	default:
		return fmt.Errorf("unknown event type %s", env.EventType)
	}
}

// HandleCommand implements eventsourcing.Aggregate. Pure: it returns the
// events a valid command would produce without mutating state.
func (o *Order) HandleCommand(cmd eventsourcing.Command) ([]eventsourcing.DomainEvent, error) {
	switch c := cmd.(type) {
	case *CreateOrder:
		if o.Version() > 0 {
			return nil, ErrAlreadyExists
		}
		if err := validateItems(c.Items); err != nil {
			return nil, err
		}
		return []eventsourcing.DomainEvent{Created{
			OrderID:    c.OrderID,
			CustomerID: c.CustomerID,
			Items:      c.Items,
		}}, nil

	case *AddItem:
		if o.Status != StatusOpen {
			return nil, ErrNotOpen
		}
		if err := validateItems([]LineItem{c.Item}); err != nil {
			return nil, err
		}
		return []eventsourcing.DomainEvent{ItemAdded{Item: c.Item}}, nil

	case *SubmitOrder:
		if o.Status != StatusOpen {
			return nil, ErrNotOpen
		}
		return []eventsourcing.DomainEvent{Submitted{Total: o.total()}}, nil

	case *CancelOrder:
		if o.Status != StatusOpen {
			return nil, ErrNotOpen
		}
		return []eventsourcing.DomainEvent{Cancelled{Reason: c.Reason}}, nil

	default:
		return nil, fmt.Errorf("unknown command type %s", cmd.CommandType())
	}
}

// total sums quantity times unit price across all items.
func (o *Order) total() decimal.Decimal {
	total := decimal.Zero
	for _, item := range o.Items {
		total = total.Add(item.UnitPrice.Mul(decimal.NewFromInt(int64(item.Quantity))))
	}
	return total
}

func validateItems(items []LineItem) error {
	if len(items) == 0 {
		return ErrNoItems
	}
	for _, item := range items {
		if item.Quantity <= 0 {
			return ErrBadQuantity
		}
		if item.UnitPrice.IsNegative() {
			return ErrBadPrice
		}
	}
	return nil
}

var _ eventsourcing.Aggregate = (*Order)(nil)
