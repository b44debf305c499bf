// Package customer is the second representative aggregate: a customer
// record with a validated email address.
package customer

import (
	"errors"
	"fmt"

	"github.com/asaskevich/govalidator"

	"github.com/orderstream-io/orderstream/pkg/eventsourcing"
)

// AggregateType is the type name Customer events are filed under.
const AggregateType = "Customer"

// Domain errors.
var (
	ErrAlreadyExists = errors.New("customer already exists")
	ErrDeactivated   = errors.New("customer is deactivated")
	ErrInvalidEmail  = errors.New("email address is not valid")
	ErrEmptyName     = errors.New("customer name must not be empty")
)

// Created is the creation event of a customer.
type Created struct {
	CustomerID string `json:"customer_id"`
	Name       string `json:"name"`
	Email      string `json:"email"`
}

func (Created) EventType() string { return "CustomerCreated" }
func (Created) EventVersion() int { return 1 }

// EmailChanged records a new email address.
type EmailChanged struct {
	Email string `json:"email"`
}

func (EmailChanged) EventType() string { return "CustomerEmailChanged" }
func (EmailChanged) EventVersion() int { return 1 }

// Deactivated closes the customer record.
type Deactivated struct {
	Reason string `json:"reason"`
}

func (Deactivated) EventType() string { return "CustomerDeactivated" }
func (Deactivated) EventVersion() int { return 1 }

// CreateCustomer registers a new customer.
type CreateCustomer struct {
	ID         string
	CustomerID string
	Name       string
	Email      string
}

func (c *CreateCustomer) CommandID() string   { return c.ID }
func (c *CreateCustomer) AggregateID() string { return c.CustomerID }
func (c *CreateCustomer) CommandType() string { return "CreateCustomer" }
func (c *CreateCustomer) CreatesAggregate()   {}

// ChangeEmail replaces the customer's email address.
type ChangeEmail struct {
	ID         string
	CustomerID string
	Email      string
}

func (c *ChangeEmail) CommandID() string   { return c.ID }
func (c *ChangeEmail) AggregateID() string { return c.CustomerID }
func (c *ChangeEmail) CommandType() string { return "ChangeEmail" }

// DeactivateCustomer closes the customer record.
type DeactivateCustomer struct {
	ID         string
	CustomerID string
	Reason     string
}

func (c *DeactivateCustomer) CommandID() string   { return c.ID }
func (c *DeactivateCustomer) AggregateID() string { return c.CustomerID }
func (c *DeactivateCustomer) CommandType() string { return "DeactivateCustomer" }

// Customer is the aggregate state.
type Customer struct {
	eventsourcing.Root

	Name   string
	Email  string
	Active bool
}

// New returns an empty customer ready to replay history or handle a
// creation command.
func New() *Customer {
	return &Customer{Root: eventsourcing.NewRoot(AggregateType)}
}

// ApplyFirstEvent implements eventsourcing.Aggregate.
func (c *Customer) ApplyFirstEvent(env *eventsourcing.Envelope) error {
	if env.EventType != (Created{}).EventType() {
		return fmt.Errorf("%s cannot create a customer", env.EventType)
	}
	var e Created
	if err := eventsourcing.UnmarshalEventData(env, &e); err != nil {
		return err
	}
	c.Name = e.Name
	c.Email = e.Email
	c.Active = true
	return nil
}

// ApplyEvent implements eventsourcing.Aggregate.
func (c *Customer) ApplyEvent(env *eventsourcing.Envelope) error {
	switch env.EventType {
	case (EmailChanged{}).EventType():
		if !c.Active {
			return ErrDeactivated
		}
		var e EmailChanged
		if err := eventsourcing.UnmarshalEventData(env, &e); err != nil {
			return err
		}
		c.Email = e.Email
		return nil

	case (Deactivated{}).EventType():
		if !c.Active {
			return ErrDeactivated
		}
		c.Active = false
		return nil

	default:
		return fmt.Errorf("unknown event type %s", env.EventType)
	}
}

// HandleCommand implements eventsourcing.Aggregate.
func (c *Customer) HandleCommand(cmd eventsourcing.Command) ([]eventsourcing.DomainEvent, error) {
	switch cc := cmd.(type) {
	case *CreateCustomer:
		if c.Version() > 0 {
			return nil, ErrAlreadyExists
		}
		if cc.Name == "" {
			return nil, ErrEmptyName
		}
		if !govalidator.IsEmail(cc.Email) {
			return nil, ErrInvalidEmail
		}
		return []eventsourcing.DomainEvent{Created{
			CustomerID: cc.CustomerID,
			Name:       cc.Name,
			Email:      cc.Email,
		}}, nil

	case *ChangeEmail:
		if !c.Active {
			return nil, ErrDeactivated
		}
		if !govalidator.IsEmail(cc.Email) {
			return nil, ErrInvalidEmail
		}
		return []eventsourcing.DomainEvent{EmailChanged{Email: cc.Email}}, nil

	case *DeactivateCustomer:
		if !c.Active {
			return nil, ErrDeactivated
		}
		return []eventsourcing.DomainEvent{Deactivated{Reason: cc.Reason}}, nil

	default:
		return nil, fmt.Errorf("unknown command type %s", cmd.CommandType())
	}
}

var _ eventsourcing.Aggregate = (*Customer)(nil)
