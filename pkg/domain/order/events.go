package order

import "github.com/shopspring/decimal"

// AggregateType is the type name Order events are filed under.
const AggregateType = "Order"

// LineItem is one product position on an order.
type LineItem struct {
	ProductID string          `json:"product_id"`
	Quantity  int             `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
}

// Created is the creation event of an order.
type Created struct {
	OrderID    string     `json:"order_id"`
	CustomerID string     `json:"customer_id"`
	Items      []LineItem `json:"items"`
}

func (Created) EventType() string { return "OrderCreated" }
func (Created) EventVersion() int { return 1 }

// ItemAdded records one more position on an open order.
type ItemAdded struct {
	Item LineItem `json:"item"`
}

func (ItemAdded) EventType() string { return "OrderItemAdded" }
func (ItemAdded) EventVersion() int { return 1 }

// Submitted finalizes the order with its computed total.
type Submitted struct {
	Total decimal.Decimal `json:"total"`
}

func (Submitted) EventType() string { return "OrderSubmitted" }
func (Submitted) EventVersion() int { return 1 }

// Cancelled closes the order without submission.
type Cancelled struct {
	Reason string `json:"reason"`
}

func (Cancelled) EventType() string { return "OrderCancelled" }
func (Cancelled) EventVersion() int { return 1 }
