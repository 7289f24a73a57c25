// Package order exposes the read-only view of orders this service
// needs. Order lifecycle is owned elsewhere; commissions only consume
// completed orders.
package order

import (
	"time"

	id "upline/pkg/domain"
	"upline/pkg/money"
)

// Status mirrors the external order lifecycle. Only StatusCompleted is
// a valid input to commission calculation.
type Status string

const (
	StatusPending   Status = "pending"
	StatusCompleted Status = "completed"
	StatusCancelled Status = "cancelled"
)

// Line is one purchasable row of an order.
type Line struct {
	ID            id.OrderLineID
	ProductID     id.ProductID
	Quantity      int
	UnitPrice     money.Amount
	CategoryGroup string
}

// Order is the snapshot the engine calculates from.
type Order struct {
	ID          id.OrderID
	Buyer       id.UserID
	Status      Status
	Lines       []Line
	CompletedAt *time.Time
}
