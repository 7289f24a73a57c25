// Package domain holds the typed identifiers shared by every module.
// Distinct named types keep a UserID from ever being passed where an
// OrderID is expected; the compiler enforces what reviews would miss.
package domain

import (
	"github.com/google/uuid"

	dErrors "upline/pkg/domain-errors"
)

type (
	// UserID identifies a node in the referral forest.
	UserID uuid.UUID
	// OrderID identifies an external order.
	OrderID uuid.UUID
	// OrderLineID identifies one line within an order.
	OrderLineID uuid.UUID
	// ProductID identifies the product on an order line.
	ProductID uuid.UUID
	// RecordID identifies a commission record.
	RecordID uuid.UUID
)

func (id UserID) String() string      { return uuid.UUID(id).String() }
func (id OrderID) String() string     { return uuid.UUID(id).String() }
func (id OrderLineID) String() string { return uuid.UUID(id).String() }
func (id ProductID) String() string   { return uuid.UUID(id).String() }
func (id RecordID) String() string    { return uuid.UUID(id).String() }

func (id UserID) IsNil() bool      { return uuid.UUID(id) == uuid.Nil }
func (id OrderID) IsNil() bool     { return uuid.UUID(id) == uuid.Nil }
func (id OrderLineID) IsNil() bool { return uuid.UUID(id) == uuid.Nil }
func (id ProductID) IsNil() bool   { return uuid.UUID(id) == uuid.Nil }
func (id RecordID) IsNil() bool    { return uuid.UUID(id) == uuid.Nil }

// NewRecordID mints a fresh commission record identifier.
func NewRecordID() RecordID { return RecordID(uuid.New()) }

func parseUUID(raw string) (uuid.UUID, error) {
	if raw == "" {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, "id must not be empty")
	}
	parsed, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, dErrors.Wrap(err, dErrors.CodeInvalidInput, "id must be a valid UUID")
	}
	if parsed == uuid.Nil {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, "id must not be the nil UUID")
	}
	return parsed, nil
}

// ParseUserID validates raw input at trust boundaries.
func ParseUserID(raw string) (UserID, error) {
	parsed, err := parseUUID(raw)
	if err != nil {
		return UserID(uuid.Nil), err
	}
	return UserID(parsed), nil
}

// ParseOrderID validates raw input at trust boundaries.
func ParseOrderID(raw string) (OrderID, error) {
	parsed, err := parseUUID(raw)
	if err != nil {
		return OrderID(uuid.Nil), err
	}
	return OrderID(parsed), nil
}

// ParseProductID validates raw input at trust boundaries.
func ParseProductID(raw string) (ProductID, error) {
	parsed, err := parseUUID(raw)
	if err != nil {
		return ProductID(uuid.Nil), err
	}
	return ProductID(parsed), nil
}

// ParseRecordID validates raw input at trust boundaries.
func ParseRecordID(raw string) (RecordID, error) {
	parsed, err := parseUUID(raw)
	if err != nil {
		return RecordID(uuid.Nil), err
	}
	return RecordID(parsed), nil
}
