package models

import (
	"time"

	id "upline/pkg/domain"
	"upline/pkg/money"
)

// Level places a commission record in the hierarchy relative to the
// buyer: F2 is the buyer's own line, F1 the direct referrer, F0 the
// referrer's referrer. Fan-out stops at F0 by design.
type Level string

const (
	LevelF0 Level = "F0"
	LevelF1 Level = "F1"
	LevelF2 Level = "F2"
)

// Levels lists all levels in ancestor-first order.
func Levels() []Level {
	return []Level{LevelF0, LevelF1, LevelF2}
}

func (l Level) IsValid() bool {
	switch l {
	case LevelF0, LevelF1, LevelF2:
		return true
	default:
		return false
	}
}

// LevelForDepth maps a closure depth from the buyer to the beneficiary
// level: depth 1 is the direct referrer (F1), depth 2 the grandparent
// (F0).
func LevelForDepth(depth int) (Level, bool) {
	switch depth {
	case 1:
		return LevelF1, true
	case 2:
		return LevelF0, true
	default:
		return "", false
	}
}

// Status is the payment lifecycle of a commission record.
type Status string

const (
	StatusCalculated Status = "calculated"
	StatusPaid       Status = "paid"
)

func (s Status) IsValid() bool {
	return s == StatusCalculated || s == StatusPaid
}

// CommissionRecord is one beneficiary's share of one order line.
// At most one record exists per (order, line, beneficiary, level).
type CommissionRecord struct {
	ID            id.RecordID
	OrderID       id.OrderID
	OrderLineID   id.OrderLineID
	ProductID     id.ProductID
	Beneficiary   id.UserID
	Level         Level
	Rate          money.Amount
	BaseAmount    money.Amount
	Quantity      int
	Amount        money.Amount
	CategoryGroup string
	Status        Status
	CalculatedAt  time.Time
	PaidAt        *time.Time
	PaidBy        *string
}

// Outcome classifies one calculation attempt.
type Outcome string

const (
	OutcomeSuccess Outcome = "success"
	OutcomeFailed  Outcome = "failed"
	OutcomePartial Outcome = "partial"
)

// CalculationLog is the append-only audit row written once per
// calculation attempt, success or not.
type CalculationLog struct {
	OrderID     id.OrderID
	TotalAmount money.Amount
	RecordCount int
	Outcome     Outcome
	ProcessedBy string
	Notes       string
	CreatedAt   time.Time
}

// LineResult reports the fate of a single order line within one
// calculation, closing the per-line visibility gap: a partially
// emitting order is distinguishable from a totally failed one.
type LineResult struct {
	OrderLineID id.OrderLineID
	Records     int
	Err         string
}

// CalculationResult is what CalculateForOrder hands back to batch
// callers. Execution failures land here rather than in the error
// return, so a scheduler sweeping many orders keeps going.
type CalculationResult struct {
	OrderID      id.OrderID
	Success      bool
	TotalRecords int
	TotalAmount  money.Amount
	Outcome      Outcome
	Lines        []LineResult
	Errors       []string
}

// RecordFilter narrows ledger queries. Nil fields do not filter;
// the predicate is the conjunction of the set ones.
type RecordFilter struct {
	OrderID     *id.OrderID
	ProductID   *id.ProductID
	Beneficiary *id.UserID
	Levels      []Level
	Status      *Status
	From        *time.Time
	To          *time.Time
}

// Matches is the pure predicate the memory store and tests share.
func (f RecordFilter) Matches(rec *CommissionRecord) bool {
	if f.OrderID != nil && rec.OrderID != *f.OrderID {
		return false
	}
	if f.ProductID != nil && rec.ProductID != *f.ProductID {
		return false
	}
	if f.Beneficiary != nil && rec.Beneficiary != *f.Beneficiary {
		return false
	}
	if len(f.Levels) > 0 {
		found := false
		for _, level := range f.Levels {
			if rec.Level == level {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if f.Status != nil && rec.Status != *f.Status {
		return false
	}
	if f.From != nil && rec.CalculatedAt.Before(*f.From) {
		return false
	}
	if f.To != nil && rec.CalculatedAt.After(*f.To) {
		return false
	}
	return true
}

// Page bounds a ledger query. Zero Limit means the store default.
type Page struct {
	Limit  int
	Offset int
}

// LevelTotals aggregates one hierarchy level within a summary.
type LevelTotals struct {
	Earned  money.Amount
	Paid    money.Amount
	Pending money.Amount
	Sales   money.Amount
}

// Summary aggregates a beneficiary's ledger position.
type Summary struct {
	Beneficiary  id.UserID
	TotalEarned  money.Amount
	TotalPaid    money.Amount
	TotalPending money.Amount
	TotalSales   money.Amount
	ByLevel      map[Level]LevelTotals
}

// OrderLineShare is one line's contribution inside an order digest.
type OrderLineShare struct {
	OrderLineID id.OrderLineID
	ProductID   id.ProductID
	Quantity    int
	BaseAmount  money.Amount
	Amount      money.Amount
}

// OrderDigest is one distinct order in a top-orders listing.
type OrderDigest struct {
	OrderID      id.OrderID
	Level        Level
	Amount       money.Amount
	CalculatedAt time.Time
	Lines        []OrderLineShare
}

// GlobalStats is the cross-beneficiary admin aggregate.
type GlobalStats struct {
	TotalRecords  int
	TotalAmount   money.Amount
	PaidRecords   int
	PaidAmount    money.Amount
	ByLevelCount  map[Level]int
	ByLevelAmount map[Level]money.Amount
}
