// Package ports declares the interfaces the commission engine and
// ledger depend on.
package ports

import (
	"context"
	"time"

	"upline/internal/commission/models"
	"upline/internal/order"
	referralmodels "upline/internal/referral/models"
	id "upline/pkg/domain"
)

// RecordStore persists commission records and serves the ledger reads.
type RecordStore interface {
	// DeleteByOrder removes every record of the order; recompute
	// replaces, never appends.
	DeleteByOrder(ctx context.Context, orderID id.OrderID) (int, error)
	Insert(ctx context.Context, records []*models.CommissionRecord) error
	Get(ctx context.Context, recordID id.RecordID) (*models.CommissionRecord, error)
	Delete(ctx context.Context, recordID id.RecordID) error
	// MarkPaid transitions calculated -> paid and reports whether a row
	// changed; the ledger turns a no-change into NotFound or
	// AlreadyPaid.
	MarkPaid(ctx context.Context, recordID id.RecordID, paidBy string, paidAt time.Time) (bool, error)
	List(ctx context.Context, filter models.RecordFilter, page models.Page) ([]*models.CommissionRecord, error)
	Summarize(ctx context.Context, beneficiary id.UserID, filter models.RecordFilter) (*models.Summary, error)
	TopOrdersByLevel(ctx context.Context, beneficiary id.UserID, limitPerLevel int) (map[models.Level][]models.OrderDigest, error)
	GlobalStats(ctx context.Context) (*models.GlobalStats, error)
}

// LogStore appends calculation log rows. Append-only: attempts are
// never replaced.
type LogStore interface {
	Append(ctx context.Context, entry *models.CalculationLog) error
	ListByOrder(ctx context.Context, orderID id.OrderID) ([]*models.CalculationLog, error)
}

// Stores bundles what a calculation transaction can touch.
type Stores struct {
	Records RecordStore
	Logs    LogStore
}

// TxRunner is the transactional boundary for the delete-and-recreate
// step of a calculation.
type TxRunner interface {
	RunInTx(ctx context.Context, fn func(stores Stores) error) error
}

// OrderReader fetches order snapshots from the external order system.
type OrderReader interface {
	GetOrder(ctx context.Context, orderID id.OrderID) (*order.Order, error)
}

// AncestorResolver exposes the referral upline. The engine asks for the
// band [1,2] and maps depths to levels; it never chains parent lookups
// by hand.
type AncestorResolver interface {
	Ancestors(ctx context.Context, node id.UserID, minDepth, maxDepth int) ([]referralmodels.ClosureEdge, error)
}
