// Package ledger is the read-and-settle surface over commission
// records: payment transitions, filtered queries and aggregates.
package ledger

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"upline/internal/commission/metrics"
	"upline/internal/commission/models"
	"upline/internal/commission/ports"
	id "upline/pkg/domain"
	dErrors "upline/pkg/domain-errors"
)

// EventCommissionPaid is emitted to the beneficiary when a record is
// settled.
const EventCommissionPaid = "commission_paid"

// Notifier delivers user-facing events. Implementations must never
// fail the business operation.
type Notifier interface {
	Notify(ctx context.Context, user id.UserID, eventType string)
}

type Ledger struct {
	records  ports.RecordStore
	logs     ports.LogStore
	logger   *slog.Logger
	metrics  *metrics.Metrics
	notifier Notifier
	now      func() time.Time
}

type Option func(*Ledger)

func WithLogger(logger *slog.Logger) Option {
	return func(l *Ledger) {
		if logger != nil {
			l.logger = logger
		}
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(l *Ledger) {
		l.metrics = m
	}
}

func WithNotifier(n Notifier) Option {
	return func(l *Ledger) {
		l.notifier = n
	}
}

// WithClock injects the time source.
func WithClock(now func() time.Time) Option {
	return func(l *Ledger) {
		if now != nil {
			l.now = now
		}
	}
}

func New(records ports.RecordStore, logs ports.LogStore, opts ...Option) (*Ledger, error) {
	if records == nil {
		return nil, fmt.Errorf("record store is required")
	}
	if logs == nil {
		return nil, fmt.Errorf("log store is required")
	}
	l := &Ledger{
		records: records,
		logs:    logs,
		logger:  slog.Default(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l, nil
}

// MarkPaid settles a calculated record. Settling twice is rejected with
// AlreadyPaid rather than silently succeeding, so payout pipelines
// notice their own retries.
func (l *Ledger) MarkPaid(ctx context.Context, recordID id.RecordID, paidBy string) (*models.CommissionRecord, error) {
	if recordID.IsNil() {
		return nil, dErrors.New(dErrors.CodeBadRequest, "record id is required")
	}
	if paidBy == "" {
		return nil, dErrors.New(dErrors.CodeBadRequest, "paidBy is required")
	}

	paidAt := l.now()
	changed, err := l.records.MarkPaid(ctx, recordID, paidBy, paidAt)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "mark record paid")
	}
	if !changed {
		// Distinguish a missing record from one already settled.
		if _, err := l.records.Get(ctx, recordID); err != nil {
			return nil, err
		}
		return nil, dErrors.Newf(dErrors.CodeAlreadyPaid,
			"commission record %s is already paid", recordID)
	}

	rec, err := l.records.Get(ctx, recordID)
	if err != nil {
		return nil, err
	}
	if l.metrics != nil {
		l.metrics.IncRecordsPaid()
	}
	if l.notifier != nil {
		l.notifier.Notify(ctx, rec.Beneficiary, EventCommissionPaid)
	}
	l.logger.InfoContext(ctx, "commission record paid",
		"record", recordID.String(),
		"beneficiary", rec.Beneficiary.String(),
		"amount", rec.Amount.String(),
		"paid_by", paidBy,
	)
	return rec, nil
}

func (l *Ledger) Get(ctx context.Context, recordID id.RecordID) (*models.CommissionRecord, error) {
	if recordID.IsNil() {
		return nil, dErrors.New(dErrors.CodeBadRequest, "record id is required")
	}
	return l.records.Get(ctx, recordID)
}

// Delete removes a single record. Admin escape hatch; recomputation via
// the engine is the normal correction path.
func (l *Ledger) Delete(ctx context.Context, recordID id.RecordID) error {
	if recordID.IsNil() {
		return dErrors.New(dErrors.CodeBadRequest, "record id is required")
	}
	if err := l.records.Delete(ctx, recordID); err != nil {
		return err
	}
	l.logger.InfoContext(ctx, "commission record deleted", "record", recordID.String())
	return nil
}

// Query returns records matching the filter, newest first.
func (l *Ledger) Query(ctx context.Context, filter models.RecordFilter, page models.Page) ([]*models.CommissionRecord, error) {
	if page.Limit < 0 || page.Offset < 0 {
		return nil, dErrors.New(dErrors.CodeBadRequest, "page limit and offset must not be negative")
	}
	for _, level := range filter.Levels {
		if !level.IsValid() {
			return nil, dErrors.Newf(dErrors.CodeBadRequest, "unknown level %q", level)
		}
	}
	if filter.Status != nil && !filter.Status.IsValid() {
		return nil, dErrors.Newf(dErrors.CodeBadRequest, "unknown status %q", *filter.Status)
	}
	records, err := l.records.List(ctx, filter, page)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "list commission records")
	}
	return records, nil
}

// Summarize aggregates a beneficiary's position, optionally narrowed by
// the filter's level, status or date range.
func (l *Ledger) Summarize(ctx context.Context, beneficiary id.UserID, filter models.RecordFilter) (*models.Summary, error) {
	if beneficiary.IsNil() {
		return nil, dErrors.New(dErrors.CodeBadRequest, "beneficiary id is required")
	}
	summary, err := l.records.Summarize(ctx, beneficiary, filter)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "summarize commission records")
	}
	return summary, nil
}

// TopOrdersByLevel lists the most recent distinct orders per level with
// their line breakdown.
func (l *Ledger) TopOrdersByLevel(ctx context.Context, beneficiary id.UserID, limitPerLevel int) (map[models.Level][]models.OrderDigest, error) {
	if beneficiary.IsNil() {
		return nil, dErrors.New(dErrors.CodeBadRequest, "beneficiary id is required")
	}
	if limitPerLevel < 0 {
		return nil, dErrors.New(dErrors.CodeBadRequest, "limit must not be negative")
	}
	digests, err := l.records.TopOrdersByLevel(ctx, beneficiary, limitPerLevel)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "aggregate top orders")
	}
	return digests, nil
}

// GlobalStats is the cross-beneficiary admin aggregate.
func (l *Ledger) GlobalStats(ctx context.Context) (*models.GlobalStats, error) {
	stats, err := l.records.GlobalStats(ctx)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "aggregate global stats")
	}
	return stats, nil
}

// Calculations lists the calculation attempts recorded for an order,
// oldest first.
func (l *Ledger) Calculations(ctx context.Context, orderID id.OrderID) ([]*models.CalculationLog, error) {
	if orderID.IsNil() {
		return nil, dErrors.New(dErrors.CodeBadRequest, "order id is required")
	}
	entries, err := l.logs.ListByOrder(ctx, orderID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "list calculation logs")
	}
	return entries, nil
}
