// Package engine computes commission fan-out for completed orders.
// A calculation is a delete-and-recreate of the order's records inside
// one transaction, guarded by a per-order lock, so recomputing is
// always safe and never doubles payouts.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"upline/internal/commission/metrics"
	"upline/internal/commission/models"
	"upline/internal/commission/ports"
	"upline/internal/commission/rates"
	"upline/internal/order"
	"upline/internal/platform/lock"
	referralmodels "upline/internal/referral/models"
	id "upline/pkg/domain"
	dErrors "upline/pkg/domain-errors"
	"upline/pkg/money"
)

// EventCommissionCalculated is emitted to each beneficiary after a
// successful calculation.
const EventCommissionCalculated = "commission_calculated"

const orderLockPrefix = "commission:order:"

const (
	defaultLockTTL     = 30 * time.Second
	defaultProcessedBy = "upline"
)

// Notifier delivers user-facing events. Implementations must never
// fail the business operation.
type Notifier interface {
	Notify(ctx context.Context, user id.UserID, eventType string)
}

// Engine runs per-order commission calculations.
type Engine struct {
	tx          ports.TxRunner
	orders      ports.OrderReader
	upline      ports.AncestorResolver
	locker      lock.Locker
	table       rates.Table
	lockTTL     time.Duration
	processedBy string
	logger      *slog.Logger
	metrics     *metrics.Metrics
	notifier    Notifier
	now         func() time.Time
}

type Option func(*Engine)

func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Engine) {
		e.metrics = m
	}
}

func WithNotifier(n Notifier) Option {
	return func(e *Engine) {
		e.notifier = n
	}
}

// WithLockTTL bounds how long an abandoned per-order lock outlives a
// crashed calculation.
func WithLockTTL(ttl time.Duration) Option {
	return func(e *Engine) {
		if ttl > 0 {
			e.lockTTL = ttl
		}
	}
}

// WithProcessedBy stamps calculation log rows with the worker identity.
func WithProcessedBy(name string) Option {
	return func(e *Engine) {
		if name != "" {
			e.processedBy = name
		}
	}
}

// WithClock injects the time source.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

func New(tx ports.TxRunner, orders ports.OrderReader, upline ports.AncestorResolver, locker lock.Locker, table rates.Table, opts ...Option) (*Engine, error) {
	if tx == nil {
		return nil, fmt.Errorf("commission tx runner is required")
	}
	if orders == nil {
		return nil, fmt.Errorf("order reader is required")
	}
	if upline == nil {
		return nil, fmt.Errorf("ancestor resolver is required")
	}
	if locker == nil {
		return nil, fmt.Errorf("locker is required")
	}

	eng := &Engine{
		tx:          tx,
		orders:      orders,
		upline:      upline,
		locker:      locker,
		table:       table,
		lockTTL:     defaultLockTTL,
		processedBy: defaultProcessedBy,
		logger:      slog.Default(),
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(eng)
	}
	return eng, nil
}

// CalculateForOrder recomputes every commission record of the order.
// Precondition failures (unknown order, wrong status, concurrent
// calculation) come back as coded errors; line-level problems are
// folded into the result so batch callers keep sweeping.
func (e *Engine) CalculateForOrder(ctx context.Context, orderID id.OrderID) (*models.CalculationResult, error) {
	if orderID.IsNil() {
		return nil, dErrors.New(dErrors.CodeBadRequest, "order id is required")
	}

	release, err := e.locker.Acquire(ctx, orderLockPrefix+orderID.String(), e.lockTTL)
	if err != nil {
		if dErrors.HasCode(err, dErrors.CodeConflict) {
			return nil, dErrors.Newf(dErrors.CodeConflict,
				"calculation already in progress for order %s", orderID)
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "acquire order lock")
	}
	defer func() {
		if releaseErr := release(context.WithoutCancel(ctx)); releaseErr != nil {
			e.logger.WarnContext(ctx, "release order lock", "order", orderID.String(), "error", releaseErr)
		}
	}()

	ord, err := e.orders.GetOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if ord.Status != order.StatusCompleted {
		return nil, dErrors.Newf(dErrors.CodeInvalidState,
			"order %s is %s, commissions require a completed order", orderID, ord.Status)
	}

	upline, err := e.upline.Ancestors(ctx, ord.Buyer, 1, 2)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "resolve buyer upline")
	}

	started := e.now()
	records, result := e.compute(ord, upline, started)

	logEntry := &models.CalculationLog{
		OrderID:     orderID,
		TotalAmount: result.TotalAmount,
		RecordCount: result.TotalRecords,
		Outcome:     result.Outcome,
		ProcessedBy: e.processedBy,
		Notes:       calculationNotes(result),
		CreatedAt:   started,
	}

	err = e.tx.RunInTx(ctx, func(stores ports.Stores) error {
		if _, err := stores.Records.DeleteByOrder(ctx, orderID); err != nil {
			return err
		}
		if err := stores.Records.Insert(ctx, records); err != nil {
			return err
		}
		return stores.Logs.Append(ctx, logEntry)
	})
	if err != nil {
		// The rolled-back transaction took its log row with it; the
		// failure attempt still has to be visible afterwards.
		e.appendFailureLog(ctx, orderID, err)
		e.observe(string(models.OutcomeFailed), started, nil)
		result.Success = false
		result.Outcome = models.OutcomeFailed
		result.TotalRecords = 0
		result.TotalAmount = money.Zero
		result.Errors = append(result.Errors, err.Error())
		return result, nil
	}

	e.observe(string(result.Outcome), started, records)
	if result.Success && e.notifier != nil {
		for _, beneficiary := range distinctBeneficiaries(records) {
			e.notifier.Notify(ctx, beneficiary, EventCommissionCalculated)
		}
	}
	e.logger.InfoContext(ctx, "commission calculation finished",
		"order", orderID.String(),
		"outcome", string(result.Outcome),
		"records", result.TotalRecords,
		"total", result.TotalAmount.String(),
	)
	return result, nil
}

// compute builds the full record set for the order. Pure given the
// order snapshot, the resolved upline and the clock reading.
func (e *Engine) compute(ord *order.Order, upline []referralmodels.ClosureEdge, at time.Time) ([]*models.CommissionRecord, *models.CalculationResult) {
	result := &models.CalculationResult{
		OrderID:     ord.ID,
		TotalAmount: money.Zero,
	}

	var records []*models.CommissionRecord
	for _, line := range ord.Lines {
		lineResult := models.LineResult{OrderLineID: line.ID}
		categoryRate, ok := e.table.CategoryRate(line.CategoryGroup)
		if !ok {
			lineResult.Err = fmt.Sprintf("no commission rate for category group %q", line.CategoryGroup)
			result.Lines = append(result.Lines, lineResult)
			result.Errors = append(result.Errors, fmt.Sprintf("line %s: %s", line.ID, lineResult.Err))
			continue
		}

		base := money.RoundAmount(line.UnitPrice.Mul(money.FromInt(int64(line.Quantity))))
		emit := func(beneficiary id.UserID, level models.Level, rate money.Amount) {
			rec := &models.CommissionRecord{
				ID:            id.NewRecordID(),
				OrderID:       ord.ID,
				OrderLineID:   line.ID,
				ProductID:     line.ProductID,
				Beneficiary:   beneficiary,
				Level:         level,
				Rate:          rate,
				BaseAmount:    base,
				Quantity:      line.Quantity,
				Amount:        money.Mul(base, rate),
				CategoryGroup: line.CategoryGroup,
				Status:        models.StatusCalculated,
				CalculatedAt:  at,
			}
			records = append(records, rec)
			lineResult.Records++
			result.TotalAmount = result.TotalAmount.Add(rec.Amount)
		}

		// The buyer's own line earns the category rate; the upline earns
		// the flat level rates on the same base.
		emit(ord.Buyer, models.LevelF2, categoryRate)
		for _, edge := range upline {
			level, ok := models.LevelForDepth(edge.Depth)
			if !ok {
				continue
			}
			levelRate, ok := e.table.LevelRate(level)
			if !ok {
				continue
			}
			emit(edge.Ancestor, level, levelRate)
		}

		result.Lines = append(result.Lines, lineResult)
	}

	result.TotalRecords = len(records)
	switch {
	case len(records) == 0:
		result.Outcome = models.OutcomeFailed
	case len(result.Errors) > 0:
		result.Success = true
		result.Outcome = models.OutcomePartial
	default:
		result.Success = true
		result.Outcome = models.OutcomeSuccess
	}
	return records, result
}

func (e *Engine) appendFailureLog(ctx context.Context, orderID id.OrderID, cause error) {
	entry := &models.CalculationLog{
		OrderID:     orderID,
		TotalAmount: money.Zero,
		Outcome:     models.OutcomeFailed,
		ProcessedBy: e.processedBy,
		Notes:       cause.Error(),
		CreatedAt:   e.now(),
	}
	detached := context.WithoutCancel(ctx)
	logErr := e.tx.RunInTx(detached, func(stores ports.Stores) error {
		return stores.Logs.Append(detached, entry)
	})
	if logErr != nil {
		e.logger.ErrorContext(ctx, "append failure log",
			"order", orderID.String(), "error", logErr)
	}
}

func (e *Engine) observe(outcome string, started time.Time, records []*models.CommissionRecord) {
	if e.metrics == nil {
		return
	}
	byLevel := make(map[models.Level]int)
	for _, rec := range records {
		byLevel[rec.Level]++
	}
	for level, n := range byLevel {
		e.metrics.AddRecordsWritten(string(level), n)
	}
	e.metrics.ObserveCalculation(outcome, e.now().Sub(started).Seconds())
}

func calculationNotes(result *models.CalculationResult) string {
	skipped := 0
	for _, line := range result.Lines {
		if line.Err != "" {
			skipped++
		}
	}
	switch {
	case len(result.Lines) == 0:
		return "order has no lines"
	case skipped == len(result.Lines):
		return fmt.Sprintf("all %d lines skipped", skipped)
	case skipped > 0:
		return fmt.Sprintf("%d of %d lines skipped", skipped, len(result.Lines))
	default:
		return ""
	}
}

func distinctBeneficiaries(records []*models.CommissionRecord) []id.UserID {
	seen := make(map[id.UserID]bool, len(records))
	var out []id.UserID
	for _, rec := range records {
		if !seen[rec.Beneficiary] {
			seen[rec.Beneficiary] = true
			out = append(out, rec.Beneficiary)
		}
	}
	return out
}
