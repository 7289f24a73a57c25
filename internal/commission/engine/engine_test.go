package engine

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	"upline/internal/commission/models"
	"upline/internal/commission/ports"
	"upline/internal/commission/rates"
	"upline/internal/commission/store"
	"upline/internal/commission/store/calclog"
	"upline/internal/commission/store/record"
	"upline/internal/order"
	"upline/internal/platform/lock"
	referralmodels "upline/internal/referral/models"
	id "upline/pkg/domain"
	dErrors "upline/pkg/domain-errors"
	"upline/pkg/money"
)

// stubResolver serves a fixed upline per buyer.
type stubResolver struct {
	upline map[id.UserID][]referralmodels.ClosureEdge
}

func (s *stubResolver) Ancestors(_ context.Context, node id.UserID, minDepth, maxDepth int) ([]referralmodels.ClosureEdge, error) {
	var out []referralmodels.ClosureEdge
	for _, edge := range s.upline[node] {
		if edge.Depth >= minDepth && (maxDepth == 0 || edge.Depth <= maxDepth) {
			out = append(out, edge)
		}
	}
	return out, nil
}

// failingTx fails the first transaction and delegates afterwards.
type failingTx struct {
	inner    ports.TxRunner
	failures int
}

func (f *failingTx) RunInTx(ctx context.Context, fn func(stores ports.Stores) error) error {
	if f.failures > 0 {
		f.failures--
		return dErrors.New(dErrors.CodeInternal, "simulated transaction failure")
	}
	return f.inner.RunInTx(ctx, fn)
}

type notifierSpy struct {
	events map[id.UserID][]string
}

func (n *notifierSpy) Notify(_ context.Context, user id.UserID, eventType string) {
	if n.events == nil {
		n.events = make(map[id.UserID][]string)
	}
	n.events[user] = append(n.events[user], eventType)
}

type EngineSuite struct {
	suite.Suite
	records  *record.Memory
	logs     *calclog.Memory
	tx       ports.TxRunner
	orders   *order.MemoryReader
	resolver *stubResolver
	locker   *lock.Memory
	notifier *notifierSpy
	engine   *Engine

	buyer       id.UserID
	referrer    id.UserID
	grandparent id.UserID
	now         time.Time
}

func TestEngineSuite(t *testing.T) {
	suite.Run(t, new(EngineSuite))
}

func (s *EngineSuite) SetupTest() {
	s.records = record.NewMemory()
	s.logs = calclog.NewMemory()
	s.tx = store.NewMemoryTx(s.records, s.logs)
	s.orders = order.NewMemoryReader()
	s.locker = lock.NewMemory()
	s.notifier = &notifierSpy{}
	s.now = time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)

	s.buyer = id.UserID(uuid.New())
	s.referrer = id.UserID(uuid.New())
	s.grandparent = id.UserID(uuid.New())
	s.resolver = &stubResolver{upline: map[id.UserID][]referralmodels.ClosureEdge{
		s.buyer: {
			{Ancestor: s.referrer, Descendant: s.buyer, Depth: 1},
			{Ancestor: s.grandparent, Descendant: s.buyer, Depth: 2},
		},
	}}

	var err error
	s.engine, err = New(s.tx, s.orders, s.resolver, s.locker, rates.Default(),
		WithNotifier(s.notifier),
		WithProcessedBy("test-worker"),
		WithClock(func() time.Time { return s.now }),
	)
	s.Require().NoError(err)
}

func (s *EngineSuite) newOrder(lines ...order.Line) *order.Order {
	completedAt := s.now.Add(-time.Hour)
	ord := &order.Order{
		ID:          id.OrderID(uuid.New()),
		Buyer:       s.buyer,
		Status:      order.StatusCompleted,
		Lines:       lines,
		CompletedAt: &completedAt,
	}
	s.orders.Put(ord)
	return ord
}

func line(category string, unitPrice string, quantity int) order.Line {
	return order.Line{
		ID:            id.OrderLineID(uuid.New()),
		ProductID:     id.ProductID(uuid.New()),
		Quantity:      quantity,
		UnitPrice:     money.MustRate(unitPrice),
		CategoryGroup: category,
	}
}

func (s *EngineSuite) amountFor(records []*models.CommissionRecord, beneficiary id.UserID) string {
	total := money.Zero
	for _, rec := range records {
		if rec.Beneficiary == beneficiary {
			total = total.Add(rec.Amount)
		}
	}
	return total.String()
}

func (s *EngineSuite) TestCalculateForOrder() {
	ctx := context.Background()

	s.Run("category B line distributes 60000/60000/40000", func() {
		ord := s.newOrder(line("B", "100000", 2))

		result, err := s.engine.CalculateForOrder(ctx, ord.ID)
		s.Require().NoError(err)
		s.True(result.Success)
		s.Equal(models.OutcomeSuccess, result.Outcome)
		s.Equal(3, result.TotalRecords)
		s.Equal("160000", result.TotalAmount.String())

		stored, err := s.records.List(ctx, models.RecordFilter{OrderID: &ord.ID}, models.Page{})
		s.Require().NoError(err)
		s.Require().Len(stored, 3)
		s.Equal("60000", s.amountFor(stored, s.buyer))
		s.Equal("60000", s.amountFor(stored, s.referrer))
		s.Equal("40000", s.amountFor(stored, s.grandparent))
		for _, rec := range stored {
			s.Equal(models.StatusCalculated, rec.Status)
			s.Equal("200000", rec.BaseAmount.String())
			s.Equal(s.now, rec.CalculatedAt)
		}
	})

	s.Run("recompute is idempotent", func() {
		ord := s.newOrder(line("A", "500", 3))

		first, err := s.engine.CalculateForOrder(ctx, ord.ID)
		s.Require().NoError(err)
		second, err := s.engine.CalculateForOrder(ctx, ord.ID)
		s.Require().NoError(err)

		s.Equal(first.TotalRecords, second.TotalRecords)
		s.Equal(first.TotalAmount.String(), second.TotalAmount.String())

		stored, err := s.records.List(ctx, models.RecordFilter{OrderID: &ord.ID}, models.Page{})
		s.Require().NoError(err)
		s.Len(stored, 3)
	})

	s.Run("buyer without upline earns only the F2 record", func() {
		orphan := id.UserID(uuid.New())
		completedAt := s.now
		ord := &order.Order{
			ID:          id.OrderID(uuid.New()),
			Buyer:       orphan,
			Status:      order.StatusCompleted,
			Lines:       []order.Line{line("C", "1000", 1)},
			CompletedAt: &completedAt,
		}
		s.orders.Put(ord)

		result, err := s.engine.CalculateForOrder(ctx, ord.ID)
		s.Require().NoError(err)
		s.Equal(1, result.TotalRecords)
		s.Equal("500", result.TotalAmount.String())
	})

	s.Run("unknown order is not found", func() {
		_, err := s.engine.CalculateForOrder(ctx, id.OrderID(uuid.New()))
		s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
	})

	s.Run("pending order is invalid state", func() {
		ord := s.newOrder(line("A", "100", 1))
		ord.Status = order.StatusPending
		s.orders.Put(ord)

		_, err := s.engine.CalculateForOrder(ctx, ord.ID)
		s.True(dErrors.HasCode(err, dErrors.CodeInvalidState))
	})

	s.Run("concurrent calculation fails fast", func() {
		ord := s.newOrder(line("A", "100", 1))
		release, err := s.locker.Acquire(ctx, orderLockPrefix+ord.ID.String(), time.Minute)
		s.Require().NoError(err)
		defer func() { _ = release(ctx) }()

		_, err = s.engine.CalculateForOrder(ctx, ord.ID)
		s.True(dErrors.HasCode(err, dErrors.CodeConflict))
	})

	s.Run("unknown category skips the line, outcome partial", func() {
		ord := s.newOrder(line("B", "1000", 1), line("Z", "9999", 1))

		result, err := s.engine.CalculateForOrder(ctx, ord.ID)
		s.Require().NoError(err)
		s.True(result.Success)
		s.Equal(models.OutcomePartial, result.Outcome)
		s.Equal(3, result.TotalRecords)
		s.Require().Len(result.Lines, 2)
		s.Empty(result.Lines[0].Err)
		s.Contains(result.Lines[1].Err, "no commission rate")

		entries, err := s.logs.ListByOrder(ctx, ord.ID)
		s.Require().NoError(err)
		s.Require().Len(entries, 1)
		s.Equal(models.OutcomePartial, entries[0].Outcome)
		s.Contains(entries[0].Notes, "1 of 2 lines skipped")
	})

	s.Run("no emittable lines, outcome failed", func() {
		ord := s.newOrder(line("Z", "100", 1))

		result, err := s.engine.CalculateForOrder(ctx, ord.ID)
		s.Require().NoError(err)
		s.False(result.Success)
		s.Equal(models.OutcomeFailed, result.Outcome)
		s.Zero(result.TotalRecords)
	})

	s.Run("beneficiaries are notified once each", func() {
		ord := s.newOrder(line("B", "100", 1), line("A", "200", 1))
		s.notifier.events = nil

		_, err := s.engine.CalculateForOrder(ctx, ord.ID)
		s.Require().NoError(err)

		s.Equal([]string{EventCommissionCalculated}, s.notifier.events[s.buyer])
		s.Equal([]string{EventCommissionCalculated}, s.notifier.events[s.referrer])
		s.Equal([]string{EventCommissionCalculated}, s.notifier.events[s.grandparent])
	})
}

func (s *EngineSuite) TestTransactionFailure() {
	ctx := context.Background()

	eng, err := New(&failingTx{inner: s.tx, failures: 1}, s.orders, s.resolver, s.locker, rates.Default(),
		WithProcessedBy("test-worker"),
		WithClock(func() time.Time { return s.now }),
	)
	s.Require().NoError(err)

	ord := s.newOrder(line("B", "1000", 1))
	result, err := eng.CalculateForOrder(ctx, ord.ID)
	s.Require().NoError(err)
	s.False(result.Success)
	s.Equal(models.OutcomeFailed, result.Outcome)
	s.NotEmpty(result.Errors)

	// The failure attempt is still visible in the log.
	entries, err := s.logs.ListByOrder(ctx, ord.ID)
	s.Require().NoError(err)
	s.Require().Len(entries, 1)
	s.Equal(models.OutcomeFailed, entries[0].Outcome)
	s.Equal("test-worker", entries[0].ProcessedBy)

	// Nothing was written to the record store.
	stored, err := s.records.List(ctx, models.RecordFilter{OrderID: &ord.ID}, models.Page{})
	s.Require().NoError(err)
	s.Empty(stored)
}
