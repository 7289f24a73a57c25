//go:build integration

package record_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	"upline/internal/commission/models"
	"upline/internal/commission/store/record"
	id "upline/pkg/domain"
	dErrors "upline/pkg/domain-errors"
	"upline/pkg/money"
	"upline/pkg/testutil/containers"
)

type PostgresRecordSuite struct {
	suite.Suite
	postgres *containers.PostgresContainer
	store    *record.Postgres
	now      time.Time
}

func TestPostgresRecordSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(PostgresRecordSuite))
}

func (s *PostgresRecordSuite) SetupSuite() {
	mgr := containers.GetManager()
	s.postgres = mgr.GetPostgres(s.T())
	s.store = record.NewPostgres(s.postgres.DB)
}

func (s *PostgresRecordSuite) SetupTest() {
	ctx := context.Background()
	err := s.postgres.TruncateTables(ctx, "commission_records")
	s.Require().NoError(err)
	s.now = time.Date(2026, 8, 15, 10, 0, 0, 0, time.UTC)
}

func (s *PostgresRecordSuite) record(beneficiary id.UserID, level models.Level, amount string, at time.Time) *models.CommissionRecord {
	return &models.CommissionRecord{
		ID:            id.NewRecordID(),
		OrderID:       id.OrderID(uuid.New()),
		OrderLineID:   id.OrderLineID(uuid.New()),
		ProductID:     id.ProductID(uuid.New()),
		Beneficiary:   beneficiary,
		Level:         level,
		Rate:          money.MustRate("0.30"),
		BaseAmount:    money.MustRate("1000"),
		Quantity:      1,
		Amount:        money.MustRate(amount),
		CategoryGroup: "B",
		Status:        models.StatusCalculated,
		CalculatedAt:  at,
	}
}

func (s *PostgresRecordSuite) TestInsertRoundTrip() {
	ctx := context.Background()
	rec := s.record(id.UserID(uuid.New()), models.LevelF1, "300", s.now)
	s.Require().NoError(s.store.Insert(ctx, []*models.CommissionRecord{rec}))

	stored, err := s.store.Get(ctx, rec.ID)
	s.Require().NoError(err)
	s.Equal(rec.OrderID, stored.OrderID)
	s.Equal(rec.Beneficiary, stored.Beneficiary)
	s.Equal(models.LevelF1, stored.Level)
	s.Equal(models.StatusCalculated, stored.Status)
	s.True(stored.Amount.Equal(money.MustRate("300")))
	s.True(stored.Rate.Equal(money.MustRate("0.30")))
	s.True(stored.CalculatedAt.Equal(s.now))
	s.Nil(stored.PaidAt)
}

func (s *PostgresRecordSuite) TestInsertDuplicateConflict() {
	ctx := context.Background()
	rec := s.record(id.UserID(uuid.New()), models.LevelF1, "300", s.now)
	s.Require().NoError(s.store.Insert(ctx, []*models.CommissionRecord{rec}))

	dup := *rec
	dup.ID = id.NewRecordID()
	err := s.store.Insert(ctx, []*models.CommissionRecord{&dup})
	s.True(dErrors.HasCode(err, dErrors.CodeConflict))
}

func (s *PostgresRecordSuite) TestDeleteByOrderFreesSlots() {
	ctx := context.Background()
	rec := s.record(id.UserID(uuid.New()), models.LevelF2, "500", s.now)
	s.Require().NoError(s.store.Insert(ctx, []*models.CommissionRecord{rec}))

	deleted, err := s.store.DeleteByOrder(ctx, rec.OrderID)
	s.Require().NoError(err)
	s.Equal(1, deleted)

	fresh := *rec
	fresh.ID = id.NewRecordID()
	s.NoError(s.store.Insert(ctx, []*models.CommissionRecord{&fresh}))
}

// TestConcurrentMarkPaid verifies that racing payouts of the same
// record change exactly one row.
func (s *PostgresRecordSuite) TestConcurrentMarkPaid() {
	ctx := context.Background()
	rec := s.record(id.UserID(uuid.New()), models.LevelF1, "300", s.now)
	s.Require().NoError(s.store.Insert(ctx, []*models.CommissionRecord{rec}))

	const goroutines = 20
	var wg sync.WaitGroup
	var changedCount atomic.Int32
	var errCount atomic.Int32

	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			changed, err := s.store.MarkPaid(ctx, rec.ID, "finance", s.now)
			if err != nil {
				errCount.Add(1)
				return
			}
			if changed {
				changedCount.Add(1)
			}
		}()
	}
	wg.Wait()

	s.Equal(int32(1), changedCount.Load(), "exactly one payout should win")
	s.Equal(int32(0), errCount.Load(), "no unexpected errors")

	stored, err := s.store.Get(ctx, rec.ID)
	s.Require().NoError(err)
	s.Equal(models.StatusPaid, stored.Status)
	s.Require().NotNil(stored.PaidAt)
	s.Require().NotNil(stored.PaidBy)
	s.Equal("finance", *stored.PaidBy)
}

func (s *PostgresRecordSuite) TestListFilterAndPagination() {
	ctx := context.Background()
	beneficiary := id.UserID(uuid.New())

	older := s.record(beneficiary, models.LevelF1, "300", s.now.Add(-time.Hour))
	newer := s.record(beneficiary, models.LevelF2, "600", s.now)
	other := s.record(id.UserID(uuid.New()), models.LevelF0, "200", s.now)
	s.Require().NoError(s.store.Insert(ctx, []*models.CommissionRecord{older, newer, other}))

	s.Run("newest first", func() {
		records, err := s.store.List(ctx, models.RecordFilter{Beneficiary: &beneficiary}, models.Page{Limit: 10})
		s.Require().NoError(err)
		s.Require().Len(records, 2)
		s.Equal(newer.ID, records[0].ID)
		s.Equal(older.ID, records[1].ID)
	})

	s.Run("level filter", func() {
		records, err := s.store.List(ctx, models.RecordFilter{Levels: []models.Level{models.LevelF2}}, models.Page{Limit: 10})
		s.Require().NoError(err)
		s.Require().Len(records, 1)
		s.Equal(newer.ID, records[0].ID)
	})

	s.Run("offset pages past the newest", func() {
		records, err := s.store.List(ctx, models.RecordFilter{Beneficiary: &beneficiary}, models.Page{Limit: 1, Offset: 1})
		s.Require().NoError(err)
		s.Require().Len(records, 1)
		s.Equal(older.ID, records[0].ID)
	})

	s.Run("time window", func() {
		from := s.now.Add(-30 * time.Minute)
		records, err := s.store.List(ctx, models.RecordFilter{Beneficiary: &beneficiary, From: &from}, models.Page{Limit: 10})
		s.Require().NoError(err)
		s.Require().Len(records, 1)
		s.Equal(newer.ID, records[0].ID)
	})
}

func (s *PostgresRecordSuite) TestSummarize() {
	ctx := context.Background()
	beneficiary := id.UserID(uuid.New())

	paid := s.record(beneficiary, models.LevelF1, "300", s.now)
	pending := s.record(beneficiary, models.LevelF2, "600", s.now)
	s.Require().NoError(s.store.Insert(ctx, []*models.CommissionRecord{
		paid, pending, s.record(id.UserID(uuid.New()), models.LevelF0, "999", s.now),
	}))

	changed, err := s.store.MarkPaid(ctx, paid.ID, "finance", s.now)
	s.Require().NoError(err)
	s.Require().True(changed)

	summary, err := s.store.Summarize(ctx, beneficiary, models.RecordFilter{})
	s.Require().NoError(err)
	s.True(summary.TotalEarned.Equal(money.MustRate("900")))
	s.True(summary.TotalPaid.Equal(money.MustRate("300")))
	s.True(summary.TotalPending.Equal(money.MustRate("600")))
	s.True(summary.ByLevel[models.LevelF1].Paid.Equal(money.MustRate("300")))
	s.True(summary.ByLevel[models.LevelF2].Pending.Equal(money.MustRate("600")))
}

func (s *PostgresRecordSuite) TestGlobalStats() {
	ctx := context.Background()

	first := s.record(id.UserID(uuid.New()), models.LevelF1, "300", s.now)
	second := s.record(id.UserID(uuid.New()), models.LevelF2, "600", s.now)
	s.Require().NoError(s.store.Insert(ctx, []*models.CommissionRecord{first, second}))

	changed, err := s.store.MarkPaid(ctx, first.ID, "finance", s.now)
	s.Require().NoError(err)
	s.Require().True(changed)

	stats, err := s.store.GlobalStats(ctx)
	s.Require().NoError(err)
	s.Equal(2, stats.TotalRecords)
	s.Equal(1, stats.PaidRecords)
	s.True(stats.TotalAmount.Equal(money.MustRate("900")))
	s.True(stats.PaidAmount.Equal(money.MustRate("300")))
	s.Equal(1, stats.ByLevelCount[models.LevelF2])
	s.True(stats.ByLevelAmount[models.LevelF1].Equal(money.MustRate("300")))
}
