package record

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	"upline/internal/commission/models"
	id "upline/pkg/domain"
	dErrors "upline/pkg/domain-errors"
	"upline/pkg/money"
)

type MemoryRecordSuite struct {
	suite.Suite
	store *Memory
	now   time.Time
}

func TestMemoryRecordSuite(t *testing.T) {
	suite.Run(t, new(MemoryRecordSuite))
}

func (s *MemoryRecordSuite) SetupTest() {
	s.store = NewMemory()
	s.now = time.Date(2026, 8, 15, 10, 0, 0, 0, time.UTC)
}

func (s *MemoryRecordSuite) record(orderID id.OrderID, level models.Level) *models.CommissionRecord {
	return &models.CommissionRecord{
		ID:            id.NewRecordID(),
		OrderID:       orderID,
		OrderLineID:   id.OrderLineID(uuid.New()),
		ProductID:     id.ProductID(uuid.New()),
		Beneficiary:   id.UserID(uuid.New()),
		Level:         level,
		Rate:          money.MustRate("0.30"),
		BaseAmount:    money.MustRate("1000"),
		Quantity:      1,
		Amount:        money.MustRate("300"),
		CategoryGroup: "B",
		Status:        models.StatusCalculated,
		CalculatedAt:  s.now,
	}
}

func (s *MemoryRecordSuite) TestInsert() {
	ctx := context.Background()

	s.Run("rejects a duplicate (order, line, beneficiary, level)", func() {
		rec := s.record(id.OrderID(uuid.New()), models.LevelF1)
		s.Require().NoError(s.store.Insert(ctx, []*models.CommissionRecord{rec}))

		dup := *rec
		dup.ID = id.NewRecordID()
		err := s.store.Insert(ctx, []*models.CommissionRecord{&dup})
		s.True(dErrors.HasCode(err, dErrors.CodeConflict))
	})

	s.Run("stores copies, not caller pointers", func() {
		rec := s.record(id.OrderID(uuid.New()), models.LevelF2)
		s.Require().NoError(s.store.Insert(ctx, []*models.CommissionRecord{rec}))

		rec.Status = models.StatusPaid

		stored, err := s.store.Get(ctx, rec.ID)
		s.Require().NoError(err)
		s.Equal(models.StatusCalculated, stored.Status)
	})
}

func (s *MemoryRecordSuite) TestDeleteByOrder() {
	ctx := context.Background()
	orderID := id.OrderID(uuid.New())

	s.Require().NoError(s.store.Insert(ctx, []*models.CommissionRecord{
		s.record(orderID, models.LevelF2),
		s.record(orderID, models.LevelF1),
		s.record(id.OrderID(uuid.New()), models.LevelF2),
	}))

	deleted, err := s.store.DeleteByOrder(ctx, orderID)
	s.Require().NoError(err)
	s.Equal(2, deleted)

	// Uniqueness slots are freed along with the rows.
	s.NoError(s.store.Insert(ctx, []*models.CommissionRecord{s.record(orderID, models.LevelF2)}))
}

func (s *MemoryRecordSuite) TestMarkPaid() {
	ctx := context.Background()

	s.Run("reports change exactly once", func() {
		rec := s.record(id.OrderID(uuid.New()), models.LevelF1)
		s.Require().NoError(s.store.Insert(ctx, []*models.CommissionRecord{rec}))

		changed, err := s.store.MarkPaid(ctx, rec.ID, "finance", s.now)
		s.Require().NoError(err)
		s.True(changed)

		changed, err = s.store.MarkPaid(ctx, rec.ID, "finance", s.now)
		s.Require().NoError(err)
		s.False(changed)
	})

	s.Run("missing record reports no change", func() {
		changed, err := s.store.MarkPaid(ctx, id.NewRecordID(), "finance", s.now)
		s.Require().NoError(err)
		s.False(changed)
	})
}

func (s *MemoryRecordSuite) TestSnapshotRestore() {
	ctx := context.Background()
	rec := s.record(id.OrderID(uuid.New()), models.LevelF1)
	s.Require().NoError(s.store.Insert(ctx, []*models.CommissionRecord{rec}))

	snap := s.store.Snapshot()
	s.Require().NoError(s.store.Delete(ctx, rec.ID))

	s.store.Restore(snap)

	stored, err := s.store.Get(ctx, rec.ID)
	s.Require().NoError(err)
	s.Equal(rec.ID, stored.ID)
}
