package record

import (
	"context"
	"sort"
	"sync"
	"time"

	"upline/internal/commission/models"
	id "upline/pkg/domain"
	dErrors "upline/pkg/domain-errors"
	"upline/pkg/money"
)

const defaultPageLimit = 50

type uniqueKey struct {
	order       id.OrderID
	line        id.OrderLineID
	beneficiary id.UserID
	level       models.Level
}

// Memory is the in-process record store backing unit tests and
// single-process runs. It enforces the same uniqueness the postgres
// index does.
type Memory struct {
	mu      sync.RWMutex
	records map[id.RecordID]*models.CommissionRecord
	unique  map[uniqueKey]id.RecordID
}

func NewMemory() *Memory {
	return &Memory{
		records: make(map[id.RecordID]*models.CommissionRecord),
		unique:  make(map[uniqueKey]id.RecordID),
	}
}

func (m *Memory) DeleteByOrder(_ context.Context, orderID id.OrderID) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	deleted := 0
	for recID, rec := range m.records {
		if rec.OrderID == orderID {
			delete(m.unique, keyOf(rec))
			delete(m.records, recID)
			deleted++
		}
	}
	return deleted, nil
}

func (m *Memory) Insert(_ context.Context, records []*models.CommissionRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, rec := range records {
		key := keyOf(rec)
		if _, exists := m.unique[key]; exists {
			return dErrors.Newf(dErrors.CodeConflict,
				"commission record already exists for order %s line %s beneficiary %s level %s",
				rec.OrderID, rec.OrderLineID, rec.Beneficiary, rec.Level)
		}
		copied := *rec
		m.records[rec.ID] = &copied
		m.unique[key] = rec.ID
	}
	return nil
}

func (m *Memory) Get(_ context.Context, recordID id.RecordID) (*models.CommissionRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.records[recordID]
	if !ok {
		return nil, dErrors.Newf(dErrors.CodeNotFound, "commission record %s not found", recordID)
	}
	copied := *rec
	return &copied, nil
}

func (m *Memory) Delete(_ context.Context, recordID id.RecordID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.records[recordID]
	if !ok {
		return dErrors.Newf(dErrors.CodeNotFound, "commission record %s not found", recordID)
	}
	delete(m.unique, keyOf(rec))
	delete(m.records, recordID)
	return nil
}

func (m *Memory) MarkPaid(_ context.Context, recordID id.RecordID, paidBy string, paidAt time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.records[recordID]
	if !ok || rec.Status != models.StatusCalculated {
		return false, nil
	}
	rec.Status = models.StatusPaid
	rec.PaidAt = &paidAt
	rec.PaidBy = &paidBy
	return true, nil
}

func (m *Memory) List(_ context.Context, filter models.RecordFilter, page models.Page) ([]*models.CommissionRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var matched []*models.CommissionRecord
	for _, rec := range m.records {
		if filter.Matches(rec) {
			copied := *rec
			matched = append(matched, &copied)
		}
	}
	sortRecords(matched)

	limit := page.Limit
	if limit <= 0 {
		limit = defaultPageLimit
	}
	if page.Offset >= len(matched) {
		return nil, nil
	}
	end := page.Offset + limit
	if end > len(matched) {
		end = len(matched)
	}
	return matched[page.Offset:end], nil
}

func (m *Memory) Summarize(_ context.Context, beneficiary id.UserID, filter models.RecordFilter) (*models.Summary, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	filter.Beneficiary = &beneficiary
	summary := &models.Summary{
		Beneficiary:  beneficiary,
		TotalEarned:  money.Zero,
		TotalPaid:    money.Zero,
		TotalPending: money.Zero,
		TotalSales:   money.Zero,
		ByLevel:      make(map[models.Level]models.LevelTotals),
	}
	for _, rec := range m.records {
		if !filter.Matches(rec) {
			continue
		}
		accumulate(summary, rec)
	}
	return summary, nil
}

func (m *Memory) TopOrdersByLevel(_ context.Context, beneficiary id.UserID, limitPerLevel int) (map[models.Level][]models.OrderDigest, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if limitPerLevel <= 0 {
		limitPerLevel = 5
	}

	grouped := make(map[models.Level]map[id.OrderID]*models.OrderDigest)
	for _, rec := range m.records {
		if rec.Beneficiary != beneficiary {
			continue
		}
		byOrder, ok := grouped[rec.Level]
		if !ok {
			byOrder = make(map[id.OrderID]*models.OrderDigest)
			grouped[rec.Level] = byOrder
		}
		digest, ok := byOrder[rec.OrderID]
		if !ok {
			digest = &models.OrderDigest{
				OrderID: rec.OrderID,
				Level:   rec.Level,
				Amount:  money.Zero,
			}
			byOrder[rec.OrderID] = digest
		}
		digest.Amount = digest.Amount.Add(rec.Amount)
		if rec.CalculatedAt.After(digest.CalculatedAt) {
			digest.CalculatedAt = rec.CalculatedAt
		}
		digest.Lines = append(digest.Lines, models.OrderLineShare{
			OrderLineID: rec.OrderLineID,
			ProductID:   rec.ProductID,
			Quantity:    rec.Quantity,
			BaseAmount:  rec.BaseAmount,
			Amount:      rec.Amount,
		})
	}

	out := make(map[models.Level][]models.OrderDigest, len(grouped))
	for level, byOrder := range grouped {
		digests := make([]models.OrderDigest, 0, len(byOrder))
		for _, digest := range byOrder {
			sort.Slice(digest.Lines, func(i, j int) bool {
				return digest.Lines[i].OrderLineID.String() < digest.Lines[j].OrderLineID.String()
			})
			digests = append(digests, *digest)
		}
		sort.Slice(digests, func(i, j int) bool {
			if !digests[i].CalculatedAt.Equal(digests[j].CalculatedAt) {
				return digests[i].CalculatedAt.After(digests[j].CalculatedAt)
			}
			return digests[i].OrderID.String() < digests[j].OrderID.String()
		})
		if len(digests) > limitPerLevel {
			digests = digests[:limitPerLevel]
		}
		out[level] = digests
	}
	return out, nil
}

func (m *Memory) GlobalStats(_ context.Context) (*models.GlobalStats, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	stats := &models.GlobalStats{
		TotalAmount:   money.Zero,
		PaidAmount:    money.Zero,
		ByLevelCount:  make(map[models.Level]int),
		ByLevelAmount: make(map[models.Level]money.Amount),
	}
	for _, rec := range m.records {
		stats.TotalRecords++
		stats.TotalAmount = stats.TotalAmount.Add(rec.Amount)
		if rec.Status == models.StatusPaid {
			stats.PaidRecords++
			stats.PaidAmount = stats.PaidAmount.Add(rec.Amount)
		}
		stats.ByLevelCount[rec.Level]++
		current, ok := stats.ByLevelAmount[rec.Level]
		if !ok {
			current = money.Zero
		}
		stats.ByLevelAmount[rec.Level] = current.Add(rec.Amount)
	}
	return stats, nil
}

// MemorySnapshot captures store state for transactional rollback.
type MemorySnapshot struct {
	records map[id.RecordID]*models.CommissionRecord
	unique  map[uniqueKey]id.RecordID
}

func (m *Memory) Snapshot() *MemorySnapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()
	snap := &MemorySnapshot{
		records: make(map[id.RecordID]*models.CommissionRecord, len(m.records)),
		unique:  make(map[uniqueKey]id.RecordID, len(m.unique)),
	}
	for recID, rec := range m.records {
		copied := *rec
		snap.records[recID] = &copied
	}
	for k, v := range m.unique {
		snap.unique[k] = v
	}
	return snap
}

func (m *Memory) Restore(snap *MemorySnapshot) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records = snap.records
	m.unique = snap.unique
}

func keyOf(rec *models.CommissionRecord) uniqueKey {
	return uniqueKey{
		order:       rec.OrderID,
		line:        rec.OrderLineID,
		beneficiary: rec.Beneficiary,
		level:       rec.Level,
	}
}

func accumulate(summary *models.Summary, rec *models.CommissionRecord) {
	totals, ok := summary.ByLevel[rec.Level]
	if !ok {
		totals = models.LevelTotals{
			Earned:  money.Zero,
			Paid:    money.Zero,
			Pending: money.Zero,
			Sales:   money.Zero,
		}
	}
	summary.TotalEarned = summary.TotalEarned.Add(rec.Amount)
	summary.TotalSales = summary.TotalSales.Add(rec.BaseAmount)
	totals.Earned = totals.Earned.Add(rec.Amount)
	totals.Sales = totals.Sales.Add(rec.BaseAmount)
	switch rec.Status {
	case models.StatusPaid:
		summary.TotalPaid = summary.TotalPaid.Add(rec.Amount)
		totals.Paid = totals.Paid.Add(rec.Amount)
	case models.StatusCalculated:
		summary.TotalPending = summary.TotalPending.Add(rec.Amount)
		totals.Pending = totals.Pending.Add(rec.Amount)
	}
	summary.ByLevel[rec.Level] = totals
}

// sortRecords orders newest-first with the id as a stable tiebreak.
func sortRecords(records []*models.CommissionRecord) {
	sort.Slice(records, func(i, j int) bool {
		if !records[i].CalculatedAt.Equal(records[j].CalculatedAt) {
			return records[i].CalculatedAt.After(records[j].CalculatedAt)
		}
		return records[i].ID.String() > records[j].ID.String()
	})
}
