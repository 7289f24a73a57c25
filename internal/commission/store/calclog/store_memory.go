package calclog

import (
	"context"
	"sort"
	"sync"

	"upline/internal/commission/models"
	id "upline/pkg/domain"
)

// Memory keeps calculation logs in process. Append-only like the
// postgres table.
type Memory struct {
	mu      sync.RWMutex
	entries []*models.CalculationLog
}

func NewMemory() *Memory {
	return &Memory{}
}

func (m *Memory) Append(_ context.Context, entry *models.CalculationLog) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	copied := *entry
	m.entries = append(m.entries, &copied)
	return nil
}

func (m *Memory) ListByOrder(_ context.Context, orderID id.OrderID) ([]*models.CalculationLog, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []*models.CalculationLog
	for _, entry := range m.entries {
		if entry.OrderID == orderID {
			copied := *entry
			out = append(out, &copied)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

// MemorySnapshot captures store state for transactional rollback.
type MemorySnapshot struct {
	entries []*models.CalculationLog
}

func (m *Memory) Snapshot() *MemorySnapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()
	snap := &MemorySnapshot{entries: make([]*models.CalculationLog, len(m.entries))}
	for i, entry := range m.entries {
		copied := *entry
		snap.entries[i] = &copied
	}
	return snap
}

func (m *Memory) Restore(snap *MemorySnapshot) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = snap.entries
}
