package order

import (
	"context"
	"sync"

	id "upline/pkg/domain"
	dErrors "upline/pkg/domain-errors"
)

// MemoryReader is the in-process order source for tests.
type MemoryReader struct {
	mu     sync.RWMutex
	orders map[id.OrderID]*Order
}

func NewMemoryReader() *MemoryReader {
	return &MemoryReader{orders: make(map[id.OrderID]*Order)}
}

// Put stores or replaces an order snapshot.
func (m *MemoryReader) Put(order *Order) {
	m.mu.Lock()
	defer m.mu.Unlock()
	copied := *order
	copied.Lines = append([]Line(nil), order.Lines...)
	m.orders[order.ID] = &copied
}

func (m *MemoryReader) GetOrder(_ context.Context, orderID id.OrderID) (*Order, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	stored, ok := m.orders[orderID]
	if !ok {
		return nil, dErrors.Newf(dErrors.CodeNotFound, "order %s not found", orderID)
	}
	copied := *stored
	copied.Lines = append([]Line(nil), stored.Lines...)
	return &copied, nil
}
