// Package store provides the transactional runners that bind the
// commission record and calculation log stores into one boundary.
package store

import (
	"context"
	"sync"
	"time"

	"upline/internal/commission/ports"
	"upline/internal/commission/store/calclog"
	"upline/internal/commission/store/record"
	dErrors "upline/pkg/domain-errors"
)

const defaultMemoryTxTimeout = 5 * time.Second

// MemoryTx gives the memory stores the same boundary the postgres pair
// gets from BEGIN/COMMIT: a coarse lock plus snapshot restore on error,
// so a failed recompute leaves both stores untouched.
type MemoryTx struct {
	mu      sync.Mutex
	records *record.Memory
	logs    *calclog.Memory
}

func NewMemoryTx(records *record.Memory, logs *calclog.Memory) *MemoryTx {
	return &MemoryTx{records: records, logs: logs}
}

// RunInTx executes fn against both stores, rolling back all mutations
// if fn errors.
func (t *MemoryTx) RunInTx(ctx context.Context, fn func(stores ports.Stores) error) error {
	if err := ctx.Err(); err != nil {
		return dErrors.Wrap(err, dErrors.CodeTimeout, "transaction aborted: context cancelled")
	}
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, defaultMemoryTxTimeout)
		defer cancel()
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	recordSnap := t.records.Snapshot()
	logSnap := t.logs.Snapshot()

	if err := fn(ports.Stores{Records: t.records, Logs: t.logs}); err != nil {
		t.records.Restore(recordSnap)
		t.logs.Restore(logSnap)
		return err
	}
	return ctx.Err()
}
