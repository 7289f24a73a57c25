package closure

import (
	"context"
	"sync"
	"time"

	"upline/internal/referral/ports"
	dErrors "upline/pkg/domain-errors"
)

// defaultMemoryTxTimeout is the maximum duration for an in-memory
// closure transaction.
const defaultMemoryTxTimeout = 5 * time.Second

// MemoryTx gives the memory store the same transactional boundary the
// postgres store gets from BEGIN/COMMIT: a coarse lock plus snapshot
// restore on error, so a failed multi-edge insert leaves nothing behind.
type MemoryTx struct {
	mu    sync.Mutex
	store *Memory
}

// NewMemoryTx wraps a memory store in a transaction runner.
func NewMemoryTx(store *Memory) *MemoryTx {
	return &MemoryTx{store: store}
}

// RunInTx executes fn against the wrapped store, rolling back all
// mutations if fn errors.
func (t *MemoryTx) RunInTx(ctx context.Context, fn func(store ports.Store) error) error {
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

	t.store.mu.Lock()
	up, down := t.store.snapshot()
	t.store.mu.Unlock()

	if err := fn(t.store); err != nil {
		t.store.mu.Lock()
		t.store.up, t.store.down = up, down
		t.store.mu.Unlock()
		return err
	}
	return ctx.Err()
}
