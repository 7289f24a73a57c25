package closure

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"upline/internal/referral/ports"
	dErrors "upline/pkg/domain-errors"
)

const defaultPostgresTxTimeout = 10 * time.Second

// PostgresTx runs closure mutations inside a database transaction.
type PostgresTx struct {
	pool    *pgxpool.Pool
	timeout time.Duration
}

// NewPostgresTxRunner builds the transactional runner for the closure store.
func NewPostgresTxRunner(pool *pgxpool.Pool) *PostgresTx {
	return &PostgresTx{pool: pool}
}

func (t *PostgresTx) RunInTx(ctx context.Context, fn func(store ports.Store) error) error {
	if err := ctx.Err(); err != nil {
		return dErrors.Wrap(err, dErrors.CodeTimeout, "transaction aborted: context cancelled")
	}

	timeout := t.timeout
	if timeout == 0 {
		timeout = defaultPostgresTxTimeout
	}
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	tx, err := t.pool.Begin(ctx)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "begin closure transaction")
	}
	defer func() {
		_ = tx.Rollback(context.Background())
	}()

	if err := fn(NewPostgresTx(tx)); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "commit closure transaction")
	}
	return nil
}
