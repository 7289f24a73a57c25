package store

import (
	"context"
	"database/sql"
	"time"

	"upline/internal/commission/ports"
	"upline/internal/commission/store/calclog"
	"upline/internal/commission/store/record"
	dErrors "upline/pkg/domain-errors"
)

const defaultPostgresTxTimeout = 10 * time.Second

// PostgresTx runs the record and log stores inside one database
// transaction so delete-and-recreate commits atomically.
type PostgresTx struct {
	db      *sql.DB
	timeout time.Duration
}

func NewPostgresTx(db *sql.DB) *PostgresTx {
	return &PostgresTx{db: db, timeout: defaultPostgresTxTimeout}
}

func (t *PostgresTx) RunInTx(ctx context.Context, fn func(stores ports.Stores) error) error {
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t.timeout)
		defer cancel()
	}

	tx, err := t.db.BeginTx(ctx, nil)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "begin commission transaction")
	}
	defer func() {
		_ = tx.Rollback()
	}()

	stores := ports.Stores{
		Records: record.NewPostgresTx(tx),
		Logs:    calclog.NewPostgresTx(tx),
	}
	if err := fn(stores); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "commit commission transaction")
	}
	return nil
}
