package calclog

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/shopspring/decimal"

	"upline/internal/commission/models"
	id "upline/pkg/domain"
)

type dbtx interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// Postgres appends to the commission_calculation_logs table.
type Postgres struct {
	db dbtx
}

func NewPostgres(db *sql.DB) *Postgres {
	return &Postgres{db: db}
}

// NewPostgresTx binds the log store to an open transaction.
func NewPostgresTx(tx *sql.Tx) *Postgres {
	return &Postgres{db: tx}
}

func (s *Postgres) Append(ctx context.Context, entry *models.CalculationLog) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO commission_calculation_logs
			(order_id, total_amount, record_count, outcome, processed_by, notes, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, entry.OrderID.String(), entry.TotalAmount.String(), entry.RecordCount,
		string(entry.Outcome), entry.ProcessedBy, entry.Notes, entry.CreatedAt)
	if err != nil {
		return fmt.Errorf("append calculation log: %w", err)
	}
	return nil
}

func (s *Postgres) ListByOrder(ctx context.Context, orderID id.OrderID) ([]*models.CalculationLog, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT order_id, total_amount, record_count, outcome, processed_by, notes, created_at
		FROM commission_calculation_logs
		WHERE order_id = $1
		ORDER BY created_at ASC
	`, orderID.String())
	if err != nil {
		return nil, fmt.Errorf("list calculation logs: %w", err)
	}
	defer rows.Close()

	var out []*models.CalculationLog
	for rows.Next() {
		var entry models.CalculationLog
		var rawOrder, rawTotal, rawOutcome string
		if err := rows.Scan(&rawOrder, &rawTotal, &entry.RecordCount,
			&rawOutcome, &entry.ProcessedBy, &entry.Notes, &entry.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan calculation log: %w", err)
		}
		entry.OrderID, err = id.ParseOrderID(rawOrder)
		if err != nil {
			return nil, err
		}
		entry.TotalAmount, err = decimal.NewFromString(rawTotal)
		if err != nil {
			return nil, fmt.Errorf("parse log total amount: %w", err)
		}
		entry.Outcome = models.Outcome(rawOutcome)
		out = append(out, &entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate calculation logs: %w", err)
	}
	return out, nil
}
