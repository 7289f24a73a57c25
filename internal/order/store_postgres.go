package order

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	id "upline/pkg/domain"
	dErrors "upline/pkg/domain-errors"
)

// PostgresReader reads order snapshots from the shared orders tables.
type PostgresReader struct {
	pool *pgxpool.Pool
}

func NewPostgresReader(pool *pgxpool.Pool) *PostgresReader {
	return &PostgresReader{pool: pool}
}

func (r *PostgresReader) GetOrder(ctx context.Context, orderID id.OrderID) (*Order, error) {
	out := &Order{ID: orderID}

	var rawBuyer, rawStatus string
	err := r.pool.QueryRow(ctx, `
		SELECT buyer_id, status, completed_at FROM orders WHERE id = $1
	`, orderID.String()).Scan(&rawBuyer, &rawStatus, &out.CompletedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, dErrors.Newf(dErrors.CodeNotFound, "order %s not found", orderID)
		}
		return nil, fmt.Errorf("query order: %w", err)
	}
	out.Buyer, err = id.ParseUserID(rawBuyer)
	if err != nil {
		return nil, err
	}
	out.Status = Status(rawStatus)

	rows, err := r.pool.Query(ctx, `
		SELECT id, product_id, quantity, unit_price, category_group
		FROM order_lines WHERE order_id = $1
		ORDER BY id ASC
	`, orderID.String())
	if err != nil {
		return nil, fmt.Errorf("query order lines: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var line Line
		var rawLine, rawProduct, rawPrice string
		if err := rows.Scan(&rawLine, &rawProduct, &line.Quantity, &rawPrice, &line.CategoryGroup); err != nil {
			return nil, fmt.Errorf("scan order line: %w", err)
		}
		lineID, err := uuid.Parse(rawLine)
		if err != nil {
			return nil, fmt.Errorf("parse order line id: %w", err)
		}
		line.ID = id.OrderLineID(lineID)
		productID, err := uuid.Parse(rawProduct)
		if err != nil {
			return nil, fmt.Errorf("parse product id: %w", err)
		}
		line.ProductID = id.ProductID(productID)
		line.UnitPrice, err = decimal.NewFromString(rawPrice)
		if err != nil {
			return nil, fmt.Errorf("parse unit price: %w", err)
		}
		out.Lines = append(out.Lines, line)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate order lines: %w", err)
	}
	return out, nil
}
