package record

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"
	"github.com/shopspring/decimal"

	"upline/internal/commission/models"
	id "upline/pkg/domain"
	dErrors "upline/pkg/domain-errors"
	"upline/pkg/money"
)

// dbtx is the subset of database/sql shared by *sql.DB and *sql.Tx.
type dbtx interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Postgres persists commission records in the commission_records table.
type Postgres struct {
	db dbtx
}

// NewPostgres builds a connection-backed record store.
func NewPostgres(db *sql.DB) *Postgres {
	return &Postgres{db: db}
}

// NewPostgresTx binds a record store to an open transaction.
func NewPostgresTx(tx *sql.Tx) *Postgres {
	return &Postgres{db: tx}
}

const recordColumns = `id, order_id, order_line_id, product_id, beneficiary_id, level,
	rate, base_amount, quantity, amount, category_group, status,
	calculated_at, paid_at, paid_by`

func (s *Postgres) DeleteByOrder(ctx context.Context, orderID id.OrderID) (int, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM commission_records WHERE order_id = $1`, orderID.String())
	if err != nil {
		return 0, fmt.Errorf("delete records by order: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("delete records by order: %w", err)
	}
	return int(affected), nil
}

func (s *Postgres) Insert(ctx context.Context, records []*models.CommissionRecord) error {
	if len(records) == 0 {
		return nil
	}
	ids := make([]string, len(records))
	orderIDs := make([]string, len(records))
	lineIDs := make([]string, len(records))
	productIDs := make([]string, len(records))
	beneficiaries := make([]string, len(records))
	levels := make([]string, len(records))
	ratesCol := make([]string, len(records))
	bases := make([]string, len(records))
	quantities := make([]int64, len(records))
	amounts := make([]string, len(records))
	categories := make([]string, len(records))
	statuses := make([]string, len(records))
	calculatedAts := make([]time.Time, len(records))
	for i, rec := range records {
		ids[i] = rec.ID.String()
		orderIDs[i] = rec.OrderID.String()
		lineIDs[i] = rec.OrderLineID.String()
		productIDs[i] = rec.ProductID.String()
		beneficiaries[i] = rec.Beneficiary.String()
		levels[i] = string(rec.Level)
		ratesCol[i] = rec.Rate.String()
		bases[i] = rec.BaseAmount.String()
		quantities[i] = int64(rec.Quantity)
		amounts[i] = rec.Amount.String()
		categories[i] = rec.CategoryGroup
		statuses[i] = string(rec.Status)
		calculatedAts[i] = rec.CalculatedAt
	}

	// Batch insert via unnest keeps recomputes to one round trip per
	// order regardless of line count.
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO commission_records (`+recordColumns+`)
		SELECT unnest($1::uuid[]), unnest($2::uuid[]), unnest($3::uuid[]),
			unnest($4::uuid[]), unnest($5::uuid[]), unnest($6::text[]),
			unnest($7::numeric[]), unnest($8::numeric[]), unnest($9::int[]),
			unnest($10::numeric[]), unnest($11::text[]), unnest($12::text[]),
			unnest($13::timestamptz[]), NULL, NULL
	`,
		pq.Array(ids), pq.Array(orderIDs), pq.Array(lineIDs),
		pq.Array(productIDs), pq.Array(beneficiaries), pq.Array(levels),
		pq.Array(ratesCol), pq.Array(bases), pq.Array(quantities),
		pq.Array(amounts), pq.Array(categories), pq.Array(statuses),
		pq.Array(calculatedAts),
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code.Name() == "unique_violation" {
			return dErrors.Wrap(err, dErrors.CodeConflict, "duplicate commission record")
		}
		return fmt.Errorf("insert commission records: %w", err)
	}
	return nil
}

func (s *Postgres) Get(ctx context.Context, recordID id.RecordID) (*models.CommissionRecord, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+recordColumns+` FROM commission_records WHERE id = $1`, recordID.String())
	rec, err := scanRecord(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, dErrors.Newf(dErrors.CodeNotFound, "commission record %s not found", recordID)
		}
		return nil, err
	}
	return rec, nil
}

func (s *Postgres) Delete(ctx context.Context, recordID id.RecordID) error {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM commission_records WHERE id = $1`, recordID.String())
	if err != nil {
		return fmt.Errorf("delete commission record: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete commission record: %w", err)
	}
	if affected == 0 {
		return dErrors.Newf(dErrors.CodeNotFound, "commission record %s not found", recordID)
	}
	return nil
}

func (s *Postgres) MarkPaid(ctx context.Context, recordID id.RecordID, paidBy string, paidAt time.Time) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE commission_records
		SET status = $2, paid_at = $3, paid_by = $4
		WHERE id = $1 AND status = $5
	`, recordID.String(), string(models.StatusPaid), paidAt, paidBy, string(models.StatusCalculated))
	if err != nil {
		return false, fmt.Errorf("mark commission record paid: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("mark commission record paid: %w", err)
	}
	return affected > 0, nil
}

func (s *Postgres) List(ctx context.Context, filter models.RecordFilter, page models.Page) ([]*models.CommissionRecord, error) {
	where, args := buildPredicate(filter)
	limit := page.Limit
	if limit <= 0 {
		limit = defaultPageLimit
	}
	args = append(args, limit, page.Offset)

	query := `SELECT ` + recordColumns + ` FROM commission_records` + where +
		fmt.Sprintf(` ORDER BY calculated_at DESC, id DESC LIMIT $%d OFFSET $%d`, len(args)-1, len(args))

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list commission records: %w", err)
	}
	defer rows.Close()

	var out []*models.CommissionRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate commission records: %w", err)
	}
	return out, nil
}

func (s *Postgres) Summarize(ctx context.Context, beneficiary id.UserID, filter models.RecordFilter) (*models.Summary, error) {
	filter.Beneficiary = &beneficiary
	where, args := buildPredicate(filter)

	rows, err := s.db.QueryContext(ctx, `
		SELECT level, status, COALESCE(SUM(amount), 0), COALESCE(SUM(base_amount), 0)
		FROM commission_records`+where+`
		GROUP BY level, status
	`, args...)
	if err != nil {
		return nil, fmt.Errorf("summarize commission records: %w", err)
	}
	defer rows.Close()

	summary := &models.Summary{
		Beneficiary:  beneficiary,
		TotalEarned:  money.Zero,
		TotalPaid:    money.Zero,
		TotalPending: money.Zero,
		TotalSales:   money.Zero,
		ByLevel:      make(map[models.Level]models.LevelTotals),
	}
	for rows.Next() {
		var rawLevel, rawStatus, rawAmount, rawBase string
		if err := rows.Scan(&rawLevel, &rawStatus, &rawAmount, &rawBase); err != nil {
			return nil, fmt.Errorf("scan summary row: %w", err)
		}
		amount, err := decimal.NewFromString(rawAmount)
		if err != nil {
			return nil, fmt.Errorf("parse summary amount: %w", err)
		}
		base, err := decimal.NewFromString(rawBase)
		if err != nil {
			return nil, fmt.Errorf("parse summary base amount: %w", err)
		}

		level := models.Level(rawLevel)
		totals, ok := summary.ByLevel[level]
		if !ok {
			totals = models.LevelTotals{Earned: money.Zero, Paid: money.Zero, Pending: money.Zero, Sales: money.Zero}
		}
		summary.TotalEarned = summary.TotalEarned.Add(amount)
		summary.TotalSales = summary.TotalSales.Add(base)
		totals.Earned = totals.Earned.Add(amount)
		totals.Sales = totals.Sales.Add(base)
		switch models.Status(rawStatus) {
		case models.StatusPaid:
			summary.TotalPaid = summary.TotalPaid.Add(amount)
			totals.Paid = totals.Paid.Add(amount)
		case models.StatusCalculated:
			summary.TotalPending = summary.TotalPending.Add(amount)
			totals.Pending = totals.Pending.Add(amount)
		}
		summary.ByLevel[level] = totals
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate summary rows: %w", err)
	}
	return summary, nil
}

func (s *Postgres) TopOrdersByLevel(ctx context.Context, beneficiary id.UserID, limitPerLevel int) (map[models.Level][]models.OrderDigest, error) {
	if limitPerLevel <= 0 {
		limitPerLevel = 5
	}
	// Rank distinct orders per level by their newest record, then pull
	// every line of the qualifying orders in one pass.
	rows, err := s.db.QueryContext(ctx, `
		WITH ranked AS (
			SELECT level, order_id,
				MAX(calculated_at) AS latest,
				ROW_NUMBER() OVER (
					PARTITION BY level
					ORDER BY MAX(calculated_at) DESC, order_id
				) AS rank
			FROM commission_records
			WHERE beneficiary_id = $1
			GROUP BY level, order_id
		)
		SELECT r.level, r.order_id, r.latest,
			c.order_line_id, c.product_id, c.quantity, c.base_amount, c.amount
		FROM ranked r
		JOIN commission_records c
			ON c.beneficiary_id = $1
			AND c.level = r.level
			AND c.order_id = r.order_id
		WHERE r.rank <= $2
		ORDER BY r.level, r.latest DESC, r.order_id, c.order_line_id
	`, beneficiary.String(), limitPerLevel)
	if err != nil {
		return nil, fmt.Errorf("query top orders: %w", err)
	}
	defer rows.Close()

	out := make(map[models.Level][]models.OrderDigest)
	for rows.Next() {
		var rawLevel, rawOrder, rawLine, rawProduct, rawBase, rawAmount string
		var latest time.Time
		var quantity int
		if err := rows.Scan(&rawLevel, &rawOrder, &latest, &rawLine, &rawProduct, &quantity, &rawBase, &rawAmount); err != nil {
			return nil, fmt.Errorf("scan top order row: %w", err)
		}
		level := models.Level(rawLevel)
		orderID, err := id.ParseOrderID(rawOrder)
		if err != nil {
			return nil, err
		}
		share, err := parseShare(rawLine, rawProduct, quantity, rawBase, rawAmount)
		if err != nil {
			return nil, err
		}

		digests := out[level]
		if len(digests) == 0 || digests[len(digests)-1].OrderID != orderID {
			digests = append(digests, models.OrderDigest{
				OrderID:      orderID,
				Level:        level,
				Amount:       money.Zero,
				CalculatedAt: latest,
			})
		}
		last := &digests[len(digests)-1]
		last.Amount = last.Amount.Add(share.Amount)
		last.Lines = append(last.Lines, share)
		out[level] = digests
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate top order rows: %w", err)
	}
	return out, nil
}

func (s *Postgres) GlobalStats(ctx context.Context) (*models.GlobalStats, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT level, status, COUNT(*), COALESCE(SUM(amount), 0)
		FROM commission_records
		GROUP BY level, status
	`)
	if err != nil {
		return nil, fmt.Errorf("query global stats: %w", err)
	}
	defer rows.Close()

	stats := &models.GlobalStats{
		TotalAmount:   money.Zero,
		PaidAmount:    money.Zero,
		ByLevelCount:  make(map[models.Level]int),
		ByLevelAmount: make(map[models.Level]money.Amount),
	}
	for rows.Next() {
		var rawLevel, rawStatus, rawAmount string
		var count int
		if err := rows.Scan(&rawLevel, &rawStatus, &count, &rawAmount); err != nil {
			return nil, fmt.Errorf("scan global stats row: %w", err)
		}
		amount, err := decimal.NewFromString(rawAmount)
		if err != nil {
			return nil, fmt.Errorf("parse global stats amount: %w", err)
		}
		level := models.Level(rawLevel)
		stats.TotalRecords += count
		stats.TotalAmount = stats.TotalAmount.Add(amount)
		if models.Status(rawStatus) == models.StatusPaid {
			stats.PaidRecords += count
			stats.PaidAmount = stats.PaidAmount.Add(amount)
		}
		stats.ByLevelCount[level] += count
		current, ok := stats.ByLevelAmount[level]
		if !ok {
			current = money.Zero
		}
		stats.ByLevelAmount[level] = current.Add(amount)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate global stats rows: %w", err)
	}
	return stats, nil
}

// buildPredicate turns the optional filter fields into a WHERE clause.
// Pure function; the memory store mirrors it with RecordFilter.Matches.
func buildPredicate(filter models.RecordFilter) (string, []any) {
	var clauses []string
	var args []any
	add := func(clause string, value any) {
		args = append(args, value)
		clauses = append(clauses, fmt.Sprintf(clause, len(args)))
	}

	if filter.OrderID != nil {
		add("order_id = $%d", filter.OrderID.String())
	}
	if filter.ProductID != nil {
		add("product_id = $%d", filter.ProductID.String())
	}
	if filter.Beneficiary != nil {
		add("beneficiary_id = $%d", filter.Beneficiary.String())
	}
	if len(filter.Levels) > 0 {
		levels := make([]string, len(filter.Levels))
		for i, level := range filter.Levels {
			levels[i] = string(level)
		}
		add("level = ANY($%d)", pq.Array(levels))
	}
	if filter.Status != nil {
		add("status = $%d", string(*filter.Status))
	}
	if filter.From != nil {
		add("calculated_at >= $%d", *filter.From)
	}
	if filter.To != nil {
		add("calculated_at <= $%d", *filter.To)
	}

	if len(clauses) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(clauses, " AND "), args
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (*models.CommissionRecord, error) {
	var rec models.CommissionRecord
	var rawID, rawOrder, rawLine, rawProduct, rawBeneficiary string
	var rawLevel, rawRate, rawBase, rawAmount, rawStatus string
	var paidAt sql.NullTime
	var paidBy sql.NullString

	err := row.Scan(&rawID, &rawOrder, &rawLine, &rawProduct, &rawBeneficiary,
		&rawLevel, &rawRate, &rawBase, &rec.Quantity, &rawAmount,
		&rec.CategoryGroup, &rawStatus, &rec.CalculatedAt, &paidAt, &paidBy)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan commission record: %w", err)
	}

	recordID, err := id.ParseRecordID(rawID)
	if err != nil {
		return nil, err
	}
	rec.ID = recordID
	rec.OrderID, err = id.ParseOrderID(rawOrder)
	if err != nil {
		return nil, err
	}
	lineUUID, err := id.ParseOrderID(rawLine)
	if err != nil {
		return nil, err
	}
	rec.OrderLineID = id.OrderLineID(lineUUID)
	productUUID, err := id.ParseOrderID(rawProduct)
	if err != nil {
		return nil, err
	}
	rec.ProductID = id.ProductID(productUUID)
	rec.Beneficiary, err = id.ParseUserID(rawBeneficiary)
	if err != nil {
		return nil, err
	}
	rec.Level = models.Level(rawLevel)
	rec.Status = models.Status(rawStatus)
	if rec.Rate, err = decimal.NewFromString(rawRate); err != nil {
		return nil, fmt.Errorf("parse rate: %w", err)
	}
	if rec.BaseAmount, err = decimal.NewFromString(rawBase); err != nil {
		return nil, fmt.Errorf("parse base amount: %w", err)
	}
	if rec.Amount, err = decimal.NewFromString(rawAmount); err != nil {
		return nil, fmt.Errorf("parse amount: %w", err)
	}
	if paidAt.Valid {
		rec.PaidAt = &paidAt.Time
	}
	if paidBy.Valid {
		rec.PaidBy = &paidBy.String
	}
	return &rec, nil
}

func parseShare(rawLine, rawProduct string, quantity int, rawBase, rawAmount string) (models.OrderLineShare, error) {
	var share models.OrderLineShare
	lineUUID, err := id.ParseOrderID(rawLine)
	if err != nil {
		return share, err
	}
	share.OrderLineID = id.OrderLineID(lineUUID)
	productUUID, err := id.ParseOrderID(rawProduct)
	if err != nil {
		return share, err
	}
	share.ProductID = id.ProductID(productUUID)
	share.Quantity = quantity
	if share.BaseAmount, err = decimal.NewFromString(rawBase); err != nil {
		return share, fmt.Errorf("parse base amount: %w", err)
	}
	if share.Amount, err = decimal.NewFromString(rawAmount); err != nil {
		return share, fmt.Errorf("parse amount: %w", err)
	}
	return share, nil
}
