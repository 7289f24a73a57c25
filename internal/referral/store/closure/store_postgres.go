package closure

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"upline/internal/referral/models"
	"upline/internal/referral/ports"
	id "upline/pkg/domain"
)

// querier is the subset of pgx shared by pool and transaction handles.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	CopyFrom(ctx context.Context, tableName pgx.Identifier, columnNames []string, rowSrc pgx.CopyFromSource) (int64, error)
}

// Postgres persists the closure relation in the referral_closure table.
type Postgres struct {
	q querier
}

// NewPostgres builds a pool-backed closure store.
func NewPostgres(pool *pgxpool.Pool) *Postgres {
	return &Postgres{q: pool}
}

// NewPostgresTx binds a store to an open transaction.
func NewPostgresTx(tx pgx.Tx) *Postgres {
	return &Postgres{q: tx}
}

func (s *Postgres) HasSelfEdge(ctx context.Context, node id.UserID) (bool, error) {
	var exists bool
	err := s.q.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM referral_closure
			WHERE ancestor_id = $1 AND descendant_id = $1 AND depth = 0
		)
	`, node.String()).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check self edge: %w", err)
	}
	return exists, nil
}

func (s *Postgres) DirectParent(ctx context.Context, node id.UserID) (*id.UserID, error) {
	var raw string
	err := s.q.QueryRow(ctx, `
		SELECT ancestor_id FROM referral_closure
		WHERE descendant_id = $1 AND depth = 1
	`, node.String()).Scan(&raw)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("direct parent: %w", err)
	}
	parent, err := id.ParseUserID(raw)
	if err != nil {
		return nil, err
	}
	return &parent, nil
}

func (s *Postgres) AncestorsOf(ctx context.Context, node id.UserID, minDepth, maxDepth int) ([]models.ClosureEdge, error) {
	rows, err := s.q.Query(ctx, `
		SELECT ancestor_id, descendant_id, depth FROM referral_closure
		WHERE descendant_id = $1
		  AND depth >= $2
		  AND ($3 = 0 OR depth <= $3)
		ORDER BY depth ASC, ancestor_id ASC
	`, node.String(), minDepth, maxDepth)
	if err != nil {
		return nil, fmt.Errorf("query ancestors: %w", err)
	}
	return scanEdges(rows)
}

func (s *Postgres) DescendantsOf(ctx context.Context, node id.UserID, minDepth, maxDepth int) ([]models.ClosureEdge, error) {
	rows, err := s.q.Query(ctx, `
		SELECT ancestor_id, descendant_id, depth FROM referral_closure
		WHERE ancestor_id = $1
		  AND depth >= $2
		  AND ($3 = 0 OR depth <= $3)
		ORDER BY depth ASC, descendant_id ASC
	`, node.String(), minDepth, maxDepth)
	if err != nil {
		return nil, fmt.Errorf("query descendants: %w", err)
	}
	return scanEdges(rows)
}

// InsertEdges batch-inserts via unnest; the ON CONFLICT clause keeps
// retried registrations idempotent without read-modify-write races.
func (s *Postgres) InsertEdges(ctx context.Context, edges []models.ClosureEdge) error {
	if len(edges) == 0 {
		return nil
	}
	ancestors := make([]string, len(edges))
	descendants := make([]string, len(edges))
	depths := make([]int32, len(edges))
	for i, edge := range edges {
		ancestors[i] = edge.Ancestor.String()
		descendants[i] = edge.Descendant.String()
		depths[i] = int32(edge.Depth)
	}
	_, err := s.q.Exec(ctx, `
		INSERT INTO referral_closure (ancestor_id, descendant_id, depth)
		SELECT unnest($1::uuid[]), unnest($2::uuid[]), unnest($3::int[])
		ON CONFLICT (ancestor_id, descendant_id) DO NOTHING
	`, ancestors, descendants, depths)
	if err != nil {
		return fmt.Errorf("insert closure edges: %w", err)
	}
	return nil
}

// ReplaceAll wipes and reloads the relation. Callers run it inside a
// transaction (see TxRunner) so readers see either the old closure or
// the new one, never the gap.
func (s *Postgres) ReplaceAll(ctx context.Context, edges []models.ClosureEdge) error {
	if _, err := s.q.Exec(ctx, `DELETE FROM referral_closure`); err != nil {
		return fmt.Errorf("clear closure: %w", err)
	}
	if len(edges) == 0 {
		return nil
	}
	_, err := s.q.CopyFrom(ctx,
		pgx.Identifier{"referral_closure"},
		[]string{"ancestor_id", "descendant_id", "depth"},
		pgx.CopyFromSlice(len(edges), func(i int) ([]any, error) {
			return []any{edges[i].Ancestor.String(), edges[i].Descendant.String(), edges[i].Depth}, nil
		}),
	)
	if err != nil {
		return fmt.Errorf("bulk load closure: %w", err)
	}
	return nil
}

func (s *Postgres) EdgeCount(ctx context.Context) (int, error) {
	var count int
	if err := s.q.QueryRow(ctx, `SELECT COUNT(*) FROM referral_closure`).Scan(&count); err != nil {
		return 0, fmt.Errorf("count closure edges: %w", err)
	}
	return count, nil
}

func scanEdges(rows pgx.Rows) ([]models.ClosureEdge, error) {
	defer rows.Close()
	var out []models.ClosureEdge
	for rows.Next() {
		var rawAncestor, rawDescendant string
		var depth int
		if err := rows.Scan(&rawAncestor, &rawDescendant, &depth); err != nil {
			return nil, fmt.Errorf("scan closure edge: %w", err)
		}
		ancestor, err := id.ParseUserID(rawAncestor)
		if err != nil {
			return nil, err
		}
		descendant, err := id.ParseUserID(rawDescendant)
		if err != nil {
			return nil, err
		}
		out = append(out, models.ClosureEdge{Ancestor: ancestor, Descendant: descendant, Depth: depth})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate closure edges: %w", err)
	}
	return out, nil
}

var _ ports.Store = (*Postgres)(nil)
