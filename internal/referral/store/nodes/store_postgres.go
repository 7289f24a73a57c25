// Package nodes reads raw parent pointers for the rebuild job.
package nodes

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"upline/internal/referral/models"
	id "upline/pkg/domain"
)

// Postgres reads the users table's (id, parent_id) pairs.
type Postgres struct {
	pool *pgxpool.Pool
}

func NewPostgres(pool *pgxpool.Pool) *Postgres {
	return &Postgres{pool: pool}
}

func (s *Postgres) AllNodes(ctx context.Context) ([]models.UserNode, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, parent_id, created_at FROM users ORDER BY created_at ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query user nodes: %w", err)
	}
	defer rows.Close()

	var out []models.UserNode
	for rows.Next() {
		var node models.UserNode
		var rawID string
		var rawParent *string
		if err := rows.Scan(&rawID, &rawParent, &node.RegisteredAt); err != nil {
			return nil, fmt.Errorf("scan user node: %w", err)
		}
		node.ID, err = id.ParseUserID(rawID)
		if err != nil {
			return nil, err
		}
		if rawParent != nil {
			parent, err := id.ParseUserID(*rawParent)
			if err != nil {
				return nil, err
			}
			node.ParentID = &parent
		}
		out = append(out, node)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate user nodes: %w", err)
	}
	return out, nil
}
