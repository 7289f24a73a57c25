// Package ports declares the interfaces the referral services depend
// on, so stores stay swappable between memory and postgres.
package ports

import (
	"context"

	"upline/internal/referral/models"
	id "upline/pkg/domain"
)

// MaintenanceKey is the lock name the rebuild job holds while it owns
// the closure relation exclusively. Incremental registration refuses to
// run while it is held.
const MaintenanceKey = "referral:closure:maintenance"

// Store is the closure relation the graph service reads and writes.
// Depth bands use minDepth inclusive and maxDepth inclusive, with
// maxDepth zero meaning unbounded. Results are ordered depth ascending.
type Store interface {
	HasSelfEdge(ctx context.Context, node id.UserID) (bool, error)
	DirectParent(ctx context.Context, node id.UserID) (*id.UserID, error)
	AncestorsOf(ctx context.Context, node id.UserID, minDepth, maxDepth int) ([]models.ClosureEdge, error)
	DescendantsOf(ctx context.Context, node id.UserID, minDepth, maxDepth int) ([]models.ClosureEdge, error)
	// InsertEdges skips exact duplicates so retries stay idempotent.
	InsertEdges(ctx context.Context, edges []models.ClosureEdge) error
	// ReplaceAll swaps the whole relation in one atomic step.
	ReplaceAll(ctx context.Context, edges []models.ClosureEdge) error
	EdgeCount(ctx context.Context) (int, error)
}

// TxRunner provides the transactional boundary for multi-edge
// mutations. Implementations wrap a database transaction or, in
// memory, a coarse lock with snapshot rollback.
type TxRunner interface {
	RunInTx(ctx context.Context, fn func(store Store) error) error
}

// NodeSource yields the raw (id, parentId) pairs the rebuild job
// reconstructs the closure from.
type NodeSource interface {
	AllNodes(ctx context.Context) ([]models.UserNode, error)
}
