// Package rebuild reconstructs the full closure relation from raw
// parent pointers. It exists for disaster recovery and backfill, not
// for routine operation: registrations maintain the closure
// incrementally.
package rebuild

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"upline/internal/platform/lock"
	"upline/internal/referral/metrics"
	"upline/internal/referral/models"
	"upline/internal/referral/ports"
	id "upline/pkg/domain"
	dErrors "upline/pkg/domain-errors"
)

// maintenanceTTL bounds how long a crashed rebuild can block
// registrations before the marker expires.
const maintenanceTTL = 15 * time.Minute

// Job rebuilds the closure relation under an exclusive maintenance
// marker. The replacement is computed fully in memory and swapped in a
// single transaction, so a failing rebuild leaves the previous closure
// untouched.
type Job struct {
	tx            ports.TxRunner
	locker        lock.Locker
	maxChainDepth int
	logger        *slog.Logger
	metrics       *metrics.Metrics
}

type Option func(*Job)

func WithLogger(logger *slog.Logger) Option {
	return func(j *Job) {
		if logger != nil {
			j.logger = logger
		}
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(j *Job) {
		j.metrics = m
	}
}

// New wires a rebuild job. maxChainDepth is the same configured bound
// incremental registration enforces.
func New(tx ports.TxRunner, locker lock.Locker, maxChainDepth int, opts ...Option) (*Job, error) {
	if tx == nil {
		return nil, fmt.Errorf("closure tx runner is required")
	}
	if locker == nil {
		return nil, fmt.Errorf("locker is required")
	}
	if maxChainDepth <= 0 {
		return nil, fmt.Errorf("maxChainDepth must be positive, got %d", maxChainDepth)
	}
	job := &Job{
		tx:            tx,
		locker:        locker,
		maxChainDepth: maxChainDepth,
		logger:        slog.Default(),
	}
	for _, opt := range opts {
		opt(job)
	}
	return job, nil
}

// RebuildAll recomputes every closure edge from the given (id, parent)
// pairs and replaces the stored relation wholesale. Cycles, unknown
// parents, and chains beyond the configured bound fail the run before
// anything is written.
func (j *Job) RebuildAll(ctx context.Context, nodes []models.UserNode) (int, error) {
	start := time.Now()

	release, err := j.locker.Acquire(ctx, ports.MaintenanceKey, maintenanceTTL)
	if err != nil {
		if dErrors.HasCode(err, dErrors.CodeConflict) {
			return 0, dErrors.Wrap(err, dErrors.CodeConflict, "another rebuild is running")
		}
		return 0, err
	}
	defer func() {
		_ = release(context.Background())
	}()

	edges, err := ComputeClosure(nodes, j.maxChainDepth)
	if err != nil {
		j.observe("failed", start)
		return 0, err
	}

	err = j.tx.RunInTx(ctx, func(store ports.Store) error {
		return store.ReplaceAll(ctx, edges)
	})
	if err != nil {
		j.observe("failed", start)
		return 0, dErrors.Wrap(err, dErrors.CodeInternal, "swap closure relation")
	}

	j.observe("success", start)
	j.logger.InfoContext(ctx, "closure rebuilt",
		"nodes", len(nodes),
		"edges", len(edges),
		"took", time.Since(start).String(),
	)
	return len(edges), nil
}

func (j *Job) observe(outcome string, start time.Time) {
	if j.metrics != nil {
		j.metrics.ObserveRebuild(outcome, time.Since(start).Seconds())
	}
}

// ComputeClosure derives the complete edge set by walking each node's
// parent chain. Pure function, exported for the property tests.
func ComputeClosure(nodes []models.UserNode, maxChainDepth int) ([]models.ClosureEdge, error) {
	parents := make(map[id.UserID]*id.UserID, len(nodes))
	for _, node := range nodes {
		if node.ID.IsNil() {
			return nil, dErrors.New(dErrors.CodeInvariantViolation, "node with nil id in rebuild input")
		}
		if _, dup := parents[node.ID]; dup {
			return nil, dErrors.Newf(dErrors.CodeInvariantViolation, "node %s appears twice in rebuild input", node.ID)
		}
		parents[node.ID] = node.ParentID
	}
	for _, node := range nodes {
		if node.ParentID != nil {
			if _, ok := parents[*node.ParentID]; !ok {
				return nil, dErrors.Newf(dErrors.CodeInvariantViolation,
					"node %s references unknown parent %s", node.ID, *node.ParentID)
			}
		}
	}

	edges := make([]models.ClosureEdge, 0, len(nodes)*2)
	for _, node := range nodes {
		edges = append(edges, models.SelfEdge(node.ID))

		depth := 0
		seen := map[id.UserID]bool{node.ID: true}
		current := parents[node.ID]
		for current != nil {
			depth++
			if depth >= maxChainDepth {
				// The bound is configuration, and hitting it is an
				// integrity failure, never a silent truncation.
				return nil, dErrors.Newf(dErrors.CodeInvariantViolation,
					"parent chain of %s exceeds configured bound %d", node.ID, maxChainDepth)
			}
			if seen[*current] {
				return nil, dErrors.Newf(dErrors.CodeInvariantViolation,
					"cycle detected in parent chain of node %s at %s", node.ID, *current)
			}
			seen[*current] = true
			edges = append(edges, models.ClosureEdge{
				Ancestor:   *current,
				Descendant: node.ID,
				Depth:      depth,
			})
			current = parents[*current]
		}
	}
	return edges, nil
}
