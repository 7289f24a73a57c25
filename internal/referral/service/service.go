package service

import (
	"context"
	"fmt"
	"log/slog"

	"upline/internal/platform/lock"
	"upline/internal/referral/metrics"
	"upline/internal/referral/models"
	"upline/internal/referral/ports"
	id "upline/pkg/domain"
	dErrors "upline/pkg/domain-errors"
)

// EventReferralRegistered is emitted after a node joins the forest.
const EventReferralRegistered = "referral_registered"

// Notifier delivers user-facing events. Delivery is someone else's
// problem; implementations must never fail the business operation.
type Notifier interface {
	Notify(ctx context.Context, user id.UserID, eventType string)
}

// Service maintains and queries the referral closure relation.
type Service struct {
	store         ports.Store
	tx            ports.TxRunner
	locker        lock.Locker
	maxChainDepth int
	logger        *slog.Logger
	metrics       *metrics.Metrics
	notifier      Notifier
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

func WithNotifier(n Notifier) Option {
	return func(s *Service) {
		s.notifier = n
	}
}

// New wires a graph service. Store, tx runner and locker are required;
// maxChainDepth must be positive (it is the configured bound from
// config.Referral, not an implicit ceiling).
func New(store ports.Store, tx ports.TxRunner, locker lock.Locker, maxChainDepth int, opts ...Option) (*Service, error) {
	if store == nil {
		return nil, fmt.Errorf("closure store is required")
	}
	if tx == nil {
		return nil, fmt.Errorf("closure tx runner is required")
	}
	if locker == nil {
		return nil, fmt.Errorf("locker is required")
	}
	if maxChainDepth <= 0 {
		return nil, fmt.Errorf("maxChainDepth must be positive, got %d", maxChainDepth)
	}

	svc := &Service{
		store:         store,
		tx:            tx,
		locker:        locker,
		maxChainDepth: maxChainDepth,
		logger:        slog.Default(),
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc, nil
}

// InsertNode registers a node and materializes every closure edge it
// participates in, atomically. Retrying with identical arguments is a
// no-op; re-registering under a different parent is an integrity
// failure because parent pointers are immutable.
func (s *Service) InsertNode(ctx context.Context, node id.UserID, parent *id.UserID) error {
	if node.IsNil() {
		return dErrors.New(dErrors.CodeBadRequest, "node id is required")
	}
	if parent != nil && *parent == node {
		return dErrors.New(dErrors.CodeValidation, "node cannot refer itself")
	}

	held, err := s.locker.Held(ctx, ports.MaintenanceKey)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "check maintenance marker")
	}
	if held {
		return dErrors.New(dErrors.CodeConflict, "closure rebuild in progress, registration deferred")
	}

	inserted := 0
	err = s.tx.RunInTx(ctx, func(store ports.Store) error {
		hasSelf, err := store.HasSelfEdge(ctx, node)
		if err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "check node self edge")
		}
		if hasSelf {
			existing, err := store.DirectParent(ctx, node)
			if err != nil {
				return dErrors.Wrap(err, dErrors.CodeInternal, "read existing parent")
			}
			if sameParent(existing, parent) {
				// Retry of an already-applied registration.
				return nil
			}
			return dErrors.Newf(dErrors.CodeInvariantViolation,
				"node %s already registered with a different parent", node)
		}

		edges := []models.ClosureEdge{models.SelfEdge(node)}
		if parent != nil {
			parentRegistered, err := store.HasSelfEdge(ctx, *parent)
			if err != nil {
				return dErrors.Wrap(err, dErrors.CodeInternal, "check parent self edge")
			}
			if !parentRegistered {
				return dErrors.Newf(dErrors.CodeInvariantViolation,
					"parent %s has no self edge; register the parent first", *parent)
			}
			ancestors, err := store.AncestorsOf(ctx, *parent, 1, 0)
			if err != nil {
				return dErrors.Wrap(err, dErrors.CodeInternal, "read parent ancestors")
			}
			// parent chain after insert: ancestors + parent + node
			if len(ancestors)+2 > s.maxChainDepth {
				return dErrors.Newf(dErrors.CodeInvariantViolation,
					"parent chain would exceed configured bound %d", s.maxChainDepth)
			}
			edges = append(edges, models.ClosureEdge{Ancestor: *parent, Descendant: node, Depth: 1})
			for _, ancestorEdge := range ancestors {
				edges = append(edges, models.ClosureEdge{
					Ancestor:   ancestorEdge.Ancestor,
					Descendant: node,
					Depth:      ancestorEdge.Depth + 1,
				})
			}
		}

		if err := store.InsertEdges(ctx, edges); err != nil {
			return err
		}
		inserted = len(edges)
		return nil
	})
	if err != nil {
		return err
	}
	if inserted == 0 {
		return nil
	}

	if s.metrics != nil {
		s.metrics.IncNodesRegistered()
		s.metrics.AddEdgesInserted(inserted)
	}
	if s.notifier != nil {
		s.notifier.Notify(ctx, node, EventReferralRegistered)
	}
	s.logger.InfoContext(ctx, "referral node registered",
		"node", node.String(),
		"edges", inserted,
	)
	return nil
}

// Ancestors returns the node's upline ordered nearest-first.
// maxDepth zero means unbounded.
func (s *Service) Ancestors(ctx context.Context, node id.UserID, minDepth, maxDepth int) ([]models.ClosureEdge, error) {
	if err := s.checkNode(ctx, node, minDepth, maxDepth); err != nil {
		return nil, err
	}
	edges, err := s.store.AncestorsOf(ctx, node, minDepth, maxDepth)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "query ancestors")
	}
	return edges, nil
}

// Descendants returns the node's downline ordered nearest-first,
// optionally banded (depth 1 for direct referrals, >1 for indirect).
func (s *Service) Descendants(ctx context.Context, node id.UserID, minDepth, maxDepth int) ([]models.ClosureEdge, error) {
	if err := s.checkNode(ctx, node, minDepth, maxDepth); err != nil {
		return nil, err
	}
	edges, err := s.store.DescendantsOf(ctx, node, minDepth, maxDepth)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "query descendants")
	}
	return edges, nil
}

func (s *Service) checkNode(ctx context.Context, node id.UserID, minDepth, maxDepth int) error {
	if node.IsNil() {
		return dErrors.New(dErrors.CodeBadRequest, "node id is required")
	}
	if minDepth < 0 {
		return dErrors.New(dErrors.CodeBadRequest, "minDepth must not be negative")
	}
	if maxDepth != 0 && maxDepth < minDepth {
		return dErrors.New(dErrors.CodeBadRequest, "maxDepth must be zero or >= minDepth")
	}
	registered, err := s.store.HasSelfEdge(ctx, node)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "check node self edge")
	}
	if !registered {
		return dErrors.Newf(dErrors.CodeNotFound, "node %s is not registered", node)
	}
	return nil
}

func sameParent(a, b *id.UserID) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}
