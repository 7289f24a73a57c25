//go:build integration

package closure_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	"upline/internal/referral/models"
	"upline/internal/referral/ports"
	"upline/internal/referral/store/closure"
	id "upline/pkg/domain"
	dErrors "upline/pkg/domain-errors"
	"upline/pkg/testutil/containers"
)

type PostgresClosureSuite struct {
	suite.Suite
	postgres *containers.PostgresContainer
	store    *closure.Postgres
	tx       *closure.PostgresTx
}

func TestPostgresClosureSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(PostgresClosureSuite))
}

func (s *PostgresClosureSuite) SetupSuite() {
	mgr := containers.GetManager()
	s.postgres = mgr.GetPostgres(s.T())
	s.store = closure.NewPostgres(s.postgres.Pool)
	s.tx = closure.NewPostgresTxRunner(s.postgres.Pool)
}

func (s *PostgresClosureSuite) SetupTest() {
	ctx := context.Background()
	err := s.postgres.TruncateTables(ctx, "referral_closure")
	s.Require().NoError(err)
}

func (s *PostgresClosureSuite) seedChain() (a, b, c id.UserID) {
	ctx := context.Background()
	a, b, c = id.UserID(uuid.New()), id.UserID(uuid.New()), id.UserID(uuid.New())
	s.Require().NoError(s.store.InsertEdges(ctx, []models.ClosureEdge{
		models.SelfEdge(a),
		models.SelfEdge(b),
		models.SelfEdge(c),
		{Ancestor: a, Descendant: b, Depth: 1},
		{Ancestor: a, Descendant: c, Depth: 2},
		{Ancestor: b, Descendant: c, Depth: 1},
	}))
	return a, b, c
}

// TestInsertIdempotent verifies that re-inserting the same edges leaves
// the relation unchanged.
func (s *PostgresClosureSuite) TestInsertIdempotent() {
	ctx := context.Background()
	a, b, _ := s.seedChain()

	err := s.store.InsertEdges(ctx, []models.ClosureEdge{
		models.SelfEdge(a),
		{Ancestor: a, Descendant: b, Depth: 1},
	})
	s.Require().NoError(err)

	count, err := s.store.EdgeCount(ctx)
	s.Require().NoError(err)
	s.Equal(6, count)
}

func (s *PostgresClosureSuite) TestTraversal() {
	ctx := context.Background()
	a, b, c := s.seedChain()

	s.Run("ancestors come back depth ascending", func() {
		edges, err := s.store.AncestorsOf(ctx, c, 0, 0)
		s.Require().NoError(err)
		s.Require().Len(edges, 3)
		s.Equal([]id.UserID{c, b, a}, []id.UserID{edges[0].Ancestor, edges[1].Ancestor, edges[2].Ancestor})
	})

	s.Run("band excludes the self edge", func() {
		edges, err := s.store.AncestorsOf(ctx, c, 1, 2)
		s.Require().NoError(err)
		s.Len(edges, 2)
	})

	s.Run("descendants band to depth one", func() {
		edges, err := s.store.DescendantsOf(ctx, a, 1, 1)
		s.Require().NoError(err)
		s.Require().Len(edges, 1)
		s.Equal(b, edges[0].Descendant)
	})

	s.Run("direct parent reads the depth-1 ancestor", func() {
		parent, err := s.store.DirectParent(ctx, c)
		s.Require().NoError(err)
		s.Require().NotNil(parent)
		s.Equal(b, *parent)
	})

	s.Run("direct parent of a root is nil", func() {
		parent, err := s.store.DirectParent(ctx, a)
		s.Require().NoError(err)
		s.Nil(parent)
	})
}

// TestTxRollback verifies that a failed transaction leaves no partial
// writes behind.
func (s *PostgresClosureSuite) TestTxRollback() {
	ctx := context.Background()
	s.seedChain()

	err := s.tx.RunInTx(ctx, func(store ports.Store) error {
		if err := store.InsertEdges(ctx, []models.ClosureEdge{models.SelfEdge(id.UserID(uuid.New()))}); err != nil {
			return err
		}
		return dErrors.New(dErrors.CodeInternal, "forced failure")
	})
	s.Require().Error(err)

	count, err := s.store.EdgeCount(ctx)
	s.Require().NoError(err)
	s.Equal(6, count)
}

// TestReplaceAll verifies the wholesale swap used by the rebuild job.
func (s *PostgresClosureSuite) TestReplaceAll() {
	ctx := context.Background()
	a, _, _ := s.seedChain()
	fresh := id.UserID(uuid.New())

	err := s.tx.RunInTx(ctx, func(store ports.Store) error {
		return store.ReplaceAll(ctx, []models.ClosureEdge{models.SelfEdge(fresh)})
	})
	s.Require().NoError(err)

	has, err := s.store.HasSelfEdge(ctx, a)
	s.Require().NoError(err)
	s.False(has)

	has, err = s.store.HasSelfEdge(ctx, fresh)
	s.Require().NoError(err)
	s.True(has)

	count, err := s.store.EdgeCount(ctx)
	s.Require().NoError(err)
	s.Equal(1, count)
}

// TestConcurrentInsert verifies that racing inserts of the same edges
// settle on one copy per pair without errors.
func (s *PostgresClosureSuite) TestConcurrentInsert() {
	ctx := context.Background()
	a, b := id.UserID(uuid.New()), id.UserID(uuid.New())
	edges := []models.ClosureEdge{
		models.SelfEdge(a),
		models.SelfEdge(b),
		{Ancestor: a, Descendant: b, Depth: 1},
	}

	const goroutines = 20
	var wg sync.WaitGroup
	var failures atomic.Int32

	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := s.store.InsertEdges(ctx, edges); err != nil {
				failures.Add(1)
			}
		}()
	}
	wg.Wait()

	s.Equal(int32(0), failures.Load(), "no insert should fail")

	count, err := s.store.EdgeCount(ctx)
	s.Require().NoError(err)
	s.Equal(3, count)
}
