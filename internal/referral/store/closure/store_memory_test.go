package closure

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	"upline/internal/referral/models"
	"upline/internal/referral/ports"
	id "upline/pkg/domain"
	dErrors "upline/pkg/domain-errors"
)

type MemoryStoreSuite struct {
	suite.Suite
	store *Memory
}

func TestMemoryStoreSuite(t *testing.T) {
	suite.Run(t, new(MemoryStoreSuite))
}

func (s *MemoryStoreSuite) SetupTest() {
	s.store = NewMemory()
}

func newUser() id.UserID {
	return id.UserID(uuid.New())
}

func (s *MemoryStoreSuite) seedChain() (a, b, c id.UserID) {
	ctx := context.Background()
	a, b, c = newUser(), newUser(), newUser()
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

func (s *MemoryStoreSuite) TestInsertEdges() {
	ctx := context.Background()

	s.Run("duplicate edge at same depth is skipped", func() {
		a, b, _ := s.seedChain()
		err := s.store.InsertEdges(ctx, []models.ClosureEdge{{Ancestor: a, Descendant: b, Depth: 1}})
		s.NoError(err)

		count, err := s.store.EdgeCount(ctx)
		s.Require().NoError(err)
		s.Equal(6, count)
	})

	s.Run("same pair at a different depth is rejected", func() {
		a, b, _ := s.seedChain()
		err := s.store.InsertEdges(ctx, []models.ClosureEdge{{Ancestor: a, Descendant: b, Depth: 3}})
		s.True(dErrors.HasCode(err, dErrors.CodeInvariantViolation))
	})
}

func (s *MemoryStoreSuite) TestTraversalBands() {
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
}

func (s *MemoryStoreSuite) TestReplaceAll() {
	ctx := context.Background()
	a, _, _ := s.seedChain()

	fresh := newUser()
	s.Require().NoError(s.store.ReplaceAll(ctx, []models.ClosureEdge{models.SelfEdge(fresh)}))

	has, err := s.store.HasSelfEdge(ctx, a)
	s.Require().NoError(err)
	s.False(has)

	count, err := s.store.EdgeCount(ctx)
	s.Require().NoError(err)
	s.Equal(1, count)
}

func (s *MemoryStoreSuite) TestMemoryTxRollback() {
	ctx := context.Background()
	a, _, _ := s.seedChain()

	tx := NewMemoryTx(s.store)
	err := tx.RunInTx(ctx, func(store ports.Store) error {
		if err := store.InsertEdges(ctx, []models.ClosureEdge{models.SelfEdge(newUser())}); err != nil {
			return err
		}
		return dErrors.New(dErrors.CodeInternal, "forced failure")
	})
	s.Error(err)

	count, err := s.store.EdgeCount(ctx)
	s.Require().NoError(err)
	s.Equal(6, count)

	has, err := s.store.HasSelfEdge(ctx, a)
	s.Require().NoError(err)
	s.True(has)
}
