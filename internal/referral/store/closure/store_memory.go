package closure

import (
	"context"
	"sort"
	"sync"

	"upline/internal/referral/models"
	id "upline/pkg/domain"
	dErrors "upline/pkg/domain-errors"
)

// Memory is the in-process closure store used by tests and by the
// rebuild job's shadow build. Both directions of the relation are kept
// so ancestor and descendant scans stay O(edges of the node).
type Memory struct {
	mu sync.RWMutex
	// up[descendant][ancestor] = depth
	up map[id.UserID]map[id.UserID]int
	// down[ancestor][descendant] = depth
	down map[id.UserID]map[id.UserID]int
}

// NewMemory builds an empty in-memory closure store.
func NewMemory() *Memory {
	return &Memory{
		up:   make(map[id.UserID]map[id.UserID]int),
		down: make(map[id.UserID]map[id.UserID]int),
	}
}

func (m *Memory) HasSelfEdge(_ context.Context, node id.UserID) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	depth, ok := m.up[node][node]
	return ok && depth == 0, nil
}

func (m *Memory) DirectParent(_ context.Context, node id.UserID) (*id.UserID, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for ancestor, depth := range m.up[node] {
		if depth == 1 {
			parent := ancestor
			return &parent, nil
		}
	}
	return nil, nil
}

func (m *Memory) AncestorsOf(_ context.Context, node id.UserID, minDepth, maxDepth int) ([]models.ClosureEdge, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []models.ClosureEdge
	for ancestor, depth := range m.up[node] {
		if !inBand(depth, minDepth, maxDepth) {
			continue
		}
		out = append(out, models.ClosureEdge{Ancestor: ancestor, Descendant: node, Depth: depth})
	}
	sortEdges(out)
	return out, nil
}

func (m *Memory) DescendantsOf(_ context.Context, node id.UserID, minDepth, maxDepth int) ([]models.ClosureEdge, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []models.ClosureEdge
	for descendant, depth := range m.down[node] {
		if !inBand(depth, minDepth, maxDepth) {
			continue
		}
		out = append(out, models.ClosureEdge{Ancestor: node, Descendant: descendant, Depth: depth})
	}
	sortEdges(out)
	return out, nil
}

// InsertEdges adds edges, silently skipping exact duplicates so retried
// registrations stay idempotent. A pair resurfacing with a different
// depth means the closure is corrupt and is rejected.
func (m *Memory) InsertEdges(_ context.Context, edges []models.ClosureEdge) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, edge := range edges {
		if existing, ok := m.up[edge.Descendant][edge.Ancestor]; ok {
			if existing != edge.Depth {
				return dErrors.Newf(dErrors.CodeInvariantViolation,
					"closure edge (%s,%s) exists at depth %d, refusing depth %d",
					edge.Ancestor, edge.Descendant, existing, edge.Depth)
			}
			continue
		}
		m.insertLocked(edge)
	}
	return nil
}

// ReplaceAll swaps the entire relation in one step.
func (m *Memory) ReplaceAll(_ context.Context, edges []models.ClosureEdge) error {
	up := make(map[id.UserID]map[id.UserID]int)
	down := make(map[id.UserID]map[id.UserID]int)

	m.mu.Lock()
	defer m.mu.Unlock()
	m.up, m.down = up, down
	for _, edge := range edges {
		m.insertLocked(edge)
	}
	return nil
}

// EdgeCount reports the total number of closure edges.
func (m *Memory) EdgeCount(_ context.Context) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	total := 0
	for _, ancestors := range m.up {
		total += len(ancestors)
	}
	return total, nil
}

// AllEdges returns a stable snapshot of the relation, for tests and for
// the rebuild job's before/after comparison.
func (m *Memory) AllEdges(_ context.Context) ([]models.ClosureEdge, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []models.ClosureEdge
	for descendant, ancestors := range m.up {
		for ancestor, depth := range ancestors {
			out = append(out, models.ClosureEdge{Ancestor: ancestor, Descendant: descendant, Depth: depth})
		}
	}
	sortAll(out)
	return out, nil
}

func (m *Memory) insertLocked(edge models.ClosureEdge) {
	if m.up[edge.Descendant] == nil {
		m.up[edge.Descendant] = make(map[id.UserID]int)
	}
	if m.down[edge.Ancestor] == nil {
		m.down[edge.Ancestor] = make(map[id.UserID]int)
	}
	m.up[edge.Descendant][edge.Ancestor] = edge.Depth
	m.down[edge.Ancestor][edge.Descendant] = edge.Depth
}

// snapshot and restore back the coarse in-memory transaction.
func (m *Memory) snapshot() (up, down map[id.UserID]map[id.UserID]int) {
	up = make(map[id.UserID]map[id.UserID]int, len(m.up))
	for k, v := range m.up {
		inner := make(map[id.UserID]int, len(v))
		for ik, iv := range v {
			inner[ik] = iv
		}
		up[k] = inner
	}
	down = make(map[id.UserID]map[id.UserID]int, len(m.down))
	for k, v := range m.down {
		inner := make(map[id.UserID]int, len(v))
		for ik, iv := range v {
			inner[ik] = iv
		}
		down[k] = inner
	}
	return up, down
}

func inBand(depth, minDepth, maxDepth int) bool {
	if depth < minDepth {
		return false
	}
	// maxDepth zero means unbounded.
	return maxDepth == 0 || depth <= maxDepth
}

func sortEdges(edges []models.ClosureEdge) {
	sort.Slice(edges, func(i, j int) bool {
		if edges[i].Depth != edges[j].Depth {
			return edges[i].Depth < edges[j].Depth
		}
		if edges[i].Ancestor != edges[j].Ancestor {
			return edges[i].Ancestor.String() < edges[j].Ancestor.String()
		}
		return edges[i].Descendant.String() < edges[j].Descendant.String()
	})
}

func sortAll(edges []models.ClosureEdge) {
	sort.Slice(edges, func(i, j int) bool {
		if edges[i].Descendant != edges[j].Descendant {
			return edges[i].Descendant.String() < edges[j].Descendant.String()
		}
		return edges[i].Depth < edges[j].Depth
	})
}
