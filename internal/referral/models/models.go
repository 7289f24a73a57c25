package models

import (
	"time"

	id "upline/pkg/domain"
)

// UserNode is one account in the referral forest. ParentID is the
// single direct referrer pointer, immutable after registration.
type UserNode struct {
	ID           id.UserID
	ParentID     *id.UserID
	RegisteredAt time.Time
}

// ClosureEdge materializes one ancestor/descendant pair.
//
// Invariants the store upholds:
//   - exactly one depth-0 self-edge per node;
//   - an edge (a, b, d) exists iff the parent-pointer path from b up to
//     a has length d;
//   - (Ancestor, Descendant) is unique, so Depth is a function of the
//     pair.
type ClosureEdge struct {
	Ancestor   id.UserID
	Descendant id.UserID
	Depth      int
}

// SelfEdge builds the mandatory depth-0 edge for a node.
func SelfEdge(node id.UserID) ClosureEdge {
	return ClosureEdge{Ancestor: node, Descendant: node, Depth: 0}
}
