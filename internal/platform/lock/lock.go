// Package lock provides exclusive named locks for operations that must
// not interleave: per-order commission recomputes and the closure
// maintenance window. Losers fail fast; nobody queues.
package lock

import (
	"context"
	"time"
)

// ReleaseFunc releases a held lock. Safe to call once.
type ReleaseFunc func(ctx context.Context) error

// Locker grants exclusive, TTL-bounded named locks.
type Locker interface {
	// Acquire takes the lock or returns a coded conflict error if it is
	// already held. The TTL bounds abandonment after a crash.
	Acquire(ctx context.Context, key string, ttl time.Duration) (ReleaseFunc, error)
	// Held reports whether the lock is currently held by anyone.
	Held(ctx context.Context, key string) (bool, error)
}
