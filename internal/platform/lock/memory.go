package lock

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	dErrors "upline/pkg/domain-errors"
)

type memoryEntry struct {
	token     string
	expiresAt time.Time
}

// Memory is a process-local Locker for tests and single-instance runs.
type Memory struct {
	mu    sync.Mutex
	held  map[string]memoryEntry
	clock func() time.Time
}

// NewMemory builds an in-process locker.
func NewMemory() *Memory {
	return &Memory{
		held:  make(map[string]memoryEntry),
		clock: time.Now,
	}
}

// WithClock overrides time for expiry tests.
func (m *Memory) WithClock(clock func() time.Time) *Memory {
	m.clock = clock
	return m
}

func (m *Memory) Acquire(_ context.Context, key string, ttl time.Duration) (ReleaseFunc, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.clock()
	if entry, ok := m.held[key]; ok && now.Before(entry.expiresAt) {
		return nil, dErrors.Newf(dErrors.CodeConflict, "lock %q already held", key)
	}

	token := uuid.NewString()
	m.held[key] = memoryEntry{token: token, expiresAt: now.Add(ttl)}

	release := func(context.Context) error {
		m.mu.Lock()
		defer m.mu.Unlock()
		if entry, ok := m.held[key]; ok && entry.token == token {
			delete(m.held, key)
		}
		return nil
	}
	return release, nil
}

func (m *Memory) Held(_ context.Context, key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	entry, ok := m.held[key]
	return ok && m.clock().Before(entry.expiresAt), nil
}
