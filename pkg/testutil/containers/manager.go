//go:build integration

// Package containers manages shared test containers for integration
// tests. One container of each kind is started lazily and shared across
// every suite in the test process; Ryuk reaps them on exit.
package containers

import (
	"sync"
	"testing"
)

// Manager hands out the shared containers. Suites must not terminate
// what they receive.
type Manager struct {
	mu       sync.Mutex
	postgres *PostgresContainer
	redis    *RedisContainer
}

var manager = &Manager{}

// GetManager returns the process-wide container manager.
func GetManager() *Manager {
	return manager
}

// GetPostgres returns the shared Postgres container, starting it on
// first use.
func (m *Manager) GetPostgres(t *testing.T) *PostgresContainer {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.postgres == nil {
		m.postgres = NewPostgresContainer(t)
	}
	return m.postgres
}

// GetRedis returns the shared Redis container, starting it on first use.
func (m *Manager) GetRedis(t *testing.T) *RedisContainer {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.redis == nil {
		m.redis = NewRedisContainer(t)
	}
	return m.redis
}
