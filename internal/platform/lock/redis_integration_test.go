//go:build integration

package lock_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"upline/internal/platform/lock"
	dErrors "upline/pkg/domain-errors"
	"upline/pkg/testutil/containers"
)

type RedisLockSuite struct {
	suite.Suite
	redis  *containers.RedisContainer
	locker *lock.Redis
}

func TestRedisLockSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(RedisLockSuite))
}

func (s *RedisLockSuite) SetupSuite() {
	mgr := containers.GetManager()
	s.redis = mgr.GetRedis(s.T())
	s.locker = lock.NewRedis(s.redis.Client)
}

func (s *RedisLockSuite) SetupTest() {
	ctx := context.Background()
	err := s.redis.FlushAll(ctx)
	s.Require().NoError(err)
}

// TestExclusive verifies that concurrent acquisition of the same key
// admits exactly one holder; losers get a conflict, not a queue slot.
func (s *RedisLockSuite) TestExclusive() {
	ctx := context.Background()

	const goroutines = 20
	var wg sync.WaitGroup
	var wins atomic.Int32
	var conflicts atomic.Int32
	var otherErrors atomic.Int32

	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.locker.Acquire(ctx, "commission:order:contended", time.Minute)
			switch {
			case err == nil:
				wins.Add(1)
			case dErrors.HasCode(err, dErrors.CodeConflict):
				conflicts.Add(1)
			default:
				otherErrors.Add(1)
			}
		}()
	}
	wg.Wait()

	s.Equal(int32(1), wins.Load(), "exactly one acquire should win")
	s.Equal(int32(goroutines-1), conflicts.Load(), "losers should get a conflict")
	s.Equal(int32(0), otherErrors.Load(), "no unexpected errors")
}

func (s *RedisLockSuite) TestReleaseAllowsReacquire() {
	ctx := context.Background()

	release, err := s.locker.Acquire(ctx, "referral:closure:maintenance", time.Minute)
	s.Require().NoError(err)

	_, err = s.locker.Acquire(ctx, "referral:closure:maintenance", time.Minute)
	s.True(dErrors.HasCode(err, dErrors.CodeConflict))

	s.Require().NoError(release(ctx))

	release, err = s.locker.Acquire(ctx, "referral:closure:maintenance", time.Minute)
	s.Require().NoError(err)
	s.NoError(release(ctx))
}

// TestStaleHolderCannotRelease verifies that a holder whose TTL expired
// cannot release the lock out from under the next holder.
func (s *RedisLockSuite) TestStaleHolderCannotRelease() {
	ctx := context.Background()

	staleRelease, err := s.locker.Acquire(ctx, "expiry-test", 100*time.Millisecond)
	s.Require().NoError(err)

	time.Sleep(200 * time.Millisecond)

	release, err := s.locker.Acquire(ctx, "expiry-test", time.Minute)
	s.Require().NoError(err)

	s.Require().NoError(staleRelease(ctx))

	held, err := s.locker.Held(ctx, "expiry-test")
	s.Require().NoError(err)
	s.True(held, "current holder's lock must survive the stale release")

	s.NoError(release(ctx))
}

func (s *RedisLockSuite) TestHeld() {
	ctx := context.Background()

	held, err := s.locker.Held(ctx, "probe")
	s.Require().NoError(err)
	s.False(held)

	release, err := s.locker.Acquire(ctx, "probe", time.Minute)
	s.Require().NoError(err)

	held, err = s.locker.Held(ctx, "probe")
	s.Require().NoError(err)
	s.True(held)

	s.NoError(release(ctx))
}
