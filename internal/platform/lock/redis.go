package lock

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	dErrors "upline/pkg/domain-errors"
)

const lockKeyPrefix = "upline:lock:"

// releaseScript deletes the key only when the caller still owns it, so
// an expired-and-reacquired lock is never released by the old holder.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// Redis is the shared Locker for multi-instance deployments. One
// SETNX-marker per lock, mirroring the marker keys the revocation list
// uses.
type Redis struct {
	client *redis.Client
}

// NewRedis wraps a connected client.
func NewRedis(client *redis.Client) *Redis {
	return &Redis{client: client}
}

func (r *Redis) Acquire(ctx context.Context, key string, ttl time.Duration) (ReleaseFunc, error) {
	token := uuid.NewString()
	ok, err := r.client.SetNX(ctx, lockKeyPrefix+key, token, ttl).Result()
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "acquire lock")
	}
	if !ok {
		return nil, dErrors.Newf(dErrors.CodeConflict, "lock %q already held", key)
	}

	release := func(ctx context.Context) error {
		return releaseScript.Run(ctx, r.client, []string{lockKeyPrefix + key}, token).Err()
	}
	return release, nil
}

func (r *Redis) Held(ctx context.Context, key string) (bool, error) {
	n, err := r.client.Exists(ctx, lockKeyPrefix+key).Result()
	if err != nil {
		return false, dErrors.Wrap(err, dErrors.CodeInternal, "check lock")
	}
	return n > 0, nil
}
