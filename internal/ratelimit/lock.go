package ratelimit

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	redis "github.com/redis/go-redis/v9"
	usagedomain "github.com/smallbiznis/entityusage/internal/usage/domain"
)

const lockReleaseScript = `
if redis.call("GET", KEYS[1]) == ARGV[1] then
  return redis.call("DEL", KEYS[1])
end
return 0
`

const (
	lockKeyPrefix      = "entityusage:lock:"
	lockRetryInterval  = 20 * time.Millisecond
	defaultLockTTL     = 10 * time.Second
	releaseGracePeriod = 2 * time.Second
)

type Locker struct {
	client *redis.Client
	script *redis.Script
}

func NewLocker(client *redis.Client) *Locker {
	if client == nil {
		return nil
	}
	return &Locker{
		client: client,
		script: redis.NewScript(lockReleaseScript),
	}
}

// TryLock sets key to a fresh token when it is free. The token is needed to
// release the lock.
func (l *Locker) TryLock(ctx context.Context, key string, ttl time.Duration) (string, bool, error) {
	if l == nil || l.client == nil {
		return "", false, errors.New("lock client not configured")
	}
	if key == "" {
		return "", false, errors.New("lock key is empty")
	}
	if ttl <= 0 {
		return "", false, errors.New("lock ttl must be positive")
	}

	token := uuid.NewString()
	ok, err := l.client.SetNX(ctx, key, token, ttl).Result()
	if err != nil {
		return "", false, err
	}
	return token, ok, nil
}

// Release deletes key only while it still holds token.
func (l *Locker) Release(ctx context.Context, key, token string) error {
	if l == nil || l.client == nil {
		return nil
	}
	if key == "" || token == "" {
		return nil
	}
	return l.script.Run(ctx, l.client, []string{key}, token).Err()
}

// KeyLocker blocks on a Redis lock until it is acquired or the wait runs out.
type KeyLocker struct {
	locker *Locker
	ttl    time.Duration
}

func NewKeyLocker(client *redis.Client, ttl time.Duration) *KeyLocker {
	if client == nil {
		return nil
	}
	if ttl <= 0 {
		ttl = defaultLockTTL
	}
	return &KeyLocker{locker: NewLocker(client), ttl: ttl}
}

// Lock waits until ctx is done, or one lock TTL when ctx has no deadline.
// Giving up is reported as ErrLockTimeout.
func (k *KeyLocker) Lock(ctx context.Context, key string) (func(), error) {
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, k.ttl)
		defer cancel()
	}

	redisKey := lockKeyPrefix + key
	ticker := time.NewTicker(lockRetryInterval)
	defer ticker.Stop()

	for {
		token, ok, err := k.locker.TryLock(ctx, redisKey, k.ttl)
		if err != nil && !isContextErr(err) {
			return nil, err
		}
		if ok {
			return func() {
				releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), releaseGracePeriod)
				defer cancel()
				_ = k.locker.Release(releaseCtx, redisKey, token)
			}, nil
		}

		select {
		case <-ctx.Done():
			return nil, usagedomain.ErrLockTimeout
		case <-ticker.C:
		}
	}
}

func isContextErr(err error) bool {
	return errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled)
}
