package ratelimit

import (
	"context"
	"time"

	"github.com/google/uuid"
	redis "github.com/redis/go-redis/v9"
)

// Deletes the key only while it still holds the caller's token, so a lock
// that expired and was taken by another replica is left alone.
const lockReleaseScript = `
if redis.call("GET", KEYS[1]) == ARGV[1] then
  return redis.call("DEL", KEYS[1])
end
return 0
`

// Locker is a single-key redis lease used to keep periodic jobs on one
// replica at a time.
type Locker struct {
	client *redis.Client
	script *redis.Script
	token  func() string
}

func NewLocker(client *redis.Client) *Locker {
	if client == nil {
		return nil
	}
	return &Locker{
		client: client,
		script: redis.NewScript(lockReleaseScript),
		token:  uuid.NewString,
	}
}

// TryLock returns the lease token when the key was free.
func (l *Locker) TryLock(ctx context.Context, key string, ttl time.Duration) (string, bool, error) {
	switch {
	case l == nil || l.client == nil:
		return "", false, ErrNotConfigured
	case key == "":
		return "", false, ErrEmptyKey
	case ttl <= 0:
		return "", false, ErrInvalidLockTTL
	}

	token := l.token()
	ok, err := l.client.SetNX(ctx, key, token, ttl).Result()
	if err != nil || !ok {
		return "", false, err
	}
	return token, true, nil
}

// Release is a no-op for an unconfigured locker or an empty token.
func (l *Locker) Release(ctx context.Context, key, token string) error {
	if l == nil || l.client == nil || key == "" || token == "" {
		return nil
	}
	return l.script.Run(ctx, l.client, []string{key}, token).Err()
}
