package ratelimit

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	redis "github.com/redis/go-redis/v9"
)

// Compare-and-delete so an expired holder cannot drop a newer lease.
const leaseReleaseScript = `
if redis.call("GET", KEYS[1]) == ARGV[1] then
  return redis.call("DEL", KEYS[1])
end
return 0
`

var errLockerNotConfigured = errors.New("lock client not configured")

// Lease is ownership of one Redis key until Release or TTL expiry.
type Lease struct {
	Key   string
	Token string

	locker *Locker
}

// Locker hands out leases backed by SET NX.
type Locker struct {
	client  *redis.Client
	release *redis.Script
}

func NewLocker(client *redis.Client) *Locker {
	return &Locker{
		client:  client,
		release: redis.NewScript(leaseReleaseScript),
	}
}

// Acquire returns a nil lease and nil error when someone else holds key.
func (l *Locker) Acquire(ctx context.Context, key string, ttl time.Duration) (*Lease, error) {
	switch {
	case l == nil || l.client == nil:
		return nil, errLockerNotConfigured
	case key == "":
		return nil, errors.New("lock key is empty")
	case ttl <= 0:
		return nil, errors.New("lock ttl must be positive")
	}

	token := uuid.NewString()
	ok, err := l.client.SetNX(ctx, key, token, ttl).Result()
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}
	return &Lease{Key: key, Token: token, locker: l}, nil
}

// Release drops the key if this lease still owns it. Safe on a nil lease.
func (le *Lease) Release(ctx context.Context) error {
	if le == nil || le.locker == nil {
		return nil
	}
	return le.locker.release.Run(ctx, le.locker.client, []string{le.Key}, le.Token).Err()
}
