package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/bwmarrin/snowflake"
	redis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func newClient(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

func TestLockerIsExclusiveUntilReleased(t *testing.T) {
	mr, client := newClient(t)
	locker := NewLocker(client)
	ctx := context.Background()

	lease, err := locker.Acquire(ctx, "k", time.Minute)
	require.NoError(t, err)
	require.NotNil(t, lease)

	other, err := locker.Acquire(ctx, "k", time.Minute)
	require.NoError(t, err)
	assert.Nil(t, other)

	// A stale token must not release someone else's lock.
	stale := &Lease{Key: "k", Token: "not-the-owner", locker: locker}
	require.NoError(t, stale.Release(ctx))
	assert.True(t, mr.Exists("k"))

	require.NoError(t, lease.Release(ctx))
	assert.False(t, mr.Exists("k"))
	require.NoError(t, other.Release(ctx))
}

func TestLockerExpires(t *testing.T) {
	mr, client := newClient(t)
	locker := NewLocker(client)
	ctx := context.Background()

	lease, err := locker.Acquire(ctx, "k", time.Second)
	require.NoError(t, err)
	require.NotNil(t, lease)

	mr.FastForward(2 * time.Second)

	lease, err = locker.Acquire(ctx, "k", time.Second)
	require.NoError(t, err)
	assert.NotNil(t, lease)
}

func TestTokenBucketExhaustsBurst(t *testing.T) {
	_, client := newClient(t)
	bucket := NewTokenBucket(client)
	ctx := context.Background()
	limit := Limit{Rate: 0.001, Burst: 3}

	for i := 0; i < 3; i++ {
		d, err := bucket.Take(ctx, "b", limit)
		require.NoError(t, err)
		require.True(t, d.Allowed, "call %d", i)
	}

	d, err := bucket.Take(ctx, "b", limit)
	require.NoError(t, err)
	assert.False(t, d.Allowed)
	assert.Less(t, d.Remaining, 1.0)
	assert.Greater(t, d.RetryAfter, 10*time.Minute)
}

func TestTokenBucketRejectsBadArguments(t *testing.T) {
	_, client := newClient(t)
	bucket := NewTokenBucket(client)
	ctx := context.Background()

	_, err := bucket.Take(ctx, "", Limit{Rate: 1, Burst: 1})
	assert.Error(t, err)
	_, err = bucket.Take(ctx, "b", Limit{Rate: 0, Burst: 1})
	assert.Error(t, err)
	_, err = bucket.Take(ctx, "b", Limit{Rate: 1, Burst: 0})
	assert.Error(t, err)

	var missing *TokenBucket
	_, err = missing.Take(ctx, "b", Limit{Rate: 1, Burst: 1})
	assert.ErrorIs(t, err, ErrBucketUnavailable)
}

func TestLimitIdleTTL(t *testing.T) {
	assert.Equal(t, time.Second, Limit{Rate: 100, Burst: 1}.idleTTL())
	assert.Equal(t, 10*time.Second, Limit{Rate: 1, Burst: 5}.idleTTL())
}

func TestProjectGuardSkipsWhileHeld(t *testing.T) {
	_, client := newClient(t)
	guard := NewProjectGuard(client, GuardConfig{LockTTL: time.Minute, Rate: 100, Burst: 100}, zaptest.NewLogger(t))
	ctx := context.Background()
	projectID := snowflake.ID(77)

	release, err := guard.Acquire(ctx, projectID)
	require.NoError(t, err)

	_, err = guard.Acquire(ctx, projectID)
	assert.ErrorIs(t, err, ErrLockHeld)

	// Other projects are independent.
	releaseOther, err := guard.Acquire(ctx, snowflake.ID(78))
	require.NoError(t, err)
	releaseOther()

	release()
	release, err = guard.Acquire(ctx, projectID)
	require.NoError(t, err)
	release()
}

func TestProjectGuardThrottlesAndReleasesLock(t *testing.T) {
	mr, client := newClient(t)
	guard := NewProjectGuard(client, GuardConfig{LockTTL: time.Minute, Rate: 0.001, Burst: 1}, zaptest.NewLogger(t))
	ctx := context.Background()
	projectID := snowflake.ID(5)

	release, err := guard.Acquire(ctx, projectID)
	require.NoError(t, err)
	release()

	_, err = guard.Acquire(ctx, projectID)
	assert.ErrorIs(t, err, ErrThrottled)
	assert.False(t, mr.Exists("enforcement:lock:5"))
}

func TestMarkWarnedOncePerCooldown(t *testing.T) {
	mr, client := newClient(t)
	guard := NewProjectGuard(client, GuardConfig{}, zaptest.NewLogger(t))
	ctx := context.Background()

	first, err := guard.MarkWarned(ctx, 1, "spike", time.Hour)
	require.NoError(t, err)
	assert.NotNil(t, first)

	again, err := guard.MarkWarned(ctx, 1, "spike", time.Hour)
	require.NoError(t, err)
	assert.Nil(t, again)

	other, err := guard.MarkWarned(ctx, 1, "error_rate", time.Hour)
	require.NoError(t, err)
	assert.NotNil(t, other)

	mr.FastForward(time.Hour + time.Second)
	later, err := guard.MarkWarned(ctx, 1, "spike", time.Hour)
	require.NoError(t, err)
	assert.NotNil(t, later)
}

func TestMarkWarnedUndoReleasesCooldown(t *testing.T) {
	_, client := newClient(t)
	guard := NewProjectGuard(client, GuardConfig{}, zaptest.NewLogger(t))
	ctx := context.Background()

	undo, err := guard.MarkWarned(ctx, 2, "spike", time.Hour)
	require.NoError(t, err)
	require.NotNil(t, undo)
	undo()

	retry, err := guard.MarkWarned(ctx, 2, "spike", time.Hour)
	require.NoError(t, err)
	assert.NotNil(t, retry)
}
