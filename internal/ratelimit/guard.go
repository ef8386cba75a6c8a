package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	redis "github.com/redis/go-redis/v9"
	"github.com/smallbiznis/tenantguard/internal/config"
	"go.uber.org/zap"
)

const (
	keyEvaluationLock   = "enforcement:lock:%s"
	keyEvaluationBucket = "enforcement:bucket:%s"
	keyWarningCooldown  = "enforcement:warned:%s:%s"
)

var (
	ErrLockHeld  = errors.New("lock_held")
	ErrThrottled = errors.New("throttled")
)

type GuardConfig struct {
	LockTTL time.Duration
	Rate    float64
	Burst   int
}

func GuardConfigFrom(cfg config.Config) GuardConfig {
	return GuardConfig{
		LockTTL: cfg.Enforcement.LockTTL,
		Rate:    cfg.Enforcement.EvaluationRate,
		Burst:   cfg.Enforcement.EvaluationBurst,
	}
}

func (c GuardConfig) withDefaults() GuardConfig {
	if c.LockTTL <= 0 {
		c.LockTTL = 30 * time.Second
	}
	if c.Rate <= 0 {
		c.Rate = 1
	}
	if c.Burst <= 0 {
		c.Burst = 5
	}
	return c
}

// ProjectGuard keeps one evaluator per project at a time and caps how often
// a single project can be evaluated.
type ProjectGuard struct {
	locker *Locker
	bucket *TokenBucket
	cfg    GuardConfig
	log    *zap.Logger
}

func NewProjectGuard(client *redis.Client, cfg GuardConfig, log *zap.Logger) *ProjectGuard {
	return &ProjectGuard{
		locker: NewLocker(client),
		bucket: NewTokenBucket(client),
		cfg:    cfg.withDefaults(),
		log:    log.Named("ratelimit.guard"),
	}
}

// Acquire takes the project lock and one evaluation token. It returns
// ErrLockHeld or ErrThrottled when the caller should skip this project.
// The returned release func is safe to call once the evaluation ends.
func (g *ProjectGuard) Acquire(ctx context.Context, projectID snowflake.ID) (func(), error) {
	lockKey := fmt.Sprintf(keyEvaluationLock, projectID.String())
	lease, err := g.locker.Acquire(ctx, lockKey, g.cfg.LockTTL)
	if err != nil {
		return nil, err
	}
	if lease == nil {
		return nil, ErrLockHeld
	}

	release := func() {
		// The caller's ctx may already be cancelled.
		releaseCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := lease.Release(releaseCtx); err != nil {
			g.log.Warn("failed to release evaluation lock",
				zap.String("project_id", projectID.String()),
				zap.Error(err),
			)
		}
	}

	decision, err := g.bucket.Take(ctx, fmt.Sprintf(keyEvaluationBucket, projectID.String()), Limit{Rate: g.cfg.Rate, Burst: g.cfg.Burst})
	if err != nil {
		release()
		return nil, err
	}
	if !decision.Allowed {
		release()
		g.log.Debug("evaluation throttled",
			zap.String("project_id", projectID.String()),
			zap.Duration("retry_after", decision.RetryAfter),
		)
		return nil, ErrThrottled
	}
	return release, nil
}

// MarkWarned takes the warning cooldown for kind on the project. It returns
// a nil undo when the cooldown is already held, so repeated sweeps do not
// re-send the same warning. Calling undo gives the cooldown back, for when the
// warning could not be delivered.
func (g *ProjectGuard) MarkWarned(ctx context.Context, projectID snowflake.ID, kind string, ttl time.Duration) (func(), error) {
	if ttl <= 0 {
		ttl = time.Hour
	}
	lease, err := g.locker.Acquire(ctx, fmt.Sprintf(keyWarningCooldown, projectID.String(), kind), ttl)
	if err != nil || lease == nil {
		return nil, err
	}

	undo := func() {
		releaseCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := lease.Release(releaseCtx); err != nil {
			g.log.Warn("failed to release warning cooldown",
				zap.String("project_id", projectID.String()),
				zap.String("kind", kind),
				zap.Error(err),
			)
		}
	}
	return undo, nil
}
