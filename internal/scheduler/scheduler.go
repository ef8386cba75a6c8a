package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/robfig/cron/v3"
	"github.com/smallbiznis/tenantguard/internal/clock"
	enforcementdomain "github.com/smallbiznis/tenantguard/internal/enforcement/domain"
	notificationdomain "github.com/smallbiznis/tenantguard/internal/notification/domain"
	obsmetrics "github.com/smallbiznis/tenantguard/internal/observability/metrics"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const (
	JobEnforcementSweep     = "enforcement_sweep"
	JobNotificationRetry    = "notification_retry"
	JobNotificationRecovery = "notification_recovery"
)

var ErrInvalidConfig = errors.New("invalid_scheduler_config")

type Params struct {
	fx.In

	Log           *zap.Logger
	GenID         *snowflake.Node
	Clock         clock.Clock
	Enforcement   enforcementdomain.Service
	Notifications notificationdomain.Service
	Metrics       *obsmetrics.SchedulerMetrics `optional:"true"`
	Config        Config                       `optional:"true"`
}

type Scheduler struct {
	log           *zap.Logger
	cfg           Config
	genID         *snowflake.Node
	clock         clock.Clock
	enforcement   enforcementdomain.Service
	notifications notificationdomain.Service
	metrics       *obsmetrics.SchedulerMetrics

	mu      sync.Mutex
	cron    *cron.Cron
	running bool
}

type job struct {
	name string
	spec string
	run  func(ctx context.Context) error
}

func New(p Params) (*Scheduler, error) {
	if p.Log == nil || p.GenID == nil || p.Clock == nil || p.Enforcement == nil || p.Notifications == nil {
		return nil, ErrInvalidConfig
	}
	metrics := p.Metrics
	if metrics == nil {
		metrics = obsmetrics.Scheduler(obsmetrics.Config{})
	}
	return &Scheduler{
		log:           p.Log.Named("scheduler").With(zap.String("component", "scheduler")),
		cfg:           p.Config.withDefaults(),
		genID:         p.GenID,
		clock:         p.Clock,
		enforcement:   p.Enforcement,
		notifications: p.Notifications,
		metrics:       metrics,
	}, nil
}

func (s *Scheduler) jobs() []job {
	return []job{
		{JobEnforcementSweep, s.cfg.EnforcementSweepSpec, s.EnforcementSweepJob},
		{JobNotificationRetry, s.cfg.NotificationRetrySpec, s.NotificationRetryJob},
		{JobNotificationRecovery, s.cfg.NotificationRecoverySpec, s.NotificationRecoveryJob},
	}
}

// Start registers every job on its cron spec and starts the cron runner.
// Overlapping runs of the same job are skipped.
func (s *Scheduler) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return nil
	}

	logger := cronLogger{log: s.log}
	c := cron.New(
		cron.WithLocation(time.UTC),
		cron.WithLogger(logger),
		cron.WithChain(cron.Recover(logger), cron.SkipIfStillRunning(logger)),
	)
	for _, j := range s.jobs() {
		j := j
		if _, err := c.AddFunc(j.spec, func() {
			if err := s.runJob(context.Background(), j.name, s.cfg.JobTimeout, j.run); err != nil {
				s.log.Warn("scheduler job failed", zap.String("job", j.name), zap.Error(err))
			}
		}); err != nil {
			return fmt.Errorf("schedule %s %q: %w", j.name, j.spec, err)
		}
		s.log.Info("scheduler job registered", zap.String("job", j.name), zap.String("spec", j.spec))
	}

	c.Start()
	s.cron = c
	s.running = true
	return nil
}

// Stop halts the cron runner and waits for running jobs or ctx.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return nil
	}
	s.running = false

	done := s.cron.Stop()
	select {
	case <-done.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// RunOnce runs every job once, in order.
func (s *Scheduler) RunOnce(parent context.Context) error {
	var err error
	for _, j := range s.jobs() {
		err = errors.Join(err, s.runJob(parent, j.name, s.cfg.JobTimeout, j.run))
	}
	return err
}

func (s *Scheduler) runJob(
	parent context.Context,
	name string,
	timeout time.Duration,
	fn func(ctx context.Context) error,
) error {
	ctx, cancel := context.WithTimeout(parent, timeout)
	defer cancel()

	ctx, run := s.startRun(ctx, name)
	s.logger(ctx).Info("scheduler.job.start")
	s.metrics.IncJobRun(name)

	err := fn(ctx)
	s.metrics.ObserveJobDuration(name, s.clock.Now().Sub(run.startedAt))
	if err != nil && run.errors == 0 {
		run.addErrors(1)
	}
	s.finishRun(ctx, run)
	if err == nil {
		return nil
	}

	s.metrics.IncJobError(name, err)
	// Deadline is a soft timeout. The next tick picks up the remaining work.
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		s.metrics.IncJobTimeout(name)
		s.logger(ctx).Warn("job timed out", zap.Duration("timeout", timeout), zap.Error(err))
		return nil
	}
	return fmt.Errorf("%s: %w", name, err)
}

func (s *Scheduler) EnforcementSweepJob(ctx context.Context) error {
	res, err := s.enforcement.Sweep(ctx)
	run := runFrom(ctx)
	run.addProcessed(res.Evaluated)
	run.addErrors(res.Failed)
	for outcome, n := range map[string]int{
		"evaluated": res.Evaluated,
		"suspended": res.Suspended,
		"warned":    res.Warned,
		"skipped":   res.Skipped,
		"failed":    res.Failed,
	} {
		s.metrics.AddItems(JobEnforcementSweep, "project", outcome, n)
	}
	if err != nil {
		s.jobFailed(ctx, "scheduler.sweep.failed", err)
		return err
	}
	return nil
}
