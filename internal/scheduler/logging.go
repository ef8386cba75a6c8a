package scheduler

import (
	"context"
	"time"

	auditdomain "github.com/smallbiznis/tenantguard/internal/audit/domain"
	"github.com/smallbiznis/tenantguard/internal/auditcontext"
	obsmetrics "github.com/smallbiznis/tenantguard/internal/observability/metrics"
	"github.com/smallbiznis/tenantguard/pkg/log/ctxlogger"
	"github.com/smallbiznis/tenantguard/pkg/telemetry/correlation"
	"go.uber.org/zap"
)

// jobRun tallies one execution of a job. A nil run ignores updates so jobs
// can be invoked outside runJob.
type jobRun struct {
	job       string
	id        string
	startedAt time.Time
	processed int
	errors    int
}

type jobRunKey struct{}

func (r *jobRun) addProcessed(n int) {
	if r != nil && n > 0 {
		r.processed += n
	}
}

func (r *jobRun) addErrors(n int) {
	if r != nil && n > 0 {
		r.errors += n
	}
}

// startRun tags ctx with the run, a correlation id and the scheduler actor.
func (s *Scheduler) startRun(ctx context.Context, job string) (context.Context, *jobRun) {
	run := &jobRun{
		job:       job,
		id:        s.genID.Generate().String(),
		startedAt: s.clock.Now(),
	}
	ctx = context.WithValue(ctx, jobRunKey{}, run)
	ctx = correlation.ContextWithCorrelationID(ctx, run.id)
	ctx = auditcontext.WithActor(ctx, string(auditdomain.ActorTypeSystem), "scheduler")
	ctx = ctxlogger.With(ctx, zap.String("job", job), zap.String("run_id", run.id))
	return ctx, run
}

func runFrom(ctx context.Context) *jobRun {
	run, _ := ctx.Value(jobRunKey{}).(*jobRun)
	return run
}

func (s *Scheduler) logger(ctx context.Context) *zap.Logger {
	return ctxlogger.WithContext(ctx, s.log)
}

func (s *Scheduler) finishRun(ctx context.Context, run *jobRun) {
	log := s.logger(ctx).With(
		zap.Duration("duration", s.clock.Now().Sub(run.startedAt)),
		zap.Int("processed_count", run.processed),
		zap.Int("error_count", run.errors),
	)
	if run.errors > 0 {
		log.Warn("scheduler.job.finish")
		return
	}
	log.Info("scheduler.job.finish")
}

func (s *Scheduler) jobFailed(ctx context.Context, msg string, err error) {
	runFrom(ctx).addErrors(1)
	_, errType := obsmetrics.ClassifyJobError(err)
	s.logger(ctx).Error(msg, zap.String("error_type", errType), zap.Error(err))
}

// cronLogger routes robfig/cron's internal logging through zap.
type cronLogger struct {
	log *zap.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.log.Sugar().Debugw(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.log.Sugar().Errorw(msg, append(keysAndValues, "error", err)...)
}
