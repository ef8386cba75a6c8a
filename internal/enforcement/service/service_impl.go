package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/tenantguard/internal/clock"
	detectiondomain "github.com/smallbiznis/tenantguard/internal/detection/domain"
	"github.com/smallbiznis/tenantguard/internal/enforcement/domain"
	notificationdomain "github.com/smallbiznis/tenantguard/internal/notification/domain"
	"github.com/smallbiznis/tenantguard/internal/observability/metrics"
	projectdomain "github.com/smallbiznis/tenantguard/internal/project/domain"
	quotadomain "github.com/smallbiznis/tenantguard/internal/quota/domain"
	"github.com/smallbiznis/tenantguard/internal/ratelimit"
	suspensiondomain "github.com/smallbiznis/tenantguard/internal/suspension/domain"
	usagedomain "github.com/smallbiznis/tenantguard/internal/usage/domain"
	"github.com/smallbiznis/tenantguard/pkg/log/ctxlogger"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const (
	sweepPageSize    = 100
	sweepConcurrency = 4
)

type Params struct {
	fx.In

	Log           *zap.Logger
	Clock         clock.Clock
	Guard         domain.Guard
	Projects      projectdomain.Service
	Quotas        quotadomain.Service
	Usage         usagedomain.Service
	Detection     detectiondomain.Service
	Suspension    suspensiondomain.Service
	Notifications notificationdomain.Service `optional:"true"`
	Metrics       *metrics.Metrics           `optional:"true"`
}

type Service struct {
	log           *zap.Logger
	clock         clock.Clock
	guard         domain.Guard
	projects      projectdomain.Service
	quotas        quotadomain.Service
	usage         usagedomain.Service
	detection     detectiondomain.Service
	suspension    suspensiondomain.Service
	notifications notificationdomain.Service
	metrics       *metrics.Metrics
}

func New(p Params) domain.Service {
	return &Service{
		log:           p.Log.Named("enforcement.service"),
		clock:         p.Clock,
		guard:         p.Guard,
		projects:      p.Projects,
		quotas:        p.Quotas,
		usage:         p.Usage,
		detection:     p.Detection,
		suspension:    p.Suspension,
		notifications: p.Notifications,
		metrics:       p.Metrics,
	}
}

func (s *Service) EvaluateProject(ctx context.Context, projectID snowflake.ID) (*domain.Evaluation, error) {
	if projectID == 0 {
		return nil, domain.ErrInvalidProject
	}

	project, err := s.projects.Get(ctx, projectID)
	if err != nil {
		if errors.Is(err, projectdomain.ErrProjectNotFound) {
			return nil, domain.ErrProjectNotFound
		}
		return nil, err
	}

	ctx = ctxlogger.With(ctx, zap.String("project_id", projectID.String()))
	eval := &domain.Evaluation{ProjectID: projectID, EvaluatedAt: s.clock.Now()}
	if project.Status == projectdomain.StatusSuspended {
		return s.finish(eval, domain.OutcomeAlreadySuspended), nil
	}

	release, err := s.guard.Acquire(ctx, projectID)
	switch {
	case errors.Is(err, ratelimit.ErrLockHeld):
		return s.finish(eval, domain.OutcomeSkippedLocked), nil
	case errors.Is(err, ratelimit.ErrThrottled):
		return s.finish(eval, domain.OutcomeSkippedThrottled), nil
	case err != nil:
		return nil, fmt.Errorf("acquire evaluation guard: %w", err)
	}
	defer release()

	if err := s.checkCaps(ctx, eval); err != nil {
		return nil, err
	}
	for _, check := range eval.Caps {
		if !check.Exceeded {
			continue
		}
		return s.suspend(ctx, eval, suspensiondomain.SuspendRequest{
			ProjectID: projectID,
			Source:    suspensiondomain.SourceQuota,
			Summary:   fmt.Sprintf("Usage of %s exceeded its cap", check.CapType),
			Reason: suspensiondomain.Reason{
				CapType:       string(check.CapType),
				CurrentValue:  check.Current,
				LimitExceeded: check.Limit,
			},
		})
	}

	spike, spikeUsage, err := s.evaluateSpike(ctx, projectID)
	if err != nil {
		return nil, err
	}
	eval.Spike = &spike

	errorRate, errorUsage, err := s.evaluateErrorRate(ctx, projectID)
	if err != nil {
		return nil, err
	}
	eval.ErrorRate = &errorRate

	if spike.RecommendedAction == detectiondomain.ActionSuspension {
		return s.suspend(ctx, eval, detectionSuspend(projectID, suspensiondomain.SourceSpike, spike, spikeUsage))
	}
	if errorRate.RecommendedAction == detectiondomain.ActionSuspension {
		return s.suspend(ctx, eval, detectionSuspend(projectID, suspensiondomain.SourceErrorRate, errorRate, errorUsage))
	}

	if spike.RecommendedAction == detectiondomain.ActionWarning {
		s.warn(ctx, eval, spike, spikeUsage)
	}
	if errorRate.RecommendedAction == detectiondomain.ActionWarning {
		s.warn(ctx, eval, errorRate, errorUsage)
	}
	if len(eval.Warnings) > 0 {
		return s.finish(eval, domain.OutcomeWarned), nil
	}
	return s.finish(eval, domain.OutcomeClear), nil
}

func (s *Service) Sweep(ctx context.Context) (domain.SweepResult, error) {
	var (
		mu     sync.Mutex
		result domain.SweepResult
	)

	var afterID snowflake.ID
	for {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		ids, err := s.projects.ListIDsByStatus(ctx, projectdomain.StatusActive, afterID, sweepPageSize)
		if err != nil {
			return result, err
		}
		if len(ids) == 0 {
			break
		}

		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(sweepConcurrency)
		for _, id := range ids {
			g.Go(func() error {
				eval, err := s.EvaluateProject(gctx, id)

				mu.Lock()
				defer mu.Unlock()
				if err != nil {
					result.Failed++
					s.log.Warn("project evaluation failed",
						zap.String("project_id", id.String()),
						zap.Error(err),
					)
					return nil
				}
				result.Evaluated++
				switch eval.Outcome {
				case domain.OutcomeSuspended:
					result.Suspended++
				case domain.OutcomeWarned:
					result.Warned++
				case domain.OutcomeSkippedLocked, domain.OutcomeSkippedThrottled, domain.OutcomeAlreadySuspended:
					result.Skipped++
				}
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return result, err
		}

		afterID = ids[len(ids)-1]
		if len(ids) < sweepPageSize {
			break
		}
	}

	s.log.Info("enforcement sweep finished",
		zap.Int("evaluated", result.Evaluated),
		zap.Int("suspended", result.Suspended),
		zap.Int("warned", result.Warned),
		zap.Int("skipped", result.Skipped),
		zap.Int("failed", result.Failed),
	)
	return result, nil
}

func (s *Service) checkCaps(ctx context.Context, eval *domain.Evaluation) error {
	caps, err := s.quotas.List(ctx, eval.ProjectID)
	if err != nil {
		return err
	}

	for _, capType := range quotadomain.CapTypes() {
		current, err := s.usage.Current(ctx, eval.ProjectID, usagedomain.Metric(capType), domain.CapWindow)
		if err != nil {
			return fmt.Errorf("read usage %s: %w", capType, err)
		}
		limit := caps[capType]
		eval.Caps = append(eval.Caps, domain.CapCheck{
			CapType:  capType,
			Current:  current,
			Limit:    limit,
			Exceeded: current > limit,
		})
	}
	return nil
}

// detectionUsage carries the figures a detector saw, for reasons and notifications.
type detectionUsage struct {
	current  int64
	baseline float64
	errors   int64
	window   time.Duration
}

func (s *Service) evaluateSpike(ctx context.Context, projectID snowflake.ID) (detectiondomain.Result, detectionUsage, error) {
	cfg, err := s.detection.SpikeConfig(ctx, projectID)
	if err != nil {
		return detectiondomain.Result{}, detectionUsage{}, err
	}
	current, err := s.usage.Current(ctx, projectID, usagedomain.MetricRequests, cfg.Window)
	if err != nil {
		return detectiondomain.Result{}, detectionUsage{}, err
	}
	baseline, err := s.usage.Baseline(ctx, projectID, usagedomain.MetricRequests, cfg.Window, cfg.BaselinePeriod)
	if err != nil {
		return detectiondomain.Result{}, detectionUsage{}, err
	}

	res, err := s.detection.EvaluateSpike(ctx, projectID, detectiondomain.SpikeInput{Current: current, Baseline: baseline})
	if err != nil {
		return detectiondomain.Result{}, detectionUsage{}, err
	}
	if res.Detected {
		s.metrics.IncDetection(string(res.Kind), string(res.Severity))
	}
	return res, detectionUsage{current: current, baseline: baseline, window: cfg.Window}, nil
}

func (s *Service) evaluateErrorRate(ctx context.Context, projectID snowflake.ID) (detectiondomain.Result, detectionUsage, error) {
	cfg, err := s.detection.ErrorRateConfig(ctx, projectID)
	if err != nil {
		return detectiondomain.Result{}, detectionUsage{}, err
	}
	total, err := s.usage.Current(ctx, projectID, usagedomain.MetricRequests, cfg.Window)
	if err != nil {
		return detectiondomain.Result{}, detectionUsage{}, err
	}
	errs, err := s.usage.Current(ctx, projectID, usagedomain.MetricErrors, cfg.Window)
	if err != nil {
		return detectiondomain.Result{}, detectionUsage{}, err
	}

	res, err := s.detection.EvaluateErrorRate(ctx, projectID, detectiondomain.ErrorRateInput{Errors: errs, Total: total})
	if err != nil {
		return detectiondomain.Result{}, detectionUsage{}, err
	}
	if res.Detected {
		s.metrics.IncDetection(string(res.Kind), string(res.Severity))
	}
	return res, detectionUsage{current: total, errors: errs, window: cfg.Window}, nil
}

func (s *Service) suspend(ctx context.Context, eval *domain.Evaluation, req suspensiondomain.SuspendRequest) (*domain.Evaluation, error) {
	res, err := s.suspension.Suspend(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("suspend project: %w", err)
	}
	eval.Source = string(req.Source)
	if res.AlreadySuspended {
		return s.finish(eval, domain.OutcomeAlreadySuspended), nil
	}
	return s.finish(eval, domain.OutcomeSuspended), nil
}

func (s *Service) warn(ctx context.Context, eval *domain.Evaluation, res detectiondomain.Result, usage detectionUsage) {
	notificationType := notificationdomain.TypeSpikeDetected
	subject := "Unusual traffic spike detected"
	body := fmt.Sprintf("Requests in the last %s reached %d, %.2fx the usual level.", usage.window, usage.current, res.Ratio)
	if res.Kind == detectiondomain.KindErrorRate {
		notificationType = notificationdomain.TypeErrorRateDetected
		subject = "Elevated error rate detected"
		body = fmt.Sprintf("%.2f%% of requests failed in the last %s (%d of %d).", res.Ratio, usage.window, usage.errors, usage.current)
	}

	undo, err := s.guard.MarkWarned(ctx, eval.ProjectID, string(res.Kind), usage.window)
	if err != nil {
		ctxlogger.WithContext(ctx, s.log).Warn("failed to check warning cooldown", zap.Error(err))
		return
	}
	eval.Warnings = append(eval.Warnings, notificationType)
	if undo == nil || s.notifications == nil {
		return
	}

	data := res.Details()
	data["current"] = usage.current
	if res.Kind == detectiondomain.KindSpike {
		data["baseline"] = usage.baseline
	} else {
		data["errors"] = usage.errors
	}

	if _, err := s.notifications.Enqueue(ctx, notificationdomain.EnqueueRequest{
		ProjectID:        eval.ProjectID,
		NotificationType: notificationType,
		Priority:         priorityFor(res.Severity),
		Subject:          subject,
		Body:             body,
		Data:             data,
		Channels: []notificationdomain.Channel{
			notificationdomain.ChannelEmail,
			notificationdomain.ChannelInApp,
		},
	}); err != nil {
		// give the cooldown back so the next evaluation retries the warning
		undo()
		ctxlogger.WithContext(ctx, s.log).Warn("failed to enqueue warning",
			zap.String("notification_type", string(notificationType)),
			zap.Error(err),
		)
	}
}

func (s *Service) finish(eval *domain.Evaluation, outcome domain.Outcome) *domain.Evaluation {
	eval.Outcome = outcome
	s.metrics.IncEvaluation(string(outcome))
	return eval
}

func detectionSuspend(projectID snowflake.ID, source suspensiondomain.Source, res detectiondomain.Result, usage detectionUsage) suspensiondomain.SuspendRequest {
	summary := fmt.Sprintf("Traffic spike of %.2fx baseline (%s)", res.Ratio, res.Severity)
	current := usage.current
	if source == suspensiondomain.SourceErrorRate {
		summary = fmt.Sprintf("Error rate of %.2f%% (%s)", res.Ratio, res.Severity)
		current = usage.errors
	}
	return suspensiondomain.SuspendRequest{
		ProjectID: projectID,
		Source:    source,
		Summary:   summary,
		Reason: suspensiondomain.Reason{
			CurrentValue: current,
			Details:      res.Details(),
		},
	}
}

func priorityFor(severity detectiondomain.Severity) notificationdomain.Priority {
	switch severity {
	case detectiondomain.SeveritySevere:
		return notificationdomain.PriorityCritical
	case detectiondomain.SeverityCritical:
		return notificationdomain.PriorityHigh
	default:
		return notificationdomain.PriorityMedium
	}
}
