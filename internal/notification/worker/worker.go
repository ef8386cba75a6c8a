package worker

import (
	"context"
	"time"

	auditdomain "github.com/smallbiznis/tenantguard/internal/audit/domain"
	"github.com/smallbiznis/tenantguard/internal/clock"
	"github.com/smallbiznis/tenantguard/internal/notification/channel"
	"github.com/smallbiznis/tenantguard/internal/notification/domain"
	"github.com/smallbiznis/tenantguard/internal/observability/metrics"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const (
	auditActionDelivered = "notification.delivered"
	auditActionFailed    = "notification.failed"
)

type Params struct {
	fx.In

	DB         *gorm.DB
	Log        *zap.Logger
	Clock      clock.Clock
	Repo       domain.Repository
	Recipients domain.RecipientResolver
	Registry   *channel.Registry
	AuditSvc   auditdomain.Service `optional:"true"`
	Metrics    *metrics.Metrics    `optional:"true"`
	Config     Config              `optional:"true"`
}

type Worker struct {
	db         *gorm.DB
	log        *zap.Logger
	clock      clock.Clock
	repo       domain.Repository
	recipients domain.RecipientResolver
	registry   *channel.Registry
	auditSvc   auditdomain.Service
	metrics    *metrics.Metrics
	cfg        Config
}

func NewWorker(p Params) *Worker {
	return &Worker{
		db:         p.DB,
		log:        p.Log.Named("notification.worker"),
		clock:      p.Clock,
		repo:       p.Repo,
		recipients: p.Recipients,
		registry:   p.Registry,
		auditSvc:   p.AuditSvc,
		metrics:    p.Metrics,
		cfg:        p.Config.withDefaults(),
	}
}

func (w *Worker) RunForever(ctx context.Context) {
	ticker := time.NewTicker(w.cfg.PollInterval)
	defer ticker.Stop()

	for {
		if _, err := w.RunOnce(ctx); err != nil {
			w.log.Warn("notification run failed", zap.Error(err))
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// RunOnce processes one batch and returns how many notifications it claimed.
func (w *Worker) RunOnce(parentCtx context.Context) (int, error) {
	ctx, cancel := context.WithTimeout(parentCtx, w.cfg.RunTimeout)
	defer cancel()

	candidates, err := w.repo.ListCandidates(ctx, w.db, w.cfg.MaxAttempts, w.cfg.BatchSize)
	if err != nil {
		return 0, err
	}
	if len(candidates) == 0 {
		return 0, nil
	}

	claimed := make([]bool, len(candidates))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(w.cfg.Concurrency)
	for i := range candidates {
		g.Go(func() error {
			claimed[i] = w.process(gctx, candidates[i])
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return 0, err
	}

	processed := 0
	for _, ok := range claimed {
		if ok {
			processed++
		}
	}
	return processed, nil
}

// process delivers a single notification. Channels run sequentially so the
// row's status and attempts move in order.
func (w *Worker) process(ctx context.Context, n domain.Notification) bool {
	log := w.log.With(
		zap.String("notification_id", n.ID.String()),
		zap.String("project_id", n.ProjectID.String()),
		zap.String("notification_type", string(n.NotificationType)),
	)

	ok, err := w.repo.Claim(ctx, w.db, n.ID, w.clock.Now())
	if err != nil {
		log.Warn("failed to claim notification", zap.Error(err))
		return false
	}
	if !ok {
		log.Debug("notification claimed by another worker")
		return false
	}
	n.Attempts++

	recipients, err := w.recipients.GetNotificationRecipients(ctx, n.ProjectID, string(n.NotificationType))
	if err != nil {
		w.fail(ctx, log, n, err.Error(), nil)
		return true
	}
	if len(recipients) == 0 {
		w.fail(ctx, log, n, domain.ErrNoRecipients, nil)
		return true
	}

	results := make([]domain.ChannelResult, 0, len(n.Channels))
	lastErr := ""
	for _, ch := range n.Channels {
		result := w.registry.Dispatch(ctx, ch, &n, recipients)
		w.metrics.IncChannelResult(string(ch), result.Success)
		results = append(results, result)
		if !result.Success {
			lastErr = result.Error
		}
	}

	if lastErr != "" {
		w.fail(ctx, log, n, lastErr, results)
		return true
	}

	now := w.clock.Now()
	if err := w.repo.MarkDelivered(ctx, w.db, n.ID, datatypes.NewJSONSlice(results), now); err != nil {
		log.Warn("failed to mark notification delivered", zap.Error(err))
		return true
	}
	w.metrics.IncNotification(string(n.NotificationType), string(domain.StatusDelivered))
	w.metrics.ObserveDeliveryLatency(now.Sub(n.CreatedAt).Seconds())
	log.Info("notification delivered",
		zap.Int("attempts", n.Attempts),
		zap.Int("recipients", len(recipients)),
	)
	w.audit(ctx, n, auditActionDelivered, "", results)
	return true
}

func (w *Worker) fail(ctx context.Context, log *zap.Logger, n domain.Notification, message string, results []domain.ChannelResult) {
	if results == nil {
		results = []domain.ChannelResult{}
	}
	if err := w.repo.MarkFailed(ctx, w.db, n.ID, message, datatypes.NewJSONSlice(results), w.clock.Now()); err != nil {
		log.Warn("failed to mark notification failed", zap.Error(err))
		return
	}
	w.metrics.IncNotification(string(n.NotificationType), string(domain.StatusFailed))
	log.Warn("notification delivery failed",
		zap.Int("attempts", n.Attempts),
		zap.String("error", message),
	)
	w.audit(ctx, n, auditActionFailed, message, results)
}

func (w *Worker) audit(ctx context.Context, n domain.Notification, action string, message string, results []domain.ChannelResult) {
	if w.auditSvc == nil {
		return
	}

	channels := make([]any, 0, len(results))
	for _, r := range results {
		channels = append(channels, map[string]any{
			"channel":         string(r.Channel),
			"success":         r.Success,
			"error":           r.Error,
			"recipient_count": len(r.Recipients),
		})
	}
	metadata := map[string]any{
		"notification_type": string(n.NotificationType),
		"attempts":          n.Attempts,
		"channels":          channels,
	}
	if message != "" {
		metadata["error"] = message
	}

	projectID := n.ProjectID
	targetID := n.ID.String()
	if err := w.auditSvc.Record(ctx, auditdomain.Entry{
		ProjectID:  &projectID,
		ActorType:  string(auditdomain.ActorTypeSystem),
		Action:     action,
		TargetType: "notification",
		TargetID:   &targetID,
		Metadata:   metadata,
	}); err != nil {
		w.log.Warn("failed to write audit log", zap.String("action", action), zap.Error(err))
	}
}
