package service

import (
	"context"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	auditdomain "github.com/smallbiznis/tenantguard/internal/audit/domain"
	"github.com/smallbiznis/tenantguard/internal/clock"
	"github.com/smallbiznis/tenantguard/internal/notification/domain"
	projectdomain "github.com/smallbiznis/tenantguard/internal/project/domain"
	"github.com/smallbiznis/tenantguard/pkg/db/pagination"
	"github.com/smallbiznis/tenantguard/pkg/validation"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const (
	auditActionRetryPass = "notification.retry_pass"
	auditActionRecovered = "notification.recovered"

	staleProcessingMessage = "processing timed out"
)

type Params struct {
	fx.In

	DB         *gorm.DB
	Log        *zap.Logger
	GenID      *snowflake.Node
	Clock      clock.Clock
	Repo       domain.Repository
	Recipients domain.RecipientResolver
	AuditSvc   auditdomain.Service `optional:"true"`
}

type Service struct {
	db         *gorm.DB
	log        *zap.Logger
	genID      *snowflake.Node
	clock      clock.Clock
	repo       domain.Repository
	recipients domain.RecipientResolver
	auditSvc   auditdomain.Service
}

func New(p Params) domain.Service {
	return &Service{
		db:         p.DB,
		log:        p.Log.Named("notification.service"),
		genID:      p.GenID,
		clock:      p.Clock,
		repo:       p.Repo,
		recipients: p.Recipients,
		auditSvc:   p.AuditSvc,
	}
}

func (s *Service) Enqueue(ctx context.Context, req domain.EnqueueRequest) (*domain.Notification, error) {
	req.Subject = strings.TrimSpace(req.Subject)
	req.Body = strings.TrimSpace(req.Body)
	if err := validation.Struct(req, domain.ErrInvalidRequest); err != nil {
		return nil, err
	}
	if !req.NotificationType.Valid() {
		return nil, domain.ErrInvalidType
	}

	data := datatypes.JSONMap{}
	for k, v := range req.Data {
		data[k] = v
	}

	now := s.clock.Now()
	n := &domain.Notification{
		ID:               s.genID.Generate(),
		ProjectID:        req.ProjectID,
		NotificationType: req.NotificationType,
		Priority:         req.Priority,
		Subject:          req.Subject,
		Body:             req.Body,
		Data:             data,
		Channels:         datatypes.NewJSONSlice(req.Channels),
		Status:           domain.StatusPending,
		Attempts:         0,
		DeliveryResults:  datatypes.NewJSONSlice([]domain.ChannelResult{}),
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if err := s.repo.Insert(ctx, s.db, n); err != nil {
		return nil, err
	}

	s.log.Info("notification enqueued",
		zap.String("notification_id", n.ID.String()),
		zap.String("project_id", n.ProjectID.String()),
		zap.String("notification_type", string(n.NotificationType)),
		zap.String("priority", string(n.Priority)),
	)
	return n, nil
}

func (s *Service) Get(ctx context.Context, id snowflake.ID) (*domain.Notification, error) {
	if id == 0 {
		return nil, domain.ErrNotificationMissing
	}
	n, err := s.repo.FindByID(ctx, s.db, id)
	if err != nil {
		return nil, err
	}
	if n == nil {
		return nil, domain.ErrNotificationMissing
	}
	return n, nil
}

func (s *Service) List(ctx context.Context, req domain.ListNotificationRequest) (domain.ListNotificationResponse, error) {
	filter := domain.ListFilter{Status: domain.Status(strings.TrimSpace(req.Status))}
	if raw := strings.TrimSpace(req.ProjectID); raw != "" {
		parsed, err := snowflake.ParseString(raw)
		if err != nil || parsed == 0 {
			return domain.ListNotificationResponse{}, domain.ErrInvalidRequest
		}
		filter.ProjectID = &parsed
	}

	cursor, err := pagination.Decode(req.PageToken)
	if err != nil {
		return domain.ListNotificationResponse{}, domain.ErrInvalidPageToken
	}
	filter.Cursor = cursor
	filter.Limit = req.Size()

	items, err := s.repo.List(ctx, s.db, filter)
	if err != nil {
		return domain.ListNotificationResponse{}, err
	}

	items, pageInfo := pagination.Page(items, filter.Limit, func(item *domain.Notification) pagination.Keyset {
		return pagination.Keyset{ID: item.ID, CreatedAt: item.CreatedAt}
	})
	out := make([]domain.Notification, 0, len(items))
	for _, item := range items {
		out = append(out, *item)
	}
	return domain.ListNotificationResponse{Notifications: out, PageInfo: pageInfo}, nil
}

func (s *Service) GetNotificationRecipients(ctx context.Context, projectID snowflake.ID, notificationType domain.Type) ([]projectdomain.Recipient, error) {
	if !notificationType.Valid() {
		return nil, domain.ErrInvalidType
	}
	return s.recipients.GetNotificationRecipients(ctx, projectID, string(notificationType))
}

func (s *Service) RetryFailedNotifications(ctx context.Context, maxAttempts int) (domain.RetryResult, error) {
	if maxAttempts < 1 {
		return domain.RetryResult{}, domain.ErrInvalidMaxAttempts
	}

	var result domain.RetryResult
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		retried, err := s.repo.RetryFailed(ctx, tx, maxAttempts, s.clock.Now())
		if err != nil {
			return err
		}
		terminal, err := s.repo.CountTerminalFailures(ctx, tx, maxAttempts)
		if err != nil {
			return err
		}
		result = domain.RetryResult{Retried: retried, TerminalFailures: terminal}
		return nil
	})
	if err != nil {
		return domain.RetryResult{}, err
	}

	if result.Retried > 0 || result.TerminalFailures > 0 {
		s.log.Info("notification retry pass",
			zap.Int64("retried", result.Retried),
			zap.Int64("terminal_failures", result.TerminalFailures),
			zap.Int("max_attempts", maxAttempts),
		)
		s.audit(ctx, auditActionRetryPass, map[string]any{
			"retried":           result.Retried,
			"terminal_failures": result.TerminalFailures,
			"max_attempts":      maxAttempts,
		})
	}
	return result, nil
}

func (s *Service) ListTerminalFailures(ctx context.Context, maxAttempts int, limit int) ([]domain.Notification, error) {
	if maxAttempts < 1 {
		return nil, domain.ErrInvalidMaxAttempts
	}
	if limit <= 0 || limit > 250 {
		limit = 50
	}
	return s.repo.ListTerminalFailures(ctx, s.db, maxAttempts, limit)
}

func (s *Service) RecoverStale(ctx context.Context, startedBefore time.Time) (int64, error) {
	recovered, err := s.repo.RecoverStale(ctx, s.db, startedBefore, staleProcessingMessage, s.clock.Now())
	if err != nil {
		return 0, err
	}
	if recovered > 0 {
		s.log.Warn("recovered stale notifications",
			zap.Int64("count", recovered),
			zap.Time("started_before", startedBefore),
		)
		s.audit(ctx, auditActionRecovered, map[string]any{
			"recovered":      recovered,
			"started_before": startedBefore.Format(time.RFC3339),
		})
	}
	return recovered, nil
}

func (s *Service) audit(ctx context.Context, action string, metadata map[string]any) {
	if s.auditSvc == nil {
		return
	}
	if err := s.auditSvc.Record(ctx, auditdomain.Entry{
		ActorType:  string(auditdomain.ActorTypeSystem),
		Action:     action,
		TargetType: "notification",
		Metadata:   metadata,
	}); err != nil {
		s.log.Warn("failed to write audit log", zap.String("action", action), zap.Error(err))
	}
}
