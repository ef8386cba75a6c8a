package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/bwmarrin/snowflake"
	auditdomain "github.com/smallbiznis/tenantguard/internal/audit/domain"
	"github.com/smallbiznis/tenantguard/internal/auditcontext"
	"github.com/smallbiznis/tenantguard/internal/clock"
	notificationdomain "github.com/smallbiznis/tenantguard/internal/notification/domain"
	"github.com/smallbiznis/tenantguard/internal/observability/metrics"
	projectdomain "github.com/smallbiznis/tenantguard/internal/project/domain"
	quotadomain "github.com/smallbiznis/tenantguard/internal/quota/domain"
	"github.com/smallbiznis/tenantguard/internal/suspension/domain"
	"github.com/smallbiznis/tenantguard/pkg/db"
	"github.com/smallbiznis/tenantguard/pkg/validation"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const (
	auditActionSuspended   = "project.suspended"
	auditActionUnsuspended = "project.unsuspended"
	auditActionOverride    = "project.manual_override"

	systemActor = "system"
)

// errAlreadyActive and errNotSuspended roll back the transaction and are
// turned into idempotent results by the caller.
var (
	errAlreadyActive = errors.New("suspension already active")
	errNotSuspended  = errors.New("project not suspended")
)

type Params struct {
	fx.In

	DB            *gorm.DB
	Log           *zap.Logger
	GenID         *snowflake.Node
	Clock         clock.Clock
	Repo          domain.Repository
	ProjectRepo   projectdomain.Repository
	QuotaSvc      quotadomain.Service
	Notifications notificationdomain.Service `optional:"true"`
	AuditSvc      auditdomain.Service        `optional:"true"`
	Metrics       *metrics.Metrics           `optional:"true"`
}

type Service struct {
	db            *gorm.DB
	log           *zap.Logger
	genID         *snowflake.Node
	clock         clock.Clock
	repo          domain.Repository
	projectRepo   projectdomain.Repository
	quotaSvc      quotadomain.Service
	notifications notificationdomain.Service
	auditSvc      auditdomain.Service
	metrics       *metrics.Metrics
}

func New(p Params) domain.Service {
	return &Service{
		db:            p.DB,
		log:           p.Log.Named("suspension.service"),
		genID:         p.GenID,
		clock:         p.Clock,
		repo:          p.Repo,
		projectRepo:   p.ProjectRepo,
		quotaSvc:      p.QuotaSvc,
		notifications: p.Notifications,
		auditSvc:      p.AuditSvc,
		metrics:       p.Metrics,
	}
}

func (s *Service) Suspend(ctx context.Context, req domain.SuspendRequest) (domain.SuspendResult, error) {
	req.Summary = strings.TrimSpace(req.Summary)
	if err := validation.Struct(req, domain.ErrInvalidRequest); err != nil {
		return domain.SuspendResult{}, err
	}

	by := performedBy(ctx)
	now := s.clock.Now()
	record := &domain.SuspensionRecord{
		ID:            s.genID.Generate(),
		ProjectID:     req.ProjectID,
		Source:        req.Source,
		Summary:       req.Summary,
		CurrentValue:  req.Reason.CurrentValue,
		LimitExceeded: req.Reason.LimitExceeded,
		Details:       jsonMap(req.Reason.Details),
		SuspendedBy:   by,
		SuspendedAt:   now,
	}
	if capType := strings.TrimSpace(req.Reason.CapType); capType != "" {
		record.CapType = &capType
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		project, err := s.lockProject(ctx, tx, req.ProjectID)
		if err != nil {
			return err
		}

		active, err := s.repo.FindActive(ctx, tx, req.ProjectID)
		if err != nil {
			return err
		}
		if active != nil || project.Status == projectdomain.StatusSuspended {
			return errAlreadyActive
		}

		if err := s.repo.Insert(ctx, tx, record); err != nil {
			if db.IsDuplicateKeyErr(err) {
				return errAlreadyActive
			}
			return err
		}
		return s.projectRepo.UpdateStatus(ctx, tx, req.ProjectID, projectdomain.StatusSuspended, now)
	})
	if errors.Is(err, errAlreadyActive) {
		s.log.Info("project already suspended",
			zap.String("project_id", req.ProjectID.String()),
			zap.String("source", string(req.Source)),
		)
		return domain.SuspendResult{AlreadySuspended: true}, nil
	}
	if err != nil {
		return domain.SuspendResult{}, err
	}

	s.log.Warn("project suspended",
		zap.String("project_id", req.ProjectID.String()),
		zap.String("source", string(req.Source)),
		zap.String("summary", req.Summary),
	)
	s.metrics.IncSuspension("suspended", string(req.Source))

	targetID := req.ProjectID.String()
	s.audit(ctx, auditdomain.Entry{
		ProjectID:  &record.ProjectID,
		Action:     auditActionSuspended,
		TargetType: "project",
		TargetID:   &targetID,
		Before:     map[string]any{"status": string(projectdomain.StatusActive)},
		After: map[string]any{
			"status":        string(projectdomain.StatusSuspended),
			"suspension_id": record.ID.String(),
		},
		Metadata: map[string]any{
			"source":         string(req.Source),
			"summary":        req.Summary,
			"cap_type":       req.Reason.CapType,
			"current_value":  req.Reason.CurrentValue,
			"limit_exceeded": req.Reason.LimitExceeded,
			"performed_by":   by,
		},
	})
	s.notify(ctx, notificationdomain.EnqueueRequest{
		ProjectID:        req.ProjectID,
		NotificationType: notificationdomain.TypeProjectSuspended,
		Priority:         notificationdomain.PriorityHigh,
		Subject:          "Your project has been suspended",
		Body:             suspendedBody(req),
		Data: map[string]any{
			"suspension_id":  record.ID.String(),
			"source":         string(req.Source),
			"cap_type":       req.Reason.CapType,
			"current_value":  req.Reason.CurrentValue,
			"limit_exceeded": req.Reason.LimitExceeded,
		},
		Channels: []notificationdomain.Channel{notificationdomain.ChannelEmail},
	})

	return domain.SuspendResult{Suspended: true, Record: record}, nil
}

func (s *Service) Unsuspend(ctx context.Context, req domain.UnsuspendRequest) (domain.UnsuspendResult, error) {
	req.Reason = strings.TrimSpace(req.Reason)
	if req.Source == "" {
		req.Source = domain.SourceManual
	}
	if err := validation.Struct(req, domain.ErrInvalidRequest); err != nil {
		return domain.UnsuspendResult{}, err
	}

	by := performedBy(ctx)
	var closed *domain.SuspensionRecord
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		project, err := s.lockProject(ctx, tx, req.ProjectID)
		if err != nil {
			return err
		}
		closed, err = s.unsuspendInTx(ctx, tx, project, by, req.Reason)
		if err != nil {
			return err
		}
		if closed == nil {
			return errNotSuspended
		}
		return nil
	})
	if errors.Is(err, errNotSuspended) {
		return domain.UnsuspendResult{NotSuspended: true}, nil
	}
	if err != nil {
		return domain.UnsuspendResult{}, err
	}

	s.afterUnsuspend(ctx, req.ProjectID, req.Source, closed, by, req.Reason)
	return domain.UnsuspendResult{Unsuspended: true, Record: closed}, nil
}

func (s *Service) GetActive(ctx context.Context, projectID snowflake.ID) (*domain.SuspensionRecord, error) {
	if projectID == 0 {
		return nil, domain.ErrInvalidProject
	}
	return s.repo.FindActive(ctx, s.db, projectID)
}

func (s *Service) ListHistory(ctx context.Context, projectID snowflake.ID, limit int) ([]domain.SuspensionRecord, error) {
	if projectID == 0 {
		return nil, domain.ErrInvalidProject
	}
	return s.repo.ListByProject(ctx, s.db, projectID, clampLimit(limit))
}

func (s *Service) ListOverrides(ctx context.Context, projectID snowflake.ID, limit int) ([]domain.OverrideRecord, error) {
	if projectID == 0 {
		return nil, domain.ErrInvalidProject
	}
	return s.repo.ListOverrides(ctx, s.db, projectID, clampLimit(limit))
}

func (s *Service) lockProject(ctx context.Context, tx *gorm.DB, projectID snowflake.ID) (*projectdomain.Project, error) {
	project, err := s.projectRepo.FindByIDForUpdate(ctx, tx, projectID)
	if err != nil {
		return nil, err
	}
	if project == nil {
		return nil, domain.ErrProjectNotFound
	}
	return project, nil
}

// unsuspendInTx closes the open record and reactivates the project. It returns
// nil when there was nothing to close.
func (s *Service) unsuspendInTx(ctx context.Context, tx *gorm.DB, project *projectdomain.Project, by, reason string) (*domain.SuspensionRecord, error) {
	now := s.clock.Now()
	active, err := s.repo.FindActive(ctx, tx, project.ID)
	if err != nil {
		return nil, err
	}

	if active != nil {
		ok, err := s.repo.Close(ctx, tx, active.ID, by, reason, now)
		if err != nil {
			return nil, err
		}
		if !ok {
			active = nil
		} else {
			active.UnsuspendedAt = &now
			active.UnsuspendedBy = &by
			active.UnsuspendReason = &reason
		}
	}

	if active == nil && project.Status != projectdomain.StatusSuspended {
		return nil, nil
	}
	if err := s.projectRepo.UpdateStatus(ctx, tx, project.ID, projectdomain.StatusActive, now); err != nil {
		return nil, err
	}
	if active == nil {
		// status was SUSPENDED without an open record
		active = &domain.SuspensionRecord{ProjectID: project.ID, UnsuspendedAt: &now}
	}
	return active, nil
}

func (s *Service) afterUnsuspend(ctx context.Context, projectID snowflake.ID, source domain.Source, closed *domain.SuspensionRecord, by, reason string) {
	s.log.Info("project unsuspended",
		zap.String("project_id", projectID.String()),
		zap.String("source", string(source)),
		zap.String("performed_by", by),
	)
	s.metrics.IncSuspension("unsuspended", string(source))

	targetID := projectID.String()
	after := map[string]any{"status": string(projectdomain.StatusActive)}
	if closed.ID != 0 {
		after["suspension_id"] = closed.ID.String()
	}
	s.audit(ctx, auditdomain.Entry{
		ProjectID:  &projectID,
		Action:     auditActionUnsuspended,
		TargetType: "project",
		TargetID:   &targetID,
		Before:     map[string]any{"status": string(projectdomain.StatusSuspended)},
		After:      after,
		Metadata: map[string]any{
			"reason":       reason,
			"source":       string(source),
			"performed_by": by,
		},
	})
	s.notify(ctx, notificationdomain.EnqueueRequest{
		ProjectID:        projectID,
		NotificationType: notificationdomain.TypeProjectUnsuspended,
		Priority:         notificationdomain.PriorityMedium,
		Subject:          "Your project has been reactivated",
		Body:             "Your project is active again. Reason: " + reason,
		Data:             map[string]any{"reason": reason},
		Channels: []notificationdomain.Channel{
			notificationdomain.ChannelEmail,
			notificationdomain.ChannelInApp,
		},
	})
}

func (s *Service) audit(ctx context.Context, entry auditdomain.Entry) {
	if s.auditSvc == nil {
		return
	}
	if err := s.auditSvc.Record(ctx, entry); err != nil {
		s.log.Warn("failed to write audit log", zap.String("action", entry.Action), zap.Error(err))
	}
}

// notify enqueues after commit. A failed enqueue never fails the transition.
func (s *Service) notify(ctx context.Context, req notificationdomain.EnqueueRequest) {
	if s.notifications == nil {
		return
	}
	if _, err := s.notifications.Enqueue(ctx, req); err != nil {
		s.log.Warn("failed to enqueue notification",
			zap.String("project_id", req.ProjectID.String()),
			zap.String("notification_type", string(req.NotificationType)),
			zap.Error(err),
		)
	}
}

func performedBy(ctx context.Context) string {
	if by := auditcontext.PerformedBy(ctx); by != "" {
		return by
	}
	return systemActor
}

func suspendedBody(req domain.SuspendRequest) string {
	var b strings.Builder
	b.WriteString("Your project has been suspended. ")
	b.WriteString(req.Summary)
	if req.Reason.CapType != "" {
		fmt.Fprintf(&b, "\nCap: %s, current usage %d, limit %d.", req.Reason.CapType, req.Reason.CurrentValue, req.Reason.LimitExceeded)
	}
	return b.String()
}

func jsonMap(in map[string]any) datatypes.JSONMap {
	out := datatypes.JSONMap{}
	for k, v := range in {
		out[k] = v
	}
	return out
}

func sortedCapTypes(caps quotadomain.Caps) []string {
	out := make([]string, 0, len(caps))
	for capType := range caps {
		out = append(out, string(capType))
	}
	sort.Strings(out)
	return out
}

func clampLimit(limit int) int {
	if limit <= 0 || limit > 250 {
		return 50
	}
	return limit
}
