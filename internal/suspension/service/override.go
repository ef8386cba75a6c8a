package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	auditdomain "github.com/smallbiznis/tenantguard/internal/audit/domain"
	"github.com/smallbiznis/tenantguard/internal/auditcontext"
	notificationdomain "github.com/smallbiznis/tenantguard/internal/notification/domain"
	projectdomain "github.com/smallbiznis/tenantguard/internal/project/domain"
	quotadomain "github.com/smallbiznis/tenantguard/internal/quota/domain"
	"github.com/smallbiznis/tenantguard/internal/suspension/domain"
	"github.com/smallbiznis/tenantguard/pkg/validation"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

func (s *Service) PerformManualOverride(ctx context.Context, req domain.OverrideRequest) domain.OverrideResult {
	req.Reason = strings.TrimSpace(req.Reason)
	if req.Notes != nil {
		notes := strings.TrimSpace(*req.Notes)
		req.Notes = &notes
		if notes == "" {
			req.Notes = nil
		}
	}

	_, actorID := auditcontext.ActorFromContext(ctx)
	if actorID == "" {
		return s.overrideFailed(req, domain.ErrMissingActor)
	}
	if err := validateOverride(req); err != nil {
		return s.overrideFailed(req, err)
	}

	var (
		record        *domain.OverrideRecord
		closed        *domain.SuspensionRecord
		previousCaps  quotadomain.Caps
		newCaps       quotadomain.Caps
		previousState projectdomain.Status
		newState      projectdomain.Status
	)
	now := s.clock.Now()
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		project, err := s.lockProject(ctx, tx, req.ProjectID)
		if err != nil {
			return err
		}
		previousState = project.Status
		newState = project.Status

		previousCaps, err = s.quotaSvc.SnapshotInTx(ctx, tx, req.ProjectID)
		if err != nil {
			return err
		}

		if req.Action.Unsuspends() {
			closed, err = s.unsuspendInTx(ctx, tx, project, actorID, req.Reason)
			if err != nil {
				return err
			}
			newState = projectdomain.StatusActive
		}

		newCaps = previousCaps
		if req.Action.ChangesCaps() {
			if _, err := s.quotaSvc.ApplyInTx(ctx, tx, req.ProjectID, req.NewCaps, now); err != nil {
				return err
			}
			newCaps, err = s.quotaSvc.SnapshotInTx(ctx, tx, req.ProjectID)
			if err != nil {
				return err
			}
		}

		record = &domain.OverrideRecord{
			ID:             s.genID.Generate(),
			ProjectID:      req.ProjectID,
			Action:         req.Action,
			Reason:         req.Reason,
			Notes:          req.Notes,
			PreviousCaps:   datatypes.JSONMap(previousCaps.ToMap()),
			PreviousStatus: string(previousState),
			NewStatus:      string(newState),
			PerformedBy:    actorID,
			PerformedAt:    now,
		}
		if req.Action.ChangesCaps() {
			record.NewCaps = datatypes.JSONMap(newCaps.ToMap())
		}
		if ip := auditcontext.IPAddressFromContext(ctx); ip != "" {
			record.IPAddress = &ip
		}
		return s.repo.InsertOverride(ctx, tx, record)
	})
	if err != nil {
		return s.overrideFailed(req, err)
	}

	s.metrics.IncOverride(string(req.Action), true)
	s.log.Info("manual override applied",
		zap.String("project_id", req.ProjectID.String()),
		zap.String("action", string(req.Action)),
		zap.String("performed_by", actorID),
		zap.String("previous_status", string(previousState)),
		zap.String("new_status", string(newState)),
	)
	s.afterOverride(ctx, req, record, closed, previousCaps, newCaps)

	return domain.OverrideResult{
		Success:        true,
		Record:         record,
		PreviousStatus: string(previousState),
		NewStatus:      string(newState),
		PreviousCaps:   previousCaps,
		NewCaps:        newCaps,
	}
}

func validateOverride(req domain.OverrideRequest) error {
	if err := validation.Struct(req, domain.ErrInvalidRequest); err != nil {
		return err
	}
	switch {
	case req.Action.ChangesCaps() && len(req.NewCaps) == 0:
		return domain.ErrCapsRequired
	case !req.Action.ChangesCaps() && len(req.NewCaps) > 0:
		return domain.ErrCapsNotAllowed
	}
	for _, capType := range sortedCapTypes(req.NewCaps) {
		value := req.NewCaps[quotadomain.CapType(capType)]
		if err := quotadomain.Validate(quotadomain.CapType(capType), value); err != nil {
			return fmt.Errorf("%s: %w", capType, err)
		}
	}
	return nil
}

func (s *Service) overrideFailed(req domain.OverrideRequest, err error) domain.OverrideResult {
	code := overrideErrorCode(err)
	s.metrics.IncOverride(string(req.Action), false)
	s.log.Warn("manual override failed",
		zap.String("project_id", req.ProjectID.String()),
		zap.String("action", string(req.Action)),
		zap.String("code", code),
		zap.Error(err),
	)
	return domain.OverrideResult{
		Success: false,
		Error:   err.Error(),
		Code:    code,
	}
}

func overrideErrorCode(err error) string {
	for _, known := range []error{
		domain.ErrMissingActor,
		domain.ErrInvalidRequest,
		domain.ErrCapsRequired,
		domain.ErrCapsNotAllowed,
		domain.ErrProjectNotFound,
		quotadomain.ErrProjectNotFound,
		quotadomain.ErrInvalidCapType,
		quotadomain.ErrOutOfRange,
	} {
		if errors.Is(err, known) {
			return known.Error()
		}
	}
	return "internal_error"
}

func (s *Service) afterOverride(ctx context.Context, req domain.OverrideRequest, record *domain.OverrideRecord, closed *domain.SuspensionRecord, previousCaps, newCaps quotadomain.Caps) {
	targetID := req.ProjectID.String()
	metadata := map[string]any{
		"override_id":  record.ID.String(),
		"action":       string(req.Action),
		"reason":       req.Reason,
		"performed_by": record.PerformedBy,
	}
	if req.Notes != nil {
		metadata["notes"] = *req.Notes
	}
	if closed != nil && closed.ID != 0 {
		metadata["suspension_id"] = closed.ID.String()
	}
	s.audit(ctx, auditdomain.Entry{
		ProjectID:  &record.ProjectID,
		Action:     auditActionOverride,
		TargetType: "project",
		TargetID:   &targetID,
		Before: map[string]any{
			"status": record.PreviousStatus,
			"caps":   previousCaps.ToMap(),
		},
		After: map[string]any{
			"status": record.NewStatus,
			"caps":   newCaps.ToMap(),
		},
		Metadata: metadata,
	})

	switch {
	case req.Action.ChangesCaps():
		s.notify(ctx, notificationdomain.EnqueueRequest{
			ProjectID:        req.ProjectID,
			NotificationType: notificationdomain.TypeQuotaOverride,
			Priority:         notificationdomain.PriorityMedium,
			Subject:          "Your project quotas were updated",
			Body:             overrideBody(req, record, newCaps),
			Data: map[string]any{
				"override_id": record.ID.String(),
				"action":      string(req.Action),
				"new_caps":    newCaps.ToMap(),
				"new_status":  record.NewStatus,
			},
			Channels: []notificationdomain.Channel{
				notificationdomain.ChannelEmail,
				notificationdomain.ChannelInApp,
			},
		})
	case closed != nil:
		s.notify(ctx, notificationdomain.EnqueueRequest{
			ProjectID:        req.ProjectID,
			NotificationType: notificationdomain.TypeProjectUnsuspended,
			Priority:         notificationdomain.PriorityMedium,
			Subject:          "Your project has been reactivated",
			Body:             "Your project is active again. Reason: " + req.Reason,
			Data: map[string]any{
				"override_id": record.ID.String(),
				"reason":      req.Reason,
			},
			Channels: []notificationdomain.Channel{
				notificationdomain.ChannelEmail,
				notificationdomain.ChannelInApp,
			},
		})
	}
	if closed != nil {
		s.metrics.IncSuspension("unsuspended", "override")
	}
}

func overrideBody(req domain.OverrideRequest, record *domain.OverrideRecord, caps quotadomain.Caps) string {
	var b strings.Builder
	b.WriteString("An operator updated your project. Reason: " + req.Reason + "\n")
	if record.PreviousStatus != record.NewStatus {
		fmt.Fprintf(&b, "Status: %s -> %s\n", record.PreviousStatus, record.NewStatus)
	}
	for _, capType := range sortedCapTypes(req.NewCaps) {
		fmt.Fprintf(&b, "%s: %d\n", capType, caps[quotadomain.CapType(capType)])
	}
	return strings.TrimSpace(b.String())
}
