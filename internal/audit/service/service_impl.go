package service

import (
	"context"
	"strings"

	"github.com/bwmarrin/snowflake"
	auditdomain "github.com/smallbiznis/tenantguard/internal/audit/domain"
	"github.com/smallbiznis/tenantguard/internal/audit/masking"
	"github.com/smallbiznis/tenantguard/internal/auditcontext"
	"github.com/smallbiznis/tenantguard/internal/clock"
	"github.com/smallbiznis/tenantguard/pkg/db/pagination"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	GenID *snowflake.Node
	Repo  auditdomain.Repository
	Clock clock.Clock `optional:"true"`
}

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	genID *snowflake.Node
	repo  auditdomain.Repository
	clock clock.Clock
}

func NewService(p Params) auditdomain.Service {
	clk := p.Clock
	if clk == nil {
		clk = clock.SystemClock{}
	}
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("audit.service"),
		genID: p.GenID,
		repo:  p.Repo,
		clock: clk,
	}
}

// Record appends one audit entry. The actor falls back to the identity on
// ctx and then to "system"; request metadata from ctx is attached.
func (s *Service) Record(ctx context.Context, in auditdomain.Entry) error {
	action := strings.TrimSpace(in.Action)
	if action == "" {
		return auditdomain.ErrInvalidAction
	}

	entry := &auditdomain.AuditLog{
		ID:         s.genID.Generate(),
		ProjectID:  nonZero(in.ProjectID),
		Action:     action,
		TargetType: firstNonEmpty(in.TargetType, "unknown"),
		TargetID:   trimmed(in.TargetID),
		Before:     masked(in.Before),
		After:      masked(in.After),
		Metadata:   masked(withRequestID(ctx, in.Metadata)),
		IPAddress:  trimmed(ptr(auditcontext.IPAddressFromContext(ctx))),
		UserAgent:  trimmed(ptr(auditcontext.UserAgentFromContext(ctx))),
		CreatedAt:  s.clock.Now().UTC(),
	}
	entry.ActorType, entry.ActorID = actorOf(ctx, in)

	if err := s.repo.Insert(ctx, s.db, entry); err != nil {
		s.log.Warn("failed to write audit log", zap.String("action", action), zap.Error(err))
		return err
	}
	return nil
}

func (s *Service) List(ctx context.Context, req auditdomain.ListAuditLogRequest) (auditdomain.ListAuditLogResponse, error) {
	filter := auditdomain.ListFilter{
		Action:     req.Action,
		TargetType: req.TargetType,
		TargetID:   req.TargetID,
		ActorType:  req.ActorType,
		StartAt:    req.StartAt,
		EndAt:      req.EndAt,
		Limit:      req.Size(),
	}
	if raw := strings.TrimSpace(req.ProjectID); raw != "" {
		id, err := snowflake.ParseString(raw)
		if err != nil || id <= 0 {
			return auditdomain.ListAuditLogResponse{}, auditdomain.ErrInvalidProject
		}
		filter.ProjectID = &id
	}
	if req.StartAt != nil && req.EndAt != nil && req.StartAt.After(*req.EndAt) {
		return auditdomain.ListAuditLogResponse{}, auditdomain.ErrInvalidTimeRange
	}
	cursor, err := pagination.Decode(req.PageToken)
	if err != nil {
		return auditdomain.ListAuditLogResponse{}, auditdomain.ErrInvalidPageToken
	}
	filter.Cursor = cursor

	rows, err := s.repo.List(ctx, s.db, filter)
	if err != nil {
		return auditdomain.ListAuditLogResponse{}, err
	}
	rows, page := pagination.Page(rows, filter.Limit, func(row *auditdomain.AuditLog) pagination.Keyset {
		return pagination.Keyset{ID: row.ID, CreatedAt: row.CreatedAt}
	})

	resp := auditdomain.ListAuditLogResponse{
		PageInfo:  page,
		AuditLogs: make([]auditdomain.AuditLog, 0, len(rows)),
	}
	for _, row := range rows {
		resp.AuditLogs = append(resp.AuditLogs, *row)
	}
	return resp, nil
}

func actorOf(ctx context.Context, in auditdomain.Entry) (string, *string) {
	actorType := strings.TrimSpace(in.ActorType)
	actorID := trimmed(in.ActorID)
	if actorType == "" {
		ctxType, ctxID := auditcontext.ActorFromContext(ctx)
		actorType = ctxType
		if actorID == nil {
			actorID = trimmed(ptr(ctxID))
		}
	}
	return firstNonEmpty(actorType, string(auditdomain.ActorTypeSystem)), actorID
}

func withRequestID(ctx context.Context, metadata map[string]any) map[string]any {
	out := make(map[string]any, len(metadata)+1)
	for k, v := range metadata {
		if k != "" {
			out[k] = v
		}
	}
	if id := auditcontext.RequestIDFromContext(ctx); id != "" {
		out["request_id"] = id
	}
	return out
}

func masked(in map[string]any) datatypes.JSONMap {
	if out := masking.MaskSensitive(in); out != nil {
		return datatypes.JSONMap(out)
	}
	return nil
}

func nonZero(id *snowflake.ID) *snowflake.ID {
	if id == nil || *id == 0 {
		return nil
	}
	return id
}

func ptr(s string) *string { return &s }

func trimmed(value *string) *string {
	if value == nil {
		return nil
	}
	v := strings.TrimSpace(*value)
	if v == "" {
		return nil
	}
	return &v
}

func firstNonEmpty(v, fallback string) string {
	if v = strings.TrimSpace(v); v != "" {
		return v
	}
	return fallback
}
