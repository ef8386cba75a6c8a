package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/tenantguard/pkg/db/pagination"
	"gorm.io/gorm"
)

// Entry describes one state change. Before and After carry the snapshots on
// either side of the transition.
type Entry struct {
	ProjectID  *snowflake.ID
	ActorType  string
	ActorID    *string
	Action     string
	TargetType string
	TargetID   *string
	Before     map[string]any
	After      map[string]any
	Metadata   map[string]any
}

type ListAuditLogRequest struct {
	pagination.Pagination
	ProjectID  string     `form:"project_id"`
	Action     string     `form:"action"`
	TargetType string     `form:"target_type"`
	TargetID   string     `form:"target_id"`
	ActorType  string     `form:"actor_type"`
	StartAt    *time.Time `form:"start_at" time_format:"2006-01-02T15:04:05Z07:00"`
	EndAt      *time.Time `form:"end_at" time_format:"2006-01-02T15:04:05Z07:00"`
}

type ListAuditLogResponse struct {
	pagination.PageInfo
	AuditLogs []AuditLog `json:"audit_logs"`
}

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, entry *AuditLog) error
	List(ctx context.Context, db *gorm.DB, filter ListFilter) ([]*AuditLog, error)
}

type Service interface {
	Record(ctx context.Context, entry Entry) error
	List(ctx context.Context, req ListAuditLogRequest) (ListAuditLogResponse, error)
}

var (
	ErrInvalidProject   = errors.New("invalid_project")
	ErrInvalidPageToken = errors.New("invalid_page_token")
	ErrInvalidTimeRange = errors.New("invalid_time_range")
	ErrInvalidAction    = errors.New("invalid_action")
)
