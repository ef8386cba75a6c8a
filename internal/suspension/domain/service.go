package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	quotadomain "github.com/smallbiznis/tenantguard/internal/quota/domain"
	"gorm.io/gorm"
)

type SuspendRequest struct {
	ProjectID snowflake.ID `json:"project_id" validate:"required"`
	Source    Source       `json:"source" validate:"required,oneof=quota spike error_rate manual"`
	Summary   string       `json:"summary" validate:"required,max=1000"`
	Reason    Reason       `json:"reason"`
}

type SuspendResult struct {
	Suspended        bool              `json:"suspended"`
	AlreadySuspended bool              `json:"already_suspended"`
	Record           *SuspensionRecord `json:"record,omitempty"`
}

// UnsuspendRequest reactivates a project. Source defaults to manual.
type UnsuspendRequest struct {
	ProjectID snowflake.ID `json:"project_id" validate:"required"`
	Source    Source       `json:"source" validate:"omitempty,oneof=manual automatic"`
	Reason    string       `json:"reason" validate:"required,max=1000"`
}

type UnsuspendResult struct {
	Unsuspended  bool              `json:"unsuspended"`
	NotSuspended bool              `json:"not_suspended"`
	Record       *SuspensionRecord `json:"record,omitempty"`
}

type OverrideRequest struct {
	ProjectID snowflake.ID     `json:"project_id" validate:"required"`
	Action    OverrideAction   `json:"action" validate:"required,oneof=UNSUSPEND INCREASE_CAPS BOTH"`
	Reason    string           `json:"reason" validate:"required,max=1000"`
	Notes     *string          `json:"notes" validate:"omitempty,max=2000"`
	NewCaps   quotadomain.Caps `json:"new_caps" validate:"omitempty,max=10"`
}

// OverrideResult reports the outcome of a manual override. Failures are
// returned here rather than as errors.
type OverrideResult struct {
	Success        bool             `json:"success"`
	Error          string           `json:"error,omitempty"`
	Code           string           `json:"code,omitempty"`
	Record         *OverrideRecord  `json:"record,omitempty"`
	PreviousStatus string           `json:"previous_status,omitempty"`
	NewStatus      string           `json:"new_status,omitempty"`
	PreviousCaps   quotadomain.Caps `json:"previous_caps,omitempty"`
	NewCaps        quotadomain.Caps `json:"new_caps,omitempty"`
}

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, record *SuspensionRecord) error
	FindActive(ctx context.Context, db *gorm.DB, projectID snowflake.ID) (*SuspensionRecord, error)
	// Close stamps unsuspended_at on the open record. It reports false when
	// the record was already closed.
	Close(ctx context.Context, db *gorm.DB, id snowflake.ID, by string, reason string, now time.Time) (bool, error)
	ListByProject(ctx context.Context, db *gorm.DB, projectID snowflake.ID, limit int) ([]SuspensionRecord, error)
	CountActive(ctx context.Context, db *gorm.DB, projectID snowflake.ID) (int64, error)

	InsertOverride(ctx context.Context, db *gorm.DB, record *OverrideRecord) error
	ListOverrides(ctx context.Context, db *gorm.DB, projectID snowflake.ID, limit int) ([]OverrideRecord, error)
}

type Service interface {
	// Suspend moves ACTIVE to SUSPENDED. Suspending a suspended project is a
	// no-op reported through AlreadySuspended.
	Suspend(ctx context.Context, req SuspendRequest) (SuspendResult, error)
	// Unsuspend closes the open record. Without one it reports NotSuspended.
	Unsuspend(ctx context.Context, req UnsuspendRequest) (UnsuspendResult, error)
	GetActive(ctx context.Context, projectID snowflake.ID) (*SuspensionRecord, error)
	ListHistory(ctx context.Context, projectID snowflake.ID, limit int) ([]SuspensionRecord, error)

	// PerformManualOverride applies UNSUSPEND and/or new caps and writes the
	// override record in one transaction.
	PerformManualOverride(ctx context.Context, req OverrideRequest) OverrideResult
	ListOverrides(ctx context.Context, projectID snowflake.ID, limit int) ([]OverrideRecord, error)
}

var (
	ErrInvalidRequest  = errors.New("invalid_request")
	ErrInvalidProject  = errors.New("invalid_project")
	ErrProjectNotFound = errors.New("project_not_found")
	ErrMissingActor    = errors.New("missing_actor")
	ErrCapsRequired    = errors.New("new_caps_required")
	ErrCapsNotAllowed  = errors.New("new_caps_not_allowed")
)
