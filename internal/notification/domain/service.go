package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	projectdomain "github.com/smallbiznis/tenantguard/internal/project/domain"
	"github.com/smallbiznis/tenantguard/pkg/db/pagination"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type EnqueueRequest struct {
	ProjectID        snowflake.ID   `json:"project_id" validate:"required"`
	NotificationType Type           `json:"notification_type" validate:"required"`
	Priority         Priority       `json:"priority" validate:"required,oneof=low medium high critical"`
	Subject          string         `json:"subject" validate:"required,max=500"`
	Body             string         `json:"body" validate:"required"`
	Data             map[string]any `json:"data"`
	Channels         []Channel      `json:"channels" validate:"min=1,max=4,unique,dive,oneof=email in_app sms webhook"`
}

type ListNotificationRequest struct {
	pagination.Pagination
	ProjectID string `form:"project_id"`
	Status    string `form:"status"`
}

type ListNotificationResponse struct {
	pagination.PageInfo
	Notifications []Notification `json:"notifications"`
}

type ListFilter struct {
	ProjectID *snowflake.ID
	Status    Status
	Cursor    *Cursor
	Limit     int
}

type Cursor = pagination.Keyset

type RetryResult struct {
	Retried          int64 `json:"retried"`
	TerminalFailures int64 `json:"terminal_failures"`
}

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, n *Notification) error
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Notification, error)
	List(ctx context.Context, db *gorm.DB, filter ListFilter) ([]*Notification, error)

	// ListCandidates returns pending rows and retrying rows below maxAttempts,
	// highest priority first, oldest first within a priority.
	ListCandidates(ctx context.Context, db *gorm.DB, maxAttempts int, limit int) ([]Notification, error)
	// Claim atomically moves a pending or retrying row to processing and
	// increments attempts. It reports false when another worker won.
	Claim(ctx context.Context, db *gorm.DB, id snowflake.ID, now time.Time) (bool, error)
	MarkDelivered(ctx context.Context, db *gorm.DB, id snowflake.ID, results datatypes.JSONSlice[ChannelResult], now time.Time) error
	MarkFailed(ctx context.Context, db *gorm.DB, id snowflake.ID, message string, results datatypes.JSONSlice[ChannelResult], now time.Time) error

	RetryFailed(ctx context.Context, db *gorm.DB, maxAttempts int, now time.Time) (int64, error)
	CountTerminalFailures(ctx context.Context, db *gorm.DB, maxAttempts int) (int64, error)
	ListTerminalFailures(ctx context.Context, db *gorm.DB, maxAttempts int, limit int) ([]Notification, error)
	RecoverStale(ctx context.Context, db *gorm.DB, startedBefore time.Time, message string, now time.Time) (int64, error)
}

// RecipientResolver resolves eligible recipients for one project and type.
type RecipientResolver interface {
	GetNotificationRecipients(ctx context.Context, projectID snowflake.ID, notificationType string) ([]projectdomain.Recipient, error)
}

type Service interface {
	Enqueue(ctx context.Context, req EnqueueRequest) (*Notification, error)
	Get(ctx context.Context, id snowflake.ID) (*Notification, error)
	List(ctx context.Context, req ListNotificationRequest) (ListNotificationResponse, error)
	GetNotificationRecipients(ctx context.Context, projectID snowflake.ID, notificationType Type) ([]projectdomain.Recipient, error)

	// RetryFailedNotifications flips failed rows with attempts < maxAttempts
	// to retrying. Rows at or above maxAttempts are never retried again.
	RetryFailedNotifications(ctx context.Context, maxAttempts int) (RetryResult, error)
	ListTerminalFailures(ctx context.Context, maxAttempts int, limit int) ([]Notification, error)
	// RecoverStale returns processing rows claimed before startedBefore to failed.
	RecoverStale(ctx context.Context, startedBefore time.Time) (int64, error)
}

var (
	ErrInvalidRequest      = errors.New("invalid_request")
	ErrInvalidType         = errors.New("invalid_notification_type")
	ErrInvalidMaxAttempts  = errors.New("invalid_max_attempts")
	ErrNotificationMissing = errors.New("notification_not_found")
	ErrInvalidPageToken    = errors.New("invalid_page_token")
)
