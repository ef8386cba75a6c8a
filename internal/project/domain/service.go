package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

const RoleOwner = "owner"

type CreateProjectRequest struct {
	OrgID   snowflake.ID `json:"org_id" validate:"required"`
	Name    string       `json:"name" validate:"required,max=200"`
	OwnerID snowflake.ID `json:"owner_id" validate:"required"`
}

type CreateUserRequest struct {
	Email string  `json:"email" validate:"required,email"`
	Name  *string `json:"name"`
}

type AddMemberRequest struct {
	OrgID  snowflake.ID `json:"org_id" validate:"required"`
	UserID snowflake.ID `json:"user_id" validate:"required"`
	Role   string       `json:"role" validate:"required,oneof=owner admin developer viewer"`
}

type SetPreferenceRequest struct {
	UserID           snowflake.ID `json:"user_id" validate:"required"`
	NotificationType string       `json:"notification_type" validate:"required"`
	Enabled          bool         `json:"enabled"`
}

// QuotaInitializer seeds default caps for a freshly provisioned project.
type QuotaInitializer interface {
	ApplyDefaults(ctx context.Context, projectID snowflake.ID) error
}

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, project *Project) error
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Project, error)
	FindByIDForUpdate(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Project, error)
	UpdateStatus(ctx context.Context, db *gorm.DB, id snowflake.ID, status Status, now time.Time) error
	ListIDsByStatus(ctx context.Context, db *gorm.DB, status Status, afterID snowflake.ID, limit int) ([]snowflake.ID, error)

	InsertUser(ctx context.Context, db *gorm.DB, user *User) error
	UpsertMember(ctx context.Context, db *gorm.DB, member *OrganizationMember) error
	UpsertPreference(ctx context.Context, db *gorm.DB, pref *NotificationPreference) error

	FindOwner(ctx context.Context, db *gorm.DB, projectID snowflake.ID) (*Recipient, error)
	ListMembers(ctx context.Context, db *gorm.DB, projectID snowflake.ID) ([]Recipient, error)
	ListOptedOutUserIDs(ctx context.Context, db *gorm.DB, notificationType string, userIDs []snowflake.ID) ([]snowflake.ID, error)
}

type Service interface {
	Create(ctx context.Context, req CreateProjectRequest) (*Project, error)
	Get(ctx context.Context, id snowflake.ID) (*Project, error)
	ListIDsByStatus(ctx context.Context, status Status, afterID snowflake.ID, limit int) ([]snowflake.ID, error)

	CreateUser(ctx context.Context, req CreateUserRequest) (*User, error)
	AddMember(ctx context.Context, req AddMemberRequest) error
	SetPreference(ctx context.Context, req SetPreferenceRequest) error

	// GetNotificationRecipients resolves owner and org members for a project,
	// drops users that opted out of notificationType and dedups by user id.
	GetNotificationRecipients(ctx context.Context, projectID snowflake.ID, notificationType string) ([]Recipient, error)
}

var (
	ErrProjectNotFound = errors.New("project_not_found")
	ErrInvalidProject  = errors.New("invalid_project")
	ErrInvalidRequest  = errors.New("invalid_request")
	ErrUserExists      = errors.New("user_exists")
)
