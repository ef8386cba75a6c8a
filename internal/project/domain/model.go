package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

type Status string

const (
	StatusActive    Status = "ACTIVE"
	StatusSuspended Status = "SUSPENDED"
)

type Project struct {
	ID        snowflake.ID `gorm:"primaryKey" json:"id"`
	OrgID     snowflake.ID `gorm:"not null;index" json:"org_id"`
	Name      string       `gorm:"type:text;not null" json:"name"`
	Status    Status       `gorm:"type:text;not null;index" json:"status"`
	OwnerID   snowflake.ID `gorm:"not null" json:"owner_id"`
	CreatedAt time.Time    `gorm:"not null" json:"created_at"`
	UpdatedAt time.Time    `gorm:"not null" json:"updated_at"`
}

func (Project) TableName() string { return "projects" }

type User struct {
	ID        snowflake.ID `gorm:"primaryKey" json:"id"`
	Email     string       `gorm:"type:text;not null;uniqueIndex" json:"email"`
	Name      *string      `gorm:"type:text" json:"name,omitempty"`
	CreatedAt time.Time    `gorm:"not null" json:"created_at"`
}

func (User) TableName() string { return "users" }

type OrganizationMember struct {
	ID        snowflake.ID `gorm:"primaryKey" json:"id"`
	OrgID     snowflake.ID `gorm:"not null;uniqueIndex:ux_org_members_org_user" json:"org_id"`
	UserID    snowflake.ID `gorm:"not null;uniqueIndex:ux_org_members_org_user" json:"user_id"`
	Role      string       `gorm:"type:text;not null" json:"role"`
	CreatedAt time.Time    `gorm:"not null" json:"created_at"`
}

func (OrganizationMember) TableName() string { return "organization_members" }

// NotificationPreference opts a user in or out of one notification type.
// A missing row means the user receives the type.
type NotificationPreference struct {
	ID               snowflake.ID `gorm:"primaryKey" json:"id"`
	UserID           snowflake.ID `gorm:"not null;uniqueIndex:ux_notification_prefs_user_type" json:"user_id"`
	NotificationType string       `gorm:"type:text;not null;uniqueIndex:ux_notification_prefs_user_type" json:"notification_type"`
	Enabled          bool         `gorm:"not null" json:"enabled"`
	UpdatedAt        time.Time    `gorm:"not null" json:"updated_at"`
}

func (NotificationPreference) TableName() string { return "notification_preferences" }

// Recipient is derived per delivery attempt and never persisted.
type Recipient struct {
	UserID snowflake.ID `json:"user_id"`
	Email  string       `json:"email"`
	Name   *string      `json:"name,omitempty"`
	Role   string       `json:"role,omitempty"`
}
