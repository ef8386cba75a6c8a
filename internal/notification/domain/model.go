package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

type Type string

const (
	TypeProjectSuspended   Type = "project_suspended"
	TypeProjectUnsuspended Type = "project_unsuspended"
	TypeSpikeDetected      Type = "spike_detected"
	TypeErrorRateDetected  Type = "error_rate_detected"
	TypeQuotaOverride      Type = "quota_override"
)

func (t Type) Valid() bool {
	switch t {
	case TypeProjectSuspended, TypeProjectUnsuspended, TypeSpikeDetected, TypeErrorRateDetected, TypeQuotaOverride:
		return true
	}
	return false
}

type Priority string

const (
	PriorityLow      Priority = "low"
	PriorityMedium   Priority = "medium"
	PriorityHigh     Priority = "high"
	PriorityCritical Priority = "critical"
)

// Rank orders priorities for queue pickup, higher first.
func (p Priority) Rank() int {
	switch p {
	case PriorityCritical:
		return 4
	case PriorityHigh:
		return 3
	case PriorityMedium:
		return 2
	case PriorityLow:
		return 1
	}
	return 0
}

type Channel string

const (
	ChannelEmail   Channel = "email"
	ChannelInApp   Channel = "in_app"
	ChannelSMS     Channel = "sms"
	ChannelWebhook Channel = "webhook"
)

func (c Channel) Valid() bool {
	switch c {
	case ChannelEmail, ChannelInApp, ChannelSMS, ChannelWebhook:
		return true
	}
	return false
}

type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusDelivered  Status = "delivered"
	StatusFailed     Status = "failed"
	StatusRetrying   Status = "retrying"
)

const ErrNoRecipients = "No recipients found"

// RecipientResult is the outcome of one send to one recipient.
type RecipientResult struct {
	UserID    string `json:"user_id"`
	Email     string `json:"email,omitempty"`
	Success   bool   `json:"success"`
	MessageID string `json:"message_id,omitempty"`
	Error     string `json:"error,omitempty"`
}

// ChannelResult is what a channel processor reports for one notification.
type ChannelResult struct {
	Channel    Channel           `json:"channel"`
	Success    bool              `json:"success"`
	Error      string            `json:"error,omitempty"`
	Recipients []RecipientResult `json:"recipients,omitempty"`
}

type Notification struct {
	ID                  snowflake.ID                       `gorm:"primaryKey" json:"id"`
	ProjectID           snowflake.ID                       `gorm:"not null;index" json:"project_id"`
	NotificationType    Type                               `gorm:"type:text;not null" json:"notification_type"`
	Priority            Priority                           `gorm:"type:text;not null" json:"priority"`
	Subject             string                             `gorm:"type:text;not null" json:"subject"`
	Body                string                             `gorm:"type:text;not null" json:"body"`
	Data                datatypes.JSONMap                  `json:"data,omitempty"`
	Channels            datatypes.JSONSlice[Channel]       `gorm:"not null" json:"channels"`
	Status              Status                             `gorm:"type:text;not null;index:idx_notifications_status_created,priority:1" json:"status"`
	Attempts            int                                `gorm:"not null;default:0" json:"attempts"`
	ErrorMessage        *string                            `gorm:"type:text" json:"error_message,omitempty"`
	DeliveryResults     datatypes.JSONSlice[ChannelResult] `json:"delivery_results,omitempty"`
	ProcessingStartedAt *time.Time                         `json:"processing_started_at,omitempty"`
	DeliveredAt         *time.Time                         `json:"delivered_at,omitempty"`
	CreatedAt           time.Time                          `gorm:"not null;index:idx_notifications_status_created,priority:2" json:"created_at"`
	UpdatedAt           time.Time                          `gorm:"not null" json:"updated_at"`
}

func (Notification) TableName() string { return "notifications" }
