package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

type Source string

const (
	SourceQuota     Source = "quota"
	SourceSpike     Source = "spike"
	SourceErrorRate Source = "error_rate"
	SourceManual    Source = "manual"
	// SourceAutomatic marks a resolution raised by the system rather than an operator.
	SourceAutomatic Source = "automatic"
)

type OverrideAction string

const (
	OverrideUnsuspend    OverrideAction = "UNSUSPEND"
	OverrideIncreaseCaps OverrideAction = "INCREASE_CAPS"
	OverrideBoth         OverrideAction = "BOTH"
)

func (a OverrideAction) Unsuspends() bool {
	return a == OverrideUnsuspend || a == OverrideBoth
}

func (a OverrideAction) ChangesCaps() bool {
	return a == OverrideIncreaseCaps || a == OverrideBoth
}

// Reason describes what triggered a suspension.
type Reason struct {
	CapType       string         `json:"cap_type,omitempty"`
	CurrentValue  int64          `json:"current_value"`
	LimitExceeded int64          `json:"limit_exceeded"`
	Details       map[string]any `json:"details,omitempty"`
}

// SuspensionRecord is open while UnsuspendedAt is nil. A project has at most
// one open record.
type SuspensionRecord struct {
	ID              snowflake.ID      `gorm:"primaryKey" json:"id"`
	ProjectID       snowflake.ID      `gorm:"not null;index" json:"project_id"`
	Source          Source            `gorm:"type:text;not null" json:"source"`
	Summary         string            `gorm:"type:text;not null" json:"summary"`
	CapType         *string           `gorm:"type:text" json:"cap_type,omitempty"`
	CurrentValue    int64             `gorm:"not null;default:0" json:"current_value"`
	LimitExceeded   int64             `gorm:"not null;default:0" json:"limit_exceeded"`
	Details         datatypes.JSONMap `json:"details,omitempty"`
	SuspendedBy     string            `gorm:"type:text;not null" json:"suspended_by"`
	SuspendedAt     time.Time         `gorm:"not null" json:"suspended_at"`
	UnsuspendedAt   *time.Time        `json:"unsuspended_at,omitempty"`
	UnsuspendedBy   *string           `gorm:"type:text" json:"unsuspended_by,omitempty"`
	UnsuspendReason *string           `gorm:"type:text" json:"unsuspend_reason,omitempty"`
}

func (SuspensionRecord) TableName() string { return "suspension_records" }

func (r SuspensionRecord) Active() bool {
	return r.UnsuspendedAt == nil
}

// OverrideRecord is written once per manual intervention and never updated.
type OverrideRecord struct {
	ID             snowflake.ID      `gorm:"primaryKey" json:"id"`
	ProjectID      snowflake.ID      `gorm:"not null;index" json:"project_id"`
	Action         OverrideAction    `gorm:"type:text;not null" json:"action"`
	Reason         string            `gorm:"type:text;not null" json:"reason"`
	Notes          *string           `gorm:"type:text" json:"notes,omitempty"`
	PreviousCaps   datatypes.JSONMap `gorm:"not null" json:"previous_caps"`
	NewCaps        datatypes.JSONMap `json:"new_caps,omitempty"`
	PreviousStatus string            `gorm:"type:text;not null" json:"previous_status"`
	NewStatus      string            `gorm:"type:text;not null" json:"new_status"`
	PerformedBy    string            `gorm:"type:text;not null" json:"performed_by"`
	PerformedAt    time.Time         `gorm:"not null" json:"performed_at"`
	IPAddress      *string           `gorm:"type:text" json:"ip_address,omitempty"`
}

func (OverrideRecord) TableName() string { return "override_records" }
