package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

type Severity string

const (
	SeverityNone     Severity = "none"
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
	SeveritySevere   Severity = "severe"
)

type Action string

const (
	ActionNone       Action = "none"
	ActionWarning    Action = "warning"
	ActionSuspension Action = "suspension"
)

type Kind string

const (
	KindSpike     Kind = "spike"
	KindErrorRate Kind = "error_rate"
)

type ConfigSource string

const (
	SourceProject ConfigSource = "project"
	SourceDefault ConfigSource = "default"
)

// SpikeDetectionConfig overrides the global spike defaults for one project.
type SpikeDetectionConfig struct {
	ID                  snowflake.ID `gorm:"primaryKey" json:"id"`
	ProjectID           snowflake.ID `gorm:"not null;uniqueIndex" json:"project_id"`
	ThresholdMultiplier float64      `gorm:"not null" json:"threshold_multiplier"`
	WindowSeconds       int64        `gorm:"not null" json:"window_seconds"`
	BaselineSeconds     int64        `gorm:"not null" json:"baseline_seconds"`
	MinUsageThreshold   int64        `gorm:"not null" json:"min_usage_threshold"`
	Action              Action       `gorm:"type:text;not null" json:"action"`
	Enabled             bool         `gorm:"not null" json:"enabled"`
	CreatedAt           time.Time    `gorm:"not null" json:"created_at"`
	UpdatedAt           time.Time    `gorm:"not null" json:"updated_at"`
}

func (SpikeDetectionConfig) TableName() string { return "spike_detection_configs" }

// ErrorRateConfig overrides the global error-rate defaults for one project.
type ErrorRateConfig struct {
	ID                      snowflake.ID `gorm:"primaryKey" json:"id"`
	ProjectID               snowflake.ID `gorm:"not null;uniqueIndex" json:"project_id"`
	ErrorRateThreshold      float64      `gorm:"not null" json:"error_rate_threshold"`
	WindowSeconds           int64        `gorm:"not null" json:"window_seconds"`
	MinRequestsForDetection int64        `gorm:"not null" json:"min_requests_for_detection"`
	Action                  Action       `gorm:"type:text;not null" json:"action"`
	Enabled                 bool         `gorm:"not null" json:"enabled"`
	CreatedAt               time.Time    `gorm:"not null" json:"created_at"`
	UpdatedAt               time.Time    `gorm:"not null" json:"updated_at"`
}

func (ErrorRateConfig) TableName() string { return "error_rate_configs" }

// SpikeConfig is the effective spike configuration for one evaluation.
type SpikeConfig struct {
	ThresholdMultiplier float64       `json:"threshold_multiplier"`
	Window              time.Duration `json:"window"`
	BaselinePeriod      time.Duration `json:"baseline_period"`
	MinUsageThreshold   int64         `json:"min_usage_threshold"`
	Action              Action        `json:"action"`
	Enabled             bool          `json:"enabled"`
	Source              ConfigSource  `json:"source"`
}

// ErrorRateConfigValue is the effective error-rate configuration for one evaluation.
type ErrorRateConfigValue struct {
	ErrorRateThreshold      float64       `json:"error_rate_threshold"`
	Window                  time.Duration `json:"window"`
	MinRequestsForDetection int64         `json:"min_requests_for_detection"`
	Action                  Action        `json:"action"`
	Enabled                 bool          `json:"enabled"`
	Source                  ConfigSource  `json:"source"`
}

type SpikeInput struct {
	Current  int64   `json:"current"`
	Baseline float64 `json:"baseline"`
}

type ErrorRateInput struct {
	Errors int64 `json:"errors"`
	Total  int64 `json:"total"`
}

// Result is a pure classification. Detectors never mutate state.
type Result struct {
	Kind              Kind     `json:"kind"`
	Detected          bool     `json:"detected"`
	Severity          Severity `json:"severity"`
	RecommendedAction Action   `json:"recommended_action"`
	// Ratio is current/baseline for spikes and the error percentage for error rate.
	Ratio  float64 `json:"ratio"`
	Reason string  `json:"reason"`
}

func (r Result) Details() map[string]any {
	return map[string]any{
		"kind":               string(r.Kind),
		"detected":           r.Detected,
		"severity":           string(r.Severity),
		"recommended_action": string(r.RecommendedAction),
		"ratio":              r.Ratio,
		"reason":             r.Reason,
	}
}
