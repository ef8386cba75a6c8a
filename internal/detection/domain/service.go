package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type UpsertSpikeConfigRequest struct {
	ProjectID           snowflake.ID `json:"project_id" validate:"required"`
	ThresholdMultiplier float64      `json:"threshold_multiplier" validate:"gt=1"`
	WindowSeconds       int64        `json:"window_seconds" validate:"gt=0"`
	BaselineSeconds     int64        `json:"baseline_seconds" validate:"gtefield=WindowSeconds"`
	MinUsageThreshold   int64        `json:"min_usage_threshold" validate:"gte=0"`
	Action              Action       `json:"action" validate:"required,oneof=warning suspension none"`
	Enabled             bool         `json:"enabled"`
}

type UpsertErrorRateConfigRequest struct {
	ProjectID               snowflake.ID `json:"project_id" validate:"required"`
	ErrorRateThreshold      float64      `json:"error_rate_threshold" validate:"gt=0,lte=100"`
	WindowSeconds           int64        `json:"window_seconds" validate:"gt=0"`
	MinRequestsForDetection int64        `json:"min_requests_for_detection" validate:"gte=0"`
	Action                  Action       `json:"action" validate:"required,oneof=warning suspension none"`
	Enabled                 bool         `json:"enabled"`
}

type Repository interface {
	FindSpikeConfig(ctx context.Context, db *gorm.DB, projectID snowflake.ID) (*SpikeDetectionConfig, error)
	FindErrorRateConfig(ctx context.Context, db *gorm.DB, projectID snowflake.ID) (*ErrorRateConfig, error)
	UpsertSpikeConfig(ctx context.Context, db *gorm.DB, cfg *SpikeDetectionConfig) error
	UpsertErrorRateConfig(ctx context.Context, db *gorm.DB, cfg *ErrorRateConfig) error
}

type Service interface {
	// SpikeConfig resolves the project override, falling back to defaults.
	SpikeConfig(ctx context.Context, projectID snowflake.ID) (SpikeConfig, error)
	ErrorRateConfig(ctx context.Context, projectID snowflake.ID) (ErrorRateConfigValue, error)

	EvaluateSpike(ctx context.Context, projectID snowflake.ID, in SpikeInput) (Result, error)
	EvaluateErrorRate(ctx context.Context, projectID snowflake.ID, in ErrorRateInput) (Result, error)

	UpsertSpikeConfig(ctx context.Context, req UpsertSpikeConfigRequest) (*SpikeDetectionConfig, error)
	UpsertErrorRateConfig(ctx context.Context, req UpsertErrorRateConfigRequest) (*ErrorRateConfig, error)
}

var (
	ErrInvalidProject = errors.New("invalid_project")
	ErrInvalidRequest = errors.New("invalid_request")
)
