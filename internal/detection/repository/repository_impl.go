package repository

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/tenantguard/internal/detection/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) FindSpikeConfig(ctx context.Context, db *gorm.DB, projectID snowflake.ID) (*domain.SpikeDetectionConfig, error) {
	var cfg domain.SpikeDetectionConfig
	err := db.WithContext(ctx).Where("project_id = ?", projectID).Take(&cfg).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (r *repo) FindErrorRateConfig(ctx context.Context, db *gorm.DB, projectID snowflake.ID) (*domain.ErrorRateConfig, error) {
	var cfg domain.ErrorRateConfig
	err := db.WithContext(ctx).Where("project_id = ?", projectID).Take(&cfg).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (r *repo) UpsertSpikeConfig(ctx context.Context, db *gorm.DB, cfg *domain.SpikeDetectionConfig) error {
	return db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "project_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"threshold_multiplier",
			"window_seconds",
			"baseline_seconds",
			"min_usage_threshold",
			"action",
			"enabled",
			"updated_at",
		}),
	}).Create(cfg).Error
}

func (r *repo) UpsertErrorRateConfig(ctx context.Context, db *gorm.DB, cfg *domain.ErrorRateConfig) error {
	return db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "project_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"error_rate_threshold",
			"window_seconds",
			"min_requests_for_detection",
			"action",
			"enabled",
			"updated_at",
		}),
	}).Create(cfg).Error
}
