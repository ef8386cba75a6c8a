package repository

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/tenantguard/internal/suspension/domain"
	"gorm.io/gorm"
)

const activeIndexDDL = `CREATE UNIQUE INDEX IF NOT EXISTS ux_suspension_records_active
	ON suspension_records (project_id)
	WHERE unsuspended_at IS NULL`

type repo struct{}

// EnsureActiveIndex creates the partial unique index that allows one open
// record per project. MySQL has no partial indexes and relies on the project
// row lock alone.
func EnsureActiveIndex(ctx context.Context, db *gorm.DB) error {
	switch db.Dialector.Name() {
	case "postgres", "sqlite":
		return db.WithContext(ctx).Exec(activeIndexDDL).Error
	default:
		return nil
	}
}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, record *domain.SuspensionRecord) error {
	return db.WithContext(ctx).Create(record).Error
}

func (r *repo) FindActive(ctx context.Context, db *gorm.DB, projectID snowflake.ID) (*domain.SuspensionRecord, error) {
	var record domain.SuspensionRecord
	err := db.WithContext(ctx).
		Where("project_id = ? AND unsuspended_at IS NULL", projectID).
		Order("suspended_at DESC").
		Take(&record).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &record, nil
}

func (r *repo) Close(ctx context.Context, db *gorm.DB, id snowflake.ID, by string, reason string, now time.Time) (bool, error) {
	res := db.WithContext(ctx).Exec(
		`UPDATE suspension_records
		SET unsuspended_at = ?, unsuspended_by = ?, unsuspend_reason = ?
		WHERE id = ? AND unsuspended_at IS NULL`,
		now,
		by,
		reason,
		id,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *repo) ListByProject(ctx context.Context, db *gorm.DB, projectID snowflake.ID, limit int) ([]domain.SuspensionRecord, error) {
	var items []domain.SuspensionRecord
	stmt := db.WithContext(ctx).
		Where("project_id = ?", projectID).
		Order("suspended_at DESC").
		Order("id DESC")
	if limit > 0 {
		stmt = stmt.Limit(limit)
	}
	if err := stmt.Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repo) CountActive(ctx context.Context, db *gorm.DB, projectID snowflake.ID) (int64, error) {
	var count int64
	err := db.WithContext(ctx).Model(&domain.SuspensionRecord{}).
		Where("project_id = ? AND unsuspended_at IS NULL", projectID).
		Count(&count).Error
	return count, err
}

func (r *repo) InsertOverride(ctx context.Context, db *gorm.DB, record *domain.OverrideRecord) error {
	return db.WithContext(ctx).Create(record).Error
}

func (r *repo) ListOverrides(ctx context.Context, db *gorm.DB, projectID snowflake.ID, limit int) ([]domain.OverrideRecord, error) {
	var items []domain.OverrideRecord
	stmt := db.WithContext(ctx).
		Where("project_id = ?", projectID).
		Order("performed_at DESC").
		Order("id DESC")
	if limit > 0 {
		stmt = stmt.Limit(limit)
	}
	if err := stmt.Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}
