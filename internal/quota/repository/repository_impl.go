package repository

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/tenantguard/internal/quota/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Find(ctx context.Context, db *gorm.DB, projectID snowflake.ID, capType domain.CapType) (*domain.Quota, error) {
	var quota domain.Quota
	err := db.WithContext(ctx).
		Where("project_id = ? AND cap_type = ?", projectID, capType).
		Take(&quota).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &quota, nil
}

func (r *repo) ListByProject(ctx context.Context, db *gorm.DB, projectID snowflake.ID) ([]domain.Quota, error) {
	var quotas []domain.Quota
	err := db.WithContext(ctx).
		Where("project_id = ?", projectID).
		Order("cap_type ASC").
		Find(&quotas).Error
	if err != nil {
		return nil, err
	}
	return quotas, nil
}

func (r *repo) Upsert(ctx context.Context, db *gorm.DB, quota *domain.Quota) error {
	return db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "project_id"}, {Name: "cap_type"}},
		DoUpdates: clause.AssignmentColumns([]string{"cap_value", "updated_at"}),
	}).Create(quota).Error
}

func (r *repo) InsertMissing(ctx context.Context, db *gorm.DB, quota *domain.Quota) error {
	return db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "project_id"}, {Name: "cap_type"}},
		DoNothing: true,
	}).Create(quota).Error
}

// LockProject row-locks the owning project inside tx. It reports false when
// the project does not exist.
func (r *repo) LockProject(ctx context.Context, tx *gorm.DB, projectID snowflake.ID) (bool, error) {
	var ids []snowflake.ID
	err := tx.WithContext(ctx).
		Table("projects").
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", projectID).
		Pluck("id", &ids).Error
	if err != nil {
		return false, err
	}
	return len(ids) > 0, nil
}
