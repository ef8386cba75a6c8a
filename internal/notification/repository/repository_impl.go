package repository

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/tenantguard/internal/notification/domain"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const priorityRankExpr = `CASE priority
	WHEN 'critical' THEN 4
	WHEN 'high' THEN 3
	WHEN 'medium' THEN 2
	WHEN 'low' THEN 1
	ELSE 0 END`

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, n *domain.Notification) error {
	return db.WithContext(ctx).Create(n).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Notification, error) {
	var n domain.Notification
	err := db.WithContext(ctx).Where("id = ?", id).Take(&n).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &n, nil
}

func (r *repo) List(ctx context.Context, db *gorm.DB, filter domain.ListFilter) ([]*domain.Notification, error) {
	var items []*domain.Notification
	stmt := db.WithContext(ctx).Model(&domain.Notification{})
	if filter.ProjectID != nil {
		stmt = stmt.Where("project_id = ?", *filter.ProjectID)
	}
	if filter.Status != "" {
		stmt = stmt.Where("status = ?", filter.Status)
	}
	if filter.Cursor != nil {
		stmt = stmt.Where("(created_at < ?) OR (created_at = ? AND id < ?)",
			filter.Cursor.CreatedAt,
			filter.Cursor.CreatedAt,
			filter.Cursor.ID,
		)
	}
	stmt = stmt.Order("created_at desc, id desc")
	if filter.Limit > 0 {
		stmt = stmt.Limit(filter.Limit + 1)
	}
	if err := stmt.Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repo) ListCandidates(ctx context.Context, db *gorm.DB, maxAttempts int, limit int) ([]domain.Notification, error) {
	var items []domain.Notification
	err := db.WithContext(ctx).
		Where("status = ? OR (status = ? AND attempts < ?)", domain.StatusPending, domain.StatusRetrying, maxAttempts).
		Order(priorityRankExpr + " DESC").
		Order("created_at ASC").
		Order("id ASC").
		Limit(limit).
		Find(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repo) Claim(ctx context.Context, db *gorm.DB, id snowflake.ID, now time.Time) (bool, error) {
	res := db.WithContext(ctx).Exec(
		`UPDATE notifications
		SET status = ?, attempts = attempts + 1, processing_started_at = ?, updated_at = ?
		WHERE id = ? AND status IN (?, ?)`,
		domain.StatusProcessing,
		now,
		now,
		id,
		domain.StatusPending,
		domain.StatusRetrying,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *repo) MarkDelivered(ctx context.Context, db *gorm.DB, id snowflake.ID, results datatypes.JSONSlice[domain.ChannelResult], now time.Time) error {
	return db.WithContext(ctx).Exec(
		`UPDATE notifications
		SET status = ?, delivered_at = ?, error_message = NULL, delivery_results = ?, updated_at = ?
		WHERE id = ? AND status = ?`,
		domain.StatusDelivered,
		now,
		results,
		now,
		id,
		domain.StatusProcessing,
	).Error
}

func (r *repo) MarkFailed(ctx context.Context, db *gorm.DB, id snowflake.ID, message string, results datatypes.JSONSlice[domain.ChannelResult], now time.Time) error {
	return db.WithContext(ctx).Exec(
		`UPDATE notifications
		SET status = ?, error_message = ?, delivery_results = ?, updated_at = ?
		WHERE id = ? AND status = ?`,
		domain.StatusFailed,
		message,
		results,
		now,
		id,
		domain.StatusProcessing,
	).Error
}

func (r *repo) RetryFailed(ctx context.Context, db *gorm.DB, maxAttempts int, now time.Time) (int64, error) {
	res := db.WithContext(ctx).Exec(
		`UPDATE notifications
		SET status = ?, updated_at = ?
		WHERE status = ? AND attempts < ?`,
		domain.StatusRetrying,
		now,
		domain.StatusFailed,
		maxAttempts,
	)
	return res.RowsAffected, res.Error
}

func (r *repo) CountTerminalFailures(ctx context.Context, db *gorm.DB, maxAttempts int) (int64, error) {
	var count int64
	err := db.WithContext(ctx).Model(&domain.Notification{}).
		Where("status = ? AND attempts >= ?", domain.StatusFailed, maxAttempts).
		Count(&count).Error
	return count, err
}

func (r *repo) ListTerminalFailures(ctx context.Context, db *gorm.DB, maxAttempts int, limit int) ([]domain.Notification, error) {
	var items []domain.Notification
	err := db.WithContext(ctx).
		Where("status = ? AND attempts >= ?", domain.StatusFailed, maxAttempts).
		Order("updated_at DESC").
		Order("id DESC").
		Limit(limit).
		Find(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repo) RecoverStale(ctx context.Context, db *gorm.DB, startedBefore time.Time, message string, now time.Time) (int64, error) {
	res := db.WithContext(ctx).Exec(
		`UPDATE notifications
		SET status = ?, error_message = ?, updated_at = ?
		WHERE status = ? AND processing_started_at < ?`,
		domain.StatusFailed,
		message,
		now,
		domain.StatusProcessing,
		startedBefore,
	)
	return res.RowsAffected, res.Error
}
