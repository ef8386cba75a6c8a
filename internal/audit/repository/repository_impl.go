package repository

import (
	"context"
	"strings"

	"github.com/smallbiznis/tenantguard/internal/audit/domain"
	"gorm.io/gorm"
)

// auditRepo only appends and reads. Entries are never updated.
type auditRepo struct{}

func Provide() domain.Repository {
	return auditRepo{}
}

func (auditRepo) Insert(ctx context.Context, db *gorm.DB, entry *domain.AuditLog) error {
	if entry == nil {
		return nil
	}
	return db.WithContext(ctx).Create(entry).Error
}

func (auditRepo) List(ctx context.Context, db *gorm.DB, filter domain.ListFilter) ([]*domain.AuditLog, error) {
	var logs []*domain.AuditLog
	err := db.WithContext(ctx).
		Model(&domain.AuditLog{}).
		Scopes(
			matching(filter),
			createdWithin(filter),
			beforeCursor(filter),
		).
		Order("created_at desc, id desc").
		Scopes(limited(filter.Limit)).
		Find(&logs).Error
	if err != nil {
		return nil, err
	}
	return logs, nil
}

func matching(filter domain.ListFilter) func(*gorm.DB) *gorm.DB {
	return func(stmt *gorm.DB) *gorm.DB {
		if filter.ProjectID != nil {
			stmt = stmt.Where("project_id = ?", *filter.ProjectID)
		}
		for column, value := range map[string]string{
			"action":      filter.Action,
			"target_type": filter.TargetType,
			"target_id":   filter.TargetID,
			"actor_type":  filter.ActorType,
		} {
			if v := strings.TrimSpace(value); v != "" {
				stmt = stmt.Where(column+" = ?", v)
			}
		}
		return stmt
	}
}

func createdWithin(filter domain.ListFilter) func(*gorm.DB) *gorm.DB {
	return func(stmt *gorm.DB) *gorm.DB {
		if filter.StartAt != nil {
			stmt = stmt.Where("created_at >= ?", filter.StartAt.UTC())
		}
		if filter.EndAt != nil {
			stmt = stmt.Where("created_at <= ?", filter.EndAt.UTC())
		}
		return stmt
	}
}

func beforeCursor(filter domain.ListFilter) func(*gorm.DB) *gorm.DB {
	return func(stmt *gorm.DB) *gorm.DB {
		if filter.Cursor == nil {
			return stmt
		}
		at := filter.Cursor.CreatedAt.UTC()
		return stmt.Where("(created_at < ?) OR (created_at = ? AND id < ?)", at, at, filter.Cursor.ID)
	}
}

// limited fetches one extra row so the caller can tell whether a next page exists.
func limited(limit int) func(*gorm.DB) *gorm.DB {
	return func(stmt *gorm.DB) *gorm.DB {
		if limit <= 0 {
			return stmt
		}
		return stmt.Limit(limit + 1)
	}
}
