package repository

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/tenantguard/internal/project/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, project *domain.Project) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO projects (id, org_id, name, status, owner_id, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		project.ID,
		project.OrgID,
		project.Name,
		project.Status,
		project.OwnerID,
		project.CreatedAt,
		project.UpdatedAt,
	).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Project, error) {
	var project domain.Project
	err := db.WithContext(ctx).
		Where("id = ?", id).
		Take(&project).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &project, nil
}

// FindByIDForUpdate must run inside a transaction. It row-locks the project so
// status transitions for the same project are serialized.
func (r *repo) FindByIDForUpdate(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Project, error) {
	var project domain.Project
	err := db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", id).
		Take(&project).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &project, nil
}

func (r *repo) UpdateStatus(ctx context.Context, db *gorm.DB, id snowflake.ID, status domain.Status, now time.Time) error {
	return db.WithContext(ctx).Exec(
		`UPDATE projects SET status = ?, updated_at = ? WHERE id = ?`,
		status,
		now,
		id,
	).Error
}

func (r *repo) ListIDsByStatus(ctx context.Context, db *gorm.DB, status domain.Status, afterID snowflake.ID, limit int) ([]snowflake.ID, error) {
	var ids []snowflake.ID
	err := db.WithContext(ctx).Raw(
		`SELECT id FROM projects
		WHERE status = ? AND id > ?
		ORDER BY id ASC
		LIMIT ?`,
		status,
		afterID,
		limit,
	).Scan(&ids).Error
	if err != nil {
		return nil, err
	}
	return ids, nil
}

func (r *repo) InsertUser(ctx context.Context, db *gorm.DB, user *domain.User) error {
	return db.WithContext(ctx).Create(user).Error
}

func (r *repo) UpsertMember(ctx context.Context, db *gorm.DB, member *domain.OrganizationMember) error {
	return db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "org_id"}, {Name: "user_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"role"}),
	}).Create(member).Error
}

func (r *repo) UpsertPreference(ctx context.Context, db *gorm.DB, pref *domain.NotificationPreference) error {
	return db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}, {Name: "notification_type"}},
		DoUpdates: clause.AssignmentColumns([]string{"enabled", "updated_at"}),
	}).Create(pref).Error
}

func (r *repo) FindOwner(ctx context.Context, db *gorm.DB, projectID snowflake.ID) (*domain.Recipient, error) {
	var rows []domain.Recipient
	err := db.WithContext(ctx).Raw(
		`SELECT u.id AS user_id, u.email AS email, u.name AS name
		FROM projects p
		JOIN users u ON u.id = p.owner_id
		WHERE p.id = ?`,
		projectID,
	).Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	owner := rows[0]
	owner.Role = domain.RoleOwner
	return &owner, nil
}

func (r *repo) ListMembers(ctx context.Context, db *gorm.DB, projectID snowflake.ID) ([]domain.Recipient, error) {
	var rows []domain.Recipient
	err := db.WithContext(ctx).Raw(
		`SELECT u.id AS user_id, u.email AS email, u.name AS name, m.role AS role
		FROM projects p
		JOIN organization_members m ON m.org_id = p.org_id
		JOIN users u ON u.id = m.user_id
		WHERE p.id = ?
		ORDER BY m.created_at ASC, u.id ASC`,
		projectID,
	).Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *repo) ListOptedOutUserIDs(ctx context.Context, db *gorm.DB, notificationType string, userIDs []snowflake.ID) ([]snowflake.ID, error) {
	if len(userIDs) == 0 {
		return nil, nil
	}
	var ids []snowflake.ID
	err := db.WithContext(ctx).Raw(
		`SELECT user_id FROM notification_preferences
		WHERE notification_type = ? AND enabled = ? AND user_id IN ?`,
		notificationType,
		false,
		userIDs,
	).Scan(&ids).Error
	if err != nil {
		return nil, err
	}
	return ids, nil
}
