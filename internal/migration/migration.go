package migration

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	auditdomain "github.com/smallbiznis/tenantguard/internal/audit/domain"
	detectiondomain "github.com/smallbiznis/tenantguard/internal/detection/domain"
	notificationdomain "github.com/smallbiznis/tenantguard/internal/notification/domain"
	projectdomain "github.com/smallbiznis/tenantguard/internal/project/domain"
	quotadomain "github.com/smallbiznis/tenantguard/internal/quota/domain"
	suspensiondomain "github.com/smallbiznis/tenantguard/internal/suspension/domain"
	suspensionrepo "github.com/smallbiznis/tenantguard/internal/suspension/repository"
	"gorm.io/gorm"
)

const migrationsDir = "migrations"

//go:embed migrations/*.sql
var embeddedMigrations embed.FS

// Models lists every persisted type, in dependency order.
func Models() []any {
	return []any{
		&projectdomain.User{},
		&projectdomain.Project{},
		&projectdomain.OrganizationMember{},
		&projectdomain.NotificationPreference{},
		&quotadomain.Quota{},
		&detectiondomain.SpikeDetectionConfig{},
		&detectiondomain.ErrorRateConfig{},
		&suspensiondomain.SuspensionRecord{},
		&suspensiondomain.OverrideRecord{},
		&notificationdomain.Notification{},
		&auditdomain.AuditLog{},
	}
}

// RunMigrations applies the embedded postgres migrations.
func RunMigrations(db *sql.DB) error {
	if db == nil {
		return errors.New("migration database handle is required")
	}

	sub, err := fs.Sub(embeddedMigrations, migrationsDir)
	if err != nil {
		return fmt.Errorf("open migrations: %w", err)
	}

	source, err := iofs.New(sub, ".")
	if err != nil {
		return fmt.Errorf("create migration source: %w", err)
	}

	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return fmt.Errorf("create migration driver: %w", err)
	}

	migrator, err := migrate.NewWithInstance("iofs", source, "postgres", driver)
	if err != nil {
		return fmt.Errorf("create migrator: %w", err)
	}

	upErr := migrator.Up()
	if upErr != nil && !errors.Is(upErr, migrate.ErrNoChange) {
		return fmt.Errorf("apply migrations: %w", upErr)
	}
	// Do not call migrator.Close here because it would close the shared *sql.DB.

	return nil
}

// AutoMigrate builds the schema from the gorm models. Used for mysql and
// sqlite, which the SQL migrations do not target.
func AutoMigrate(conn *gorm.DB) error {
	if err := conn.AutoMigrate(Models()...); err != nil {
		return fmt.Errorf("auto migrate: %w", err)
	}
	if err := suspensionrepo.EnsureActiveIndex(context.Background(), conn); err != nil {
		return fmt.Errorf("active suspension index: %w", err)
	}
	return nil
}
