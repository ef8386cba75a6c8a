package migration

import (
	"io/fs"
	"strings"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	suspensiondomain "github.com/smallbiznis/tenantguard/internal/suspension/domain"
	"github.com/smallbiznis/tenantguard/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEmbeddedMigrationsArePaired(t *testing.T) {
	entries, err := fs.ReadDir(embeddedMigrations, migrationsDir)
	require.NoError(t, err)

	ups, downs := 0, 0
	for _, entry := range entries {
		switch {
		case strings.HasSuffix(entry.Name(), ".up.sql"):
			ups++
		case strings.HasSuffix(entry.Name(), ".down.sql"):
			downs++
		}
	}
	assert.Positive(t, ups)
	assert.Equal(t, ups, downs)

	initSQL, err := fs.ReadFile(embeddedMigrations, migrationsDir+"/000001_init.up.sql")
	require.NoError(t, err)
	assert.Contains(t, string(initSQL), "ux_suspension_records_active")
	assert.Contains(t, string(initSQL), "WHERE unsuspended_at IS NULL")
}

func TestAutoMigrateEnforcesOneActiveSuspension(t *testing.T) {
	db := testutil.OpenDB(t)
	require.NoError(t, AutoMigrate(db))

	now := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)
	record := func(id int64) *suspensiondomain.SuspensionRecord {
		return &suspensiondomain.SuspensionRecord{
			ID:          snowflake.ID(id),
			ProjectID:   snowflake.ID(7),
			Source:      suspensiondomain.SourceManual,
			Summary:     "manual",
			SuspendedBy: "ops",
			SuspendedAt: now,
		}
	}

	require.NoError(t, db.Create(record(1)).Error)
	assert.Error(t, db.Create(record(2)).Error)

	require.NoError(t, db.Model(&suspensiondomain.SuspensionRecord{}).
		Where("id = ?", 1).
		Update("unsuspended_at", now.Add(time.Hour)).Error)
	assert.NoError(t, db.Create(record(3)).Error)
}
