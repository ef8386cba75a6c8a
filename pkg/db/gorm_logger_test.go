package db

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
	gormlogger "gorm.io/gorm/logger"
)

func observeGlobal(t *testing.T) *observer.ObservedLogs {
	t.Helper()
	core, logs := observer.New(zapcore.DebugLevel)
	restore := zap.ReplaceGlobals(zap.New(core))
	t.Cleanup(restore)
	return logs
}

func TestDescribeSQL(t *testing.T) {
	cases := []struct {
		sql   string
		op    string
		table string
	}{
		{sql: `SELECT * FROM "projects" WHERE id = $1`, op: "SELECT", table: "projects"},
		{sql: "INSERT INTO `notifications` (`id`) VALUES (?)", op: "INSERT", table: "notifications"},
		{sql: `UPDATE suspension_records SET unsuspended_at = ?`, op: "UPDATE", table: "suspension_records"},
		{sql: `DELETE FROM usage_buckets WHERE bucket_start < ?`, op: "DELETE", table: "usage_buckets"},
		{sql: `WITH recent AS (SELECT id FROM audit_logs) SELECT * FROM recent`, op: "SELECT", table: "audit_logs"},
		{sql: `VACUUM`, op: "UNKNOWN", table: ""},
	}

	for _, tc := range cases {
		op, table := describeSQL(tc.sql)
		assert.Equal(t, tc.op, op, tc.sql)
		assert.Equal(t, tc.table, table, tc.sql)
	}
}

func TestTraceLevels(t *testing.T) {
	logs := observeGlobal(t)
	l := NewLogger(LoggerConfig{Level: gormlogger.Warn, SlowThreshold: 100 * time.Millisecond})
	query := func() (string, int64) { return "SELECT * FROM projects", 1 }
	ctx := context.Background()

	l.Trace(ctx, time.Now(), query, nil)
	assert.Equal(t, 0, logs.Len(), "fast queries stay quiet at warn")

	l.Trace(ctx, time.Now().Add(-time.Second), query, nil)
	l.Trace(ctx, time.Now(), query, errors.New("boom"))
	l.Trace(ctx, time.Now(), query, context.Canceled)
	l.Trace(ctx, time.Now(), query, gormlogger.ErrRecordNotFound)

	entries := logs.AllUntimed()
	require.Len(t, entries, 3)
	assert.Equal(t, zapcore.WarnLevel, entries[0].Level)
	assert.Equal(t, true, entries[0].ContextMap()["slow"])
	assert.Equal(t, "projects", entries[0].ContextMap()["table"])
	assert.Equal(t, zapcore.ErrorLevel, entries[1].Level)
	assert.Equal(t, zapcore.WarnLevel, entries[2].Level)
}

func TestTraceSilent(t *testing.T) {
	logs := observeGlobal(t)
	l := NewLogger(DefaultLoggerConfig()).LogMode(gormlogger.Silent)

	called := false
	l.Trace(context.Background(), time.Now(), func() (string, int64) {
		called = true
		return "SELECT 1", 0
	}, errors.New("boom"))

	assert.False(t, called)
	assert.Equal(t, 0, logs.Len())
}
