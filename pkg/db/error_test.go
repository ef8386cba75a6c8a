package db

import (
	"errors"
	"fmt"
	"testing"

	mysqldriver "github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"gorm.io/gorm"
)

func TestIsDuplicateKeyErr(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want bool
	}{
		{name: "nil", err: nil, want: false},
		{name: "gorm", err: fmt.Errorf("insert: %w", gorm.ErrDuplicatedKey), want: true},
		{name: "pgconn", err: &pgconn.PgError{Code: "23505"}, want: true},
		{name: "sqlite", err: errors.New("UNIQUE constraint failed: suspension_records.project_id"), want: true},
		{name: "mysql", err: fmt.Errorf("insert: %w", &mysqldriver.MySQLError{Number: 1062}), want: true},
		{name: "mysql text only", err: errors.New("Error 1062: Duplicate entry"), want: false},
		{name: "other", err: errors.New("boom"), want: false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, IsDuplicateKeyErr(tc.err))
		})
	}
}

func TestPGCodeHelpers(t *testing.T) {
	assert.True(t, IsSerializationFailure(&pgconn.PgError{Code: "40001"}))
	assert.True(t, IsLockNotAvailable(fmt.Errorf("wrap: %w", &pgconn.PgError{Code: "55P03"})))
	assert.True(t, IsLockNotAvailable(&mysqldriver.MySQLError{Number: 1205}))
	assert.False(t, IsLockNotAvailable(errors.New("55P03")))
}
