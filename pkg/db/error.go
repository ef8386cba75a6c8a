package db

import (
	"errors"
	"strings"

	mysqldriver "github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
)

const (
	pgUniqueViolation      = "23505"
	pgSerializationFailure = "40001"
	pgLockNotAvailable     = "55P03"

	mysqlDuplicateEntry  = 1062
	mysqlLockWaitTimeout = 1205
)

func IsDuplicateKeyErr(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	if HasPGCode(err, pgUniqueViolation) {
		return true
	}

	if hasMySQLCode(err, mysqlDuplicateEntry) {
		return true
	}

	msg := err.Error()
	// sqlite reports constraint violations as text only
	if strings.Contains(msg, "UNIQUE constraint failed") {
		return true
	}
	return strings.Contains(msg, "duplicate key value violates unique constraint")
}

// IsSerializationFailure reports whether err is a postgres serialization conflict.
func IsSerializationFailure(err error) bool {
	return HasPGCode(err, pgSerializationFailure)
}

// IsLockNotAvailable reports whether err is a NOWAIT or lock timeout failure.
func IsLockNotAvailable(err error) bool {
	return HasPGCode(err, pgLockNotAvailable) || hasMySQLCode(err, mysqlLockWaitTimeout)
}

func HasPGCode(err error, code string) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == code
	}
	return false
}

func hasMySQLCode(err error, code uint16) bool {
	var myErr *mysqldriver.MySQLError
	if errors.As(err, &myErr) {
		return myErr.Number == code
	}
	return false
}
