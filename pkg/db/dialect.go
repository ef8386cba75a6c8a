package db

import (
	"fmt"
	"net"
	"net/url"
	"strings"
	"time"

	"github.com/glebarez/sqlite"
	mysqldriver "github.com/go-sql-driver/mysql"
	"github.com/smallbiznis/tenantguard/internal/config"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

const (
	TypePostgres = "postgres"
	TypeMySQL    = "mysql"
	TypeSQLite   = "sqlite"
)

// DSN renders the connection string for the configured database type.
func DSN(cfg config.Config) (string, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.DBType)) {
	case TypePostgres:
		u := url.URL{
			Scheme: "postgres",
			User:   url.UserPassword(cfg.DBUser, cfg.DBPassword),
			Host:   net.JoinHostPort(cfg.DBHost, cfg.DBPort),
			Path:   "/" + cfg.DBName,
		}
		q := u.Query()
		q.Set("sslmode", defaultString(cfg.DBSSLMode, "disable"))
		q.Set("TimeZone", "UTC")
		u.RawQuery = q.Encode()
		return u.String(), nil
	case TypeMySQL:
		mc := mysqldriver.NewConfig()
		mc.User = cfg.DBUser
		mc.Passwd = cfg.DBPassword
		mc.Net = "tcp"
		mc.Addr = net.JoinHostPort(cfg.DBHost, cfg.DBPort)
		mc.DBName = cfg.DBName
		mc.ParseTime = true
		mc.Loc = time.UTC
		mc.Params = map[string]string{"charset": "utf8mb4"}
		return mc.FormatDSN(), nil
	case TypeSQLite:
		name := defaultString(cfg.DBName, "tenantguard.db")
		// foreign keys are off by default in sqlite
		return name + "?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)", nil
	default:
		return "", fmt.Errorf("unsupported database type %q", cfg.DBType)
	}
}

func Dialect(cfg config.Config) (gorm.Dialector, error) {
	dsn, err := DSN(cfg)
	if err != nil {
		return nil, err
	}
	switch strings.ToLower(strings.TrimSpace(cfg.DBType)) {
	case TypePostgres:
		return postgres.Open(dsn), nil
	case TypeMySQL:
		return mysql.Open(dsn), nil
	default:
		return sqlite.Open(dsn), nil
	}
}

func defaultString(v, fallback string) string {
	if strings.TrimSpace(v) == "" {
		return fallback
	}
	return v
}
