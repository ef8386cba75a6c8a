package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds application configuration.
type Config struct {
	AppName     string
	AppVersion  string
	Environment string
	HTTPAddr    string
	NodeID      int64

	Logger LoggerConfig

	DBType            string
	DBHost            string
	DBPort            string
	DBName            string
	DBUser            string
	DBPassword        string
	DBSSLMode         string
	DBMaxIdleConn     int
	DBMaxOpenConn     int
	DBConnMaxLifetime int
	DBConnMaxIdleTime int
	DBMetricsEnabled  bool

	Redis        RedisConfig
	Email        EmailConfig
	Notification NotificationConfig
	Enforcement  EnforcementConfig
	Scheduler    SchedulerConfig
	Otel         OtelConfig

	DetectionConfigPath string
}

type LoggerConfig struct {
	Level  string
	Format string
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type EmailConfig struct {
	SMTPHost     string
	SMTPPort     int
	SMTPUsername string
	SMTPPassword string
	SMTPFrom     string
}

type NotificationConfig struct {
	BatchSize         int
	PollInterval      time.Duration
	MaxAttempts       int
	Concurrency       int
	RecoveryThreshold time.Duration
}

type EnforcementConfig struct {
	LockTTL         time.Duration
	EvaluationRate  float64
	EvaluationBurst int
}

type SchedulerConfig struct {
	Enabled                  bool
	EnforcementSweepSpec     string
	NotificationRetrySpec    string
	NotificationRecoverySpec string
	JobTimeout               time.Duration
}

// OtelConfig controls the OpenTelemetry trace and metric pipelines. With
// Enabled false or an empty Endpoint, spans are still created so logs carry
// trace ids, but nothing is exported.
type OtelConfig struct {
	Enabled        bool
	Endpoint       string
	Protocol       string
	SamplingRatio  float64
	MetricInterval time.Duration
}

// Load loads configuration from environment variables and .env file.
func Load() Config {
	_ = godotenv.Load()

	return Config{
		AppName:     getenv("APP_SERVICE", "tenantguard"),
		AppVersion:  getenv("APP_VERSION", "0.1.0"),
		Environment: getenv("ENVIRONMENT", "development"),
		HTTPAddr:    getenv("HTTP_ADDR", ":8080"),
		NodeID:      getenvInt64("SNOWFLAKE_NODE_ID", 1),
		Logger: LoggerConfig{
			Level:  strings.ToLower(getenv("LOG_LEVEL", "info")),
			Format: strings.ToLower(getenv("LOG_FORMAT", "json")),
		},
		DBType:            getenv("DATABASE_TYPE", "postgres"),
		DBHost:            getenv("DATABASE_HOST", "localhost"),
		DBPort:            getenv("DATABASE_PORT", "5432"),
		DBName:            getenv("DATABASE_NAME", "tenantguard"),
		DBUser:            getenv("DATABASE_USER", "postgres"),
		DBPassword:        getenv("DATABASE_PASSWORD", ""),
		DBSSLMode:         getenv("DATABASE_SSLMODE", "disable"),
		DBMaxIdleConn:     int(getenvInt64("DATABASE_MAX_IDLE_CONN", 10)),
		DBMaxOpenConn:     int(getenvInt64("DATABASE_MAX_OPEN_CONN", 50)),
		DBConnMaxLifetime: int(getenvInt64("DATABASE_CONN_MAX_LIFETIME", 300)),
		DBConnMaxIdleTime: int(getenvInt64("DATABASE_CONN_MAX_IDLE_TIME", 60)),
		DBMetricsEnabled:  getenvBool("DATABASE_METRICS_ENABLED", true),
		Redis: RedisConfig{
			Addr:     strings.TrimSpace(getenv("REDIS_ADDR", "localhost:6379")),
			Password: strings.TrimSpace(getenv("REDIS_PASSWORD", "")),
			DB:       int(getenvInt64("REDIS_DB", 0)),
		},
		Email: EmailConfig{
			SMTPHost:     getenv("SMTP_HOST", "localhost"),
			SMTPPort:     int(getenvInt64("SMTP_PORT", 1025)),
			SMTPUsername: getenv("SMTP_USERNAME", ""),
			SMTPPassword: getenv("SMTP_PASSWORD", ""),
			SMTPFrom:     getenv("SMTP_FROM", "no-reply@tenantguard.local"),
		},
		Notification: NotificationConfig{
			BatchSize:         int(getenvInt64("NOTIFICATION_BATCH_SIZE", 50)),
			PollInterval:      getenvDuration("NOTIFICATION_POLL_INTERVAL", 5*time.Second),
			MaxAttempts:       int(getenvInt64("NOTIFICATION_MAX_ATTEMPTS", 3)),
			Concurrency:       int(getenvInt64("NOTIFICATION_CONCURRENCY", 4)),
			RecoveryThreshold: getenvDuration("NOTIFICATION_RECOVERY_THRESHOLD", 15*time.Minute),
		},
		Enforcement: EnforcementConfig{
			LockTTL:         getenvDuration("ENFORCEMENT_LOCK_TTL", 30*time.Second),
			EvaluationRate:  getenvFloat("ENFORCEMENT_EVALUATION_RATE", 1),
			EvaluationBurst: int(getenvInt64("ENFORCEMENT_EVALUATION_BURST", 5)),
		},
		Scheduler: SchedulerConfig{
			Enabled:                  getenvBool("SCHEDULER_ENABLED", true),
			EnforcementSweepSpec:     getenv("ENFORCEMENT_SWEEP_SCHEDULE", "@every 5m"),
			NotificationRetrySpec:    getenv("NOTIFICATION_RETRY_SCHEDULE", "@every 1m"),
			NotificationRecoverySpec: getenv("NOTIFICATION_RECOVERY_SCHEDULE", "@every 10m"),
			JobTimeout:               getenvDuration("SCHEDULER_JOB_TIMEOUT", 2*time.Minute),
		},
		Otel: OtelConfig{
			Enabled:        getenvBool("OTEL_ENABLED", false),
			Endpoint:       strings.TrimSpace(getenv("OTEL_EXPORTER_OTLP_ENDPOINT", "")),
			Protocol:       strings.ToLower(strings.TrimSpace(getenv("OTEL_EXPORTER_OTLP_PROTOCOL", "grpc"))),
			SamplingRatio:  getenvFloat("OTEL_SAMPLING_RATIO", 0.1),
			MetricInterval: getenvDuration("OTEL_METRIC_EXPORT_INTERVAL", 30*time.Second),
		},
		DetectionConfigPath: strings.TrimSpace(getenv("DETECTION_CONFIG_PATH", "")),
	}
}

func (c Config) IsProduction() bool {
	return strings.EqualFold(strings.TrimSpace(c.Environment), "production")
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvBool(key string, def bool) bool {
	value := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	if value == "" {
		return def
	}
	switch value {
	case "1", "true", "yes", "y", "on":
		return true
	case "0", "false", "no", "n", "off":
		return false
	default:
		return def
	}
}

func getenvInt64(key string, def int64) int64 {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return def
	}
	return parsed
}

func getenvFloat(key string, def float64) float64 {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return def
	}
	return parsed
}

func getenvDuration(key string, def time.Duration) time.Duration {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := time.ParseDuration(value)
	if err != nil || parsed <= 0 {
		return def
	}
	return parsed
}
