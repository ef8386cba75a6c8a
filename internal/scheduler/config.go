package scheduler

import (
	"time"

	"github.com/smallbiznis/tenantguard/internal/config"
)

// Config controls job schedules and limits.
type Config struct {
	Enabled                  bool
	EnforcementSweepSpec     string
	NotificationRetrySpec    string
	NotificationRecoverySpec string
	JobTimeout               time.Duration
	MaxAttempts              int
	RecoveryThreshold        time.Duration
}

func DefaultConfig() Config {
	return Config{
		Enabled:                  true,
		EnforcementSweepSpec:     "@every 5m",
		NotificationRetrySpec:    "@every 1m",
		NotificationRecoverySpec: "@every 10m",
		JobTimeout:               2 * time.Minute,
		MaxAttempts:              3,
		RecoveryThreshold:        15 * time.Minute,
	}
}

func ConfigFrom(cfg config.Config) Config {
	return Config{
		Enabled:                  cfg.Scheduler.Enabled,
		EnforcementSweepSpec:     cfg.Scheduler.EnforcementSweepSpec,
		NotificationRetrySpec:    cfg.Scheduler.NotificationRetrySpec,
		NotificationRecoverySpec: cfg.Scheduler.NotificationRecoverySpec,
		JobTimeout:               cfg.Scheduler.JobTimeout,
		MaxAttempts:              cfg.Notification.MaxAttempts,
		RecoveryThreshold:        cfg.Notification.RecoveryThreshold,
	}
}

func (c Config) withDefaults() Config {
	defaults := DefaultConfig()
	if c.EnforcementSweepSpec == "" {
		c.EnforcementSweepSpec = defaults.EnforcementSweepSpec
	}
	if c.NotificationRetrySpec == "" {
		c.NotificationRetrySpec = defaults.NotificationRetrySpec
	}
	if c.NotificationRecoverySpec == "" {
		c.NotificationRecoverySpec = defaults.NotificationRecoverySpec
	}
	if c.JobTimeout <= 0 {
		c.JobTimeout = defaults.JobTimeout
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = defaults.MaxAttempts
	}
	if c.RecoveryThreshold <= 0 {
		c.RecoveryThreshold = defaults.RecoveryThreshold
	}
	return c
}
