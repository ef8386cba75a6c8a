package worker

import (
	"time"

	"github.com/smallbiznis/tenantguard/internal/config"
)

// Config controls the notification worker loop.
type Config struct {
	BatchSize    int
	PollInterval time.Duration
	RunTimeout   time.Duration
	MaxAttempts  int
	Concurrency  int
}

func DefaultConfig() Config {
	return Config{
		BatchSize:    50,
		PollInterval: 5 * time.Second,
		RunTimeout:   time.Minute,
		MaxAttempts:  3,
		Concurrency:  4,
	}
}

func ConfigFrom(cfg config.Config) Config {
	return Config{
		BatchSize:    cfg.Notification.BatchSize,
		PollInterval: cfg.Notification.PollInterval,
		MaxAttempts:  cfg.Notification.MaxAttempts,
		Concurrency:  cfg.Notification.Concurrency,
	}
}

func (c Config) withDefaults() Config {
	defaults := DefaultConfig()
	if c.BatchSize <= 0 {
		c.BatchSize = defaults.BatchSize
	}
	if c.PollInterval <= 0 {
		c.PollInterval = defaults.PollInterval
	}
	if c.RunTimeout <= 0 {
		c.RunTimeout = defaults.RunTimeout
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = defaults.MaxAttempts
	}
	if c.Concurrency <= 0 {
		c.Concurrency = defaults.Concurrency
	}
	return c
}
