package config

import (
	"errors"
	"io/fs"
	"strings"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// SpikeDefaults is the global spike detection configuration applied when a
// project has no override.
type SpikeDefaults struct {
	ThresholdMultiplier float64       `mapstructure:"thresholdMultiplier"`
	WindowDuration      time.Duration `mapstructure:"windowDuration"`
	BaselinePeriod      time.Duration `mapstructure:"baselinePeriod"`
	MinUsageThreshold   int64         `mapstructure:"minUsageThreshold"`
	Action              string        `mapstructure:"action"`
	Enabled             bool          `mapstructure:"enabled"`
}

// ErrorRateDefaults is the global error-rate detection configuration applied
// when a project has no override.
type ErrorRateDefaults struct {
	ErrorRateThreshold      float64       `mapstructure:"errorRateThreshold"`
	WindowDuration          time.Duration `mapstructure:"windowDuration"`
	MinRequestsForDetection int64         `mapstructure:"minRequestsForDetection"`
	Action                  string        `mapstructure:"action"`
	Enabled                 bool          `mapstructure:"enabled"`
}

type DetectionDefaults struct {
	Spike     SpikeDefaults     `mapstructure:"spike"`
	ErrorRate ErrorRateDefaults `mapstructure:"errorRate"`
}

func DefaultDetectionDefaults() DetectionDefaults {
	return DetectionDefaults{
		Spike: SpikeDefaults{
			ThresholdMultiplier: 3,
			WindowDuration:      time.Hour,
			BaselinePeriod:      7 * 24 * time.Hour,
			MinUsageThreshold:   100,
			Action:              "warning",
			Enabled:             true,
		},
		ErrorRate: ErrorRateDefaults{
			ErrorRateThreshold:      30,
			WindowDuration:          15 * time.Minute,
			MinRequestsForDetection: 100,
			Action:                  "warning",
			Enabled:                 true,
		},
	}
}

// DetectionConfigHolder keeps the current detection defaults and swaps them
// atomically when the backing file changes.
type DetectionConfigHolder struct {
	current atomic.Pointer[DetectionDefaults]
}

// NewStaticDetectionConfigHolder returns a holder that never reloads.
func NewStaticDetectionConfigHolder(defaults DetectionDefaults) *DetectionConfigHolder {
	holder := &DetectionConfigHolder{}
	defaults = normalizeDetectionDefaults(defaults)
	holder.current.Store(&defaults)
	return holder
}

func NewDetectionConfigHolder(cfg Config, log *zap.Logger) (*DetectionConfigHolder, error) {
	log = log.Named("config.detection")
	v := viper.New()

	if path := strings.TrimSpace(cfg.DetectionConfigPath); path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("detection")
		v.SetConfigType("yml")
		v.AddConfigPath("/etc/tenantguard")
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix("TENANTGUARD")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	defaults := DefaultDetectionDefaults()
	v.SetDefault("detection.spike.thresholdMultiplier", defaults.Spike.ThresholdMultiplier)
	v.SetDefault("detection.spike.windowDuration", defaults.Spike.WindowDuration)
	v.SetDefault("detection.spike.baselinePeriod", defaults.Spike.BaselinePeriod)
	v.SetDefault("detection.spike.minUsageThreshold", defaults.Spike.MinUsageThreshold)
	v.SetDefault("detection.spike.action", defaults.Spike.Action)
	v.SetDefault("detection.spike.enabled", defaults.Spike.Enabled)
	v.SetDefault("detection.errorRate.errorRateThreshold", defaults.ErrorRate.ErrorRateThreshold)
	v.SetDefault("detection.errorRate.windowDuration", defaults.ErrorRate.WindowDuration)
	v.SetDefault("detection.errorRate.minRequestsForDetection", defaults.ErrorRate.MinRequestsForDetection)
	v.SetDefault("detection.errorRate.action", defaults.ErrorRate.Action)
	v.SetDefault("detection.errorRate.enabled", defaults.ErrorRate.Enabled)

	fileLoaded := true
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, fs.ErrNotExist) {
			return nil, err
		}
		fileLoaded = false
	}

	var loaded DetectionDefaults
	if err := v.UnmarshalKey("detection", &loaded); err != nil {
		return nil, err
	}
	loaded = normalizeDetectionDefaults(loaded)
	if err := ValidateDetectionDefaults(loaded); err != nil {
		return nil, err
	}

	holder := NewStaticDetectionConfigHolder(loaded)
	if !fileLoaded {
		log.Info("detection config file not found, using built-in defaults")
		return holder, nil
	}

	v.WatchConfig()
	v.OnConfigChange(func(e fsnotify.Event) {
		var updated DetectionDefaults
		if err := v.UnmarshalKey("detection", &updated); err != nil {
			log.Warn("detection config reload failed", zap.Error(err))
			return
		}
		updated = normalizeDetectionDefaults(updated)
		if err := ValidateDetectionDefaults(updated); err != nil {
			log.Warn("invalid detection config ignored", zap.Error(err))
			return
		}
		holder.current.Store(&updated)
		log.Info("detection config reloaded", zap.String("file", e.Name))
	})

	return holder, nil
}

func (h *DetectionConfigHolder) Get() DetectionDefaults {
	if h == nil {
		return DefaultDetectionDefaults()
	}
	value := h.current.Load()
	if value == nil {
		return DefaultDetectionDefaults()
	}
	return *value
}

// normalizeDetectionDefaults lower-cases and trims the actions so they match
// the detector's action constants exactly.
func normalizeDetectionDefaults(cfg DetectionDefaults) DetectionDefaults {
	cfg.Spike.Action = normalizeAction(cfg.Spike.Action)
	cfg.ErrorRate.Action = normalizeAction(cfg.ErrorRate.Action)
	return cfg
}

func normalizeAction(action string) string {
	return strings.ToLower(strings.TrimSpace(action))
}

func ValidateDetectionDefaults(cfg DetectionDefaults) error {
	if cfg.Spike.ThresholdMultiplier <= 1 {
		return errors.New("detection.spike.thresholdMultiplier must be greater than 1")
	}
	if cfg.Spike.MinUsageThreshold < 0 {
		return errors.New("detection.spike.minUsageThreshold cannot be negative")
	}
	if cfg.Spike.WindowDuration <= 0 || cfg.Spike.BaselinePeriod < cfg.Spike.WindowDuration {
		return errors.New("detection.spike.baselinePeriod must cover at least one window")
	}
	if cfg.ErrorRate.ErrorRateThreshold <= 0 || cfg.ErrorRate.ErrorRateThreshold > 100 {
		return errors.New("detection.errorRate.errorRateThreshold must be within (0, 100]")
	}
	if cfg.ErrorRate.MinRequestsForDetection < 0 {
		return errors.New("detection.errorRate.minRequestsForDetection cannot be negative")
	}
	if cfg.ErrorRate.WindowDuration <= 0 {
		return errors.New("detection.errorRate.windowDuration must be positive")
	}
	if !validAction(cfg.Spike.Action) || !validAction(cfg.ErrorRate.Action) {
		return errors.New("detection action must be one of warning, suspension, none")
	}
	return nil
}

func validAction(action string) bool {
	switch action {
	case "warning", "suspension", "none":
		return true
	default:
		return false
	}
}
