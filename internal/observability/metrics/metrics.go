package metrics

import (
	"strings"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/smallbiznis/tenantguard/internal/config"
)

// Config carries the constant labels attached to every series.
type Config struct {
	ServiceName string
	Environment string
}

func ConfigFrom(cfg config.Config) Config {
	return Config{ServiceName: cfg.AppName, Environment: cfg.Environment}
}

func (c Config) constLabels() prometheus.Labels {
	serviceName := strings.TrimSpace(c.ServiceName)
	if serviceName == "" {
		serviceName = "tenantguard"
	}
	environment := strings.TrimSpace(c.Environment)
	if environment == "" {
		environment = "unknown"
	}
	return prometheus.Labels{
		"service": serviceName,
		"env":     environment,
	}
}

// Metrics exposes abuse-control engine instruments.
type Metrics struct {
	notifications   *prometheus.CounterVec
	channelResults  *prometheus.CounterVec
	suspensions     *prometheus.CounterVec
	overrides       *prometheus.CounterVec
	detections      *prometheus.CounterVec
	evaluations     *prometheus.CounterVec
	quotaUpdates    *prometheus.CounterVec
	deliveryLatency prometheus.Histogram
}

var (
	engineMetricsOnce sync.Once
	engineMetrics     *Metrics
)

// New returns the process-wide engine metrics registered on the default registerer.
func New(cfg Config) *Metrics {
	engineMetricsOnce.Do(func() {
		engineMetrics = NewWithRegisterer(prometheus.DefaultRegisterer, cfg)
	})
	return engineMetrics
}

func NewWithRegisterer(registerer prometheus.Registerer, cfg Config) *Metrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}
	constLabels := cfg.constLabels()

	notifications := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "tenantguard_notifications_processed_total",
		Help:        "Notification processing passes by type and resulting status.",
		ConstLabels: constLabels,
	}, []string{"type", "status"})
	channelResults := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "tenantguard_notification_channel_results_total",
		Help:        "Per-channel dispatch outcomes.",
		ConstLabels: constLabels,
	}, []string{"channel", "outcome"})
	suspensions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "tenantguard_suspension_transitions_total",
		Help:        "Project suspension state transitions by event and source.",
		ConstLabels: constLabels,
	}, []string{"event", "source"})
	overrides := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "tenantguard_manual_overrides_total",
		Help:        "Manual override attempts by action and outcome.",
		ConstLabels: constLabels,
	}, []string{"action", "outcome"})
	detections := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "tenantguard_detections_total",
		Help:        "Threshold detector hits by kind and severity.",
		ConstLabels: constLabels,
	}, []string{"kind", "severity"})
	evaluations := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "tenantguard_enforcement_evaluations_total",
		Help:        "Project enforcement evaluations by outcome.",
		ConstLabels: constLabels,
	}, []string{"outcome"})
	quotaUpdates := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "tenantguard_quota_updates_total",
		Help:        "Quota cap writes by cap type.",
		ConstLabels: constLabels,
	}, []string{"cap_type"})
	deliveryLatency := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:        "tenantguard_notification_queue_latency_seconds",
		Help:        "Time from enqueue to successful delivery.",
		Buckets:     []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120, 300, 900, 1800, 3600},
		ConstLabels: constLabels,
	})

	registerer.MustRegister(
		notifications,
		channelResults,
		suspensions,
		overrides,
		detections,
		evaluations,
		quotaUpdates,
		deliveryLatency,
	)

	return &Metrics{
		notifications:   notifications,
		channelResults:  channelResults,
		suspensions:     suspensions,
		overrides:       overrides,
		detections:      detections,
		evaluations:     evaluations,
		quotaUpdates:    quotaUpdates,
		deliveryLatency: deliveryLatency,
	}
}

func (m *Metrics) IncNotification(notificationType, status string) {
	if m == nil {
		return
	}
	m.notifications.WithLabelValues(notificationType, status).Inc()
}

func (m *Metrics) IncChannelResult(channel string, success bool) {
	if m == nil {
		return
	}
	m.channelResults.WithLabelValues(channel, outcome(success)).Inc()
}

// ObserveDeliveryLatency records enqueue-to-delivery time in seconds.
func (m *Metrics) ObserveDeliveryLatency(seconds float64) {
	if m == nil || seconds < 0 {
		return
	}
	m.deliveryLatency.Observe(seconds)
}

func (m *Metrics) IncSuspension(event, source string) {
	if m == nil {
		return
	}
	m.suspensions.WithLabelValues(event, source).Inc()
}

func (m *Metrics) IncOverride(action string, success bool) {
	if m == nil {
		return
	}
	m.overrides.WithLabelValues(action, outcome(success)).Inc()
}

func (m *Metrics) IncDetection(kind, severity string) {
	if m == nil {
		return
	}
	m.detections.WithLabelValues(kind, severity).Inc()
}

func (m *Metrics) IncEvaluation(result string) {
	if m == nil {
		return
	}
	m.evaluations.WithLabelValues(result).Inc()
}

func (m *Metrics) IncQuotaUpdate(capType string) {
	if m == nil {
		return
	}
	m.quotaUpdates.WithLabelValues(capType).Inc()
}

func outcome(success bool) string {
	if success {
		return "success"
	}
	return "failure"
}
