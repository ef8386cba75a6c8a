package tracing

import (
	"strings"
	"time"

	"github.com/smallbiznis/tenantguard/internal/config"
)

const (
	ProtocolGRPC = "grpc"
	ProtocolHTTP = "http"
)

// Config describes both OTLP pipelines. Traces and metrics share one
// collector endpoint.
type Config struct {
	Enabled        bool
	ServiceName    string
	ServiceVersion string
	Environment    string

	ExporterEndpoint string
	ExporterProtocol string
	SamplingRatio    float64
	MetricInterval   time.Duration
}

func ConfigFrom(cfg config.Config) Config {
	serviceName := strings.TrimSpace(cfg.AppName)
	if serviceName == "" {
		serviceName = "tenantguard"
	}
	protocol := strings.ToLower(strings.TrimSpace(cfg.Otel.Protocol))
	if protocol == "" {
		protocol = ProtocolGRPC
	}
	return Config{
		Enabled:          cfg.Otel.Enabled,
		ServiceName:      serviceName,
		ServiceVersion:   strings.TrimSpace(cfg.AppVersion),
		Environment:      strings.TrimSpace(cfg.Environment),
		ExporterEndpoint: strings.TrimSpace(cfg.Otel.Endpoint),
		ExporterProtocol: protocol,
		SamplingRatio:    cfg.Otel.SamplingRatio,
		MetricInterval:   cfg.Otel.MetricInterval,
	}
}

func (c Config) exporting() bool {
	return c.Enabled && c.ExporterEndpoint != ""
}

// endpointIsURL reports whether the endpoint carries a scheme. Bare
// host:port endpoints are dialed without TLS.
func (c Config) endpointIsURL() bool {
	return strings.Contains(c.ExporterEndpoint, "://")
}
