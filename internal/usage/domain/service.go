package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
)

type RecordRequest struct {
	ProjectID  snowflake.ID `json:"project_id" validate:"required"`
	Metric     Metric       `json:"metric" validate:"required"`
	Value      int64        `json:"value" validate:"gte=0"`
	RecordedAt time.Time    `json:"recorded_at"`
}

type Repository interface {
	Incr(ctx context.Context, projectID snowflake.ID, metric Metric, hour time.Time, delta int64) error
	SumBuckets(ctx context.Context, projectID snowflake.ID, metric Metric, hours []time.Time) (int64, error)
	SetGauge(ctx context.Context, projectID snowflake.ID, metric Metric, value int64) error
	Gauge(ctx context.Context, projectID snowflake.ID, metric Metric) (int64, error)
}

type Service interface {
	// Record adds Value to the hour bucket of RecordedAt, or replaces the
	// latest value for gauge metrics.
	Record(ctx context.Context, req RecordRequest) error
	// Current sums the buckets covering window, ending at the current hour.
	Current(ctx context.Context, projectID snowflake.ID, metric Metric, window time.Duration) (int64, error)
	// Baseline is the average usage per window over the period that precedes
	// the current window.
	Baseline(ctx context.Context, projectID snowflake.ID, metric Metric, window, period time.Duration) (float64, error)
	Snapshot(ctx context.Context, projectID snowflake.ID, window time.Duration) (Snapshot, error)
}

var (
	ErrInvalidProject    = errors.New("invalid_project")
	ErrInvalidMetric     = errors.New("invalid_metric")
	ErrInvalidValue      = errors.New("invalid_value")
	ErrInvalidRecordedAt = errors.New("invalid_recorded_at")
	ErrInvalidWindow     = errors.New("invalid_window")
	ErrInvalidRequest    = errors.New("invalid_request")
)
