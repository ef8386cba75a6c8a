// Package domain describes usage counters kept in Redis hour buckets.
package domain

import (
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
)

type Metric string

const (
	MetricDBQueries           Metric = "db_queries_per_day"
	MetricRealtimeConnections Metric = "realtime_connections"
	MetricStorageUploads      Metric = "storage_uploads_per_day"
	MetricFunctionInvocations Metric = "function_invocations_per_day"
	MetricRequests            Metric = "requests"
	MetricErrors              Metric = "errors"
)

// BucketLayout formats the hour suffix of a counter key (yyyymmddhh, UTC).
const BucketLayout = "2006010215"

// Retention is how long hour buckets live: a week of baseline plus one day of
// slack for baselines that start before the current window.
const Retention = 8 * 24 * time.Hour

var metrics = map[Metric]struct{}{
	MetricDBQueries:           {},
	MetricRealtimeConnections: {},
	MetricStorageUploads:      {},
	MetricFunctionInvocations: {},
	MetricRequests:            {},
	MetricErrors:              {},
}

func (m Metric) Valid() bool {
	_, ok := metrics[m]
	return ok
}

// Gauge reports whether the metric holds a latest value rather than a counter.
func (m Metric) Gauge() bool {
	return m == MetricRealtimeConnections
}

// BucketKey returns usage:{project}:{metric}:{yyyymmddhh} for the hour containing at.
func BucketKey(projectID snowflake.ID, metric Metric, at time.Time) string {
	return fmt.Sprintf("usage:%s:%s:%s", projectID.String(), metric, at.UTC().Format(BucketLayout))
}

func GaugeKey(projectID snowflake.ID, metric Metric) string {
	return fmt.Sprintf("usage:%s:%s:gauge", projectID.String(), metric)
}

// Snapshot is the usage of every metric for one project at one instant.
type Snapshot struct {
	ProjectID snowflake.ID     `json:"project_id"`
	Values    map[Metric]int64 `json:"values"`
	TakenAt   time.Time        `json:"taken_at"`
}
