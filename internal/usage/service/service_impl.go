package service

import (
	"context"
	"math"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/tenantguard/internal/clock"
	usagedomain "github.com/smallbiznis/tenantguard/internal/usage/domain"
	"github.com/smallbiznis/tenantguard/pkg/validation"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// maxClockSkew bounds how far in the future a recorded_at may be.
const maxClockSkew = time.Minute

type Params struct {
	fx.In

	Log   *zap.Logger
	Clock clock.Clock
	Repo  usagedomain.Repository
}

type Service struct {
	log   *zap.Logger
	clock clock.Clock
	repo  usagedomain.Repository
}

func New(p Params) usagedomain.Service {
	return &Service{
		log:   p.Log.Named("usage.service"),
		clock: p.Clock,
		repo:  p.Repo,
	}
}

func (s *Service) Record(ctx context.Context, req usagedomain.RecordRequest) error {
	if err := validation.Struct(req, usagedomain.ErrInvalidRequest); err != nil {
		return err
	}
	if !req.Metric.Valid() {
		return usagedomain.ErrInvalidMetric
	}

	if req.Metric.Gauge() {
		return s.repo.SetGauge(ctx, req.ProjectID, req.Metric, req.Value)
	}

	if req.Value <= 0 {
		return usagedomain.ErrInvalidValue
	}

	now := s.clock.Now()
	at := req.RecordedAt.UTC()
	if req.RecordedAt.IsZero() {
		at = now
	}
	if at.After(now.Add(maxClockSkew)) || now.Sub(at) > usagedomain.Retention {
		return usagedomain.ErrInvalidRecordedAt
	}

	if err := s.repo.Incr(ctx, req.ProjectID, req.Metric, at, req.Value); err != nil {
		s.log.Error("failed to record usage",
			zap.String("project_id", req.ProjectID.String()),
			zap.String("metric", string(req.Metric)),
			zap.Error(err),
		)
		return err
	}
	return nil
}

func (s *Service) Current(ctx context.Context, projectID snowflake.ID, metric usagedomain.Metric, window time.Duration) (int64, error) {
	if err := s.checkMetric(projectID, metric); err != nil {
		return 0, err
	}
	if metric.Gauge() {
		return s.repo.Gauge(ctx, projectID, metric)
	}
	if window <= 0 {
		return 0, usagedomain.ErrInvalidWindow
	}

	end := s.clock.Now().Truncate(time.Hour)
	return s.repo.SumBuckets(ctx, projectID, metric, hoursEndingAt(end, bucketCount(window)))
}

func (s *Service) Baseline(ctx context.Context, projectID snowflake.ID, metric usagedomain.Metric, window, period time.Duration) (float64, error) {
	if err := s.checkMetric(projectID, metric); err != nil {
		return 0, err
	}
	if metric.Gauge() {
		value, err := s.repo.Gauge(ctx, projectID, metric)
		return float64(value), err
	}
	if window <= 0 || period < window {
		return 0, usagedomain.ErrInvalidWindow
	}

	windowHours := bucketCount(window)
	periodHours := bucketCount(period)
	if periodHours < windowHours {
		periodHours = windowHours
	}

	// The baseline period ends right before the oldest bucket of the current window.
	end := s.clock.Now().Truncate(time.Hour).Add(-time.Duration(windowHours) * time.Hour)
	total, err := s.repo.SumBuckets(ctx, projectID, metric, hoursEndingAt(end, periodHours))
	if err != nil {
		return 0, err
	}
	return float64(total) * float64(windowHours) / float64(periodHours), nil
}

func (s *Service) Snapshot(ctx context.Context, projectID snowflake.ID, window time.Duration) (usagedomain.Snapshot, error) {
	snapshot := usagedomain.Snapshot{
		ProjectID: projectID,
		Values:    make(map[usagedomain.Metric]int64),
		TakenAt:   s.clock.Now(),
	}
	for _, metric := range []usagedomain.Metric{
		usagedomain.MetricDBQueries,
		usagedomain.MetricRealtimeConnections,
		usagedomain.MetricStorageUploads,
		usagedomain.MetricFunctionInvocations,
		usagedomain.MetricRequests,
		usagedomain.MetricErrors,
	} {
		value, err := s.Current(ctx, projectID, metric, window)
		if err != nil {
			return usagedomain.Snapshot{}, err
		}
		snapshot.Values[metric] = value
	}
	return snapshot, nil
}

func (s *Service) checkMetric(projectID snowflake.ID, metric usagedomain.Metric) error {
	if projectID == 0 {
		return usagedomain.ErrInvalidProject
	}
	if !metric.Valid() {
		return usagedomain.ErrInvalidMetric
	}
	return nil
}

// bucketCount rounds d up to whole hours, with a floor of one bucket.
func bucketCount(d time.Duration) int {
	n := int(math.Ceil(d.Hours()))
	if n < 1 {
		return 1
	}
	return n
}

// hoursEndingAt lists n hour buckets, newest first, starting at end.
func hoursEndingAt(end time.Time, n int) []time.Time {
	hours := make([]time.Time, 0, n)
	for i := 0; i < n; i++ {
		hours = append(hours, end.Add(-time.Duration(i)*time.Hour))
	}
	return hours
}
