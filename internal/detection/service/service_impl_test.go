package service

import (
	"context"
	"testing"
	"time"

	"github.com/smallbiznis/tenantguard/internal/clock"
	"github.com/smallbiznis/tenantguard/internal/config"
	detectiondomain "github.com/smallbiznis/tenantguard/internal/detection/domain"
	"github.com/smallbiznis/tenantguard/internal/detection/repository"
	"github.com/smallbiznis/tenantguard/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func newTestService(t *testing.T, defaults config.DetectionDefaults) detectiondomain.Service {
	t.Helper()
	db := testutil.OpenDB(t, &detectiondomain.SpikeDetectionConfig{}, &detectiondomain.ErrorRateConfig{})
	return New(Params{
		DB:       db,
		Log:      zaptest.NewLogger(t),
		GenID:    testutil.NewNode(t),
		Clock:    clock.NewFakeClock(time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)),
		Repo:     repository.Provide(),
		Defaults: config.NewStaticDetectionConfigHolder(defaults),
	})
}

func TestSpikeConfigFallsBackToDefaults(t *testing.T) {
	svc := newTestService(t, config.DefaultDetectionDefaults())

	cfg, err := svc.SpikeConfig(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, detectiondomain.SourceDefault, cfg.Source)
	assert.Equal(t, 3.0, cfg.ThresholdMultiplier)
	assert.Equal(t, time.Hour, cfg.Window)
	assert.Equal(t, detectiondomain.ActionWarning, cfg.Action)
}

func TestProjectOverrideWins(t *testing.T) {
	svc := newTestService(t, config.DefaultDetectionDefaults())
	ctx := context.Background()

	_, err := svc.UpsertSpikeConfig(ctx, detectiondomain.UpsertSpikeConfigRequest{
		ProjectID:           1,
		ThresholdMultiplier: 2,
		WindowSeconds:       600,
		BaselineSeconds:     86400,
		MinUsageThreshold:   10,
		Action:              detectiondomain.ActionSuspension,
		Enabled:             true,
	})
	require.NoError(t, err)

	res, err := svc.EvaluateSpike(ctx, 1, detectiondomain.SpikeInput{Current: 20, Baseline: 10})
	require.NoError(t, err)
	assert.True(t, res.Detected)
	assert.Equal(t, detectiondomain.ActionSuspension, res.RecommendedAction)

	// other projects keep the defaults
	res, err = svc.EvaluateSpike(ctx, 2, detectiondomain.SpikeInput{Current: 20, Baseline: 10})
	require.NoError(t, err)
	assert.False(t, res.Detected)

	// a second upsert replaces the override in place
	stored, err := svc.UpsertSpikeConfig(ctx, detectiondomain.UpsertSpikeConfigRequest{
		ProjectID:           1,
		ThresholdMultiplier: 4,
		WindowSeconds:       600,
		BaselineSeconds:     86400,
		MinUsageThreshold:   10,
		Action:              detectiondomain.ActionWarning,
		Enabled:             false,
	})
	require.NoError(t, err)
	assert.Equal(t, 4.0, stored.ThresholdMultiplier)
	assert.False(t, stored.Enabled)

	res, err = svc.EvaluateSpike(ctx, 1, detectiondomain.SpikeInput{Current: 1000, Baseline: 10})
	require.NoError(t, err)
	assert.False(t, res.Detected)
}

func TestErrorRateOverride(t *testing.T) {
	svc := newTestService(t, config.DefaultDetectionDefaults())
	ctx := context.Background()

	res, err := svc.EvaluateErrorRate(ctx, 1, detectiondomain.ErrorRateInput{Errors: 45, Total: 50})
	require.NoError(t, err)
	assert.False(t, res.Detected)

	_, err = svc.UpsertErrorRateConfig(ctx, detectiondomain.UpsertErrorRateConfigRequest{
		ProjectID:               1,
		ErrorRateThreshold:      20,
		WindowSeconds:           300,
		MinRequestsForDetection: 10,
		Action:                  detectiondomain.ActionSuspension,
		Enabled:                 true,
	})
	require.NoError(t, err)

	res, err = svc.EvaluateErrorRate(ctx, 1, detectiondomain.ErrorRateInput{Errors: 45, Total: 50})
	require.NoError(t, err)
	assert.True(t, res.Detected)
	assert.Equal(t, detectiondomain.SeveritySevere, res.Severity)
	assert.Equal(t, detectiondomain.ActionSuspension, res.RecommendedAction)
}

func TestDefaultsFollowHolder(t *testing.T) {
	defaults := config.DefaultDetectionDefaults()
	defaults.Spike.Action = "suspension"
	defaults.Spike.MinUsageThreshold = 1
	svc := newTestService(t, defaults)

	res, err := svc.EvaluateSpike(context.Background(), 9, detectiondomain.SpikeInput{Current: 30, Baseline: 3})
	require.NoError(t, err)
	assert.True(t, res.Detected)
	assert.Equal(t, detectiondomain.SeveritySevere, res.Severity)
	assert.Equal(t, detectiondomain.ActionSuspension, res.RecommendedAction)
}

func TestUpsertValidation(t *testing.T) {
	svc := newTestService(t, config.DefaultDetectionDefaults())
	ctx := context.Background()

	_, err := svc.UpsertSpikeConfig(ctx, detectiondomain.UpsertSpikeConfigRequest{
		ProjectID:           1,
		ThresholdMultiplier: 1,
		WindowSeconds:       600,
		BaselineSeconds:     60,
		Action:              "ban",
	})
	assert.ErrorIs(t, err, detectiondomain.ErrInvalidRequest)

	_, err = svc.UpsertErrorRateConfig(ctx, detectiondomain.UpsertErrorRateConfigRequest{
		ProjectID:          1,
		ErrorRateThreshold: 120,
		WindowSeconds:      60,
		Action:             detectiondomain.ActionWarning,
	})
	assert.ErrorIs(t, err, detectiondomain.ErrInvalidRequest)

	_, err = svc.SpikeConfig(ctx, 0)
	assert.ErrorIs(t, err, detectiondomain.ErrInvalidProject)
}

func TestMixedCaseDefaultActionStillSuspends(t *testing.T) {
	defaults := config.DefaultDetectionDefaults()
	defaults.Spike.Action = "Suspension"
	svc := newTestService(t, defaults)
	ctx := context.Background()

	cfg, err := svc.SpikeConfig(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, detectiondomain.ActionSuspension, cfg.Action)

	res, err := svc.EvaluateSpike(ctx, 1, detectiondomain.SpikeInput{Current: 10000, Baseline: 100})
	require.NoError(t, err)
	assert.True(t, res.Detected)
	assert.Equal(t, detectiondomain.ActionSuspension, res.RecommendedAction)
}
