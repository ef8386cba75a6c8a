package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func defaultSpike() SpikeConfig {
	return SpikeConfig{ThresholdMultiplier: 3, MinUsageThreshold: 100, Action: ActionSuspension, Enabled: true}
}

func defaultErrorRate() ErrorRateConfigValue {
	return ErrorRateConfigValue{ErrorRateThreshold: 30, MinRequestsForDetection: 100, Action: ActionWarning, Enabled: true}
}

func TestDetectSpikeBands(t *testing.T) {
	cases := []struct {
		name     string
		current  int64
		detected bool
		severity Severity
	}{
		{name: "2.9x", current: 290, detected: false, severity: SeverityNone},
		{name: "3x", current: 300, detected: true, severity: SeverityWarning},
		{name: "4.9x", current: 490, detected: true, severity: SeverityWarning},
		{name: "5x", current: 500, detected: true, severity: SeverityCritical},
		{name: "9.9x", current: 990, detected: true, severity: SeverityCritical},
		{name: "10x", current: 1000, detected: true, severity: SeveritySevere},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			res := DetectSpike(defaultSpike(), SpikeInput{Current: tc.current, Baseline: 100})
			assert.Equal(t, tc.detected, res.Detected)
			assert.Equal(t, tc.severity, res.Severity)
			assert.Equal(t, KindSpike, res.Kind)
			if tc.detected {
				assert.Equal(t, ActionSuspension, res.RecommendedAction)
			} else {
				assert.Equal(t, ActionNone, res.RecommendedAction)
			}
		})
	}
}

func TestDetectSpikeFloorSuppressesDetection(t *testing.T) {
	res := DetectSpike(defaultSpike(), SpikeInput{Current: 90, Baseline: 1})
	assert.False(t, res.Detected)
	assert.Equal(t, ReasonBelowFloor, res.Reason)
}

func TestDetectSpikeBandsScaleWithMultiplier(t *testing.T) {
	cfg := defaultSpike()
	cfg.ThresholdMultiplier = 6

	res := DetectSpike(cfg, SpikeInput{Current: 500, Baseline: 100})
	assert.False(t, res.Detected)

	res = DetectSpike(cfg, SpikeInput{Current: 600, Baseline: 100})
	assert.Equal(t, SeverityWarning, res.Severity)

	res = DetectSpike(cfg, SpikeInput{Current: 1000, Baseline: 100})
	assert.Equal(t, SeverityCritical, res.Severity)

	res = DetectSpike(cfg, SpikeInput{Current: 2000, Baseline: 100})
	assert.Equal(t, SeveritySevere, res.Severity)
}

func TestDetectSpikeZeroBaseline(t *testing.T) {
	res := DetectSpike(defaultSpike(), SpikeInput{Current: 150, Baseline: 0})
	assert.True(t, res.Detected)
	assert.Equal(t, SeveritySevere, res.Severity)
	assert.Equal(t, ReasonNoBaseline, res.Reason)
}

func TestDetectSpikeFractionalBaseline(t *testing.T) {
	res := DetectSpike(defaultSpike(), SpikeInput{Current: 100, Baseline: 33.4})
	assert.False(t, res.Detected)

	res = DetectSpike(defaultSpike(), SpikeInput{Current: 101, Baseline: 33.4})
	assert.True(t, res.Detected)
	assert.InDelta(t, 3.024, res.Ratio, 0.001)
}

func TestDetectSpikeDisabledAndNoneAction(t *testing.T) {
	cfg := defaultSpike()
	cfg.Enabled = false
	res := DetectSpike(cfg, SpikeInput{Current: 10_000, Baseline: 1})
	assert.False(t, res.Detected)
	assert.Equal(t, ReasonDisabled, res.Reason)

	cfg = defaultSpike()
	cfg.Action = ActionNone
	res = DetectSpike(cfg, SpikeInput{Current: 10_000, Baseline: 1})
	assert.True(t, res.Detected)
	assert.Equal(t, ActionNone, res.RecommendedAction)
}

func TestDetectErrorRateFloor(t *testing.T) {
	res := DetectErrorRate(defaultErrorRate(), ErrorRateInput{Errors: 45, Total: 50})
	assert.False(t, res.Detected)
	assert.Equal(t, ReasonBelowFloor, res.Reason)
}

func TestDetectErrorRateBands(t *testing.T) {
	cases := []struct {
		errors   int64
		detected bool
		severity Severity
	}{
		{errors: 29, detected: false, severity: SeverityNone},
		{errors: 30, detected: true, severity: SeverityWarning},
		{errors: 50, detected: true, severity: SeverityCritical},
		{errors: 75, detected: true, severity: SeveritySevere},
		{errors: 100, detected: true, severity: SeveritySevere},
	}
	for _, tc := range cases {
		res := DetectErrorRate(defaultErrorRate(), ErrorRateInput{Errors: tc.errors, Total: 100})
		assert.Equal(t, tc.detected, res.Detected, "errors=%d", tc.errors)
		assert.Equal(t, tc.severity, res.Severity, "errors=%d", tc.errors)
		assert.InDelta(t, float64(tc.errors), res.Ratio, 0.0001)
	}
}

func TestDetectErrorRateClampsErrors(t *testing.T) {
	res := DetectErrorRate(defaultErrorRate(), ErrorRateInput{Errors: 500, Total: 200})
	assert.True(t, res.Detected)
	assert.InDelta(t, 100, res.Ratio, 0.0001)
	assert.Equal(t, ActionWarning, res.RecommendedAction)
}
