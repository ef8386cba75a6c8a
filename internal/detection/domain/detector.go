package domain

import (
	"github.com/shopspring/decimal"
)

const (
	ReasonDisabled    = "disabled"
	ReasonBelowFloor  = "below_floor"
	ReasonBelowRatio  = "below_threshold"
	ReasonNoBaseline  = "no_baseline"
	ReasonExceeded    = "threshold_exceeded"
	errorRateSevere   = 75
	errorRateCritical = 50
)

var (
	hundred = decimal.NewFromInt(100)
	three   = decimal.NewFromInt(3)
	five    = decimal.NewFromInt(5)
	ten     = decimal.NewFromInt(10)
)

// DetectSpike flags current usage at or above baseline*multiplier once usage
// clears the configured floor. Severity bands scale with the multiplier m:
// severe at m*10/3, critical at m*5/3, warning at m.
func DetectSpike(cfg SpikeConfig, in SpikeInput) Result {
	res := Result{Kind: KindSpike, Severity: SeverityNone, RecommendedAction: ActionNone}
	if !cfg.Enabled {
		res.Reason = ReasonDisabled
		return res
	}
	if in.Current < cfg.MinUsageThreshold {
		res.Reason = ReasonBelowFloor
		return res
	}

	current := decimal.NewFromInt(in.Current)
	baseline := decimal.NewFromFloat(in.Baseline)
	if !baseline.IsPositive() {
		if !current.IsPositive() {
			res.Reason = ReasonBelowFloor
			return res
		}
		res.Detected = true
		res.Severity = SeveritySevere
		res.Reason = ReasonNoBaseline
		res.RecommendedAction = actionFor(cfg.Action)
		return res
	}

	res.Ratio = current.DivRound(baseline, 4).InexactFloat64()

	m := decimal.NewFromFloat(cfg.ThresholdMultiplier)
	threshold := baseline.Mul(m)
	if current.LessThan(threshold) {
		res.Reason = ReasonBelowRatio
		return res
	}

	// compare current*3 against baseline*m*{10,5} to stay exact
	scaled := current.Mul(three)
	switch {
	case scaled.GreaterThanOrEqual(threshold.Mul(ten)):
		res.Severity = SeveritySevere
	case scaled.GreaterThanOrEqual(threshold.Mul(five)):
		res.Severity = SeverityCritical
	default:
		res.Severity = SeverityWarning
	}
	res.Detected = true
	res.Reason = ReasonExceeded
	res.RecommendedAction = actionFor(cfg.Action)
	return res
}

// DetectErrorRate flags errors/total*100 at or above the threshold once the
// request count clears the configured floor.
func DetectErrorRate(cfg ErrorRateConfigValue, in ErrorRateInput) Result {
	res := Result{Kind: KindErrorRate, Severity: SeverityNone, RecommendedAction: ActionNone}
	if !cfg.Enabled {
		res.Reason = ReasonDisabled
		return res
	}
	if in.Total <= 0 || in.Total < cfg.MinRequestsForDetection {
		res.Reason = ReasonBelowFloor
		return res
	}

	errs := in.Errors
	if errs < 0 {
		errs = 0
	}
	if errs > in.Total {
		errs = in.Total
	}

	rate := decimal.NewFromInt(errs).Mul(hundred).Div(decimal.NewFromInt(in.Total))
	res.Ratio = rate.Round(4).InexactFloat64()

	if rate.LessThan(decimal.NewFromFloat(cfg.ErrorRateThreshold)) {
		res.Reason = ReasonBelowRatio
		return res
	}

	switch {
	case rate.GreaterThanOrEqual(decimal.NewFromInt(errorRateSevere)):
		res.Severity = SeveritySevere
	case rate.GreaterThanOrEqual(decimal.NewFromInt(errorRateCritical)):
		res.Severity = SeverityCritical
	default:
		res.Severity = SeverityWarning
	}
	res.Detected = true
	res.Reason = ReasonExceeded
	res.RecommendedAction = actionFor(cfg.Action)
	return res
}

func actionFor(action Action) Action {
	switch action {
	case ActionWarning, ActionSuspension:
		return action
	default:
		return ActionNone
	}
}
