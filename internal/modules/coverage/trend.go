package coverage

import (
	"context"
	"fmt"
	"time"

	"github.com/markcheno/go-talib"

	"github.com/workforcelab/intraday/internal/domain"
)

// ErrNoHistory marks a trend request with too little queue history.
var ErrNoHistory = fmt.Errorf("%w: not enough queue history for a trend", domain.ErrValidation)

// ServiceLevelTrend regresses recent service-level readings and, when the
// level is falling toward the critical threshold, predicts when it crosses.
func (a *Analyzer) ServiceLevelTrend(ctx context.Context, serviceID string) (*Trend, error) {
	threshold, err := a.criticalServiceLevel(ctx, serviceID)
	if err != nil {
		return nil, err
	}

	history, err := a.store.QueueHistory(ctx, serviceID, time.Now().UTC().Add(-a.cfg.TrendWindow))
	if err != nil {
		return nil, err
	}
	if len(history) < minTrendSamples {
		return nil, fmt.Errorf("%w: %d samples for %s", ErrNoHistory, len(history), serviceID)
	}

	values := make([]float64, len(history))
	for i, s := range history {
		values[i] = s.ServiceLevel
	}
	// History is evenly spaced only approximately; regress against sample
	// index and convert the slope with the mean spacing.
	spacing := history[len(history)-1].Timestamp.Sub(history[0].Timestamp) / time.Duration(len(history)-1)
	if spacing <= 0 {
		return nil, fmt.Errorf("%w: zero-width history for %s", ErrNoHistory, serviceID)
	}

	slopes := talib.LinearRegSlope(values, len(values))
	slope := slopes[len(slopes)-1] // per sample

	trend := &Trend{
		ServiceID:      serviceID,
		Current:        values[len(values)-1],
		SlopePerMinute: slope / spacing.Minutes(),
		Threshold:      threshold,
		Samples:        len(values),
	}

	if slope < 0 && trend.Current > threshold {
		samplesToBreach := (trend.Current - threshold) / -slope
		ttb := time.Duration(samplesToBreach * float64(spacing))
		trend.TimeToBreach = &ttb
	}

	a.log.Debug().
		Str("service_id", serviceID).
		Float64("current", trend.Current).
		Float64("slope_per_min", trend.SlopePerMinute).
		Msg("Service level trend computed")
	return trend, nil
}

// criticalServiceLevel picks the configured critical level for the
// service_level metric, falling back to the stock default.
func (a *Analyzer) criticalServiceLevel(ctx context.Context, serviceID string) (float64, error) {
	thresholds, err := a.store.LoadThresholds(ctx, serviceID)
	if err != nil {
		return 0, err
	}
	for _, t := range thresholds {
		if t.Metric == domain.MetricServiceLevel {
			return t.Critical, nil
		}
	}
	return domain.DefaultServiceLevelThresholds.Critical, nil
}
