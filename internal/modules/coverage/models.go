package coverage

import (
	"time"

	"github.com/workforcelab/intraday/internal/domain"
)

const (
	// DefaultLivePeriod is the live-monitoring refresh cadence.
	DefaultLivePeriod = 30 * time.Second
	// DefaultHourlyCost prices gap agent-hours when the service carries no
	// cost of its own.
	DefaultHourlyCost = 35.0
	// DefaultTrendWindow bounds how far back the trend regression reads
	// queue history.
	DefaultTrendWindow = 2 * time.Hour
	// OvertimeMultiplier inflates gap cost once the peak shortage exceeds
	// OvertimeShortage agents: cover past that point comes from overtime.
	OvertimeMultiplier = 1.5
	// OvertimeShortage is the peak-shortage level that triggers the
	// overtime multiplier.
	OvertimeShortage = 5.0
	// failureBackoff extends the next live tick after a failed one.
	failureBackoff = 10 * time.Second
	// minTrendSamples is the fewest history points a regression accepts.
	minTrendSamples = 5
)

// Config tunes the analyzer and the live monitor.
type Config struct {
	LivePeriod  time.Duration
	HourlyCost  float64
	TrendWindow time.Duration
}

func (c Config) withDefaults() Config {
	if c.LivePeriod <= 0 {
		c.LivePeriod = DefaultLivePeriod
	}
	if c.HourlyCost <= 0 {
		c.HourlyCost = DefaultHourlyCost
	}
	if c.TrendWindow <= 0 {
		c.TrendWindow = DefaultTrendWindow
	}
	return c
}

// Gap is one contiguous run of shortage intervals.
type Gap struct {
	ServiceID    string          `json:"service_id"`
	Start        time.Time       `json:"start"`
	End          time.Time       `json:"end"` // exclusive
	Intervals    int             `json:"intervals"`
	PeakShortage float64         `json:"peak_shortage"` // agents
	AvgShortage  float64         `json:"avg_shortage"`
	AgentHours   float64         `json:"agent_hours"`
	WorstSL      float64         `json:"worst_sl"` // lowest projection inside the gap
	RealImpact   float64         `json:"real_impact"`
	Severity     domain.Severity `json:"severity"`
	Cost         float64         `json:"cost"`
	Overtime     bool            `json:"overtime"`
}

// Report is the coverage picture for one service over a range.
type Report struct {
	ServiceID         string                    `json:"service_id"`
	Range             domain.DateRange          `json:"range"`
	Intervals         []domain.CoverageInterval `json:"intervals"`
	Gaps              []Gap                     `json:"gaps"`
	ShortageIntervals int                       `json:"shortage_intervals"`
	TotalGapCost      float64                   `json:"total_gap_cost"`
	GeneratedAt       time.Time                 `json:"generated_at"`
	Duration          time.Duration             `json:"duration_ns"`
}

// Trend is the service-level regression over recent queue history.
type Trend struct {
	ServiceID      string         `json:"service_id"`
	Current        float64        `json:"current"`
	SlopePerMinute float64        `json:"slope_per_minute"`
	Threshold      float64        `json:"threshold"`
	TimeToBreach   *time.Duration `json:"time_to_breach_ns,omitempty"`
	Samples        int            `json:"samples"`
}
