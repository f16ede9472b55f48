// Package tracker maintains rolling execution statistics and raises alerts
// when success rates breach configured bounds. It is fed by the execution
// controller and read by the scorer (per-route history) and by reporting;
// nothing here feeds back into execution gating.
package tracker

import (
	"fmt"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/apexlabs/apexbot/config"
	"github.com/apexlabs/apexbot/types"
)

// AlertLevel classifies a raised alert.
type AlertLevel int

const (
	AlertInfo AlertLevel = iota
	AlertWarning
	// AlertSafety marks safety-limit breaches from the controller. These
	// are kept distinct from performance alerts so operators never mistake
	// a tripped loss limit for a quiet market.
	AlertSafety
)

func (l AlertLevel) String() string {
	switch l {
	case AlertSafety:
		return "SAFETY"
	case AlertWarning:
		return "WARNING"
	default:
		return "INFO"
	}
}

// Alert is a retained notification, newest first in the tracker's ring.
type Alert struct {
	Level   AlertLevel
	Message string
	At      time.Time
}

// Record is one completed execution in the rolling window.
type Record struct {
	RouteID   uint64
	Success   bool
	ProfitUsd decimal.Decimal
	Duration  time.Duration
	At        time.Time
}

type routeStats struct {
	successes int
	total     int
}

// Tracker accumulates execution outcomes. All updates are append-only: the
// window evicts its oldest entry on overflow and past records are never
// rewritten.
type Tracker struct {
	cfg    config.TrackerConfig
	logger *zap.Logger

	mu              sync.Mutex
	window          []Record
	totalExecutions int
	totalSuccesses  int
	totalProfit     decimal.Decimal
	alerts          []Alert
	routeHist       *lru.Cache
	belowFloor      bool
	aboveCeiling    bool
}

// Collectors register once on the default registry so trackers constructed
// later (and in tests) share them.
var metrics = struct {
	executions  *prometheus.CounterVec
	currentRate prometheus.Gauge
	overallRate prometheus.Gauge
	profitUsd   prometheus.Counter
	durations   prometheus.Histogram
	alertsTotal *prometheus.CounterVec
}{
	executions: promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "apexbot_executions_total",
		Help: "Executions recorded by result",
	}, []string{"result"}),
	currentRate: promauto.NewGauge(prometheus.GaugeOpts{
		Name: "apexbot_success_rate_window",
		Help: "Success rate over the rolling window",
	}),
	overallRate: promauto.NewGauge(prometheus.GaugeOpts{
		Name: "apexbot_success_rate_overall",
		Help: "All-time success rate",
	}),
	profitUsd: promauto.NewCounter(prometheus.CounterOpts{
		Name: "apexbot_profit_usd_total",
		Help: "Cumulative realized profit in USD",
	}),
	durations: promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "apexbot_execution_duration_seconds",
		Help:    "Execution latency",
		Buckets: prometheus.DefBuckets,
	}),
	alertsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "apexbot_alerts_total",
		Help: "Alerts raised by level",
	}, []string{"level"}),
}

// New creates a Tracker with the given bounds.
func New(cfg config.TrackerConfig, logger *zap.Logger) (*Tracker, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	routeHist, err := lru.New(cfg.RouteHistorySize)
	if err != nil {
		return nil, fmt.Errorf("failed to create route history cache: %w", err)
	}

	return &Tracker{
		cfg:         cfg,
		logger:      logger,
		window:      make([]Record, 0, cfg.WindowSize),
		totalProfit: decimal.Zero,
		routeHist:   routeHist,
	}, nil
}

// Record appends an execution outcome to the window, evicting the oldest
// entry once full, and re-checks alert thresholds.
func (t *Tracker) Record(outcome types.ExecutionOutcome) {
	rec := Record{
		RouteID:   outcome.RouteID,
		Success:   outcome.Success,
		ProfitUsd: outcome.ProfitUsd,
		Duration:  outcome.Duration,
		At:        time.Now(),
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if len(t.window) == t.cfg.WindowSize {
		t.window = t.window[1:]
	}
	t.window = append(t.window, rec)

	t.totalExecutions++
	result := "failure"
	if rec.Success {
		t.totalSuccesses++
		t.totalProfit = t.totalProfit.Add(rec.ProfitUsd)
		profit, _ := rec.ProfitUsd.Float64()
		if profit > 0 {
			metrics.profitUsd.Add(profit)
		}
		result = "success"
	}
	metrics.executions.WithLabelValues(result).Inc()
	metrics.durations.Observe(rec.Duration.Seconds())

	t.recordRouteLocked(rec.RouteID, rec.Success)
	t.checkThresholdsLocked()
}

func (t *Tracker) recordRouteLocked(routeID uint64, success bool) {
	var stats *routeStats
	if v, ok := t.routeHist.Get(routeID); ok {
		stats = v.(*routeStats)
	} else {
		stats = &routeStats{}
		t.routeHist.Add(routeID, stats)
	}
	stats.total++
	if success {
		stats.successes++
	}
}

func (t *Tracker) checkThresholdsLocked() {
	rate := t.currentRateLocked()
	metrics.currentRate.Set(rate)
	metrics.overallRate.Set(t.overallRateLocked())

	// Alerts fire on crossings, not on every sample, so a sustained slump
	// raises one warning rather than one per execution.
	if rate < t.cfg.AlertFloor {
		if !t.belowFloor {
			t.belowFloor = true
			t.raiseLocked(AlertWarning, fmt.Sprintf(
				"window success rate %.1f%% below floor %.1f%%",
				rate*100, t.cfg.AlertFloor*100))
		}
	} else {
		t.belowFloor = false
	}

	if rate > t.cfg.AlertCeiling {
		if !t.aboveCeiling {
			t.aboveCeiling = true
			t.raiseLocked(AlertInfo, fmt.Sprintf(
				"window success rate %.2f%% above %.2f%%",
				rate*100, t.cfg.AlertCeiling*100))
		}
	} else {
		t.aboveCeiling = false
	}
}

// RaiseSafetyAlert records a safety-limit breach from the controller.
func (t *Tracker) RaiseSafetyAlert(message string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.raiseLocked(AlertSafety, message)
}

func (t *Tracker) raiseLocked(level AlertLevel, message string) {
	alert := Alert{Level: level, Message: message, At: time.Now()}
	t.alerts = append([]Alert{alert}, t.alerts...)
	if len(t.alerts) > t.cfg.MaxAlerts {
		t.alerts = t.alerts[:t.cfg.MaxAlerts]
	}
	metrics.alertsTotal.WithLabelValues(level.String()).Inc()

	switch level {
	case AlertSafety, AlertWarning:
		t.logger.Warn("Alert raised", zap.String("level", level.String()), zap.String("message", message))
	default:
		t.logger.Info("Alert raised", zap.String("level", level.String()), zap.String("message", message))
	}
}

func (t *Tracker) currentRateLocked() float64 {
	if len(t.window) == 0 {
		return 0
	}
	successes := 0
	for _, rec := range t.window {
		if rec.Success {
			successes++
		}
	}
	return float64(successes) / float64(len(t.window))
}

func (t *Tracker) overallRateLocked() float64 {
	if t.totalExecutions == 0 {
		return 0
	}
	return float64(t.totalSuccesses) / float64(t.totalExecutions)
}

// CurrentSuccessRate is the success rate over the rolling window.
func (t *Tracker) CurrentSuccessRate() float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.currentRateLocked()
}

// OverallSuccessRate is the all-time success rate.
func (t *Tracker) OverallSuccessRate() float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.overallRateLocked()
}

// RouteSuccessRate reports the per-route success rate and sample count.
// Implements the scorer's history source.
func (t *Tracker) RouteSuccessRate(routeID uint64) (float64, int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	v, ok := t.routeHist.Get(routeID)
	if !ok {
		return 0, 0
	}
	stats := v.(*routeStats)
	if stats.total == 0 {
		return 0, 0
	}
	return float64(stats.successes) / float64(stats.total), stats.total
}

// Alerts returns the retained alerts, newest first.
func (t *Tracker) Alerts() []Alert {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]Alert, len(t.alerts))
	copy(out, t.alerts)
	return out
}

// Summary is a point-in-time statistics snapshot for reporting.
type Summary struct {
	TotalExecutions    int
	TotalSuccesses     int
	CurrentSuccessRate float64
	OverallSuccessRate float64
	TotalProfitUsd     decimal.Decimal
	WindowSize         int
}

// Snapshot returns the current summary.
func (t *Tracker) Snapshot() Summary {
	t.mu.Lock()
	defer t.mu.Unlock()
	return Summary{
		TotalExecutions:    t.totalExecutions,
		TotalSuccesses:     t.totalSuccesses,
		CurrentSuccessRate: t.currentRateLocked(),
		OverallSuccessRate: t.overallRateLocked(),
		TotalProfitUsd:     t.totalProfit,
		WindowSize:         len(t.window),
	}
}
