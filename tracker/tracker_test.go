package tracker

import (
	"fmt"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/apexlabs/apexbot/config"
	"github.com/apexlabs/apexbot/types"
)

func newTracker(t *testing.T) *Tracker {
	t.Helper()
	trk, err := New(config.DefaultConfig().Tracker, zaptest.NewLogger(t))
	require.NoError(t, err)
	return trk
}

func outcome(routeID uint64, success bool, profit float64) types.ExecutionOutcome {
	o := types.ExecutionOutcome{
		OpportunityID: fmt.Sprintf("op-%d", routeID),
		RouteID:       routeID,
		Success:       success,
		Duration:      25 * time.Millisecond,
	}
	if success {
		o.ProfitUsd = decimal.NewFromFloat(profit)
	}
	return o
}

func TestWindowEviction(t *testing.T) {
	cfg := config.DefaultConfig().Tracker
	cfg.WindowSize = 5
	trk, err := New(cfg, zaptest.NewLogger(t))
	require.NoError(t, err)

	// Five failures fill the window, then five successes push them out.
	for i := 0; i < 5; i++ {
		trk.Record(outcome(1, false, 0))
	}
	assert.Equal(t, 0.0, trk.CurrentSuccessRate())

	for i := 0; i < 5; i++ {
		trk.Record(outcome(1, true, 1))
	}
	assert.Equal(t, 1.0, trk.CurrentSuccessRate())

	// Overall rate still remembers everything.
	assert.Equal(t, 0.5, trk.OverallSuccessRate())

	s := trk.Snapshot()
	assert.Equal(t, 10, s.TotalExecutions)
	assert.Equal(t, 5, s.WindowSize)
}

func TestWindowRateTracksRecentMix(t *testing.T) {
	trk := newTracker(t)

	// 200 executions at a steady 85% success rate; the window should sit
	// close to the true rate.
	for i := 0; i < 200; i++ {
		trk.Record(outcome(uint64(i%7), i%20 < 17, 2))
	}
	assert.InDelta(t, 0.85, trk.CurrentSuccessRate(), 0.05)
	assert.InDelta(t, 0.85, trk.OverallSuccessRate(), 0.01)
}

func TestFloorAlertFiresOnceOnCrossing(t *testing.T) {
	trk := newTracker(t)

	// Prime the window above the floor, then slump below it.
	for i := 0; i < 20; i++ {
		trk.Record(outcome(1, true, 1))
	}
	for i := 0; i < 30; i++ {
		trk.Record(outcome(1, false, 0))
	}

	warnings := 0
	for _, a := range trk.Alerts() {
		if a.Level == AlertWarning {
			warnings++
		}
	}
	assert.Equal(t, 1, warnings, "a sustained slump raises one warning, not one per record")
}

func TestCeilingAlertIsInfoLevel(t *testing.T) {
	trk := newTracker(t)

	for i := 0; i < 50; i++ {
		trk.Record(outcome(1, true, 1))
	}

	alerts := trk.Alerts()
	require.NotEmpty(t, alerts)
	found := false
	for _, a := range alerts {
		if a.Level == AlertInfo {
			found = true
		}
		assert.NotEqual(t, AlertSafety, a.Level)
	}
	assert.True(t, found, "a 100%% window should raise the too-good-to-be-true info alert")
}

func TestSafetyAlertsAreDistinct(t *testing.T) {
	trk := newTracker(t)
	trk.RaiseSafetyAlert("daily loss limit 50.00 USD reached")

	alerts := trk.Alerts()
	require.Len(t, alerts, 1)
	assert.Equal(t, AlertSafety, alerts[0].Level)
	assert.Equal(t, "SAFETY", alerts[0].Level.String())
}

func TestAlertRetentionCap(t *testing.T) {
	cfg := config.DefaultConfig().Tracker
	cfg.MaxAlerts = 50
	trk, err := New(cfg, zaptest.NewLogger(t))
	require.NoError(t, err)

	for i := 0; i < 60; i++ {
		trk.RaiseSafetyAlert(fmt.Sprintf("alert %d", i))
	}

	alerts := trk.Alerts()
	require.Len(t, alerts, 50)
	// Newest first; the earliest ten were discarded.
	assert.Equal(t, "alert 59", alerts[0].Message)
	assert.Equal(t, "alert 10", alerts[49].Message)
}

func TestRouteSuccessRate(t *testing.T) {
	trk := newTracker(t)

	rate, samples := trk.RouteSuccessRate(42)
	assert.Zero(t, rate)
	assert.Zero(t, samples)

	trk.Record(outcome(42, true, 1))
	trk.Record(outcome(42, true, 1))
	trk.Record(outcome(42, false, 0))
	trk.Record(outcome(99, false, 0))

	rate, samples = trk.RouteSuccessRate(42)
	assert.InDelta(t, 2.0/3.0, rate, 1e-9)
	assert.Equal(t, 3, samples)

	rate, samples = trk.RouteSuccessRate(99)
	assert.Zero(t, rate)
	assert.Equal(t, 1, samples)
}

func TestProfitAccumulatesOnlyOnSuccess(t *testing.T) {
	trk := newTracker(t)

	trk.Record(outcome(1, true, 10))
	trk.Record(outcome(1, false, 0))
	trk.Record(outcome(1, true, 2.5))

	s := trk.Snapshot()
	assert.True(t, s.TotalProfitUsd.Equal(decimal.NewFromFloat(12.5)))
	assert.Equal(t, 2, s.TotalSuccesses)
}

func TestMetricsGatherableFromDefaultRegistry(t *testing.T) {
	trk := newTracker(t)
	for i := 0; i < 10; i++ {
		trk.Record(outcome(uint64(i), i%2 == 0, 1))
	}
	trk.RaiseSafetyAlert("limit reached")

	families, err := prometheus.DefaultGatherer.Gather()
	require.NoError(t, err)
	names := make(map[string]bool, len(families))
	for _, mf := range families {
		names[mf.GetName()] = true
	}
	for _, name := range []string{
		"apexbot_executions_total",
		"apexbot_success_rate_window",
		"apexbot_success_rate_overall",
		"apexbot_execution_duration_seconds",
		"apexbot_alerts_total",
	} {
		assert.True(t, names[name], "metric family %s not registered", name)
	}
}
