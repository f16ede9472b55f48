package executor

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestSafetyFailureStreak(t *testing.T) {
	s := NewSafetyState()

	for i := 1; i <= 3; i++ {
		snap := s.RecordFailure(decimal.Zero)
		assert.Equal(t, i, snap.ConsecutiveFailures)
	}

	s.RecordSuccess()
	assert.Equal(t, 0, s.Snapshot().ConsecutiveFailures)
}

func TestSafetyDailyLossAccumulates(t *testing.T) {
	s := NewSafetyState()

	s.RecordFailure(decimal.NewFromFloat(12.5))
	s.RecordFailure(decimal.Zero) // reverted before consuming gas
	snap := s.RecordFailure(decimal.NewFromFloat(7.5))

	assert.True(t, snap.DailyLossUsd.Equal(decimal.NewFromInt(20)))

	// Success clears the streak but never refunds loss headroom.
	s.RecordSuccess()
	snap = s.Snapshot()
	assert.Equal(t, 0, snap.ConsecutiveFailures)
	assert.True(t, snap.DailyLossUsd.Equal(decimal.NewFromInt(20)))
}

func TestSafetyDailyLossRollsOverAtUTCMidnight(t *testing.T) {
	current := time.Date(2026, 3, 10, 22, 0, 0, 0, time.UTC)
	s := NewSafetyState()
	s.now = func() time.Time { return current }

	s.RecordFailure(decimal.NewFromInt(40))
	assert.True(t, s.Snapshot().DailyLossUsd.Equal(decimal.NewFromInt(40)))

	// Same day, later hour: loss persists.
	current = current.Add(time.Hour)
	assert.True(t, s.Snapshot().DailyLossUsd.Equal(decimal.NewFromInt(40)))

	// Past midnight UTC: budget resets, streak does not.
	current = current.Add(2 * time.Hour)
	snap := s.Snapshot()
	assert.True(t, snap.DailyLossUsd.IsZero())
	assert.Equal(t, 1, snap.ConsecutiveFailures)
}

func TestSafetyEmergencyStop(t *testing.T) {
	s := NewSafetyState()
	assert.False(t, s.Stopped())

	s.EmergencyStop()
	assert.True(t, s.Stopped())
	assert.True(t, s.Snapshot().EmergencyStopped)

	s.Resume()
	assert.False(t, s.Stopped())
}

func TestSafetyMarkTrade(t *testing.T) {
	current := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	s := NewSafetyState()
	s.now = func() time.Time { return current }

	assert.True(t, s.Snapshot().LastTrade.IsZero())
	s.MarkTrade()
	assert.Equal(t, current, s.Snapshot().LastTrade)
}

func TestSafetyRollbackTradeReleasesReservation(t *testing.T) {
	current := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	s := NewSafetyState()
	s.now = func() time.Time { return current }

	marked, prev := s.MarkTrade()
	assert.Equal(t, current, s.Snapshot().LastTrade)

	s.RollbackTrade(marked, prev)
	assert.True(t, s.Snapshot().LastTrade.IsZero())
}

func TestSafetyRollbackTradeKeepsNewerMark(t *testing.T) {
	current := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	s := NewSafetyState()
	s.now = func() time.Time { return current }

	marked, prev := s.MarkTrade()

	// A second trade marks before the first rolls back; its reservation
	// must survive.
	current = current.Add(time.Second)
	s.MarkTrade()
	s.RollbackTrade(marked, prev)
	assert.Equal(t, current, s.Snapshot().LastTrade)
}
