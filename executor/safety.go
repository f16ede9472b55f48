package executor

import (
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

// SafetyState holds the only cross-cycle mutable counters in the pipeline.
// Every read-check-update sequence runs under one mutex so two
// opportunities can never both pass a limit check that only one should.
type SafetyState struct {
	mu                  sync.Mutex
	consecutiveFailures int
	dailyLossUsd        decimal.Decimal
	lossDay             time.Time
	lastTrade           time.Time
	emergencyStopped    bool

	now func() time.Time
}

// SafetySnapshot is a consistent read of the counters.
type SafetySnapshot struct {
	ConsecutiveFailures int
	DailyLossUsd        decimal.Decimal
	LastTrade           time.Time
	EmergencyStopped    bool
}

// NewSafetyState creates zeroed counters.
func NewSafetyState() *SafetyState {
	return &SafetyState{
		dailyLossUsd: decimal.Zero,
		now:          time.Now,
	}
}

// rollDayLocked resets the daily loss once a new UTC day starts.
func (s *SafetyState) rollDayLocked() {
	day := s.now().UTC().Truncate(24 * time.Hour)
	if !day.Equal(s.lossDay) {
		s.lossDay = day
		s.dailyLossUsd = decimal.Zero
	}
}

// Snapshot returns the current counters, rolling the loss window first.
func (s *SafetyState) Snapshot() SafetySnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rollDayLocked()
	return SafetySnapshot{
		ConsecutiveFailures: s.consecutiveFailures,
		DailyLossUsd:        s.dailyLossUsd,
		LastTrade:           s.lastTrade,
		EmergencyStopped:    s.emergencyStopped,
	}
}

// RecordSuccess clears the failure streak. The daily loss is untouched;
// profits do not buy back loss headroom.
func (s *SafetyState) RecordSuccess() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.consecutiveFailures = 0
}

// RecordFailure extends the failure streak and, when the failure burned gas
// without profit, charges the loss against the daily budget. Returns the
// updated counters so the caller can detect limit crossings.
func (s *SafetyState) RecordFailure(gasLossUsd decimal.Decimal) SafetySnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rollDayLocked()
	s.consecutiveFailures++
	if gasLossUsd.IsPositive() {
		s.dailyLossUsd = s.dailyLossUsd.Add(gasLossUsd)
	}
	return SafetySnapshot{
		ConsecutiveFailures: s.consecutiveFailures,
		DailyLossUsd:        s.dailyLossUsd,
		LastTrade:           s.lastTrade,
		EmergencyStopped:    s.emergencyStopped,
	}
}

// MarkTrade stamps the dispatch time used for trade spacing. Called inside
// the controller's decision critical section so an EXECUTE decision and its
// spacing reservation are atomic. The returned timestamps let RollbackTrade
// release the reservation if the execution never reaches the queue.
func (s *SafetyState) MarkTrade() (marked, prev time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	prev = s.lastTrade
	s.lastTrade = s.now()
	return s.lastTrade, prev
}

// RollbackTrade restores the pre-mark timestamp so an abandoned dispatch
// does not consume the spacing slot. A no-op if another trade has marked
// since.
func (s *SafetyState) RollbackTrade(marked, prev time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.lastTrade.Equal(marked) {
		s.lastTrade = prev
	}
}

// EmergencyStop forces every subsequent decision to SKIP.
func (s *SafetyState) EmergencyStop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.emergencyStopped = true
}

// Resume clears the emergency stop.
func (s *SafetyState) Resume() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.emergencyStopped = false
}

// Stopped reports whether the emergency stop is set.
func (s *SafetyState) Stopped() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.emergencyStopped
}
