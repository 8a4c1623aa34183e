package types

import "time"

// SchedulerState is the control-loop state machine of spec.md §4.9:
// STOPPED -> RUNNING -> STOPPING -> STOPPED.
type SchedulerState string

const (
	SchedulerStopped  SchedulerState = "STOPPED"
	SchedulerRunning  SchedulerState = "RUNNING"
	SchedulerStopping SchedulerState = "STOPPING"
)

// SchedulerStatus is the rolling status snapshot of spec.md §3: counters
// plus running/timing state. Daily counters reset when wall-clock crosses
// 24h since StartTime.
type SchedulerStatus struct {
	Running  bool
	State    SchedulerState
	StartTime    time.Time
	LastScanTime time.Time
	NextScanTime time.Time

	TotalScans       int
	TotalRebalances  int
	OpportunitiesFound    int
	OpportunitiesExecuted int
	OpportunitiesSkipped  int
	TotalGasSpentUSD      float64
	RecentErrors          []string

	DailyRebalanceCount  int
	DailyGasSpentUSD     float64
	DailyWindowStartedAt time.Time

	ConsecutiveCycleErrors int
}

// DailyCountResetIfElapsed zeroes the rolling daily counters once 24h have
// elapsed since the window started, per spec.md §4.9's daily-cap reset
// rule (and spec.md §3: "reset when wall-clock crosses 24h since
// start_time").
func (s *SchedulerStatus) DailyCountResetIfElapsed(now time.Time) {
	if s.DailyWindowStartedAt.IsZero() || now.Sub(s.DailyWindowStartedAt) >= 24*time.Hour {
		s.DailyWindowStartedAt = now
		s.DailyRebalanceCount = 0
		s.DailyGasSpentUSD = 0
	}
}

// RecordRecentError appends err to the bounded recent-errors ring,
// keeping only the most recent 10.
func (s *SchedulerStatus) RecordRecentError(err string) {
	s.RecentErrors = append(s.RecentErrors, err)
	const maxRecent = 10
	if len(s.RecentErrors) > maxRecent {
		s.RecentErrors = s.RecentErrors[len(s.RecentErrors)-maxRecent:]
	}
}
