package rpc

import (
	"sync"
	"time"

	"github.com/onchain-yield/optimizer/pkg/types"
)

// DailySummary is the per-day usage report produced by UsageTracker.
type DailySummary struct {
	PremiumRequests int
	BackupRequests  int
	PublicRequests  int
	Failures        int
	PercentOfFreeTierUsed map[types.EndpointPriority]float64
	ApproachingLimit      bool
}

// UsageTracker keeps per-day and per-month request/failure counters keyed
// by provider priority, with a configurable free-tier cap per priority used
// to compute percent-used and the approaching_limit flag.
type UsageTracker struct {
	mu sync.Mutex

	freeTierCap map[types.EndpointPriority]int

	dayStart   time.Time
	dayCounts  map[types.EndpointPriority]int
	dayFailures int

	monthStart  time.Time
	monthCounts map[types.EndpointPriority]int
}

// NewUsageTracker constructs a tracker with the given per-priority free-tier
// caps (zero means "no cap", and such a priority is excluded from the
// percent-used report).
func NewUsageTracker(freeTierCap map[types.EndpointPriority]int) *UsageTracker {
	return &UsageTracker{
		freeTierCap: freeTierCap,
		dayCounts:   make(map[types.EndpointPriority]int),
		monthCounts: make(map[types.EndpointPriority]int),
	}
}

func (u *UsageTracker) resetIfElapsedLocked(now time.Time) {
	if u.dayStart.IsZero() || now.Sub(u.dayStart) >= 24*time.Hour {
		u.dayStart = now
		u.dayCounts = make(map[types.EndpointPriority]int)
		u.dayFailures = 0
	}
	if u.monthStart.IsZero() || now.Sub(u.monthStart) >= 30*24*time.Hour {
		u.monthStart = now
		u.monthCounts = make(map[types.EndpointPriority]int)
	}
}

// RecordSuccess increments the daily and monthly counters for priority.
func (u *UsageTracker) RecordSuccess(p types.EndpointPriority, now time.Time) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.resetIfElapsedLocked(now)
	u.dayCounts[p]++
	u.monthCounts[p]++
}

// RecordFailure increments the daily failure counter.
func (u *UsageTracker) RecordFailure(p types.EndpointPriority, now time.Time) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.resetIfElapsedLocked(now)
	u.dayCounts[p]++
	u.dayFailures++
}

// ResetDailyUsage clears the daily counters immediately (spec.md §4.1
// explicit reset_daily_usage operation).
func (u *UsageTracker) ResetDailyUsage(now time.Time) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.dayStart = now
	u.dayCounts = make(map[types.EndpointPriority]int)
	u.dayFailures = 0
}

// Summary produces the current daily summary.
func (u *UsageTracker) Summary(now time.Time) DailySummary {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.resetIfElapsedLocked(now)

	pct := make(map[types.EndpointPriority]float64)
	approaching := false
	for p, tierCap := range u.freeTierCap {
		if tierCap <= 0 {
			continue
		}
		used := u.dayCounts[p]
		pct[p] = 100 * float64(used) / float64(tierCap)
		if types.ApproachingLimit(used, tierCap) {
			approaching = true
		}
	}

	return DailySummary{
		PremiumRequests:       u.dayCounts[types.PriorityPremium],
		BackupRequests:        u.dayCounts[types.PriorityBackup],
		PublicRequests:        u.dayCounts[types.PriorityPublic],
		Failures:              u.dayFailures,
		PercentOfFreeTierUsed: pct,
		ApproachingLimit:      approaching,
	}
}
