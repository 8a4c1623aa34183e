package types

import "time"

// EndpointPriority ranks RPC endpoints for dispatch ordering: PREMIUM is
// tried first, then BACKUP, then PUBLIC, per spec.md §4.1.
type EndpointPriority string

const (
	PriorityPremium EndpointPriority = "PREMIUM"
	PriorityBackup  EndpointPriority = "BACKUP"
	PriorityPublic  EndpointPriority = "PUBLIC"
)

// RpcEndpointStats is the mutable health/usage state the dispatcher tracks
// per endpoint. AvgLatencyMs is an exponential moving average (alpha 0.3).
type RpcEndpointStats struct {
	Name         string
	Priority     EndpointPriority
	Healthy      bool
	ConsecutiveFailures int
	AvgLatencyMs float64
	RequestsThisWindow int
	WindowStartedAt    time.Time
	DailyRequestCount   int
	DailyWindowStartedAt time.Time
	MonthlyRequestCount   int
	MonthlyWindowStartedAt time.Time
}

// ApproachingLimit reports whether usage for the given limit is at or above
// 80% of it, per spec.md §4.1's usage-tracker warning threshold.
func ApproachingLimit(used, limit int) bool {
	if limit <= 0 {
		return false
	}
	return float64(used) >= 0.8*float64(limit)
}
