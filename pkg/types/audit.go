package types

import "time"

// Severity is the audit event severity ladder. CRITICAL is the only level
// forwarded to Sentry (spec.md §4.10).
type Severity string

const (
	SeverityInfo     Severity = "INFO"
	SeverityWarning  Severity = "WARNING"
	SeverityError    Severity = "ERROR"
	SeverityCritical Severity = "CRITICAL"
)

// EventType tags an AuditEvent with one of the enumerated kinds of
// spec.md §4.10. The list there is explicitly "examples", so a handful of
// scheduler/risk events outside that list are added for call sites the
// enumerated set doesn't cover.
type EventType string

const (
	EventYieldScan                 EventType = "yield_scan"
	EventRebalanceOpportunityFound EventType = "rebalance_opportunity_found"
	EventRebalanceExecuted         EventType = "rebalance_executed"
	EventTransactionSubmitted      EventType = "transaction_submitted"
	EventTransactionCompleted      EventType = "transaction_completed"
	EventTransactionFailed         EventType = "transaction_failed"
	EventRPCUsageSummary           EventType = "rpc_usage_summary"
	EventRPCEndpointFailure        EventType = "rpc_endpoint_failure"
	EventRPCCircuitBreakerOpened   EventType = "rpc_circuit_breaker_opened"
	EventSpendingLimitBreach       EventType = "spending_limit_breach"
	EventConfigChanged             EventType = "config_changed"
	// EventRiskAlert covers scheduler-loop conditions (cycle errors,
	// watchdog timeouts, daily caps reached) that the original prototype
	// also folds into its catch-all RISK_ALERT event type.
	EventRiskAlert EventType = "risk_alert"
)

// AuditEvent is a single append-only audit record. Metadata must never
// contain raw RPC URLs or API keys; redaction happens before an event is
// constructed. pkg/audit's sinks write Metadata as given and do not check it.
type AuditEvent struct {
	Timestamp time.Time
	EventType EventType
	Severity  Severity
	Component string
	Message   string
	Metadata  map[string]string
	// User identifies the actor that caused the event. This system runs
	// unattended, so it is always "system" except where a future
	// human-approval flow supplies a real identity.
	User string
}
