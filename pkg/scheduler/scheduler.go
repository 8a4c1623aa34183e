// Package scheduler implements the Scheduled Optimizer of spec.md §4.9: a
// single long-lived control loop with cooperative cancellation, a
// per-cycle watchdog, daily caps, and 300s error backoff. Grounded on
// original_source/src/agents/scheduled_optimizer.py's _run_loop /
// SchedulerStatus shape.
package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/onchain-yield/optimizer/pkg/audit"
	"github.com/onchain-yield/optimizer/pkg/executor"
	"github.com/onchain-yield/optimizer/pkg/metrics"
	"github.com/onchain-yield/optimizer/pkg/store"
	"github.com/onchain-yield/optimizer/pkg/types"
)

const (
	watchdogTimeout       = 600 * time.Second
	watchdogWarnAfter     = 300 * time.Second
	errorBackoff          = 300 * time.Second
	cancellationPoll      = 10 * time.Second
	clockAnomalyThreshold = 60 * time.Second
)

// DailyCaps bounds how much the scheduler is allowed to do per rolling
// 24h window (spec.md §6 max_rebalances_per_day, max_gas_per_day_usd).
type DailyCaps struct {
	MaxRebalancesPerDay int
	MaxGasPerDayUSD     decimal.Decimal
}

// Recommender is the subset of Strategy the scheduler needs: one best
// recommendation per existing position, supplied already risk/profitability
// filtered by the caller-selected strategy instance.
type Recommender interface {
	Recommend(ctx context.Context, positions []types.Position) ([]types.RebalanceRecommendation, error)
}

// Scheduler runs the control loop described in spec.md §4.9.
type Scheduler struct {
	positions   store.PositionStore
	recommender Recommender
	exec        *executor.Executor
	auditLog    audit.Sink
	log         zerolog.Logger
	metrics     *metrics.Registry

	scanInterval time.Duration
	caps         DailyCaps
	readOnly     bool

	status SchedulerStatus
	stopCh chan struct{}
	doneCh chan struct{}
}

// SchedulerStatus mirrors types.SchedulerStatus but is owned internally so
// the scheduler can mutate it without exposing internal synchronization.
type SchedulerStatus = types.SchedulerStatus

// New constructs a Scheduler. readOnly mirrors spec.md §6's read_only
// option: the scanner/strategy still run, but the executor is never
// invoked.
func New(positions store.PositionStore, recommender Recommender, exec *executor.Executor, auditLog audit.Sink, log zerolog.Logger, m *metrics.Registry, scanInterval time.Duration, caps DailyCaps, readOnly bool) *Scheduler {
	return &Scheduler{
		positions:    positions,
		recommender:  recommender,
		exec:         exec,
		auditLog:     auditLog,
		log:          log,
		metrics:      m,
		scanInterval: scanInterval,
		caps:         caps,
		readOnly:     readOnly,
		status:       SchedulerStatus{State: types.SchedulerStopped},
	}
}

// Status returns a copy of the current status snapshot.
func (s *Scheduler) Status() SchedulerStatus {
	return s.status
}

// Start begins the control loop. Calling Start while already running is a
// no-op that logs a warning (idempotent-safe per spec.md §4.9).
func (s *Scheduler) Start(ctx context.Context) {
	if s.status.State == types.SchedulerRunning {
		s.log.Warn().Msg("scheduler: start requested but already running")
		return
	}
	s.stopCh = make(chan struct{})
	s.doneCh = make(chan struct{})
	s.status.State = types.SchedulerRunning
	s.status.Running = true
	s.status.StartTime = time.Now()

	go s.runLoop(ctx)
}

// Stop signals the loop to exit after the current cycle and blocks until
// it does.
func (s *Scheduler) Stop() {
	if s.status.State != types.SchedulerRunning {
		return
	}
	s.status.State = types.SchedulerStopping
	close(s.stopCh)
	<-s.doneCh
	s.status.State = types.SchedulerStopped
	s.status.Running = false
}

func (s *Scheduler) runLoop(ctx context.Context) {
	defer close(s.doneCh)

	for {
		select {
		case <-s.stopCh:
			return
		default:
		}

		s.status.DailyCountResetIfElapsed(time.Now())

		if err := s.runCycleWithWatchdog(ctx); err != nil {
			s.status.ConsecutiveCycleErrors++
			s.status.RecordRecentError(err.Error())
			s.emitAudit(types.EventRiskAlert, types.SeverityError, fmt.Sprintf("cycle failed: %v", err), nil)
			if !s.waitOrStop(errorBackoff) {
				return
			}
			continue
		}
		s.status.ConsecutiveCycleErrors = 0

		if !s.waitOrStop(s.scanInterval) {
			return
		}
	}
}

// waitOrStop sleeps for d, polling the stop channel every 10s instead of a
// single long sleep, and warns if actual elapsed time deviates from
// intended by more than 60s (monotonic-clock anomaly detection per
// spec.md §4.9).
func (s *Scheduler) waitOrStop(d time.Duration) bool {
	deadline := time.Now().Add(d)
	s.status.NextScanTime = deadline

	for {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			break
		}
		tick := cancellationPoll
		if remaining < tick {
			tick = remaining
		}
		select {
		case <-s.stopCh:
			return false
		case <-time.After(tick):
		}
	}

	if drift := time.Since(deadline); drift > clockAnomalyThreshold {
		s.log.Warn().Dur("drift", drift).Msg("scheduler: clock anomaly, actual wait deviated from intended by more than 60s")
	}
	return true
}

func (s *Scheduler) runCycleWithWatchdog(ctx context.Context) error {
	cycleCtx, cancel := context.WithTimeout(ctx, watchdogTimeout)
	defer cancel()

	warnTimer := time.AfterFunc(watchdogWarnAfter, func() {
		s.log.Warn().Msg("scheduler: cycle exceeding 300s, approaching watchdog timeout")
	})
	defer warnTimer.Stop()

	started := time.Now()
	done := make(chan error, 1)
	go func() { done <- s.runCycle(cycleCtx) }()

	var err error
	select {
	case err = <-done:
	case <-cycleCtx.Done():
		s.status.RecordRecentError("watchdog_timeout")
		s.emitAudit(types.EventRiskAlert, types.SeverityError, "watchdog timeout", nil)
		err = fmt.Errorf("scheduler: watchdog timeout after %s", watchdogTimeout)
	}

	if s.metrics != nil {
		s.metrics.SchedulerCyclesTotal.Inc()
		s.metrics.SchedulerCycleDuration.Observe(time.Since(started).Seconds())
		if err != nil {
			s.metrics.SchedulerCycleErrorsTotal.Inc()
		}
	}
	return err
}

func (s *Scheduler) runCycle(ctx context.Context) error {
	s.status.LastScanTime = time.Now()
	s.status.TotalScans++

	positions, err := s.positions.GetCurrentPositions()
	if err != nil {
		return fmt.Errorf("read positions: %w", err)
	}

	recommendations, err := s.recommender.Recommend(ctx, positions)
	if err != nil {
		return fmt.Errorf("generate recommendations: %w", err)
	}
	s.status.OpportunitiesFound += len(recommendations)

	for i, rec := range recommendations {
		if s.dailyCapsReached() {
			skipped := len(recommendations) - i
			s.status.OpportunitiesSkipped += skipped
			if s.metrics != nil {
				s.metrics.SchedulerSkippedTotal.Add(float64(skipped))
			}
			s.emitAudit(types.EventRiskAlert, types.SeverityWarning, "daily caps reached, skipping remaining recommendations", nil)
			break
		}

		if s.readOnly {
			s.status.OpportunitiesSkipped++
			if s.metrics != nil {
				s.metrics.SchedulerSkippedTotal.Inc()
			}
			continue
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		if s.exec == nil {
			s.status.OpportunitiesSkipped++
			if s.metrics != nil {
				s.metrics.SchedulerSkippedTotal.Inc()
			}
			continue
		}
		exec, err := s.exec.Execute(ctx, rec, nil)
		if err != nil {
			s.status.OpportunitiesSkipped++
			s.status.RecordRecentError(err.Error())
			if s.metrics != nil {
				s.metrics.SchedulerSkippedTotal.Inc()
			}
			continue
		}
		if exec.Success {
			s.status.TotalRebalances++
			s.status.OpportunitiesExecuted++
			gasUSD, _ := exec.TotalGasCostUSD.Float64()
			s.status.TotalGasSpentUSD += gasUSD
			s.status.DailyGasSpentUSD += gasUSD
			s.status.DailyRebalanceCount++
			if s.metrics != nil {
				s.metrics.SchedulerRebalancesTotal.Inc()
				s.metrics.SchedulerGasSpentUSD.Add(gasUSD)
			}
		} else {
			s.status.OpportunitiesSkipped++
			if s.metrics != nil {
				s.metrics.SchedulerSkippedTotal.Inc()
			}
		}
	}

	return nil
}

func (s *Scheduler) dailyCapsReached() bool {
	if s.caps.MaxRebalancesPerDay > 0 && s.status.DailyRebalanceCount >= s.caps.MaxRebalancesPerDay {
		return true
	}
	if s.caps.MaxGasPerDayUSD.IsPositive() {
		spent := decimal.NewFromFloat(s.status.DailyGasSpentUSD)
		if spent.GreaterThanOrEqual(s.caps.MaxGasPerDayUSD) {
			return true
		}
	}
	return false
}

func (s *Scheduler) emitAudit(eventType types.EventType, severity types.Severity, message string, metadata map[string]string) {
	if s.auditLog == nil {
		return
	}
	s.auditLog.LogEvent(types.AuditEvent{
		EventType: eventType,
		Severity:  severity,
		Component: "scheduler",
		Message:   message,
		Metadata:  metadata,
	})
}
