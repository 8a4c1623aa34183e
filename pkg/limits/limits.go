// Package limits enforces the three spending caps of spec.md §4.11:
// per-transaction, rolling-window daily, and a human-approval threshold.
package limits

import (
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

// ErrHierarchyInvalid is returned by Validate when the configured caps
// don't satisfy approval_threshold <= max_transaction <= daily_limit.
var ErrHierarchyInvalid = fmt.Errorf("limits: approval_threshold must be <= max_transaction <= daily_limit")

// ErrExceedsTransactionCap is returned when a single move exceeds the
// per-transaction cap.
var ErrExceedsTransactionCap = fmt.Errorf("limits: exceeds per-transaction cap")

// ErrExceedsDailyCap is returned when a move would push the rolling daily
// total over its cap.
var ErrExceedsDailyCap = fmt.Errorf("limits: exceeds daily spending cap")

// ApprovalHook is consulted for any transaction at or above
// ApprovalThresholdUSD. A nil hook makes such transactions always refused.
type ApprovalHook func(amountUSD decimal.Decimal) (approved bool)

// Config mirrors the spec.md §6 spending-limit options.
type Config struct {
	MaxTransactionUSD  decimal.Decimal
	DailyLimitUSD      decimal.Decimal
	ApprovalThresholdUSD decimal.Decimal
}

// Validate checks the hierarchy invariant at config-load time
// (spec.md §4.11: validated at config load).
func (c Config) Validate() error {
	if c.ApprovalThresholdUSD.GreaterThan(c.MaxTransactionUSD) || c.MaxTransactionUSD.GreaterThan(c.DailyLimitUSD) {
		return ErrHierarchyInvalid
	}
	return nil
}

// Enforcer tracks the rolling daily spend and applies all three caps.
type Enforcer struct {
	mu     sync.Mutex
	config Config
	hook   ApprovalHook

	dailySpent      decimal.Decimal
	windowStartedAt time.Time
}

// New constructs an Enforcer. hook may be nil, in which case any
// transaction at or above the approval threshold is refused.
func New(config Config, hook ApprovalHook) *Enforcer {
	return &Enforcer{config: config, hook: hook}
}

func (e *Enforcer) resetIfElapsedLocked(now time.Time) {
	if e.windowStartedAt.IsZero() || now.Sub(e.windowStartedAt) >= 24*time.Hour {
		e.windowStartedAt = now
		e.dailySpent = decimal.Zero
	}
}

// CheckTransaction validates amountUSD against all three caps, consulting
// the approval hook when required. It does not record the spend; call
// RecordSpend after the transaction actually executes.
func (e *Enforcer) CheckTransaction(amountUSD decimal.Decimal) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	now := time.Now()
	e.resetIfElapsedLocked(now)

	if amountUSD.GreaterThan(e.config.MaxTransactionUSD) {
		return fmt.Errorf("%w: $%s > $%s", ErrExceedsTransactionCap, amountUSD.StringFixed(2), e.config.MaxTransactionUSD.StringFixed(2))
	}
	if e.dailySpent.Add(amountUSD).GreaterThan(e.config.DailyLimitUSD) {
		return fmt.Errorf("%w: $%s + $%s > $%s", ErrExceedsDailyCap, e.dailySpent.StringFixed(2), amountUSD.StringFixed(2), e.config.DailyLimitUSD.StringFixed(2))
	}
	if amountUSD.GreaterThanOrEqual(e.config.ApprovalThresholdUSD) {
		if e.hook == nil || !e.hook(amountUSD) {
			return fmt.Errorf("limits: transaction of $%s requires human approval", amountUSD.StringFixed(2))
		}
	}
	return nil
}

// RecordSpend adds amountUSD to the rolling daily total after a
// transaction actually executes.
func (e *Enforcer) RecordSpend(amountUSD decimal.Decimal) {
	e.mu.Lock()
	defer e.mu.Unlock()
	now := time.Now()
	e.resetIfElapsedLocked(now)
	e.dailySpent = e.dailySpent.Add(amountUSD)
}

// DailySpent returns the current rolling daily total.
func (e *Enforcer) DailySpent() decimal.Decimal {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.dailySpent
}
