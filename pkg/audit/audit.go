// Package audit implements the Audit Sink of spec.md §4.10: an append-only
// structured event log that must never raise on back-pressure. Grounded on
// the teacher's internal/db gorm recorder pattern (transaction_recorder.go)
// adapted from asset snapshots to audit events, plus Sentry forwarding for
// CRITICAL severity and an x/time/rate backpressure throttle for the
// best-effort forwarding path (see DESIGN.md's x/time/rate deviation note).
package audit

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/onchain-yield/optimizer/pkg/types"
)

// Sink is the consumed interface of spec.md §6: log_event must not raise
// on back-pressure.
type Sink interface {
	LogEvent(e types.AuditEvent)
}

// MultiSink fans an event out to every configured sink; one sink's failure
// never blocks the others (each Sink implementation is itself required not
// to raise).
type MultiSink struct {
	sinks []Sink
}

// NewMultiSink constructs a MultiSink from the given sinks in order.
func NewMultiSink(sinks ...Sink) *MultiSink {
	return &MultiSink{sinks: sinks}
}

func (m *MultiSink) LogEvent(e types.AuditEvent) {
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now().UTC()
	}
	if e.User == "" {
		e.User = "system"
	}
	for _, s := range m.sinks {
		s.LogEvent(e)
	}
}

// FileSink appends line-delimited JSON audit records to a file, matching
// spec.md §6's "line-delimited JSON-object-shaped records" requirement.
type FileSink struct {
	mu  sync.Mutex
	f   *os.File
	log zerolog.Logger
}

// NewFileSink opens (creating if needed) path for append-only writes.
func NewFileSink(path string, log zerolog.Logger) (*FileSink, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, fmt.Errorf("audit: open sink file: %w", err)
	}
	return &FileSink{f: f, log: log}, nil
}

func (s *FileSink) LogEvent(e types.AuditEvent) {
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now().UTC()
	}
	if e.User == "" {
		e.User = "system"
	}
	line, err := json.Marshal(e)
	if err != nil {
		s.log.Error().Err(err).Msg("audit: failed to marshal event, dropping")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.f.Write(append(line, '\n')); err != nil {
		s.log.Error().Err(err).Msg("audit: failed to write event, dropping")
	}
}

func (s *FileSink) Close() error {
	return s.f.Close()
}

// SentrySink forwards only CRITICAL events to Sentry, non-blocking and
// best-effort: a send failure is logged and swallowed, never raised. A
// rate limiter caps the forwarding rate so a burst of CRITICAL events
// can't itself become a denial-of-service against the error-reporting
// pipeline (spec.md §4.10's back-pressure tolerance, applied here instead
// of to golang.org/x/time/rate's usual RPC home — see DESIGN.md).
type SentrySink struct {
	limiter *rate.Limiter
	log     zerolog.Logger
}

// NewSentrySink constructs a sink forwarding at most maxPerSecond events.
func NewSentrySink(maxPerSecond float64, log zerolog.Logger) *SentrySink {
	return &SentrySink{limiter: rate.NewLimiter(rate.Limit(maxPerSecond), int(maxPerSecond)+1), log: log}
}

func (s *SentrySink) LogEvent(e types.AuditEvent) {
	if e.Severity != types.SeverityCritical {
		return
	}
	if !s.limiter.Allow() {
		s.log.Warn().Msg("audit: sentry forwarding rate-limited, dropping critical event")
		return
	}

	sentry.WithScope(func(scope *sentry.Scope) {
		scope.SetLevel(sentry.LevelFatal)
		scope.SetTag("component", e.Component)
		for k, v := range e.Metadata {
			scope.SetExtra(k, v)
		}
		sentry.CaptureMessage(e.Message)
	})
}
