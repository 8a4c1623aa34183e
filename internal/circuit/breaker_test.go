package circuit

import (
	"errors"
	"testing"
	"time"
)

func TestBreaker_OpensAfterThreshold(t *testing.T) {
	b := New(3, time.Minute)

	for i := 0; i < 2; i++ {
		b.RecordFailure()
		if b.State() != Closed {
			t.Fatalf("expected CLOSED after %d failures, got %s", i+1, b.State())
		}
	}
	b.RecordFailure()
	if b.State() != Open {
		t.Fatalf("expected OPEN after reaching the threshold, got %s", b.State())
	}
	if b.Allow() {
		t.Fatal("expected Allow() to be false while OPEN")
	}
}

func TestBreaker_RecoversToHalfOpenAfterTimeout(t *testing.T) {
	b := New(1, 20*time.Millisecond)
	b.RecordFailure()
	if b.State() != Open {
		t.Fatalf("expected OPEN, got %s", b.State())
	}

	time.Sleep(30 * time.Millisecond)
	if b.State() != HalfOpen {
		t.Fatalf("expected lazy transition to HALF_OPEN after the recovery timeout, got %s", b.State())
	}
	if !b.Allow() {
		t.Fatal("expected Allow() to be true in HALF_OPEN")
	}
}

func TestBreaker_HalfOpenFailureReopensImmediately(t *testing.T) {
	b := New(1, 10*time.Millisecond)
	b.RecordFailure()
	time.Sleep(20 * time.Millisecond)
	if b.State() != HalfOpen {
		t.Fatalf("expected HALF_OPEN, got %s", b.State())
	}

	b.RecordFailure()
	if b.State() != Open {
		t.Fatalf("expected a HALF_OPEN failure to reopen immediately, got %s", b.State())
	}
}

func TestBreaker_HalfOpenSuccessCloses(t *testing.T) {
	b := New(1, 10*time.Millisecond)
	b.RecordFailure()
	time.Sleep(20 * time.Millisecond)
	if b.State() != HalfOpen {
		t.Fatalf("expected HALF_OPEN, got %s", b.State())
	}

	b.RecordSuccess()
	if b.State() != Closed {
		t.Fatalf("expected a HALF_OPEN success to close the breaker, got %s", b.State())
	}
	if b.Failures() != 0 {
		t.Fatalf("expected failure counter reset after success, got %d", b.Failures())
	}
}

func TestBreaker_SuccessResetsFailureCounter(t *testing.T) {
	b := New(3, time.Minute)
	b.RecordFailure()
	b.RecordFailure()
	b.RecordSuccess()
	if b.Failures() != 0 {
		t.Fatalf("expected RecordSuccess to reset the failure counter, got %d", b.Failures())
	}
	b.RecordFailure()
	b.RecordFailure()
	if b.State() != Closed {
		t.Fatalf("expected CLOSED after only 2 failures post-reset, got %s", b.State())
	}
}

func TestBreaker_CallSkipsOpFunctionWhenOpen(t *testing.T) {
	b := New(1, time.Minute)
	b.RecordFailure()

	called := false
	err := b.Call(func() error {
		called = true
		return nil
	})
	if !errors.Is(err, ErrOpen) {
		t.Fatalf("expected ErrOpen, got %v", err)
	}
	if called {
		t.Fatal("expected Call to skip op entirely while OPEN")
	}
}

func TestBreaker_CallPropagatesOpError(t *testing.T) {
	b := New(2, time.Minute)
	boom := errors.New("boom")

	err := b.Call(func() error { return boom })
	if !errors.Is(err, boom) {
		t.Fatalf("expected Call to propagate op's error, got %v", err)
	}
	if b.Failures() != 1 {
		t.Fatalf("expected Call's failure to be recorded, got %d", b.Failures())
	}
}

func TestBreaker_CallRecordsSuccess(t *testing.T) {
	b := New(2, time.Minute)
	b.RecordFailure()
	if err := b.Call(func() error { return nil }); err != nil {
		t.Fatalf("expected Call to succeed in CLOSED state, got %v", err)
	}
	if b.Failures() != 0 {
		t.Fatalf("expected success to reset failures, got %d", b.Failures())
	}
}
