package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

func TestScheduler_RunsImmediatelyOnStart(t *testing.T) {
	var calls int32
	s := New(func(ctx context.Context) (bool, error) {
		atomic.AddInt32(&calls, 1)
		return false, nil
	}, WithInterval(time.Hour))

	s.Start()
	defer s.Stop()

	deadline := time.Now().Add(time.Second)
	for atomic.LoadInt32(&calls) == 0 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	if atomic.LoadInt32(&calls) != 1 {
		t.Fatalf("calls = %d, want 1 (startup cycle)", calls)
	}
}

func TestScheduler_DuplicateStartIsNoop(t *testing.T) {
	var calls int32
	s := New(func(ctx context.Context) (bool, error) {
		atomic.AddInt32(&calls, 1)
		return false, nil
	}, WithInterval(time.Hour))

	s.Start()
	s.Start() // should log a warning, not spawn a second loop
	defer s.Stop()

	time.Sleep(20 * time.Millisecond)
	if atomic.LoadInt32(&calls) != 1 {
		t.Errorf("calls = %d, want 1 (duplicate Start must be a no-op)", calls)
	}
}

func TestScheduler_StopInterruptsWait(t *testing.T) {
	s := New(func(ctx context.Context) (bool, error) { return false, nil }, WithInterval(time.Hour))
	s.Start()

	time.Sleep(10 * time.Millisecond) // let the startup cycle complete and enter the wait
	s.Stop()

	done := make(chan struct{})
	go func() { s.Wait(); close(done) }()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Stop() did not interrupt the wait in time")
	}
}

func TestScheduler_CycleTimeout(t *testing.T) {
	s := New(func(ctx context.Context) (bool, error) {
		<-ctx.Done()
		return false, ctx.Err()
	}, WithInterval(time.Hour), WithCycleTimeout(10*time.Millisecond))

	outcome := s.runOneCycle(ReasonStartup)
	if outcome != OutcomeCycleTimeout {
		t.Errorf("outcome = %v, want cycle_timeout", outcome)
	}
}

func TestScheduler_ErrorOutcome(t *testing.T) {
	s := New(func(ctx context.Context) (bool, error) {
		return false, errors.New("llm unavailable")
	}, WithInterval(time.Hour))

	outcome := s.runOneCycle(ReasonStartup)
	if outcome != OutcomeError {
		t.Errorf("outcome = %v, want error", outcome)
	}
}

func TestScheduler_SignalEmittedOutcome(t *testing.T) {
	s := New(func(ctx context.Context) (bool, error) {
		return true, nil
	}, WithInterval(time.Hour))

	outcome := s.runOneCycle(ReasonStartup)
	if outcome != OutcomeSignalEmitted {
		t.Errorf("outcome = %v, want signal_emitted", outcome)
	}
}
