package debounce

import (
	"context"
	"sync/atomic"
	"testing"
	"time"
)

func countingValidate(calls *atomic.Int32) ValidateFunc {
	return func(ctx context.Context, onlyFiltered bool) (bool, error) {
		calls.Add(1)
		return true, nil
	}
}

func TestBurstCollapsesToOnePass(t *testing.T) {
	var calls atomic.Int32
	c := NewCoordinator(countingValidate(&calls), nil)

	for i := 0; i < 10; i++ {
		c.ScheduleValidation("cell_edit", 30*time.Millisecond)
	}

	time.Sleep(250 * time.Millisecond)
	if got := calls.Load(); got != 1 {
		t.Errorf("expected burst of 10 triggers to run exactly 1 pass, got %d", got)
	}
}

func TestSeparateBurstsRunSeparately(t *testing.T) {
	var calls atomic.Int32
	c := NewCoordinator(countingValidate(&calls), nil)

	c.ScheduleValidation("paste", 20*time.Millisecond)
	time.Sleep(150 * time.Millisecond)
	c.ScheduleValidation("paste", 20*time.Millisecond)
	time.Sleep(150 * time.Millisecond)

	if got := calls.Load(); got != 2 {
		t.Errorf("expected two separated bursts to run twice, got %d", got)
	}
}

func TestCancelPendingValidation(t *testing.T) {
	var calls atomic.Int32
	c := NewCoordinator(countingValidate(&calls), nil)

	c.ScheduleValidation("import", 40*time.Millisecond)
	c.CancelPendingValidation()

	time.Sleep(200 * time.Millisecond)
	if got := calls.Load(); got != 0 {
		t.Errorf("cancelled trigger must not run, got %d passes", got)
	}
}

func TestValidateNowCancelsPendingAndRunsSynchronously(t *testing.T) {
	var calls atomic.Int32
	c := NewCoordinator(countingValidate(&calls), nil)

	c.ScheduleValidation("import", 40*time.Millisecond)
	ok, err := c.ValidateNow(context.Background(), false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !ok {
		t.Error("expected synchronous pass to report valid")
	}
	if got := calls.Load(); got != 1 {
		t.Fatalf("ValidateNow must run exactly once immediately, got %d", got)
	}

	// The pending trigger was superseded; the count must not grow
	time.Sleep(200 * time.Millisecond)
	if got := calls.Load(); got != 1 {
		t.Errorf("superseded trigger ran anyway, total %d passes", got)
	}
}

func TestScheduledPassDoesNotBlockCaller(t *testing.T) {
	release := make(chan struct{})
	var calls atomic.Int32
	c := NewCoordinator(func(ctx context.Context, onlyFiltered bool) (bool, error) {
		calls.Add(1)
		<-release
		return true, nil
	}, nil)

	c.ScheduleValidation("import", 10*time.Millisecond)

	deadline := time.After(2 * time.Second)
	for calls.Load() == 0 {
		select {
		case <-deadline:
			t.Fatal("scheduled pass never started")
		default:
			time.Sleep(5 * time.Millisecond)
		}
	}

	// A trigger firing while the pass runs is dropped, not queued
	c.ScheduleValidation("import", 10*time.Millisecond)
	time.Sleep(100 * time.Millisecond)
	close(release)
	time.Sleep(100 * time.Millisecond)

	if got := calls.Load(); got != 1 {
		t.Errorf("trigger during a running pass should be dropped, got %d passes", got)
	}
}
