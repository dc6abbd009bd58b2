package storage

import (
	"sync/atomic"
	"testing"
	"time"
)

type countingCheckpointer struct {
	calls atomic.Int32
}

func (c *countingCheckpointer) Commit() error {
	c.calls.Add(1)
	return nil
}

func TestSchedulerRunsOnInterval(t *testing.T) {
	target := &countingCheckpointer{}
	s := NewScheduler(target)
	if err := s.Start("@every 10ms"); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer s.Stop()

	deadline := time.Now().Add(time.Second)
	for target.calls.Load() < 2 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if got := target.calls.Load(); got < 2 {
		t.Fatalf("checkpoint ran %d times in 1s at a 10ms interval, want at least 2", got)
	}
}

func TestSchedulerStopHaltsFurtherRuns(t *testing.T) {
	target := &countingCheckpointer{}
	s := NewScheduler(target)
	if err := s.Start("@every 10ms"); err != nil {
		t.Fatalf("Start: %v", err)
	}
	time.Sleep(25 * time.Millisecond)
	s.Stop()
	afterStop := target.calls.Load()
	time.Sleep(50 * time.Millisecond)
	if got := target.calls.Load(); got != afterStop {
		t.Fatalf("checkpoint ran %d more times after Stop, want 0", got-afterStop)
	}
}

func TestSchedulerStartReplacesSchedule(t *testing.T) {
	target := &countingCheckpointer{}
	s := NewScheduler(target)
	if err := s.Start("@every 1h"); err != nil {
		t.Fatalf("first Start: %v", err)
	}
	if err := s.Start("@every 10ms"); err != nil {
		t.Fatalf("second Start: %v", err)
	}
	defer s.Stop()

	deadline := time.Now().Add(time.Second)
	for target.calls.Load() < 1 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if target.calls.Load() < 1 {
		t.Fatal("replacing the schedule with a shorter interval did not take effect")
	}
}
