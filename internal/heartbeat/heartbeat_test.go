package heartbeat

import (
	"sync/atomic"
	"testing"
	"time"
)

func TestStartRunsConnectionCheck(t *testing.T) {
	var calls atomic.Int32
	check := func() (bool, bool) {
		calls.Add(1)
		return true, true
	}

	s, err := Start(0, 1, check)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer s.Stop()

	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if calls.Load() > 0 {
			return
		}
		time.Sleep(50 * time.Millisecond)
	}
	t.Fatal("connection check never ran")
}

func TestStartWithNoIntervalsSchedulesNothing(t *testing.T) {
	s, err := Start(0, 0, nil)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	s.Stop()
}

func TestStopIsSafeAfterNoTicks(t *testing.T) {
	s, err := Start(3600, 3600, func() (bool, bool) { return false, false })
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	s.Stop()
}
