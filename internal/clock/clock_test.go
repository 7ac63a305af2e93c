package clock

import (
	"context"
	"testing"
	"time"
)

func TestSimulatedClockAdvanceIsInstant(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	c := NewSimulatedClock(start)

	done := make(chan struct{})
	go func() {
		_ = c.Sleep(context.Background(), 6*time.Minute)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("SimulatedClock.Sleep blocked instead of advancing instantly")
	}

	if got := c.Now(); !got.Equal(start.Add(6 * time.Minute)) {
		t.Fatalf("got %v, want %v", got, start.Add(6*time.Minute))
	}
}

func TestSimulatedClockAdvanceIgnoresNegative(t *testing.T) {
	start := time.Now()
	c := NewSimulatedClock(start)
	c.Advance(-time.Hour)
	if !c.Now().Equal(start) {
		t.Fatalf("negative Advance should be a no-op")
	}
}

func TestSimulatedClockSleepRespectsCancellation(t *testing.T) {
	c := NewSimulatedClock(time.Now())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := c.Sleep(ctx, time.Minute); err == nil {
		t.Fatalf("expected a canceled context to short-circuit Sleep")
	}
}

func TestRealClockSleepZeroReturnsImmediately(t *testing.T) {
	c := RealClock{}
	start := time.Now()
	if err := c.Sleep(context.Background(), 0); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if time.Since(start) > 50*time.Millisecond {
		t.Fatalf("Sleep(0) should return immediately")
	}
}

func TestRealClockSleepRespectsCancellation(t *testing.T) {
	c := RealClock{}
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()
	start := time.Now()
	err := c.Sleep(ctx, time.Minute)
	if err == nil {
		t.Fatalf("expected cancellation error")
	}
	if time.Since(start) > time.Second {
		t.Fatalf("Sleep did not return promptly after cancellation")
	}
}
