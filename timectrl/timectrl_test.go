package timectrl

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

func TestFrameClockStartsIdle(t *testing.T) {
	c := NewFrameClock(time.Millisecond)
	if c.State() != Idle {
		t.Fatalf("State() = %v, want idle", c.State())
	}
	if c.Frame() != 0 {
		t.Fatalf("Frame() = %d, want 0", c.Frame())
	}
}

func TestFrameClockStepRunsListenersInOrder(t *testing.T) {
	c := NewFrameClock(time.Millisecond)
	var order []string
	c.AddListener(func(uint64) { order = append(order, "animate") })
	c.AddListener(func(uint64) { order = append(order, "render") })

	if got := c.Step(); got != 1 {
		t.Fatalf("Step() = %d, want 1", got)
	}
	if c.State() != Running {
		t.Fatalf("State() = %v, want running", c.State())
	}
	if len(order) != 2 || order[0] != "animate" || order[1] != "render" {
		t.Fatalf("listener order = %v", order)
	}
}

func TestFrameClockRunTicksUntilCancel(t *testing.T) {
	c := NewFrameClock(time.Millisecond)
	var ticks atomic.Uint64
	c.AddListener(func(uint64) { ticks.Add(1) })

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Run(ctx) }()

	deadline := time.Now().Add(2 * time.Second)
	for ticks.Load() < 3 {
		if time.Now().After(deadline) {
			t.Fatalf("clock did not tick")
		}
		time.Sleep(time.Millisecond)
	}
	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("Run() = %v, want context.Canceled", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("Run did not return after cancel")
	}
	if c.State() != Running {
		t.Fatalf("State() after shutdown = %v, want running", c.State())
	}
}

func TestFrameClockRejectsSecondRun(t *testing.T) {
	c := NewFrameClock(time.Hour)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() { _ = c.Run(ctx) }()

	deadline := time.Now().Add(2 * time.Second)
	for !c.isLooping() {
		if time.Now().After(deadline) {
			t.Fatalf("first Run never started")
		}
		time.Sleep(time.Millisecond)
	}
	if err := c.Run(ctx); !errors.Is(err, ErrAlreadyRunning) {
		t.Fatalf("second Run() = %v, want ErrAlreadyRunning", err)
	}
}

func (c *FrameClock) isLooping() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.looping
}

func TestNewFrameClockFPS(t *testing.T) {
	if got := NewFrameClockFPS(50).Interval; got != 20*time.Millisecond {
		t.Fatalf("Interval = %v, want 20ms", got)
	}
	if got := NewFrameClockFPS(0).Interval; got != time.Second/60 {
		t.Fatalf("Interval = %v, want 1/60s", got)
	}
}
