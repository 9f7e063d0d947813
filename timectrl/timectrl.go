package timectrl

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrAlreadyRunning is returned when Run is called while another Run loop is
// active on the same clock.
var ErrAlreadyRunning = errors.New("frame clock already running")

// State describes the scheduler lifecycle. There is no stopped state: once
// Running, the clock stays Running for the life of the process.
type State int

const (
	// Idle is the state before the first tick.
	Idle State = iota
	// Running is entered on the first tick.
	Running
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Running:
		return "running"
	default:
		return "unknown"
	}
}

// FrameClock invokes registered listeners once per frame. Frames are counted,
// not timed: listeners receive the frame number and nothing else, so motion is
// tied to the refresh rate rather than wall-clock time.
type FrameClock struct {
	mu       sync.RWMutex
	Interval time.Duration

	state   State
	frame   uint64
	looping bool

	listeners []func(frame uint64)
}

// NewFrameClock constructs an Idle clock that ticks every interval when run.
func NewFrameClock(interval time.Duration) *FrameClock {
	return &FrameClock{Interval: interval}
}

// NewFrameClockFPS is a convenience for a clock running at fps frames per
// second. Non-positive values fall back to 60.
func NewFrameClockFPS(fps int) *FrameClock {
	if fps <= 0 {
		fps = 60
	}
	return NewFrameClock(time.Second / time.Duration(fps))
}

// State returns the current lifecycle state.
func (c *FrameClock) State() State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

// Frame returns the number of ticks performed so far.
func (c *FrameClock) Frame() uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.frame
}

// AddListener registers a callback invoked on every tick, in registration
// order. Listeners must not call Step.
func (c *FrameClock) AddListener(fn func(frame uint64)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.listeners = append(c.listeners, fn)
}

// Step performs one tick synchronously. Hosts with their own refresh loop
// call it directly.
func (c *FrameClock) Step() uint64 {
	c.mu.Lock()
	c.frame++
	c.state = Running
	frame := c.frame
	listeners := c.listeners
	c.mu.Unlock()

	for _, fn := range listeners {
		fn(frame)
	}
	return frame
}

// Run ticks on a time.Ticker until ctx is done. It returns ctx.Err() on
// shutdown; the clock stays Running.
func (c *FrameClock) Run(ctx context.Context) error {
	c.mu.Lock()
	if c.looping {
		c.mu.Unlock()
		return ErrAlreadyRunning
	}
	c.looping = true
	interval := c.Interval
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		c.looping = false
		c.mu.Unlock()
	}()

	if interval <= 0 {
		interval = time.Second / 60
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			c.Step()
		}
	}
}
