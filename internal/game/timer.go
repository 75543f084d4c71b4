package game

import (
	"context"
	"time"
)

// defaultTimerInterval keeps the countdown responsive without busy-waiting.
const defaultTimerInterval = 100 * time.Millisecond

// Timer rotates game turns concurrently with the capture loop. It observes
// cancellation and the pause flag at every sleep, and exits on its own once
// the game finishes.
type Timer struct {
	state    *State
	interval time.Duration
	paused   func() bool
}

// NewTimer creates a timer for the given state. paused may be nil when the
// run has no pause control.
func NewTimer(state *State, interval time.Duration, paused func() bool) *Timer {
	if interval <= 0 {
		interval = defaultTimerInterval
	}
	return &Timer{state: state, interval: interval, paused: paused}
}

// Run loops until the context is cancelled or the game finishes.
func (t *Timer) Run(ctx context.Context) {
	ticker := time.NewTicker(t.interval)
	defer ticker.Stop()

	for {
		if t.state.Finished() {
			return
		}
		if t.paused == nil || !t.paused() {
			t.state.rotateIfExpired()
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
