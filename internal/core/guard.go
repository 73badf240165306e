package core

import (
	"sync/atomic"
	"time"
)

// idleGuard watches a single file part for stalls. The timer is re-armed
// on every chunk; if the window elapses with no data, onStall runs once
// and the guard latches. A nil guard (timeout disabled) is a no-op.
//
// The guard never touches sibling parts or the connection; stall recovery
// is scoped to the one part that went quiet.
type idleGuard struct {
	timer   *time.Timer
	window  time.Duration
	stalled atomic.Bool
}

// newIdleGuard arms a guard for one part. Returns nil when window is zero
// or negative, disabling the feature entirely.
func newIdleGuard(window time.Duration, onStall func()) *idleGuard {
	if window <= 0 {
		return nil
	}
	g := &idleGuard{window: window}
	g.timer = time.AfterFunc(window, func() {
		g.stalled.Store(true)
		onStall()
	})
	return g
}

// Touch re-arms the timer after a chunk arrived.
func (g *idleGuard) Touch() {
	if g == nil || g.stalled.Load() {
		return
	}
	g.timer.Reset(g.window)
}

// Stop cancels the timer so it never fires again. Called on every terminal
// part transition.
func (g *idleGuard) Stop() {
	if g == nil {
		return
	}
	g.timer.Stop()
}

// Stalled reports whether the guard fired.
func (g *idleGuard) Stalled() bool {
	return g != nil && g.stalled.Load()
}
