package core

import (
	"sync/atomic"
	"testing"
	"time"
)

func TestIdleGuard_DisabledIsNil(t *testing.T) {
	g := newIdleGuard(0, func() { t.Error("onStall fired for disabled guard") })
	if g != nil {
		t.Fatal("zero window should return nil guard")
	}

	// The nil guard must be safe to use.
	g.Touch()
	g.Stop()
	if g.Stalled() {
		t.Error("nil guard reports stalled")
	}
}

func TestIdleGuard_FiresOnSilence(t *testing.T) {
	fired := make(chan struct{})
	g := newIdleGuard(20*time.Millisecond, func() { close(fired) })

	select {
	case <-fired:
	case <-time.After(2 * time.Second):
		t.Fatal("guard never fired")
	}
	if !g.Stalled() {
		t.Error("Stalled() = false after firing")
	}
}

func TestIdleGuard_TouchKeepsAlive(t *testing.T) {
	var fired atomic.Bool
	g := newIdleGuard(100*time.Millisecond, func() { fired.Store(true) })

	// Keep touching well inside the window.
	for i := 0; i < 10; i++ {
		time.Sleep(20 * time.Millisecond)
		g.Touch()
	}

	if fired.Load() {
		t.Error("guard fired despite steady chunks")
	}
	g.Stop()
}

func TestIdleGuard_StopPreventsFiring(t *testing.T) {
	var fired atomic.Bool
	g := newIdleGuard(30*time.Millisecond, func() { fired.Store(true) })
	g.Stop()

	time.Sleep(100 * time.Millisecond)
	if fired.Load() {
		t.Error("guard fired after Stop")
	}
}
