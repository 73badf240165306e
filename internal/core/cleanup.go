package core

import "sync"

// CleanupRegistry collects one release action per sink created in a
// session, in creation order. Entries are wrapped in sync.Once so any
// trigger (abort, per-file limit, aggregate limit, decoder error) can fire
// them any number of times with effect only on the first invocation.
// The registry is discarded with the session.
type CleanupRegistry struct {
	mu      sync.Mutex
	actions []func()
}

// Add registers a release action and returns its idempotent wrapper, so
// callers can also fire just that entry (per-part stall cleanup).
func (r *CleanupRegistry) Add(release func()) func() {
	var once sync.Once
	wrapped := func() { once.Do(release) }

	r.mu.Lock()
	r.actions = append(r.actions, wrapped)
	r.mu.Unlock()
	return wrapped
}

// RunAll invokes every registered action. Safe to call more than once
// across abort and later error paths.
func (r *CleanupRegistry) RunAll() {
	r.mu.Lock()
	actions := r.actions
	r.mu.Unlock()

	for _, fn := range actions {
		fn()
	}
}

// Len returns the number of registered actions.
func (r *CleanupRegistry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.actions)
}
