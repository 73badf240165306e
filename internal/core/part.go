package core

// part.go holds the per-file-part state machine. Transitions are checked
// against the allowed graph (New -> Streaming -> one terminal state) so a
// part that already reached a terminal state cannot produce an artifact or
// re-enter streaming.

import "strings"

// maxFileNameLen caps sanitized filenames, matching common filesystem
// component limits.
const maxFileNameLen = 255

// filePart is the mutable state for one file part being streamed.
type filePart struct {
	fieldName string
	fileName  string
	mimeType  string
	encoding  string

	size      int64
	truncated bool

	sink    Sink
	guard   *idleGuard
	release func() // this part's idempotent cleanup entry

	state partState
}

// canTransition reports whether a move from s to target is legal.
func (s partState) canTransition(target partState) bool {
	switch s {
	case partNew:
		return target == partStreaming || target.terminal()
	case partStreaming:
		return target.terminal()
	default:
		return false
	}
}

// transition moves the part to target if legal, cancelling the idle guard
// on any terminal state so an orphaned timer can never fire after cleanup.
// Returns false when the part was already terminal.
func (p *filePart) transition(target partState) bool {
	if !p.state.canTransition(target) {
		return false
	}
	p.state = target
	if target.terminal() {
		p.guard.Stop()
	}
	return true
}

// sanitizeFileName strips any path components (both separator styles) and
// caps the result. Parts without a usable name become "unnamed".
func sanitizeFileName(name string) string {
	if i := strings.LastIndexAny(name, `/\`); i >= 0 {
		name = name[i+1:]
	}
	if len(name) > maxFileNameLen {
		name = name[:maxFileNameLen]
	}
	if name == "" || name == "." || name == ".." {
		return "unnamed"
	}
	return name
}
