// Package compaction holds the pure data the engine's compaction
// coordinator mutates: a free-byte hint per segment and the state machine
// that tracks a segment's progress through the compaction pipeline. The
// hints map and task queue themselves live behind the engine's mutex (see
// internal/engine); this package supplies the types and the threshold
// check, not the lock.
package compaction

// State is a segment's position in the compaction pipeline.
type State int

const (
	// Nop segments have free bytes below the threshold and are not queued.
	Nop State = iota
	// Queued segments have crossed the threshold and are waiting to be
	// picked up by a compaction pass.
	Queued
	// Scheduling segments have been popped off the task queue and are about
	// to start rewriting.
	Scheduling
	// Compacting segments are actively having their live records rewritten
	// to the active segment.
	Compacting
)

func (s State) String() string {
	switch s {
	case Nop:
		return "nop"
	case Queued:
		return "queued"
	case Scheduling:
		return "scheduling"
	case Compacting:
		return "compacting"
	default:
		return "unknown"
	}
}

// Hint tracks one segment's reclaimable-byte count and pipeline state.
type Hint struct {
	FreeBytes uint64
	State     State
}

// AddFree adds n dead bytes to h and reports whether this crossed
// threshold for the first time, transitioning Nop to Queued. Crossing the
// threshold while already Queued/Scheduling/Compacting reports false: the
// segment is already enrolled (or being handled) and must not be
// double-queued.
func (h *Hint) AddFree(n uint64, threshold uint64) (crossed bool) {
	wasBelow := h.FreeBytes < threshold
	h.FreeBytes += n
	if wasBelow && h.FreeBytes >= threshold && h.State == Nop {
		h.State = Queued
		return true
	}
	return false
}
