package compaction

import "testing"

func TestHint_addFreeCrossesThresholdOnce(t *testing.T) {
	h := &Hint{}
	const threshold = 100

	if crossed := h.AddFree(40, threshold); crossed {
		t.Error("AddFree(40) crossed threshold early")
	}
	if h.State != Nop {
		t.Errorf("State = %v, want Nop", h.State)
	}

	if crossed := h.AddFree(70, threshold); !crossed {
		t.Error("AddFree(70) did not report crossing the threshold")
	}
	if h.State != Queued {
		t.Errorf("State = %v, want Queued", h.State)
	}

	// Once queued, further free bytes must not re-report a crossing.
	h.State = Scheduling
	if crossed := h.AddFree(1000, threshold); crossed {
		t.Error("AddFree on an already-scheduled hint reported crossing again")
	}
}

func TestStateString(t *testing.T) {
	cases := map[State]string{Nop: "nop", Queued: "queued", Scheduling: "scheduling", Compacting: "compacting"}
	for state, want := range cases {
		if got := state.String(); got != want {
			t.Errorf("%d.String() = %q, want %q", state, got, want)
		}
	}
}
