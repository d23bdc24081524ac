package miner

import (
	"fmt"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/bingranl/task-mining/forge"
)

// commitsWithStates builds a commit list whose collapsed states match the
// given sequence.
func commitsWithStates(states ...forge.CheckState) []forge.Commit {
	base := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	commits := make([]forge.Commit, len(states))
	for i, s := range states {
		c := forge.Commit{
			SHA:        fmt.Sprintf("%c%039d", 'a'+i, i),
			AuthoredAt: base.Add(time.Duration(i) * time.Hour),
		}
		switch s {
		case forge.StateNone:
			// no check runs
		case forge.StatePending:
			c.Checks = []forge.CheckRun{{Name: "ci", Status: "in_progress"}}
		case forge.StateSuccess:
			c.Checks = []forge.CheckRun{{Name: "ci", Status: "completed", Conclusion: "success", CompletedAt: base}}
		case forge.StateFailure:
			c.Checks = []forge.CheckRun{{Name: "ci", Status: "completed", Conclusion: "failure", CompletedAt: base}}
		case forge.StateError:
			c.Checks = []forge.CheckRun{{Name: "ci", Status: "completed", Conclusion: "timed_out", CompletedAt: base}}
		case forge.StateCancelled:
			c.Checks = []forge.CheckRun{{Name: "ci", Status: "completed", Conclusion: "cancelled", CompletedAt: base}}
		}
		commits[i] = c
	}
	return commits
}

func TestPairs(t *testing.T) {
	s := forge.StateSuccess
	f := forge.StateFailure
	e := forge.StateError
	p := forge.StatePending
	c := forge.StateCancelled
	n := forge.StateNone

	tests := []struct {
		name   string
		states []forge.CheckState
		want   []Pair
	}{
		{
			name:   "single failure then fix",
			states: []forge.CheckState{f, s},
			want:   []Pair{{Bad: 0, Good: 1}},
		},
		{
			name:   "failure run collapses to earliest bad",
			states: []forge.CheckState{s, f, f, s},
			want:   []Pair{{Bad: 1, Good: 3}},
		},
		{
			name:   "multiple resolutions in one change request",
			states: []forge.CheckState{f, s, f, f, s},
			want:   []Pair{{Bad: 0, Good: 1}, {Bad: 2, Good: 4}},
		},
		{
			name:   "error state arms like failure",
			states: []forge.CheckState{e, s},
			want:   []Pair{{Bad: 0, Good: 1}},
		},
		{
			name:   "pending and cancelled are transparent",
			states: []forge.CheckState{f, p, c, s},
			want:   []Pair{{Bad: 0, Good: 3}},
		},
		{
			name:   "absent checks are transparent",
			states: []forge.CheckState{f, n, s},
			want:   []Pair{{Bad: 0, Good: 2}},
		},
		{
			name:   "unresolved run at end emits nothing",
			states: []forge.CheckState{s, f, f},
			want:   nil,
		},
		{
			name:   "all green emits nothing",
			states: []forge.CheckState{s, s, s},
			want:   nil,
		},
		{
			name:   "success before any failure is ignored",
			states: []forge.CheckState{s, f, s},
			want:   []Pair{{Bad: 1, Good: 2}},
		},
		{
			name:   "empty history",
			states: nil,
			want:   nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Pairs(commitsWithStates(tt.states...))
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("Pairs() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestMachineRestartsAfterResolution(t *testing.T) {
	var m machine
	if _, ok := m.observe(0, forge.StateFailure); ok {
		t.Fatal("failure must not emit a pair")
	}
	p, ok := m.observe(1, forge.StateSuccess)
	if !ok || p != (Pair{Bad: 0, Good: 1}) {
		t.Fatalf("expected pair {0,1}, got %+v ok=%v", p, ok)
	}
	// The machine must be fully reset: a new failure starts a new run.
	if _, ok := m.observe(2, forge.StateFailure); ok {
		t.Fatal("re-armed failure must not emit a pair")
	}
	p, ok = m.observe(3, forge.StateSuccess)
	if !ok || p != (Pair{Bad: 2, Good: 3}) {
		t.Fatalf("expected pair {2,3}, got %+v ok=%v", p, ok)
	}
}
