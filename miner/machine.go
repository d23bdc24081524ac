// Package miner extracts failure-then-fix commit pairs from merged
// change-request histories.
package miner

import "github.com/bingranl/task-mining/forge"

// phase is the tagged state of the per-change-request machine.
type phase int

const (
	// phaseScanning: walking commits, no unresolved failure observed.
	phaseScanning phase = iota
	// phaseArmed: a failing commit has been observed and no success has
	// occurred since.
	phaseArmed
)

// Pair holds indexes into a change request's commit list: the earliest
// failing commit of an unresolved run and the success that resolved it.
type Pair struct {
	Bad  int
	Good int
}

// machine is the finite-state pair detector. The zero value starts in
// phaseScanning.
type machine struct {
	phase  phase
	badIdx int
}

// observe feeds one commit's check state to the machine. It returns the
// resolved pair and true when the state arrives at success while armed.
//
// Pending, cancelled, and absent states never change machine state. While
// armed, further failing commits keep the original bad index: the pair
// captures the first break, not an intermediate still-broken attempt.
// A success while scanning is a no-op; a failure after a resolution starts
// a new armed run, so one change request may yield several pairs.
func (m *machine) observe(idx int, state forge.CheckState) (Pair, bool) {
	switch {
	case state.IsFailing():
		if m.phase == phaseScanning {
			m.phase = phaseArmed
			m.badIdx = idx
		}
	case state == forge.StateSuccess:
		if m.phase == phaseArmed {
			m.phase = phaseScanning
			return Pair{Bad: m.badIdx, Good: idx}, true
		}
	}
	return Pair{}, false
}

// Pairs runs the state machine over a chronological commit sequence and
// returns every maximal failure-run-then-success pair. An unresolved run at
// the end of the list emits nothing.
func Pairs(commits []forge.Commit) []Pair {
	var m machine
	var out []Pair
	for i := range commits {
		if p, ok := m.observe(i, commits[i].State()); ok {
			out = append(out, p)
		}
	}
	return out
}
