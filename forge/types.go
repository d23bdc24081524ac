// Package forge provides read-only access to the hosting provider's
// change-request and check-run history over its REST API.
package forge

import (
	"log/slog"
	"time"
)

// LevelDump matches miner.LevelDump for raw response logging at -vvv.
const LevelDump slog.Level = slog.LevelDebug - 8

// CheckState is the collapsed build state of a commit, derived from the
// latest-reported conclusion among its check runs.
type CheckState string

const (
	StateNone      CheckState = "none"
	StatePending   CheckState = "pending"
	StateSuccess   CheckState = "success"
	StateFailure   CheckState = "failure"
	StateError     CheckState = "error"
	StateCancelled CheckState = "cancelled"
)

// IsFailing reports whether the state arms the pair miner.
func (s CheckState) IsFailing() bool {
	return s == StateFailure || s == StateError
}

// ChangeRequest is a merged pull/merge request. Immutable once merged.
type ChangeRequest struct {
	MergedAt time.Time `json:"merged_at"`
	Title    string    `json:"title"`
	URL      string    `json:"html_url"`
	ID       int64     `json:"number"`
}

// CheckRun is a single automated check report attached to a commit.
type CheckRun struct {
	CompletedAt time.Time `json:"completed_at"`
	Name        string    `json:"name"`
	Status      string    `json:"status"`     // queued, in_progress, completed
	Conclusion  string    `json:"conclusion"` // success, failure, timed_out, ...
}

// Commit is one commit of a change request, in chronological order, with
// the check runs observed at its head.
type Commit struct {
	AuthoredAt time.Time
	SHA        string
	ParentSHA  string
	Message    string
	Checks     []CheckRun
}

// State collapses the commit's check runs into a single CheckState.
// Any run still in progress reports pending; among completed runs the
// latest-reported conclusion wins. Commits with no check runs report
// StateNone.
func (c *Commit) State() CheckState {
	if len(c.Checks) == 0 {
		return StateNone
	}

	latest := c.Checks[0]
	for _, run := range c.Checks {
		// A run still in flight means the commit's verdict is not in yet,
		// whatever the completed runs say.
		if run.Status != "completed" {
			return StatePending
		}
		if run.CompletedAt.After(latest.CompletedAt) {
			latest = run
		}
	}

	switch latest.Conclusion {
	case "success":
		return StateSuccess
	case "failure":
		return StateFailure
	case "cancelled":
		return StateCancelled
	case "timed_out", "action_required", "startup_failure", "stale":
		return StateError
	default:
		// neutral, skipped, or an unknown future conclusion: no signal.
		return StateNone
	}
}
