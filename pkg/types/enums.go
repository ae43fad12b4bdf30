// Package types defines the public domain types for dispatching workflows and tracking their runs.
package types

// RunStatus is the lifecycle status GitHub reports for a workflow run.
type RunStatus string

// RunStatus values reported by the runs API. Values not listed here (for
// example "waiting" or "requested") are kept verbatim and treated as
// non-terminal.
const (
	StatusQueued     RunStatus = "queued"
	StatusInProgress RunStatus = "in_progress"
	StatusCompleted  RunStatus = "completed"
	StatusUnknown    RunStatus = "unknown"
)

// RunConclusion is the final outcome of a completed run. It is empty while
// the run is still in flight.
type RunConclusion string

// RunConclusion values reported by the runs API.
const (
	ConclusionNone           RunConclusion = ""
	ConclusionSuccess        RunConclusion = "success"
	ConclusionFailure        RunConclusion = "failure"
	ConclusionCancelled      RunConclusion = "cancelled"
	ConclusionTimedOut       RunConclusion = "timed_out"
	ConclusionSkipped        RunConclusion = "skipped"
	ConclusionNeutral        RunConclusion = "neutral"
	ConclusionActionRequired RunConclusion = "action_required"
	ConclusionStale          RunConclusion = "stale"
	ConclusionStartupFailure RunConclusion = "startup_failure"
)

// PollState is the state of the completion poller for a single run.
type PollState string

// PollState values. PollPending is the only non-terminal state.
const (
	PollPending          PollState = "PENDING"
	PollCompletedSuccess PollState = "COMPLETED_SUCCESS"
	PollCompletedFailure PollState = "COMPLETED_FAILURE"
	PollCompletedOther   PollState = "COMPLETED_OTHER"
)
