package types

import (
	"strconv"
	"time"
)

// DefaultRef is the git ref dispatched when none is configured.
const DefaultRef = "main"

// RunID identifies a single workflow run.
type RunID int64

// String returns the decimal form used in API paths and outputs.
func (id RunID) String() string { return strconv.FormatInt(int64(id), 10) }

// ParseRunID parses the decimal form of a run identifier.
func ParseRunID(s string) (RunID, error) {
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, err
	}
	return RunID(v), nil
}

// DispatchRequest describes a single workflow_dispatch call. Build it with
// NewDispatchRequest and treat it as read-only afterwards.
type DispatchRequest struct {
	Workflow string
	Ref      string
	Inputs   map[string]interface{}
}

// NewDispatchRequest applies the default ref and copies inputs so later
// changes by the caller do not leak into the request.
func NewDispatchRequest(workflow, ref string, inputs map[string]interface{}) DispatchRequest {
	if ref == "" {
		ref = DefaultRef
	}
	copied := make(map[string]interface{}, len(inputs))
	for k, v := range inputs {
		copied[k] = v
	}
	return DispatchRequest{Workflow: workflow, Ref: ref, Inputs: copied}
}

// WithInput returns a copy of the request with one extra input set.
func (r DispatchRequest) WithInput(key string, value interface{}) DispatchRequest {
	out := NewDispatchRequest(r.Workflow, r.Ref, r.Inputs)
	out.Inputs[key] = value
	return out
}

// RunRecord is a single observation of a workflow run. It is fetched fresh on
// every poll and never cached.
type RunRecord struct {
	ID           RunID         `json:"id"`
	Status       RunStatus     `json:"status"`
	Conclusion   RunConclusion `json:"conclusion"`
	HTMLURL      string        `json:"html_url"`
	Name         string        `json:"name,omitempty"`
	DisplayTitle string        `json:"display_title,omitempty"`
	CreatedAt    time.Time     `json:"created_at,omitzero"`
}

// Terminal reports whether the run has completed. The conclusion is only
// meaningful once this returns true.
func (r RunRecord) Terminal() bool {
	return r.Status == StatusCompleted
}

// PullRequest is the subset of an open pull request surfaced after a
// successful run.
type PullRequest struct {
	Number  int    `json:"number"`
	Title   string `json:"title"`
	HTMLURL string `json:"html_url"`
}

// Verdict is the reported outcome of one tracked run.
type Verdict struct {
	Run     RunRecord `json:"run"`
	State   PollState `json:"state"`
	Success bool      `json:"success"`
}
