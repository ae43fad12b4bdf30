// Package report turns finished runs into the tool's own success or failure.
package report

import (
	"fmt"
	"strings"

	"github.com/dwsmith1983/dispatchwait/pkg/types"
)

// Signal reports whether a run in state should count as success. Only
// COMPLETED_SUCCESS is a success when failures propagate; with propagation
// off every terminal state is reported as success.
func Signal(state types.PollState, propagateFailure bool) bool {
	if state == types.PollCompletedSuccess {
		return true
	}
	return !propagateFailure
}

// Summary collects verdicts in the order runs were resolved.
type Summary struct {
	propagate bool
	verdicts  []types.Verdict
}

// NewSummary creates an empty summary.
func NewSummary(propagateFailure bool) *Summary {
	return &Summary{propagate: propagateFailure}
}

// Add records the verdict for one run and returns it.
func (s *Summary) Add(run types.RunRecord, state types.PollState) types.Verdict {
	v := types.Verdict{Run: run, State: state, Success: Signal(state, s.propagate)}
	s.verdicts = append(s.verdicts, v)
	return v
}

// Verdicts returns the recorded verdicts.
func (s *Summary) Verdicts() []types.Verdict {
	return append([]types.Verdict(nil), s.verdicts...)
}

// OK is the logical AND of every verdict. An empty summary is OK.
func (s *Summary) OK() bool {
	for _, v := range s.verdicts {
		if !v.Success {
			return false
		}
	}
	return true
}

// Err returns nil when OK, otherwise an error naming the failed runs.
func (s *Summary) Err() error {
	var failed []string
	for _, v := range s.verdicts {
		if !v.Success {
			failed = append(failed, fmt.Sprintf("%s (%s) %s", v.Run.ID, v.Run.Conclusion, v.Run.HTMLURL))
		}
	}
	if len(failed) == 0 {
		return nil
	}
	return fmt.Errorf("workflow run failed: %s", strings.Join(failed, ", "))
}
