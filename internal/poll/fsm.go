package poll

import (
	"fmt"

	"github.com/dwsmith1983/dispatchwait/pkg/types"
)

// Transition table: from -> allowed tos
var validTransitions = map[types.PollState][]types.PollState{
	types.PollPending: {
		types.PollPending,
		types.PollCompletedSuccess,
		types.PollCompletedFailure,
		types.PollCompletedOther,
	},
	types.PollCompletedSuccess: {},
	types.PollCompletedFailure: {},
	types.PollCompletedOther:   {},
}

// CanTransition checks if moving from one poll state to another is valid.
func CanTransition(from, to types.PollState) bool {
	for _, s := range validTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Transition validates a state change.
func Transition(from, to types.PollState) error {
	if !CanTransition(from, to) {
		return fmt.Errorf("invalid transition from %s to %s", from, to)
	}
	return nil
}

// IsTerminal returns true for every state other than PollPending.
func IsTerminal(s types.PollState) bool {
	return s == types.PollCompletedSuccess || s == types.PollCompletedFailure || s == types.PollCompletedOther
}

// Classify maps a run observation onto a poll state. Anything short of
// status "completed" is pending, whatever the conclusion says.
func Classify(rec types.RunRecord) types.PollState {
	if !rec.Terminal() {
		return types.PollPending
	}
	switch rec.Conclusion {
	case types.ConclusionSuccess:
		return types.PollCompletedSuccess
	case types.ConclusionFailure, types.ConclusionTimedOut, types.ConclusionStartupFailure:
		return types.PollCompletedFailure
	default:
		return types.PollCompletedOther
	}
}
