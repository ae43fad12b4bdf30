// Package lambda provides shared types and initialization for the dispatch
// Lambda handler.
package lambda

import (
	"maps"

	"github.com/dwsmith1983/dispatchwait/pkg/types"
)

// DispatchEvent is the input to the dispatch Lambda. Set fields override the
// configuration loaded at cold start.
type DispatchEvent struct {
	Workflow         string                 `json:"workflow,omitempty"`
	Ref              string                 `json:"ref,omitempty"`
	Inputs           map[string]interface{} `json:"inputs,omitempty"`
	PropagateFailure *bool                  `json:"propagateFailure,omitempty"`
	Wait             *bool                  `json:"wait,omitempty"`
}

// DispatchResponse is the output of the dispatch Lambda.
type DispatchResponse struct {
	RunIDs   []types.RunID       `json:"runIds"`
	Verdicts []types.Verdict     `json:"verdicts,omitempty"`
	Pulls    []types.PullRequest `json:"pulls,omitempty"`
	OK       bool                `json:"ok"`
	Error    string              `json:"error,omitempty"`
}

// Apply returns a copy of base with the event's overrides. base is not
// modified.
func (e DispatchEvent) Apply(base *types.Config) *types.Config {
	cfg := *base
	cfg.ClientPayload = maps.Clone(base.ClientPayload)
	if e.Workflow != "" {
		cfg.WorkflowFile = e.Workflow
	}
	if e.Ref != "" {
		cfg.Ref = e.Ref
	}
	if e.Inputs != nil {
		cfg.ClientPayload = maps.Clone(e.Inputs)
	}
	if e.PropagateFailure != nil {
		cfg.PropagateFailure = *e.PropagateFailure
	}
	if e.Wait != nil {
		cfg.WaitWorkflow = *e.Wait
	}
	return &cfg
}
