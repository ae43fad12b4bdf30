package ghapi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/dwsmith1983/dispatchwait/pkg/types"
)

// RunsPageSize is the page size requested when listing runs.
const RunsPageSize = 100

// createdLayout formats the lower bound of the created filter.
const createdLayout = "2006-01-02T15:04:05Z"

type dispatchBody struct {
	Ref    string                 `json:"ref"`
	Inputs map[string]interface{} `json:"inputs"`
}

type runList struct {
	WorkflowRuns []struct {
		ID types.RunID `json:"id"`
	} `json:"workflow_runs"`
}

// Dispatch fires a workflow_dispatch event. GitHub answers 204 with no body
// and no run identifier.
func (c *Client) Dispatch(ctx context.Context, req types.DispatchRequest) error {
	inputs := req.Inputs
	if inputs == nil {
		inputs = map[string]interface{}{}
	}
	path := "actions/workflows/" + url.PathEscape(req.Workflow) + "/dispatches"
	_, err := c.Call(ctx, http.MethodPost, path, dispatchBody{Ref: req.Ref, Inputs: inputs})
	return err
}

// RunsPath builds the listing path for dispatch-triggered runs created at or
// after since, optionally filtered by actor.
func RunsPath(workflow string, since time.Time, actor string) string {
	q := url.Values{}
	q.Set("event", "workflow_dispatch")
	q.Set("created", ">="+since.UTC().Format(createdLayout))
	if actor != "" {
		q.Set("actor", actor)
	}
	q.Set("per_page", fmt.Sprintf("%d", RunsPageSize))
	return "actions/workflows/" + url.PathEscape(workflow) + "/runs?" + q.Encode()
}

// ListRunIDs returns the identifiers of dispatch-triggered runs of workflow
// created at or after since.
func (c *Client) ListRunIDs(ctx context.Context, workflow string, since time.Time, actor string) ([]types.RunID, error) {
	data, err := c.Call(ctx, http.MethodGet, RunsPath(workflow, since, actor), nil)
	if err != nil {
		return nil, err
	}
	var list runList
	if err := json.Unmarshal(data, &list); err != nil {
		return nil, fmt.Errorf("list runs: parsing response: %w", err)
	}
	ids := make([]types.RunID, 0, len(list.WorkflowRuns))
	for _, r := range list.WorkflowRuns {
		ids = append(ids, r.ID)
	}
	return ids, nil
}

// GetRun fetches the current state of a single run.
func (c *Client) GetRun(ctx context.Context, id types.RunID) (types.RunRecord, error) {
	data, err := c.Call(ctx, http.MethodGet, "actions/runs/"+id.String(), nil)
	if err != nil {
		return types.RunRecord{}, err
	}
	var rec types.RunRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return types.RunRecord{}, fmt.Errorf("get run %s: parsing response: %w", id, err)
	}
	if rec.ID == 0 {
		rec.ID = id
	}
	if rec.Status == "" {
		rec.Status = types.StatusUnknown
	}
	return rec, nil
}

// ListOpenPulls returns the repository's open pull requests.
func (c *Client) ListOpenPulls(ctx context.Context) ([]types.PullRequest, error) {
	data, err := c.Call(ctx, http.MethodGet, "pulls?state=open", nil)
	if err != nil {
		return nil, err
	}
	var pulls []types.PullRequest
	if err := json.Unmarshal(data, &pulls); err != nil {
		return nil, fmt.Errorf("list pulls: parsing response: %w", err)
	}
	return pulls, nil
}
