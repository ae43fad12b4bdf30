// Package testutil provides an in-memory GitHub Actions API for tests.
package testutil

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/dwsmith1983/dispatchwait/pkg/types"
)

// Owner and Repo are the coordinates served by FakeGitHub.
const (
	Owner = "acme"
	Repo  = "widgets"
)

type cannedResponse struct {
	status int
	body   string
}

type listedRun struct {
	id      types.RunID
	created time.Time
}

// FakeGitHub serves the dispatch, runs and pulls endpoints from memory.
type FakeGitHub struct {
	mu sync.Mutex

	srv *httptest.Server

	runs          []listedRun
	dispatchRuns  []types.RunID
	nextRunID     types.RunID
	listingLag    int
	pendingLag    int
	pendingRuns   []listedRun
	dispatchFails []cannedResponse
	runStates     map[types.RunID][]types.RunRecord
	runGets       map[types.RunID]int
	runFails      map[types.RunID][]cannedResponse
	pulls         []types.PullRequest
	pullsStatus   int
	titleInput    map[types.RunID]string
	lastInputs    map[string]interface{}

	dispatches []map[string]interface{}
	requests   []string
	listCalls  int
	pullCalls  int
	authByPath map[string]string
}

// NewFakeGitHub starts a fake API server closed at test cleanup.
func NewFakeGitHub(t *testing.T) *FakeGitHub {
	t.Helper()
	f := &FakeGitHub{
		nextRunID:   1000,
		runStates:   map[types.RunID][]types.RunRecord{},
		runGets:     map[types.RunID]int{},
		runFails:    map[types.RunID][]cannedResponse{},
		pullsStatus: http.StatusOK,
		authByPath:  map[string]string{},
		titleInput:  map[types.RunID]string{},
	}
	f.srv = httptest.NewServer(http.HandlerFunc(f.serve))
	t.Cleanup(f.srv.Close)
	return f
}

// URL is the API base to hand to ghapi.New.
func (f *FakeGitHub) URL() string { return f.srv.URL }

// RunURL is the html_url reported for id.
func RunURL(id types.RunID) string {
	return fmt.Sprintf("https://github.com/%s/%s/actions/runs/%d", Owner, Repo, id)
}

// AddRun lists an existing run created at created.
func (f *FakeGitHub) AddRun(id types.RunID, created time.Time) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.runs = append(f.runs, listedRun{id: id, created: created})
}

// SetDispatchRuns sets the runs that appear after a successful dispatch.
// By default a single run with an increasing id appears.
func (f *FakeGitHub) SetDispatchRuns(ids ...types.RunID) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.dispatchRuns = ids
}

// SetListingLag delays the visibility of dispatched runs by n listing calls.
func (f *FakeGitHub) SetListingLag(n int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listingLag = n
}

// SetRunTitleFromInput makes run id report the value of dispatch input key
// in its display title, the way `run-name: ${{ inputs.key }}` does.
func (f *FakeGitHub) SetRunTitleFromInput(id types.RunID, key string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.titleInput[id] = key
}

// QueueDispatchFailure makes the next dispatch call fail with status/body.
func (f *FakeGitHub) QueueDispatchFailure(status int, body string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.dispatchFails = append(f.dispatchFails, cannedResponse{status: status, body: body})
}

// SetRunStates scripts successive GET responses for a run; the last one
// repeats.
func (f *FakeGitHub) SetRunStates(id types.RunID, states ...types.RunRecord) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.runStates[id] = states
}

// QueueRunFailure makes the next GET of run id fail with status/body.
func (f *FakeGitHub) QueueRunFailure(id types.RunID, status int, body string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.runFails[id] = append(f.runFails[id], cannedResponse{status: status, body: body})
}

// SetPulls sets the open pull request listing and its status code.
func (f *FakeGitHub) SetPulls(status int, pulls ...types.PullRequest) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pullsStatus = status
	f.pulls = pulls
}

// Dispatches returns the decoded bodies of every successful dispatch call.
func (f *FakeGitHub) Dispatches() []map[string]interface{} {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]map[string]interface{}(nil), f.dispatches...)
}

// DispatchAttempts counts dispatch calls including failed ones.
func (f *FakeGitHub) DispatchAttempts() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, r := range f.requests {
		if strings.HasSuffix(r, "/dispatches") {
			n++
		}
	}
	return n
}

// RunGets counts GET calls for run id, including failed ones.
func (f *FakeGitHub) RunGets(id types.RunID) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.runGets[id]
}

// ListCalls counts run listing calls.
func (f *FakeGitHub) ListCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.listCalls
}

// PullCalls counts pull request listing calls.
func (f *FakeGitHub) PullCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.pullCalls
}

// Requests returns "METHOD path" for every request served.
func (f *FakeGitHub) Requests() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.requests...)
}

// AuthFor returns the Authorization header last seen on a path suffix.
func (f *FakeGitHub) AuthFor(suffix string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.authByPath[suffix]
}

func (f *FakeGitHub) serve(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	prefix := "/repos/" + Owner + "/" + Repo + "/"
	if !strings.HasPrefix(r.URL.Path, prefix) {
		writeJSON(w, http.StatusNotFound, `{"message":"Not Found"}`)
		return
	}
	path := strings.TrimPrefix(r.URL.Path, prefix)
	f.requests = append(f.requests, r.Method+" "+path)

	switch {
	case r.Method == http.MethodPost && strings.HasSuffix(path, "/dispatches"):
		f.authByPath["dispatches"] = r.Header.Get("Authorization")
		f.handleDispatch(w, r)
	case r.Method == http.MethodGet && strings.HasSuffix(path, "/runs"):
		f.handleList(w, r)
	case r.Method == http.MethodGet && strings.HasPrefix(path, "actions/runs/"):
		f.handleGetRun(w, strings.TrimPrefix(path, "actions/runs/"))
	case r.Method == http.MethodGet && path == "pulls":
		f.authByPath["pulls"] = r.Header.Get("Authorization")
		f.pullCalls++
		data, _ := json.Marshal(f.pulls)
		if f.pullsStatus != http.StatusOK {
			data = []byte(`{"message":"Bad credentials"}`)
		}
		writeJSON(w, f.pullsStatus, string(data))
	default:
		writeJSON(w, http.StatusNotFound, `{"message":"Not Found"}`)
	}
}

func (f *FakeGitHub) handleDispatch(w http.ResponseWriter, r *http.Request) {
	if len(f.dispatchFails) > 0 {
		fail := f.dispatchFails[0]
		f.dispatchFails = f.dispatchFails[1:]
		writeJSON(w, fail.status, fail.body)
		return
	}

	data, _ := io.ReadAll(r.Body)
	var body map[string]interface{}
	if err := json.Unmarshal(data, &body); err != nil {
		writeJSON(w, http.StatusUnprocessableEntity, `{"message":"Problems parsing JSON"}`)
		return
	}
	f.dispatches = append(f.dispatches, body)
	f.lastInputs, _ = body["inputs"].(map[string]interface{})

	ids := f.dispatchRuns
	if len(ids) == 0 {
		f.nextRunID++
		ids = []types.RunID{f.nextRunID}
	}
	now := time.Now()
	for _, id := range ids {
		f.pendingRuns = append(f.pendingRuns, listedRun{id: id, created: now})
	}
	f.pendingLag = f.listingLag
	w.WriteHeader(http.StatusNoContent)
}

func (f *FakeGitHub) handleList(w http.ResponseWriter, r *http.Request) {
	f.listCalls++
	if len(f.pendingRuns) > 0 {
		if f.pendingLag > 0 {
			f.pendingLag--
		} else {
			f.runs = append(f.runs, f.pendingRuns...)
			f.pendingRuns = nil
		}
	}

	since := time.Time{}
	if c := r.URL.Query().Get("created"); c != "" {
		if ts, err := time.Parse(time.RFC3339, strings.TrimPrefix(c, ">=")); err == nil {
			since = ts
		}
	}

	type item struct {
		ID types.RunID `json:"id"`
	}
	var out struct {
		TotalCount   int    `json:"total_count"`
		WorkflowRuns []item `json:"workflow_runs"`
	}
	// Newest first, like the real API.
	for i := len(f.runs) - 1; i >= 0; i-- {
		if !f.runs[i].created.Before(since) {
			out.WorkflowRuns = append(out.WorkflowRuns, item{ID: f.runs[i].id})
		}
	}
	out.TotalCount = len(out.WorkflowRuns)
	data, _ := json.Marshal(out)
	writeJSON(w, http.StatusOK, string(data))
}

func (f *FakeGitHub) handleGetRun(w http.ResponseWriter, raw string) {
	id, err := types.ParseRunID(raw)
	if err != nil {
		writeJSON(w, http.StatusNotFound, `{"message":"Not Found"}`)
		return
	}
	f.runGets[id]++

	if fails := f.runFails[id]; len(fails) > 0 {
		f.runFails[id] = fails[1:]
		writeJSON(w, fails[0].status, fails[0].body)
		return
	}

	states, ok := f.runStates[id]
	if _, titled := f.titleInput[id]; titled && !ok {
		states, ok = []types.RunRecord{{Status: types.StatusQueued}}, true
	}
	if !ok || len(states) == 0 {
		writeJSON(w, http.StatusNotFound, `{"message":"Not Found"}`)
		return
	}
	rec := states[0]
	if len(states) > 1 {
		f.runStates[id] = states[1:]
	}
	rec.ID = id
	if rec.HTMLURL == "" {
		rec.HTMLURL = RunURL(id)
	}
	if key, titled := f.titleInput[id]; titled {
		rec.DisplayTitle = fmt.Sprintf("deploy %v", f.lastInputs[key])
	}
	body := map[string]interface{}{
		"id":         rec.ID,
		"status":     rec.Status,
		"conclusion": nil,
		"html_url":   rec.HTMLURL,
		"name":       rec.Name,
	}
	if rec.Conclusion != types.ConclusionNone {
		body["conclusion"] = rec.Conclusion
	}
	if rec.DisplayTitle != "" {
		body["display_title"] = rec.DisplayTitle
	}
	data, _ := json.Marshal(body)
	writeJSON(w, http.StatusOK, string(data))
}

func writeJSON(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(body))
}

// Completed is a terminal run record with the given conclusion.
func Completed(c types.RunConclusion) types.RunRecord {
	return types.RunRecord{Status: types.StatusCompleted, Conclusion: c}
}

// InProgress is a non-terminal run record.
func InProgress() types.RunRecord {
	return types.RunRecord{Status: types.StatusInProgress}
}
