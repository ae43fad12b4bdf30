package ghapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/dwsmith1983/dispatchwait/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return New(srv.URL, "acme", "widgets", "tok-123")
}

func TestCall_SetsHeaders(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/repos/acme/widgets/actions/runs/7", r.URL.Path)
		assert.Equal(t, "Bearer tok-123", r.Header.Get("Authorization"))
		assert.Equal(t, "application/vnd.github+json", r.Header.Get("Accept"))
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		_, _ = w.Write([]byte(`{}`))
	})

	_, err := c.Call(context.Background(), http.MethodGet, "actions/runs/7", nil)
	require.NoError(t, err)
}

func TestCall_ServerErrorIsRetryable(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"message":"Server Error"}`))
	})

	_, err := c.Call(context.Background(), http.MethodGet, "actions/runs/7", nil)
	require.Error(t, err)
	assert.True(t, IsRetryable(err))
	assert.False(t, errors.Is(err, ErrFatal))
}

func TestCall_NotFoundIsFatal(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"message":"Not Found"}`))
	})

	_, err := c.Call(context.Background(), http.MethodGet, "actions/runs/7", nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrFatal))
	assert.False(t, IsRetryable(err))

	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusNotFound, apiErr.StatusCode)
	assert.Equal(t, "actions/runs/7", apiErr.Path)
	assert.Contains(t, apiErr.Body, "Not Found")
}

func TestCall_ConnectionFailureIsRetryable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close()
	c := New(srv.URL, "acme", "widgets", "tok")

	_, err := c.Call(context.Background(), http.MethodGet, "actions/runs/1", nil)
	require.Error(t, err)
	assert.True(t, IsRetryable(err))
}

func TestDispatch_Body(t *testing.T) {
	var got map[string]interface{}
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/repos/acme/widgets/actions/workflows/deploy.yml/dispatches", r.URL.Path)
		data, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(data, &got))
		w.WriteHeader(http.StatusNoContent)
	})

	req := types.NewDispatchRequest("deploy.yml", "", map[string]interface{}{"env": "prod"})
	require.NoError(t, c.Dispatch(context.Background(), req))
	assert.Equal(t, "main", got["ref"])
	assert.Equal(t, map[string]interface{}{"env": "prod"}, got["inputs"])
}

func TestDispatch_EmptyInputsEncodeAsObject(t *testing.T) {
	var raw string
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		data, _ := io.ReadAll(r.Body)
		raw = string(data)
		w.WriteHeader(http.StatusNoContent)
	})

	require.NoError(t, c.Dispatch(context.Background(), types.DispatchRequest{Workflow: "ci.yml", Ref: "main"}))
	assert.JSONEq(t, `{"ref":"main","inputs":{}}`, raw)
}

func TestListRunIDs_Query(t *testing.T) {
	since := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/repos/acme/widgets/actions/workflows/ci.yml/runs", r.URL.Path)
		q := r.URL.Query()
		assert.Equal(t, "workflow_dispatch", q.Get("event"))
		assert.Equal(t, ">=2026-03-01T12:00:00Z", q.Get("created"))
		assert.Equal(t, "octocat", q.Get("actor"))
		assert.Equal(t, "100", q.Get("per_page"))
		_, _ = w.Write([]byte(`{"total_count":2,"workflow_runs":[{"id":9},{"id":4}]}`))
	})

	ids, err := c.ListRunIDs(context.Background(), "ci.yml", since, "octocat")
	require.NoError(t, err)
	assert.Equal(t, []types.RunID{9, 4}, ids)
}

func TestRunsPath_OmitsEmptyActor(t *testing.T) {
	p := RunsPath("ci.yml", time.Unix(0, 0), "")
	assert.NotContains(t, p, "actor=")
}

func TestGetRun_NullConclusion(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"id":42,"status":"in_progress","conclusion":null,"html_url":"https://github.com/acme/widgets/actions/runs/42"}`))
	})

	rec, err := c.GetRun(context.Background(), 42)
	require.NoError(t, err)
	assert.Equal(t, types.StatusInProgress, rec.Status)
	assert.Equal(t, types.ConclusionNone, rec.Conclusion)
	assert.False(t, rec.Terminal())
}

func TestListOpenPulls(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/repos/acme/widgets/pulls", r.URL.Path)
		assert.Equal(t, "open", r.URL.Query().Get("state"))
		_, _ = w.Write([]byte(`[{"number":3,"title":"bump","html_url":"https://github.com/acme/widgets/pull/3"}]`))
	})

	pulls, err := c.ListOpenPulls(context.Background())
	require.NoError(t, err)
	require.Len(t, pulls, 1)
	assert.Equal(t, "https://github.com/acme/widgets/pull/3", pulls[0].HTMLURL)
}
