package main

import (
	"context"
	"log/slog"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dwsmith1983/dispatchwait/internal/config"
	intlambda "github.com/dwsmith1983/dispatchwait/internal/lambda"
	"github.com/dwsmith1983/dispatchwait/internal/testutil"
	"github.com/dwsmith1983/dispatchwait/pkg/types"
)

func testDeps(fake *testutil.FakeGitHub) *intlambda.Deps {
	cfg := config.Default()
	cfg.APIURL = fake.URL()
	cfg.Owner = testutil.Owner
	cfg.Repo = testutil.Repo
	cfg.WorkflowFile = "ci.yml"
	cfg.GitHubToken = "tok"
	cfg.WaitInterval = time.Millisecond
	cfg.MaxWaitInterval = 2 * time.Millisecond
	cfg.PollTimeout = 5 * time.Second
	cfg.DiscoveryTimeout = 5 * time.Second
	return &intlambda.Deps{Config: cfg, Logger: slog.Default()}
}

func TestHandleDispatch_Success(t *testing.T) {
	fake := testutil.NewFakeGitHub(t)
	fake.SetDispatchRuns(42)
	fake.SetRunStates(42, testutil.InProgress(), testutil.Completed(types.ConclusionSuccess))
	fake.SetPulls(http.StatusOK)

	resp, err := handleDispatch(context.Background(), testDeps(fake), intlambda.DispatchEvent{
		Workflow: "deploy.yml",
		Inputs:   map[string]interface{}{"env": "prod"},
	})
	require.NoError(t, err)
	assert.True(t, resp.OK)
	assert.Empty(t, resp.Error)
	assert.Equal(t, []types.RunID{42}, resp.RunIDs)
	require.Len(t, resp.Verdicts, 1)
	assert.Equal(t, testutil.RunURL(42), resp.Verdicts[0].Run.HTMLURL)

	reqs := fake.Requests()
	assert.Contains(t, reqs, "POST actions/workflows/deploy.yml/dispatches")
	dispatches := fake.Dispatches()
	require.Len(t, dispatches, 1)
	assert.Equal(t, map[string]interface{}{"env": "prod"}, dispatches[0]["inputs"])
}

func TestHandleDispatch_FailedRunReportedNotReturned(t *testing.T) {
	fake := testutil.NewFakeGitHub(t)
	fake.SetDispatchRuns(42)
	fake.SetRunStates(42, testutil.Completed(types.ConclusionFailure))

	resp, err := handleDispatch(context.Background(), testDeps(fake), intlambda.DispatchEvent{})
	require.NoError(t, err)
	assert.False(t, resp.OK)
	assert.Contains(t, resp.Error, "workflow run failed")
	require.Len(t, resp.Verdicts, 1)
	assert.False(t, resp.Verdicts[0].Success)
}

func TestHandleDispatch_PropagateOverride(t *testing.T) {
	fake := testutil.NewFakeGitHub(t)
	fake.SetDispatchRuns(42)
	fake.SetRunStates(42, testutil.Completed(types.ConclusionFailure))

	off := false
	resp, err := handleDispatch(context.Background(), testDeps(fake), intlambda.DispatchEvent{PropagateFailure: &off})
	require.NoError(t, err)
	assert.True(t, resp.OK)
}

func TestHandleDispatch_InvalidConfig(t *testing.T) {
	fake := testutil.NewFakeGitHub(t)
	d := testDeps(fake)
	d.Config.Owner = ""

	_, err := handleDispatch(context.Background(), d, intlambda.DispatchEvent{})
	require.Error(t, err)
	assert.Empty(t, fake.Requests())
	assert.NotEmpty(t, d.Config.WorkflowFile)
}

func TestHandleDispatch_FatalDispatch(t *testing.T) {
	fake := testutil.NewFakeGitHub(t)
	fake.QueueDispatchFailure(http.StatusNotFound, `{"message":"Not Found"}`)

	resp, err := handleDispatch(context.Background(), testDeps(fake), intlambda.DispatchEvent{})
	require.NoError(t, err)
	assert.False(t, resp.OK)
	assert.Contains(t, resp.Error, "404")
	assert.Empty(t, resp.RunIDs)
}
