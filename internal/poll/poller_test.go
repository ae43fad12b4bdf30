package poll

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/dwsmith1983/dispatchwait/internal/ghapi"
	"github.com/dwsmith1983/dispatchwait/internal/schedule"
	"github.com/dwsmith1983/dispatchwait/internal/testutil"
	"github.com/dwsmith1983/dispatchwait/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingNotifier struct {
	calls []types.RunID
	err   error
}

func (n *recordingNotifier) Notify(_ context.Context, rec types.RunRecord, _ types.PollState) error {
	n.calls = append(n.calls, rec.ID)
	return n.err
}

type recordingOutput struct {
	runs []types.RunRecord
}

func (o *recordingOutput) RunFinished(rec types.RunRecord) error {
	o.runs = append(o.runs, rec)
	return nil
}

func fastPoll() schedule.Policy {
	return schedule.Policy{Interval: time.Millisecond, Multiplier: 1, MaxInterval: time.Millisecond, MaxAttempts: 50}
}

func newPoller(fake *testutil.FakeGitHub, opts ...Option) *Poller {
	client := ghapi.New(fake.URL(), testutil.Owner, testutil.Repo, "tok")
	opts = append([]Option{WithPolicy(fastPoll()), WithMaxTransient(3)}, opts...)
	return New(client, opts...)
}

func TestWait_PendingUntilCompleted(t *testing.T) {
	fake := testutil.NewFakeGitHub(t)
	fake.SetRunStates(42,
		types.RunRecord{Status: types.StatusQueued},
		testutil.InProgress(),
		testutil.Completed(types.ConclusionSuccess))
	out := &recordingOutput{}

	res, err := newPoller(fake, WithOutput(out)).Wait(context.Background(), 42)
	require.NoError(t, err)
	assert.Equal(t, types.PollCompletedSuccess, res.State)
	assert.Equal(t, testutil.RunURL(42), res.Run.HTMLURL)
	assert.Equal(t, 3, fake.RunGets(42))
	require.Len(t, out.runs, 1)
	assert.Equal(t, types.RunID(42), out.runs[0].ID)
}

func TestWait_IdempotentOnTerminalRun(t *testing.T) {
	fake := testutil.NewFakeGitHub(t)
	fake.SetRunStates(8, testutil.Completed(types.ConclusionFailure))
	p := newPoller(fake)

	for i := 0; i < 3; i++ {
		res, err := p.Wait(context.Background(), 8)
		require.NoError(t, err)
		assert.Equal(t, types.PollCompletedFailure, res.State)
		assert.Equal(t, types.ConclusionFailure, res.Run.Conclusion)
	}
	assert.Equal(t, 3, fake.RunGets(8))
}

func TestWait_TransientErrorsDoNotChangeState(t *testing.T) {
	fake := testutil.NewFakeGitHub(t)
	fake.QueueRunFailure(5, http.StatusBadGateway, `{"message":"Server Error"}`)
	fake.QueueRunFailure(5, http.StatusInternalServerError, `{"message":"Server Error"}`)
	fake.SetRunStates(5, testutil.Completed(types.ConclusionCancelled))

	res, err := newPoller(fake).Wait(context.Background(), 5)
	require.NoError(t, err)
	assert.Equal(t, types.PollCompletedOther, res.State)
	assert.Equal(t, 3, fake.RunGets(5))
}

func TestWait_FatalErrorAbortsImmediately(t *testing.T) {
	fake := testutil.NewFakeGitHub(t)
	fake.QueueRunFailure(9, http.StatusNotFound, `{"message":"Not Found"}`)
	fake.SetRunStates(9, testutil.Completed(types.ConclusionSuccess))
	notifier := &recordingNotifier{}

	_, err := newPoller(fake, WithNotifier(notifier)).Wait(context.Background(), 9)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ghapi.ErrFatal))
	assert.Equal(t, 1, fake.RunGets(9))
	assert.Empty(t, notifier.calls)
}

func TestWait_TooManyTransientErrorsTimesOut(t *testing.T) {
	fake := testutil.NewFakeGitHub(t)
	for i := 0; i < 5; i++ {
		fake.QueueRunFailure(3, http.StatusInternalServerError, `{"message":"Server Error"}`)
	}
	fake.SetRunStates(3, testutil.Completed(types.ConclusionSuccess))

	_, err := newPoller(fake, WithMaxTransient(2)).Wait(context.Background(), 3)
	assert.ErrorIs(t, err, schedule.ErrTimeout)
	assert.Equal(t, 3, fake.RunGets(3))
}

func TestWait_PollBudgetExhausted(t *testing.T) {
	fake := testutil.NewFakeGitHub(t)
	fake.SetRunStates(4, testutil.InProgress())
	p := newPoller(fake, WithPolicy(schedule.Policy{Interval: time.Millisecond, Multiplier: 1, MaxInterval: time.Millisecond, MaxAttempts: 2}))

	_, err := p.Wait(context.Background(), 4)
	assert.ErrorIs(t, err, schedule.ErrTimeout)
	assert.Equal(t, 3, fake.RunGets(4))
}

func TestWait_NotifiesOnceAndIgnoresNotifyFailure(t *testing.T) {
	fake := testutil.NewFakeGitHub(t)
	fake.SetRunStates(11, testutil.InProgress(), testutil.Completed(types.ConclusionFailure))
	notifier := &recordingNotifier{err: errors.New("boom")}

	res, err := newPoller(fake, WithNotifier(notifier)).Wait(context.Background(), 11)
	require.NoError(t, err)
	assert.Equal(t, types.PollCompletedFailure, res.State)
	assert.Equal(t, []types.RunID{11}, notifier.calls)
}

func TestWait_ListsPullsOnSuccess(t *testing.T) {
	fake := testutil.NewFakeGitHub(t)
	fake.SetRunStates(12, testutil.Completed(types.ConclusionSuccess))
	fake.SetPulls(http.StatusOK, types.PullRequest{Number: 3, HTMLURL: "https://github.com/acme/widgets/pull/3"})
	pulls := ghapi.New(fake.URL(), testutil.Owner, testutil.Repo, "comment-tok")

	res, err := newPoller(fake, WithPullsAPI(pulls)).Wait(context.Background(), 12)
	require.NoError(t, err)
	require.Len(t, res.Pulls, 1)
	assert.Equal(t, "https://github.com/acme/widgets/pull/3", res.Pulls[0].HTMLURL)
	assert.Equal(t, "Bearer comment-tok", fake.AuthFor("pulls"))
}

func TestWait_PullsFailureKeepsOutcome(t *testing.T) {
	fake := testutil.NewFakeGitHub(t)
	fake.SetRunStates(13, testutil.Completed(types.ConclusionSuccess))
	fake.SetPulls(http.StatusUnauthorized)
	pulls := ghapi.New(fake.URL(), testutil.Owner, testutil.Repo, "bad")

	res, err := newPoller(fake, WithPullsAPI(pulls)).Wait(context.Background(), 13)
	require.NoError(t, err)
	assert.Equal(t, types.PollCompletedSuccess, res.State)
	assert.Empty(t, res.Pulls)
}

func TestWait_NoPullsLookupOnFailure(t *testing.T) {
	fake := testutil.NewFakeGitHub(t)
	fake.SetRunStates(14, testutil.Completed(types.ConclusionFailure))
	pulls := ghapi.New(fake.URL(), testutil.Owner, testutil.Repo, "tok")

	_, err := newPoller(fake, WithPullsAPI(pulls)).Wait(context.Background(), 14)
	require.NoError(t, err)
	assert.Zero(t, fake.PullCalls())
}

func TestWait_ContextCancelled(t *testing.T) {
	fake := testutil.NewFakeGitHub(t)
	fake.SetRunStates(15, testutil.InProgress())
	ctx, cancel := context.WithCancel(context.Background())
	p := newPoller(fake, WithPolicy(schedule.Policy{Interval: time.Hour, Multiplier: 1, MaxInterval: time.Hour}))

	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()
	_, err := p.Wait(ctx, 15)
	assert.ErrorIs(t, err, context.Canceled)
}
