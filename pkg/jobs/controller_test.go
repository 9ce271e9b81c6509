package jobs

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/coder/quartz"
	"github.com/go-kit/log"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/grafana/sqlbridge/pkg/querymodel"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type pollResult struct {
	state querymodel.JobState
	err   error
}

type fakeBackend struct {
	mu        sync.Mutex
	submitErr error
	polls     []pollResult
	pollCount int
	submits   int
	cancelled []string
}

func (f *fakeBackend) Submit(_ context.Context, _ string) (Submission, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.submits++
	if f.submitErr != nil {
		return Submission{}, f.submitErr
	}
	return Submission{ID: "j-1"}, nil
}

func (f *fakeBackend) Poll(_ context.Context, _ string) (Status, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r := f.polls[len(f.polls)-1]
	if f.pollCount < len(f.polls) {
		r = f.polls[f.pollCount]
	}
	f.pollCount++
	if r.err != nil {
		return Status{}, r.err
	}
	return Status{State: r.state, Reason: "because"}, nil
}

func (f *fakeBackend) Cancel(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cancelled = append(f.cancelled, id)
	return errors.New("cancel is not supported")
}

func (f *fakeBackend) stats() (polls int, cancelled []string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.pollCount, append([]string(nil), f.cancelled...)
}

type fakeStore struct {
	mu       sync.Mutex
	missing  int
	calls    int
	lastKey  string
	response []byte
}

func (f *fakeStore) Fetch(_ context.Context, key string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.lastKey = key
	if f.calls <= f.missing {
		return nil, ErrResultNotFound
	}
	return f.response, nil
}

func testConfig() Config {
	return Config{
		PollInterval:       time.Second,
		MaxPollAttempts:    3,
		ResultRecheckDelay: time.Millisecond,
		CancelTimeout:      time.Second,
	}
}

func newTestController(t *testing.T, backend Backend, store ResultStore) (*Controller, *quartz.Mock) {
	clock := quartz.NewMock(t)
	c := NewController(testConfig(), "test", backend, store, clock, prometheus.NewRegistry(), log.NewNopLogger())
	t.Cleanup(c.Wait)
	return c, clock
}

func states(s ...querymodel.JobState) []pollResult {
	out := make([]pollResult, len(s))
	for i, st := range s {
		out[i] = pollResult{state: st}
	}
	return out
}

// sleep lets n poll timers be created and fire.
func sleep(ctx context.Context, t *testing.T, clock *quartz.Mock, trap *quartz.Trap, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		call, err := trap.Wait(ctx)
		require.NoError(t, err)
		require.Equal(t, time.Second, call.Duration)
		require.NoError(t, call.Release(ctx))
		clock.Advance(time.Second).MustWait(ctx)
	}
}

func TestAwaitCompletionSleepsBetweenPolls(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	backend := &fakeBackend{polls: states(querymodel.JobRunning, querymodel.JobRunning, querymodel.JobSuccess)}
	c, clock := newTestController(t, backend, &fakeStore{})
	trap := clock.Trap().NewTimer("jobs", "poll")
	defer trap.Close()

	run := &querymodel.JobRun{ID: "j-1"}
	errs := make(chan error, 1)
	go func() { errs <- c.AwaitCompletion(ctx, run, time.Second, 5) }()

	sleep(ctx, t, clock, trap, 2)
	require.NoError(t, <-errs)

	polls, cancelled := backend.stats()
	assert.Equal(t, 3, polls)
	assert.Empty(t, cancelled)
	assert.Equal(t, querymodel.JobSuccess, run.State)
	assert.Equal(t, 1.0, testutil.ToFloat64(c.metrics.terminalStates.WithLabelValues("SUCCESS")))
}

func TestAwaitCompletionTimeout(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	backend := &fakeBackend{polls: states(querymodel.JobRunning)}
	c, clock := newTestController(t, backend, &fakeStore{})
	trap := clock.Trap().NewTimer("jobs", "poll")
	defer trap.Close()

	run := &querymodel.JobRun{ID: "j-1"}
	errs := make(chan error, 1)
	go func() { errs <- c.AwaitCompletion(ctx, run, time.Second, 3) }()

	// No sleep after the last attempt.
	sleep(ctx, t, clock, trap, 2)
	err := <-errs

	var te *querymodel.JobTimeoutError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, "j-1", te.JobID)
	assert.Equal(t, 3, te.Attempts)
	assert.Equal(t, querymodel.JobRunning, te.LastState)

	c.Wait()
	polls, cancelled := backend.stats()
	assert.Equal(t, 3, polls)
	assert.Equal(t, []string{"j-1"}, cancelled)
}

func TestAwaitCompletionFailedJob(t *testing.T) {
	for _, st := range []querymodel.JobState{querymodel.JobFailed, querymodel.JobCancelled} {
		t.Run(st.String(), func(t *testing.T) {
			backend := &fakeBackend{polls: states(st)}
			c, _ := newTestController(t, backend, &fakeStore{})

			err := c.AwaitCompletion(context.Background(), &querymodel.JobRun{ID: "j-1"}, time.Second, 3)
			var ee *querymodel.JobExecutionError
			require.ErrorAs(t, err, &ee)
			assert.Equal(t, st, ee.State)
			assert.Equal(t, "j-1", ee.JobID)
			assert.Equal(t, "because", ee.Reason)
		})
	}
}

func TestAwaitCompletionPollErrorsAreTransient(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	boom := errors.New("connection reset")
	backend := &fakeBackend{polls: []pollResult{{err: boom}, {state: querymodel.JobSuccess}}}
	c, clock := newTestController(t, backend, &fakeStore{})
	trap := clock.Trap().NewTimer("jobs", "poll")
	defer trap.Close()

	errs := make(chan error, 1)
	go func() { errs <- c.AwaitCompletion(ctx, &querymodel.JobRun{ID: "j-1"}, time.Second, 3) }()
	sleep(ctx, t, clock, trap, 1)
	require.NoError(t, <-errs)
}

func TestAwaitCompletionPollErrorsExhaustBudget(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	boom := errors.New("connection reset")
	backend := &fakeBackend{polls: []pollResult{{err: boom}}}
	c, clock := newTestController(t, backend, &fakeStore{})
	trap := clock.Trap().NewTimer("jobs", "poll")
	defer trap.Close()

	errs := make(chan error, 1)
	go func() { errs <- c.AwaitCompletion(ctx, &querymodel.JobRun{ID: "j-1"}, time.Second, 2) }()
	sleep(ctx, t, clock, trap, 1)

	err := <-errs
	var te *querymodel.JobTimeoutError
	require.ErrorAs(t, err, &te)
	require.ErrorIs(t, err, boom)
}

func TestAwaitCompletionContextCancelled(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	backend := &fakeBackend{polls: states(querymodel.JobRunning)}
	c, clock := newTestController(t, backend, &fakeStore{})
	trap := clock.Trap().NewTimer("jobs", "poll")
	defer trap.Close()

	pollCtx, stop := context.WithCancel(ctx)
	errs := make(chan error, 1)
	go func() { errs <- c.AwaitCompletion(pollCtx, &querymodel.JobRun{ID: "j-1"}, time.Second, 10) }()

	call, err := trap.Wait(ctx)
	require.NoError(t, err)
	require.NoError(t, call.Release(ctx))
	stop()

	require.ErrorIs(t, <-errs, context.Canceled)
	c.Wait()
	_, cancelled := backend.stats()
	assert.Equal(t, []string{"j-1"}, cancelled)
}

func TestSubmitIsNotRetried(t *testing.T) {
	boom := errors.New("throttled")
	backend := &fakeBackend{submitErr: boom}
	c, _ := newTestController(t, backend, &fakeStore{})

	_, err := c.Submit(context.Background(), "select 1")
	var se *querymodel.JobSubmissionError
	require.ErrorAs(t, err, &se)
	require.ErrorIs(t, err, boom)
	assert.Equal(t, "select 1", se.Query)
	assert.Equal(t, 1, backend.submits)
}

func TestFetchResultBeforeSuccess(t *testing.T) {
	c, _ := newTestController(t, &fakeBackend{}, &fakeStore{})
	_, err := c.FetchResult(context.Background(), &querymodel.JobRun{ID: "j-1", State: querymodel.JobRunning})
	require.ErrorIs(t, err, querymodel.ErrIllegalState)
}

func TestSQLRechecksMissingResultOnce(t *testing.T) {
	store := &fakeStore{missing: 1, response: []byte(`{"data":{}}`)}
	c, _ := newTestController(t, &fakeBackend{polls: states(querymodel.JobSuccess)}, store)

	body, err := c.SQL(context.Background(), "select 1")
	require.NoError(t, err)
	assert.Equal(t, `{"data":{}}`, string(body))
	assert.Equal(t, 2, store.calls)
	assert.Equal(t, "j-1", store.lastKey)
	assert.Equal(t, 1.0, testutil.ToFloat64(c.metrics.resultRechecks))
}

func TestSQLResultNotFound(t *testing.T) {
	store := &fakeStore{missing: 10}
	c, _ := newTestController(t, &fakeBackend{polls: states(querymodel.JobSuccess)}, store)

	_, err := c.SQL(context.Background(), "select 1")
	var nf *querymodel.ResultNotFoundError
	require.ErrorAs(t, err, &nf)
	assert.Equal(t, "j-1", nf.JobID)
	assert.Equal(t, 2, store.calls)
}
