package jobs

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/coder/quartz"
	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/grafana/dskit/backoff"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/grafana/sqlbridge/pkg/querymodel"
	util_log "github.com/grafana/sqlbridge/pkg/util/log"
)

// Controller drives remote jobs from submission to a fetched result.
type Controller struct {
	cfg     Config
	backend Backend
	store   ResultStore
	clock   quartz.Clock
	logger  log.Logger
	metrics *controllerMetrics

	// cancels tracks best-effort cancellations still in flight.
	cancels sync.WaitGroup
}

// NewController returns a Controller running jobs on backend and reading
// their results from store. name labels the controller's metrics.
func NewController(cfg Config, name string, backend Backend, store ResultStore, clock quartz.Clock, reg prometheus.Registerer, logger log.Logger) *Controller {
	return &Controller{
		cfg:     cfg,
		backend: backend,
		store:   store,
		clock:   clock,
		logger:  log.With(logger, "component", "jobs", "backend", name),
		metrics: newControllerMetrics(reg, name),
	}
}

// Submit hands query to the backend. Submissions are not retried since a
// resubmission could run the statement twice.
func (c *Controller) Submit(ctx context.Context, query string) (*querymodel.JobRun, error) {
	sub, err := c.backend.Submit(ctx, query)
	if err != nil {
		c.metrics.submissions.WithLabelValues("failure").Inc()
		return nil, &querymodel.JobSubmissionError{Query: query, Err: err}
	}
	c.metrics.submissions.WithLabelValues("success").Inc()
	level.Info(util_log.WithContext(ctx, c.logger)).Log("msg", "job submitted", "job_id", sub.ID)

	resultKey := sub.ResultKey
	if resultKey == "" {
		resultKey = sub.ID
	}
	return &querymodel.JobRun{
		ID:        sub.ID,
		ResultKey: resultKey,
		Query:     query,
		State:     querymodel.JobSubmitted,
		Submitted: c.clock.Now(),
	}, nil
}

// AwaitCompletion polls run until it reaches a terminal state, waiting
// pollInterval between polls. Poll failures are transient and count against
// maxAttempts. If ctx is done while waiting, the job is cancelled in the
// background and ctx's error is returned.
func (c *Controller) AwaitCompletion(ctx context.Context, run *querymodel.JobRun, pollInterval time.Duration, maxAttempts int) error {
	logger := log.With(util_log.WithContext(ctx, c.logger), "job_id", run.ID)

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		status, err := c.backend.Poll(ctx, run.ID)
		if err != nil {
			if ctx.Err() != nil {
				c.abandon(run)
				return ctx.Err()
			}
			c.metrics.polls.WithLabelValues("failure").Inc()
			level.Warn(logger).Log("msg", "polling job failed", "attempt", attempt, "err", err)
			lastErr = err
		} else {
			c.metrics.polls.WithLabelValues("success").Inc()
			lastErr = nil
			if status.ResultKey != "" {
				run.ResultKey = status.ResultKey
			}
			if run.Advance(status.State) {
				level.Debug(logger).Log("msg", "job state changed", "state", run.State)
			}
			if run.State.Terminal() {
				return c.finish(logger, run, status)
			}
		}

		if attempt == maxAttempts {
			break
		}
		t := c.clock.NewTimer(pollInterval, "jobs", "poll")
		select {
		case <-ctx.Done():
			t.Stop()
			c.abandon(run)
			return ctx.Err()
		case <-t.C:
		}
	}

	level.Warn(logger).Log("msg", "job did not finish in time", "attempts", maxAttempts, "state", run.State)
	c.abandon(run)
	return &querymodel.JobTimeoutError{JobID: run.ID, Attempts: maxAttempts, LastState: run.State, Err: lastErr}
}

func (c *Controller) finish(logger log.Logger, run *querymodel.JobRun, status Status) error {
	c.metrics.terminalStates.WithLabelValues(run.State.String()).Inc()
	if !run.Submitted.IsZero() {
		c.metrics.duration.Observe(c.clock.Since(run.Submitted).Seconds())
	}
	if run.State == querymodel.JobSuccess {
		level.Info(logger).Log("msg", "job succeeded")
		return nil
	}
	level.Warn(logger).Log("msg", "job did not succeed", "state", run.State, "reason", status.Reason)
	return &querymodel.JobExecutionError{JobID: run.ID, State: run.State, Reason: status.Reason}
}

// Cancel asks the backend to stop run. Failures are logged and otherwise
// ignored.
func (c *Controller) Cancel(ctx context.Context, run *querymodel.JobRun) {
	if run.State.Terminal() {
		return
	}
	if err := c.backend.Cancel(ctx, run.ID); err != nil {
		level.Warn(c.logger).Log("msg", "failed to cancel job", "job_id", run.ID, "err", err)
		return
	}
	level.Info(c.logger).Log("msg", "job cancelled", "job_id", run.ID)
}

// abandon cancels run without blocking the caller.
func (c *Controller) abandon(run *querymodel.JobRun) {
	snapshot := *run
	c.cancels.Add(1)
	go func() {
		defer c.cancels.Done()
		ctx, cancel := context.WithTimeout(context.Background(), c.cfg.CancelTimeout)
		defer cancel()
		c.Cancel(ctx, &snapshot)
	}()
}

// Wait blocks until background cancellations have finished.
func (c *Controller) Wait() {
	c.cancels.Wait()
}

// FetchResult reads the stored result of a successful run once.
func (c *Controller) FetchResult(ctx context.Context, run *querymodel.JobRun) ([]byte, error) {
	if run.State != querymodel.JobSuccess {
		return nil, querymodel.ErrIllegalState
	}
	body, err := c.store.Fetch(ctx, run.ResultKey)
	if errors.Is(err, ErrResultNotFound) {
		return nil, &querymodel.ResultNotFoundError{JobID: run.ID, ResultKey: run.ResultKey}
	}
	return body, err
}

// SQL implements RemoteJobClient: it submits query, waits for the job and
// fetches its result. A result that is not stored yet right after the job
// succeeded is looked up once more after a short delay.
func (c *Controller) SQL(ctx context.Context, query string) ([]byte, error) {
	run, err := c.Submit(ctx, query)
	if err != nil {
		return nil, err
	}
	if err := c.AwaitCompletion(ctx, run, c.cfg.PollInterval, c.cfg.MaxPollAttempts); err != nil {
		return nil, err
	}

	b := backoff.New(ctx, backoff.Config{
		MinBackoff: c.cfg.ResultRecheckDelay,
		MaxBackoff: c.cfg.ResultRecheckDelay,
		MaxRetries: 2,
	})
	var lastErr error
	for b.Ongoing() {
		body, err := c.FetchResult(ctx, run)
		if err == nil {
			return body, nil
		}
		var notFound *querymodel.ResultNotFoundError
		if !errors.As(err, &notFound) {
			return nil, err
		}
		lastErr = err
		if b.NumRetries() == 0 {
			c.metrics.resultRechecks.Inc()
			level.Debug(c.logger).Log("msg", "result not stored yet, checking again", "job_id", run.ID, "delay", c.cfg.ResultRecheckDelay)
		}
		b.Wait()
	}
	if lastErr == nil {
		lastErr = b.Err()
	}
	return nil, lastErr
}
