package usersync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"sync/atomic"

	"github.com/coder/quartz"
	"github.com/google/uuid"

	"github.com/janovincze/entrasync/internal/metrics"
)

// Runner performs one reconciliation pass.
type Runner interface {
	Run(ctx context.Context, req Request, canceled func() bool) (Result, error)
}

// Job is one observable, cancelable sync pass.
type Job struct {
	req    Request
	key    Key
	runner Runner
	clock  quartz.Clock
	logger *slog.Logger
	notify func(Status)

	canceled atomic.Bool
	done     chan struct{}

	mu     sync.RWMutex
	status Status
	err    error
}

func newJob(req Request, runner Runner, clock quartz.Clock, logger *slog.Logger, notify func(Status)) *Job {
	j := &Job{
		req:    req,
		key:    req.Key(),
		runner: runner,
		clock:  clock,
		logger: logger,
		notify: notify,
		done:   make(chan struct{}),
		status: Status{
			RunID:    uuid.New(),
			Key:      req.Key(),
			Request:  req,
			State:    StateQueued,
			QueuedAt: clock.Now(),
		},
	}
	return j
}

// Key returns the deduplication key of the job.
func (j *Job) Key() Key {
	return j.key
}

// Status returns a snapshot of the job.
func (j *Job) Status() Status {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.status
}

// Err returns the terminal error of a failed job.
func (j *Job) Err() error {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.err
}

// Done is closed when the job reaches a terminal state.
func (j *Job) Done() <-chan struct{} {
	return j.done
}

// Cancel requests cooperative cancellation. It has no effect on a finished job.
func (j *Job) Cancel() {
	j.canceled.Store(true)
}

// IsCanceled reports whether cancellation was requested.
func (j *Job) IsCanceled() bool {
	return j.canceled.Load()
}

// Active reports whether the job is queued or running.
func (j *Job) Active() bool {
	return !j.Status().State.Terminal()
}

func (j *Job) transition(mutate func(*Status)) Status {
	j.mu.Lock()
	mutate(&j.status)
	snapshot := j.status
	j.mu.Unlock()

	if j.notify != nil {
		j.notify(snapshot)
	}
	return snapshot
}

// run executes the job to completion.
func (j *Job) run(ctx context.Context) {
	defer close(j.done)

	key := j.Key().String()

	if j.IsCanceled() {
		j.transition(func(s *Status) {
			s.State = StateCanceled
			s.FinishedAt = j.clock.Now()
		})
		metrics.SyncJobsTotal.WithLabelValues(key, string(StateCanceled)).Inc()
		return
	}

	started := j.transition(func(s *Status) {
		s.State = StateRunning
		s.StartedAt = j.clock.Now()
	})
	j.logger.Info("Started EntraID user sync job with ID: ["+key+"]", "run_id", started.RunID)

	defer func() {
		final := j.Status()
		metrics.SyncJobsTotal.WithLabelValues(key, string(final.State)).Inc()
		metrics.SyncJobDuration.WithLabelValues(key).Observe(final.FinishedAt.Sub(final.StartedAt).Seconds())
		j.logger.Info("Finished EntraID user sync job with ID: ["+key+"]",
			"run_id", final.RunID,
			"state", final.State,
			"disabled", final.Result.Disabled,
			"deleted", final.Result.Deleted,
		)
	}()

	result, err := j.pass(ctx)

	switch {
	case errors.Is(err, ErrCanceled), j.IsCanceled() && errors.Is(err, context.Canceled):
		j.transition(func(s *Status) {
			s.State = StateCanceled
			s.Result = result
			s.FinishedAt = j.clock.Now()
		})
	case err != nil:
		j.logger.Error("Failed to synchronize EntraID users.", "job_key", key, "error", err)
		jobErr := &SyncJobError{Key: j.Key(), Err: err}
		j.mu.Lock()
		j.err = jobErr
		j.mu.Unlock()
		j.transition(func(s *Status) {
			s.State = StateFailed
			s.Result = result
			s.Error = jobErr.Error()
			s.FinishedAt = j.clock.Now()
		})
	default:
		j.transition(func(s *Status) {
			s.State = StateFinished
			s.Result = result
			s.FinishedAt = j.clock.Now()
		})
	}
}

// pass runs the reconciler. A panic is returned as an error.
func (j *Job) pass(ctx context.Context) (result Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			j.logger.Error("panic recovered in sync job",
				"job_key", j.Key().String(),
				"error", r,
				"stack", string(debug.Stack()),
			)
			err = fmt.Errorf("panic: %v", r)
		}
	}()

	return j.runner.Run(ctx, j.req, j.IsCanceled)
}
