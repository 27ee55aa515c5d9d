package usersync

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/robfig/cron/v3"
)

// Submitter queues sync jobs.
type Submitter interface {
	Submit(req Request) (*Job, bool, error)
}

// ParseSchedule validates a five field cron expression.
func ParseSchedule(expr string) (cron.Schedule, error) {
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	schedule, err := parser.Parse(expr)
	if err != nil {
		return nil, fmt.Errorf("invalid cron expression: %w", err)
	}
	return schedule, nil
}

// Scheduler submits a sync request on a cron schedule.
type Scheduler struct {
	schedule  cron.Schedule
	expr      string
	req       Request
	submitter Submitter
	logger    *slog.Logger

	cron    *cron.Cron
	running bool
	runMu   sync.Mutex
}

// NewScheduler creates a new Scheduler for expr.
func NewScheduler(expr string, req Request, submitter Submitter, logger *slog.Logger) (*Scheduler, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if submitter == nil {
		return nil, fmt.Errorf("submitter is required")
	}

	schedule, err := ParseSchedule(expr)
	if err != nil {
		return nil, err
	}

	return &Scheduler{
		schedule:  schedule,
		expr:      expr,
		req:       req,
		submitter: submitter,
		logger:    logger.With("component", "sync-scheduler"),
	}, nil
}

// Start begins submitting on schedule until Stop is called or ctx is done.
func (s *Scheduler) Start(ctx context.Context) error {
	s.runMu.Lock()
	defer s.runMu.Unlock()

	if s.running {
		return fmt.Errorf("scheduler is already running")
	}

	s.cron = cron.New()
	s.cron.Schedule(s.schedule, cron.FuncJob(s.Trigger))
	s.cron.Start()
	s.running = true

	s.logger.Info("starting sync scheduler",
		"schedule", s.expr,
		"disable", s.req.Disable,
		"remove", s.req.Remove,
	)

	go func() {
		<-ctx.Done()
		s.Stop()
	}()

	return nil
}

// Trigger submits the scheduled request once.
func (s *Scheduler) Trigger() {
	job, created, err := s.submitter.Submit(s.req)
	if err != nil {
		s.logger.Error("failed to submit scheduled sync", "error", err)
		return
	}
	if !created {
		s.logger.Debug("scheduled sync skipped, job already active", "job_key", job.Key().String())
		return
	}
	s.logger.Info("scheduled sync submitted", "job_key", job.Key().String(), "run_id", job.Status().RunID)
}

// Stop halts the schedule and waits for a running trigger to return.
func (s *Scheduler) Stop() {
	s.runMu.Lock()
	if !s.running {
		s.runMu.Unlock()
		return
	}
	s.running = false
	c := s.cron
	s.runMu.Unlock()

	<-c.Stop().Done()
	s.logger.Info("sync scheduler stopped")
}

// IsRunning returns whether the scheduler is running.
func (s *Scheduler) IsRunning() bool {
	s.runMu.Lock()
	defer s.runMu.Unlock()
	return s.running
}
