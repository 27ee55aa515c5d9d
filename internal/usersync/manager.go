package usersync

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"sync"

	"github.com/coder/quartz"

	"github.com/janovincze/entrasync/internal/metrics"
)

// ErrManagerClosed is returned when submitting to a manager that was shut down.
var ErrManagerClosed = errors.New("sync manager is shut down")

// Publisher receives every job state transition.
type Publisher interface {
	Publish(status Status)
}

// Manager runs sync jobs in the background and keeps at most one active job per key.
type Manager struct {
	runner    Runner
	clock     quartz.Clock
	logger    *slog.Logger
	publisher Publisher

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu     sync.Mutex
	jobs   map[string]*Job
	closed bool
}

// ManagerOption configures a Manager.
type ManagerOption func(*Manager)

// WithManagerClock sets the clock used for job timestamps.
func WithManagerClock(clock quartz.Clock) ManagerOption {
	return func(m *Manager) {
		m.clock = clock
	}
}

// WithPublisher sets the receiver of job transitions.
func WithPublisher(p Publisher) ManagerOption {
	return func(m *Manager) {
		m.publisher = p
	}
}

// NewManager creates a new Manager.
func NewManager(runner Runner, logger *slog.Logger, opts ...ManagerOption) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	m := &Manager{
		runner: runner,
		clock:  quartz.NewReal(),
		logger: logger.With("component", "sync-manager"),
		ctx:    ctx,
		cancel: cancel,
		jobs:   make(map[string]*Job),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Submit starts a job for req unless a job with the same key is still active.
// created is false when the active job is returned instead.
func (m *Manager) Submit(req Request) (job *Job, created bool, err error) {
	key := req.Key().String()

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil, false, ErrManagerClosed
	}

	if existing, ok := m.jobs[key]; ok && existing.Active() {
		m.logger.Debug("sync job already active", "job_key", key, "run_id", existing.Status().RunID)
		return existing, false, nil
	}

	job = newJob(req, m.runner, m.clock, m.logger, m.publish)
	m.jobs[key] = job
	m.publish(job.Status())

	metrics.SyncJobsActive.Inc()
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		defer metrics.SyncJobsActive.Dec()
		job.run(m.ctx)
	}()

	return job, true, nil
}

func (m *Manager) publish(status Status) {
	if m.publisher != nil {
		m.publisher.Publish(status)
	}
}

// Get returns the latest job for req.
func (m *Manager) Get(req Request) (*Job, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	job, ok := m.jobs[req.Key().String()]
	return job, ok
}

// Status returns the status of the latest job for req.
func (m *Manager) Status(req Request) (Status, bool) {
	job, ok := m.Get(req)
	if !ok {
		return Status{}, false
	}
	return job.Status(), true
}

// Cancel requests cancellation of the active job for req. It reports whether
// an active job was found.
func (m *Manager) Cancel(req Request) bool {
	job, ok := m.Get(req)
	if !ok || !job.Active() {
		return false
	}
	job.Cancel()
	m.logger.Info("sync job cancel requested", "job_key", job.Key().String())
	return true
}

// List returns the status of the latest job of every key, ordered by key.
func (m *Manager) List() []Status {
	m.mu.Lock()
	jobs := make([]*Job, 0, len(m.jobs))
	for _, job := range m.jobs {
		jobs = append(jobs, job)
	}
	m.mu.Unlock()

	statuses := make([]Status, 0, len(jobs))
	for _, job := range jobs {
		statuses = append(statuses, job.Status())
	}
	sort.Slice(statuses, func(i, j int) bool {
		return statuses[i].Key.String() < statuses[j].Key.String()
	})
	return statuses
}

// Shutdown cancels every active job and waits for them to stop or for ctx to expire.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	m.closed = true
	for _, job := range m.jobs {
		job.Cancel()
	}
	m.mu.Unlock()

	m.cancel()

	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		m.logger.Info("sync manager stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
