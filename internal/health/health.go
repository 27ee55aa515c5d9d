// Package health tracks the health of the service dependencies.
package health

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Status represents the health status of a component.
type Status string

const (
	// StatusHealthy indicates the component is healthy.
	StatusHealthy Status = "healthy"
	// StatusUnhealthy indicates the component is unhealthy.
	StatusUnhealthy Status = "unhealthy"
	// StatusDegraded indicates the component is degraded but functional.
	StatusDegraded Status = "degraded"
	// StatusUnknown indicates the health status is unknown.
	StatusUnknown Status = "unknown"
)

// CheckResult represents the result of a health check.
type CheckResult struct {
	Name      string        `json:"name"`
	Status    Status        `json:"status"`
	Message   string        `json:"message,omitempty"`
	Duration  time.Duration `json:"duration_ms"`
	LastCheck time.Time     `json:"last_check"`
	Error     string        `json:"error,omitempty"`
}

// HealthChecker defines the interface for health check providers.
type HealthChecker interface {
	Check(ctx context.Context) CheckResult
	Name() string
}

type registration struct {
	checker  HealthChecker
	optional bool
}

// Manager runs the registered checks. Failures of optional checks degrade
// the overall status instead of failing it.
type Manager struct {
	mu       sync.RWMutex
	checkers []registration
	results  map[string]CheckResult
	logger   *slog.Logger
	timeout  time.Duration
}

// NewManager creates a new health manager. A zero timeout means five seconds.
func NewManager(timeout time.Duration, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}

	return &Manager{
		results: make(map[string]CheckResult),
		logger:  logger.With("component", "health-manager"),
		timeout: timeout,
	}
}

// Register adds a checker that must pass for the service to be ready.
func (m *Manager) Register(checker HealthChecker) {
	m.register(checker, false)
}

// RegisterOptional adds a checker whose failure only degrades the service.
func (m *Manager) RegisterOptional(checker HealthChecker) {
	m.register(checker, true)
}

func (m *Manager) register(checker HealthChecker, optional bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.checkers = append(m.checkers, registration{checker: checker, optional: optional})
	m.logger.Debug("registered health checker", "name", checker.Name(), "optional", optional)
}

// CheckAll runs every check concurrently.
func (m *Manager) CheckAll(ctx context.Context) map[string]CheckResult {
	m.mu.RLock()
	regs := append([]registration(nil), m.checkers...)
	m.mu.RUnlock()

	results := make(map[string]CheckResult, len(regs))
	var (
		wg    sync.WaitGroup
		resMu sync.Mutex
	)
	for _, reg := range regs {
		wg.Add(1)
		go func(reg registration) {
			defer wg.Done()

			checkCtx, cancel := context.WithTimeout(ctx, m.timeout)
			result := reg.checker.Check(checkCtx)
			cancel()

			if reg.optional && result.Status == StatusUnhealthy {
				result.Status = StatusDegraded
			}

			resMu.Lock()
			results[reg.checker.Name()] = result
			resMu.Unlock()
		}(reg)
	}
	wg.Wait()

	m.mu.Lock()
	for name, result := range results {
		m.results[name] = result
		if result.Status != StatusHealthy {
			m.logger.Warn("health check failed", "name", name, "status", result.Status, "error", result.Error)
		}
	}
	m.mu.Unlock()

	return results
}

// GetResult returns the last result for a specific checker.
func (m *Manager) GetResult(name string) (CheckResult, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	result, ok := m.results[name]
	return result, ok
}

// IsReady reports whether no required component is unhealthy.
func (m *Manager) IsReady(ctx context.Context) bool {
	return m.GetOverallStatus(ctx).Status != StatusUnhealthy
}

// OverallStatus is the aggregate of all component results.
type OverallStatus struct {
	Status     Status                 `json:"status"`
	Components map[string]CheckResult `json:"components"`
	Timestamp  time.Time              `json:"timestamp"`
}

// GetOverallStatus returns the overall health status.
func (m *Manager) GetOverallStatus(ctx context.Context) OverallStatus {
	results := m.CheckAll(ctx)
	return OverallStatus{
		Status:     aggregate(results),
		Components: results,
		Timestamp:  time.Now(),
	}
}

func aggregate(results map[string]CheckResult) Status {
	overall := StatusHealthy
	for _, result := range results {
		switch result.Status {
		case StatusUnhealthy:
			return StatusUnhealthy
		case StatusDegraded, StatusUnknown:
			if overall == StatusHealthy {
				overall = StatusDegraded
			}
		}
	}
	return overall
}

// PingChecker reports a component healthy when its ping succeeds.
type PingChecker struct {
	name string
	ping func(ctx context.Context) error
}

// NewPingChecker creates a checker around a ping function such as
// pgxpool.Pool.Ping or vault.Client.HealthCheck.
func NewPingChecker(name string, ping func(ctx context.Context) error) *PingChecker {
	return &PingChecker{name: name, ping: ping}
}

// Name returns the name of the component.
func (c *PingChecker) Name() string {
	return c.name
}

// Check performs the health check.
func (c *PingChecker) Check(ctx context.Context) CheckResult {
	start := time.Now()
	result := CheckResult{
		Name:      c.name,
		LastCheck: start,
	}

	err := c.ping(ctx)
	result.Duration = time.Since(start)

	if err != nil {
		result.Status = StatusUnhealthy
		result.Error = err.Error()
		result.Message = c.name + " unreachable"
	} else {
		result.Status = StatusHealthy
		result.Message = c.name + " reachable"
	}

	return result
}

var _ HealthChecker = (*PingChecker)(nil)
