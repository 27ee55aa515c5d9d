// Package metrics provides Prometheus metrics for entrasync components.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

var registerOnce sync.Once

const (
	// Namespace is the Prometheus namespace for all entrasync metrics.
	Namespace = "entrasync"

	// Subsystem constants for metric organization.
	SubsystemAPI       = "api"
	SubsystemSync      = "sync"
	SubsystemEntraID   = "entraid"
	SubsystemDirectory = "directory"
)

// Label constants for consistent labeling across metrics.
const (
	LabelEndpoint  = "endpoint"
	LabelMethod    = "method"
	LabelStatus    = "status"
	LabelOperation = "operation"
	LabelResult    = "result"
	LabelAction    = "action"
	LabelJobKey    = "job_key"
)

var (
	// API Metrics

	// APIRequestsTotal counts the total number of API requests.
	APIRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: SubsystemAPI,
			Name:      "requests_total",
			Help:      "Total number of API requests",
		},
		[]string{LabelEndpoint, LabelMethod, LabelStatus},
	)

	// APIRequestDuration tracks the duration of API requests.
	APIRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: Namespace,
			Subsystem: SubsystemAPI,
			Name:      "request_duration_seconds",
			Help:      "Duration of API requests in seconds",
			Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{LabelEndpoint, LabelMethod},
	)

	// APIResponseSize tracks the size of API response bodies.
	APIResponseSize = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: Namespace,
			Subsystem: SubsystemAPI,
			Name:      "response_size_bytes",
			Help:      "Size of API response bodies in bytes",
			Buckets:   prometheus.ExponentialBuckets(100, 10, 6), // 100B to 10MB
		},
		[]string{LabelEndpoint, LabelMethod},
	)

	// Sync Metrics

	// SyncJobsTotal counts finished sync jobs by terminal state.
	SyncJobsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: SubsystemSync,
			Name:      "jobs_total",
			Help:      "Total number of user sync jobs by terminal state",
		},
		[]string{LabelJobKey, LabelResult},
	)

	// SyncJobDuration tracks how long sync jobs run.
	SyncJobDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: Namespace,
			Subsystem: SubsystemSync,
			Name:      "job_duration_seconds",
			Help:      "Duration of user sync jobs in seconds",
			Buckets:   []float64{.1, .5, 1, 5, 15, 30, 60, 120, 300, 600},
		},
		[]string{LabelJobKey},
	)

	// SyncJobsActive tracks queued or running sync jobs.
	SyncJobsActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: Namespace,
			Subsystem: SubsystemSync,
			Name:      "jobs_active",
			Help:      "Number of queued or running user sync jobs",
		},
	)

	// SyncUsersTotal counts local users changed by sync.
	// Values of action: disabled, deleted
	SyncUsersTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: SubsystemSync,
			Name:      "users_total",
			Help:      "Total number of local users changed by sync",
		},
		[]string{LabelAction},
	)

	// Entra ID Metrics

	// EntraIDRequestsTotal counts calls made to Entra ID and Graph on behalf of users.
	EntraIDRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: SubsystemEntraID,
			Name:      "requests_total",
			Help:      "Total number of Entra ID requests by operation and outcome",
		},
		[]string{LabelOperation, LabelStatus},
	)

	// DirectoryRequestsTotal counts application calls made to the Graph directory.
	DirectoryRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: SubsystemDirectory,
			Name:      "requests_total",
			Help:      "Total number of directory requests by operation and outcome",
		},
		[]string{LabelOperation, LabelStatus},
	)

	// DirectoryUsersListed tracks the size of the last directory listing.
	DirectoryUsersListed = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: Namespace,
			Subsystem: SubsystemDirectory,
			Name:      "users_listed",
			Help:      "Number of users returned by the last directory listing",
		},
	)

	// allMetrics contains all metrics for registration.
	allMetrics = []prometheus.Collector{
		// API
		APIRequestsTotal,
		APIRequestDuration,
		APIResponseSize,
		// Sync
		SyncJobsTotal,
		SyncJobDuration,
		SyncJobsActive,
		SyncUsersTotal,
		// Entra ID
		EntraIDRequestsTotal,
		DirectoryRequestsTotal,
		DirectoryUsersListed,
	}
)

// Register registers all entrasync metrics with the default Prometheus registry.
// It is safe to call multiple times; subsequent calls are no-ops.
func Register() {
	registerOnce.Do(func() {
		for _, m := range allMetrics {
			prometheus.MustRegister(m)
		}
	})
}

// RegisterWith registers all entrasync metrics with the given registry.
func RegisterWith(reg prometheus.Registerer) {
	for _, m := range allMetrics {
		reg.MustRegister(m)
	}
}

// NewRegistry creates a new Prometheus registry with all entrasync metrics
// and standard Go runtime collectors.
func NewRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()

	reg.MustRegister(collectors.NewGoCollector())
	reg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	RegisterWith(reg)

	return reg
}
