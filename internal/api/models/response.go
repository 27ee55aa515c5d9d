package models

import "time"

// VersionResponse contains version information.
type VersionResponse struct {
	Version    string `json:"version"`
	APIVersion string `json:"api_version"`
	GoVersion  string `json:"go_version,omitempty"`
	BuildTime  string `json:"build_time,omitempty"`
	GitCommit  string `json:"git_commit,omitempty"`
}

// ConfigResponse contains safe configuration information.
type ConfigResponse struct {
	Environment string        `json:"environment"`
	API         APIConfig     `json:"api"`
	EntraID     EntraIDConfig `json:"entraid"`
	Sync        SyncConfig    `json:"sync"`
	Metrics     MetricConfig  `json:"metrics"`
}

// APIConfig contains API configuration (safe subset).
type APIConfig struct {
	ListenAddr string `json:"listen_addr"`
	BaseURL    string `json:"base_url"`
}

// EntraIDConfig contains the Entra ID settings without credentials.
type EntraIDConfig struct {
	Active           bool     `json:"active"`
	TenantID         string   `json:"tenant_id,omitempty"`
	ClientID         string   `json:"client_id,omitempty"`
	Scopes           []string `json:"scopes"`
	RedirectURL      string   `json:"redirect_url"`
	IssuerURL        string   `json:"issuer_url,omitempty"`
	XWikiLoginGlobal bool     `json:"xwiki_login_global"`
	XWikiLoginGroups []string `json:"xwiki_login_groups,omitempty"`
}

// SyncConfig contains the scheduled sync settings.
type SyncConfig struct {
	Schedule string `json:"schedule,omitempty"`
	Disable  bool   `json:"disable"`
	Remove   bool   `json:"remove"`
}

// MetricConfig contains metrics configuration.
type MetricConfig struct {
	Enabled bool `json:"enabled"`
}

// HealthResponse represents the overall health status.
type HealthResponse struct {
	Status     string                     `json:"status"`
	Components map[string]ComponentHealth `json:"components,omitempty"`
	Timestamp  time.Time                  `json:"timestamp"`
}

// ComponentHealth represents the health of a single component.
type ComponentHealth struct {
	Name       string    `json:"name"`
	Status     string    `json:"status"`
	Message    string    `json:"message,omitempty"`
	DurationMs int64     `json:"duration_ms"`
	LastCheck  time.Time `json:"last_check"`
	Error      string    `json:"error,omitempty"`
}

// LivenessResponse represents the liveness probe response.
type LivenessResponse struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
}

// ReadinessResponse represents the readiness probe response.
type ReadinessResponse struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
}
