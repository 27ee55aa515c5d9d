// Package config provides configuration loading and management for entrasync services.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/janovincze/entrasync/internal/entraid"
)

// MinimumScopes are requested when no scope is configured.
var MinimumScopes = []string{"openid", "User.Read"}

// Config holds all configuration for entrasync services.
type Config struct {
	// Version is the application version
	Version string

	// Environment is the deployment environment (development, staging, production)
	Environment string

	// LogLevel is the minimum log level (debug, info, warn, error)
	LogLevel string

	// API configuration
	API APIConfig

	// Database configuration for the local user store
	Database DatabaseConfig

	// EntraID configuration
	EntraID EntraIDConfig

	// Wiki holds settings of the host platform the login redirect targets
	Wiki WikiConfig

	// Sync configuration
	Sync SyncConfig

	// Auth configuration for session tokens and the bootstrap admin
	Auth AuthConfig

	// MinIO/S3 configuration for profile photos
	Storage StorageConfig

	// Metrics configuration
	Metrics MetricsConfig

	// Vault configuration
	Vault VaultConfig
}

// APIConfig holds API server configuration.
type APIConfig struct {
	// ListenAddr is the address to listen on (e.g., ":8080")
	ListenAddr string

	// BaseURL is the external base URL of the API
	BaseURL string

	// ReadTimeout is the maximum duration for reading the entire request
	ReadTimeout time.Duration

	// WriteTimeout is the maximum duration before timing out writes of the response
	WriteTimeout time.Duration

	// CORSOrigins is a list of allowed CORS origins (use "*" for all)
	CORSOrigins []string

	// RateLimitRPS is the rate limit in requests per second
	RateLimitRPS float64

	// RateLimitBurst is the maximum burst size for rate limiting
	RateLimitBurst int
}

// DatabaseConfig holds database connection configuration.
type DatabaseConfig struct {
	Host     string
	Port     int
	Name     string
	User     string
	Password string

	// SSLMode is the SSL mode (disable, require, verify-ca, verify-full)
	SSLMode string

	// MaxConns is the maximum number of pooled connections
	MaxConns int

	// MinConns is the number of connections kept open when idle
	MinConns int
}

// URL returns the database connection URL understood by pgxpool.
func (d DatabaseConfig) URL() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.Name, d.SSLMode,
	)
}

// EntraIDConfig holds the Entra ID application registration.
type EntraIDConfig struct {
	// ClientID is the application (client) id
	ClientID string

	// ClientSecret is the application secret
	ClientSecret string

	// TenantID is the directory (tenant) id
	TenantID string

	// Scope is the raw scope setting, space or comma separated
	Scope string

	// RedirectURL is the OAuth callback URL registered with the application
	RedirectURL string

	// Skipped disables the Entra ID login and sync integration
	Skipped bool

	// AuthorizationEndpoint is the full authorization endpoint of older
	// deployments. The tenant is read from it when TenantID is unset.
	AuthorizationEndpoint string

	// LoginBaseURL is the authority host
	LoginBaseURL string

	// GraphBaseURL is the Microsoft Graph API root
	GraphBaseURL string

	// HTTPTimeout bounds every call made to Entra ID and Graph
	HTTPTimeout time.Duration
}

// Active reports whether the integration is enabled.
func (e EntraIDConfig) Active() bool {
	return !e.Skipped
}

// resolveTenant returns TenantID, or the tenant named in AuthorizationEndpoint
// when TenantID is unset.
func (e EntraIDConfig) resolveTenant() string {
	if e.TenantID != "" || e.AuthorizationEndpoint == "" {
		return e.TenantID
	}
	tenant, _ := entraid.TenantFromAuthorizationEndpoint(e.AuthorizationEndpoint)
	return tenant
}

// Scopes returns the configured scopes, or the minimum scopes when none are set.
func (e EntraIDConfig) Scopes() []string {
	scopes := strings.FieldsFunc(e.Scope, func(r rune) bool {
		return r == ' ' || r == ','
	})
	if len(scopes) == 0 {
		return append([]string(nil), MinimumScopes...)
	}
	return scopes
}

// WikiConfig holds settings of the host platform.
type WikiConfig struct {
	// BaseURL is the root URL of the host platform
	BaseURL string

	// XWikiLoginGlobal shows the native login link to every user
	XWikiLoginGlobal bool

	// XWikiLoginGroups restricts the native login link to these groups
	XWikiLoginGroups []string
}

// SyncConfig holds user synchronization settings.
type SyncConfig struct {
	// Schedule is a cron expression for periodic syncs; empty disables scheduling
	Schedule string

	// Disable disables local accounts whose Entra ID account is disabled
	Disable bool

	// Remove deletes local accounts that no longer exist in Entra ID
	Remove bool

	// OnStartup runs one sync when the process starts
	OnStartup bool

	// EventsEnabled exposes the websocket job event stream
	EventsEnabled bool
}

// AuthConfig holds session and admin settings.
type AuthConfig struct {
	// JWTSecret signs session and OAuth state tokens
	JWTSecret string

	// JWTExpiration is the session token lifetime
	JWTExpiration time.Duration

	// StateExpiration is the OAuth state token lifetime
	StateExpiration time.Duration

	// AdminEmail is the bootstrap admin email
	AdminEmail string

	// AdminPassword is the bootstrap admin password
	AdminPassword string

	// BCryptCost is the cost factor for password hashes
	BCryptCost int
}

// StorageConfig holds object storage configuration.
type StorageConfig struct {
	// Enabled enables storing fetched profile photos
	Enabled bool

	// Endpoint is the S3/MinIO endpoint
	Endpoint string

	// AccessKey is the access key
	AccessKey string

	// SecretKey is the secret key
	SecretKey string

	// Bucket is the avatar bucket name
	Bucket string

	// UseSSL enables SSL for the connection
	UseSSL bool
}

// MetricsConfig holds metrics/observability configuration.
type MetricsConfig struct {
	// Enabled enables metrics collection
	Enabled bool
}

// VaultConfig holds HashiCorp Vault settings.
type VaultConfig struct {
	Enabled         bool
	Address         string
	Namespace       string
	AuthMethod      string
	Role            string
	TokenPath       string
	Token           string
	TLSSkipVerify   bool
	CACert          string
	SecretMountPath string

	// EntraIDSecretPath holds the client_secret key
	EntraIDSecretPath string

	// DatabaseSecretPath holds the password key
	DatabaseSecretPath string

	// StorageSecretPath holds the access_key and secret_key keys
	StorageSecretPath string

	// RefreshInterval is how long fetched secrets are cached
	RefreshInterval time.Duration

	// FallbackToEnv keeps the environment values when Vault is unreachable
	FallbackToEnv bool
}

// Load loads configuration from environment variables.
func Load() (*Config, error) {
	baseURL := getEnv("ENTRASYNC_API_BASE_URL", "http://localhost:8080")

	cfg := &Config{
		Version:     getEnv("ENTRASYNC_VERSION", "0.1.0"),
		Environment: getEnv("ENTRASYNC_ENV", "development"),
		LogLevel:    getEnv("ENTRASYNC_LOG_LEVEL", "info"),

		API: APIConfig{
			ListenAddr:     getEnv("ENTRASYNC_API_LISTEN_ADDR", ":8080"),
			BaseURL:        baseURL,
			ReadTimeout:    getDurationEnv("ENTRASYNC_API_READ_TIMEOUT", 15*time.Second),
			WriteTimeout:   getDurationEnv("ENTRASYNC_API_WRITE_TIMEOUT", 15*time.Second),
			CORSOrigins:    getSliceEnv("ENTRASYNC_API_CORS_ORIGINS", []string{"*"}),
			RateLimitRPS:   getFloatEnv("ENTRASYNC_API_RATE_LIMIT_RPS", 100),
			RateLimitBurst: getIntEnv("ENTRASYNC_API_RATE_LIMIT_BURST", 200),
		},

		Database: DatabaseConfig{
			Host:     getEnv("ENTRASYNC_DB_HOST", "localhost"),
			Port:     getIntEnv("ENTRASYNC_DB_PORT", 5432),
			Name:     getEnv("ENTRASYNC_DB_NAME", "entrasync"),
			User:     getEnv("ENTRASYNC_DB_USER", "entrasync"),
			Password: getEnv("ENTRASYNC_DB_PASSWORD", "entrasync"),
			SSLMode:  getEnv("ENTRASYNC_DB_SSLMODE", "disable"),
			MaxConns: getIntEnv("ENTRASYNC_DB_MAX_CONNS", 10),
			MinConns: getIntEnv("ENTRASYNC_DB_MIN_CONNS", 1),
		},

		EntraID: EntraIDConfig{
			ClientID:              getEnv("ENTRASYNC_ENTRAID_CLIENT_ID", ""),
			ClientSecret:          getEnv("ENTRASYNC_ENTRAID_CLIENT_SECRET", ""),
			TenantID:              getEnv("ENTRASYNC_ENTRAID_TENANT_ID", ""),
			Scope:                 getEnv("ENTRASYNC_ENTRAID_SCOPE", ""),
			RedirectURL:           getEnv("ENTRASYNC_ENTRAID_REDIRECT_URL", strings.TrimSuffix(baseURL, "/")+"/entraid/oauth/callback"),
			Skipped:               getBoolEnv("ENTRASYNC_ENTRAID_SKIPPED", false),
			AuthorizationEndpoint: getEnv("ENTRASYNC_ENTRAID_AUTHORIZATION_ENDPOINT", ""),
			LoginBaseURL:          getEnv("ENTRASYNC_ENTRAID_LOGIN_BASE_URL", "https://login.microsoftonline.com"),
			GraphBaseURL:          getEnv("ENTRASYNC_ENTRAID_GRAPH_BASE_URL", "https://graph.microsoft.com/v1.0"),
			HTTPTimeout:           getDurationEnv("ENTRASYNC_ENTRAID_HTTP_TIMEOUT", 30*time.Second),
		},

		Wiki: WikiConfig{
			BaseURL:          getEnv("ENTRASYNC_WIKI_BASE_URL", "http://localhost:8081/xwiki"),
			XWikiLoginGlobal: getBoolEnv("ENTRASYNC_WIKI_XWIKI_LOGIN_GLOBAL", true),
			XWikiLoginGroups: getSliceEnv("ENTRASYNC_WIKI_XWIKI_LOGIN_GROUPS", nil),
		},

		Sync: SyncConfig{
			Schedule:      getEnv("ENTRASYNC_SYNC_SCHEDULE", ""),
			Disable:       getBoolEnv("ENTRASYNC_SYNC_DISABLE", true),
			Remove:        getBoolEnv("ENTRASYNC_SYNC_REMOVE", false),
			OnStartup:     getBoolEnv("ENTRASYNC_SYNC_ON_STARTUP", false),
			EventsEnabled: getBoolEnv("ENTRASYNC_SYNC_EVENTS_ENABLED", true),
		},

		Auth: AuthConfig{
			JWTSecret:       getEnv("ENTRASYNC_AUTH_JWT_SECRET", ""),
			JWTExpiration:   getDurationEnv("ENTRASYNC_AUTH_JWT_EXPIRATION", 8*time.Hour),
			StateExpiration: getDurationEnv("ENTRASYNC_AUTH_STATE_EXPIRATION", 10*time.Minute),
			AdminEmail:      getEnv("ENTRASYNC_AUTH_ADMIN_EMAIL", ""),
			AdminPassword:   getEnv("ENTRASYNC_AUTH_ADMIN_PASSWORD", ""),
			BCryptCost:      getIntEnv("ENTRASYNC_AUTH_BCRYPT_COST", 12),
		},

		Storage: StorageConfig{
			Enabled:   getBoolEnv("ENTRASYNC_STORAGE_ENABLED", false),
			Endpoint:  getEnv("ENTRASYNC_STORAGE_ENDPOINT", "localhost:9000"),
			AccessKey: getEnv("ENTRASYNC_STORAGE_ACCESS_KEY", "minioadmin"),
			SecretKey: getEnv("ENTRASYNC_STORAGE_SECRET_KEY", "minioadmin"),
			Bucket:    getEnv("ENTRASYNC_STORAGE_BUCKET", "entrasync-avatars"),
			UseSSL:    getBoolEnv("ENTRASYNC_STORAGE_USE_SSL", false),
		},

		Metrics: MetricsConfig{
			Enabled: getBoolEnv("ENTRASYNC_METRICS_ENABLED", true),
		},

		Vault: VaultConfig{
			Enabled:            getBoolEnv("ENTRASYNC_VAULT_ENABLED", false),
			Address:            getEnv("ENTRASYNC_VAULT_ADDR", ""),
			Namespace:          getEnv("ENTRASYNC_VAULT_NAMESPACE", ""),
			AuthMethod:         getEnv("ENTRASYNC_VAULT_AUTH_METHOD", "kubernetes"),
			Role:               getEnv("ENTRASYNC_VAULT_ROLE", "entrasync"),
			TokenPath:          getEnv("ENTRASYNC_VAULT_TOKEN_PATH", "/var/run/secrets/kubernetes.io/serviceaccount/token"),
			Token:              getEnv("ENTRASYNC_VAULT_TOKEN", ""),
			TLSSkipVerify:      getBoolEnv("ENTRASYNC_VAULT_TLS_SKIP_VERIFY", false),
			CACert:             getEnv("ENTRASYNC_VAULT_CA_CERT", ""),
			SecretMountPath:    getEnv("ENTRASYNC_VAULT_SECRET_MOUNT_PATH", "secret"),
			EntraIDSecretPath:  getEnv("ENTRASYNC_VAULT_SECRET_PATH_ENTRAID", "entrasync/entraid"),
			DatabaseSecretPath: getEnv("ENTRASYNC_VAULT_SECRET_PATH_DATABASE", "entrasync/database"),
			StorageSecretPath:  getEnv("ENTRASYNC_VAULT_SECRET_PATH_STORAGE", "entrasync/storage"),
			RefreshInterval:    getDurationEnv("ENTRASYNC_VAULT_SECRET_REFRESH_INTERVAL", 5*time.Minute),
			FallbackToEnv:      getBoolEnv("ENTRASYNC_VAULT_FALLBACK_TO_ENV", true),
		},
	}

	cfg.EntraID.TenantID = cfg.EntraID.resolveTenant()

	return cfg, nil
}

// Validate checks that the settings required by an active integration are present.
func (c *Config) Validate() error {
	var errs []error

	if c.Auth.JWTSecret == "" {
		errs = append(errs, errors.New("ENTRASYNC_AUTH_JWT_SECRET is required"))
	} else if len(c.Auth.JWTSecret) < 32 {
		errs = append(errs, errors.New("ENTRASYNC_AUTH_JWT_SECRET must be at least 32 characters"))
	}

	if c.EntraID.Active() {
		if c.EntraID.ClientID == "" {
			errs = append(errs, errors.New("ENTRASYNC_ENTRAID_CLIENT_ID is required"))
		}
		if c.EntraID.TenantID == "" {
			errs = append(errs, errors.New("ENTRASYNC_ENTRAID_TENANT_ID is required"))
		}
		if c.EntraID.ClientSecret == "" && !c.Vault.Enabled {
			errs = append(errs, errors.New("ENTRASYNC_ENTRAID_CLIENT_SECRET is required when vault is disabled"))
		}
	}

	if (c.Auth.AdminEmail == "") != (c.Auth.AdminPassword == "") {
		errs = append(errs, errors.New("ENTRASYNC_AUTH_ADMIN_EMAIL and ENTRASYNC_AUTH_ADMIN_PASSWORD must be set together"))
	}

	if len(errs) > 0 {
		return fmt.Errorf("invalid configuration: %w", errors.Join(errs...))
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func getFloatEnv(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getSliceEnv(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		var result []string
		for _, v := range splitAndTrim(value, ",") {
			if v != "" {
				result = append(result, v)
			}
		}
		if len(result) > 0 {
			return result
		}
	}
	return defaultValue
}

func splitAndTrim(s, sep string) []string {
	parts := make([]string, 0)
	for _, p := range strings.Split(s, sep) {
		trimmed := strings.TrimSpace(p)
		if trimmed != "" {
			parts = append(parts, trimmed)
		}
	}
	return parts
}
