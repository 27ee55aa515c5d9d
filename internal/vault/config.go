// Package vault reads entrasync credentials from HashiCorp Vault.
package vault

import (
	"time"

	"github.com/janovincze/entrasync/internal/config"
)

// Authentication methods.
const (
	AuthMethodKubernetes = "kubernetes"
	AuthMethodToken      = "token"
)

// DefaultTokenPath is where Kubernetes mounts the service account token.
const DefaultTokenPath = "/var/run/secrets/kubernetes.io/serviceaccount/token"

// Keys read from the KV secrets.
const (
	SecretKeyClientSecret = "client_secret"
	SecretKeyPassword     = "password"
	SecretKeyAccessKey    = "access_key"
	SecretKeySecretKey    = "secret_key"
)

// Config holds Vault client configuration.
type Config struct {
	Enabled       bool
	Address       string
	Namespace     string
	AuthMethod    string
	Role          string
	TokenPath     string
	Token         string
	TLSSkipVerify bool
	CACert        string

	// SecretMountPath is the mount path of the KV v2 engine
	SecretMountPath string

	// TokenRenewalInterval is how often a login token is renewed
	TokenRenewalInterval time.Duration

	// RefreshInterval is how long a fetched secret is served from cache
	RefreshInterval time.Duration

	// FallbackToEnv keeps the configured values when Vault cannot be used
	FallbackToEnv bool

	Paths SecretPaths
}

// SecretPaths are the KV paths, relative to the mount, of each secret.
type SecretPaths struct {
	EntraID  string
	Database string
	Storage  string
}

// NewConfig converts the service configuration.
func NewConfig(cfg config.VaultConfig) *Config {
	c := &Config{
		Enabled:              cfg.Enabled,
		Address:              cfg.Address,
		Namespace:            cfg.Namespace,
		AuthMethod:           cfg.AuthMethod,
		Role:                 cfg.Role,
		TokenPath:            cfg.TokenPath,
		Token:                cfg.Token,
		TLSSkipVerify:        cfg.TLSSkipVerify,
		CACert:               cfg.CACert,
		SecretMountPath:      cfg.SecretMountPath,
		TokenRenewalInterval: time.Hour,
		RefreshInterval:      cfg.RefreshInterval,
		FallbackToEnv:        cfg.FallbackToEnv,
		Paths: SecretPaths{
			EntraID:  cfg.EntraIDSecretPath,
			Database: cfg.DatabaseSecretPath,
			Storage:  cfg.StorageSecretPath,
		},
	}
	if c.TokenPath == "" {
		c.TokenPath = DefaultTokenPath
	}
	if c.SecretMountPath == "" {
		c.SecretMountPath = "secret"
	}
	return c
}
