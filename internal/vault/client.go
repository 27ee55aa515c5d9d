package vault

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/hashicorp/vault/api"
)

// ErrSecretNotFound is returned when a path holds no secret.
var ErrSecretNotFound = errors.New("secret not found")

// Client reads KV v2 secrets and keeps its login token fresh.
type Client struct {
	config   *Config
	api      *api.Client
	logger   *slog.Logger
	mu       sync.RWMutex
	token    string
	tokenExp time.Time
	stopCtx  context.Context
	stop     context.CancelFunc
}

// NewClient creates a Vault client. It does not authenticate.
func NewClient(cfg *Config, logger *slog.Logger) (*Client, error) {
	if cfg == nil {
		return nil, errors.New("vault config is required")
	}
	if !cfg.Enabled {
		return nil, errors.New("vault is not enabled")
	}
	if cfg.Address == "" {
		return nil, errors.New("vault address is required")
	}
	if logger == nil {
		logger = slog.Default()
	}

	apiCfg := api.DefaultConfig()
	apiCfg.Address = cfg.Address

	if cfg.TLSSkipVerify {
		apiCfg.HttpClient.Transport = &http.Transport{
			TLSClientConfig: &tls.Config{InsecureSkipVerify: true}, //nolint:gosec // explicitly configured
		}
	}
	if cfg.CACert != "" {
		if err := apiCfg.ConfigureTLS(&api.TLSConfig{CACert: cfg.CACert}); err != nil {
			return nil, fmt.Errorf("failed to configure TLS: %w", err)
		}
	}

	apiClient, err := api.NewClient(apiCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create vault client: %w", err)
	}
	if cfg.Namespace != "" {
		apiClient.SetNamespace(cfg.Namespace)
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Client{
		config:  cfg,
		api:     apiClient,
		logger:  logger.With("component", "vault-client"),
		stopCtx: ctx,
		stop:    cancel,
	}, nil
}

// Authenticate logs in with the configured method.
func (c *Client) Authenticate(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.login(ctx)
}

// login must be called with the write lock held.
func (c *Client) login(ctx context.Context) error {
	switch c.config.AuthMethod {
	case AuthMethodToken:
		if c.config.Token == "" {
			return errors.New("vault token is required for token auth method")
		}
		c.token = c.config.Token
		c.api.SetToken(c.token)
		c.logger.Info("authenticated to vault", "auth_method", AuthMethodToken)
		return nil
	case AuthMethodKubernetes:
		return c.loginKubernetes(ctx)
	default:
		return fmt.Errorf("unsupported auth method: %s", c.config.AuthMethod)
	}
}

func (c *Client) loginKubernetes(ctx context.Context) error {
	jwt, err := os.ReadFile(c.config.TokenPath)
	if err != nil {
		return fmt.Errorf("failed to read service account token: %w", err)
	}

	resp, err := c.api.Logical().WriteWithContext(ctx, "auth/kubernetes/login", map[string]interface{}{
		"role": c.config.Role,
		"jwt":  string(jwt),
	})
	if err != nil {
		return fmt.Errorf("failed to authenticate with kubernetes: %w", err)
	}
	if resp == nil || resp.Auth == nil {
		return errors.New("no auth response from vault")
	}

	c.token = resp.Auth.ClientToken
	c.api.SetToken(c.token)
	if resp.Auth.LeaseDuration > 0 {
		c.tokenExp = time.Now().Add(time.Duration(resp.Auth.LeaseDuration) * time.Second)
	}

	c.logger.Info("authenticated to vault",
		"auth_method", AuthMethodKubernetes,
		"role", c.config.Role,
		"lease_duration", resp.Auth.LeaseDuration,
	)
	return nil
}

// ReadSecret returns the data of the KV v2 secret at path.
func (c *Client) ReadSecret(ctx context.Context, path string) (map[string]interface{}, error) {
	if err := c.ensureToken(ctx); err != nil {
		return nil, err
	}

	fullPath := fmt.Sprintf("%s/data/%s", c.config.SecretMountPath, path)
	c.logger.Debug("reading secret", "path", fullPath)

	secret, err := c.api.Logical().ReadWithContext(ctx, fullPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read secret at %s: %w", fullPath, err)
	}
	if secret == nil || secret.Data == nil {
		return nil, fmt.Errorf("%w at %s", ErrSecretNotFound, fullPath)
	}

	data, ok := secret.Data["data"].(map[string]interface{})
	if !ok {
		return nil, fmt.Errorf("unexpected secret format at %s", fullPath)
	}
	return data, nil
}

// ReadString returns one string value of the secret at path.
func (c *Client) ReadString(ctx context.Context, path, key string) (string, error) {
	data, err := c.ReadSecret(ctx, path)
	if err != nil {
		return "", err
	}
	return stringValue(data, path, key)
}

func stringValue(data map[string]interface{}, path, key string) (string, error) {
	value, ok := data[key]
	if !ok {
		return "", fmt.Errorf("key %s not found in secret at %s", key, path)
	}
	s, ok := value.(string)
	if !ok {
		return "", fmt.Errorf("value for key %s is not a string", key)
	}
	return s, nil
}

func (c *Client) ensureToken(ctx context.Context) error {
	c.mu.RLock()
	stale := c.tokenStale()
	c.mu.RUnlock()
	if !stale {
		return nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.tokenStale() {
		return nil
	}
	if err := c.login(ctx); err != nil {
		return fmt.Errorf("failed to re-authenticate: %w", err)
	}
	return nil
}

// tokenStale must be called with at least the read lock held.
func (c *Client) tokenStale() bool {
	if c.token == "" {
		return true
	}
	if c.config.AuthMethod == AuthMethodToken || c.tokenExp.IsZero() {
		return false
	}
	return time.Now().Add(c.config.TokenRenewalInterval / 10).After(c.tokenExp)
}

// StartTokenRenewal renews a login token in the background until Close.
func (c *Client) StartTokenRenewal() {
	if c.config.AuthMethod == AuthMethodToken || c.config.TokenRenewalInterval <= 0 {
		return
	}

	go func() {
		ticker := time.NewTicker(c.config.TokenRenewalInterval)
		defer ticker.Stop()

		for {
			select {
			case <-c.stopCtx.Done():
				return
			case <-ticker.C:
				if err := c.renew(); err != nil {
					c.logger.Error("failed to renew token, will re-authenticate", "error", err)
					if err := c.Authenticate(c.stopCtx); err != nil {
						c.logger.Error("failed to re-authenticate", "error", err)
					}
				}
			}
		}
	}()

	c.logger.Info("started token renewal", "interval", c.config.TokenRenewalInterval)
}

func (c *Client) renew() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	resp, err := c.api.Auth().Token().RenewSelfWithContext(c.stopCtx, 0)
	if err != nil {
		return fmt.Errorf("failed to renew token: %w", err)
	}
	if resp.Auth != nil && resp.Auth.LeaseDuration > 0 {
		c.tokenExp = time.Now().Add(time.Duration(resp.Auth.LeaseDuration) * time.Second)
	}
	return nil
}

// HealthCheck checks that Vault is initialized and unsealed.
func (c *Client) HealthCheck(ctx context.Context) error {
	health, err := c.api.Sys().HealthWithContext(ctx)
	if err != nil {
		return fmt.Errorf("vault health check failed: %w", err)
	}
	if !health.Initialized {
		return errors.New("vault is not initialized")
	}
	if health.Sealed {
		return errors.New("vault is sealed")
	}
	return nil
}

// Close stops token renewal.
func (c *Client) Close() error {
	c.stop()
	return nil
}
