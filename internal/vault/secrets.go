package vault

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/coder/quartz"

	"github.com/janovincze/entrasync/internal/config"
)

// SecretProvider supplies the credentials entrasync needs at startup.
type SecretProvider interface {
	EntraIDClientSecret(ctx context.Context) (string, error)
	DatabasePassword(ctx context.Context) (string, error)
	StorageCredentials(ctx context.Context) (accessKey, secretKey string, err error)
	Close() error
}

type secretReader interface {
	ReadSecret(ctx context.Context, path string) (map[string]interface{}, error)
}

type cachedSecret struct {
	data      map[string]interface{}
	fetchedAt time.Time
}

// VaultSecretProvider reads secrets through a Client and caches each path
// for the refresh interval.
type VaultSecretProvider struct {
	reader secretReader
	closer func() error
	health func(ctx context.Context) error
	paths  SecretPaths
	ttl    time.Duration
	clock  quartz.Clock
	logger *slog.Logger
	mu     sync.Mutex
	cache  map[string]cachedSecret
}

// NewVaultSecretProvider creates a provider backed by client.
func NewVaultSecretProvider(client *Client, paths SecretPaths, ttl time.Duration, logger *slog.Logger) *VaultSecretProvider {
	p := newVaultSecretProvider(client, client.Close, paths, ttl, quartz.NewReal(), logger)
	p.health = client.HealthCheck
	return p
}

func newVaultSecretProvider(reader secretReader, closer func() error, paths SecretPaths, ttl time.Duration, clock quartz.Clock, logger *slog.Logger) *VaultSecretProvider {
	if logger == nil {
		logger = slog.Default()
	}
	return &VaultSecretProvider{
		reader: reader,
		closer: closer,
		paths:  paths,
		ttl:    ttl,
		clock:  clock,
		logger: logger.With("component", "vault-secrets"),
		cache:  make(map[string]cachedSecret),
	}
}

func (p *VaultSecretProvider) read(ctx context.Context, path string) (map[string]interface{}, error) {
	if path == "" {
		return nil, fmt.Errorf("%w: no path configured", ErrSecretNotFound)
	}

	now := p.clock.Now()
	p.mu.Lock()
	cached, ok := p.cache[path]
	p.mu.Unlock()
	if ok && now.Sub(cached.fetchedAt) < p.ttl {
		return cached.data, nil
	}

	data, err := p.reader.ReadSecret(ctx, path)
	if err != nil {
		return nil, err
	}

	p.mu.Lock()
	p.cache[path] = cachedSecret{data: data, fetchedAt: now}
	p.mu.Unlock()

	p.logger.Debug("fetched secret", "path", path, "keys", len(data))
	return data, nil
}

// EntraIDClientSecret returns the application client secret.
func (p *VaultSecretProvider) EntraIDClientSecret(ctx context.Context) (string, error) {
	data, err := p.read(ctx, p.paths.EntraID)
	if err != nil {
		return "", fmt.Errorf("failed to get entraid client secret: %w", err)
	}
	return stringValue(data, p.paths.EntraID, SecretKeyClientSecret)
}

// DatabasePassword returns the user store password.
func (p *VaultSecretProvider) DatabasePassword(ctx context.Context) (string, error) {
	data, err := p.read(ctx, p.paths.Database)
	if err != nil {
		return "", fmt.Errorf("failed to get database password: %w", err)
	}
	return stringValue(data, p.paths.Database, SecretKeyPassword)
}

// StorageCredentials returns the object storage keys.
func (p *VaultSecretProvider) StorageCredentials(ctx context.Context) (string, string, error) {
	data, err := p.read(ctx, p.paths.Storage)
	if err != nil {
		return "", "", fmt.Errorf("failed to get storage credentials: %w", err)
	}
	ak, err := stringValue(data, p.paths.Storage, SecretKeyAccessKey)
	if err != nil {
		return "", "", err
	}
	sk, err := stringValue(data, p.paths.Storage, SecretKeySecretKey)
	if err != nil {
		return "", "", err
	}
	return ak, sk, nil
}

// HealthCheck reports whether Vault is reachable and unsealed.
func (p *VaultSecretProvider) HealthCheck(ctx context.Context) error {
	if p.health == nil {
		return nil
	}
	return p.health(ctx)
}

// Close releases the underlying client.
func (p *VaultSecretProvider) Close() error {
	if p.closer == nil {
		return nil
	}
	return p.closer()
}

// StaticSecretProvider serves the values already present in the loaded configuration.
type StaticSecretProvider struct {
	cfg *config.Config
}

// NewStaticSecretProvider creates a provider over cfg.
func NewStaticSecretProvider(cfg *config.Config) *StaticSecretProvider {
	return &StaticSecretProvider{cfg: cfg}
}

// EntraIDClientSecret returns ENTRASYNC_ENTRAID_CLIENT_SECRET.
func (p *StaticSecretProvider) EntraIDClientSecret(_ context.Context) (string, error) {
	if p.cfg.EntraID.ClientSecret == "" {
		return "", errors.New("ENTRASYNC_ENTRAID_CLIENT_SECRET not set")
	}
	return p.cfg.EntraID.ClientSecret, nil
}

// DatabasePassword returns ENTRASYNC_DB_PASSWORD.
func (p *StaticSecretProvider) DatabasePassword(_ context.Context) (string, error) {
	return p.cfg.Database.Password, nil
}

// StorageCredentials returns the configured storage keys.
func (p *StaticSecretProvider) StorageCredentials(_ context.Context) (string, string, error) {
	return p.cfg.Storage.AccessKey, p.cfg.Storage.SecretKey, nil
}

// Close is a no-op.
func (p *StaticSecretProvider) Close() error {
	return nil
}

// NewSecretProvider returns a Vault-backed provider when Vault is enabled and
// reachable, and a static provider over cfg otherwise. With FallbackToEnv
// unset, Vault failures are returned.
func NewSecretProvider(ctx context.Context, vcfg *Config, cfg *config.Config, logger *slog.Logger) (SecretProvider, error) {
	if vcfg == nil || cfg == nil {
		return nil, errors.New("vault config is required")
	}
	if logger == nil {
		logger = slog.Default()
	}

	if !vcfg.Enabled {
		logger.Info("vault disabled, using configured secrets")
		return NewStaticSecretProvider(cfg), nil
	}

	fallback := func(msg string, err error) (SecretProvider, error) {
		if vcfg.FallbackToEnv {
			logger.Warn(msg+", falling back to configured secrets", "error", err)
			return NewStaticSecretProvider(cfg), nil
		}
		return nil, fmt.Errorf("%s: %w", msg, err)
	}

	client, err := NewClient(vcfg, logger)
	if err != nil {
		return fallback("failed to create vault client", err)
	}
	if err := client.Authenticate(ctx); err != nil {
		_ = client.Close()
		return fallback("failed to authenticate to vault", err)
	}
	client.StartTokenRenewal()

	logger.Info("using vault secret provider")
	return NewVaultSecretProvider(client, vcfg.Paths, vcfg.RefreshInterval, logger), nil
}

// Apply overwrites the credentials in cfg with the provider's values. The
// client secret is only read when the Entra ID integration is active, and
// storage keys only when storage is enabled.
func Apply(ctx context.Context, provider SecretProvider, cfg *config.Config) error {
	if cfg.EntraID.Active() {
		secret, err := provider.EntraIDClientSecret(ctx)
		if err != nil {
			return err
		}
		cfg.EntraID.ClientSecret = secret
	}

	password, err := provider.DatabasePassword(ctx)
	if err != nil {
		return err
	}
	cfg.Database.Password = password

	if cfg.Storage.Enabled {
		ak, sk, err := provider.StorageCredentials(ctx)
		if err != nil {
			return err
		}
		cfg.Storage.AccessKey = ak
		cfg.Storage.SecretKey = sk
	}
	return nil
}

var (
	_ SecretProvider = (*VaultSecretProvider)(nil)
	_ SecretProvider = (*StaticSecretProvider)(nil)
)
