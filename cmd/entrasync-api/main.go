// Package main provides the entry point for the entrasync API service.
// The service signs users in through Entra ID and keeps the local user
// store in sync with the Entra ID directory.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/coder/quartz"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/janovincze/entrasync/internal/api"
	"github.com/janovincze/entrasync/internal/api/repositories"
	"github.com/janovincze/entrasync/internal/api/services"
	"github.com/janovincze/entrasync/internal/config"
	"github.com/janovincze/entrasync/internal/directory"
	"github.com/janovincze/entrasync/internal/entraid"
	"github.com/janovincze/entrasync/internal/health"
	"github.com/janovincze/entrasync/internal/storage"
	"github.com/janovincze/entrasync/internal/usersync"
	"github.com/janovincze/entrasync/internal/vault"
)

func main() {
	level := new(slog.LevelVar)
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		logger.Info("received shutdown signal", "signal", sig.String())
		cancel()
	}()

	cfg, err := config.Load()
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	level.Set(parseLevel(cfg.LogLevel))

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("api failed", "error", err)
		os.Exit(1)
	}
}

func parseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func run(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	logger.Info("starting entrasync API",
		"version", cfg.Version,
		"environment", cfg.Environment,
		"entraid_active", cfg.EntraID.Active(),
	)

	secrets, err := vault.NewSecretProvider(ctx, vault.NewConfig(cfg.Vault), cfg, logger)
	if err != nil {
		return fmt.Errorf("create secret provider: %w", err)
	}
	defer secrets.Close()

	if err := vault.Apply(ctx, secrets, cfg); err != nil {
		return fmt.Errorf("load secrets: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	poolCfg, err := pgxpool.ParseConfig(cfg.Database.URL())
	if err != nil {
		return fmt.Errorf("parse database config: %w", err)
	}
	if cfg.Database.MaxConns > 0 {
		poolCfg.MaxConns = int32(cfg.Database.MaxConns)
	}
	if cfg.Database.MinConns > 0 {
		poolCfg.MinConns = int32(cfg.Database.MinConns)
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer pool.Close()

	users := repositories.NewUserRepository(pool)
	if err := users.EnsureSchema(ctx); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}

	healthManager := health.NewManager(5*time.Second, logger)
	healthManager.Register(health.NewPingChecker("database", pool.Ping))
	if checker, ok := secrets.(interface {
		HealthCheck(ctx context.Context) error
	}); ok {
		healthManager.RegisterOptional(health.NewPingChecker("vault", checker.HealthCheck))
	}

	var avatars services.AvatarStore
	if cfg.Storage.Enabled {
		store, err := storage.NewAvatarStore(cfg.Storage, logger)
		if err != nil {
			return fmt.Errorf("create avatar store: %w", err)
		}
		if err := store.EnsureBucket(ctx); err != nil {
			return fmt.Errorf("ensure avatar bucket: %w", err)
		}
		healthManager.RegisterOptional(health.NewPingChecker("storage", store.Ping))
		avatars = store
	}

	sessions := services.NewSessionService(&cfg.Auth, quartz.NewReal(), logger)
	adminService := services.NewAdminService(users, sessions, &cfg.Auth, logger)
	if err := adminService.BootstrapAdmin(ctx); err != nil {
		return fmt.Errorf("bootstrap admin: %w", err)
	}

	serverCfg := api.DefaultServerConfig(cfg, logger)
	serverCfg.HealthManager = healthManager
	serverCfg.AdminService = adminService
	serverCfg.Sessions = sessions
	serverCfg.Users = users

	if cfg.Wiki.BaseURL != "" {
		links, err := services.NewWikiLinks(cfg.Wiki.BaseURL)
		if err != nil {
			return fmt.Errorf("parse wiki base URL: %w", err)
		}
		serverCfg.WikiLinks = links
	}

	var manager *usersync.Manager
	var hub *usersync.EventHub
	if cfg.EntraID.Active() {
		endpoints := entraid.EndpointsFor(cfg.EntraID.LoginBaseURL, cfg.EntraID.TenantID)

		client := entraid.NewClient(entraid.ClientConfig{
			ClientID:     cfg.EntraID.ClientID,
			ClientSecret: cfg.EntraID.ClientSecret,
			TenantID:     cfg.EntraID.TenantID,
			RedirectURL:  cfg.EntraID.RedirectURL,
			Scopes:       cfg.EntraID.Scopes(),
			Endpoints:    endpoints,
			GraphBaseURL: cfg.EntraID.GraphBaseURL,
			HTTPTimeout:  cfg.EntraID.HTTPTimeout,
		}, logger)
		serverCfg.LoginService = services.NewLoginService(client, users, avatars, sessions, logger)

		dir := directory.NewClient(directory.Config{
			ClientID:     cfg.EntraID.ClientID,
			ClientSecret: cfg.EntraID.ClientSecret,
			TokenURL:     endpoints.Token,
			GraphBaseURL: cfg.EntraID.GraphBaseURL,
			Timeout:      cfg.EntraID.HTTPTimeout,
		}, logger)

		var opts []usersync.ManagerOption
		if cfg.Sync.EventsEnabled {
			hub = usersync.NewEventHub(logger, nil)
			defer hub.Close()
			opts = append(opts, usersync.WithPublisher(hub))
			serverCfg.EventHub = hub
		}

		manager = usersync.NewManager(usersync.NewReconciler(users, dir, logger), logger, opts...)
		serverCfg.SyncService = services.NewSyncService(manager, logger)

		req := usersync.Request{Disable: cfg.Sync.Disable, Remove: cfg.Sync.Remove}
		if cfg.Sync.Schedule != "" {
			scheduler, err := usersync.NewScheduler(cfg.Sync.Schedule, req, manager, logger)
			if err != nil {
				return fmt.Errorf("create sync scheduler: %w", err)
			}
			if err := scheduler.Start(ctx); err != nil {
				return fmt.Errorf("start sync scheduler: %w", err)
			}
			defer scheduler.Stop()
		}
		if cfg.Sync.OnStartup {
			if _, _, err := manager.Submit(req); err != nil {
				logger.Warn("failed to submit startup sync", "error", err)
			}
		}
	} else {
		serverCfg.LoginService = services.NewLoginService(nil, users, avatars, sessions, logger)
		logger.Info("entra id integration skipped, sync endpoints disabled")
	}

	server := api.NewServer(serverCfg)

	errCh := make(chan error, 1)
	go func() {
		if err := server.Start(); err != nil {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		return fmt.Errorf("api server: %w", err)
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Stop(shutdownCtx); err != nil {
		logger.Error("failed to stop API server", "error", err)
	}
	if manager != nil {
		if err := manager.Shutdown(shutdownCtx); err != nil {
			logger.Error("failed to stop sync jobs", "error", err)
		}
	}

	logger.Info("entrasync API stopped gracefully")
	return nil
}
