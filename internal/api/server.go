// Package api provides the HTTP API server for entrasync.
package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/janovincze/entrasync/internal/api/handlers"
	"github.com/janovincze/entrasync/internal/api/middleware"
	"github.com/janovincze/entrasync/internal/api/services"
	"github.com/janovincze/entrasync/internal/config"
	"github.com/janovincze/entrasync/internal/health"
	"github.com/janovincze/entrasync/internal/metrics"
	"github.com/janovincze/entrasync/internal/usersync"
)

// Server is the HTTP API server.
type Server struct {
	cfg           *config.Config
	logger        *slog.Logger
	healthManager *health.Manager
	syncService   *services.SyncService
	loginService  *services.LoginService
	adminService  *services.AdminService
	eventHub      *usersync.EventHub
	wikiLinks     *services.WikiLinks
	httpServer    *http.Server
	router        *gin.Engine
}

// ServerConfig holds server configuration options.
type ServerConfig struct {
	// Config is the application configuration.
	Config *config.Config

	// Logger is the structured logger.
	Logger *slog.Logger

	// HealthManager is the health check manager.
	HealthManager *health.Manager

	// SyncService runs user synchronizations. Sync routes are not
	// registered without it.
	SyncService *services.SyncService

	// EventHub streams sync progress over websockets. Optional.
	EventHub *usersync.EventHub

	// LoginService drives the Entra ID authorization code flow.
	LoginService *services.LoginService

	// AdminService authenticates local accounts.
	AdminService *services.AdminService

	// Sessions validates bearer session tokens.
	Sessions middleware.SessionValidator

	// Users resolves the user behind a session.
	Users middleware.UserLookup

	// WikiLinks builds redirects into the wiki.
	WikiLinks *services.WikiLinks

	// CORSConfig is the CORS configuration.
	CORSConfig middleware.CORSConfig

	// RateLimitConfig is the rate limiting configuration.
	RateLimitConfig middleware.RateLimitConfig
}

// DefaultServerConfig returns a ServerConfig with CORS and rate limits taken
// from cfg.API.
func DefaultServerConfig(cfg *config.Config, logger *slog.Logger) ServerConfig {
	corsCfg := middleware.DefaultCORSConfig()
	if len(cfg.API.CORSOrigins) > 0 {
		corsCfg.AllowedOrigins = cfg.API.CORSOrigins
	}
	rateCfg := middleware.DefaultRateLimitConfig()
	if cfg.API.RateLimitRPS > 0 {
		rateCfg.RequestsPerSecond = cfg.API.RateLimitRPS
	}
	if cfg.API.RateLimitBurst > 0 {
		rateCfg.BurstSize = cfg.API.RateLimitBurst
	}

	return ServerConfig{
		Config:          cfg,
		Logger:          logger,
		CORSConfig:      corsCfg,
		RateLimitConfig: rateCfg,
	}
}

// NewServer creates a new API server.
func NewServer(serverCfg ServerConfig) *Server {
	logger := serverCfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	if serverCfg.Config.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()

	if serverCfg.Config.Metrics.Enabled {
		metrics.Register()
	}

	router.Use(middleware.RequestID())
	router.Use(middleware.Recovery(logger))
	if serverCfg.Config.Metrics.Enabled {
		router.Use(middleware.Metrics())
	}
	router.Use(middleware.Logger(logger))
	router.Use(middleware.CORS(serverCfg.CORSConfig))
	router.Use(middleware.RateLimiter(serverCfg.RateLimitConfig))
	if serverCfg.Sessions != nil && serverCfg.Users != nil {
		router.Use(middleware.Authenticate(serverCfg.Sessions, serverCfg.Users))
	}

	s := &Server{
		cfg:           serverCfg.Config,
		logger:        logger.With("component", "api-server"),
		healthManager: serverCfg.HealthManager,
		syncService:   serverCfg.SyncService,
		loginService:  serverCfg.LoginService,
		adminService:  serverCfg.AdminService,
		eventHub:      serverCfg.EventHub,
		wikiLinks:     serverCfg.WikiLinks,
		router:        router,
	}

	s.registerRoutes()

	s.httpServer = &http.Server{
		Addr:              serverCfg.Config.API.ListenAddr,
		Handler:           router,
		ReadTimeout:       serverCfg.Config.API.ReadTimeout,
		ReadHeaderTimeout: serverCfg.Config.API.ReadTimeout,
		WriteTimeout:      serverCfg.Config.API.WriteTimeout,
		IdleTimeout:       serverCfg.Config.API.ReadTimeout * 4,
	}

	return s
}

func (s *Server) registerRoutes() {
	healthHandler := handlers.NewHealthHandler(s.healthManager)
	versionHandler := handlers.NewVersionHandler(s.cfg.Version)
	configHandler := handlers.NewConfigHandler(s.cfg)

	s.router.GET("/health", healthHandler.GetHealth)
	s.router.GET("/health/live", healthHandler.GetLiveness)
	s.router.GET("/health/ready", healthHandler.GetReadiness)
	s.router.GET("/version", versionHandler.GetVersion)

	if s.cfg.Metrics.Enabled {
		s.router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	}

	entra := s.router.Group("/entraid")
	{
		entra.GET("/config", configHandler.GetConfig)

		loginHandler := handlers.NewLoginHandler(s.loginService, s.wikiLinks, s.logger)
		entra.GET("/login/xwiki/*redirectDocument", loginHandler.XWikiLogin)
		if s.loginService != nil {
			entra.GET("/oauth/authorize", loginHandler.Authorize)
			entra.GET("/oauth/callback", loginHandler.Callback)
			entra.GET("/logout", loginHandler.Logout)
		}

		if s.syncService != nil {
			syncHandler := handlers.NewSyncHandler(s.syncService, s.eventHub, s.logger)
			// PUT checks admin rights itself so the refusal is logged.
			entra.PUT("/user/sync", syncHandler.SyncUsers)

			admin := entra.Group("/user/sync", middleware.RequireAdmin())
			admin.GET("", syncHandler.GetSync)
			admin.DELETE("", syncHandler.CancelSync)
			admin.GET("/jobs", syncHandler.ListJobs)
			admin.GET("/events", syncHandler.StreamEvents)
		}
	}

	if s.adminService != nil {
		authHandler := handlers.NewAuthHandler(s.adminService)
		v1 := s.router.Group("/api/v1")
		v1.POST("/auth/login", authHandler.Login)
		v1.GET("/auth/me", authHandler.GetMe)
	}
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	s.logger.Info("starting API server", "addr", s.cfg.API.ListenAddr)

	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}

	return nil
}

// Stop gracefully stops the HTTP server.
func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info("stopping API server")

	if ctx == nil {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
	}

	return s.httpServer.Shutdown(ctx)
}

// Router returns the underlying Gin router for testing.
func (s *Server) Router() *gin.Engine {
	return s.router
}
