package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/coder/quartz"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/janovincze/entrasync/internal/api/models"
	"github.com/janovincze/entrasync/internal/api/services"
	"github.com/janovincze/entrasync/internal/config"
	"github.com/janovincze/entrasync/internal/usersync"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type instantRunner struct{}

func (instantRunner) Run(context.Context, usersync.Request, func() bool) (usersync.Result, error) {
	return usersync.Result{}, nil
}

type userMap map[uuid.UUID]*models.User

func (m userMap) GetByID(_ context.Context, id uuid.UUID) (*models.User, error) {
	u, ok := m[id]
	if !ok {
		return nil, errors.New("not found")
	}
	return u, nil
}

type testServer struct {
	*Server
	adminToken string
	userToken  string
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelError,
	}))

	cfg := &config.Config{
		Version:     "0.1.0-test",
		Environment: "test",
		API: config.APIConfig{
			ListenAddr:     ":8080",
			BaseURL:        "http://localhost:8080",
			ReadTimeout:    15 * time.Second,
			WriteTimeout:   15 * time.Second,
			CORSOrigins:    []string{"*"},
			RateLimitRPS:   100,
			RateLimitBurst: 200,
		},
		Auth: config.AuthConfig{
			JWTSecret:       "0123456789abcdef0123456789abcdef",
			JWTExpiration:   time.Hour,
			StateExpiration: 10 * time.Minute,
			BCryptCost:      4,
		},
		Metrics: config.MetricsConfig{Enabled: true},
	}
	cfg.EntraID.Skipped = true

	sessions := services.NewSessionService(&cfg.Auth, quartz.NewReal(), logger)
	admin := &models.User{ID: uuid.New(), Email: "admin@example.com", Role: models.RoleAdmin, IsActive: true}
	member := &models.User{ID: uuid.New(), Email: "member@example.com", Role: models.RoleUser, IsActive: true}

	adminToken, _, err := sessions.IssueSession(admin)
	if err != nil {
		t.Fatalf("IssueSession() error = %v", err)
	}
	userToken, _, err := sessions.IssueSession(member)
	if err != nil {
		t.Fatalf("IssueSession() error = %v", err)
	}

	manager := usersync.NewManager(instantRunner{}, logger)
	t.Cleanup(func() { _ = manager.Shutdown(context.Background()) })

	links, err := services.NewWikiLinks("http://localhost:8080/xwiki")
	if err != nil {
		t.Fatalf("NewWikiLinks() error = %v", err)
	}

	serverCfg := DefaultServerConfig(cfg, logger)
	serverCfg.SyncService = services.NewSyncService(manager, logger)
	serverCfg.LoginService = services.NewLoginService(nil, nil, nil, sessions, logger)
	serverCfg.Sessions = sessions
	serverCfg.Users = userMap{admin.ID: admin, member.ID: member}
	serverCfg.WikiLinks = links

	return &testServer{
		Server:     NewServer(serverCfg),
		adminToken: adminToken,
		userToken:  userToken,
	}
}

func (s *testServer) do(method, target, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	s.Router().ServeHTTP(w, req)
	return w
}

func TestServer_HealthEndpoints(t *testing.T) {
	server := newTestServer(t)

	tests := []struct {
		path   string
		status string
	}{
		{"/health", "healthy"},
		{"/health/live", "alive"},
		{"/health/ready", "ready"},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			w := server.do(http.MethodGet, tt.path, "")
			if w.Code != http.StatusOK {
				t.Fatalf("expected status %d, got %d", http.StatusOK, w.Code)
			}
			var response struct {
				Status string `json:"status"`
			}
			if err := json.NewDecoder(w.Body).Decode(&response); err != nil {
				t.Fatalf("failed to decode response: %v", err)
			}
			if response.Status != tt.status {
				t.Errorf("expected status '%s', got '%s'", tt.status, response.Status)
			}
		})
	}
}

func TestServer_VersionEndpoint(t *testing.T) {
	server := newTestServer(t)

	w := server.do(http.MethodGet, "/version", "")
	if w.Code != http.StatusOK {
		t.Errorf("expected status %d, got %d", http.StatusOK, w.Code)
	}

	var response models.VersionResponse
	if err := json.NewDecoder(w.Body).Decode(&response); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if response.Version != "0.1.0-test" {
		t.Errorf("expected version '0.1.0-test', got '%s'", response.Version)
	}
}

func TestServer_ConfigEndpoint(t *testing.T) {
	server := newTestServer(t)

	w := server.do(http.MethodGet, "/entraid/config", "")
	if w.Code != http.StatusOK {
		t.Errorf("expected status %d, got %d", http.StatusOK, w.Code)
	}

	var response models.ConfigResponse
	if err := json.NewDecoder(w.Body).Decode(&response); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if response.Environment != "test" {
		t.Errorf("expected environment 'test', got '%s'", response.Environment)
	}
	if response.EntraID.Active {
		t.Error("expected inactive integration")
	}
}

func TestServer_MetricsEndpoint(t *testing.T) {
	server := newTestServer(t)

	if w := server.do(http.MethodGet, "/metrics", ""); w.Code != http.StatusOK {
		t.Errorf("expected status %d, got %d", http.StatusOK, w.Code)
	}
}

func TestServer_SyncRequiresAdmin(t *testing.T) {
	server := newTestServer(t)

	tests := []struct {
		name   string
		method string
		path   string
		token  string
		want   int
	}{
		{"anonymous put", http.MethodPut, "/entraid/user/sync", "", http.StatusUnauthorized},
		{"member put", http.MethodPut, "/entraid/user/sync", server.userToken, http.StatusUnauthorized},
		{"forged token", http.MethodPut, "/entraid/user/sync", "not-a-jwt", http.StatusUnauthorized},
		{"member jobs", http.MethodGet, "/entraid/user/sync/jobs", server.userToken, http.StatusUnauthorized},
		{"admin put", http.MethodPut, "/entraid/user/sync?disable=true", server.adminToken, http.StatusCreated},
		{"admin jobs", http.MethodGet, "/entraid/user/sync/jobs", server.adminToken, http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := server.do(tt.method, tt.path, tt.token)
			if w.Code != tt.want {
				t.Errorf("status = %d, want %d", w.Code, tt.want)
			}
		})
	}
}

func TestServer_XWikiLogin(t *testing.T) {
	server := newTestServer(t)

	w := server.do(http.MethodGet, "/entraid/login/xwiki/Sandbox.WebHome", "")
	if w.Code != http.StatusSeeOther {
		t.Fatalf("status = %d, want 303", w.Code)
	}
	want := "http://localhost:8080/xwiki/bin/login/XWiki/XWikiLogin?xredirect=" +
		"http%3A%2F%2Flocalhost%3A8080%2Fxwiki%2Fbin%2Fview%2FSandbox%2FWebHome&loginLink=1&oidc.skipped=true"
	if got := w.Header().Get("Location"); got != want {
		t.Errorf("Location = %q, want %q", got, want)
	}
}

func TestServer_AuthorizeWhenSkipped(t *testing.T) {
	server := newTestServer(t)

	if w := server.do(http.MethodGet, "/entraid/oauth/authorize", ""); w.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", w.Code)
	}
}

func TestServer_LocalAuthNotRegistered(t *testing.T) {
	server := newTestServer(t)

	if w := server.do(http.MethodGet, "/api/v1/auth/me", ""); w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404 without an admin service", w.Code)
	}
}

func TestServer_RequestID(t *testing.T) {
	server := newTestServer(t)

	w := server.do(http.MethodGet, "/health", "")
	if w.Header().Get("X-Request-ID") == "" {
		t.Error("expected X-Request-ID header to be set")
	}

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("X-Request-ID", "test-request-id")
	w = httptest.NewRecorder()
	server.Router().ServeHTTP(w, req)

	if got := w.Header().Get("X-Request-ID"); got != "test-request-id" {
		t.Errorf("expected X-Request-ID 'test-request-id', got '%s'", got)
	}
}
