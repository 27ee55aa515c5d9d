package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/janovincze/entrasync/internal/api/models"
	"github.com/janovincze/entrasync/internal/api/repositories"
	"github.com/janovincze/entrasync/internal/config"
)

// AdminStore persists local password accounts.
type AdminStore interface {
	GetByEmail(ctx context.Context, email string) (*models.User, string, error)
	CreateLocalAdmin(ctx context.Context, email, passwordHash string) (*models.User, error)
	UpdateLastLogin(ctx context.Context, id uuid.UUID) error
}

// AdminService provides local admin authentication.
type AdminService struct {
	store    AdminStore
	sessions *SessionService
	cfg      *config.AuthConfig
	logger   *slog.Logger
}

// NewAdminService creates a new AdminService.
func NewAdminService(store AdminStore, sessions *SessionService, cfg *config.AuthConfig, logger *slog.Logger) *AdminService {
	if logger == nil {
		logger = slog.Default()
	}
	return &AdminService{
		store:    store,
		sessions: sessions,
		cfg:      cfg,
		logger:   logger.With("component", "admin-service"),
	}
}

// Login authenticates a local admin and returns a session token.
func (s *AdminService) Login(ctx context.Context, req *models.LoginRequest) (*models.LoginResponse, error) {
	if fieldErrors := req.Validate(); len(fieldErrors) > 0 {
		return nil, &ValidationError{Errors: fieldErrors}
	}

	user, passwordHash, err := s.store.GetByEmail(ctx, req.Email)
	if err != nil {
		if errors.Is(err, repositories.ErrUserNotFound) {
			s.logger.Info("login failed", "reason", "user not found")
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}

	if !user.IsActive {
		s.logger.Info("login failed", "user_id", user.ID, "reason", "user inactive")
		return nil, ErrUserInactive
	}

	if pwdErr := bcrypt.CompareHashAndPassword([]byte(passwordHash), []byte(req.Password)); pwdErr != nil {
		s.logger.Info("login failed", "user_id", user.ID, "reason", "invalid password")
		return nil, ErrInvalidCredentials
	}

	token, expiresAt, err := s.sessions.IssueSession(user)
	if err != nil {
		return nil, fmt.Errorf("failed to generate token: %w", err)
	}

	if err := s.store.UpdateLastLogin(ctx, user.ID); err != nil {
		s.logger.Warn("failed to update last login", "user_id", user.ID, "error", err)
	}

	s.logger.Info("admin logged in", "user_id", user.ID)

	return &models.LoginResponse{
		Token:     token,
		ExpiresAt: expiresAt,
		User:      user,
	}, nil
}

// HashPassword hashes a password using bcrypt.
func (s *AdminService) HashPassword(password string) (string, error) {
	cost := s.cfg.BCryptCost
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), cost)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}
	return string(hash), nil
}

// BootstrapAdmin creates the configured admin account if it does not exist.
func (s *AdminService) BootstrapAdmin(ctx context.Context) error {
	if s.cfg.AdminEmail == "" || s.cfg.AdminPassword == "" {
		s.logger.Debug("no bootstrap admin configured")
		return nil
	}

	_, _, err := s.store.GetByEmail(ctx, s.cfg.AdminEmail)
	switch {
	case err == nil:
		s.logger.Debug("bootstrap admin already exists", "email", s.cfg.AdminEmail)
		return nil
	case !errors.Is(err, repositories.ErrUserNotFound):
		return fmt.Errorf("failed to check admin existence: %w", err)
	}

	passwordHash, err := s.HashPassword(s.cfg.AdminPassword)
	if err != nil {
		return err
	}

	user, err := s.store.CreateLocalAdmin(ctx, s.cfg.AdminEmail, passwordHash)
	if err != nil {
		if errors.Is(err, repositories.ErrUserEmailExists) {
			return nil
		}
		return fmt.Errorf("failed to create bootstrap admin: %w", err)
	}

	s.logger.Info("bootstrap admin created", "user_id", user.ID, "email", user.Email)
	return nil
}
