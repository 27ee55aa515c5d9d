package services

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"time"

	"github.com/google/uuid"

	"github.com/janovincze/entrasync/internal/api/models"
	"github.com/janovincze/entrasync/internal/entraid"
)

// OAuthClient talks to Entra ID on behalf of a signing-in user.
type OAuthClient interface {
	AuthorizationURL(state string) string
	LogoutURL(postLogoutRedirect string) string
	Exchange(ctx context.Context, code string) (*entraid.Token, error)
	FetchProfile(ctx context.Context, accessToken string, grantedScopes []string) (*entraid.Identity, error)
	FetchProfilePhoto(ctx context.Context, ifModifiedSince *time.Time, identity *entraid.Identity, accessToken string, grantedScopes []string) *entraid.Photo
}

// LoginStore persists accounts signed in through Entra ID.
type LoginStore interface {
	UpsertOIDCUser(ctx context.Context, identity *entraid.Identity) (*models.User, error)
	UpdateLastLogin(ctx context.Context, id uuid.UUID) error
	SetAvatarKey(ctx context.Context, id uuid.UUID, key string) error
}

// AvatarStore keeps profile photos.
type AvatarStore interface {
	Put(ctx context.Context, userID uuid.UUID, photo *entraid.Photo) (string, error)
}

// LoginService runs the Entra ID authorization code flow.
type LoginService struct {
	client   OAuthClient
	store    LoginStore
	avatars  AvatarStore
	sessions *SessionService
	logger   *slog.Logger
}

// NewLoginService creates a new LoginService. client may be nil when the
// integration is skipped; avatars may be nil when photo storage is off.
func NewLoginService(client OAuthClient, store LoginStore, avatars AvatarStore, sessions *SessionService, logger *slog.Logger) *LoginService {
	if logger == nil {
		logger = slog.Default()
	}
	return &LoginService{
		client:   client,
		store:    store,
		avatars:  avatars,
		sessions: sessions,
		logger:   logger.With("component", "login-service"),
	}
}

// Enabled reports whether Entra ID login is available.
func (s *LoginService) Enabled() bool {
	return s.client != nil
}

// AuthorizeURL returns the consent redirect carrying a signed state.
func (s *LoginService) AuthorizeURL(redirectDocument string) (string, error) {
	if !s.Enabled() {
		return "", ErrEntraIDSkipped
	}
	state, err := s.sessions.IssueState(redirectDocument)
	if err != nil {
		return "", err
	}
	return s.client.AuthorizationURL(state), nil
}

// LogoutURL returns the Entra ID sign-out URL. After signing out the browser
// is sent to postLogoutRedirect when it is set.
func (s *LoginService) LogoutURL(postLogoutRedirect string) (string, error) {
	if !s.Enabled() {
		return "", ErrEntraIDSkipped
	}
	return s.client.LogoutURL(postLogoutRedirect), nil
}

// Callback completes the flow from the provider's callback parameters.
func (s *LoginService) Callback(ctx context.Context, params url.Values) (*models.LoginResponse, error) {
	if !s.Enabled() {
		return nil, ErrEntraIDSkipped
	}

	state, err := s.sessions.ValidateState(params.Get("state"))
	if err != nil {
		return nil, err
	}

	code, err := entraid.ParseCallback(params)
	if err != nil {
		return nil, err
	}
	if code == "" {
		return nil, ErrMissingCode
	}

	token, err := s.client.Exchange(ctx, code)
	if err != nil {
		return nil, err
	}

	identity, err := s.client.FetchProfile(ctx, token.AccessToken, token.Scopes)
	if err != nil {
		return nil, err
	}

	user, err := s.store.UpsertOIDCUser(ctx, identity)
	if err != nil {
		return nil, fmt.Errorf("failed to store user: %w", err)
	}

	if !user.IsActive {
		s.logger.Info("refused login of inactive user", "user_id", user.ID)
		return nil, ErrUserInactive
	}

	s.storePhoto(ctx, user, identity, token)

	if err := s.store.UpdateLastLogin(ctx, user.ID); err != nil {
		s.logger.Warn("failed to update last login", "user_id", user.ID, "error", err)
	}

	sessionToken, expiresAt, err := s.sessions.IssueSession(user)
	if err != nil {
		return nil, fmt.Errorf("failed to generate token: %w", err)
	}

	s.logger.Info("user logged in", "user_id", user.ID)

	return &models.LoginResponse{
		Token:            sessionToken,
		ExpiresAt:        expiresAt,
		User:             user,
		RedirectDocument: state.RedirectDocument,
	}, nil
}

// storePhoto fetches and stores the profile photo. Failures are logged only.
func (s *LoginService) storePhoto(ctx context.Context, user *models.User, identity *entraid.Identity, token *entraid.Token) {
	if s.avatars == nil {
		return
	}

	// The previous login is when the stored photo was last fetched.
	var since *time.Time
	if user.AvatarKey != "" {
		since = user.LastLoginAt
	}

	photo := s.client.FetchProfilePhoto(ctx, since, identity, token.AccessToken, token.Scopes)
	if photo == nil {
		return
	}
	defer photo.Body.Close()

	key, err := s.avatars.Put(ctx, user.ID, photo)
	if err != nil {
		s.logger.Warn("failed to store profile photo", "user_id", user.ID, "error", err)
		return
	}
	if err := s.store.SetAvatarKey(ctx, user.ID, key); err != nil {
		s.logger.Warn("failed to record profile photo", "user_id", user.ID, "error", err)
		return
	}
	user.AvatarKey = key
}
