package services

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/coder/quartz"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/janovincze/entrasync/internal/api/models"
	"github.com/janovincze/entrasync/internal/config"
)

const (
	tokenIssuer     = "entrasync"
	sessionAudience = "entrasync-session"
	stateAudience   = "entrasync-oauth-state"
)

// SessionService issues and validates session tokens and OAuth state values.
type SessionService struct {
	secret     []byte
	sessionTTL time.Duration
	stateTTL   time.Duration
	clock      quartz.Clock
	logger     *slog.Logger
}

// NewSessionService creates a new SessionService.
func NewSessionService(cfg *config.AuthConfig, clock quartz.Clock, logger *slog.Logger) *SessionService {
	if logger == nil {
		logger = slog.Default()
	}
	if clock == nil {
		clock = quartz.NewReal()
	}
	return &SessionService{
		secret:     []byte(cfg.JWTSecret),
		sessionTTL: cfg.JWTExpiration,
		stateTTL:   cfg.StateExpiration,
		clock:      clock,
		logger:     logger.With("component", "session-service"),
	}
}

// IssueSession signs a session token for user.
func (s *SessionService) IssueSession(user *models.User) (string, time.Time, error) {
	now := s.clock.Now()
	expiresAt := now.Add(s.sessionTTL)

	claims := &models.SessionClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.ID.String(),
			Audience:  jwt.ClaimStrings{sessionAudience},
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			Issuer:    tokenIssuer,
		},
		UserID: user.ID,
		Email:  user.Email,
		Role:   user.Role,
	}

	signed, err := s.sign(claims)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, expiresAt, nil
}

// ValidateSession validates a session token and returns its claims.
func (s *SessionService) ValidateSession(tokenString string) (*models.SessionClaims, error) {
	claims := &models.SessionClaims{}
	if err := s.parse(tokenString, claims, sessionAudience); err != nil {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// IssueState signs a short-lived OAuth state carrying the return document.
func (s *SessionService) IssueState(redirectDocument string) (string, error) {
	now := s.clock.Now()
	claims := &models.StateClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Audience:  jwt.ClaimStrings{stateAudience},
			ExpiresAt: jwt.NewNumericDate(now.Add(s.stateTTL)),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    tokenIssuer,
		},
		RedirectDocument: redirectDocument,
	}
	return s.sign(claims)
}

// ValidateState validates an OAuth state value.
func (s *SessionService) ValidateState(state string) (*models.StateClaims, error) {
	if state == "" {
		return nil, ErrInvalidState
	}
	claims := &models.StateClaims{}
	if err := s.parse(state, claims, stateAudience); err != nil {
		s.logger.Debug("rejected oauth state", "error", err)
		return nil, ErrInvalidState
	}
	return claims, nil
}

func (s *SessionService) sign(claims jwt.Claims) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}

func (s *SessionService) parse(tokenString string, claims jwt.Claims, audience string) error {
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.secret, nil
	},
		jwt.WithAudience(audience),
		jwt.WithIssuer(tokenIssuer),
		jwt.WithTimeFunc(func() time.Time { return s.clock.Now() }),
	)
	if err != nil {
		return err
	}
	if !token.Valid {
		return ErrInvalidToken
	}
	return nil
}
