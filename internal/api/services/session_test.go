package services

import (
	"errors"
	"testing"
	"time"

	"github.com/coder/quartz"
	"github.com/google/uuid"

	"github.com/janovincze/entrasync/internal/api/models"
	"github.com/janovincze/entrasync/internal/config"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func testAuthConfig() *config.AuthConfig {
	return &config.AuthConfig{
		JWTSecret:       testSecret,
		JWTExpiration:   8 * time.Hour,
		StateExpiration: 10 * time.Minute,
		BCryptCost:      4,
	}
}

func newTestSessions(t *testing.T) (*SessionService, *quartz.Mock) {
	t.Helper()
	mClock := quartz.NewMock(t)
	mClock.Set(time.Date(2026, 1, 15, 10, 0, 0, 0, time.UTC))
	return NewSessionService(testAuthConfig(), mClock, nil), mClock
}

func TestSessionService_IssueAndValidate(t *testing.T) {
	sessions, mClock := newTestSessions(t)
	user := &models.User{ID: uuid.New(), Email: "admin@example.com", Role: models.RoleAdmin}

	token, expiresAt, err := sessions.IssueSession(user)
	if err != nil {
		t.Fatalf("IssueSession() error = %v", err)
	}
	if want := mClock.Now().Add(8 * time.Hour); !expiresAt.Equal(want) {
		t.Errorf("expiresAt = %v, want %v", expiresAt, want)
	}

	claims, err := sessions.ValidateSession(token)
	if err != nil {
		t.Fatalf("ValidateSession() error = %v", err)
	}
	if claims.UserID != user.ID {
		t.Errorf("UserID = %v, want %v", claims.UserID, user.ID)
	}
	if claims.Role != models.RoleAdmin {
		t.Errorf("Role = %v, want %v", claims.Role, models.RoleAdmin)
	}
}

func TestSessionService_Expired(t *testing.T) {
	sessions, mClock := newTestSessions(t)
	token, _, err := sessions.IssueSession(&models.User{ID: uuid.New(), Role: models.RoleUser})
	if err != nil {
		t.Fatalf("IssueSession() error = %v", err)
	}

	mClock.Set(mClock.Now().Add(9 * time.Hour))

	if _, err := sessions.ValidateSession(token); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("ValidateSession() error = %v, want ErrInvalidToken", err)
	}
}

func TestSessionService_WrongSecret(t *testing.T) {
	sessions, mClock := newTestSessions(t)
	token, _, err := sessions.IssueSession(&models.User{ID: uuid.New()})
	if err != nil {
		t.Fatalf("IssueSession() error = %v", err)
	}

	cfg := testAuthConfig()
	cfg.JWTSecret = "another-secret-another-secret-xx"
	other := NewSessionService(cfg, mClock, nil)

	if _, err := other.ValidateSession(token); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("ValidateSession() error = %v, want ErrInvalidToken", err)
	}
}

func TestSessionService_State(t *testing.T) {
	sessions, mClock := newTestSessions(t)

	state, err := sessions.IssueState("Main.WebHome")
	if err != nil {
		t.Fatalf("IssueState() error = %v", err)
	}

	claims, err := sessions.ValidateState(state)
	if err != nil {
		t.Fatalf("ValidateState() error = %v", err)
	}
	if claims.RedirectDocument != "Main.WebHome" {
		t.Errorf("RedirectDocument = %q", claims.RedirectDocument)
	}

	if _, err := sessions.ValidateState(""); !errors.Is(err, ErrInvalidState) {
		t.Errorf("empty state error = %v, want ErrInvalidState", err)
	}

	mClock.Set(mClock.Now().Add(11 * time.Minute))
	if _, err := sessions.ValidateState(state); !errors.Is(err, ErrInvalidState) {
		t.Errorf("expired state error = %v, want ErrInvalidState", err)
	}
}

func TestSessionService_TokensAreNotInterchangeable(t *testing.T) {
	sessions, _ := newTestSessions(t)

	state, err := sessions.IssueState("")
	if err != nil {
		t.Fatalf("IssueState() error = %v", err)
	}
	if _, err := sessions.ValidateSession(state); err == nil {
		t.Error("state token accepted as session")
	}

	session, _, err := sessions.IssueSession(&models.User{ID: uuid.New()})
	if err != nil {
		t.Fatalf("IssueSession() error = %v", err)
	}
	if _, err := sessions.ValidateState(session); err == nil {
		t.Error("session token accepted as state")
	}
}
