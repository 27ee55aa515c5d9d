// Package models provides API request and response types.
package models

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// UserRole represents the role of a user.
type UserRole string

const (
	// RoleAdmin may trigger and inspect user synchronization.
	RoleAdmin UserRole = "admin"
	// RoleUser is a regular account signed in through Entra ID.
	RoleUser UserRole = "user"
)

// User represents a local account.
type User struct {
	ID          uuid.UUID  `json:"id"`
	Email       string     `json:"email"`
	FirstName   string     `json:"first_name,omitempty"`
	LastName    string     `json:"last_name,omitempty"`
	Role        UserRole   `json:"role"`
	IsActive    bool       `json:"is_active"`
	OIDCSubject string     `json:"oidc_subject,omitempty"`
	OIDCIssuer  string     `json:"oidc_issuer,omitempty"`
	AvatarKey   string     `json:"avatar_key,omitempty"`
	LastLoginAt *time.Time `json:"last_login_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// SessionClaims are the claims of a session token.
type SessionClaims struct {
	jwt.RegisteredClaims
	UserID uuid.UUID `json:"user_id"`
	Email  string    `json:"email"`
	Role   UserRole  `json:"role"`
}

// StateClaims are the claims of a signed OAuth state value.
type StateClaims struct {
	jwt.RegisteredClaims
	// RedirectDocument is where the user returns after login.
	RedirectDocument string `json:"xredirect,omitempty"`
}

// LoginRequest represents a local password login.
type LoginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

// Validate validates the login request.
func (r *LoginRequest) Validate() []FieldError {
	var errors []FieldError
	if r.Email == "" {
		errors = append(errors, FieldError{Field: "email", Message: "email is required"})
	}
	if r.Password == "" {
		errors = append(errors, FieldError{Field: "password", Message: "password is required"})
	}
	return errors
}

// LoginResponse represents a login response.
type LoginResponse struct {
	Token            string    `json:"token"`
	ExpiresAt        time.Time `json:"expires_at"`
	User             *User     `json:"user"`
	RedirectDocument string    `json:"xredirect,omitempty"`
}

// AuthContext holds authentication context for a request.
type AuthContext struct {
	User   *User
	Claims *SessionClaims
}

// IsAdmin reports whether the caller holds an active admin account.
func (a *AuthContext) IsAdmin() bool {
	if a == nil || a.User == nil {
		return false
	}
	return a.User.IsActive && a.User.Role == RoleAdmin
}
