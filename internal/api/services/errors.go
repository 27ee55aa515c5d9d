// Package services provides business logic for API resources.
package services

import (
	"errors"
	"fmt"

	"github.com/janovincze/entrasync/internal/api/models"
)

// Service errors.
var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrUserInactive       = errors.New("user account is inactive")
	ErrInvalidToken       = errors.New("invalid or expired token")
	ErrInvalidState       = errors.New("invalid or expired oauth state")
	ErrEntraIDSkipped     = errors.New("entra id login is disabled")
	ErrMissingCode        = errors.New("callback carries no authorization code")
)

// ValidationError represents a validation error.
type ValidationError struct {
	Errors []models.FieldError
}

func (e *ValidationError) Error() string {
	return "validation error"
}

// NotFoundError represents a not found error.
type NotFoundError struct {
	Resource string
	ID       string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Resource, e.ID)
}

// ConflictError represents a conflict error.
type ConflictError struct {
	Message string
}

func (e *ConflictError) Error() string {
	return e.Message
}
