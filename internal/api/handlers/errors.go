package handlers

import (
	"errors"

	"github.com/gin-gonic/gin"

	"github.com/janovincze/entrasync/internal/api/models"
	"github.com/janovincze/entrasync/internal/api/services"
)

// rootCause returns the message of the innermost wrapped error.
func rootCause(err error) string {
	if err == nil {
		return ""
	}
	for {
		next := errors.Unwrap(err)
		if next == nil {
			return err.Error()
		}
		err = next
	}
}

// respondServiceError maps service errors to problem responses.
func respondServiceError(c *gin.Context, err error) {
	path := c.Request.URL.Path

	var (
		validationErr *services.ValidationError
		notFoundErr   *services.NotFoundError
		conflictErr   *services.ConflictError
	)
	switch {
	case errors.As(err, &validationErr):
		models.RespondWithError(c, models.NewValidationError(path, validationErr.Errors))
	case errors.As(err, &notFoundErr):
		models.RespondWithError(c, models.NewNotFoundError(path, notFoundErr.Error()))
	case errors.As(err, &conflictErr):
		models.RespondWithError(c, models.NewConflictError(path, conflictErr.Message))
	case errors.Is(err, services.ErrEntraIDSkipped):
		models.RespondWithError(c, models.NewServiceUnavailableError(path, "Entra ID integration is disabled"))
	default:
		models.RespondWithError(c, models.NewInternalError(path, "an unexpected error occurred"))
	}
}
