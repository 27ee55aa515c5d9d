// Package handlers provides HTTP handlers for API endpoints.
package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/janovincze/entrasync/internal/api/middleware"
	"github.com/janovincze/entrasync/internal/api/models"
	"github.com/janovincze/entrasync/internal/api/services"
)

// AuthHandler handles local authentication requests.
type AuthHandler struct {
	adminService *services.AdminService
}

// NewAuthHandler creates a new AuthHandler.
func NewAuthHandler(adminService *services.AdminService) *AuthHandler {
	return &AuthHandler{adminService: adminService}
}

// Login authenticates a local account and returns a session token.
// POST /api/v1/auth/login
func (h *AuthHandler) Login(c *gin.Context) {
	var req models.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		models.RespondWithError(c, models.NewBadRequestError(
			c.Request.URL.Path,
			"invalid request body: "+err.Error(),
		))
		return
	}

	response, err := h.adminService.Login(c.Request.Context(), &req)
	if err != nil {
		switch {
		case errors.Is(err, services.ErrInvalidCredentials):
			models.RespondWithError(c, models.NewUnauthorizedError(
				c.Request.URL.Path,
				"Invalid email or password",
			))
		case errors.Is(err, services.ErrUserInactive):
			models.RespondWithError(c, models.NewForbiddenError(
				c.Request.URL.Path,
				"User account is inactive",
			))
		default:
			respondServiceError(c, err)
		}
		return
	}

	c.JSON(http.StatusOK, response)
}

// GetMe returns the authenticated user.
// GET /api/v1/auth/me
func (h *AuthHandler) GetMe(c *gin.Context) {
	auth := middleware.GetAuthContext(c)
	if auth == nil {
		models.RespondWithError(c, models.NewUnauthorizedError(
			c.Request.URL.Path,
			"Authentication required",
		))
		return
	}
	c.JSON(http.StatusOK, auth.User)
}
