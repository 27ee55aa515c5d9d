package handlers

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/janovincze/entrasync/internal/api/models"
	"github.com/janovincze/entrasync/internal/api/services"
	"github.com/janovincze/entrasync/internal/entraid"
)

// LoginHandler handles the Entra ID login endpoints.
type LoginHandler struct {
	loginService *services.LoginService
	links        *services.WikiLinks
	logger       *slog.Logger
}

// NewLoginHandler creates a new LoginHandler.
func NewLoginHandler(loginService *services.LoginService, links *services.WikiLinks, logger *slog.Logger) *LoginHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &LoginHandler{
		loginService: loginService,
		links:        links,
		logger:       logger.With("component", "login-handler"),
	}
}

// XWikiLogin redirects to the wiki's native login page, bypassing Entra ID.
// GET /entraid/login/xwiki/*redirectDocument
func (h *LoginHandler) XWikiLogin(c *gin.Context) {
	document := strings.TrimPrefix(c.Param("redirectDocument"), "/")

	var (
		loginURL string
		err      error
	)
	if h.links == nil {
		err = errors.New("wiki base URL is not configured")
	} else {
		loginURL, err = h.links.NativeLoginURL(document)
	}
	if err != nil {
		h.logger.Error(fmt.Sprintf("Failed to generate the log in redirect URL. Root cause: [%s]", rootCause(err)))
		models.RespondWithError(c, models.NewInternalError(
			c.Request.URL.Path,
			"failed to generate the log in redirect URL",
		))
		return
	}

	c.Redirect(http.StatusSeeOther, loginURL)
}

// Authorize redirects to the Entra ID authorization endpoint.
// GET /entraid/oauth/authorize
func (h *LoginHandler) Authorize(c *gin.Context) {
	authURL, err := h.loginService.AuthorizeURL(c.Query("xredirect"))
	if err != nil {
		if !errors.Is(err, services.ErrEntraIDSkipped) {
			h.logger.Error("failed to build authorization URL", "error", err)
		}
		respondServiceError(c, err)
		return
	}
	c.Redirect(http.StatusFound, authURL)
}

// Logout redirects to the Entra ID sign-out page. With xredirect set the
// browser returns to that wiki document afterwards.
// GET /entraid/logout
func (h *LoginHandler) Logout(c *gin.Context) {
	var back string
	if document := c.Query("xredirect"); document != "" && h.links != nil {
		view, err := h.links.ViewURL(document)
		if err != nil {
			models.RespondWithError(c, models.NewBadRequestError(c.Request.URL.Path, err.Error()))
			return
		}
		back = view
	}

	logoutURL, err := h.loginService.LogoutURL(back)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	c.Redirect(http.StatusFound, logoutURL)
}

// Callback completes the authorization code flow and returns a session.
// GET /entraid/oauth/callback
func (h *LoginHandler) Callback(c *gin.Context) {
	resp, err := h.loginService.Callback(c.Request.Context(), c.Request.URL.Query())
	if err != nil {
		h.respondCallbackError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (h *LoginHandler) respondCallbackError(c *gin.Context, err error) {
	path := c.Request.URL.Path

	var (
		callbackErr *entraid.CallbackError
		exchangeErr *entraid.TokenExchangeError
		profileErr  *entraid.ProfileFetchError
	)
	switch {
	case errors.Is(err, services.ErrInvalidState), errors.Is(err, services.ErrMissingCode):
		models.RespondWithError(c, models.NewBadRequestError(path, err.Error()))
	case errors.As(err, &callbackErr):
		h.logger.Warn("identity provider rejected the login", "code", callbackErr.Code)
		models.RespondWithError(c, models.NewUnauthorizedError(path, callbackErr.Error()))
	case errors.Is(err, services.ErrUserInactive):
		models.RespondWithError(c, models.NewForbiddenError(path, "User account is inactive"))
	case errors.As(err, &exchangeErr):
		h.logger.Error("failed to exchange authorization code", "error", rootCause(err))
		if exchangeErr.IsOAuthError() {
			models.RespondWithError(c, models.NewUnauthorizedError(path, "the authorization code was rejected"))
			return
		}
		models.RespondWithError(c, models.NewUpstreamError(path, "token endpoint unavailable"))
	case errors.As(err, &profileErr):
		h.logger.Error("failed to fetch user profile", "error", rootCause(err))
		models.RespondWithError(c, models.NewUpstreamError(path, "profile endpoint unavailable"))
	case errors.Is(err, services.ErrEntraIDSkipped):
		respondServiceError(c, err)
	default:
		h.logger.Error("login callback failed", "error", rootCause(err))
		respondServiceError(c, err)
	}
}
