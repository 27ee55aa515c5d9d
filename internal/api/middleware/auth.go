package middleware

import (
	"context"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/janovincze/entrasync/internal/api/models"
)

// AuthContextKey is the gin context key holding *models.AuthContext.
const AuthContextKey = "auth_context"

// SessionValidator validates session tokens.
type SessionValidator interface {
	ValidateSession(token string) (*models.SessionClaims, error)
}

// UserLookup loads the user a session belongs to.
type UserLookup interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.User, error)
}

// Authenticate attaches the caller's AuthContext when the request carries a
// valid bearer session of an active user. It never rejects a request.
func Authenticate(sessions SessionValidator, users UserLookup) gin.HandlerFunc {
	return func(c *gin.Context) {
		if auth := extractAuthContext(c, sessions, users); auth != nil {
			c.Set(AuthContextKey, auth)
		}
		c.Next()
	}
}

// RequireAdmin rejects callers that are not active administrators with 401.
func RequireAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !GetAuthContext(c).IsAdmin() {
			models.RespondWithError(c, models.NewUnauthorizedError(
				c.Request.URL.Path,
				"Administrator rights are required",
			))
			c.Abort()
			return
		}
		c.Next()
	}
}

// GetAuthContext returns the caller's AuthContext, or nil.
func GetAuthContext(c *gin.Context) *models.AuthContext {
	value, exists := c.Get(AuthContextKey)
	if !exists {
		return nil
	}
	auth, _ := value.(*models.AuthContext)
	return auth
}

func bearerToken(header string) string {
	scheme, credential, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "bearer") {
		return ""
	}
	return strings.TrimSpace(credential)
}

func extractAuthContext(c *gin.Context, sessions SessionValidator, users UserLookup) *models.AuthContext {
	token := bearerToken(c.GetHeader("Authorization"))
	if token == "" || sessions == nil || users == nil {
		return nil
	}

	claims, err := sessions.ValidateSession(token)
	if err != nil {
		return nil
	}

	user, err := users.GetByID(c.Request.Context(), claims.UserID)
	if err != nil || !user.IsActive {
		return nil
	}

	return &models.AuthContext{User: user, Claims: claims}
}
