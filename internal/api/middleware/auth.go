package middleware

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/adamwilson22/Velaa-Backend/internal/auth"
)

const (
	// ContextKeyUserID holds the key for user ID in Gin context.
	ContextKeyUserID = "userID"
	// ContextKeyIsManager holds the key for manager status in Gin context.
	ContextKeyIsManager = "isManager"
)

func abort(c *gin.Context, status int, message string) {
	c.AbortWithStatusJSON(status, gin.H{
		"success":   false,
		"message":   message,
		"timestamp": time.Now().UTC(),
	})
}

// AuthMiddleware creates a Gin middleware for JWT authentication.
func AuthMiddleware(jwtSecret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			abort(c, http.StatusUnauthorized, "Authorization header required")
			return
		}

		parts := strings.Fields(authHeader)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
			abort(c, http.StatusUnauthorized, "Authorization header format must be Bearer {token}")
			return
		}

		claims, err := auth.ValidateJWT(parts[1], jwtSecret)
		if err != nil {
			abort(c, http.StatusUnauthorized, "Invalid or expired token")
			return
		}

		c.Set(ContextKeyUserID, claims.UserID)
		c.Set(ContextKeyIsManager, claims.IsManager())
		c.Next()
	}
}

// ManagerMiddleware rejects callers without the manager role.
// Assumes AuthMiddleware runs first.
func ManagerMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !c.GetBool(ContextKeyIsManager) {
			abort(c, http.StatusForbidden, "Manager privileges required")
			return
		}
		c.Next()
	}
}

// ActingUser returns the authenticated user id, or "" on public routes.
func ActingUser(c *gin.Context) string {
	return c.GetString(ContextKeyUserID)
}
