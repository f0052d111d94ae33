package http

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/avdeyev/authcore/internal/server/auth"
)

// userIDKey is the gin context key set by RequireAuth.
const userIDKey = "userID"

// TokenVerifier validates an access token and returns its claims.
type TokenVerifier interface {
	Verify(tokenString string) (*auth.Claims, error)
}

// RequireAuth rejects requests without a valid Bearer access token and
// stores the authenticated user id on the context.
func RequireAuth(codec TokenVerifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing bearer token"})
			return
		}

		claims, err := codec.Verify(token)
		if err != nil {
			writeError(c, err)
			c.Abort()
			return
		}

		c.Set(userIDKey, claims.UserID)
		c.Next()
	}
}
