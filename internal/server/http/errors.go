package http

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/avdeyev/authcore/internal/apperr"
)

// writeError translates a service error into an HTTP response. Internal
// and configuration failures are reported with a generic message so no
// diagnostics leak to the client.
func writeError(c *gin.Context, err error) {
	var e *apperr.Error
	if !errors.As(err, &e) {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
		return
	}

	switch e.Kind {
	case apperr.KindNotFound:
		c.JSON(http.StatusNotFound, gin.H{"error": e.Message})
	case apperr.KindBadRequest:
		c.JSON(http.StatusBadRequest, gin.H{"error": e.Message})
	case apperr.KindTooManyRequests:
		c.Header("Retry-After", strconv.Itoa(e.RetryAfter))
		c.JSON(http.StatusTooManyRequests, gin.H{
			"error":      e.Message,
			"retryAfter": e.RetryAfter,
		})
	case apperr.KindInvalidToken, apperr.KindTokenExpired,
		apperr.KindAudienceMismatch, apperr.KindIssuerMismatch:
		c.JSON(http.StatusUnauthorized, gin.H{"error": e.Message})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
	}
}
