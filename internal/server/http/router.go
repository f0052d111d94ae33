package http

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/avdeyev/authcore/internal/logging"
)

// NewRouter wires the gin routes and middleware. accessCodec guards the
// authenticated routes.
func NewRouter(h *AuthHandler, accessCodec TokenVerifier, log logging.Logger) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(RequestLogger(log))

	auth := r.Group("/auth")
	{
		auth.POST("/login", h.Login)
		auth.POST("/apple", h.AppleSignIn)
		auth.POST("/refresh", h.Refresh)
		auth.POST("/logout", h.Logout)
		auth.POST("/verify-otp", h.VerifyOTP)
		auth.POST("/resend-otp", h.ResendOTP)
		auth.GET("/me", RequireAuth(accessCodec), h.Me)
	}

	r.GET("/healthz", h.Health)

	return r
}

// RequestLogger emits one structured log line per request.
func RequestLogger(log logging.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		log.Info(c.Request.Context(), "http request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"duration_ms", time.Since(start).Milliseconds(),
		)
	}
}
