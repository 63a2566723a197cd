package api

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/xaenox/rag-backend/internal/auth"
	"go.uber.org/zap"
)

const userContextKey = "current_user"

// RequestLogger logs one structured line per request with latency and
// status, replacing the decorator-style logging of earlier designs
// with an explicit middleware stage.
func RequestLogger(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		logger.Info("Handled request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
			zap.String("client_ip", c.ClientIP()))
	}
}

// CORS mirrors the permissive policy of the original deployment.
func CORS() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Authorization, Content-Type")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

// RequireAuth verifies the Bearer token and stores the resolved user
// in the request context.
func RequireAuth(verifier auth.Verifier, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"detail": "missing Authorization header"})
			return
		}

		parts := strings.SplitN(header, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || parts[1] == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"detail": "Authorization header must be 'Bearer <token>'"})
			return
		}

		user, err := verifier.Authenticate(c.Request.Context(), parts[1])
		if err != nil {
			logger.Warn("Authentication failed", zap.Error(err))
			c.Header("WWW-Authenticate", "Bearer")
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"detail": "Invalid or expired token"})
			return
		}

		c.Set(userContextKey, user)
		c.Next()
	}
}

// currentUserID returns the store key for the authenticated user: the
// verified email when present, otherwise the subject id.
func currentUserID(c *gin.Context) string {
	value, exists := c.Get(userContextKey)
	if !exists {
		return ""
	}
	user, ok := value.(*auth.UserInfo)
	if !ok {
		return ""
	}
	if user.Email != "" {
		return user.Email
	}
	return user.UserID
}
