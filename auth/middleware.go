package auth

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

func bearerToken(c *gin.Context) (string, bool) {
	h := c.GetHeader("Authorization")
	if h == "" {
		return "", false
	}
	parts := strings.SplitN(h, " ", 2)
	if len(parts) != 2 || parts[0] != "Bearer" {
		return "", true
	}
	return strings.TrimSpace(parts[1]), true
}

func secretMatches(got, want string) bool {
	return want != "" && subtle.ConstantTimeCompare([]byte(got), []byte(want)) == 1
}

// RequireCronSecret guards batch endpoints triggered by the scheduler. The
// secret may arrive as a bearer token or in x-cron-secret / cron-secret.
func RequireCronSecret(secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if secret == "" {
			logrus.Error("[AUTH] CRON_SECRET not configured")
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "Cron secret not configured"})
			return
		}

		token, _ := bearerToken(c)
		if token == "" {
			token = c.GetHeader("x-cron-secret")
		}
		if token == "" {
			token = c.GetHeader("cron-secret")
		}

		if !secretMatches(token, secret) {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
			return
		}
		c.Next()
	}
}

// OptionalCronSecret lets requests without an Authorization header through
// for manual triggers. A header that is present must carry the secret.
func OptionalCronSecret(secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, present := bearerToken(c)
		if present && !secretMatches(token, secret) {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
			return
		}
		c.Next()
	}
}

// RequireAdminKey protects the occurrence and task endpoints.
func RequireAdminKey(key string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if key == "" {
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "Admin API key not configured"})
			return
		}
		token, present := bearerToken(c)
		if !present {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "No authentication token provided"})
			return
		}
		if !secretMatches(token, key) {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid authentication token"})
			return
		}
		c.Next()
	}
}
