package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"fish-tracker/internal/auth"
)

const adminContextKey = "admin"

// Admin is the authenticated caller of an admin route.
type Admin struct {
	Username string
	Role     string
}

func AdminFromContext(c *gin.Context) (Admin, bool) {
	v, ok := c.Get(adminContextKey)
	if !ok {
		return Admin{}, false
	}
	a, ok := v.(Admin)
	return a, ok && a.Username != ""
}

// BearerToken returns the token of an "Authorization: Bearer" header.
func BearerToken(c *gin.Context) (string, bool) {
	parts := strings.SplitN(c.GetHeader("Authorization"), " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || parts[1] == "" {
		return "", false
	}
	return parts[1], true
}

func RequireAdmin(cfg auth.TokenConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, ok := BearerToken(c)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Access token required"})
			return
		}

		claims, err := auth.VerifyToken(token, cfg)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "Invalid or expired token"})
			return
		}

		c.Set(adminContextKey, Admin{Username: claims.Username, Role: claims.Role})
		c.Next()
	}
}

// RequireRole must run after RequireAdmin.
func RequireRole(role string) gin.HandlerFunc {
	return func(c *gin.Context) {
		a, ok := AdminFromContext(c)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Access token required"})
			return
		}
		if a.Role != role {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "Insufficient permissions"})
			return
		}
		c.Next()
	}
}
