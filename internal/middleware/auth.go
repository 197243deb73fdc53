package middleware

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/patali/yantra/internal/services"
)

// AuthMiddleware validates JWT tokens and sets user/account context.
// Supports both the Authorization header and a token query parameter (for
// SSE/EventSource endpoints that can't set custom headers).
func AuthMiddleware(authService *services.AuthService) gin.HandlerFunc {
	return func(c *gin.Context) {
		var token string

		authHeader := c.GetHeader("Authorization")
		if authHeader != "" {
			parts := strings.SplitN(authHeader, " ", 2)
			if len(parts) == 2 && parts[0] == "Bearer" {
				token = parts[1]
			}
		}

		if token == "" {
			token = c.Query("token")
		}

		if token == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Authorization header or token query parameter required"})
			c.Abort()
			return
		}

		userID, accountID, err := authService.ValidateToken(token)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid or expired token"})
			c.Abort()
			return
		}

		c.Set("userId", userID)
		c.Set("accountId", accountID)
		c.Next()
	}
}

// GetUserID extracts the authenticated user ID from context.
func GetUserID(c *gin.Context) (string, bool) {
	userID, exists := c.Get("userId")
	if !exists {
		return "", false
	}
	return userID.(string), true
}

// GetAccountID extracts the authenticated account ID from context.
func GetAccountID(c *gin.Context) (string, bool) {
	accountID, exists := c.Get("accountId")
	if !exists {
		return "", false
	}
	return accountID.(string), true
}

// RequireAccountID extracts the account ID or sends 401 and aborts.
func RequireAccountID(c *gin.Context) (string, error) {
	accountID, exists := GetAccountID(c)
	if !exists {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		c.Abort()
		return "", errors.New("unauthorized")
	}
	return accountID, nil
}

// RequireUserID extracts the user ID or sends 401 and aborts.
func RequireUserID(c *gin.Context) (string, error) {
	userID, exists := GetUserID(c)
	if !exists {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		c.Abort()
		return "", errors.New("unauthorized")
	}
	return userID, nil
}
