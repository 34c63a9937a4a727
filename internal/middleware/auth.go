package middleware

import (
	"net/http"
	"strings"

	"github.com/chachabrian/poolit-backend/pkg/utils"
	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

const (
	UserIDKey   = "userId"
	UserTypeKey = "userType"
)

// AuthMiddleware accepts a bearer token, or a token query parameter for
// websocket clients that cannot set headers.
func AuthMiddleware(secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		var tokenString string

		authHeader := c.GetHeader("Authorization")
		if authHeader != "" {
			parts := strings.SplitN(authHeader, " ", 2)
			if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
				tokenString = strings.TrimSpace(parts[1])
			}
		}
		if tokenString == "" {
			tokenString = c.Query("token")
		}

		if tokenString == "" {
			abort(c, "Authorization header or token query parameter required")
			return
		}

		token, err := utils.ValidateToken(tokenString, secret)
		if err != nil || !token.Valid {
			abort(c, "Invalid token")
			return
		}

		claims, ok := token.Claims.(jwt.MapClaims)
		if !ok {
			abort(c, "Invalid token claims")
			return
		}
		id, ok := claims["id"].(float64)
		if !ok || id <= 0 {
			abort(c, "Invalid token claims")
			return
		}
		userType, _ := claims["userType"].(string)

		c.Set(UserIDKey, uint(id))
		c.Set(UserTypeKey, userType)
		c.Next()
	}
}

func abort(c *gin.Context, msg string) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": msg, "code": "Unauthorized"})
}

// UserID returns the authenticated user id. Zero when the route is public.
func UserID(c *gin.Context) uint {
	return c.GetUint(UserIDKey)
}

func UserType(c *gin.Context) string {
	return c.GetString(UserTypeKey)
}
