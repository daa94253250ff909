package middlewares

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/Lejs5034/LegionOfBrothers-sub000/internal/session"
)

// Context keys set by AuthMiddleware.
const (
	ContextUserID   = "user_id"
	ContextUserName = "username"
	ContextRank     = "rank"
)

// BearerToken reads the token from the Authorization header, falling back to
// the token query parameter that websocket clients use.
func BearerToken(c *gin.Context) string {
	authHeader := c.GetHeader("Authorization")
	if authHeader != "" {
		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
			return strings.TrimSpace(parts[1])
		}
	}
	return c.Query("token")
}

// AuthMiddleware 认证中间件: the session check is bounded by the checker's
// timeout, and an unauthenticated request gets 401 with the sign-in redirect.
func AuthMiddleware(checker *session.Checker) gin.HandlerFunc {
	return func(c *gin.Context) {
		result := checker.Check(c.Request.Context(), BearerToken(c))
		if !result.Authenticated {
			body := gin.H{"error": "authentication required", "redirect": result.Redirect}
			if result.Err != nil {
				body["error"] = result.Err.Error()
			}
			c.AbortWithStatusJSON(http.StatusUnauthorized, body)
			return
		}

		c.Set(ContextUserID, result.Claims.UserID)
		c.Set(ContextUserName, result.Claims.UserName)
		c.Set(ContextRank, result.Claims.Rank)
		c.Next()
	}
}
