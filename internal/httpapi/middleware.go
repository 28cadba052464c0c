package httpapi

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"ratewatcher/internal/market"
)

const userIDKey = "userID"

// requireUser rejects requests without a valid bearer token.
func (s *Server) requireUser() gin.HandlerFunc {
	return func(c *gin.Context) {
		token := bearerToken(c.GetHeader("Authorization"))
		if token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, market.Fault{
				Name:    "Unauthorized",
				Message: "missing bearer token",
			})
			return
		}
		userID, err := s.verifier.Verify(token)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, market.Fault{
				Name:    "Unauthorized",
				Message: "invalid token",
			})
			return
		}
		c.Set(userIDKey, userID)
		c.Next()
	}
}

// optionalUser resolves the caller when a valid token is present and treats
// everything else as anonymous.
func (s *Server) optionalUser() gin.HandlerFunc {
	return func(c *gin.Context) {
		if token := bearerToken(c.GetHeader("Authorization")); token != "" {
			if userID, err := s.verifier.Verify(token); err == nil {
				c.Set(userIDKey, userID)
			}
		}
		c.Next()
	}
}

func callerID(c *gin.Context) string {
	return c.GetString(userIDKey)
}

func bearerToken(v string) string {
	v = strings.TrimSpace(v)
	if v == "" {
		return ""
	}
	parts := strings.SplitN(v, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}
