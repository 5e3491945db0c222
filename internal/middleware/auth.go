package middleware

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"opsdesk/internal/security"
)

const claimsKey = "access_claims"

// Auth admits requests carrying a valid access token in the Authorization
// header. The token is self-contained; no store is consulted.
func Auth(secret string, log zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" || !strings.HasPrefix(authHeader, "Bearer ") {
			abortUnauthorized(c)
			return
		}

		tokenStr := strings.TrimSpace(strings.TrimPrefix(authHeader, "Bearer "))
		claims, failure := security.InspectToken(tokenStr, secret, time.Now())
		if failure != security.TokenOK {
			log.Debug().
				Str("reason", failure.String()).
				Str("client_ip", c.ClientIP()).
				Msg("access token rejected")
			abortUnauthorized(c)
			return
		}
		if claims.Type != security.TokenTypeAccess || claims.Subject == "" {
			abortUnauthorized(c)
			return
		}

		c.Set(claimsKey, claims)
		c.Next()
	}
}

// CurrentClaims returns the claims stored by Auth.
func CurrentClaims(c *gin.Context) (*security.Claims, bool) {
	value, exists := c.Get(claimsKey)
	if !exists {
		return nil, false
	}
	claims, ok := value.(*security.Claims)
	return claims, ok && claims != nil
}

func abortUnauthorized(c *gin.Context) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
		"error":   "unauthorized",
		"message": "Authentication required",
	})
}
