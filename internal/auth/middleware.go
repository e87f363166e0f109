package auth

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"attendsync/internal/attendance"
)

const identityKey = "identity"

// Authenticate enforces bearer JWT access tokens. Websocket clients that
// cannot set headers may pass the token as ?token=.
func Authenticate(g *Gate) gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenStr := bearer(c.GetHeader("Authorization"))
		if tokenStr == "" {
			tokenStr = c.Query("token")
		}
		if tokenStr == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing bearer token"})
			return
		}
		claims, err := g.signer.Parse(tokenStr)
		if err != nil || claims.Type != tokenAccess {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}
		id, err := g.Authorize(claims)
		if err != nil {
			status := http.StatusForbidden
			msg := "forbidden"
			if errors.Is(err, attendance.ErrAccessDenied) {
				msg = "Access Denied: You are not an authorized faculty member."
			}
			c.AbortWithStatusJSON(status, gin.H{"error": msg})
			return
		}
		c.Set(identityKey, id)
		c.Next()
	}
}

// RequireRole rejects identities without role. It must run after Authenticate.
func RequireRole(role Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := IdentityFrom(c)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "not signed in"})
			return
		}
		if id.Role != role {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "this area is for " + string(role) + " accounts"})
			return
		}
		c.Next()
	}
}

// IdentityFrom returns the identity Authenticate stored on c.
func IdentityFrom(c *gin.Context) (Identity, bool) {
	v, ok := c.Get(identityKey)
	if !ok {
		return Identity{}, false
	}
	id, ok := v.(Identity)
	return id, ok
}

func bearer(authz string) string {
	if authz == "" || !strings.HasPrefix(strings.ToLower(authz), "bearer ") {
		return ""
	}
	return strings.TrimSpace(authz[len("bearer "):])
}
