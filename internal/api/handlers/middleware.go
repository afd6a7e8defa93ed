package routes

import (
	"net/http"

	"parkclash/internal/realtime"

	"github.com/gin-gonic/gin"
)

const identityKey = "identity"

// RequireAuth rejects requests without a valid bearer token and stores the
// caller's identity on the context
func RequireAuth(tokens *realtime.TokenValidator) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := tokens.Validate(realtime.TokenFromRequest(c.Request))
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}
		c.Set(identityKey, id)
		c.Next()
	}
}

// CurrentUser returns the identity set by RequireAuth
func CurrentUser(c *gin.Context) realtime.Identity {
	if v, ok := c.Get(identityKey); ok {
		if id, ok := v.(realtime.Identity); ok {
			return id
		}
	}
	return realtime.Identity{}
}
