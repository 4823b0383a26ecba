package mw

import (
	"context"
	"net/http"
	"slices"

	"github.com/gin-gonic/gin"

	"dilution-ops-backend/internal/pharmacy"
	"dilution-ops-backend/internal/session"
)

const (
	// SessionHeader carries the session id on API calls.
	SessionHeader = "X-Session-ID"
	// SessionCookie is the cookie alternative to SessionHeader.
	SessionCookie = "session"

	sessionKey = "dilution.session"
)

// SessionResolver looks a session up by id.
type SessionResolver interface {
	Get(ctx context.Context, id string) (*session.Session, error)
}

// SessionID extracts the session id from the request, header first.
func SessionID(c *gin.Context) string {
	if id := c.GetHeader(SessionHeader); id != "" {
		return id
	}
	if id, err := c.Cookie(SessionCookie); err == nil {
		return id
	}
	return ""
}

// RequireSession rejects requests without a live session and stores the
// session on the context.
func RequireSession(resolver SessionResolver) gin.HandlerFunc {
	return func(c *gin.Context) {
		id := SessionID(c)
		if id == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "not authenticated"})
			return
		}
		sess, err := resolver.Get(c.Request.Context(), id)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
			return
		}
		c.Set(sessionKey, sess)
		c.Next()
	}
}

// CurrentSession returns the session stored by RequireSession.
func CurrentSession(c *gin.Context) *session.Session {
	v, ok := c.Get(sessionKey)
	if !ok {
		return nil
	}
	return v.(*session.Session)
}

// RequireRole rejects sessions whose role is not one of roles. It must run
// after RequireSession.
func RequireRole(roles ...pharmacy.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		sess := CurrentSession(c)
		if sess == nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "not authenticated"})
			return
		}
		if !slices.Contains(roles, sess.Role) {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "forbidden"})
			return
		}
		c.Next()
	}
}
