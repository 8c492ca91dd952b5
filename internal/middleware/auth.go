package middleware

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"storefront/internal/identity"
	"storefront/internal/models"
)

const sessionKey = "session"

// AuthGuard verifies the bearer token and stores the caller's session on the
// gin context and on the request context. With roles given, the session's
// role must be one of them.
func AuthGuard(log *slog.Logger, issuer *identity.Issuer, allowedRoles ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		session, err := issuer.FromAuthorizationHeader(c.GetHeader("Authorization"))
		if err != nil {
			log.DebugContext(c.Request.Context(), "token rejected", slog.String("path", c.FullPath()), slog.String("error", err.Error()))
			if errors.Is(err, identity.ErrMissingToken) {
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing token"})
				return
			}
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}

		if len(allowedRoles) > 0 {
			match := false
			for _, r := range allowedRoles {
				if session.Role == r {
					match = true
					break
				}
			}
			if !match {
				c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "forbidden"})
				return
			}
		}

		c.Set(sessionKey, session)
		c.Request = c.Request.WithContext(identity.WithSession(c.Request.Context(), session))
		c.Next()
	}
}

func UserAuth(log *slog.Logger, issuer *identity.Issuer) gin.HandlerFunc {
	return AuthGuard(log, issuer)
}

func AdminAuth(log *slog.Logger, issuer *identity.Issuer) gin.HandlerFunc {
	return AuthGuard(log, issuer, models.RoleAdmin)
}

// Session returns the session AuthGuard stored, or the zero Session.
func Session(c *gin.Context) identity.Session {
	if v, ok := c.Get(sessionKey); ok {
		if s, ok := v.(identity.Session); ok {
			return s
		}
	}
	s, _ := identity.FromContext(c.Request.Context())
	return s
}
