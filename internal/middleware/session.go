package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/lgu-eportal/rptpay/internal/config"
)

// SessionIDKey is the context key for the portal session ID.
const SessionIDKey = "session_id"

// Session reads the portal session cookie, issuing a new random session ID
// when the cookie is missing or malformed. The cookie is refreshed on every
// request so an active payer keeps the session alive.
func Session(cfg config.SessionConfig) gin.HandlerFunc {
	maxAge := int(cfg.TTL.Seconds())

	return func(c *gin.Context) {
		sessionID, err := c.Cookie(cfg.CookieName)
		if err != nil {
			sessionID = ""
		}
		if _, err := uuid.Parse(sessionID); err != nil {
			sessionID = uuid.NewString()
		}

		c.SetSameSite(http.SameSiteLaxMode)
		c.SetCookie(cfg.CookieName, sessionID, maxAge, "/", "", cfg.Secure, true)
		c.Set(SessionIDKey, sessionID)

		c.Next()
	}
}

// GetSessionID retrieves the session ID from the Gin context.
// Returns an empty string if not found.
func GetSessionID(c *gin.Context) string {
	if sessionID, exists := c.Get(SessionIDKey); exists {
		if id, ok := sessionID.(string); ok {
			return id
		}
	}
	return ""
}
