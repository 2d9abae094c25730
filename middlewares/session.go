package middlewares

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/yeremiapane/pix-checkout/utils"
)

// SessionKey is the gin context key holding the session id.
const SessionKey = "session_id"

// SessionCookie is the cookie carrying the signed session token.
const SessionCookie = "checkout_session"

const sessionMaxAge = 24 * 60 * 60

// Session ensures every request carries a valid session id, issuing a fresh
// signed cookie when the current one is missing or invalid. The id keys the
// session's current charge.
func Session() gin.HandlerFunc {
	return func(c *gin.Context) {
		if token, err := c.Cookie(SessionCookie); err == nil {
			if claims, err := utils.ParseSessionToken(token); err == nil {
				c.Set(SessionKey, claims.SessionID)
				c.Next()
				return
			}
		}

		sessionID := uuid.NewString()
		token, err := utils.GenerateSessionToken(sessionID)
		if err != nil {
			utils.ErrorLogger.Printf("Error generating session token: %v", err)
			c.AbortWithStatus(500)
			return
		}

		c.SetCookie(SessionCookie, token, sessionMaxAge, "/", "", false, true)
		c.Set(SessionKey, sessionID)
		c.Next()
	}
}
