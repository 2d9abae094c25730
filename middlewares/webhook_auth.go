package middlewares

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/yeremiapane/pix-checkout/utils"
)

// SignatureHeader carries the hex HMAC-SHA256 of the raw webhook body.
const SignatureHeader = "X-Webhook-Signature"

// WebhookSignature authenticates inbound provider calls with a shared-secret
// HMAC over the raw body. Deployments that terminate mTLS in front of the
// service may skip the check, but only by explicit opt-in; with neither a
// secret nor the opt-in configured every webhook is rejected.
func WebhookSignature(secret string, skip bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		if skip {
			c.Next()
			return
		}
		if secret == "" {
			utils.ErrorLogger.Printf("Webhook rejected: no WEBHOOK_SECRET configured and signature check not skipped")
			c.AbortWithStatus(http.StatusUnauthorized)
			return
		}

		body, err := io.ReadAll(c.Request.Body)
		if err != nil {
			c.AbortWithStatus(http.StatusBadRequest)
			return
		}
		c.Request.Body = io.NopCloser(bytes.NewBuffer(body))

		mac := hmac.New(sha256.New, []byte(secret))
		mac.Write(body)
		expected := hex.EncodeToString(mac.Sum(nil))

		received := c.GetHeader(SignatureHeader)
		if received == "" || !hmac.Equal([]byte(expected), []byte(received)) {
			utils.ErrorLogger.Printf("Webhook rejected: bad signature from %s", c.ClientIP())
			c.AbortWithStatus(http.StatusUnauthorized)
			return
		}

		c.Next()
	}
}
