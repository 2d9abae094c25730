package utils

import (
	"github.com/gin-gonic/gin"
)

// RespondOK writes a success payload. The payload keys are merged with
// success=true so handlers keep the flat response shape the checkout
// front-end expects.
func RespondOK(c *gin.Context, payload gin.H) {
	body := gin.H{"success": true}
	for k, v := range payload {
		body[k] = v
	}
	c.JSON(200, body)
}

// RespondError writes a flat error response without leaking internal detail.
func RespondError(c *gin.Context, code int, message string) {
	c.JSON(code, gin.H{
		"success": false,
		"error":   message,
	})
}
