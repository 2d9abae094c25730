package router

import (
	"github.com/gin-gonic/gin"

	"github.com/yeremiapane/pix-checkout/config"
	"github.com/yeremiapane/pix-checkout/controllers"
	"github.com/yeremiapane/pix-checkout/middlewares"
)

// SetupRouter wires the client-facing query surface and the provider-facing
// webhook endpoint.
func SetupRouter(cfg *config.Config, charge *controllers.ChargeController, webhook *controllers.WebhookController, events *controllers.EventsController) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middlewares.LoggerMiddleware())
	r.Use(middlewares.CORSMiddleware(cfg.CORSOrigin))

	rateLimiter := middlewares.NewRateLimiter(50, 1)
	r.Use(rateLimiter.RateLimit())

	client := r.Group("/", middlewares.SecureHeaders(), middlewares.Session())
	{
		client.POST("/charge", middlewares.CreateChargeLimiter(), charge.CreateCharge)
		client.GET("/charge/status", charge.ChargeStatus)
		client.POST("/charge/cancel", charge.CancelCharge)
		client.GET("/charge/events", events.HandleEvents)
	}

	r.POST("/webhook",
		middlewares.WebhookSignature(cfg.WebhookSecret, cfg.WebhookSkipSignature),
		webhook.HandlePixWebhook)

	return r
}
