package controllers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/yeremiapane/pix-checkout/models"
	"github.com/yeremiapane/pix-checkout/services"
	"github.com/yeremiapane/pix-checkout/utils"
)

// WebhookController receives EFI settlement notifications. The provider
// redelivers on any non-2xx, so everything except a body that cannot be
// parsed is acknowledged with 200; reprocessing is idempotent in the
// coordinator.
type WebhookController struct {
	service *services.ChargeService
}

func NewWebhookController(service *services.ChargeService) *WebhookController {
	return &WebhookController{service: service}
}

// HandlePixWebhook handles POST /webhook.
func (ctrl *WebhookController) HandlePixWebhook(c *gin.Context) {
	var payload models.WebhookPayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		utils.ErrorLogger.Printf("Malformed webhook body: %v", err)
		c.JSON(http.StatusBadRequest, gin.H{"status": "error"})
		return
	}

	for _, event := range payload.Pix {
		if err := ctrl.service.IngestWebhookEvent(event); err != nil {
			if errors.Is(err, services.ErrMalformedEvent) {
				utils.ErrorLogger.Printf("Malformed pix event in webhook: %+v", event)
				c.JSON(http.StatusBadRequest, gin.H{"status": "error"})
				return
			}
			// Transient store failure: acknowledge anyway, a redelivery
			// would only be reprocessed idempotently.
			utils.ErrorLogger.Printf("Error ingesting webhook event for %s: %v", event.TxID, err)
		}
	}

	c.JSON(http.StatusOK, gin.H{"status": "success"})
}
