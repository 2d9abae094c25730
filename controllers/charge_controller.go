package controllers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/yeremiapane/pix-checkout/middlewares"
	"github.com/yeremiapane/pix-checkout/services"
	"github.com/yeremiapane/pix-checkout/store"
	"github.com/yeremiapane/pix-checkout/utils"
)

// ChargeController is the client-facing query surface: create a charge for
// the session, poll its status, cancel it.
type ChargeController struct {
	service       *services.ChargeService
	sessions      *SessionStore
	defaultAmount float64
}

func NewChargeController(service *services.ChargeService, sessions *SessionStore, defaultAmount float64) *ChargeController {
	return &ChargeController{
		service:       service,
		sessions:      sessions,
		defaultAmount: defaultAmount,
	}
}

type createChargeRequest struct {
	Amount float64 `json:"amount"`
}

// CreateCharge handles POST /charge. The body may carry an amount; without
// one the configured product price is charged.
func (ctrl *ChargeController) CreateCharge(c *gin.Context) {
	sessionID := c.GetString(middlewares.SessionKey)
	if sessionID == "" {
		utils.RespondError(c, http.StatusBadRequest, "missing session")
		return
	}

	var req createChargeRequest
	_ = c.ShouldBindJSON(&req)
	amount := req.Amount
	if amount <= 0 {
		amount = ctrl.defaultAmount
	}

	charge, err := ctrl.service.CreateCharge(c.Request.Context(), amount)
	if err != nil {
		utils.ErrorLogger.Printf("Error creating charge: %v", err)
		utils.RespondError(c, http.StatusInternalServerError, "failed to create charge")
		return
	}

	image, err := utils.QRCodePNG(charge.PaymentCode)
	if err != nil {
		utils.ErrorLogger.Printf("Error rendering qrcode for %s: %v", charge.TxID, err)
		utils.RespondError(c, http.StatusInternalServerError, "failed to render payment code")
		return
	}

	ctrl.sessions.Bind(sessionID, charge.TxID)

	utils.RespondOK(c, gin.H{
		"payment_code": charge.PaymentCode,
		"qrcode_image": image,
		"txid":         charge.TxID,
		"amount":       charge.Amount,
	})
}

// ChargeStatus handles GET /charge/status for the session's current charge.
func (ctrl *ChargeController) ChargeStatus(c *gin.Context) {
	sessionID := c.GetString(middlewares.SessionKey)
	txid, ok := ctrl.sessions.Lookup(sessionID)
	if !ok {
		utils.RespondError(c, http.StatusBadRequest, "no charge for this session")
		return
	}

	paid, status, err := ctrl.service.PollStatus(c.Request.Context(), txid)
	if errors.Is(err, store.ErrNotFound) {
		utils.RespondError(c, http.StatusBadRequest, "no charge for this session")
		return
	}
	if err != nil {
		utils.ErrorLogger.Printf("Error polling charge %s: %v", txid, err)
		utils.RespondError(c, http.StatusInternalServerError, "failed to check payment")
		return
	}

	utils.RespondOK(c, gin.H{
		"paid":   paid,
		"status": status,
		"txid":   txid,
	})
}

// CancelCharge handles POST /charge/cancel. Cancelling with no charge bound,
// or a charge already terminal, still succeeds.
func (ctrl *ChargeController) CancelCharge(c *gin.Context) {
	sessionID := c.GetString(middlewares.SessionKey)
	txid, ok := ctrl.sessions.Lookup(sessionID)
	if ok {
		err := ctrl.service.CancelCharge(c.Request.Context(), txid)
		if err != nil && !errors.Is(err, store.ErrNotFound) {
			utils.ErrorLogger.Printf("Error cancelling charge %s: %v", txid, err)
			utils.RespondError(c, http.StatusInternalServerError, "failed to cancel charge")
			return
		}
		ctrl.sessions.Clear(sessionID)
	}

	utils.RespondOK(c, gin.H{})
}
