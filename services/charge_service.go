package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/yeremiapane/pix-checkout/hub"
	"github.com/yeremiapane/pix-checkout/models"
	"github.com/yeremiapane/pix-checkout/store"
	"github.com/yeremiapane/pix-checkout/utils"
)

// ErrMalformedEvent is returned when a webhook event lacks its required fields.
var ErrMalformedEvent = errors.New("webhook: malformed pix event")

// ChargeService coordinates the lifecycle of a PIX charge: creation against
// the gateway, confirmation via webhook, client polling and cancellation.
// All status changes go through the store's CompareAndTransition, so the
// webhook and polling channels can race safely.
type ChargeService struct {
	gateway    PixGateway
	store      store.ChargeStore
	hub        *hub.ChargeHub
	payerKey   string
	expiration time.Duration
	reconcile  bool
}

// NewChargeService creates the coordinator. payerKey is the receiving PIX key,
// expiration the charge validity window (the provider default is 3600s).
func NewChargeService(gateway PixGateway, chargeStore store.ChargeStore, payerKey string, expiration time.Duration) *ChargeService {
	return &ChargeService{
		gateway:    gateway,
		store:      chargeStore,
		payerKey:   payerKey,
		expiration: expiration,
	}
}

// AttachHub makes the service broadcast charge transitions to connected
// websocket clients.
func (s *ChargeService) AttachHub(h *hub.ChargeHub) {
	s.hub = h
}

// EnableGatewayReconciliation turns on the fallback that consults the
// provider's detail lookup for charges still ACTIVE locally. The webhook
// remains the primary confirmation channel.
func (s *ChargeService) EnableGatewayReconciliation() {
	s.reconcile = true
}

// CreateCharge registers a new charge upstream, materializes its payment code
// and persists it as ACTIVE. If code materialization fails after the upstream
// registration succeeded, the charge is still recorded locally with status
// ERROR so the txid is not silently lost.
func (s *ChargeService) CreateCharge(ctx context.Context, amount float64) (*models.Charge, error) {
	txid := strings.ReplaceAll(uuid.NewString(), "-", "")
	value := models.FormatAmount(amount)

	loc, err := s.gateway.CreateImmediateCharge(ctx, txid, int(s.expiration.Seconds()), value, s.payerKey)
	if err != nil {
		return nil, fmt.Errorf("creating charge %s: %w", txid, err)
	}

	now := time.Now()
	charge := &models.Charge{
		TxID:       loc.TxID,
		Amount:     value,
		Status:     models.ChargeStatusCreated,
		LocationID: loc.LocationID,
		CreatedAt:  now,
		ExpiresAt:  now.Add(s.expiration),
	}

	code, err := s.gateway.GenerateQRCode(ctx, loc.LocationID)
	if err != nil {
		charge.Status = models.ChargeStatusError
		if putErr := s.store.Put(charge); putErr != nil {
			utils.ErrorLogger.Printf("Charge %s lost after qrcode failure: %v (store: %v)", charge.TxID, err, putErr)
		} else {
			utils.ErrorLogger.Printf("Charge %s recorded with status ERROR for reconciliation: %v", charge.TxID, err)
		}
		return nil, fmt.Errorf("materializing payment code for %s: %w", charge.TxID, err)
	}

	charge.PaymentCode = code
	charge.Status = models.ChargeStatusActive
	if err := s.store.Put(charge); err != nil {
		// A txid collision is fatal to this call; the caller retries with a
		// fresh id.
		return nil, fmt.Errorf("persisting charge %s: %w", charge.TxID, err)
	}

	utils.InfoLogger.Printf("Charge %s created, amount %s, expires %s", charge.TxID, charge.Amount, charge.ExpiresAt.Format(time.RFC3339))
	if s.hub != nil {
		s.hub.BroadcastChargeCreated(charge)
	}
	return charge, nil
}

// PollStatus answers a client status query. An overdue ACTIVE charge is lazily
// transitioned to EXPIRED here; otherwise the stored status is returned as is.
// The gateway is only consulted when reconciliation is enabled and the charge
// is still ACTIVE.
func (s *ChargeService) PollStatus(ctx context.Context, txid string) (paid bool, status models.ChargeStatus, err error) {
	charge, err := s.store.Get(txid)
	if err != nil {
		return false, "", err
	}

	if charge.Status == models.ChargeStatusActive {
		switch {
		case charge.ExpiredAt(time.Now()):
			charge = s.transition(txid, models.ChargeStatusExpired, models.EventSourcePoll, charge)
		case s.reconcile:
			charge = s.reconcileCharge(ctx, charge)
		}
	}

	return charge.Status == models.ChargeStatusPaid, charge.Status, nil
}

// IngestWebhookEvent applies one settlement notification. Unknown txids are
// discarded: the provider may notify for charges predating this process.
// Duplicates and late events against terminal charges are no-ops; only a
// structurally incomplete event is an error.
func (s *ChargeService) IngestWebhookEvent(event models.PixEvent) error {
	if event.TxID == "" || event.Valor == "" {
		return ErrMalformedEvent
	}

	charge, err := s.store.Get(event.TxID)
	if errors.Is(err, store.ErrNotFound) {
		utils.InfoLogger.Printf("Webhook for unknown txid %s discarded", event.TxID)
		return nil
	}
	if err != nil {
		return err
	}

	if charge.Amount != event.Valor {
		utils.ErrorLogger.Printf("Discrepancy: webhook for %s reports valor %s, charge amount is %s", event.TxID, event.Valor, charge.Amount)
	}

	updated, transitioned, err := s.store.CompareAndTransition(event.TxID,
		[]models.ChargeStatus{models.ChargeStatusActive},
		models.ChargeStatusPaid, models.EventSourceWebhook)
	switch {
	case err == nil && transitioned:
		utils.InfoLogger.Printf("Charge %s confirmed PAID via webhook", event.TxID)
		if s.hub != nil {
			s.hub.BroadcastChargeUpdate(updated)
		}
	case err == nil:
		utils.InfoLogger.Printf("Duplicate webhook for %s ignored, already PAID", event.TxID)
	case errors.Is(err, store.ErrInvalidTransition):
		utils.ErrorLogger.Printf("Discrepancy: webhook for %s arrived with status %s, not applied", event.TxID, updated.Status)
	default:
		return err
	}
	return nil
}

// CancelCharge cancels an ACTIVE charge. Local state is authoritative: the
// transition happens first and is never rolled back if the upstream update
// fails. Cancelling an already-terminal charge succeeds idempotently.
func (s *ChargeService) CancelCharge(ctx context.Context, txid string) error {
	updated, transitioned, err := s.store.CompareAndTransition(txid,
		[]models.ChargeStatus{models.ChargeStatusActive},
		models.ChargeStatusCancelled, models.EventSourceCancel)
	if errors.Is(err, store.ErrInvalidTransition) {
		utils.InfoLogger.Printf("Cancel for %s ignored, charge already %s", txid, updated.Status)
		return nil
	}
	if err != nil {
		return err
	}

	if !transitioned {
		return nil
	}

	utils.InfoLogger.Printf("Charge %s cancelled", txid)
	if s.hub != nil {
		s.hub.BroadcastChargeUpdate(updated)
	}

	if err := s.gateway.UpdateCharge(ctx, txid, EfiChargeStatusRemoved); err != nil {
		// Best effort upstream; the local CANCELLED state stands.
		utils.ErrorLogger.Printf("Upstream cancel for %s failed, local state stays CANCELLED: %v", txid, err)
	}
	return nil
}

// SweepActive expires overdue ACTIVE charges and, when reconciliation is
// enabled, checks the remaining ones against the gateway. Called periodically
// by the ChargeMonitor so expiry does not depend on a client polling.
func (s *ChargeService) SweepActive(ctx context.Context) {
	charges, err := s.store.ListByStatus(models.ChargeStatusActive)
	if err != nil {
		utils.ErrorLogger.Printf("Error listing active charges: %v", err)
		return
	}

	now := time.Now()
	for _, charge := range charges {
		if charge.ExpiredAt(now) {
			s.transition(charge.TxID, models.ChargeStatusExpired, models.EventSourcePoll, charge)
			continue
		}
		if s.reconcile {
			s.reconcileCharge(ctx, charge)
		}
	}
}

// reconcileCharge consults the provider's detail lookup for a charge the
// store still shows as ACTIVE, covering the case where no webhook arrived.
func (s *ChargeService) reconcileCharge(ctx context.Context, charge *models.Charge) *models.Charge {
	detail, err := s.gateway.DetailCharge(ctx, charge.TxID)
	if err != nil {
		utils.ErrorLogger.Printf("Reconciliation lookup for %s failed: %v", charge.TxID, err)
		return charge
	}
	if detail.Status != models.ChargeStatusPaid {
		return charge
	}
	utils.InfoLogger.Printf("Charge %s confirmed PAID via reconciliation lookup", charge.TxID)
	return s.transition(charge.TxID, models.ChargeStatusPaid, models.EventSourcePoll, charge)
}

// transition applies an ACTIVE->next transition and broadcasts it. A losing
// race (another channel got there first) is not an error; the fresher charge
// the store reports is returned either way.
func (s *ChargeService) transition(txid string, next models.ChargeStatus, source models.EventSource, fallback *models.Charge) *models.Charge {
	updated, transitioned, err := s.store.CompareAndTransition(txid,
		[]models.ChargeStatus{models.ChargeStatusActive}, next, source)
	if err != nil && !errors.Is(err, store.ErrInvalidTransition) {
		utils.ErrorLogger.Printf("Error transitioning %s to %s: %v", txid, next, err)
		return fallback
	}
	if transitioned {
		utils.InfoLogger.Printf("Charge %s transitioned to %s (%s)", txid, next, source)
		if s.hub != nil {
			s.hub.BroadcastChargeUpdate(updated)
		}
	}
	return updated
}
