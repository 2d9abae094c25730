package services

import (
	"context"
	"errors"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/yeremiapane/pix-checkout/models"
	"github.com/yeremiapane/pix-checkout/store"
	"github.com/yeremiapane/pix-checkout/utils"
)

func TestMain(m *testing.M) {
	utils.InitLogger()
	os.Exit(m.Run())
}

// fakeGateway is an in-memory PixGateway with scriptable failures.
type fakeGateway struct {
	mu           sync.Mutex
	createErr    error
	qrErr        error
	updateErr    error
	detailErr    error
	detailStatus models.ChargeStatus
	creates      int
	updates      []string
}

func (f *fakeGateway) CreateImmediateCharge(_ context.Context, txid string, _ int, _, _ string) (*ChargeLocation, error) {
	if f.createErr != nil {
		return nil, f.createErr
	}
	f.mu.Lock()
	f.creates++
	loc := int64(f.creates)
	f.mu.Unlock()
	return &ChargeLocation{TxID: txid, LocationID: loc}, nil
}

func (f *fakeGateway) GenerateQRCode(_ context.Context, locationID int64) (string, error) {
	if f.qrErr != nil {
		return "", f.qrErr
	}
	return "00020101021226620015br.gov.bcb.pix", nil
}

func (f *fakeGateway) DetailCharge(_ context.Context, txid string) (*ChargeDetail, error) {
	if f.detailErr != nil {
		return nil, f.detailErr
	}
	status := f.detailStatus
	if status == "" {
		status = models.ChargeStatusActive
	}
	return &ChargeDetail{TxID: txid, Status: status, Amount: "1.00"}, nil
}

func (f *fakeGateway) UpdateCharge(_ context.Context, txid, status string) error {
	if f.updateErr != nil {
		return f.updateErr
	}
	f.mu.Lock()
	f.updates = append(f.updates, txid+":"+status)
	f.mu.Unlock()
	return nil
}

func (f *fakeGateway) RegisterWebhook(_ context.Context, _, _ string) error {
	return nil
}

func newTestService(gateway *fakeGateway, expiration time.Duration) (*ChargeService, store.ChargeStore) {
	chargeStore := store.NewMemoryStore()
	svc := NewChargeService(gateway, chargeStore, "chave@pix.example", expiration)
	return svc, chargeStore
}

func TestCreateChargeGeneratesUniqueTxids(t *testing.T) {
	svc, _ := newTestService(&fakeGateway{}, time.Hour)

	seen := make(map[string]struct{}, 10000)
	for i := 0; i < 10000; i++ {
		charge, err := svc.CreateCharge(context.Background(), 1.00)
		assert.NoError(t, err)
		assert.Len(t, charge.TxID, 32)
		_, dup := seen[charge.TxID]
		assert.False(t, dup, "txid %s repeated", charge.TxID)
		seen[charge.TxID] = struct{}{}
	}
}

func TestCreateCharge(t *testing.T) {
	svc, chargeStore := newTestService(&fakeGateway{}, time.Hour)

	charge, err := svc.CreateCharge(context.Background(), 1.0)
	assert.NoError(t, err)
	assert.Equal(t, models.ChargeStatusActive, charge.Status)
	assert.Equal(t, "1.00", charge.Amount)
	assert.NotEmpty(t, charge.PaymentCode)
	assert.WithinDuration(t, time.Now().Add(time.Hour), charge.ExpiresAt, time.Minute)

	stored, err := chargeStore.Get(charge.TxID)
	assert.NoError(t, err)
	assert.Equal(t, charge.PaymentCode, stored.PaymentCode)
}

func TestCreateChargeUpstreamFailure(t *testing.T) {
	gateway := &fakeGateway{createErr: &UpstreamError{Op: "create charge", StatusCode: 500}}
	svc, chargeStore := newTestService(gateway, time.Hour)

	_, err := svc.CreateCharge(context.Background(), 1.0)
	assert.ErrorIs(t, err, ErrUpstream)

	// All-or-nothing: nothing persisted when registration itself failed.
	for _, status := range []models.ChargeStatus{models.ChargeStatusActive, models.ChargeStatusError} {
		charges, lerr := chargeStore.ListByStatus(status)
		assert.NoError(t, lerr)
		assert.Empty(t, charges)
	}
}

func TestCreateChargeQRCodeFailureRecordsError(t *testing.T) {
	gateway := &fakeGateway{qrErr: &UpstreamError{Op: "generate qrcode", StatusCode: 502}}
	svc, chargeStore := newTestService(gateway, time.Hour)

	_, err := svc.CreateCharge(context.Background(), 1.0)
	assert.ErrorIs(t, err, ErrUpstream)

	// The charge was registered upstream, so the txid must not be lost:
	// it is recorded locally as ERROR for reconciliation.
	charges, err := chargeStore.ListByStatus(models.ChargeStatusError)
	assert.NoError(t, err)
	assert.Len(t, charges, 1)
	assert.Empty(t, charges[0].PaymentCode)
}

func TestIngestWebhookConfirmsAndIsIdempotent(t *testing.T) {
	svc, chargeStore := newTestService(&fakeGateway{}, time.Hour)
	charge, err := svc.CreateCharge(context.Background(), 1.0)
	assert.NoError(t, err)

	event := models.PixEvent{TxID: charge.TxID, Valor: "1.00"}

	assert.NoError(t, svc.IngestWebhookEvent(event))
	stored, _ := chargeStore.Get(charge.TxID)
	assert.Equal(t, models.ChargeStatusPaid, stored.Status)
	assert.Equal(t, models.EventSourceWebhook, stored.LastEventSource)

	// Redelivery is a no-op, not an error.
	assert.NoError(t, svc.IngestWebhookEvent(event))
	stored, _ = chargeStore.Get(charge.TxID)
	assert.Equal(t, models.ChargeStatusPaid, stored.Status)
}

func TestIngestWebhookUnknownTxid(t *testing.T) {
	svc, chargeStore := newTestService(&fakeGateway{}, time.Hour)

	err := svc.IngestWebhookEvent(models.PixEvent{TxID: "nonexistent", Valor: "1.00"})
	assert.NoError(t, err)

	charges, err := chargeStore.ListByStatus(models.ChargeStatusPaid)
	assert.NoError(t, err)
	assert.Empty(t, charges)
}

func TestIngestWebhookMalformed(t *testing.T) {
	svc, _ := newTestService(&fakeGateway{}, time.Hour)

	assert.ErrorIs(t, svc.IngestWebhookEvent(models.PixEvent{Valor: "1.00"}), ErrMalformedEvent)
	assert.ErrorIs(t, svc.IngestWebhookEvent(models.PixEvent{TxID: "tx-1"}), ErrMalformedEvent)
}

func TestIngestWebhookAfterCancelKeepsCancelled(t *testing.T) {
	svc, chargeStore := newTestService(&fakeGateway{}, time.Hour)
	charge, err := svc.CreateCharge(context.Background(), 1.0)
	assert.NoError(t, err)

	assert.NoError(t, svc.CancelCharge(context.Background(), charge.TxID))

	// A late PAID webhook must never resurrect a cancelled charge.
	err = svc.IngestWebhookEvent(models.PixEvent{TxID: charge.TxID, Valor: charge.Amount})
	assert.NoError(t, err)

	stored, _ := chargeStore.Get(charge.TxID)
	assert.Equal(t, models.ChargeStatusCancelled, stored.Status)
}

func TestCancelChargeIdempotent(t *testing.T) {
	gateway := &fakeGateway{}
	svc, chargeStore := newTestService(gateway, time.Hour)
	charge, err := svc.CreateCharge(context.Background(), 1.0)
	assert.NoError(t, err)

	assert.NoError(t, svc.CancelCharge(context.Background(), charge.TxID))
	assert.NoError(t, svc.CancelCharge(context.Background(), charge.TxID))

	stored, _ := chargeStore.Get(charge.TxID)
	assert.Equal(t, models.ChargeStatusCancelled, stored.Status)

	// Upstream informed exactly once.
	assert.Len(t, gateway.updates, 1)
	assert.Equal(t, charge.TxID+":"+EfiChargeStatusRemoved, gateway.updates[0])
}

func TestCancelChargeAfterPaidIsNoOp(t *testing.T) {
	gateway := &fakeGateway{}
	svc, chargeStore := newTestService(gateway, time.Hour)
	charge, err := svc.CreateCharge(context.Background(), 1.0)
	assert.NoError(t, err)

	assert.NoError(t, svc.IngestWebhookEvent(models.PixEvent{TxID: charge.TxID, Valor: "1.00"}))
	assert.NoError(t, svc.CancelCharge(context.Background(), charge.TxID))

	stored, _ := chargeStore.Get(charge.TxID)
	assert.Equal(t, models.ChargeStatusPaid, stored.Status)
	assert.Empty(t, gateway.updates)
}

func TestCancelChargeUpstreamFailureKeepsLocalState(t *testing.T) {
	gateway := &fakeGateway{updateErr: &UpstreamError{Op: "update charge", StatusCode: 503}}
	svc, chargeStore := newTestService(gateway, time.Hour)
	charge, err := svc.CreateCharge(context.Background(), 1.0)
	assert.NoError(t, err)

	// Local state is the source of truth; upstream failure is not rolled back.
	assert.NoError(t, svc.CancelCharge(context.Background(), charge.TxID))

	stored, _ := chargeStore.Get(charge.TxID)
	assert.Equal(t, models.ChargeStatusCancelled, stored.Status)
}

func TestPollStatusExpiresLazily(t *testing.T) {
	svc, _ := newTestService(&fakeGateway{}, 50*time.Millisecond)
	charge, err := svc.CreateCharge(context.Background(), 1.0)
	assert.NoError(t, err)

	paid, status, err := svc.PollStatus(context.Background(), charge.TxID)
	assert.NoError(t, err)
	assert.False(t, paid)
	assert.Equal(t, models.ChargeStatusActive, status)

	time.Sleep(120 * time.Millisecond)

	paid, status, err = svc.PollStatus(context.Background(), charge.TxID)
	assert.NoError(t, err)
	assert.False(t, paid)
	assert.Equal(t, models.ChargeStatusExpired, status)
}

func TestPollStatusNotFound(t *testing.T) {
	svc, _ := newTestService(&fakeGateway{}, time.Hour)

	_, _, err := svc.PollStatus(context.Background(), "nonexistent")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestPollStatusReconciliationFallback(t *testing.T) {
	gateway := &fakeGateway{detailStatus: models.ChargeStatusPaid}
	svc, chargeStore := newTestService(gateway, time.Hour)
	svc.EnableGatewayReconciliation()

	charge, err := svc.CreateCharge(context.Background(), 1.0)
	assert.NoError(t, err)

	// No webhook arrived, but the provider already settled the charge.
	paid, status, err := svc.PollStatus(context.Background(), charge.TxID)
	assert.NoError(t, err)
	assert.True(t, paid)
	assert.Equal(t, models.ChargeStatusPaid, status)

	stored, _ := chargeStore.Get(charge.TxID)
	assert.Equal(t, models.EventSourcePoll, stored.LastEventSource)
}

func TestPollStatusDoesNotCallGatewayByDefault(t *testing.T) {
	gateway := &fakeGateway{detailErr: errors.New("gateway must not be called")}
	svc, _ := newTestService(gateway, time.Hour)

	charge, err := svc.CreateCharge(context.Background(), 1.0)
	assert.NoError(t, err)

	_, status, err := svc.PollStatus(context.Background(), charge.TxID)
	assert.NoError(t, err)
	assert.Equal(t, models.ChargeStatusActive, status)
}

func TestSweepActiveExpiresOverdueCharges(t *testing.T) {
	svc, chargeStore := newTestService(&fakeGateway{}, 30*time.Millisecond)

	charge, err := svc.CreateCharge(context.Background(), 1.0)
	assert.NoError(t, err)

	time.Sleep(60 * time.Millisecond)
	svc.SweepActive(context.Background())

	stored, _ := chargeStore.Get(charge.TxID)
	assert.Equal(t, models.ChargeStatusExpired, stored.Status)
	assert.Equal(t, models.EventSourcePoll, stored.LastEventSource)
}

// Concurrent cancellation and webhook confirmation of the same ACTIVE charge
// must leave exactly one terminal state.
func TestConcurrentCancelAndWebhook(t *testing.T) {
	for trial := 0; trial < 100; trial++ {
		svc, chargeStore := newTestService(&fakeGateway{}, time.Hour)
		charge, err := svc.CreateCharge(context.Background(), 1.0)
		assert.NoError(t, err)

		var wg sync.WaitGroup
		wg.Add(2)
		go func() {
			defer wg.Done()
			_ = svc.CancelCharge(context.Background(), charge.TxID)
		}()
		go func() {
			defer wg.Done()
			_ = svc.IngestWebhookEvent(models.PixEvent{TxID: charge.TxID, Valor: "1.00"})
		}()
		wg.Wait()

		stored, err := chargeStore.Get(charge.TxID)
		assert.NoError(t, err)
		assert.Contains(t, []models.ChargeStatus{models.ChargeStatusPaid, models.ChargeStatusCancelled}, stored.Status)
	}
}
