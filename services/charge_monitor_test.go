package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/yeremiapane/pix-checkout/models"
)

func TestChargeMonitorExpiresCharges(t *testing.T) {
	svc, chargeStore := newTestService(&fakeGateway{}, 10*time.Millisecond)

	charge, err := svc.CreateCharge(context.Background(), 1.0)
	assert.NoError(t, err)

	monitor := NewChargeMonitor(svc, 20*time.Millisecond)
	monitor.Start()
	defer monitor.Stop()

	assert.Eventually(t, func() bool {
		stored, err := chargeStore.Get(charge.TxID)
		return err == nil && stored.Status == models.ChargeStatusExpired
	}, time.Second, 10*time.Millisecond)
}
