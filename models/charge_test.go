package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestChargeStatusTerminal(t *testing.T) {
	tests := []struct {
		status   ChargeStatus
		terminal bool
	}{
		{ChargeStatusCreated, false},
		{ChargeStatusActive, false},
		{ChargeStatusPaid, true},
		{ChargeStatusCancelled, true},
		{ChargeStatusExpired, true},
		{ChargeStatusError, true},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.terminal, tt.status.Terminal(), "status %s", tt.status)
	}
}

func TestFormatAmount(t *testing.T) {
	assert.Equal(t, "1.00", FormatAmount(1))
	assert.Equal(t, "0.50", FormatAmount(0.5))
	assert.Equal(t, "1234.57", FormatAmount(1234.567))
}

func TestChargeExpiredAt(t *testing.T) {
	now := time.Now()
	charge := &Charge{ExpiresAt: now.Add(time.Minute)}

	assert.False(t, charge.ExpiredAt(now))
	assert.True(t, charge.ExpiredAt(now.Add(2*time.Minute)))
}
