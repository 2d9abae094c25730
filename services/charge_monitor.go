package services

import (
	"context"
	"time"

	"github.com/yeremiapane/pix-checkout/utils"
)

// ChargeMonitor periodically sweeps ACTIVE charges so expiry (and optional
// gateway reconciliation) happens even when no client is polling.
type ChargeMonitor struct {
	service  *ChargeService
	interval time.Duration
	stop     chan struct{}
}

// NewChargeMonitor creates a monitor around the coordinator. A zero interval
// defaults to 30 seconds.
func NewChargeMonitor(service *ChargeService, interval time.Duration) *ChargeMonitor {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &ChargeMonitor{
		service:  service,
		interval: interval,
		stop:     make(chan struct{}),
	}
}

// Start launches the sweep goroutine.
func (m *ChargeMonitor) Start() {
	go m.run()
	utils.InfoLogger.Printf("Charge monitor started, sweeping every %s", m.interval)
}

// Stop terminates the sweep goroutine.
func (m *ChargeMonitor) Stop() {
	close(m.stop)
}

func (m *ChargeMonitor) run() {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), m.interval)
			m.service.SweepActive(ctx)
			cancel()
		case <-m.stop:
			return
		}
	}
}
