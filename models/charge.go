package models

import (
	"fmt"
	"time"
)

// ChargeStatus is the lifecycle state of a PIX charge.
type ChargeStatus string

const (
	ChargeStatusCreated   ChargeStatus = "CREATED"
	ChargeStatusActive    ChargeStatus = "ACTIVE"
	ChargeStatusPaid      ChargeStatus = "PAID"
	ChargeStatusCancelled ChargeStatus = "CANCELLED"
	ChargeStatusExpired   ChargeStatus = "EXPIRED"
	ChargeStatusError     ChargeStatus = "ERROR"
)

// Terminal reports whether no further transition is permitted from s.
func (s ChargeStatus) Terminal() bool {
	switch s {
	case ChargeStatusPaid, ChargeStatusCancelled, ChargeStatusExpired, ChargeStatusError:
		return true
	}
	return false
}

// EventSource records which channel last touched a charge. Diagnostic only.
type EventSource string

const (
	EventSourcePoll    EventSource = "POLL"
	EventSourceWebhook EventSource = "WEBHOOK"
	EventSourceCancel  EventSource = "CANCEL_REQUEST"
)

// Charge represents one PIX payment request with a fixed amount and unique txid
type Charge struct {
	TxID            string       `json:"txid" gorm:"primaryKey;size:64"`
	Amount          string       `json:"amount" gorm:"size:20"`
	Status          ChargeStatus `json:"status" gorm:"size:16;index"`
	LocationID      int64        `json:"location_id"`
	PaymentCode     string       `json:"payment_code"`
	LastEventSource EventSource  `json:"last_event_source" gorm:"size:20"`
	CreatedAt       time.Time    `json:"created_at"`
	ExpiresAt       time.Time    `json:"expires_at"`
}

// ExpiredAt reports whether the charge expiration window has elapsed at now.
func (c *Charge) ExpiredAt(now time.Time) bool {
	return now.After(c.ExpiresAt)
}

// FormatAmount normalizes an amount to the canonical two-decimal string the
// PIX wire format uses for valor ("1.00").
func FormatAmount(amount float64) string {
	return fmt.Sprintf("%.2f", amount)
}

// WebhookPayload is the body EFI posts to the webhook URL when charges settle.
type WebhookPayload struct {
	Pix []PixEvent `json:"pix"`
}

// PixEvent is a single settlement notification inside a webhook payload.
type PixEvent struct {
	TxID       string `json:"txid"`
	Valor      string `json:"valor"`
	EndToEndID string `json:"endToEndId,omitempty"`
	Horario    string `json:"horario,omitempty"`
}
