package store

import (
	"errors"

	"github.com/yeremiapane/pix-checkout/models"
)

var (
	// ErrDuplicateKey is returned by Put when the txid is already present.
	ErrDuplicateKey = errors.New("store: duplicate txid")
	// ErrNotFound is returned when no charge exists for the given txid.
	ErrNotFound = errors.New("store: charge not found")
	// ErrInvalidTransition is returned by CompareAndTransition when the
	// current status is outside the expected set and differs from the target.
	ErrInvalidTransition = errors.New("store: invalid status transition")
)

// ChargeStore is the authoritative mapping from txid to Charge. It is the only
// shared mutable state in the system; every status change goes through
// CompareAndTransition.
type ChargeStore interface {
	// Put inserts a new charge. Fails with ErrDuplicateKey if the txid exists.
	Put(charge *models.Charge) error

	// Get returns the charge for txid or ErrNotFound.
	Get(txid string) (*models.Charge, error)

	// CompareAndTransition atomically sets the status to next only if the
	// current status is in expected. Re-asserting the status a charge already
	// holds is a benign no-op (transitioned=false, nil error); any other
	// mismatch returns ErrInvalidTransition. Exactly one of two concurrent
	// callers contending for the same transition observes transitioned=true.
	CompareAndTransition(txid string, expected []models.ChargeStatus, next models.ChargeStatus, source models.EventSource) (charge *models.Charge, transitioned bool, err error)

	// ListByStatus returns all charges currently in the given status.
	ListByStatus(status models.ChargeStatus) ([]*models.Charge, error)
}

func statusIn(status models.ChargeStatus, set []models.ChargeStatus) bool {
	for _, s := range set {
		if s == status {
			return true
		}
	}
	return false
}
