package store

import (
	"sync"

	"github.com/yeremiapane/pix-checkout/models"
)

// MemoryStore keeps charges in process memory. This is the default store and
// matches the retention of the original checkout flow: charges live for the
// duration of the process, not beyond it.
type MemoryStore struct {
	mu      sync.Mutex
	charges map[string]*models.Charge
}

// NewMemoryStore creates an empty in-memory charge store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		charges: make(map[string]*models.Charge),
	}
}

func (s *MemoryStore) Put(charge *models.Charge) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.charges[charge.TxID]; exists {
		return ErrDuplicateKey
	}
	cp := *charge
	s.charges[charge.TxID] = &cp
	return nil
}

func (s *MemoryStore) Get(txid string) (*models.Charge, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	charge, exists := s.charges[txid]
	if !exists {
		return nil, ErrNotFound
	}
	cp := *charge
	return &cp, nil
}

func (s *MemoryStore) CompareAndTransition(txid string, expected []models.ChargeStatus, next models.ChargeStatus, source models.EventSource) (*models.Charge, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	charge, exists := s.charges[txid]
	if !exists {
		return nil, false, ErrNotFound
	}

	if statusIn(charge.Status, expected) {
		charge.Status = next
		charge.LastEventSource = source
		cp := *charge
		return &cp, true, nil
	}

	if charge.Status == next {
		// Already there, e.g. a redelivered webhook re-confirming PAID.
		cp := *charge
		return &cp, false, nil
	}

	cp := *charge
	return &cp, false, ErrInvalidTransition
}

func (s *MemoryStore) ListByStatus(status models.ChargeStatus) ([]*models.Charge, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []*models.Charge
	for _, charge := range s.charges {
		if charge.Status == status {
			cp := *charge
			out = append(out, &cp)
		}
	}
	return out, nil
}
