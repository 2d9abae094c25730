package store

import (
	"errors"

	"gorm.io/gorm"

	"github.com/yeremiapane/pix-checkout/models"
)

// GormStore persists charges in a relational database so charge state survives
// process restarts. CompareAndTransition is a single conditional UPDATE, so the
// concurrency contract is the same as the in-memory store's.
type GormStore struct {
	db *gorm.DB
}

// NewGormStore wraps an open gorm connection. The connection should be opened
// with TranslateError enabled so duplicate keys are detectable.
func NewGormStore(db *gorm.DB) (*GormStore, error) {
	if err := db.AutoMigrate(&models.Charge{}); err != nil {
		return nil, err
	}
	return &GormStore{db: db}, nil
}

func (s *GormStore) Put(charge *models.Charge) error {
	err := s.db.Create(charge).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return ErrDuplicateKey
	}
	return err
}

func (s *GormStore) Get(txid string) (*models.Charge, error) {
	var charge models.Charge
	err := s.db.First(&charge, "tx_id = ?", txid).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &charge, nil
}

func (s *GormStore) CompareAndTransition(txid string, expected []models.ChargeStatus, next models.ChargeStatus, source models.EventSource) (*models.Charge, bool, error) {
	res := s.db.Model(&models.Charge{}).
		Where("tx_id = ? AND status IN ?", txid, expected).
		Updates(map[string]interface{}{
			"status":            next,
			"last_event_source": source,
		})
	if res.Error != nil {
		return nil, false, res.Error
	}

	charge, err := s.Get(txid)
	if err != nil {
		return nil, false, err
	}

	if res.RowsAffected > 0 {
		return charge, true, nil
	}
	if charge.Status == next {
		return charge, false, nil
	}
	return charge, false, ErrInvalidTransition
}

func (s *GormStore) ListByStatus(status models.ChargeStatus) ([]*models.Charge, error) {
	var charges []*models.Charge
	if err := s.db.Where("status = ?", status).Find(&charges).Error; err != nil {
		return nil, err
	}
	return charges, nil
}
