package disputes

import (
	"context"
	"errors"
	"fmt"

	"github.com/yourusername/escrow-demo/models"
	"github.com/zoobzio/clockz"
	"gorm.io/gorm"
)

// GormStore persists disputes in a SQL database.
type GormStore struct {
	db    *gorm.DB
	clock clockz.Clock
}

func NewGormStore(db *gorm.DB, clock clockz.Clock) *GormStore {
	if clock == nil {
		clock = clockz.RealClock
	}
	return &GormStore{db: db, clock: clock}
}

func (s *GormStore) List(ctx context.Context) ([]*models.Dispute, error) {
	var out []*models.Dispute
	if err := s.db.WithContext(ctx).Order("created_at DESC").Order("id DESC").Find(&out).Error; err != nil {
		return nil, fmt.Errorf("list disputes: %w", err)
	}
	return out, nil
}

func (s *GormStore) Get(ctx context.Context, id string) (*models.Dispute, error) {
	return s.get(s.db.WithContext(ctx), id)
}

func (s *GormStore) get(tx *gorm.DB, id string) (*models.Dispute, error) {
	var d models.Dispute
	if err := tx.First(&d, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get dispute: %w", err)
	}
	return &d, nil
}

func (s *GormStore) Create(ctx context.Context, req CreateRequest) (*models.Dispute, error) {
	if err := req.validate(); err != nil {
		return nil, err
	}
	d, err := newDispute(req, s.clock.Now())
	if err != nil {
		return nil, err
	}
	if err := s.db.WithContext(ctx).Create(d).Error; err != nil {
		return nil, fmt.Errorf("create dispute: %w", err)
	}
	return d, nil
}

func (s *GormStore) AddEvidence(ctx context.Context, id string, evidence models.Attachment) (*models.Dispute, error) {
	if err := validateAttachment(evidence); err != nil {
		return nil, err
	}
	return s.update(ctx, id, func(d *models.Dispute) {
		addEvidence(d, evidence, s.clock.Now())
	})
}

func (s *GormStore) SetStatus(ctx context.Context, id string, status models.DisputeStatus) (*models.Dispute, error) {
	if err := checkStatus(status); err != nil {
		return nil, err
	}
	return s.update(ctx, id, func(d *models.Dispute) {
		setStatus(d, status, s.clock.Now())
	})
}

func (s *GormStore) update(ctx context.Context, id string, mutate func(*models.Dispute)) (*models.Dispute, error) {
	var out *models.Dispute
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		d, err := s.get(tx, id)
		if err != nil {
			return err
		}
		mutate(d)
		if err := tx.Save(d).Error; err != nil {
			return fmt.Errorf("save dispute: %w", err)
		}
		out = d
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}
