package disputes

import (
	"context"
	"sync"

	"github.com/yourusername/escrow-demo/models"
	"github.com/zoobzio/clockz"
)

// MemoryStore keeps disputes in process memory. Records are lost on restart.
type MemoryStore struct {
	mu    sync.RWMutex
	clock clockz.Clock
	items []*models.Dispute
	byID  map[string]*models.Dispute
}

func NewMemoryStore(clock clockz.Clock) *MemoryStore {
	if clock == nil {
		clock = clockz.RealClock
	}
	return &MemoryStore{clock: clock, byID: make(map[string]*models.Dispute)}
}

// List returns copies of every dispute, newest first.
func (s *MemoryStore) List(ctx context.Context) ([]*models.Dispute, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*models.Dispute, 0, len(s.items))
	for i := len(s.items) - 1; i >= 0; i-- {
		out = append(out, s.items[i].Clone())
	}
	return out, nil
}

func (s *MemoryStore) Get(ctx context.Context, id string) (*models.Dispute, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	d, ok := s.byID[id]
	if !ok {
		return nil, ErrNotFound
	}
	return d.Clone(), nil
}

func (s *MemoryStore) Create(ctx context.Context, req CreateRequest) (*models.Dispute, error) {
	if err := req.validate(); err != nil {
		return nil, err
	}
	d, err := newDispute(req, s.clock.Now())
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items = append(s.items, d)
	s.byID[d.ID] = d
	return d.Clone(), nil
}

func (s *MemoryStore) AddEvidence(ctx context.Context, id string, evidence models.Attachment) (*models.Dispute, error) {
	if err := validateAttachment(evidence); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.byID[id]
	if !ok {
		return nil, ErrNotFound
	}
	addEvidence(d, evidence, s.clock.Now())
	return d.Clone(), nil
}

func (s *MemoryStore) SetStatus(ctx context.Context, id string, status models.DisputeStatus) (*models.Dispute, error) {
	if err := checkStatus(status); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.byID[id]
	if !ok {
		return nil, ErrNotFound
	}
	setStatus(d, status, s.clock.Now())
	return d.Clone(), nil
}
