package timing

import (
	"context"
	"sync"
)

// Store is the durable mapping from order id to Record. Implementations must
// make SaveAll atomic: either every record is visible or none is.
type Store interface {
	Load(ctx context.Context) ([]Record, error)
	Save(ctx context.Context, rec Record) error
	SaveAll(ctx context.Context, recs []Record) error
	Delete(ctx context.Context, orderID string) error
}

// MemoryStore keeps records in process memory. It is the store used by tests
// and by TIMING_STORE=memory.
type MemoryStore struct {
	mu   sync.Mutex
	recs map[string]Record
}

func NewMemoryStore(seed ...Record) *MemoryStore {
	s := &MemoryStore{recs: make(map[string]Record, len(seed))}
	for _, r := range seed {
		s.recs[r.OrderID] = r
	}
	return s
}

func (s *MemoryStore) Load(ctx context.Context) ([]Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Record, 0, len(s.recs))
	for _, r := range s.recs {
		out = append(out, r)
	}
	return out, nil
}

func (s *MemoryStore) Save(ctx context.Context, rec Record) error {
	return s.SaveAll(ctx, []Record{rec})
}

func (s *MemoryStore) SaveAll(ctx context.Context, recs []Record) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range recs {
		s.recs[r.OrderID] = r
	}
	return nil
}

func (s *MemoryStore) Delete(ctx context.Context, orderID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.recs, orderID)
	return nil
}

// Get returns the persisted copy of one record.
func (s *MemoryStore) Get(orderID string) (Record, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.recs[orderID]
	return r, ok
}
