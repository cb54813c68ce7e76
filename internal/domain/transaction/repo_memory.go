package transaction

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/ehr/hl7bridge/pkg/pagination"
)

// MemoryRepo keeps transactions in process. It backs the service when no
// database is configured and in tests.
type MemoryRepo struct {
	mu    sync.RWMutex
	items map[uuid.UUID]*Transaction
	order []uuid.UUID
}

func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{items: make(map[uuid.UUID]*Transaction)}
}

func (r *MemoryRepo) Create(_ context.Context, t *Transaction) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.items[t.ID] = t
	r.order = append(r.order, t.ID)
	return nil
}

func (r *MemoryRepo) GetByID(_ context.Context, tenantID string, id uuid.UUID) (*Transaction, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.items[id]
	if !ok || t.TenantID != tenantID {
		return nil, ErrNotFound
	}
	return t, nil
}

// List returns newest first.
func (r *MemoryRepo) List(_ context.Context, f Filter, limit, offset int) ([]*Transaction, int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var matched []*Transaction
	for i := len(r.order) - 1; i >= 0; i-- {
		if t := r.items[r.order[i]]; f.matches(t) {
			matched = append(matched, t)
		}
	}
	start, end := pagination.Window(len(matched), limit, offset)
	return append([]*Transaction{}, matched[start:end]...), len(matched), nil
}
