package webhook

import (
	"context"
	"errors"
	"sync"

	"github.com/ehr/hl7bridge/pkg/pagination"
)

var ErrNotFound = errors.New("webhook: not found")

// Store persists endpoints and delivery attempts.
type Store interface {
	CreateEndpoint(ctx context.Context, ep *Endpoint) error
	GetEndpoint(ctx context.Context, tenantID, id string) (*Endpoint, error)
	ListEndpoints(ctx context.Context, tenantID string, limit, offset int) ([]*Endpoint, int, error)
	DeleteEndpoint(ctx context.Context, tenantID, id string) error
	RecordDelivery(ctx context.Context, tenantID string, attempt *DeliveryAttempt) error
	ListDeliveries(ctx context.Context, tenantID, endpointID string, limit, offset int) ([]*DeliveryAttempt, int, error)
}

// MemoryStore is a thread-safe, in-memory Store.
type MemoryStore struct {
	mu            sync.RWMutex
	endpoints     map[string]*Endpoint
	endpointOrder []string
	deliveries    []*DeliveryAttempt
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{endpoints: make(map[string]*Endpoint)}
}

func (s *MemoryStore) CreateEndpoint(_ context.Context, ep *Endpoint) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.endpoints[ep.ID] = ep
	s.endpointOrder = append(s.endpointOrder, ep.ID)
	return nil
}

func (s *MemoryStore) GetEndpoint(_ context.Context, tenantID, id string) (*Endpoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ep, ok := s.endpoints[id]
	if !ok || ep.TenantID != tenantID {
		return nil, ErrNotFound
	}
	return ep, nil
}

func (s *MemoryStore) ListEndpoints(_ context.Context, tenantID string, limit, offset int) ([]*Endpoint, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var filtered []*Endpoint
	for _, id := range s.endpointOrder {
		if ep := s.endpoints[id]; ep != nil && ep.TenantID == tenantID {
			filtered = append(filtered, ep)
		}
	}
	start, end := pagination.Window(len(filtered), limit, offset)
	return append([]*Endpoint{}, filtered[start:end]...), len(filtered), nil
}

func (s *MemoryStore) DeleteEndpoint(_ context.Context, tenantID, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	ep, ok := s.endpoints[id]
	if !ok || ep.TenantID != tenantID {
		return ErrNotFound
	}
	delete(s.endpoints, id)
	for i, eid := range s.endpointOrder {
		if eid == id {
			s.endpointOrder = append(s.endpointOrder[:i], s.endpointOrder[i+1:]...)
			break
		}
	}
	return nil
}

func (s *MemoryStore) RecordDelivery(_ context.Context, _ string, attempt *DeliveryAttempt) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deliveries = append(s.deliveries, attempt)
	return nil
}

func (s *MemoryStore) ListDeliveries(_ context.Context, _ string, endpointID string, limit, offset int) ([]*DeliveryAttempt, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var filtered []*DeliveryAttempt
	for _, d := range s.deliveries {
		if d.EndpointID == endpointID {
			filtered = append(filtered, d)
		}
	}
	start, end := pagination.Window(len(filtered), limit, offset)
	return append([]*DeliveryAttempt{}, filtered[start:end]...), len(filtered), nil
}
