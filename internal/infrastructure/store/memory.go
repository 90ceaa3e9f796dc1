package store

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/autopecas/sigesync/internal/domain"
)

// MemoryStore keeps mappings in process memory. State is lost on restart.
type MemoryStore struct {
	mu   sync.RWMutex
	data map[string]domain.Mapping
}

// NewMemoryStore creates an empty in-memory mapping store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{data: make(map[string]domain.Mapping)}
}

// ListMappings returns all mappings ordered by SKU
func (s *MemoryStore) ListMappings(ctx context.Context) ([]domain.Mapping, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.Mapping, 0, len(s.data))
	for _, m := range s.data {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SKU < out[j].SKU })
	return out, nil
}

func (s *MemoryStore) GetMapping(ctx context.Context, sku string) (*domain.Mapping, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	m, ok := s.data[sku]
	if !ok {
		return nil, domain.ErrMappingNotFound
	}
	return &m, nil
}

func (s *MemoryStore) UpsertMapping(ctx context.Context, m domain.Mapping) error {
	return s.UpsertMappings(ctx, []domain.Mapping{m})
}

// UpsertMappings writes all mappings or none
func (s *MemoryStore) UpsertMappings(ctx context.Context, ms []domain.Mapping) error {
	if err := validMappings(ms); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, m := range ms {
		s.data[m.SKU] = m
	}
	return nil
}

// MergeAutomaticMappings writes ms except over Manual mappings
func (s *MemoryStore) MergeAutomaticMappings(ctx context.Context, ms []domain.Mapping) (int, error) {
	if err := validMappings(ms); err != nil {
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	written := 0
	for _, m := range ms {
		if cur, ok := s.data[m.SKU]; ok && cur.MatchType == domain.MatchManual {
			continue
		}
		s.data[m.SKU] = m
		written++
	}
	return written, nil
}

// ReplaceAllMappings swaps the store content for ms
func (s *MemoryStore) ReplaceAllMappings(ctx context.Context, ms []domain.Mapping) error {
	if err := validMappings(ms); err != nil {
		return err
	}

	data := make(map[string]domain.Mapping, len(ms))
	for _, m := range ms {
		data[m.SKU] = m
	}
	s.mu.Lock()
	s.data = data
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) DeleteMapping(ctx context.Context, sku string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.data[sku]; !ok {
		return domain.ErrMappingNotFound
	}
	delete(s.data, sku)
	return nil
}

func (s *MemoryStore) DeleteAllMappings(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data = make(map[string]domain.Mapping)
	return nil
}

func validMappings(ms []domain.Mapping) error {
	for _, m := range ms {
		if err := validMapping(m); err != nil {
			return err
		}
	}
	return nil
}

// validMapping rejects rows every backend would refuse
func validMapping(m domain.Mapping) error {
	if strings.TrimSpace(m.SKU) == "" || strings.TrimSpace(m.RemoteID) == "" || !m.MatchType.Valid() {
		return domain.ErrInvalidRequest
	}
	return nil
}
