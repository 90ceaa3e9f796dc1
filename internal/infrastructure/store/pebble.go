package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/autopecas/sigesync/internal/domain"
	"github.com/cockroachdb/pebble"
)

// mappingPrefix namespaces mapping keys; pebble iterates keys in byte order so listings
// come back sorted by SKU
var mappingPrefix = []byte("mapping/")

// PebbleStore persists mappings in an embedded pebble database for single-node deployments
type PebbleStore struct {
	db *pebble.DB
	// mu serializes writers so a merge's read of Manual rows holds until its commit
	mu sync.Mutex
}

// OpenPebbleStore opens, creating if needed, the database under dir
func OpenPebbleStore(dir string) (*PebbleStore, error) {
	db, err := pebble.Open(dir, &pebble.Options{})
	if err != nil {
		return nil, fmt.Errorf("open pebble at %s: %w", dir, err)
	}
	return &PebbleStore{db: db}, nil
}

// Close flushes and closes the database
func (s *PebbleStore) Close() error {
	return s.db.Close()
}

func mappingKey(sku string) []byte {
	return append(append([]byte{}, mappingPrefix...), sku...)
}

// prefixUpperBound returns the first key past every key starting with prefix
func prefixUpperBound(prefix []byte) []byte {
	end := append([]byte{}, prefix...)
	for i := len(end) - 1; i >= 0; i-- {
		end[i]++
		if end[i] != 0 {
			return end[:i+1]
		}
	}
	return nil
}

func (s *PebbleStore) ListMappings(ctx context.Context) ([]domain.Mapping, error) {
	iter, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: mappingPrefix,
		UpperBound: prefixUpperBound(mappingPrefix),
	})
	if err != nil {
		return nil, fmt.Errorf("list mappings: %w", err)
	}
	defer iter.Close()

	var out []domain.Mapping
	for iter.First(); iter.Valid(); iter.Next() {
		var m domain.Mapping
		if err := json.Unmarshal(iter.Value(), &m); err != nil {
			return nil, fmt.Errorf("decode mapping %q: %w", iter.Key(), err)
		}
		out = append(out, m)
	}
	if err := iter.Error(); err != nil {
		return nil, fmt.Errorf("list mappings: %w", err)
	}
	return out, nil
}

func (s *PebbleStore) GetMapping(ctx context.Context, sku string) (*domain.Mapping, error) {
	value, closer, err := s.db.Get(mappingKey(sku))
	if errors.Is(err, pebble.ErrNotFound) {
		return nil, domain.ErrMappingNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get mapping: %w", err)
	}
	defer closer.Close()

	var m domain.Mapping
	if err := json.Unmarshal(value, &m); err != nil {
		return nil, fmt.Errorf("decode mapping %q: %w", sku, err)
	}
	return &m, nil
}

func (s *PebbleStore) UpsertMapping(ctx context.Context, m domain.Mapping) error {
	return s.UpsertMappings(ctx, []domain.Mapping{m})
}

// UpsertMappings writes all mappings in one atomic batch
func (s *PebbleStore) UpsertMappings(ctx context.Context, ms []domain.Mapping) error {
	if len(ms) == 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	batch := s.db.NewBatch()
	defer batch.Close()
	if err := setMappings(batch, ms); err != nil {
		return err
	}
	if err := batch.Commit(pebble.Sync); err != nil {
		return fmt.Errorf("commit mappings: %w", err)
	}
	return nil
}

func setMappings(batch *pebble.Batch, ms []domain.Mapping) error {
	for _, m := range ms {
		if err := validMapping(m); err != nil {
			return err
		}
		value, err := json.Marshal(m)
		if err != nil {
			return err
		}
		if err := batch.Set(mappingKey(m.SKU), value, nil); err != nil {
			return fmt.Errorf("upsert mapping %q: %w", m.SKU, err)
		}
	}
	return nil
}

// MergeAutomaticMappings writes ms in one batch, leaving skus stored as Manual untouched
func (s *PebbleStore) MergeAutomaticMappings(ctx context.Context, ms []domain.Mapping) (int, error) {
	if len(ms) == 0 {
		return 0, nil
	}
	if err := validMappings(ms); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	keep := make([]domain.Mapping, 0, len(ms))
	for _, m := range ms {
		existing, err := s.GetMapping(ctx, m.SKU)
		switch {
		case errors.Is(err, domain.ErrMappingNotFound):
		case err != nil:
			return 0, err
		case existing.MatchType == domain.MatchManual:
			continue
		}
		keep = append(keep, m)
	}
	if len(keep) == 0 {
		return 0, nil
	}

	batch := s.db.NewBatch()
	defer batch.Close()
	if err := setMappings(batch, keep); err != nil {
		return 0, err
	}
	if err := batch.Commit(pebble.Sync); err != nil {
		return 0, fmt.Errorf("commit mappings: %w", err)
	}
	return len(keep), nil
}

// ReplaceAllMappings clears the mapping range and writes ms in the same batch
func (s *PebbleStore) ReplaceAllMappings(ctx context.Context, ms []domain.Mapping) error {
	if err := validMappings(ms); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	batch := s.db.NewBatch()
	defer batch.Close()
	if err := batch.DeleteRange(mappingPrefix, prefixUpperBound(mappingPrefix), nil); err != nil {
		return fmt.Errorf("delete all mappings: %w", err)
	}
	if err := setMappings(batch, ms); err != nil {
		return err
	}
	if err := batch.Commit(pebble.Sync); err != nil {
		return fmt.Errorf("commit mappings: %w", err)
	}
	return nil
}

func (s *PebbleStore) DeleteMapping(ctx context.Context, sku string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.GetMapping(ctx, sku); err != nil {
		return err
	}
	if err := s.db.Delete(mappingKey(sku), pebble.Sync); err != nil {
		return fmt.Errorf("delete mapping: %w", err)
	}
	return nil
}

func (s *PebbleStore) DeleteAllMappings(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.db.DeleteRange(mappingPrefix, prefixUpperBound(mappingPrefix), pebble.Sync); err != nil {
		return fmt.Errorf("delete all mappings: %w", err)
	}
	return nil
}
