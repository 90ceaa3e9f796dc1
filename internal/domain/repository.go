package domain

import (
	"context"
	"encoding/json"
	"time"
)

// CacheRepository defines the interface for caching operations
type CacheRepository interface {
	Get(ctx context.Context, key string) (interface{}, error)
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	Exists(ctx context.Context, key string) (bool, error)
}

// RemoteCatalog lists products from the SIGE catalog
type RemoteCatalog interface {
	ListRemoteProducts(ctx context.Context, filter RemoteProductFilter) ([]RemoteProduct, error)
}

// BalanceFetcher fetches the raw stock payload of one SIGE product
type BalanceFetcher interface {
	GetRemoteBalance(ctx context.Context, remoteID string) (json.RawMessage, error)
}

// SIGEClient is the full set of SIGE operations the engine consumes
type SIGEClient interface {
	RemoteCatalog
	BalanceFetcher
}

// MappingRepository persists confirmed SKU mappings, unique on SKU.
// Batch writes are all-or-nothing: an invalid mapping fails the call without changes.
type MappingRepository interface {
	ListMappings(ctx context.Context) ([]Mapping, error)
	GetMapping(ctx context.Context, sku string) (*Mapping, error)
	UpsertMapping(ctx context.Context, m Mapping) error
	UpsertMappings(ctx context.Context, ms []Mapping) error
	// MergeAutomaticMappings upserts ms but leaves every stored Manual mapping untouched,
	// checked at write time. It returns how many mappings were written.
	MergeAutomaticMappings(ctx context.Context, ms []Mapping) (int, error)
	// ReplaceAllMappings atomically swaps the whole store for ms
	ReplaceAllMappings(ctx context.Context, ms []Mapping) error
	DeleteMapping(ctx context.Context, sku string) error
	DeleteAllMappings(ctx context.Context) error
}

// LocalCatalog lists the store's own products
type LocalCatalog interface {
	ListLocalProducts(ctx context.Context) ([]LocalProduct, error)
}

// TokenSource supplies the bearer token for a SIGE call
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// SyncLocker serialises sync passes
type SyncLocker interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (release func(context.Context) error, err error)
}
