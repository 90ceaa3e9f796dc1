package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/autopecas/sigesync/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newSQLiteStore(t *testing.T) *GormStore {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "mappings.db")), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	s, err := NewGormStore(db)
	require.NoError(t, err)
	return s
}

func newPebbleStore(t *testing.T) *PebbleStore {
	t.Helper()
	s, err := OpenPebbleStore(filepath.Join(t.TempDir(), "pebble"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func backends(t *testing.T) map[string]domain.MappingRepository {
	return map[string]domain.MappingRepository{
		"memory": NewMemoryStore(),
		"gorm":   newSQLiteStore(t),
		"pebble": newPebbleStore(t),
	}
}

func mapping(sku, remoteID string, mt domain.MatchType) domain.Mapping {
	return domain.Mapping{
		SKU:         sku,
		RemoteID:    remoteID,
		Description: "desc " + sku,
		MatchType:   mt,
		ConfirmedAt: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}
}

func TestMappingRepository_Contract(t *testing.T) {
	for name, repo := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			all, err := repo.ListMappings(ctx)
			require.NoError(t, err)
			assert.Empty(t, all)

			_, err = repo.GetMapping(ctx, "ABC-1")
			assert.ErrorIs(t, err, domain.ErrMappingNotFound)

			require.NoError(t, repo.UpsertMappings(ctx, []domain.Mapping{
				mapping("B-2", "20", domain.MatchExactCode),
				mapping("A-1", "10", domain.MatchNormalizedCode),
			}))
			require.NoError(t, repo.UpsertMapping(ctx, mapping("C-3", "30", domain.MatchManual)))

			all, err = repo.ListMappings(ctx)
			require.NoError(t, err)
			require.Len(t, all, 3)
			assert.Equal(t, []string{"A-1", "B-2", "C-3"}, []string{all[0].SKU, all[1].SKU, all[2].SKU})

			got, err := repo.GetMapping(ctx, "C-3")
			require.NoError(t, err)
			assert.Equal(t, "30", got.RemoteID)
			assert.Equal(t, domain.MatchManual, got.MatchType)
			assert.Equal(t, "desc C-3", got.Description)
			assert.WithinDuration(t, time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC), got.ConfirmedAt, time.Second)

			// one mapping per SKU: an upsert replaces
			require.NoError(t, repo.UpsertMapping(ctx, mapping("A-1", "99", domain.MatchManual)))
			got, err = repo.GetMapping(ctx, "A-1")
			require.NoError(t, err)
			assert.Equal(t, "99", got.RemoteID)
			assert.Equal(t, domain.MatchManual, got.MatchType)
			all, _ = repo.ListMappings(ctx)
			assert.Len(t, all, 3)

			require.NoError(t, repo.DeleteMapping(ctx, "B-2"))
			assert.ErrorIs(t, repo.DeleteMapping(ctx, "B-2"), domain.ErrMappingNotFound)

			require.NoError(t, repo.DeleteAllMappings(ctx))
			all, err = repo.ListMappings(ctx)
			require.NoError(t, err)
			assert.Empty(t, all)
		})
	}
}

func TestMappingRepository_RejectsInvalid(t *testing.T) {
	invalid := []domain.Mapping{
		{SKU: "", RemoteID: "1", MatchType: domain.MatchManual},
		{SKU: "A", RemoteID: " ", MatchType: domain.MatchManual},
		{SKU: "A", RemoteID: "1", MatchType: "Fuzzy"},
	}
	for name, repo := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			for _, m := range invalid {
				err := repo.UpsertMappings(ctx, []domain.Mapping{mapping("OK", "1", domain.MatchExactCode), m})
				assert.ErrorIs(t, err, domain.ErrInvalidRequest)
			}
			all, err := repo.ListMappings(ctx)
			require.NoError(t, err)
			assert.Empty(t, all, "a rejected batch writes nothing")
		})
	}
}

func TestMappingRepository_MergeAutomaticKeepsManual(t *testing.T) {
	for name, repo := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			require.NoError(t, repo.UpsertMappings(ctx, []domain.Mapping{
				mapping("ABC-1", "9", domain.MatchManual),
				mapping("B-2", "20", domain.MatchExactCode),
			}))

			written, err := repo.MergeAutomaticMappings(ctx, []domain.Mapping{
				mapping("ABC-1", "1", domain.MatchExactCode),
				mapping("B-2", "21", domain.MatchNormalizedCode),
				mapping("C-3", "30", domain.MatchBaseBeforeDash),
			})
			require.NoError(t, err)
			assert.Equal(t, 2, written)

			got, err := repo.GetMapping(ctx, "ABC-1")
			require.NoError(t, err)
			assert.Equal(t, "9", got.RemoteID)
			assert.Equal(t, domain.MatchManual, got.MatchType)

			got, err = repo.GetMapping(ctx, "B-2")
			require.NoError(t, err)
			assert.Equal(t, "21", got.RemoteID)
			assert.Equal(t, domain.MatchNormalizedCode, got.MatchType)

			_, err = repo.GetMapping(ctx, "C-3")
			assert.NoError(t, err)

			written, err = repo.MergeAutomaticMappings(ctx, nil)
			require.NoError(t, err)
			assert.Zero(t, written)
		})
	}
}

func TestMappingRepository_ReplaceAll(t *testing.T) {
	for name, repo := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			require.NoError(t, repo.UpsertMappings(ctx, []domain.Mapping{
				mapping("ABC-1", "9", domain.MatchManual),
				mapping("B-2", "20", domain.MatchExactCode),
			}))

			require.NoError(t, repo.ReplaceAllMappings(ctx, []domain.Mapping{
				mapping("C-3", "30", domain.MatchExactCode),
			}))
			all, err := repo.ListMappings(ctx)
			require.NoError(t, err)
			require.Len(t, all, 1)
			assert.Equal(t, "C-3", all[0].SKU)

			require.NoError(t, repo.ReplaceAllMappings(ctx, nil))
			all, err = repo.ListMappings(ctx)
			require.NoError(t, err)
			assert.Empty(t, all)
		})
	}
}

func TestMappingRepository_ReplaceAllRejectedBatchKeepsRows(t *testing.T) {
	for name, repo := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			require.NoError(t, repo.UpsertMapping(ctx, mapping("ABC-1", "9", domain.MatchManual)))

			err := repo.ReplaceAllMappings(ctx, []domain.Mapping{
				mapping("C-3", "30", domain.MatchExactCode),
				{SKU: "D-4", RemoteID: "", MatchType: domain.MatchExactCode},
			})
			assert.ErrorIs(t, err, domain.ErrInvalidRequest)

			all, err := repo.ListMappings(ctx)
			require.NoError(t, err)
			require.Len(t, all, 1)
			assert.Equal(t, "ABC-1", all[0].SKU)
			assert.Equal(t, "9", all[0].RemoteID)
		})
	}
}

func TestPebbleStore_Reopen(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "pebble")
	ctx := context.Background()

	s, err := OpenPebbleStore(dir)
	require.NoError(t, err)
	require.NoError(t, s.UpsertMapping(ctx, mapping("ABC-1", "7", domain.MatchManual)))
	require.NoError(t, s.Close())

	s, err = OpenPebbleStore(dir)
	require.NoError(t, err)
	defer s.Close()

	got, err := s.GetMapping(ctx, "ABC-1")
	require.NoError(t, err)
	assert.Equal(t, "7", got.RemoteID)
}

func TestPrefixUpperBound(t *testing.T) {
	assert.Equal(t, []byte("mapping0"), prefixUpperBound([]byte("mapping/")))
	assert.Equal(t, []byte{0x02}, prefixUpperBound([]byte{0x01, 0xff}))
	assert.Nil(t, prefixUpperBound([]byte{0xff}))
}
