package app

import (
	"context"
	"io"
	"path/filepath"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/autopecas/sigesync/config"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

func baseConfig(t *testing.T) *config.Config {
	return &config.Config{
		Server:  config.ServerConfig{Environment: "test"},
		SIGE:    config.SIGEConfig{BaseURL: "https://sige.example.com", Token: "tok"},
		Store:   config.StoreConfig{Type: "memory"},
		Catalog: config.CatalogConfig{Type: "file", File: t.TempDir() + "/products.json"},
		Cache:   config.CacheConfig{Type: "memory"},
		Sync:    config.SyncConfig{Concurrency: 2},
		Log:     config.LogConfig{Level: "info", Format: "json"},
	}
}

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func TestBuild(t *testing.T) {
	t.Run("memory backends", func(t *testing.T) {
		a, err := Build(context.Background(), baseConfig(t), quietLogger())
		require.NoError(t, err)
		assert.NotNil(t, a.Service)
		assert.NotNil(t, a.Metrics)
		assert.NoError(t, a.Close())
	})

	t.Run("pebble store", func(t *testing.T) {
		cfg := baseConfig(t)
		cfg.Store = config.StoreConfig{Type: "pebble", PebbleDir: t.TempDir()}

		a, err := Build(context.Background(), cfg, quietLogger())
		require.NoError(t, err)
		assert.NoError(t, a.Close())
	})

	t.Run("redis cache and lock", func(t *testing.T) {
		mr := miniredis.RunT(t)
		cfg := baseConfig(t)
		cfg.Cache = config.CacheConfig{Type: "redis", RedisURL: "redis://" + mr.Addr()}

		a, err := Build(context.Background(), cfg, quietLogger())
		require.NoError(t, err)
		assert.NoError(t, a.Close())
	})

	t.Run("unreachable redis fails", func(t *testing.T) {
		mr := miniredis.RunT(t)
		addr := mr.Addr()
		mr.Close()
		cfg := baseConfig(t)
		cfg.Cache = config.CacheConfig{Type: "redis", RedisURL: "redis://" + addr}

		_, err := Build(context.Background(), cfg, quietLogger())
		assert.Error(t, err)
	})

	t.Run("unknown store type", func(t *testing.T) {
		cfg := baseConfig(t)
		cfg.Store.Type = "postgres"

		_, err := Build(context.Background(), cfg, quietLogger())
		assert.ErrorContains(t, err, "unknown store type")
	})
}

func TestMySQLOpener_OnePoolPerDSN(t *testing.T) {
	dir := t.TempDir()
	var opened []string
	a := &App{}
	open := a.mysqlOpener(func(dsn string) (*gorm.DB, error) {
		opened = append(opened, dsn)
		return gorm.Open(sqlite.Open(filepath.Join(dir, dsn)), &gorm.Config{
			Logger: gormlogger.Default.LogMode(gormlogger.Silent),
		})
	})

	store1, err := open("store.db")
	require.NoError(t, err)
	again, err := open("store.db")
	require.NoError(t, err)
	erp, err := open("erp.db")
	require.NoError(t, err)

	assert.Same(t, store1, again)
	assert.NotSame(t, store1, erp)
	assert.Equal(t, []string{"store.db", "erp.db"}, opened)
	assert.Len(t, a.closers, 2)
	require.NoError(t, a.Close())
}
