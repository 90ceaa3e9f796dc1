// Package app builds the reconciliation service and its backends from configuration.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/autopecas/sigesync/config"
	"github.com/autopecas/sigesync/internal/domain"
	"github.com/autopecas/sigesync/internal/infrastructure/cache"
	"github.com/autopecas/sigesync/internal/infrastructure/catalog"
	"github.com/autopecas/sigesync/internal/infrastructure/lock"
	"github.com/autopecas/sigesync/internal/infrastructure/metrics"
	"github.com/autopecas/sigesync/internal/infrastructure/sige"
	"github.com/autopecas/sigesync/internal/infrastructure/store"
	"github.com/autopecas/sigesync/internal/usecase"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// App is the wired reconciliation service plus everything that must be closed on exit
type App struct {
	Service *usecase.ReconciliationService
	Metrics *metrics.Registry

	closers []io.Closer
}

// Build wires the backends selected by cfg
func Build(ctx context.Context, cfg *config.Config, logger *logrus.Logger) (*App, error) {
	a := &App{Metrics: metrics.NewRegistry()}

	tokens := sige.ContextTokenSource{Fallback: sige.StaticTokenSource(cfg.SIGE.Token)}
	client := sige.NewClient(sige.Config{
		BaseURL:       cfg.SIGE.BaseURL,
		Timeout:       cfg.SIGE.Timeout,
		RatePerSecond: cfg.SIGE.RatePerSecond,
		Burst:         cfg.SIGE.Burst,
		PageSize:      cfg.SIGE.PageSize,
		MaxAttempts:   cfg.SIGE.MaxAttempts,
		Debug:         cfg.Server.Environment == "development",
		Logger:        logger,
	}, tokens)
	if cfg.SIGE.Token == "" {
		logger.Warn("[APP] no SIGE token configured, requests must forward one")
	}

	openMySQL := a.mysqlOpener(store.OpenMySQL)

	mappings, err := a.buildStore(cfg.Store, openMySQL)
	if err != nil {
		a.Close()
		return nil, err
	}

	local, err := buildCatalog(cfg.Catalog, cfg.Store.DSN, openMySQL)
	if err != nil {
		a.Close()
		return nil, err
	}

	var (
		balanceCache domain.CacheRepository
		locker       domain.SyncLocker
	)
	switch cfg.Cache.Type {
	case "redis":
		rdb, err := cache.NewRedisClient(ctx, cfg.Cache.RedisURL)
		if err != nil {
			a.Close()
			return nil, err
		}
		a.closers = append(a.closers, rdb)
		balanceCache = cache.NewRedisCache(rdb, "sigesync:")
		locker = lock.NewRedisLocker(rdb)
	default:
		mem := cache.NewMemoryCache(time.Minute)
		a.closers = append(a.closers, mem)
		balanceCache = mem
		locker = lock.NewLocalLocker()
	}

	a.Service = usecase.NewReconciliationService(usecase.Dependencies{
		Local:    local,
		SIGE:     client,
		Mappings: mappings,
		Cache:    balanceCache,
		Locker:   locker,
		Tokens:   tokens,
	}, usecase.ReconciliationConfig{
		Concurrency:        cfg.Sync.Concurrency,
		FetchTimeout:       cfg.Sync.FetchTimeout,
		BalanceCacheTTL:    cfg.Cache.BalanceTTL,
		LockTTL:            cfg.Sync.LockTTL,
		EnableDebugLogging: cfg.Log.Level == "debug",
		Logger:             logger,
		Recorder:           a.Metrics,
	})

	logger.WithFields(logrus.Fields{
		"store":   cfg.Store.Type,
		"catalog": cfg.Catalog.Type,
		"cache":   cfg.Cache.Type,
		"sige":    cfg.SIGE.BaseURL,
	}).Info("[APP] reconciliation service ready")

	return a, nil
}

// mysqlOpener opens one pool per DSN and registers it for Close
func (a *App) mysqlOpener(open func(string) (*gorm.DB, error)) func(string) (*gorm.DB, error) {
	pools := make(map[string]*gorm.DB)
	return func(dsn string) (*gorm.DB, error) {
		if db, ok := pools[dsn]; ok {
			return db, nil
		}
		db, err := open(dsn)
		if err != nil {
			return nil, err
		}
		pools[dsn] = db
		if sqlDB, err := db.DB(); err == nil {
			a.closers = append(a.closers, sqlDB)
		}
		return db, nil
	}
}

func (a *App) buildStore(cfg config.StoreConfig, openMySQL func(string) (*gorm.DB, error)) (domain.MappingRepository, error) {
	switch cfg.Type {
	case "mysql":
		db, err := openMySQL(cfg.DSN)
		if err != nil {
			return nil, fmt.Errorf("open mapping store: %w", err)
		}
		s, err := store.NewGormStore(db)
		if err != nil {
			return nil, fmt.Errorf("migrate mapping store: %w", err)
		}
		return s, nil
	case "pebble":
		s, err := store.OpenPebbleStore(cfg.PebbleDir)
		if err != nil {
			return nil, fmt.Errorf("open mapping store: %w", err)
		}
		a.closers = append(a.closers, s)
		return s, nil
	case "memory", "":
		return store.NewMemoryStore(), nil
	}
	return nil, fmt.Errorf("unknown store type %q", cfg.Type)
}

func buildCatalog(cfg config.CatalogConfig, storeDSN string, openMySQL func(string) (*gorm.DB, error)) (domain.LocalCatalog, error) {
	switch cfg.Type {
	case "mysql":
		dsn := cfg.DSN
		if dsn == "" {
			dsn = storeDSN
		}
		db, err := openMySQL(dsn)
		if err != nil {
			return nil, fmt.Errorf("open local catalog: %w", err)
		}
		return catalog.NewGormCatalog(db, cfg.Table), nil
	case "file", "":
		return catalog.NewFileCatalog(cfg.File), nil
	}
	return nil, fmt.Errorf("unknown catalog type %q", cfg.Type)
}

// Close releases every backend in reverse order of creation
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i].Close(); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
