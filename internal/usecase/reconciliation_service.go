package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/autopecas/sigesync/internal/domain"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// syncLockKey guards sync passes against running concurrently
const syncLockKey = "sigesync:sync"

// ReconciliationConfig holds configuration for the reconciliation service
type ReconciliationConfig struct {
	Concurrency        int
	FetchTimeout       time.Duration
	BalanceCacheTTL    time.Duration
	LockTTL            time.Duration
	EnableDebugLogging bool
	Logger             logrus.FieldLogger
	Recorder           Recorder
}

// ReconciliationService links the local catalog to SIGE and reads live stock
type ReconciliationService struct {
	local    domain.LocalCatalog
	sige     domain.SIGEClient
	mappings domain.MappingRepository
	cache    domain.CacheRepository
	locker   domain.SyncLocker
	tokens   domain.TokenSource

	matcher  *MatchingService
	batch    *BatchOrchestrator
	validate *validator.Validate

	concurrency int
	cacheTTL    time.Duration
	lockTTL     time.Duration
	logger      logrus.FieldLogger
	recorder    Recorder
	now         func() time.Time
}

// Dependencies groups the collaborators of the reconciliation service
type Dependencies struct {
	Local    domain.LocalCatalog
	SIGE     domain.SIGEClient
	Mappings domain.MappingRepository
	Cache    domain.CacheRepository
	Locker   domain.SyncLocker
	Tokens   domain.TokenSource
}

// NewReconciliationService creates a new reconciliation service with dependencies
func NewReconciliationService(deps Dependencies, config ReconciliationConfig) *ReconciliationService {
	logger := config.Logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	recorder := config.Recorder
	if recorder == nil {
		recorder = nopRecorder{}
	}

	concurrency := config.Concurrency
	if concurrency <= 0 {
		concurrency = DefaultConcurrency
	}
	cacheTTL := config.BalanceCacheTTL
	if cacheTTL == 0 {
		cacheTTL = 5 * time.Minute // stock is volatile
	}
	lockTTL := config.LockTTL
	if lockTTL == 0 {
		lockTTL = 10 * time.Minute
	}

	return &ReconciliationService{
		local:    deps.Local,
		sige:     deps.SIGE,
		mappings: deps.Mappings,
		cache:    deps.Cache,
		locker:   deps.Locker,
		tokens:   deps.Tokens,
		matcher: NewMatchingService(MatchConfig{
			EnableDebugLogging: config.EnableDebugLogging,
			Logger:             logger,
		}),
		batch: NewBatchOrchestrator(deps.SIGE, BatchConfig{
			FetchTimeout: config.FetchTimeout,
			Logger:       logger,
			Recorder:     recorder,
		}),
		validate:    validator.New(),
		concurrency: concurrency,
		cacheTTL:    cacheTTL,
		lockTTL:     lockTTL,
		logger:      logger.WithField("component", "reconciliation"),
		recorder:    recorder,
		now:         time.Now,
	}
}

// ensureToken fails fast when no bearer token can be obtained
func (s *ReconciliationService) ensureToken(ctx context.Context) error {
	if s.tokens == nil {
		return nil
	}
	if _, err := s.tokens.Token(ctx); err != nil {
		if errors.Is(err, domain.ErrAuthentication) {
			return err
		}
		return fmt.Errorf("%w: %v", domain.ErrAuthentication, err)
	}
	return nil
}

// RunSync matches the whole local catalog against a fresh SIGE catalog dump and writes the
// matches to the mapping store. Manual mappings are skipped unless ClearExisting is set, in
// which case every mapping is dropped and rebuilt in one atomic write. Nothing is written when the catalog dump
// cannot be fetched or parsed. With FetchBalances the mapped items' balances are fetched in
// groups of BatchSize; opts.OnProgress and opts.OnPartial observe that phase and may be nil.
func (s *ReconciliationService) RunSync(
	ctx context.Context,
	req domain.SyncRequest,
	opts BatchOptions,
) (*domain.SyncResult, error) {
	if err := s.ensureToken(ctx); err != nil {
		s.recorder.SyncRun(SyncAuthFailed)
		return nil, err
	}

	if s.locker != nil {
		release, err := s.locker.Acquire(ctx, syncLockKey, s.lockTTL)
		if err != nil {
			s.recorder.SyncRun(SyncLocked)
			return nil, err
		}
		defer func() {
			if err := release(context.WithoutCancel(ctx)); err != nil {
				s.logger.WithError(err).Warn("[SYNC] failed to release sync lock")
			}
		}()
	}

	result := &domain.SyncResult{RunID: uuid.NewString(), StartedAt: s.now()}
	entry := s.logger.WithField("run_id", result.RunID)
	entry.WithFields(logrus.Fields{
		"clear_existing": req.ClearExisting,
		"fetch_balances": req.FetchBalances,
		"batch_size":     req.BatchSize,
	}).Info("[SYNC] started")

	locals, err := s.local.ListLocalProducts(ctx)
	if err != nil {
		s.recorder.SyncRun(SyncFailed)
		return nil, fmt.Errorf("list local products: %w", err)
	}

	remotes, err := s.sige.ListRemoteProducts(ctx, domain.RemoteProductFilter{})
	if err != nil {
		s.recorder.SyncRun(SyncFailed)
		entry.WithError(err).Error("[SYNC] SIGE catalog dump failed, nothing written")
		return nil, fmt.Errorf("fetch SIGE catalog: %w", err)
	}
	entry.WithFields(logrus.Fields{"local": len(locals), "remote": len(remotes)}).Info("[SYNC] catalogs loaded")

	skip := map[string]bool{}
	if !req.ClearExisting {
		existing, err := s.mappings.ListMappings(ctx)
		if err != nil {
			s.recorder.SyncRun(SyncFailed)
			return nil, fmt.Errorf("list mappings: %w", err)
		}
		for _, m := range existing {
			if m.MatchType == domain.MatchManual {
				skip[m.SKU] = true
			}
		}
	}

	results, err := s.matcher.MatchWithIndex(ctx, locals, NewRemoteIndex(remotes), skip)
	if err != nil {
		s.recorder.SyncRun(SyncFailed)
		return nil, err
	}
	for _, r := range results {
		s.recorder.MatchResult(r)
	}

	confirmedAt := s.now()
	toWrite := make([]domain.Mapping, 0, len(results))
	for _, r := range results {
		if !r.Matched {
			continue
		}
		toWrite = append(toWrite, domain.Mapping{
			SKU:         r.SKU,
			RemoteID:    r.RemoteID,
			Description: r.RemoteDescription,
			MatchType:   r.MatchType,
			ConfirmedAt: confirmedAt,
		})
	}

	if req.ClearExisting {
		if err := s.mappings.ReplaceAllMappings(ctx, toWrite); err != nil {
			s.recorder.SyncRun(SyncFailed)
			return nil, fmt.Errorf("replace mappings: %w", err)
		}
		result.Cleared = true
		result.Written = len(toWrite)
	} else {
		// a Manual mapping saved after the skip set was read survives the merge
		written, err := s.mappings.MergeAutomaticMappings(ctx, toWrite)
		if err != nil {
			s.recorder.SyncRun(SyncFailed)
			return nil, fmt.Errorf("write mappings: %w", err)
		}
		if written < len(toWrite) {
			entry.WithField("kept_manual", len(toWrite)-written).Warn("[SYNC] manual mappings saved during the run were kept")
		}
		result.Written = written
	}

	result.MatchSummary = domain.Summarize(results)
	result.MatchResults = results
	entry.WithFields(logrus.Fields{
		"matched":   result.Matched,
		"unmatched": result.Unmatched,
		"skipped":   result.Skipped,
		"written":   result.Written,
	}).Info("[SYNC] mappings written")

	var balanceErr error
	if req.FetchBalances {
		balanceErr = s.fetchSyncBalances(ctx, locals, req.BatchSize, opts, result)
	}

	result.FinishedAt = s.now()
	result.DurationMs = result.FinishedAt.Sub(result.StartedAt).Milliseconds()
	if balanceErr != nil {
		s.recorder.SyncRun(SyncPartial)
		entry.WithError(balanceErr).Error("[SYNC] balance phase stopped")
		return result, balanceErr
	}
	s.recorder.SyncRun(SyncSuccess)
	entry.WithField("duration_ms", result.DurationMs).Info("[SYNC] finished")
	return result, nil
}

// fetchSyncBalances reads the balance of every mapped SKU of the local catalog
func (s *ReconciliationService) fetchSyncBalances(
	ctx context.Context,
	locals []domain.LocalProduct,
	batchSize int,
	opts BatchOptions,
	result *domain.SyncResult,
) error {
	mappings, err := s.mappings.ListMappings(ctx)
	if err != nil {
		return fmt.Errorf("list mappings: %w", err)
	}
	bySKU := make(map[string]domain.Mapping, len(mappings))
	for _, m := range mappings {
		bySKU[m.SKU] = m
	}

	items := make([]domain.MatchedItem, 0, len(mappings))
	for _, l := range locals {
		m, ok := bySKU[l.SKU]
		if !ok {
			continue
		}
		items = append(items, domain.MatchedItem{
			SKU:         m.SKU,
			RemoteID:    m.RemoteID,
			Description: m.Description,
			MatchType:   m.MatchType,
		})
	}

	if batchSize <= 0 {
		batchSize = s.concurrency
	}
	opts.Concurrency = batchSize
	balances, err := s.batch.ResolveBalancesBatched(ctx, items, opts)

	for _, b := range balances {
		switch {
		case b.Balance.Found:
			result.BalanceFetched++
			s.cacheReading(ctx, b.RemoteID, b.Balance)
		case b.Balance.Error != "":
			result.BalanceFailed++
		}
		if b.Balance.Diagnostic != nil {
			result.Diagnostics++
		}
	}
	result.Balances = balances
	return err
}

// ManualMappingRequest is an operator-entered mapping
type ManualMappingRequest struct {
	SKU         string `json:"sku" validate:"required,max=128"`
	RemoteID    string `json:"remoteId" validate:"required,max=64"`
	Description string `json:"description" validate:"max=512"`
}

// SetManualMapping stores an operator-confirmed mapping, replacing any mapping of the SKU
func (s *ReconciliationService) SetManualMapping(ctx context.Context, req ManualMappingRequest) (*domain.Mapping, error) {
	req.SKU = strings.TrimSpace(req.SKU)
	req.RemoteID = strings.TrimSpace(req.RemoteID)
	if err := s.validate.Struct(req); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrInvalidRequest, err)
	}

	m := domain.Mapping{
		SKU:         req.SKU,
		RemoteID:    req.RemoteID,
		Description: strings.TrimSpace(req.Description),
		MatchType:   domain.MatchManual,
		ConfirmedAt: s.now(),
	}
	if err := s.mappings.UpsertMapping(ctx, m); err != nil {
		return nil, fmt.Errorf("save manual mapping: %w", err)
	}
	s.logger.WithFields(logrus.Fields{"sku": m.SKU, "remote_id": m.RemoteID}).Info("[MAPPING] manual mapping saved")
	return &m, nil
}

// RemoveMapping deletes the mapping of a SKU
func (s *ReconciliationService) RemoveMapping(ctx context.Context, sku string) error {
	sku = strings.TrimSpace(sku)
	if sku == "" {
		return domain.ErrInvalidRequest
	}
	if err := s.mappings.DeleteMapping(ctx, sku); err != nil {
		return err
	}
	s.logger.WithField("sku", sku).Info("[MAPPING] mapping removed")
	return nil
}

// ListMappings returns every stored mapping
func (s *ReconciliationService) ListMappings(ctx context.Context) ([]domain.Mapping, error) {
	return s.mappings.ListMappings(ctx)
}

// LookupBalance resolves the live balance of one SKU or SIGE id. The key is tried as a
// mapped SKU, then through the matching cascade against a filtered SIGE search, and finally
// as a SIGE id. Cached readings are served unless opts.Force is set. With opts.Debug every
// step is returned in the trace.
func (s *ReconciliationService) LookupBalance(ctx context.Context, key string, opts domain.LookupOptions) (*domain.LookupResult, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return nil, domain.ErrInvalidRequest
	}
	if err := s.ensureToken(ctx); err != nil {
		return nil, err
	}

	result := &domain.LookupResult{Key: key}
	entry := s.logger.WithField("key", key)
	trace := func(format string, args ...any) {
		line := fmt.Sprintf(format, args...)
		if opts.Debug {
			result.Trace = append(result.Trace, line)
		}
		entry.Debug("[LOOKUP] " + line)
	}

	if err := s.resolveLookupTarget(ctx, key, result, trace); err != nil {
		return nil, err
	}
	if result.RemoteID == "" {
		trace("no SIGE product found for %q", key)
		result.Reading = domain.FailedReading(domain.ErrRemoteNotFound)
		return result, nil
	}

	if !opts.Force {
		if cached, ok := s.cachedReading(ctx, result.RemoteID); ok {
			trace("serving cached balance fetched at %s", cached.FetchedAt.Format(time.RFC3339))
			result.Reading = cached
			result.Source = "Cache"
			return result, nil
		}
		trace("no cached balance for SIGE id %s", result.RemoteID)
	} else {
		trace("force set, bypassing cache")
	}

	reading, err := s.batch.FetchAndResolve(ctx, result.RemoteID, trace)
	if err != nil && errors.Is(err, domain.ErrAuthentication) {
		return nil, err
	}
	result.Reading = reading
	result.Source = "SIGE"
	if err == nil {
		s.cacheReading(ctx, result.RemoteID, reading)
	}
	if reading.Diagnostic != nil {
		trace("diagnostic: %s (keys: %s)", reading.Diagnostic.Message, strings.Join(reading.Diagnostic.Keys, ", "))
	}
	return result, nil
}

// resolveLookupTarget fills SKU, RemoteID and MatchType of a lookup
func (s *ReconciliationService) resolveLookupTarget(
	ctx context.Context,
	key string,
	result *domain.LookupResult,
	trace Tracer,
) error {
	m, err := s.mappings.GetMapping(ctx, key)
	switch {
	case err == nil:
		trace("stored %s mapping: SKU %q -> SIGE id %s", m.MatchType, m.SKU, m.RemoteID)
		result.SKU = m.SKU
		result.RemoteID = m.RemoteID
		result.MatchType = m.MatchType
		return nil
	case errors.Is(err, domain.ErrMappingNotFound):
		trace("no stored mapping for %q, running the matching cascade", key)
	default:
		return fmt.Errorf("get mapping: %w", err)
	}

	candidates, err := s.searchCandidates(ctx, key, trace)
	if err != nil {
		return err
	}
	trace("%d SIGE candidate row(s)", len(candidates))
	if len(candidates) > 0 {
		match := NewRemoteIndex(candidates).Match(domain.LocalProduct{SKU: key}, trace)
		if match.Matched {
			result.SKU = key
			result.RemoteID = match.RemoteID
			result.MatchType = match.MatchType
			return nil
		}
	}

	if isDigits(key) {
		trace("treating %q as a SIGE id", key)
		result.RemoteID = key
		result.MatchType = domain.MatchRemoteIDDirect
	}
	return nil
}

// searchCandidates asks SIGE for rows whose code matches the key or its base prefix
func (s *ReconciliationService) searchCandidates(ctx context.Context, key string, trace Tracer) ([]domain.RemoteProduct, error) {
	codes := []string{key}
	if base := BasePrefix(key); base != "" && base != key {
		codes = append(codes, base)
	}
	if nz := StripLeadingZeros(key); nz != "" && nz != key {
		codes = append(codes, nz)
	}

	var out []domain.RemoteProduct
	seen := map[string]bool{}
	for _, code := range codes {
		rows, err := s.sige.ListRemoteProducts(ctx, domain.RemoteProductFilter{Code: code})
		if err != nil {
			if errors.Is(err, domain.ErrAuthentication) {
				return nil, err
			}
			trace("SIGE search for code %q failed: %v", code, err)
			continue
		}
		trace("SIGE search for code %q returned %d row(s)", code, len(rows))
		for _, r := range rows {
			id := r.RemoteID + "\x00" + r.Code
			if !seen[id] {
				seen[id] = true
				out = append(out, r)
			}
		}
	}
	return out, nil
}

func isDigits(s string) bool {
	for _, c := range s {
		if c < '0' || c > '9' {
			return false
		}
	}
	return len(s) > 0
}

// balanceCacheKey builds the cache key of a SIGE id's reading.
// Format: "balance:{remoteId}"
func balanceCacheKey(remoteID string) string {
	return "balance:" + remoteID
}

// cacheReading stores a reading; cache failures are logged and ignored
func (s *ReconciliationService) cacheReading(ctx context.Context, remoteID string, reading domain.BalanceReading) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Set(ctx, balanceCacheKey(remoteID), reading, s.cacheTTL); err != nil {
		s.logger.WithError(err).WithField("remote_id", remoteID).Warn("[CACHE] failed to store balance")
	}
}

// cachedReading returns a cached reading. Cache backends hand back decoded JSON, so the
// value goes through JSON once more to become a BalanceReading.
func (s *ReconciliationService) cachedReading(ctx context.Context, remoteID string) (domain.BalanceReading, bool) {
	if s.cache == nil {
		return domain.BalanceReading{}, false
	}
	value, err := s.cache.Get(ctx, balanceCacheKey(remoteID))
	if err != nil {
		return domain.BalanceReading{}, false
	}

	var reading domain.BalanceReading
	switch v := value.(type) {
	case domain.BalanceReading:
		return v, true
	case *domain.BalanceReading:
		return *v, true
	default:
		data, err := json.Marshal(v)
		if err != nil {
			return domain.BalanceReading{}, false
		}
		if err := json.Unmarshal(data, &reading); err != nil {
			return domain.BalanceReading{}, false
		}
	}
	return reading, true
}
