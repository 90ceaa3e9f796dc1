package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/autopecas/sigesync/internal/domain"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// DefaultConcurrency is the group size used when none is configured.
// SIGE starts throttling above a handful of parallel balance queries.
const DefaultConcurrency = 3

// CancelFlag is a cooperative stop signal checked between groups
type CancelFlag struct {
	cancelled atomic.Bool
}

// Cancel requests that no new group starts
func (c *CancelFlag) Cancel() { c.cancelled.Store(true) }

// Cancelled reports whether Cancel was called
func (c *CancelFlag) Cancelled() bool { return c != nil && c.cancelled.Load() }

// BatchOptions tunes one batched balance run
type BatchOptions struct {
	Concurrency int
	// OnProgress is called once per settled group with the number of items processed so far
	OnProgress func(done, total int)
	// OnPartial receives the accumulated results after every group. The slice is never
	// modified afterwards.
	OnPartial func(results []domain.ItemWithBalance)
	Cancel    *CancelFlag
}

// BatchConfig holds configuration for the batch orchestrator
type BatchConfig struct {
	FetchTimeout time.Duration
	Logger       logrus.FieldLogger
	Recorder     Recorder
}

// BatchOrchestrator fetches and resolves balances in sequential groups of concurrent requests
type BatchOrchestrator struct {
	fetcher      domain.BalanceFetcher
	resolver     *BalanceResolver
	fetchTimeout time.Duration
	logger       logrus.FieldLogger
	recorder     Recorder
}

// NewBatchOrchestrator creates a batch orchestrator over a balance fetcher
func NewBatchOrchestrator(fetcher domain.BalanceFetcher, config BatchConfig) *BatchOrchestrator {
	logger := config.Logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	recorder := config.Recorder
	if recorder == nil {
		recorder = nopRecorder{}
	}
	return &BatchOrchestrator{
		fetcher:      fetcher,
		resolver:     NewBalanceResolver(),
		fetchTimeout: config.FetchTimeout,
		logger:       logger.WithField("component", "batch"),
		recorder:     recorder,
	}
}

// ResolveBalancesBatched resolves one balance per item. Items are split into groups of
// opts.Concurrency; a group's items run concurrently and the next group starts only after
// the whole group settled. A failing item gets a Found=false reading and never affects the
// others. The run stops between groups when opts.Cancel is set, the context is done, or
// SIGE rejected the token; the results processed so far are returned with the error.
func (o *BatchOrchestrator) ResolveBalancesBatched(
	ctx context.Context,
	items []domain.MatchedItem,
	opts BatchOptions,
) ([]domain.ItemWithBalance, error) {
	size := opts.Concurrency
	if size <= 0 {
		size = DefaultConcurrency
	}
	total := len(items)
	results := make([]domain.ItemWithBalance, 0, total)

	for start := 0; start < total; start += size {
		if opts.Cancel.Cancelled() {
			o.logger.WithField("done", start).Info("[BATCH] cancelled before next group")
			return results, domain.ErrBatchCancelled
		}
		if err := ctx.Err(); err != nil {
			return results, fmt.Errorf("%w: %v", domain.ErrBatchCancelled, err)
		}

		end := min(start+size, total)
		group := make([]domain.ItemWithBalance, end-start)
		errs := make([]error, end-start)

		var g errgroup.Group
		for i, item := range items[start:end] {
			g.Go(func() error {
				group[i], errs[i] = o.resolveItem(ctx, item)
				return nil
			})
		}
		_ = g.Wait()

		next := make([]domain.ItemWithBalance, 0, end)
		next = append(next, results...)
		next = append(next, group...)
		results = next

		if opts.OnProgress != nil {
			opts.OnProgress(end, total)
		}
		if opts.OnPartial != nil {
			opts.OnPartial(results)
		}

		for _, err := range errs {
			if errors.Is(err, domain.ErrAuthentication) {
				o.logger.WithError(err).Error("[BATCH] SIGE rejected the token, stopping")
				return results, err
			}
		}
	}

	return results, nil
}

// resolveItem fetches and resolves one balance. The returned error is the fetch error, if
// any; it is already recorded on the reading.
func (o *BatchOrchestrator) resolveItem(ctx context.Context, item domain.MatchedItem) (domain.ItemWithBalance, error) {
	out := domain.ItemWithBalance{MatchedItem: item}
	entry := o.logger.WithFields(logrus.Fields{"sku": item.SKU, "remote_id": item.RemoteID})

	if strings.TrimSpace(item.RemoteID) == "" {
		out.Balance = domain.FailedReading(domain.ErrNoRemoteID)
		o.recorder.BalanceFetch(OutcomeUnresolved, 0)
		entry.Warn("[BATCH] no SIGE id, skipping fetch")
		return out, nil
	}

	reading, err := o.FetchAndResolve(ctx, item.RemoteID, nil)
	out.Balance = reading
	if err != nil {
		entry.WithError(err).Warn("[BATCH] balance fetch failed")
	}
	return out, err
}

// FetchAndResolve fetches one raw balance and resolves it, applying the per-fetch timeout
func (o *BatchOrchestrator) FetchAndResolve(ctx context.Context, remoteID string, trace Tracer) (domain.BalanceReading, error) {
	fetchCtx := ctx
	if o.fetchTimeout > 0 {
		var cancel context.CancelFunc
		fetchCtx, cancel = context.WithTimeout(ctx, o.fetchTimeout)
		defer cancel()
	}

	started := time.Now()
	raw, err := o.fetcher.GetRemoteBalance(fetchCtx, remoteID)
	elapsed := time.Since(started)
	if err != nil {
		o.recorder.BalanceFetch(OutcomeFetchError, elapsed)
		if trace != nil {
			trace("balance fetch for SIGE id %s failed: %v", remoteID, err)
		}
		return domain.FailedReading(err), err
	}

	reading := o.resolver.Resolve(raw, trace)
	reading.FetchedAt = time.Now()
	switch {
	case reading.Found:
		o.recorder.BalanceFetch(OutcomeFound, elapsed)
	case reading.Diagnostic != nil:
		o.recorder.BalanceFetch(OutcomeEmpty, elapsed)
		o.recorder.BalanceDiagnostic()
	default:
		o.recorder.BalanceFetch(OutcomeUnresolved, elapsed)
	}
	return reading, nil
}
