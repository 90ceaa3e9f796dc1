package usecase

import (
	"context"
	"fmt"
	"strings"

	"github.com/autopecas/sigesync/internal/domain"
	"github.com/sirupsen/logrus"
)

// MatchConfig holds configuration for the matching service
type MatchConfig struct {
	EnableDebugLogging bool
	Logger             logrus.FieldLogger
}

// MatchingService links local SKUs to SIGE catalog rows through a fixed cascade of strategies
type MatchingService struct {
	enableDebugLogging bool
	logger             logrus.FieldLogger
}

// NewMatchingService creates a new matching service with the given configuration
func NewMatchingService(config MatchConfig) *MatchingService {
	logger := config.Logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &MatchingService{
		enableDebugLogging: config.EnableDebugLogging,
		logger:             logger.WithField("component", "matcher"),
	}
}

// Tracer receives one line per cascade step
type Tracer func(format string, args ...any)

// RemoteIndex holds lookup tables over one SIGE catalog snapshot.
// When several rows share a key the first row in catalog order owns it.
type RemoteIndex struct {
	byCode    map[string]*domain.RemoteProduct
	byClean   map[string]*domain.RemoteProduct
	byNoZeros map[string]*domain.RemoteProduct
	byID      map[string]*domain.RemoteProduct
	size      int
}

// NewRemoteIndex builds the lookup tables for a catalog snapshot. Rows without a SIGE id
// cannot back a mapping and are left out.
func NewRemoteIndex(remotes []domain.RemoteProduct) *RemoteIndex {
	idx := &RemoteIndex{
		byCode:    make(map[string]*domain.RemoteProduct, len(remotes)),
		byClean:   make(map[string]*domain.RemoteProduct, len(remotes)),
		byNoZeros: make(map[string]*domain.RemoteProduct, len(remotes)),
		byID:      make(map[string]*domain.RemoteProduct, len(remotes)),
	}
	for i := range remotes {
		r := &remotes[i]
		if strings.TrimSpace(r.RemoteID) == "" {
			continue
		}
		idx.size++
		putFirst(idx.byCode, r.Code, r)
		putFirst(idx.byClean, CleanCode(r.Code), r)
		putFirst(idx.byNoZeros, NoZerosKey(r.Code), r)
		putFirst(idx.byID, r.RemoteID, r)
	}
	return idx
}

func putFirst(m map[string]*domain.RemoteProduct, key string, r *domain.RemoteProduct) {
	if key == "" {
		return
	}
	if _, exists := m[key]; !exists {
		m[key] = r
	}
}

// Size returns the number of catalog rows indexed
func (idx *RemoteIndex) Size() int { return idx.size }

// strategy is one step of the cascade: it derives a key from the SKU and looks it up in one table
type strategy struct {
	matchType domain.MatchType
	key       func(sku string) string
	table     func(idx *RemoteIndex) map[string]*domain.RemoteProduct
}

// codeStrategies compare against the product code; they also run on the base prefix of a variant SKU
var codeStrategies = []strategy{
	{
		matchType: domain.MatchExactCode,
		key:       func(sku string) string { return sku },
		table:     func(idx *RemoteIndex) map[string]*domain.RemoteProduct { return idx.byCode },
	},
	{
		matchType: domain.MatchNormalizedCode,
		key:       CleanCode,
		table:     func(idx *RemoteIndex) map[string]*domain.RemoteProduct { return idx.byClean },
	},
	{
		matchType: domain.MatchNoLeadingZeros,
		key:       NoZerosKey,
		table:     func(idx *RemoteIndex) map[string]*domain.RemoteProduct { return idx.byNoZeros },
	},
}

var remoteIDStrategy = strategy{
	matchType: domain.MatchRemoteIDDirect,
	key:       func(sku string) string { return sku },
	table:     func(idx *RemoteIndex) map[string]*domain.RemoteProduct { return idx.byID },
}

func (s strategy) lookup(idx *RemoteIndex, sku string, trace Tracer) *domain.RemoteProduct {
	key := s.key(sku)
	if key == "" {
		trace("%s: empty key for %q, skipped", s.matchType, sku)
		return nil
	}
	r := s.table(idx)[key]
	if r == nil {
		trace("%s: no SIGE row for key %q", s.matchType, key)
		return nil
	}
	trace("%s: key %q hit SIGE id %s (code %q)", s.matchType, key, r.RemoteID, r.Code)
	return r
}

// Match runs the cascade for one local product. Precedence is ExactCode, NormalizedCode,
// NoLeadingZeros, RemoteIdDirect, then BaseBeforeDash. The base prefix is looked up with the
// code strategies in the same order: a verbatim hit is BaseBeforeDash, a hit that needed
// normalisation keeps the normalising strategy's type and sets ViaBasePrefix.
func (idx *RemoteIndex) Match(local domain.LocalProduct, trace Tracer) domain.MatchResult {
	if trace == nil {
		trace = func(string, ...any) {}
	}
	result := domain.MatchResult{SKU: local.SKU, LocalTitle: local.Title}

	for _, s := range codeStrategies {
		if r := s.lookup(idx, local.SKU, trace); r != nil {
			return matched(result, r, s.matchType, false)
		}
	}
	if r := remoteIDStrategy.lookup(idx, local.SKU, trace); r != nil {
		return matched(result, r, remoteIDStrategy.matchType, false)
	}

	base := BasePrefix(local.SKU)
	if base == "" || base == local.SKU {
		trace("%s: SKU %q has no variant suffix", domain.MatchBaseBeforeDash, local.SKU)
		trace("no strategy matched %q", local.SKU)
		return result
	}
	trace("%s: probing base prefix %q", domain.MatchBaseBeforeDash, base)
	for _, s := range codeStrategies {
		if r := s.lookup(idx, base, trace); r != nil {
			if s.matchType == domain.MatchExactCode {
				return matched(result, r, domain.MatchBaseBeforeDash, true)
			}
			return matched(result, r, s.matchType, true)
		}
	}

	trace("no strategy matched %q", local.SKU)
	return result
}

func matched(result domain.MatchResult, r *domain.RemoteProduct, mt domain.MatchType, viaBase bool) domain.MatchResult {
	result.Matched = true
	result.RemoteID = r.RemoteID
	result.RemoteCode = r.Code
	result.RemoteDescription = r.Description
	result.MatchType = mt
	result.ViaBasePrefix = viaBase
	return result
}

// Match produces one result per local product, in local catalog order.
// It has no side effects; callers persist the results.
func (s *MatchingService) Match(
	ctx context.Context,
	locals []domain.LocalProduct,
	remotes []domain.RemoteProduct,
) ([]domain.MatchResult, error) {
	idx := NewRemoteIndex(remotes)
	return s.MatchWithIndex(ctx, locals, idx, nil)
}

// MatchWithIndex matches against a prebuilt index. SKUs in skip are reported as skipped
// without running the cascade.
func (s *MatchingService) MatchWithIndex(
	ctx context.Context,
	locals []domain.LocalProduct,
	idx *RemoteIndex,
	skip map[string]bool,
) ([]domain.MatchResult, error) {
	results := make([]domain.MatchResult, 0, len(locals))
	for _, local := range locals {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		if skip[local.SKU] {
			results = append(results, domain.MatchResult{SKU: local.SKU, LocalTitle: local.Title, Skipped: true})
			if s.enableDebugLogging {
				s.logger.WithField("sku", local.SKU).Debug("[MATCH] skipped, manual mapping exists")
			}
			continue
		}

		var trace Tracer
		if s.enableDebugLogging {
			entry := s.logger.WithField("sku", local.SKU)
			trace = func(format string, args ...any) {
				entry.Debug("[MATCH] " + fmt.Sprintf(format, args...))
			}
		}
		results = append(results, idx.Match(local, trace))
	}

	if s.enableDebugLogging {
		summary := domain.Summarize(results)
		s.logger.WithFields(logrus.Fields{
			"total":     summary.TotalResults,
			"matched":   summary.Matched,
			"unmatched": summary.Unmatched,
			"skipped":   summary.Skipped,
		}).Debug("[MATCH] pass complete")
	}
	return results, nil
}
