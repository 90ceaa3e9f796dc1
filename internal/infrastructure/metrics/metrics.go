package metrics

import (
	"net/http"
	"time"

	"github.com/autopecas/sigesync/internal/domain"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry exposes reconciliation metrics and implements usecase.Recorder
type Registry struct {
	registry *prometheus.Registry

	syncRuns      *prometheus.CounterVec
	matchResults  *prometheus.CounterVec
	balanceFetch  *prometheus.CounterVec
	fetchDuration prometheus.Histogram
	diagnostics   prometheus.Counter
}

// NewRegistry creates a registry with the engine metrics plus Go and process collectors
func NewRegistry() *Registry {
	r := &Registry{
		registry: prometheus.NewRegistry(),
		syncRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sigesync_sync_runs_total",
			Help: "Sync passes by outcome.",
		}, []string{"outcome"}),
		matchResults: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sigesync_match_results_total",
			Help: "Matching cascade results by match type; unmatched and skipped SKUs use those labels.",
		}, []string{"match_type"}),
		balanceFetch: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sigesync_balance_fetch_total",
			Help: "SIGE balance fetches by outcome.",
		}, []string{"outcome"}),
		fetchDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "sigesync_balance_fetch_seconds",
			Help:    "Latency of SIGE balance fetches.",
			Buckets: prometheus.DefBuckets,
		}),
		diagnostics: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sigesync_balance_diagnostics_total",
			Help: "Balance payloads without any known quantity field.",
		}),
	}

	r.registry.MustRegister(
		r.syncRuns,
		r.matchResults,
		r.balanceFetch,
		r.fetchDuration,
		r.diagnostics,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return r
}

func (r *Registry) SyncRun(outcome string) {
	r.syncRuns.WithLabelValues(outcome).Inc()
}

func (r *Registry) MatchResult(result domain.MatchResult) {
	label := string(result.MatchType)
	switch {
	case result.Skipped:
		label = "skipped"
	case !result.Matched:
		label = "unmatched"
	}
	r.matchResults.WithLabelValues(label).Inc()
}

func (r *Registry) BalanceFetch(outcome string, elapsed time.Duration) {
	r.balanceFetch.WithLabelValues(outcome).Inc()
	if elapsed > 0 {
		r.fetchDuration.Observe(elapsed.Seconds())
	}
}

func (r *Registry) BalanceDiagnostic() {
	r.diagnostics.Inc()
}

// Handler serves the registry in the Prometheus exposition format
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{Registry: r.registry})
}
