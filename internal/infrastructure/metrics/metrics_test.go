package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/autopecas/sigesync/internal/domain"
	"github.com/autopecas/sigesync/internal/usecase"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var _ usecase.Recorder = (*Registry)(nil)

func TestRegistry_Counters(t *testing.T) {
	r := NewRegistry()

	r.SyncRun("success")
	r.SyncRun("success")
	r.SyncRun("locked")
	r.MatchResult(domain.MatchResult{Matched: true, MatchType: domain.MatchExactCode})
	r.MatchResult(domain.MatchResult{Matched: false})
	r.MatchResult(domain.MatchResult{Skipped: true})
	r.BalanceFetch(usecase.OutcomeFound, 20*time.Millisecond)
	r.BalanceFetch(usecase.OutcomeUnresolved, 0)
	r.BalanceDiagnostic()

	assert.Equal(t, 2.0, testutil.ToFloat64(r.syncRuns.WithLabelValues("success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.syncRuns.WithLabelValues("locked")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.matchResults.WithLabelValues("ExactCode")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.matchResults.WithLabelValues("unmatched")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.matchResults.WithLabelValues("skipped")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.balanceFetch.WithLabelValues("found")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.diagnostics))
	assert.Equal(t, 1, testutil.CollectAndCount(r.fetchDuration), "one histogram series")
}

func TestRegistry_Handler(t *testing.T) {
	r := NewRegistry()
	r.SyncRun("success")

	srv := httptest.NewServer(r.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), `sigesync_sync_runs_total{outcome="success"} 1`)
	assert.Contains(t, string(body), "go_goroutines")
}
