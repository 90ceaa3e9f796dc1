package usecase

import (
	"time"

	"github.com/autopecas/sigesync/internal/domain"
)

// Balance fetch outcomes reported to a Recorder
const (
	OutcomeFound      = "found"
	OutcomeEmpty      = "empty"
	OutcomeUnresolved = "unresolved"
	OutcomeFetchError = "fetch_error"
)

// Sync run outcomes reported to a Recorder
const (
	SyncSuccess    = "success"
	SyncPartial    = "partial"
	SyncFailed     = "failed"
	SyncLocked     = "locked"
	SyncAuthFailed = "auth_failed"
)

// Recorder receives engine events for metrics
type Recorder interface {
	SyncRun(outcome string)
	MatchResult(result domain.MatchResult)
	BalanceFetch(outcome string, elapsed time.Duration)
	BalanceDiagnostic()
}

type nopRecorder struct{}

func (nopRecorder) SyncRun(string) {}
func (nopRecorder) MatchResult(domain.MatchResult) {}
func (nopRecorder) BalanceFetch(string, time.Duration) {}
func (nopRecorder) BalanceDiagnostic() {}
