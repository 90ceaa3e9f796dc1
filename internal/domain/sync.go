package domain

import "time"

// SyncRequest holds the options of one sync pass
type SyncRequest struct {
	ClearExisting bool `json:"clearExisting"`
	FetchBalances bool `json:"fetchBalances"`
	BatchSize     int  `json:"batchSize"`
}

// SyncResult reports the outcome of one sync pass
type SyncResult struct {
	RunID      string    `json:"runId"`
	StartedAt  time.Time `json:"startedAt"`
	FinishedAt time.Time `json:"finishedAt"`
	DurationMs int64     `json:"durationMs"`

	MatchSummary
	MatchResults []MatchResult `json:"matchResults"`
	Written      int           `json:"written"`
	Cleared      bool          `json:"cleared"`

	BalanceFetched int               `json:"balanceFetched"`
	BalanceFailed  int               `json:"balanceFailed"`
	Diagnostics    int               `json:"diagnostics"`
	Balances       []ItemWithBalance `json:"balances,omitempty"`
}

// LookupOptions controls a single-item balance lookup
type LookupOptions struct {
	Force bool `json:"force"`
	Debug bool `json:"debug"`
}

// LookupResult is the outcome of a single-item balance lookup
type LookupResult struct {
	Key       string         `json:"key"`
	SKU       string         `json:"sku,omitempty"`
	RemoteID  string         `json:"remoteId,omitempty"`
	MatchType MatchType      `json:"matchType,omitempty"`
	Source    string         `json:"source,omitempty"` // "SIGE" or "Cache"
	Reading   BalanceReading `json:"reading"`
	Trace     []string       `json:"trace,omitempty"`
}
