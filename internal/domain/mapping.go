package domain

import "time"

// MatchType identifies the strategy that linked a local SKU to a SIGE product
type MatchType string

const (
	MatchExactCode      MatchType = "ExactCode"
	MatchNormalizedCode MatchType = "NormalizedCode"
	MatchNoLeadingZeros MatchType = "NoLeadingZeros"
	MatchRemoteIDDirect MatchType = "RemoteIdDirect"
	MatchBaseBeforeDash MatchType = "BaseBeforeDash"
	MatchManual         MatchType = "Manual"
)

// IsAutomatic reports whether the match type was produced by a sync pass
func (m MatchType) IsAutomatic() bool {
	switch m {
	case MatchExactCode, MatchNormalizedCode, MatchNoLeadingZeros, MatchRemoteIDDirect, MatchBaseBeforeDash:
		return true
	}
	return false
}

// Valid reports whether m is a known match type
func (m MatchType) Valid() bool {
	return m == MatchManual || m.IsAutomatic()
}

// Mapping is a confirmed link from a local SKU to a SIGE product. One per SKU.
type Mapping struct {
	SKU         string    `json:"sku"`
	RemoteID    string    `json:"remoteId"`
	Description string    `json:"description"`
	MatchType   MatchType `json:"matchType"`
	ConfirmedAt time.Time `json:"confirmedAt"`
}

// MatchResult is the outcome of the matching cascade for one local product
type MatchResult struct {
	SKU               string    `json:"sku"`
	Matched           bool      `json:"matched"`
	Skipped           bool      `json:"skipped,omitempty"`
	RemoteID          string    `json:"remoteId,omitempty"`
	RemoteCode        string    `json:"remoteCode,omitempty"`
	MatchType         MatchType `json:"matchType,omitempty"`
	ViaBasePrefix     bool      `json:"viaBasePrefix,omitempty"`
	LocalTitle        string    `json:"localTitle"`
	RemoteDescription string    `json:"remoteDescription,omitempty"`
}

// MatchSummary aggregates the results of one matching pass
type MatchSummary struct {
	TotalResults int `json:"totalResults"`
	Matched      int `json:"matched"`
	Unmatched    int `json:"unmatched"`
	Skipped      int `json:"skipped"`
}

// Summarize counts matched, unmatched and skipped results
func Summarize(results []MatchResult) MatchSummary {
	s := MatchSummary{TotalResults: len(results)}
	for _, r := range results {
		switch {
		case r.Skipped:
			s.Skipped++
		case r.Matched:
			s.Matched++
		default:
			s.Unmatched++
		}
	}
	return s
}
