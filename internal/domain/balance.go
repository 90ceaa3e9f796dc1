package domain

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

func init() {
	// The admin UI consumes stock figures as JSON numbers
	decimal.MarshalJSONWithoutQuotes = true
}

// BalanceReading is the stock figure resolved from one SIGE balance payload.
// Available is always Quantity minus Reserved; on failure Found is false and all figures are zero.
type BalanceReading struct {
	Found      bool            `json:"found"`
	Quantity   decimal.Decimal `json:"quantity"`
	Reserved   decimal.Decimal `json:"reserved"`
	Available  decimal.Decimal `json:"available"`
	Error      string          `json:"error,omitempty"`
	Diagnostic *Diagnostic     `json:"diagnostic,omitempty"`
	Raw        json.RawMessage `json:"raw,omitempty"`
	FetchedAt  time.Time       `json:"fetchedAt,omitempty"`
}

// Diagnostic flags a payload that looked empty because no known quantity field was found.
// Keys lists the field names seen so an operator can spot a new field name.
type Diagnostic struct {
	Message string   `json:"message"`
	Keys    []string `json:"keys"`
}

// FailedReading builds the reading recorded for an item whose balance could not be resolved
func FailedReading(err error) BalanceReading {
	r := BalanceReading{
		Quantity:  decimal.Zero,
		Reserved:  decimal.Zero,
		Available: decimal.Zero,
	}
	if err != nil {
		r.Error = err.Error()
	}
	return r
}

// MatchedItem is a local SKU with the SIGE id its balance is fetched from
type MatchedItem struct {
	SKU         string    `json:"sku"`
	RemoteID    string    `json:"remoteId"`
	Description string    `json:"description,omitempty"`
	MatchType   MatchType `json:"matchType,omitempty"`
}

// ItemWithBalance pairs a matched item with its balance reading
type ItemWithBalance struct {
	MatchedItem
	Balance BalanceReading `json:"balance"`
}
