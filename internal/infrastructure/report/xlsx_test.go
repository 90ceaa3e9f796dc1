package report

import (
	"bytes"
	"testing"

	"github.com/autopecas/sigesync/internal/domain"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func sampleResult() *domain.SyncResult {
	results := []domain.MatchResult{
		{SKU: "FL-40", LocalTitle: "Filtro", Matched: true, MatchType: domain.MatchExactCode, RemoteID: "9001", RemoteCode: "FL-40", RemoteDescription: "Filtro de oleo"},
		{SKU: "NOPE", LocalTitle: "Sem cadastro"},
	}
	return &domain.SyncResult{RunID: "run-1", MatchSummary: domain.Summarize(results), MatchResults: results}
}

func TestWriteMatchReport_MatchesOnly(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteMatchReport(&buf, sampleResult()))

	f, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer f.Close()

	assert.Equal(t, []string{"Matches"}, f.GetSheetList())
	rows, err := f.GetRows("Matches")
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, "SKU", rows[0][0])
	assert.Equal(t, []string{"FL-40", "Filtro", "yes", "ExactCode", "no", "9001", "FL-40", "Filtro de oleo", "no"}, rows[1])
	assert.Equal(t, "NOPE", rows[2][0])
	assert.Equal(t, "no", rows[2][2])
}

func TestWriteMatchReport_WithBalances(t *testing.T) {
	result := sampleResult()
	result.Balances = []domain.ItemWithBalance{
		{
			MatchedItem: domain.MatchedItem{SKU: "FL-40", RemoteID: "9001", MatchType: domain.MatchExactCode},
			Balance: domain.BalanceReading{
				Found:     true,
				Quantity:  decimal.NewFromInt(42),
				Reserved:  decimal.NewFromInt(5),
				Available: decimal.NewFromInt(37),
			},
		},
	}

	var buf bytes.Buffer
	require.NoError(t, WriteMatchReport(&buf, result))

	f, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer f.Close()

	assert.Equal(t, []string{"Matches", "Balances"}, f.GetSheetList())
	rows, err := f.GetRows("Balances")
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, []string{"FL-40", "9001", "ExactCode", "yes", "42", "5", "37"}, rows[1])
}
