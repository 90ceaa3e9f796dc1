package report

import (
	"fmt"
	"io"

	"github.com/autopecas/sigesync/internal/domain"
	"github.com/xuri/excelize/v2"
)

const (
	matchesSheet  = "Matches"
	balancesSheet = "Balances"
)

var (
	matchesHeader  = []interface{}{"SKU", "Title", "Matched", "Match type", "Via base prefix", "SIGE id", "SIGE code", "SIGE description", "Skipped"}
	balancesHeader = []interface{}{"SKU", "SIGE id", "Match type", "Found", "Quantity", "Reserved", "Available", "Error", "Diagnostic keys"}
)

// WriteMatchReport writes a sync pass as an xlsx workbook for operator review. The
// Balances sheet is only added when the pass fetched balances.
func WriteMatchReport(w io.Writer, result *domain.SyncResult) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", matchesSheet); err != nil {
		return err
	}
	if err := writeRow(f, matchesSheet, 1, matchesHeader); err != nil {
		return err
	}
	for i, r := range result.MatchResults {
		row := []interface{}{
			r.SKU, r.LocalTitle, yesNo(r.Matched), string(r.MatchType), yesNo(r.ViaBasePrefix),
			r.RemoteID, r.RemoteCode, r.RemoteDescription, yesNo(r.Skipped),
		}
		if err := writeRow(f, matchesSheet, i+2, row); err != nil {
			return err
		}
	}
	if err := f.AutoFilter(matchesSheet, fmt.Sprintf("A1:I%d", len(result.MatchResults)+1), nil); err != nil {
		return err
	}

	if len(result.Balances) > 0 {
		if _, err := f.NewSheet(balancesSheet); err != nil {
			return err
		}
		if err := writeRow(f, balancesSheet, 1, balancesHeader); err != nil {
			return err
		}
		for i, b := range result.Balances {
			keys := ""
			if b.Balance.Diagnostic != nil {
				keys = fmt.Sprint(b.Balance.Diagnostic.Keys)
			}
			row := []interface{}{
				b.SKU, b.RemoteID, string(b.MatchType), yesNo(b.Balance.Found),
				b.Balance.Quantity.InexactFloat64(), b.Balance.Reserved.InexactFloat64(), b.Balance.Available.InexactFloat64(),
				b.Balance.Error, keys,
			}
			if err := writeRow(f, balancesSheet, i+2, row); err != nil {
				return err
			}
		}
	}

	if err := f.SetDocProps(&excelize.DocProperties{
		Title:   "SIGE reconciliation " + result.RunID,
		Creator: "sigesync",
	}); err != nil {
		return err
	}
	return f.Write(w)
}

func writeRow(f *excelize.File, sheet string, row int, values []interface{}) error {
	cell, err := excelize.CoordinatesToCellName(1, row)
	if err != nil {
		return err
	}
	return f.SetSheetRow(sheet, cell, &values)
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}
