package storage

import (
	"context"
	"strings"
)

// Row is an ordered tuple of cells. Column 0 is the row key.
type Row []string

// Key returns the row key (first cell), or "" for an empty row.
func (r Row) Key() string {
	if len(r) == 0 {
		return ""
	}
	return r[0]
}

// Cell returns column i trimmed, or "" when the row is shorter.
func (r Row) Cell(i int) string {
	if i < 0 || i >= len(r) {
		return ""
	}
	return strings.TrimSpace(r[i])
}

// Store is a tabular store addressed by sheet name.
// There are no transactions; rows are plain string tuples.
type Store interface {
	GetRow(ctx context.Context, sheet, key string) (Row, error)
	AppendRow(ctx context.Context, sheet string, row Row) error
	UpdateRow(ctx context.Context, sheet, key string, row Row) error
	ListRows(ctx context.Context, sheet string) ([]Row, error)
}

// Well-known sheet names
const (
	SheetKeywords     = "keywords"
	SheetGacha        = "gacha"
	SheetShop         = "shop"
	SheetAcquisitions = "acquisitions"
	SheetAccounts     = "accounts"
	SheetAttendance   = "attendance"
)

// LedgerSheet returns the sheet holding one user's ledger rows.
func LedgerSheet(ledgerKey string) string {
	return "ledger:" + ledgerKey
}
