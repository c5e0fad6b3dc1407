// backend/src/parsers/parser.go
package parsers

import "github.com/shopspring/decimal"

// ParsedTransaction is one usable CSV row. Numeric fields are parsed here;
// domain validation (positive quantity, known types) happens in the
// transaction service.
type ParsedTransaction struct {
	Line      int
	Symbol    string
	AssetType string
	Kind      string
	Quantity  decimal.Decimal
	UnitPrice decimal.Decimal
	Fees      decimal.Decimal
	Notes     string
	Timestamp string
}

// ParseResult separates usable rows from per-row failures so an import can
// proceed with the good rows and report the bad ones.
type ParseResult struct {
	Transactions []ParsedTransaction
	RowErrors    []string
}
