// backend/src/parsers/csv_parser.go
package parsers

import (
	"encoding/csv"
	"fmt"
	"io"
	"strings"

	"github.com/shopspring/decimal"
)

var requiredColumns = []string{"symbol", "asset_type", "transaction_type", "quantity", "price", "transaction_date"}

// TransactionCSVParser reads the canonical import format: a header row
// naming the columns (order free, unknown columns ignored, fees and notes
// optional), then one transaction per row.
type TransactionCSVParser struct{}

func NewTransactionCSVParser() *TransactionCSVParser {
	return &TransactionCSVParser{}
}

func (p *TransactionCSVParser) Parse(file io.Reader) (*ParseResult, error) {
	reader := csv.NewReader(file)
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read CSV header: %w", err)
	}

	columns := make(map[string]int, len(header))
	for i, name := range header {
		columns[strings.ToLower(strings.TrimSpace(name))] = i
	}
	for _, name := range requiredColumns {
		if _, ok := columns[name]; !ok {
			return nil, fmt.Errorf("missing required CSV column %q", name)
		}
	}

	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to read all CSV records: %w", err)
	}

	result := &ParseResult{}
	for i, record := range records {
		line := i + 2 // header is line 1
		row, rowErr := parseRecord(record, columns, line)
		if rowErr != nil {
			result.RowErrors = append(result.RowErrors, fmt.Sprintf("row %d: %v", line, rowErr))
			continue
		}
		result.Transactions = append(result.Transactions, row)
	}
	return result, nil
}

func parseRecord(record []string, columns map[string]int, line int) (ParsedTransaction, error) {
	field := func(name string) string {
		idx, ok := columns[name]
		if !ok || idx >= len(record) {
			return ""
		}
		return strings.TrimSpace(record[idx])
	}

	quantity, err := decimal.NewFromString(field("quantity"))
	if err != nil {
		return ParsedTransaction{}, fmt.Errorf("invalid quantity %q", field("quantity"))
	}
	price, err := decimal.NewFromString(field("price"))
	if err != nil {
		return ParsedTransaction{}, fmt.Errorf("invalid price %q", field("price"))
	}

	fees := decimal.Zero
	if raw := field("fees"); raw != "" {
		fees, err = decimal.NewFromString(raw)
		if err != nil {
			return ParsedTransaction{}, fmt.Errorf("invalid fees %q", raw)
		}
	}

	return ParsedTransaction{
		Line:      line,
		Symbol:    field("symbol"),
		AssetType: field("asset_type"),
		Kind:      field("transaction_type"),
		Quantity:  quantity,
		UnitPrice: price,
		Fees:      fees,
		Notes:     field("notes"),
		Timestamp: field("transaction_date"),
	}, nil
}
