package parsers

import (
	"strings"
	"testing"

	"github.com/alecthomas/assert/v2"
)

func TestParseCanonicalFormat(t *testing.T) {
	csvData := strings.Join([]string{
		"symbol,asset_type,transaction_type,quantity,price,fees,transaction_date,notes",
		"AAPL,stock,buy,10,150.25,1.00,2024-01-05T10:30:00Z,opening position",
		"BTC,crypto,sell,0.5,42000,,2024-02-10,",
	}, "\n")

	result, err := NewTransactionCSVParser().Parse(strings.NewReader(csvData))
	assert.NoError(t, err)
	assert.Equal(t, 0, len(result.RowErrors))
	assert.Equal(t, 2, len(result.Transactions))

	first := result.Transactions[0]
	assert.Equal(t, 2, first.Line)
	assert.Equal(t, "AAPL", first.Symbol)
	assert.Equal(t, "stock", first.AssetType)
	assert.Equal(t, "buy", first.Kind)
	assert.Equal(t, "10", first.Quantity.String())
	assert.Equal(t, "150.25", first.UnitPrice.String())
	assert.Equal(t, "1", first.Fees.String())
	assert.Equal(t, "opening position", first.Notes)
	assert.Equal(t, "2024-01-05T10:30:00Z", first.Timestamp)

	second := result.Transactions[1]
	assert.Equal(t, 3, second.Line)
	// Empty fees column defaults to zero.
	assert.True(t, second.Fees.IsZero())
}

func TestParseColumnOrderIsFree(t *testing.T) {
	csvData := strings.Join([]string{
		"transaction_date,price,quantity,transaction_type,asset_type,symbol",
		"2024-01-05,150,10,buy,stock,AAPL",
	}, "\n")

	result, err := NewTransactionCSVParser().Parse(strings.NewReader(csvData))
	assert.NoError(t, err)
	assert.Equal(t, 1, len(result.Transactions))
	assert.Equal(t, "AAPL", result.Transactions[0].Symbol)
	assert.Equal(t, "150", result.Transactions[0].UnitPrice.String())
}

func TestParseIgnoresUnknownColumns(t *testing.T) {
	csvData := strings.Join([]string{
		"symbol,asset_type,transaction_type,quantity,price,transaction_date,broker_reference",
		"AAPL,stock,buy,10,150,2024-01-05,XYZ-123",
	}, "\n")

	result, err := NewTransactionCSVParser().Parse(strings.NewReader(csvData))
	assert.NoError(t, err)
	assert.Equal(t, 1, len(result.Transactions))
}

func TestParseHeaderCaseAndWhitespace(t *testing.T) {
	csvData := strings.Join([]string{
		" Symbol , ASSET_TYPE ,transaction_type,Quantity,Price,Transaction_Date",
		" AAPL ,stock,buy, 10 ,150,2024-01-05",
	}, "\n")

	result, err := NewTransactionCSVParser().Parse(strings.NewReader(csvData))
	assert.NoError(t, err)
	assert.Equal(t, 1, len(result.Transactions))
	assert.Equal(t, "AAPL", result.Transactions[0].Symbol)
	assert.Equal(t, "10", result.Transactions[0].Quantity.String())
}

func TestParseMissingRequiredColumn(t *testing.T) {
	csvData := strings.Join([]string{
		"symbol,asset_type,transaction_type,quantity,transaction_date",
		"AAPL,stock,buy,10,2024-01-05",
	}, "\n")

	_, err := NewTransactionCSVParser().Parse(strings.NewReader(csvData))
	assert.Error(t, err)
	assert.Contains(t, err.Error(), `"price"`)
}

func TestParseCollectsRowErrors(t *testing.T) {
	csvData := strings.Join([]string{
		"symbol,asset_type,transaction_type,quantity,price,fees,transaction_date",
		"AAPL,stock,buy,ten,150,0,2024-01-05",
		"MSFT,stock,buy,5,4oo,0,2024-01-06",
		"GOOG,stock,buy,5,100,free,2024-01-07",
		"NVDA,stock,buy,5,100,0,2024-01-08",
	}, "\n")

	result, err := NewTransactionCSVParser().Parse(strings.NewReader(csvData))
	assert.NoError(t, err)

	assert.Equal(t, 3, len(result.RowErrors))
	assert.Contains(t, result.RowErrors[0], "row 2")
	assert.Contains(t, result.RowErrors[0], "invalid quantity")
	assert.Contains(t, result.RowErrors[1], "row 3")
	assert.Contains(t, result.RowErrors[1], "invalid price")
	assert.Contains(t, result.RowErrors[2], "row 4")
	assert.Contains(t, result.RowErrors[2], "invalid fees")

	// The good row still comes through.
	assert.Equal(t, 1, len(result.Transactions))
	assert.Equal(t, "NVDA", result.Transactions[0].Symbol)
	assert.Equal(t, 5, result.Transactions[0].Line)
}

func TestParseShortRow(t *testing.T) {
	csvData := strings.Join([]string{
		"symbol,asset_type,transaction_type,quantity,price,transaction_date",
		"AAPL,stock,buy",
	}, "\n")

	result, err := NewTransactionCSVParser().Parse(strings.NewReader(csvData))
	assert.NoError(t, err)
	assert.Equal(t, 0, len(result.Transactions))
	assert.Equal(t, 1, len(result.RowErrors))
	assert.Contains(t, result.RowErrors[0], "row 2")
}

func TestParseEmptyInput(t *testing.T) {
	_, err := NewTransactionCSVParser().Parse(strings.NewReader(""))
	assert.Error(t, err)
}
