package processors

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/alecthomas/assert/v2"

	"github.com/username/gainfolio/backend/src/models"
)

func mustAggregator(t *testing.T, method models.CostBasisMethod) *TaxYearAggregator {
	t.Helper()
	agg, err := NewTaxYearAggregator(method)
	assert.NoError(t, err)
	return agg
}

func ts(value string) time.Time {
	t, err := time.Parse("2006-01-02", value)
	if err != nil {
		panic(err)
	}
	return t
}

func TestSummarizeTaxYear(t *testing.T) {
	history := []models.Transaction{
		// Lot acquired the year before; its basis must carry into 2024.
		buy("xyz-b1", "XYZ", "10", "10", ts("2023-06-01")),
		sell("xyz-s0", "XYZ", "2", "12", ts("2023-09-01")),
		sell("xyz-s1", "XYZ", "5", "30", ts("2024-03-01")),

		buy("abc-b1", "ABC", "5", "100", ts("2024-07-01")),
		sell("abc-s1", "ABC", "5", "60", ts("2024-08-01")),
		buy("abc-b2", "ABC", "5", "55", ts("2024-08-15")),
	}

	summary, err := mustAggregator(t, models.MethodFIFO).SummarizeTaxYear(history, 2024)
	assert.NoError(t, err)

	assert.Equal(t, 2024, summary.TaxYear)
	assert.Equal(t, "450", summary.TotalProceeds.String())
	assert.Equal(t, "550", summary.TotalCostBasis.String())

	assert.Equal(t, "100", summary.ShortTerm.Gains.String())
	assert.Equal(t, "200", summary.ShortTerm.Losses.String())
	assert.Equal(t, "-100", summary.ShortTerm.Net.String())
	assert.Equal(t, "0", summary.LongTerm.Net.String())
	assert.Equal(t, "-100", summary.TotalNetGainLoss.String())

	assert.Equal(t, "200", summary.WashSaleDisallowed.String())
	assert.Equal(t, "100", summary.AdjustedNetGainLoss.String())

	// Sorted by sale date: the 2023 sale is out, the two 2024 sales in.
	assert.Equal(t, 2, len(summary.CapitalGains))
	assert.Equal(t, "xyz-s1", summary.CapitalGains[0].SellTransactionID)
	assert.Equal(t, "abc-s1", summary.CapitalGains[1].SellTransactionID)

	assert.Equal(t, 1, len(summary.WashSales))
	assert.Equal(t, "abc-s1", summary.WashSales[0].SellTransactionID)
	assert.Equal(t, "abc-b2", summary.WashSales[0].ReplacementPurchases[0].TransactionID)

	assert.Equal(t, 2, summary.TransactionCount.Buys)
	assert.Equal(t, 2, summary.TransactionCount.Sells)
	assert.Equal(t, 0, summary.TransactionCount.Unresolved)
	assert.Equal(t, 4, summary.TransactionCount.Total)
	assert.Equal(t, 0, len(summary.UnresolvedSales))
}

func TestSummarizeTaxYearLIFOBasis(t *testing.T) {
	history := []models.Transaction{
		buy("b1", "ABC", "10", "1", ts("2024-01-01")),
		buy("b2", "ABC", "10", "2", ts("2024-01-05")),
		sell("s1", "ABC", "12", "3", ts("2024-01-10")),
	}

	summary, err := mustAggregator(t, models.MethodLIFO).SummarizeTaxYear(history, 2024)
	assert.NoError(t, err)
	assert.Equal(t, 1, len(summary.CapitalGains))
	assert.Equal(t, "22", summary.CapitalGains[0].CostBasis.String())
	assert.Equal(t, "14", summary.CapitalGains[0].GainLoss.String())
}

func TestSummarizeTaxYearUnresolvedSale(t *testing.T) {
	history := []models.Transaction{
		buy("b1", "GOOD", "4", "25", ts("2024-02-01")),
		sell("s1", "GOOD", "4", "30", ts("2024-05-01")),
		// Nothing was ever bought for this one.
		sell("s2", "GHOST", "3", "50", ts("2024-06-01")),
	}

	summary, err := mustAggregator(t, models.MethodFIFO).SummarizeTaxYear(history, 2024)
	assert.NoError(t, err)

	assert.Equal(t, 1, len(summary.CapitalGains))
	assert.Equal(t, "s1", summary.CapitalGains[0].SellTransactionID)

	assert.Equal(t, 1, len(summary.UnresolvedSales))
	unresolved := summary.UnresolvedSales[0]
	assert.Equal(t, "s2", unresolved.TransactionID)
	assert.Equal(t, "3", unresolved.QuantityRequested.String())
	assert.Equal(t, "0", unresolved.QuantityMatched.String())
	assert.Equal(t, 1, summary.TransactionCount.Unresolved)

	// Proceeds count every reported sale; basis only the resolved ones.
	assert.Equal(t, "270", summary.TotalProceeds.String())
	assert.Equal(t, "100", summary.TotalCostBasis.String())
}

func TestSummarizeTaxYearWashWindowCrossesYearEnd(t *testing.T) {
	history := []models.Transaction{
		buy("b1", "ABC", "10", "100", ts("2024-01-10")),
		sell("s1", "ABC", "10", "40", ts("2024-12-20")),
		// Replacement happens in January of the next tax year.
		buy("b2", "ABC", "10", "38", ts("2025-01-05")),
	}

	summary, err := mustAggregator(t, models.MethodFIFO).SummarizeTaxYear(history, 2024)
	assert.NoError(t, err)
	assert.Equal(t, 1, len(summary.WashSales))
	assert.Equal(t, "600", summary.WashSaleDisallowed.String())
	assert.Equal(t, "0", summary.AdjustedNetGainLoss.String())
}

func TestSummarizeTaxYearEmptyHistory(t *testing.T) {
	summary, err := mustAggregator(t, models.MethodFIFO).SummarizeTaxYear(nil, 2024)
	assert.NoError(t, err)

	assert.Equal(t, "0", summary.TotalProceeds.String())
	assert.Equal(t, "0", summary.AdjustedNetGainLoss.String())
	assert.Equal(t, 0, len(summary.CapitalGains))
	assert.Equal(t, 0, len(summary.WashSales))
	assert.Equal(t, 0, len(summary.UnresolvedSales))
	assert.Equal(t, 0, summary.TransactionCount.Total)

	// Empty aggregates serialize as [], not null.
	raw, err := json.Marshal(summary)
	assert.NoError(t, err)
	assert.Contains(t, string(raw), `"capital_gains":[]`)
	assert.Contains(t, string(raw), `"wash_sales":[]`)
}

func TestSummarizeTaxYearIdempotent(t *testing.T) {
	history := []models.Transaction{
		buy("b1", "XYZ", "10", "10", ts("2023-06-01")),
		sell("s1", "XYZ", "5", "30", ts("2024-03-01")),
		buy("b2", "ABC", "5", "100", ts("2024-07-01")),
		sell("s2", "ABC", "5", "60", ts("2024-08-01")),
		buy("b3", "ABC", "5", "55", ts("2024-08-15")),
	}

	agg := mustAggregator(t, models.MethodFIFO)
	first, err := agg.SummarizeTaxYear(history, 2024)
	assert.NoError(t, err)
	second, err := agg.SummarizeTaxYear(history, 2024)
	assert.NoError(t, err)

	rawFirst, err := json.Marshal(first)
	assert.NoError(t, err)
	rawSecond, err := json.Marshal(second)
	assert.NoError(t, err)
	assert.Equal(t, string(rawFirst), string(rawSecond))
}

func TestNewTaxYearAggregatorRejectsNonLotMethods(t *testing.T) {
	_, err := NewTaxYearAggregator(models.MethodAverage)
	assert.Error(t, err)
	assert.True(t, errors.Is(err, models.ErrInvalidMethod))
	assert.Contains(t, err.Error(), "fifo, lifo")

	_, err = NewTaxYearAggregator(models.CostBasisMethod("hifo"))
	assert.Error(t, err)
	assert.True(t, errors.Is(err, models.ErrInvalidMethod))
}

func TestBuildForm8949(t *testing.T) {
	history := []models.Transaction{
		buy("xyz-b1", "XYZ", "10", "10", ts("2023-06-01")),
		sell("xyz-s1", "XYZ", "5", "30", ts("2024-03-01")),
		buy("abc-b1", "ABC", "5", "100", ts("2024-07-01")),
		sell("abc-s1", "ABC", "5", "60", ts("2024-08-01")),
		buy("abc-b2", "ABC", "5", "55", ts("2024-08-15")),
	}

	agg := mustAggregator(t, models.MethodFIFO)
	summary, err := agg.SummarizeTaxYear(history, 2024)
	assert.NoError(t, err)

	entries := agg.BuildForm8949(summary)
	assert.Equal(t, 2, len(entries))

	plain := entries[0]
	assert.Equal(t, "5 XYZ", plain.Description)
	assert.Equal(t, "2023-06-01", plain.DateAcquired)
	assert.Equal(t, "2024-03-01", plain.DateSold)
	assert.Equal(t, "", plain.AdjustmentCode)
	assert.Equal(t, "0", plain.AdjustmentAmount.String())
	assert.Equal(t, "100", plain.GainOrLoss.String())

	washed := entries[1]
	assert.Equal(t, "5 ABC", washed.Description)
	assert.Equal(t, "W", washed.AdjustmentCode)
	assert.Equal(t, "200", washed.AdjustmentAmount.String())
	// Disallowing the entire loss zeroes the reported figure.
	assert.Equal(t, "0", washed.GainOrLoss.String())
	assert.Equal(t, "-200", washed.Proceeds.Sub(washed.CostBasis).String())
}
