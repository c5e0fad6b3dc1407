// backend/src/processors/tax_year.go
package processors

import (
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/username/gainfolio/backend/src/models"
	"github.com/username/gainfolio/backend/src/utils"
)

// TaxYearAggregator rolls a full transaction history into the per-year tax
// picture: realized gains split by holding period, wash sale adjustments
// and Form 8949 line items.
type TaxYearAggregator struct {
	method  models.CostBasisMethod
	matcher *LotMatcher
	gains   *GainCalculator
	washes  *WashSaleDetector
}

// NewTaxYearAggregator builds an aggregator that matches lots under the
// given method. The pooled average method carries no per-lot acquisition
// dates and is rejected here; tax math needs discrete lots.
func NewTaxYearAggregator(method models.CostBasisMethod) (*TaxYearAggregator, error) {
	switch method {
	case models.MethodFIFO, models.MethodLIFO:
	case models.MethodAverage:
		return nil, fmt.Errorf("%w: %q cannot drive tax calculations (supported: fifo, lifo)", models.ErrInvalidMethod, method)
	default:
		return nil, fmt.Errorf("%w: %q (supported: fifo, lifo)", models.ErrInvalidMethod, method)
	}
	return &TaxYearAggregator{
		method:  method,
		matcher: NewLotMatcher(),
		gains:   NewGainCalculator(),
		washes:  NewWashSaleDetector(),
	}, nil
}

// SummarizeTaxYear computes the summary for one calendar year. Lots are
// replayed from the entire history up to year end, so basis can come from
// lots acquired years earlier, while only sales inside the year are
// reported. Sales the history cannot cover become UnresolvedSales entries
// and warning counts; one bad record never aborts the year.
//
// The summary is deterministic: identical input yields identical output,
// including slice ordering, so serialized summaries can be compared or
// cached byte for byte. Empty history yields a zero summary, not an error.
func (a *TaxYearAggregator) SummarizeTaxYear(txs []models.Transaction, year int) (*models.TaxYearSummary, error) {
	yearStart := time.Date(year, time.January, 1, 0, 0, 0, 0, time.UTC)
	yearEnd := time.Date(year, time.December, 31, 23, 59, 59, 0, time.UTC)
	inYear := func(t time.Time) bool {
		return !t.Before(yearStart) && !t.After(yearEnd)
	}

	// Wash sale windows reach into January of the next year, so the
	// detector sees the unfiltered history; only matching is cut off.
	var matchable []models.Transaction
	for _, tx := range txs {
		if !tx.Timestamp.After(yearEnd) {
			matchable = append(matchable, tx)
		}
	}

	_, matches, err := a.matcher.MatchAll(matchable, a.method)
	if err != nil {
		return nil, err
	}

	summary := &models.TaxYearSummary{
		TaxYear:         year,
		CapitalGains:    []models.RealizedGain{},
		WashSales:       []models.WashSaleFlag{},
		UnresolvedSales: []models.UnresolvedSale{},
	}

	for _, tx := range txs {
		if !inYear(tx.Timestamp) {
			continue
		}
		switch {
		case tx.Kind.Acquires():
			summary.TransactionCount.Buys++
			summary.TransactionCount.Total++
		case tx.Kind.Disposes():
			summary.TransactionCount.Sells++
			summary.TransactionCount.Total++
		}
	}

	for _, match := range matches {
		if !inYear(match.Sell.Timestamp) {
			continue
		}
		summary.TotalProceeds = summary.TotalProceeds.Add(match.Sell.Quantity.Mul(match.Sell.UnitPrice))

		gain, err := a.gains.CalculateRealizedGain(match)
		if err != nil {
			summary.UnresolvedSales = append(summary.UnresolvedSales, models.UnresolvedSale{
				TransactionID:     match.Sell.ID,
				Symbol:            match.Sell.Symbol,
				SaleDate:          match.Sell.Timestamp,
				QuantityRequested: match.QuantityRequested,
				QuantityMatched:   match.QuantityConsumed,
				Reason:            err.Error(),
			})
			summary.TransactionCount.Unresolved++
			continue
		}
		summary.CapitalGains = append(summary.CapitalGains, roundGain(*gain))
	}

	sort.SliceStable(summary.CapitalGains, func(i, j int) bool {
		gi, gj := summary.CapitalGains[i], summary.CapitalGains[j]
		if !gi.SaleDate.Equal(gj.SaleDate) {
			return gi.SaleDate.Before(gj.SaleDate)
		}
		return gi.SellTransactionID < gj.SellTransactionID
	})
	sort.SliceStable(summary.UnresolvedSales, func(i, j int) bool {
		ui, uj := summary.UnresolvedSales[i], summary.UnresolvedSales[j]
		if !ui.SaleDate.Equal(uj.SaleDate) {
			return ui.SaleDate.Before(uj.SaleDate)
		}
		return ui.TransactionID < uj.TransactionID
	})

	for _, g := range summary.CapitalGains {
		summary.TotalCostBasis = summary.TotalCostBasis.Add(g.CostBasis)
		bucket := &summary.ShortTerm
		if g.HoldingPeriod == models.LongTerm {
			bucket = &summary.LongTerm
		}
		if g.GainLoss.IsNegative() {
			bucket.Losses = bucket.Losses.Add(g.GainLoss.Abs())
		} else {
			bucket.Gains = bucket.Gains.Add(g.GainLoss)
		}
	}
	summary.ShortTerm.Net = summary.ShortTerm.Gains.Sub(summary.ShortTerm.Losses)
	summary.LongTerm.Net = summary.LongTerm.Gains.Sub(summary.LongTerm.Losses)
	summary.TotalNetGainLoss = summary.ShortTerm.Net.Add(summary.LongTerm.Net)

	var allBuys []models.Transaction
	for _, tx := range txs {
		if tx.Kind.Acquires() {
			allBuys = append(allBuys, tx)
		}
	}
	summary.WashSales = a.washes.DetectWashSales(summary.CapitalGains, allBuys)
	if summary.WashSales == nil {
		summary.WashSales = []models.WashSaleFlag{}
	}
	for _, ws := range summary.WashSales {
		summary.WashSaleDisallowed = summary.WashSaleDisallowed.Add(ws.DisallowedLoss)
	}
	summary.AdjustedNetGainLoss = summary.TotalNetGainLoss.Add(summary.WashSaleDisallowed)

	summary.TotalProceeds = summary.TotalProceeds.Round(2)
	summary.TotalCostBasis = summary.TotalCostBasis.Round(2)
	return summary, nil
}

// BuildForm8949 renders one reporting line per realized sale in the
// summary, applying the wash sale adjustment (code W, disallowed amount
// added back) and sorting by date sold.
func (a *TaxYearAggregator) BuildForm8949(summary *models.TaxYearSummary) []models.Form8949Entry {
	disallowedBySale := make(map[string]decimal.Decimal, len(summary.WashSales))
	for _, ws := range summary.WashSales {
		disallowedBySale[ws.SellTransactionID] = ws.DisallowedLoss
	}

	entries := make([]models.Form8949Entry, 0, len(summary.CapitalGains))
	for _, g := range summary.CapitalGains {
		adjustment := decimal.Zero
		code := ""
		if amt, ok := disallowedBySale[g.SellTransactionID]; ok && amt.IsPositive() {
			adjustment = amt
			code = "W"
		}
		entries = append(entries, models.Form8949Entry{
			Description:      fmt.Sprintf("%s %s", g.Quantity, g.Symbol),
			DateAcquired:     utils.FormatDate(g.AcquisitionDate),
			DateSold:         utils.FormatDate(g.SaleDate),
			Proceeds:         g.Proceeds,
			CostBasis:        g.CostBasis,
			AdjustmentCode:   code,
			AdjustmentAmount: adjustment,
			GainOrLoss:       g.GainLoss.Add(adjustment),
			HoldingPeriod:    g.HoldingPeriod,
			AssetType:        g.AssetType,
			Symbol:           g.Symbol,
		})
	}

	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].DateSold < entries[j].DateSold
	})
	return entries
}

// roundGain fixes a gain record to cent precision for reporting. Wash sale
// amounts derive from the rounded loss so the summary's arithmetic stays
// consistent with what it displays.
func roundGain(g models.RealizedGain) models.RealizedGain {
	g.Proceeds = g.Proceeds.Round(2)
	g.CostBasis = g.CostBasis.Round(2)
	g.GainLoss = g.Proceeds.Sub(g.CostBasis)
	return g
}
