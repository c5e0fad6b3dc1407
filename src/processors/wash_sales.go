// backend/src/processors/wash_sales.go
package processors

import (
	"sort"
	"time"

	"github.com/username/gainfolio/backend/src/models"
)

// WashSaleWindowDays bounds the replacement window on each side of a loss
// sale. The window is the closed interval of instants 30 days either side
// of the sale timestamp.
const WashSaleWindowDays = 30

// WashSaleDetector flags loss sales with a same-symbol purchase inside the
// 30-day window on either side. The flag disallows the entire loss rather
// than the IRS proportional adjustment; summaries add it back and carry the
// flag so a reviewer can apply the precise rule.
type WashSaleDetector struct{}

func NewWashSaleDetector() *WashSaleDetector {
	return &WashSaleDetector{}
}

// DetectWashSales scans realized gains against the purchase history. buys
// may span symbols and arrive unordered; they are grouped and sorted once,
// and each loss locates its window by binary search instead of rescanning
// the full history.
func (d *WashSaleDetector) DetectWashSales(gains []models.RealizedGain, buys []models.Transaction) []models.WashSaleFlag {
	buysBySymbol := make(map[string][]models.Transaction)
	for _, tx := range buys {
		if !tx.Kind.Acquires() {
			continue
		}
		buysBySymbol[tx.Symbol] = append(buysBySymbol[tx.Symbol], tx)
	}
	for _, symBuys := range buysBySymbol {
		models.SortTransactions(symBuys)
	}

	var flags []models.WashSaleFlag
	for _, gain := range gains {
		if !gain.IsLoss() {
			continue
		}
		replacements := windowPurchases(buysBySymbol[gain.Symbol], gain.SaleDate)
		if len(replacements) == 0 {
			continue
		}
		loss := gain.GainLoss.Abs()
		flags = append(flags, models.WashSaleFlag{
			SellTransactionID:    gain.SellTransactionID,
			Symbol:               gain.Symbol,
			SaleDate:             gain.SaleDate,
			LossAmount:           loss,
			DisallowedLoss:       loss,
			ReplacementPurchases: replacements,
		})
	}
	return flags
}

// windowPurchases returns the buys with a timestamp inside
// [saleDate-30d, saleDate+30d], compared as instants. A purchase executed
// at the exact sale instant is not a replacement; it is the opposite leg
// of the same moment.
func windowPurchases(sorted []models.Transaction, saleDate time.Time) []models.ReplacementPurchase {
	if len(sorted) == 0 {
		return nil
	}

	windowStart := saleDate.AddDate(0, 0, -WashSaleWindowDays)
	windowEnd := saleDate.AddDate(0, 0, WashSaleWindowDays)

	start := sort.Search(len(sorted), func(i int) bool {
		return !sorted[i].Timestamp.Before(windowStart)
	})

	var replacements []models.ReplacementPurchase
	for i := start; i < len(sorted) && !sorted[i].Timestamp.After(windowEnd); i++ {
		tx := sorted[i]
		if tx.Timestamp.Equal(saleDate) {
			continue
		}
		replacements = append(replacements, models.ReplacementPurchase{
			TransactionID: tx.ID,
			Date:          tx.Timestamp,
			Quantity:      tx.Quantity,
			Price:         tx.UnitPrice,
		})
	}
	return replacements
}
