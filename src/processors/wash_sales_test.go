package processors

import (
	"testing"
	"time"

	"github.com/alecthomas/assert/v2"

	"github.com/username/gainfolio/backend/src/models"
)

// lossGainOn builds the realized loss used across the window tests:
// bought at 100, sold at 60 on the given day, loss 400.
func lossGainOn(saleDay int) models.RealizedGain {
	return models.RealizedGain{
		SellTransactionID: "s1",
		Symbol:            "ABC",
		AssetType:         models.AssetStock,
		Quantity:          dec("10"),
		AcquisitionDate:   day(1),
		SaleDate:          day(saleDay),
		Proceeds:          dec("600"),
		CostBasis:         dec("1000"),
		GainLoss:          dec("-400"),
		HoldingPeriod:     models.ShortTerm,
		DaysHeld:          saleDay - 1,
	}
}

func TestDetectWashSalesWindow(t *testing.T) {
	tests := []struct {
		name    string
		buyDay  int
		flagged bool
	}{
		{"repurchase 15 days after sale", 115, true},
		{"repurchase 30 days after sale", 130, true},
		{"repurchase 31 days after sale", 131, false},
		{"repurchase 40 days after sale", 140, false},
		{"repurchase 15 days before sale", 85, true},
		{"repurchase 30 days before sale", 70, true},
		{"repurchase 31 days before sale", 69, false},
	}

	detector := NewWashSaleDetector()
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			gains := []models.RealizedGain{lossGainOn(100)}
			buys := []models.Transaction{
				buy("b1", "ABC", "10", "100", day(1)),
				buy("b2", "ABC", "10", "55", day(tc.buyDay)),
			}

			flags := detector.DetectWashSales(gains, buys)
			if !tc.flagged {
				assert.Equal(t, 0, len(flags))
				return
			}
			assert.Equal(t, 1, len(flags))
			flag := flags[0]
			assert.Equal(t, "s1", flag.SellTransactionID)
			assert.Equal(t, "400", flag.LossAmount.String())
			assert.Equal(t, "400", flag.DisallowedLoss.String())
			assert.Equal(t, 1, len(flag.ReplacementPurchases))
			assert.Equal(t, "b2", flag.ReplacementPurchases[0].TransactionID)
		})
	}
}

func TestDetectWashSalesIgnoresGains(t *testing.T) {
	gains := []models.RealizedGain{{
		SellTransactionID: "s1",
		Symbol:            "ABC",
		SaleDate:          day(100),
		GainLoss:          dec("250"),
	}}
	buys := []models.Transaction{
		buy("b1", "ABC", "10", "55", day(110)),
	}

	flags := NewWashSaleDetector().DetectWashSales(gains, buys)
	assert.Equal(t, 0, len(flags))
}

func TestDetectWashSalesIgnoresOtherSymbols(t *testing.T) {
	gains := []models.RealizedGain{lossGainOn(100)}
	buys := []models.Transaction{
		buy("b1", "XYZ", "10", "55", day(110)),
	}

	flags := NewWashSaleDetector().DetectWashSales(gains, buys)
	assert.Equal(t, 0, len(flags))
}

func TestDetectWashSalesIgnoresSameInstantBuy(t *testing.T) {
	gains := []models.RealizedGain{lossGainOn(100)}
	buys := []models.Transaction{
		buy("b1", "ABC", "10", "55", day(100)),
	}

	flags := NewWashSaleDetector().DetectWashSales(gains, buys)
	assert.Equal(t, 0, len(flags))
}

func TestDetectWashSalesCollectsAllReplacements(t *testing.T) {
	gains := []models.RealizedGain{lossGainOn(100)}
	buys := []models.Transaction{
		buy("b0", "ABC", "10", "100", day(1)),
		buy("b1", "ABC", "3", "58", day(92)),
		buy("b2", "ABC", "4", "54", day(108)),
		buy("b3", "ABC", "5", "50", day(131)),
	}

	flags := NewWashSaleDetector().DetectWashSales(gains, buys)
	assert.Equal(t, 1, len(flags))
	assert.Equal(t, 2, len(flags[0].ReplacementPurchases))
	assert.Equal(t, "b1", flags[0].ReplacementPurchases[0].TransactionID)
	assert.Equal(t, "b2", flags[0].ReplacementPurchases[1].TransactionID)
}

func TestDetectWashSalesIgnoresDisposalsInWindow(t *testing.T) {
	gains := []models.RealizedGain{lossGainOn(100)}
	history := []models.Transaction{
		sell("s2", "ABC", "5", "60", day(105)),
		tx("t1", models.KindTransferOut, "ABC", "2", "0", "0", day(95)),
	}

	flags := NewWashSaleDetector().DetectWashSales(gains, history)
	assert.Equal(t, 0, len(flags))
}

func TestDetectWashSalesWindowEdgeInstants(t *testing.T) {
	// The window is the closed interval of instants [sale-30d, sale+30d]:
	// a buy a few hours past the edge is out, a buy exactly on it is in.
	saleAt := time.Date(2024, 4, 10, 0, 0, 0, 0, time.UTC)
	tests := []struct {
		name    string
		buyAt   time.Time
		flagged bool
	}{
		{"30 days 12 hours after sale", saleAt.Add(30*24*time.Hour + 12*time.Hour), false},
		{"30 days 12 hours before sale", saleAt.Add(-(30*24*time.Hour + 12*time.Hour)), false},
		{"exactly 30 days after sale", saleAt.AddDate(0, 0, 30), true},
		{"exactly 30 days before sale", saleAt.AddDate(0, 0, -30), true},
		{"one second past the forward edge", saleAt.AddDate(0, 0, 30).Add(time.Second), false},
	}

	detector := NewWashSaleDetector()
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			gains := []models.RealizedGain{{
				SellTransactionID: "s1",
				Symbol:            "ABC",
				SaleDate:          saleAt,
				GainLoss:          dec("-100"),
			}}
			buys := []models.Transaction{
				buy("b1", "ABC", "1", "90", tc.buyAt),
			}

			flags := detector.DetectWashSales(gains, buys)
			if tc.flagged {
				assert.Equal(t, 1, len(flags))
			} else {
				assert.Equal(t, 0, len(flags))
			}
		})
	}
}

func TestDetectWashSalesSubDayPrecision(t *testing.T) {
	// Same calendar day, different clock time: still inside the window,
	// but not the identical instant, so it counts as a replacement.
	saleAt := time.Date(2024, 4, 10, 14, 30, 0, 0, time.UTC)
	gains := []models.RealizedGain{{
		SellTransactionID: "s1",
		Symbol:            "ABC",
		SaleDate:          saleAt,
		GainLoss:          dec("-100"),
	}}
	buys := []models.Transaction{
		buy("b1", "ABC", "1", "90", saleAt.Add(2*time.Hour)),
	}

	flags := NewWashSaleDetector().DetectWashSales(gains, buys)
	assert.Equal(t, 1, len(flags))
}
