package services

import (
	"testing"
	"time"

	"github.com/alecthomas/assert/v2"
	"github.com/patrickmn/go-cache"

	"github.com/username/gainfolio/backend/src/models"
)

// fakePriceService serves canned quotes and counts lookups so tests can
// tell cached reports from fresh ones.
type fakePriceService struct {
	prices map[string]PriceInfo
	calls  int
}

func (f *fakePriceService) GetCurrentPrices(symbols []string, assetType models.AssetType) (map[string]PriceInfo, error) {
	f.calls++
	out := make(map[string]PriceInfo, len(symbols))
	for _, symbol := range symbols {
		if info, ok := f.prices[symbol]; ok {
			out[symbol] = info
		} else {
			out[symbol] = PriceInfo{Symbol: symbol, Status: PriceStatusUnavailable}
		}
	}
	return out, nil
}

func quote(symbol, price string) PriceInfo {
	return PriceInfo{Symbol: symbol, Price: dec(price), Currency: "USD", Status: PriceStatusOK}
}

func storedTx(userID int64, id, symbol string, kind models.TransactionKind, qty, price, fees, date string) models.Transaction {
	ts, err := time.Parse("2006-01-02", date)
	if err != nil {
		panic(err)
	}
	quantity := dec(qty)
	unitPrice := dec(price)
	return models.Transaction{
		ID:         id,
		UserID:     userID,
		AssetID:    "stock-" + symbol,
		Symbol:     symbol,
		AssetType:  models.AssetStock,
		Kind:       kind,
		Quantity:   quantity,
		UnitPrice:  unitPrice,
		TotalValue: quantity.Mul(unitPrice),
		Fees:       dec(fees),
		Timestamp:  ts,
	}
}

func newTaxServiceForTest(store TransactionStore, prices *fakePriceService) TaxService {
	return NewTaxService(store, prices, cache.New(DefaultCacheExpiration, 0))
}

func TestGetTaxYearSummaryComputesGains(t *testing.T) {
	store := newFakeStore()
	store.transactions = []models.Transaction{
		storedTx(1, "b1", "AAPL", models.KindBuy, "10", "100", "2", "2024-01-05"),
		storedTx(1, "s1", "AAPL", models.KindSell, "4", "150", "1", "2024-06-10"),
	}
	svc := newTaxServiceForTest(store, &fakePriceService{})

	summary, err := svc.GetTaxYearSummary(1, 2024)
	assert.NoError(t, err)

	assert.Equal(t, 2024, summary.TaxYear)
	// Proceeds are quantity x price; the sell fee is not netted out.
	assert.Equal(t, "600", summary.TotalProceeds.String())
	// Basis comes from the fee inclusive unit cost: (1000+2)/10 per unit.
	assert.Equal(t, "400.8", summary.TotalCostBasis.String())
	assert.Equal(t, "199.2", summary.TotalNetGainLoss.String())
	assert.Equal(t, "199.2", summary.ShortTerm.Net.String())
	assert.Equal(t, "0", summary.LongTerm.Net.String())
	assert.Equal(t, 1, len(summary.CapitalGains))
	assert.Equal(t, 0, len(summary.WashSales))
	assert.Equal(t, 1, summary.TransactionCount.Buys)
	assert.Equal(t, 1, summary.TransactionCount.Sells)
}

func TestGetTaxYearSummaryCaching(t *testing.T) {
	store := newFakeStore()
	store.transactions = []models.Transaction{
		storedTx(1, "b1", "AAPL", models.KindBuy, "10", "100", "0", "2024-01-05"),
	}
	svc := newTaxServiceForTest(store, &fakePriceService{})

	first, err := svc.GetTaxYearSummary(1, 2024)
	assert.NoError(t, err)
	assert.Equal(t, 1, store.listCalls[1])

	// A direct store write does not invalidate; the cached summary survives.
	store.transactions = append(store.transactions,
		storedTx(1, "s1", "AAPL", models.KindSell, "5", "120", "0", "2024-07-01"))

	second, err := svc.GetTaxYearSummary(1, 2024)
	assert.NoError(t, err)
	assert.Equal(t, 1, store.listCalls[1])
	assert.Equal(t, first, second)

	svc.InvalidateUserCache(1)

	third, err := svc.GetTaxYearSummary(1, 2024)
	assert.NoError(t, err)
	assert.Equal(t, 2, store.listCalls[1])
	assert.Equal(t, 1, len(third.CapitalGains))
}

func TestInvalidateUserCacheLeavesOtherUsersAlone(t *testing.T) {
	store := newFakeStore()
	store.transactions = []models.Transaction{
		storedTx(1, "b1", "AAPL", models.KindBuy, "10", "100", "0", "2024-01-05"),
		storedTx(12, "b2", "AAPL", models.KindBuy, "10", "100", "0", "2024-01-05"),
	}
	svc := newTaxServiceForTest(store, &fakePriceService{})

	_, err := svc.GetTaxYearSummary(1, 2024)
	assert.NoError(t, err)
	_, err = svc.GetTaxYearSummary(12, 2024)
	assert.NoError(t, err)

	// "user_1" is a prefix of "user_12"; invalidation must not bleed over.
	svc.InvalidateUserCache(1)

	_, err = svc.GetTaxYearSummary(12, 2024)
	assert.NoError(t, err)
	assert.Equal(t, 1, store.listCalls[12])

	_, err = svc.GetTaxYearSummary(1, 2024)
	assert.NoError(t, err)
	assert.Equal(t, 2, store.listCalls[1])
}

func TestGetForm8949UsesCachedSummary(t *testing.T) {
	store := newFakeStore()
	store.transactions = []models.Transaction{
		storedTx(1, "b1", "AAPL", models.KindBuy, "10", "100", "0", "2023-01-05"),
		storedTx(1, "s1", "AAPL", models.KindSell, "10", "90", "0", "2024-06-10"),
	}
	svc := newTaxServiceForTest(store, &fakePriceService{})

	entries, err := svc.GetForm8949(1, 2024)
	assert.NoError(t, err)
	assert.Equal(t, 1, len(entries))
	assert.Equal(t, "AAPL", entries[0].Symbol)
	assert.Equal(t, models.LongTerm, entries[0].HoldingPeriod)

	listCallsAfterFirst := store.listCalls[1]
	again, err := svc.GetForm8949(1, 2024)
	assert.NoError(t, err)
	assert.Equal(t, listCallsAfterFirst, store.listCalls[1])
	assert.Equal(t, entries, again)
}

func TestGetUnrealizedGainsDegradesMissingPrices(t *testing.T) {
	store := newFakeStore()
	store.transactions = []models.Transaction{
		storedTx(4, "b1", "AAPL", models.KindBuy, "10", "100", "0", "2024-01-05"),
		storedTx(4, "b2", "MSFT", models.KindBuy, "5", "300", "0", "2024-02-01"),
	}
	prices := &fakePriceService{prices: map[string]PriceInfo{
		"AAPL": quote("AAPL", "150"),
	}}
	svc := newTaxServiceForTest(store, prices)

	report, err := svc.GetUnrealizedGains(4)
	assert.NoError(t, err)
	assert.Equal(t, 2, len(report.Holdings))

	aapl := report.Holdings[0]
	assert.Equal(t, "AAPL", aapl.Symbol)
	assert.Equal(t, "1500", aapl.CurrentValue.String())
	assert.Equal(t, "500", aapl.UnrealizedGainLoss.String())

	msft := report.Holdings[1]
	assert.Equal(t, "MSFT", msft.Symbol)
	assert.True(t, msft.CurrentPrice.IsZero())
	assert.True(t, msft.CurrentValue.IsZero())
	assert.Equal(t, "-1500", msft.UnrealizedGainLoss.String())

	assert.Equal(t, "-1000", report.TotalUnrealizedGainLoss.String())

	// Second read comes from cache; no fresh price lookup.
	_, err = svc.GetUnrealizedGains(4)
	assert.NoError(t, err)
	assert.Equal(t, 1, prices.calls)
}

func TestGetHarvestingOpportunities(t *testing.T) {
	store := newFakeStore()
	store.transactions = []models.Transaction{
		storedTx(4, "b1", "AAPL", models.KindBuy, "10", "100", "0", "2024-01-05"),
		storedTx(4, "b2", "MSFT", models.KindBuy, "5", "300", "0", "2024-02-01"),
	}
	prices := &fakePriceService{prices: map[string]PriceInfo{
		"AAPL": quote("AAPL", "150"),
		"MSFT": quote("MSFT", "200"),
	}}
	svc := newTaxServiceForTest(store, prices)

	report, err := svc.GetHarvestingOpportunities(4)
	assert.NoError(t, err)

	// Only MSFT is under water: 5 x (300-200) = 500 loss.
	assert.Equal(t, 1, len(report.Opportunities))
	candidate := report.Opportunities[0]
	assert.Equal(t, "MSFT", candidate.Symbol)
	assert.Equal(t, "500", candidate.UnrealizedLoss.String())
	assert.Equal(t, "125", candidate.PotentialTaxSavings.String())
	assert.Equal(t, "500", report.TotalHarvestableLosses.String())
}

func TestGetCostBasis(t *testing.T) {
	store := newFakeStore()
	store.transactions = []models.Transaction{
		storedTx(2, "b1", "AAPL", models.KindBuy, "10", "100", "0", "2024-01-05"),
		storedTx(2, "b2", "AAPL", models.KindBuy, "10", "200", "0", "2024-02-05"),
		storedTx(2, "s1", "AAPL", models.KindSell, "5", "250", "0", "2024-03-01"),
	}
	svc := newTaxServiceForTest(store, &fakePriceService{})

	t.Run("fifo", func(t *testing.T) {
		calc, err := svc.GetCostBasis(2, "stock-AAPL", models.MethodFIFO)
		assert.NoError(t, err)
		assert.Equal(t, "15", calc.TotalQuantity.String())
		assert.Equal(t, "2500", calc.TotalCost.String())
		assert.Equal(t, 2, len(calc.RemainingLots))
	})

	t.Run("average pools lots", func(t *testing.T) {
		calc, err := svc.GetCostBasis(2, "stock-AAPL", models.MethodAverage)
		assert.NoError(t, err)
		assert.Equal(t, "15", calc.TotalQuantity.String())
		assert.Equal(t, "2250", calc.TotalCost.String())
		assert.Equal(t, "150", calc.AverageCostPerUnit.String())
		assert.Equal(t, 1, len(calc.RemainingLots))
		assert.Equal(t, "average", calc.RemainingLots[0].Date)
	})

	t.Run("unknown method rejected", func(t *testing.T) {
		_, err := svc.GetCostBasis(2, "stock-AAPL", models.CostBasisMethod("hifo"))
		assert.Error(t, err)
		assert.IsError(t, err, models.ErrInvalidMethod)
	})
}
