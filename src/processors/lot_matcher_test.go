package processors

import (
	"errors"
	"testing"
	"time"

	"github.com/alecthomas/assert/v2"
	"github.com/shopspring/decimal"

	"github.com/username/gainfolio/backend/src/models"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

// day maps scenario day numbers onto real dates, day 1 being 2024-01-01.
func day(n int) time.Time {
	return time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC).AddDate(0, 0, n-1)
}

func tx(id string, kind models.TransactionKind, symbol, qty, price, fees string, ts time.Time) models.Transaction {
	return models.Transaction{
		ID:        id,
		Symbol:    symbol,
		AssetType: models.AssetStock,
		Kind:      kind,
		Quantity:  dec(qty),
		UnitPrice: dec(price),
		Fees:      dec(fees),
		Timestamp: ts,
	}
}

func buy(id, symbol, qty, price string, ts time.Time) models.Transaction {
	return tx(id, models.KindBuy, symbol, qty, price, "0", ts)
}

func sell(id, symbol, qty, price string, ts time.Time) models.Transaction {
	return tx(id, models.KindSell, symbol, qty, price, "0", ts)
}

func TestMatchLotsMethodOrdering(t *testing.T) {
	history := []models.Transaction{
		buy("b1", "ABC", "10", "1", day(1)),
		buy("b2", "ABC", "10", "2", day(5)),
		sell("s1", "ABC", "12", "3", day(10)),
	}

	t.Run("fifo consumes oldest first", func(t *testing.T) {
		inv, matches, err := NewLotMatcher().MatchLots(history, models.MethodFIFO)
		assert.NoError(t, err)
		assert.Equal(t, 1, len(matches))

		match := matches[0]
		assert.False(t, match.Unresolved())
		assert.Equal(t, "14", match.CostBasis().String())
		assert.Equal(t, 2, len(match.Consumed))
		assert.Equal(t, "b1", match.Consumed[0].Lot.OriginTransactionID)
		assert.Equal(t, "10", match.Consumed[0].QuantityTaken.String())
		assert.Equal(t, "b2", match.Consumed[1].Lot.OriginTransactionID)
		assert.Equal(t, "2", match.Consumed[1].QuantityTaken.String())

		assert.Equal(t, 1, len(inv.Lots))
		assert.Equal(t, "b2", inv.Lots[0].OriginTransactionID)
		assert.Equal(t, "8", inv.Lots[0].RemainingQuantity.String())
	})

	t.Run("lifo consumes newest first", func(t *testing.T) {
		inv, matches, err := NewLotMatcher().MatchLots(history, models.MethodLIFO)
		assert.NoError(t, err)
		assert.Equal(t, 1, len(matches))

		match := matches[0]
		assert.Equal(t, "22", match.CostBasis().String())
		assert.Equal(t, "b2", match.Consumed[0].Lot.OriginTransactionID)
		assert.Equal(t, "10", match.Consumed[0].QuantityTaken.String())
		assert.Equal(t, "b1", match.Consumed[1].Lot.OriginTransactionID)
		assert.Equal(t, "2", match.Consumed[1].QuantityTaken.String())

		// The surviving units belong to the original day-1 lot.
		assert.Equal(t, 1, len(inv.Lots))
		assert.Equal(t, "b1", inv.Lots[0].OriginTransactionID)
		assert.Equal(t, "8", inv.Lots[0].RemainingQuantity.String())
		assert.True(t, inv.Lots[0].AcquiredAt.Equal(day(1)))
	})
}

func TestMatchLotsConservation(t *testing.T) {
	history := []models.Transaction{
		buy("b1", "ABC", "10", "5", day(1)),
		buy("b2", "ABC", "7", "6", day(3)),
		sell("s1", "ABC", "4", "8", day(5)),
		buy("b3", "ABC", "2.5", "7", day(7)),
		sell("s2", "ABC", "9.5", "9", day(9)),
	}

	for _, method := range []models.CostBasisMethod{models.MethodFIFO, models.MethodLIFO} {
		inv, matches, err := NewLotMatcher().MatchLots(history, method)
		assert.NoError(t, err)

		bought := dec("19.5")
		sold := dec("13.5")
		assert.Equal(t, bought.Sub(sold).String(), inv.TotalRemaining().String())

		consumed := decimal.Zero
		for _, m := range matches {
			assert.False(t, m.Unresolved())
			consumed = consumed.Add(m.QuantityConsumed)
		}
		assert.Equal(t, sold.String(), consumed.String())
	}
}

func TestMatchLotsOverMatch(t *testing.T) {
	history := []models.Transaction{
		buy("b1", "ABC", "5", "10", day(1)),
		sell("s1", "ABC", "8", "12", day(2)),
	}

	inv, matches, err := NewLotMatcher().MatchLots(history, models.MethodFIFO)
	assert.NoError(t, err)
	assert.Equal(t, 1, len(matches))

	match := matches[0]
	assert.True(t, match.Unresolved())
	assert.Equal(t, "8", match.QuantityRequested.String())
	assert.Equal(t, "5", match.QuantityConsumed.String())
	assert.Equal(t, "3", match.Shortfall().String())
	assert.Equal(t, 0, len(inv.Lots))
}

func TestMatchLotsSellWithoutBuys(t *testing.T) {
	history := []models.Transaction{
		sell("s1", "ABC", "3", "10", day(1)),
	}

	inv, matches, err := NewLotMatcher().MatchLots(history, models.MethodFIFO)
	assert.NoError(t, err)
	assert.Equal(t, 0, len(inv.Lots))
	assert.Equal(t, 1, len(matches))
	assert.True(t, matches[0].Unresolved())
	assert.Equal(t, 0, len(matches[0].Consumed))
	assert.Equal(t, "0", matches[0].QuantityConsumed.String())
}

func TestMatchLotsExactExhaustion(t *testing.T) {
	history := []models.Transaction{
		buy("b1", "ABC", "5", "10", day(1)),
		buy("b2", "ABC", "5", "12", day(2)),
		sell("s1", "ABC", "10", "15", day(3)),
	}

	inv, matches, err := NewLotMatcher().MatchLots(history, models.MethodFIFO)
	assert.NoError(t, err)
	assert.False(t, matches[0].Unresolved())
	assert.Equal(t, 0, len(inv.Lots))
	assert.Equal(t, "0", inv.TotalRemaining().String())
}

func TestMatchLotsInvalidMethod(t *testing.T) {
	_, _, err := NewLotMatcher().MatchLots(nil, models.CostBasisMethod("hifo"))
	assert.Error(t, err)
	assert.True(t, errors.Is(err, models.ErrInvalidMethod))
	assert.Contains(t, err.Error(), "fifo, lifo, average")
}

func TestMatchLotsFeesFoldIntoUnitCost(t *testing.T) {
	history := []models.Transaction{
		tx("b1", models.KindBuy, "ABC", "10", "10", "1", day(1)),
	}

	inv, _, err := NewLotMatcher().MatchLots(history, models.MethodFIFO)
	assert.NoError(t, err)
	assert.Equal(t, 1, len(inv.Lots))
	assert.Equal(t, "10.1", inv.Lots[0].UnitCost.String())
	assert.Equal(t, "0.1", inv.Lots[0].PerUnitFee.String())
	assert.Equal(t, "101", inv.RemainingCostBasis().String())
}

func TestMatchLotsTransfersActAsBuysAndSells(t *testing.T) {
	history := []models.Transaction{
		tx("t1", models.KindTransferIn, "ABC", "4", "25", "0", day(1)),
		tx("t2", models.KindTransferOut, "ABC", "1", "0", "0", day(3)),
	}

	inv, matches, err := NewLotMatcher().MatchLots(history, models.MethodFIFO)
	assert.NoError(t, err)
	assert.Equal(t, "3", inv.TotalRemaining().String())
	assert.Equal(t, 1, len(matches))
	assert.False(t, matches[0].Unresolved())
}

func TestMatchLotsTimestampTieBrokenByID(t *testing.T) {
	// Same instant: the lower transaction ID must open its lot first.
	history := []models.Transaction{
		buy("b2", "ABC", "5", "20", day(1)),
		buy("b1", "ABC", "5", "10", day(1)),
		sell("s1", "ABC", "5", "30", day(2)),
	}

	_, matches, err := NewLotMatcher().MatchLots(history, models.MethodFIFO)
	assert.NoError(t, err)
	assert.Equal(t, "b1", matches[0].Consumed[0].Lot.OriginTransactionID)
	assert.Equal(t, "50", matches[0].CostBasis().String())
}

func TestMatchLotsAveragePoolsHistory(t *testing.T) {
	history := []models.Transaction{
		tx("b1", models.KindBuy, "ABC", "10", "10", "5", day(1)),
		tx("b2", models.KindBuy, "ABC", "10", "20", "5", day(30)),
		sell("s1", "ABC", "5", "18", day(40)),
	}

	inv, matches, err := NewLotMatcher().MatchLots(history, models.MethodAverage)
	assert.NoError(t, err)
	// Display-only mode: no per-sale matches are produced.
	assert.Equal(t, 0, len(matches))
	assert.Equal(t, 1, len(inv.Lots))

	pooled := inv.Lots[0]
	// (100 + 5 + 200 + 5) / 20 = 15.5, applied to the 15 units left.
	assert.Equal(t, "15", pooled.RemainingQuantity.String())
	assert.Equal(t, "15.5", pooled.UnitCost.String())
	assert.True(t, pooled.AcquiredAt.IsZero())
}

func TestMatchLotsAverageFullyDisposed(t *testing.T) {
	history := []models.Transaction{
		buy("b1", "ABC", "10", "10", day(1)),
		sell("s1", "ABC", "10", "12", day(2)),
	}

	inv, _, err := NewLotMatcher().MatchLots(history, models.MethodAverage)
	assert.NoError(t, err)
	assert.Equal(t, 0, len(inv.Lots))
}

func TestMatchLotsDoesNotMutateInput(t *testing.T) {
	history := []models.Transaction{
		sell("s1", "ABC", "2", "8", day(5)),
		buy("b1", "ABC", "4", "6", day(1)),
	}

	_, _, err := NewLotMatcher().MatchLots(history, models.MethodFIFO)
	assert.NoError(t, err)
	// Caller order is preserved; the matcher sorts its own copy.
	assert.Equal(t, "s1", history[0].ID)
	assert.Equal(t, "b1", history[1].ID)
}

func TestMatchAllGroupsBySymbol(t *testing.T) {
	history := []models.Transaction{
		buy("b1", "AAA", "5", "10", day(1)),
		buy("b2", "BBB", "3", "20", day(2)),
		sell("s1", "AAA", "2", "15", day(3)),
	}

	inventories, matches, err := NewLotMatcher().MatchAll(history, models.MethodFIFO)
	assert.NoError(t, err)
	assert.Equal(t, 2, len(inventories))
	assert.Equal(t, "3", inventories["AAA"].TotalRemaining().String())
	assert.Equal(t, "3", inventories["BBB"].TotalRemaining().String())
	assert.Equal(t, 1, len(matches))
	assert.Equal(t, "AAA", matches[0].Sell.Symbol)
}
