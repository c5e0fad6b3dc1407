// backend/src/processors/lot_matcher.go
package processors

import (
	"fmt"
	"sort"

	"github.com/shopspring/decimal"

	"github.com/username/gainfolio/backend/src/models"
)

// LotMatcher replays transaction history into open lots and lot
// consumptions under a cost basis method. It is pure: inputs are never
// mutated and every call returns fresh snapshots.
type LotMatcher struct{}

func NewLotMatcher() *LotMatcher {
	return &LotMatcher{}
}

// MatchLots replays the transactions of a single symbol in timestamp order
// (ties broken by transaction ID) and returns the open-lot inventory plus
// one SellMatch per disposal.
//
// fifo consumes the oldest open lot first, lifo the newest; both keep the
// inventory itself in acquisition order so holding periods always come from
// the original lot. average pools every acquisition into one synthetic lot
// and produces no per-disposal matches; it exists for display and must not
// feed gain calculations.
//
// A disposal that exceeds the available quantity consumes what it can and
// comes back with QuantityConsumed < QuantityRequested. That is the
// caller's signal, not an error.
func (m *LotMatcher) MatchLots(txs []models.Transaction, method models.CostBasisMethod) (models.LotInventory, []models.SellMatch, error) {
	switch method {
	case models.MethodFIFO, models.MethodLIFO, models.MethodAverage:
	default:
		return models.LotInventory{}, nil, fmt.Errorf("%w: %q (supported: fifo, lifo, average)", models.ErrInvalidMethod, method)
	}

	ordered := make([]models.Transaction, len(txs))
	copy(ordered, txs)
	models.SortTransactions(ordered)

	inv := models.LotInventory{}
	if len(ordered) > 0 {
		inv.Symbol = ordered[0].Symbol
	}

	if method == models.MethodAverage {
		inv.Lots = poolAverageLot(ordered)
		return inv, nil, nil
	}

	var lots []models.Lot
	var matches []models.SellMatch

	for _, tx := range ordered {
		if !tx.Quantity.IsPositive() {
			continue
		}
		switch {
		case tx.Kind.Acquires():
			lots = append(lots, openLot(tx))
		case tx.Kind.Disposes():
			var match models.SellMatch
			lots, match = consume(lots, tx, method)
			matches = append(matches, match)
		}
	}

	for _, l := range lots {
		if !l.Exhausted() {
			inv.Lots = append(inv.Lots, l)
		}
	}
	return inv, matches, nil
}

// MatchAll groups mixed-symbol history by symbol and matches each group.
// Symbols are processed in sorted order so results are reproducible.
func (m *LotMatcher) MatchAll(txs []models.Transaction, method models.CostBasisMethod) (map[string]models.LotInventory, []models.SellMatch, error) {
	grouped := make(map[string][]models.Transaction)
	for _, tx := range txs {
		if tx.Symbol == "" {
			continue
		}
		grouped[tx.Symbol] = append(grouped[tx.Symbol], tx)
	}

	symbols := make([]string, 0, len(grouped))
	for sym := range grouped {
		symbols = append(symbols, sym)
	}
	sort.Strings(symbols)

	inventories := make(map[string]models.LotInventory, len(symbols))
	var matches []models.SellMatch
	for _, sym := range symbols {
		inv, symMatches, err := m.MatchLots(grouped[sym], method)
		if err != nil {
			return nil, nil, err
		}
		inventories[sym] = inv
		matches = append(matches, symMatches...)
	}
	return inventories, matches, nil
}

// openLot turns an acquiring transaction into a lot. The acquisition fee is
// spread across the purchased units so the lot's unit cost already carries
// it; selling part of the lot keeps basis conservation automatic.
func openLot(tx models.Transaction) models.Lot {
	perUnitFee := decimal.Zero
	if tx.Fees.IsPositive() {
		perUnitFee = tx.Fees.Div(tx.Quantity)
	}
	return models.Lot{
		OriginTransactionID: tx.ID,
		Symbol:              tx.Symbol,
		AcquiredAt:          tx.Timestamp,
		OriginalQuantity:    tx.Quantity,
		RemainingQuantity:   tx.Quantity,
		UnitCost:            tx.UnitPrice.Add(perUnitFee),
		PerUnitFee:          perUnitFee,
	}
}

// consume satisfies a disposal from the open lots and returns the updated
// lot slice plus the match record. Exhausted lots stay in the slice (their
// position matters for lifo ordering) and are filtered out at the end.
func consume(lots []models.Lot, sell models.Transaction, method models.CostBasisMethod) ([]models.Lot, models.SellMatch) {
	match := models.SellMatch{
		Sell:              sell,
		QuantityRequested: sell.Quantity,
		QuantityConsumed:  decimal.Zero,
	}

	need := sell.Quantity
	for need.IsPositive() {
		idx := nextOpen(lots, method)
		if idx < 0 {
			break
		}
		take := decimal.Min(need, lots[idx].RemainingQuantity)
		match.Consumed = append(match.Consumed, models.LotConsumption{
			Lot:           lots[idx],
			QuantityTaken: take,
			UnitCost:      lots[idx].UnitCost,
		})
		lots[idx].RemainingQuantity = lots[idx].RemainingQuantity.Sub(take)
		match.QuantityConsumed = match.QuantityConsumed.Add(take)
		need = need.Sub(take)
	}
	return lots, match
}

func nextOpen(lots []models.Lot, method models.CostBasisMethod) int {
	if method == models.MethodLIFO {
		for i := len(lots) - 1; i >= 0; i-- {
			if !lots[i].Exhausted() {
				return i
			}
		}
		return -1
	}
	for i := range lots {
		if !lots[i].Exhausted() {
			return i
		}
	}
	return -1
}

// poolAverageLot nets the full history into one synthetic lot priced at the
// average acquisition cost. Recomputed from scratch every time: the pool's
// unit cost reflects all acquisitions, not the order of disposals.
func poolAverageLot(ordered []models.Transaction) []models.Lot {
	totalBought := decimal.Zero
	totalCost := decimal.Zero
	totalFees := decimal.Zero
	totalSold := decimal.Zero
	symbol := ""

	for _, tx := range ordered {
		if !tx.Quantity.IsPositive() {
			continue
		}
		if symbol == "" {
			symbol = tx.Symbol
		}
		switch {
		case tx.Kind.Acquires():
			totalBought = totalBought.Add(tx.Quantity)
			totalCost = totalCost.Add(tx.Quantity.Mul(tx.UnitPrice)).Add(tx.Fees)
			totalFees = totalFees.Add(tx.Fees)
		case tx.Kind.Disposes():
			totalSold = totalSold.Add(tx.Quantity)
		}
	}

	remaining := totalBought.Sub(totalSold)
	if !remaining.IsPositive() || !totalBought.IsPositive() {
		return nil
	}

	avgCost := totalCost.Div(totalBought)
	return []models.Lot{{
		Symbol:            symbol,
		OriginalQuantity:  remaining,
		RemainingQuantity: remaining,
		UnitCost:          avgCost,
		PerUnitFee:        totalFees.Div(totalBought),
	}}
}
