// backend/src/models/lot.go
package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Lot is an open tax lot created by an acquiring transaction. UnitCost
// already includes the acquisition fee spread over the purchased units, so
// RemainingQuantity x UnitCost is always the remaining cost basis.
type Lot struct {
	OriginTransactionID string          `json:"origin_transaction_id"`
	Symbol              string          `json:"symbol"`
	AcquiredAt          time.Time       `json:"acquired_at"`
	OriginalQuantity    decimal.Decimal `json:"original_quantity"`
	RemainingQuantity   decimal.Decimal `json:"remaining_quantity"`
	UnitCost            decimal.Decimal `json:"unit_cost"`
	PerUnitFee          decimal.Decimal `json:"per_unit_fee"`
}

func (l Lot) Exhausted() bool {
	return !l.RemainingQuantity.IsPositive()
}

// RemainingCost is the cost basis still tied up in this lot.
func (l Lot) RemainingCost() decimal.Decimal {
	return l.RemainingQuantity.Mul(l.UnitCost)
}

// LotInventory is the open-lot snapshot for one symbol, ordered by
// acquisition time (ties by origin transaction ID). Matching never mutates
// an inventory in place; it returns a fresh snapshot instead.
type LotInventory struct {
	Symbol string `json:"symbol"`
	Lots   []Lot  `json:"lots"`
}

// Clone deep-copies the inventory so callers can hold snapshots safely.
func (inv LotInventory) Clone() LotInventory {
	out := LotInventory{Symbol: inv.Symbol}
	if len(inv.Lots) > 0 {
		out.Lots = make([]Lot, len(inv.Lots))
		copy(out.Lots, inv.Lots)
	}
	return out
}

// TotalRemaining sums the open quantity across all lots.
func (inv LotInventory) TotalRemaining() decimal.Decimal {
	total := decimal.Zero
	for _, l := range inv.Lots {
		total = total.Add(l.RemainingQuantity)
	}
	return total
}

// RemainingCostBasis sums quantity x unit cost across open lots.
func (inv LotInventory) RemainingCostBasis() decimal.Decimal {
	total := decimal.Zero
	for _, l := range inv.Lots {
		total = total.Add(l.RemainingCost())
	}
	return total
}

// EarliestOpen returns the oldest lot that still has units, used for
// hypothetical holding-period classification of open positions.
func (inv LotInventory) EarliestOpen() (Lot, bool) {
	for _, l := range inv.Lots {
		if !l.Exhausted() {
			return l, true
		}
	}
	return Lot{}, false
}

// LotConsumption records units taken from one lot to satisfy a disposal.
// Lot is the snapshot before consumption.
type LotConsumption struct {
	Lot           Lot             `json:"lot"`
	QuantityTaken decimal.Decimal `json:"quantity_taken"`
	UnitCost      decimal.Decimal `json:"unit_cost"`
}

func (c LotConsumption) Cost() decimal.Decimal {
	return c.QuantityTaken.Mul(c.UnitCost)
}

// SellMatch ties a disposing transaction to the lots it consumed. When the
// history cannot cover the full quantity the match is kept partial rather
// than rejected; Unresolved reports the shortfall.
type SellMatch struct {
	Sell              Transaction      `json:"sell"`
	Consumed          []LotConsumption `json:"consumed"`
	QuantityRequested decimal.Decimal  `json:"quantity_requested"`
	QuantityConsumed  decimal.Decimal  `json:"quantity_consumed"`
}

func (m SellMatch) Unresolved() bool {
	return m.QuantityConsumed.LessThan(m.QuantityRequested)
}

func (m SellMatch) Shortfall() decimal.Decimal {
	return m.QuantityRequested.Sub(m.QuantityConsumed)
}

// CostBasis sums the acquisition cost of everything this sale consumed.
func (m SellMatch) CostBasis() decimal.Decimal {
	total := decimal.Zero
	for _, c := range m.Consumed {
		total = total.Add(c.Cost())
	}
	return total
}

// EarliestAcquisition is the oldest consumed lot's acquisition time. The
// whole sale inherits it for holding-period purposes.
func (m SellMatch) EarliestAcquisition() (time.Time, bool) {
	var earliest time.Time
	found := false
	for _, c := range m.Consumed {
		if !found || c.Lot.AcquiredAt.Before(earliest) {
			earliest = c.Lot.AcquiredAt
			found = true
		}
	}
	return earliest, found
}

// RemainingLot is the wire shape of an open lot in cost basis responses.
// Date is a calendar date, or the literal "average" for the pooled lot the
// average method produces. UnitCost is fee inclusive, so TotalCost is
// always Quantity x UnitCost even after partial consumption.
type RemainingLot struct {
	Date      string          `json:"date"`
	Quantity  decimal.Decimal `json:"quantity"`
	UnitCost  decimal.Decimal `json:"unit_cost"`
	TotalCost decimal.Decimal `json:"total_cost"`
}

// CostBasisCalculation is the per-asset result of replaying history under
// one cost basis method.
type CostBasisCalculation struct {
	AssetID            string          `json:"asset_id"`
	Symbol             string          `json:"symbol"`
	TotalQuantity      decimal.Decimal `json:"total_quantity"`
	TotalCost          decimal.Decimal `json:"total_cost"`
	AverageCostPerUnit decimal.Decimal `json:"average_cost_per_unit"`
	Method             CostBasisMethod `json:"method"`
	RemainingLots      []RemainingLot  `json:"remaining_lots"`
}
