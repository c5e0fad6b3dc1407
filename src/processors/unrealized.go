// backend/src/processors/unrealized.go
package processors

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/username/gainfolio/backend/src/models"
	"github.com/username/gainfolio/backend/src/utils"
)

// harvestSavingsRate is the flat tax-rate estimate behind the potential
// savings figure on harvesting candidates.
var harvestSavingsRate = decimal.New(25, -2)

// UnrealizedPositionValuer values open lots at market prices and proposes
// tax-loss harvesting candidates.
type UnrealizedPositionValuer struct {
	matcher *LotMatcher
}

func NewUnrealizedPositionValuer() *UnrealizedPositionValuer {
	return &UnrealizedPositionValuer{matcher: NewLotMatcher()}
}

// ValuePositions replays the history to "now", then marks every open
// position to the supplied prices. A symbol with no price entry is valued
// at zero rather than dropped, so the caller still sees the position and
// can warn about the stale quote. Positions come back sorted by symbol.
func (v *UnrealizedPositionValuer) ValuePositions(txs []models.Transaction, prices map[string]decimal.Decimal, asOf time.Time) ([]models.UnrealizedPosition, error) {
	inventories, _, err := v.matcher.MatchAll(txs, models.MethodFIFO)
	if err != nil {
		return nil, err
	}

	assetTypes := make(map[string]models.AssetType)
	for _, tx := range txs {
		if _, seen := assetTypes[tx.Symbol]; !seen {
			assetTypes[tx.Symbol] = tx.AssetType
		}
	}

	symbols := make([]string, 0, len(inventories))
	for sym := range inventories {
		symbols = append(symbols, sym)
	}
	sort.Strings(symbols)

	positions := make([]models.UnrealizedPosition, 0, len(symbols))
	for _, sym := range symbols {
		inv := inventories[sym]
		quantity := inv.TotalRemaining()
		if !quantity.IsPositive() {
			continue
		}

		costBasis := inv.RemainingCostBasis().Round(2)
		price := prices[sym]
		currentValue := quantity.Mul(price).Round(2)
		unrealized := currentValue.Sub(costBasis)

		pct := decimal.Zero
		if costBasis.IsPositive() {
			pct = unrealized.Div(costBasis).Mul(decimal.New(100, 0)).Round(2)
		}

		pos := models.UnrealizedPosition{
			Symbol:             sym,
			AssetType:          assetTypes[sym],
			Quantity:           quantity,
			CostBasis:          costBasis,
			CurrentPrice:       price,
			CurrentValue:       currentValue,
			UnrealizedGainLoss: unrealized,
			GainLossPercentage: pct,
			HoldingPeriod:      models.HoldingUnknown,
		}
		if lot, ok := inv.EarliestOpen(); ok {
			acquiredAt := lot.AcquiredAt
			pos.EarliestAcquisition = &acquiredAt
			pos.HoldingPeriod = models.ClassifyHolding(utils.DaysBetween(acquiredAt, asOf))
		}
		positions = append(positions, pos)
	}
	return positions, nil
}

// HarvestCandidates selects the losing positions, largest loss first, and
// annotates each with a forward-looking wash sale risk: selling now would
// collide with a same-symbol purchase made in the trailing 30 days.
func (v *UnrealizedPositionValuer) HarvestCandidates(positions []models.UnrealizedPosition, txs []models.Transaction, asOf time.Time) []models.HarvestCandidate {
	windowStart := asOf.AddDate(0, 0, -WashSaleWindowDays)
	recentBuy := make(map[string]bool)
	for _, tx := range txs {
		if !tx.Kind.Acquires() {
			continue
		}
		if !tx.Timestamp.Before(windowStart) && !tx.Timestamp.After(asOf) {
			recentBuy[tx.Symbol] = true
		}
	}

	candidates := make([]models.HarvestCandidate, 0)
	for _, pos := range positions {
		if !pos.UnrealizedGainLoss.IsNegative() {
			continue
		}
		loss := pos.UnrealizedGainLoss.Abs()
		candidates = append(candidates, models.HarvestCandidate{
			Symbol:              pos.Symbol,
			AssetType:           pos.AssetType,
			UnrealizedLoss:      loss,
			Quantity:            pos.Quantity,
			CurrentValue:        pos.CurrentValue,
			CostBasis:           pos.CostBasis,
			PotentialTaxSavings: loss.Mul(harvestSavingsRate).Round(2),
			WashSaleRisk:        recentBuy[pos.Symbol],
			HoldingPeriod:       pos.HoldingPeriod,
		})
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		if !candidates[i].UnrealizedLoss.Equal(candidates[j].UnrealizedLoss) {
			return candidates[i].UnrealizedLoss.GreaterThan(candidates[j].UnrealizedLoss)
		}
		return candidates[i].Symbol < candidates[j].Symbol
	})
	return candidates
}
