package processors

import (
	"github.com/username/gainfolio/backend/src/models"
	"github.com/username/gainfolio/backend/src/utils"
)

// BuildCostBasisCalculation shapes an open-lot inventory into the cost
// basis snapshot served to clients. Lot-level figures keep full precision;
// only the total is fixed to cents. Under the average method the single
// pooled lot carries the literal date "average" because it has no real
// acquisition date.
func BuildCostBasisCalculation(assetID string, inv models.LotInventory, method models.CostBasisMethod) models.CostBasisCalculation {
	calc := models.CostBasisCalculation{
		AssetID:       assetID,
		Symbol:        inv.Symbol,
		Method:        method,
		RemainingLots: []models.RemainingLot{},
	}

	for _, lot := range inv.Lots {
		date := utils.FormatDate(lot.AcquiredAt)
		if method == models.MethodAverage {
			date = "average"
		}
		calc.RemainingLots = append(calc.RemainingLots, models.RemainingLot{
			Date:      date,
			Quantity:  lot.RemainingQuantity,
			UnitCost:  lot.UnitCost,
			TotalCost: lot.RemainingCost(),
		})
		calc.TotalQuantity = calc.TotalQuantity.Add(lot.RemainingQuantity)
		calc.TotalCost = calc.TotalCost.Add(lot.RemainingCost())
	}

	if calc.TotalQuantity.IsPositive() {
		calc.AverageCostPerUnit = calc.TotalCost.Div(calc.TotalQuantity)
	}
	calc.TotalCost = calc.TotalCost.Round(2)
	return calc
}
