package processors

import (
	"testing"

	"github.com/alecthomas/assert/v2"
	"github.com/shopspring/decimal"

	"github.com/username/gainfolio/backend/src/models"
)

func TestBuildCostBasisCalculation(t *testing.T) {
	history := []models.Transaction{
		tx("b1", models.KindBuy, "XYZ", "10", "10", "2", ts("2024-01-05")),
		buy("b2", "XYZ", "5", "20", ts("2024-02-10")),
		sell("s1", "XYZ", "8", "25", ts("2024-03-01")),
	}

	inv, _, err := NewLotMatcher().MatchLots(history, models.MethodFIFO)
	assert.NoError(t, err)

	calc := BuildCostBasisCalculation("asset-1", inv, models.MethodFIFO)
	assert.Equal(t, "asset-1", calc.AssetID)
	assert.Equal(t, "XYZ", calc.Symbol)
	assert.Equal(t, models.MethodFIFO, calc.Method)
	assert.Equal(t, "7", calc.TotalQuantity.String())

	// 2 units left of the fee-laden lot at 10.2, plus 5 at 20.
	assert.Equal(t, "120.40", calc.TotalCost.StringFixed(2))
	assert.Equal(t, 2, len(calc.RemainingLots))
	assert.Equal(t, "2024-01-05", calc.RemainingLots[0].Date)
	assert.Equal(t, "10.2", calc.RemainingLots[0].UnitCost.String())
	assert.Equal(t, "2024-02-10", calc.RemainingLots[1].Date)
}

// Whatever has been realized plus whatever remains must equal everything
// ever paid; partial consumption cannot leak basis.
func TestCostBasisRoundTrip(t *testing.T) {
	history := []models.Transaction{
		tx("b1", models.KindBuy, "XYZ", "10", "10", "2", ts("2024-01-05")),
		tx("b2", models.KindBuy, "XYZ", "6", "20", "3", ts("2024-02-10")),
		sell("s1", "XYZ", "8", "25", ts("2024-03-01")),
		sell("s2", "XYZ", "3", "30", ts("2024-04-01")),
	}

	for _, method := range []models.CostBasisMethod{models.MethodFIFO, models.MethodLIFO} {
		inv, matches, err := NewLotMatcher().MatchLots(history, method)
		assert.NoError(t, err)

		totalBuyCost := dec("10").Mul(dec("10")).Add(dec("2")).
			Add(dec("6").Mul(dec("20")).Add(dec("3")))

		realized := decimal.Zero
		for _, m := range matches {
			realized = realized.Add(m.CostBasis())
		}

		calc := BuildCostBasisCalculation("asset-1", inv, method)
		assert.Equal(t,
			totalBuyCost.Sub(realized).Round(2).String(),
			calc.TotalCost.String())
	}
}

func TestBuildCostBasisCalculationAverageLabel(t *testing.T) {
	history := []models.Transaction{
		buy("b1", "XYZ", "10", "10", ts("2024-01-05")),
		buy("b2", "XYZ", "10", "20", ts("2024-02-10")),
		sell("s1", "XYZ", "5", "25", ts("2024-03-01")),
	}

	inv, _, err := NewLotMatcher().MatchLots(history, models.MethodAverage)
	assert.NoError(t, err)

	calc := BuildCostBasisCalculation("asset-1", inv, models.MethodAverage)
	assert.Equal(t, 1, len(calc.RemainingLots))
	assert.Equal(t, "average", calc.RemainingLots[0].Date)
	assert.Equal(t, "15", calc.RemainingLots[0].UnitCost.String())
	assert.Equal(t, "15", calc.TotalQuantity.String())
	assert.Equal(t, "15", calc.AverageCostPerUnit.String())
}

func TestBuildCostBasisCalculationEmptyInventory(t *testing.T) {
	calc := BuildCostBasisCalculation("asset-1", models.LotInventory{Symbol: "XYZ"}, models.MethodFIFO)
	assert.Equal(t, "0", calc.TotalQuantity.String())
	assert.Equal(t, "0", calc.TotalCost.String())
	assert.Equal(t, "0", calc.AverageCostPerUnit.String())
	assert.Equal(t, 0, len(calc.RemainingLots))
}
