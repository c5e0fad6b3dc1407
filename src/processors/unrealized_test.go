package processors

import (
	"testing"
	"time"

	"github.com/alecthomas/assert/v2"
	"github.com/shopspring/decimal"

	"github.com/username/gainfolio/backend/src/models"
)

func TestValuePositions(t *testing.T) {
	history := []models.Transaction{
		buy("b1", "AAA", "10", "10", ts("2023-01-15")),
		sell("s1", "AAA", "4", "12", ts("2023-08-01")),
		buy("b2", "BBB", "2", "500", ts("2024-06-01")),
	}
	prices := map[string]decimal.Decimal{
		"AAA": dec("20"),
		"BBB": dec("400"),
	}
	asOf := ts("2024-07-01")

	positions, err := NewUnrealizedPositionValuer().ValuePositions(history, prices, asOf)
	assert.NoError(t, err)
	assert.Equal(t, 2, len(positions))

	aaa := positions[0]
	assert.Equal(t, "AAA", aaa.Symbol)
	assert.Equal(t, "6", aaa.Quantity.String())
	assert.Equal(t, "60", aaa.CostBasis.String())
	assert.Equal(t, "120", aaa.CurrentValue.String())
	assert.Equal(t, "60", aaa.UnrealizedGainLoss.String())
	assert.Equal(t, "100", aaa.GainLossPercentage.String())
	// Held since 2023-01-15, well past a year if sold today.
	assert.Equal(t, models.LongTerm, aaa.HoldingPeriod)
	assert.NotZero(t, aaa.EarliestAcquisition)
	assert.True(t, aaa.EarliestAcquisition.Equal(ts("2023-01-15")))

	bbb := positions[1]
	assert.Equal(t, "-200", bbb.UnrealizedGainLoss.String())
	assert.Equal(t, "-20", bbb.GainLossPercentage.String())
	assert.Equal(t, models.ShortTerm, bbb.HoldingPeriod)
}

func TestValuePositionsSkipsClosedPositions(t *testing.T) {
	history := []models.Transaction{
		buy("b1", "AAA", "5", "10", ts("2024-01-01")),
		sell("s1", "AAA", "5", "12", ts("2024-02-01")),
	}

	positions, err := NewUnrealizedPositionValuer().ValuePositions(history, map[string]decimal.Decimal{"AAA": dec("15")}, ts("2024-03-01"))
	assert.NoError(t, err)
	assert.Equal(t, 0, len(positions))
}

func TestValuePositionsMissingPrice(t *testing.T) {
	history := []models.Transaction{
		buy("b1", "AAA", "5", "10", ts("2024-01-01")),
	}

	positions, err := NewUnrealizedPositionValuer().ValuePositions(history, nil, ts("2024-03-01"))
	assert.NoError(t, err)
	assert.Equal(t, 1, len(positions))
	// Unpriced positions stay visible, valued at zero.
	assert.Equal(t, "0", positions[0].CurrentValue.String())
	assert.Equal(t, "-50", positions[0].UnrealizedGainLoss.String())
}

func TestValuePositionsEmptyHistory(t *testing.T) {
	positions, err := NewUnrealizedPositionValuer().ValuePositions(nil, nil, ts("2024-03-01"))
	assert.NoError(t, err)
	assert.Equal(t, 0, len(positions))
}

func TestHarvestCandidates(t *testing.T) {
	asOf := ts("2024-07-01")
	history := []models.Transaction{
		buy("b1", "DOWN1", "10", "100", ts("2024-01-01")),
		buy("b2", "DOWN2", "10", "50", ts("2024-02-01")),
		buy("b3", "UP", "10", "10", ts("2024-03-01")),
		// Recent repurchase puts DOWN2 at wash sale risk.
		buy("b4", "DOWN2", "2", "20", ts("2024-06-20")),
	}
	prices := map[string]decimal.Decimal{
		"DOWN1": dec("60"),
		"DOWN2": dec("20"),
		"UP":    dec("25"),
	}

	valuer := NewUnrealizedPositionValuer()
	positions, err := valuer.ValuePositions(history, prices, asOf)
	assert.NoError(t, err)

	candidates := valuer.HarvestCandidates(positions, history, asOf)
	assert.Equal(t, 2, len(candidates))

	// Largest loss first: DOWN1 lost 400, DOWN2 lost 300.
	first := candidates[0]
	assert.Equal(t, "DOWN1", first.Symbol)
	assert.Equal(t, "400", first.UnrealizedLoss.String())
	assert.Equal(t, "100", first.PotentialTaxSavings.String())
	assert.False(t, first.WashSaleRisk)

	second := candidates[1]
	assert.Equal(t, "DOWN2", second.Symbol)
	assert.Equal(t, "300", second.UnrealizedLoss.String())
	assert.Equal(t, "75", second.PotentialTaxSavings.String())
	assert.True(t, second.WashSaleRisk)
}

func TestHarvestCandidatesWashRiskEdgeInstants(t *testing.T) {
	// The trailing window is instant-based: a buy just over 30 days back
	// carries no risk, a buy exactly 30 days back still does.
	asOf := time.Date(2024, 7, 1, 0, 0, 0, 0, time.UTC)
	tests := []struct {
		name   string
		buyAt  time.Time
		atRisk bool
	}{
		{"30 days 12 hours before asOf", asOf.Add(-(30*24*time.Hour + 12*time.Hour)), false},
		{"exactly 30 days before asOf", asOf.AddDate(0, 0, -30), true},
		{"one second inside the window", asOf.AddDate(0, 0, -30).Add(time.Second), true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			history := []models.Transaction{
				buy("b1", "AAA", "10", "100", ts("2024-01-01")),
				buy("b2", "AAA", "1", "40", tc.buyAt),
			}
			valuer := NewUnrealizedPositionValuer()
			positions, err := valuer.ValuePositions(history, map[string]decimal.Decimal{"AAA": dec("50")}, asOf)
			assert.NoError(t, err)

			candidates := valuer.HarvestCandidates(positions, history, asOf)
			assert.Equal(t, 1, len(candidates))
			assert.Equal(t, tc.atRisk, candidates[0].WashSaleRisk)
		})
	}
}

func TestHarvestCandidatesIgnoresOldBuys(t *testing.T) {
	asOf := ts("2024-07-01")
	history := []models.Transaction{
		buy("b1", "AAA", "10", "100", ts("2024-01-01")),
	}
	positions, err := NewUnrealizedPositionValuer().ValuePositions(history, map[string]decimal.Decimal{"AAA": dec("50")}, asOf)
	assert.NoError(t, err)

	candidates := NewUnrealizedPositionValuer().HarvestCandidates(positions, history, asOf)
	assert.Equal(t, 1, len(candidates))
	// The only buy is months old; no forward-looking wash risk.
	assert.False(t, candidates[0].WashSaleRisk)
}
