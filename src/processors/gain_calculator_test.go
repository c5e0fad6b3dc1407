package processors

import (
	"errors"
	"testing"
	"time"

	"github.com/alecthomas/assert/v2"

	"github.com/username/gainfolio/backend/src/models"
)

func matchFor(t *testing.T, history []models.Transaction, method models.CostBasisMethod) models.SellMatch {
	t.Helper()
	_, matches, err := NewLotMatcher().MatchLots(history, method)
	assert.NoError(t, err)
	assert.Equal(t, 1, len(matches))
	return matches[0]
}

func TestCalculateRealizedGainMultiLotSale(t *testing.T) {
	history := []models.Transaction{
		buy("b1", "XYZ", "5", "10", time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)),
		buy("b2", "XYZ", "5", "20", time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)),
		sell("s1", "XYZ", "6", "30", time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC)),
	}

	gain, err := NewGainCalculator().CalculateRealizedGain(matchFor(t, history, models.MethodFIFO))
	assert.NoError(t, err)

	assert.Equal(t, "s1", gain.SellTransactionID)
	assert.Equal(t, "70", gain.CostBasis.String())
	assert.Equal(t, "180", gain.Proceeds.String())
	assert.Equal(t, "110", gain.GainLoss.String())
	assert.Equal(t, 397, gain.DaysHeld)
	assert.Equal(t, models.LongTerm, gain.HoldingPeriod)
	// The whole sale inherits the earliest consumed lot's date.
	assert.True(t, gain.AcquisitionDate.Equal(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)))
}

func TestCalculateRealizedGainHoldingBoundary(t *testing.T) {
	acquired := time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name     string
		saleDate time.Time
		days     int
		period   models.HoldingPeriod
	}{
		{"exactly 365 days stays short term", acquired.AddDate(0, 0, 365), 365, models.ShortTerm},
		{"366 days becomes long term", acquired.AddDate(0, 0, 366), 366, models.LongTerm},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			history := []models.Transaction{
				buy("b1", "ABC", "1", "100", acquired),
				sell("s1", "ABC", "1", "100", tc.saleDate),
			}
			gain, err := NewGainCalculator().CalculateRealizedGain(matchFor(t, history, models.MethodFIFO))
			assert.NoError(t, err)
			assert.Equal(t, tc.days, gain.DaysHeld)
			assert.Equal(t, tc.period, gain.HoldingPeriod)
		})
	}
}

func TestCalculateRealizedGainSellFeesNotDeducted(t *testing.T) {
	history := []models.Transaction{
		tx("b1", models.KindBuy, "ABC", "10", "10", "2", day(1)),
		tx("s1", models.KindSell, "ABC", "10", "15", "3", day(20)),
	}

	gain, err := NewGainCalculator().CalculateRealizedGain(matchFor(t, history, models.MethodFIFO))
	assert.NoError(t, err)
	// Proceeds stay gross; only the buy-side fee lands in cost basis.
	assert.Equal(t, "150", gain.Proceeds.String())
	assert.Equal(t, "102", gain.CostBasis.String())
	assert.Equal(t, "48", gain.GainLoss.String())
}

func TestCalculateRealizedGainUnresolvable(t *testing.T) {
	t.Run("partial match", func(t *testing.T) {
		history := []models.Transaction{
			buy("b1", "ABC", "5", "10", day(1)),
			sell("s1", "ABC", "8", "12", day(2)),
		}
		gain, err := NewGainCalculator().CalculateRealizedGain(matchFor(t, history, models.MethodFIFO))
		assert.Error(t, err)
		assert.True(t, errors.Is(err, ErrUnresolvableSale))
		assert.Zero(t, gain)
	})

	t.Run("no purchase history", func(t *testing.T) {
		history := []models.Transaction{
			sell("s1", "ABC", "8", "12", day(2)),
		}
		_, err := NewGainCalculator().CalculateRealizedGain(matchFor(t, history, models.MethodFIFO))
		assert.Error(t, err)
		assert.True(t, errors.Is(err, ErrUnresolvableSale))
	})
}

func TestCalculateRealizedGainLoss(t *testing.T) {
	history := []models.Transaction{
		buy("b1", "ABC", "10", "50", day(1)),
		sell("s1", "ABC", "10", "30", day(90)),
	}

	gain, err := NewGainCalculator().CalculateRealizedGain(matchFor(t, history, models.MethodFIFO))
	assert.NoError(t, err)
	assert.Equal(t, "-200", gain.GainLoss.String())
	assert.True(t, gain.IsLoss())
	assert.Equal(t, models.ShortTerm, gain.HoldingPeriod)
}
