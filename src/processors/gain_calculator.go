// backend/src/processors/gain_calculator.go
package processors

import (
	"fmt"

	"github.com/username/gainfolio/backend/src/models"
	"github.com/username/gainfolio/backend/src/utils"
)

// GainCalculator turns a resolved lot match into a realized gain record.
type GainCalculator struct{}

func NewGainCalculator() *GainCalculator {
	return &GainCalculator{}
}

// CalculateRealizedGain reports the whole sale as one event even when it
// drained several lots. Proceeds are quantity times sale price; disposal
// fees are not netted out of proceeds, acquisition fees already sit in the
// consumed lots' unit cost. The earliest consumed lot dates the holding
// period, the conservative choice when lots of different ages were mixed.
//
// An unresolved match (partial or empty) returns ErrUnresolvableSale so a
// missing-history sale can never masquerade as a zero-cost gain.
func (c *GainCalculator) CalculateRealizedGain(match models.SellMatch) (*models.RealizedGain, error) {
	sell := match.Sell
	if match.Unresolved() {
		return nil, fmt.Errorf("%w: sale %s of %s %s matched only %s",
			ErrUnresolvableSale, sell.ID, sell.Quantity, sell.Symbol, match.QuantityConsumed)
	}

	acquiredAt, ok := match.EarliestAcquisition()
	if !ok {
		return nil, fmt.Errorf("%w: sale %s of %s consumed no lots", ErrUnresolvableSale, sell.ID, sell.Symbol)
	}

	proceeds := sell.Quantity.Mul(sell.UnitPrice)
	costBasis := match.CostBasis()
	daysHeld := utils.DaysBetween(acquiredAt, sell.Timestamp)

	return &models.RealizedGain{
		SellTransactionID: sell.ID,
		Symbol:            sell.Symbol,
		AssetType:         sell.AssetType,
		Quantity:          sell.Quantity,
		AcquisitionDate:   acquiredAt,
		SaleDate:          sell.Timestamp,
		Proceeds:          proceeds,
		CostBasis:         costBasis,
		GainLoss:          proceeds.Sub(costBasis),
		HoldingPeriod:     models.ClassifyHolding(daysHeld),
		DaysHeld:          daysHeld,
	}, nil
}
