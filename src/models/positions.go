package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// UnrealizedPosition values the open lots of one symbol at current market
// prices. HoldingPeriod is hypothetical: what the classification would be
// if the position were sold now, measured from the earliest remaining lot.
type UnrealizedPosition struct {
	Symbol              string          `json:"symbol"`
	AssetType           AssetType       `json:"asset_type"`
	Quantity            decimal.Decimal `json:"quantity"`
	CostBasis           decimal.Decimal `json:"cost_basis"`
	CurrentPrice        decimal.Decimal `json:"current_price"`
	CurrentValue        decimal.Decimal `json:"current_value"`
	UnrealizedGainLoss  decimal.Decimal `json:"unrealized_gain_loss"`
	GainLossPercentage  decimal.Decimal `json:"gain_loss_percentage"`
	HoldingPeriod       HoldingPeriod   `json:"holding_period"`
	EarliestAcquisition *time.Time      `json:"earliest_acquisition,omitempty"`
}

// HarvestCandidate is a losing position proposed for tax-loss harvesting.
// UnrealizedLoss is the loss magnitude (positive). PotentialTaxSavings is a
// flat 25% estimate, not personal tax advice.
type HarvestCandidate struct {
	Symbol              string          `json:"symbol"`
	AssetType           AssetType       `json:"asset_type"`
	UnrealizedLoss      decimal.Decimal `json:"unrealized_loss"`
	Quantity            decimal.Decimal `json:"quantity"`
	CurrentValue        decimal.Decimal `json:"current_value"`
	CostBasis           decimal.Decimal `json:"cost_basis"`
	PotentialTaxSavings decimal.Decimal `json:"potential_tax_savings_estimate"`
	WashSaleRisk        bool            `json:"wash_sale_risk"`
	HoldingPeriod       HoldingPeriod   `json:"holding_period"`
}
