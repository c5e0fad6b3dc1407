package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// HoldingPeriod is the tax classification of how long an asset was held.
type HoldingPeriod string

const (
	ShortTerm      HoldingPeriod = "short_term"
	LongTerm       HoldingPeriod = "long_term"
	HoldingUnknown HoldingPeriod = "unknown"
)

// LongTermThresholdDays is the holding period boundary: strictly more than
// this many days qualifies as long term, exactly this many does not.
const LongTermThresholdDays = 365

// ClassifyHolding maps days held to a holding period.
func ClassifyHolding(daysHeld int) HoldingPeriod {
	if daysHeld > LongTermThresholdDays {
		return LongTerm
	}
	return ShortTerm
}

// RealizedGain is the outcome of one sale matched against its lots. The
// sale is reported as a single event even when it consumed several lots;
// AcquisitionDate is the earliest consumed lot's, the conservative choice
// for holding-period classification.
type RealizedGain struct {
	SellTransactionID string          `json:"transaction_id"`
	Symbol            string          `json:"symbol"`
	AssetType         AssetType       `json:"asset_type"`
	Quantity          decimal.Decimal `json:"quantity"`
	AcquisitionDate   time.Time       `json:"acquisition_date"`
	SaleDate          time.Time       `json:"sale_date"`
	Proceeds          decimal.Decimal `json:"proceeds"`
	CostBasis         decimal.Decimal `json:"cost_basis"`
	GainLoss          decimal.Decimal `json:"gain_loss"`
	HoldingPeriod     HoldingPeriod   `json:"holding_period"`
	DaysHeld          int             `json:"days_held"`
}

func (g RealizedGain) IsLoss() bool {
	return g.GainLoss.IsNegative()
}

// ReplacementPurchase is a buy that lands inside a wash sale window.
type ReplacementPurchase struct {
	TransactionID string          `json:"transaction_id"`
	Date          time.Time       `json:"date"`
	Quantity      decimal.Decimal `json:"quantity"`
	Price         decimal.Decimal `json:"price"`
}

// WashSaleFlag marks a loss sale with a same-symbol purchase within 30 days
// on either side. DisallowedLoss equals the entire loss: the proportional
// IRS adjustment is intentionally not modeled, the flag is advisory.
type WashSaleFlag struct {
	SellTransactionID    string                `json:"transaction_id"`
	Symbol               string                `json:"symbol"`
	SaleDate             time.Time             `json:"sale_date"`
	LossAmount           decimal.Decimal       `json:"loss_amount"`
	DisallowedLoss       decimal.Decimal       `json:"disallowed_loss"`
	ReplacementPurchases []ReplacementPurchase `json:"replacement_purchases"`
}
