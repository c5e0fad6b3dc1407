// backend/src/models/tax.go
package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// GainLossBreakdown splits one holding-period bucket into gains, losses and
// their net. Gains and Losses are both magnitudes; Net is Gains - Losses.
type GainLossBreakdown struct {
	Gains  decimal.Decimal `json:"gains"`
	Losses decimal.Decimal `json:"losses"`
	Net    decimal.Decimal `json:"net"`
}

// TransactionCounts tallies the activity behind a tax year summary.
type TransactionCounts struct {
	Buys       int `json:"buys"`
	Sells      int `json:"sells"`
	Unresolved int `json:"unresolved"`
	Total      int `json:"total"`
}

// UnresolvedSale surfaces a sale whose quantity could not be fully covered
// by recorded purchases. Summaries keep going; this is the data-integrity
// warning the caller gets instead of a failure.
type UnresolvedSale struct {
	TransactionID     string          `json:"transaction_id"`
	Symbol            string          `json:"symbol"`
	SaleDate          time.Time       `json:"sale_date"`
	QuantityRequested decimal.Decimal `json:"quantity_requested"`
	QuantityMatched   decimal.Decimal `json:"quantity_matched"`
	Reason            string          `json:"reason"`
}

// TaxYearSummary is the complete per-year tax picture: realized gains by
// holding period, wash sale adjustments and the adjusted net. Identical
// transaction history always produces an identical summary.
type TaxYearSummary struct {
	TaxYear             int               `json:"tax_year"`
	TotalProceeds       decimal.Decimal   `json:"total_proceeds"`
	TotalCostBasis      decimal.Decimal   `json:"total_cost_basis"`
	ShortTerm           GainLossBreakdown `json:"short_term"`
	LongTerm            GainLossBreakdown `json:"long_term"`
	TotalNetGainLoss    decimal.Decimal   `json:"total_net_gain_loss"`
	WashSaleDisallowed  decimal.Decimal   `json:"wash_sale_disallowed"`
	AdjustedNetGainLoss decimal.Decimal   `json:"adjusted_net_gain_loss"`
	CapitalGains        []RealizedGain    `json:"capital_gains"`
	WashSales           []WashSaleFlag    `json:"wash_sales"`
	UnresolvedSales     []UnresolvedSale  `json:"unresolved_sales"`
	TransactionCount    TransactionCounts `json:"transaction_count"`
}

// Form8949Entry is one reporting line: a realized sale with its wash sale
// adjustment applied the way the form wants it (code W, positive amount).
type Form8949Entry struct {
	Description      string          `json:"description"`
	DateAcquired     string          `json:"date_acquired"`
	DateSold         string          `json:"date_sold"`
	Proceeds         decimal.Decimal `json:"proceeds"`
	CostBasis        decimal.Decimal `json:"cost_basis"`
	AdjustmentCode   string          `json:"adjustment_code"`
	AdjustmentAmount decimal.Decimal `json:"adjustment_amount"`
	GainOrLoss       decimal.Decimal `json:"gain_or_loss"`
	HoldingPeriod    HoldingPeriod   `json:"holding_period"`
	AssetType        AssetType       `json:"asset_type"`
	Symbol           string          `json:"symbol"`
}
