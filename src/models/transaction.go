package models

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// TransactionKind classifies what a transaction does to a position.
type TransactionKind string

const (
	KindBuy         TransactionKind = "buy"
	KindSell        TransactionKind = "sell"
	KindTransferIn  TransactionKind = "transfer_in"
	KindTransferOut TransactionKind = "transfer_out"
)

// Acquires reports whether the kind adds units to the holder's position.
// Transfers carry their own basis, so transfer_in opens lots like a buy.
func (k TransactionKind) Acquires() bool {
	return k == KindBuy || k == KindTransferIn
}

// Disposes reports whether the kind removes units from the holder's position.
func (k TransactionKind) Disposes() bool {
	return k == KindSell || k == KindTransferOut
}

func (k TransactionKind) Valid() bool {
	return k.Acquires() || k.Disposes()
}

// AssetType tells price lookups which market to query.
type AssetType string

const (
	AssetCrypto AssetType = "crypto"
	AssetStock  AssetType = "stock"
)

func (a AssetType) Valid() bool {
	return a == AssetCrypto || a == AssetStock
}

// CostBasisMethod selects how sells consume purchase lots.
type CostBasisMethod string

const (
	MethodFIFO    CostBasisMethod = "fifo"
	MethodLIFO    CostBasisMethod = "lifo"
	MethodAverage CostBasisMethod = "average"
)

// ErrInvalidMethod is returned when a cost basis method is not one of the
// supported set. Callers must fail fast rather than silently fall back.
var ErrInvalidMethod = errors.New("invalid cost basis method")

// ParseCostBasisMethod normalizes a user-supplied method name.
func ParseCostBasisMethod(s string) (CostBasisMethod, error) {
	switch CostBasisMethod(strings.ToLower(strings.TrimSpace(s))) {
	case MethodFIFO:
		return MethodFIFO, nil
	case MethodLIFO:
		return MethodLIFO, nil
	case MethodAverage:
		return MethodAverage, nil
	default:
		return "", fmt.Errorf("%w: %q (supported: fifo, lifo, average)", ErrInvalidMethod, s)
	}
}

// Transaction is a single buy, sell or transfer of one asset.
type Transaction struct {
	ID         string          `json:"transaction_id"`
	UserID     int64           `json:"-"`
	AssetID    string          `json:"asset_id"`
	Symbol     string          `json:"symbol"`
	AssetType  AssetType       `json:"asset_type"`
	Kind       TransactionKind `json:"transaction_type"`
	Quantity   decimal.Decimal `json:"quantity"`
	UnitPrice  decimal.Decimal `json:"price"`
	TotalValue decimal.Decimal `json:"total_value"` // Quantity x UnitPrice, stored denormalized
	Fees       decimal.Decimal `json:"fees"`
	Notes      string          `json:"notes,omitempty"`
	Timestamp  time.Time       `json:"transaction_date"`
	CreatedAt  time.Time       `json:"created_at"`
	UpdatedAt  time.Time       `json:"updated_at"`
}

// SortTransactions orders by timestamp ascending, breaking ties by ID so
// replays are reproducible regardless of input order.
func SortTransactions(txs []Transaction) {
	sort.SliceStable(txs, func(i, j int) bool {
		if !txs[i].Timestamp.Equal(txs[j].Timestamp) {
			return txs[i].Timestamp.Before(txs[j].Timestamp)
		}
		return txs[i].ID < txs[j].ID
	})
}

// TransactionHistory aggregates all activity for one asset.
type TransactionHistory struct {
	AssetID      string          `json:"asset_id"`
	Symbol       string          `json:"symbol"`
	Transactions []Transaction   `json:"transactions"`
	TotalBought  decimal.Decimal `json:"total_bought"`
	TotalSold    decimal.Decimal `json:"total_sold"`
	NetQuantity  decimal.Decimal `json:"net_quantity"`
	TotalFees    decimal.Decimal `json:"total_fees"`
}
