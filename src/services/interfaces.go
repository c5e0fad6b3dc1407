package services

import (
	"errors"
	"io"
	"time"

	"github.com/shopspring/decimal"

	"github.com/username/gainfolio/backend/src/models"
)

var (
	ErrTransactionNotFound = errors.New("transaction not found")
	ErrValidation          = errors.New("invalid transaction")
)

// TransactionFilter narrows list queries. Zero values mean no constraint.
// Rows come back in chronological order unless NewestFirst is set; Limit
// applies after ordering, so NewestFirst+Limit returns the latest rows.
type TransactionFilter struct {
	AssetID     string
	Symbol      string
	AssetType   models.AssetType
	Kind        models.TransactionKind
	StartDate   time.Time
	EndDate     time.Time
	Limit       int
	NewestFirst bool
}

// TransactionStore is the persistence boundary. The tax core never touches
// it; services load history here and hand plain slices to the processors.
type TransactionStore interface {
	Create(tx models.Transaction) error
	CreateBatch(txs []models.Transaction) error
	GetByID(userID int64, id string) (*models.Transaction, error)
	ListByUser(userID int64, filter TransactionFilter) ([]models.Transaction, error)
	Update(tx models.Transaction) error
	Delete(userID int64, id string) error
	DeleteAllForUser(userID int64) (int64, error)
}

// TransactionInput is the create payload. The timestamp accepts RFC3339 or
// a bare calendar date.
type TransactionInput struct {
	AssetID   string          `json:"asset_id"`
	Symbol    string          `json:"symbol"`
	AssetType string          `json:"asset_type"`
	Kind      string          `json:"transaction_type"`
	Quantity  decimal.Decimal `json:"quantity"`
	UnitPrice decimal.Decimal `json:"price"`
	Fees      decimal.Decimal `json:"fees"`
	Notes     string          `json:"notes"`
	Timestamp string          `json:"transaction_date"`
}

// TransactionUpdate carries the mutable fields; nil means keep.
type TransactionUpdate struct {
	Quantity  *decimal.Decimal `json:"quantity"`
	UnitPrice *decimal.Decimal `json:"price"`
	Fees      *decimal.Decimal `json:"fees"`
	Notes     *string          `json:"notes"`
	Timestamp *string          `json:"transaction_date"`
}

// ImportResult summarizes a bulk CSV ingestion.
type ImportResult struct {
	Imported int      `json:"imported"`
	Skipped  int      `json:"skipped"`
	Errors   []string `json:"errors"`
}

// TransactionService owns transaction CRUD and bulk import.
type TransactionService interface {
	CreateTransaction(userID int64, input TransactionInput) (*models.Transaction, error)
	GetTransaction(userID int64, id string) (*models.Transaction, error)
	ListTransactions(userID int64, filter TransactionFilter) ([]models.Transaction, error)
	UpdateTransaction(userID int64, id string, update TransactionUpdate) (*models.Transaction, error)
	DeleteTransaction(userID int64, id string) error
	DeleteAllTransactions(userID int64) (int64, error)
	GetTransactionHistory(userID int64, assetID string) (*models.TransactionHistory, error)
	ImportCSV(fileReader io.Reader, userID int64) (*ImportResult, error)
}

// UnrealizedReport values every open position as of one instant.
type UnrealizedReport struct {
	AsOfDate                time.Time                   `json:"as_of_date"`
	TotalUnrealizedGainLoss decimal.Decimal             `json:"total_unrealized_gain_loss"`
	Holdings                []models.UnrealizedPosition `json:"holdings"`
}

// HarvestReport lists loss positions worth reviewing before year end.
type HarvestReport struct {
	AsOfDate               time.Time                 `json:"as_of_date"`
	Opportunities          []models.HarvestCandidate `json:"opportunities"`
	TotalHarvestableLosses decimal.Decimal           `json:"total_harvestable_losses"`
}

// TaxService orchestrates the pure tax core over stored history, with
// per-user result caching.
type TaxService interface {
	GetTaxYearSummary(userID int64, year int) (*models.TaxYearSummary, error)
	GetForm8949(userID int64, year int) ([]models.Form8949Entry, error)
	GetUnrealizedGains(userID int64) (*UnrealizedReport, error)
	GetHarvestingOpportunities(userID int64) (*HarvestReport, error)
	GetCostBasis(userID int64, assetID string, method models.CostBasisMethod) (*models.CostBasisCalculation, error)
	InvalidateUserCache(userID int64)
}

// PriceInfo is one quote lookup outcome; Status is OK or UNAVAILABLE.
type PriceInfo struct {
	Symbol   string          `json:"symbol"`
	Price    decimal.Decimal `json:"price"`
	Currency string          `json:"currency"`
	Status   string          `json:"status"`
}

// PriceService fetches current market prices for one asset class.
type PriceService interface {
	GetCurrentPrices(symbols []string, assetType models.AssetType) (map[string]PriceInfo, error)
}
