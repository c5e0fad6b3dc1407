// src/services/transaction_service.go
package services

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/username/gainfolio/backend/src/logger"
	"github.com/username/gainfolio/backend/src/metrics"
	"github.com/username/gainfolio/backend/src/models"
	"github.com/username/gainfolio/backend/src/parsers"
	"github.com/username/gainfolio/backend/src/security/validation"
	"github.com/username/gainfolio/backend/src/utils"
)

type transactionServiceImpl struct {
	store      TransactionStore
	taxService TaxService
}

// NewTransactionService wires transaction CRUD over the store. Mutations
// invalidate the tax cache so reports never serve stale history.
func NewTransactionService(store TransactionStore, taxService TaxService) TransactionService {
	return &transactionServiceImpl{
		store:      store,
		taxService: taxService,
	}
}

func (s *transactionServiceImpl) CreateTransaction(userID int64, input TransactionInput) (*models.Transaction, error) {
	tx, err := s.buildTransaction(userID, input)
	if err != nil {
		return nil, err
	}

	if err := s.store.Create(*tx); err != nil {
		return nil, err
	}
	s.taxService.InvalidateUserCache(userID)

	logger.L.Info("Transaction created", "userID", userID, "transactionID", tx.ID, "symbol", tx.Symbol, "type", tx.Kind)
	return tx, nil
}

func (s *transactionServiceImpl) GetTransaction(userID int64, id string) (*models.Transaction, error) {
	return s.store.GetByID(userID, id)
}

func (s *transactionServiceImpl) ListTransactions(userID int64, filter TransactionFilter) ([]models.Transaction, error) {
	filter.Symbol = strings.ToUpper(strings.TrimSpace(filter.Symbol))
	filter.AssetID = strings.TrimSpace(filter.AssetID)
	// The listing API shows recent activity first; replay paths query the
	// store directly in chronological order.
	filter.NewestFirst = true
	return s.store.ListByUser(userID, filter)
}

func (s *transactionServiceImpl) UpdateTransaction(userID int64, id string, update TransactionUpdate) (*models.Transaction, error) {
	tx, err := s.store.GetByID(userID, id)
	if err != nil {
		return nil, err
	}

	if update.Quantity != nil {
		if !update.Quantity.IsPositive() {
			return nil, fmt.Errorf("%w: quantity must be positive, got %s", ErrValidation, update.Quantity)
		}
		tx.Quantity = *update.Quantity
	}
	if update.UnitPrice != nil {
		if update.UnitPrice.IsNegative() {
			return nil, fmt.Errorf("%w: price cannot be negative, got %s", ErrValidation, update.UnitPrice)
		}
		tx.UnitPrice = *update.UnitPrice
	}
	if update.Fees != nil {
		if update.Fees.IsNegative() {
			return nil, fmt.Errorf("%w: fees cannot be negative, got %s", ErrValidation, update.Fees)
		}
		tx.Fees = *update.Fees
	}
	if update.Notes != nil {
		tx.Notes = validation.StripUnprintable(*update.Notes)
	}
	if update.Timestamp != nil {
		parsed, parseErr := utils.ParseTimestamp(*update.Timestamp)
		if parseErr != nil {
			return nil, fmt.Errorf("%w: invalid transaction_date %q", ErrValidation, *update.Timestamp)
		}
		tx.Timestamp = parsed
	}

	tx.TotalValue = tx.Quantity.Mul(tx.UnitPrice)
	tx.UpdatedAt = time.Now().UTC()

	if err := s.store.Update(*tx); err != nil {
		return nil, err
	}
	s.taxService.InvalidateUserCache(userID)

	logger.L.Info("Transaction updated", "userID", userID, "transactionID", tx.ID)
	return tx, nil
}

func (s *transactionServiceImpl) DeleteTransaction(userID int64, id string) error {
	if err := s.store.Delete(userID, id); err != nil {
		return err
	}
	s.taxService.InvalidateUserCache(userID)

	logger.L.Info("Transaction deleted", "userID", userID, "transactionID", id)
	return nil
}

func (s *transactionServiceImpl) DeleteAllTransactions(userID int64) (int64, error) {
	deleted, err := s.store.DeleteAllForUser(userID)
	if err != nil {
		return 0, err
	}
	s.taxService.InvalidateUserCache(userID)

	logger.L.Info("Deleted all transactions", "userID", userID, "count", deleted)
	return deleted, nil
}

func (s *transactionServiceImpl) GetTransactionHistory(userID int64, assetID string) (*models.TransactionHistory, error) {
	transactions, err := s.store.ListByUser(userID, TransactionFilter{AssetID: strings.TrimSpace(assetID)})
	if err != nil {
		return nil, err
	}

	history := &models.TransactionHistory{
		AssetID:      assetID,
		Transactions: transactions,
		TotalBought:  decimal.Zero,
		TotalSold:    decimal.Zero,
		NetQuantity:  decimal.Zero,
		TotalFees:    decimal.Zero,
	}
	if history.Transactions == nil {
		history.Transactions = []models.Transaction{}
	}

	for _, tx := range transactions {
		history.Symbol = tx.Symbol
		history.TotalFees = history.TotalFees.Add(tx.Fees)
		if tx.Kind.Acquires() {
			history.TotalBought = history.TotalBought.Add(tx.Quantity)
		} else if tx.Kind.Disposes() {
			history.TotalSold = history.TotalSold.Add(tx.Quantity)
		}
	}
	history.NetQuantity = history.TotalBought.Sub(history.TotalSold)
	return history, nil
}

func (s *transactionServiceImpl) ImportCSV(fileReader io.Reader, userID int64) (*ImportResult, error) {
	startTime := time.Now()
	logger.L.Info("ImportCSV START", "userID", userID)

	parsed, err := parsers.NewTransactionCSVParser().Parse(fileReader)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrValidation, err)
	}

	result := &ImportResult{Errors: []string{}}
	var toInsert []models.Transaction

	for _, rowErr := range parsed.RowErrors {
		result.Skipped++
		result.Errors = append(result.Errors, rowErr)
	}

	for _, row := range parsed.Transactions {
		tx, buildErr := s.buildTransaction(userID, TransactionInput{
			Symbol:    row.Symbol,
			AssetType: row.AssetType,
			Kind:      row.Kind,
			Quantity:  row.Quantity,
			UnitPrice: row.UnitPrice,
			Fees:      row.Fees,
			// Imported notes round-trip through spreadsheets; defuse formulas.
			Notes:     validation.SanitizeForFormulaInjection(row.Notes),
			Timestamp: row.Timestamp,
		})
		if buildErr != nil {
			result.Skipped++
			result.Errors = append(result.Errors, fmt.Sprintf("row %d: %v", row.Line, buildErr))
			continue
		}
		toInsert = append(toInsert, *tx)
	}

	if err := s.store.CreateBatch(toInsert); err != nil {
		return nil, err
	}
	result.Imported = len(toInsert)
	metrics.ImportedRowsTotal.Add(float64(result.Imported))

	if result.Imported > 0 {
		s.taxService.InvalidateUserCache(userID)
	}

	logger.L.Info("ImportCSV END", "userID", userID, "imported", result.Imported, "skipped", result.Skipped, "duration", time.Since(startTime))
	return result, nil
}

// buildTransaction validates the input and assembles a persistable record.
// All validation failures wrap ErrValidation.
func (s *transactionServiceImpl) buildTransaction(userID int64, input TransactionInput) (*models.Transaction, error) {
	symbol := strings.ToUpper(strings.TrimSpace(validation.StripUnprintable(input.Symbol)))
	if symbol == "" {
		return nil, fmt.Errorf("%w: symbol is required", ErrValidation)
	}

	assetType := models.AssetType(strings.ToLower(strings.TrimSpace(input.AssetType)))
	if !assetType.Valid() {
		return nil, fmt.Errorf("%w: unknown asset_type %q (supported: crypto, stock)", ErrValidation, input.AssetType)
	}

	kind := models.TransactionKind(strings.ToLower(strings.TrimSpace(input.Kind)))
	if !kind.Valid() {
		return nil, fmt.Errorf("%w: unknown transaction_type %q (supported: buy, sell, transfer_in, transfer_out)", ErrValidation, input.Kind)
	}

	if !input.Quantity.IsPositive() {
		return nil, fmt.Errorf("%w: quantity must be positive, got %s", ErrValidation, input.Quantity)
	}
	if input.UnitPrice.IsNegative() {
		return nil, fmt.Errorf("%w: price cannot be negative, got %s", ErrValidation, input.UnitPrice)
	}
	if input.Fees.IsNegative() {
		return nil, fmt.Errorf("%w: fees cannot be negative, got %s", ErrValidation, input.Fees)
	}

	timestamp, err := utils.ParseTimestamp(input.Timestamp)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid transaction_date %q", ErrValidation, input.Timestamp)
	}

	assetID := strings.TrimSpace(input.AssetID)
	if assetID == "" {
		assetID = fmt.Sprintf("%s-%s", assetType, strings.ToLower(symbol))
	}

	now := time.Now().UTC()
	return &models.Transaction{
		ID:         uuid.NewString(),
		UserID:     userID,
		AssetID:    assetID,
		Symbol:     symbol,
		AssetType:  assetType,
		Kind:       kind,
		Quantity:   input.Quantity,
		UnitPrice:  input.UnitPrice,
		TotalValue: input.Quantity.Mul(input.UnitPrice),
		Fees:       input.Fees,
		Notes:      validation.StripUnprintable(input.Notes),
		Timestamp:  timestamp,
		CreatedAt:  now,
		UpdatedAt:  now,
	}, nil
}
