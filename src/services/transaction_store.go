// src/services/transaction_store.go
package services

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/username/gainfolio/backend/src/models"
)

// storedTimeLayout is fixed-width so TEXT timestamps sort chronologically
// under ORDER BY. All stored instants are UTC.
const storedTimeLayout = "2006-01-02T15:04:05.000000000Z"

const transactionColumns = `id, user_id, asset_id, symbol, asset_type, transaction_type, quantity, price, total_value, fees, notes, transaction_date, created_at, updated_at`

// sqlTransactionStore persists transactions in sqlite. Quantities and money
// are stored as decimal strings so values round-trip exactly.
type sqlTransactionStore struct {
	db *sql.DB
}

func NewSQLTransactionStore(db *sql.DB) TransactionStore {
	return &sqlTransactionStore{db: db}
}

func (s *sqlTransactionStore) Create(tx models.Transaction) error {
	stmt, err := s.db.Prepare(`INSERT INTO transactions (` + transactionColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("error preparing transaction insert: %w", err)
	}
	defer stmt.Close()

	_, err = stmt.Exec(transactionArgs(tx)...)
	if err != nil {
		return fmt.Errorf("error inserting transaction %s: %w", tx.ID, err)
	}
	return nil
}

func (s *sqlTransactionStore) CreateBatch(txs []models.Transaction) error {
	if len(txs) == 0 {
		return nil
	}

	dbTx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("error beginning database transaction: %w", err)
	}
	defer dbTx.Rollback()

	stmt, err := dbTx.Prepare(`INSERT INTO transactions (` + transactionColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("error preparing batch insert: %w", err)
	}
	defer stmt.Close()

	for _, tx := range txs {
		if _, err := stmt.Exec(transactionArgs(tx)...); err != nil {
			return fmt.Errorf("error inserting transaction %s: %w", tx.ID, err)
		}
	}

	if err := dbTx.Commit(); err != nil {
		return fmt.Errorf("error committing transactions: %w", err)
	}
	return nil
}

func (s *sqlTransactionStore) GetByID(userID int64, id string) (*models.Transaction, error) {
	row := s.db.QueryRow(`SELECT `+transactionColumns+` FROM transactions WHERE id = ? AND user_id = ?`, id, userID)
	tx, err := scanTransaction(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrTransactionNotFound
		}
		return nil, err
	}
	return &tx, nil
}

func (s *sqlTransactionStore) ListByUser(userID int64, filter TransactionFilter) ([]models.Transaction, error) {
	query := `SELECT ` + transactionColumns + ` FROM transactions WHERE user_id = ?`
	args := []interface{}{userID}

	if filter.AssetID != "" {
		query += ` AND asset_id = ?`
		args = append(args, filter.AssetID)
	}
	if filter.Symbol != "" {
		query += ` AND symbol = ?`
		args = append(args, filter.Symbol)
	}
	if filter.AssetType != "" {
		query += ` AND asset_type = ?`
		args = append(args, string(filter.AssetType))
	}
	if filter.Kind != "" {
		query += ` AND transaction_type = ?`
		args = append(args, string(filter.Kind))
	}
	if !filter.StartDate.IsZero() {
		query += ` AND transaction_date >= ?`
		args = append(args, filter.StartDate.UTC().Format(storedTimeLayout))
	}
	if !filter.EndDate.IsZero() {
		query += ` AND transaction_date <= ?`
		args = append(args, filter.EndDate.UTC().Format(storedTimeLayout))
	}

	if filter.NewestFirst {
		query += ` ORDER BY transaction_date DESC, id DESC`
	} else {
		query += ` ORDER BY transaction_date ASC, id ASC`
	}
	if filter.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, filter.Limit)
	}

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("error fetching transactions for user %d: %w", userID, err)
	}
	defer rows.Close()

	var transactions []models.Transaction
	for rows.Next() {
		tx, scanErr := scanTransaction(rows)
		if scanErr != nil {
			return nil, scanErr
		}
		transactions = append(transactions, tx)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating transaction rows: %w", err)
	}
	return transactions, nil
}

func (s *sqlTransactionStore) Update(tx models.Transaction) error {
	stmt, err := s.db.Prepare(`UPDATE transactions SET quantity = ?, price = ?, total_value = ?, fees = ?, notes = ?, transaction_date = ?, updated_at = ? WHERE id = ? AND user_id = ?`)
	if err != nil {
		return fmt.Errorf("error preparing transaction update: %w", err)
	}
	defer stmt.Close()

	result, err := stmt.Exec(
		tx.Quantity.String(),
		tx.UnitPrice.String(),
		tx.TotalValue.String(),
		tx.Fees.String(),
		tx.Notes,
		tx.Timestamp.UTC().Format(storedTimeLayout),
		tx.UpdatedAt,
		tx.ID,
		tx.UserID,
	)
	if err != nil {
		return fmt.Errorf("error updating transaction %s: %w", tx.ID, err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrTransactionNotFound
	}
	return nil
}

func (s *sqlTransactionStore) Delete(userID int64, id string) error {
	result, err := s.db.Exec(`DELETE FROM transactions WHERE id = ? AND user_id = ?`, id, userID)
	if err != nil {
		return fmt.Errorf("error deleting transaction %s: %w", id, err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrTransactionNotFound
	}
	return nil
}

func (s *sqlTransactionStore) DeleteAllForUser(userID int64) (int64, error) {
	result, err := s.db.Exec(`DELETE FROM transactions WHERE user_id = ?`, userID)
	if err != nil {
		return 0, fmt.Errorf("error deleting transactions for user %d: %w", userID, err)
	}
	return result.RowsAffected()
}

func transactionArgs(tx models.Transaction) []interface{} {
	return []interface{}{
		tx.ID,
		tx.UserID,
		tx.AssetID,
		tx.Symbol,
		string(tx.AssetType),
		string(tx.Kind),
		tx.Quantity.String(),
		tx.UnitPrice.String(),
		tx.TotalValue.String(),
		tx.Fees.String(),
		tx.Notes,
		tx.Timestamp.UTC().Format(storedTimeLayout),
		tx.CreatedAt,
		tx.UpdatedAt,
	}
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanTransaction(row rowScanner) (models.Transaction, error) {
	var (
		tx        models.Transaction
		assetType string
		kind      string
		quantity  string
		price     string
		total     string
		fees      string
		notes     sql.NullString
		date      string
	)
	err := row.Scan(&tx.ID, &tx.UserID, &tx.AssetID, &tx.Symbol, &assetType, &kind, &quantity, &price, &total, &fees, &notes, &date, &tx.CreatedAt, &tx.UpdatedAt)
	if err != nil {
		return models.Transaction{}, err
	}

	tx.AssetType = models.AssetType(assetType)
	tx.Kind = models.TransactionKind(kind)
	tx.Notes = notes.String

	if tx.Quantity, err = parseStoredDecimal("quantity", quantity); err != nil {
		return models.Transaction{}, err
	}
	if tx.UnitPrice, err = parseStoredDecimal("price", price); err != nil {
		return models.Transaction{}, err
	}
	if tx.TotalValue, err = parseStoredDecimal("total_value", total); err != nil {
		return models.Transaction{}, err
	}
	if tx.Fees, err = parseStoredDecimal("fees", fees); err != nil {
		return models.Transaction{}, err
	}

	tx.Timestamp, err = time.Parse(storedTimeLayout, date)
	if err != nil {
		return models.Transaction{}, fmt.Errorf("error parsing stored transaction_date %q: %w", date, err)
	}
	return tx, nil
}

func parseStoredDecimal(column, raw string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, fmt.Errorf("error parsing stored %s %q: %w", column, raw, err)
	}
	return d, nil
}
