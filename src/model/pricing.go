package model

import (
	"database/sql"
	"strings"
	"time"
)

// CryptoIDMap represents a row in the crypto_id_map table.
// It caches the mapping from a ticker symbol to a CoinGecko coin id.
type CryptoIDMap struct {
	Symbol        string
	CoinGeckoID   string
	CreatedAt     time.Time
	LastCheckedAt sql.NullTime
}

// GetCryptoIDsBySymbols retrieves multiple symbol-to-id mappings from the
// database in a single query, keyed by symbol for easy lookup.
func GetCryptoIDsBySymbols(db *sql.DB, symbols []string) (map[string]CryptoIDMap, error) {
	mappings := make(map[string]CryptoIDMap)
	if len(symbols) == 0 {
		return mappings, nil
	}

	// Using `IN` clause is efficient for batch lookups.
	query := `SELECT symbol, coingecko_id, created_at, last_checked_at FROM crypto_id_map WHERE symbol IN (?` + strings.Repeat(",?", len(symbols)-1) + `)`

	args := make([]interface{}, len(symbols))
	for i, symbol := range symbols {
		args[i] = symbol
	}

	rows, err := db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var mapping CryptoIDMap
		if err := rows.Scan(
			&mapping.Symbol,
			&mapping.CoinGeckoID,
			&mapping.CreatedAt,
			&mapping.LastCheckedAt,
		); err != nil {
			return nil, err
		}
		mappings[mapping.Symbol] = mapping
	}

	return mappings, rows.Err()
}

// InsertCryptoID inserts a single new symbol-to-id mapping into the database.
func InsertCryptoID(db *sql.DB, mapping CryptoIDMap) error {
	query := `
		INSERT INTO crypto_id_map (symbol, coingecko_id, last_checked_at)
		VALUES (?, ?, ?)`

	_, err := db.Exec(query, mapping.Symbol, mapping.CoinGeckoID, time.Now())
	return err
}
