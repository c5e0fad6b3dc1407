package database

import (
	"database/sql"
	stdlog "log"

	"github.com/username/gainfolio/backend/src/logger"
	_ "modernc.org/sqlite"
)

var DB *sql.DB

func InitDB(databasePath string) {
	db, err := sql.Open("sqlite", databasePath)
	if err != nil {
		stdlog.Fatalf("failed to open database at %s: %v", databasePath, err)
	}

	DB = db

	if logger.L != nil {
		logger.L.Info("Checking database migrations", "databasePath", databasePath)
	} else {
		stdlog.Println("Checking database migrations for:", databasePath)
	}
	migrateUserTable()
	migrateTransactionsTable()

	// Decimal columns are stored as TEXT so quantities and money survive
	// round trips exactly; timestamps are RFC3339 TEXT.
	createTableStatement := `
	CREATE TABLE IF NOT EXISTS users (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		username TEXT NOT NULL UNIQUE,
		password TEXT NOT NULL,
		email TEXT NOT NULL UNIQUE,
		auth_provider TEXT DEFAULT 'local',
		is_email_verified BOOLEAN DEFAULT FALSE,
		email_verification_token TEXT,
		email_verification_token_expires_at TIMESTAMP,
		password_reset_token TEXT,
		password_reset_token_expires_at TIMESTAMP,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS sessions (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		user_id INTEGER NOT NULL,
		token TEXT NOT NULL,
		refresh_token TEXT NOT NULL,
		user_agent TEXT,
		client_ip TEXT,
		is_blocked BOOLEAN DEFAULT FALSE,
		expires_at TIMESTAMP,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		FOREIGN KEY(user_id) REFERENCES users(id)
	);

	CREATE TABLE IF NOT EXISTS transactions (
		id TEXT PRIMARY KEY,
		user_id INTEGER NOT NULL,
		asset_id TEXT NOT NULL,
		symbol TEXT NOT NULL,
		asset_type TEXT NOT NULL,
		transaction_type TEXT NOT NULL,
		quantity TEXT NOT NULL,
		price TEXT NOT NULL,
		total_value TEXT NOT NULL,
		fees TEXT NOT NULL DEFAULT '0',
		notes TEXT,
		transaction_date TEXT NOT NULL,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		FOREIGN KEY(user_id) REFERENCES users(id)
	);
	CREATE INDEX IF NOT EXISTS idx_transactions_user_date
		ON transactions(user_id, transaction_date, id);
	CREATE INDEX IF NOT EXISTS idx_transactions_user_asset
		ON transactions(user_id, asset_id);

	CREATE TABLE IF NOT EXISTS crypto_id_map (
		symbol TEXT PRIMARY KEY,
		coingecko_id TEXT NOT NULL,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		last_checked_at TIMESTAMP
	);
	`

	_, err = DB.Exec(createTableStatement)
	if err != nil {
		if logger.L != nil {
			logger.L.Error("failed to create tables", "error", err)
		}
		stdlog.Fatalf("failed to create tables: %v", err)
	}
	if logger.L != nil {
		logger.L.Info("Database tables ensured/created.")
	} else {
		stdlog.Println("Database tables ensured/created.")
	}
}

// tableColumns returns the existing column set, or nil when the table does
// not exist yet (fresh database, CREATE TABLE will handle it).
func tableColumns(table string) map[string]bool {
	var tableName string
	err := DB.QueryRow("SELECT name FROM sqlite_master WHERE type='table' AND name=?", table).Scan(&tableName)
	if err != nil {
		if err != sql.ErrNoRows {
			if logger.L != nil {
				logger.L.Error("Error checking for table", "table", table, "error", err)
			} else {
				stdlog.Printf("Error checking for table %s: %v", table, err)
			}
		}
		return nil
	}

	rows, err := DB.Query("PRAGMA table_info(" + table + ")")
	if err != nil {
		if logger.L != nil {
			logger.L.Error("Error querying table schema", "table", table, "error", err)
		} else {
			stdlog.Printf("Error querying table schema for %s: %v", table, err)
		}
		return nil
	}
	defer rows.Close()

	columnExists := make(map[string]bool)
	for rows.Next() {
		var cid, pk int
		var name, dataType string
		var notnullVal int
		var dfltValue interface{}
		if err := rows.Scan(&cid, &name, &dataType, &notnullVal, &dfltValue, &pk); err != nil {
			if logger.L != nil {
				logger.L.Error("Error scanning column info", "table", table, "error", err)
			} else {
				stdlog.Printf("Error scanning column info for %s: %v", table, err)
			}
			return nil
		}
		columnExists[name] = true
	}
	if err = rows.Err(); err != nil {
		if logger.L != nil {
			logger.L.Error("Error iterating over column info", "table", table, "error", err)
		}
		return nil
	}
	return columnExists
}

func addColumn(table, column, definition string) {
	_, err := DB.Exec("ALTER TABLE " + table + " ADD COLUMN " + column + " " + definition)
	if err != nil {
		if logger.L != nil {
			logger.L.Error("Error adding column", "table", table, "column", column, "error", err)
		} else {
			stdlog.Printf("Error adding %s column to %s: %v", column, table, err)
		}
		return
	}
	if logger.L != nil {
		logger.L.Info("Added column", "table", table, "column", column)
	} else {
		stdlog.Printf("Added %s column to %s table", column, table)
	}
}

func migrateUserTable() {
	columnExists := tableColumns("users")
	if columnExists == nil {
		return
	}

	if !columnExists["email"] {
		addColumn("users", "email", "TEXT NOT NULL DEFAULT ''")
	}
	if !columnExists["is_email_verified"] {
		addColumn("users", "is_email_verified", "BOOLEAN DEFAULT FALSE")
	}
	if !columnExists["email_verification_token"] {
		addColumn("users", "email_verification_token", "TEXT")
	}
	if !columnExists["email_verification_token_expires_at"] {
		addColumn("users", "email_verification_token_expires_at", "TIMESTAMP")
	}
	if !columnExists["password_reset_token"] {
		addColumn("users", "password_reset_token", "TEXT")
	}
	if !columnExists["password_reset_token_expires_at"] {
		addColumn("users", "password_reset_token_expires_at", "TIMESTAMP")
	}
	if !columnExists["auth_provider"] {
		addColumn("users", "auth_provider", "TEXT DEFAULT 'local'")
	}
	if !columnExists["created_at"] {
		addColumn("users", "created_at", "TIMESTAMP DEFAULT CURRENT_TIMESTAMP")
	}
	if !columnExists["updated_at"] {
		addColumn("users", "updated_at", "TIMESTAMP DEFAULT CURRENT_TIMESTAMP")
	}
}

func migrateTransactionsTable() {
	columnExists := tableColumns("transactions")
	if columnExists == nil {
		return
	}

	// Early schemas keyed rows by symbol only.
	if !columnExists["asset_id"] {
		addColumn("transactions", "asset_id", "TEXT NOT NULL DEFAULT ''")
		_, err := DB.Exec("UPDATE transactions SET asset_id = lower(asset_type) || '-' || lower(symbol) WHERE asset_id = ''")
		if err != nil {
			if logger.L != nil {
				logger.L.Error("Error backfilling asset_id values", "error", err)
			} else {
				stdlog.Printf("Error backfilling asset_id values: %v", err)
			}
		}
	}
	if !columnExists["notes"] {
		addColumn("transactions", "notes", "TEXT")
	}
	if !columnExists["fees"] {
		addColumn("transactions", "fees", "TEXT NOT NULL DEFAULT '0'")
	}
}
