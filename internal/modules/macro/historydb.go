// Package macro ingests and serves the dollar-health indicators behind the
// macro dashboard: dollar index, metals, energy, money supply, rates, and
// inflation.
package macro

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3" // SQLite driver
	"github.com/rs/zerolog"
)

// macroSchema is applied on open; the macro module owns macro.db outright.
const macroSchema = `
CREATE TABLE IF NOT EXISTS macro_data (
    id TEXT PRIMARY KEY,
    data_date TEXT NOT NULL UNIQUE,
    dxy_index REAL,
    gold_price REAL,
    silver_price REAL,
    oil_price REAL,
    m2_money_supply REAL,
    fed_funds_rate REAL,
    cpi_yoy REAL,
    pce_yoy REAL,
    ten_year_yield REAL,
    real_rates REAL,
    usd_eur REAL,
    usd_jpy REAL,
    usd_cny REAL,
    created_at TEXT NOT NULL,
    updated_at TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_macro_date ON macro_data(data_date);
`

// OpenHistoryDB opens macro.db, creating the file and schema on first run.
func OpenHistoryDB(path string, log zerolog.Logger) (*sql.DB, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve macro database path: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(absPath), 0755); err != nil {
		return nil, fmt.Errorf("failed to create macro database directory: %w", err)
	}

	db, err := sql.Open("sqlite3", absPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open macro database: %w", err)
	}

	if _, err := db.Exec(macroSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply macro schema: %w", err)
	}

	log.Info().Str("path", absPath).Msg("Macro history database ready")
	return db, nil
}
