package store

import (
	"context"
	"database/sql"
	"fmt"

	"tickertape/internal/domain"

	_ "modernc.org/sqlite" // Pure-Go SQLite driver.
)

// Compile-time interface check.
var _ ReferenceStore = (*SQLiteStore)(nil)

// SQLiteStore implements ReferenceStore backed by a SQLite database.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (or creates) a SQLite database at dbPath, runs
// migrations, and returns a ready-to-use SQLiteStore.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, err
	}

	const schema = `
CREATE TABLE IF NOT EXISTS reference_prices (
	symbol         TEXT PRIMARY KEY,
	previous_close REAL NOT NULL,
	as_of          TEXT NOT NULL
);`
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrating reference_prices: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// SavePreviousClose upserts the previous close for a symbol.
func (s *SQLiteStore) SavePreviousClose(ctx context.Context, symbol string, close float64, asOf string) error {
	_, err := s.db.ExecContext(ctx, `
INSERT INTO reference_prices (symbol, previous_close, as_of)
VALUES (?, ?, ?)
ON CONFLICT(symbol) DO UPDATE SET previous_close = excluded.previous_close, as_of = excluded.as_of`,
		domain.NormalizeSymbol(symbol), close, asOf)
	if err != nil {
		return fmt.Errorf("saving previous close for %s: %w", symbol, err)
	}
	return nil
}

// PreviousClose returns the stored previous close for a symbol.
func (s *SQLiteStore) PreviousClose(ctx context.Context, symbol string) (float64, bool, error) {
	var close float64
	err := s.db.QueryRowContext(ctx,
		`SELECT previous_close FROM reference_prices WHERE symbol = ?`,
		domain.NormalizeSymbol(symbol)).Scan(&close)
	if err == sql.ErrNoRows {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("loading previous close for %s: %w", symbol, err)
	}
	return close, true, nil
}
