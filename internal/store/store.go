// Package store persists reference data for the feed core: previous closing
// prices (sqlite) and daily close series for charting (parquet). Individual
// trade events are never persisted.
package store

import (
	"context"

	"tickertape/internal/domain"
)

// ReferenceStore persists previous closing prices per symbol so classify
// caches survive a restart.
type ReferenceStore interface {
	// SavePreviousClose upserts the previous close for a symbol, tagged with
	// the trading day it was observed on (YYYY-MM-DD).
	SavePreviousClose(ctx context.Context, symbol string, close float64, asOf string) error

	// PreviousClose returns the stored previous close for a symbol. The bool
	// reports whether a value was found.
	PreviousClose(ctx context.Context, symbol string) (float64, bool, error)
}

// HistoryStore persists daily close series per symbol.
type HistoryStore interface {
	// WriteHistory merges the given points into the symbol's stored series,
	// deduplicating by timestamp.
	WriteHistory(ctx context.Context, symbol string, points []domain.ClosePoint) error

	// ReadHistory returns the symbol's stored series sorted by timestamp,
	// or nil when no series has been cached.
	ReadHistory(ctx context.Context, symbol string) ([]domain.ClosePoint, error)
}
