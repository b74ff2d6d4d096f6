package store

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/parquet-go/parquet-go"

	"tickertape/internal/domain"
)

// Compile-time interface check.
var _ HistoryStore = (*ParquetStore)(nil)

// ParquetStore implements HistoryStore using one Parquet file per symbol.
type ParquetStore struct {
	DataDir string
}

// NewParquetStore creates a ParquetStore rooted at the given data directory.
func NewParquetStore(dataDir string) *ParquetStore {
	return &ParquetStore{DataDir: dataDir}
}

// closeRecord is the Parquet schema for a daily close point.
type closeRecord struct {
	Timestamp int64   `parquet:"timestamp,timestamp(millisecond)"` // Unix ms
	Close     float64 `parquet:"close"`
}

// WriteHistory merges points into the symbol's series file at
// <DataDir>/history/<SYMBOL>.parquet, deduplicating by timestamp with
// incoming points winning.
func (s *ParquetStore) WriteHistory(_ context.Context, symbol string, points []domain.ClosePoint) error {
	if len(points) == 0 {
		return nil
	}
	path := s.historyPath(symbol)

	existing, _ := readParquetFile[closeRecord](path)

	seen := make(map[int64]closeRecord, len(existing)+len(points))
	for _, r := range existing {
		seen[r.Timestamp] = r
	}
	for _, p := range points {
		seen[p.Timestamp] = closeRecord{Timestamp: p.Timestamp, Close: p.Close}
	}

	merged := make([]closeRecord, 0, len(seen))
	for _, r := range seen {
		merged = append(merged, r)
	}
	sort.Slice(merged, func(i, j int) bool { return merged[i].Timestamp < merged[j].Timestamp })

	if err := writeParquetFile(path, merged); err != nil {
		return fmt.Errorf("writing history for %s: %w", symbol, err)
	}
	return nil
}

// ReadHistory returns the symbol's cached series sorted by timestamp. A
// missing file yields (nil, nil).
func (s *ParquetStore) ReadHistory(_ context.Context, symbol string) ([]domain.ClosePoint, error) {
	path := s.historyPath(symbol)
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil, nil
	}
	records, err := readParquetFile[closeRecord](path)
	if err != nil {
		return nil, err
	}

	points := make([]domain.ClosePoint, 0, len(records))
	for _, r := range records {
		points = append(points, domain.ClosePoint{Timestamp: r.Timestamp, Close: r.Close})
	}
	sort.Slice(points, func(i, j int) bool { return points[i].Timestamp < points[j].Timestamp })
	return points, nil
}

// historyPath returns the filesystem path for a symbol's series file.
func (s *ParquetStore) historyPath(symbol string) string {
	return filepath.Join(s.DataDir, "history", strings.ToUpper(symbol)+".parquet")
}

func writeParquetFile[T any](path string, records []T) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return parquet.WriteFile(path, records)
}

func readParquetFile[T any](path string) ([]T, error) {
	return parquet.ReadFile[T](path)
}
