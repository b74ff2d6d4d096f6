package store

import (
	"context"
	"path/filepath"
	"testing"

	"tickertape/internal/domain"
)

func TestSQLiteStorePreviousClose(t *testing.T) {
	ctx := context.Background()
	s, err := NewSQLiteStore(filepath.Join(t.TempDir(), "tickertape.db"))
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}
	defer s.Close()

	// Miss before anything is stored.
	_, found, err := s.PreviousClose(ctx, "AAPL")
	if err != nil {
		t.Fatalf("PreviousClose: %v", err)
	}
	if found {
		t.Error("expected miss for unknown symbol")
	}

	if err := s.SavePreviousClose(ctx, "aapl", 140.0, "2026-08-28"); err != nil {
		t.Fatalf("SavePreviousClose: %v", err)
	}

	// Lookups are symbol-normalized.
	close, found, err := s.PreviousClose(ctx, " aapl ")
	if err != nil {
		t.Fatalf("PreviousClose: %v", err)
	}
	if !found || close != 140.0 {
		t.Errorf("PreviousClose = (%v, %v), want (140, true)", close, found)
	}

	// Upsert replaces the prior value.
	if err := s.SavePreviousClose(ctx, "AAPL", 151.5, "2026-08-29"); err != nil {
		t.Fatalf("SavePreviousClose upsert: %v", err)
	}
	close, found, _ = s.PreviousClose(ctx, "AAPL")
	if !found || close != 151.5 {
		t.Errorf("PreviousClose after upsert = (%v, %v), want (151.5, true)", close, found)
	}
}

func TestParquetStoreHistoryRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := NewParquetStore(t.TempDir())

	// Missing series reads as empty, not an error.
	points, err := s.ReadHistory(ctx, "AAPL")
	if err != nil {
		t.Fatalf("ReadHistory on missing file: %v", err)
	}
	if points != nil {
		t.Errorf("ReadHistory on missing file = %v, want nil", points)
	}

	first := []domain.ClosePoint{
		{Timestamp: 1000, Close: 10},
		{Timestamp: 3000, Close: 30},
	}
	if err := s.WriteHistory(ctx, "aapl", first); err != nil {
		t.Fatalf("WriteHistory: %v", err)
	}

	// Second write merges, dedups by timestamp (incoming wins), and sorts.
	second := []domain.ClosePoint{
		{Timestamp: 2000, Close: 20},
		{Timestamp: 3000, Close: 33},
	}
	if err := s.WriteHistory(ctx, "AAPL", second); err != nil {
		t.Fatalf("WriteHistory merge: %v", err)
	}

	points, err = s.ReadHistory(ctx, "AAPL")
	if err != nil {
		t.Fatalf("ReadHistory: %v", err)
	}
	want := []domain.ClosePoint{
		{Timestamp: 1000, Close: 10},
		{Timestamp: 2000, Close: 20},
		{Timestamp: 3000, Close: 33},
	}
	if len(points) != len(want) {
		t.Fatalf("got %d points, want %d", len(points), len(want))
	}
	for i := range want {
		if points[i] != want[i] {
			t.Errorf("points[%d] = %+v, want %+v", i, points[i], want[i])
		}
	}
}
