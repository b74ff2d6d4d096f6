package quotes

import (
	"context"
	"log/slog"
	"time"

	"tickertape/internal/domain"
	"tickertape/internal/store"
)

// Service layers the local reference stores over the REST client: previous
// closes are answered from sqlite when possible, historical series from the
// parquet cache. Either store may be nil, turning Service into a passthrough.
type Service struct {
	client *Client
	refs   store.ReferenceStore
	hist   store.HistoryStore
	log    *slog.Logger
}

// NewService creates a Service.
func NewService(client *Client, refs store.ReferenceStore, hist store.HistoryStore, log *slog.Logger) *Service {
	return &Service{
		client: client,
		refs:   refs,
		hist:   hist,
		log:    log.With("component", "quotes"),
	}
}

// Snapshot fetches the current quote snapshot for a symbol.
func (s *Service) Snapshot(ctx context.Context, symbol string) (domain.Quote, error) {
	return s.client.Snapshot(ctx, symbol)
}

// Movers fetches the one-shot categorized movers snapshot.
func (s *Service) Movers(ctx context.Context) (domain.MoversSnapshot, error) {
	return s.client.Movers(ctx)
}

// PreviousClose returns the previous close for a symbol, preferring the
// local reference store. REST results are written back best-effort.
func (s *Service) PreviousClose(ctx context.Context, symbol string) (float64, error) {
	if s.refs != nil {
		close, found, err := s.refs.PreviousClose(ctx, symbol)
		if err != nil {
			s.log.Warn("reference store lookup failed", "symbol", symbol, "error", err)
		} else if found {
			return close, nil
		}
	}

	close, err := s.client.PreviousClose(ctx, symbol)
	if err != nil {
		return 0, err
	}

	if s.refs != nil {
		asOf := time.Now().UTC().Format("2006-01-02")
		if err := s.refs.SavePreviousClose(ctx, symbol, close, asOf); err != nil {
			s.log.Warn("reference store save failed", "symbol", symbol, "error", err)
		}
	}
	return close, nil
}

// History returns the daily close series for a symbol. Unless refresh is
// set, a cached series is returned when present; fresh fetches are cached
// best-effort.
func (s *Service) History(ctx context.Context, symbol string, refresh bool) ([]domain.ClosePoint, error) {
	if !refresh && s.hist != nil {
		points, err := s.hist.ReadHistory(ctx, symbol)
		if err != nil {
			s.log.Warn("history cache read failed", "symbol", symbol, "error", err)
		} else if len(points) > 0 {
			return points, nil
		}
	}

	points, err := s.client.History(ctx, symbol)
	if err != nil {
		return nil, err
	}

	if s.hist != nil {
		if err := s.hist.WriteHistory(ctx, symbol, points); err != nil {
			s.log.Warn("history cache write failed", "symbol", symbol, "error", err)
		}
	}
	return points, nil
}
