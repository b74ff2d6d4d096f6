package tape

import (
	"context"
	"time"

	"tickertape/internal/domain"
)

// simulator replays a fixed movers snapshot while the market is closed, so
// the tape keeps moving after hours. Each pacing tick emits one category
// batch (a header row followed by that category's movers), cycling through
// the three categories indefinitely.
type simulator struct {
	snap domain.MoversSnapshot
	pace time.Duration
	emit func(domain.TapeEvent)

	next int
}

type categoryBatch struct {
	header string
	kind   domain.EventKind
	movers []domain.Mover
}

func (s *simulator) batches() []categoryBatch {
	return []categoryBatch{
		{"Top Gainers", domain.KindGainer, s.snap.Gainers},
		{"Top Losers", domain.KindLoser, s.snap.Losers},
		{"Most Active", domain.KindActive, s.snap.MostActive},
	}
}

func (s *simulator) run(ctx context.Context) {
	// First batch immediately so the tape isn't blank right after a
	// transition.
	s.step(ctx)

	ticker := time.NewTicker(s.pace)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.step(ctx)
		}
	}
}

// step emits the next category batch and advances the cycle.
func (s *simulator) step(ctx context.Context) {
	batches := s.batches()
	batch := batches[s.next%len(batches)]
	s.next++

	now := time.Now().UnixMilli()
	s.emit(domain.TapeEvent{
		Symbol:    batch.header,
		Timestamp: now,
		Kind:      domain.KindHeader,
	})
	for _, mv := range batch.movers {
		if ctx.Err() != nil {
			return
		}
		// The volume slot carries the mover's change percent; renderers
		// show it as a percentage for simulated rows.
		s.emit(domain.TapeEvent{
			Symbol:    mv.Symbol,
			Price:     mv.Price,
			Volume:    mv.ChangePercent,
			Timestamp: now,
			Kind:      batch.kind,
		})
	}
}
