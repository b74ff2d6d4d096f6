// Package domain defines the core value types shared across the feed
// subsystem: trade samples, tape events, quotes, and movers snapshots.
package domain

import "strings"

// NormalizeSymbol returns the canonical form of a ticker symbol:
// trimmed of surrounding whitespace and uppercased.
func NormalizeSymbol(symbol string) string {
	return strings.ToUpper(strings.TrimSpace(symbol))
}

// ---------------------------------------------------------------------------
// Watchlist types
// ---------------------------------------------------------------------------

// TradeSample is the latest known trade for a watchlisted symbol. Samples are
// immutable values; a new trade replaces the whole sample.
type TradeSample struct {
	Symbol        string
	Price         float64
	ChangePercent float64
}

// ---------------------------------------------------------------------------
// Tape types
// ---------------------------------------------------------------------------

// EventKind classifies a tape event for styling and simulation behaviour.
type EventKind string

const (
	KindRealtime EventKind = "realtime"
	KindGainer   EventKind = "gainer"
	KindLoser    EventKind = "loser"
	KindActive   EventKind = "active"
	KindHeader   EventKind = "header"
)

// TapeEvent is a single entry on the trade tape. For KindHeader events the
// Symbol field carries the category label instead of a ticker.
type TapeEvent struct {
	Symbol    string
	Price     float64
	Volume    float64
	Timestamp int64 // Unix ms
	Kind      EventKind
}

// FeedMode identifies the data source currently backing the tape.
type FeedMode string

const (
	ModeLive      FeedMode = "live"
	ModeSimulated FeedMode = "simulated"
)

// Tint is the semantic up/down/neutral classification of a tape event.
type Tint string

const (
	TintUp      Tint = "up"
	TintDown    Tint = "down"
	TintNeutral Tint = "neutral"
)

// ---------------------------------------------------------------------------
// Quote service types
// ---------------------------------------------------------------------------

// Quote is a point-in-time snapshot of a stock's market data.
type Quote struct {
	Symbol        string
	CompanyName   string
	CurrentPrice  float64
	Change        float64
	PercentChange float64
	PreviousClose float64
	DayHigh       float64
	DayLow        float64
}

// Mover is one entry in a categorized top-movers list.
type Mover struct {
	Symbol        string
	Price         float64
	ChangePercent float64
}

// MoversSnapshot is a one-shot categorized view of the market used to seed
// the simulated tape when no live connection is warranted.
type MoversSnapshot struct {
	Gainers    []Mover
	Losers     []Mover
	MostActive []Mover
}

// ClosePoint is a single (timestamp, close) point of a daily close series.
type ClosePoint struct {
	Timestamp int64 // Unix ms, midnight UTC of the trading day
	Close     float64
}
