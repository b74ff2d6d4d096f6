// Package calendar answers "is the market open right now" for the feed
// managers. The base policy is a pure weekday/bell check against the
// exchange-local timezone; a richer session calendar backed by the Alpaca
// trading-calendar API is available when credentials are configured.
package calendar

import (
	"fmt"
	"time"
)

// Clock reports whether the market is open at a given instant.
type Clock interface {
	IsMarketOpen(now time.Time) bool
}

// Exchange bell times, minutes from midnight exchange-local.
const (
	openMinute  = 9*60 + 30 // 09:30
	closeMinute = 16 * 60   // 16:00
)

// BellClock implements the open/close policy from clock time alone: open iff
// the instant falls on a weekday and strictly between the open and close bell
// in the exchange-local timezone. No holiday calendar is consulted; on a
// market holiday that lands on a weekday this clock reports open.
type BellClock struct {
	loc *time.Location
}

// NewBellClock creates a BellClock for the NYSE timezone. The timezone is
// loaded once here so IsMarketOpen stays pure and infallible.
func NewBellClock() (*BellClock, error) {
	loc, err := time.LoadLocation("America/New_York")
	if err != nil {
		return nil, fmt.Errorf("loading exchange timezone: %w", err)
	}
	return &BellClock{loc: loc}, nil
}

// NewBellClockIn creates a BellClock evaluating against an arbitrary
// exchange-local timezone.
func NewBellClockIn(loc *time.Location) *BellClock {
	return &BellClock{loc: loc}
}

// IsMarketOpen reports whether now falls inside a regular trading session.
// The comparison is strict on both bells: exactly 09:30 and exactly 16:00
// count as closed.
func (c *BellClock) IsMarketOpen(now time.Time) bool {
	local := now.In(c.loc)

	switch local.Weekday() {
	case time.Saturday, time.Sunday:
		return false
	}

	minute := local.Hour()*60 + local.Minute()
	return minute > openMinute && minute < closeMinute
}
