package calendar

import (
	"log/slog"
	"sync"
	"time"

	"github.com/alpacahq/alpaca-trade-api-go/v3/alpaca"
)

// Compile-time interface check.
var _ Clock = (*SessionCalendar)(nil)

// session is one trading day's open/close window in the exchange timezone.
type session struct {
	open  time.Time
	close time.Time
}

// SessionCalendar answers market-open queries from the Alpaca trading
// calendar, which accounts for holidays and early closes. Sessions are
// fetched lazily one day at a time and cached; when the calendar API is
// unreachable the answer falls back to the bells-only policy so callers
// never stall.
type SessionCalendar struct {
	client   *alpaca.Client
	fallback *BellClock
	loc      *time.Location
	log      *slog.Logger

	mu       sync.Mutex
	sessions map[string]*session // date "2006-01-02" → session; nil = market holiday
}

// NewSessionCalendar creates a SessionCalendar using the given Alpaca
// credentials. baseURL may be empty to use the SDK default.
func NewSessionCalendar(apiKey, apiSecret, baseURL string, log *slog.Logger) (*SessionCalendar, error) {
	fallback, err := NewBellClock()
	if err != nil {
		return nil, err
	}

	return &SessionCalendar{
		client: alpaca.NewClient(alpaca.ClientOpts{
			APIKey:    apiKey,
			APISecret: apiSecret,
			BaseURL:   baseURL,
		}),
		fallback: fallback,
		loc:      fallback.loc,
		log:      log.With("component", "calendar"),
		sessions: make(map[string]*session),
	}, nil
}

// IsMarketOpen reports whether now falls inside the trading session for its
// exchange-local date. Holidays report closed; calendar fetch failures defer
// to the weekday/bell policy.
func (c *SessionCalendar) IsMarketOpen(now time.Time) bool {
	local := now.In(c.loc)
	date := local.Format("2006-01-02")

	c.mu.Lock()
	sess, cached := c.sessions[date]
	c.mu.Unlock()

	if !cached {
		fetched, err := c.fetchSession(local)
		if err != nil {
			c.log.Warn("trading calendar unavailable, using bell clock", "date", date, "error", err)
			return c.fallback.IsMarketOpen(now)
		}
		c.mu.Lock()
		c.sessions[date] = fetched
		c.mu.Unlock()
		sess = fetched
	}

	if sess == nil {
		return false // weekend or holiday
	}
	return local.After(sess.open) && local.Before(sess.close)
}

// fetchSession asks the calendar API for the session covering day. A nil
// session with nil error means the market is closed all day.
func (c *SessionCalendar) fetchSession(day time.Time) (*session, error) {
	days, err := c.client.GetCalendar(alpaca.GetCalendarRequest{
		Start: day,
		End:   day,
	})
	if err != nil {
		return nil, err
	}

	date := day.Format("2006-01-02")
	for _, d := range days {
		if d.Date != date {
			continue
		}
		open, err := time.ParseInLocation("2006-01-02 15:04", d.Date+" "+d.Open, c.loc)
		if err != nil {
			return nil, err
		}
		close, err := time.ParseInLocation("2006-01-02 15:04", d.Date+" "+d.Close, c.loc)
		if err != nil {
			return nil, err
		}
		return &session{open: open, close: close}, nil
	}

	// Date absent from the calendar: not a trading day.
	return nil, nil
}
