// Package quotes fetches point-in-time market data over REST: quote
// snapshots, previous closes, categorized top movers, and historical daily
// close series. The feed managers consume these to seed subscriptions, feed
// the simulated tape, and classify realtime events.
package quotes

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"tickertape/internal/domain"
	"tickertape/internal/util"
)

// Client talks to the two upstream REST providers: the quote provider
// (Finnhub-shaped API) and the movers/history provider (Alpha Vantage-shaped
// API). All credentials and endpoints are explicit constructor inputs.
type Client struct {
	quoteKey  string
	quoteURL  string
	moversKey string
	moversURL string

	http    *http.Client
	limiter *util.RateLimiter
}

// NewClient creates a Client. limiter may be nil to disable rate limiting
// (tests); base URLs must not have a trailing slash.
func NewClient(quoteKey, quoteURL, moversKey, moversURL string, limiter *util.RateLimiter) *Client {
	return &Client{
		quoteKey:  quoteKey,
		quoteURL:  strings.TrimSuffix(quoteURL, "/"),
		moversKey: moversKey,
		moversURL: strings.TrimSuffix(moversURL, "/"),
		http:      &http.Client{Timeout: 10 * time.Second},
		limiter:   limiter,
	}
}

// getJSON fetches a URL and decodes the JSON response into out.
func (c *Client) getJSON(ctx context.Context, rawURL string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return err
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, resp.Body)
		return fmt.Errorf("quotes: %s returned status %d", req.URL.Path, resp.StatusCode)
	}

	return json.NewDecoder(resp.Body).Decode(out)
}

// wait applies the outbound rate limit when one is configured.
func (c *Client) wait(ctx context.Context) error {
	if c.limiter == nil {
		return nil
	}
	return c.limiter.Wait(ctx)
}

// ---------------------------------------------------------------------------
// Quote provider endpoints
// ---------------------------------------------------------------------------

// quoteResponse is the quote endpoint payload.
type quoteResponse struct {
	Current       float64 `json:"c"`
	Change        float64 `json:"d"`
	PercentChange float64 `json:"dp"`
	DayHigh       float64 `json:"h"`
	DayLow        float64 `json:"l"`
	PreviousClose float64 `json:"pc"`
}

// profileResponse is the company profile endpoint payload.
type profileResponse struct {
	Name string `json:"name"`
}

// Snapshot fetches the current quote and company profile for a symbol.
func (c *Client) Snapshot(ctx context.Context, symbol string) (domain.Quote, error) {
	symbol = domain.NormalizeSymbol(symbol)

	var quote quoteResponse
	u := fmt.Sprintf("%s/quote?symbol=%s&token=%s", c.quoteURL, url.QueryEscape(symbol), c.quoteKey)
	if err := c.getJSON(ctx, u, &quote); err != nil {
		return domain.Quote{}, fmt.Errorf("fetching quote for %s: %w", symbol, err)
	}
	if quote.Current == 0 {
		return domain.Quote{}, fmt.Errorf("quotes: no data for symbol %s", symbol)
	}

	var profile profileResponse
	u = fmt.Sprintf("%s/stock/profile2?symbol=%s&token=%s", c.quoteURL, url.QueryEscape(symbol), c.quoteKey)
	if err := c.getJSON(ctx, u, &profile); err != nil {
		return domain.Quote{}, fmt.Errorf("fetching profile for %s: %w", symbol, err)
	}
	if profile.Name == "" {
		profile.Name = "N/A"
	}

	return domain.Quote{
		Symbol:        symbol,
		CompanyName:   profile.Name,
		CurrentPrice:  quote.Current,
		Change:        quote.Change,
		PercentChange: quote.PercentChange,
		PreviousClose: quote.PreviousClose,
		DayHigh:       quote.DayHigh,
		DayLow:        quote.DayLow,
	}, nil
}

// PreviousClose fetches just the previous closing price for a symbol.
func (c *Client) PreviousClose(ctx context.Context, symbol string) (float64, error) {
	symbol = domain.NormalizeSymbol(symbol)

	var quote quoteResponse
	u := fmt.Sprintf("%s/quote?symbol=%s&token=%s", c.quoteURL, url.QueryEscape(symbol), c.quoteKey)
	if err := c.getJSON(ctx, u, &quote); err != nil {
		return 0, fmt.Errorf("fetching previous close for %s: %w", symbol, err)
	}
	if quote.PreviousClose <= 0 {
		return 0, fmt.Errorf("quotes: no previous close for symbol %s", symbol)
	}
	return quote.PreviousClose, nil
}

// ---------------------------------------------------------------------------
// Movers/history provider endpoints
// ---------------------------------------------------------------------------

// moverEntry is one row of the movers payload. The provider sends every
// numeric field as a string.
type moverEntry struct {
	Ticker           string `json:"ticker"`
	Price            string `json:"price"`
	ChangePercentage string `json:"change_percentage"`
}

// moversResponse is the categorized movers payload.
type moversResponse struct {
	TopGainers         []moverEntry `json:"top_gainers"`
	TopLosers          []moverEntry `json:"top_losers"`
	MostActivelyTraded []moverEntry `json:"most_actively_traded"`
}

// Movers fetches the one-shot categorized gainers/losers/most-active
// snapshot used to seed the simulated tape.
func (c *Client) Movers(ctx context.Context) (domain.MoversSnapshot, error) {
	if err := c.wait(ctx); err != nil {
		return domain.MoversSnapshot{}, err
	}

	u := fmt.Sprintf("%s/query?function=TOP_GAINERS_LOSERS&apikey=%s", c.moversURL, c.moversKey)

	var resp moversResponse
	err := util.Retry(ctx, 3, 500*time.Millisecond, func() error {
		return c.getJSON(ctx, u, &resp)
	})
	if err != nil {
		return domain.MoversSnapshot{}, fmt.Errorf("fetching movers: %w", err)
	}

	return domain.MoversSnapshot{
		Gainers:    parseMovers(resp.TopGainers),
		Losers:     parseMovers(resp.TopLosers),
		MostActive: parseMovers(resp.MostActivelyTraded),
	}, nil
}

// parseMovers converts raw string-typed entries, skipping rows whose numbers
// don't parse.
func parseMovers(entries []moverEntry) []domain.Mover {
	movers := make([]domain.Mover, 0, len(entries))
	for _, e := range entries {
		price, err := strconv.ParseFloat(strings.TrimSpace(e.Price), 64)
		if err != nil {
			continue
		}
		pctText := strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(e.ChangePercentage), "%"))
		pct, err := strconv.ParseFloat(pctText, 64)
		if err != nil {
			continue
		}
		movers = append(movers, domain.Mover{
			Symbol:        domain.NormalizeSymbol(e.Ticker),
			Price:         price,
			ChangePercent: pct,
		})
	}
	return movers
}

// historyResponse is the daily series payload: a map from date string to the
// day's string-typed fields.
type historyResponse struct {
	TimeSeries map[string]map[string]string `json:"Time Series (Daily)"`
}

// History fetches the full daily close series for a symbol, sorted ascending
// by date. Timestamps are midnight UTC of each trading day in Unix ms.
func (c *Client) History(ctx context.Context, symbol string) ([]domain.ClosePoint, error) {
	symbol = domain.NormalizeSymbol(symbol)

	if err := c.wait(ctx); err != nil {
		return nil, err
	}

	u := fmt.Sprintf("%s/query?function=TIME_SERIES_DAILY_ADJUSTED&symbol=%s&outputsize=full&apikey=%s",
		c.moversURL, url.QueryEscape(symbol), c.moversKey)

	var resp historyResponse
	err := util.Retry(ctx, 3, 500*time.Millisecond, func() error {
		return c.getJSON(ctx, u, &resp)
	})
	if err != nil {
		return nil, fmt.Errorf("fetching history for %s: %w", symbol, err)
	}
	if len(resp.TimeSeries) == 0 {
		return nil, fmt.Errorf("quotes: no history for symbol %s", symbol)
	}

	dates := make([]string, 0, len(resp.TimeSeries))
	for d := range resp.TimeSeries {
		dates = append(dates, d)
	}
	sort.Strings(dates)

	points := make([]domain.ClosePoint, 0, len(dates))
	for _, d := range dates {
		day, err := time.Parse("2006-01-02", d)
		if err != nil {
			continue
		}
		closeStr, ok := resp.TimeSeries[d]["5. adjusted close"]
		if !ok {
			continue
		}
		close, err := strconv.ParseFloat(closeStr, 64)
		if err != nil {
			continue
		}
		points = append(points, domain.ClosePoint{
			Timestamp: day.UTC().UnixMilli(),
			Close:     close,
		})
	}
	return points, nil
}
