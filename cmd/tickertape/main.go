// Console runner for the tickertape feed core: starts the tape manager and
// the watchlist manager and prints both streams to stdout until interrupted.
//
// Usage:
//
//	tickertape [-config tickertape.yaml] [-watch AAPL,MSFT,NVDA]
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"tickertape/internal/calendar"
	"tickertape/internal/config"
	"tickertape/internal/domain"
	"tickertape/internal/feed"
	"tickertape/internal/quotes"
	"tickertape/internal/store"
	"tickertape/internal/tape"
	"tickertape/internal/util"
	"tickertape/internal/watchlist"
)

func main() {
	configPath := flag.String("config", "", "path to YAML config (defaults + env when omitted)")
	watch := flag.String("watch", "", "comma-separated symbols to watchlist at startup")
	flag.Parse()

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "loading config:", err)
		os.Exit(1)
	}
	if cfg.Finnhub.APIKey == "" {
		fmt.Fprintln(os.Stderr, "FINNHUB_API_KEY not set")
		os.Exit(1)
	}

	logger := util.NewLogger(cfg.Logging.Level, cfg.Logging.Format)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	refs, err := store.NewSQLiteStore(cfg.Storage.SQLitePath)
	if err != nil {
		logger.Error("opening reference store", "error", err)
		os.Exit(1)
	}
	defer refs.Close()
	hist := store.NewParquetStore(cfg.Storage.DataDir)

	limiter := util.NewRateLimiter(cfg.AlphaVantage.RateLimitPerMin)
	client := quotes.NewClient(cfg.Finnhub.APIKey, cfg.Finnhub.BaseURL,
		cfg.AlphaVantage.APIKey, cfg.AlphaVantage.BaseURL, limiter)
	svc := quotes.NewService(client, refs, hist, logger)

	clock, err := marketClock(cfg, logger)
	if err != nil {
		logger.Error("building market clock", "error", err)
		os.Exit(1)
	}

	socketURL := cfg.Finnhub.SocketURL + "?token=" + cfg.Finnhub.APIKey
	dial := func(h feed.Handlers) feed.Connector {
		return feed.NewSocket(socketURL, h, logger)
	}

	// Tape.
	printer := &tapePrinter{}
	tm := tape.NewManager(dial, clock, svc, printer, tape.Options{
		WatchEvery:      time.Duration(cfg.Feed.WatchIntervalMS) * time.Millisecond,
		SimPace:         time.Duration(cfg.Feed.SimPaceMS) * time.Millisecond,
		ReplayQueueSize: cfg.Feed.ReplayQueueSize,
		TopPerCategory:  cfg.Feed.TopPerCategory,
	}, logger)
	printer.classify = tm.Classify
	if err := tm.Connect(ctx); err != nil {
		logger.Error("starting tape", "error", err)
		os.Exit(1)
	}
	defer tm.Close()
	logger.Info("tape started", "mode", tm.Mode())

	// Watchlist.
	wl := watchlist.NewManager(dial, &watchlistPrinter{},
		time.Duration(cfg.Feed.FlushIntervalMS)*time.Millisecond,
		time.Duration(cfg.Feed.KeepaliveIntervalMS)*time.Millisecond,
		logger)
	if err := wl.Connect(ctx); err != nil {
		logger.Error("starting watchlist", "error", err)
		os.Exit(1)
	}
	defer wl.Close()

	for _, symbol := range splitSymbols(*watch) {
		addToWatchlist(ctx, svc, wl, symbol, logger)
	}

	<-ctx.Done()
	fmt.Println("\nshutdown")
}

func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		return config.FromEnv(), nil
	}
	return config.Load(path)
}

// marketClock prefers the exchange trading calendar when Alpaca credentials
// are configured, falling back to the pure weekday/bell clock.
func marketClock(cfg *config.Config, logger *slog.Logger) (calendar.Clock, error) {
	if cfg.Alpaca.APIKey != "" {
		return calendar.NewSessionCalendar(cfg.Alpaca.APIKey, cfg.Alpaca.APISecret, cfg.Alpaca.BaseURL, logger)
	}
	return calendar.NewBellClock()
}

func splitSymbols(csv string) []string {
	if csv == "" {
		return nil
	}
	var out []string
	for _, s := range strings.Split(csv, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// addToWatchlist seeds one symbol from a quote snapshot. A failed snapshot
// skips the symbol rather than aborting startup.
func addToWatchlist(ctx context.Context, svc *quotes.Service, wl *watchlist.Manager, symbol string, logger *slog.Logger) {
	qctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	q, err := svc.Snapshot(qctx, symbol)
	if err != nil {
		logger.Error("snapshot failed, skipping symbol", "symbol", symbol, "error", err)
		return
	}
	wl.Add(symbol, q.CurrentPrice, q.PreviousClose)
	logger.Info("watching", "symbol", q.Symbol, "name", q.CompanyName, "price", q.CurrentPrice)
}

// tapePrinter renders tape events one per line, colored by classification.
type tapePrinter struct {
	classify func(domain.TapeEvent) domain.Tint
}

func (p *tapePrinter) OnTrade(evt domain.TapeEvent) {
	ts := time.UnixMilli(evt.Timestamp).Format("15:04:05")

	if evt.Kind == domain.KindHeader {
		fmt.Printf("%s  ── %s ──\n", ts, evt.Symbol)
		return
	}

	color, reset := "", ""
	if p.classify != nil {
		switch p.classify(evt) {
		case domain.TintUp:
			color, reset = "\033[32m", "\033[0m"
		case domain.TintDown:
			color, reset = "\033[31m", "\033[0m"
		}
	}

	switch evt.Kind {
	case domain.KindRealtime:
		fmt.Printf("%s  %s%-8s %10.2f  x%.0f%s\n", ts, color, evt.Symbol, evt.Price, evt.Volume, reset)
	default:
		// Simulated rows carry the change percent in the volume slot.
		fmt.Printf("%s  %s%-8s %10.2f  %+.2f%%%s\n", ts, color, evt.Symbol, evt.Price, evt.Volume, reset)
	}
}

func (p *tapePrinter) OnMarketModeChanged(simulated bool) {
	if simulated {
		fmt.Println("── market closed, replaying movers ──")
	} else {
		fmt.Println("── market open, live feed ──")
	}
}

// watchlistPrinter renders the periodic watchlist snapshots.
type watchlistPrinter struct{}

func (watchlistPrinter) OnSnapshot(symbol string, price, changePercent float64) {
	fmt.Printf("WATCH  %-8s %10.2f  %+.2f%%\n", symbol, price, changePercent)
}

func (watchlistPrinter) OnSymbolRemoved(symbol string) {
	fmt.Printf("WATCH  %-8s removed\n", symbol)
}
