// One-shot quote tool: fetch a snapshot, the movers lists, or a daily close
// history without starting the feed managers.
//
// Usage:
//
//	quote snapshot AAPL
//	quote movers
//	quote history AAPL [-refresh]
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"tickertape/internal/config"
	"tickertape/internal/domain"
	"tickertape/internal/quotes"
	"tickertape/internal/store"
	"tickertape/internal/util"
)

func main() {
	if len(os.Args) < 2 {
		usage()
	}

	cfg := config.FromEnv()
	logger := util.NewLogger(cfg.Logging.Level, "text")

	refs, err := store.NewSQLiteStore(cfg.Storage.SQLitePath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "opening reference store:", err)
		os.Exit(1)
	}
	defer refs.Close()
	hist := store.NewParquetStore(cfg.Storage.DataDir)

	limiter := util.NewRateLimiter(cfg.AlphaVantage.RateLimitPerMin)
	client := quotes.NewClient(cfg.Finnhub.APIKey, cfg.Finnhub.BaseURL,
		cfg.AlphaVantage.APIKey, cfg.AlphaVantage.BaseURL, limiter)
	svc := quotes.NewService(client, refs, hist, logger)

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	switch os.Args[1] {
	case "snapshot":
		if len(os.Args) < 3 {
			usage()
		}
		q, err := svc.Snapshot(ctx, os.Args[2])
		if err != nil {
			fatal(err)
		}
		fmt.Printf("%s  %s\n", q.Symbol, q.CompanyName)
		fmt.Printf("  price %10.2f  (%+.2f, %+.2f%%)\n", q.CurrentPrice, q.Change, q.PercentChange)
		fmt.Printf("  prev  %10.2f  high %10.2f  low %10.2f\n", q.PreviousClose, q.DayHigh, q.DayLow)

	case "movers":
		snap, err := svc.Movers(ctx)
		if err != nil {
			fatal(err)
		}
		printMovers("Top Gainers", snap.Gainers)
		printMovers("Top Losers", snap.Losers)
		printMovers("Most Active", snap.MostActive)

	case "history":
		if len(os.Args) < 3 {
			usage()
		}
		refresh := len(os.Args) > 3 && os.Args[3] == "-refresh"
		points, err := svc.History(ctx, os.Args[2], refresh)
		if err != nil {
			fatal(err)
		}
		for _, p := range points {
			fmt.Printf("%s  %10.2f\n", time.UnixMilli(p.Timestamp).UTC().Format("2006-01-02"), p.Close)
		}
		fmt.Printf("%d trading days\n", len(points))

	default:
		usage()
	}
}

func printMovers(label string, movers []domain.Mover) {
	fmt.Printf("── %s ──\n", label)
	for _, mv := range movers {
		fmt.Printf("  %-8s %10.2f  %+.2f%%\n", mv.Symbol, mv.Price, mv.ChangePercent)
	}
}

func fatal(err error) {
	fmt.Fprintln(os.Stderr, err)
	os.Exit(1)
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage: quote snapshot SYMBOL | movers | history SYMBOL [-refresh]")
	os.Exit(1)
}
