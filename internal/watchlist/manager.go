// Package watchlist maintains the set of subscribed symbols, ingests the
// live trade stream, computes percent change against each symbol's reference
// price, and pushes coalesced snapshots to a sink on a fixed cadence
// independent of trade arrival rate.
package watchlist

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"tickertape/internal/domain"
	"tickertape/internal/feed"
)

// Sink receives watchlist updates. Implementations are the presentation
// layer; callbacks must return quickly.
type Sink interface {
	OnSnapshot(symbol string, price, changePercent float64)
	OnSymbolRemoved(symbol string)
}

const (
	defaultFlushEvery = time.Second
	defaultPingEvery  = 30 * time.Second
)

// Manager is the watchlist feed manager. All methods are safe for concurrent
// use; the trade-ingest callback never blocks on the sink cadence.
type Manager struct {
	dial       func(feed.Handlers) feed.Connector
	sink       Sink
	log        *slog.Logger
	flushEvery time.Duration
	pingEvery  time.Duration

	mu      sync.RWMutex
	samples map[string]domain.TradeSample
	refs    map[string]float64 // symbol → previous close; lives exactly as long as the sample

	conn      feed.Connector
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	closeOnce sync.Once
}

// NewManager creates a Manager. dial builds the live connector with the
// manager's handlers installed; flushEvery/pingEvery default to 1s/30s when
// zero.
func NewManager(dial func(feed.Handlers) feed.Connector, sink Sink, flushEvery, pingEvery time.Duration, log *slog.Logger) *Manager {
	if flushEvery <= 0 {
		flushEvery = defaultFlushEvery
	}
	if pingEvery <= 0 {
		pingEvery = defaultPingEvery
	}
	return &Manager{
		dial:       dial,
		sink:       sink,
		log:        log.With("component", "watchlist"),
		flushEvery: flushEvery,
		pingEvery:  pingEvery,
		samples:    make(map[string]domain.TradeSample),
		refs:       make(map[string]float64),
	}
}

// Connect opens the live connector and starts the snapshot-flush and
// keep-alive timers. Fatal connector misconfiguration is returned here once;
// everything later is logged and survived.
func (m *Manager) Connect(ctx context.Context) error {
	m.conn = m.dial(feed.Handlers{
		OnOpen:    m.resubscribe,
		OnMessage: m.ingest,
	})
	if err := m.conn.Open(ctx); err != nil {
		return fmt.Errorf("watchlist: opening connector: %w", err)
	}

	runCtx, cancel := context.WithCancel(ctx)
	m.cancel = cancel

	m.wg.Add(2)
	go m.flushLoop(runCtx)
	go m.keepaliveLoop(runCtx)
	return nil
}

// Add subscribes a symbol. The caller supplies the current price and
// previous close from a quote snapshot; an immediate synthetic snapshot is
// emitted from those values. Calling Add for an already-subscribed symbol is
// a no-op.
func (m *Manager) Add(symbol string, currentPrice, previousClose float64) {
	symbol = domain.NormalizeSymbol(symbol)
	if symbol == "" {
		return
	}

	m.mu.Lock()
	if _, subscribed := m.samples[symbol]; subscribed {
		m.mu.Unlock()
		return
	}
	var pct float64
	if previousClose > 0 {
		pct = (currentPrice - previousClose) / previousClose * 100
	}
	m.samples[symbol] = domain.TradeSample{Symbol: symbol, Price: currentPrice, ChangePercent: pct}
	m.refs[symbol] = previousClose
	m.mu.Unlock()

	m.sink.OnSnapshot(symbol, currentPrice, pct)

	if m.conn != nil && m.conn.IsOpen() {
		if err := m.conn.Send(feed.SubscribeMessage(symbol)); err != nil {
			m.log.Warn("subscribe failed", "symbol", symbol, "error", err)
		}
	}
}

// Remove unsubscribes a symbol and drops its trade data. Removing a symbol
// that was never subscribed is a no-op and emits nothing.
func (m *Manager) Remove(symbol string) {
	symbol = domain.NormalizeSymbol(symbol)

	m.mu.Lock()
	if _, subscribed := m.samples[symbol]; !subscribed {
		m.mu.Unlock()
		return
	}
	delete(m.samples, symbol)
	delete(m.refs, symbol)
	m.mu.Unlock()

	if m.conn != nil && m.conn.IsOpen() {
		if err := m.conn.Send(feed.UnsubscribeMessage(symbol)); err != nil {
			m.log.Warn("unsubscribe failed", "symbol", symbol, "error", err)
		}
	}

	m.sink.OnSymbolRemoved(symbol)
}

// Contains reports whether a symbol is currently subscribed.
func (m *Manager) Contains(symbol string) bool {
	symbol = domain.NormalizeSymbol(symbol)
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, subscribed := m.samples[symbol]
	return subscribed
}

// Close stops the timers and the connector. Safe to call more than once.
func (m *Manager) Close() error {
	m.closeOnce.Do(func() {
		if m.cancel != nil {
			m.cancel()
		}
		m.wg.Wait()
		if m.conn != nil {
			if err := m.conn.Close(); err != nil {
				m.log.Warn("closing connector", "error", err)
			}
		}
	})
	return nil
}

// resubscribe re-issues subscribe messages for every tracked symbol. Runs on
// every successful (re)connect.
func (m *Manager) resubscribe() {
	m.mu.RLock()
	symbols := make([]string, 0, len(m.samples))
	for symbol := range m.samples {
		symbols = append(symbols, symbol)
	}
	m.mu.RUnlock()

	for _, symbol := range symbols {
		if err := m.conn.Send(feed.SubscribeMessage(symbol)); err != nil {
			m.log.Warn("resubscribe failed", "symbol", symbol, "error", err)
			return
		}
	}
	if len(symbols) > 0 {
		m.log.Info("resubscribed", "symbols", len(symbols))
	}
}

// ingest handles one raw inbound frame from the connector read goroutine.
// Unsubscribed symbols are dropped silently; a zero or missing reference
// price skips the update rather than producing a bogus percent change.
func (m *Manager) ingest(raw []byte) {
	trades, err := feed.ParseTrades(raw)
	if err != nil {
		m.log.Warn("skipping malformed frame", "error", err)
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	for _, t := range trades {
		symbol := domain.NormalizeSymbol(t.Symbol)
		if _, subscribed := m.samples[symbol]; !subscribed {
			continue
		}
		ref := m.refs[symbol]
		if ref <= 0 {
			continue
		}
		pct := (t.Price - ref) / ref * 100
		m.samples[symbol] = domain.TradeSample{Symbol: symbol, Price: t.Price, ChangePercent: pct}
	}
}

// flushLoop re-emits the last-known sample for every subscribed symbol at a
// fixed cadence, whether or not new trades arrived. This coalesces bursts of
// trades into at most one sink call per symbol per interval.
func (m *Manager) flushLoop(ctx context.Context) {
	defer m.wg.Done()

	ticker := time.NewTicker(m.flushEvery)
	defer ticker.Stop()

	m.flush()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.flush()
		}
	}
}

// flush emits every current sample outside the lock.
func (m *Manager) flush() {
	m.mu.RLock()
	snapshot := make([]domain.TradeSample, 0, len(m.samples))
	for _, sample := range m.samples {
		snapshot = append(snapshot, sample)
	}
	m.mu.RUnlock()

	for _, sample := range snapshot {
		m.sink.OnSnapshot(sample.Symbol, sample.Price, sample.ChangePercent)
	}
}

// keepaliveLoop sends a protocol-level ping while the connection is open.
func (m *Manager) keepaliveLoop(ctx context.Context) {
	defer m.wg.Done()

	ticker := time.NewTicker(m.pingEvery)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if m.conn.IsOpen() {
				if err := m.conn.Send(feed.PingMessage()); err != nil {
					m.log.Warn("keepalive ping failed", "error", err)
				}
			}
		}
	}
}
