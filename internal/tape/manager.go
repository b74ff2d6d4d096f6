// Package tape maintains one continuous chronological stream of trade and
// summary events for display, switching automatically between a live push
// source during market hours and a synthetic replay source after hours.
package tape

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"tickertape/internal/calendar"
	"tickertape/internal/domain"
	"tickertape/internal/feed"
)

// Listener receives tape events and mode-change notifications. A single
// listener is passed at construction; callbacks run on the feed goroutines
// and must return quickly.
type Listener interface {
	OnTrade(evt domain.TapeEvent)
	OnMarketModeChanged(simulated bool)
}

// QuoteSource supplies the external reference data the tape needs: the
// one-shot movers snapshot seeding the simulation and previous closes for
// classifying realtime events.
type QuoteSource interface {
	Movers(ctx context.Context) (domain.MoversSnapshot, error)
	PreviousClose(ctx context.Context, symbol string) (float64, error)
}

// Sentinel cached when a previous-close lookup fails, so a symbol that keeps
// missing doesn't trigger a fetch on every event.
const unknownClose = -1.0

const (
	defaultWatchEvery = time.Minute
	defaultSimPace    = 800 * time.Millisecond
	defaultQueueSize  = 4096
	defaultTopPerCat  = 7
	lookupTimeout     = 10 * time.Second
)

// Options tune the manager's cadences and capacities. Zero values select
// the defaults.
type Options struct {
	WatchEvery      time.Duration // market-hours re-check interval
	SimPace         time.Duration // simulated replay cycle interval
	ReplayQueueSize int
	TopPerCategory  int // live subscriptions per movers category
}

func (o Options) withDefaults() Options {
	if o.WatchEvery <= 0 {
		o.WatchEvery = defaultWatchEvery
	}
	if o.SimPace <= 0 {
		o.SimPace = defaultSimPace
	}
	if o.ReplayQueueSize <= 0 {
		o.ReplayQueueSize = defaultQueueSize
	}
	if o.TopPerCategory <= 0 {
		o.TopPerCategory = defaultTopPerCat
	}
	return o
}

// Manager is the tape feed manager: a state machine over FeedMode driving
// one of two sources at a time and dispatching every event in arrival order.
type Manager struct {
	dial     func(feed.Handlers) feed.Connector
	clock    calendar.Clock
	quotes   QuoteSource
	listener Listener
	opts     Options
	log      *slog.Logger

	replay chan domain.TapeEvent

	mu        sync.Mutex
	mode      domain.FeedMode
	lastOpen  bool
	conn      feed.Connector
	simCancel context.CancelFunc

	cacheMu    sync.Mutex
	prevCloses map[string]float64

	runCtx    context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	closeOnce sync.Once
}

// NewManager creates a Manager. dial builds a live connector with the
// manager's handlers installed; it is invoked on connect and again on every
// SIMULATED→LIVE transition.
func NewManager(dial func(feed.Handlers) feed.Connector, clock calendar.Clock, quotes QuoteSource, listener Listener, opts Options, log *slog.Logger) *Manager {
	opts = opts.withDefaults()
	return &Manager{
		dial:       dial,
		clock:      clock,
		quotes:     quotes,
		listener:   listener,
		opts:       opts,
		log:        log.With("component", "tape"),
		replay:     make(chan domain.TapeEvent, opts.ReplayQueueSize),
		prevCloses: make(map[string]float64),
	}
}

// Connect selects the initial mode from the market clock, starts the chosen
// source, and starts the mode watcher. The initial selection emits no
// mode-change notification.
func (m *Manager) Connect(ctx context.Context) error {
	m.runCtx, m.cancel = context.WithCancel(ctx)

	open := m.clock.IsMarketOpen(time.Now())

	m.mu.Lock()
	m.lastOpen = open
	var err error
	if open {
		m.mode = domain.ModeLive
		err = m.openLiveLocked(m.runCtx)
	} else {
		m.mode = domain.ModeSimulated
		m.startSimulationLocked(m.runCtx)
	}
	m.mu.Unlock()

	if err != nil {
		return fmt.Errorf("tape: opening live connector: %w", err)
	}

	m.wg.Add(1)
	go m.watchLoop(m.runCtx)
	return nil
}

// Mode returns the current feed mode.
func (m *Manager) Mode() domain.FeedMode {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.mode
}

// IsMarketOpen reports the market clock's answer for the current instant.
func (m *Manager) IsMarketOpen() bool {
	return m.clock.IsMarketOpen(time.Now())
}

// Subscribe forwards a subscribe control message to the live connector. It
// is a no-op unless the tape is LIVE and connected; requests are not queued
// for later.
func (m *Manager) Subscribe(symbol string) {
	m.sendControl(feed.SubscribeMessage(domain.NormalizeSymbol(symbol)))
}

// Unsubscribe forwards an unsubscribe control message under the same rules
// as Subscribe.
func (m *Manager) Unsubscribe(symbol string) {
	m.sendControl(feed.UnsubscribeMessage(domain.NormalizeSymbol(symbol)))
}

func (m *Manager) sendControl(msg []byte) {
	m.mu.Lock()
	conn := m.conn
	live := m.mode == domain.ModeLive
	m.mu.Unlock()

	if !live || conn == nil || !conn.IsOpen() {
		return
	}
	if err := conn.Send(msg); err != nil {
		m.log.Warn("control send failed", "error", err)
	}
}

// Replay exposes the bounded buffer of realtime events for downstream
// consumers that want to drain a recent-trades backlog.
func (m *Manager) Replay() <-chan domain.TapeEvent {
	return m.replay
}

// Close stops the watcher, the active source, and the connector. Safe to
// call more than once.
func (m *Manager) Close() error {
	m.closeOnce.Do(func() {
		if m.cancel != nil {
			m.cancel()
		}
		m.wg.Wait()

		m.mu.Lock()
		conn := m.conn
		m.conn = nil
		m.mu.Unlock()
		if conn != nil {
			if err := conn.Close(); err != nil {
				m.log.Warn("closing connector", "error", err)
			}
		}
	})
	return nil
}

// ---------------------------------------------------------------------------
// Mode watcher
// ---------------------------------------------------------------------------

// watchLoop re-samples the market clock at a bounded interval and fires a
// transition only when the answer changes.
func (m *Manager) watchLoop(ctx context.Context) {
	defer m.wg.Done()

	ticker := time.NewTicker(m.opts.WatchEvery)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.evaluate(ctx)
		}
	}
}

// evaluate performs one edge-triggered mode check. Exposed to the watcher
// ticker only; transitions never overlap because evaluate holds the mode
// lock end to end.
func (m *Manager) evaluate(ctx context.Context) {
	open := m.clock.IsMarketOpen(time.Now())

	m.mu.Lock()
	if open == m.lastOpen {
		m.mu.Unlock()
		return
	}
	m.lastOpen = open

	if open {
		m.stopSimulationLocked()
		if m.conn == nil || !m.conn.IsOpen() {
			if err := m.openLiveLocked(ctx); err != nil {
				m.log.Error("reopening live connector", "error", err)
			}
		}
		m.mode = domain.ModeLive
	} else {
		m.closeLiveLocked()
		m.startSimulationLocked(ctx)
		m.mode = domain.ModeSimulated
	}
	m.mu.Unlock()

	m.log.Info("market mode changed", "open", open)
	m.listener.OnMarketModeChanged(!open)
}

// ---------------------------------------------------------------------------
// Live source
// ---------------------------------------------------------------------------

// openLiveLocked dials the live connector. Call with m.mu held.
func (m *Manager) openLiveLocked(ctx context.Context) error {
	conn := m.dial(feed.Handlers{
		OnOpen:    func() { go m.subscribeTopMovers(ctx) },
		OnMessage: m.handleLiveFrame,
	})
	if err := conn.Open(ctx); err != nil {
		return err
	}
	m.conn = conn
	return nil
}

// closeLiveLocked closes the live connector if there is one. Call with m.mu
// held.
func (m *Manager) closeLiveLocked() {
	if m.conn == nil {
		return
	}
	if err := m.conn.Close(); err != nil {
		m.log.Warn("closing live connector", "error", err)
	}
	m.conn = nil
}

// subscribeTopMovers subscribes the live stream to the current top movers:
// TopPerCategory symbols each from gainers and losers, twice that from the
// most-active list.
func (m *Manager) subscribeTopMovers(ctx context.Context) {
	lctx, cancel := context.WithTimeout(ctx, lookupTimeout)
	defer cancel()

	snap, err := m.quotes.Movers(lctx)
	if err != nil {
		m.log.Error("fetching top movers for live subscriptions", "error", err)
		return
	}

	seen := make(map[string]struct{})
	pick := func(movers []domain.Mover, n int) {
		for i := 0; i < len(movers) && i < n; i++ {
			seen[movers[i].Symbol] = struct{}{}
		}
	}
	n := m.opts.TopPerCategory
	pick(snap.Gainers, n)
	pick(snap.Losers, n)
	pick(snap.MostActive, 2*n)

	m.mu.Lock()
	conn := m.conn
	m.mu.Unlock()
	if conn == nil {
		return
	}

	for symbol := range seen {
		if err := conn.Send(feed.SubscribeMessage(symbol)); err != nil {
			m.log.Warn("subscribing top mover failed", "symbol", symbol, "error", err)
			return
		}
	}
	m.log.Info("subscribed top movers", "symbols", len(seen))
}

// handleLiveFrame parses one inbound frame and dispatches its trades in
// arrival order. Malformed frames are logged and skipped without touching
// the connection.
func (m *Manager) handleLiveFrame(raw []byte) {
	trades, err := feed.ParseTrades(raw)
	if err != nil {
		m.log.Warn("skipping malformed frame", "error", err)
		return
	}

	for _, t := range trades {
		evt := domain.TapeEvent{
			Symbol:    domain.NormalizeSymbol(t.Symbol),
			Price:     t.Price,
			Volume:    t.Volume,
			Timestamp: t.Timestamp,
			Kind:      domain.KindRealtime,
		}
		m.buffer(evt)
		m.listener.OnTrade(evt)
	}
}

// buffer appends a realtime event to the bounded replay queue. Overflow
// drops the incoming event with a logged warning; the producer is never
// blocked.
func (m *Manager) buffer(evt domain.TapeEvent) {
	select {
	case m.replay <- evt:
	default:
		m.log.Warn("replay queue full, dropping event", "symbol", evt.Symbol)
	}
}

// ---------------------------------------------------------------------------
// Simulated source
// ---------------------------------------------------------------------------

// startSimulationLocked fetches the movers snapshot and starts the replay
// loop. A fetch failure is logged and leaves the tape without simulated data
// until the next mode edge; the watcher keeps running either way. Call with
// m.mu held.
func (m *Manager) startSimulationLocked(ctx context.Context) {
	lctx, cancel := context.WithTimeout(ctx, lookupTimeout)
	snap, err := m.quotes.Movers(lctx)
	cancel()
	if err != nil {
		m.log.Error("fetching movers snapshot for simulation", "error", err)
		return
	}

	simCtx, simCancel := context.WithCancel(ctx)
	m.simCancel = simCancel

	sim := &simulator{
		snap: snap,
		pace: m.opts.SimPace,
		emit: m.listener.OnTrade,
	}
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		sim.run(simCtx)
	}()
}

// stopSimulationLocked cancels the replay loop if one is running. Call with
// m.mu held.
func (m *Manager) stopSimulationLocked() {
	if m.simCancel != nil {
		m.simCancel()
		m.simCancel = nil
	}
}

// ---------------------------------------------------------------------------
// Classification
// ---------------------------------------------------------------------------

// Classify derives the up/down/neutral tint for a tape event. Headers and
// most-active rows are neutral; gainers and losers carry their direction;
// realtime trades compare the price against a cached previous close, with
// "unknown" classifying as neutral.
func (m *Manager) Classify(evt domain.TapeEvent) domain.Tint {
	switch evt.Kind {
	case domain.KindGainer:
		return domain.TintUp
	case domain.KindLoser:
		return domain.TintDown
	case domain.KindRealtime:
		prev := m.previousClose(evt.Symbol)
		switch {
		case prev <= 0:
			return domain.TintNeutral
		case evt.Price > prev:
			return domain.TintUp
		case evt.Price < prev:
			return domain.TintDown
		}
		return domain.TintNeutral
	default: // header, active
		return domain.TintNeutral
	}
}

// previousClose returns the cached previous close for a symbol, fetching it
// once on a miss. A failed fetch caches the unknown sentinel so later events
// for the same symbol don't re-fetch.
func (m *Manager) previousClose(symbol string) float64 {
	m.cacheMu.Lock()
	prev, cached := m.prevCloses[symbol]
	m.cacheMu.Unlock()
	if cached {
		return prev
	}

	ctx := m.runCtx
	if ctx == nil {
		ctx = context.Background()
	}
	lctx, cancel := context.WithTimeout(ctx, lookupTimeout)
	defer cancel()

	prev, err := m.quotes.PreviousClose(lctx, symbol)
	if err != nil {
		m.log.Warn("previous close lookup failed", "symbol", symbol, "error", err)
		prev = unknownClose
	}

	m.cacheMu.Lock()
	m.prevCloses[symbol] = prev
	m.cacheMu.Unlock()
	return prev
}
