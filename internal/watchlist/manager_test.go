package watchlist

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"math"
	"sync"
	"testing"
	"time"

	"tickertape/internal/feed"
)

// fakeConnector records control frames and lets tests inject inbound frames
// through the handlers it was dialed with.
type fakeConnector struct {
	mu       sync.Mutex
	handlers feed.Handlers
	sent     [][]byte
	open     bool
	closed   int
}

func (f *fakeConnector) Open(ctx context.Context) error {
	f.mu.Lock()
	f.open = true
	f.mu.Unlock()
	return nil
}

func (f *fakeConnector) Send(msg []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, msg)
	return nil
}

func (f *fakeConnector) IsOpen() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.open
}

func (f *fakeConnector) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.open = false
	f.closed++
	return nil
}

func (f *fakeConnector) sentMessages() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.sent))
	for i, b := range f.sent {
		out[i] = string(b)
	}
	return out
}

// deliver pushes a raw frame through the manager's OnMessage handler.
func (f *fakeConnector) deliver(raw []byte) {
	f.handlers.OnMessage(raw)
}

type snapshotCall struct {
	symbol        string
	price         float64
	changePercent float64
}

// recordingSink captures sink callbacks for assertions.
type recordingSink struct {
	mu        sync.Mutex
	snapshots []snapshotCall
	removed   []string
}

func (s *recordingSink) OnSnapshot(symbol string, price, changePercent float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snapshots = append(s.snapshots, snapshotCall{symbol, price, changePercent})
}

func (s *recordingSink) OnSymbolRemoved(symbol string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.removed = append(s.removed, symbol)
}

func (s *recordingSink) lastFor(symbol string) (snapshotCall, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := len(s.snapshots) - 1; i >= 0; i-- {
		if s.snapshots[i].symbol == symbol {
			return s.snapshots[i], true
		}
	}
	return snapshotCall{}, false
}

func (s *recordingSink) removedSymbols() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.removed...)
}

func (s *recordingSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.snapshots)
}

func tradeFrame(symbol string, price float64) []byte {
	b, _ := json.Marshal(map[string]any{
		"type": "trade",
		"data": []map[string]any{
			{"s": symbol, "p": price, "v": 100.0, "t": time.Now().UnixMilli()},
		},
	})
	return b
}

func newTestManager(t *testing.T) (*Manager, *fakeConnector, *recordingSink) {
	t.Helper()
	conn := &fakeConnector{}
	dial := func(h feed.Handlers) feed.Connector {
		conn.handlers = h
		return conn
	}
	sink := &recordingSink{}
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	// Long intervals keep the timers out of the way; tests drive state
	// through the handlers and call flush directly.
	m := NewManager(dial, sink, time.Hour, time.Hour, log)
	if err := m.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	t.Cleanup(func() { m.Close() })
	return m, conn, sink
}

func TestAddSubscribesAndEmitsImmediately(t *testing.T) {
	m, conn, sink := newTestManager(t)

	m.Add("aapl", 150, 140)

	if !m.Contains("AAPL") {
		t.Fatal("AAPL not tracked after Add")
	}
	call, ok := sink.lastFor("AAPL")
	if !ok {
		t.Fatal("no immediate snapshot after Add")
	}
	wantPct := (150.0 - 140.0) / 140.0 * 100
	if call.price != 150 || math.Abs(call.changePercent-wantPct) > 1e-9 {
		t.Fatalf("got snapshot (%v, %v), want (150, %v)", call.price, call.changePercent, wantPct)
	}

	want := string(feed.SubscribeMessage("AAPL"))
	msgs := conn.sentMessages()
	if len(msgs) != 1 || msgs[0] != want {
		t.Fatalf("sent %v, want exactly [%s]", msgs, want)
	}
}

func TestAddIsIdempotent(t *testing.T) {
	m, conn, sink := newTestManager(t)

	m.Add("AAPL", 150, 140)
	m.Add("AAPL", 999, 1)

	if got := len(conn.sentMessages()); got != 1 {
		t.Fatalf("sent %d subscribe messages, want 1", got)
	}
	call, _ := sink.lastFor("AAPL")
	if call.price != 150 {
		t.Fatalf("second Add replaced sample: price %v, want 150", call.price)
	}
}

func TestRemoveUnsubscribesAndNotifies(t *testing.T) {
	m, conn, sink := newTestManager(t)

	m.Add("MSFT", 300, 290)
	m.Remove("msft")

	if m.Contains("MSFT") {
		t.Fatal("MSFT still tracked after Remove")
	}
	if got := sink.removedSymbols(); len(got) != 1 || got[0] != "MSFT" {
		t.Fatalf("removed callbacks %v, want [MSFT]", got)
	}
	msgs := conn.sentMessages()
	want := string(feed.UnsubscribeMessage("MSFT"))
	if len(msgs) != 2 || msgs[1] != want {
		t.Fatalf("sent %v, want unsubscribe as second message", msgs)
	}
}

func TestRemoveNeverSubscribedEmitsNothing(t *testing.T) {
	m, conn, sink := newTestManager(t)

	m.Remove("TSLA")

	if got := sink.removedSymbols(); len(got) != 0 {
		t.Fatalf("removed callbacks %v, want none", got)
	}
	if got := conn.sentMessages(); len(got) != 0 {
		t.Fatalf("sent %v, want no control frames", got)
	}
}

func TestPercentChangeAgainstReference(t *testing.T) {
	m, conn, sink := newTestManager(t)

	m.Add("AAPL", 100, 100)
	conn.deliver(tradeFrame("AAPL", 110))
	m.flush()

	call, ok := sink.lastFor("AAPL")
	if !ok {
		t.Fatal("no snapshot flushed")
	}
	if call.price != 110 || math.Abs(call.changePercent-10.0) > 1e-9 {
		t.Fatalf("got (%v, %v), want (110, 10.0)", call.price, call.changePercent)
	}
}

func TestZeroReferenceSkipsUpdate(t *testing.T) {
	m, conn, sink := newTestManager(t)

	m.Add("NEWCO", 50, 0)
	conn.deliver(tradeFrame("NEWCO", 55))
	m.flush()

	call, ok := sink.lastFor("NEWCO")
	if !ok {
		t.Fatal("no snapshot flushed")
	}
	// The trade must not overwrite the sample while the reference price is
	// unusable.
	if call.price != 50 || call.changePercent != 0 {
		t.Fatalf("got (%v, %v), want original (50, 0)", call.price, call.changePercent)
	}
}

func TestUnsubscribedTradesAreDropped(t *testing.T) {
	m, conn, sink := newTestManager(t)

	conn.deliver(tradeFrame("GOOG", 2800))
	m.flush()

	if _, ok := sink.lastFor("GOOG"); ok {
		t.Fatal("trade for unsubscribed symbol reached the sink")
	}
	if m.Contains("GOOG") {
		t.Fatal("unsubscribed symbol became tracked")
	}
}

func TestMalformedFrameIsSkipped(t *testing.T) {
	m, conn, sink := newTestManager(t)

	m.Add("AAPL", 150, 140)
	conn.deliver([]byte("{not json"))
	m.flush()

	call, _ := sink.lastFor("AAPL")
	if call.price != 150 {
		t.Fatalf("malformed frame disturbed sample: price %v", call.price)
	}
}

func TestEndToEndSnapshotFlow(t *testing.T) {
	m, conn, sink := newTestManager(t)

	m.Add("AAPL", 150, 140)
	conn.deliver(tradeFrame("AAPL", 154))
	m.flush()

	call, ok := sink.lastFor("AAPL")
	if !ok {
		t.Fatal("no snapshot flushed")
	}
	wantPct := (154.0 - 140.0) / 140.0 * 100 // ~2.857
	if call.price != 154 || math.Abs(call.changePercent-wantPct) > 1e-9 {
		t.Fatalf("got (%v, %v), want (154, %v)", call.price, call.changePercent, wantPct)
	}
}

func TestResubscribeOnReconnect(t *testing.T) {
	m, conn, _ := newTestManager(t)

	m.Add("AAPL", 150, 140)
	m.Add("MSFT", 300, 290)

	before := len(conn.sentMessages())
	conn.handlers.OnOpen()

	msgs := conn.sentMessages()[before:]
	if len(msgs) != 2 {
		t.Fatalf("resubscribe sent %d messages, want 2: %v", len(msgs), msgs)
	}
	seen := map[string]bool{}
	for _, msg := range msgs {
		seen[msg] = true
	}
	for _, symbol := range []string{"AAPL", "MSFT"} {
		if !seen[string(feed.SubscribeMessage(symbol))] {
			t.Fatalf("missing resubscribe for %s in %v", symbol, msgs)
		}
	}
}

func TestCoalescingFlushEmitsLatestOnly(t *testing.T) {
	m, conn, sink := newTestManager(t)

	m.Add("AAPL", 100, 100)
	for i := 1; i <= 50; i++ {
		conn.deliver(tradeFrame("AAPL", 100+float64(i)))
	}
	before := sink.count()
	m.flush()

	if got := sink.count() - before; got != 1 {
		t.Fatalf("flush emitted %d snapshots, want 1", got)
	}
	call, _ := sink.lastFor("AAPL")
	if call.price != 150 {
		t.Fatalf("flushed price %v, want latest 150", call.price)
	}
}

func TestCloseIsIdempotent(t *testing.T) {
	m, conn, _ := newTestManager(t)

	if err := m.Close(); err != nil {
		t.Fatalf("first Close: %v", err)
	}
	if err := m.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
	if conn.closed != 1 {
		t.Fatalf("connector closed %d times, want 1", conn.closed)
	}
}
