package feed

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"net/url"
	"sync"
	"time"

	"github.com/coder/websocket"
)

// Compile-time interface check.
var _ Connector = (*Socket)(nil)

// ErrNotConnected is returned by Send when the connection is down.
var ErrNotConnected = errors.New("feed: socket not connected")

const (
	dialTimeout  = 5 * time.Second
	writeTimeout = 2 * time.Second
	minBackoff   = 200 * time.Millisecond
	maxBackoff   = 10 * time.Second
	// A connection must survive this long before the redial backoff resets,
	// so a flapping upstream doesn't produce a reconnect storm.
	stableReset = 10 * time.Second
)

// Socket is a Connector over a websocket. It owns a single read goroutine
// that redials with jittered exponential backoff until Close is called.
type Socket struct {
	url      string
	handlers Handlers
	log      *slog.Logger

	mu     sync.Mutex
	conn   *websocket.Conn
	open   bool
	closed bool
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewSocket creates a Socket targeting rawURL. The URL and credentials are
// explicit inputs; nothing is read from the process environment.
func NewSocket(rawURL string, handlers Handlers, log *slog.Logger) *Socket {
	return &Socket{
		url:      rawURL,
		handlers: handlers,
		log:      log.With("component", "socket"),
	}
}

// Open validates the URL and starts the connect/read loop. It returns an
// error only for fatal misconfiguration; dial failures are retried in the
// background.
func (s *Socket) Open(ctx context.Context) error {
	u, err := url.Parse(s.url)
	if err != nil {
		return fmt.Errorf("feed: parsing socket url: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("feed: unusable socket url %q", s.url)
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return errors.New("feed: socket already closed")
	}
	if s.cancel != nil {
		s.mu.Unlock()
		return nil // already open
	}
	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.mu.Unlock()

	s.wg.Add(1)
	go s.run(runCtx)
	return nil
}

// run dials, serves the connection until it drops, and redials with backoff.
func (s *Socket) run(ctx context.Context) {
	defer s.wg.Done()

	backoff := minBackoff
	rng := rand.New(rand.NewSource(time.Now().UnixNano()))

	for ctx.Err() == nil {
		dctx, cancel := context.WithTimeout(ctx, dialTimeout)
		conn, _, err := websocket.Dial(dctx, s.url, nil)
		cancel()
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			sleep := backoff/2 + time.Duration(rng.Int63n(int64(backoff)))
			s.log.Warn("dial failed", "error", err, "retryIn", sleep)
			select {
			case <-ctx.Done():
				return
			case <-time.After(sleep):
			}
			if backoff *= 2; backoff > maxBackoff {
				backoff = maxBackoff
			}
			continue
		}
		conn.SetReadLimit(1 << 20)

		s.mu.Lock()
		s.conn = conn
		s.open = true
		s.mu.Unlock()

		s.log.Info("connected", "url", s.url)
		if s.handlers.OnOpen != nil {
			s.handlers.OnOpen()
		}

		start := time.Now()
		err = s.readLoop(ctx, conn)

		s.mu.Lock()
		s.open = false
		s.conn = nil
		s.mu.Unlock()
		_ = conn.CloseNow()

		if time.Since(start) >= stableReset {
			backoff = minBackoff
		}
		if err != nil && ctx.Err() == nil {
			s.log.Warn("connection lost", "error", err, "closeStatus", websocket.CloseStatus(err))
		}
	}
}

// readLoop delivers inbound frames to the owner until the connection errors.
func (s *Socket) readLoop(ctx context.Context, conn *websocket.Conn) error {
	for {
		_, raw, err := conn.Read(ctx)
		if err != nil {
			return err
		}
		if s.handlers.OnMessage != nil {
			s.handlers.OnMessage(raw)
		}
	}
}

// Send writes a text control frame on the current connection.
func (s *Socket) Send(msg []byte) error {
	s.mu.Lock()
	conn, open := s.conn, s.open
	s.mu.Unlock()

	if !open || conn == nil {
		return ErrNotConnected
	}

	wctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()
	if err := conn.Write(wctx, websocket.MessageText, msg); err != nil {
		return fmt.Errorf("feed: send: %w", err)
	}
	return nil
}

// IsOpen reports whether the connection is currently established.
func (s *Socket) IsOpen() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.open
}

// Close stops the read loop and closes the connection. Safe to call more
// than once and safe to call before Open.
func (s *Socket) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	cancel := s.cancel
	conn := s.conn
	s.open = false
	s.mu.Unlock()

	if conn != nil {
		_ = conn.Close(websocket.StatusNormalClosure, "bye")
	}
	if cancel != nil {
		cancel()
		s.wg.Wait()
	}
	return nil
}
