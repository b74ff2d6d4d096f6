// Package feed provides the live socket connector shared by the watchlist
// and tape managers, plus the wire codec for the upstream trade stream.
package feed

import "context"

// Handlers are the owner's hooks into the connector. OnOpen fires after every
// successful (re)connect — re-issuing subscribe messages for the symbols the
// owner cares about is the owner's responsibility, not the connector's.
// OnMessage receives each raw inbound frame; both hooks run on the
// connector's read goroutine and must not block for long.
type Handlers struct {
	OnOpen    func()
	OnMessage func(raw []byte)
}

// Connector is one persistent streaming connection to the upstream feed.
type Connector interface {
	// Open starts the connection. Fatal misconfiguration (an unusable URL)
	// is reported here once; transient dial failures are retried internally.
	Open(ctx context.Context) error

	// Send writes a control frame. It fails when the connection is down.
	Send(msg []byte) error

	// IsOpen reports whether the connection is currently established.
	IsOpen() bool

	// Close stops the connection and all background work. Idempotent.
	Close() error
}
