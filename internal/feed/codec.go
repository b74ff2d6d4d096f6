package feed

import (
	"encoding/json"
	"fmt"
)

// controlMessage is the outbound control frame shape used by the upstream
// feed: {"type":"subscribe","symbol":"AAPL"}.
type controlMessage struct {
	Type   string `json:"type"`
	Symbol string `json:"symbol,omitempty"`
}

// SubscribeMessage builds the control frame subscribing to a symbol's trades.
func SubscribeMessage(symbol string) []byte {
	b, _ := json.Marshal(controlMessage{Type: "subscribe", Symbol: symbol})
	return b
}

// UnsubscribeMessage builds the control frame dropping a symbol subscription.
func UnsubscribeMessage(symbol string) []byte {
	b, _ := json.Marshal(controlMessage{Type: "unsubscribe", Symbol: symbol})
	return b
}

// PingMessage builds the protocol-level keep-alive frame.
func PingMessage() []byte {
	b, _ := json.Marshal(controlMessage{Type: "ping"})
	return b
}

// Trade is one inbound trade tuple from the upstream feed.
type Trade struct {
	Symbol    string  `json:"s"`
	Price     float64 `json:"p"`
	Volume    float64 `json:"v"`
	Timestamp int64   `json:"t"` // Unix ms
}

// tradeFrame is the inbound frame envelope. Frames carry either a batch of
// trades or housekeeping messages (ping replies, subscription acks) with no
// data payload.
type tradeFrame struct {
	Type string  `json:"type"`
	Data []Trade `json:"data"`
}

// ParseTrades decodes an inbound frame into its trade tuples. Frames without
// a trade payload return (nil, nil) and are ignored by callers; a malformed
// frame returns an error so the owner can log and skip it without closing
// the connection.
func ParseTrades(raw []byte) ([]Trade, error) {
	var frame tradeFrame
	if err := json.Unmarshal(raw, &frame); err != nil {
		return nil, fmt.Errorf("feed: decoding frame: %w", err)
	}
	if len(frame.Data) == 0 {
		return nil, nil
	}
	return frame.Data, nil
}
