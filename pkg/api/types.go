package api

// API response types for REST endpoints and WebSocket messages

// Push channels a WebSocket client can subscribe to.
const (
	ChannelOrderBook = "orderbook"
	ChannelTrades    = "trades"
	ChannelCandles   = "candles"
	ChannelStatus    = "status"
)

var channels = map[string]bool{
	ChannelOrderBook: true,
	ChannelTrades:    true,
	ChannelCandles:   true,
	ChannelStatus:    true,
}

// WSMessage is the envelope of every pushed message
type WSMessage struct {
	Type      string      `json:"type"` // channel name, or "error"
	Data      interface{} `json:"data"`
	Timestamp int64       `json:"timestamp"` // Unix milliseconds
}

// WSSubscribeRequest is sent by client to subscribe to channels
type WSSubscribeRequest struct {
	Op       string   `json:"op"`       // "subscribe" or "unsubscribe"
	Channels []string `json:"channels"` // e.g., ["orderbook", "trades"]
}

// ErrorResponse is returned for all errors
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

type HealthResponse struct {
	Status string `json:"status"`
	Loaded bool   `json:"loaded"`
}
