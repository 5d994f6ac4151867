package events

import "time"

// Event enumerates topics published inside the bot.
type Event string

const (
	EventSignalReceived      Event = "signal.received"
	EventOrderSubmitted      Event = "order.submitted"
	EventOrderFilled         Event = "order.filled"
	EventOrderFailed         Event = "order.failed"
	EventPositionOpened      Event = "position.opened"
	EventPositionClosed      Event = "position.closed"
	EventThresholdsTightened Event = "position.tightened"
)

// AllEvents lists every topic, for subscribers that want the whole stream.
var AllEvents = []Event{
	EventSignalReceived,
	EventOrderSubmitted,
	EventOrderFilled,
	EventOrderFailed,
	EventPositionOpened,
	EventPositionClosed,
	EventThresholdsTightened,
}

// Envelope wraps every published payload.
type Envelope struct {
	Event   Event     `json:"event"`
	Time    time.Time `json:"time"`
	Payload any       `json:"payload"`
}

// SignalEvent is published for every authenticated webhook signal.
type SignalEvent struct {
	Symbol string `json:"symbol"`
	Signal string `json:"signal"`
	Result string `json:"result"`
}

// OrderEvent describes one order submission outcome.
type OrderEvent struct {
	Symbol   string  `json:"symbol"`
	Side     string  `json:"side"`
	Qty      float64 `json:"qty"`
	ClientID string  `json:"client_id"`
	OrderID  string  `json:"order_id,omitempty"`
	AvgPrice float64 `json:"avg_price,omitempty"`
	Attempts int     `json:"attempts"`
	Error    string  `json:"error,omitempty"`
}

// PositionEvent describes a position record transition.
type PositionEvent struct {
	Symbol   string  `json:"symbol"`
	Side     string  `json:"side"`
	Entry    float64 `json:"entry_price"`
	StopLoss float64 `json:"stop_loss"`
	Trail    float64 `json:"trail"`
	Price    float64 `json:"price,omitempty"`
	Reason   string  `json:"reason,omitempty"`
}
