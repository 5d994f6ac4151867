package common

// Side denotes order side.
type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

// Opposite returns the side that unwinds s.
func (s Side) Opposite() Side {
	if s == SideBuy {
		return SideSell
	}
	return SideBuy
}

// OrderType denotes the order types the bot sends.
type OrderType string

const (
	OrderTypeMarket OrderType = "MARKET"
)

// OrderStatus normalizes exchange status into a small set.
type OrderStatus string

const (
	StatusNew      OrderStatus = "NEW"
	StatusPartial  OrderStatus = "PARTIAL"
	StatusFilled   OrderStatus = "FILLED"
	StatusCanceled OrderStatus = "CANCELED"
	StatusRejected OrderStatus = "REJECTED"
	StatusExpired  OrderStatus = "EXPIRED"
	StatusUnknown  OrderStatus = "UNKNOWN"
)

// OrderRequest captures an order intent to be sent to an exchange.
type OrderRequest struct {
	Symbol     string
	Side       Side
	Type       OrderType
	Qty        float64
	ClientID   string // newClientOrderId; reused across retries
	ReduceOnly bool
}

// OrderResult returns the exchange ack.
type OrderResult struct {
	ExchangeOrderID string
	ClientID        string
	Status          OrderStatus
	ExecutedQty     float64
	AvgPrice        float64 // 0 when the ack carries no fill price
}
