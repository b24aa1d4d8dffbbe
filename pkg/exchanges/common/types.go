package common

// Side denotes order side.
type Side string

const (
	SideBuy  Side = "buy"
	SideSell Side = "sell"
)

// Opposite returns the closing side for a held side.
func (s Side) Opposite() Side {
	if s == SideBuy {
		return SideSell
	}
	return SideBuy
}

// OrderType denotes basic order types.
type OrderType string

const (
	OrderTypeMarket    OrderType = "market"
	OrderTypeLimit     OrderType = "limit"
	OrderTypeStopLimit OrderType = "stop_limit" // limit order with trigger price
)

// OrderStatus normalizes exchange status into a small set.
type OrderStatus string

const (
	StatusNew      OrderStatus = "NEW"
	StatusFilled   OrderStatus = "FILLED"
	StatusPartial  OrderStatus = "PARTIAL"
	StatusCanceled OrderStatus = "CANCELED"
	StatusRejected OrderStatus = "REJECTED"
	StatusUnknown  OrderStatus = "UNKNOWN"
)

// OrderRequest captures an order intent to be sent to the exchange.
type OrderRequest struct {
	Symbol    string
	Side      Side
	Type      OrderType
	Amount    float64
	Price     float64 // required for limit
	StopPrice float64 // required for stop_limit
	ClientID  string  // client order id; makes submission idempotent on the exchange side
}

// OrderResult returns the exchange ack for a submitted order.
type OrderResult struct {
	ID           string
	ClientID     string
	Status       OrderStatus
	FilledPrice  float64
	FilledAmount float64
}

// OpenOrder is a live order reported by the exchange.
type OpenOrder struct {
	ID       string
	ClientID string
	Symbol   string
	Side     Side
	Amount   float64
}

// MarketInfo holds per-symbol trading constraints. Loaded once per session
// and treated as immutable between refreshes.
type MarketInfo struct {
	Symbol     string
	Active     bool
	AmountStep float64 // smallest quantity increment
	MinAmount  float64 // minimum order quantity
	BaseAsset  string  // e.g. DOGE in DOGE/USDT
	QuoteAsset string  // e.g. USDT in DOGE/USDT
}

// Ticker is a point-in-time price snapshot.
type Ticker struct {
	Symbol string
	Last   float64
}

// Balance reports the free amount of a single asset.
type Balance struct {
	Asset     string
	Available float64
}
