package common

import "context"

// Gateway abstracts a trading venue. Every call may fail with a *Error whose
// Kind distinguishes transient network failures from business-rule rejections.
type Gateway interface {
	GetBalance(ctx context.Context, asset string) (Balance, error)
	GetTicker(ctx context.Context, symbol string) (Ticker, error)
	LoadMarketInfo(ctx context.Context, symbol string) (MarketInfo, error)
	SubmitOrder(ctx context.Context, req OrderRequest) (OrderResult, error)
	OpenOrders(ctx context.Context, symbol string) ([]OpenOrder, error)
	CancelAllOpenOrders(ctx context.Context, symbol string) error
}
