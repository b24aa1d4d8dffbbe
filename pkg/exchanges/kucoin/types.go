package kucoin

import "signal-trader/pkg/exchanges/common"

// Wire models for the KuCoin REST API. Numeric fields arrive as strings.

type accountModel struct {
	Currency  string `json:"currency"`
	Type      string `json:"type"`
	Available string `json:"available"`
	Holds     string `json:"holds"`
}

type tickerModel struct {
	Price string `json:"price"`
	Size  string `json:"size"`
	Time  int64  `json:"time"`
}

type symbolModel struct {
	Symbol        string `json:"symbol"`
	BaseCurrency  string `json:"baseCurrency"`
	QuoteCurrency string `json:"quoteCurrency"`
	BaseMinSize   string `json:"baseMinSize"`
	BaseIncrement string `json:"baseIncrement"`
	EnableTrading bool   `json:"enableTrading"`
}

type orderAckModel struct {
	OrderID string `json:"orderId"`
}

type orderDetailModel struct {
	ID          string `json:"id"`
	Symbol      string `json:"symbol"`
	Side        string `json:"side"`
	Size        string `json:"size"`
	DealFunds   string `json:"dealFunds"`
	DealSize    string `json:"dealSize"`
	IsActive    bool   `json:"isActive"`
	CancelExist bool   `json:"cancelExist"`
	ClientOid   string `json:"clientOid"`
}

type orderPageModel struct {
	TotalNum int              `json:"totalNum"`
	Items    []orderItemModel `json:"items"`
}

type orderItemModel struct {
	ID        string `json:"id"`
	ClientOid string `json:"clientOid"`
	Symbol    string `json:"symbol"`
	Side      string `json:"side"`
	Size      string `json:"size"`
}

type canceledModel struct {
	CancelledOrderIDs []string `json:"cancelledOrderIds"`
}

// classifyCode maps KuCoin API error codes into the closed error taxonomy.
func classifyCode(code string) common.ErrorKind {
	switch code {
	case "200004", "230003":
		return common.KindInsufficientFunds
	case "400100", "900001":
		return common.KindInvalidSymbol
	case "400200":
		return common.KindInactiveMarket
	case "429000":
		return common.KindRateLimited
	case "400001", "400002", "400003", "400004", "400005", "400006", "400007", "411100":
		return common.KindAuth
	case "500000":
		return common.KindNetwork // KuCoin internal error, safe to retry reads
	default:
		return common.KindRejected
	}
}
