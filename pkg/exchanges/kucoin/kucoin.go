package kucoin

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"signal-trader/pkg/exchanges/common"
)

// Config holds KuCoin credentials.
type Config struct {
	APIKey     string
	APISecret  string
	Passphrase string
	BaseURL    string // override for tests; defaults to production
}

// Client is a KuCoin spot trading client implementing common.Gateway.
type Client struct {
	cfg         Config
	baseURL     string
	httpClient  *http.Client
	rateLimiter *common.RateLimiter
}

// New creates a KuCoin client. Credentials may be empty for public endpoints.
func New(cfg Config) *Client {
	base := cfg.BaseURL
	if base == "" {
		base = "https://api.kucoin.com"
	}
	return &Client{
		cfg:        cfg,
		baseURL:    base,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		// Spot REST budget is 2000 requests per 30s window.
		rateLimiter: common.NewRateLimiter(2000),
	}
}

// toKucoinSymbol converts "DOGE/USDT" into KuCoin's "DOGE-USDT" form.
func toKucoinSymbol(symbol string) string {
	return strings.ReplaceAll(symbol, "/", "-")
}

func (c *Client) GetBalance(ctx context.Context, asset string) (common.Balance, error) {
	const op = "kucoin.GetBalance"
	if c.cfg.APIKey == "" || c.cfg.APISecret == "" {
		return common.Balance{}, common.NewError(common.KindAuth, op, "API credentials required", nil)
	}

	q := url.Values{}
	q.Set("currency", asset)
	q.Set("type", "trade")

	var accounts []accountModel
	if err := c.doSigned(ctx, op, http.MethodGet, "/api/v1/accounts", q, nil, &accounts); err != nil {
		return common.Balance{}, err
	}

	total := 0.0
	for _, a := range accounts {
		total += parseFloat(a.Available)
	}
	return common.Balance{Asset: asset, Available: total}, nil
}

func (c *Client) GetTicker(ctx context.Context, symbol string) (common.Ticker, error) {
	const op = "kucoin.GetTicker"

	q := url.Values{}
	q.Set("symbol", toKucoinSymbol(symbol))

	var tk tickerModel
	if err := c.doPublic(ctx, op, "/api/v1/market/orderbook/level1", q, &tk); err != nil {
		return common.Ticker{}, err
	}

	last := parseFloat(tk.Price)
	if last <= 0 {
		return common.Ticker{}, common.NewError(common.KindInvalidSymbol, op, "no price for "+symbol, nil)
	}
	return common.Ticker{Symbol: symbol, Last: last}, nil
}

func (c *Client) LoadMarketInfo(ctx context.Context, symbol string) (common.MarketInfo, error) {
	const op = "kucoin.LoadMarketInfo"

	var sym symbolModel
	path := "/api/v2/symbols/" + toKucoinSymbol(symbol)
	if err := c.doPublic(ctx, op, path, nil, &sym); err != nil {
		return common.MarketInfo{}, err
	}
	if sym.Symbol == "" {
		return common.MarketInfo{}, common.NewError(common.KindInvalidSymbol, op, "unknown symbol "+symbol, nil)
	}

	return common.MarketInfo{
		Symbol:     symbol,
		Active:     sym.EnableTrading,
		AmountStep: parseFloat(sym.BaseIncrement),
		MinAmount:  parseFloat(sym.BaseMinSize),
		BaseAsset:  sym.BaseCurrency,
		QuoteAsset: sym.QuoteCurrency,
	}, nil
}

func (c *Client) SubmitOrder(ctx context.Context, req common.OrderRequest) (common.OrderResult, error) {
	const op = "kucoin.SubmitOrder"
	if c.cfg.APIKey == "" || c.cfg.APISecret == "" {
		return common.OrderResult{}, common.NewError(common.KindAuth, op, "API credentials required", nil)
	}

	body := map[string]string{
		"clientOid": req.ClientID,
		"symbol":    toKucoinSymbol(req.Symbol),
		"side":      string(req.Side),
		"size":      formatFloat(req.Amount),
	}
	path := "/api/v1/orders"
	switch req.Type {
	case common.OrderTypeMarket:
		body["type"] = "market"
	case common.OrderTypeLimit:
		body["type"] = "limit"
		body["price"] = formatFloat(req.Price)
	case common.OrderTypeStopLimit:
		// Stop orders live on a separate endpoint. "loss" triggers when the
		// price moves against the position, "entry" when it moves through it.
		path = "/api/v1/stop-order"
		body["type"] = "limit"
		body["price"] = formatFloat(req.Price)
		body["stopPrice"] = formatFloat(req.StopPrice)
		if req.Side == common.SideSell {
			body["stop"] = "loss"
		} else {
			body["stop"] = "entry"
		}
	default:
		return common.OrderResult{}, common.NewError(common.KindRejected, op, "unsupported order type "+string(req.Type), nil)
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return common.OrderResult{}, common.NewError(common.KindInternal, op, "encode order", err)
	}

	var placed orderAckModel
	if err := c.doSigned(ctx, op, http.MethodPost, path, nil, payload, &placed); err != nil {
		return common.OrderResult{}, err
	}

	res := common.OrderResult{
		ID:       placed.OrderID,
		ClientID: req.ClientID,
		Status:   common.StatusNew,
	}

	// The place-order ack carries no fill data. Market orders execute
	// immediately, so confirm the fill from the order detail.
	if req.Type == common.OrderTypeMarket {
		detail, err := c.orderDetail(ctx, placed.OrderID)
		if err != nil {
			// The order exists on the exchange. Returning an error here would
			// invite a resubmission of an already-placed order; surface the
			// ack with an unknown status and let the caller resolve it.
			res.Status = common.StatusUnknown
			return res, nil
		}
		res.FilledAmount = parseFloat(detail.DealSize)
		if res.FilledAmount > 0 {
			res.FilledPrice = parseFloat(detail.DealFunds) / res.FilledAmount
		}
		if !detail.IsActive && detail.CancelExist {
			res.Status = common.StatusCanceled
		} else if !detail.IsActive {
			res.Status = common.StatusFilled
		}
	}
	return res, nil
}

func (c *Client) OpenOrders(ctx context.Context, symbol string) ([]common.OpenOrder, error) {
	const op = "kucoin.OpenOrders"
	if c.cfg.APIKey == "" || c.cfg.APISecret == "" {
		return nil, common.NewError(common.KindAuth, op, "API credentials required", nil)
	}

	q := url.Values{}
	q.Set("status", "active")
	q.Set("symbol", toKucoinSymbol(symbol))

	var page orderPageModel
	if err := c.doSigned(ctx, op, http.MethodGet, "/api/v1/orders", q, nil, &page); err != nil {
		return nil, err
	}

	orders := make([]common.OpenOrder, 0, len(page.Items))
	for _, it := range page.Items {
		orders = append(orders, common.OpenOrder{
			ID:       it.ID,
			ClientID: it.ClientOid,
			Symbol:   symbol,
			Side:     common.Side(it.Side),
			Amount:   parseFloat(it.Size),
		})
	}
	return orders, nil
}

func (c *Client) CancelAllOpenOrders(ctx context.Context, symbol string) error {
	const op = "kucoin.CancelAllOpenOrders"
	if c.cfg.APIKey == "" || c.cfg.APISecret == "" {
		return common.NewError(common.KindAuth, op, "API credentials required", nil)
	}

	q := url.Values{}
	q.Set("symbol", toKucoinSymbol(symbol))

	var canceled canceledModel
	return c.doSigned(ctx, op, http.MethodDelete, "/api/v1/orders", q, nil, &canceled)
}

func (c *Client) orderDetail(ctx context.Context, orderID string) (orderDetailModel, error) {
	const op = "kucoin.orderDetail"
	var detail orderDetailModel
	err := c.doSigned(ctx, op, http.MethodGet, "/api/v1/orders/"+orderID, nil, nil, &detail)
	return detail, err
}

// doPublic performs an unauthenticated GET and decodes the data envelope.
func (c *Client) doPublic(ctx context.Context, op, path string, query url.Values, out any) error {
	endpoint := c.baseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return common.NewError(common.KindInternal, op, "build request", err)
	}
	return c.send(op, req, out)
}

// doSigned performs an authenticated request with KC-API v2 headers.
func (c *Client) doSigned(ctx context.Context, op, method, path string, query url.Values, body []byte, out any) error {
	signPath := path
	if len(query) > 0 {
		signPath += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+signPath, reader)
	if err != nil {
		return common.NewError(common.KindInternal, op, "build request", err)
	}

	timestamp := strconv.FormatInt(time.Now().UnixMilli(), 10)
	prehash := timestamp + method + signPath
	if body != nil {
		prehash += string(body)
	}

	req.Header.Set("KC-API-KEY", c.cfg.APIKey)
	req.Header.Set("KC-API-SIGN", sign(c.cfg.APISecret, prehash))
	req.Header.Set("KC-API-TIMESTAMP", timestamp)
	req.Header.Set("KC-API-PASSPHRASE", sign(c.cfg.APISecret, c.cfg.Passphrase))
	req.Header.Set("KC-API-KEY-VERSION", "2")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	return c.send(op, req, out)
}

func (c *Client) send(op string, req *http.Request, out any) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return common.NewError(common.KindNetwork, op, "request failed", err)
	}
	defer resp.Body.Close()

	c.rateLimiter.UpdateFromHeader(resp.Header.Get("gw-ratelimit-remaining"))

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return common.NewError(common.KindNetwork, op, "read response", err)
	}

	if resp.StatusCode == http.StatusTooManyRequests {
		return common.NewError(common.KindRateLimited, op, "HTTP 429", nil)
	}

	var envelope struct {
		Code string          `json:"code"`
		Msg  string          `json:"msg"`
		Data json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(raw, &envelope); err != nil {
		if resp.StatusCode >= 500 {
			return common.NewError(common.KindNetwork, op, fmt.Sprintf("HTTP %d", resp.StatusCode), nil)
		}
		return common.NewError(common.KindInternal, op, "decode response", err)
	}

	if envelope.Code != "" && envelope.Code != "200000" {
		return common.NewError(classifyCode(envelope.Code), op, envelope.Msg, nil)
	}
	if resp.StatusCode >= 400 {
		return common.NewError(common.KindRejected, op, fmt.Sprintf("HTTP %d", resp.StatusCode), nil)
	}

	if out != nil && len(envelope.Data) > 0 {
		if err := json.Unmarshal(envelope.Data, out); err != nil {
			return common.NewError(common.KindInternal, op, "decode data", err)
		}
	}
	return nil
}

func sign(secret, payload string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(payload))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func parseFloat(s string) float64 {
	v, _ := strconv.ParseFloat(s, 64)
	return v
}
