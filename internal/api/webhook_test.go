package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/crypto/bcrypt"

	"signal-trader/internal/balance"
	"signal-trader/internal/events"
	"signal-trader/internal/executor"
	"signal-trader/internal/market"
	"signal-trader/internal/monitor"
	"signal-trader/internal/position"
	"signal-trader/internal/retry"
	"signal-trader/internal/risk"
	"signal-trader/pkg/config"
	"signal-trader/pkg/db"
	"signal-trader/pkg/exchanges/common"
)

// stubGateway fills market orders immediately at a fixed price.
type stubGateway struct {
	mu       sync.Mutex
	balances map[string]float64
}

func newStubGateway() *stubGateway {
	return &stubGateway{balances: map[string]float64{"USDT": 1000, "DOGE": 10000}}
}

func (g *stubGateway) GetBalance(_ context.Context, asset string) (common.Balance, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return common.Balance{Asset: asset, Available: g.balances[asset]}, nil
}

func (g *stubGateway) GetTicker(_ context.Context, symbol string) (common.Ticker, error) {
	return common.Ticker{Symbol: symbol, Last: 0.10}, nil
}

func (g *stubGateway) LoadMarketInfo(_ context.Context, symbol string) (common.MarketInfo, error) {
	return common.MarketInfo{
		Symbol: symbol, Active: true,
		AmountStep: 1, MinAmount: 10,
		BaseAsset: "DOGE", QuoteAsset: "USDT",
	}, nil
}

func (g *stubGateway) SubmitOrder(_ context.Context, req common.OrderRequest) (common.OrderResult, error) {
	if req.Type != common.OrderTypeMarket {
		return common.OrderResult{ID: "ex-" + req.ClientID, ClientID: req.ClientID, Status: common.StatusNew}, nil
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	notional := req.Amount * 0.10
	if req.Side == common.SideBuy {
		g.balances["USDT"] -= notional
		g.balances["DOGE"] += req.Amount
	} else {
		g.balances["DOGE"] -= req.Amount
		g.balances["USDT"] += notional
	}
	return common.OrderResult{
		ID: "ex-" + req.ClientID, ClientID: req.ClientID,
		Status: common.StatusFilled, FilledPrice: 0.10, FilledAmount: req.Amount,
	}, nil
}

func (g *stubGateway) OpenOrders(context.Context, string) ([]common.OpenOrder, error) {
	return nil, nil
}

func (g *stubGateway) CancelAllOpenOrders(context.Context, string) error { return nil }

func newTestServer(t *testing.T) (*httptest.Server, func()) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	database, err := db.New(":memory:")
	if err != nil {
		t.Fatalf("db.New: %v", err)
	}
	if err := db.ApplyMigrations(database); err != nil {
		t.Fatalf("ApplyMigrations: %v", err)
	}

	gw := newStubGateway()
	bus := events.NewBus()
	machine := position.NewMachine("DOGE/USDT", database, bus)
	pol := config.Policy{
		RiskFraction:      0.9,
		TakeProfitPct:     0.05,
		StopLossPct:       0.10,
		MaxReadAttempts:   2,
		MaxSubmitAttempts: 2,
		BaseBackoff:       time.Millisecond,
	}
	sizer, err := risk.NewSizer(pol.RiskFraction, pol.FeeBuffer)
	if err != nil {
		t.Fatalf("NewSizer: %v", err)
	}
	markets := market.NewInfoCache(gw, retry.Reads(pol.MaxReadAttempts, pol.BaseBackoff))
	engine := executor.NewEngine(gw, machine, sizer, markets, pol, database, bus)

	hash, err := bcrypt.GenerateFromPassword([]byte("operator-pass"), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("bcrypt: %v", err)
	}

	balanceMgr := balance.NewManager(gw, []string{"DOGE", "USDT"}, 0)
	_ = balanceMgr.Sync(context.Background())

	server := NewServer(engine, bus, database, balanceMgr, nil, monitor.NewMetrics(), Options{
		WebhookToken:         "hook-token",
		JWTSecret:            "test-secret",
		OperatorUser:         "admin",
		OperatorPasswordHash: string(hash),
		Meta:                 SystemMeta{Venue: "kucoin", Symbol: "DOGE/USDT", Version: "test"},
	})

	httpServer := httptest.NewServer(server.Router)
	cleanup := func() {
		httpServer.Close()
		_ = database.Close()
	}
	return httpServer, cleanup
}

func doJSON(t *testing.T, method, url, bearer string, payload any, out any) int {
	t.Helper()
	var body bytes.Buffer
	if payload != nil {
		if err := json.NewEncoder(&body).Encode(payload); err != nil {
			t.Fatalf("encode payload: %v", err)
		}
	}
	req, err := http.NewRequest(method, url, &body)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	defer resp.Body.Close()
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatalf("decode response: %v", err)
		}
	}
	return resp.StatusCode
}

func TestHealth(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()

	resp, err := http.Get(srv.URL + "/health")
	if err != nil {
		t.Fatalf("GET /health: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
}

func TestWebhookRejectsBadToken(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()

	status := doJSON(t, http.MethodPost, srv.URL+"/webhook", "", map[string]string{
		"token":  "wrong",
		"action": "buy",
	}, nil)
	if status != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", status)
	}
}

func TestWebhookRejectsInvalidAction(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()

	status := doJSON(t, http.MethodPost, srv.URL+"/webhook", "", map[string]string{
		"token":  "hook-token",
		"action": "hold",
	}, nil)
	if status != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", status)
	}
}

func TestWebhookBuySignalExecutes(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()

	var res executor.Result
	status := doJSON(t, http.MethodPost, srv.URL+"/webhook", "", map[string]string{
		"token":  "hook-token",
		"action": "buy",
	}, &res)
	if status != http.StatusOK {
		t.Fatalf("status = %d, want 200", status)
	}
	if res.Status != executor.StatusSuccess || res.Code != executor.CodeSuccess {
		t.Fatalf("result = %+v", res)
	}
	if res.ExecutedPrice != 0.10 {
		t.Fatalf("executed price = %v, want 0.10", res.ExecutedPrice)
	}
}

func TestProtectedRoutesRequireAuth(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()

	for _, path := range []string{"/api/position", "/api/orders", "/api/signals"} {
		resp, err := http.Get(srv.URL + path)
		if err != nil {
			t.Fatalf("GET %s: %v", path, err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusUnauthorized {
			t.Fatalf("GET %s = %d, want 401", path, resp.StatusCode)
		}
	}
}

func TestLoginAndProtectedAccess(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()

	var loginRes struct {
		Token string `json:"token"`
	}
	status := doJSON(t, http.MethodPost, srv.URL+"/api/auth/login", "", map[string]string{
		"username": "admin",
		"password": "operator-pass",
	}, &loginRes)
	if status != http.StatusOK || loginRes.Token == "" {
		t.Fatalf("login status = %d, token = %q", status, loginRes.Token)
	}

	var pos position.Position
	status = doJSON(t, http.MethodGet, srv.URL+"/api/position", loginRes.Token, nil, &pos)
	if status != http.StatusOK {
		t.Fatalf("GET /api/position = %d", status)
	}
	if pos.Side != position.SideFlat {
		t.Fatalf("fresh engine position = %+v, want FLAT", pos)
	}
}

func TestLoginRejectsBadPassword(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()

	status := doJSON(t, http.MethodPost, srv.URL+"/api/auth/login", "", map[string]string{
		"username": "admin",
		"password": "nope",
	}, nil)
	if status != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", status)
	}
}

func TestManualCloseFlattensPosition(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()

	status := doJSON(t, http.MethodPost, srv.URL+"/webhook", "", map[string]string{
		"token":  "hook-token",
		"action": "buy",
	}, nil)
	if status != http.StatusOK {
		t.Fatalf("webhook status = %d", status)
	}

	var loginRes struct {
		Token string `json:"token"`
	}
	doJSON(t, http.MethodPost, srv.URL+"/api/auth/login", "", map[string]string{
		"username": "admin",
		"password": "operator-pass",
	}, &loginRes)

	var closeRes struct {
		Status   string            `json:"status"`
		Position position.Position `json:"position"`
	}
	status = doJSON(t, http.MethodPost, srv.URL+"/api/close", loginRes.Token, nil, &closeRes)
	if status != http.StatusOK {
		t.Fatalf("POST /api/close = %d", status)
	}
	if closeRes.Position.Side != position.SideFlat {
		t.Fatalf("position after close = %+v, want FLAT", closeRes.Position)
	}
}
