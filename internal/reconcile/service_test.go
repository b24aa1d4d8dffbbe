package reconcile

import (
	"context"
	"testing"

	"signal-trader/internal/events"
	"signal-trader/internal/position"
	"signal-trader/pkg/exchanges/common"
)

type stubGateway struct {
	balances map[string]float64
	price    float64
}

func (s *stubGateway) GetBalance(_ context.Context, asset string) (common.Balance, error) {
	return common.Balance{Asset: asset, Available: s.balances[asset]}, nil
}

func (s *stubGateway) GetTicker(_ context.Context, symbol string) (common.Ticker, error) {
	return common.Ticker{Symbol: symbol, Last: s.price}, nil
}

func (s *stubGateway) LoadMarketInfo(context.Context, string) (common.MarketInfo, error) {
	return common.MarketInfo{}, nil
}

func (s *stubGateway) SubmitOrder(context.Context, common.OrderRequest) (common.OrderResult, error) {
	return common.OrderResult{}, nil
}

func (s *stubGateway) OpenOrders(context.Context, string) ([]common.OpenOrder, error) {
	return nil, nil
}

func (s *stubGateway) CancelAllOpenOrders(context.Context, string) error { return nil }

type stubMarkets struct{ info common.MarketInfo }

func (s stubMarkets) Get(context.Context, string) (common.MarketInfo, error) {
	return s.info, nil
}

func dogeInfo() common.MarketInfo {
	return common.MarketInfo{
		Symbol: "DOGE/USDT", Active: true,
		AmountStep: 1, MinAmount: 10,
		BaseAsset: "DOGE", QuoteAsset: "USDT",
	}
}

func TestReconcileFlatIsNoOp(t *testing.T) {
	gw := &stubGateway{balances: map[string]float64{"DOGE": 5000}, price: 0.10}
	machine := position.NewMachine("DOGE/USDT", nil, events.NewBus())
	svc := NewService(gw, machine, stubMarkets{dogeInfo()}, nil, 0)

	report, err := svc.Reconcile(context.Background())
	if err != nil {
		t.Fatalf("Reconcile: %v", err)
	}
	if report.Synced {
		t.Fatalf("flat reconcile synced: %+v", report)
	}
}

func TestReconcileClipsBeliefToDeliverable(t *testing.T) {
	gw := &stubGateway{balances: map[string]float64{"DOGE": 5000}, price: 0.10}
	machine := position.NewMachine("DOGE/USDT", nil, events.NewBus())
	ctx := context.Background()
	machine.Restore(ctx, position.Position{Side: position.SideLong, Symbol: "DOGE/USDT", EntryPrice: 0.10, Amount: 9000})

	svc := NewService(gw, machine, stubMarkets{dogeInfo()}, events.NewBus(), 0)
	report, err := svc.Reconcile(ctx)
	if err != nil {
		t.Fatalf("Reconcile: %v", err)
	}
	if !report.Synced {
		t.Fatalf("expected sync: %+v", report)
	}
	if pos := machine.Snapshot(); pos.Amount != 5000 || pos.Side != position.SideLong {
		t.Fatalf("position = %+v, want LONG 5000", pos)
	}
}

func TestReconcileClearsUndeliverableBelief(t *testing.T) {
	gw := &stubGateway{balances: map[string]float64{"DOGE": 2}, price: 0.10}
	machine := position.NewMachine("DOGE/USDT", nil, events.NewBus())
	ctx := context.Background()
	machine.Restore(ctx, position.Position{Side: position.SideLong, Symbol: "DOGE/USDT", EntryPrice: 0.10, Amount: 9000})

	svc := NewService(gw, machine, stubMarkets{dogeInfo()}, nil, 0)
	if _, err := svc.Reconcile(ctx); err != nil {
		t.Fatalf("Reconcile: %v", err)
	}
	if pos := machine.Snapshot(); pos.Side != position.SideFlat {
		t.Fatalf("position = %+v, want FLAT", pos)
	}
}

func TestReconcileToleratesDust(t *testing.T) {
	gw := &stubGateway{balances: map[string]float64{"DOGE": 8999.5}, price: 0.10}
	machine := position.NewMachine("DOGE/USDT", nil, events.NewBus())
	ctx := context.Background()
	machine.Restore(ctx, position.Position{Side: position.SideLong, Symbol: "DOGE/USDT", EntryPrice: 0.10, Amount: 9000})

	svc := NewService(gw, machine, stubMarkets{dogeInfo()}, nil, 0)
	report, err := svc.Reconcile(ctx)
	if err != nil {
		t.Fatalf("Reconcile: %v", err)
	}
	if report.Synced {
		t.Fatalf("dust difference triggered sync: %+v", report)
	}
	if pos := machine.Snapshot(); pos.Amount != 9000 {
		t.Fatalf("belief changed for dust: %+v", pos)
	}
}

func TestReconcileShortUsesQuoteBalance(t *testing.T) {
	// A short is closed with quote funds; 500 USDT at 0.10 buys back 5000.
	gw := &stubGateway{balances: map[string]float64{"USDT": 500}, price: 0.10}
	machine := position.NewMachine("DOGE/USDT", nil, events.NewBus())
	ctx := context.Background()
	machine.Restore(ctx, position.Position{Side: position.SideShort, Symbol: "DOGE/USDT", EntryPrice: 0.10, Amount: 9000})

	svc := NewService(gw, machine, stubMarkets{dogeInfo()}, nil, 0)
	report, err := svc.Reconcile(ctx)
	if err != nil {
		t.Fatalf("Reconcile: %v", err)
	}
	if report.Deliverable != 5000 {
		t.Fatalf("deliverable = %v, want 5000", report.Deliverable)
	}
	if pos := machine.Snapshot(); pos.Amount != 5000 || pos.Side != position.SideShort {
		t.Fatalf("position = %+v, want SHORT 5000", pos)
	}
}
