package db

import (
	"context"
	"testing"
)

func newTestDB(t *testing.T) *Database {
	t.Helper()
	database, err := New(":memory:")
	if err != nil {
		t.Fatalf("Failed to create database: %v", err)
	}
	t.Cleanup(func() { database.Close() })

	if err := ApplyMigrations(database); err != nil {
		t.Fatalf("Failed to apply migrations: %v", err)
	}
	return database
}

func TestSignalAuditTrail(t *testing.T) {
	database := newTestDB(t)
	ctx := context.Background()

	sig := SignalLog{ID: "sig-1", Action: "buy", Symbol: "DOGE/USDT"}
	if err := database.CreateSignal(ctx, sig); err != nil {
		t.Fatalf("CreateSignal: %v", err)
	}
	if err := database.UpdateSignalResult(ctx, "sig-1", "SUCCESS", "ord-1"); err != nil {
		t.Fatalf("UpdateSignalResult: %v", err)
	}

	signals, err := database.ListSignals(ctx, 10)
	if err != nil {
		t.Fatalf("ListSignals: %v", err)
	}
	if len(signals) != 1 {
		t.Fatalf("got %d signals, want 1", len(signals))
	}
	if signals[0].ResultCode != "SUCCESS" || signals[0].OrderID != "ord-1" {
		t.Fatalf("signal result not recorded: %+v", signals[0])
	}
}

func TestOrderLifecycle(t *testing.T) {
	database := newTestDB(t)
	ctx := context.Background()

	o := Order{
		ID:     "ord-1",
		Symbol: "DOGE/USDT",
		Side:   "buy",
		Type:   "market",
		Amount: 9000,
		Status: "NEW",
	}
	if err := database.CreateOrder(ctx, o); err != nil {
		t.Fatalf("CreateOrder: %v", err)
	}
	if err := database.UpdateOrderStatus(ctx, "ord-1", "exch-1", "FILLED"); err != nil {
		t.Fatalf("UpdateOrderStatus: %v", err)
	}

	orders, err := database.ListOrders(ctx, 10)
	if err != nil {
		t.Fatalf("ListOrders: %v", err)
	}
	if len(orders) != 1 || orders[0].Status != "FILLED" || orders[0].ExchangeOrderID != "exch-1" {
		t.Fatalf("unexpected orders: %+v", orders)
	}
}

func TestUpsertPositionReplacesSnapshot(t *testing.T) {
	database := newTestDB(t)
	ctx := context.Background()

	if err := database.UpsertPosition(ctx, Position{Symbol: "DOGE/USDT", Side: "LONG", EntryPrice: 0.1, Amount: 9000}); err != nil {
		t.Fatalf("UpsertPosition: %v", err)
	}
	if err := database.UpsertPosition(ctx, Position{Symbol: "DOGE/USDT", Side: "FLAT", EntryPrice: 0, Amount: 0}); err != nil {
		t.Fatalf("UpsertPosition update: %v", err)
	}

	p, err := database.GetPosition(ctx, "DOGE/USDT")
	if err != nil {
		t.Fatalf("GetPosition: %v", err)
	}
	if p.Side != "FLAT" || p.Amount != 0 {
		t.Fatalf("snapshot not replaced: %+v", p)
	}
}
