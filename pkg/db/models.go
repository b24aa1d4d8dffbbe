package db

import (
	"context"
	"errors"
	"time"
)

var errNotInitialized = errors.New("database is not initialized")

// SignalLog records an inbound webhook signal and its outcome.
type SignalLog struct {
	ID         string
	Action     string
	Symbol     string
	ResultCode string
	OrderID    string
	CreatedAt  time.Time
}

// Order represents an order submitted to the exchange.
type Order struct {
	ID              string
	SignalID        string
	ExchangeOrderID string
	Symbol          string
	Side            string
	Type            string
	Price           float64
	StopPrice       float64
	Amount          float64
	Status          string
	CreatedAt       time.Time
}

// Trade represents a confirmed fill.
type Trade struct {
	ID        string
	OrderID   string
	Symbol    string
	Side      string
	Price     float64
	Amount    float64
	CreatedAt time.Time
}

// Position is the persisted snapshot of the engine's position.
type Position struct {
	Symbol     string
	Side       string
	EntryPrice float64
	Amount     float64
	UpdatedAt  time.Time
}

// CreateSignal inserts a signal row.
func (d *Database) CreateSignal(ctx context.Context, s SignalLog) error {
	_, err := d.DB.ExecContext(ctx, `
		INSERT INTO signals (id, action, symbol, result_code, order_id)
		VALUES (?, ?, ?, ?, ?)
	`, s.ID, s.Action, s.Symbol, s.ResultCode, s.OrderID)
	return err
}

// UpdateSignalResult records the pipeline outcome for a signal.
func (d *Database) UpdateSignalResult(ctx context.Context, id, resultCode, orderID string) error {
	_, err := d.DB.ExecContext(ctx, `
		UPDATE signals SET result_code = ?, order_id = ? WHERE id = ?
	`, resultCode, orderID, id)
	return err
}

// CreateOrder inserts a new order row.
func (d *Database) CreateOrder(ctx context.Context, o Order) error {
	_, err := d.DB.ExecContext(ctx, `
		INSERT INTO orders (id, signal_id, exchange_order_id, symbol, side, type, price, stop_price, amount, status)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, o.ID, o.SignalID, o.ExchangeOrderID, o.Symbol, o.Side, o.Type, o.Price, o.StopPrice, o.Amount, o.Status)
	return err
}

// UpdateOrderStatus updates status and exchange id for an order.
func (d *Database) UpdateOrderStatus(ctx context.Context, id, exchangeOrderID, status string) error {
	_, err := d.DB.ExecContext(ctx, `
		UPDATE orders SET status = ?, exchange_order_id = ? WHERE id = ?
	`, status, exchangeOrderID, id)
	return err
}

// CreateTrade inserts a fill row.
func (d *Database) CreateTrade(ctx context.Context, t Trade) error {
	_, err := d.DB.ExecContext(ctx, `
		INSERT INTO trades (id, order_id, symbol, side, price, amount)
		VALUES (?, ?, ?, ?, ?, ?)
	`, t.ID, t.OrderID, t.Symbol, t.Side, t.Price, t.Amount)
	return err
}

// UpsertPosition persists the current position snapshot.
func (d *Database) UpsertPosition(ctx context.Context, p Position) error {
	_, err := d.DB.ExecContext(ctx, `
		INSERT INTO positions (symbol, side, entry_price, amount, updated_at)
		VALUES (?, ?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(symbol) DO UPDATE SET
			side = excluded.side,
			entry_price = excluded.entry_price,
			amount = excluded.amount,
			updated_at = CURRENT_TIMESTAMP
	`, p.Symbol, p.Side, p.EntryPrice, p.Amount)
	return err
}

// ListSignals returns the most recent signals, newest first.
func (d *Database) ListSignals(ctx context.Context, limit int) ([]SignalLog, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := d.DB.QueryContext(ctx, `
		SELECT id, action, symbol, COALESCE(result_code, ''), COALESCE(order_id, ''), created_at
		FROM signals ORDER BY created_at DESC LIMIT ?
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []SignalLog
	for rows.Next() {
		var s SignalLog
		if err := rows.Scan(&s.ID, &s.Action, &s.Symbol, &s.ResultCode, &s.OrderID, &s.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// ListOrders returns the most recent orders, newest first.
func (d *Database) ListOrders(ctx context.Context, limit int) ([]Order, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := d.DB.QueryContext(ctx, `
		SELECT id, COALESCE(signal_id, ''), COALESCE(exchange_order_id, ''), symbol, side, type,
		       price, stop_price, amount, status, created_at
		FROM orders ORDER BY created_at DESC LIMIT ?
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Order
	for rows.Next() {
		var o Order
		if err := rows.Scan(&o.ID, &o.SignalID, &o.ExchangeOrderID, &o.Symbol, &o.Side, &o.Type,
			&o.Price, &o.StopPrice, &o.Amount, &o.Status, &o.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

// GetPosition loads the persisted snapshot for a symbol, if any.
func (d *Database) GetPosition(ctx context.Context, symbol string) (*Position, error) {
	row := d.DB.QueryRowContext(ctx, `
		SELECT symbol, side, entry_price, amount, updated_at FROM positions WHERE symbol = ?
	`, symbol)
	var p Position
	if err := row.Scan(&p.Symbol, &p.Side, &p.EntryPrice, &p.Amount, &p.UpdatedAt); err != nil {
		return nil, err
	}
	return &p, nil
}
