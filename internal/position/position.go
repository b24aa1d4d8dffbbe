package position

import (
	"context"
	"errors"
	"log"
	"sync"

	"signal-trader/internal/events"
	"signal-trader/pkg/db"
	"signal-trader/pkg/exchanges/common"
)

// Side is the engine's held direction.
type Side string

const (
	SideFlat  Side = "FLAT"
	SideLong  Side = "LONG"
	SideShort Side = "SHORT"
)

// ErrNotFlat is returned when opening over an existing position.
var ErrNotFlat = errors.New("position already open")

// Position is the engine's belief about current directional exposure.
// Invariant: Side == FLAT iff EntryPrice and Amount are zero.
type Position struct {
	Side       Side
	Symbol     string
	EntryPrice float64
	Amount     float64
}

// SideFor maps an order side to the resulting held side.
func SideFor(orderSide common.Side) Side {
	if orderSide == common.SideBuy {
		return SideLong
	}
	return SideShort
}

// CloseSide returns the order side that flattens the held side.
func (p Position) CloseSide() common.Side {
	if p.Side == SideLong {
		return common.SideSell
	}
	return common.SideBuy
}

// Conflicts reports whether a signal side opposes the held side.
func (p Position) Conflicts(signal common.Side) bool {
	if p.Side == SideFlat {
		return false
	}
	return SideFor(signal) != p.Side
}

// Machine is the authoritative record of the held position. It is mutated
// only after a confirmed exchange fill; a failed submission never changes it.
type Machine struct {
	mu  sync.RWMutex
	pos Position
	db  *db.Database
	bus *events.Bus
}

// NewMachine creates a flat machine for the given symbol.
func NewMachine(symbol string, database *db.Database, bus *events.Bus) *Machine {
	return &Machine{
		pos: Position{Side: SideFlat, Symbol: symbol},
		db:  database,
		bus: bus,
	}
}

// Snapshot returns a copy of the current position.
func (m *Machine) Snapshot() Position {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.pos
}

// Open transitions FLAT -> LONG/SHORT after a confirmed entry fill.
func (m *Machine) Open(ctx context.Context, side Side, symbol string, entryPrice, amount float64) error {
	if side != SideLong && side != SideShort {
		return errors.New("open side must be LONG or SHORT")
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.pos.Side != SideFlat {
		return ErrNotFlat
	}
	m.pos = Position{Side: side, Symbol: symbol, EntryPrice: entryPrice, Amount: amount}
	m.persistAndPublish(ctx)
	return nil
}

// Flatten transitions any state to FLAT after a confirmed closing fill.
// Flattening an already flat machine is a no-op.
func (m *Machine) Flatten(ctx context.Context) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.pos.Side == SideFlat {
		return
	}
	m.pos = Position{Side: SideFlat, Symbol: m.pos.Symbol}
	m.persistAndPublish(ctx)
}

// Restore force-sets the position from reconciliation against the exchange.
func (m *Machine) Restore(ctx context.Context, pos Position) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if pos.Side == SideFlat {
		pos.EntryPrice = 0
		pos.Amount = 0
	}
	m.pos = pos
	m.persistAndPublish(ctx)
}

// SetSymbol switches the traded symbol. Only legal while flat.
func (m *Machine) SetSymbol(symbol string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.pos.Side != SideFlat {
		return ErrNotFlat
	}
	m.pos.Symbol = symbol
	return nil
}

// Load seeds the machine from the persisted snapshot, if one exists. The
// snapshot is advisory; reconciliation against the exchange is authoritative.
func (m *Machine) Load(ctx context.Context) {
	if m.db == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	p, err := m.db.GetPosition(ctx, m.pos.Symbol)
	if err != nil {
		return
	}
	m.pos = Position{
		Side:       Side(p.Side),
		Symbol:     p.Symbol,
		EntryPrice: p.EntryPrice,
		Amount:     p.Amount,
	}
	log.Printf("position restored from snapshot: %s %s %.8f @ %.8f", m.pos.Symbol, m.pos.Side, m.pos.Amount, m.pos.EntryPrice)
}

// persistAndPublish runs under m.mu.
func (m *Machine) persistAndPublish(ctx context.Context) {
	if m.db != nil {
		snap := db.Position{
			Symbol:     m.pos.Symbol,
			Side:       string(m.pos.Side),
			EntryPrice: m.pos.EntryPrice,
			Amount:     m.pos.Amount,
		}
		if err := m.db.UpsertPosition(ctx, snap); err != nil {
			log.Printf("position: persist snapshot error: %v", err)
		}
	}
	if m.bus != nil {
		m.bus.Publish(events.EventPositionChange, m.pos)
	}
}
