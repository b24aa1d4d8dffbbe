package position

import (
	"context"
	"testing"

	"signal-trader/pkg/exchanges/common"
)

func TestOpenRequiresFlat(t *testing.T) {
	m := NewMachine("DOGE/USDT", nil, nil)
	ctx := context.Background()

	if err := m.Open(ctx, SideLong, "DOGE/USDT", 0.10, 9000); err != nil {
		t.Fatalf("Open from flat: %v", err)
	}
	if err := m.Open(ctx, SideShort, "DOGE/USDT", 0.11, 100); err != ErrNotFlat {
		t.Fatalf("Open over open position: got %v, want ErrNotFlat", err)
	}

	pos := m.Snapshot()
	if pos.Side != SideLong || pos.EntryPrice != 0.10 || pos.Amount != 9000 {
		t.Fatalf("position overwritten: %+v", pos)
	}
}

func TestFlattenIsIdempotent(t *testing.T) {
	m := NewMachine("DOGE/USDT", nil, nil)
	ctx := context.Background()

	if err := m.Open(ctx, SideShort, "DOGE/USDT", 0.10, 500); err != nil {
		t.Fatalf("Open: %v", err)
	}

	m.Flatten(ctx)
	m.Flatten(ctx) // second flatten must be a no-op

	pos := m.Snapshot()
	if pos.Side != SideFlat || pos.EntryPrice != 0 || pos.Amount != 0 {
		t.Fatalf("flat invariant violated: %+v", pos)
	}
}

func TestConflicts(t *testing.T) {
	tests := []struct {
		name   string
		held   Side
		signal common.Side
		want   bool
	}{
		{"flat never conflicts with buy", SideFlat, common.SideBuy, false},
		{"flat never conflicts with sell", SideFlat, common.SideSell, false},
		{"long vs sell", SideLong, common.SideSell, true},
		{"long vs buy", SideLong, common.SideBuy, false},
		{"short vs buy", SideShort, common.SideBuy, true},
		{"short vs sell", SideShort, common.SideSell, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := Position{Side: tt.held}
			if got := p.Conflicts(tt.signal); got != tt.want {
				t.Fatalf("Conflicts = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestCloseSide(t *testing.T) {
	if got := (Position{Side: SideLong}).CloseSide(); got != common.SideSell {
		t.Fatalf("long close side = %v, want sell", got)
	}
	if got := (Position{Side: SideShort}).CloseSide(); got != common.SideBuy {
		t.Fatalf("short close side = %v, want buy", got)
	}
}

func TestSetSymbolOnlyWhileFlat(t *testing.T) {
	m := NewMachine("DOGE/USDT", nil, nil)
	ctx := context.Background()

	if err := m.SetSymbol("SHIB/USDT"); err != nil {
		t.Fatalf("SetSymbol while flat: %v", err)
	}
	if err := m.Open(ctx, SideLong, "SHIB/USDT", 0.00001, 1e6); err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := m.SetSymbol("DOGE/USDT"); err != ErrNotFlat {
		t.Fatalf("SetSymbol while open: got %v, want ErrNotFlat", err)
	}
}
