package risk

import (
	"errors"
	"math"
	"testing"

	"signal-trader/pkg/exchanges/common"
)

func TestSizeScenario(t *testing.T) {
	// 1000 USDT at 0.10 with 90% risk fraction and no fee buffer:
	// 9000 units, already aligned to step 1 and step 100.
	sizer := &Sizer{RiskFraction: 0.9, FeeBuffer: 0}

	tests := []struct {
		name string
		info common.MarketInfo
		want float64
	}{
		{"step 1", common.MarketInfo{Symbol: "DOGE/USDT", AmountStep: 1, MinAmount: 10}, 9000},
		{"step 100", common.MarketInfo{Symbol: "DOGE/USDT", AmountStep: 100, MinAmount: 10}, 9000},
		{"step 7 floors down", common.MarketInfo{Symbol: "DOGE/USDT", AmountStep: 7, MinAmount: 10}, 8995},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := sizer.Size(1000, 0.10, tt.info)
			if err != nil {
				t.Fatalf("Size: %v", err)
			}
			if got != tt.want {
				t.Fatalf("Size = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestSizeProperties(t *testing.T) {
	sizer := &Sizer{RiskFraction: 0.9, FeeBuffer: 0.001}

	cases := []struct {
		balance, price, step, min float64
	}{
		{1000, 0.10, 1, 10},
		{1000, 0.10, 100, 10},
		{53.17, 0.0841, 0.01, 1},
		{100000, 27123.5, 0.0001, 0.0001},
		{12.5, 3.33, 0.1, 0.5},
	}

	for _, c := range cases {
		info := common.MarketInfo{Symbol: "X/Y", AmountStep: c.step, MinAmount: c.min}
		amount, err := sizer.Size(c.balance, c.price, info)
		if errors.Is(err, ErrInsufficientSize) {
			continue
		}
		if err != nil {
			t.Fatalf("Size(%v, %v): %v", c.balance, c.price, err)
		}

		// Multiple of step (within float tolerance).
		steps := amount / c.step
		if math.Abs(steps-math.Round(steps)) > 1e-6 {
			t.Errorf("Size(%v, %v) = %v not a multiple of step %v", c.balance, c.price, amount, c.step)
		}
		// Never exceeds the risk budget.
		if amount*c.price > c.balance*sizer.RiskFraction+1e-9 {
			t.Errorf("Size(%v, %v) = %v exceeds risk budget", c.balance, c.price, amount)
		}
		// At least the exchange minimum.
		if amount < c.min {
			t.Errorf("Size(%v, %v) = %v below minimum %v without error", c.balance, c.price, amount, c.min)
		}
	}
}

func TestSizeInsufficient(t *testing.T) {
	sizer := &Sizer{RiskFraction: 0.9, FeeBuffer: 0.001}
	info := common.MarketInfo{Symbol: "DOGE/USDT", AmountStep: 1, MinAmount: 100}

	_, err := sizer.Size(1, 0.10, info) // ~8 units, below min 100
	if !errors.Is(err, ErrInsufficientSize) {
		t.Fatalf("want ErrInsufficientSize, got %v", err)
	}
}

func TestSizeFeeBufferShrinksAmount(t *testing.T) {
	info := common.MarketInfo{Symbol: "DOGE/USDT", AmountStep: 0.0001, MinAmount: 0.0001}

	plain := &Sizer{RiskFraction: 0.9, FeeBuffer: 0}
	buffered := &Sizer{RiskFraction: 0.9, FeeBuffer: 0.001}

	a, err := plain.Size(1000, 0.10, info)
	if err != nil {
		t.Fatalf("plain Size: %v", err)
	}
	b, err := buffered.Size(1000, 0.10, info)
	if err != nil {
		t.Fatalf("buffered Size: %v", err)
	}
	if b >= a {
		t.Fatalf("fee buffer must shrink the amount: %v >= %v", b, a)
	}
}

func TestNewSizerValidation(t *testing.T) {
	if _, err := NewSizer(0, 0.001); err == nil {
		t.Error("risk fraction 0 must be rejected")
	}
	if _, err := NewSizer(1.5, 0.001); err == nil {
		t.Error("risk fraction > 1 must be rejected")
	}
	if _, err := NewSizer(0.9, -0.1); err == nil {
		t.Error("negative fee buffer must be rejected")
	}
}

func TestQuantizeDown(t *testing.T) {
	info := common.MarketInfo{AmountStep: 0.5}
	if got := QuantizeDown(10.7, info); got != 10.5 {
		t.Fatalf("QuantizeDown = %v, want 10.5", got)
	}
}
