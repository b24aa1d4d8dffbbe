package risk

import (
	"errors"
	"fmt"
	"math"

	"signal-trader/pkg/exchanges/common"
)

// ErrInsufficientSize means the sized amount is below the exchange minimum.
// This is terminal for the signal; retrying cannot fix it.
var ErrInsufficientSize = errors.New("sized amount below exchange minimum")

// Sizer converts available balance into an executable order quantity.
type Sizer struct {
	RiskFraction float64 // fraction of free balance committed per trade
	FeeBuffer    float64 // balance haircut so fee deduction can't bounce the order
}

// NewSizer validates and builds a sizer.
func NewSizer(riskFraction, feeBuffer float64) (*Sizer, error) {
	if riskFraction <= 0 || riskFraction > 1 {
		return nil, fmt.Errorf("risk fraction must be in (0, 1], got %v", riskFraction)
	}
	if feeBuffer < 0 || feeBuffer >= 1 {
		return nil, fmt.Errorf("fee buffer must be in [0, 1), got %v", feeBuffer)
	}
	return &Sizer{RiskFraction: riskFraction, FeeBuffer: feeBuffer}, nil
}

// Size computes the order quantity for the given free balance and price.
// The result is always a multiple of info.AmountStep and never exceeds
// balance*RiskFraction/price; quantization rounds down only.
func (s *Sizer) Size(balance, price float64, info common.MarketInfo) (float64, error) {
	if price <= 0 {
		return 0, fmt.Errorf("price must be positive, got %v", price)
	}
	if info.AmountStep <= 0 {
		return 0, fmt.Errorf("market %s has no amount step", info.Symbol)
	}

	riskBalance := balance * (1 - s.FeeBuffer) * s.RiskFraction
	raw := riskBalance / price

	amount := math.Floor(raw/info.AmountStep) * info.AmountStep
	if amount < info.MinAmount || amount <= 0 {
		return 0, fmt.Errorf("%w: %.8f < %.8f (%s)", ErrInsufficientSize, amount, info.MinAmount, info.Symbol)
	}
	return amount, nil
}

// QuantizeDown floors an arbitrary quantity to the market's tradable step.
// Used when flattening a held amount that may not align with the step.
func QuantizeDown(amount float64, info common.MarketInfo) float64 {
	if info.AmountStep <= 0 {
		return amount
	}
	return math.Floor(amount/info.AmountStep) * info.AmountStep
}
