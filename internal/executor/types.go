package executor

import (
	"errors"

	"signal-trader/internal/risk"
	"signal-trader/pkg/exchanges/common"
)

// Signal is a validated directional instruction from the webhook layer.
type Signal struct {
	ID     string
	Action common.Side
	Symbol string // optional; empty means the engine's current symbol
}

// Code is the stable result code returned across the engine boundary.
// Raw exchange error text never crosses it.
type Code string

const (
	CodeSuccess              Code = "SUCCESS"
	CodeInsufficientFunds    Code = "INSUFFICIENT_FUNDS"
	CodeInsufficientSize     Code = "INSUFFICIENT_SIZE"
	CodeNetworkError         Code = "NETWORK_ERROR"
	CodePositionConflict     Code = "POSITION_CONFLICT"
	CodeInactiveMarket       Code = "INACTIVE_MARKET"
	CodeEmergencyCloseFailed Code = "EMERGENCY_CLOSE_FAILED"
	CodeInternalError        Code = "INTERNAL_ERROR"
)

// Status distinguishes full success, partial success (position opened but
// protection failed and was emergency-closed) and failure.
type Status string

const (
	StatusSuccess Status = "success"
	StatusPartial Status = "partial"
	StatusError   Status = "error"
)

// Result is the structured outcome of one pipeline run.
type Result struct {
	Status        Status  `json:"status"`
	Code          Code    `json:"code"`
	OrderID       string  `json:"order_id,omitempty"`
	ExecutedPrice float64 `json:"executed_price,omitempty"`
	Symbol        string  `json:"symbol"`
}

// ErrEmergencyCloseFailed is the one condition that requires operator
// attention: the engine could not flatten and its state may be stale.
var ErrEmergencyCloseFailed = errors.New("emergency close failed")

// codeFor maps a pipeline error onto the closed result-code set.
func codeFor(err error) Code {
	switch {
	case err == nil:
		return CodeSuccess
	case errors.Is(err, ErrEmergencyCloseFailed):
		return CodeEmergencyCloseFailed
	case errors.Is(err, risk.ErrInsufficientSize):
		return CodeInsufficientSize
	}
	switch common.KindOf(err) {
	case common.KindNetwork, common.KindRateLimited:
		return CodeNetworkError
	case common.KindInsufficientFunds:
		return CodeInsufficientFunds
	case common.KindInactiveMarket:
		return CodeInactiveMarket
	default:
		return CodeInternalError
	}
}
