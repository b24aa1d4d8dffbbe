package common

import (
	"errors"
	"fmt"
)

// ErrorKind is the closed classification of gateway failures. Exchange error
// codes are mapped into kinds once, at the gateway boundary, so the retry
// policy never inspects venue-specific error text.
type ErrorKind string

const (
	KindNetwork           ErrorKind = "NETWORK"
	KindRateLimited       ErrorKind = "RATE_LIMITED"
	KindInsufficientFunds ErrorKind = "INSUFFICIENT_FUNDS"
	KindInvalidSymbol     ErrorKind = "INVALID_SYMBOL"
	KindInactiveMarket    ErrorKind = "INACTIVE_MARKET"
	KindRejected          ErrorKind = "REJECTED"
	KindAuth              ErrorKind = "AUTH"
	KindInternal          ErrorKind = "INTERNAL"
)

// Error is a classified gateway failure.
type Error struct {
	Kind ErrorKind
	Op   string // gateway operation, e.g. "kucoin.SubmitOrder"
	Msg  string
	Err  error // underlying cause, optional
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s (%s): %v", e.Op, e.Msg, e.Kind, e.Err)
	}
	return fmt.Sprintf("%s: %s (%s)", e.Op, e.Msg, e.Kind)
}

func (e *Error) Unwrap() error { return e.Err }

// NewError builds a classified gateway error.
func NewError(kind ErrorKind, op, msg string, cause error) *Error {
	return &Error{Kind: kind, Op: op, Msg: msg, Err: cause}
}

// KindOf extracts the error kind, defaulting to KindInternal for errors that
// did not come through a gateway boundary.
func KindOf(err error) ErrorKind {
	var ge *Error
	if errors.As(err, &ge) {
		return ge.Kind
	}
	return KindInternal
}

// Retryable reports whether an operation that produced err may be retried.
// Only transport-level failures qualify; business-rule rejections are final.
func Retryable(err error) bool {
	switch KindOf(err) {
	case KindNetwork, KindRateLimited:
		return true
	default:
		return false
	}
}
