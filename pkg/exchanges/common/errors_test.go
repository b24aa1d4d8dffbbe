package common

import (
	"errors"
	"fmt"
	"testing"
)

func TestRetryable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"network", NewError(KindNetwork, "kucoin.GetTicker", "dial timeout", nil), true},
		{"rate limited", NewError(KindRateLimited, "kucoin.SubmitOrder", "429", nil), true},
		{"insufficient funds", NewError(KindInsufficientFunds, "kucoin.SubmitOrder", "balance too low", nil), false},
		{"inactive market", NewError(KindInactiveMarket, "kucoin.LoadMarketInfo", "trading disabled", nil), false},
		{"plain error", errors.New("boom"), false},
		{"wrapped gateway error", fmt.Errorf("fetch price: %w", NewError(KindNetwork, "kucoin.GetTicker", "reset", nil)), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Retryable(tt.err); got != tt.want {
				t.Fatalf("Retryable(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

func TestKindOfUnwraps(t *testing.T) {
	inner := NewError(KindInsufficientFunds, "kucoin.SubmitOrder", "200004", nil)
	wrapped := fmt.Errorf("submit entry: %w", inner)

	if got := KindOf(wrapped); got != KindInsufficientFunds {
		t.Fatalf("KindOf = %v, want %v", got, KindInsufficientFunds)
	}
	if got := KindOf(errors.New("opaque")); got != KindInternal {
		t.Fatalf("KindOf(plain) = %v, want %v", got, KindInternal)
	}
}
