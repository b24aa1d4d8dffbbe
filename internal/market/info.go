package market

import (
	"context"
	"fmt"
	"log"
	"sync"

	"signal-trader/internal/retry"
	"signal-trader/pkg/exchanges/common"
)

// InfoCache holds per-symbol trading constraints, loaded once at engine
// start and refreshed only on symbol change.
type InfoCache struct {
	gateway common.Gateway
	opts    retry.Options

	mu   sync.RWMutex
	info map[string]common.MarketInfo
}

// NewInfoCache creates a cache backed by the gateway, with the given retry
// options for the load call.
func NewInfoCache(gateway common.Gateway, opts retry.Options) *InfoCache {
	return &InfoCache{
		gateway: gateway,
		opts:    opts,
		info:    make(map[string]common.MarketInfo),
	}
}

// Get returns the cached info for a symbol, loading it on first use.
func (c *InfoCache) Get(ctx context.Context, symbol string) (common.MarketInfo, error) {
	c.mu.RLock()
	info, ok := c.info[symbol]
	c.mu.RUnlock()
	if ok {
		return info, nil
	}
	return c.Refresh(ctx, symbol)
}

// Refresh reloads the constraints for a symbol from the exchange.
func (c *InfoCache) Refresh(ctx context.Context, symbol string) (common.MarketInfo, error) {
	var info common.MarketInfo
	err := retry.Do(ctx, "load market info", c.opts, func(ctx context.Context) error {
		loaded, err := c.gateway.LoadMarketInfo(ctx, symbol)
		if err != nil {
			return err
		}
		info = loaded
		return nil
	})
	if err != nil {
		return common.MarketInfo{}, fmt.Errorf("market info for %s: %w", symbol, err)
	}
	if info.AmountStep <= 0 {
		return common.MarketInfo{}, fmt.Errorf("market %s reports no amount step", symbol)
	}

	c.mu.Lock()
	c.info[symbol] = info
	c.mu.Unlock()

	log.Printf("market info loaded: %s active=%v step=%.8f min=%.8f", symbol, info.Active, info.AmountStep, info.MinAmount)
	return info, nil
}
