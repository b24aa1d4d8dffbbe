package balance

import (
	"context"
	"log"
	"sync"
	"time"

	"signal-trader/pkg/exchanges/common"
)

// Manager keeps a periodically refreshed snapshot of the account balances the
// operator cares about (the traded pair's base and quote assets). The
// execution pipeline never reads this cache; it always fetches fresh balances
// before sizing. This exists for the operator API and the websocket feed.
type Manager struct {
	gateway  source
	assets   []string
	interval time.Duration

	mu       sync.RWMutex
	balances map[string]common.Balance
	lastSync time.Time
}

type source interface {
	GetBalance(ctx context.Context, asset string) (common.Balance, error)
}

// Snapshot is the serializable view returned to API clients.
type Snapshot struct {
	Balances map[string]common.Balance `json:"balances"`
	LastSync time.Time                 `json:"last_sync"`
}

func NewManager(gateway source, assets []string, interval time.Duration) *Manager {
	return &Manager{
		gateway:  gateway,
		assets:   assets,
		interval: interval,
		balances: make(map[string]common.Balance),
	}
}

// Start syncs once, then keeps the cache fresh in the background.
func (m *Manager) Start(ctx context.Context) {
	if err := m.Sync(ctx); err != nil {
		log.Printf("initial balance sync: %v", err)
	}
	if m.interval <= 0 {
		return
	}
	ticker := time.NewTicker(m.interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if err := m.Sync(ctx); err != nil {
					log.Printf("balance sync error: %v", err)
				}
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Sync fetches the tracked assets from the exchange. A per-asset failure
// aborts the pass so the cache never mixes balances from different times.
func (m *Manager) Sync(ctx context.Context) error {
	m.mu.RLock()
	assets := append([]string(nil), m.assets...)
	m.mu.RUnlock()

	fresh := make(map[string]common.Balance, len(assets))
	for _, asset := range assets {
		b, err := m.gateway.GetBalance(ctx, asset)
		if err != nil {
			return err
		}
		fresh[asset] = b
	}

	m.mu.Lock()
	m.balances = fresh
	m.lastSync = time.Now()
	m.mu.Unlock()
	return nil
}

// Available returns the cached available amount for an asset.
func (m *Manager) Available(asset string) float64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.balances[asset].Available
}

// Get returns the full snapshot for the operator API.
func (m *Manager) Get() Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make(map[string]common.Balance, len(m.balances))
	for k, v := range m.balances {
		out[k] = v
	}
	return Snapshot{Balances: out, LastSync: m.lastSync}
}

// SetAssets replaces the tracked asset list, used on symbol change.
func (m *Manager) SetAssets(assets []string) {
	m.mu.Lock()
	m.assets = assets
	m.mu.Unlock()
}
