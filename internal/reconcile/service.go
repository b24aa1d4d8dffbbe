package reconcile

import (
	"context"
	"log"
	"math"
	"sync"
	"time"

	"signal-trader/internal/events"
	"signal-trader/internal/position"
	"signal-trader/internal/risk"
	"signal-trader/pkg/exchanges/common"
)

// Service periodically compares the machine's believed position against what
// the account can actually deliver and shrinks the belief to match. The
// exchange is authoritative: a belief the account cannot back is corrected,
// never the other way around.
type Service struct {
	gateway  common.Gateway
	machine  *position.Machine
	markets  marketSource
	bus      *events.Bus
	interval time.Duration
	mu       sync.Mutex
}

type marketSource interface {
	Get(ctx context.Context, symbol string) (common.MarketInfo, error)
}

// Report describes one reconciliation pass.
type Report struct {
	Timestamp   time.Time
	Symbol      string
	Side        position.Side
	Believed    float64
	Deliverable float64
	Difference  float64
	Synced      bool
}

func NewService(gateway common.Gateway, machine *position.Machine, markets marketSource, bus *events.Bus, interval time.Duration) *Service {
	return &Service{
		gateway:  gateway,
		machine:  machine,
		markets:  markets,
		bus:      bus,
		interval: interval,
	}
}

// Start begins periodic reconciliation. A non-positive interval disables the
// loop; Reconcile can still be called directly.
func (s *Service) Start(ctx context.Context) {
	if s.interval <= 0 {
		log.Printf("reconciliation loop disabled")
		return
	}
	ticker := time.NewTicker(s.interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				report, err := s.Reconcile(ctx)
				if err != nil {
					log.Printf("reconciliation error: %v", err)
					continue
				}
				s.logReport(report)
			case <-ctx.Done():
				return
			}
		}
	}()
	log.Printf("✓ reconciliation service started (interval %v)", s.interval)
}

// Reconcile performs one pass. While flat there is nothing to verify; a held
// belief is checked against the deliverable balance and clipped or cleared
// when the account cannot back it.
func (s *Service) Reconcile(ctx context.Context) (*Report, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	pos := s.machine.Snapshot()
	report := &Report{Timestamp: time.Now(), Symbol: pos.Symbol, Side: pos.Side, Believed: pos.Amount}
	if pos.Side == position.SideFlat {
		return report, nil
	}

	info, err := s.markets.Get(ctx, pos.Symbol)
	if err != nil {
		return nil, err
	}

	deliverable, err := s.deliverable(ctx, pos, info)
	if err != nil {
		return nil, err
	}
	report.Deliverable = deliverable
	report.Difference = pos.Amount - deliverable

	// Tolerance of one amount step absorbs dust from fees.
	if report.Difference <= info.AmountStep {
		return report, nil
	}

	corrected := risk.QuantizeDown(deliverable, info)
	if corrected < info.MinAmount {
		log.Printf("reconcile %s: believed %s %.8f not deliverable (%.8f available), clearing belief",
			pos.Symbol, pos.Side, pos.Amount, deliverable)
		s.machine.Flatten(ctx)
	} else {
		log.Printf("reconcile %s: clipping believed %s %.8f to deliverable %.8f",
			pos.Symbol, pos.Side, pos.Amount, corrected)
		pos.Amount = corrected
		s.machine.Restore(ctx, pos)
	}
	report.Synced = true
	if s.bus != nil {
		s.bus.Publish(events.EventRiskAlert, *report)
	}
	return report, nil
}

// deliverable returns how much of the held amount the account could close
// right now: base units for a long, quote-funded units for a short.
func (s *Service) deliverable(ctx context.Context, pos position.Position, info common.MarketInfo) (float64, error) {
	if pos.Side == position.SideLong {
		b, err := s.gateway.GetBalance(ctx, info.BaseAsset)
		if err != nil {
			return 0, err
		}
		return b.Available, nil
	}

	b, err := s.gateway.GetBalance(ctx, info.QuoteAsset)
	if err != nil {
		return 0, err
	}
	t, err := s.gateway.GetTicker(ctx, pos.Symbol)
	if err != nil {
		return 0, err
	}
	if t.Last <= 0 {
		return 0, nil
	}
	return b.Available / t.Last, nil
}

func (s *Service) logReport(r *Report) {
	if r.Side == position.SideFlat {
		return
	}
	if r.Synced {
		log.Printf("reconcile %s: belief corrected (diff %.8f)", r.Symbol, r.Difference)
		return
	}
	if math.Abs(r.Difference) > 0 {
		log.Printf("reconcile %s: OK within tolerance (diff %.8f)", r.Symbol, r.Difference)
	}
}
