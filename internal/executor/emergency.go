package executor

import (
	"context"
	"fmt"
	"log"

	"github.com/google/uuid"

	"signal-trader/internal/events"
	"signal-trader/internal/position"
	"signal-trader/internal/retry"
	"signal-trader/internal/risk"
	"signal-trader/pkg/exchanges/common"
)

// EmergencyClose flattens the held position unconditionally. It is the
// fail-safe for every state the pipeline cannot guarantee consistent, and a
// no-op when already flat. Exhausting its retry budget surfaces
// ErrEmergencyCloseFailed, the one condition requiring operator attention.
func (e *Engine) EmergencyClose(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	// The flatten must survive the caller going away mid-request.
	return e.emergencyCloseLocked(context.WithoutCancel(ctx))
}

func (e *Engine) emergencyCloseLocked(ctx context.Context) error {
	pos := e.machine.Snapshot()
	if pos.Side == position.SideFlat {
		return nil
	}

	info, err := e.markets.Get(ctx, pos.Symbol)
	if err != nil {
		return e.closeFailed(fmt.Errorf("%w: %v", ErrEmergencyCloseFailed, err))
	}
	if err := e.flattenLocked(ctx, info); err != nil {
		return e.closeFailed(fmt.Errorf("%w: %v", ErrEmergencyCloseFailed, err))
	}

	log.Printf("🚨 emergency close completed for %s", pos.Symbol)
	e.publish(events.EventEmergencyClose, pos)
	return nil
}

func (e *Engine) closeFailed(err error) error {
	log.Printf("🚨 %v - operator attention required", err)
	e.publish(events.EventRiskAlert, err.Error())
	return err
}

// flattenLocked submits the market order that closes the held position and
// transitions the machine to FLAT on confirmation. The closing amount is the
// full held amount, clipped to what the account can actually deliver, never
// risk-fraction scaled. Callers hold e.mu.
func (e *Engine) flattenLocked(ctx context.Context, info common.MarketInfo) error {
	pos := e.machine.Snapshot()
	if pos.Side == position.SideFlat {
		return nil
	}

	// Standing brackets would double-close once the flatten fills.
	if err := e.gateway.CancelAllOpenOrders(ctx, pos.Symbol); err != nil {
		log.Printf("cancel open orders before flatten: %v", err)
	}

	closeSide := pos.CloseSide()

	var ticker common.Ticker
	err := retry.Do(ctx, "flatten ticker", e.readOpts, func(ctx context.Context) error {
		t, err := e.gateway.GetTicker(ctx, pos.Symbol)
		if err == nil {
			ticker = t
		}
		return err
	})
	if err != nil {
		return err
	}

	asset := info.BaseAsset
	if closeSide == common.SideBuy {
		asset = info.QuoteAsset
	}
	var balance common.Balance
	err = retry.Do(ctx, "flatten balance", e.readOpts, func(ctx context.Context) error {
		b, err := e.gateway.GetBalance(ctx, asset)
		if err == nil {
			balance = b
		}
		return err
	})
	if err != nil {
		return err
	}

	deliverable := balance.Available
	if closeSide == common.SideBuy {
		deliverable = balance.Available / ticker.Last
	}
	amount := pos.Amount
	if deliverable < amount {
		amount = deliverable
	}
	amount = risk.QuantizeDown(amount, info)

	if amount < info.MinAmount || amount <= 0 {
		// Nothing deliverable to close; the believed exposure does not
		// exist on the exchange. Reconcile the machine instead of failing.
		log.Printf("flatten %s: no closable amount (held %.8f, deliverable %.8f)", pos.Symbol, pos.Amount, deliverable)
		e.machine.Flatten(ctx)
		return nil
	}

	req := common.OrderRequest{
		Symbol:   pos.Symbol,
		Side:     closeSide,
		Type:     common.OrderTypeMarket,
		Amount:   amount,
		ClientID: uuid.NewString(), // fixed across attempts: resubmission is idempotent
	}
	var res common.OrderResult
	err = retry.Do(ctx, "flatten order", e.submitOpts, func(ctx context.Context) error {
		r, err := e.gateway.SubmitOrder(ctx, req)
		if err == nil {
			res = r
		}
		return err
	})
	if err != nil {
		return err
	}

	e.auditOrder(ctx, "", req.ClientID, req, res.ID, string(res.Status))
	e.machine.Flatten(ctx)
	log.Printf("position flattened: %s %s %.8f", pos.Symbol, closeSide, amount)
	return nil
}
