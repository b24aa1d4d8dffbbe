package executor

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"signal-trader/internal/events"
	"signal-trader/internal/market"
	"signal-trader/internal/position"
	"signal-trader/internal/retry"
	"signal-trader/internal/risk"
	"signal-trader/pkg/config"
	"signal-trader/pkg/db"
	"signal-trader/pkg/exchanges/common"
)

// Engine orchestrates the signal-to-orders pipeline: conflict close, sizing,
// entry submission and bracket protection. A single mutex serializes every
// pipeline run; two concurrent signals can never both observe a flat position.
type Engine struct {
	mu sync.Mutex

	gateway common.Gateway
	machine *position.Machine
	sizer   *risk.Sizer
	markets *market.InfoCache
	policy  config.Policy

	DB  *db.Database
	Bus *events.Bus

	// Balances, when set, is retargeted to the traded pair's assets after a
	// symbol change.
	Balances balanceTracker

	readOpts   retry.Options
	submitOpts retry.Options
}

type balanceTracker interface {
	SetAssets(assets []string)
}

// NewEngine wires the pipeline components.
func NewEngine(gw common.Gateway, machine *position.Machine, sizer *risk.Sizer, markets *market.InfoCache, pol config.Policy, database *db.Database, bus *events.Bus) *Engine {
	return &Engine{
		gateway:    gw,
		machine:    machine,
		sizer:      sizer,
		markets:    markets,
		policy:     pol,
		DB:         database,
		Bus:        bus,
		readOpts:   retry.Reads(pol.MaxReadAttempts, pol.BaseBackoff),
		submitOpts: retry.Submits(pol.MaxSubmitAttempts, pol.BaseBackoff),
	}
}

// Position exposes the current snapshot for the operator API.
func (e *Engine) Position() position.Position {
	return e.machine.Snapshot()
}

// ProcessSignal runs the full pipeline for one signal and returns a
// structured result. It never panics the caller and never returns raw
// exchange error text.
func (e *Engine) ProcessSignal(ctx context.Context, sig Signal) Result {
	e.mu.Lock()
	defer e.mu.Unlock()

	// A run that has started always finishes, even if the webhook caller
	// disconnects or the request times out. Every gateway call carries its
	// own HTTP timeout, so a detached run still cannot hang.
	ctx = context.WithoutCancel(ctx)

	start := time.Now()
	if sig.ID == "" {
		sig.ID = uuid.NewString()
	}
	if sig.Symbol == "" {
		sig.Symbol = e.machine.Snapshot().Symbol
	}

	e.auditSignal(ctx, sig)
	e.publish(events.EventSignalReceived, sig)

	res := e.run(ctx, sig)

	e.auditResult(ctx, sig, res)
	log.Printf("signal %s %s %s -> %s/%s in %v", short(sig.ID), sig.Action, sig.Symbol, res.Status, res.Code, time.Since(start))
	return res
}

func (e *Engine) run(ctx context.Context, sig Signal) Result {
	fail := func(err error) Result {
		return Result{Status: StatusError, Code: codeFor(err), Symbol: sig.Symbol}
	}

	// Symbol change is only legal while flat; a held position on another
	// symbol is a conflict the caller must resolve first.
	pos := e.machine.Snapshot()
	if sig.Symbol != pos.Symbol && pos.Side != position.SideFlat {
		log.Printf("signal %s targets %s while %s held on %s", short(sig.ID), sig.Symbol, pos.Side, pos.Symbol)
		return Result{Status: StatusError, Code: CodePositionConflict, Symbol: sig.Symbol}
	}
	if sig.Symbol != pos.Symbol {
		if err := e.machine.SetSymbol(sig.Symbol); err != nil {
			return fail(err)
		}
		if _, err := e.markets.Refresh(ctx, sig.Symbol); err != nil {
			return fail(err)
		}
	}

	info, err := e.markets.Get(ctx, sig.Symbol)
	if err != nil {
		return fail(err)
	}
	if sig.Symbol != pos.Symbol && e.Balances != nil {
		e.Balances.SetAssets([]string{info.BaseAsset, info.QuoteAsset})
	}
	if !info.Active {
		return Result{Status: StatusError, Code: CodeInactiveMarket, Symbol: sig.Symbol}
	}

	// 1. Close a conflicting position before anything else. A failed close
	// aborts the signal; the engine never stacks an entry on top of an
	// unresolved opposing position.
	if e.machine.Snapshot().Conflicts(sig.Action) {
		log.Printf("signal %s opposes held %s position, closing first", short(sig.ID), e.machine.Snapshot().Side)
		if err := e.flattenLocked(ctx, info); err != nil {
			log.Printf("conflict close failed: %v", err)
			return Result{Status: StatusError, Code: CodePositionConflict, Symbol: sig.Symbol}
		}
	}

	// Same-direction signal on an open position: nothing to do, the
	// exposure is already in place.
	if held := e.machine.Snapshot(); held.Side != position.SideFlat {
		log.Printf("signal %s matches held %s position, no action", short(sig.ID), held.Side)
		return Result{Status: StatusSuccess, Code: CodeSuccess, Symbol: sig.Symbol, ExecutedPrice: held.EntryPrice}
	}

	// 2. Current price.
	var ticker common.Ticker
	err = retry.Do(ctx, "fetch ticker", e.readOpts, func(ctx context.Context) error {
		t, err := e.gateway.GetTicker(ctx, sig.Symbol)
		if err == nil {
			ticker = t
		}
		return err
	})
	if err != nil {
		return fail(err)
	}

	// 3. Size against the risk budget. Buys spend the quote asset, sells
	// spend the base asset (configurable policy decision).
	asset := info.QuoteAsset
	if sig.Action == common.SideSell {
		asset = info.BaseAsset
	}
	var balance common.Balance
	err = retry.Do(ctx, "fetch balance", e.readOpts, func(ctx context.Context) error {
		b, err := e.gateway.GetBalance(ctx, asset)
		if err == nil {
			balance = b
		}
		return err
	})
	if err != nil {
		return fail(err)
	}

	sizingBalance := balance.Available
	if sig.Action == common.SideSell {
		// Selling commits base units directly; price converts the budget.
		sizingBalance = balance.Available * ticker.Last
	}
	amount, err := e.sizer.Size(sizingBalance, ticker.Last, info)
	if err != nil {
		log.Printf("sizing rejected signal %s: %v", short(sig.ID), err)
		return fail(err)
	}

	// 4. Entry market order.
	entry, err := e.submitEntry(ctx, sig, amount)
	if err != nil {
		if common.Retryable(err) {
			// The submit budget was exhausted on transport failures. One of
			// the attempts may have reached the exchange and filled without
			// a readable response; assume the exposure is real and flatten
			// it rather than report failure over an unaccounted position.
			log.Printf("entry for signal %s ambiguous after retries (%v), triggering emergency close", short(sig.ID), err)
			e.machine.Restore(ctx, position.Position{
				Side:       position.SideFor(sig.Action),
				Symbol:     sig.Symbol,
				EntryPrice: ticker.Last,
				Amount:     amount,
			})
			if cerr := e.emergencyCloseLocked(ctx); cerr != nil {
				return fail(cerr)
			}
			return Result{Status: StatusError, Code: CodeNetworkError, Symbol: sig.Symbol}
		}
		return fail(err)
	}
	if entry.Status != common.StatusFilled {
		// Ack without a confirmed fill is a consistency risk: assume the
		// exposure is real and flatten it rather than hold unknown risk.
		log.Printf("entry %s unconfirmed (status %s), triggering emergency close", entry.ID, entry.Status)
		e.machine.Restore(ctx, position.Position{
			Side:       position.SideFor(sig.Action),
			Symbol:     sig.Symbol,
			EntryPrice: ticker.Last,
			Amount:     amount,
		})
		if cerr := e.emergencyCloseLocked(ctx); cerr != nil {
			return fail(cerr)
		}
		return Result{Status: StatusError, Code: CodeNetworkError, OrderID: entry.ID, Symbol: sig.Symbol}
	}

	entryPrice := entry.FilledPrice
	if entryPrice <= 0 {
		entryPrice = ticker.Last
	}
	filled := entry.FilledAmount
	if filled <= 0 {
		filled = amount
	}
	if err := e.machine.Open(ctx, position.SideFor(sig.Action), sig.Symbol, entryPrice, filled); err != nil {
		// Unreachable while the pipeline lock is held.
		return fail(err)
	}
	e.auditFill(ctx, sig, entry, filled, entryPrice)

	// 5. Bracket protection. A failure here does not undo the entry fill
	// (the position is real) but the engine refuses to hold unprotected
	// risk: it flattens and reports partial success.
	if err := e.submitBrackets(ctx, sig, entryPrice, filled); err != nil {
		log.Printf("bracket submission failed (%v), closing position %s", err, sig.Symbol)
		if cerr := e.emergencyCloseLocked(ctx); cerr != nil {
			return Result{Status: StatusError, Code: CodeEmergencyCloseFailed, OrderID: entry.ID, ExecutedPrice: entryPrice, Symbol: sig.Symbol}
		}
		return Result{Status: StatusPartial, Code: codeFor(err), OrderID: entry.ID, ExecutedPrice: entryPrice, Symbol: sig.Symbol}
	}

	return Result{Status: StatusSuccess, Code: CodeSuccess, OrderID: entry.ID, ExecutedPrice: entryPrice, Symbol: sig.Symbol}
}

// submitEntry submits the entry market order. The client order ID is fixed
// across attempts so a retried submission after an ambiguous network failure
// cannot double-fill; before each resubmit the engine also checks whether the
// previous attempt reached the exchange.
func (e *Engine) submitEntry(ctx context.Context, sig Signal, amount float64) (common.OrderResult, error) {
	clientID := uuid.NewString()
	req := common.OrderRequest{
		Symbol:   sig.Symbol,
		Side:     sig.Action,
		Type:     common.OrderTypeMarket,
		Amount:   amount,
		ClientID: clientID,
	}

	e.publish(events.EventOrderSubmitted, req)

	var res common.OrderResult
	attempt := 0
	err := retry.Do(ctx, "submit entry", e.submitOpts, func(ctx context.Context) error {
		if attempt > 0 {
			if live, ok := e.findByClientID(ctx, sig.Symbol, clientID); ok {
				res = common.OrderResult{ID: live.ID, ClientID: clientID, Status: common.StatusUnknown}
				return nil
			}
		}
		attempt++

		r, err := e.gateway.SubmitOrder(ctx, req)
		if err != nil {
			if attempt > 1 && common.KindOf(err) == common.KindRejected {
				// The exchange refusing the reused client order ID after an
				// ambiguous failure means the first submission was placed;
				// the fill just never reached us.
				res = common.OrderResult{ClientID: clientID, Status: common.StatusUnknown}
				return nil
			}
			return err
		}
		res = r
		return nil
	})
	if err != nil {
		e.publish(events.EventOrderRejected, err.Error())
		e.auditOrder(ctx, sig.ID, clientID, req, "", string(common.StatusRejected))
		return common.OrderResult{}, err
	}

	e.auditOrder(ctx, sig.ID, clientID, req, res.ID, string(res.Status))
	if res.Status == common.StatusFilled {
		e.publish(events.EventOrderFilled, res)
	}
	return res, nil
}

// findByClientID checks the exchange for a previously submitted order after
// an ambiguous failure (request sent, response lost).
func (e *Engine) findByClientID(ctx context.Context, symbol, clientID string) (common.OpenOrder, bool) {
	open, err := e.gateway.OpenOrders(ctx, symbol)
	if err != nil {
		return common.OpenOrder{}, false
	}
	for _, o := range open {
		if o.ClientID == clientID {
			return o, true
		}
	}
	return common.OpenOrder{}, false
}

// submitBrackets places the take-profit limit and stop-loss orders for a
// freshly opened position. The exchange has no paired submission, so the two
// legs go out as linked orders sharing the entry amount.
func (e *Engine) submitBrackets(ctx context.Context, sig Signal, entryPrice, amount float64) error {
	exitSide := sig.Action.Opposite()

	tpPrice := entryPrice * (1 + e.policy.TakeProfitPct)
	slPrice := entryPrice * (1 - e.policy.StopLossPct)
	if sig.Action == common.SideSell {
		tpPrice = entryPrice * (1 - e.policy.TakeProfitPct)
		slPrice = entryPrice * (1 + e.policy.StopLossPct)
	}

	brackets := []common.OrderRequest{
		{
			Symbol:   sig.Symbol,
			Side:     exitSide,
			Type:     common.OrderTypeLimit,
			Amount:   amount,
			Price:    tpPrice,
			ClientID: uuid.NewString(),
		},
		{
			Symbol:    sig.Symbol,
			Side:      exitSide,
			Type:      common.OrderTypeStopLimit,
			Amount:    amount,
			Price:     slPrice,
			StopPrice: slPrice,
			ClientID:  uuid.NewString(),
		},
	}

	for _, req := range brackets {
		req := req
		var res common.OrderResult
		err := retry.Do(ctx, "submit bracket", e.submitOpts, func(ctx context.Context) error {
			r, err := e.gateway.SubmitOrder(ctx, req)
			if err == nil {
				res = r
			}
			return err
		})
		if err != nil {
			e.auditOrder(ctx, sig.ID, req.ClientID, req, "", string(common.StatusRejected))
			return fmt.Errorf("bracket %s: %w", req.Type, err)
		}
		e.auditOrder(ctx, sig.ID, req.ClientID, req, res.ID, string(res.Status))
	}
	log.Printf("brackets placed for %s: TP %.8f, SL %.8f", sig.Symbol, tpPrice, slPrice)
	return nil
}

func short(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func (e *Engine) publish(ev events.Event, payload any) {
	if e.Bus != nil {
		e.Bus.Publish(ev, payload)
	}
}

func (e *Engine) auditSignal(ctx context.Context, sig Signal) {
	if e.DB == nil {
		return
	}
	err := e.DB.CreateSignal(ctx, db.SignalLog{ID: sig.ID, Action: string(sig.Action), Symbol: sig.Symbol})
	if err != nil {
		log.Printf("audit signal error: %v", err)
	}
}

func (e *Engine) auditResult(ctx context.Context, sig Signal, res Result) {
	if e.DB == nil {
		return
	}
	if err := e.DB.UpdateSignalResult(ctx, sig.ID, string(res.Code), res.OrderID); err != nil {
		log.Printf("audit result error: %v", err)
	}
}

func (e *Engine) auditOrder(ctx context.Context, signalID, clientID string, req common.OrderRequest, exchangeID, status string) {
	if e.DB == nil {
		return
	}
	err := e.DB.CreateOrder(ctx, db.Order{
		ID:              clientID,
		SignalID:        signalID,
		ExchangeOrderID: exchangeID,
		Symbol:          req.Symbol,
		Side:            string(req.Side),
		Type:            string(req.Type),
		Price:           req.Price,
		StopPrice:       req.StopPrice,
		Amount:          req.Amount,
		Status:          status,
	})
	if err != nil {
		log.Printf("audit order error: %v", err)
	}
}

func (e *Engine) auditFill(ctx context.Context, sig Signal, res common.OrderResult, amount, price float64) {
	if e.DB == nil {
		return
	}
	err := e.DB.CreateTrade(ctx, db.Trade{
		ID:      uuid.NewString(),
		OrderID: res.ClientID,
		Symbol:  sig.Symbol,
		Side:    string(sig.Action),
		Price:   price,
		Amount:  amount,
	})
	if err != nil {
		log.Printf("audit trade error: %v", err)
	}
}
