// Package engine runs the trading cycle: bars in, signals out, submissions
// through the pipeline. It also exposes order-management operations (list,
// cancel, replace) that re-apply the guard checks before touching a working
// order.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"tradegate/internal/broker"
	"tradegate/internal/config"
	"tradegate/internal/data"
	"tradegate/internal/domain"
	"tradegate/internal/pipeline"
	"tradegate/internal/risk"
	"tradegate/internal/state"
	"tradegate/internal/strategy"
	"tradegate/internal/util"
)

// volumeLookbackDays is the window fed to the liquidity check.
const volumeLookbackDays = 20

// CycleResult summarizes one pass over the watchlist.
type CycleResult struct {
	SymbolsScanned int
	Signals        int
	Submitted      int
	Rejected       int
	Errors         int
}

// Engine drives the per-cycle trading flow.
type Engine struct {
	cfg      *config.Config
	broker   broker.Broker
	provider data.Provider
	strat    strategy.Strategy
	guards   *risk.Engine
	pipe     *pipeline.Pipeline
	st       *state.State
	calendar *util.TradingCalendar
	log      *slog.Logger
}

// New wires the cycle engine. calendar may be nil, which disables the
// market-hours gate (sim mode).
func New(cfg *config.Config, b broker.Broker, provider data.Provider, strat strategy.Strategy,
	guards *risk.Engine, pipe *pipeline.Pipeline, st *state.State,
	calendar *util.TradingCalendar, log *slog.Logger) *Engine {
	if log == nil {
		log = slog.Default()
	}
	return &Engine{
		cfg:      cfg,
		broker:   b,
		provider: provider,
		strat:    strat,
		guards:   guards,
		pipe:     pipe,
		st:       st,
		calendar: calendar,
		log:      log.With("component", "engine"),
	}
}

// RunCycle evaluates every watchlist symbol once, submitting at most one
// order per symbol. A rejection for one symbol never aborts the others; only
// a failed state persist stops the cycle.
func (e *Engine) RunCycle(ctx context.Context) (CycleResult, error) {
	var res CycleResult

	if e.calendar != nil && !e.calendar.IsMarketOpen(util.NowEastern()) {
		e.log.Info("market closed; skipping cycle", "next_open", e.calendar.NextOpen(util.NowEastern()))
		return res, nil
	}

	symbols := e.cfg.Trading.Symbols
	barsBySymbol, err := e.provider.GetLatestBars(ctx, symbols, e.strat.MinBars())
	if err != nil {
		return res, fmt.Errorf("fetching bars: %w", err)
	}

	for _, symbol := range symbols {
		if ctx.Err() != nil {
			return res, ctx.Err()
		}
		res.SymbolsScanned++

		bars := barsBySymbol[symbol]
		if len(bars) < e.strat.MinBars() {
			e.log.Debug("not enough bars", "symbol", symbol, "have", len(bars), "need", e.strat.MinBars())
			continue
		}

		sig, ok := e.strat.Evaluate(symbol, bars)
		if !ok {
			continue
		}
		res.Signals++

		if e.alreadyProcessed(symbol, sig.Timestamp) {
			e.log.Debug("signal bar already processed", "symbol", symbol, "bar_ts", sig.Timestamp)
			continue
		}

		avgVolume, err := e.provider.GetAvgVolume(ctx, symbol, volumeLookbackDays)
		if err != nil {
			e.log.Warn("volume lookup failed; treating symbol as illiquid", "symbol", symbol, "err", err)
			avgVolume = 0
		}

		outcome, err := e.pipe.Submit(ctx, sig, e.cfg.Trading.DefaultQuantity, avgVolume)
		if err != nil {
			// Persist failures must stop the cycle: continuing without a
			// durable idempotency record risks duplicate submission.
			return res, fmt.Errorf("submitting %s: %w", symbol, err)
		}
		if !outcome.Success {
			// A rejected bar stays unmarked: a transient rejection (wide
			// spread, quote outage) must be re-evaluated next cycle.
			res.Rejected++
			continue
		}
		res.Submitted++
		if e.cfg.Trading.DryRun {
			// Simulate-only: the evaluation must leave no trace, or a later
			// live session would skip the bar.
			continue
		}

		e.st.LastProcessed[symbol] = sig.Timestamp.UTC().Format(time.RFC3339)
		if err := state.Save(e.st, e.cfg.Storage.StateFile); err != nil {
			return res, fmt.Errorf("persisting last-processed marker for %s: %w", symbol, err)
		}
	}

	e.log.Info("cycle complete", "scanned", res.SymbolsScanned, "signals", res.Signals,
		"submitted", res.Submitted, "rejected", res.Rejected)
	return res, nil
}

// alreadyProcessed reports whether the symbol's signal bar was handled in a
// previous cycle.
func (e *Engine) alreadyProcessed(symbol string, barTS time.Time) bool {
	raw, ok := e.st.LastProcessed[symbol]
	if !ok {
		return false
	}
	last, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return false
	}
	return !barTS.After(last)
}

// ---------------------------------------------------------------------------
// Order management
// ---------------------------------------------------------------------------

// OpenOrders returns the client order ids the venue currently reports open.
func (e *Engine) OpenOrders(ctx context.Context) ([]string, error) {
	keys, err := e.broker.GetOpenOrders(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing open orders: %w", err)
	}
	out := make([]string, 0, len(keys))
	for k := range keys {
		out = append(out, k)
	}
	return out, nil
}

// CancelOrder cancels a working order at the venue.
func (e *Engine) CancelOrder(ctx context.Context, orderID string) error {
	if err := e.broker.CancelOrder(ctx, orderID); err != nil {
		return fmt.Errorf("canceling order %s: %w", orderID, err)
	}
	e.log.Info("order canceled", "order_id", orderID)
	return nil
}

// ReplaceOrder re-prices (and optionally re-sizes) a working order. The new
// shape passes through the same quantity, notional, and exposure guards as a
// fresh submission; a replace must not smuggle in an order the pipeline
// would have rejected.
func (e *Engine) ReplaceOrder(ctx context.Context, orderID string, newLimitPrice decimal.Decimal, newQty int64) (*domain.Order, error) {
	if !newLimitPrice.IsPositive() {
		return nil, fmt.Errorf("replace order %s: new limit price must be positive", orderID)
	}

	current, err := e.broker.GetOrderStatus(ctx, orderID)
	if err != nil {
		return nil, fmt.Errorf("replace order %s: %w", orderID, err)
	}
	qty := current.Quantity
	if newQty > 0 {
		qty = newQty
	}

	if res := e.guards.CheckOrderQuantity(qty); !res.Passed {
		return nil, fmt.Errorf("replace order %s rejected: %s", orderID, res.Reason)
	}
	if res := e.guards.CheckOrderNotional(qty, newLimitPrice); !res.Passed {
		return nil, fmt.Errorf("replace order %s rejected: %s", orderID, res.Reason)
	}
	if res := e.guards.CheckExposure(qty, newLimitPrice); !res.Passed {
		return nil, fmt.Errorf("replace order %s rejected: %s", orderID, res.Reason)
	}

	replaced, err := e.broker.ReplaceOrder(ctx, orderID, newLimitPrice, newQty)
	if err != nil {
		return nil, fmt.Errorf("replacing order %s: %w", orderID, err)
	}
	e.log.Info("order replaced", "order_id", orderID, "limit_price", newLimitPrice, "qty", replaced.Quantity)
	return replaced, nil
}
