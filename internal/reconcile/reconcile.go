// Package reconcile synchronizes local bookkeeping with the venue's
// authoritative view of open orders and positions. It runs once at process
// start, before the trading loop, and can be invoked standalone.
package reconcile

import (
	"context"
	"log/slog"

	"tradegate/internal/broker"
	"tradegate/internal/risk"
	"tradegate/internal/state"
)

// Result counts what one reconciliation pass observed and changed.
type Result struct {
	BrokerOpenOrders int
	LocalOrdersAdded int
	BrokerPositions  int
	PositionsSynced  int
	PositionsAdded   int
	PositionsRemoved int
}

// Engine performs the two sub-syncs against one venue.
type Engine struct {
	broker broker.Broker
	guards *risk.Engine
	st     *state.State
	log    *slog.Logger
}

// New builds a reconciliation engine over the shared state and guard engine.
func New(b broker.Broker, guards *risk.Engine, st *state.State, log *slog.Logger) *Engine {
	if log == nil {
		log = slog.Default()
	}
	return &Engine{broker: b, guards: guards, st: st, log: log.With("component", "reconcile")}
}

// Run executes both sub-syncs and persists the state at the end. A venue
// failure in one sub-sync is logged and contributes zero counts without
// aborting the other; only the final state persist can fail the call.
func (e *Engine) Run(ctx context.Context, statePath string) (Result, error) {
	var res Result
	e.syncOrders(ctx, &res)
	e.syncPositions(ctx, &res)

	if err := state.Save(e.st, statePath); err != nil {
		return res, err
	}

	e.log.Info("reconciliation complete",
		"broker_open_orders", res.BrokerOpenOrders,
		"local_orders_added", res.LocalOrdersAdded,
		"broker_positions", res.BrokerPositions,
		"positions_synced", res.PositionsSynced,
		"positions_added", res.PositionsAdded,
		"positions_removed", res.PositionsRemoved)
	return res, nil
}

// syncOrders unions the venue's open-order key set into local state. Local
// keys absent from the venue's set stay: "no longer open" can mean filled or
// canceled, both legitimate history.
func (e *Engine) syncOrders(ctx context.Context, res *Result) {
	venueKeys, err := e.broker.GetOpenOrders(ctx)
	if err != nil {
		e.log.Warn("order sync skipped: venue query failed", "err", err)
		return
	}
	res.BrokerOpenOrders = len(venueKeys)
	for key := range venueKeys {
		if !e.st.HasSubmitted(key) {
			e.st.MarkSubmitted(key)
			res.LocalOrdersAdded++
			e.log.Info("adopted venue order into local state", "client_order_id", key)
		}
	}
}

// syncPositions mirrors the venue's position map exactly: adds missing
// symbols, overwrites numeric mismatches, removes local symbols the venue no
// longer reports.
func (e *Engine) syncPositions(ctx context.Context, res *Result) {
	venuePositions, err := e.broker.GetPositions(ctx)
	if err != nil {
		e.log.Warn("position sync skipped: venue query failed", "err", err)
		return
	}
	res.BrokerPositions = len(venuePositions)

	for symbol, vp := range venuePositions {
		local, held := e.guards.Position(symbol)
		switch {
		case !held:
			e.guards.SetPosition(symbol, vp.Quantity, vp.AvgPrice)
			res.PositionsAdded++
			e.log.Info("adopted venue position", "symbol", symbol, "qty", vp.Quantity, "avg_price", vp.AvgPrice)
		case local.Quantity != vp.Quantity || !local.AvgPrice.Equal(vp.AvgPrice):
			e.guards.SetPosition(symbol, vp.Quantity, vp.AvgPrice)
			res.PositionsSynced++
			e.log.Info("synced venue position", "symbol", symbol,
				"local_qty", local.Quantity, "venue_qty", vp.Quantity)
		}
	}

	for _, local := range e.guards.Positions() {
		if _, ok := venuePositions[local.Symbol]; !ok {
			e.guards.RemovePosition(local.Symbol)
			res.PositionsRemoved++
			e.log.Info("removed position absent at venue", "symbol", local.Symbol, "qty", local.Quantity)
		}
	}
}
