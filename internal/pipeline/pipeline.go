// Package pipeline implements the order submission pipeline: the only code
// path allowed to place an order at the venue. A signal passes through a
// fixed sequence of idempotency and guard checks, each a hard short-circuit,
// before the venue is touched.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"tradegate/internal/audit"
	"tradegate/internal/broker"
	"tradegate/internal/config"
	"tradegate/internal/domain"
	"tradegate/internal/risk"
	"tradegate/internal/state"
	"tradegate/internal/util"
)

// Rejection categories. Every rejection reason is prefixed with one of these
// so operators and tests can grep by failing step.
const (
	CategoryDuplicate   = "duplicate"
	CategoryRisk        = "risk"
	CategoryQuantity    = "quantity"
	CategoryNotional    = "notional"
	CategoryExposure    = "exposure"
	CategorySpread      = "spread"
	CategoryEdge        = "edge"
	CategoryBrokerError = "broker-error"
)

// Result is the outcome of one submission attempt. Rejections are expected
// business outcomes, not errors; only state-persist failures surface as
// errors from Submit.
type Result struct {
	Success       bool
	Reason        string
	Category      string // empty on success
	Order         *domain.Order
	ClientOrderID string
}

// Pipeline orchestrates submission for one strategy against one venue.
type Pipeline struct {
	broker    broker.Broker
	guards    *risk.Engine
	st        *state.State
	statePath string
	recorder  audit.Recorder
	archive   *audit.Archive // optional; nil disables the fill archive

	strategyName   string
	useLimitOrders bool
	dryRun         bool

	log *slog.Logger
}

// New builds a submission pipeline. archive may be nil.
func New(b broker.Broker, guards *risk.Engine, st *state.State, statePath string,
	rec audit.Recorder, archive *audit.Archive, trading config.Trading, log *slog.Logger) *Pipeline {
	if log == nil {
		log = slog.Default()
	}
	if rec == nil {
		rec = audit.NopRecorder{}
	}
	return &Pipeline{
		broker:         b,
		guards:         guards,
		st:             st,
		statePath:      statePath,
		recorder:       rec,
		archive:        archive,
		strategyName:   trading.StrategyName,
		useLimitOrders: trading.UseLimitOrders,
		dryRun:         trading.DryRun,
		log:            log.With("component", "pipeline"),
	}
}

// Submit runs the full check sequence for one signal and, if everything
// passes, places the order. avgVolume is the symbol's trailing average daily
// volume, fed to the eligibility check.
//
// The returned error is non-nil only for failures the caller must not
// ignore: a state persist that could lose an idempotency record. All
// expected outcomes, including broker submit failures, come back as a
// rejected Result.
func (p *Pipeline) Submit(ctx context.Context, sig domain.Signal, quantity int64, avgVolume int64) (Result, error) {
	key := state.BuildClientOrderID(sig.Symbol, string(sig.Side), sig.Timestamp, p.strategyName)
	log := p.log.With("symbol", sig.Symbol, "side", sig.Side, "client_order_id", key)

	// Idempotency, local then venue.
	if p.st.HasSubmitted(key) {
		return p.reject(ctx, sig, quantity, key, CategoryDuplicate, "order already in local state"), nil
	}
	if p.broker.OrderExists(ctx, key) {
		// A crash between venue accept and local persist can lose the local
		// record; heal it now so the next cycle short-circuits locally.
		p.st.MarkSubmitted(key)
		if err := state.Save(p.st, p.statePath); err != nil {
			return Result{}, fmt.Errorf("persisting healed idempotency key %s: %w", key, err)
		}
		log.Info("order already exists at venue; local state healed")
		return p.reject(ctx, sig, quantity, key, CategoryDuplicate, "order already exists at venue"), nil
	}

	// Guard checks: eligibility, then signal-level.
	quote, quoteErr := p.broker.GetQuote(ctx, sig.Symbol)
	if res := p.guards.CheckSymbolEligibility(sig.Symbol, quote, quoteErr == nil, avgVolume); !res.Passed {
		return p.reject(ctx, sig, quantity, key, CategoryRisk, res.Reason), nil
	}
	if res := p.guards.CheckSignal(sig); !res.Passed {
		return p.reject(ctx, sig, quantity, key, CategoryRisk, res.Reason), nil
	}

	// Order shape.
	if res := p.guards.CheckOrderQuantity(quantity); !res.Passed {
		return p.reject(ctx, sig, quantity, key, CategoryQuantity, res.Reason), nil
	}
	if !sig.HasPrice {
		return p.reject(ctx, sig, quantity, key, CategoryNotional, "signal carries no reference price"), nil
	}
	if res := p.guards.CheckOrderNotional(quantity, sig.Price); !res.Passed {
		return p.reject(ctx, sig, quantity, key, CategoryNotional, res.Reason), nil
	}
	if res := p.guards.CheckExposure(quantity, sig.Price); !res.Passed {
		return p.reject(ctx, sig, quantity, key, CategoryExposure, res.Reason), nil
	}

	// Cost controls against a fresh quote.
	quote, quoteErr = p.broker.GetQuote(ctx, sig.Symbol)
	if quoteErr != nil {
		return p.reject(ctx, sig, quantity, key, CategoryBrokerError, fmt.Sprintf("quote fetch failed: %v", quoteErr)), nil
	}
	if res := p.guards.CheckSpread(quote); !res.Passed {
		return p.reject(ctx, sig, quantity, key, CategorySpread, res.Reason), nil
	}

	orderType := domain.Market
	limitPrice := decimal.Zero
	if p.useLimitOrders {
		orderType = domain.Limit
		limitPrice = risk.LimitPrice(quote, sig.Side)
		if res := p.guards.CheckEdge(quote, sig.Side, limitPrice); !res.Passed {
			return p.reject(ctx, sig, quantity, key, CategoryEdge, res.Reason), nil
		}
	}

	// Simulate-only stop: the candidate was evaluated exactly as if live, but
	// nothing below this line runs — no venue call, no audit, no state write.
	if p.dryRun {
		log.Info("dry run: order withheld", "order_type", orderType, "limit_price", limitPrice)
		return Result{Success: true, Reason: "dry run: order evaluated but not submitted", ClientOrderID: key}, nil
	}

	order, err := p.broker.SubmitOrder(ctx, broker.OrderRequest{
		Symbol:        sig.Symbol,
		Side:          sig.Side,
		Quantity:      quantity,
		ClientOrderID: key,
		Type:          orderType,
		LimitPrice:    limitPrice,
	})
	if err != nil {
		return p.reject(ctx, sig, quantity, key, CategoryBrokerError, fmt.Sprintf("submit failed: %v", err)), nil
	}

	p.recordOrder(ctx, audit.OrderRecord{
		Version:       audit.SchemaVersion,
		RunID:         p.st.RunID,
		Timestamp:     time.Now(),
		ClientOrderID: key,
		Symbol:        sig.Symbol,
		Side:          string(sig.Side),
		Quantity:      quantity,
		OrderType:     string(orderType),
		LimitPrice:    formatLimit(orderType, limitPrice),
		Outcome:       audit.OutcomeSubmitted,
	})

	// The venue has accepted; the key must hit durable storage before this
	// call returns success.
	p.st.MarkSubmitted(key)
	if err := state.Save(p.st, p.statePath); err != nil {
		return Result{}, fmt.Errorf("persisting idempotency key %s after venue accept: %w", key, err)
	}
	log.Info("order submitted", "broker_order_id", order.ID, "order_type", orderType, "status", order.Status)

	if order.Status == domain.OrderFilled {
		if err := p.handleFill(ctx, sig, order, quote); err != nil {
			return Result{}, err
		}
	}

	return Result{Success: true, Reason: "order submitted", Order: order, ClientOrderID: key}, nil
}

// handleFill records execution quality and folds the fill into the position
// book and the persisted daily PnL.
func (p *Pipeline) handleFill(ctx context.Context, sig domain.Signal, order *domain.Order, quote domain.Quote) error {
	expected := quote.ExpectedEntryPrice(sig.Side)
	var costs *audit.CostMetrics
	if expected.IsPositive() {
		slipAbs := order.FilledPrice.Sub(expected)
		costs = &audit.CostMetrics{
			ExpectedPrice:     expected,
			SlippageAbs:       slipAbs,
			SlippageBPS:       slipAbs.Div(expected).Mul(decimal.NewFromInt(10000)),
			SpreadBPSAtSubmit: quote.SpreadBPS(),
		}
	}

	fill := audit.FillRecord{
		Version:       audit.SchemaVersion,
		RunID:         p.st.RunID,
		Timestamp:     time.Now(),
		ClientOrderID: order.ClientOrderID,
		BrokerOrderID: order.ID,
		Symbol:        order.Symbol,
		Side:          string(order.Side),
		Quantity:      order.Quantity,
		FillPrice:     order.FilledPrice,
		Costs:         costs,
	}
	if err := p.recorder.RecordFill(ctx, fill); err != nil {
		p.log.Warn("fill audit write failed", "client_order_id", order.ClientOrderID, "err", err)
	}
	if p.archive != nil {
		if err := p.archive.WriteDay(util.TodayEastern(), []audit.FillRecord{fill}); err != nil {
			p.log.Warn("fill archive write failed", "client_order_id", order.ClientOrderID, "err", err)
		}
	}

	signedQty := order.Quantity
	if order.Side == domain.Sell {
		signedQty = -signedQty
	}
	dailyBefore := p.guards.DailyPnL()
	if err := p.guards.UpdatePosition(order.Symbol, signedQty, order.FilledPrice); err != nil {
		p.log.Error("position update rejected", "symbol", order.Symbol, "err", err)
		return nil
	}

	// The trade record closes the loop: it is the only sink that carries the
	// signal's reason alongside the execution.
	trade := audit.TradeRecord{
		Version:       audit.SchemaVersion,
		RunID:         p.st.RunID,
		Timestamp:     fill.Timestamp,
		ClientOrderID: order.ClientOrderID,
		Symbol:        order.Symbol,
		Side:          string(order.Side),
		Quantity:      order.Quantity,
		FillPrice:     order.FilledPrice,
		SignalReason:  sig.Reason,
		Costs:         costs,
	}
	if err := p.recorder.RecordTrade(ctx, trade); err != nil {
		p.log.Warn("trade audit write failed", "client_order_id", order.ClientOrderID, "err", err)
	}

	if realized := p.guards.DailyPnL().Sub(dailyBefore); !realized.IsZero() {
		p.st.AddDailyPnL(realized, "")
		if err := state.Save(p.st, p.statePath); err != nil {
			return fmt.Errorf("persisting realized pnl for %s: %w", order.Symbol, err)
		}
	}
	return nil
}

// reject logs, audits, and wraps a rejection into a Result.
func (p *Pipeline) reject(ctx context.Context, sig domain.Signal, quantity int64, key, category, reason string) Result {
	full := category + ": " + reason
	p.log.Info("signal rejected", "symbol", sig.Symbol, "side", sig.Side,
		"client_order_id", key, "category", category, "reason", reason)
	p.recordOrder(ctx, audit.OrderRecord{
		Version:        audit.SchemaVersion,
		RunID:          p.st.RunID,
		Timestamp:      time.Now(),
		ClientOrderID:  key,
		Symbol:         sig.Symbol,
		Side:           string(sig.Side),
		Quantity:       quantity,
		Outcome:        audit.OutcomeRejected,
		RejectCategory: category,
		RejectReason:   reason,
	})
	return Result{Reason: full, Category: category, ClientOrderID: key}
}

func (p *Pipeline) recordOrder(ctx context.Context, rec audit.OrderRecord) {
	if err := p.recorder.RecordOrder(ctx, rec); err != nil {
		p.log.Warn("order audit write failed", "client_order_id", rec.ClientOrderID, "err", err)
	}
}

func formatLimit(orderType domain.OrderType, limitPrice decimal.Decimal) string {
	if orderType != domain.Limit {
		return ""
	}
	return limitPrice.String()
}
