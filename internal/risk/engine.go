// Package risk implements the pre-trade guard engine: a fixed set of
// independent pass/fail checks over a candidate order plus the long-only
// position book they are evaluated against.
package risk

import (
	"fmt"
	"log/slog"
	"slices"

	"github.com/shopspring/decimal"

	"tradegate/internal/config"
	"tradegate/internal/domain"
)

// CheckResult is the outcome of a single guard check. Failing a check is an
// expected business outcome, not an error.
type CheckResult struct {
	Passed bool
	Reason string
}

func pass(reason string) CheckResult { return CheckResult{Passed: true, Reason: reason} }

func fail(format string, args ...any) CheckResult {
	return CheckResult{Passed: false, Reason: fmt.Sprintf(format, args...)}
}

// Engine evaluates guard checks against a configuration snapshot and a
// long-only position book. Daily PnL is carried in from persisted state at
// construction; session PnL always starts at zero and deliberately does not
// survive restarts.
type Engine struct {
	cfg        config.Risk
	dailyPnL   decimal.Decimal
	sessionPnL decimal.Decimal
	positions  map[string]*domain.Position

	// sessionTripped latches the session kill-switch warning so it is logged
	// once per process instead of once per check.
	sessionTripped bool

	log *slog.Logger
}

// NewEngine creates a guard engine from the risk configuration and the
// current day's realized PnL.
func NewEngine(cfg config.Risk, dailyPnL decimal.Decimal, log *slog.Logger) *Engine {
	if log == nil {
		log = slog.Default()
	}
	return &Engine{
		cfg:       cfg,
		dailyPnL:  dailyPnL,
		positions: make(map[string]*domain.Position),
		log:       log.With("component", "risk"),
	}
}

// ---------------------------------------------------------------------------
// Symbol eligibility
// ---------------------------------------------------------------------------

// CheckSymbolEligibility is a composite check that short-circuits on the
// first failure. The order matters for diagnostic clarity: blacklist, then
// whitelist, then quote validity, then price bounds, then liquidity.
// hasQuote distinguishes "no quote available" from a zero-valued quote.
func (e *Engine) CheckSymbolEligibility(symbol string, quote domain.Quote, hasQuote bool, avgVolume int64) CheckResult {
	if slices.Contains(e.cfg.SymbolBlacklist, symbol) {
		return fail("symbol %s is blacklisted", symbol)
	}

	if len(e.cfg.SymbolWhitelist) > 0 && !slices.Contains(e.cfg.SymbolWhitelist, symbol) {
		return fail("symbol %s not in whitelist", symbol)
	}

	if !hasQuote || !quote.Tradable() {
		return fail("symbol %s has no tradable quote (bid=%s ask=%s)", symbol, quote.Bid, quote.Ask)
	}

	price := quote.Last
	if !price.IsPositive() {
		price = quote.Mid()
	}
	if price.LessThan(e.cfg.MinPrice) {
		return fail("symbol %s price %s < min_price %s", symbol, price, e.cfg.MinPrice)
	}
	if price.GreaterThan(e.cfg.MaxPrice) {
		return fail("symbol %s price %s > max_price %s", symbol, price, e.cfg.MaxPrice)
	}

	if avgVolume < e.cfg.MinAvgVolume {
		return fail("symbol %s avg_volume=%d < min_avg_volume=%d", symbol, avgVolume, e.cfg.MinAvgVolume)
	}

	return pass("symbol eligible")
}

// ---------------------------------------------------------------------------
// Signal-level checks
// ---------------------------------------------------------------------------

// CheckSignal validates the signal against the allowlist, the concurrent
// position cap, and the daily and session loss kill switches.
func (e *Engine) CheckSignal(sig domain.Signal) CheckResult {
	if !slices.Contains(e.cfg.AllowedSymbols, sig.Symbol) {
		return fail("symbol %s not in allowlist", sig.Symbol)
	}

	// Only opening buys count against the position cap; sells reduce it.
	if sig.Side == domain.Buy && len(e.positions) >= e.cfg.MaxPositions {
		return fail("max positions (%d) reached", e.cfg.MaxPositions)
	}

	if e.dailyPnL.LessThanOrEqual(e.cfg.MaxDailyLoss.Neg()) {
		return fail("daily loss limit (%s) exceeded: daily_pnl=%s", e.cfg.MaxDailyLoss, e.dailyPnL)
	}

	if e.cfg.SessionLossEnabled && e.sessionPnL.LessThanOrEqual(e.cfg.MaxSessionLoss.Neg()) {
		if !e.sessionTripped {
			e.sessionTripped = true
			e.log.Warn("session kill switch tripped; blocking all new orders",
				"session_pnl", e.sessionPnL, "max_session_loss", e.cfg.MaxSessionLoss)
		}
		return fail("session loss limit (%s) exceeded: session_pnl=%s", e.cfg.MaxSessionLoss, e.sessionPnL)
	}

	return pass("signal checks passed")
}

// ---------------------------------------------------------------------------
// Order-shape checks
// ---------------------------------------------------------------------------

// CheckOrderQuantity requires a positive quantity no greater than the
// configured maximum.
func (e *Engine) CheckOrderQuantity(quantity int64) CheckResult {
	if quantity <= 0 {
		return fail("order quantity must be positive, got %d", quantity)
	}
	if quantity > e.cfg.MaxOrderQuantity {
		return fail("order quantity %d exceeds max %d", quantity, e.cfg.MaxOrderQuantity)
	}
	return pass("quantity check passed")
}

// CheckOrderNotional requires |quantity × price| within the per-order cap.
func (e *Engine) CheckOrderNotional(quantity int64, price decimal.Decimal) CheckResult {
	notional := price.Mul(decimal.NewFromInt(quantity)).Abs()
	if notional.GreaterThan(e.cfg.MaxOrderNotional) {
		return fail("order notional $%s exceeds limit $%s", notional.StringFixed(2), e.cfg.MaxOrderNotional.StringFixed(2))
	}
	return pass("notional check passed")
}

// CheckExposure requires that existing exposure plus the new order's notional
// stays within the total exposure cap.
func (e *Engine) CheckExposure(quantity int64, price decimal.Decimal) CheckResult {
	current := e.CurrentExposure()
	added := price.Mul(decimal.NewFromInt(quantity)).Abs()
	total := current.Add(added)
	if total.GreaterThan(e.cfg.MaxExposureNotional) {
		return fail("total exposure $%s (current $%s + new $%s) exceeds limit $%s",
			total.StringFixed(2), current.StringFixed(2), added.StringFixed(2),
			e.cfg.MaxExposureNotional.StringFixed(2))
	}
	return pass("exposure check passed")
}

// CurrentExposure returns Σ|position qty × avg entry price|.
func (e *Engine) CurrentExposure() decimal.Decimal {
	total := decimal.Zero
	for _, p := range e.positions {
		total = total.Add(p.Notional())
	}
	return total
}

// ---------------------------------------------------------------------------
// Cost-control checks
// ---------------------------------------------------------------------------

// CheckSpread requires the quote's spread in basis points of mid to stay
// within the configured maximum.
func (e *Engine) CheckSpread(q domain.Quote) CheckResult {
	spreadBPS := q.SpreadBPS()
	if spreadBPS.GreaterThan(e.cfg.MaxSpreadBPS) {
		return fail("spread %sbps exceeds max %sbps", spreadBPS.StringFixed(2), e.cfg.MaxSpreadBPS.StringFixed(2))
	}
	return pass("spread check passed")
}

var four = decimal.NewFromInt(4)

// LimitPrice computes the marketable limit price inset a quarter of the
// spread from the midpoint: min(ask, mid+spread/4) for a buy,
// max(bid, mid−spread/4) for a sell.
func LimitPrice(q domain.Quote, side domain.OrderSide) decimal.Decimal {
	mid := q.Mid()
	inset := q.Spread().Div(four)
	if side == domain.Buy {
		return decimal.Min(q.Ask, mid.Add(inset))
	}
	return decimal.Max(q.Bid, mid.Sub(inset))
}

// CheckEdge requires the limit price to be favorable to the trader relative
// to the expected fill price by at least MinEdgeBPS: a buy limit must sit
// below the ask, a sell limit above the bid. A zero MinEdgeBPS disables the
// check.
func (e *Engine) CheckEdge(q domain.Quote, side domain.OrderSide, limitPrice decimal.Decimal) CheckResult {
	if e.cfg.MinEdgeBPS.IsZero() {
		return pass("edge check disabled")
	}
	expected := q.ExpectedEntryPrice(side)
	if !expected.IsPositive() {
		return fail("no expected fill price for %s side %s", q.Symbol, side)
	}
	bps := decimal.NewFromInt(10000)
	edgeBPS := limitPrice.Sub(expected).Div(expected).Mul(bps)
	if side == domain.Buy {
		if edgeBPS.GreaterThan(e.cfg.MinEdgeBPS.Neg()) {
			return fail("buy edge %sbps above -%sbps threshold", edgeBPS.StringFixed(2), e.cfg.MinEdgeBPS.StringFixed(2))
		}
	} else {
		if edgeBPS.LessThan(e.cfg.MinEdgeBPS) {
			return fail("sell edge %sbps below %sbps threshold", edgeBPS.StringFixed(2), e.cfg.MinEdgeBPS.StringFixed(2))
		}
	}
	return pass("edge check passed")
}

// ---------------------------------------------------------------------------
// Position book
// ---------------------------------------------------------------------------

// UpdatePosition merges a fill into the position book. quantity is signed:
// positive for a buy, negative for a sell. Reductions and closes realize
// (fillPrice − avg) × |reduced qty| into both the daily and session PnL
// counters; a close removes the position. Only long positions are modelled —
// a fill that would take the net quantity negative is rejected.
func (e *Engine) UpdatePosition(symbol string, quantity int64, fillPrice decimal.Decimal) error {
	pos, exists := e.positions[symbol]
	if !exists {
		if quantity < 0 {
			return fmt.Errorf("sell of %d %s with no open position: short positions are not supported", -quantity, symbol)
		}
		if quantity == 0 {
			return nil
		}
		e.positions[symbol] = &domain.Position{
			Symbol:       symbol,
			Quantity:     quantity,
			AvgPrice:     fillPrice,
			CurrentPrice: fillPrice,
		}
		return nil
	}

	newQty := pos.Quantity + quantity
	switch {
	case newQty < 0:
		return fmt.Errorf("fill of %d %s would flip position (held %d) net short: short positions are not supported",
			quantity, symbol, pos.Quantity)

	case newQty == 0:
		realized := fillPrice.Sub(pos.AvgPrice).Mul(decimal.NewFromInt(-quantity))
		e.realize(realized)
		delete(e.positions, symbol)

	case quantity > 0:
		// Adding to a long: weighted-average the entry price.
		oldCost := pos.AvgPrice.Mul(decimal.NewFromInt(pos.Quantity))
		addCost := fillPrice.Mul(decimal.NewFromInt(quantity))
		pos.AvgPrice = oldCost.Add(addCost).Div(decimal.NewFromInt(newQty))
		pos.Quantity = newQty
		pos.UpdatePrice(fillPrice)

	default:
		// Reducing a long: realize on the reduced shares, entry price unchanged.
		realized := fillPrice.Sub(pos.AvgPrice).Mul(decimal.NewFromInt(-quantity))
		e.realize(realized)
		pos.Quantity = newQty
		pos.UpdatePrice(fillPrice)
	}

	return nil
}

func (e *Engine) realize(delta decimal.Decimal) {
	e.dailyPnL = e.dailyPnL.Add(delta)
	e.sessionPnL = e.sessionPnL.Add(delta)
}

// Position returns a copy of the position for symbol, if held.
func (e *Engine) Position(symbol string) (domain.Position, bool) {
	p, ok := e.positions[symbol]
	if !ok {
		return domain.Position{}, false
	}
	return *p, true
}

// Positions returns copies of all open positions.
func (e *Engine) Positions() []domain.Position {
	out := make([]domain.Position, 0, len(e.positions))
	for _, p := range e.positions {
		out = append(out, *p)
	}
	return out
}

// SetPosition overwrites the book entry for a symbol. Used by reconciliation,
// which treats the venue as authoritative.
func (e *Engine) SetPosition(symbol string, quantity int64, avgPrice decimal.Decimal) {
	e.positions[symbol] = &domain.Position{
		Symbol:       symbol,
		Quantity:     quantity,
		AvgPrice:     avgPrice,
		CurrentPrice: avgPrice,
	}
}

// RemovePosition drops the book entry for a symbol. Used by reconciliation.
func (e *Engine) RemovePosition(symbol string) {
	delete(e.positions, symbol)
}

// DailyPnL returns the engine's running daily realized PnL.
func (e *Engine) DailyPnL() decimal.Decimal { return e.dailyPnL }

// SessionPnL returns realized PnL accumulated in this process only.
func (e *Engine) SessionPnL() decimal.Decimal { return e.sessionPnL }

// SetSessionPnL overrides the session counter. Test hook.
func (e *Engine) SetSessionPnL(v decimal.Decimal) { e.sessionPnL = v }
