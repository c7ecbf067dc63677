// Package domain defines the core types shared across the trading system:
// market data, signals, orders, positions, and quotes.
package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// OrderSide is the direction of an order.
type OrderSide string

const (
	Buy  OrderSide = "buy"
	Sell OrderSide = "sell"
)

// OrderType distinguishes market from limit orders.
type OrderType string

const (
	Market OrderType = "market"
	Limit  OrderType = "limit"
)

// OrderStatus is the lifecycle state of an order.
type OrderStatus string

const (
	OrderPending  OrderStatus = "pending"
	OrderFilled   OrderStatus = "filled"
	OrderRejected OrderStatus = "rejected"
	OrderCanceled OrderStatus = "canceled"
)

// Bar is a single OHLCV bar for one symbol.
type Bar struct {
	Symbol    string
	Timestamp time.Time
	Open      decimal.Decimal
	High      decimal.Decimal
	Low       decimal.Decimal
	Close     decimal.Decimal
	Volume    int64
}

// Signal is a trading intent produced by a strategy. The timestamp is the
// source bar's timestamp, not wall-clock time; it feeds the idempotency key.
type Signal struct {
	Symbol    string
	Side      OrderSide
	Timestamp time.Time
	Reason    string
	Price     decimal.Decimal // reference price (latest close); zero if unknown
	HasPrice  bool
}

// Order is a broker order as this system sees it.
type Order struct {
	ID            string
	ClientOrderID string
	Symbol        string
	Side          OrderSide
	Type          OrderType
	Quantity      int64
	LimitPrice    decimal.Decimal // zero for market orders
	Status        OrderStatus
	SubmittedAt   time.Time
	FilledAt      time.Time
	FilledPrice   decimal.Decimal
	RejectReason  string
}

// Position is a currently held long position.
type Position struct {
	Symbol        string
	Quantity      int64
	AvgPrice      decimal.Decimal
	CurrentPrice  decimal.Decimal
	UnrealizedPnL decimal.Decimal
}

// UpdatePrice sets the mark price and recomputes unrealized PnL.
func (p *Position) UpdatePrice(price decimal.Decimal) {
	p.CurrentPrice = price
	p.UnrealizedPnL = price.Sub(p.AvgPrice).Mul(decimal.NewFromInt(p.Quantity))
}

// Notional returns |quantity × avg entry price|.
func (p *Position) Notional() decimal.Decimal {
	return p.AvgPrice.Mul(decimal.NewFromInt(p.Quantity)).Abs()
}

// Quote is a point-in-time NBBO snapshot for a symbol. Quotes are ephemeral
// and never persisted.
type Quote struct {
	Symbol    string
	Bid       decimal.Decimal
	Ask       decimal.Decimal
	Last      decimal.Decimal
	Timestamp time.Time
}

var bps = decimal.NewFromInt(10000)

// Mid returns (bid+ask)/2.
func (q Quote) Mid() decimal.Decimal {
	return q.Bid.Add(q.Ask).Div(decimal.NewFromInt(2))
}

// Spread returns ask−bid.
func (q Quote) Spread() decimal.Decimal {
	return q.Ask.Sub(q.Bid)
}

// SpreadBPS returns the spread as basis points of the midpoint. Returns zero
// when the midpoint is zero.
func (q Quote) SpreadBPS() decimal.Decimal {
	mid := q.Mid()
	if mid.IsZero() {
		return decimal.Zero
	}
	return q.Spread().Div(mid).Mul(bps)
}

// ExpectedEntryPrice is the price a marketable order is expected to fill at:
// the ask for a buy, the bid for a sell.
func (q Quote) ExpectedEntryPrice(side OrderSide) decimal.Decimal {
	if side == Buy {
		return q.Ask
	}
	return q.Bid
}

// Tradable reports whether the quote describes a market that can be traded
// against (at least one positive side).
func (q Quote) Tradable() bool {
	return q.Bid.IsPositive() || q.Ask.IsPositive()
}
