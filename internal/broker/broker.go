// Package broker defines the venue adapter contract and provides the Alpaca
// implementation and an in-memory simulator.
package broker

import (
	"context"

	"github.com/shopspring/decimal"

	"tradegate/internal/domain"
)

// OrderRequest describes one order to be placed at the venue. ClientOrderID
// is the deterministic idempotency key; the venue deduplicates on it.
type OrderRequest struct {
	Symbol        string
	Side          domain.OrderSide
	Quantity      int64
	ClientOrderID string
	Type          domain.OrderType
	LimitPrice    decimal.Decimal // ignored for market orders
}

// PositionInfo is the venue's view of one held position.
type PositionInfo struct {
	Quantity int64
	AvgPrice decimal.Decimal
}

// Broker abstracts the trading venue. Calls either return or fail; no
// timeout or retry policy lives behind this interface — that is the
// adapter's own concern.
type Broker interface {
	// Name returns the broker identifier (e.g. "alpaca", "sim").
	Name() string

	// SubmitOrder places an order. The venue may report it already filled.
	SubmitOrder(ctx context.Context, req OrderRequest) (*domain.Order, error)

	// GetOrderStatus returns the current state of an order by venue id.
	GetOrderStatus(ctx context.Context, orderID string) (*domain.Order, error)

	// OrderExists reports whether any order with the given client order id is
	// known to the venue. Lookup failures read as "not found".
	OrderExists(ctx context.Context, clientOrderID string) bool

	// GetOpenOrders returns the client order ids of all currently open orders.
	GetOpenOrders(ctx context.Context) (map[string]struct{}, error)

	// GetPositions returns the venue's authoritative position map.
	GetPositions(ctx context.Context) (map[string]PositionInfo, error)

	// GetQuote returns the latest NBBO snapshot for a symbol.
	GetQuote(ctx context.Context, symbol string) (domain.Quote, error)

	// CancelOrder requests cancellation of an open order by venue id.
	CancelOrder(ctx context.Context, orderID string) error

	// ReplaceOrder adjusts the limit price and optionally the quantity
	// (newQty ≤ 0 keeps the existing quantity) of an open order.
	ReplaceOrder(ctx context.Context, orderID string, newLimitPrice decimal.Decimal, newQty int64) (*domain.Order, error)
}
