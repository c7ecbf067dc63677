package broker

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"tradegate/internal/domain"
)

// Compile-time interface check.
var _ Broker = (*SimulatorBroker)(nil)

// SimulatorBroker implements the Broker interface in memory for sim mode and
// tests. Orders fill instantly; quotes and positions are seeded by the
// caller.
type SimulatorBroker struct {
	orders      map[string]*domain.Order // venue order id → order
	clientIDs   map[string]string        // client order id → venue order id
	quotes      map[string]domain.Quote
	positions   map[string]PositionInfo
	SubmitCalls int

	// SubmitErr, when set, makes SubmitOrder fail — adapter-error paths in
	// tests.
	SubmitErr error

	// Err, when set, makes the query methods fail — reconciliation error
	// paths in tests.
	Err error
}

// NewSimulatorBroker creates an empty simulator.
func NewSimulatorBroker() *SimulatorBroker {
	return &SimulatorBroker{
		orders:    make(map[string]*domain.Order),
		clientIDs: make(map[string]string),
		quotes:    make(map[string]domain.Quote),
		positions: make(map[string]PositionInfo),
	}
}

// Name returns "sim".
func (b *SimulatorBroker) Name() string { return "sim" }

// SetQuote seeds the quote returned for a symbol.
func (b *SimulatorBroker) SetQuote(q domain.Quote) {
	b.quotes[q.Symbol] = q
}

// SetPosition seeds the venue position for a symbol.
func (b *SimulatorBroker) SetPosition(symbol string, qty int64, avgPrice decimal.Decimal) {
	b.positions[symbol] = PositionInfo{Quantity: qty, AvgPrice: avgPrice}
}

// AddOpenOrder seeds an open order under the given client order id and
// returns the venue order id.
func (b *SimulatorBroker) AddOpenOrder(clientOrderID string) string {
	id := uuid.NewString()
	b.orders[id] = &domain.Order{
		ID:            id,
		ClientOrderID: clientOrderID,
		Status:        domain.OrderPending,
	}
	b.clientIDs[clientOrderID] = id
	return id
}

// SubmitOrder records the order and fills it immediately at the limit price,
// or at the quote's expected entry price for market orders.
func (b *SimulatorBroker) SubmitOrder(_ context.Context, req OrderRequest) (*domain.Order, error) {
	b.SubmitCalls++
	if b.SubmitErr != nil {
		return nil, b.SubmitErr
	}
	if _, dup := b.clientIDs[req.ClientOrderID]; dup {
		return nil, fmt.Errorf("order with client order id %s already exists", req.ClientOrderID)
	}

	fillPrice := req.LimitPrice
	if req.Type == domain.Market || fillPrice.IsZero() {
		if q, ok := b.quotes[req.Symbol]; ok {
			fillPrice = q.ExpectedEntryPrice(req.Side)
		} else {
			fillPrice = decimal.NewFromInt(100)
		}
	}

	now := time.Now()
	order := &domain.Order{
		ID:            uuid.NewString(),
		ClientOrderID: req.ClientOrderID,
		Symbol:        req.Symbol,
		Side:          req.Side,
		Type:          req.Type,
		Quantity:      req.Quantity,
		LimitPrice:    req.LimitPrice,
		Status:        domain.OrderFilled,
		SubmittedAt:   now,
		FilledAt:      now,
		FilledPrice:   fillPrice,
	}
	b.orders[order.ID] = order
	b.clientIDs[req.ClientOrderID] = order.ID
	return order, nil
}

// GetOrderStatus looks up an order by venue id.
func (b *SimulatorBroker) GetOrderStatus(_ context.Context, orderID string) (*domain.Order, error) {
	o, ok := b.orders[orderID]
	if !ok {
		return nil, fmt.Errorf("order %s not found", orderID)
	}
	cp := *o
	return &cp, nil
}

// OrderExists reports whether a client order id has been seen.
func (b *SimulatorBroker) OrderExists(_ context.Context, clientOrderID string) bool {
	_, ok := b.clientIDs[clientOrderID]
	return ok
}

// GetOpenOrders returns client order ids of all pending orders.
func (b *SimulatorBroker) GetOpenOrders(_ context.Context) (map[string]struct{}, error) {
	if b.Err != nil {
		return nil, b.Err
	}
	keys := make(map[string]struct{})
	for _, o := range b.orders {
		if o.Status == domain.OrderPending && o.ClientOrderID != "" {
			keys[o.ClientOrderID] = struct{}{}
		}
	}
	return keys, nil
}

// GetPositions returns the seeded position map.
func (b *SimulatorBroker) GetPositions(_ context.Context) (map[string]PositionInfo, error) {
	if b.Err != nil {
		return nil, b.Err
	}
	out := make(map[string]PositionInfo, len(b.positions))
	for sym, p := range b.positions {
		out[sym] = p
	}
	return out, nil
}

// GetQuote returns the seeded quote for a symbol.
func (b *SimulatorBroker) GetQuote(_ context.Context, symbol string) (domain.Quote, error) {
	q, ok := b.quotes[symbol]
	if !ok {
		return domain.Quote{}, fmt.Errorf("no quote for %s", symbol)
	}
	return q, nil
}

// CancelOrder marks a pending order canceled.
func (b *SimulatorBroker) CancelOrder(_ context.Context, orderID string) error {
	o, ok := b.orders[orderID]
	if !ok {
		return fmt.Errorf("order %s not found", orderID)
	}
	if o.Status != domain.OrderPending {
		return fmt.Errorf("order %s is %s, not cancelable", orderID, o.Status)
	}
	o.Status = domain.OrderCanceled
	return nil
}

// ReplaceOrder updates the limit price and optionally quantity of a pending
// order.
func (b *SimulatorBroker) ReplaceOrder(_ context.Context, orderID string, newLimitPrice decimal.Decimal, newQty int64) (*domain.Order, error) {
	o, ok := b.orders[orderID]
	if !ok {
		return nil, fmt.Errorf("order %s not found", orderID)
	}
	if o.Status != domain.OrderPending {
		return nil, fmt.Errorf("order %s is %s, not replaceable", orderID, o.Status)
	}
	o.LimitPrice = newLimitPrice
	if newQty > 0 {
		o.Quantity = newQty
	}
	cp := *o
	return &cp, nil
}
