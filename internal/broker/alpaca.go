package broker

import (
	"context"
	"fmt"

	alpacaapi "github.com/alpacahq/alpaca-trade-api-go/v3/alpaca"
	"github.com/alpacahq/alpaca-trade-api-go/v3/marketdata"
	"github.com/shopspring/decimal"

	"tradegate/internal/domain"
)

// Compile-time interface check.
var _ Broker = (*AlpacaBroker)(nil)

// AlpacaBroker implements the Broker interface against the Alpaca trading
// and market-data APIs.
type AlpacaBroker struct {
	trading *alpacaapi.Client
	data    *marketdata.Client
	feed    string
}

// NewAlpacaBroker creates an AlpacaBroker from credentials and endpoints.
// feed selects the market-data feed ("iex" for free tier accounts).
func NewAlpacaBroker(apiKey, apiSecret, baseURL, dataURL, feed string) *AlpacaBroker {
	dataOpts := marketdata.ClientOpts{
		APIKey:    apiKey,
		APISecret: apiSecret,
	}
	if dataURL != "" {
		dataOpts.BaseURL = dataURL
	}

	return &AlpacaBroker{
		trading: alpacaapi.NewClient(alpacaapi.ClientOpts{
			APIKey:    apiKey,
			APISecret: apiSecret,
			BaseURL:   baseURL,
		}),
		data: marketdata.NewClient(dataOpts),
		feed: feed,
	}
}

// Name returns "alpaca".
func (b *AlpacaBroker) Name() string { return "alpaca" }

// SubmitOrder places a day order at Alpaca, keyed by the client order id.
func (b *AlpacaBroker) SubmitOrder(ctx context.Context, req OrderRequest) (*domain.Order, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	qty := decimal.NewFromInt(req.Quantity)
	por := alpacaapi.PlaceOrderRequest{
		Symbol:        req.Symbol,
		Qty:           &qty,
		Side:          alpacaapi.Side(req.Side),
		Type:          alpacaapi.OrderType(req.Type),
		TimeInForce:   alpacaapi.Day,
		ClientOrderID: req.ClientOrderID,
	}
	if req.Type == domain.Limit {
		limit := req.LimitPrice
		por.LimitPrice = &limit
	}

	order, err := b.trading.PlaceOrder(por)
	if err != nil {
		return nil, fmt.Errorf("placing order %s: %w", req.ClientOrderID, err)
	}
	return convertOrder(order), nil
}

// GetOrderStatus returns the current state of an order by its Alpaca id.
func (b *AlpacaBroker) GetOrderStatus(ctx context.Context, orderID string) (*domain.Order, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	order, err := b.trading.GetOrder(orderID)
	if err != nil {
		return nil, fmt.Errorf("getting order %s: %w", orderID, err)
	}
	return convertOrder(order), nil
}

// OrderExists reports whether Alpaca knows an order under this client order
// id. Lookup failures (including 404s) read as "not found".
func (b *AlpacaBroker) OrderExists(ctx context.Context, clientOrderID string) bool {
	if ctx.Err() != nil {
		return false
	}
	_, err := b.trading.GetOrderByClientOrderID(clientOrderID)
	return err == nil
}

// GetOpenOrders returns the client order ids of all open orders.
func (b *AlpacaBroker) GetOpenOrders(ctx context.Context) (map[string]struct{}, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	orders, err := b.trading.GetOrders(alpacaapi.GetOrdersRequest{
		Status: "open",
		Limit:  500,
	})
	if err != nil {
		return nil, fmt.Errorf("listing open orders: %w", err)
	}

	keys := make(map[string]struct{}, len(orders))
	for i := range orders {
		if id := orders[i].ClientOrderID; id != "" {
			keys[id] = struct{}{}
		}
	}
	return keys, nil
}

// GetPositions returns the venue's authoritative symbol → position map.
func (b *AlpacaBroker) GetPositions(ctx context.Context) (map[string]PositionInfo, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	positions, err := b.trading.GetPositions()
	if err != nil {
		return nil, fmt.Errorf("listing positions: %w", err)
	}

	out := make(map[string]PositionInfo, len(positions))
	for i := range positions {
		p := positions[i]
		out[p.Symbol] = PositionInfo{
			Quantity: p.Qty.IntPart(),
			AvgPrice: p.AvgEntryPrice,
		}
	}
	return out, nil
}

// GetQuote returns the latest NBBO snapshot, with the last trade price when
// available.
func (b *AlpacaBroker) GetQuote(ctx context.Context, symbol string) (domain.Quote, error) {
	if err := ctx.Err(); err != nil {
		return domain.Quote{}, err
	}
	q, err := b.data.GetLatestQuote(symbol, marketdata.GetLatestQuoteRequest{
		Feed: marketdata.Feed(b.feed),
	})
	if err != nil {
		return domain.Quote{}, fmt.Errorf("getting quote for %s: %w", symbol, err)
	}

	quote := domain.Quote{
		Symbol:    symbol,
		Bid:       decimal.NewFromFloat(q.BidPrice),
		Ask:       decimal.NewFromFloat(q.AskPrice),
		Timestamp: q.Timestamp,
	}

	// Last trade is best-effort; eligibility falls back to the midpoint.
	if trade, err := b.data.GetLatestTrade(symbol, marketdata.GetLatestTradeRequest{
		Feed: marketdata.Feed(b.feed),
	}); err == nil {
		quote.Last = decimal.NewFromFloat(trade.Price)
	}

	return quote, nil
}

// CancelOrder requests cancellation by Alpaca order id.
func (b *AlpacaBroker) CancelOrder(ctx context.Context, orderID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := b.trading.CancelOrder(orderID); err != nil {
		return fmt.Errorf("canceling order %s: %w", orderID, err)
	}
	return nil
}

// ReplaceOrder adjusts limit price and optionally quantity of an open order.
func (b *AlpacaBroker) ReplaceOrder(ctx context.Context, orderID string, newLimitPrice decimal.Decimal, newQty int64) (*domain.Order, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	req := alpacaapi.ReplaceOrderRequest{
		LimitPrice: &newLimitPrice,
	}
	if newQty > 0 {
		qty := decimal.NewFromInt(newQty)
		req.Qty = &qty
	}
	order, err := b.trading.ReplaceOrder(orderID, req)
	if err != nil {
		return nil, fmt.Errorf("replacing order %s: %w", orderID, err)
	}
	return convertOrder(order), nil
}

// convertOrder maps an Alpaca order onto the domain model.
func convertOrder(o *alpacaapi.Order) *domain.Order {
	out := &domain.Order{
		ID:            o.ID,
		ClientOrderID: o.ClientOrderID,
		Symbol:        o.Symbol,
		Side:          domain.OrderSide(o.Side),
		Type:          domain.OrderType(o.Type),
		Status:        convertStatus(o.Status),
		SubmittedAt:   o.SubmittedAt,
	}
	if o.Qty != nil {
		out.Quantity = o.Qty.IntPart()
	}
	if o.LimitPrice != nil {
		out.LimitPrice = *o.LimitPrice
	}
	if o.FilledAt != nil {
		out.FilledAt = *o.FilledAt
	}
	if o.FilledAvgPrice != nil {
		out.FilledPrice = *o.FilledAvgPrice
	}
	return out
}

func convertStatus(status string) domain.OrderStatus {
	switch status {
	case "filled":
		return domain.OrderFilled
	case "canceled", "expired", "done_for_day":
		return domain.OrderCanceled
	case "rejected":
		return domain.OrderRejected
	default:
		// new, accepted, partially_filled, pending_* all count as pending.
		return domain.OrderPending
	}
}
