package broker

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"

	"tradegate/internal/domain"
)

func TestAlpacaBrokerName(t *testing.T) {
	b := NewAlpacaBroker("key", "secret", "https://paper-api.alpaca.markets", "", "iex")
	if got := b.Name(); got != "alpaca" {
		t.Errorf("AlpacaBroker.Name() = %q, want %q", got, "alpaca")
	}
}

func TestSimulatorSubmitFillsImmediately(t *testing.T) {
	b := NewSimulatorBroker()
	b.SetQuote(domain.Quote{
		Symbol: "AAPL",
		Bid:    decimal.RequireFromString("100.00"),
		Ask:    decimal.RequireFromString("100.10"),
	})

	order, err := b.SubmitOrder(context.Background(), OrderRequest{
		Symbol:        "AAPL",
		Side:          domain.Buy,
		Quantity:      10,
		ClientOrderID: "SMA_AAPL_buy_20240115100000",
		Type:          domain.Market,
	})
	if err != nil {
		t.Fatalf("SubmitOrder() = %v", err)
	}
	if order.Status != domain.OrderFilled {
		t.Errorf("Status = %s, want filled", order.Status)
	}
	// Market buy fills at the ask.
	if !order.FilledPrice.Equal(decimal.RequireFromString("100.10")) {
		t.Errorf("FilledPrice = %s, want 100.10", order.FilledPrice)
	}
	if !b.OrderExists(context.Background(), "SMA_AAPL_buy_20240115100000") {
		t.Error("OrderExists = false after submit")
	}
}

func TestSimulatorRejectsDuplicateClientOrderID(t *testing.T) {
	b := NewSimulatorBroker()
	req := OrderRequest{
		Symbol: "AAPL", Side: domain.Buy, Quantity: 1,
		ClientOrderID: "dup-key", Type: domain.Market,
	}
	if _, err := b.SubmitOrder(context.Background(), req); err != nil {
		t.Fatal(err)
	}
	if _, err := b.SubmitOrder(context.Background(), req); err == nil {
		t.Error("duplicate client order id accepted")
	}
	if b.SubmitCalls != 2 {
		t.Errorf("SubmitCalls = %d, want 2", b.SubmitCalls)
	}
}

func TestSimulatorCancelAndReplace(t *testing.T) {
	b := NewSimulatorBroker()
	b.AddOpenOrder("open-key")
	ctx := context.Background()

	open, err := b.GetOpenOrders(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := open["open-key"]; !ok {
		t.Fatal("seeded open order not listed")
	}

	var orderID string
	for id, o := range b.orders {
		if o.ClientOrderID == "open-key" {
			orderID = id
		}
	}

	replaced, err := b.ReplaceOrder(ctx, orderID, decimal.RequireFromString("99.50"), 7)
	if err != nil {
		t.Fatalf("ReplaceOrder() = %v", err)
	}
	if !replaced.LimitPrice.Equal(decimal.RequireFromString("99.50")) || replaced.Quantity != 7 {
		t.Errorf("replaced order = %d@%s, want 7@99.50", replaced.Quantity, replaced.LimitPrice)
	}

	if err := b.CancelOrder(ctx, orderID); err != nil {
		t.Fatalf("CancelOrder() = %v", err)
	}
	got, _ := b.GetOrderStatus(ctx, orderID)
	if got.Status != domain.OrderCanceled {
		t.Errorf("Status after cancel = %s, want canceled", got.Status)
	}
	// A canceled order is no longer open.
	open, _ = b.GetOpenOrders(ctx)
	if len(open) != 0 {
		t.Errorf("open orders after cancel = %d, want 0", len(open))
	}
}

func TestConvertStatusMapping(t *testing.T) {
	cases := []struct {
		in   string
		want domain.OrderStatus
	}{
		{"new", domain.OrderPending},
		{"accepted", domain.OrderPending},
		{"partially_filled", domain.OrderPending},
		{"filled", domain.OrderFilled},
		{"canceled", domain.OrderCanceled},
		{"expired", domain.OrderCanceled},
		{"rejected", domain.OrderRejected},
	}
	for _, tc := range cases {
		if got := convertStatus(tc.in); got != tc.want {
			t.Errorf("convertStatus(%q) = %s, want %s", tc.in, got, tc.want)
		}
	}
}
