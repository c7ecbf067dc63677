package domain

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func TestQuoteDerivedValues(t *testing.T) {
	q := Quote{
		Symbol:    "AAPL",
		Bid:       dec("100.00"),
		Ask:       dec("100.20"),
		Last:      dec("100.10"),
		Timestamp: time.Date(2024, 1, 15, 10, 0, 0, 0, time.UTC),
	}

	if got, want := q.Mid(), dec("100.10"); !got.Equal(want) {
		t.Errorf("Mid() = %s, want %s", got, want)
	}
	if got, want := q.Spread(), dec("0.20"); !got.Equal(want) {
		t.Errorf("Spread() = %s, want %s", got, want)
	}

	// 0.20 / 100.10 * 10000 ≈ 19.98 bps
	gotBPS, _ := q.SpreadBPS().Float64()
	if gotBPS < 19.97 || gotBPS > 19.99 {
		t.Errorf("SpreadBPS() = %f, want ~19.98", gotBPS)
	}

	if got := q.ExpectedEntryPrice(Buy); !got.Equal(q.Ask) {
		t.Errorf("ExpectedEntryPrice(Buy) = %s, want ask %s", got, q.Ask)
	}
	if got := q.ExpectedEntryPrice(Sell); !got.Equal(q.Bid) {
		t.Errorf("ExpectedEntryPrice(Sell) = %s, want bid %s", got, q.Bid)
	}
}

func TestQuoteSpreadBPSZeroMid(t *testing.T) {
	q := Quote{Symbol: "DEAD"}
	if !q.SpreadBPS().IsZero() {
		t.Errorf("SpreadBPS() on zero quote = %s, want 0", q.SpreadBPS())
	}
	if q.Tradable() {
		t.Error("Tradable() on zero quote = true, want false")
	}
}

func TestQuoteTradable(t *testing.T) {
	cases := []struct {
		name     string
		bid, ask string
		want     bool
	}{
		{"both positive", "10.00", "10.05", true},
		{"bid only", "10.00", "0", true},
		{"ask only", "0", "10.05", true},
		{"no market", "0", "0", false},
	}
	for _, tc := range cases {
		q := Quote{Bid: dec(tc.bid), Ask: dec(tc.ask)}
		if got := q.Tradable(); got != tc.want {
			t.Errorf("%s: Tradable() = %v, want %v", tc.name, got, tc.want)
		}
	}
}

func TestPositionUpdatePrice(t *testing.T) {
	p := Position{
		Symbol:   "MSFT",
		Quantity: 10,
		AvgPrice: dec("300.00"),
	}
	p.UpdatePrice(dec("305.50"))

	if !p.CurrentPrice.Equal(dec("305.50")) {
		t.Errorf("CurrentPrice = %s, want 305.50", p.CurrentPrice)
	}
	if want := dec("55.00"); !p.UnrealizedPnL.Equal(want) {
		t.Errorf("UnrealizedPnL = %s, want %s", p.UnrealizedPnL, want)
	}
}

func TestPositionNotional(t *testing.T) {
	p := Position{Symbol: "TSLA", Quantity: 4, AvgPrice: dec("250.25")}
	if want := dec("1001.00"); !p.Notional().Equal(want) {
		t.Errorf("Notional() = %s, want %s", p.Notional(), want)
	}
}
