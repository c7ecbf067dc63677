package pipeline

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"tradegate/internal/audit"
	"tradegate/internal/broker"
	"tradegate/internal/config"
	"tradegate/internal/domain"
	"tradegate/internal/risk"
	"tradegate/internal/state"
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

// captureRecorder collects audit records in memory.
type captureRecorder struct {
	orders []audit.OrderRecord
	fills  []audit.FillRecord
	trades []audit.TradeRecord
}

func (c *captureRecorder) RecordOrder(_ context.Context, rec audit.OrderRecord) error {
	c.orders = append(c.orders, rec)
	return nil
}

func (c *captureRecorder) RecordFill(_ context.Context, rec audit.FillRecord) error {
	c.fills = append(c.fills, rec)
	return nil
}

func (c *captureRecorder) RecordTrade(_ context.Context, rec audit.TradeRecord) error {
	c.trades = append(c.trades, rec)
	return nil
}

func (c *captureRecorder) Close() error { return nil }

type fixture struct {
	broker    *broker.SimulatorBroker
	guards    *risk.Engine
	st        *state.State
	statePath string
	rec       *captureRecorder
	pipe      *Pipeline
	trading   config.Trading
	riskCfg   config.Risk
}

func testRisk() config.Risk {
	return config.Risk{
		MaxPositions:        5,
		MaxOrderQuantity:    100,
		MaxDailyLoss:        dec("500"),
		MaxOrderNotional:    dec("10000"),
		MaxExposureNotional: dec("50000"),
		MaxSpreadBPS:        dec("25"),
		MinEdgeBPS:          dec("2"),
		MinPrice:            dec("2.00"),
		MaxPrice:            dec("1000.00"),
		MinAvgVolume:        1_000_000,
		AllowedSymbols:      []string{"AAPL", "MSFT"},
	}
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		broker:    broker.NewSimulatorBroker(),
		st:        state.New("test-run"),
		statePath: filepath.Join(t.TempDir(), "state.json"),
		rec:       &captureRecorder{},
		trading: config.Trading{
			StrategyName:   "SMA",
			UseLimitOrders: true,
		},
		riskCfg: testRisk(),
	}
	f.broker.SetQuote(domain.Quote{
		Symbol: "AAPL",
		Bid:    dec("100.00"),
		Ask:    dec("100.20"),
		Last:   dec("100.10"),
	})
	f.rebuild()
	return f
}

// rebuild recreates guards and pipeline, simulating a process restart around
// the shared broker and state file.
func (f *fixture) rebuild() {
	f.guards = risk.NewEngine(f.riskCfg, f.st.DailyPnL(""), nil)
	f.pipe = New(f.broker, f.guards, f.st, f.statePath, f.rec, nil, f.trading, nil)
}

func buySignal() domain.Signal {
	return domain.Signal{
		Symbol:    "AAPL",
		Side:      domain.Buy,
		Timestamp: time.Date(2024, 1, 15, 10, 30, 45, 0, time.UTC),
		Reason:    "golden cross",
		Price:     dec("100.10"),
		HasPrice:  true,
	}
}

func TestSubmitHappyPath(t *testing.T) {
	f := newFixture(t)

	res, err := f.pipe.Submit(context.Background(), buySignal(), 10, 2_000_000)
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if !res.Success {
		t.Fatalf("rejected: %s", res.Reason)
	}
	if f.broker.SubmitCalls != 1 {
		t.Errorf("venue submit calls = %d, want 1", f.broker.SubmitCalls)
	}
	if res.Order == nil || res.Order.Status != domain.OrderFilled {
		t.Fatalf("order = %+v, want filled", res.Order)
	}
	// Limit inset a quarter spread from mid: min(100.20, 100.10+0.05).
	if !res.Order.LimitPrice.Equal(dec("100.15")) {
		t.Errorf("limit price = %s, want 100.15", res.Order.LimitPrice)
	}
	if !f.st.HasSubmitted(res.ClientOrderID) {
		t.Error("submitted key missing from state")
	}
	if _, err := os.Stat(f.statePath); err != nil {
		t.Error("state file not persisted after submit")
	}
	pos, ok := f.guards.Position("AAPL")
	if !ok || pos.Quantity != 10 {
		t.Errorf("position = %+v, want 10 shares", pos)
	}
	if len(f.rec.orders) != 1 || f.rec.orders[0].Outcome != audit.OutcomeSubmitted {
		t.Errorf("order audit records = %+v", f.rec.orders)
	}
	if len(f.rec.fills) != 1 {
		t.Fatalf("fill audit records = %d, want 1", len(f.rec.fills))
	}
}

func TestFillWritesTradeRecord(t *testing.T) {
	f := newFixture(t)

	res, err := f.pipe.Submit(context.Background(), buySignal(), 10, 2_000_000)
	if err != nil || !res.Success {
		t.Fatalf("Submit: %v %s", err, res.Reason)
	}

	if len(f.rec.trades) != 1 {
		t.Fatalf("trade audit records = %d, want 1", len(f.rec.trades))
	}
	trade := f.rec.trades[0]
	if trade.ClientOrderID != res.ClientOrderID {
		t.Errorf("trade key = %q, want %q", trade.ClientOrderID, res.ClientOrderID)
	}
	if trade.SignalReason != "golden cross" {
		t.Errorf("trade signal reason = %q, want the originating signal's reason", trade.SignalReason)
	}
	if !trade.FillPrice.Equal(res.Order.FilledPrice) {
		t.Errorf("trade fill price = %s, want %s", trade.FillPrice, res.Order.FilledPrice)
	}
	if trade.Costs == nil {
		t.Fatal("trade record carries no cost metrics")
	}
	if !trade.Costs.ExpectedPrice.Equal(dec("100.20")) {
		t.Errorf("trade expected price = %s, want the ask at submit", trade.Costs.ExpectedPrice)
	}
}

func TestSubmitIdempotentAcrossRestart(t *testing.T) {
	f := newFixture(t)
	sig := buySignal()

	first, err := f.pipe.Submit(context.Background(), sig, 10, 2_000_000)
	if err != nil || !first.Success {
		t.Fatalf("first submit failed: %v %s", err, first.Reason)
	}

	// Restart: reload state from disk, fresh guards and pipeline, same venue.
	f.st = state.Load(f.statePath)
	f.rebuild()

	second, err := f.pipe.Submit(context.Background(), sig, 10, 2_000_000)
	if err != nil {
		t.Fatalf("second submit: %v", err)
	}
	if second.Success {
		t.Fatal("duplicate signal submitted twice")
	}
	if second.Category != CategoryDuplicate {
		t.Errorf("category = %q, want %q", second.Category, CategoryDuplicate)
	}
	if f.broker.SubmitCalls != 1 {
		t.Errorf("venue submit calls = %d, want exactly 1", f.broker.SubmitCalls)
	}
	if first.ClientOrderID != second.ClientOrderID {
		t.Errorf("key not deterministic: %q vs %q", first.ClientOrderID, second.ClientOrderID)
	}
}

func TestSubmitHealsVenueSideDuplicate(t *testing.T) {
	f := newFixture(t)
	sig := buySignal()
	key := state.BuildClientOrderID(sig.Symbol, string(sig.Side), sig.Timestamp, "SMA")

	// The venue knows the order but local state lost it (crash between venue
	// accept and persist).
	f.broker.AddOpenOrder(key)

	res, err := f.pipe.Submit(context.Background(), sig, 10, 2_000_000)
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if res.Success || res.Category != CategoryDuplicate {
		t.Fatalf("res = %+v, want duplicate rejection", res)
	}
	if !f.st.HasSubmitted(key) {
		t.Error("key not healed into local state")
	}
	reloaded := state.Load(f.statePath)
	if !reloaded.HasSubmitted(key) {
		t.Error("healed key not persisted")
	}
	if f.broker.SubmitCalls != 0 {
		t.Errorf("venue submit calls = %d, want 0", f.broker.SubmitCalls)
	}
}

func TestSubmitShortCircuitOrder(t *testing.T) {
	f := newFixture(t)
	f.riskCfg.SymbolBlacklist = []string{"AAPL"}
	f.rebuild()

	// Fails eligibility (blacklist) and would fail notional (quantity 99 ×
	// 100.10 > 500 if notional were tightened); eligibility must win.
	f.riskCfg.MaxOrderNotional = dec("500")
	f.rebuild()

	res, err := f.pipe.Submit(context.Background(), buySignal(), 99, 2_000_000)
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if res.Success {
		t.Fatal("blacklisted signal submitted")
	}
	if res.Category != CategoryRisk {
		t.Errorf("category = %q, want %q (first failing check wins)", res.Category, CategoryRisk)
	}
	if !strings.Contains(res.Reason, "blacklisted") {
		t.Errorf("reason = %q, want the eligibility failure", res.Reason)
	}
	if f.broker.SubmitCalls != 0 {
		t.Errorf("venue submit calls = %d, want 0", f.broker.SubmitCalls)
	}
}

func TestSubmitDryRunTouchesNothing(t *testing.T) {
	f := newFixture(t)
	f.trading.DryRun = true
	f.rebuild()

	// Persist a baseline state file to compare byte-for-byte.
	if err := state.Save(f.st, f.statePath); err != nil {
		t.Fatalf("Save: %v", err)
	}
	before, err := os.ReadFile(f.statePath)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}

	res, err := f.pipe.Submit(context.Background(), buySignal(), 10, 2_000_000)
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if !res.Success {
		t.Fatalf("dry run rejected: %s", res.Reason)
	}
	if f.broker.SubmitCalls != 0 {
		t.Errorf("venue submit calls = %d, want 0", f.broker.SubmitCalls)
	}
	after, err := os.ReadFile(f.statePath)
	if err != nil {
		t.Fatalf("ReadFile after: %v", err)
	}
	if string(before) != string(after) {
		t.Error("state file changed during dry run")
	}
	if f.st.HasSubmitted(res.ClientOrderID) {
		t.Error("dry run marked key as submitted")
	}
	if len(f.rec.orders) != 0 || len(f.rec.fills) != 0 || len(f.rec.trades) != 0 {
		t.Errorf("dry run wrote audit records: %d orders, %d fills, %d trades",
			len(f.rec.orders), len(f.rec.fills), len(f.rec.trades))
	}
}

func TestSubmitSlippageArithmetic(t *testing.T) {
	f := newFixture(t)

	res, err := f.pipe.Submit(context.Background(), buySignal(), 10, 2_000_000)
	if err != nil || !res.Success {
		t.Fatalf("submit failed: %v %s", err, res.Reason)
	}
	if len(f.rec.fills) != 1 {
		t.Fatalf("fills = %d, want 1", len(f.rec.fills))
	}
	costs := f.rec.fills[0].Costs
	if costs == nil {
		t.Fatal("fill record has no cost metrics")
	}
	// Filled at the 100.15 limit against an expected entry of 100.20 (ask).
	if !costs.SlippageAbs.Equal(dec("-0.05")) {
		t.Errorf("slippage_abs = %s, want -0.05", costs.SlippageAbs)
	}
	if costs.SlippageBPS.Sub(dec("-4.99")).Abs().GreaterThan(dec("0.01")) {
		t.Errorf("slippage_bps = %s, want -4.99 ±0.01", costs.SlippageBPS)
	}
}

func TestSubmitBrokerError(t *testing.T) {
	f := newFixture(t)
	f.broker.SubmitErr = context.DeadlineExceeded

	res, err := f.pipe.Submit(context.Background(), buySignal(), 10, 2_000_000)
	if err != nil {
		t.Fatalf("Submit should not error on broker failure: %v", err)
	}
	if res.Success {
		t.Fatal("submission succeeded despite broker error")
	}
	if res.Category != CategoryBrokerError {
		t.Errorf("category = %q, want %q", res.Category, CategoryBrokerError)
	}
	if f.st.HasSubmitted(res.ClientOrderID) {
		t.Error("failed submission must not consume the idempotency key")
	}
}

func TestSubmitRejectionCategories(t *testing.T) {
	cases := []struct {
		name     string
		mutate   func(*fixture)
		quantity int64
		category string
	}{
		{
			name:     "quantity",
			mutate:   func(f *fixture) {},
			quantity: 0,
			category: CategoryQuantity,
		},
		{
			name: "notional",
			mutate: func(f *fixture) {
				f.riskCfg.MaxOrderNotional = dec("500")
				f.rebuild()
			},
			quantity: 50,
			category: CategoryNotional,
		},
		{
			name: "exposure",
			mutate: func(f *fixture) {
				f.riskCfg.MaxExposureNotional = dec("1500")
				f.rebuild()
				f.guards.SetPosition("MSFT", 10, dec("100"))
			},
			quantity: 10,
			category: CategoryExposure,
		},
		{
			name: "spread",
			mutate: func(f *fixture) {
				f.broker.SetQuote(domain.Quote{
					Symbol: "AAPL",
					Bid:    dec("100.00"),
					Ask:    dec("101.00"),
					Last:   dec("100.50"),
				})
			},
			quantity: 10,
			category: CategorySpread,
		},
		{
			name: "edge",
			mutate: func(f *fixture) {
				f.riskCfg.MinEdgeBPS = dec("10")
				f.rebuild()
			},
			quantity: 10,
			category: CategoryEdge,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(t)
			tc.mutate(f)
			res, err := f.pipe.Submit(context.Background(), buySignal(), tc.quantity, 2_000_000)
			if err != nil {
				t.Fatalf("Submit: %v", err)
			}
			if res.Success {
				t.Fatal("expected rejection")
			}
			if res.Category != tc.category {
				t.Errorf("category = %q (%s), want %q", res.Category, res.Reason, tc.category)
			}
			if f.broker.SubmitCalls != 0 {
				t.Errorf("venue submit calls = %d, want 0", f.broker.SubmitCalls)
			}
		})
	}
}

func TestSubmitSellRealizesPnL(t *testing.T) {
	f := newFixture(t)
	f.guards.SetPosition("AAPL", 10, dec("100.00"))

	sell := buySignal()
	sell.Side = domain.Sell

	res, err := f.pipe.Submit(context.Background(), sell, 10, 2_000_000)
	if err != nil || !res.Success {
		t.Fatalf("sell failed: %v %s", err, res.Reason)
	}
	// Sell limit max(100.00, 100.10−0.05) = 100.05; realized (100.05−100)×10.
	if !res.Order.FilledPrice.Equal(dec("100.05")) {
		t.Fatalf("fill price = %s, want 100.05", res.Order.FilledPrice)
	}
	if _, held := f.guards.Position("AAPL"); held {
		t.Error("closed position still in book")
	}
	if got := f.guards.DailyPnL(); !got.Equal(dec("0.5")) {
		t.Errorf("daily pnl = %s, want 0.5", got)
	}
	// Realized PnL reaches the persisted state.
	reloaded := state.Load(f.statePath)
	if got := reloaded.DailyPnL(""); !got.Equal(dec("0.5")) {
		t.Errorf("persisted daily pnl = %s, want 0.5", got)
	}
}
