package main

import (
	"bytes"
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/shopspring/decimal"

	"tradegate/internal/audit"
	"tradegate/internal/broker"
	"tradegate/internal/config"
	"tradegate/internal/data"
	"tradegate/internal/engine"
	"tradegate/internal/pipeline"
	"tradegate/internal/risk"
	"tradegate/internal/state"
	"tradegate/internal/strategy"
)

func newManagementEngine(t *testing.T) (*engine.Engine, *broker.SimulatorBroker) {
	t.Helper()

	cfg := config.Default()
	cfg.Storage.StateFile = filepath.Join(t.TempDir(), "state.json")
	cfg.Risk.MaxOrderQuantity = 100
	cfg.Risk.MaxOrderNotional = decimal.RequireFromString("10000")
	cfg.Risk.MaxExposureNotional = decimal.RequireFromString("50000")

	b := broker.NewSimulatorBroker()
	strat, err := strategy.NewSMACross("SMA", 2, 4)
	if err != nil {
		t.Fatalf("NewSMACross: %v", err)
	}
	st := state.New("test")
	guards := risk.NewEngine(cfg.Risk, decimal.Zero, nil)
	pipe := pipeline.New(b, guards, st, cfg.Storage.StateFile, audit.NopRecorder{}, nil, cfg.Trading, nil)
	return engine.New(cfg, b, data.NewSimProvider(), strat, guards, pipe, st, nil, nil), b
}

func TestRunOrderCommandListAndCancel(t *testing.T) {
	eng, b := newManagementEngine(t)
	ctx := context.Background()
	orderID := b.AddOpenOrder("SMA_AAPL_buy_20240115210000")

	var out bytes.Buffer
	if err := runOrderCommand(ctx, eng, orderCommand{list: true}, &out); err != nil {
		t.Fatalf("list: %v", err)
	}
	if !strings.Contains(out.String(), "SMA_AAPL_buy_20240115210000") {
		t.Errorf("list output = %q, want the open order", out.String())
	}

	out.Reset()
	if err := runOrderCommand(ctx, eng, orderCommand{cancelID: orderID}, &out); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if !strings.Contains(out.String(), "canceled") {
		t.Errorf("cancel output = %q", out.String())
	}

	out.Reset()
	if err := runOrderCommand(ctx, eng, orderCommand{list: true}, &out); err != nil {
		t.Fatalf("list after cancel: %v", err)
	}
	if !strings.Contains(out.String(), "no open orders") {
		t.Errorf("list after cancel = %q, want empty", out.String())
	}
}

func TestRunOrderCommandReplace(t *testing.T) {
	eng, b := newManagementEngine(t)
	ctx := context.Background()
	orderID := b.AddOpenOrder("SMA_AAPL_buy_20240115210000")

	var out bytes.Buffer
	cmd := orderCommand{
		replaceID:    orderID,
		replaceLimit: decimal.RequireFromString("99.50"),
		replaceQty:   7,
	}
	if err := runOrderCommand(ctx, eng, cmd, &out); err != nil {
		t.Fatalf("replace: %v", err)
	}
	if !strings.Contains(out.String(), "7 @ 99.5") {
		t.Errorf("replace output = %q, want the new shape", out.String())
	}

	// The guards still apply on the management path.
	cmd.replaceQty = 500
	if err := runOrderCommand(ctx, eng, cmd, &out); err == nil {
		t.Error("oversized replace accepted through the management command")
	}
}
