package config

import (
	"os"
	"testing"

	"github.com/shopspring/decimal"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	tmpFile, err := os.CreateTemp(t.TempDir(), "tradegate-config-*.yaml")
	if err != nil {
		t.Fatalf("failed to create temp file: %v", err)
	}
	if _, err := tmpFile.WriteString(content); err != nil {
		t.Fatalf("failed to write temp file: %v", err)
	}
	if err := tmpFile.Close(); err != nil {
		t.Fatalf("failed to close temp file: %v", err)
	}
	return tmpFile.Name()
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"TRADEGATE_MODE", "TRADEGATE_STATE_FILE", "TRADEGATE_OUT_DIR",
		"SQLITE_PATH", "LOG_LEVEL", "ALPACA_API_KEY", "ALPACA_API_SECRET",
		"ALPACA_BASE_URL", "ALPACA_DATA_URL", "APCA_API_KEY_ID",
		"APCA_API_SECRET_KEY", "DRY_RUN", "WATCHLIST",
		"MAX_ORDER_QUANTITY", "MAX_DAILY_LOSS",
	} {
		t.Setenv(key, "")
		os.Unsetenv(key)
	}
}

func TestLoadParsesAndDefaults(t *testing.T) {
	clearEnv(t)
	path := writeConfig(t, `
mode: "alpaca"
storage:
  state_file: "/tmp/tradegate/state.json"
  sqlite_path: "/tmp/tradegate/audit.db"
alpaca:
  api_key: "test-key"
  api_secret: "test-secret"
  base_url: "https://paper-api.alpaca.markets"
trading:
  strategy_name: "SMA"
  symbols: ["AAPL", "MSFT"]
  default_quantity: 5
  use_limit_orders: true
risk:
  max_positions: 3
  max_order_quantity: 50
  max_daily_loss: "250"
  max_session_loss: "100"
  session_loss_enabled: true
  max_spread_bps: "15"
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() returned error: %v", err)
	}

	if cfg.Mode != "alpaca" {
		t.Errorf("Mode = %q, want alpaca", cfg.Mode)
	}
	if cfg.Storage.StateFile != "/tmp/tradegate/state.json" {
		t.Errorf("Storage.StateFile = %q", cfg.Storage.StateFile)
	}
	if cfg.Alpaca.APIKey != "test-key" {
		t.Errorf("Alpaca.APIKey = %q, want test-key", cfg.Alpaca.APIKey)
	}
	if cfg.Trading.DefaultQuantity != 5 {
		t.Errorf("Trading.DefaultQuantity = %d, want 5", cfg.Trading.DefaultQuantity)
	}
	if !cfg.Trading.UseLimitOrders {
		t.Error("Trading.UseLimitOrders = false, want true")
	}
	if cfg.Risk.MaxPositions != 3 {
		t.Errorf("Risk.MaxPositions = %d, want 3", cfg.Risk.MaxPositions)
	}
	if !cfg.Risk.MaxDailyLoss.Equal(decimal.NewFromInt(250)) {
		t.Errorf("Risk.MaxDailyLoss = %s, want 250", cfg.Risk.MaxDailyLoss)
	}
	if !cfg.Risk.SessionLossEnabled || !cfg.Risk.MaxSessionLoss.Equal(decimal.NewFromInt(100)) {
		t.Errorf("session loss = %v/%s, want enabled at 100", cfg.Risk.SessionLossEnabled, cfg.Risk.MaxSessionLoss)
	}
	if !cfg.Risk.MaxSpreadBPS.Equal(decimal.NewFromInt(15)) {
		t.Errorf("Risk.MaxSpreadBPS = %s, want 15", cfg.Risk.MaxSpreadBPS)
	}

	// Defaults fill the gaps the file leaves open.
	if cfg.Alpaca.Feed != "iex" {
		t.Errorf("Alpaca.Feed = %q, want default iex", cfg.Alpaca.Feed)
	}
	if cfg.Logging.Level != "info" {
		t.Errorf("Logging.Level = %q, want default info", cfg.Logging.Level)
	}
	if !cfg.Risk.MaxOrderNotional.Equal(decimal.NewFromInt(500)) {
		t.Errorf("Risk.MaxOrderNotional = %s, want default 500", cfg.Risk.MaxOrderNotional)
	}
	// The allowlist falls back to the watchlist.
	if len(cfg.Risk.AllowedSymbols) != 2 || cfg.Risk.AllowedSymbols[0] != "AAPL" {
		t.Errorf("Risk.AllowedSymbols = %v, want the watchlist", cfg.Risk.AllowedSymbols)
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	clearEnv(t)
	path := writeConfig(t, `
alpaca:
  api_key: "yaml-key"
  api_secret: "yaml-secret"
trading:
  symbols: ["AAPL"]
`)

	t.Setenv("ALPACA_API_KEY", "env-key")
	t.Setenv("APCA_API_KEY_ID", "apca-key")
	t.Setenv("DRY_RUN", "true")
	t.Setenv("WATCHLIST", "nvda, amd")
	t.Setenv("MAX_DAILY_LOSS", "123.45")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() returned error: %v", err)
	}

	// The canonical APCA_* names win over both YAML and the ALPACA_* aliases.
	if cfg.Alpaca.APIKey != "apca-key" {
		t.Errorf("Alpaca.APIKey = %q, want apca-key", cfg.Alpaca.APIKey)
	}
	if cfg.Alpaca.APISecret != "yaml-secret" {
		t.Errorf("Alpaca.APISecret = %q, want yaml-secret (no override)", cfg.Alpaca.APISecret)
	}
	if !cfg.Trading.DryRun {
		t.Error("Trading.DryRun = false, want env override true")
	}
	if len(cfg.Trading.Symbols) != 2 || cfg.Trading.Symbols[0] != "NVDA" || cfg.Trading.Symbols[1] != "AMD" {
		t.Errorf("Trading.Symbols = %v, want [NVDA AMD]", cfg.Trading.Symbols)
	}
	if !cfg.Risk.MaxDailyLoss.Equal(decimal.RequireFromString("123.45")) {
		t.Errorf("Risk.MaxDailyLoss = %s, want 123.45", cfg.Risk.MaxDailyLoss)
	}
}

func TestLiveTradingInterlock(t *testing.T) {
	clearEnv(t)

	cfg := Default()
	cfg.Mode = "alpaca"
	cfg.Alpaca.BaseURL = "https://api.alpaca.markets"

	if !cfg.IsLiveTrading() {
		t.Fatal("non-paper alpaca endpoint should count as live")
	}
	if err := cfg.ValidateSafety(); err == nil {
		t.Error("live trading allowed without interlock flags")
	}

	cfg.Safety.EnableLiveTrading = true
	if err := cfg.ValidateSafety(); err == nil {
		t.Error("live trading allowed with only one interlock flag")
	}

	cfg.Safety.AcknowledgeLiveTrading = true
	if err := cfg.ValidateSafety(); err != nil {
		t.Errorf("fully acknowledged live config rejected: %v", err)
	}

	// Paper and sim configurations never need the interlock.
	paper := Default()
	paper.Mode = "alpaca"
	paper.Alpaca.BaseURL = "https://paper-api.alpaca.markets"
	if paper.IsLiveTrading() {
		t.Error("paper endpoint counted as live")
	}
	if err := paper.ValidateSafety(); err != nil {
		t.Errorf("paper config rejected: %v", err)
	}
}
