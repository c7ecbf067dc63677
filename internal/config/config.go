// Package config loads the trading configuration from YAML with environment
// variable overrides.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

// ---------------------------------------------------------------------------
// Configuration structs
// ---------------------------------------------------------------------------

// Config is the top-level configuration for the trader.
type Config struct {
	Mode    string  `yaml:"mode"` // "sim" or "alpaca"
	Storage Storage `yaml:"storage"`
	Alpaca  Alpaca  `yaml:"alpaca"`
	Logging Logging `yaml:"logging"`
	Trading Trading `yaml:"trading"`
	Risk    Risk    `yaml:"risk"`
	Safety  Safety  `yaml:"safety"`
}

// Storage holds paths for persisted state and audit artifacts.
type Storage struct {
	StateFile  string `yaml:"state_file"`
	OutDir     string `yaml:"out_dir"`
	SQLitePath string `yaml:"sqlite_path"`
}

// Alpaca holds credentials and endpoints for the Alpaca broker API.
type Alpaca struct {
	APIKey    string `yaml:"api_key"`
	APISecret string `yaml:"api_secret"`
	BaseURL   string `yaml:"base_url"`
	DataURL   string `yaml:"data_url"`
	Feed      string `yaml:"feed"` // market data feed, "iex" for free tier
}

// Logging configures the application logger.
type Logging struct {
	Level string `yaml:"level"`
}

// Trading defines strategy and execution parameters.
type Trading struct {
	StrategyName    string   `yaml:"strategy_name"`
	Symbols         []string `yaml:"symbols"`
	DefaultQuantity int64    `yaml:"default_quantity"`
	SMAFastPeriod   int      `yaml:"sma_fast_period"`
	SMASlowPeriod   int      `yaml:"sma_slow_period"`
	UseLimitOrders  bool     `yaml:"use_limit_orders"`
	DryRun          bool     `yaml:"dry_run"`
}

// Risk defines the pre-trade guard limits.
type Risk struct {
	MaxPositions        int             `yaml:"max_positions"`
	MaxOrderQuantity    int64           `yaml:"max_order_quantity"`
	MaxDailyLoss        decimal.Decimal `yaml:"max_daily_loss"`
	MaxSessionLoss      decimal.Decimal `yaml:"max_session_loss"`
	SessionLossEnabled  bool            `yaml:"session_loss_enabled"`
	MaxOrderNotional    decimal.Decimal `yaml:"max_order_notional"`
	MaxExposureNotional decimal.Decimal `yaml:"max_exposure_notional"`
	MaxSpreadBPS        decimal.Decimal `yaml:"max_spread_bps"`
	MinEdgeBPS          decimal.Decimal `yaml:"min_edge_bps"` // zero disables
	MinPrice            decimal.Decimal `yaml:"min_price"`
	MaxPrice            decimal.Decimal `yaml:"max_price"`
	MinAvgVolume        int64           `yaml:"min_avg_volume"`
	AllowedSymbols      []string        `yaml:"allowed_symbols"`
	SymbolWhitelist     []string        `yaml:"symbol_whitelist"` // empty = allow all
	SymbolBlacklist     []string        `yaml:"symbol_blacklist"`
}

// Safety holds the live-trading interlock flags. Both must be set before the
// trader will start against a non-paper endpoint.
type Safety struct {
	EnableLiveTrading      bool `yaml:"enable_live_trading"`
	AcknowledgeLiveTrading bool `yaml:"acknowledge_live_trading"`
}

// ---------------------------------------------------------------------------
// Loading
// ---------------------------------------------------------------------------

// Load reads the YAML configuration file at the given path, parses it into a
// Config struct, applies environment variable overrides, and fills defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}

	applyEnvOverrides(cfg)
	applyDefaults(cfg)

	return cfg, nil
}

// Default returns a Config with environment overrides and defaults applied,
// without reading a file.
func Default() *Config {
	cfg := &Config{}
	applyEnvOverrides(cfg)
	applyDefaults(cfg)
	return cfg
}

// applyEnvOverrides checks well-known environment variables and overrides the
// corresponding configuration fields when they are set.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("TRADEGATE_MODE"); v != "" {
		cfg.Mode = v
	}
	if v := os.Getenv("TRADEGATE_STATE_FILE"); v != "" {
		cfg.Storage.StateFile = v
	}
	if v := os.Getenv("TRADEGATE_OUT_DIR"); v != "" {
		cfg.Storage.OutDir = v
	}
	if v := os.Getenv("SQLITE_PATH"); v != "" {
		cfg.Storage.SQLitePath = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}

	if v := os.Getenv("ALPACA_API_KEY"); v != "" {
		cfg.Alpaca.APIKey = v
	}
	if v := os.Getenv("ALPACA_API_SECRET"); v != "" {
		cfg.Alpaca.APISecret = v
	}
	if v := os.Getenv("ALPACA_BASE_URL"); v != "" {
		cfg.Alpaca.BaseURL = v
	}
	if v := os.Getenv("ALPACA_DATA_URL"); v != "" {
		cfg.Alpaca.DataURL = v
	}

	if v := os.Getenv("DRY_RUN"); v != "" {
		cfg.Trading.DryRun = strings.EqualFold(v, "true") || v == "1"
	}
	if v := os.Getenv("WATCHLIST"); v != "" {
		cfg.Trading.Symbols = splitSymbols(v)
	}
	if v := os.Getenv("MAX_ORDER_QUANTITY"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			cfg.Risk.MaxOrderQuantity = n
		}
	}
	if v := os.Getenv("MAX_DAILY_LOSS"); v != "" {
		if d, err := decimal.NewFromString(v); err == nil {
			cfg.Risk.MaxDailyLoss = d
		}
	}

	// Standard Alpaca env vars (highest priority — canonical names used by SDK).
	if v := os.Getenv("APCA_API_KEY_ID"); v != "" {
		cfg.Alpaca.APIKey = v
	}
	if v := os.Getenv("APCA_API_SECRET_KEY"); v != "" {
		cfg.Alpaca.APISecret = v
	}
}

func applyDefaults(cfg *Config) {
	if cfg.Mode == "" {
		cfg.Mode = "sim"
	}
	if cfg.Storage.StateFile == "" {
		cfg.Storage.StateFile = "out/state.json"
	}
	if cfg.Storage.OutDir == "" {
		cfg.Storage.OutDir = "out"
	}
	if cfg.Storage.SQLitePath == "" {
		cfg.Storage.SQLitePath = "out/audit.db"
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Alpaca.BaseURL == "" {
		cfg.Alpaca.BaseURL = "https://paper-api.alpaca.markets"
	}
	if cfg.Alpaca.Feed == "" {
		cfg.Alpaca.Feed = "iex"
	}
	if cfg.Trading.StrategyName == "" {
		cfg.Trading.StrategyName = "SMA"
	}
	if len(cfg.Trading.Symbols) == 0 {
		cfg.Trading.Symbols = []string{"AAPL", "MSFT", "GOOGL", "AMZN", "TSLA"}
	}
	if cfg.Trading.DefaultQuantity == 0 {
		cfg.Trading.DefaultQuantity = 10
	}
	if cfg.Trading.SMAFastPeriod == 0 {
		cfg.Trading.SMAFastPeriod = 10
	}
	if cfg.Trading.SMASlowPeriod == 0 {
		cfg.Trading.SMASlowPeriod = 30
	}
	if cfg.Risk.MaxPositions == 0 {
		cfg.Risk.MaxPositions = 5
	}
	if cfg.Risk.MaxOrderQuantity == 0 {
		cfg.Risk.MaxOrderQuantity = 100
	}
	if cfg.Risk.MaxDailyLoss.IsZero() {
		cfg.Risk.MaxDailyLoss = decimal.NewFromInt(500)
	}
	if cfg.Risk.MaxOrderNotional.IsZero() {
		cfg.Risk.MaxOrderNotional = decimal.NewFromInt(500)
	}
	if cfg.Risk.MaxExposureNotional.IsZero() {
		cfg.Risk.MaxExposureNotional = decimal.NewFromInt(10000)
	}
	if cfg.Risk.MaxSpreadBPS.IsZero() {
		cfg.Risk.MaxSpreadBPS = decimal.NewFromInt(20)
	}
	if cfg.Risk.MinPrice.IsZero() {
		cfg.Risk.MinPrice = decimal.NewFromInt(2)
	}
	if cfg.Risk.MaxPrice.IsZero() {
		cfg.Risk.MaxPrice = decimal.NewFromInt(10000)
	}
	if cfg.Risk.MinAvgVolume == 0 {
		cfg.Risk.MinAvgVolume = 100000
	}
	if len(cfg.Risk.AllowedSymbols) == 0 {
		cfg.Risk.AllowedSymbols = cfg.Trading.Symbols
	}
}

func splitSymbols(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, strings.ToUpper(p))
		}
	}
	return out
}

// ---------------------------------------------------------------------------
// Live trading interlock
// ---------------------------------------------------------------------------

// IsLiveTrading reports whether the configuration points at a real-money
// endpoint: alpaca mode with a non-paper base URL.
func (c *Config) IsLiveTrading() bool {
	return c.Mode == "alpaca" && !strings.Contains(strings.ToLower(c.Alpaca.BaseURL), "paper")
}

// ValidateSafety refuses live-trading configurations unless both interlock
// flags are set. Paper and sim modes always pass.
func (c *Config) ValidateSafety() error {
	if !c.IsLiveTrading() {
		return nil
	}
	if !c.Safety.EnableLiveTrading {
		return fmt.Errorf("live trading endpoint configured but safety.enable_live_trading is false")
	}
	if !c.Safety.AcknowledgeLiveTrading {
		return fmt.Errorf("live trading endpoint configured but safety.acknowledge_live_trading is false")
	}
	return nil
}
