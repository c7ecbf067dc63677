// tradegate runs the safety-gated trading loop: reconcile against the venue
// at startup, then evaluate the watchlist on an interval and push signals
// through the submission pipeline.
//
// Usage:
//
//	tradegate -config config/tradegate.yaml [-once] [-interval 60s] [-dry-run]
//
// Order management (runs the requested operation instead of the loop):
//
//	tradegate -list-orders
//	tradegate -cancel-order <order-id>
//	tradegate -replace-order <order-id> -replace-limit 99.50 [-replace-qty 7]
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/shopspring/decimal"

	"tradegate/internal/audit"
	"tradegate/internal/broker"
	"tradegate/internal/config"
	"tradegate/internal/data"
	"tradegate/internal/engine"
	"tradegate/internal/pipeline"
	"tradegate/internal/reconcile"
	"tradegate/internal/risk"
	"tradegate/internal/state"
	"tradegate/internal/strategy"
	"tradegate/internal/util"
)

// orderCommand is a one-shot order-management request; when set, it runs
// instead of the trading loop.
type orderCommand struct {
	list         bool
	cancelID     string
	replaceID    string
	replaceLimit decimal.Decimal
	replaceQty   int64
}

func (c orderCommand) requested() bool {
	return c.list || c.cancelID != "" || c.replaceID != ""
}

func main() {
	var (
		cfgPath  = flag.String("config", "config/tradegate.yaml", "path to YAML configuration")
		once     = flag.Bool("once", false, "run a single trading cycle and exit")
		interval = flag.Duration("interval", time.Minute, "delay between trading cycles")
		dryRun   = flag.Bool("dry-run", false, "evaluate signals without submitting orders")

		listOrders   = flag.Bool("list-orders", false, "list open orders at the venue and exit")
		cancelOrder  = flag.String("cancel-order", "", "cancel the given order id and exit")
		replaceOrder = flag.String("replace-order", "", "replace the given order id and exit")
		replaceLimit = flag.String("replace-limit", "", "new limit price for -replace-order")
		replaceQty   = flag.Int64("replace-qty", 0, "new quantity for -replace-order (0 keeps current)")
	)
	flag.Parse()

	cmd := orderCommand{
		list:       *listOrders,
		cancelID:   *cancelOrder,
		replaceID:  *replaceOrder,
		replaceQty: *replaceQty,
	}
	if *replaceLimit != "" {
		limit, err := decimal.NewFromString(*replaceLimit)
		if err != nil {
			log.Fatalf("invalid -replace-limit %q: %v", *replaceLimit, err)
		}
		cmd.replaceLimit = limit
	}

	cfg, err := loadConfig(*cfgPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	if *dryRun {
		cfg.Trading.DryRun = true
	}
	if err := cfg.ValidateSafety(); err != nil {
		log.Fatalf("refusing to start: %v", err)
	}

	logger := util.NewLogger(cfg.Logging.Level)
	slog.SetDefault(logger)

	if err := run(cfg, *once, *interval, cmd, logger); err != nil {
		logger.Error("trader stopped", "err", err)
		os.Exit(1)
	}
}

func loadConfig(path string) (*config.Config, error) {
	if _, err := os.Stat(path); err != nil {
		// No config file: env vars and defaults carry the whole setup.
		return config.Default(), nil
	}
	return config.Load(path)
}

func run(cfg *config.Config, once bool, interval time.Duration, cmd orderCommand, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st := state.Load(cfg.Storage.StateFile)
	st.BeginSession()
	logger.Info("starting trader",
		"mode", cfg.Mode,
		"run_id", st.RunID,
		"dry_run", cfg.Trading.DryRun,
		"live", cfg.IsLiveTrading(),
		"symbols", cfg.Trading.Symbols)

	venue, provider, calendar, err := buildVenue(cfg, logger)
	if err != nil {
		return err
	}

	registry := strategy.NewRegistry()
	sma, err := strategy.NewSMACross(cfg.Trading.StrategyName, cfg.Trading.SMAFastPeriod, cfg.Trading.SMASlowPeriod)
	if err != nil {
		return fmt.Errorf("building strategy: %w", err)
	}
	registry.Register(sma)
	strat, ok := registry.Get(cfg.Trading.StrategyName)
	if !ok {
		return fmt.Errorf("unknown strategy %q (have %v)", cfg.Trading.StrategyName, registry.List())
	}

	guards := risk.NewEngine(cfg.Risk, st.DailyPnL(""), logger)

	recorder, archive, err := buildAudit(cfg)
	if err != nil {
		return err
	}
	defer recorder.Close()

	pipe := pipeline.New(venue, guards, st, cfg.Storage.StateFile, recorder, archive, cfg.Trading, logger)

	// Startup reconciliation: adopt the venue's truth before trading.
	rec := reconcile.New(venue, guards, st, logger)
	if _, err := rec.Run(ctx, cfg.Storage.StateFile); err != nil {
		return fmt.Errorf("startup reconciliation: %w", err)
	}

	eng := engine.New(cfg, venue, provider, strat, guards, pipe, st, calendar, logger)

	if cmd.requested() {
		// One-shot management: reconciliation above already adopted the
		// venue's positions, so the replace guards see real exposure.
		return runOrderCommand(ctx, eng, cmd, os.Stdout)
	}

	for {
		if _, err := eng.RunCycle(ctx); err != nil {
			if ctx.Err() != nil {
				logger.Info("shutting down")
				return nil
			}
			// Cycle errors other than persist failures are survivable; persist
			// failures are not, because the idempotency record may be stale.
			return err
		}
		if once {
			return nil
		}
		select {
		case <-ctx.Done():
			logger.Info("shutting down")
			return nil
		case <-time.After(interval):
		}
	}
}

// runOrderCommand executes one order-management operation and reports the
// result on w.
func runOrderCommand(ctx context.Context, eng *engine.Engine, cmd orderCommand, w io.Writer) error {
	switch {
	case cmd.list:
		open, err := eng.OpenOrders(ctx)
		if err != nil {
			return err
		}
		if len(open) == 0 {
			fmt.Fprintln(w, "no open orders")
			return nil
		}
		for _, id := range open {
			fmt.Fprintln(w, id)
		}
		return nil

	case cmd.cancelID != "":
		if err := eng.CancelOrder(ctx, cmd.cancelID); err != nil {
			return err
		}
		fmt.Fprintf(w, "canceled %s\n", cmd.cancelID)
		return nil

	case cmd.replaceID != "":
		replaced, err := eng.ReplaceOrder(ctx, cmd.replaceID, cmd.replaceLimit, cmd.replaceQty)
		if err != nil {
			return err
		}
		fmt.Fprintf(w, "replaced %s: %d @ %s\n", cmd.replaceID, replaced.Quantity, replaced.LimitPrice)
		return nil
	}
	return nil
}

// buildVenue wires the broker, data provider, and market calendar for the
// configured mode.
func buildVenue(cfg *config.Config, logger *slog.Logger) (broker.Broker, data.Provider, *util.TradingCalendar, error) {
	switch cfg.Mode {
	case "sim":
		return broker.NewSimulatorBroker(), data.NewSimProvider(), nil, nil

	case "alpaca":
		if cfg.Alpaca.APIKey == "" || cfg.Alpaca.APISecret == "" {
			return nil, nil, nil, fmt.Errorf("alpaca mode requires APCA_API_KEY_ID and APCA_API_SECRET_KEY")
		}
		venue := broker.NewAlpacaBroker(cfg.Alpaca.APIKey, cfg.Alpaca.APISecret,
			cfg.Alpaca.BaseURL, cfg.Alpaca.DataURL, cfg.Alpaca.Feed)
		provider := data.NewAlpacaProvider(cfg.Alpaca.APIKey, cfg.Alpaca.APISecret,
			cfg.Alpaca.DataURL, cfg.Alpaca.Feed, logger)
		return venue, provider, util.NewTradingCalendar(), nil

	default:
		return nil, nil, nil, fmt.Errorf("unknown mode %q (want sim or alpaca)", cfg.Mode)
	}
}

// buildAudit opens the CSV sink, the SQLite journal, and the Parquet fill
// archive under the configured output directory.
func buildAudit(cfg *config.Config) (audit.Recorder, *audit.Archive, error) {
	csvSink, err := audit.NewCSVSink(filepath.Join(cfg.Storage.OutDir, "decisions.csv"))
	if err != nil {
		return nil, nil, fmt.Errorf("opening csv sink: %w", err)
	}
	journal, err := audit.NewJournal(cfg.Storage.SQLitePath)
	if err != nil {
		csvSink.Close()
		return nil, nil, fmt.Errorf("opening audit journal: %w", err)
	}
	return audit.MultiRecorder{csvSink, journal}, audit.NewArchive(cfg.Storage.OutDir), nil
}
