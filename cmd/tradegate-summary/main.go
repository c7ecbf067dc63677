// tradegate-summary is a one-shot reporting tool: it reads the audit journal
// (or the Parquet fill archive) for a trading day and prints execution-cost
// figures — fill counts, notional traded, and slippage statistics — plus a
// breakdown of rejections by category.
//
// Usage:
//
//	tradegate-summary [-config config/tradegate.yaml] [-day 2024-01-15] [-source journal|archive]
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"text/tabwriter"

	"github.com/shopspring/decimal"

	"tradegate/internal/audit"
	"tradegate/internal/config"
	"tradegate/internal/util"
)

func main() {
	var (
		cfgPath = flag.String("config", "config/tradegate.yaml", "path to YAML configuration")
		day     = flag.String("day", util.TodayEastern(), "trading day to summarize (YYYY-MM-DD)")
		source  = flag.String("source", "journal", "read fills from \"journal\" (sqlite) or \"archive\" (parquet)")
	)
	flag.Parse()

	cfg := config.Default()
	if _, err := os.Stat(*cfgPath); err == nil {
		loaded, err := config.Load(*cfgPath)
		if err != nil {
			log.Fatalf("failed to load config: %v", err)
		}
		cfg = loaded
	}

	if err := summarize(cfg, *day, *source); err != nil {
		log.Fatalf("error: %v", err)
	}
}

func summarize(cfg *config.Config, day, source string) error {
	ctx := context.Background()

	var fills []audit.FillRecord
	var rejections map[string]int

	switch source {
	case "journal":
		journal, err := audit.NewJournal(cfg.Storage.SQLitePath)
		if err != nil {
			return fmt.Errorf("opening journal: %w", err)
		}
		defer journal.Close()
		if fills, err = journal.ListFills(ctx, day); err != nil {
			return err
		}
		if rejections, err = journal.RejectionCounts(ctx, day); err != nil {
			return err
		}

	case "archive":
		var err error
		if fills, err = audit.NewArchive(cfg.Storage.OutDir).ReadDay(day); err != nil {
			return err
		}

	default:
		return fmt.Errorf("unknown source %q (want journal or archive)", source)
	}

	fmt.Printf("cost summary for %s (%s)\n\n", day, source)
	printFills(fills)
	if rejections != nil {
		printRejections(rejections)
	}
	return nil
}

func printFills(fills []audit.FillRecord) {
	if len(fills) == 0 {
		fmt.Println("no fills")
		return
	}

	var (
		notional    = decimal.Zero
		slipAbsSum  = decimal.Zero
		slipBPSSum  = decimal.Zero
		withCosts   int
		worstBPS    decimal.Decimal
		worstSymbol string
	)

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "TIME\tSYMBOL\tSIDE\tQTY\tFILL\tEXPECTED\tSLIP_BPS")
	for _, f := range fills {
		notional = notional.Add(f.FillPrice.Mul(decimal.NewFromInt(f.Quantity)).Abs())
		expected, slip := "-", "-"
		if f.Costs != nil {
			withCosts++
			slipAbsSum = slipAbsSum.Add(f.Costs.SlippageAbs)
			slipBPSSum = slipBPSSum.Add(f.Costs.SlippageBPS)
			if worstSymbol == "" || f.Costs.SlippageBPS.GreaterThan(worstBPS) {
				worstBPS = f.Costs.SlippageBPS
				worstSymbol = f.Symbol
			}
			expected = f.Costs.ExpectedPrice.StringFixed(2)
			slip = f.Costs.SlippageBPS.StringFixed(2)
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\t%s\t%s\n",
			f.Timestamp.Format("15:04:05"), f.Symbol, f.Side, f.Quantity,
			f.FillPrice.StringFixed(2), expected, slip)
	}
	w.Flush()

	fmt.Printf("\nfills: %d  notional: $%s\n", len(fills), notional.StringFixed(2))
	if withCosts > 0 {
		n := decimal.NewFromInt(int64(withCosts))
		fmt.Printf("avg slippage: %s ($%s abs)  worst: %s bps on %s\n",
			slipBPSSum.Div(n).StringFixed(2)+" bps",
			slipAbsSum.Div(n).StringFixed(4),
			worstBPS.StringFixed(2), worstSymbol)
	}
}

func printRejections(counts map[string]int) {
	if len(counts) == 0 {
		fmt.Println("\nno rejections")
		return
	}
	fmt.Println("\nrejections by category:")
	for _, category := range []string{"duplicate", "risk", "quantity", "notional", "exposure", "spread", "edge", "broker-error"} {
		if n, ok := counts[category]; ok {
			fmt.Printf("  %-12s %d\n", category, n)
		}
	}
}
