package audit

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/parquet-go/parquet-go"
	"github.com/shopspring/decimal"
)

// FillArchiveRecord is the Parquet schema for the per-day fill archive.
// Prices flatten to float64 for analytics tooling; the journal keeps the
// exact decimal values.
type FillArchiveRecord struct {
	Version       int32   `parquet:"version"`
	RunID         string  `parquet:"run_id"`
	Timestamp     int64   `parquet:"timestamp,timestamp(millisecond)"` // Unix ms
	ClientOrderID string  `parquet:"client_order_id"`
	BrokerOrderID string  `parquet:"broker_order_id"`
	Symbol        string  `parquet:"symbol"`
	Side          string  `parquet:"side"`
	Quantity      int64   `parquet:"quantity"`
	FillPrice     float64 `parquet:"fill_price"`
	HasCosts      bool    `parquet:"has_costs"`
	ExpectedPrice float64 `parquet:"expected_price"`
	SlippageAbs   float64 `parquet:"slippage_abs"`
	SlippageBPS   float64 `parquet:"slippage_bps"`
	SpreadBPS     float64 `parquet:"spread_bps_at_submit"`
}

// Archive writes day-partitioned Parquet files of fills.
// Layout: <Dir>/fills/<YYYY-MM-DD>.parquet
type Archive struct {
	Dir string
}

// NewArchive creates an Archive rooted at the given directory.
func NewArchive(dir string) *Archive {
	return &Archive{Dir: dir}
}

func (a *Archive) dayPath(day string) string {
	return filepath.Join(a.Dir, "fills", day+".parquet")
}

// WriteDay merges the given fills into the archive file for the day
// (YYYY-MM-DD). Records dedupe by client order id, preferring new records.
func (a *Archive) WriteDay(day string, fills []FillRecord) error {
	if len(fills) == 0 {
		return nil
	}
	path := a.dayPath(day)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating archive dir: %w", err)
	}

	existing, _ := parquet.ReadFile[FillArchiveRecord](path)
	seen := make(map[string]FillArchiveRecord, len(existing)+len(fills))
	for _, r := range existing {
		seen[r.ClientOrderID] = r
	}
	for _, f := range fills {
		seen[f.ClientOrderID] = toArchiveRecord(f)
	}

	merged := make([]FillArchiveRecord, 0, len(seen))
	for _, r := range seen {
		merged = append(merged, r)
	}
	sort.Slice(merged, func(i, j int) bool {
		return merged[i].Timestamp < merged[j].Timestamp
	})

	if err := parquet.WriteFile(path, merged); err != nil {
		return fmt.Errorf("writing fill archive for %s: %w", day, err)
	}
	return nil
}

// ReadDay loads the archived fills for a day. A missing file is not an
// error; it reads as an empty day.
func (a *Archive) ReadDay(day string) ([]FillRecord, error) {
	path := a.dayPath(day)
	if _, err := os.Stat(path); err != nil {
		return nil, nil
	}
	records, err := parquet.ReadFile[FillArchiveRecord](path)
	if err != nil {
		return nil, fmt.Errorf("reading fill archive for %s: %w", day, err)
	}
	fills := make([]FillRecord, 0, len(records))
	for _, r := range records {
		fills = append(fills, fromArchiveRecord(r))
	}
	return fills, nil
}

func toArchiveRecord(f FillRecord) FillArchiveRecord {
	rec := FillArchiveRecord{
		Version:       int32(f.Version),
		RunID:         f.RunID,
		Timestamp:     f.Timestamp.UnixMilli(),
		ClientOrderID: f.ClientOrderID,
		BrokerOrderID: f.BrokerOrderID,
		Symbol:        f.Symbol,
		Side:          f.Side,
		Quantity:      f.Quantity,
		FillPrice:     f.FillPrice.InexactFloat64(),
	}
	if f.Costs != nil {
		rec.HasCosts = true
		rec.ExpectedPrice = f.Costs.ExpectedPrice.InexactFloat64()
		rec.SlippageAbs = f.Costs.SlippageAbs.InexactFloat64()
		rec.SlippageBPS = f.Costs.SlippageBPS.InexactFloat64()
		rec.SpreadBPS = f.Costs.SpreadBPSAtSubmit.InexactFloat64()
	}
	return rec
}

func fromArchiveRecord(r FillArchiveRecord) FillRecord {
	f := FillRecord{
		Version:       int(r.Version),
		RunID:         r.RunID,
		Timestamp:     time.UnixMilli(r.Timestamp).UTC(),
		ClientOrderID: r.ClientOrderID,
		BrokerOrderID: r.BrokerOrderID,
		Symbol:        r.Symbol,
		Side:          r.Side,
		Quantity:      r.Quantity,
		FillPrice:     decimal.NewFromFloat(r.FillPrice),
	}
	if r.HasCosts {
		f.Costs = &CostMetrics{
			ExpectedPrice:     decimal.NewFromFloat(r.ExpectedPrice),
			SlippageAbs:       decimal.NewFromFloat(r.SlippageAbs),
			SlippageBPS:       decimal.NewFromFloat(r.SlippageBPS),
			SpreadBPSAtSubmit: decimal.NewFromFloat(r.SpreadBPS),
		}
	}
	return f
}
