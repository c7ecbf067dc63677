package audit

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// Compile-time interface check.
var _ Recorder = (*CSVSink)(nil)

// CSVSink appends order decisions to a flat CSV file, one row per decision.
// Fills and completed trades are folded into the same file as rows with
// outcome "fill" and "trade" so the whole session reads top to bottom in
// one place.
type CSVSink struct {
	path string
	file *os.File
	w    *csv.Writer
}

var csvHeader = []string{
	"version", "timestamp", "run_id", "client_order_id", "symbol", "side",
	"quantity", "order_type", "limit_price", "outcome", "reject_category",
	"reject_reason", "fill_price", "slippage_bps", "signal_reason",
}

// NewCSVSink opens (or creates) the CSV file at path, writing the header row
// only when the file is new.
func NewCSVSink(path string) (*CSVSink, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("creating audit dir: %w", err)
	}
	info, statErr := os.Stat(path)
	fresh := statErr != nil || info.Size() == 0

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("opening audit csv: %w", err)
	}
	s := &CSVSink{path: path, file: f, w: csv.NewWriter(f)}
	if fresh {
		if err := s.w.Write(csvHeader); err != nil {
			f.Close()
			return nil, fmt.Errorf("writing csv header: %w", err)
		}
		s.w.Flush()
	}
	return s, nil
}

func (s *CSVSink) RecordOrder(_ context.Context, rec OrderRecord) error {
	row := []string{
		fmt.Sprintf("%d", rec.Version),
		rec.Timestamp.UTC().Format(time.RFC3339),
		rec.RunID,
		rec.ClientOrderID,
		rec.Symbol,
		rec.Side,
		fmt.Sprintf("%d", rec.Quantity),
		rec.OrderType,
		rec.LimitPrice,
		string(rec.Outcome),
		rec.RejectCategory,
		rec.RejectReason,
		"", // fill_price
		"", // slippage_bps
		"", // signal_reason
	}
	return s.writeRow(row)
}

func (s *CSVSink) RecordFill(_ context.Context, rec FillRecord) error {
	slippage := ""
	if rec.Costs != nil {
		slippage = rec.Costs.SlippageBPS.StringFixed(4)
	}
	row := []string{
		fmt.Sprintf("%d", rec.Version),
		rec.Timestamp.UTC().Format(time.RFC3339),
		rec.RunID,
		rec.ClientOrderID,
		rec.Symbol,
		rec.Side,
		fmt.Sprintf("%d", rec.Quantity),
		"", // order_type
		"", // limit_price
		"fill",
		"", // reject_category
		"", // reject_reason
		rec.FillPrice.String(),
		slippage,
		"", // signal_reason
	}
	return s.writeRow(row)
}

func (s *CSVSink) RecordTrade(_ context.Context, rec TradeRecord) error {
	slippage := ""
	if rec.Costs != nil {
		slippage = rec.Costs.SlippageBPS.StringFixed(4)
	}
	row := []string{
		fmt.Sprintf("%d", rec.Version),
		rec.Timestamp.UTC().Format(time.RFC3339),
		rec.RunID,
		rec.ClientOrderID,
		rec.Symbol,
		rec.Side,
		fmt.Sprintf("%d", rec.Quantity),
		"", // order_type
		"", // limit_price
		"trade",
		"", // reject_category
		"", // reject_reason
		rec.FillPrice.String(),
		slippage,
		rec.SignalReason,
	}
	return s.writeRow(row)
}

func (s *CSVSink) writeRow(row []string) error {
	if err := s.w.Write(row); err != nil {
		return fmt.Errorf("writing audit row: %w", err)
	}
	s.w.Flush()
	return s.w.Error()
}

func (s *CSVSink) Close() error {
	s.w.Flush()
	if err := s.w.Error(); err != nil {
		s.file.Close()
		return err
	}
	return s.file.Close()
}
