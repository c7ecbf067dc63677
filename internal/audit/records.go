// Package audit persists a durable record of every submission decision and
// fill. Decisions go to an append-only CSV sink and a SQLite journal; filled
// orders are additionally archived per day as Parquet for offline analysis.
package audit

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// SchemaVersion is stamped on every record so readers can tell apart rows
// written before cost metrics were added.
const SchemaVersion = 2

// Outcome classifies what the submission pipeline did with a signal.
type Outcome string

const (
	OutcomeSubmitted Outcome = "submitted"
	OutcomeRejected  Outcome = "rejected"
)

// CostMetrics captures the execution-quality figures for a submitted order.
// It is absent on rejected and dry-run records.
type CostMetrics struct {
	ExpectedPrice     decimal.Decimal `json:"expected_price"`
	SlippageAbs       decimal.Decimal `json:"slippage_abs"`
	SlippageBPS       decimal.Decimal `json:"slippage_bps"`
	SpreadBPSAtSubmit decimal.Decimal `json:"spread_bps_at_submit"`
}

// OrderRecord is written once per pipeline decision, accepted or not.
type OrderRecord struct {
	Version       int       `json:"version"`
	RunID         string    `json:"run_id"`
	Timestamp     time.Time `json:"timestamp"`
	ClientOrderID string    `json:"client_order_id"`
	Symbol        string    `json:"symbol"`
	Side          string    `json:"side"`
	Quantity      int64     `json:"quantity"`
	OrderType     string    `json:"order_type"`
	LimitPrice    string    `json:"limit_price,omitempty"`
	Outcome       Outcome   `json:"outcome"`
	// RejectCategory is one of the fixed pipeline categories (duplicate,
	// risk, quantity, notional, exposure, spread, edge, broker-error) and is
	// empty for submitted records.
	RejectCategory string `json:"reject_category,omitempty"`
	RejectReason   string `json:"reject_reason,omitempty"`
}

// FillRecord is written when a submitted order reports a fill.
type FillRecord struct {
	Version       int             `json:"version"`
	RunID         string          `json:"run_id"`
	Timestamp     time.Time       `json:"timestamp"`
	ClientOrderID string          `json:"client_order_id"`
	BrokerOrderID string          `json:"broker_order_id"`
	Symbol        string          `json:"symbol"`
	Side          string          `json:"side"`
	Quantity      int64           `json:"quantity"`
	FillPrice     decimal.Decimal `json:"fill_price"`
	// Costs is nil for fills recorded before cost tracking existed.
	Costs *CostMetrics `json:"costs,omitempty"`
}

// TradeRecord is written once per completed trade, after the fill has been
// folded into the position book. It ties the execution back to the signal
// that caused it, which neither the order nor the fill record carries.
type TradeRecord struct {
	Version       int             `json:"version"`
	RunID         string          `json:"run_id"`
	Timestamp     time.Time       `json:"timestamp"`
	ClientOrderID string          `json:"client_order_id"`
	Symbol        string          `json:"symbol"`
	Side          string          `json:"side"`
	Quantity      int64           `json:"quantity"`
	FillPrice     decimal.Decimal `json:"fill_price"`
	// SignalReason is the strategy's human-readable explanation for the
	// entry, e.g. the crossover values.
	SignalReason string       `json:"signal_reason"`
	Costs        *CostMetrics `json:"costs,omitempty"`
}

// Recorder receives pipeline decisions, fills, and completed trades.
// Implementations must be safe to call sequentially from the trading loop;
// they are not required to be concurrency-safe.
type Recorder interface {
	RecordOrder(ctx context.Context, rec OrderRecord) error
	RecordFill(ctx context.Context, rec FillRecord) error
	RecordTrade(ctx context.Context, rec TradeRecord) error
	Close() error
}

// NopRecorder discards everything. Used when auditing is disabled.
type NopRecorder struct{}

var _ Recorder = NopRecorder{}

func (NopRecorder) RecordOrder(context.Context, OrderRecord) error { return nil }
func (NopRecorder) RecordFill(context.Context, FillRecord) error   { return nil }
func (NopRecorder) RecordTrade(context.Context, TradeRecord) error { return nil }
func (NopRecorder) Close() error                                   { return nil }

// MultiRecorder fans records out to several sinks. The first error stops the
// fan-out so a failed journal write is not silently swallowed.
type MultiRecorder []Recorder

var _ Recorder = MultiRecorder(nil)

func (m MultiRecorder) RecordOrder(ctx context.Context, rec OrderRecord) error {
	for _, r := range m {
		if err := r.RecordOrder(ctx, rec); err != nil {
			return err
		}
	}
	return nil
}

func (m MultiRecorder) RecordFill(ctx context.Context, rec FillRecord) error {
	for _, r := range m {
		if err := r.RecordFill(ctx, rec); err != nil {
			return err
		}
	}
	return nil
}

func (m MultiRecorder) RecordTrade(ctx context.Context, rec TradeRecord) error {
	for _, r := range m {
		if err := r.RecordTrade(ctx, rec); err != nil {
			return err
		}
	}
	return nil
}

func (m MultiRecorder) Close() error {
	var first error
	for _, r := range m {
		if err := r.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}
