package audit

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/shopspring/decimal"

	_ "modernc.org/sqlite" // Pure-Go SQLite driver.
)

// Compile-time interface check.
var _ Recorder = (*Journal)(nil)

// Journal is the SQLite-backed audit journal. Unlike the CSV sink it is
// queryable, which is what the cost summary tool reads.
type Journal struct {
	db *sql.DB
}

const journalSchema = `
CREATE TABLE IF NOT EXISTS orders (
	id              INTEGER PRIMARY KEY AUTOINCREMENT,
	version         INTEGER NOT NULL,
	run_id          TEXT NOT NULL,
	ts              TEXT NOT NULL,
	client_order_id TEXT NOT NULL,
	symbol          TEXT NOT NULL,
	side            TEXT NOT NULL,
	quantity        INTEGER NOT NULL,
	order_type      TEXT NOT NULL,
	limit_price     TEXT,
	outcome         TEXT NOT NULL,
	reject_category TEXT,
	reject_reason   TEXT
);
CREATE TABLE IF NOT EXISTS fills (
	id                   INTEGER PRIMARY KEY AUTOINCREMENT,
	version              INTEGER NOT NULL,
	run_id               TEXT NOT NULL,
	ts                   TEXT NOT NULL,
	client_order_id      TEXT NOT NULL,
	broker_order_id      TEXT NOT NULL,
	symbol               TEXT NOT NULL,
	side                 TEXT NOT NULL,
	quantity             INTEGER NOT NULL,
	fill_price           TEXT NOT NULL,
	expected_price       TEXT,
	slippage_abs         TEXT,
	slippage_bps         TEXT,
	spread_bps_at_submit TEXT
);
CREATE TABLE IF NOT EXISTS trades (
	id                   INTEGER PRIMARY KEY AUTOINCREMENT,
	version              INTEGER NOT NULL,
	run_id               TEXT NOT NULL,
	ts                   TEXT NOT NULL,
	client_order_id      TEXT NOT NULL,
	symbol               TEXT NOT NULL,
	side                 TEXT NOT NULL,
	quantity             INTEGER NOT NULL,
	fill_price           TEXT NOT NULL,
	signal_reason        TEXT NOT NULL,
	expected_price       TEXT,
	slippage_abs         TEXT,
	slippage_bps         TEXT,
	spread_bps_at_submit TEXT
);
CREATE INDEX IF NOT EXISTS idx_orders_ts ON orders(ts);
CREATE INDEX IF NOT EXISTS idx_fills_ts ON fills(ts);
CREATE INDEX IF NOT EXISTS idx_trades_ts ON trades(ts);
`

// NewJournal opens (or creates) the journal database at dbPath and ensures
// the schema exists.
func NewJournal(dbPath string) (*Journal, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("creating journal dir: %w", err)
	}
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening journal: %w", err)
	}
	if _, err := db.Exec(journalSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating journal schema: %w", err)
	}
	return &Journal{db: db}, nil
}

// Close closes the underlying database connection.
func (j *Journal) Close() error {
	return j.db.Close()
}

// ---------------------------------------------------------------------------
// Recorder implementation
// ---------------------------------------------------------------------------

func (j *Journal) RecordOrder(ctx context.Context, rec OrderRecord) error {
	_, err := j.db.ExecContext(ctx, `
		INSERT INTO orders
			(version, run_id, ts, client_order_id, symbol, side, quantity,
			 order_type, limit_price, outcome, reject_category, reject_reason)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.Version, rec.RunID, rec.Timestamp.UTC().Format(time.RFC3339Nano),
		rec.ClientOrderID, rec.Symbol, rec.Side, rec.Quantity,
		rec.OrderType, rec.LimitPrice, string(rec.Outcome),
		rec.RejectCategory, rec.RejectReason)
	if err != nil {
		return fmt.Errorf("journaling order: %w", err)
	}
	return nil
}

func (j *Journal) RecordFill(ctx context.Context, rec FillRecord) error {
	var expected, slipAbs, slipBPS, spread sql.NullString
	if rec.Costs != nil {
		expected = sql.NullString{String: rec.Costs.ExpectedPrice.String(), Valid: true}
		slipAbs = sql.NullString{String: rec.Costs.SlippageAbs.String(), Valid: true}
		slipBPS = sql.NullString{String: rec.Costs.SlippageBPS.String(), Valid: true}
		spread = sql.NullString{String: rec.Costs.SpreadBPSAtSubmit.String(), Valid: true}
	}
	_, err := j.db.ExecContext(ctx, `
		INSERT INTO fills
			(version, run_id, ts, client_order_id, broker_order_id, symbol,
			 side, quantity, fill_price, expected_price, slippage_abs,
			 slippage_bps, spread_bps_at_submit)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.Version, rec.RunID, rec.Timestamp.UTC().Format(time.RFC3339Nano),
		rec.ClientOrderID, rec.BrokerOrderID, rec.Symbol,
		rec.Side, rec.Quantity, rec.FillPrice.String(),
		expected, slipAbs, slipBPS, spread)
	if err != nil {
		return fmt.Errorf("journaling fill: %w", err)
	}
	return nil
}

func (j *Journal) RecordTrade(ctx context.Context, rec TradeRecord) error {
	var expected, slipAbs, slipBPS, spread sql.NullString
	if rec.Costs != nil {
		expected = sql.NullString{String: rec.Costs.ExpectedPrice.String(), Valid: true}
		slipAbs = sql.NullString{String: rec.Costs.SlippageAbs.String(), Valid: true}
		slipBPS = sql.NullString{String: rec.Costs.SlippageBPS.String(), Valid: true}
		spread = sql.NullString{String: rec.Costs.SpreadBPSAtSubmit.String(), Valid: true}
	}
	_, err := j.db.ExecContext(ctx, `
		INSERT INTO trades
			(version, run_id, ts, client_order_id, symbol, side, quantity,
			 fill_price, signal_reason, expected_price, slippage_abs,
			 slippage_bps, spread_bps_at_submit)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.Version, rec.RunID, rec.Timestamp.UTC().Format(time.RFC3339Nano),
		rec.ClientOrderID, rec.Symbol, rec.Side, rec.Quantity,
		rec.FillPrice.String(), rec.SignalReason,
		expected, slipAbs, slipBPS, spread)
	if err != nil {
		return fmt.Errorf("journaling trade: %w", err)
	}
	return nil
}

// ---------------------------------------------------------------------------
// Queries
// ---------------------------------------------------------------------------

// ListFills returns fills journaled on the given UTC day (YYYY-MM-DD),
// oldest first. An empty day returns every fill.
func (j *Journal) ListFills(ctx context.Context, day string) ([]FillRecord, error) {
	query := `
		SELECT version, run_id, ts, client_order_id, broker_order_id, symbol,
		       side, quantity, fill_price, expected_price, slippage_abs,
		       slippage_bps, spread_bps_at_submit
		FROM fills`
	args := []any{}
	if day != "" {
		query += ` WHERE ts LIKE ?`
		args = append(args, day+"%")
	}
	query += ` ORDER BY ts ASC`

	rows, err := j.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing fills: %w", err)
	}
	defer rows.Close()

	var fills []FillRecord
	for rows.Next() {
		var rec FillRecord
		var ts, fillPrice string
		var expected, slipAbs, slipBPS, spread sql.NullString
		if err := rows.Scan(&rec.Version, &rec.RunID, &ts, &rec.ClientOrderID,
			&rec.BrokerOrderID, &rec.Symbol, &rec.Side, &rec.Quantity,
			&fillPrice, &expected, &slipAbs, &slipBPS, &spread); err != nil {
			return nil, fmt.Errorf("scanning fill: %w", err)
		}
		rec.Timestamp, err = time.Parse(time.RFC3339Nano, ts)
		if err != nil {
			return nil, fmt.Errorf("parsing fill timestamp %q: %w", ts, err)
		}
		rec.FillPrice, err = decimal.NewFromString(fillPrice)
		if err != nil {
			return nil, fmt.Errorf("parsing fill price %q: %w", fillPrice, err)
		}
		if expected.Valid {
			costs := &CostMetrics{}
			costs.ExpectedPrice, _ = decimal.NewFromString(expected.String)
			costs.SlippageAbs, _ = decimal.NewFromString(slipAbs.String)
			costs.SlippageBPS, _ = decimal.NewFromString(slipBPS.String)
			costs.SpreadBPSAtSubmit, _ = decimal.NewFromString(spread.String)
			rec.Costs = costs
		}
		fills = append(fills, rec)
	}
	return fills, rows.Err()
}

// ListTrades returns trades journaled on the given UTC day (YYYY-MM-DD),
// oldest first. An empty day returns every trade.
func (j *Journal) ListTrades(ctx context.Context, day string) ([]TradeRecord, error) {
	query := `
		SELECT version, run_id, ts, client_order_id, symbol, side, quantity,
		       fill_price, signal_reason, expected_price, slippage_abs,
		       slippage_bps, spread_bps_at_submit
		FROM trades`
	args := []any{}
	if day != "" {
		query += ` WHERE ts LIKE ?`
		args = append(args, day+"%")
	}
	query += ` ORDER BY ts ASC`

	rows, err := j.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing trades: %w", err)
	}
	defer rows.Close()

	var trades []TradeRecord
	for rows.Next() {
		var rec TradeRecord
		var ts, fillPrice string
		var expected, slipAbs, slipBPS, spread sql.NullString
		if err := rows.Scan(&rec.Version, &rec.RunID, &ts, &rec.ClientOrderID,
			&rec.Symbol, &rec.Side, &rec.Quantity, &fillPrice,
			&rec.SignalReason, &expected, &slipAbs, &slipBPS, &spread); err != nil {
			return nil, fmt.Errorf("scanning trade: %w", err)
		}
		rec.Timestamp, err = time.Parse(time.RFC3339Nano, ts)
		if err != nil {
			return nil, fmt.Errorf("parsing trade timestamp %q: %w", ts, err)
		}
		rec.FillPrice, err = decimal.NewFromString(fillPrice)
		if err != nil {
			return nil, fmt.Errorf("parsing trade fill price %q: %w", fillPrice, err)
		}
		if expected.Valid {
			costs := &CostMetrics{}
			costs.ExpectedPrice, _ = decimal.NewFromString(expected.String)
			costs.SlippageAbs, _ = decimal.NewFromString(slipAbs.String)
			costs.SlippageBPS, _ = decimal.NewFromString(slipBPS.String)
			costs.SpreadBPSAtSubmit, _ = decimal.NewFromString(spread.String)
			rec.Costs = costs
		}
		trades = append(trades, rec)
	}
	return trades, rows.Err()
}

// RejectionCounts returns how many orders were rejected per category on the
// given UTC day. An empty day counts every rejection.
func (j *Journal) RejectionCounts(ctx context.Context, day string) (map[string]int, error) {
	query := `
		SELECT reject_category, COUNT(*)
		FROM orders
		WHERE outcome = ?`
	args := []any{string(OutcomeRejected)}
	if day != "" {
		query += ` AND ts LIKE ?`
		args = append(args, day+"%")
	}
	query += ` GROUP BY reject_category`

	rows, err := j.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("counting rejections: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var category string
		var n int
		if err := rows.Scan(&category, &n); err != nil {
			return nil, fmt.Errorf("scanning rejection count: %w", err)
		}
		counts[category] = n
	}
	return counts, rows.Err()
}
