// Package state persists the trader's restart-safety record: the set of
// client order ids ever submitted, per-day realized PnL, and the current
// trading-day marker. The submitted-id set is the sole defense against
// duplicate order submission across restarts, so it only ever grows.
package state

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"tradegate/internal/util"
)

// State is the persisted trading state. It is serialized as a single JSON
// document and rewritten wholesale on every mutation.
type State struct {
	RunID string `json:"run_id"`

	// LastProcessed maps symbol → last processed signal timestamp (RFC 3339).
	LastProcessed map[string]string `json:"last_processed_timestamp"`

	// SubmittedOrderIDs holds every client order id ever submitted. Entries
	// are never removed: removing one would permit replay of an already
	// executed order.
	SubmittedOrderIDs map[string]struct{} `json:"-"`

	// DailyRealizedPnL maps trading day (YYYY-MM-DD) → realized PnL as a
	// decimal string.
	DailyRealizedPnL map[string]string `json:"daily_realized_pnl"`

	// DailyDate is the current trading day in the exchange timezone. A
	// mismatch at load time signals a day rollover.
	DailyDate string `json:"daily_date"`
}

// stateDoc is the on-disk shape: the submitted-id set serializes as an
// unordered list.
type stateDoc struct {
	RunID             string            `json:"run_id"`
	LastProcessed     map[string]string `json:"last_processed_timestamp"`
	SubmittedOrderIDs []string          `json:"submitted_client_order_ids"`
	DailyRealizedPnL  map[string]string `json:"daily_realized_pnl"`
	DailyDate         string            `json:"daily_date"`
}

// New returns an empty state tagged with the given run id and dated today in
// the exchange timezone.
func New(runID string) *State {
	return &State{
		RunID:             runID,
		LastProcessed:     make(map[string]string),
		SubmittedOrderIDs: make(map[string]struct{}),
		DailyRealizedPnL:  make(map[string]string),
		DailyDate:         util.TodayEastern(),
	}
}

// Load reads the state file at path. A missing or corrupt file degrades to a
// fresh empty state tagged "initial" — refusing to start would be worse than
// losing history, since reconciliation repopulates the open-order view from
// the venue right after load. Day rollover updates only the marker;
// historical PnL entries stay keyed under their original date.
func Load(path string) *State {
	today := util.TodayEastern()

	data, err := os.ReadFile(path)
	if err != nil {
		return New("initial")
	}

	var doc stateDoc
	if err := json.Unmarshal(data, &doc); err != nil {
		return New("initial")
	}

	s := &State{
		RunID:             doc.RunID,
		LastProcessed:     doc.LastProcessed,
		SubmittedOrderIDs: make(map[string]struct{}, len(doc.SubmittedOrderIDs)),
		DailyRealizedPnL:  doc.DailyRealizedPnL,
		DailyDate:         doc.DailyDate,
	}
	if s.LastProcessed == nil {
		s.LastProcessed = make(map[string]string)
	}
	if s.DailyRealizedPnL == nil {
		s.DailyRealizedPnL = make(map[string]string)
	}
	for _, id := range doc.SubmittedOrderIDs {
		s.SubmittedOrderIDs[id] = struct{}{}
	}

	if s.DailyDate != today {
		// New trading day: today's PnL reads as zero because the bucket does
		// not exist yet. Prior days are retained untouched.
		s.DailyDate = today
	}

	return s
}

// Save writes the state to path atomically (temp file + rename). Unlike Load,
// errors propagate: silently losing a just-submitted order id is the one
// failure this design cannot tolerate.
func Save(s *State, path string) error {
	doc := stateDoc{
		RunID:             s.RunID,
		LastProcessed:     s.LastProcessed,
		SubmittedOrderIDs: make([]string, 0, len(s.SubmittedOrderIDs)),
		DailyRealizedPnL:  s.DailyRealizedPnL,
		DailyDate:         s.DailyDate,
	}
	for id := range s.SubmittedOrderIDs {
		doc.SubmittedOrderIDs = append(doc.SubmittedOrderIDs, id)
	}

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("marshalling state: %w", err)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating state dir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".state-*.json")
	if err != nil {
		return fmt.Errorf("creating temp state file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("writing state: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("closing state file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("replacing state file: %w", err)
	}
	return nil
}

// BeginSession stamps a fresh run id for this process and returns it. The
// run id tags audit rows; two sessions must never share one, even when the
// state file carries the previous session's id.
func (s *State) BeginSession() string {
	s.RunID = uuid.NewString()
	return s.RunID
}

// HasSubmitted reports whether the client order id is already recorded.
func (s *State) HasSubmitted(clientOrderID string) bool {
	_, ok := s.SubmittedOrderIDs[clientOrderID]
	return ok
}

// MarkSubmitted records a client order id. Idempotent.
func (s *State) MarkSubmitted(clientOrderID string) {
	s.SubmittedOrderIDs[clientOrderID] = struct{}{}
}

// DailyPnL returns the realized PnL recorded for day (YYYY-MM-DD), or zero
// when no bucket exists. An empty day means today in the exchange timezone.
func (s *State) DailyPnL(day string) decimal.Decimal {
	if day == "" {
		day = util.TodayEastern()
	}
	str, ok := s.DailyRealizedPnL[day]
	if !ok {
		return decimal.Zero
	}
	d, err := decimal.NewFromString(str)
	if err != nil {
		return decimal.Zero
	}
	return d
}

// AddDailyPnL accumulates delta into the day's PnL bucket. An empty day means
// today in the exchange timezone.
func (s *State) AddDailyPnL(delta decimal.Decimal, day string) {
	if day == "" {
		day = util.TodayEastern()
	}
	s.DailyRealizedPnL[day] = s.DailyPnL(day).Add(delta).String()
}

// BuildClientOrderID derives the deterministic idempotency key for a trading
// intent. It is a pure function of its inputs — the same signal always maps
// to the same key regardless of wall-clock time or process restarts.
//
// Format: {strategy}_{symbol}_{side}_{YYYYMMDDHHMMSS}
func BuildClientOrderID(symbol, side string, signalTimestamp time.Time, strategyName string) string {
	return fmt.Sprintf("%s_%s_%s_%s", strategyName, symbol, side, signalTimestamp.Format("20060102150405"))
}
