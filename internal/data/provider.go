// Package data defines the market-data provider contract and provides the
// Alpaca implementation and a deterministic simulator.
package data

import (
	"context"

	"tradegate/internal/domain"
)

// Provider supplies the bars and liquidity figures the strategy and the
// eligibility checks consume.
type Provider interface {
	// GetLatestBars returns up to limit most-recent bars per symbol, ordered
	// oldest to newest. Symbols with no data map to an empty slice.
	GetLatestBars(ctx context.Context, symbols []string, limit int) (map[string][]domain.Bar, error)

	// GetAvgVolume returns the trailing average daily volume for a symbol
	// over the lookback window.
	GetAvgVolume(ctx context.Context, symbol string, lookbackDays int) (int64, error)
}
