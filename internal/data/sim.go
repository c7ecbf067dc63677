package data

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"tradegate/internal/domain"
)

// SimProvider serves deterministic synthetic bars for simulated runs and
// tests. Each symbol follows a smooth drift derived from a hash of its name,
// so runs are reproducible without a network connection.
type SimProvider struct {
	// Bars, when set, is served verbatim instead of the synthetic series.
	Bars map[string][]domain.Bar
	// AvgVolumes overrides per-symbol average volume. Missing symbols fall
	// back to DefaultAvgVolume.
	AvgVolumes       map[string]int64
	DefaultAvgVolume int64

	// Err, when set, is returned by every call.
	Err error
}

var _ Provider = (*SimProvider)(nil)

// NewSimProvider returns a simulator with a generous default liquidity so
// eligibility checks pass unless a test narrows them.
func NewSimProvider() *SimProvider {
	return &SimProvider{
		AvgVolumes:       make(map[string]int64),
		DefaultAvgVolume: 1_000_000,
	}
}

func (p *SimProvider) GetLatestBars(_ context.Context, symbols []string, limit int) (map[string][]domain.Bar, error) {
	if p.Err != nil {
		return nil, p.Err
	}
	out := make(map[string][]domain.Bar, len(symbols))
	for _, sym := range symbols {
		if p.Bars != nil {
			bars := p.Bars[sym]
			if len(bars) > limit {
				bars = bars[len(bars)-limit:]
			}
			out[sym] = bars
			continue
		}
		out[sym] = syntheticBars(sym, limit)
	}
	return out, nil
}

func (p *SimProvider) GetAvgVolume(_ context.Context, symbol string, _ int) (int64, error) {
	if p.Err != nil {
		return 0, p.Err
	}
	if v, ok := p.AvgVolumes[symbol]; ok {
		return v, nil
	}
	return p.DefaultAvgVolume, nil
}

// syntheticBars generates limit daily bars ending yesterday. The base price
// and drift derive from the symbol name so different symbols diverge.
func syntheticBars(symbol string, limit int) []domain.Bar {
	seed := 0
	for _, r := range symbol {
		seed = seed*31 + int(r)
	}
	base := decimal.NewFromInt(int64(50 + seed%200))
	drift := decimal.NewFromFloat(0.001 * float64(1+seed%5))

	end := time.Now().Truncate(24 * time.Hour)
	bars := make([]domain.Bar, 0, limit)
	price := base
	for i := limit; i > 0; i-- {
		open := price
		price = price.Add(price.Mul(drift))
		high := decimal.Max(open, price).Mul(decimal.NewFromFloat(1.002))
		low := decimal.Min(open, price).Mul(decimal.NewFromFloat(0.998))
		bars = append(bars, domain.Bar{
			Symbol:    symbol,
			Timestamp: end.AddDate(0, 0, -i),
			Open:      open,
			High:      high,
			Low:       low,
			Close:     price,
			Volume:    500_000 + int64(seed%100_000),
		})
	}
	return bars
}
