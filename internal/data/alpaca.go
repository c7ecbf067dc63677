package data

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/alpacahq/alpaca-trade-api-go/v3/marketdata"
	"github.com/shopspring/decimal"

	"tradegate/internal/domain"
	"tradegate/internal/util"
)

// AlpacaProvider fetches bars from the Alpaca market data API.
type AlpacaProvider struct {
	client  *marketdata.Client
	feed    string
	limiter *util.RateLimiter
	log     *slog.Logger
}

var _ Provider = (*AlpacaProvider)(nil)

// NewAlpacaProvider builds a provider against the Alpaca data API. feed is
// "iex" or "sip" depending on the account's data subscription.
func NewAlpacaProvider(apiKey, apiSecret, baseURL, feed string, log *slog.Logger) *AlpacaProvider {
	client := marketdata.NewClient(marketdata.ClientOpts{
		APIKey:    apiKey,
		APISecret: apiSecret,
		BaseURL:   baseURL,
	})
	return &AlpacaProvider{
		client: client,
		feed:   feed,
		// Alpaca free-tier data allows 200 requests/min.
		limiter: util.NewRateLimiter(200),
		log:     log,
	}
}

func (p *AlpacaProvider) GetLatestBars(ctx context.Context, symbols []string, limit int) (map[string][]domain.Bar, error) {
	if len(symbols) == 0 {
		return map[string][]domain.Bar{}, nil
	}
	if err := p.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	// Daily bars; pad the window for weekends and holidays.
	end := time.Now()
	start := end.AddDate(0, 0, -(limit*2 + 10))

	var raw map[string][]marketdata.Bar
	err := util.Retry(ctx, 3, time.Second, func() error {
		var err error
		raw, err = p.client.GetMultiBars(symbols, marketdata.GetBarsRequest{
			TimeFrame: marketdata.OneDay,
			Start:     start,
			End:       end,
			Feed:      marketdata.Feed(p.feed),
		})
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("get bars: %w", err)
	}

	out := make(map[string][]domain.Bar, len(symbols))
	for _, sym := range symbols {
		bars := raw[sym]
		if len(bars) > limit {
			bars = bars[len(bars)-limit:]
		}
		converted := make([]domain.Bar, 0, len(bars))
		for _, b := range bars {
			converted = append(converted, convertBar(sym, b))
		}
		out[sym] = converted
	}
	return out, nil
}

func (p *AlpacaProvider) GetAvgVolume(ctx context.Context, symbol string, lookbackDays int) (int64, error) {
	if lookbackDays <= 0 {
		return 0, fmt.Errorf("lookback days must be positive, got %d", lookbackDays)
	}
	bars, err := p.GetLatestBars(ctx, []string{symbol}, lookbackDays)
	if err != nil {
		return 0, err
	}
	series := bars[symbol]
	if len(series) == 0 {
		return 0, nil
	}
	var total int64
	for _, b := range series {
		total += b.Volume
	}
	return total / int64(len(series)), nil
}

func convertBar(symbol string, b marketdata.Bar) domain.Bar {
	return domain.Bar{
		Symbol:    symbol,
		Timestamp: b.Timestamp,
		Open:      decimal.NewFromFloat(b.Open),
		High:      decimal.NewFromFloat(b.High),
		Low:       decimal.NewFromFloat(b.Low),
		Close:     decimal.NewFromFloat(b.Close),
		Volume:    int64(b.Volume),
	}
}
