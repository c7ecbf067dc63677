package strategy

import (
	"fmt"

	"github.com/shopspring/decimal"

	"tradegate/internal/domain"
)

// Compile-time interface check.
var _ Strategy = (*SMACross)(nil)

// SMACross is a simple moving average crossover strategy: a buy signal when
// the fast SMA crosses above the slow SMA on the latest bar (golden cross),
// a sell when it crosses below (death cross). No cross, no signal.
type SMACross struct {
	name       string
	fastPeriod int
	slowPeriod int
}

// NewSMACross creates the strategy. name becomes part of every idempotency
// key this strategy produces.
func NewSMACross(name string, fast, slow int) (*SMACross, error) {
	if fast <= 0 || slow <= 0 {
		return nil, fmt.Errorf("sma periods must be positive, got fast=%d slow=%d", fast, slow)
	}
	if fast >= slow {
		return nil, fmt.Errorf("fast period %d must be shorter than slow period %d", fast, slow)
	}
	return &SMACross{name: name, fastPeriod: fast, slowPeriod: slow}, nil
}

func (s *SMACross) Name() string { return s.name }

// MinBars needs one bar beyond the slow period to compare against the
// previous cycle's averages.
func (s *SMACross) MinBars() int { return s.slowPeriod + 1 }

// Evaluate detects a cross between the previous and the latest bar. The
// signal's timestamp is the latest bar's timestamp, which keeps the
// idempotency key stable for re-evaluations of the same bar.
func (s *SMACross) Evaluate(symbol string, bars []domain.Bar) (domain.Signal, bool) {
	if len(bars) < s.MinBars() {
		return domain.Signal{}, false
	}

	fastNow := sma(bars, s.fastPeriod, 0)
	slowNow := sma(bars, s.slowPeriod, 0)
	fastPrev := sma(bars, s.fastPeriod, 1)
	slowPrev := sma(bars, s.slowPeriod, 1)

	latest := bars[len(bars)-1]
	base := domain.Signal{
		Symbol:    symbol,
		Timestamp: latest.Timestamp,
		Price:     latest.Close,
		HasPrice:  latest.Close.IsPositive(),
	}

	switch {
	case fastPrev.LessThanOrEqual(slowPrev) && fastNow.GreaterThan(slowNow):
		base.Side = domain.Buy
		base.Reason = fmt.Sprintf("golden cross: sma%d %s > sma%d %s",
			s.fastPeriod, fastNow.StringFixed(2), s.slowPeriod, slowNow.StringFixed(2))
		return base, true

	case fastPrev.GreaterThanOrEqual(slowPrev) && fastNow.LessThan(slowNow):
		base.Side = domain.Sell
		base.Reason = fmt.Sprintf("death cross: sma%d %s < sma%d %s",
			s.fastPeriod, fastNow.StringFixed(2), s.slowPeriod, slowNow.StringFixed(2))
		return base, true
	}

	return domain.Signal{}, false
}

// sma averages the closes of the last period bars, skipping offset bars from
// the end. Callers guarantee len(bars) >= period+offset.
func sma(bars []domain.Bar, period, offset int) decimal.Decimal {
	end := len(bars) - offset
	sum := decimal.Zero
	for _, b := range bars[end-period : end] {
		sum = sum.Add(b.Close)
	}
	return sum.Div(decimal.NewFromInt(int64(period)))
}
