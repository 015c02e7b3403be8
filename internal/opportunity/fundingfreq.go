package opportunity

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"fundingarb/internal/core"
)

const defaultFundingInterval = 8 * time.Hour

// historyLookback is the window scanned for the two most-recent
// settlements fundingFrequency uses to derive h when a venue doesn't
// report its interval directly.
const historyLookback = 48 * time.Hour

// recentFundingHistory fetches the stored funding-rate observations for
// exchange/symbol over the last historyLookback and returns the two
// most recent, for fundingFrequency's tier-(ii) derivation. Returns nil
// if fewer than two observations are on record.
func (m *Monitor) recentFundingHistory(ctx context.Context, exchange, symbol string) []core.FundingRateRecord {
	if m.store == nil {
		return nil
	}
	until := time.Now()
	recs, err := m.store.FundingRateHistory(ctx, exchange, symbol, until.Add(-historyLookback), until)
	if err != nil || len(recs) < 2 {
		return nil
	}
	return recs[len(recs)-2:]
}

// fundingFrequency resolves the settlement period h and its per-day
// multiplier n = 24/h, per spec.md §4.2's precedence: (i) venue-reported
// interval, (ii) the gap between the two most-recent historical
// settlements if it falls within [1h, 24h], (iii) the 8h default.
func fundingFrequency(sample core.MarketSample, history []core.FundingRateRecord) (h time.Duration, n decimal.Decimal) {
	if sample.HasFunding && sample.FundingIntervalMs > 0 {
		h = time.Duration(sample.FundingIntervalMs) * time.Millisecond
		return h, periodsPerDay(h)
	}

	if len(history) >= 2 {
		newest, prev := history[0], history[1]
		if newest.SampleTimestampMs < prev.SampleTimestampMs {
			newest, prev = prev, newest
		}
		delta := time.Duration(newest.SampleTimestampMs-prev.SampleTimestampMs) * time.Millisecond
		if delta >= time.Hour && delta <= 24*time.Hour {
			return delta, periodsPerDay(delta)
		}
	}

	return defaultFundingInterval, periodsPerDay(defaultFundingInterval)
}

func periodsPerDay(h time.Duration) decimal.Decimal {
	hours := decimal.NewFromFloat(h.Hours())
	if hours.IsZero() {
		hours = decimal.NewFromInt(8)
	}
	return decimal.NewFromInt(24).Div(hours)
}
