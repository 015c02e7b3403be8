package executor

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"fundingarb/internal/core"
)

const fundingWriteThreshold = 0.0001

// accrueFunding recomputes Position.FundingCollected from persisted rate
// history between OpenTime and now, enumerating settlement instants and
// skipping any already folded in via AccruedFundingInstants (spec.md
// §4.3.3). It never accumulates by local tick. Returns true if the
// position changed enough to warrant a store write.
func (e *Executor) accrueFunding(ctx context.Context, pos *core.Position) (bool, error) {
	var delta decimal.Decimal
	var err error

	switch pos.Strategy {
	case core.StrategyS1:
		delta, err = e.accrueS1(ctx, pos)
	default:
		delta, err = e.accrueSingleVenue(ctx, pos)
	}
	if err != nil {
		return false, err
	}

	if delta.Abs().LessThan(decimal.NewFromFloat(fundingWriteThreshold)) {
		return false, nil
	}

	pos.FundingCollected = pos.FundingCollected.Add(delta)
	return true, nil
}

// instantRate is one deduplicated settlement instant, keeping the newest
// sample recorded for it.
type instantRate struct {
	ms      int64
	rate    decimal.Decimal
	sampled int64
}

func dedupeInstants(records []core.FundingRateRecord) map[int64]instantRate {
	out := make(map[int64]instantRate)
	for _, r := range records {
		ms := r.NextFundingTime.UnixMilli()
		if existing, ok := out[ms]; !ok || r.SampleTimestampMs > existing.sampled {
			out[ms] = instantRate{ms: ms, rate: r.Rate, sampled: r.SampleTimestampMs}
		}
	}
	return out
}

func (e *Executor) accrueSingleVenue(ctx context.Context, pos *core.Position) (decimal.Decimal, error) {
	if len(pos.Exchanges) == 0 {
		return decimal.Zero, nil
	}
	exchange := pos.Exchanges[0]

	history, err := e.store.FundingRateHistory(ctx, exchange, pos.Symbol, pos.OpenTime, time.Now())
	if err != nil {
		return decimal.Zero, err
	}

	sign := decimal.NewFromInt(1)
	if pos.Strategy == core.StrategyS3 && pos.Entry.Direction == core.DirectionLong {
		sign = decimal.NewFromInt(-1)
	}

	delta := decimal.Zero
	for ms, inst := range dedupeInstants(history) {
		if pos.AccruedFundingInstants[ms] {
			continue
		}
		delta = delta.Add(pos.Size.Mul(inst.rate).Mul(sign))
		pos.AccruedFundingInstants[ms] = true
	}
	return delta, nil
}

func (e *Executor) accrueS1(ctx context.Context, pos *core.Position) (decimal.Decimal, error) {
	if len(pos.Exchanges) != 2 {
		return decimal.Zero, nil
	}
	longEx, shortEx := pos.Exchanges[0], pos.Exchanges[1]

	longHist, err := e.store.FundingRateHistory(ctx, longEx, pos.Symbol, pos.OpenTime, time.Now())
	if err != nil {
		return decimal.Zero, err
	}
	shortHist, err := e.store.FundingRateHistory(ctx, shortEx, pos.Symbol, pos.OpenTime, time.Now())
	if err != nil {
		return decimal.Zero, err
	}

	longByInstant := dedupeInstants(longHist)
	shortByInstant := dedupeInstants(shortHist)

	delta := decimal.Zero
	for ms, longRate := range longByInstant {
		shortRate, ok := shortByInstant[ms]
		if !ok || pos.AccruedFundingInstants[ms] {
			continue
		}
		delta = delta.Add(pos.Size.Mul(shortRate.rate.Sub(longRate.rate)))
		pos.AccruedFundingInstants[ms] = true
	}
	return delta, nil
}
