package opportunity

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fundingarb/internal/core"
)

func TestFundingFrequencyPrefersVenueReportedInterval(t *testing.T) {
	sample := core.MarketSample{HasFunding: true, FundingIntervalMs: int64(4 * time.Hour / time.Millisecond)}
	h, n := fundingFrequency(sample, []core.FundingRateRecord{
		{SampleTimestampMs: 8 * 3600_000},
		{SampleTimestampMs: 0},
	})
	assert.Equal(t, 4*time.Hour, h)
	assert.True(t, n.Equal(decimal.NewFromInt(6)))
}

func TestFundingFrequencyDerivesFromHistoryGap(t *testing.T) {
	h, n := fundingFrequency(core.MarketSample{}, []core.FundingRateRecord{
		{SampleTimestampMs: 8 * 3600_000},
		{SampleTimestampMs: 4 * 3600_000},
	})
	assert.Equal(t, 4*time.Hour, h)
	assert.True(t, n.Equal(decimal.NewFromInt(6)))
}

func TestFundingFrequencyDerivesFromUnorderedHistory(t *testing.T) {
	h, n := fundingFrequency(core.MarketSample{}, []core.FundingRateRecord{
		{SampleTimestampMs: 0},
		{SampleTimestampMs: 8 * 3600_000},
	})
	assert.Equal(t, 8*time.Hour, h)
	assert.True(t, n.Equal(decimal.NewFromInt(3)))
}

func TestFundingFrequencyFallsBackWhenHistoryGapOutOfRange(t *testing.T) {
	h, n := fundingFrequency(core.MarketSample{}, []core.FundingRateRecord{
		{SampleTimestampMs: 25 * 3600_000},
		{SampleTimestampMs: 0},
	})
	assert.Equal(t, defaultFundingInterval, h)
	assert.True(t, n.Equal(decimal.NewFromInt(3)))
}

func TestFundingFrequencyFallsBackWithoutHistory(t *testing.T) {
	h, n := fundingFrequency(core.MarketSample{}, nil)
	assert.Equal(t, defaultFundingInterval, h)
	assert.True(t, n.Equal(decimal.NewFromInt(3)))
}

func TestRecentFundingHistoryFeedsAnnualizationFromStore(t *testing.T) {
	snap := fixedSnapshot{}
	m, st := newTestMonitor(t, snap)
	ctx := context.Background()

	base := time.Now().Add(-6 * time.Hour)
	require.NoError(t, st.UpsertFundingRate(ctx, core.FundingRateRecord{
		Exchange: "alpha", Symbol: "BTC/USDT", SampleTimestampMs: base.UnixMilli(), Rate: decimal.NewFromFloat(0.0002),
	}))
	require.NoError(t, st.UpsertFundingRate(ctx, core.FundingRateRecord{
		Exchange: "alpha", Symbol: "BTC/USDT", SampleTimestampMs: base.Add(4 * time.Hour).UnixMilli(), Rate: decimal.NewFromFloat(0.0002),
	}))

	sample := baseSample("alpha")
	sample.FundingIntervalMs = 0
	opp := m.detectS2A(ctx, "alpha", "BTC/USDT", sample)
	require.NotNil(t, opp)

	// n = 24/4 = 6 settlements/day, so annualized = returnPct * 6 * 365 * 100.
	expected := opp.ExpectedReturnPct.Mul(decimal.NewFromInt(6)).Mul(decimal.NewFromInt(365)).Mul(decimal.NewFromInt(100))
	assert.True(t, opp.AnnualizedReturnPct.Equal(expected))
}
