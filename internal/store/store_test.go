package store

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fundingarb/internal/core"
)

func newTestStore(t *testing.T) core.Store {
	t.Helper()
	s, err := OpenSQLite(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestMarketPriceUpsertAndRecent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	rec := core.MarketPriceRecord{
		Exchange: "binance", Symbol: "BTC/USDT", TimestampMs: time.Now().UnixMilli(),
		SpotPrice: decimal.NewFromFloat(65000.5), FuturesPrice: decimal.NewFromFloat(65010.25),
		MakerFee: decimal.NewFromFloat(0.0002), TakerFee: decimal.NewFromFloat(0.0004),
	}
	require.NoError(t, s.UpsertMarketPrice(ctx, rec))
	// overwrite same key
	rec.SpotPrice = decimal.NewFromFloat(65001)
	require.NoError(t, s.UpsertMarketPrice(ctx, rec))

	rows, err := s.RecentMarketPrices(ctx, time.Now().Add(-time.Hour))
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.True(t, rows[0].SpotPrice.Equal(decimal.NewFromFloat(65001)))
}

func TestFundingRateHistoryRange(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	base := time.Now().Add(-24 * time.Hour)

	for i := 0; i < 3; i++ {
		ts := base.Add(time.Duration(i) * 8 * time.Hour)
		require.NoError(t, s.UpsertFundingRate(ctx, core.FundingRateRecord{
			Exchange: "binance", Symbol: "BTC/USDT", SampleTimestampMs: ts.UnixMilli(),
			Rate: decimal.NewFromFloat(0.0001), NextFundingTime: ts.Add(8 * time.Hour), FundingIntervalMs: 28800000,
		}))
	}

	history, err := s.FundingRateHistory(ctx, "binance", "BTC/USDT", base, time.Now())
	require.NoError(t, err)
	assert.Len(t, history, 3)
}

func TestConfigEntryRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	entry := core.ConfigEntry{Category: "risk", Key: "max_concurrent_positions", Value: `10`, IsHotReload: true, UpdatedAt: time.Now()}
	require.NoError(t, s.UpsertConfigEntry(ctx, entry))

	got, err := s.GetConfigEntry(ctx, "risk", "max_concurrent_positions")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "10", got.Value)

	missing, err := s.GetConfigEntry(ctx, "risk", "nonexistent")
	require.NoError(t, err)
	assert.Nil(t, missing)

	entries, err := s.ListConfigEntries(ctx)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestTradingPairConfigRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	cfg := core.TradingPairConfig{
		Symbol: "ETH/USDT", Exchange: "binance",
		MinFundingDiff: decimal.NewFromFloat(0.0005), PositionSize: decimal.NewFromInt(1000),
		ExecutionMode: core.ExecutionAuto, MaxPositions: 3, Priority: 1, IsActive: true,
		TrailingStop: core.TrailingStopConfig{Enabled: true, ActivationPct: decimal.NewFromFloat(0.01), CallbackPct: decimal.NewFromFloat(0.003)},
		UpdatedAt:    time.Now(),
	}
	require.NoError(t, s.UpsertTradingPairConfig(ctx, cfg))

	got, err := s.GetTradingPairConfig(ctx, "ETH/USDT", "binance")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.True(t, got.MinFundingDiff.Equal(decimal.NewFromFloat(0.0005)))
	assert.True(t, got.TrailingStop.Enabled)
	assert.Equal(t, core.ExecutionAuto, got.ExecutionMode)

	all, err := s.ListTradingPairConfigs(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestExchangeAccountActiveFilter(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.UpsertExchangeAccount(ctx, core.ExchangeAccount{ExchangeName: "binance", APIKey: "k", APISecret: "s", IsActive: true, CreatedAt: time.Now()}))
	require.NoError(t, s.UpsertExchangeAccount(ctx, core.ExchangeAccount{ExchangeName: "okx", APIKey: "k2", APISecret: "s2", IsActive: false, CreatedAt: time.Now()}))

	active, err := s.ListActiveExchangeAccounts(ctx)
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, "binance", active[0].ExchangeName)
}

func TestPositionInsertUpdateGet(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	p := &core.Position{
		Strategy: core.StrategyS1, Symbol: "BTC/USDT", Exchanges: []string{"binance", "okx"},
		Entry: core.EntryDetails{
			LegPrices:   map[string]decimal.Decimal{"binance": decimal.NewFromInt(65000), "okx": decimal.NewFromInt(65010)},
			FundingRate: decimal.NewFromFloat(0.0003),
		},
		Size: decimal.NewFromInt(1), Status: core.PositionOpen, OpenTime: time.Now(),
		AccruedFundingInstants: map[int64]bool{},
	}

	id, err := s.InsertPosition(ctx, p)
	require.NoError(t, err)
	require.NotZero(t, id)

	got, err := s.GetPosition(ctx, id)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, core.StrategyS1, got.Strategy)
	assert.ElementsMatch(t, []string{"binance", "okx"}, got.Exchanges)
	assert.True(t, got.Entry.LegPrices["binance"].Equal(decimal.NewFromInt(65000)))

	got.Status = core.PositionClosed
	got.CloseTime = time.Now()
	got.RealizedPnL = decimal.NewFromFloat(12.5)
	got.AccruedFundingInstants[1700000000000] = true
	require.NoError(t, s.UpdatePosition(ctx, *got))

	reloaded, err := s.GetPosition(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, core.PositionClosed, reloaded.Status)
	assert.True(t, reloaded.RealizedPnL.Equal(decimal.NewFromFloat(12.5)))
	assert.True(t, reloaded.AccruedFundingInstants[1700000000000])
	assert.False(t, reloaded.CloseTime.IsZero())

	open, err := s.ListOpenPositions(ctx)
	require.NoError(t, err)
	assert.Len(t, open, 0)

	all, err := s.ListPositions(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestOrderInsertUpdateList(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	o := &core.Order{
		StrategyType: core.StrategyS2A, Exchange: "binance", Symbol: "BTC/USDT",
		Side: core.SideBuy, Type: core.OrderTypeMarket, Price: decimal.NewFromInt(65000),
		Amount: decimal.NewFromInt(1), Status: core.OrderPending, CreateTime: time.Now(), UpdateTime: time.Now(),
	}
	id, err := s.InsertOrder(ctx, o)
	require.NoError(t, err)

	o.ID = id
	o.Status = core.OrderFilled
	o.Filled = decimal.NewFromInt(1)
	o.VenueOrderID = "12345"
	require.NoError(t, s.UpdateOrder(ctx, *o))

	byStatus, err := s.ListOrdersByStatus(ctx, core.OrderFilled, core.OrderPartiallyFilled)
	require.NoError(t, err)
	require.Len(t, byStatus, 1)
	assert.Equal(t, "12345", byStatus[0].VenueOrderID)

	forPos, err := s.ListOrdersForPosition(ctx, o.StrategyID)
	require.NoError(t, err)
	assert.Len(t, forPos, 1)
}

func TestRiskEventInsertAndUnhandled(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	id, err := s.InsertRiskEvent(ctx, &core.RiskEvent{
		Severity: core.SeverityCritical, EventType: "leg_atomicity_breach", Description: "rollback failed",
		Timestamp: time.Now(),
	})
	require.NoError(t, err)
	require.NotZero(t, id)

	unhandled, err := s.ListUnhandledRiskEvents(ctx)
	require.NoError(t, err)
	require.Len(t, unhandled, 1)
	assert.Equal(t, core.SeverityCritical, unhandled[0].Severity)
}
