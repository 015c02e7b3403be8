package risk

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fundingarb/internal/config"
	"fundingarb/internal/core"
	"fundingarb/internal/store"
)

type noopLogger struct{}

func (noopLogger) Debug(string, ...interface{})                    {}
func (noopLogger) Info(string, ...interface{})                     {}
func (noopLogger) Warn(string, ...interface{})                     {}
func (noopLogger) Error(string, ...interface{})                    {}
func (noopLogger) Fatal(string, ...interface{})                    {}
func (n noopLogger) WithField(string, interface{}) core.Logger     { return n }
func (n noopLogger) WithFields(map[string]interface{}) core.Logger { return n }

// newTestStore opens an in-memory store and a default config the caller can
// mutate before building a Manager from it via buildManager.
func newTestStore(t *testing.T) (core.Store, *config.Config) {
	t.Helper()
	st, err := store.OpenSQLite(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	cfg := config.DefaultConfig()
	cfg.Global.TotalCapital = decimal.NewFromInt(100000)
	cfg.Global.MaxCapitalUsage = decimal.NewFromFloat(0.5)
	cfg.Global.MaxPositions = 10
	return st, cfg
}

// buildManager snapshots cfg.Global/cfg.Risk into a Manager. Callers must
// finish mutating cfg before calling this, since New takes both by value.
func buildManager(st core.Store, cfg *config.Config) *Manager {
	resolver := config.NewPairConfigResolver(st, cfg)
	return New(st, resolver, cfg.Global, cfg.Risk, noopLogger{}, nil)
}

func TestCheckEntryPassesAndClampsToMaxPositionSize(t *testing.T) {
	st, cfg := newTestStore(t)
	cfg.Risk.MaxPositionSizePerTrade = decimal.NewFromInt(2000)
	cfg.Risk.DynamicPositionEnabled = false
	m := buildManager(st, cfg)

	opp := core.Opportunity{
		Strategy: core.StrategyS3, Symbol: "BTC/USDT", Exchange: "alpha",
		PositionSize: decimal.NewFromInt(5000), Score: decimal.NewFromInt(50),
	}
	decision, err := m.CheckEntry(context.Background(), opp)
	require.NoError(t, err)
	assert.True(t, decision.Passed)
	assert.True(t, decision.AdjustedPositionSize.Equal(decimal.NewFromInt(2000)))
}

func TestCheckEntryRejectsOnMaxDrawdown(t *testing.T) {
	st, cfg := newTestStore(t)
	cfg.Risk.MaxDrawdown = decimal.NewFromFloat(0.1) // 10%
	m := buildManager(st, cfg)

	_, err := st.InsertPosition(context.Background(), &core.Position{
		Strategy: core.StrategyS3, Symbol: "ETH/USDT", Exchanges: []string{"alpha"},
		Size: decimal.NewFromInt(10000), CurrentPnL: decimal.NewFromInt(-20000), // 20% of total capital
		Status: core.PositionOpen, OpenTime: time.Now(), AccruedFundingInstants: map[int64]bool{},
	})
	require.NoError(t, err)

	opp := core.Opportunity{Strategy: core.StrategyS3, Symbol: "BTC/USDT", Exchange: "alpha", PositionSize: decimal.NewFromInt(1000)}
	decision, err := m.CheckEntry(context.Background(), opp)
	require.NoError(t, err)
	assert.False(t, decision.Passed)
	assert.Equal(t, "max_drawdown_exceeded", decision.Reason)
}

func TestCheckEntryReducesToAvailableCapital(t *testing.T) {
	st, cfg := newTestStore(t)
	cfg.Global.TotalCapital = decimal.NewFromInt(10000)
	cfg.Global.MaxCapitalUsage = decimal.NewFromFloat(0.5) // 5000 available total
	cfg.Risk.MaxPositionSizePerTrade = decimal.NewFromInt(100000)
	cfg.Risk.DynamicPositionEnabled = false
	m := buildManager(st, cfg)

	_, err := st.InsertPosition(context.Background(), &core.Position{
		Strategy: core.StrategyS3, Symbol: "ETH/USDT", Exchanges: []string{"alpha"},
		Size: decimal.NewFromInt(4000), Status: core.PositionOpen, OpenTime: time.Now(),
		AccruedFundingInstants: map[int64]bool{},
	})
	require.NoError(t, err)

	opp := core.Opportunity{Strategy: core.StrategyS3, Symbol: "BTC/USDT", Exchange: "alpha", PositionSize: decimal.NewFromInt(2000)}
	decision, err := m.CheckEntry(context.Background(), opp)
	require.NoError(t, err)
	assert.True(t, decision.Passed)
	assert.True(t, decision.AdjustedPositionSize.Equal(decimal.NewFromInt(1000)))
}

func TestCheckEntryRejectsWhenNoCapitalAvailable(t *testing.T) {
	st, cfg := newTestStore(t)
	cfg.Global.TotalCapital = decimal.NewFromInt(10000)
	cfg.Global.MaxCapitalUsage = decimal.NewFromFloat(0.5)
	m := buildManager(st, cfg)

	_, err := st.InsertPosition(context.Background(), &core.Position{
		Strategy: core.StrategyS3, Symbol: "ETH/USDT", Exchanges: []string{"alpha"},
		Size: decimal.NewFromInt(5000), Status: core.PositionOpen, OpenTime: time.Now(),
		AccruedFundingInstants: map[int64]bool{},
	})
	require.NoError(t, err)

	opp := core.Opportunity{Strategy: core.StrategyS3, Symbol: "BTC/USDT", Exchange: "alpha", PositionSize: decimal.NewFromInt(500)}
	decision, err := m.CheckEntry(context.Background(), opp)
	require.NoError(t, err)
	assert.False(t, decision.Passed)
	assert.Equal(t, "insufficient_available_capital", decision.Reason)
}

func TestCheckEntryRejectsOnMaxPositionsReached(t *testing.T) {
	st, cfg := newTestStore(t)
	cfg.Global.MaxPositions = 1
	m := buildManager(st, cfg)

	_, err := st.InsertPosition(context.Background(), &core.Position{
		Strategy: core.StrategyS3, Symbol: "ETH/USDT", Exchanges: []string{"alpha"},
		Size: decimal.NewFromInt(100), Status: core.PositionOpen, OpenTime: time.Now(),
		AccruedFundingInstants: map[int64]bool{},
	})
	require.NoError(t, err)

	opp := core.Opportunity{Strategy: core.StrategyS3, Symbol: "BTC/USDT", Exchange: "alpha", PositionSize: decimal.NewFromInt(100)}
	decision, err := m.CheckEntry(context.Background(), opp)
	require.NoError(t, err)
	assert.False(t, decision.Passed)
	assert.Equal(t, "max_positions_reached", decision.Reason)
}

func TestCheckEntryRejectsS1OnExcessivePriceDeviation(t *testing.T) {
	st, cfg := newTestStore(t)
	cfg.Risk.PriceDeviationThreshold = decimal.NewFromFloat(0.01)
	m := buildManager(st, cfg)

	opp := core.Opportunity{
		Strategy: core.StrategyS1, Symbol: "BTC/USDT", LongExchange: "alpha", ShortExchange: "beta",
		PositionSize: decimal.NewFromInt(100), PriceDiffPct: decimal.NewFromFloat(0.02),
	}
	decision, err := m.CheckEntry(context.Background(), opp)
	require.NoError(t, err)
	assert.False(t, decision.Passed)
	assert.Equal(t, "price_deviation_exceeded", decision.Reason)
}

func TestCheckEntryAppliesDynamicScoreSizing(t *testing.T) {
	st, cfg := newTestStore(t)
	cfg.Risk.DynamicPositionEnabled = true
	cfg.Risk.HighScoreMultiplier = decimal.NewFromFloat(1.2)
	cfg.Risk.MaxPositionSizePerTrade = decimal.NewFromInt(100000)
	m := buildManager(st, cfg)

	opp := core.Opportunity{
		Strategy: core.StrategyS3, Symbol: "BTC/USDT", Exchange: "alpha",
		PositionSize: decimal.NewFromInt(1000), Score: decimal.NewFromInt(90),
	}
	decision, err := m.CheckEntry(context.Background(), opp)
	require.NoError(t, err)
	assert.True(t, decision.Passed)
	assert.True(t, decision.AdjustedPositionSize.Equal(decimal.NewFromInt(1200)))
}

func TestMonitorTickEscalatesSeverityAndSetsEmergencyClosePending(t *testing.T) {
	st, cfg := newTestStore(t)
	cfg.Risk.EmergencyThreshold = decimal.NewFromFloat(0.15)
	m := buildManager(st, cfg)

	pos := &core.Position{
		Strategy: core.StrategyS3, Symbol: "BTC/USDT", Exchanges: []string{"alpha"},
		Size: decimal.NewFromInt(1000), CurrentPnL: decimal.NewFromInt(-200), // -20%
		Status: core.PositionOpen, OpenTime: time.Now(), AccruedFundingInstants: map[int64]bool{},
	}
	id, err := st.InsertPosition(context.Background(), pos)
	require.NoError(t, err)

	m.monitorTick(context.Background())

	stored, err := st.GetPosition(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, core.PositionEmergencyClosePending, stored.Status)

	events, err := st.ListUnhandledRiskEvents(context.Background())
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "emergency_loss_threshold", events[0].EventType)
	assert.Equal(t, core.SeverityEmergency, events[0].Severity)
}

func TestCircuitBreakerTripsAfterConsecutiveUnhealthyTicksAndGatesEntry(t *testing.T) {
	st, cfg := newTestStore(t)
	m := buildManager(st, cfg)

	for i := 0; i < 3; i++ {
		m.breaker.recordTick(false)
	}
	assert.True(t, m.IsTripped())

	opp := core.Opportunity{Strategy: core.StrategyS3, Symbol: "BTC/USDT", Exchange: "alpha", PositionSize: decimal.NewFromInt(100)}
	decision, err := m.CheckEntry(context.Background(), opp)
	require.NoError(t, err)
	assert.False(t, decision.Passed)
	assert.Equal(t, "circuit_breaker_open", decision.Reason)
}

func TestCheckAbnormalFundingRateAndPriceDeviation(t *testing.T) {
	st, cfg := newTestStore(t)
	cfg.Risk.AbnormalFundingRate = decimal.NewFromFloat(0.01)
	cfg.Risk.PriceDeviationThreshold = decimal.NewFromFloat(0.02)
	m := buildManager(st, cfg)

	assert.True(t, m.CheckAbnormalFundingRate(decimal.NewFromFloat(0.05)))
	assert.False(t, m.CheckAbnormalFundingRate(decimal.NewFromFloat(0.005)))
	assert.True(t, m.CheckAbnormalPriceDeviation(decimal.NewFromFloat(0.1)))
	assert.False(t, m.CheckAbnormalPriceDeviation(decimal.NewFromFloat(0.001)))
}
