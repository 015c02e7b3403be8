package executor

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	noopmetric "go.opentelemetry.io/otel/metric/noop"
	nooptrace "go.opentelemetry.io/otel/trace/noop"

	"fundingarb/internal/config"
	"fundingarb/internal/core"
	"fundingarb/internal/exchange/mock"
	"fundingarb/internal/orders"
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

// alwaysPassRisk approves every entry at the opportunity's own size.
type alwaysPassRisk struct{}

func (alwaysPassRisk) CheckEntry(_ context.Context, opp core.Opportunity) (core.RiskDecision, error) {
	return core.RiskDecision{Passed: true, AdjustedPositionSize: opp.PositionSize}, nil
}
func (alwaysPassRisk) Start(context.Context) error                        { return nil }
func (alwaysPassRisk) Stop() error                                        { return nil }
func (alwaysPassRisk) IsTripped() bool                                    { return false }
func (alwaysPassRisk) CheckAbnormalFundingRate(decimal.Decimal) bool      { return false }
func (alwaysPassRisk) CheckAbnormalPriceDeviation(decimal.Decimal) bool   { return false }

type alwaysRejectRisk struct{ reason string }

func (r alwaysRejectRisk) CheckEntry(_ context.Context, _ core.Opportunity) (core.RiskDecision, error) {
	return core.RiskDecision{Passed: false, Reason: r.reason}, nil
}
func (alwaysRejectRisk) Start(context.Context) error                      { return nil }
func (alwaysRejectRisk) Stop() error                                      { return nil }
func (alwaysRejectRisk) IsTripped() bool                                  { return false }
func (alwaysRejectRisk) CheckAbnormalFundingRate(decimal.Decimal) bool    { return false }
func (alwaysRejectRisk) CheckAbnormalPriceDeviation(decimal.Decimal) bool { return false }

type fixedPrices map[string]map[string]core.MarketSample

func (f fixedPrices) Snapshot() map[string]map[string]core.MarketSample { return f }

func seededFuturesDriver(name, symbol string, last decimal.Decimal) *mock.Driver {
	d := mock.New(name)
	d.Tickers["futures:"+symbol] = core.Ticker{Symbol: symbol, Bid: last, Ask: last, Last: last}
	d.Books["futures:"+symbol] = core.OrderBook{
		Symbol: symbol,
		Bids:   []core.PriceLevel{{Price: last, Size: decimal.NewFromInt(1000)}},
		Asks:   []core.PriceLevel{{Price: last, Size: decimal.NewFromInt(1000)}},
	}
	d.Tickers["spot:"+symbol] = core.Ticker{Symbol: symbol, Bid: last, Ask: last, Last: last}
	d.Books["spot:"+symbol] = core.OrderBook{
		Symbol: symbol,
		Bids:   []core.PriceLevel{{Price: last, Size: decimal.NewFromInt(1000)}},
		Asks:   []core.PriceLevel{{Price: last, Size: decimal.NewFromInt(1000)}},
	}
	return d
}

func newTestExecutor(t *testing.T, risk core.RiskManager, drivers map[string]core.ExchangeDriver, prices priceCache, manualCallback func(core.Opportunity)) (*Executor, core.Store) {
	t.Helper()
	st, err := store.OpenSQLite(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	cfg := config.DefaultConfig()
	resolver := config.NewPairConfigResolver(st, cfg)
	orderMgr := orders.New(drivers, st, noopLogger{}, true, nooptrace.NewTracerProvider().Tracer("test"), noopmetric.NewMeterProvider().Meter("test"))

	ex := New(st, orderMgr, risk, drivers, prices, resolver, noopLogger{}, manualCallback)
	return ex, st
}

func TestOnOpportunitiesEnqueuesAutoLowRiskAndDedups(t *testing.T) {
	var manual []core.Opportunity
	ex, _ := newTestExecutor(t, alwaysPassRisk{}, nil, nil, func(o core.Opportunity) { manual = append(manual, o) })

	auto := core.Opportunity{StableID: "opp1", ExecutionMode: core.ExecutionAuto, RiskLevel: core.RiskLow}
	manualOpp := core.Opportunity{StableID: "opp2", ExecutionMode: core.ExecutionManual, RiskLevel: core.RiskLow}
	highRisk := core.Opportunity{StableID: "opp3", ExecutionMode: core.ExecutionAuto, RiskLevel: core.RiskHigh}

	ex.OnOpportunities([]core.Opportunity{auto, manualOpp, highRisk})
	assert.Len(t, ex.queue, 1)
	assert.Len(t, manual, 2)

	// Re-publishing the same auto opportunity is deduped, not re-enqueued.
	ex.OnOpportunities([]core.Opportunity{auto})
	assert.Len(t, ex.queue, 1)
}

func TestExecuteOpensS1HedgePositionAndPersistsFee(t *testing.T) {
	symbol := "BTC/USDT"
	dA := seededFuturesDriver("alpha", symbol, decimal.NewFromInt(65000))
	dB := seededFuturesDriver("beta", symbol, decimal.NewFromInt(65010))
	drivers := map[string]core.ExchangeDriver{"alpha": dA, "beta": dB}

	ex, st := newTestExecutor(t, alwaysPassRisk{}, drivers, nil, nil)

	opp := core.Opportunity{
		Strategy:      core.StrategyS1,
		StableID:      "s1_btc_alpha_beta",
		Symbol:        symbol,
		LongExchange:  "alpha",
		ShortExchange: "beta",
		PositionSize:  decimal.NewFromInt(10),
		FundingRate:   decimal.NewFromFloat(0.002),
		EntryPrices:   map[string]decimal.Decimal{"alpha": decimal.NewFromInt(65000), "beta": decimal.NewFromInt(65010)},
	}

	ex.execute(context.Background(), opp)

	positions, err := st.ListOpenPositions(context.Background())
	require.NoError(t, err)
	require.Len(t, positions, 1)
	assert.Equal(t, core.PositionOpen, positions[0].Status)
	assert.Equal(t, []string{"alpha", "beta"}, positions[0].Exchanges)
	assert.True(t, positions[0].FeesPaid.IsPositive() || positions[0].FeesPaid.IsZero())
}

func TestExecuteSkipsWhenRiskRejects(t *testing.T) {
	ex, st := newTestExecutor(t, alwaysRejectRisk{reason: "drawdown_limit"}, nil, nil, nil)

	opp := core.Opportunity{Strategy: core.StrategyS3, StableID: "s3_1", Symbol: "BTC/USDT", Exchange: "alpha", PositionSize: decimal.NewFromInt(10)}
	ex.execute(context.Background(), opp)

	positions, err := st.ListOpenPositions(context.Background())
	require.NoError(t, err)
	assert.Empty(t, positions)
}

func TestClosePositionS3PlacesReduceOnlyInverseOrder(t *testing.T) {
	symbol := "BTC/USDT"
	d := seededFuturesDriver("alpha", symbol, decimal.NewFromInt(65000))
	drivers := map[string]core.ExchangeDriver{"alpha": d}
	ex, st := newTestExecutor(t, alwaysPassRisk{}, drivers, nil, nil)

	pos := &core.Position{
		Strategy:  core.StrategyS3,
		Symbol:    symbol,
		Exchanges: []string{"alpha"},
		Entry:     core.EntryDetails{Direction: core.DirectionShort, LegPrices: map[string]decimal.Decimal{"alpha": decimal.NewFromInt(65000)}},
		Size:      decimal.NewFromInt(1),
		Status:    core.PositionOpen,
		OpenTime:  time.Now(),
		AccruedFundingInstants: map[int64]bool{},
	}
	id, err := st.InsertPosition(context.Background(), pos)
	require.NoError(t, err)
	pos.ID = id

	require.NoError(t, ex.closePosition(context.Background(), pos))
	assert.Equal(t, core.PositionClosed, pos.Status)

	stored, err := st.GetPosition(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, core.PositionClosed, stored.Status)
}

func TestAccrueSingleVenueSkipsAlreadyAccruedInstants(t *testing.T) {
	ex, st := newTestExecutor(t, alwaysPassRisk{}, nil, nil, nil)
	openTime := time.Now().Add(-2 * time.Hour)

	instant := time.Now().Add(-time.Hour).Truncate(time.Millisecond)
	require.NoError(t, st.UpsertFundingRate(context.Background(), core.FundingRateRecord{
		Exchange:          "alpha",
		Symbol:            "BTC/USDT",
		SampleTimestampMs: instant.Add(-time.Minute).UnixMilli(),
		Rate:              decimal.NewFromFloat(0.001),
		NextFundingTime:   instant,
	}))

	pos := &core.Position{
		Strategy:               core.StrategyS3,
		Symbol:                 "BTC/USDT",
		Exchanges:              []string{"alpha"},
		Entry:                  core.EntryDetails{Direction: core.DirectionShort},
		Size:                   decimal.NewFromInt(1000),
		OpenTime:               openTime,
		AccruedFundingInstants: make(map[int64]bool),
	}

	changed, err := ex.accrueFunding(context.Background(), pos)
	require.NoError(t, err)
	assert.True(t, changed)
	assert.True(t, pos.FundingCollected.Equal(decimal.NewFromInt(1)))

	// A second pass with the same persisted history is a no-op: the instant
	// is already folded in via AccruedFundingInstants.
	changed, err = ex.accrueFunding(context.Background(), pos)
	require.NoError(t, err)
	assert.False(t, changed)
	assert.True(t, pos.FundingCollected.Equal(decimal.NewFromInt(1)))
}

func TestAccrueS1OnlyCountsInstantsPresentOnBothVenues(t *testing.T) {
	ex, st := newTestExecutor(t, alwaysPassRisk{}, nil, nil, nil)
	openTime := time.Now().Add(-2 * time.Hour)
	instant := time.Now().Add(-time.Hour).Truncate(time.Millisecond)

	require.NoError(t, st.UpsertFundingRate(context.Background(), core.FundingRateRecord{
		Exchange: "alpha", Symbol: "BTC/USDT", SampleTimestampMs: instant.Add(-time.Minute).UnixMilli(),
		Rate: decimal.NewFromFloat(0.0005), NextFundingTime: instant,
	}))
	require.NoError(t, st.UpsertFundingRate(context.Background(), core.FundingRateRecord{
		Exchange: "beta", Symbol: "BTC/USDT", SampleTimestampMs: instant.Add(-time.Minute).UnixMilli(),
		Rate: decimal.NewFromFloat(0.0015), NextFundingTime: instant,
	}))

	pos := &core.Position{
		Strategy:               core.StrategyS1,
		Symbol:                 "BTC/USDT",
		Exchanges:              []string{"alpha", "beta"},
		Size:                   decimal.NewFromInt(1000),
		OpenTime:               openTime,
		AccruedFundingInstants: make(map[int64]bool),
	}

	changed, err := ex.accrueFunding(context.Background(), pos)
	require.NoError(t, err)
	assert.True(t, changed)
	// short (beta, 0.0015) minus long (alpha, 0.0005) times size.
	assert.True(t, pos.FundingCollected.Equal(decimal.NewFromInt(1)))
}

func TestRunDirectionalRulesForceClosesOnHardStopLoss(t *testing.T) {
	symbol := "BTC/USDT"
	d := seededFuturesDriver("alpha", symbol, decimal.NewFromInt(61000)) // 6% below entry for a long
	drivers := map[string]core.ExchangeDriver{"alpha": d}
	prices := fixedPrices{"alpha": {symbol: core.MarketSample{
		Exchange: "alpha", Symbol: symbol, HasFutures: true,
		FuturesLast: decimal.NewFromInt(61000), HasFunding: true, FundingRate: decimal.NewFromFloat(-0.0002),
	}}}
	ex, st := newTestExecutor(t, alwaysPassRisk{}, drivers, prices, nil)

	pos := &core.Position{
		Strategy:               core.StrategyS3,
		Symbol:                 symbol,
		Exchanges:              []string{"alpha"},
		Entry:                  core.EntryDetails{Direction: core.DirectionLong, LegPrices: map[string]decimal.Decimal{"alpha": decimal.NewFromInt(65000)}},
		Size:                   decimal.NewFromInt(1),
		Status:                 core.PositionOpen,
		OpenTime:               time.Now(),
		AccruedFundingInstants: make(map[int64]bool),
	}
	id, err := st.InsertPosition(context.Background(), pos)
	require.NoError(t, err)
	pos.ID = id

	ex.runDirectionalRules(context.Background(), pos)

	assert.Equal(t, core.PositionClosed, pos.Status)
	events, err := st.ListUnhandledRiskEvents(context.Background())
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "stop_loss", events[0].EventType)
}

func TestRunDirectionalRulesForceClosesOnFundingFlip(t *testing.T) {
	symbol := "BTC/USDT"
	d := seededFuturesDriver("alpha", symbol, decimal.NewFromInt(65100))
	drivers := map[string]core.ExchangeDriver{"alpha": d}
	prices := fixedPrices{"alpha": {symbol: core.MarketSample{
		Exchange: "alpha", Symbol: symbol, HasFutures: true,
		FuturesLast: decimal.NewFromInt(65100), HasFunding: true, FundingRate: decimal.NewFromFloat(-0.0002),
	}}}
	ex, st := newTestExecutor(t, alwaysPassRisk{}, drivers, prices, nil)

	pos := &core.Position{
		Strategy:               core.StrategyS3,
		Symbol:                 symbol,
		Exchanges:              []string{"alpha"},
		Entry:                  core.EntryDetails{Direction: core.DirectionShort, LegPrices: map[string]decimal.Decimal{"alpha": decimal.NewFromInt(65000)}},
		Size:                   decimal.NewFromInt(1),
		Status:                 core.PositionOpen,
		OpenTime:               time.Now(),
		AccruedFundingInstants: make(map[int64]bool),
	}
	id, err := st.InsertPosition(context.Background(), pos)
	require.NoError(t, err)
	pos.ID = id

	ex.runDirectionalRules(context.Background(), pos)

	assert.Equal(t, core.PositionClosed, pos.Status)
}

func TestRunDirectionalRulesTrailingStopActivatesAndCallsBack(t *testing.T) {
	symbol := "BTC/USDT"
	drivers := map[string]core.ExchangeDriver{"alpha": seededFuturesDriver("alpha", symbol, decimal.NewFromInt(65000))}

	activated := core.MarketSample{Exchange: "alpha", Symbol: symbol, HasFutures: true, FuturesLast: decimal.NewFromInt(62000), HasFunding: true}
	pulledBack := core.MarketSample{Exchange: "alpha", Symbol: symbol, HasFutures: true, FuturesLast: decimal.NewFromInt(64600), HasFunding: true}

	prices := fixedPrices{"alpha": {symbol: activated}}
	ex, st := newTestExecutor(t, alwaysPassRisk{}, drivers, prices, nil)

	pos := &core.Position{
		Strategy:               core.StrategyS3,
		Symbol:                 symbol,
		Exchanges:              []string{"alpha"},
		Entry:                  core.EntryDetails{Direction: core.DirectionShort, LegPrices: map[string]decimal.Decimal{"alpha": decimal.NewFromInt(65000)}},
		Size:                   decimal.NewFromInt(1),
		Status:                 core.PositionOpen,
		OpenTime:               time.Now(),
		AccruedFundingInstants: make(map[int64]bool),
	}
	id, err := st.InsertPosition(context.Background(), pos)
	require.NoError(t, err)
	pos.ID = id

	// First tick: price has dropped 4.6%, past the 4% activation threshold.
	ex.runDirectionalRules(context.Background(), pos)
	assert.True(t, pos.TrailingStopActivated)
	assert.Equal(t, core.PositionOpen, pos.Status)
	assert.True(t, pos.BestPrice.Equal(decimal.NewFromInt(62000)))

	// Second tick: price retraces from the best (62000) by more than the 4%
	// callback, so the position force-closes.
	prices["alpha"][symbol] = pulledBack
	ex.runDirectionalRules(context.Background(), pos)
	assert.Equal(t, core.PositionClosed, pos.Status)
}

func TestReconcileAutoClosesPositionMissingFromExchange(t *testing.T) {
	d := mock.New("alpha") // no seeded positions
	drivers := map[string]core.ExchangeDriver{"alpha": d}
	ex, st := newTestExecutor(t, alwaysPassRisk{}, drivers, nil, nil)

	pos := &core.Position{
		Strategy:  core.StrategyS3,
		Symbol:    "BTC/USDT",
		Exchanges: []string{"alpha"},
		Entry:     core.EntryDetails{Direction: core.DirectionLong, LegPrices: map[string]decimal.Decimal{"alpha": decimal.NewFromInt(65000)}},
		Size:      decimal.NewFromInt(1),
		Status:    core.PositionOpen,
		OpenTime:  time.Now(),
		AccruedFundingInstants: make(map[int64]bool),
	}
	id, err := st.InsertPosition(context.Background(), pos)
	require.NoError(t, err)

	ex.reconcile(context.Background())

	stored, err := st.GetPosition(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, core.PositionClosed, stored.Status)
}

func TestReconcileAdoptsUntrackedVenuePosition(t *testing.T) {
	d := mock.New("alpha")
	d.Positions = []core.VenuePosition{{
		Symbol: "ETH/USDT", Side: core.DirectionShort,
		Contracts: decimal.NewFromInt(5), EntryPrice: decimal.NewFromInt(3200), Notional: decimal.NewFromInt(16000),
	}}
	drivers := map[string]core.ExchangeDriver{"alpha": d}
	ex, st := newTestExecutor(t, alwaysPassRisk{}, drivers, nil, nil)

	ex.reconcile(context.Background())

	positions, err := st.ListOpenPositions(context.Background())
	require.NoError(t, err)
	require.Len(t, positions, 1)
	assert.Equal(t, core.StrategyS3, positions[0].Strategy)
	assert.Equal(t, "ETH/USDT", positions[0].Symbol)
	assert.True(t, positions[0].Size.Equal(decimal.NewFromInt(16000)))
}

func TestReconcileUpdatesPositionOnEntryPriceDrift(t *testing.T) {
	d := mock.New("alpha")
	d.Positions = []core.VenuePosition{{
		Symbol: "BTC/USDT", Side: core.DirectionLong,
		Contracts: decimal.NewFromInt(1), EntryPrice: decimal.NewFromInt(65500), Notional: decimal.NewFromInt(65500),
	}}
	drivers := map[string]core.ExchangeDriver{"alpha": d}
	ex, st := newTestExecutor(t, alwaysPassRisk{}, drivers, nil, nil)

	pos := &core.Position{
		Strategy:  core.StrategyS3,
		Symbol:    "BTC/USDT",
		Exchanges: []string{"alpha"},
		Entry:     core.EntryDetails{Direction: core.DirectionLong, LegPrices: map[string]decimal.Decimal{"alpha": decimal.NewFromInt(65000)}},
		Size:      decimal.NewFromInt(65000),
		Status:    core.PositionOpen,
		OpenTime:  time.Now(),
		AccruedFundingInstants: make(map[int64]bool),
	}
	id, err := st.InsertPosition(context.Background(), pos)
	require.NoError(t, err)

	ex.reconcile(context.Background())

	stored, err := st.GetPosition(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, core.PositionOpen, stored.Status)
	assert.True(t, stored.Entry.LegPrices["alpha"].Equal(decimal.NewFromInt(65500)))
	assert.True(t, stored.Size.Equal(decimal.NewFromInt(65500)))
}
