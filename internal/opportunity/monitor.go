// Package opportunity scans the collector's market snapshot every
// opportunity_scan_interval seconds and produces a fully re-ranked list
// of candidate trades across all four strategies (spec.md §4.2).
package opportunity

import (
	"context"
	"sort"
	"sync"
	"time"

	"fundingarb/internal/config"
	"fundingarb/internal/core"
	"fundingarb/pkg/telemetry"
)

// snapshotSource is satisfied by *collector.Collector; kept as an
// interface so tests can substitute a canned snapshot.
type snapshotSource interface {
	Snapshot() map[string]map[string]core.MarketSample
}

// Monitor runs the periodic scan loop and owns the current opportunity
// list, replaced atomically on every pass.
type Monitor struct {
	collector   snapshotSource
	store       core.Store
	pairConfigs *config.PairConfigResolver
	log         core.Logger
	metrics     *telemetry.MetricsHolder

	scanInterval time.Duration

	mu        sync.RWMutex
	current   []core.Opportunity
	listeners []core.OpportunityListener
}

// New constructs a Monitor. metrics may be nil in tests.
func New(collector snapshotSource, store core.Store, pairConfigs *config.PairConfigResolver, cfg config.GlobalConfig, log core.Logger, metrics *telemetry.MetricsHolder) *Monitor {
	interval := time.Duration(cfg.OpportunityScanInterval) * time.Second
	if interval <= 0 {
		interval = 10 * time.Second
	}
	return &Monitor{
		collector:    collector,
		store:        store,
		pairConfigs:  pairConfigs,
		log:          log,
		metrics:      metrics,
		scanInterval: interval,
	}
}

// Subscribe registers a listener invoked with the full, re-ranked list on
// every scan pass.
func (m *Monitor) Subscribe(l core.OpportunityListener) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listeners = append(m.listeners, l)
}

// Current returns the most recently published opportunity list.
func (m *Monitor) Current() []core.Opportunity {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]core.Opportunity, len(m.current))
	copy(out, m.current)
	return out
}

// Run blocks, scanning on scanInterval until ctx is cancelled.
func (m *Monitor) Run(ctx context.Context) error {
	ticker := time.NewTicker(m.scanInterval)
	defer ticker.Stop()

	m.scan(ctx)

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			m.scan(ctx)
		}
	}
}

func (m *Monitor) scan(ctx context.Context) {
	start := time.Now()

	snapshot := m.collector.Snapshot()
	if len(snapshot) == 0 {
		snapshot = m.fallbackSnapshot(ctx)
	}

	bySymbol := make(map[string]map[string]core.MarketSample)
	for exchange, symbols := range snapshot {
		for symbol, sample := range symbols {
			if bySymbol[symbol] == nil {
				bySymbol[symbol] = make(map[string]core.MarketSample)
			}
			bySymbol[symbol][exchange] = sample
		}
	}

	var opportunities []core.Opportunity
	for symbol, byExchange := range bySymbol {
		opportunities = append(opportunities, m.detectS1(ctx, symbol, byExchange)...)
		for exchange, sample := range byExchange {
			if opp := m.detectS2A(ctx, exchange, symbol, sample); opp != nil {
				opportunities = append(opportunities, *opp)
			}
			if opp := m.detectS2B(ctx, exchange, symbol, sample); opp != nil {
				opportunities = append(opportunities, *opp)
			}
			if opp := m.detectS3(ctx, exchange, symbol, sample); opp != nil {
				opportunities = append(opportunities, *opp)
			}
		}
	}

	sort.Slice(opportunities, func(i, j int) bool {
		return opportunities[i].ExpectedReturnPct.GreaterThan(opportunities[j].ExpectedReturnPct)
	})

	m.publish(opportunities)
	m.recordMetrics(opportunities, start)
}

// fallbackSnapshot reconstructs a best-effort snapshot from the last
// minute of persisted prices and funding rates when the collector has
// nothing cached yet (spec.md §4.2).
func (m *Monitor) fallbackSnapshot(ctx context.Context) map[string]map[string]core.MarketSample {
	since := time.Now().Add(-time.Minute)
	out := make(map[string]map[string]core.MarketSample)

	prices, err := m.store.RecentMarketPrices(ctx, since)
	if err != nil {
		m.log.Warn("opportunity: fallback price read failed", "error", err.Error())
		return out
	}
	for _, p := range prices {
		if out[p.Exchange] == nil {
			out[p.Exchange] = make(map[string]core.MarketSample)
		}
		s := out[p.Exchange][p.Symbol]
		s.Exchange, s.Symbol = p.Exchange, p.Symbol
		if p.SpotPrice.IsPositive() {
			s.HasSpot = true
			s.SpotBid, s.SpotAsk, s.SpotLast = p.SpotBid, p.SpotAsk, p.SpotPrice
		}
		if p.FuturesPrice.IsPositive() {
			s.HasFutures = true
			s.FuturesBid, s.FuturesAsk, s.FuturesLast = p.FuturesBid, p.FuturesAsk, p.FuturesPrice
		}
		s.MakerFee, s.TakerFee = p.MakerFee, p.TakerFee
		s.SampledAt = time.UnixMilli(p.TimestampMs)
		out[p.Exchange][p.Symbol] = s
	}

	rates, err := m.store.RecentFundingRates(ctx, since)
	if err != nil {
		m.log.Warn("opportunity: fallback funding read failed", "error", err.Error())
		return out
	}
	for _, r := range rates {
		if out[r.Exchange] == nil {
			out[r.Exchange] = make(map[string]core.MarketSample)
		}
		s := out[r.Exchange][r.Symbol]
		s.Exchange, s.Symbol = r.Exchange, r.Symbol
		s.HasFunding = true
		s.FundingRate = r.Rate
		s.NextFundingTime = r.NextFundingTime
		s.FundingIntervalMs = r.FundingIntervalMs
		out[r.Exchange][r.Symbol] = s
	}

	return out
}

func (m *Monitor) publish(opportunities []core.Opportunity) {
	m.mu.Lock()
	m.current = opportunities
	listeners := make([]core.OpportunityListener, len(m.listeners))
	copy(listeners, m.listeners)
	m.mu.Unlock()

	for _, l := range listeners {
		l(opportunities)
	}
}

func (m *Monitor) recordMetrics(opportunities []core.Opportunity, start time.Time) {
	if m.metrics == nil {
		return
	}

	m.metrics.LatencyScan.Record(context.Background(), float64(time.Since(start).Milliseconds()))

	counts := map[core.StrategyTag]int64{}
	for _, opp := range opportunities {
		counts[opp.Strategy]++
		scoreF, _ := opp.Score.Float64()
		m.metrics.SetQualityScore(opp.StableID, scoreF)
	}
	for strategy, count := range counts {
		m.metrics.SetOpportunitiesFound(string(strategy), count)
	}
}
