// Package collector keeps an in-memory, per-venue market snapshot fresh
// and persists price and funding-rate samples, per spec.md §4.1.
package collector

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"fundingarb/internal/config"
	"fundingarb/internal/core"
	"fundingarb/pkg/concurrency"
	"fundingarb/pkg/telemetry"
)

const preloadWindow = 10 * time.Minute

// Collector fans out to every registered venue driver on two independent
// schedules (price, funding), normalises responses into MarketSample,
// and write-throughs to the Store without blocking the in-memory cache
// on persistence failures.
type Collector struct {
	drivers map[string]core.ExchangeDriver
	store   core.Store
	log     core.Logger
	metrics *telemetry.MetricsHolder

	priceInterval   time.Duration
	fundingInterval time.Duration

	priceFanout   *concurrency.WorkerPool
	fundingFanout *concurrency.WorkerPool

	mu             sync.RWMutex
	cache          map[string]map[string]core.MarketSample // exchange -> symbol -> sample
	futuresSymbols map[string][]string                     // exchange -> BASE/USDT universe (perp)
	spotSymbols    map[string][]string                     // exchange -> BASE/USDT universe (spot)
	fees           map[string]map[string]core.TradingFees  // exchange -> symbol -> fees, cached at bootstrap

	reloadMu sync.Mutex
	ctx      context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup
}

// New constructs a Collector over the given venue drivers, keyed by
// exchange name matching core.ExchangeAccount.ExchangeName.
func New(drivers map[string]core.ExchangeDriver, store core.Store, cfg config.GlobalConfig, log core.Logger) *Collector {
	priceInterval := time.Duration(cfg.PriceRefreshInterval) * time.Second
	if priceInterval <= 0 {
		priceInterval = 5 * time.Second
	}
	fundingInterval := time.Duration(cfg.FundingRefreshInterval) * time.Second
	if fundingInterval <= 0 {
		fundingInterval = 300 * time.Second
	}

	return &Collector{
		drivers:         drivers,
		store:           store,
		log:             log.WithField("component", "collector"),
		metrics:         telemetry.GetGlobalMetrics(),
		priceInterval:   priceInterval,
		fundingInterval: fundingInterval,
		priceFanout:     concurrency.NewWorkerPool(concurrency.PoolConfig{Name: "collector-price", MaxWorkers: 10, MaxCapacity: 200}, log),
		fundingFanout:   concurrency.NewWorkerPool(concurrency.PoolConfig{Name: "collector-funding", MaxWorkers: 10, MaxCapacity: 200}, log),
		cache:           make(map[string]map[string]core.MarketSample),
		futuresSymbols:  make(map[string][]string),
		spotSymbols:     make(map[string][]string),
		fees:            make(map[string]map[string]core.TradingFees),
	}
}

// Run builds the symbol universe, preloads recent rows, and starts the
// price and funding loops. It blocks until ctx is cancelled.
func (c *Collector) Run(ctx context.Context) error {
	c.ctx, c.cancel = context.WithCancel(ctx)

	if err := c.bootstrap(c.ctx); err != nil {
		return err
	}

	c.wg.Add(2)
	go c.priceLoop()
	go c.fundingLoop()

	<-ctx.Done()
	c.cancel()
	c.wg.Wait()
	c.priceFanout.Stop()
	c.fundingFanout.Stop()
	return nil
}

// Reload drops in-memory driver-derived state and rebuilds the symbol
// universe and fee cache, without restarting the loops themselves:
// in-flight iterations finish against the old snapshot, the next tick
// sees the rebuilt one.
func (c *Collector) Reload(ctx context.Context) error {
	c.reloadMu.Lock()
	defer c.reloadMu.Unlock()

	c.mu.Lock()
	c.cache = make(map[string]map[string]core.MarketSample)
	c.futuresSymbols = make(map[string][]string)
	c.spotSymbols = make(map[string][]string)
	c.fees = make(map[string]map[string]core.TradingFees)
	c.mu.Unlock()

	return c.bootstrap(ctx)
}

func (c *Collector) bootstrap(ctx context.Context) error {
	for exchange, driver := range c.drivers {
		futures, err := driver.ListFuturesSymbols(ctx)
		if err != nil {
			c.log.Error("list futures symbols failed", "exchange", exchange, "error", err.Error())
			continue
		}
		spot, err := driver.ListSpotSymbols(ctx)
		if err != nil {
			c.log.Error("list spot symbols failed", "exchange", exchange, "error", err.Error())
			continue
		}

		c.mu.Lock()
		c.futuresSymbols[exchange] = futures
		c.spotSymbols[exchange] = spot
		c.mu.Unlock()

		c.cacheFees(ctx, exchange, driver, futures)
	}

	if err := c.preload(ctx); err != nil {
		c.log.Warn("preload of recent rows failed, starting with an empty cache", "error", err.Error())
	}
	return nil
}

func (c *Collector) cacheFees(ctx context.Context, exchange string, driver core.ExchangeDriver, symbols []string) {
	feeMap := make(map[string]core.TradingFees, len(symbols))
	for _, symbol := range symbols {
		fees, err := driver.GetTradingFees(ctx, symbol)
		if err != nil {
			c.log.Debug("fee lookup failed", "exchange", exchange, "symbol", symbol, "error", err.Error())
			continue
		}
		feeMap[symbol] = *fees
	}
	c.mu.Lock()
	c.fees[exchange] = feeMap
	c.mu.Unlock()
}

// preload seeds the in-memory cache from persisted rows no older than
// preloadWindow, so consumers see data immediately on start.
func (c *Collector) preload(ctx context.Context) error {
	since := time.Now().Add(-preloadWindow)

	prices, err := c.store.RecentMarketPrices(ctx, since)
	if err != nil {
		return err
	}
	rates, err := c.store.RecentFundingRates(ctx, since)
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	for _, p := range prices {
		sample := c.sampleLocked(p.Exchange, p.Symbol)
		sample.SpotBid, sample.SpotAsk, sample.SpotLast = p.SpotBid, p.SpotAsk, p.SpotPrice
		sample.FuturesBid, sample.FuturesAsk, sample.FuturesLast = p.FuturesBid, p.FuturesAsk, p.FuturesPrice
		sample.MakerFee, sample.TakerFee = p.MakerFee, p.TakerFee
		sample.HasSpot, sample.HasFutures = true, true
		sample.SampledAt = time.UnixMilli(p.TimestampMs)
		c.setLocked(p.Exchange, p.Symbol, sample)
	}
	for _, r := range rates {
		sample := c.sampleLocked(r.Exchange, r.Symbol)
		sample.FundingRate = r.Rate
		sample.NextFundingTime = r.NextFundingTime
		sample.FundingIntervalMs = r.FundingIntervalMs
		sample.HasFunding = true
		c.setLocked(r.Exchange, r.Symbol, sample)
	}
	return nil
}

func (c *Collector) sampleLocked(exchange, symbol string) core.MarketSample {
	if m, ok := c.cache[exchange]; ok {
		if s, ok := m[symbol]; ok {
			return s
		}
	}
	return core.MarketSample{Exchange: exchange, Symbol: symbol}
}

func (c *Collector) setLocked(exchange, symbol string, sample core.MarketSample) {
	if _, ok := c.cache[exchange]; !ok {
		c.cache[exchange] = make(map[string]core.MarketSample)
	}
	c.cache[exchange][symbol] = sample
}

func (c *Collector) priceLoop() {
	defer c.wg.Done()
	ticker := time.NewTicker(c.priceInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.ctx.Done():
			return
		case <-ticker.C:
			c.runPriceTick()
		}
	}
}

func (c *Collector) runPriceTick() {
	start := time.Now()
	var wg sync.WaitGroup

	for exchange, driver := range c.drivers {
		exchange, driver := exchange, driver

		c.mu.RLock()
		futures := append([]string(nil), c.futuresSymbols[exchange]...)
		spot := append([]string(nil), c.spotSymbols[exchange]...)
		c.mu.RUnlock()

		for _, symbol := range futures {
			symbol := symbol
			wg.Add(1)
			_ = c.priceFanout.Submit(func() {
				defer wg.Done()
				c.fetchFuturesTicker(exchange, driver, symbol)
			})
		}
		for _, symbol := range spot {
			symbol := symbol
			wg.Add(1)
			_ = c.priceFanout.Submit(func() {
				defer wg.Done()
				c.fetchSpotTicker(exchange, driver, symbol)
			})
		}
	}

	wg.Wait()
	if c.metrics != nil && c.metrics.LatencyScan != nil {
		c.metrics.LatencyScan.Record(c.ctx, float64(time.Since(start).Milliseconds()))
	}
}

func (c *Collector) fetchFuturesTicker(exchange string, driver core.ExchangeDriver, symbol string) {
	fetchStart := time.Now()
	ticker, err := driver.GetFuturesTicker(c.ctx, symbol)
	c.recordLatency(exchange, fetchStart)
	if err != nil {
		c.log.Debug("futures ticker fetch failed", "exchange", exchange, "symbol", symbol, "error", err.Error())
		return
	}

	c.mu.Lock()
	sample := c.sampleLocked(exchange, symbol)
	sample.FuturesBid, sample.FuturesAsk, sample.FuturesLast = ticker.Bid, ticker.Ask, ticker.Last
	sample.HasFutures = true
	sample.SampledAt = time.Now()
	if fees, ok := c.fees[exchange][symbol]; ok {
		sample.MakerFee, sample.TakerFee = fees.Maker, fees.Taker
	}
	c.setLocked(exchange, symbol, sample)
	snapshot := sample
	c.mu.Unlock()

	if err := c.store.UpsertMarketPrice(c.ctx, marketPriceRecord(exchange, symbol, snapshot)); err != nil {
		c.log.Warn("persist market price failed", "exchange", exchange, "symbol", symbol, "error", err.Error())
	}
}

func (c *Collector) fetchSpotTicker(exchange string, driver core.ExchangeDriver, symbol string) {
	fetchStart := time.Now()
	ticker, err := driver.GetSpotTicker(c.ctx, symbol)
	c.recordLatency(exchange, fetchStart)
	if err != nil {
		c.log.Debug("spot ticker fetch failed", "exchange", exchange, "symbol", symbol, "error", err.Error())
		return
	}

	c.mu.Lock()
	sample := c.sampleLocked(exchange, symbol)
	sample.SpotBid, sample.SpotAsk, sample.SpotLast = ticker.Bid, ticker.Ask, ticker.Last
	sample.HasSpot = true
	sample.SampledAt = time.Now()
	c.setLocked(exchange, symbol, sample)
	snapshot := sample
	c.mu.Unlock()

	if err := c.store.UpsertMarketPrice(c.ctx, marketPriceRecord(exchange, symbol, snapshot)); err != nil {
		c.log.Warn("persist market price failed", "exchange", exchange, "symbol", symbol, "error", err.Error())
	}
}

func (c *Collector) fundingLoop() {
	defer c.wg.Done()
	ticker := time.NewTicker(c.fundingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.ctx.Done():
			return
		case <-ticker.C:
			c.runFundingTick()
		}
	}
}

func (c *Collector) runFundingTick() {
	var wg sync.WaitGroup
	for exchange, driver := range c.drivers {
		exchange, driver := exchange, driver

		c.mu.RLock()
		futures := append([]string(nil), c.futuresSymbols[exchange]...)
		c.mu.RUnlock()

		for _, symbol := range futures {
			symbol := symbol
			wg.Add(1)
			_ = c.fundingFanout.Submit(func() {
				defer wg.Done()
				c.fetchFundingRate(exchange, driver, symbol)
			})
		}
	}
	wg.Wait()
}

func (c *Collector) fetchFundingRate(exchange string, driver core.ExchangeDriver, symbol string) {
	fetchStart := time.Now()
	rate, err := driver.GetFundingRate(c.ctx, symbol)
	c.recordLatency(exchange, fetchStart)
	if err != nil {
		c.log.Debug("funding rate fetch failed", "exchange", exchange, "symbol", symbol, "error", err.Error())
		return
	}

	c.mu.Lock()
	sample := c.sampleLocked(exchange, symbol)
	sample.FundingRate = rate.Rate
	sample.NextFundingTime = rate.NextFundingTime
	sample.FundingIntervalMs = rate.IntervalMs
	sample.HasFunding = true
	c.setLocked(exchange, symbol, sample)
	c.mu.Unlock()

	rec := core.FundingRateRecord{
		Exchange: exchange, Symbol: symbol, SampleTimestampMs: time.Now().UnixMilli(),
		Rate: rate.Rate, NextFundingTime: rate.NextFundingTime, FundingIntervalMs: rate.IntervalMs,
	}
	if err := c.store.UpsertFundingRate(c.ctx, rec); err != nil {
		c.log.Warn("persist funding rate failed", "exchange", exchange, "symbol", symbol, "error", err.Error())
	}
}

func (c *Collector) recordLatency(exchange string, start time.Time) {
	if c.metrics != nil && c.metrics.LatencyExchange != nil {
		c.metrics.LatencyExchange.Record(c.ctx, float64(time.Since(start).Milliseconds()),
			metric.WithAttributes(attribute.String("exchange", exchange)))
	}
}

func marketPriceRecord(exchange, symbol string, s core.MarketSample) core.MarketPriceRecord {
	return core.MarketPriceRecord{
		Exchange: exchange, Symbol: symbol, TimestampMs: s.SampledAt.UnixMilli(),
		SpotBid: s.SpotBid, SpotAsk: s.SpotAsk, SpotPrice: s.SpotLast,
		FuturesBid: s.FuturesBid, FuturesAsk: s.FuturesAsk, FuturesPrice: s.FuturesLast,
		MakerFee: s.MakerFee, TakerFee: s.TakerFee,
	}
}

// Snapshot returns a deep-enough copy of the current cache for the
// opportunity monitor to scan without holding the collector's lock.
func (c *Collector) Snapshot() map[string]map[string]core.MarketSample {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make(map[string]map[string]core.MarketSample, len(c.cache))
	for exchange, symbols := range c.cache {
		inner := make(map[string]core.MarketSample, len(symbols))
		for symbol, sample := range symbols {
			inner[symbol] = sample
		}
		out[exchange] = inner
	}
	return out
}
