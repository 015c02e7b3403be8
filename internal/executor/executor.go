// Package executor converts opportunities into Positions and owns each
// Position's lifecycle until closed (spec.md §4.3).
package executor

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"fundingarb/internal/config"
	"fundingarb/internal/core"
)

const (
	admissionQueueSize  = 256
	positionMonitorTick = 5 * time.Second
	reconcileTick       = 45 * time.Second
)

// opportunitySource is satisfied by *opportunity.Monitor.
type opportunitySource interface {
	Subscribe(core.OpportunityListener)
}

// priceCache is satisfied by *collector.Collector; the position-monitor
// loop reads the latest mid-price and funding rate from it rather than
// calling the venue directly (spec.md §4.3.1 "read from the price
// cache").
type priceCache interface {
	Snapshot() map[string]map[string]core.MarketSample
}

// Executor runs the admission, position-monitor, and exchange-
// reconciliation loops described in spec.md §4.3.
type Executor struct {
	store       core.Store
	orders      core.OrderManager
	risk        core.RiskManager
	drivers     map[string]core.ExchangeDriver
	prices      priceCache
	pairConfigs *config.PairConfigResolver
	log         core.Logger

	manualCallback func(core.Opportunity)

	queue  chan core.Opportunity
	paused bool
	pauseMu sync.Mutex

	seenMu sync.Mutex
	seen   map[string]time.Time // StableID -> last-enqueued time, debounces repeat scans
}

// New constructs an Executor. manualCallback, if non-nil, is invoked for
// every opportunity that is not auto-admitted (manual execution mode, or
// non-low risk).
func New(store core.Store, orderMgr core.OrderManager, riskMgr core.RiskManager, drivers map[string]core.ExchangeDriver, prices priceCache, pairConfigs *config.PairConfigResolver, log core.Logger, manualCallback func(core.Opportunity)) *Executor {
	return &Executor{
		store:          store,
		orders:         orderMgr,
		risk:           riskMgr,
		drivers:        drivers,
		prices:         prices,
		pairConfigs:    pairConfigs,
		log:            log.WithField("component", "executor"),
		manualCallback: manualCallback,
		queue:          make(chan core.Opportunity, admissionQueueSize),
		seen:           make(map[string]time.Time),
	}
}

// Subscribe wires the Executor as a listener of src, so every scan's
// re-ranked list flows into OnOpportunities.
func (e *Executor) Subscribe(src opportunitySource) {
	src.Subscribe(e.OnOpportunities)
}

// OnOpportunities is the core.OpportunityListener entry point: auto +
// low-risk candidates are enqueued, everything else is surfaced to the
// operator callback (spec.md §4.3 "Admission").
func (e *Executor) OnOpportunities(opportunities []core.Opportunity) {
	now := time.Now()
	e.seenMu.Lock()
	for id, t := range e.seen {
		if now.Sub(t) > 5*time.Minute {
			delete(e.seen, id)
		}
	}
	e.seenMu.Unlock()

	for _, opp := range opportunities {
		if opp.ExecutionMode == core.ExecutionAuto && opp.RiskLevel == core.RiskLow {
			e.seenMu.Lock()
			_, dup := e.seen[opp.StableID]
			if !dup {
				e.seen[opp.StableID] = now
			}
			e.seenMu.Unlock()
			if dup {
				continue
			}

			select {
			case e.queue <- opp:
			default:
				e.log.Warn("executor: admission queue full, dropping opportunity", "stable_id", opp.StableID)
			}
			continue
		}

		if e.manualCallback != nil {
			e.manualCallback(opp)
		}
	}
}

// Pause stops the admission loop from draining the queue without
// discarding queued opportunities.
func (e *Executor) Pause() {
	e.pauseMu.Lock()
	e.paused = true
	e.pauseMu.Unlock()
}

// Resume un-pauses the admission loop.
func (e *Executor) Resume() {
	e.pauseMu.Lock()
	e.paused = false
	e.pauseMu.Unlock()
}

func (e *Executor) isPaused() bool {
	e.pauseMu.Lock()
	defer e.pauseMu.Unlock()
	return e.paused
}

// Run blocks, driving the three lifecycle loops until ctx is cancelled.
func (e *Executor) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error { return e.admissionLoop(ctx) })
	g.Go(func() error { return e.positionMonitorLoop(ctx) })
	g.Go(func() error { return e.reconciliationLoop(ctx) })

	return g.Wait()
}

func (e *Executor) admissionLoop(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case opp := <-e.queue:
			if e.isPaused() {
				continue
			}
			e.execute(ctx, opp)
		}
	}
}

// execute implements spec.md §4.3's "Per-opportunity execution" steps.
func (e *Executor) execute(ctx context.Context, opp core.Opportunity) {
	decision, err := e.risk.CheckEntry(ctx, opp)
	if err != nil {
		e.log.Error("executor: risk check failed", "stable_id", opp.StableID, "error", err.Error())
		return
	}
	if !decision.Passed {
		e.log.Info("execution_failed", "stable_id", opp.StableID, "reason", decision.Reason)
		return
	}

	size := decision.AdjustedPositionSize
	if size.IsZero() {
		size = opp.PositionSize
	}

	position := &core.Position{
		Strategy:  opp.Strategy,
		Symbol:    opp.Symbol,
		Exchanges: exchangesOf(opp),
		Entry: core.EntryDetails{
			LegPrices:      opp.EntryPrices,
			FundingRate:    opp.FundingRate,
			ExpectedReturn: opp.ExpectedReturnPct,
			Direction:      opp.Direction,
		},
		Size:                   size,
		Status:                 core.PositionOpen,
		OpenTime:               time.Now(),
		AccruedFundingInstants: make(map[int64]bool),
	}

	id, err := e.store.InsertPosition(ctx, position)
	if err != nil {
		e.log.Error("executor: insert position failed", "stable_id", opp.StableID, "error", err.Error())
		return
	}
	position.ID = id

	totalFee, err := e.openPosition(ctx, opp, position)
	if err != nil {
		position.Status = core.PositionFailed
		if uerr := e.store.UpdatePosition(ctx, *position); uerr != nil {
			e.log.Error("executor: mark position failed error", "position_id", id, "error", uerr.Error())
		}
		e.log.Error("executor: open position failed", "position_id", id, "error", err.Error())
		return
	}

	position.FeesPaid = totalFee
	if err := e.store.UpdatePosition(ctx, *position); err != nil {
		e.log.Error("executor: persist opening fee failed", "position_id", id, "error", err.Error())
	}

	e.log.Info("position_opened", "position_id", id, "strategy", string(opp.Strategy), "symbol", opp.Symbol)
}

func exchangesOf(opp core.Opportunity) []string {
	if opp.Strategy == core.StrategyS1 {
		return []string{opp.LongExchange, opp.ShortExchange}
	}
	return []string{opp.Exchange}
}

func (e *Executor) pairConfigFor(ctx context.Context, pos core.Position) (*core.TradingPairConfig, error) {
	exchange := ""
	if len(pos.Exchanges) > 0 {
		exchange = pos.Exchanges[0]
	}
	return e.pairConfigs.Resolve(ctx, pos.Symbol, exchange)
}
