// Package orders places and tracks exchange orders, guaranteeing that
// multi-leg hedges either both fill or roll back to flat (spec.md §4.4).
package orders

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"

	"fundingarb/internal/core"
	"fundingarb/pkg/retry"
)

const (
	maxRetries   = 3
	retryDelay   = 500 * time.Millisecond
	pollCeiling  = 30 * time.Second
	pollInterval = 500 * time.Millisecond
	depthLevels  = 20
	minDepthFrac = 0.8
	estFeeBps    = 0.0005
	syncTick     = 15 * time.Second
)

// Manager implements core.OrderManager. One Manager instance serves every
// venue; it looks up the driver for each leg's Exchange field.
type Manager struct {
	drivers map[string]core.ExchangeDriver
	store   core.Store
	log     core.Logger

	tradingEnabled bool

	rateLimiter *rate.Limiter

	tracer       trace.Tracer
	orderCounter metric.Int64Counter
	retryCounter metric.Int64Counter
	failCounter  metric.Int64Counter
}

// New constructs a Manager. meter/tracer may be no-op implementations.
func New(drivers map[string]core.ExchangeDriver, store core.Store, log core.Logger, tradingEnabled bool, tracer trace.Tracer, meter metric.Meter) *Manager {
	orderCounter, _ := meter.Int64Counter("order_placements_total")
	retryCounter, _ := meter.Int64Counter("order_retries_total")
	failCounter, _ := meter.Int64Counter("order_failures_total")

	return &Manager{
		drivers:        drivers,
		store:          store,
		log:            log.WithField("component", "order_manager"),
		tradingEnabled: tradingEnabled,
		rateLimiter:    rate.NewLimiter(rate.Limit(10), 20),
		tracer:         tracer,
		orderCounter:   orderCounter,
		retryCounter:   retryCounter,
		failCounter:    failCounter,
	}
}

// PlaceHedgePair places leg A then leg B; a leg-B failure rolls back leg
// A with a market, no-depth-check reversal order (spec.md §4.4).
func (m *Manager) PlaceHedgePair(ctx context.Context, legA, legB core.PlaceOrderRequest) (*core.Order, *core.Order, decimal.Decimal, error) {
	orderA, err := m.PlaceSingleLeg(ctx, legA)
	if err != nil {
		return nil, nil, decimal.Zero, fmt.Errorf("orders: leg A failed: %w", err)
	}

	orderB, err := m.PlaceSingleLeg(ctx, legB)
	if err != nil {
		m.log.Error("orders: leg B failed, rolling back leg A",
			"exchange", legA.Exchange, "symbol", legA.Symbol, "error", err.Error())

		rollback := legA
		rollback.Side = invertSide(legA.Side)
		rollback.Type = core.OrderTypeMarket
		rollback.CheckDepth = false
		rollback.ReduceOnly = true

		if _, rbErr := m.PlaceSingleLeg(ctx, rollback); rbErr != nil {
			m.log.Error("orders: rollback order failed, leg A left exposed",
				"exchange", legA.Exchange, "symbol", legA.Symbol, "error", rbErr.Error())
			event := &core.RiskEvent{
				Severity:    core.SeverityCritical,
				EventType:   "leg_atomicity_breach",
				Description: fmt.Sprintf("rollback failed for %s %s, leg A left exposed: %v", legA.Exchange, legA.Symbol, rbErr),
			}
			if _, ierr := m.store.InsertRiskEvent(ctx, event); ierr != nil {
				m.log.Error("orders: persist leg atomicity breach event failed", "error", ierr.Error())
			}
		}
		return nil, nil, decimal.Zero, fmt.Errorf("orders: leg B failed: %w", err)
	}

	totalFee := feeOf(orderA).Add(feeOf(orderB))
	return orderA, orderB, totalFee, nil
}

// ClosePair mirrors PlaceHedgePair without rollback: a failed second leg
// leaves an exposed position for the operator to resolve (spec.md §4.4).
func (m *Manager) ClosePair(ctx context.Context, legA, legB core.PlaceOrderRequest) (*core.Order, *core.Order, decimal.Decimal, error) {
	orderA, err := m.PlaceSingleLeg(ctx, legA)
	if err != nil {
		return nil, nil, decimal.Zero, fmt.Errorf("orders: close leg A failed: %w", err)
	}

	orderB, err := m.PlaceSingleLeg(ctx, legB)
	if err != nil {
		m.log.Error("orders: close leg B failed, position left partially closed",
			"exchange", legB.Exchange, "symbol", legB.Symbol, "error", err.Error())
		return orderA, nil, feeOf(orderA), fmt.Errorf("orders: close leg B failed: %w", err)
	}

	return orderA, orderB, feeOf(orderA).Add(feeOf(orderB)), nil
}

// PlaceSingleLeg places one order with retry, pre-trade depth check, and
// terminal-status polling, then persists the resulting Order row.
func (m *Manager) PlaceSingleLeg(ctx context.Context, req core.PlaceOrderRequest) (*core.Order, error) {
	ctx, span := m.tracer.Start(ctx, "PlaceSingleLeg",
		trace.WithAttributes(
			attribute.String("exchange", req.Exchange),
			attribute.String("symbol", req.Symbol),
			attribute.String("side", string(req.Side)),
		))
	defer span.End()

	if !m.tradingEnabled {
		order := m.synthesizeOrder(req)
		id, err := m.store.InsertOrder(ctx, order)
		if err != nil {
			return nil, fmt.Errorf("orders: persist simulated order: %w", err)
		}
		order.ID = id
		return order, nil
	}

	driver, ok := m.drivers[req.Exchange]
	if !ok {
		return nil, fmt.Errorf("orders: no driver registered for exchange %q", req.Exchange)
	}

	if req.CheckDepth {
		if err := m.checkDepth(ctx, driver, req); err != nil {
			return nil, err
		}
	}

	venueOrder, err := m.placeWithRetry(ctx, driver, req)
	if err != nil {
		return nil, err
	}

	if venueOrder.Type == core.OrderTypeMarket {
		venueOrder = m.pollUntilTerminal(ctx, driver, venueOrder, req.Symbol)
	}

	if venueOrder.FeeCost.IsZero() {
		venueOrder.FeeCost = venueOrder.Filled.Mul(venueOrder.Price).Mul(decimal.NewFromFloat(estFeeBps))
	}
	venueOrder.Exchange = req.Exchange
	venueOrder.StrategyID = req.StrategyID
	venueOrder.StrategyType = req.Strategy

	id, err := m.store.InsertOrder(ctx, venueOrder)
	if err != nil {
		return nil, fmt.Errorf("orders: persist order: %w", err)
	}
	venueOrder.ID = id
	return venueOrder, nil
}

// checkDepth walks the top-20 book on the opposite side of the trade;
// rejects if cumulative level size covers less than 80% of the requested
// amount. A fill estimate that would slip more than 1% only warns.
func (m *Manager) checkDepth(ctx context.Context, driver core.ExchangeDriver, req core.PlaceOrderRequest) error {
	book, err := driver.GetOrderBook(ctx, req.Symbol, req.IsFutures, depthLevels)
	if err != nil {
		return fmt.Errorf("orders: depth check: %w", err)
	}

	levels := book.Asks
	if req.Side == core.SideSell {
		levels = book.Bids
	}

	requested := req.Amount
	cumulative := decimal.Zero
	weightedCost := decimal.Zero
	for _, lvl := range levels {
		if cumulative.GreaterThanOrEqual(requested) {
			break
		}
		take := lvl.Size
		if cumulative.Add(take).GreaterThan(requested) {
			take = requested.Sub(cumulative)
		}
		cumulative = cumulative.Add(take)
		weightedCost = weightedCost.Add(take.Mul(lvl.Price))
	}

	minCoverage := requested.Mul(decimal.NewFromFloat(minDepthFrac))
	if cumulative.LessThan(minCoverage) {
		return fmt.Errorf("orders: insufficient book depth for %s %s: have %s, need %s",
			req.Exchange, req.Symbol, cumulative.String(), minCoverage.String())
	}

	if cumulative.IsPositive() && len(levels) > 0 {
		avgFill := weightedCost.Div(cumulative)
		best := levels[0].Price
		if best.IsPositive() {
			slip := avgFill.Sub(best).Abs().Div(best)
			if slip.GreaterThan(decimal.NewFromFloat(0.01)) {
				m.log.Warn("orders: estimated slippage exceeds 1%",
					"exchange", req.Exchange, "symbol", req.Symbol, "slippage", slip.String())
			}
		}
	}

	return nil
}

// placeWithRetry retries a failed placement up to maxRetries times via
// pkg/retry.Do, whatever the error kind. The backoff is pinned at
// retryDelay (InitialBackoff == MaxBackoff) plus retry.Do's jitter, so
// every retry waits about the same time; the delay does not grow with the
// attempt number. A rate-limiter wait failure aborts immediately instead
// of being retried.
func (m *Manager) placeWithRetry(ctx context.Context, driver core.ExchangeDriver, req core.PlaceOrderRequest) (*core.Order, error) {
	var order *core.Order
	attempt := 0
	fatal := false

	policy := retry.RetryPolicy{
		MaxAttempts:    maxRetries + 1,
		InitialBackoff: retryDelay,
		MaxBackoff:     retryDelay,
	}

	err := retry.Do(ctx, policy, func(error) bool { return !fatal }, func() error {
		if waitErr := m.rateLimiter.Wait(ctx); waitErr != nil {
			fatal = true
			return fmt.Errorf("orders: rate limit wait: %w", waitErr)
		}

		var placeErr error
		if req.Type == core.OrderTypeLimit {
			order, placeErr = driver.CreateLimitOrder(ctx, req)
		} else {
			order, placeErr = driver.CreateMarketOrder(ctx, req)
		}
		if m.orderCounter != nil {
			m.orderCounter.Add(ctx, 1, metric.WithAttributes(attribute.String("exchange", req.Exchange)))
		}
		if placeErr == nil {
			return nil
		}

		attempt++
		m.log.Warn("orders: placement failed", "exchange", req.Exchange, "symbol", req.Symbol, "attempt", attempt, "error", placeErr.Error())
		if m.failCounter != nil {
			m.failCounter.Add(ctx, 1)
		}
		if m.retryCounter != nil {
			m.retryCounter.Add(ctx, 1)
		}
		return placeErr
	})
	if err != nil {
		return nil, fmt.Errorf("orders: max retries exceeded: %w", err)
	}
	return order, nil
}

// pollUntilTerminal polls a freshly placed market order for up to
// pollCeiling; "order not found" is treated as filled, a common response
// for fast market fills.
func (m *Manager) pollUntilTerminal(ctx context.Context, driver core.ExchangeDriver, order *core.Order, symbol string) *core.Order {
	deadline := time.Now().Add(pollCeiling)
	for time.Now().Before(deadline) {
		if isTerminal(order.Status) {
			return order
		}

		fetched, err := driver.FetchOrder(ctx, order.VenueOrderID, symbol)
		if err != nil {
			if strings.Contains(strings.ToLower(err.Error()), "not found") {
				order.Status = core.OrderFilled
				order.Filled = order.Amount
				return order
			}
			m.log.Warn("orders: poll failed", "venue_order_id", order.VenueOrderID, "error", err.Error())
		} else {
			order = fetched
			if isTerminal(order.Status) {
				return order
			}
		}

		select {
		case <-ctx.Done():
			return order
		case <-time.After(pollInterval):
		}
	}
	return order
}

// Run polls every non-terminal order against its venue on a fixed tick
// until ctx is cancelled, so orders left open by a crash or a slow fill
// still converge without operator intervention.
func (m *Manager) Run(ctx context.Context) error {
	ticker := time.NewTicker(syncTick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := m.SyncPendingOrders(ctx); err != nil {
				m.log.Error("orders: sync pending orders failed", "error", err.Error())
			}
		}
	}
}

// SyncPendingOrders refreshes every non-terminal Order row from its
// venue; called on each Run tick and available to ops tooling directly.
func (m *Manager) SyncPendingOrders(ctx context.Context) error {
	pending, err := m.store.ListOrdersByStatus(ctx, core.OrderOpen, core.OrderPending, core.OrderPartiallyFilled)
	if err != nil {
		return fmt.Errorf("orders: list pending: %w", err)
	}

	for _, o := range pending {
		driver, ok := m.drivers[o.Exchange]
		if !ok {
			continue
		}

		fetched, err := driver.FetchOrder(ctx, o.VenueOrderID, o.Symbol)
		if err != nil {
			if strings.Contains(strings.ToLower(err.Error()), "not found") {
				o.Status = core.OrderFilled
				o.Filled = o.Amount
				o.UpdateTime = time.Now()
				if err := m.store.UpdateOrder(ctx, o); err != nil {
					m.log.Warn("orders: sync update failed", "order_id", o.ID, "error", err.Error())
				}
				continue
			}
			m.log.Warn("orders: sync fetch failed", "order_id", o.ID, "error", err.Error())
			continue
		}

		fetched.ID = o.ID
		fetched.StrategyID = o.StrategyID
		fetched.StrategyType = o.StrategyType
		fetched.Exchange = o.Exchange
		fetched.UpdateTime = time.Now()
		if err := m.store.UpdateOrder(ctx, *fetched); err != nil {
			m.log.Warn("orders: sync update failed", "order_id", o.ID, "error", err.Error())
		}
	}
	return nil
}

// synthesizeOrder builds a deterministic filled order for simulation
// mode, independent of live-mode logic downstream.
func (m *Manager) synthesizeOrder(req core.PlaceOrderRequest) *core.Order {
	price := req.Price
	if price.IsZero() {
		price = decimal.NewFromInt(1)
	}
	return &core.Order{
		Exchange:     req.Exchange,
		StrategyID:   req.StrategyID,
		StrategyType: req.Strategy,
		Symbol:       req.Symbol,
		Side:         req.Side,
		Type:         req.Type,
		Price:        price,
		Amount:       req.Amount,
		Filled:       req.Amount,
		Status:       core.OrderClosed,
		VenueOrderID: "SIM_" + uuid.NewString(),
		FeeCost:      req.Amount.Mul(price).Mul(decimal.NewFromFloat(estFeeBps)),
		FeeCurrency:  "USDT",
		ReduceOnly:   req.ReduceOnly,
		CreateTime:   time.Now(),
		UpdateTime:   time.Now(),
	}
}

func feeOf(o *core.Order) decimal.Decimal {
	if o == nil {
		return decimal.Zero
	}
	return o.FeeCost
}

func isTerminal(status core.OrderStatus) bool {
	switch status {
	case core.OrderFilled, core.OrderClosed, core.OrderCancelled, core.OrderFailed:
		return true
	default:
		return false
	}
}

func invertSide(side core.OrderSide) core.OrderSide {
	if side == core.SideBuy {
		return core.SideSell
	}
	return core.SideBuy
}
