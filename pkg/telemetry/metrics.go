package telemetry

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metric names
const (
	MetricPnLRealizedTotal    = "fundingarb_pnl_realized_total"
	MetricPnLUnrealized       = "fundingarb_pnl_unrealized"
	MetricPositionsOpen       = "fundingarb_positions_open"
	MetricOpportunitiesFound  = "fundingarb_opportunities_found"
	MetricFundingCollected    = "fundingarb_funding_collected_total"
	MetricOrdersPlacedTotal   = "fundingarb_orders_placed_total"
	MetricOrderRetriesTotal   = "fundingarb_order_retries_total"
	MetricOrderFailuresTotal  = "fundingarb_order_failures_total"
	MetricLatencyExchange     = "fundingarb_latency_exchange_ms"
	MetricLatencyScan         = "fundingarb_latency_scan_ms"
	MetricRiskTriggered       = "fundingarb_risk_triggered"
	MetricCircuitBreakerOpen  = "fundingarb_circuit_breaker_open"
	MetricQualityScore        = "fundingarb_quality_score"
	MetricRiskEventsTotal     = "fundingarb_risk_events_total"
	MetricRollbackFailedTotal = "fundingarb_rollback_failed_total"
)

// MetricsHolder holds initialized instruments
type MetricsHolder struct {
	PnLRealizedTotal   metric.Float64Counter
	PnLUnrealized      metric.Float64ObservableGauge
	PositionsOpen      metric.Int64ObservableGauge
	OpportunitiesFound metric.Int64ObservableGauge
	FundingCollected   metric.Float64Counter
	OrdersPlacedTotal  metric.Int64Counter
	OrderRetriesTotal  metric.Int64Counter
	OrderFailuresTotal metric.Int64Counter
	LatencyExchange    metric.Float64Histogram
	LatencyScan        metric.Float64Histogram
	RiskTriggered      metric.Int64ObservableGauge
	CircuitBreakerOpen metric.Int64ObservableGauge
	QualityScore       metric.Float64ObservableGauge
	RiskEventsTotal    metric.Int64Counter
	RollbackFailed     metric.Int64Counter

	// State for observable gauges
	mu                 sync.RWMutex
	unrealizedPnLMap   map[string]float64
	positionsOpenMap   map[string]int64
	opportunitiesMap   map[string]int64
	riskTriggeredMap   map[string]int64
	cbOpenMap          map[string]int64
	qualityScoreMap    map[string]float64
}

var (
	globalMetrics *MetricsHolder
	initOnce      sync.Once
)

// GetGlobalMetrics returns the singleton metrics holder
func GetGlobalMetrics() *MetricsHolder {
	initOnce.Do(func() {
		globalMetrics = &MetricsHolder{
			unrealizedPnLMap: make(map[string]float64),
			positionsOpenMap: make(map[string]int64),
			opportunitiesMap: make(map[string]int64),
			riskTriggeredMap: make(map[string]int64),
			cbOpenMap:        make(map[string]int64),
			qualityScoreMap:  make(map[string]float64),
		}
	})
	return globalMetrics
}

// InitMetrics initializes instruments using the meter
func (m *MetricsHolder) InitMetrics(meter metric.Meter) error {
	var err error

	m.PnLRealizedTotal, err = meter.Float64Counter(MetricPnLRealizedTotal, metric.WithDescription("Cumulative realized profit/loss across all positions"))
	if err != nil {
		return err
	}

	m.FundingCollected, err = meter.Float64Counter(MetricFundingCollected, metric.WithDescription("Cumulative funding collected across all positions"))
	if err != nil {
		return err
	}

	m.OrdersPlacedTotal, err = meter.Int64Counter(MetricOrdersPlacedTotal, metric.WithDescription("Total orders placed"))
	if err != nil {
		return err
	}

	m.OrderRetriesTotal, err = meter.Int64Counter(MetricOrderRetriesTotal, metric.WithDescription("Total order placement retries"))
	if err != nil {
		return err
	}

	m.OrderFailuresTotal, err = meter.Int64Counter(MetricOrderFailuresTotal, metric.WithDescription("Total order placement failures"))
	if err != nil {
		return err
	}

	m.RiskEventsTotal, err = meter.Int64Counter(MetricRiskEventsTotal, metric.WithDescription("Total risk events emitted, by severity"))
	if err != nil {
		return err
	}

	m.RollbackFailed, err = meter.Int64Counter(MetricRollbackFailedTotal, metric.WithDescription("Total hedge-leg rollback attempts that themselves failed"))
	if err != nil {
		return err
	}

	m.LatencyExchange, err = meter.Float64Histogram(MetricLatencyExchange, metric.WithDescription("Latency of exchange driver calls"), metric.WithUnit("ms"))
	if err != nil {
		return err
	}

	m.LatencyScan, err = meter.Float64Histogram(MetricLatencyScan, metric.WithDescription("Duration of an opportunity scan pass or a collector price tick"), metric.WithUnit("ms"))
	if err != nil {
		return err
	}

	m.PnLUnrealized, err = meter.Float64ObservableGauge(MetricPnLUnrealized, metric.WithDescription("Current unrealized PnL by symbol"),
		metric.WithFloat64Callback(func(ctx context.Context, obs metric.Float64Observer) error {
			m.mu.RLock()
			defer m.mu.RUnlock()
			for sym, val := range m.unrealizedPnLMap {
				obs.Observe(val, metric.WithAttributes(attribute.String("symbol", sym)))
			}
			return nil
		}))
	if err != nil {
		return err
	}

	m.PositionsOpen, err = meter.Int64ObservableGauge(MetricPositionsOpen, metric.WithDescription("Number of currently open positions, by strategy"),
		metric.WithInt64Callback(func(ctx context.Context, obs metric.Int64Observer) error {
			m.mu.RLock()
			defer m.mu.RUnlock()
			for strategy, val := range m.positionsOpenMap {
				obs.Observe(val, metric.WithAttributes(attribute.String("strategy", strategy)))
			}
			return nil
		}))
	if err != nil {
		return err
	}

	m.OpportunitiesFound, err = meter.Int64ObservableGauge(MetricOpportunitiesFound, metric.WithDescription("Opportunities found in the last scan, by strategy"),
		metric.WithInt64Callback(func(ctx context.Context, obs metric.Int64Observer) error {
			m.mu.RLock()
			defer m.mu.RUnlock()
			for strategy, val := range m.opportunitiesMap {
				obs.Observe(val, metric.WithAttributes(attribute.String("strategy", strategy)))
			}
			return nil
		}))
	if err != nil {
		return err
	}

	m.RiskTriggered, err = meter.Int64ObservableGauge(MetricRiskTriggered, metric.WithDescription("Risk monitor triggered state (1=triggered, 0=normal)"),
		metric.WithInt64Callback(func(ctx context.Context, obs metric.Int64Observer) error {
			m.mu.RLock()
			defer m.mu.RUnlock()
			for sym, val := range m.riskTriggeredMap {
				obs.Observe(val, metric.WithAttributes(attribute.String("symbol", sym)))
			}
			return nil
		}))
	if err != nil {
		return err
	}

	m.CircuitBreakerOpen, err = meter.Int64ObservableGauge(MetricCircuitBreakerOpen, metric.WithDescription("Risk circuit breaker open state (1=open, 0=closed)"),
		metric.WithInt64Callback(func(ctx context.Context, obs metric.Int64Observer) error {
			m.mu.RLock()
			defer m.mu.RUnlock()
			for sym, val := range m.cbOpenMap {
				obs.Observe(val, metric.WithAttributes(attribute.String("symbol", sym)))
			}
			return nil
		}))
	if err != nil {
		return err
	}

	m.QualityScore, err = meter.Float64ObservableGauge(MetricQualityScore, metric.WithDescription("Current opportunity composite score, by stable id"),
		metric.WithFloat64Callback(func(ctx context.Context, obs metric.Float64Observer) error {
			m.mu.RLock()
			defer m.mu.RUnlock()
			for id, val := range m.qualityScoreMap {
				obs.Observe(val, metric.WithAttributes(attribute.String("opportunity_id", id)))
			}
			return nil
		}))
	if err != nil {
		return err
	}

	return nil
}

// Helpers to update observable state

func (m *MetricsHolder) SetRiskTriggered(symbol string, triggered bool) {
	val := int64(0)
	if triggered {
		val = 1
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.riskTriggeredMap[symbol] = val
}

func (m *MetricsHolder) SetCircuitBreakerOpen(symbol string, open bool) {
	val := int64(0)
	if open {
		val = 1
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cbOpenMap[symbol] = val
}

func (m *MetricsHolder) SetUnrealizedPnL(symbol string, value float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.unrealizedPnLMap[symbol] = value
}

func (m *MetricsHolder) SetPositionsOpen(strategy string, count int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.positionsOpenMap[strategy] = count
}

func (m *MetricsHolder) SetOpportunitiesFound(strategy string, count int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.opportunitiesMap[strategy] = count
}

func (m *MetricsHolder) SetQualityScore(opportunityID string, score float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.qualityScoreMap[opportunityID] = score
}
