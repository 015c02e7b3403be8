// Package risk gates new entries and enforces loss thresholds on open
// positions (spec.md §4.5).
package risk

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"fundingarb/internal/config"
	"fundingarb/internal/core"
	"fundingarb/pkg/telemetry"
)

const monitorTick = 30 * time.Second

// scoreBandHigh/Medium mirror spec.md §4.5 step 6's 85/60 score bands.
var (
	scoreBandHigh   = decimal.NewFromInt(85)
	scoreBandMedium = decimal.NewFromInt(60)
)

// Manager implements core.RiskManager: a pre-trade gate chain plus a
// background loop that re-scores every open position every 30s.
type Manager struct {
	store       core.Store
	pairConfigs *config.PairConfigResolver
	global      config.GlobalConfig
	cfg         config.RiskConfig
	log         core.Logger
	metrics     *telemetry.MetricsHolder
	breaker     *circuitBreaker

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New constructs a Manager. global and cfg are copied at construction;
// config changes made afterwards are not seen by this Manager.
func New(store core.Store, pairConfigs *config.PairConfigResolver, global config.GlobalConfig, cfg config.RiskConfig, log core.Logger, metrics *telemetry.MetricsHolder) *Manager {
	return &Manager{
		store:       store,
		pairConfigs: pairConfigs,
		global:      global,
		cfg:         cfg,
		log:         log.WithField("component", "risk_manager"),
		metrics:     metrics,
		breaker:     newCircuitBreaker(3, 5*time.Minute, log, metrics),
	}
}

// CheckEntry runs spec.md §4.5's pre-trade gate chain; the first failing
// step wins.
func (m *Manager) CheckEntry(ctx context.Context, opp core.Opportunity) (core.RiskDecision, error) {
	if m.breaker.isTripped() {
		return core.RiskDecision{Passed: false, Reason: "circuit_breaker_open"}, nil
	}

	open, err := m.store.ListOpenPositions(ctx)
	if err != nil {
		return core.RiskDecision{}, fmt.Errorf("risk: list open positions: %w", err)
	}

	// 1. Aggregate drawdown.
	unrealized := decimal.Zero
	openSizeTotal := decimal.Zero
	symbolCount := 0
	for _, p := range open {
		unrealized = unrealized.Add(p.CurrentPnL)
		openSizeTotal = openSizeTotal.Add(p.Size)
		if p.Symbol == opp.Symbol {
			symbolCount++
		}
	}
	if aggregateDrawdownTripped(unrealized, m.global.TotalCapital, m.cfg.MaxDrawdown) {
		return core.RiskDecision{Passed: false, Reason: "max_drawdown_exceeded"}, nil
	}

	// 2. Clamp to max_position_size_per_trade.
	size := opp.PositionSize
	if m.cfg.MaxPositionSizePerTrade.IsPositive() && size.GreaterThan(m.cfg.MaxPositionSizePerTrade) {
		size = m.cfg.MaxPositionSizePerTrade
	}

	// 3. Available capital.
	capitalLimit := m.global.TotalCapital.Mul(m.global.MaxCapitalUsage)
	available := capitalLimit.Sub(openSizeTotal)
	if size.GreaterThan(available) {
		if available.IsPositive() {
			size = available
		} else {
			return core.RiskDecision{Passed: false, Reason: "insufficient_available_capital"}, nil
		}
	}

	// 4. Position-count limits, global and per-symbol.
	if m.global.MaxPositions > 0 && len(open) >= m.global.MaxPositions {
		return core.RiskDecision{Passed: false, Reason: "max_positions_reached"}, nil
	}
	pairCfg, err := m.pairConfigs.Resolve(ctx, opp.Symbol, opp.Exchange)
	if err != nil {
		return core.RiskDecision{}, fmt.Errorf("risk: resolve pair config: %w", err)
	}
	if pairCfg.MaxPositions > 0 && symbolCount >= pairCfg.MaxPositions {
		return core.RiskDecision{Passed: false, Reason: "symbol_max_positions_reached"}, nil
	}

	// 5. S1 price-deviation ceiling.
	if opp.Strategy == core.StrategyS1 && opp.PriceDiffPct.GreaterThan(m.cfg.PriceDeviationThreshold) {
		return core.RiskDecision{Passed: false, Reason: "price_deviation_exceeded"}, nil
	}

	// 6. Dynamic score-based sizing.
	if m.cfg.DynamicPositionEnabled {
		mult := m.cfg.LowScoreMultiplier
		switch {
		case opp.Score.GreaterThanOrEqual(scoreBandHigh):
			mult = m.cfg.HighScoreMultiplier
		case opp.Score.GreaterThanOrEqual(scoreBandMedium):
			mult = m.cfg.MediumScoreMultiplier
		}
		size = size.Mul(mult)
		if size.GreaterThan(available) && available.IsPositive() {
			size = available
		}
	}

	if !size.IsPositive() {
		return core.RiskDecision{Passed: false, Reason: "adjusted_size_non_positive"}, nil
	}

	return core.RiskDecision{Passed: true, AdjustedPositionSize: size}, nil
}

// Start runs the 30s position-monitoring loop until ctx is cancelled or
// Stop is called.
func (m *Manager) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	m.cancel = cancel

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		m.monitorLoop(ctx)
	}()
	return nil
}

// Stop signals the monitoring loop to exit and waits for it.
func (m *Manager) Stop() error {
	if m.cancel != nil {
		m.cancel()
	}
	m.wg.Wait()
	return nil
}

func (m *Manager) IsTripped() bool {
	return m.breaker.isTripped()
}

func (m *Manager) monitorLoop(ctx context.Context) {
	ticker := time.NewTicker(monitorTick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.monitorTick(ctx)
		}
	}
}

func (m *Manager) monitorTick(ctx context.Context) {
	positions, err := m.store.ListOpenPositions(ctx)
	if err != nil {
		m.log.Error("risk: list open positions failed", "error", err.Error())
		return
	}

	portfolioHealthy := true
	openByStrategy := make(map[string]int64)

	for _, pos := range positions {
		openByStrategy[string(pos.Strategy)]++
		if pos.Size.IsZero() {
			continue
		}
		pnlPct := pos.CurrentPnL.Div(pos.Size)
		if m.metrics != nil {
			m.metrics.SetUnrealizedPnL(pos.Symbol, pos.CurrentPnL.InexactFloat64())
		}

		switch {
		case pnlPct.LessThan(m.cfg.EmergencyThreshold.Neg()):
			portfolioHealthy = false
			m.emitRiskEvent(ctx, core.SeverityEmergency, "emergency_loss_threshold", pos.ID)
			pos.Status = core.PositionEmergencyClosePending
			if err := m.store.UpdatePosition(ctx, pos); err != nil {
				m.log.Error("risk: mark emergency close pending failed", "position_id", pos.ID, "error", err.Error())
			}
		case pnlPct.LessThan(m.cfg.CriticalThreshold.Neg()):
			portfolioHealthy = false
			m.emitRiskEvent(ctx, core.SeverityCritical, "critical_loss_threshold", pos.ID)
		case pnlPct.LessThan(m.cfg.WarningThreshold.Neg()):
			m.emitRiskEvent(ctx, core.SeverityWarning, "warning_loss_threshold", pos.ID)
		}
	}

	if m.metrics != nil {
		for strategy, count := range openByStrategy {
			m.metrics.SetPositionsOpen(strategy, count)
		}
		m.metrics.SetRiskTriggered("portfolio", !portfolioHealthy)
	}

	m.breaker.recordTick(portfolioHealthy)
}

func (m *Manager) emitRiskEvent(ctx context.Context, severity core.RiskSeverity, eventType string, positionID int64) {
	event := &core.RiskEvent{
		Severity:   severity,
		EventType:  eventType,
		PositionID: positionID,
		Timestamp:  time.Now(),
	}
	if _, err := m.store.InsertRiskEvent(ctx, event); err != nil {
		m.log.Warn("risk: persist risk event failed", "position_id", positionID, "error", err.Error())
	}
}

// CheckAbnormalFundingRate implements the ambient check spec.md §4.5
// names: a funding rate magnitude past the configured ceiling warrants a
// warning, not a hard reject.
func (m *Manager) CheckAbnormalFundingRate(rate decimal.Decimal) bool {
	abnormal := rate.Abs().GreaterThan(m.cfg.AbnormalFundingRate)
	if abnormal {
		m.log.Warn("risk: abnormal funding rate observed", "rate", rate.String())
	}
	return abnormal
}

// CheckAbnormalPriceDeviation implements the second ambient check.
func (m *Manager) CheckAbnormalPriceDeviation(pct decimal.Decimal) bool {
	abnormal := pct.Abs().GreaterThan(m.cfg.PriceDeviationThreshold)
	if abnormal {
		m.log.Warn("risk: abnormal price deviation observed", "pct", pct.String())
	}
	return abnormal
}
