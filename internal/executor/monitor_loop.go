package executor

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"fundingarb/internal/core"
)

func (e *Executor) positionMonitorLoop(ctx context.Context) error {
	ticker := time.NewTicker(positionMonitorTick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			e.monitorTick(ctx)
		}
	}
}

func (e *Executor) monitorTick(ctx context.Context) {
	positions, err := e.store.ListOpenPositions(ctx)
	if err != nil {
		e.log.Error("executor: list open positions failed", "error", err.Error())
		return
	}

	for i := range positions {
		pos := positions[i]

		if pos.Status == core.PositionEmergencyClosePending {
			if err := e.closePosition(ctx, &pos); err != nil {
				e.log.Error("executor: emergency close failed", "position_id", pos.ID, "error", err.Error())
			}
			continue
		}

		changed, err := e.accrueFunding(ctx, &pos)
		if err != nil {
			e.log.Warn("executor: funding accrual failed", "position_id", pos.ID, "error", err.Error())
		}
		if changed {
			if err := e.store.UpdatePosition(ctx, pos); err != nil {
				e.log.Warn("executor: persist funding accrual failed", "position_id", pos.ID, "error", err.Error())
			}
		}

		if pos.Strategy == core.StrategyS3 {
			e.runDirectionalRules(ctx, &pos)
		}
	}
}

// runDirectionalRules implements spec.md §4.3.1's hard stop-loss,
// funding-flip exit, and trailing-stop checks for an S3 position.
func (e *Executor) runDirectionalRules(ctx context.Context, pos *core.Position) {
	sample, ok := e.latestSample(pos)
	if !ok {
		return
	}

	short := pos.Entry.Direction == core.DirectionShort
	entry := entryPrice(pos)
	if entry.IsZero() {
		return
	}

	now := sample.FuturesLast
	var pnlPct decimal.Decimal
	if short {
		pnlPct = entry.Sub(now).Div(entry)
	} else {
		pnlPct = now.Sub(entry).Div(entry)
	}
	pos.CurrentPnL = pos.Size.Mul(pnlPct)

	cfg, err := e.pairConfigFor(ctx, *pos)
	if err != nil {
		e.log.Warn("executor: pair config resolve failed", "position_id", pos.ID, "error", err.Error())
		if uerr := e.store.UpdatePosition(ctx, *pos); uerr != nil {
			e.log.Warn("executor: persist pnl failed", "position_id", pos.ID, "error", uerr.Error())
		}
		return
	}

	// 1. Hard stop-loss.
	if pnlPct.LessThanOrEqual(cfg.StopLossPct.Neg()) {
		e.log.Warn("risk_alert", "position_id", pos.ID, "reason", "stop_loss")
		e.forceClose(ctx, pos, "stop_loss")
		return
	}

	// 2. Funding-flip exit.
	if sample.HasFunding {
		if short && sample.FundingRate.LessThanOrEqual(cfg.ShortExitThreshold) {
			e.forceClose(ctx, pos, "funding_flip")
			return
		}
		if !short && sample.FundingRate.GreaterThanOrEqual(cfg.LongExitThreshold) {
			e.forceClose(ctx, pos, "funding_flip")
			return
		}
	}

	// 3. Trailing stop.
	if cfg.TrailingStop.Enabled {
		if !pos.TrailingStopActivated && pnlPct.GreaterThanOrEqual(cfg.TrailingStop.ActivationPct) {
			pos.TrailingStopActivated = true
			pos.BestPrice = now
			pos.ActivationPrice = now
		} else if pos.TrailingStopActivated {
			if short && now.LessThan(pos.BestPrice) {
				pos.BestPrice = now
			}
			if !short && now.GreaterThan(pos.BestPrice) {
				pos.BestPrice = now
			}

			var retracement decimal.Decimal
			if pos.BestPrice.IsPositive() {
				if short {
					retracement = now.Sub(pos.BestPrice).Div(pos.BestPrice)
				} else {
					retracement = pos.BestPrice.Sub(now).Div(pos.BestPrice)
				}
			}

			if retracement.GreaterThanOrEqual(cfg.TrailingStop.CallbackPct) {
				e.log.Warn("trailing_stop", "position_id", pos.ID)
				e.forceClose(ctx, pos, "trailing_stop")
				return
			}
		}
	}

	if err := e.store.UpdatePosition(ctx, *pos); err != nil {
		e.log.Warn("executor: persist directional state failed", "position_id", pos.ID, "error", err.Error())
	}
}

func (e *Executor) forceClose(ctx context.Context, pos *core.Position, reason string) {
	if err := e.closePosition(ctx, pos); err != nil {
		e.log.Error("executor: forced close failed", "position_id", pos.ID, "reason", reason, "error", err.Error())
		return
	}
	event := &core.RiskEvent{
		Severity:    core.SeverityWarning,
		EventType:   reason,
		Description: "S3 directional rule forced close",
		PositionID:  pos.ID,
		Timestamp:   time.Now(),
	}
	if _, err := e.store.InsertRiskEvent(ctx, event); err != nil {
		e.log.Warn("executor: persist risk event failed", "position_id", pos.ID, "error", err.Error())
	}
}

func (e *Executor) latestSample(pos *core.Position) (core.MarketSample, bool) {
	if len(pos.Exchanges) == 0 || e.prices == nil {
		return core.MarketSample{}, false
	}
	bySymbol, ok := e.prices.Snapshot()[pos.Exchanges[0]]
	if !ok {
		return core.MarketSample{}, false
	}
	sample, ok := bySymbol[pos.Symbol]
	if !ok || !sample.HasFutures {
		return core.MarketSample{}, false
	}
	return sample, true
}

func entryPrice(pos *core.Position) decimal.Decimal {
	if len(pos.Exchanges) == 0 {
		return decimal.Zero
	}
	return pos.Entry.LegPrices[pos.Exchanges[0]]
}
