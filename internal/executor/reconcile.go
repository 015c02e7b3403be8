package executor

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"fundingarb/internal/core"
)

type venueKey struct {
	exchange string
	symbol   string
	side     core.Direction
}

func (e *Executor) reconciliationLoop(ctx context.Context) error {
	e.reconcile(ctx)

	ticker := time.NewTicker(reconcileTick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			e.reconcile(ctx)
		}
	}
}

// reconcile implements spec.md §4.3.2: build an index of venue positions
// keyed by (exchange, symbol, side), compare against DB open positions,
// update or auto-close divergent rows, and adopt untracked venue
// positions as new directional-funding rows.
func (e *Executor) reconcile(ctx context.Context) {
	index := make(map[venueKey]core.VenuePosition)
	for exchange, driver := range e.drivers {
		venuePositions, err := driver.GetPositions(ctx)
		if err != nil {
			e.log.Warn("executor: reconcile fetch positions failed", "exchange", exchange, "error", err.Error())
			continue
		}
		for _, vp := range venuePositions {
			index[venueKey{exchange: exchange, symbol: vp.Symbol, side: vp.Side}] = vp
		}
	}

	positions, err := e.store.ListOpenPositions(ctx)
	if err != nil {
		e.log.Error("executor: reconcile list positions failed", "error", err.Error())
		return
	}

	matched := make(map[venueKey]bool)
	for i := range positions {
		pos := positions[i]
		if pos.Strategy != core.StrategyS3 {
			// S1/S2A/S2B rows are not updated or auto-closed here; their
			// legs are only marked matched so they are not adopted as S3 rows.
			for _, ex := range pos.Exchanges {
				matched[venueKey{exchange: ex, symbol: pos.Symbol, side: core.DirectionLong}] = true
				matched[venueKey{exchange: ex, symbol: pos.Symbol, side: core.DirectionShort}] = true
			}
			continue
		}
		if len(pos.Exchanges) == 0 {
			continue
		}
		key := venueKey{exchange: pos.Exchanges[0], symbol: pos.Symbol, side: pos.Entry.Direction}

		vp, ok := index[key]
		if !ok {
			pos.Status = core.PositionClosed
			pos.CloseTime = time.Now()
			if err := e.store.UpdatePosition(ctx, pos); err != nil {
				e.log.Warn("executor: reconcile auto-close failed", "position_id", pos.ID, "error", err.Error())
				continue
			}
			e.log.Warn("position_auto_closed", "position_id", pos.ID, "reason", "not_found_on_exchange")
			continue
		}

		matched[key] = true
		entryPx := entryPrice(&pos)
		if !vp.EntryPrice.Equal(entryPx) || !vp.Notional.Equal(pos.Size) {
			pos.Size = vp.Notional
			if pos.Entry.LegPrices == nil {
				pos.Entry.LegPrices = make(map[string]decimal.Decimal)
			}
			pos.Entry.LegPrices[key.exchange] = vp.EntryPrice
			if err := e.store.UpdatePosition(ctx, pos); err != nil {
				e.log.Warn("executor: reconcile update failed", "position_id", pos.ID, "error", err.Error())
				continue
			}
			e.log.Info("position_updated", "position_id", pos.ID)
		}
	}

	for key, vp := range index {
		if matched[key] {
			continue
		}
		adopted := &core.Position{
			Strategy:  core.StrategyS3,
			Symbol:    vp.Symbol,
			Exchanges: []string{key.exchange},
			Entry: core.EntryDetails{
				LegPrices: map[string]decimal.Decimal{key.exchange: vp.EntryPrice},
				Direction: vp.Side,
			},
			Size:                   vp.Notional,
			Status:                 core.PositionOpen,
			OpenTime:               time.Now(),
			AccruedFundingInstants: make(map[int64]bool),
		}
		if _, err := e.store.InsertPosition(ctx, adopted); err != nil {
			e.log.Warn("executor: reconcile adopt failed", "exchange", key.exchange, "symbol", key.symbol, "error", err.Error())
		}
	}
}
