package executor

import (
	"context"
	"fmt"
	"time"

	"fundingarb/internal/core"
)

// closePosition implements spec.md §4.3.4's per-strategy inverse order
// sequence. Status is only advanced to closed if the order manager
// reports success.
func (e *Executor) closePosition(ctx context.Context, pos *core.Position) error {
	var err error

	switch pos.Strategy {
	case core.StrategyS1:
		if len(pos.Exchanges) != 2 {
			return fmt.Errorf("executor: S1 position %d missing venue pair", pos.ID)
		}
		longEx, shortEx := pos.Exchanges[0], pos.Exchanges[1]
		legA := core.PlaceOrderRequest{
			Exchange: longEx, StrategyID: pos.ID, Strategy: pos.Strategy,
			Symbol: pos.Symbol, Side: core.SideSell, Type: core.OrderTypeMarket,
			Amount: pos.Size, IsFutures: true, ReduceOnly: true,
		}
		legB := core.PlaceOrderRequest{
			Exchange: shortEx, StrategyID: pos.ID, Strategy: pos.Strategy,
			Symbol: pos.Symbol, Side: core.SideBuy, Type: core.OrderTypeMarket,
			Amount: pos.Size, IsFutures: true, ReduceOnly: true,
		}
		_, _, _, err = e.orders.ClosePair(ctx, legA, legB)

	case core.StrategyS2A, core.StrategyS2B:
		exchange := ""
		if len(pos.Exchanges) > 0 {
			exchange = pos.Exchanges[0]
		}
		legA := core.PlaceOrderRequest{
			Exchange: exchange, StrategyID: pos.ID, Strategy: pos.Strategy,
			Symbol: pos.Symbol, Side: core.SideSell, Type: core.OrderTypeMarket,
			Amount: pos.Size, IsFutures: false,
		}
		legB := core.PlaceOrderRequest{
			Exchange: exchange, StrategyID: pos.ID, Strategy: pos.Strategy,
			Symbol: pos.Symbol, Side: core.SideBuy, Type: core.OrderTypeMarket,
			Amount: pos.Size, IsFutures: true, ReduceOnly: true,
		}
		_, _, _, err = e.orders.ClosePair(ctx, legA, legB)

	case core.StrategyS3:
		exchange := ""
		if len(pos.Exchanges) > 0 {
			exchange = pos.Exchanges[0]
		}
		side := core.SideSell
		if pos.Entry.Direction == core.DirectionShort {
			side = core.SideBuy
		}
		req := core.PlaceOrderRequest{
			Exchange: exchange, StrategyID: pos.ID, Strategy: pos.Strategy,
			Symbol: pos.Symbol, Side: side, Type: core.OrderTypeMarket,
			Amount: pos.Size, IsFutures: true, ReduceOnly: true,
		}
		_, err = e.orders.PlaceSingleLeg(ctx, req)

	default:
		err = fmt.Errorf("executor: unknown strategy %q", pos.Strategy)
	}

	if err != nil {
		return fmt.Errorf("executor: close position %d: %w", pos.ID, err)
	}

	pos.Status = core.PositionClosed
	pos.CloseTime = time.Now()
	if uerr := e.store.UpdatePosition(ctx, *pos); uerr != nil {
		return fmt.Errorf("executor: persist closed position %d: %w", pos.ID, uerr)
	}

	e.log.Info("position_closed", "position_id", pos.ID, "strategy", string(pos.Strategy))
	return nil
}
