package executor

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"fundingarb/internal/core"
)

// openPosition asks the order manager to place the opening leg(s) for
// opp and returns the total fee paid.
func (e *Executor) openPosition(ctx context.Context, opp core.Opportunity, pos *core.Position) (decimal.Decimal, error) {
	switch opp.Strategy {
	case core.StrategyS1:
		legA := core.PlaceOrderRequest{
			Exchange: opp.LongExchange, StrategyID: pos.ID, Strategy: opp.Strategy,
			Symbol: opp.Symbol, Side: core.SideBuy, Type: core.OrderTypeMarket,
			Amount: opp.PositionSize, IsFutures: true, CheckDepth: true,
		}
		legB := core.PlaceOrderRequest{
			Exchange: opp.ShortExchange, StrategyID: pos.ID, Strategy: opp.Strategy,
			Symbol: opp.Symbol, Side: core.SideSell, Type: core.OrderTypeMarket,
			Amount: opp.PositionSize, IsFutures: true, CheckDepth: true,
		}
		_, _, fee, err := e.orders.PlaceHedgePair(ctx, legA, legB)
		return fee, err

	case core.StrategyS2A, core.StrategyS2B:
		legA := core.PlaceOrderRequest{
			Exchange: opp.Exchange, StrategyID: pos.ID, Strategy: opp.Strategy,
			Symbol: opp.Symbol, Side: core.SideBuy, Type: core.OrderTypeMarket,
			Amount: opp.PositionSize, IsFutures: false, CheckDepth: true,
		}
		legB := core.PlaceOrderRequest{
			Exchange: opp.Exchange, StrategyID: pos.ID, Strategy: opp.Strategy,
			Symbol: opp.Symbol, Side: core.SideSell, Type: core.OrderTypeMarket,
			Amount: opp.PositionSize, IsFutures: true, CheckDepth: true,
		}
		_, _, fee, err := e.orders.PlaceHedgePair(ctx, legA, legB)
		return fee, err

	case core.StrategyS3:
		side := core.SideBuy
		if opp.Direction == core.DirectionShort {
			side = core.SideSell
		}
		req := core.PlaceOrderRequest{
			Exchange: opp.Exchange, StrategyID: pos.ID, Strategy: opp.Strategy,
			Symbol: opp.Symbol, Side: side, Type: core.OrderTypeMarket,
			Amount: opp.PositionSize, IsFutures: true, CheckDepth: true,
		}
		order, err := e.orders.PlaceSingleLeg(ctx, req)
		if err != nil {
			return decimal.Zero, err
		}
		return order.FeeCost, nil

	default:
		return decimal.Zero, fmt.Errorf("executor: unknown strategy %q", opp.Strategy)
	}
}
