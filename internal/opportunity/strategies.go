package opportunity

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"fundingarb/internal/core"
)

var (
	bp1 = decimal.NewFromFloat(0.0001)
	bp5 = decimal.NewFromFloat(0.0005)
)

// detectS1 scans every unordered pair of venues quoting the same symbol
// with complete futures data for a cross-exchange funding spread.
func (m *Monitor) detectS1(ctx context.Context, symbol string, byExchange map[string]core.MarketSample) []core.Opportunity {
	var out []core.Opportunity

	exchanges := make([]string, 0, len(byExchange))
	for ex := range byExchange {
		exchanges = append(exchanges, ex)
	}

	for i := 0; i < len(exchanges); i++ {
		for j := i + 1; j < len(exchanges); j++ {
			a, b := exchanges[i], exchanges[j]
			sa, sb := byExchange[a], byExchange[b]
			if !sa.HasFutures || !sb.HasFutures || !sa.HasFunding || !sb.HasFunding {
				continue
			}

			longEx, shortEx, long, short := a, b, sa, sb
			if sa.FundingRate.GreaterThan(sb.FundingRate) {
				longEx, shortEx, long, short = b, a, sb, sa
			}

			diff := short.FundingRate.Sub(long.FundingRate)
			cfg, err := m.pairConfig(ctx, symbol, "")
			if err != nil {
				m.log.Warn("s1: pair config resolve failed", "symbol", symbol, "error", err.Error())
				continue
			}
			if diff.LessThanOrEqual(cfg.MinFundingDiff) {
				continue
			}

			priceDiffPct := long.FuturesLast.Sub(short.FuturesLast).Abs().Div(long.FuturesLast)
			if priceDiffPct.GreaterThan(cfg.MaxPriceDiff) {
				continue
			}

			notional := cfg.PositionSize
			depthA := long.BidDepth.Add(long.AskDepth)
			depthB := short.BidDepth.Add(short.AskDepth)
			slipLong := slippage(notional, depthA)
			slipShort := slippage(notional, depthB)

			openFeeLong := notional.Mul(long.TakerFee)
			openFeeShort := notional.Mul(short.TakerFee)
			closeFeeLong := notional.Mul(long.MakerFee)
			closeFeeShort := notional.Mul(short.MakerFee)

			net := notional.Mul(diff).
				Sub(openFeeLong).Sub(openFeeShort).
				Sub(closeFeeLong).Sub(closeFeeShort).
				Sub(slipLong).Sub(slipShort)

			if !net.IsPositive() {
				continue
			}

			h, n := fundingFrequency(short, m.recentFundingHistory(ctx, shortEx, symbol))
			_ = h
			returnPct := net.Div(notional)
			annualized := annualize(returnPct, n)

			opp := core.Opportunity{
				Strategy:            core.StrategyS1,
				StableID:            fmt.Sprintf("s1_%s_%s_%s", symbolKey(symbol), longEx, shortEx),
				Symbol:              symbol,
				LongExchange:        longEx,
				ShortExchange:       shortEx,
				FundingRate:         diff,
				PriceDiffPct:        priceDiffPct,
				PositionSize:        notional,
				ExpectedNetProfit:   net,
				ExpectedReturnPct:   returnPct,
				AnnualizedReturnPct: annualized,
				RiskLevel:           riskFromPriceDiff(priceDiffPct, cfg.MaxPriceDiff),
				Score:               score(returnPct, priceDiffPct, annualized),
				ExecutionMode:       core.ExecutionAuto,
				EntryPrices: map[string]decimal.Decimal{
					longEx:  long.FuturesLast,
					shortEx: short.FuturesLast,
				},
				DetectedAt: time.Now(),
			}
			out = append(out, opp)
		}
	}
	return out
}

// detectS2A scans a single venue's spot+futures pair for a funding
// capture trade hedged against spot.
func (m *Monitor) detectS2A(ctx context.Context, exchange, symbol string, s core.MarketSample) *core.Opportunity {
	if !s.HasSpot || !s.HasFutures || !s.HasFunding {
		return nil
	}

	cfg, err := m.pairConfig(ctx, symbol, exchange)
	if err != nil {
		m.log.Warn("s2a: pair config resolve failed", "symbol", symbol, "error", err.Error())
		return nil
	}
	if s.FundingRate.LessThanOrEqual(cfg.MinFundingRate) {
		return nil
	}

	basis := s.FuturesBid.Sub(s.SpotAsk).Div(s.SpotAsk)
	if basis.Abs().GreaterThan(cfg.MaxBasisDeviation) {
		return nil
	}

	notional := cfg.PositionSize
	openFee := notional.Mul(s.TakerFee).Mul(decimal.NewFromInt(2))
	closeFee := notional.Mul(s.MakerFee).Mul(decimal.NewFromInt(2))
	profit := notional.Mul(s.FundingRate).Sub(openFee).Sub(closeFee)
	if !profit.IsPositive() {
		return nil
	}

	h, n := fundingFrequency(s, m.recentFundingHistory(ctx, exchange, symbol))
	_ = h
	returnPct := profit.Div(notional)
	annualized := annualize(returnPct, n)

	return &core.Opportunity{
		Strategy:            core.StrategyS2A,
		StableID:            fmt.Sprintf("s2a_%s_%s", symbolKey(symbol), exchange),
		Symbol:              symbol,
		Exchange:            exchange,
		FundingRate:         s.FundingRate,
		Basis:               basis,
		PositionSize:        notional,
		ExpectedNetProfit:   profit,
		ExpectedReturnPct:   returnPct,
		AnnualizedReturnPct: annualized,
		RiskLevel:           core.RiskLow,
		Score:               score(returnPct, basis.Abs(), annualized),
		ExecutionMode:       core.ExecutionAuto,
		EntryPrices: map[string]decimal.Decimal{
			exchange + ":spot":    s.SpotAsk,
			exchange + ":futures": s.FuturesBid,
		},
		DetectedAt: time.Now(),
	}
}

// detectS2B scans the same scope as S2A for a pure positive-basis
// arbitrage, independent of whether funding alone would be profitable.
func (m *Monitor) detectS2B(ctx context.Context, exchange, symbol string, s core.MarketSample) *core.Opportunity {
	if !s.HasSpot || !s.HasFutures {
		return nil
	}

	cfg, err := m.pairConfig(ctx, symbol, exchange)
	if err != nil {
		m.log.Warn("s2b: pair config resolve failed", "symbol", symbol, "error", err.Error())
		return nil
	}

	basis := s.FuturesBid.Sub(s.SpotAsk).Div(s.SpotAsk)
	if basis.LessThan(cfg.MinBasis) {
		return nil
	}

	notional := cfg.PositionSize
	const settlements = 3
	openFee := notional.Mul(s.TakerFee).Mul(decimal.NewFromInt(2))
	closeFee := notional.Mul(s.MakerFee).Mul(decimal.NewFromInt(2))
	profit := notional.Mul(basis).
		Add(notional.Mul(s.FundingRate).Mul(decimal.NewFromInt(settlements))).
		Sub(openFee).Sub(closeFee)
	if !profit.IsPositive() {
		return nil
	}

	risk := core.RiskMedium
	threeBp := decimal.NewFromFloat(0.03)
	if basis.GreaterThanOrEqual(threeBp) {
		risk = core.RiskHigh
	}

	h, n := fundingFrequency(s, m.recentFundingHistory(ctx, exchange, symbol))
	_ = h
	returnPct := profit.Div(notional)
	annualized := annualize(returnPct, n)

	return &core.Opportunity{
		Strategy:            core.StrategyS2B,
		StableID:            fmt.Sprintf("s2b_%s_%s", symbolKey(symbol), exchange),
		Symbol:              symbol,
		Exchange:            exchange,
		FundingRate:         s.FundingRate,
		Basis:               basis,
		PositionSize:        notional,
		ExpectedNetProfit:   profit,
		ExpectedReturnPct:   returnPct,
		AnnualizedReturnPct: annualized,
		RiskLevel:           risk,
		Score:               score(returnPct, basis, annualized),
		ExecutionMode:       core.ExecutionManual,
		EntryPrices: map[string]decimal.Decimal{
			exchange + ":spot":    s.SpotAsk,
			exchange + ":futures": s.FuturesBid,
		},
		DetectedAt: time.Now(),
	}
}

// detectS3 scans a single venue's futures quote for a directional
// funding-ride trade, taking the side that receives funding.
func (m *Monitor) detectS3(ctx context.Context, exchange, symbol string, s core.MarketSample) *core.Opportunity {
	if !s.HasFutures || !s.HasFunding {
		return nil
	}

	cfg, err := m.pairConfig(ctx, symbol, exchange)
	if err != nil {
		m.log.Warn("s3: pair config resolve failed", "symbol", symbol, "error", err.Error())
		return nil
	}
	if s.FundingRate.Abs().LessThan(cfg.MinFundingRate) {
		return nil
	}

	direction := core.DirectionLong
	if s.FundingRate.IsPositive() {
		direction = core.DirectionShort
	}

	if s.HasSpot {
		if direction == core.DirectionShort && !s.FuturesBid.GreaterThan(s.SpotAsk) {
			return nil
		}
		if direction == core.DirectionLong && !s.FuturesAsk.LessThan(s.SpotBid) {
			return nil
		}
	}

	entry := s.FuturesAsk
	if direction == core.DirectionShort {
		entry = s.FuturesBid
	}

	h, n := fundingFrequency(s, m.recentFundingHistory(ctx, exchange, symbol))
	_ = h
	const holdDays = 7
	openClose := s.TakerFee.Add(s.MakerFee)
	returnPct := s.FundingRate.Abs().Mul(n).Mul(decimal.NewFromInt(holdDays)).Sub(openClose)
	if !returnPct.IsPositive() {
		return nil
	}

	notional := cfg.PositionSize
	annualized := annualize(s.FundingRate.Abs(), n)

	return &core.Opportunity{
		Strategy:            core.StrategyS3,
		StableID:            fmt.Sprintf("s3_%s_%s", symbolKey(symbol), exchange),
		Symbol:              symbol,
		Exchange:            exchange,
		Direction:           direction,
		FundingRate:         s.FundingRate,
		PositionSize:        notional,
		ExpectedNetProfit:   returnPct.Mul(notional),
		ExpectedReturnPct:   returnPct,
		AnnualizedReturnPct: annualized,
		RiskLevel:           core.RiskMedium,
		Score:               score(returnPct, s.FundingRate.Abs(), annualized),
		ExecutionMode:       core.ExecutionAuto,
		EntryPrices:         map[string]decimal.Decimal{exchange: entry},
		DetectedAt:          time.Now(),
	}
}

// slippage applies spec.md §4.2's three-tier schedule against top-5 book
// depth: free under 10% of depth, 1bp under 50%, 5bp otherwise.
func slippage(notional, depth decimal.Decimal) decimal.Decimal {
	if depth.IsZero() {
		return notional.Mul(bp5)
	}
	ratio := notional.Div(depth)
	tenPct := decimal.NewFromFloat(0.1)
	fiftyPct := decimal.NewFromFloat(0.5)
	switch {
	case ratio.LessThan(tenPct):
		return decimal.Zero
	case ratio.LessThan(fiftyPct):
		return notional.Mul(bp1)
	default:
		return notional.Mul(bp5)
	}
}

func riskFromPriceDiff(diff, max decimal.Decimal) core.RiskLevel {
	if max.IsZero() {
		return core.RiskMedium
	}
	ratio := diff.Div(max)
	half := decimal.NewFromFloat(0.5)
	if ratio.LessThan(half) {
		return core.RiskLow
	}
	return core.RiskMedium
}

func symbolKey(symbol string) string {
	out := make([]byte, 0, len(symbol))
	for _, r := range symbol {
		if r == '/' {
			continue
		}
		out = append(out, byte(r))
	}
	return string(out)
}

func (m *Monitor) pairConfig(ctx context.Context, symbol, exchange string) (*core.TradingPairConfig, error) {
	return m.pairConfigs.Resolve(ctx, symbol, exchange)
}
