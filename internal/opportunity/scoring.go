package opportunity

import (
	"math"

	"github.com/shopspring/decimal"
)

// score computes the composite 0-100 quality score (spec.md §4.2
// "Scoring"). net and risk are per-period fractions; annualizedPct is a
// percentage (e.g. 12.5 for 12.5%/yr). The log term is the only place
// this package drops to float64 — decimal has no log10.
func score(net, risk, annualizedPct decimal.Decimal) decimal.Decimal {
	netF, _ := net.Float64()
	if netF <= 0 {
		return decimal.Zero
	}

	magnitudeTerm := math.Min(50, 10+15*math.Log10(netF*1e4))

	riskF, _ := risk.Float64()
	riskTerm := math.Max(0, 30-riskF*1000)

	bonusF, _ := annualizedPct.Float64()
	bonusTerm := math.Min(bonusF/10, 20)

	total := magnitudeTerm + riskTerm + bonusTerm
	return decimal.NewFromFloat(total)
}

// annualize projects a per-period rate to an annualised percentage,
// given n settlements per day (365 days/yr).
func annualize(perPeriod decimal.Decimal, n decimal.Decimal) decimal.Decimal {
	return perPeriod.Mul(n).Mul(decimal.NewFromInt(365)).Mul(decimal.NewFromInt(100))
}
