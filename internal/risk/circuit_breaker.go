package risk

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sony/gobreaker"

	"fundingarb/internal/core"
	"fundingarb/pkg/telemetry"
)

var errPositionUnhealthy = errors.New("risk: position breached a loss threshold")

// circuitBreaker wraps gobreaker to escalate from the per-position warning/
// critical/emergency bands the monitoring loop computes into a portfolio-
// wide halt: enough consecutive unhealthy ticks trips it open, gating
// CheckEntry until the cooldown elapses.
type circuitBreaker struct {
	cb      *gobreaker.CircuitBreaker
	metrics *telemetry.MetricsHolder
}

func newCircuitBreaker(maxConsecutiveUnhealthyTicks int, cooldown time.Duration, log core.Logger, metrics *telemetry.MetricsHolder) *circuitBreaker {
	breaker := &circuitBreaker{metrics: metrics}

	settings := gobreaker.Settings{
		Name:        "risk_manager",
		MaxRequests: 1,
		Timeout:     cooldown,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return maxConsecutiveUnhealthyTicks > 0 && counts.ConsecutiveFailures >= uint32(maxConsecutiveUnhealthyTicks)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn("circuit_breaker_state_change", "name", name, "from", from.String(), "to", to.String())
			if breaker.metrics != nil {
				breaker.metrics.SetCircuitBreakerOpen("portfolio", to == gobreaker.StateOpen)
			}
		},
	}
	breaker.cb = gobreaker.NewCircuitBreaker(settings)
	return breaker
}

// recordTick reports whether the portfolio was healthy on this monitoring
// pass. An unhealthy tick counts as a gobreaker failure; healthy ticks
// reset the consecutive-failure streak.
func (cb *circuitBreaker) recordTick(healthy bool) {
	_, _ = cb.cb.Execute(func() (interface{}, error) {
		if !healthy {
			return nil, errPositionUnhealthy
		}
		return nil, nil
	})
}

func (cb *circuitBreaker) isTripped() bool {
	return cb.cb.State() == gobreaker.StateOpen
}

// aggregateDrawdownTripped is a hard trip independent of the gobreaker
// streak: an aggregate drawdown past max_drawdown is checked fresh on
// every CheckEntry call (spec's pre-trade check #1), so it needs no
// separate breaker state.
func aggregateDrawdownTripped(unrealizedPnL, totalCapital, maxDrawdown decimal.Decimal) bool {
	if totalCapital.IsZero() {
		return false
	}
	lossPct := unrealizedPnL.Neg().Div(totalCapital)
	return lossPct.GreaterThan(maxDrawdown)
}
