// Package exchange constructs ExchangeDriver instances by venue name and
// wraps every driver in a per-venue circuit breaker.
package exchange

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sony/gobreaker"

	"fundingarb/internal/config"
	"fundingarb/internal/core"
	"fundingarb/internal/exchange/binance"
	"fundingarb/internal/exchange/mock"
	apperrors "fundingarb/pkg/apperrors"
)

// NewDriver constructs the core.ExchangeDriver for exchangeName and wraps
// it in a circuit breaker so a venue with repeated transient failures is
// taken out of rotation instead of hammered (spec §4.5's emergency-stop
// posture extended to venue connectivity, not just positions).
func NewDriver(exchangeName string, acc core.ExchangeAccount, log core.Logger) (core.ExchangeDriver, error) {
	var inner core.ExchangeDriver

	switch strings.ToLower(exchangeName) {
	case "binance":
		inner = binance.New(acc.APIKey, acc.APISecret, log)
	case "mock":
		inner = mock.New("mock")
	default:
		return nil, fmt.Errorf("unsupported exchange: %s", exchangeName)
	}

	return newBreakerDriver(exchangeName, inner, log), nil
}

// NewDriverFromConfig is a convenience wrapper for call sites that only
// have raw config.ExchangeConfig (bootstrap, before credentials are
// loaded into an ExchangeAccount).
func NewDriverFromConfig(exchangeName string, cfg config.ExchangeConfig, log core.Logger) (core.ExchangeDriver, error) {
	return NewDriver(exchangeName, core.ExchangeAccount{
		ExchangeName: exchangeName,
		APIKey:       string(cfg.APIKey),
		APISecret:    string(cfg.SecretKey),
		Passphrase:   string(cfg.Passphrase),
	}, log)
}

// breakerDriver decorates a core.ExchangeDriver, routing every call
// through a gobreaker.CircuitBreaker keyed on the venue name.
type breakerDriver struct {
	core.ExchangeDriver
	name    string
	breaker *gobreaker.CircuitBreaker
	log     core.Logger
}

func newBreakerDriver(name string, inner core.ExchangeDriver, log core.Logger) *breakerDriver {
	settings := gobreaker.Settings{
		Name:        "exchange:" + name,
		MaxRequests: 3,
		Interval:    60 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.Requests >= 5 && float64(counts.TotalFailures)/float64(counts.Requests) >= 0.6
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn("exchange circuit breaker state change", "breaker", name, "from", from.String(), "to", to.String())
		},
	}

	return &breakerDriver{
		ExchangeDriver: inner,
		name:           name,
		breaker:        gobreaker.NewCircuitBreaker(settings),
		log:            log,
	}
}

func call[T any](b *breakerDriver, fn func() (T, error)) (T, error) {
	res, err := b.breaker.Execute(func() (interface{}, error) {
		return fn()
	})
	if err != nil {
		var zero T
		if err == gobreaker.ErrOpenState || err == gobreaker.ErrTooManyRequests {
			return zero, fmt.Errorf("%w: %s circuit breaker open: %v", apperrors.ErrSystemOverload, b.name, err)
		}
		return zero, err
	}
	return res.(T), nil
}

func (b *breakerDriver) GetSpotTicker(ctx context.Context, symbol string) (*core.Ticker, error) {
	return call(b, func() (*core.Ticker, error) { return b.ExchangeDriver.GetSpotTicker(ctx, symbol) })
}

func (b *breakerDriver) GetFuturesTicker(ctx context.Context, symbol string) (*core.Ticker, error) {
	return call(b, func() (*core.Ticker, error) { return b.ExchangeDriver.GetFuturesTicker(ctx, symbol) })
}

func (b *breakerDriver) GetFundingRate(ctx context.Context, symbol string) (*core.FundingRate, error) {
	return call(b, func() (*core.FundingRate, error) { return b.ExchangeDriver.GetFundingRate(ctx, symbol) })
}

func (b *breakerDriver) GetOrderBook(ctx context.Context, symbol string, isFutures bool, depth int) (*core.OrderBook, error) {
	return call(b, func() (*core.OrderBook, error) { return b.ExchangeDriver.GetOrderBook(ctx, symbol, isFutures, depth) })
}

func (b *breakerDriver) GetBalance(ctx context.Context, asset string) (decimal.Decimal, error) {
	return call(b, func() (decimal.Decimal, error) { return b.ExchangeDriver.GetBalance(ctx, asset) })
}

func (b *breakerDriver) GetAccountInfo(ctx context.Context) (*core.AccountInfo, error) {
	return call(b, func() (*core.AccountInfo, error) { return b.ExchangeDriver.GetAccountInfo(ctx) })
}

func (b *breakerDriver) GetPositions(ctx context.Context) ([]core.VenuePosition, error) {
	return call(b, func() ([]core.VenuePosition, error) { return b.ExchangeDriver.GetPositions(ctx) })
}

func (b *breakerDriver) CreateMarketOrder(ctx context.Context, req core.PlaceOrderRequest) (*core.Order, error) {
	return call(b, func() (*core.Order, error) { return b.ExchangeDriver.CreateMarketOrder(ctx, req) })
}

func (b *breakerDriver) CreateLimitOrder(ctx context.Context, req core.PlaceOrderRequest) (*core.Order, error) {
	return call(b, func() (*core.Order, error) { return b.ExchangeDriver.CreateLimitOrder(ctx, req) })
}

func (b *breakerDriver) GetTradingFees(ctx context.Context, symbol string) (*core.TradingFees, error) {
	return call(b, func() (*core.TradingFees, error) { return b.ExchangeDriver.GetTradingFees(ctx, symbol) })
}

func (b *breakerDriver) FetchOrder(ctx context.Context, venueOrderID, symbol string) (*core.Order, error) {
	return call(b, func() (*core.Order, error) { return b.ExchangeDriver.FetchOrder(ctx, venueOrderID, symbol) })
}

func (b *breakerDriver) FetchFundingRateHistory(ctx context.Context, symbol string, limit int) ([]core.FundingRate, error) {
	return call(b, func() ([]core.FundingRate, error) { return b.ExchangeDriver.FetchFundingRateHistory(ctx, symbol, limit) })
}

func (b *breakerDriver) ListFuturesSymbols(ctx context.Context) ([]string, error) {
	return call(b, func() ([]string, error) { return b.ExchangeDriver.ListFuturesSymbols(ctx) })
}

func (b *breakerDriver) ListSpotSymbols(ctx context.Context) ([]string, error) {
	return call(b, func() ([]string, error) { return b.ExchangeDriver.ListSpotSymbols(ctx) })
}
