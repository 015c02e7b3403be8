package exchange

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fundingarb/internal/core"
	"fundingarb/internal/exchange/mock"
)

type noopLogger struct{}

func (noopLogger) Debug(string, ...interface{})                  {}
func (noopLogger) Info(string, ...interface{})                   {}
func (noopLogger) Warn(string, ...interface{})                   {}
func (noopLogger) Error(string, ...interface{})                  {}
func (noopLogger) Fatal(string, ...interface{})                  {}
func (n noopLogger) WithField(string, interface{}) core.Logger   { return n }
func (n noopLogger) WithFields(map[string]interface{}) core.Logger { return n }

func TestBreakerDriverPassesThroughOnSuccess(t *testing.T) {
	inner := mock.New("mock")
	inner.Tickers["spot:BTC/USDT"] = core.Ticker{Symbol: "BTC/USDT", Bid: decimal.NewFromInt(100)}

	d := newBreakerDriver("mock", inner, noopLogger{})

	ticker, err := d.GetSpotTicker(context.Background(), "BTC/USDT")
	require.NoError(t, err)
	assert.True(t, ticker.Bid.Equal(decimal.NewFromInt(100)))
}

func TestBreakerDriverPropagatesInnerError(t *testing.T) {
	inner := mock.New("mock")
	d := newBreakerDriver("mock", inner, noopLogger{})

	_, err := d.GetSpotTicker(context.Background(), "MISSING/USDT")
	assert.Error(t, err)
}

func TestNewDriverUnsupportedExchange(t *testing.T) {
	_, err := NewDriver("bogus", core.ExchangeAccount{}, noopLogger{})
	assert.Error(t, err)
}

func TestNewDriverMock(t *testing.T) {
	d, err := NewDriver("mock", core.ExchangeAccount{ExchangeName: "mock"}, noopLogger{})
	require.NoError(t, err)
	assert.Equal(t, "mock", d.Name())
}
