package mock

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fundingarb/internal/core"
)

func TestDriverSeededTickerRoundTrip(t *testing.T) {
	d := New("mock")
	d.Tickers["spot:BTC/USDT"] = core.Ticker{Symbol: "BTC/USDT", Bid: decimal.NewFromInt(100), Ask: decimal.NewFromInt(101)}

	ticker, err := d.GetSpotTicker(context.Background(), "BTC/USDT")
	require.NoError(t, err)
	assert.True(t, ticker.Bid.Equal(decimal.NewFromInt(100)))
}

func TestDriverPlaceOrderFillsAtTickerLast(t *testing.T) {
	d := New("mock")
	d.Tickers["futures:BTC/USDT"] = core.Ticker{Symbol: "BTC/USDT", Last: decimal.NewFromInt(50000)}

	order, err := d.CreateMarketOrder(context.Background(), core.PlaceOrderRequest{
		Symbol: "BTC/USDT", Side: core.SideBuy, Type: core.OrderTypeMarket, Amount: decimal.NewFromInt(1), IsFutures: true,
	})
	require.NoError(t, err)
	assert.Equal(t, core.OrderFilled, order.Status)
	assert.True(t, order.Price.Equal(decimal.NewFromInt(50000)))

	fetched, err := d.FetchOrder(context.Background(), order.VenueOrderID, "BTC/USDT")
	require.NoError(t, err)
	assert.Equal(t, order.VenueOrderID, fetched.VenueOrderID)
}

func TestDriverFailOrdersSimulatesVenueRejection(t *testing.T) {
	d := New("mock")
	wantErr := assertError("insufficient margin")
	d.FailOrders["ETH/USDT"] = wantErr

	_, err := d.CreateMarketOrder(context.Background(), core.PlaceOrderRequest{Symbol: "ETH/USDT", Amount: decimal.NewFromInt(1)})
	assert.ErrorIs(t, err, wantErr)
}

type plainError string

func (e plainError) Error() string { return string(e) }

func assertError(msg string) error { return plainError(msg) }

var _ core.ExchangeDriver = (*Driver)(nil)
