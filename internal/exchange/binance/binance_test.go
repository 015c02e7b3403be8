package binance

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"fundingarb/internal/core"
	apperrors "fundingarb/pkg/apperrors"
)

func TestVenueSymbol(t *testing.T) {
	assert.Equal(t, "BTCUSDT", VenueSymbol("BTC/USDT"))
	assert.Equal(t, "ETHUSDT", VenueSymbol("ETH/USDT"))
}

func TestParseDecimalInvalidReturnsZero(t *testing.T) {
	assert.True(t, parseDecimal("not-a-number").IsZero())
	assert.Equal(t, "1.5", parseDecimal("1.5").String())
}

func TestMapAPIErrorClassification(t *testing.T) {
	cases := []struct {
		msg    string
		target error
	}{
		{"binance error -2015: signature invalid", apperrors.ErrAuthenticationFailed},
		{"binance error -2010: insufficient balance", apperrors.ErrInsufficientFunds},
		{"binance error -1003: Too many requests", apperrors.ErrRateLimitExceeded},
		{"binance error -1121: Invalid symbol", apperrors.ErrInvalidSymbol},
		{"binance error -2011: Unknown order", apperrors.ErrDuplicateOrder},
		{"some unexpected transport failure", apperrors.ErrNetwork},
	}
	for _, tc := range cases {
		err := mapAPIError(assertError(tc.msg))
		assert.ErrorIs(t, err, tc.target, tc.msg)
	}
}

func TestMapFuturesOrderStatus(t *testing.T) {
	assert.Equal(t, core.OrderOpen, mapFuturesOrderStatus("NEW"))
	assert.Equal(t, core.OrderPartiallyFilled, mapFuturesOrderStatus("PARTIALLY_FILLED"))
	assert.Equal(t, core.OrderFilled, mapFuturesOrderStatus("FILLED"))
	assert.Equal(t, core.OrderCancelled, mapFuturesOrderStatus("CANCELED"))
	assert.Equal(t, core.OrderFailed, mapFuturesOrderStatus("REJECTED"))
	assert.Equal(t, core.OrderUnknown, mapFuturesOrderStatus("SOMETHING_NEW"))
}

func TestMapSpotOrderStatus(t *testing.T) {
	assert.Equal(t, core.OrderOpen, mapSpotOrderStatus("NEW"))
	assert.Equal(t, core.OrderFilled, mapSpotOrderStatus("FILLED"))
	assert.Equal(t, core.OrderCancelled, mapSpotOrderStatus("PENDING_CANCEL"))
}

func TestSideOfMapping(t *testing.T) {
	assert.Equal(t, "SELL", string(sideOf(core.SideSell)))
	assert.Equal(t, "BUY", string(sideOf(core.SideBuy)))
	assert.Equal(t, "SELL", string(spotSideOf(core.SideSell)))
	assert.Equal(t, "BUY", string(spotSideOf(core.SideBuy)))
}

type plainError string

func (e plainError) Error() string { return string(e) }

func assertError(msg string) error { return plainError(msg) }
