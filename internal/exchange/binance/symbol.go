package binance

import "strings"

// VenueSymbol converts the engine's canonical BASE/QUOTE form to
// Binance's concatenated wire form (BTC/USDT -> BTCUSDT). Driver methods
// in this package take canonical symbols and convert them with
// VenueSymbol before each SDK call; GetPositions maps the venue's
// USDT-quoted symbols back to the canonical BASE/USDT form.
func VenueSymbol(canonical string) string {
	return strings.ReplaceAll(canonical, "/", "")
}
