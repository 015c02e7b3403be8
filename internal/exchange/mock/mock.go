// Package mock provides a deterministic, in-memory core.ExchangeDriver
// for tests and for the "mock" venue name config accepts without
// credentials.
package mock

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"fundingarb/internal/core"
)

// Driver is a fully in-memory ExchangeDriver. Every quote, fee, and
// balance is seedable; order placement always succeeds unless the
// symbol is present in FailOrders.
type Driver struct {
	name string

	mu          sync.Mutex
	Tickers     map[string]core.Ticker // spot/futures share one map keyed by "spot:"+symbol / "futures:"+symbol
	FundingRates map[string]core.FundingRate
	Books       map[string]core.OrderBook
	Balances    map[string]decimal.Decimal
	Fees        core.TradingFees
	FailOrders  map[string]error // symbol -> error to return from CreateMarketOrder/CreateLimitOrder
	Positions   []core.VenuePosition
	FuturesSymbols []string
	SpotSymbols    []string

	nextOrderID int64
	Orders      map[string]core.Order // venueOrderID -> order
}

// New constructs an empty Driver; callers seed its maps directly.
func New(name string) *Driver {
	return &Driver{
		name:         name,
		Tickers:      make(map[string]core.Ticker),
		FundingRates: make(map[string]core.FundingRate),
		Books:        make(map[string]core.OrderBook),
		Balances:     make(map[string]decimal.Decimal),
		Fees:         core.TradingFees{Maker: decimal.NewFromFloat(0.0002), Taker: decimal.NewFromFloat(0.0004)},
		FailOrders:   make(map[string]error),
		Orders:       make(map[string]core.Order),
	}
}

func (d *Driver) Name() string { return d.name }

func (d *Driver) GetSpotTicker(_ context.Context, symbol string) (*core.Ticker, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	t, ok := d.Tickers["spot:"+symbol]
	if !ok {
		return nil, fmt.Errorf("mock: no spot ticker seeded for %s", symbol)
	}
	return &t, nil
}

func (d *Driver) GetFuturesTicker(_ context.Context, symbol string) (*core.Ticker, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	t, ok := d.Tickers["futures:"+symbol]
	if !ok {
		return nil, fmt.Errorf("mock: no futures ticker seeded for %s", symbol)
	}
	return &t, nil
}

func (d *Driver) GetFundingRate(_ context.Context, symbol string) (*core.FundingRate, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	r, ok := d.FundingRates[symbol]
	if !ok {
		return nil, fmt.Errorf("mock: no funding rate seeded for %s", symbol)
	}
	return &r, nil
}

func (d *Driver) GetOrderBook(_ context.Context, symbol string, isFutures bool, _ int) (*core.OrderBook, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	key := symbol
	if isFutures {
		key = "futures:" + symbol
	} else {
		key = "spot:" + symbol
	}
	b, ok := d.Books[key]
	if !ok {
		return nil, fmt.Errorf("mock: no order book seeded for %s", key)
	}
	return &b, nil
}

func (d *Driver) GetBalance(_ context.Context, asset string) (decimal.Decimal, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.Balances[asset], nil
}

func (d *Driver) GetAccountInfo(_ context.Context) (*core.AccountInfo, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	total := decimal.Zero
	for _, v := range d.Balances {
		total = total.Add(v)
	}
	return &core.AccountInfo{TotalUSDT: total, PositionsCount: len(d.Positions), Ts: time.Now()}, nil
}

func (d *Driver) GetPositions(_ context.Context) ([]core.VenuePosition, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]core.VenuePosition, len(d.Positions))
	copy(out, d.Positions)
	return out, nil
}

func (d *Driver) placeOrder(req core.PlaceOrderRequest) (*core.Order, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if err, ok := d.FailOrders[req.Symbol]; ok {
		return nil, err
	}

	d.nextOrderID++
	id := fmt.Sprintf("MOCK-%d", d.nextOrderID)

	price := req.Price
	if price.IsZero() {
		key := "futures:" + req.Symbol
		if !req.IsFutures {
			key = "spot:" + req.Symbol
		}
		if t, ok := d.Tickers[key]; ok {
			price = t.Last
		}
	}

	order := core.Order{
		Exchange:     d.name,
		Symbol:       req.Symbol,
		Side:         req.Side,
		Type:         req.Type,
		Price:        price,
		Amount:       req.Amount,
		Filled:       req.Amount,
		Status:       core.OrderFilled,
		VenueOrderID: id,
		ReduceOnly:   req.ReduceOnly,
		CreateTime:   time.Now(),
		UpdateTime:   time.Now(),
	}
	d.Orders[id] = order
	return &order, nil
}

func (d *Driver) CreateMarketOrder(_ context.Context, req core.PlaceOrderRequest) (*core.Order, error) {
	return d.placeOrder(req)
}

func (d *Driver) CreateLimitOrder(_ context.Context, req core.PlaceOrderRequest) (*core.Order, error) {
	return d.placeOrder(req)
}

func (d *Driver) GetTradingFees(_ context.Context, _ string) (*core.TradingFees, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	fees := d.Fees
	return &fees, nil
}

func (d *Driver) FetchOrder(_ context.Context, venueOrderID, _ string) (*core.Order, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	o, ok := d.Orders[venueOrderID]
	if !ok {
		return nil, fmt.Errorf("mock: order %s not found", venueOrderID)
	}
	return &o, nil
}

func (d *Driver) FetchFundingRateHistory(_ context.Context, symbol string, limit int) ([]core.FundingRate, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	r, ok := d.FundingRates[symbol]
	if !ok {
		return nil, nil
	}
	out := make([]core.FundingRate, 0, limit)
	for i := 0; i < limit; i++ {
		rate := r
		rate.NextFundingTime = r.NextFundingTime.Add(-time.Duration(i) * 8 * time.Hour)
		out = append(out, rate)
	}
	return out, nil
}

func (d *Driver) ListFuturesSymbols(_ context.Context) ([]string, error) {
	return d.FuturesSymbols, nil
}

func (d *Driver) ListSpotSymbols(_ context.Context) ([]string, error) {
	return d.SpotSymbols, nil
}
