// Package binance implements core.ExchangeDriver against Binance's spot
// and USDT-margined futures REST APIs via the adshao/go-binance/v2 SDK.
package binance

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	spotapi "github.com/adshao/go-binance/v2"
	"github.com/adshao/go-binance/v2/futures"
	"github.com/shopspring/decimal"

	"fundingarb/internal/core"
	apperrors "fundingarb/pkg/apperrors"
)

// Driver implements core.ExchangeDriver against one Binance account,
// using the futures client for perp endpoints and the spot client for
// spot endpoints (spec §4.1/§4.4 need both legs of S2A/S2B).
type Driver struct {
	futuresClient *futures.Client
	spotClient    *spotapi.Client
	log           core.Logger
}

// New constructs a Driver. apiKey/secretKey may be empty for a
// read-only, unauthenticated driver (ticker/funding/book endpoints
// only — anything requiring a signature returns apperrors.ErrAuthenticationFailed).
func New(apiKey, secretKey string, log core.Logger) *Driver {
	return &Driver{
		futuresClient: futures.NewClient(apiKey, secretKey),
		spotClient:    spotapi.NewClient(apiKey, secretKey),
		log:           log.WithField("component", "exchange").WithField("venue", "binance"),
	}
}

// Name implements core.ExchangeDriver.
func (d *Driver) Name() string { return "binance" }

func parseDecimal(s string) decimal.Decimal {
	v, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return v
}

// mapAPIError translates Binance's {code,msg} error body (surfaced by
// the SDK as a *common.APIError) into the taxonomy in spec §7.
func mapAPIError(err error) error {
	if err == nil {
		return nil
	}
	msg := err.Error()
	switch {
	case strings.Contains(msg, "-2015"), strings.Contains(msg, "-1022"):
		return fmt.Errorf("%w: %s", apperrors.ErrAuthenticationFailed, msg)
	case strings.Contains(msg, "-2010"), strings.Contains(msg, "-2019"), strings.Contains(msg, "insufficient"):
		return fmt.Errorf("%w: %s", apperrors.ErrInsufficientFunds, msg)
	case strings.Contains(msg, "-1003"), strings.Contains(msg, "Too many requests"):
		return fmt.Errorf("%w: %s", apperrors.ErrRateLimitExceeded, msg)
	case strings.Contains(msg, "-1121"):
		return fmt.Errorf("%w: %s", apperrors.ErrInvalidSymbol, msg)
	case strings.Contains(msg, "-2012"), strings.Contains(msg, "-2011"):
		return fmt.Errorf("%w: %s", apperrors.ErrDuplicateOrder, msg)
	case strings.Contains(msg, "System is under heavy load") || strings.Contains(msg, "-1008"):
		return fmt.Errorf("%w: %s", apperrors.ErrSystemOverload, msg)
	default:
		return fmt.Errorf("%w: %s", apperrors.ErrNetwork, msg)
	}
}

// GetSpotTicker implements core.ExchangeDriver.
func (d *Driver) GetSpotTicker(ctx context.Context, symbol string) (*core.Ticker, error) {
	venueSymbol := VenueSymbol(symbol)
	books, err := d.spotClient.NewListBookTickersService().Symbol(venueSymbol).Do(ctx)
	if err != nil {
		return nil, mapAPIError(err)
	}
	if len(books) == 0 {
		return nil, fmt.Errorf("%w: %s", apperrors.ErrInvalidSymbol, symbol)
	}
	b := books[0]

	prices, err := d.spotClient.NewListPricesService().Symbol(venueSymbol).Do(ctx)
	last := decimal.Zero
	if err == nil && len(prices) > 0 {
		last = parseDecimal(prices[0].Price)
	}

	return &core.Ticker{
		Symbol: symbol,
		Bid:    parseDecimal(b.BidPrice),
		Ask:    parseDecimal(b.AskPrice),
		Last:   last,
		Ts:     time.Now(),
	}, nil
}

// GetFuturesTicker implements core.ExchangeDriver.
func (d *Driver) GetFuturesTicker(ctx context.Context, symbol string) (*core.Ticker, error) {
	venueSymbol := VenueSymbol(symbol)
	books, err := d.futuresClient.NewListBookTickersService().Symbol(venueSymbol).Do(ctx)
	if err != nil {
		return nil, mapAPIError(err)
	}
	if len(books) == 0 {
		return nil, fmt.Errorf("%w: %s", apperrors.ErrInvalidSymbol, symbol)
	}
	b := books[0]

	prices, err := d.futuresClient.NewListPricesService().Symbol(venueSymbol).Do(ctx)
	last := decimal.Zero
	if err == nil && len(prices) > 0 {
		last = parseDecimal(prices[0].Price)
	}

	return &core.Ticker{
		Symbol: symbol,
		Bid:    parseDecimal(b.BidPrice),
		Ask:    parseDecimal(b.AskPrice),
		Last:   last,
		Ts:     time.Now(),
	}, nil
}

// GetFundingRate implements core.ExchangeDriver.
func (d *Driver) GetFundingRate(ctx context.Context, symbol string) (*core.FundingRate, error) {
	idx, err := d.futuresClient.NewPremiumIndexService().Symbol(VenueSymbol(symbol)).Do(ctx)
	if err != nil {
		return nil, mapAPIError(err)
	}
	if len(idx) == 0 {
		return nil, fmt.Errorf("%w: %s", apperrors.ErrInvalidSymbol, symbol)
	}
	p := idx[0]

	return &core.FundingRate{
		Symbol:          symbol,
		Rate:            parseDecimal(p.LastFundingRate),
		NextFundingTime: time.UnixMilli(p.NextFundingTime),
		PredictedRate:   parseDecimal(p.LastFundingRate),
		IntervalMs:      8 * 60 * 60 * 1000,
	}, nil
}

// GetOrderBook implements core.ExchangeDriver.
func (d *Driver) GetOrderBook(ctx context.Context, symbol string, isFutures bool, depth int) (*core.OrderBook, error) {
	book := &core.OrderBook{Symbol: symbol}
	venueSymbol := VenueSymbol(symbol)

	if isFutures {
		res, err := d.futuresClient.NewDepthService().Symbol(venueSymbol).Limit(depth).Do(ctx)
		if err != nil {
			return nil, mapAPIError(err)
		}
		for _, bid := range res.Bids {
			book.Bids = append(book.Bids, core.PriceLevel{Price: parseDecimal(bid.Price), Size: parseDecimal(bid.Quantity)})
		}
		for _, ask := range res.Asks {
			book.Asks = append(book.Asks, core.PriceLevel{Price: parseDecimal(ask.Price), Size: parseDecimal(ask.Quantity)})
		}
	} else {
		res, err := d.spotClient.NewDepthService().Symbol(venueSymbol).Limit(depth).Do(ctx)
		if err != nil {
			return nil, mapAPIError(err)
		}
		for _, bid := range res.Bids {
			book.Bids = append(book.Bids, core.PriceLevel{Price: parseDecimal(bid.Price), Size: parseDecimal(bid.Quantity)})
		}
		for _, ask := range res.Asks {
			book.Asks = append(book.Asks, core.PriceLevel{Price: parseDecimal(ask.Price), Size: parseDecimal(ask.Quantity)})
		}
	}

	for _, lvl := range book.Bids {
		book.BidDepth = book.BidDepth.Add(lvl.Price.Mul(lvl.Size))
	}
	for _, lvl := range book.Asks {
		book.AskDepth = book.AskDepth.Add(lvl.Price.Mul(lvl.Size))
	}

	return book, nil
}

// GetBalance implements core.ExchangeDriver, reading the futures wallet
// (the engine's margin account for both legs — spot fills are swept via
// the venue's internal transfer, out of scope here).
func (d *Driver) GetBalance(ctx context.Context, asset string) (decimal.Decimal, error) {
	balances, err := d.futuresClient.NewGetBalanceService().Do(ctx)
	if err != nil {
		return decimal.Zero, mapAPIError(err)
	}
	for _, b := range balances {
		if b.Asset == asset {
			return parseDecimal(b.AvailableBalance), nil
		}
	}
	return decimal.Zero, nil
}

// GetAccountInfo implements core.ExchangeDriver.
func (d *Driver) GetAccountInfo(ctx context.Context) (*core.AccountInfo, error) {
	account, err := d.futuresClient.NewGetAccountService().Do(ctx)
	if err != nil {
		return nil, mapAPIError(err)
	}

	total := decimal.Zero
	for _, a := range account.Assets {
		if a.Asset == "USDT" {
			total = total.Add(parseDecimal(a.WalletBalance))
		}
	}

	openPositions := 0
	for _, p := range account.Positions {
		if parseDecimal(p.PositionAmt).IsZero() {
			continue
		}
		openPositions++
	}

	return &core.AccountInfo{TotalUSDT: total, PositionsCount: openPositions, Ts: time.Now()}, nil
}

// GetPositions implements core.ExchangeDriver.
func (d *Driver) GetPositions(ctx context.Context) ([]core.VenuePosition, error) {
	risks, err := d.futuresClient.NewGetPositionRiskService().Do(ctx)
	if err != nil {
		return nil, mapAPIError(err)
	}

	out := make([]core.VenuePosition, 0, len(risks))
	for _, r := range risks {
		amt := parseDecimal(r.PositionAmt)
		if amt.IsZero() {
			continue
		}
		side := core.DirectionLong
		if amt.IsNegative() {
			side = core.DirectionShort
			amt = amt.Abs()
		}
		entry := parseDecimal(r.EntryPrice)
		symbol := r.Symbol
		if base, ok := strings.CutSuffix(symbol, "USDT"); ok {
			symbol = base + "/USDT"
		}
		out = append(out, core.VenuePosition{
			Symbol:     symbol,
			Side:       side,
			Contracts:  amt,
			EntryPrice: entry,
			Notional:   amt.Mul(entry),
		})
	}
	return out, nil
}

func sideOf(side core.OrderSide) futures.SideType {
	if side == core.SideSell {
		return futures.SideTypeSell
	}
	return futures.SideTypeBuy
}

func spotSideOf(side core.OrderSide) spotapi.SideType {
	if side == core.SideSell {
		return spotapi.SideTypeSell
	}
	return spotapi.SideTypeBuy
}

func (d *Driver) createFuturesOrder(ctx context.Context, req core.PlaceOrderRequest, orderType futures.OrderType) (*core.Order, error) {
	svc := d.futuresClient.NewCreateOrderService().
		Symbol(VenueSymbol(req.Symbol)).
		Side(sideOf(req.Side)).
		Type(orderType).
		Quantity(req.Amount.String()).
		ReduceOnly(req.ReduceOnly)

	if orderType == futures.OrderTypeLimit {
		svc = svc.TimeInForce(futures.TimeInForceTypeGTC).Price(req.Price.String())
	}

	resp, err := svc.Do(ctx)
	if err != nil {
		return nil, mapAPIError(err)
	}

	return &core.Order{
		Exchange:     "binance",
		Symbol:       req.Symbol,
		Side:         req.Side,
		Type:         req.Type,
		Price:        parseDecimal(resp.Price),
		Amount:       req.Amount,
		Filled:       parseDecimal(resp.ExecutedQuantity),
		Status:       mapFuturesOrderStatus(string(resp.Status)),
		VenueOrderID: strconv.FormatInt(resp.OrderID, 10),
		ReduceOnly:   req.ReduceOnly,
		CreateTime:   time.Now(),
		UpdateTime:   time.Now(),
	}, nil
}

func (d *Driver) createSpotOrder(ctx context.Context, req core.PlaceOrderRequest, orderType spotapi.OrderType) (*core.Order, error) {
	svc := d.spotClient.NewCreateOrderService().
		Symbol(VenueSymbol(req.Symbol)).
		Side(spotSideOf(req.Side)).
		Type(orderType).
		Quantity(req.Amount.String())

	if orderType == spotapi.OrderTypeLimit {
		svc = svc.TimeInForce(spotapi.TimeInForceTypeGTC).Price(req.Price.String())
	}

	resp, err := svc.Do(ctx)
	if err != nil {
		return nil, mapAPIError(err)
	}

	filled := decimal.Zero
	avgPrice := decimal.Zero
	for _, fill := range resp.Fills {
		filled = filled.Add(parseDecimal(fill.Quantity))
		avgPrice = parseDecimal(fill.Price)
	}
	if avgPrice.IsZero() {
		avgPrice = parseDecimal(resp.Price)
	}

	return &core.Order{
		Exchange:     "binance",
		Symbol:       req.Symbol,
		Side:         req.Side,
		Type:         req.Type,
		Price:        avgPrice,
		Amount:       req.Amount,
		Filled:       filled,
		Status:       mapSpotOrderStatus(string(resp.Status)),
		VenueOrderID: strconv.FormatInt(resp.OrderID, 10),
		CreateTime:   time.Now(),
		UpdateTime:   time.Now(),
	}, nil
}

// CreateMarketOrder implements core.ExchangeDriver.
func (d *Driver) CreateMarketOrder(ctx context.Context, req core.PlaceOrderRequest) (*core.Order, error) {
	if req.IsFutures {
		return d.createFuturesOrder(ctx, req, futures.OrderTypeMarket)
	}
	return d.createSpotOrder(ctx, req, spotapi.OrderTypeMarket)
}

// CreateLimitOrder implements core.ExchangeDriver.
func (d *Driver) CreateLimitOrder(ctx context.Context, req core.PlaceOrderRequest) (*core.Order, error) {
	if req.IsFutures {
		return d.createFuturesOrder(ctx, req, futures.OrderTypeLimit)
	}
	return d.createSpotOrder(ctx, req, spotapi.OrderTypeLimit)
}

// GetTradingFees implements core.ExchangeDriver. Binance does not expose
// a per-symbol fee endpoint on futures; the spot trade-fee endpoint is
// used for both legs since VIP tiers are symmetric across products for
// a given account.
func (d *Driver) GetTradingFees(ctx context.Context, symbol string) (*core.TradingFees, error) {
	fees, err := d.spotClient.NewTradeFeeService().Symbol(VenueSymbol(symbol)).Do(ctx)
	if err != nil || len(fees) == 0 {
		// Conservative default if the account has no VIP override on file.
		return &core.TradingFees{Maker: decimal.NewFromFloat(0.0002), Taker: decimal.NewFromFloat(0.0004)}, nil
	}
	f := fees[0]
	return &core.TradingFees{Maker: parseDecimal(f.MakerCommission), Taker: parseDecimal(f.TakerCommission)}, nil
}

// FetchOrder implements core.ExchangeDriver.
func (d *Driver) FetchOrder(ctx context.Context, venueOrderID, symbol string) (*core.Order, error) {
	id, err := strconv.ParseInt(venueOrderID, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("%w: order id %q", apperrors.ErrOrderNotFound, venueOrderID)
	}

	order, err := d.futuresClient.NewGetOrderService().Symbol(VenueSymbol(symbol)).OrderID(id).Do(ctx)
	if err != nil {
		return nil, mapAPIError(err)
	}

	return &core.Order{
		Exchange:     "binance",
		Symbol:       symbol,
		Side:         core.OrderSide(order.Side),
		Price:        parseDecimal(order.Price),
		Amount:       parseDecimal(order.OrigQuantity),
		Filled:       parseDecimal(order.ExecutedQuantity),
		Status:       mapFuturesOrderStatus(string(order.Status)),
		VenueOrderID: venueOrderID,
		CreateTime:   time.UnixMilli(order.Time),
		UpdateTime:   time.UnixMilli(order.UpdateTime),
	}, nil
}

// FetchFundingRateHistory implements core.ExchangeDriver.
func (d *Driver) FetchFundingRateHistory(ctx context.Context, symbol string, limit int) ([]core.FundingRate, error) {
	rates, err := d.futuresClient.NewFundingRateService().Symbol(VenueSymbol(symbol)).Limit(limit).Do(ctx)
	if err != nil {
		return nil, mapAPIError(err)
	}

	out := make([]core.FundingRate, 0, len(rates))
	for _, r := range rates {
		out = append(out, core.FundingRate{
			Symbol:          symbol,
			Rate:            parseDecimal(r.FundingRate),
			NextFundingTime: time.UnixMilli(r.FundingTime),
		})
	}
	return out, nil
}

// ListFuturesSymbols implements core.ExchangeDriver.
func (d *Driver) ListFuturesSymbols(ctx context.Context) ([]string, error) {
	info, err := d.futuresClient.NewExchangeInfoService().Do(ctx)
	if err != nil {
		return nil, mapAPIError(err)
	}
	out := make([]string, 0, len(info.Symbols))
	for _, s := range info.Symbols {
		if s.ContractType != "PERPETUAL" || s.Status != "TRADING" || s.QuoteAsset != "USDT" {
			continue
		}
		out = append(out, s.BaseAsset+"/"+s.QuoteAsset)
	}
	return out, nil
}

// ListSpotSymbols implements core.ExchangeDriver.
func (d *Driver) ListSpotSymbols(ctx context.Context) ([]string, error) {
	info, err := d.spotClient.NewExchangeInfoService().Do(ctx)
	if err != nil {
		return nil, mapAPIError(err)
	}
	out := make([]string, 0, len(info.Symbols))
	for _, s := range info.Symbols {
		if s.Status != "TRADING" || s.QuoteAsset != "USDT" {
			continue
		}
		out = append(out, s.BaseAsset+"/"+s.QuoteAsset)
	}
	return out, nil
}

func mapFuturesOrderStatus(raw string) core.OrderStatus {
	switch raw {
	case "NEW":
		return core.OrderOpen
	case "PARTIALLY_FILLED":
		return core.OrderPartiallyFilled
	case "FILLED":
		return core.OrderFilled
	case "CANCELED", "EXPIRED":
		return core.OrderCancelled
	case "REJECTED":
		return core.OrderFailed
	default:
		return core.OrderUnknown
	}
}

func mapSpotOrderStatus(raw string) core.OrderStatus {
	switch raw {
	case "NEW":
		return core.OrderOpen
	case "PARTIALLY_FILLED":
		return core.OrderPartiallyFilled
	case "FILLED":
		return core.OrderFilled
	case "CANCELED", "EXPIRED", "PENDING_CANCEL":
		return core.OrderCancelled
	case "REJECTED":
		return core.OrderFailed
	default:
		return core.OrderUnknown
	}
}
