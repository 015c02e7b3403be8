package core

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// Logger is the logging facade every component depends on, satisfied by
// pkg/logging.ZapLogger in production and a no-op stub in tests.
type Logger interface {
	Debug(msg string, fields ...interface{})
	Info(msg string, fields ...interface{})
	Warn(msg string, fields ...interface{})
	Error(msg string, fields ...interface{})
	Fatal(msg string, fields ...interface{})
	WithField(key string, value interface{}) Logger
	WithFields(fields map[string]interface{}) Logger
}

// ExchangeDriver is the single capability interface every venue adapter
// implements (spec §6). New venues plug in by implementing this interface
// plus a symbol-normaliser; nothing else in the engine is venue-aware.
type ExchangeDriver interface {
	Name() string

	GetSpotTicker(ctx context.Context, symbol string) (*Ticker, error)
	GetFuturesTicker(ctx context.Context, symbol string) (*Ticker, error)
	GetFundingRate(ctx context.Context, symbol string) (*FundingRate, error)
	GetOrderBook(ctx context.Context, symbol string, isFutures bool, depth int) (*OrderBook, error)

	GetBalance(ctx context.Context, asset string) (decimal.Decimal, error)
	GetAccountInfo(ctx context.Context) (*AccountInfo, error)
	GetPositions(ctx context.Context) ([]VenuePosition, error)

	CreateMarketOrder(ctx context.Context, req PlaceOrderRequest) (*Order, error)
	CreateLimitOrder(ctx context.Context, req PlaceOrderRequest) (*Order, error)
	GetTradingFees(ctx context.Context, symbol string) (*TradingFees, error)
	FetchOrder(ctx context.Context, venueOrderID, symbol string) (*Order, error)
	FetchFundingRateHistory(ctx context.Context, symbol string, limit int) ([]FundingRate, error)

	// ListFuturesSymbols and ListSpotSymbols build the per-venue symbol
	// universe at bootstrap (spec §4.1 "Symbol universe"), normalised to
	// BASE/USDT.
	ListFuturesSymbols(ctx context.Context) ([]string, error)
	ListSpotSymbols(ctx context.Context) ([]string, error)
}

// Store is the relational persistence interface backing every schema in
// spec §6. internal/store provides a sqlite and a pgx implementation of
// it; every other component depends only on this interface.
type Store interface {
	// Market data
	UpsertMarketPrice(ctx context.Context, rec MarketPriceRecord) error
	UpsertFundingRate(ctx context.Context, rec FundingRateRecord) error
	RecentMarketPrices(ctx context.Context, since time.Time) ([]MarketPriceRecord, error)
	RecentFundingRates(ctx context.Context, since time.Time) ([]FundingRateRecord, error)
	FundingRateHistory(ctx context.Context, exchange, symbol string, since, until time.Time) ([]FundingRateRecord, error)

	// Config
	GetConfigEntry(ctx context.Context, category, key string) (*ConfigEntry, error)
	ListConfigEntries(ctx context.Context) ([]ConfigEntry, error)
	UpsertConfigEntry(ctx context.Context, entry ConfigEntry) error

	// Trading pair configs
	GetTradingPairConfig(ctx context.Context, symbol, exchange string) (*TradingPairConfig, error)
	ListTradingPairConfigs(ctx context.Context) ([]TradingPairConfig, error)
	UpsertTradingPairConfig(ctx context.Context, cfg TradingPairConfig) error

	// Exchange accounts
	ListActiveExchangeAccounts(ctx context.Context) ([]ExchangeAccount, error)
	UpsertExchangeAccount(ctx context.Context, acc ExchangeAccount) error

	// Positions
	InsertPosition(ctx context.Context, p *Position) (int64, error)
	UpdatePosition(ctx context.Context, p Position) error
	GetPosition(ctx context.Context, id int64) (*Position, error)
	ListOpenPositions(ctx context.Context) ([]Position, error)
	ListPositions(ctx context.Context) ([]Position, error)

	// Orders
	InsertOrder(ctx context.Context, o *Order) (int64, error)
	UpdateOrder(ctx context.Context, o Order) error
	ListOrdersByStatus(ctx context.Context, statuses ...OrderStatus) ([]Order, error)
	ListOrdersForPosition(ctx context.Context, positionID int64) ([]Order, error)

	// Risk events
	InsertRiskEvent(ctx context.Context, e *RiskEvent) (int64, error)
	ListUnhandledRiskEvents(ctx context.Context) ([]RiskEvent, error)

	Close() error
}

// OpportunityListener is notified with the full, re-ranked opportunity
// list on every scan (spec §4.2 "Notify registered listeners").
type OpportunityListener func(opportunities []Opportunity)

// RiskDecision is the result of a pre-trade risk check (spec §4.5).
type RiskDecision struct {
	Passed              bool
	Reason              string
	AdjustedPositionSize decimal.Decimal
}

// RiskManager gates entries and enforces loss thresholds on open
// positions.
type RiskManager interface {
	CheckEntry(ctx context.Context, opp Opportunity) (RiskDecision, error)
	Start(ctx context.Context) error
	Stop() error
	IsTripped() bool
	CheckAbnormalFundingRate(rate decimal.Decimal) bool
	CheckAbnormalPriceDeviation(pct decimal.Decimal) bool
}

// OrderManager places and tracks orders, guaranteeing hedge-leg atomicity.
type OrderManager interface {
	PlaceHedgePair(ctx context.Context, legA, legB PlaceOrderRequest) (orderA, orderB *Order, totalFee decimal.Decimal, err error)
	PlaceSingleLeg(ctx context.Context, req PlaceOrderRequest) (*Order, error)
	ClosePair(ctx context.Context, legA, legB PlaceOrderRequest) (orderA, orderB *Order, totalFee decimal.Decimal, err error)
	SyncPendingOrders(ctx context.Context) error
}
