// Package core defines the domain types and interfaces shared by every
// component of the funding-rate arbitrage engine.
package core

import (
	"time"

	"github.com/shopspring/decimal"
)

// StrategyTag identifies which opportunity strategy produced a candidate
// or owns a position.
type StrategyTag string

const (
	StrategyS1  StrategyTag = "S1"  // cross-exchange funding
	StrategyS2A StrategyTag = "S2A" // spot-vs-perp funding
	StrategyS2B StrategyTag = "S2B" // basis arbitrage
	StrategyS3  StrategyTag = "S3"  // directional funding ride
)

// ExecutionMode controls whether an opportunity auto-enqueues or requires
// operator confirmation.
type ExecutionMode string

const (
	ExecutionAuto   ExecutionMode = "auto"
	ExecutionManual ExecutionMode = "manual"
)

// RiskLevel buckets an opportunity's risk for admission and scoring.
type RiskLevel string

const (
	RiskLow    RiskLevel = "low"
	RiskMedium RiskLevel = "medium"
	RiskHigh   RiskLevel = "high"
)

// PositionStatus is the lifecycle state of a Position.
type PositionStatus string

const (
	PositionOpen                 PositionStatus = "open"
	PositionEmergencyClosePending PositionStatus = "emergency_close_pending"
	PositionClosed                PositionStatus = "closed"
	PositionFailed                PositionStatus = "failed"
)

// Direction is the side of a directional (S3) position.
type Direction string

const (
	DirectionLong  Direction = "long"
	DirectionShort Direction = "short"
)

// OrderSide mirrors exchange buy/sell semantics.
type OrderSide string

const (
	SideBuy  OrderSide = "BUY"
	SideSell OrderSide = "SELL"
)

// OrderType is the order style requested from the venue.
type OrderType string

const (
	OrderTypeMarket OrderType = "MARKET"
	OrderTypeLimit  OrderType = "LIMIT"
)

// OrderStatus is the lifecycle state of an Order.
type OrderStatus string

const (
	OrderOpen            OrderStatus = "open"
	OrderPending          OrderStatus = "pending"
	OrderPartiallyFilled  OrderStatus = "partially_filled"
	OrderFilled           OrderStatus = "filled"
	OrderClosed           OrderStatus = "closed"
	OrderCancelled        OrderStatus = "cancelled"
	OrderFailed           OrderStatus = "failed"
	OrderUnknown          OrderStatus = "unknown"
)

// RiskSeverity classifies a RiskEvent.
type RiskSeverity string

const (
	SeverityWarning   RiskSeverity = "warning"
	SeverityCritical  RiskSeverity = "critical"
	SeverityEmergency RiskSeverity = "emergency"
)

// MarketSample is the in-memory (and thin-persisted) market snapshot for a
// single (exchange, symbol) pair. Every field may be absent — consumers
// must check presence before using, so pointer/zero-value decimals are
// distinguished via the Has* flags rather than sentinel values.
type MarketSample struct {
	Exchange string
	Symbol   string

	SpotBid  decimal.Decimal
	SpotAsk  decimal.Decimal
	SpotLast decimal.Decimal
	HasSpot  bool

	FuturesBid  decimal.Decimal
	FuturesAsk  decimal.Decimal
	FuturesLast decimal.Decimal
	HasFutures  bool

	BidDepth decimal.Decimal
	AskDepth decimal.Decimal

	MakerFee decimal.Decimal
	TakerFee decimal.Decimal

	FundingRate       decimal.Decimal
	NextFundingTime   time.Time
	FundingIntervalMs int64
	HasFunding        bool

	SampledAt time.Time
}

// FundingRateRecord is an append-mostly persisted funding-rate observation.
// Unique on (Exchange, Symbol, SampleTimestampMs).
type FundingRateRecord struct {
	Exchange          string
	Symbol            string
	SampleTimestampMs int64
	Rate              decimal.Decimal
	NextFundingTime   time.Time
	FundingIntervalMs int64
}

// MarketPriceRecord is the thin persisted form of a MarketSample's price
// fields, matching the market_prices schema.
type MarketPriceRecord struct {
	Exchange          string
	Symbol            string
	TimestampMs       int64
	SpotBid           decimal.Decimal
	SpotAsk           decimal.Decimal
	SpotPrice         decimal.Decimal
	FuturesBid        decimal.Decimal
	FuturesAsk        decimal.Decimal
	FuturesPrice      decimal.Decimal
	MakerFee          decimal.Decimal
	TakerFee          decimal.Decimal
}

// TrailingStopConfig holds the trailing-stop parameters for S3 positions.
type TrailingStopConfig struct {
	Enabled         bool
	ActivationPct   decimal.Decimal
	CallbackPct     decimal.Decimal
}

// TradingPairConfig holds per-(symbol, exchange) threshold overrides.
// A missing row falls back to a default blended from the strategy's
// global defaults (see internal/config resolution precedence).
type TradingPairConfig struct {
	ID       int64
	Symbol   string
	Exchange string // empty string means "any exchange" for this symbol

	MinFundingDiff      decimal.Decimal // S1
	MaxPriceDiff        decimal.Decimal // S1
	MinFundingRate      decimal.Decimal // S2A/S3
	MaxBasisDeviation   decimal.Decimal // S2A
	MinBasis            decimal.Decimal // S2B
	PositionSize        decimal.Decimal
	MaxPositionSize     decimal.Decimal
	ExecutionMode       ExecutionMode
	StopLossPct         decimal.Decimal
	ShortExitThreshold  decimal.Decimal
	LongExitThreshold   decimal.Decimal
	TrailingStop        TrailingStopConfig
	MaxPositions         int
	Priority             int
	IsActive             bool
	Notes                string
	UpdatedAt            time.Time
}

// ExchangeAccount holds venue credentials. Secrets are encrypted at rest;
// the in-memory cache holds decrypted values only.
type ExchangeAccount struct {
	ID           int64
	ExchangeName string
	APIKey       string
	APISecret    string
	Passphrase   string
	IsActive     bool
	CreatedAt    time.Time
}

// Opportunity is a transient candidate trade produced by a scan. The
// full list is replaced atomically each scan; consumers must not rely on
// cross-scan identity beyond StableID.
type Opportunity struct {
	Strategy  StrategyTag
	StableID  string
	RiskLevel RiskLevel
	Score     decimal.Decimal

	Symbol    string
	Exchange  string // primary venue (S2A/S2B/S3)
	LongExchange  string // S1 only
	ShortExchange string // S1 only

	Direction Direction // S3 only

	FundingRate   decimal.Decimal // per-period rate driving the trade
	Basis         decimal.Decimal
	PriceDiffPct  decimal.Decimal

	PositionSize       decimal.Decimal
	ExpectedNetProfit  decimal.Decimal // per period, absolute
	ExpectedReturnPct  decimal.Decimal // per period, fraction of notional
	AnnualizedReturnPct decimal.Decimal

	EntryPrices map[string]decimal.Decimal // venue -> entry price at detection

	ExecutionMode ExecutionMode
	DetectedAt    time.Time
}

// EntryDetails captures the leg prices and funding snapshot recorded when
// a Position was opened, used later for close-protocol and reconciliation.
type EntryDetails struct {
	LegPrices     map[string]decimal.Decimal
	FundingRate   decimal.Decimal
	ExpectedReturn decimal.Decimal
	Direction     Direction // S3 only
}

// Position is a persisted, mutable open (or formerly open) hedged trade.
type Position struct {
	ID       int64
	Strategy StrategyTag
	Symbol   string
	Exchanges []string // venues involved, order-significant for S1 (long, short)

	Entry EntryDetails

	Size             decimal.Decimal
	CurrentPnL       decimal.Decimal
	RealizedPnL      decimal.Decimal
	FundingCollected decimal.Decimal
	FeesPaid         decimal.Decimal

	Status PositionStatus

	OpenTime  time.Time
	CloseTime time.Time

	TrailingStopActivated bool
	BestPrice             decimal.Decimal
	ActivationPrice        decimal.Decimal

	// AccruedFundingInstants tracks settlement timestamps (ms) already
	// folded into FundingCollected, keyed for idempotent recomputation.
	AccruedFundingInstants map[int64]bool
}

// Order is a persisted record of a single exchange order.
type Order struct {
	ID            int64
	StrategyID    int64 // Position.ID this order belongs to, 0 if standalone
	StrategyType  StrategyTag
	Exchange      string
	Symbol        string
	Side          OrderSide
	Type          OrderType
	Price         decimal.Decimal
	Amount        decimal.Decimal
	Filled        decimal.Decimal
	Status        OrderStatus
	VenueOrderID  string
	FeeCost       decimal.Decimal
	FeeCurrency   string
	ReduceOnly    bool
	CreateTime    time.Time
	UpdateTime    time.Time
}

// RiskEvent is a persisted audit record of a risk-manager decision.
type RiskEvent struct {
	ID          int64
	Severity    RiskSeverity
	EventType   string
	Description string
	PositionID  int64 // 0 if not position-scoped
	IsHandled   bool
	Timestamp   time.Time
}

// ConfigEntry is a single hot-reloadable config row.
type ConfigEntry struct {
	ID           int64
	Category     string
	Key          string
	Value        string // JSON-serialised
	IsHotReload  bool
	Description  string
	UpdatedAt    time.Time
}

// VenuePosition is what an exchange driver reports for a single live
// position, used by the reconciliation loop.
type VenuePosition struct {
	Symbol      string
	Side        Direction
	Contracts   decimal.Decimal
	EntryPrice  decimal.Decimal
	Notional    decimal.Decimal
}

// Ticker is a single venue/symbol quote, spot or futures.
type Ticker struct {
	Symbol string
	Bid    decimal.Decimal
	Ask    decimal.Decimal
	Last   decimal.Decimal
	Ts     time.Time
}

// FundingRate is a venue's current funding-rate quote for a symbol.
type FundingRate struct {
	Symbol          string
	Rate            decimal.Decimal
	NextFundingTime time.Time
	PredictedRate   decimal.Decimal
	IntervalMs      int64
}

// OrderBook is a depth snapshot, summed to BidDepth/AskDepth by the driver.
type OrderBook struct {
	Symbol   string
	Bids     []PriceLevel
	Asks     []PriceLevel
	BidDepth decimal.Decimal
	AskDepth decimal.Decimal
}

// PriceLevel is one (price, size) rung of an order book.
type PriceLevel struct {
	Price decimal.Decimal
	Size  decimal.Decimal
}

// AccountInfo is a venue's account summary.
type AccountInfo struct {
	TotalUSDT      decimal.Decimal
	PositionsCount int
	Ts             time.Time
}

// TradingFees is a symbol's maker/taker fee rates on a venue.
type TradingFees struct {
	Maker decimal.Decimal
	Taker decimal.Decimal
}

// PlaceOrderRequest describes a single order to place on a venue.
type PlaceOrderRequest struct {
	Exchange    string
	StrategyID  int64 // Position.ID this order belongs to, 0 if standalone
	Strategy    StrategyTag
	Symbol      string
	Side        OrderSide
	Type        OrderType
	Amount      decimal.Decimal
	Price       decimal.Decimal // zero for market orders
	IsFutures   bool
	ReduceOnly  bool
	CheckDepth  bool // pre-trade depth check gate, false for rollback orders
}
