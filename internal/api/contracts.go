// Package api defines the operator-surface contracts spec.md §6 names:
// an HTTP dashboard API and a chat-bot command surface. Neither
// implementation is in scope here (spec.md §1's "Operator surfaces");
// these interfaces exist so a future HTTP handler or bot adapter has a
// stable, testable boundary to implement against, the way the teacher
// keeps `internal/infrastructure/grpc` as thin wrappers over the engine.
package api

import (
	"context"

	"github.com/shopspring/decimal"

	"fundingarb/internal/core"
)

// SystemStatus summarises the running engine for the dashboard's status
// and health endpoints.
type SystemStatus struct {
	Healthy          bool
	TradingEnabled   bool
	OpenPositions    int
	CircuitBreakerOn bool
	ActiveExchanges  []string
	Uptime           string
}

// AccountInfo is the read-facing view of a configured exchange account;
// it never carries decrypted secrets.
type AccountInfo struct {
	Exchange string
	IsActive bool
}

// Dashboard is the contract an HTTP API implements (spec.md §6:
// "must be able to read: system status, health, open positions, live
// opportunities, current config, and must support: update config,
// close position by id, execute a specific opportunity, list/add/delete
// exchange accounts, fetch account info").
type Dashboard interface {
	Status(ctx context.Context) (SystemStatus, error)
	Health(ctx context.Context) error

	OpenPositions(ctx context.Context) ([]core.Position, error)
	LiveOpportunities(ctx context.Context) ([]core.Opportunity, error)

	CurrentConfig(ctx context.Context) (map[string]string, error)
	UpdateConfig(ctx context.Context, category, key, value string) error

	ClosePosition(ctx context.Context, positionID int64) error
	ExecuteOpportunity(ctx context.Context, opportunityID string) error

	ListAccounts(ctx context.Context) ([]AccountInfo, error)
	AddAccount(ctx context.Context, acc core.ExchangeAccount) error
	DeleteAccount(ctx context.Context, exchange string) error
	AccountInfo(ctx context.Context, exchange string) (AccountInfo, error)
}

// DailyReport summarises realized results for the bot's daily-report
// command.
type DailyReport struct {
	Date             string
	RealizedPnL      decimal.Decimal
	FundingCollected decimal.Decimal
	FeesPaid         decimal.Decimal
	PositionsClosed  int
}

// Bot is the contract a chat-bot adapter implements (spec.md §6: "status,
// positions, opportunities, balance, pause, resume, close <id>, daily
// report").
type Bot interface {
	Status(ctx context.Context) (SystemStatus, error)
	Positions(ctx context.Context) ([]core.Position, error)
	Opportunities(ctx context.Context) ([]core.Opportunity, error)
	Balance(ctx context.Context) (decimal.Decimal, error)

	Pause(ctx context.Context) error
	Resume(ctx context.Context) error
	ClosePosition(ctx context.Context, positionID int64) error

	DailyReport(ctx context.Context) (DailyReport, error)
}
