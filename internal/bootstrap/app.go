package bootstrap

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"fundingarb/internal/core"
	"fundingarb/internal/store"
	"fundingarb/pkg/cryptoutil"
)

// App holds the dependencies every long-running loop needs: config,
// logger, the relational store, and the at-rest encryption key for
// exchange credentials.
type App struct {
	Cfg           *Config
	Logger        core.Logger
	Store         core.Store
	EncryptionKey []byte
}

// NewApp loads config, initializes logging, opens the configured store
// (sqlite or postgres, per cfg.App.DBDriver), and loads (or generates)
// the credential encryption key.
func NewApp(configPath string) (*App, error) {
	cfg, err := LoadConfig(configPath)
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	logger := InitLogger(cfg)

	st, err := openStore(cfg)
	if err != nil {
		return nil, fmt.Errorf("store: %w", err)
	}

	key, err := cryptoutil.LoadOrCreateKey(cfg.App.EncryptionKeyPath)
	if err != nil {
		return nil, fmt.Errorf("encryption key: %w", err)
	}

	return &App{
		Cfg:           cfg,
		Logger:        logger,
		Store:         st,
		EncryptionKey: key,
	}, nil
}

// openStore dispatches to sqlite (default) or postgres per cfg.App.DBDriver.
func openStore(cfg *Config) (core.Store, error) {
	switch strings.ToLower(cfg.App.DBDriver) {
	case "", "sqlite":
		return store.OpenSQLite(cfg.App.DBDSN)
	case "postgres":
		return store.OpenPostgres(cfg.App.DBDSN)
	default:
		return nil, fmt.Errorf("unsupported db_driver: %s", cfg.App.DBDriver)
	}
}

// Runner is a long-running component started and stopped by the
// process lifecycle (a collector loop, the opportunity monitor, the
// executor's admission/monitor/reconcile loops, risk monitoring, ...).
type Runner interface {
	Run(ctx context.Context) error
}

// Run starts every runner under a shared errgroup and context that is
// cancelled on SIGINT/SIGTERM or on the first runner's failure.
func (a *App) Run(runners ...Runner) error {
	sigCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(sigCtx)

	a.Logger.Info("starting engine", "active_exchanges", a.Cfg.App.ActiveExchanges, "trading_enabled", a.Cfg.App.TradingEnabled)

	for _, runner := range runners {
		r := runner
		g.Go(func() error {
			return r.Run(ctx)
		})
	}

	if err := g.Wait(); err != nil {
		if sigCtx.Err() == nil {
			a.Logger.Error("engine stopped with error", "error", err.Error())
			return err
		}
	}

	a.Logger.Info("engine shut down gracefully")
	return nil
}

// Shutdown logs the given timeout and closes the store. It does not wait
// on any component; timeout is only reported in the log line.
func (a *App) Shutdown(timeout time.Duration) {
	a.Logger.Info("shutting down", "timeout", timeout.String())
	if err := a.Store.Close(); err != nil {
		a.Logger.Warn("store close failed", "error", err.Error())
	}
}
