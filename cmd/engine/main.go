package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"fundingarb/internal/bootstrap"
	"fundingarb/internal/collector"
	"fundingarb/internal/config"
	"fundingarb/internal/core"
	"fundingarb/internal/exchange"
	"fundingarb/internal/executor"
	"fundingarb/internal/opportunity"
	"fundingarb/internal/orders"
	"fundingarb/internal/risk"
	"fundingarb/pkg/telemetry"
)

var (
	version   = "dev"
	buildTime = "unknown"
)

func main() {
	configPath := flag.String("config", "configs/engine.yaml", "Path to configuration file")
	showVersion := flag.Bool("version", false, "Show version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Printf("engine version %s (built %s)\n", version, buildTime)
		os.Exit(0)
	}

	app, err := bootstrap.NewApp(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "bootstrap failed: %v\n", err)
		os.Exit(1)
	}

	app.Logger.Info("starting engine", "version", version)

	tel, err := telemetry.Setup("fundingarb-engine")
	if err != nil {
		app.Logger.Warn("telemetry setup failed, continuing without metrics/tracing", "error", err.Error())
	} else {
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := tel.Shutdown(shutdownCtx); err != nil {
				app.Logger.Warn("telemetry shutdown failed", "error", err.Error())
			}
		}()
	}

	ctx := context.Background()

	accounts, err := config.NewAccountStore(ctx, app.Store, app.EncryptionKey, app.Logger)
	if err != nil {
		app.Logger.Error("loading exchange accounts failed", "error", err.Error())
		os.Exit(1)
	}
	if err := seedAccountsFromConfig(ctx, accounts, app.Cfg, app.Logger); err != nil {
		app.Logger.Error("seeding exchange accounts failed", "error", err.Error())
		os.Exit(1)
	}

	drivers, err := buildDrivers(app.Cfg, accounts, app.Logger)
	if err != nil {
		app.Logger.Error("building exchange drivers failed", "error", err.Error())
		os.Exit(1)
	}
	if len(drivers) == 0 {
		app.Logger.Error("no exchange drivers configured, refusing to start")
		os.Exit(1)
	}

	pairConfigs := config.NewPairConfigResolver(app.Store, app.Cfg)
	metrics := telemetry.GetGlobalMetrics()

	coll := collector.New(drivers, app.Store, app.Cfg.Global, app.Logger)

	monitor := opportunity.New(coll, app.Store, pairConfigs, app.Cfg.Global, app.Logger, metrics)

	orderMgr := orders.New(drivers, app.Store, app.Logger, app.Cfg.App.TradingEnabled,
		telemetry.GetTracer("fundingarb/orders"), telemetry.GetMeter("fundingarb/orders"))

	riskMgr := risk.New(app.Store, pairConfigs, app.Cfg.Global, app.Cfg.Risk, app.Logger, metrics)

	exec := executor.New(app.Store, orderMgr, riskMgr, drivers, coll, pairConfigs, app.Logger, manualExecutionCallback(app.Logger))
	exec.Subscribe(monitor)

	if err := riskMgr.Start(ctx); err != nil {
		app.Logger.Error("starting risk manager failed", "error", err.Error())
		os.Exit(1)
	}
	defer func() {
		if err := riskMgr.Stop(); err != nil {
			app.Logger.Warn("stopping risk manager failed", "error", err.Error())
		}
	}()

	if err := app.Run(coll, monitor, orderMgr, exec); err != nil {
		app.Shutdown(10 * time.Second)
		os.Exit(1)
	}

	app.Shutdown(10 * time.Second)
}

// manualExecutionCallback logs opportunities the executor did not
// auto-admit (manual execution mode, or non-low risk); a real operator
// surface (internal/api.Dashboard/Bot) would instead surface these for
// confirmation.
func manualExecutionCallback(log core.Logger) func(core.Opportunity) {
	return func(opp core.Opportunity) {
		log.Info("opportunity awaiting manual execution",
			"strategy", string(opp.Strategy), "symbol", opp.Symbol, "id", opp.StableID)
	}
}

// buildDrivers constructs one core.ExchangeDriver per active exchange,
// keyed by exchange name to match core.ExchangeAccount.ExchangeName.
func buildDrivers(cfg *config.Config, accounts *config.AccountStore, log core.Logger) (map[string]core.ExchangeDriver, error) {
	drivers := make(map[string]core.ExchangeDriver, len(cfg.App.ActiveExchanges))
	for _, name := range cfg.App.ActiveExchanges {
		acc, ok := accounts.Get(name)
		if !ok {
			log.Warn("no account configured for active exchange, skipping", "exchange", name)
			continue
		}
		driver, err := exchange.NewDriver(name, acc, log)
		if err != nil {
			return nil, fmt.Errorf("exchange %s: %w", name, err)
		}
		drivers[name] = driver
	}
	return drivers, nil
}

// seedAccountsFromConfig persists config.yaml's bootstrap credentials on
// first run, without overwriting accounts already stored (and possibly
// edited by an operator) since (config.go's ExchangeConfig doc comment).
func seedAccountsFromConfig(ctx context.Context, accounts *config.AccountStore, cfg *config.Config, log core.Logger) error {
	for name, exchCfg := range cfg.Exchanges {
		if _, ok := accounts.Get(name); ok {
			continue
		}
		if exchCfg.APIKey == "" {
			continue
		}
		log.Info("seeding exchange account from config", "exchange", name)
		if err := accounts.AddAccount(ctx, core.ExchangeAccount{
			ExchangeName: name,
			APIKey:       string(exchCfg.APIKey),
			APISecret:    string(exchCfg.SecretKey),
			Passphrase:   string(exchCfg.Passphrase),
			IsActive:     true,
		}); err != nil {
			return fmt.Errorf("seeding account %s: %w", name, err)
		}
	}
	return nil
}
