// Package config handles process-bootstrap configuration management with
// hand-written validation, plus (in store.go) the hot-reloadable
// ConfigEntry/TradingPairConfig/ExchangeAccount caches backed by
// internal/store.
package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

// Config is the process-level configuration loaded once at bootstrap.
// Operator-tunable trading parameters live in the hot-reloadable
// ConfigEntry store (see store.go), not here.
type Config struct {
	App       AppConfig                 `yaml:"app"`
	Exchanges map[string]ExchangeConfig `yaml:"exchanges"`
	Global    GlobalConfig              `yaml:"global"`
	Strategy1 Strategy1Config           `yaml:"strategy1"`
	Strategy2A Strategy2AConfig         `yaml:"strategy2a"`
	Strategy2B Strategy2BConfig         `yaml:"strategy2b"`
	Strategy3 Strategy3Config           `yaml:"strategy3"`
	Risk      RiskConfig                `yaml:"risk"`
	Telemetry TelemetryConfig           `yaml:"telemetry"`
}

// AppConfig contains process bootstrap settings.
type AppConfig struct {
	LogLevel          string   `yaml:"log_level"`
	DBDriver          string   `yaml:"db_driver"` // "sqlite" or "postgres"
	DBDSN             string   `yaml:"db_dsn"`
	EncryptionKeyPath string   `yaml:"encryption_key_path"`
	ActiveExchanges   []string `yaml:"active_exchanges"`
	TradingEnabled    bool     `yaml:"trading_enabled"` // false = simulation mode, orders synthesised
	HTTPAddr          string   `yaml:"http_addr"`
}

// ExchangeConfig holds bootstrap-time venue credentials; once loaded these
// seed internal/store's exchange_accounts table on first run.
type ExchangeConfig struct {
	APIKey     Secret `yaml:"api_key"`
	SecretKey  Secret `yaml:"secret_key"`
	Passphrase Secret `yaml:"passphrase"`
}

// GlobalConfig corresponds to the `global.*` config keys (spec §6).
type GlobalConfig struct {
	TotalCapital            decimal.Decimal `yaml:"total_capital"`
	MaxCapitalUsage         decimal.Decimal `yaml:"max_capital_usage"`
	MaxPositions            int             `yaml:"max_positions"`
	PriceRefreshInterval    int             `yaml:"price_refresh_interval"`    // seconds, default 5
	FundingRefreshInterval  int             `yaml:"funding_refresh_interval"`  // seconds, default 300
	OpportunityScanInterval int             `yaml:"opportunity_scan_interval"` // seconds, default 10
}

// Strategy1Config corresponds to `strategy1.*` (cross-exchange funding).
type Strategy1Config struct {
	Enabled         bool            `yaml:"enabled"`
	ExecutionMode   string          `yaml:"execution_mode"`
	PositionSize    decimal.Decimal `yaml:"position_size"`
	MinFundingDiff  decimal.Decimal `yaml:"min_funding_diff"`
	MaxPriceDiff    decimal.Decimal `yaml:"max_price_diff"`
	MaxPositionSize decimal.Decimal `yaml:"max_position_size"`
}

// Strategy2AConfig corresponds to `strategy2a.*` (spot-vs-perp funding).
type Strategy2AConfig struct {
	Enabled           bool            `yaml:"enabled"`
	ExecutionMode     string          `yaml:"execution_mode"`
	PositionSize      decimal.Decimal `yaml:"position_size"`
	MinFundingRate    decimal.Decimal `yaml:"min_funding_rate"`
	MaxBasisDeviation decimal.Decimal `yaml:"max_basis_deviation"`
	MaxPositionSize   decimal.Decimal `yaml:"max_position_size"`
}

// Strategy2BConfig corresponds to `strategy2b.*` (basis arbitrage); its
// execution mode is always manual per spec §4.3.
type Strategy2BConfig struct {
	Enabled       bool            `yaml:"enabled"`
	ExecutionMode string          `yaml:"execution_mode"`
	PositionSize  decimal.Decimal `yaml:"position_size"`
	MinBasis      decimal.Decimal `yaml:"min_basis"`
}

// Strategy3Config corresponds to `strategy3.*` (directional funding ride).
type Strategy3Config struct {
	Enabled               bool            `yaml:"enabled"`
	MinFundingRate        decimal.Decimal `yaml:"min_funding_rate"`
	PositionSize          decimal.Decimal `yaml:"position_size"`
	StopLossPct           decimal.Decimal `yaml:"stop_loss_pct"`
	CheckBasis            bool            `yaml:"check_basis"`
	ShortExitThreshold    decimal.Decimal `yaml:"short_exit_threshold"`
	LongExitThreshold     decimal.Decimal `yaml:"long_exit_threshold"`
	TrailingStopEnabled   bool            `yaml:"trailing_stop_enabled"`
	TrailingActivationPct decimal.Decimal `yaml:"trailing_activation_pct"`
	TrailingCallbackPct   decimal.Decimal `yaml:"trailing_callback_pct"`
}

// RiskConfig corresponds to `risk.*`.
type RiskConfig struct {
	MaxPositionSizePerTrade decimal.Decimal `yaml:"max_position_size_per_trade"`
	MaxDrawdown             decimal.Decimal `yaml:"max_drawdown"`
	WarningThreshold        decimal.Decimal `yaml:"warning_threshold"`
	CriticalThreshold       decimal.Decimal `yaml:"critical_threshold"`
	EmergencyThreshold      decimal.Decimal `yaml:"emergency_threshold"`
	PriceDeviationThreshold decimal.Decimal `yaml:"price_deviation_threshold"`
	AbnormalFundingRate     decimal.Decimal `yaml:"abnormal_funding_rate"`
	MinDepthMultiplier      decimal.Decimal `yaml:"min_depth_multiplier"`
	DynamicPositionEnabled  bool            `yaml:"dynamic_position_enabled"`
	HighScoreMultiplier     decimal.Decimal `yaml:"high_score_multiplier"`
	MediumScoreMultiplier   decimal.Decimal `yaml:"medium_score_multiplier"`
	LowScoreMultiplier      decimal.Decimal `yaml:"low_score_multiplier"`
}

// TelemetryConfig contains OTel/metrics exporter settings.
type TelemetryConfig struct {
	MetricsPort   int  `yaml:"metrics_port"`
	EnableMetrics bool `yaml:"enable_metrics"`
}

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Value   interface{}
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("validation error for field '%s' (value: %v): %s", e.Field, e.Value, e.Message)
}

// LoadConfig loads configuration from a YAML file with environment
// variable expansion.
func LoadConfig(filename string) (*Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	expandedData := expandEnvVars(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expandedData), &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Global.PriceRefreshInterval == 0 {
		c.Global.PriceRefreshInterval = 5
	}
	if c.Global.FundingRefreshInterval == 0 {
		c.Global.FundingRefreshInterval = 300
	}
	if c.Global.OpportunityScanInterval == 0 {
		c.Global.OpportunityScanInterval = 10
	}
	if c.App.DBDriver == "" {
		c.App.DBDriver = "sqlite"
	}
	if c.App.EncryptionKeyPath == "" {
		c.App.EncryptionKeyPath = "data/.encryption_key"
	}
	// S2B is always manual, regardless of what the file says.
	c.Strategy2B.ExecutionMode = "manual"
}

// Validate performs comprehensive validation of the configuration.
func (c *Config) Validate() error {
	var errs []string

	if err := c.validateAppConfig(); err != nil {
		errs = append(errs, err.Error())
	}
	if err := c.validateExchanges(); err != nil {
		errs = append(errs, err.Error())
	}
	if err := c.validateGlobalConfig(); err != nil {
		errs = append(errs, err.Error())
	}
	if err := c.validateRiskConfig(); err != nil {
		errs = append(errs, err.Error())
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration validation failed:\n%s", strings.Join(errs, "\n"))
	}
	return nil
}

func (c *Config) validateAppConfig() error {
	if len(c.App.ActiveExchanges) == 0 {
		return ValidationError{
			Field:   "app.active_exchanges",
			Message: "at least one exchange must be active",
		}
	}

	validDrivers := []string{"sqlite", "postgres"}
	if !contains(validDrivers, c.App.DBDriver) {
		return ValidationError{
			Field:   "app.db_driver",
			Value:   c.App.DBDriver,
			Message: fmt.Sprintf("must be one of: %s", strings.Join(validDrivers, ", ")),
		}
	}

	validLevels := []string{"DEBUG", "INFO", "WARN", "ERROR", "FATAL"}
	if c.App.LogLevel != "" && !contains(validLevels, strings.ToUpper(c.App.LogLevel)) {
		return ValidationError{
			Field:   "app.log_level",
			Value:   c.App.LogLevel,
			Message: fmt.Sprintf("must be one of: %s", strings.Join(validLevels, ", ")),
		}
	}

	return nil
}

func (c *Config) validateExchanges() error {
	for _, ex := range c.App.ActiveExchanges {
		if ex == "mock" {
			continue
		}
		if _, exists := c.Exchanges[ex]; !exists {
			return ValidationError{
				Field:   "app.active_exchanges",
				Value:   ex,
				Message: "exchange configuration not found in exchanges section",
			}
		}
	}
	return nil
}

func (c *Config) validateGlobalConfig() error {
	if c.Global.TotalCapital.IsZero() || c.Global.TotalCapital.IsNegative() {
		return ValidationError{
			Field:   "global.total_capital",
			Value:   c.Global.TotalCapital,
			Message: "must be positive",
		}
	}
	if c.Global.MaxCapitalUsage.IsZero() || c.Global.MaxCapitalUsage.GreaterThan(decimal.NewFromInt(1)) {
		return ValidationError{
			Field:   "global.max_capital_usage",
			Value:   c.Global.MaxCapitalUsage,
			Message: "must be in (0, 1]",
		}
	}
	if c.Global.MaxPositions <= 0 {
		return ValidationError{
			Field:   "global.max_positions",
			Value:   c.Global.MaxPositions,
			Message: "must be positive",
		}
	}
	return nil
}

func (c *Config) validateRiskConfig() error {
	if c.Risk.MaxDrawdown.IsZero() || c.Risk.MaxDrawdown.IsNegative() {
		return ValidationError{
			Field:   "risk.max_drawdown",
			Message: "must be set and positive",
		}
	}
	return nil
}

// String returns a string representation of the configuration with
// sensitive data masked (Secret fields redact themselves on marshal).
func (c *Config) String() string {
	data, _ := yaml.Marshal(c)
	return string(data)
}

func expandEnvVars(s string) string {
	return os.Expand(s, func(key string) string {
		return os.Getenv(key)
	})
}

func contains(slice []string, item string) bool {
	for _, s := range slice {
		if s == item {
			return true
		}
	}
	return false
}

// DefaultConfig returns a default configuration for tests.
func DefaultConfig() *Config {
	return &Config{
		App: AppConfig{
			LogLevel:          "INFO",
			DBDriver:          "sqlite",
			DBDSN:             "file:fundingarb.db",
			EncryptionKeyPath: "data/.encryption_key",
			ActiveExchanges:   []string{"binance"},
			TradingEnabled:    false,
		},
		Exchanges: map[string]ExchangeConfig{
			"binance": {
				APIKey:    Secret("test_api_key"),
				SecretKey: Secret("test_secret_key"),
			},
		},
		Global: GlobalConfig{
			TotalCapital:            decimal.NewFromInt(100000),
			MaxCapitalUsage:         decimal.NewFromFloat(0.8),
			MaxPositions:            20,
			PriceRefreshInterval:    5,
			FundingRefreshInterval:  300,
			OpportunityScanInterval: 10,
		},
		Strategy1: Strategy1Config{
			Enabled:         true,
			ExecutionMode:   "auto",
			PositionSize:    decimal.NewFromInt(1000),
			MinFundingDiff:  decimal.NewFromFloat(0.0003),
			MaxPriceDiff:    decimal.NewFromFloat(0.02),
			MaxPositionSize: decimal.NewFromInt(5000),
		},
		Strategy2A: Strategy2AConfig{
			Enabled:           true,
			ExecutionMode:     "auto",
			PositionSize:      decimal.NewFromInt(1000),
			MinFundingRate:    decimal.NewFromFloat(0.0005),
			MaxBasisDeviation: decimal.NewFromFloat(0.01),
			MaxPositionSize:   decimal.NewFromInt(5000),
		},
		Strategy2B: Strategy2BConfig{
			Enabled:       true,
			ExecutionMode: "manual",
			PositionSize:  decimal.NewFromInt(1000),
			MinBasis:      decimal.NewFromFloat(0.02),
		},
		Strategy3: Strategy3Config{
			Enabled:               true,
			MinFundingRate:        decimal.NewFromFloat(0.0005),
			PositionSize:          decimal.NewFromInt(1000),
			StopLossPct:           decimal.NewFromFloat(0.05),
			CheckBasis:            true,
			ShortExitThreshold:    decimal.NewFromFloat(-0.0001),
			LongExitThreshold:     decimal.NewFromFloat(0.0001),
			TrailingStopEnabled:   true,
			TrailingActivationPct: decimal.NewFromFloat(0.04),
			TrailingCallbackPct:   decimal.NewFromFloat(0.04),
		},
		Risk: RiskConfig{
			MaxPositionSizePerTrade: decimal.NewFromInt(5000),
			MaxDrawdown:             decimal.NewFromFloat(0.2),
			WarningThreshold:        decimal.NewFromFloat(0.05),
			CriticalThreshold:       decimal.NewFromFloat(0.10),
			EmergencyThreshold:      decimal.NewFromFloat(0.15),
			PriceDeviationThreshold: decimal.NewFromFloat(0.02),
			AbnormalFundingRate:     decimal.NewFromFloat(0.01),
			MinDepthMultiplier:      decimal.NewFromFloat(0.8),
			DynamicPositionEnabled:  true,
			HighScoreMultiplier:     decimal.NewFromFloat(1.2),
			MediumScoreMultiplier:   decimal.NewFromFloat(1.0),
			LowScoreMultiplier:      decimal.NewFromFloat(0.5),
		},
	}
}
