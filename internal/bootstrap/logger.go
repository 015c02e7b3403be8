package bootstrap

import (
	"fundingarb/internal/core"
	"fundingarb/pkg/logging"
)

// InitLogger builds the process-wide zap logger per cfg.App.LogLevel,
// registers it as the package-global logger, and returns it.
func InitLogger(cfg *Config) core.Logger {
	logger, err := logging.NewZapLogger(cfg.App.LogLevel)
	if err != nil {
		// NewZapLogger returns a nil error for every level (unknown
		// levels map to INFO); this branch retries with INFO if it ever
		// reports one, rather than leave the process unloggable.
		logger, _ = logging.NewZapLogger("INFO")
	}
	logging.SetGlobalLogger(logger)
	return logger
}
