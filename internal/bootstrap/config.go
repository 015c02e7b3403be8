package bootstrap

import (
	"fmt"
	"os"
	"path/filepath"

	"fundingarb/internal/config"
)

// Config is an alias for the project's main configuration struct.
type Config = config.Config

// LoadConfig loads and validates config, then runs environment checks
// that schema validation alone cannot cover.
func LoadConfig(path string) (*Config, error) {
	cfg, err := config.LoadConfig(path)
	if err != nil {
		return nil, err
	}

	if err := checkPreFlight(cfg); err != nil {
		return nil, fmt.Errorf("pre-flight checks failed: %w", err)
	}

	return cfg, nil
}

// checkPreFlight performs environment checks beyond schema validation:
// the encryption key directory must be writable (the key is generated
// on first run) and, for a file-based sqlite DSN, its parent directory
// must exist or be creatable.
func checkPreFlight(cfg *Config) error {
	keyDir := filepath.Dir(cfg.App.EncryptionKeyPath)
	if err := os.MkdirAll(keyDir, 0o700); err != nil {
		return fmt.Errorf("encryption key directory %s is not writable: %w", keyDir, err)
	}

	if cfg.App.DBDriver == "sqlite" && cfg.App.DBDSN != "" && cfg.App.DBDSN != ":memory:" {
		dbDir := filepath.Dir(cfg.App.DBDSN)
		if dbDir != "." {
			if err := os.MkdirAll(dbDir, 0o755); err != nil {
				return fmt.Errorf("database directory %s is not writable: %w", dbDir, err)
			}
		}
	}

	return nil
}
