package config

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExpandEnvVars(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		envVars  map[string]string
		expected string
	}{
		{
			name:  "expand single env var",
			input: "api_key: ${TEST_API_KEY}",
			envVars: map[string]string{
				"TEST_API_KEY": "test_key_123",
			},
			expected: "api_key: test_key_123",
		},
		{
			name:  "expand multiple env vars",
			input: "api_key: ${API_KEY}\nsecret: ${SECRET_KEY}",
			envVars: map[string]string{
				"API_KEY":    "key_value",
				"SECRET_KEY": "secret_value",
			},
			expected: "api_key: key_value\nsecret: secret_value",
		},
		{
			name:     "missing env var returns empty string",
			input:    "api_key: ${MISSING_VAR}",
			envVars:  map[string]string{},
			expected: "api_key: ",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.envVars {
				os.Setenv(k, v)
				defer os.Unsetenv(k)
			}
			result := expandEnvVars(tt.input)
			assert.Equal(t, tt.expected, result)
		})
	}
}

func TestLoadConfigWithEnvVars(t *testing.T) {
	tmpFile, err := os.CreateTemp("", "config-test-*.yaml")
	require.NoError(t, err)
	defer os.Remove(tmpFile.Name())

	configContent := `app:
  log_level: "INFO"
  db_driver: "sqlite"
  active_exchanges: ["binance"]

exchanges:
  binance:
    api_key: "${TEST_BINANCE_API_KEY}"
    secret_key: "${TEST_BINANCE_SECRET_KEY}"

global:
  total_capital: "100000"
  max_capital_usage: "0.8"
  max_positions: 20

risk:
  max_drawdown: "0.2"
`
	_, err = tmpFile.Write([]byte(configContent))
	require.NoError(t, err)
	tmpFile.Close()

	os.Setenv("TEST_BINANCE_API_KEY", "test_api_key_from_env")
	os.Setenv("TEST_BINANCE_SECRET_KEY", "test_secret_key_from_env")
	defer os.Unsetenv("TEST_BINANCE_API_KEY")
	defer os.Unsetenv("TEST_BINANCE_SECRET_KEY")

	cfg, err := LoadConfig(tmpFile.Name())
	require.NoError(t, err, "LoadConfig() error")

	binanceConfig := cfg.Exchanges["binance"]
	assert.Equal(t, Secret("test_api_key_from_env"), binanceConfig.APIKey)
	assert.Equal(t, Secret("test_secret_key_from_env"), binanceConfig.SecretKey)
	assert.Equal(t, "manual", cfg.Strategy2B.ExecutionMode, "S2B execution mode is always forced to manual")
}

func TestValidateRejectsMissingExchangeConfig(t *testing.T) {
	cfg := DefaultConfig()
	cfg.App.ActiveExchanges = []string{"okx"}
	delete(cfg.Exchanges, "okx")

	err := cfg.Validate()
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "okx")
}

func TestValidateAcceptsMockExchangeWithoutCredentials(t *testing.T) {
	cfg := DefaultConfig()
	cfg.App.ActiveExchanges = []string{"mock"}

	assert.NoError(t, cfg.Validate())
}

func TestConfig_StringRedactsSecrets(t *testing.T) {
	cfg := &Config{
		App: AppConfig{ActiveExchanges: []string{"binance"}, DBDriver: "sqlite"},
		Exchanges: map[string]ExchangeConfig{
			"binance": {
				APIKey:    Secret("my_super_secret_api_key"),
				SecretKey: Secret("my_super_secret_secret_key"),
			},
		},
	}
	output := cfg.String()

	assert.Contains(t, output, "[REDACTED]")
	assert.NotContains(t, output, "my_super_secret_api_key")
	assert.NotContains(t, output, "my_super_secret_secret_key")
}
