package config

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"fundingarb/internal/core"
	"fundingarb/pkg/cryptoutil"
)

// EntryStore is the flat, hot-reloadable "category.key" -> JSON-string
// config cache described in spec §4.6. Reads attempt JSON decode and
// fall back to the raw string; writes persist through Store and refresh
// the cache.
type EntryStore struct {
	store core.Store
	log   core.Logger

	mu    sync.RWMutex
	cache map[string]core.ConfigEntry // key = "category.key"
}

// NewEntryStore creates an EntryStore and loads the current snapshot.
func NewEntryStore(ctx context.Context, store core.Store, log core.Logger) (*EntryStore, error) {
	es := &EntryStore{store: store, log: log, cache: make(map[string]core.ConfigEntry)}
	if err := es.reload(ctx); err != nil {
		return nil, err
	}
	return es, nil
}

func cacheKey(category, key string) string {
	return category + "." + key
}

func (es *EntryStore) reload(ctx context.Context) error {
	entries, err := es.store.ListConfigEntries(ctx)
	if err != nil {
		return fmt.Errorf("config: loading entries: %w", err)
	}
	es.mu.Lock()
	defer es.mu.Unlock()
	es.cache = make(map[string]core.ConfigEntry, len(entries))
	for _, e := range entries {
		es.cache[cacheKey(e.Category, e.Key)] = e
	}
	return nil
}

// ReloadHot refreshes only the subset of entries flagged IsHotReload.
func (es *EntryStore) ReloadHot(ctx context.Context) error {
	entries, err := es.store.ListConfigEntries(ctx)
	if err != nil {
		return fmt.Errorf("config: reloading hot entries: %w", err)
	}
	es.mu.Lock()
	defer es.mu.Unlock()
	for _, e := range entries {
		if !e.IsHotReload {
			continue
		}
		es.cache[cacheKey(e.Category, e.Key)] = e
	}
	return nil
}

// Get returns the raw string value and whether it was present.
func (es *EntryStore) Get(category, key string) (string, bool) {
	es.mu.RLock()
	defer es.mu.RUnlock()
	e, ok := es.cache[cacheKey(category, key)]
	if !ok {
		return "", false
	}
	return e.Value, true
}

// GetJSON decodes the stored value into v. When JSON decoding fails and v
// is a *string, the raw stored string is used as-is; for any other target
// type the decode error is returned.
func (es *EntryStore) GetJSON(category, key string, v interface{}) (bool, error) {
	raw, ok := es.Get(category, key)
	if !ok {
		return false, nil
	}
	if err := json.Unmarshal([]byte(raw), v); err != nil {
		if sp, isString := v.(*string); isString {
			*sp = raw
			return true, nil
		}
		return true, fmt.Errorf("config: value for %s.%s is not valid JSON for target type: %w", category, key, err)
	}
	return true, nil
}

// Set persists a value (JSON-encoded) and refreshes the cache.
func (es *EntryStore) Set(ctx context.Context, category, key string, value interface{}, hotReload bool, description string) error {
	encoded, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("config: encoding %s.%s: %w", category, key, err)
	}
	entry := core.ConfigEntry{
		Category:    category,
		Key:         key,
		Value:       string(encoded),
		IsHotReload: hotReload,
		Description: description,
	}
	if err := es.store.UpsertConfigEntry(ctx, entry); err != nil {
		return fmt.Errorf("config: persisting %s.%s: %w", category, key, err)
	}
	es.mu.Lock()
	es.cache[cacheKey(category, key)] = entry
	es.mu.Unlock()
	return nil
}

// SetDefault is a no-op if the key is already present, preserving
// operator edits across restarts (spec §4.6).
func (es *EntryStore) SetDefault(ctx context.Context, category, key string, value interface{}, hotReload bool, description string) error {
	if _, ok := es.Get(category, key); ok {
		return nil
	}
	return es.Set(ctx, category, key, value, hotReload, description)
}

// PairConfigResolver resolves TradingPairConfig for a (symbol, exchange)
// with the precedence spec §4.6 names: exact (symbol, exchange) row >
// (symbol, any) row > synthesised default from the strategy's global
// defaults.
type PairConfigResolver struct {
	store core.Store
	cfg   *Config
}

// NewPairConfigResolver constructs a resolver over the given store and
// process-level strategy defaults.
func NewPairConfigResolver(store core.Store, cfg *Config) *PairConfigResolver {
	return &PairConfigResolver{store: store, cfg: cfg}
}

// Resolve returns the effective TradingPairConfig for (symbol, exchange).
func (r *PairConfigResolver) Resolve(ctx context.Context, symbol, exchange string) (*core.TradingPairConfig, error) {
	if exchange != "" {
		if exact, err := r.store.GetTradingPairConfig(ctx, symbol, exchange); err != nil {
			return nil, err
		} else if exact != nil {
			return exact, nil
		}
	}

	if any, err := r.store.GetTradingPairConfig(ctx, symbol, ""); err != nil {
		return nil, err
	} else if any != nil {
		return any, nil
	}

	return r.defaultPairConfig(symbol, exchange), nil
}

func (r *PairConfigResolver) defaultPairConfig(symbol, exchange string) *core.TradingPairConfig {
	return &core.TradingPairConfig{
		Symbol:             symbol,
		Exchange:           exchange,
		MinFundingDiff:     r.cfg.Strategy1.MinFundingDiff,
		MaxPriceDiff:       r.cfg.Strategy1.MaxPriceDiff,
		MinFundingRate:     r.cfg.Strategy2A.MinFundingRate,
		MaxBasisDeviation:  r.cfg.Strategy2A.MaxBasisDeviation,
		MinBasis:           r.cfg.Strategy2B.MinBasis,
		PositionSize:       r.cfg.Strategy1.PositionSize,
		MaxPositionSize:    r.cfg.Strategy1.MaxPositionSize,
		ExecutionMode:      core.ExecutionAuto,
		StopLossPct:        r.cfg.Strategy3.StopLossPct,
		ShortExitThreshold: r.cfg.Strategy3.ShortExitThreshold,
		LongExitThreshold:  r.cfg.Strategy3.LongExitThreshold,
		TrailingStop: core.TrailingStopConfig{
			Enabled:       r.cfg.Strategy3.TrailingStopEnabled,
			ActivationPct: r.cfg.Strategy3.TrailingActivationPct,
			CallbackPct:   r.cfg.Strategy3.TrailingCallbackPct,
		},
		IsActive: true,
	}
}

// AccountStore loads active exchange accounts at start, decrypts secrets
// via pkg/cryptoutil, and keeps plaintext in memory only. Unreadable
// ciphertext (legacy plaintext, or data predating key rotation) is kept
// as-is with a warning rather than rejected (spec §4.6, §6).
type AccountStore struct {
	store core.Store
	log   core.Logger
	key   []byte

	mu       sync.RWMutex
	accounts map[string]core.ExchangeAccount // exchange name -> decrypted account
}

// NewAccountStore loads and decrypts all active accounts.
func NewAccountStore(ctx context.Context, store core.Store, key []byte, log core.Logger) (*AccountStore, error) {
	as := &AccountStore{store: store, key: key, log: log, accounts: make(map[string]core.ExchangeAccount)}
	if err := as.reload(ctx); err != nil {
		return nil, err
	}
	return as, nil
}

func (as *AccountStore) reload(ctx context.Context) error {
	rows, err := as.store.ListActiveExchangeAccounts(ctx)
	if err != nil {
		return fmt.Errorf("config: loading exchange accounts: %w", err)
	}

	as.mu.Lock()
	defer as.mu.Unlock()
	as.accounts = make(map[string]core.ExchangeAccount, len(rows))
	for _, row := range rows {
		as.accounts[row.ExchangeName] = as.decryptAccount(row)
	}
	return nil
}

func (as *AccountStore) decryptAccount(row core.ExchangeAccount) core.ExchangeAccount {
	row.APIKey = as.decryptField(row.ExchangeName, "api_key", row.APIKey)
	row.APISecret = as.decryptField(row.ExchangeName, "api_secret", row.APISecret)
	if row.Passphrase != "" {
		row.Passphrase = as.decryptField(row.ExchangeName, "passphrase", row.Passphrase)
	}
	return row
}

func (as *AccountStore) decryptField(exchange, field, ciphertext string) string {
	plain, err := cryptoutil.Decrypt(as.key, ciphertext)
	if err != nil {
		as.log.Warn("account field failed to decrypt, treating as legacy plaintext",
			"exchange", exchange, "field", field, "error", err.Error())
		return ciphertext
	}
	return plain
}

// Get returns the decrypted account for an exchange.
func (as *AccountStore) Get(exchange string) (core.ExchangeAccount, bool) {
	as.mu.RLock()
	defer as.mu.RUnlock()
	acc, ok := as.accounts[exchange]
	return acc, ok
}

// AddAccount encrypts secrets before persisting and updates the cache.
func (as *AccountStore) AddAccount(ctx context.Context, acc core.ExchangeAccount) error {
	plain := acc

	encrypted := acc
	var err error
	if encrypted.APIKey, err = cryptoutil.Encrypt(as.key, acc.APIKey); err != nil {
		return fmt.Errorf("config: encrypting api_key: %w", err)
	}
	if encrypted.APISecret, err = cryptoutil.Encrypt(as.key, acc.APISecret); err != nil {
		return fmt.Errorf("config: encrypting api_secret: %w", err)
	}
	if acc.Passphrase != "" {
		if encrypted.Passphrase, err = cryptoutil.Encrypt(as.key, acc.Passphrase); err != nil {
			return fmt.Errorf("config: encrypting passphrase: %w", err)
		}
	}

	if err := as.store.UpsertExchangeAccount(ctx, encrypted); err != nil {
		return fmt.Errorf("config: persisting exchange account: %w", err)
	}

	as.mu.Lock()
	as.accounts[plain.ExchangeName] = plain
	as.mu.Unlock()
	return nil
}
