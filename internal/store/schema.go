package store

// schema returns the CREATE TABLE statements for the 8 persisted schemas,
// normalised per-row rather than the single-blob pattern. d.pk() supplies
// the dialect's primary-key clause (AUTOINCREMENT vs BIGSERIAL).
func schema(d dialect) []string {
	pk := d.pk()
	return []string{
		`CREATE TABLE IF NOT EXISTS config (
			id ` + pk + `,
			category TEXT NOT NULL,
			key TEXT NOT NULL,
			value TEXT NOT NULL,
			is_hot_reload BOOLEAN NOT NULL DEFAULT TRUE,
			description TEXT NOT NULL DEFAULT '',
			updated_at TIMESTAMP NOT NULL,
			UNIQUE(category, key)
		)`,
		`CREATE TABLE IF NOT EXISTS exchange_accounts (
			id ` + pk + `,
			exchange_name TEXT NOT NULL UNIQUE,
			api_key TEXT NOT NULL,
			api_secret TEXT NOT NULL,
			passphrase TEXT NOT NULL DEFAULT '',
			is_active BOOLEAN NOT NULL DEFAULT TRUE,
			created_at TIMESTAMP NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS trading_pair_configs (
			id ` + pk + `,
			symbol TEXT NOT NULL,
			exchange TEXT NOT NULL DEFAULT '',
			min_funding_diff TEXT NOT NULL DEFAULT '0',
			max_price_diff TEXT NOT NULL DEFAULT '0',
			min_funding_rate TEXT NOT NULL DEFAULT '0',
			max_basis_deviation TEXT NOT NULL DEFAULT '0',
			min_basis TEXT NOT NULL DEFAULT '0',
			position_size TEXT NOT NULL DEFAULT '0',
			max_position_size TEXT NOT NULL DEFAULT '0',
			execution_mode TEXT NOT NULL DEFAULT 'manual',
			stop_loss_pct TEXT NOT NULL DEFAULT '0',
			short_exit_threshold TEXT NOT NULL DEFAULT '0',
			long_exit_threshold TEXT NOT NULL DEFAULT '0',
			trailing_stop_enabled BOOLEAN NOT NULL DEFAULT FALSE,
			trailing_stop_activation_pct TEXT NOT NULL DEFAULT '0',
			trailing_stop_callback_pct TEXT NOT NULL DEFAULT '0',
			max_positions INTEGER NOT NULL DEFAULT 1,
			priority INTEGER NOT NULL DEFAULT 0,
			is_active BOOLEAN NOT NULL DEFAULT TRUE,
			notes TEXT NOT NULL DEFAULT '',
			updated_at TIMESTAMP NOT NULL,
			UNIQUE(symbol, exchange)
		)`,
		`CREATE TABLE IF NOT EXISTS funding_rates (
			id ` + pk + `,
			exchange TEXT NOT NULL,
			symbol TEXT NOT NULL,
			sample_timestamp_ms BIGINT NOT NULL,
			rate TEXT NOT NULL,
			next_funding_time TIMESTAMP NOT NULL,
			funding_interval_ms BIGINT NOT NULL,
			UNIQUE(exchange, symbol, sample_timestamp_ms)
		)`,
		`CREATE TABLE IF NOT EXISTS market_prices (
			id ` + pk + `,
			exchange TEXT NOT NULL,
			symbol TEXT NOT NULL,
			timestamp_ms BIGINT NOT NULL,
			spot_bid TEXT NOT NULL DEFAULT '0',
			spot_ask TEXT NOT NULL DEFAULT '0',
			spot_price TEXT NOT NULL DEFAULT '0',
			futures_bid TEXT NOT NULL DEFAULT '0',
			futures_ask TEXT NOT NULL DEFAULT '0',
			futures_price TEXT NOT NULL DEFAULT '0',
			maker_fee TEXT NOT NULL DEFAULT '0',
			taker_fee TEXT NOT NULL DEFAULT '0',
			UNIQUE(exchange, symbol, timestamp_ms)
		)`,
		`CREATE TABLE IF NOT EXISTS positions (
			id ` + pk + `,
			strategy TEXT NOT NULL,
			symbol TEXT NOT NULL,
			exchanges TEXT NOT NULL,
			entry_leg_prices TEXT NOT NULL DEFAULT '{}',
			entry_funding_rate TEXT NOT NULL DEFAULT '0',
			entry_expected_return TEXT NOT NULL DEFAULT '0',
			entry_direction TEXT NOT NULL DEFAULT '',
			size TEXT NOT NULL DEFAULT '0',
			current_pnl TEXT NOT NULL DEFAULT '0',
			realized_pnl TEXT NOT NULL DEFAULT '0',
			funding_collected TEXT NOT NULL DEFAULT '0',
			fees_paid TEXT NOT NULL DEFAULT '0',
			status TEXT NOT NULL,
			open_time TIMESTAMP NOT NULL,
			close_time TIMESTAMP,
			trailing_stop_activated BOOLEAN NOT NULL DEFAULT FALSE,
			best_price TEXT NOT NULL DEFAULT '0',
			activation_price TEXT NOT NULL DEFAULT '0',
			accrued_funding_instants TEXT NOT NULL DEFAULT '{}'
		)`,
		`CREATE TABLE IF NOT EXISTS orders (
			id ` + pk + `,
			position_id BIGINT NOT NULL DEFAULT 0,
			strategy_type TEXT NOT NULL DEFAULT '',
			exchange TEXT NOT NULL,
			symbol TEXT NOT NULL,
			side TEXT NOT NULL,
			type TEXT NOT NULL,
			price TEXT NOT NULL DEFAULT '0',
			amount TEXT NOT NULL DEFAULT '0',
			filled TEXT NOT NULL DEFAULT '0',
			status TEXT NOT NULL,
			venue_order_id TEXT NOT NULL DEFAULT '',
			fee_cost TEXT NOT NULL DEFAULT '0',
			fee_currency TEXT NOT NULL DEFAULT '',
			reduce_only BOOLEAN NOT NULL DEFAULT FALSE,
			create_time TIMESTAMP NOT NULL,
			update_time TIMESTAMP NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS risk_events (
			id ` + pk + `,
			severity TEXT NOT NULL,
			event_type TEXT NOT NULL,
			description TEXT NOT NULL DEFAULT '',
			position_id BIGINT NOT NULL DEFAULT 0,
			is_handled BOOLEAN NOT NULL DEFAULT FALSE,
			timestamp TIMESTAMP NOT NULL
		)`,
	}
}
