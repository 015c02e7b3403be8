// Package store provides the relational persistence backing for
// core.Store, in two flavours: sqlite (single-node, WAL mode) and
// postgres (via pgx). Both share sqlStore's query logic; only schema
// bootstrap and placeholder syntax differ, captured by the dialect type.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"fundingarb/internal/core"
)

type sqlStore struct {
	db *sql.DB
	d  dialect
}

func newSQLStore(db *sql.DB, d dialect) (*sqlStore, error) {
	for _, stmt := range schema(d) {
		if _, err := db.Exec(stmt); err != nil {
			return nil, fmt.Errorf("store: create schema (%s): %w", d.name(), err)
		}
	}
	return &sqlStore{db: db, d: d}, nil
}

func (s *sqlStore) q(query string) string { return rebind(query, s.d) }

func (s *sqlStore) Close() error { return s.db.Close() }

// insertReturningID runs an INSERT and returns the generated id. Postgres's
// database/sql driver has no LastInsertId support, so on that dialect the
// query gets a RETURNING id clause and a QueryRow instead of an Exec.
func (s *sqlStore) insertReturningID(ctx context.Context, query string, args ...interface{}) (int64, error) {
	if _, ok := s.d.(postgresDialect); ok {
		var id int64
		err := s.db.QueryRowContext(ctx, s.q(query+" RETURNING id"), args...).Scan(&id)
		return id, err
	}
	res, err := s.db.ExecContext(ctx, s.q(query), args...)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// --- market data -----------------------------------------------------

func (s *sqlStore) UpsertMarketPrice(ctx context.Context, rec core.MarketPriceRecord) error {
	query := s.q(`INSERT INTO market_prices
		(exchange, symbol, timestamp_ms, spot_bid, spot_ask, spot_price, futures_bid, futures_ask, futures_price, maker_fee, taker_fee)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?) ` +
		s.d.upsertSuffix("exchange, symbol, timestamp_ms", []string{
			"spot_bid", "spot_ask", "spot_price", "futures_bid", "futures_ask", "futures_price", "maker_fee", "taker_fee",
		}))
	_, err := s.db.ExecContext(ctx, query,
		rec.Exchange, rec.Symbol, rec.TimestampMs,
		dec(rec.SpotBid), dec(rec.SpotAsk), dec(rec.SpotPrice),
		dec(rec.FuturesBid), dec(rec.FuturesAsk), dec(rec.FuturesPrice),
		dec(rec.MakerFee), dec(rec.TakerFee),
	)
	return err
}

func (s *sqlStore) UpsertFundingRate(ctx context.Context, rec core.FundingRateRecord) error {
	query := s.q(`INSERT INTO funding_rates
		(exchange, symbol, sample_timestamp_ms, rate, next_funding_time, funding_interval_ms)
		VALUES (?, ?, ?, ?, ?, ?) ` +
		s.d.upsertSuffix("exchange, symbol, sample_timestamp_ms", []string{
			"rate", "next_funding_time", "funding_interval_ms",
		}))
	_, err := s.db.ExecContext(ctx, query,
		rec.Exchange, rec.Symbol, rec.SampleTimestampMs,
		dec(rec.Rate), rec.NextFundingTime, rec.FundingIntervalMs,
	)
	return err
}

func (s *sqlStore) RecentMarketPrices(ctx context.Context, since time.Time) ([]core.MarketPriceRecord, error) {
	rows, err := s.db.QueryContext(ctx, s.q(`SELECT exchange, symbol, timestamp_ms, spot_bid, spot_ask, spot_price,
		futures_bid, futures_ask, futures_price, maker_fee, taker_fee
		FROM market_prices WHERE timestamp_ms >= ? ORDER BY timestamp_ms DESC`), since.UnixMilli())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []core.MarketPriceRecord
	for rows.Next() {
		var rec core.MarketPriceRecord
		var spotBid, spotAsk, spotPrice, futBid, futAsk, futPrice, maker, taker string
		if err := rows.Scan(&rec.Exchange, &rec.Symbol, &rec.TimestampMs, &spotBid, &spotAsk, &spotPrice,
			&futBid, &futAsk, &futPrice, &maker, &taker); err != nil {
			return nil, err
		}
		rec.SpotBid, rec.SpotAsk, rec.SpotPrice = parseDec(spotBid), parseDec(spotAsk), parseDec(spotPrice)
		rec.FuturesBid, rec.FuturesAsk, rec.FuturesPrice = parseDec(futBid), parseDec(futAsk), parseDec(futPrice)
		rec.MakerFee, rec.TakerFee = parseDec(maker), parseDec(taker)
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (s *sqlStore) RecentFundingRates(ctx context.Context, since time.Time) ([]core.FundingRateRecord, error) {
	rows, err := s.db.QueryContext(ctx, s.q(`SELECT exchange, symbol, sample_timestamp_ms, rate, next_funding_time, funding_interval_ms
		FROM funding_rates WHERE sample_timestamp_ms >= ? ORDER BY sample_timestamp_ms DESC`), since.UnixMilli())
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanFundingRates(rows)
}

func (s *sqlStore) FundingRateHistory(ctx context.Context, exchange, symbol string, since, until time.Time) ([]core.FundingRateRecord, error) {
	rows, err := s.db.QueryContext(ctx, s.q(`SELECT exchange, symbol, sample_timestamp_ms, rate, next_funding_time, funding_interval_ms
		FROM funding_rates WHERE exchange = ? AND symbol = ? AND sample_timestamp_ms BETWEEN ? AND ?
		ORDER BY sample_timestamp_ms ASC`), exchange, symbol, since.UnixMilli(), until.UnixMilli())
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanFundingRates(rows)
}

func scanFundingRates(rows *sql.Rows) ([]core.FundingRateRecord, error) {
	var out []core.FundingRateRecord
	for rows.Next() {
		var rec core.FundingRateRecord
		var rate string
		if err := rows.Scan(&rec.Exchange, &rec.Symbol, &rec.SampleTimestampMs, &rate, &rec.NextFundingTime, &rec.FundingIntervalMs); err != nil {
			return nil, err
		}
		rec.Rate = parseDec(rate)
		out = append(out, rec)
	}
	return out, rows.Err()
}

// --- config ------------------------------------------------------------

func (s *sqlStore) GetConfigEntry(ctx context.Context, category, key string) (*core.ConfigEntry, error) {
	row := s.db.QueryRowContext(ctx, s.q(`SELECT id, category, key, value, is_hot_reload, description, updated_at
		FROM config WHERE category = ? AND key = ?`), category, key)
	var e core.ConfigEntry
	if err := row.Scan(&e.ID, &e.Category, &e.Key, &e.Value, &e.IsHotReload, &e.Description, &e.UpdatedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return &e, nil
}

func (s *sqlStore) ListConfigEntries(ctx context.Context) ([]core.ConfigEntry, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, category, key, value, is_hot_reload, description, updated_at FROM config`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []core.ConfigEntry
	for rows.Next() {
		var e core.ConfigEntry
		if err := rows.Scan(&e.ID, &e.Category, &e.Key, &e.Value, &e.IsHotReload, &e.Description, &e.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *sqlStore) UpsertConfigEntry(ctx context.Context, entry core.ConfigEntry) error {
	query := s.q(`INSERT INTO config (category, key, value, is_hot_reload, description, updated_at)
		VALUES (?, ?, ?, ?, ?, ?) ` +
		s.d.upsertSuffix("category, key", []string{"value", "is_hot_reload", "description", "updated_at"}))
	_, err := s.db.ExecContext(ctx, query, entry.Category, entry.Key, entry.Value, entry.IsHotReload, entry.Description, entry.UpdatedAt)
	return err
}

// --- trading pair configs -----------------------------------------------

func (s *sqlStore) GetTradingPairConfig(ctx context.Context, symbol, exchange string) (*core.TradingPairConfig, error) {
	row := s.db.QueryRowContext(ctx, s.q(tradingPairSelect+` WHERE symbol = ? AND exchange = ?`), symbol, exchange)
	cfg, err := scanTradingPairConfig(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return cfg, err
}

func (s *sqlStore) ListTradingPairConfigs(ctx context.Context) ([]core.TradingPairConfig, error) {
	rows, err := s.db.QueryContext(ctx, tradingPairSelect)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []core.TradingPairConfig
	for rows.Next() {
		cfg, err := scanTradingPairConfig(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *cfg)
	}
	return out, rows.Err()
}

const tradingPairSelect = `SELECT id, symbol, exchange, min_funding_diff, max_price_diff, min_funding_rate,
	max_basis_deviation, min_basis, position_size, max_position_size, execution_mode, stop_loss_pct,
	short_exit_threshold, long_exit_threshold, trailing_stop_enabled, trailing_stop_activation_pct,
	trailing_stop_callback_pct, max_positions, priority, is_active, notes, updated_at
	FROM trading_pair_configs`

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanTradingPairConfig(row scanner) (*core.TradingPairConfig, error) {
	var cfg core.TradingPairConfig
	var minFundingDiff, maxPriceDiff, minFundingRate, maxBasisDeviation, minBasis, posSize, maxPosSize string
	var stopLoss, shortExit, longExit, activationPct, callbackPct string
	var execMode string
	if err := row.Scan(&cfg.ID, &cfg.Symbol, &cfg.Exchange, &minFundingDiff, &maxPriceDiff, &minFundingRate,
		&maxBasisDeviation, &minBasis, &posSize, &maxPosSize, &execMode, &stopLoss,
		&shortExit, &longExit, &cfg.TrailingStop.Enabled, &activationPct,
		&callbackPct, &cfg.MaxPositions, &cfg.Priority, &cfg.IsActive, &cfg.Notes, &cfg.UpdatedAt); err != nil {
		return nil, err
	}
	cfg.MinFundingDiff, cfg.MaxPriceDiff, cfg.MinFundingRate = parseDec(minFundingDiff), parseDec(maxPriceDiff), parseDec(minFundingRate)
	cfg.MaxBasisDeviation, cfg.MinBasis = parseDec(maxBasisDeviation), parseDec(minBasis)
	cfg.PositionSize, cfg.MaxPositionSize = parseDec(posSize), parseDec(maxPosSize)
	cfg.ExecutionMode = core.ExecutionMode(execMode)
	cfg.StopLossPct, cfg.ShortExitThreshold, cfg.LongExitThreshold = parseDec(stopLoss), parseDec(shortExit), parseDec(longExit)
	cfg.TrailingStop.ActivationPct, cfg.TrailingStop.CallbackPct = parseDec(activationPct), parseDec(callbackPct)
	return &cfg, nil
}

func (s *sqlStore) UpsertTradingPairConfig(ctx context.Context, cfg core.TradingPairConfig) error {
	query := s.q(`INSERT INTO trading_pair_configs
		(symbol, exchange, min_funding_diff, max_price_diff, min_funding_rate, max_basis_deviation, min_basis,
		 position_size, max_position_size, execution_mode, stop_loss_pct, short_exit_threshold, long_exit_threshold,
		 trailing_stop_enabled, trailing_stop_activation_pct, trailing_stop_callback_pct, max_positions, priority,
		 is_active, notes, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?) ` +
		s.d.upsertSuffix("symbol, exchange", []string{
			"min_funding_diff", "max_price_diff", "min_funding_rate", "max_basis_deviation", "min_basis",
			"position_size", "max_position_size", "execution_mode", "stop_loss_pct", "short_exit_threshold",
			"long_exit_threshold", "trailing_stop_enabled", "trailing_stop_activation_pct", "trailing_stop_callback_pct",
			"max_positions", "priority", "is_active", "notes", "updated_at",
		}))
	_, err := s.db.ExecContext(ctx, query,
		cfg.Symbol, cfg.Exchange, dec(cfg.MinFundingDiff), dec(cfg.MaxPriceDiff), dec(cfg.MinFundingRate),
		dec(cfg.MaxBasisDeviation), dec(cfg.MinBasis), dec(cfg.PositionSize), dec(cfg.MaxPositionSize),
		string(cfg.ExecutionMode), dec(cfg.StopLossPct), dec(cfg.ShortExitThreshold), dec(cfg.LongExitThreshold),
		cfg.TrailingStop.Enabled, dec(cfg.TrailingStop.ActivationPct), dec(cfg.TrailingStop.CallbackPct),
		cfg.MaxPositions, cfg.Priority, cfg.IsActive, cfg.Notes, cfg.UpdatedAt,
	)
	return err
}

// --- exchange accounts ---------------------------------------------------

func (s *sqlStore) ListActiveExchangeAccounts(ctx context.Context) ([]core.ExchangeAccount, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, exchange_name, api_key, api_secret, passphrase, is_active, created_at
		FROM exchange_accounts WHERE is_active = true`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []core.ExchangeAccount
	for rows.Next() {
		var acc core.ExchangeAccount
		if err := rows.Scan(&acc.ID, &acc.ExchangeName, &acc.APIKey, &acc.APISecret, &acc.Passphrase, &acc.IsActive, &acc.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, acc)
	}
	return out, rows.Err()
}

func (s *sqlStore) UpsertExchangeAccount(ctx context.Context, acc core.ExchangeAccount) error {
	query := s.q(`INSERT INTO exchange_accounts (exchange_name, api_key, api_secret, passphrase, is_active, created_at)
		VALUES (?, ?, ?, ?, ?, ?) ` +
		s.d.upsertSuffix("exchange_name", []string{"api_key", "api_secret", "passphrase", "is_active"}))
	_, err := s.db.ExecContext(ctx, query, acc.ExchangeName, acc.APIKey, acc.APISecret, acc.Passphrase, acc.IsActive, acc.CreatedAt)
	return err
}

// --- positions -----------------------------------------------------------

func (s *sqlStore) InsertPosition(ctx context.Context, p *core.Position) (int64, error) {
	exchanges, err := json.Marshal(p.Exchanges)
	if err != nil {
		return 0, err
	}
	legPrices, err := json.Marshal(decimalMap(p.Entry.LegPrices))
	if err != nil {
		return 0, err
	}
	accrued, err := json.Marshal(p.AccruedFundingInstants)
	if err != nil {
		return 0, err
	}

	query := `INSERT INTO positions
		(strategy, symbol, exchanges, entry_leg_prices, entry_funding_rate, entry_expected_return, entry_direction,
		 size, current_pnl, realized_pnl, funding_collected, fees_paid, status, open_time, close_time,
		 trailing_stop_activated, best_price, activation_price, accrued_funding_instants)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	return s.insertReturningID(ctx, query,
		string(p.Strategy), p.Symbol, string(exchanges), string(legPrices),
		dec(p.Entry.FundingRate), dec(p.Entry.ExpectedReturn), string(p.Entry.Direction),
		dec(p.Size), dec(p.CurrentPnL), dec(p.RealizedPnL), dec(p.FundingCollected), dec(p.FeesPaid),
		string(p.Status), p.OpenTime, nullTime(p.CloseTime),
		p.TrailingStopActivated, dec(p.BestPrice), dec(p.ActivationPrice), string(accrued),
	)
}

func (s *sqlStore) UpdatePosition(ctx context.Context, p core.Position) error {
	exchanges, err := json.Marshal(p.Exchanges)
	if err != nil {
		return err
	}
	legPrices, err := json.Marshal(decimalMap(p.Entry.LegPrices))
	if err != nil {
		return err
	}
	accrued, err := json.Marshal(p.AccruedFundingInstants)
	if err != nil {
		return err
	}

	query := s.q(`UPDATE positions SET strategy = ?, symbol = ?, exchanges = ?, entry_leg_prices = ?,
		entry_funding_rate = ?, entry_expected_return = ?, entry_direction = ?, size = ?, current_pnl = ?,
		realized_pnl = ?, funding_collected = ?, fees_paid = ?, status = ?, open_time = ?, close_time = ?,
		trailing_stop_activated = ?, best_price = ?, activation_price = ?, accrued_funding_instants = ?
		WHERE id = ?`)
	_, err = s.db.ExecContext(ctx, query,
		string(p.Strategy), p.Symbol, string(exchanges), string(legPrices),
		dec(p.Entry.FundingRate), dec(p.Entry.ExpectedReturn), string(p.Entry.Direction),
		dec(p.Size), dec(p.CurrentPnL), dec(p.RealizedPnL), dec(p.FundingCollected), dec(p.FeesPaid),
		string(p.Status), p.OpenTime, nullTime(p.CloseTime),
		p.TrailingStopActivated, dec(p.BestPrice), dec(p.ActivationPrice), string(accrued),
		p.ID,
	)
	return err
}

const positionSelect = `SELECT id, strategy, symbol, exchanges, entry_leg_prices, entry_funding_rate,
	entry_expected_return, entry_direction, size, current_pnl, realized_pnl, funding_collected, fees_paid,
	status, open_time, close_time, trailing_stop_activated, best_price, activation_price, accrued_funding_instants
	FROM positions`

func (s *sqlStore) GetPosition(ctx context.Context, id int64) (*core.Position, error) {
	row := s.db.QueryRowContext(ctx, s.q(positionSelect+` WHERE id = ?`), id)
	p, err := scanPosition(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return p, err
}

func (s *sqlStore) ListOpenPositions(ctx context.Context) ([]core.Position, error) {
	rows, err := s.db.QueryContext(ctx, s.q(positionSelect+` WHERE status IN (?, ?)`), string(core.PositionOpen), string(core.PositionEmergencyClosePending))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanPositions(rows)
}

func (s *sqlStore) ListPositions(ctx context.Context) ([]core.Position, error) {
	rows, err := s.db.QueryContext(ctx, positionSelect+` ORDER BY open_time DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanPositions(rows)
}

func scanPositions(rows *sql.Rows) ([]core.Position, error) {
	var out []core.Position
	for rows.Next() {
		p, err := scanPosition(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *p)
	}
	return out, rows.Err()
}

func scanPosition(row scanner) (*core.Position, error) {
	var p core.Position
	var strategy, exchanges, legPrices, fundingRate, expectedReturn, direction string
	var size, currentPnL, realizedPnL, fundingCollected, feesPaid string
	var status string
	var closeTime sql.NullTime
	var bestPrice, activationPrice, accrued string

	if err := row.Scan(&p.ID, &strategy, &p.Symbol, &exchanges, &legPrices, &fundingRate,
		&expectedReturn, &direction, &size, &currentPnL, &realizedPnL, &fundingCollected, &feesPaid,
		&status, &p.OpenTime, &closeTime, &p.TrailingStopActivated, &bestPrice, &activationPrice, &accrued); err != nil {
		return nil, err
	}

	p.Strategy = core.StrategyTag(strategy)
	p.Status = core.PositionStatus(status)
	if err := json.Unmarshal([]byte(exchanges), &p.Exchanges); err != nil {
		return nil, fmt.Errorf("store: decode position exchanges: %w", err)
	}
	var legPricesRaw map[string]string
	if err := json.Unmarshal([]byte(legPrices), &legPricesRaw); err != nil {
		return nil, fmt.Errorf("store: decode position entry_leg_prices: %w", err)
	}
	p.Entry.LegPrices = make(map[string]decimal.Decimal, len(legPricesRaw))
	for k, v := range legPricesRaw {
		p.Entry.LegPrices[k] = parseDec(v)
	}
	p.Entry.FundingRate = parseDec(fundingRate)
	p.Entry.ExpectedReturn = parseDec(expectedReturn)
	p.Entry.Direction = core.Direction(direction)
	p.Size, p.CurrentPnL, p.RealizedPnL = parseDec(size), parseDec(currentPnL), parseDec(realizedPnL)
	p.FundingCollected, p.FeesPaid = parseDec(fundingCollected), parseDec(feesPaid)
	if closeTime.Valid {
		p.CloseTime = closeTime.Time
	}
	p.BestPrice, p.ActivationPrice = parseDec(bestPrice), parseDec(activationPrice)
	if err := json.Unmarshal([]byte(accrued), &p.AccruedFundingInstants); err != nil {
		return nil, fmt.Errorf("store: decode accrued_funding_instants: %w", err)
	}
	return &p, nil
}

// --- orders ----------------------------------------------------------------

func (s *sqlStore) InsertOrder(ctx context.Context, o *core.Order) (int64, error) {
	query := `INSERT INTO orders
		(position_id, strategy_type, exchange, symbol, side, type, price, amount, filled, status,
		 venue_order_id, fee_cost, fee_currency, reduce_only, create_time, update_time)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	return s.insertReturningID(ctx, query,
		o.StrategyID, string(o.StrategyType), o.Exchange, o.Symbol, string(o.Side), string(o.Type),
		dec(o.Price), dec(o.Amount), dec(o.Filled), string(o.Status),
		o.VenueOrderID, dec(o.FeeCost), o.FeeCurrency, o.ReduceOnly, o.CreateTime, o.UpdateTime,
	)
}

func (s *sqlStore) UpdateOrder(ctx context.Context, o core.Order) error {
	query := s.q(`UPDATE orders SET position_id = ?, strategy_type = ?, exchange = ?, symbol = ?, side = ?,
		type = ?, price = ?, amount = ?, filled = ?, status = ?, venue_order_id = ?, fee_cost = ?,
		fee_currency = ?, reduce_only = ?, update_time = ? WHERE id = ?`)
	_, err := s.db.ExecContext(ctx, query,
		o.StrategyID, string(o.StrategyType), o.Exchange, o.Symbol, string(o.Side), string(o.Type),
		dec(o.Price), dec(o.Amount), dec(o.Filled), string(o.Status), o.VenueOrderID, dec(o.FeeCost),
		o.FeeCurrency, o.ReduceOnly, o.UpdateTime, o.ID,
	)
	return err
}

const orderSelect = `SELECT id, position_id, strategy_type, exchange, symbol, side, type, price, amount,
	filled, status, venue_order_id, fee_cost, fee_currency, reduce_only, create_time, update_time FROM orders`

func (s *sqlStore) ListOrdersByStatus(ctx context.Context, statuses ...core.OrderStatus) ([]core.Order, error) {
	if len(statuses) == 0 {
		return nil, nil
	}
	placeholders := ""
	args := make([]interface{}, len(statuses))
	for i, st := range statuses {
		if i > 0 {
			placeholders += ", "
		}
		placeholders += "?"
		args[i] = string(st)
	}
	rows, err := s.db.QueryContext(ctx, s.q(orderSelect+` WHERE status IN (`+placeholders+`)`), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanOrders(rows)
}

func (s *sqlStore) ListOrdersForPosition(ctx context.Context, positionID int64) ([]core.Order, error) {
	rows, err := s.db.QueryContext(ctx, s.q(orderSelect+` WHERE position_id = ? ORDER BY create_time ASC`), positionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanOrders(rows)
}

func scanOrders(rows *sql.Rows) ([]core.Order, error) {
	var out []core.Order
	for rows.Next() {
		var o core.Order
		var strategyType, side, typ, status string
		var price, amount, filled, feeCost string
		if err := rows.Scan(&o.ID, &o.StrategyID, &strategyType, &o.Exchange, &o.Symbol, &side, &typ,
			&price, &amount, &filled, &status, &o.VenueOrderID, &feeCost, &o.FeeCurrency, &o.ReduceOnly,
			&o.CreateTime, &o.UpdateTime); err != nil {
			return nil, err
		}
		o.StrategyType = core.StrategyTag(strategyType)
		o.Side, o.Type, o.Status = core.OrderSide(side), core.OrderType(typ), core.OrderStatus(status)
		o.Price, o.Amount, o.Filled, o.FeeCost = parseDec(price), parseDec(amount), parseDec(filled), parseDec(feeCost)
		out = append(out, o)
	}
	return out, rows.Err()
}

// --- risk events -------------------------------------------------------

func (s *sqlStore) InsertRiskEvent(ctx context.Context, e *core.RiskEvent) (int64, error) {
	query := `INSERT INTO risk_events (severity, event_type, description, position_id, is_handled, timestamp)
		VALUES (?, ?, ?, ?, ?, ?)`
	return s.insertReturningID(ctx, query, string(e.Severity), e.EventType, e.Description, e.PositionID, e.IsHandled, e.Timestamp)
}

func (s *sqlStore) ListUnhandledRiskEvents(ctx context.Context) ([]core.RiskEvent, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, severity, event_type, description, position_id, is_handled, timestamp
		FROM risk_events WHERE is_handled = false ORDER BY timestamp DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []core.RiskEvent
	for rows.Next() {
		var e core.RiskEvent
		var severity string
		if err := rows.Scan(&e.ID, &severity, &e.EventType, &e.Description, &e.PositionID, &e.IsHandled, &e.Timestamp); err != nil {
			return nil, err
		}
		e.Severity = core.RiskSeverity(severity)
		out = append(out, e)
	}
	return out, rows.Err()
}

// --- decimal/json helpers -----------------------------------------------

func dec(d decimal.Decimal) string { return d.String() }

func parseDec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}

func decimalMap(m map[string]decimal.Decimal) map[string]string {
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v.String()
	}
	return out
}

func nullTime(t time.Time) interface{} {
	if t.IsZero() {
		return nil
	}
	return t
}
