package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"short-options-loop/internal/domain"
	"short-options-loop/internal/storage"
)

// TradeStore implements storage.TradeStore using PostgreSQL.
type TradeStore struct {
	pool *Pool
}

// NewTradeStore creates a new TradeStore.
func NewTradeStore(pool *Pool) *TradeStore {
	return &TradeStore{pool: pool}
}

// Compile-time interface check.
var _ storage.TradeStore = (*TradeStore)(nil)

const tradeColumns = `
	trade_id, symbol, sector, strike, expiration, kind, contracts,
	entry_time, entry_premium, otm_pct, dte,
	exit_time, exit_premium, exit_reason,
	exit_volatility_index, exit_underlying_price, exit_regime,
	profit, profit_pct, days_held,
	config_version_id,
	entry_volatility_index, entry_underlying_price, entry_regime,
	experiment_id, experiment_arm, annotation, status`

// Insert adds a new trade. Returns ErrDuplicateKey if trade_id exists.
func (s *TradeStore) Insert(ctx context.Context, t *domain.Trade) error {
	query := `
		INSERT INTO trades (` + tradeColumns + `
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7,
			$8, $9, $10, $11,
			$12, $13, $14,
			$15, $16, $17,
			$18, $19, $20,
			$21,
			$22, $23, $24,
			$25, $26, $27, $28
		)
	`

	var exitVol, exitPrice *float64
	var exitRegime *string
	if t.ExitMarket != nil {
		exitVol = &t.ExitMarket.VolatilityIndex
		exitPrice = &t.ExitMarket.UnderlyingPrice
		exitRegime = &t.ExitMarket.Regime
	}
	exitReason := nullableString(t.ExitReason)

	_, err := s.pool.Exec(ctx, query,
		t.TradeID, t.Instrument.Symbol, t.Instrument.Sector, t.Instrument.Strike,
		t.Instrument.Expiration, string(t.Instrument.Kind), t.Contracts,
		t.EntryTime, t.EntryPremium, t.OTMPct, t.DTE,
		t.ExitTime, t.ExitPremium, exitReason,
		exitVol, exitPrice, exitRegime,
		t.Profit, t.ProfitPct, t.DaysHeld,
		t.ConfigVersionID,
		t.EntryMarket.VolatilityIndex, t.EntryMarket.UnderlyingPrice, t.EntryMarket.Regime,
		t.ExperimentID, nullableString(t.ExperimentArm), t.Annotation, t.Status,
	)
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("insert trade: %w", err)
	}
	return nil
}

// Finalize writes the exit fields of a closed trade exactly once. The guard
// on exit_time IS NULL makes a second finalization impossible regardless of
// caller interleaving.
func (s *TradeStore) Finalize(ctx context.Context, t *domain.Trade) error {
	if !t.IsClosed() {
		return fmt.Errorf("%w: trade %s has incomplete exit fields", storage.ErrInvalidInput, t.TradeID)
	}

	query := `
		UPDATE trades SET
			exit_time = $2,
			exit_premium = $3,
			exit_reason = $4,
			exit_volatility_index = $5,
			exit_underlying_price = $6,
			exit_regime = $7,
			profit = $8,
			profit_pct = $9,
			days_held = $10,
			status = $11
		WHERE trade_id = $1 AND exit_time IS NULL
	`

	tag, err := s.pool.Exec(ctx, query,
		t.TradeID, t.ExitTime, t.ExitPremium, t.ExitReason,
		t.ExitMarket.VolatilityIndex, t.ExitMarket.UnderlyingPrice, t.ExitMarket.Regime,
		t.Profit, t.ProfitPct, t.DaysHeld, domain.TradeStatusClosed,
	)
	if err != nil {
		return fmt.Errorf("finalize trade: %w", err)
	}
	if tag.RowsAffected() == 0 {
		if _, err := s.GetByID(ctx, t.TradeID); errors.Is(err, storage.ErrNotFound) {
			return storage.ErrNotFound
		}
		return storage.ErrAlreadyFinalized
	}
	return nil
}

// GetByID retrieves a trade by its ID. Returns ErrNotFound if not exists.
func (s *TradeStore) GetByID(ctx context.Context, tradeID string) (*domain.Trade, error) {
	query := `SELECT ` + tradeColumns + ` FROM trades WHERE trade_id = $1`

	row := s.pool.QueryRow(ctx, query, tradeID)
	t, err := scanTrade(row)
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get trade by id: %w", err)
	}
	return t, nil
}

// GetByStatus retrieves all trades in one lifecycle status.
func (s *TradeStore) GetByStatus(ctx context.Context, status string) ([]*domain.Trade, error) {
	query := `SELECT ` + tradeColumns + `
		FROM trades
		WHERE status = $1
		ORDER BY entry_time ASC, trade_id ASC`

	rows, err := s.pool.Query(ctx, query, status)
	if err != nil {
		return nil, fmt.Errorf("get trades by status: %w", err)
	}
	defer rows.Close()

	return scanTrades(rows)
}

// GetClosed retrieves closed trades with exit time within [start, end].
func (s *TradeStore) GetClosed(ctx context.Context, start, end time.Time) ([]*domain.Trade, error) {
	query := `SELECT ` + tradeColumns + `
		FROM trades
		WHERE exit_time IS NOT NULL AND exit_time >= $1 AND exit_time <= $2
		ORDER BY exit_time ASC, trade_id ASC`

	rows, err := s.pool.Query(ctx, query, start, end)
	if err != nil {
		return nil, fmt.Errorf("get closed trades: %w", err)
	}
	defer rows.Close()

	return scanTrades(rows)
}

// GetByExperiment retrieves all trades assigned to an experiment.
func (s *TradeStore) GetByExperiment(ctx context.Context, experimentID string) ([]*domain.Trade, error) {
	query := `SELECT ` + tradeColumns + `
		FROM trades
		WHERE experiment_id = $1
		ORDER BY entry_time ASC, trade_id ASC`

	rows, err := s.pool.Query(ctx, query, experimentID)
	if err != nil {
		return nil, fmt.Errorf("get trades by experiment: %w", err)
	}
	defer rows.Close()

	return scanTrades(rows)
}

// scanTrade scans a single row into a Trade.
func scanTrade(row pgx.Row) (*domain.Trade, error) {
	var t domain.Trade
	var kind string
	var exitReason, experimentArm *string
	var exitVol, exitPrice *float64
	var exitRegime *string

	err := row.Scan(
		&t.TradeID, &t.Instrument.Symbol, &t.Instrument.Sector, &t.Instrument.Strike,
		&t.Instrument.Expiration, &kind, &t.Contracts,
		&t.EntryTime, &t.EntryPremium, &t.OTMPct, &t.DTE,
		&t.ExitTime, &t.ExitPremium, &exitReason,
		&exitVol, &exitPrice, &exitRegime,
		&t.Profit, &t.ProfitPct, &t.DaysHeld,
		&t.ConfigVersionID,
		&t.EntryMarket.VolatilityIndex, &t.EntryMarket.UnderlyingPrice, &t.EntryMarket.Regime,
		&t.ExperimentID, &experimentArm, &t.Annotation, &t.Status,
	)
	if err != nil {
		return nil, err
	}

	t.Instrument.Kind = domain.OptionKind(kind)
	if exitReason != nil {
		t.ExitReason = *exitReason
	}
	if experimentArm != nil {
		t.ExperimentArm = *experimentArm
	}
	if exitVol != nil && exitPrice != nil && exitRegime != nil {
		t.ExitMarket = &domain.MarketSnapshot{
			VolatilityIndex: *exitVol,
			UnderlyingPrice: *exitPrice,
			Regime:          *exitRegime,
		}
	}
	return &t, nil
}

// scanTrades scans multiple rows into a slice of Trade.
func scanTrades(rows pgx.Rows) ([]*domain.Trade, error) {
	var trades []*domain.Trade

	for rows.Next() {
		t, err := scanTrade(rows)
		if err != nil {
			return nil, fmt.Errorf("scan trade row: %w", err)
		}
		trades = append(trades, t)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate trade rows: %w", err)
	}
	return trades, nil
}

// nullableString maps an empty string to SQL NULL.
func nullableString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
