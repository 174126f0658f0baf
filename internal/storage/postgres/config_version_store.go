package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"short-options-loop/internal/domain"
	"short-options-loop/internal/storage"
)

// ConfigVersionStore implements storage.ConfigVersionStore using PostgreSQL.
type ConfigVersionStore struct {
	pool *Pool
}

// NewConfigVersionStore creates a new ConfigVersionStore.
func NewConfigVersionStore(pool *Pool) *ConfigVersionStore {
	return &ConfigVersionStore{pool: pool}
}

// Compile-time interface check.
var _ storage.ConfigVersionStore = (*ConfigVersionStore)(nil)

const configVersionColumns = `
	version_id,
	otm_target_pct, dte_target, profit_target_pct, stop_loss_pct,
	max_position_notional, max_concurrent_positions,
	daily_loss_circuit_breaker_pct, max_symbol_exposure_pct,
	experiment_allocation_pct, min_samples_for_learning,
	significance_alpha, min_effect_size,
	created_at, source_event_id`

// Insert adds a new version. Returns ErrDuplicateKey if version_id exists.
func (s *ConfigVersionStore) Insert(ctx context.Context, v *domain.ConfigVersion) error {
	query := `
		INSERT INTO config_versions (` + configVersionColumns + `
		) VALUES (
			$1,
			$2, $3, $4, $5,
			$6, $7,
			$8, $9,
			$10, $11,
			$12, $13,
			$14, $15
		)
	`

	p := v.Params
	_, err := s.pool.Exec(ctx, query,
		v.VersionID,
		p.OTMTargetPct, p.DTETarget, p.ProfitTargetPct, p.StopLossPct,
		p.MaxPositionNotional, p.MaxConcurrentPositions,
		p.DailyLossCircuitBreakerPct, p.MaxSymbolExposurePct,
		p.ExperimentAllocationPct, p.MinSamplesForLearning,
		p.SignificanceAlpha, p.MinEffectSize,
		v.CreatedAt, v.SourceEventID,
	)
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("insert config version: %w", err)
	}
	return nil
}

// GetByID retrieves a version by its number. Returns ErrNotFound if not exists.
func (s *ConfigVersionStore) GetByID(ctx context.Context, versionID int64) (*domain.ConfigVersion, error) {
	query := `SELECT ` + configVersionColumns + ` FROM config_versions WHERE version_id = $1`

	row := s.pool.QueryRow(ctx, query, versionID)
	v, err := scanConfigVersion(row)
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get config version by id: %w", err)
	}
	return v, nil
}

// Latest retrieves the highest-numbered version.
func (s *ConfigVersionStore) Latest(ctx context.Context) (*domain.ConfigVersion, error) {
	query := `SELECT ` + configVersionColumns + `
		FROM config_versions
		ORDER BY version_id DESC
		LIMIT 1`

	row := s.pool.QueryRow(ctx, query)
	v, err := scanConfigVersion(row)
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get latest config version: %w", err)
	}
	return v, nil
}

// GetAll retrieves all versions ordered by version_id ASC.
func (s *ConfigVersionStore) GetAll(ctx context.Context) ([]*domain.ConfigVersion, error) {
	query := `SELECT ` + configVersionColumns + `
		FROM config_versions
		ORDER BY version_id ASC`

	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("get all config versions: %w", err)
	}
	defer rows.Close()

	var versions []*domain.ConfigVersion
	for rows.Next() {
		v, err := scanConfigVersion(rows)
		if err != nil {
			return nil, fmt.Errorf("scan config version row: %w", err)
		}
		versions = append(versions, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate config version rows: %w", err)
	}
	return versions, nil
}

// scanConfigVersion scans a single row into a ConfigVersion.
func scanConfigVersion(row pgx.Row) (*domain.ConfigVersion, error) {
	var v domain.ConfigVersion
	p := &v.Params

	err := row.Scan(
		&v.VersionID,
		&p.OTMTargetPct, &p.DTETarget, &p.ProfitTargetPct, &p.StopLossPct,
		&p.MaxPositionNotional, &p.MaxConcurrentPositions,
		&p.DailyLossCircuitBreakerPct, &p.MaxSymbolExposurePct,
		&p.ExperimentAllocationPct, &p.MinSamplesForLearning,
		&p.SignificanceAlpha, &p.MinEffectSize,
		&v.CreatedAt, &v.SourceEventID,
	)
	if err != nil {
		return nil, err
	}
	return &v, nil
}
