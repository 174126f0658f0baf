package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"short-options-loop/internal/domain"
	"short-options-loop/internal/storage"
)

// PatternStore implements storage.PatternStore using PostgreSQL.
type PatternStore struct {
	pool *Pool
}

// NewPatternStore creates a new PatternStore.
func NewPatternStore(pool *Pool) *PatternStore {
	return &PatternStore{pool: pool}
}

// Compile-time interface check.
var _ storage.PatternStore = (*PatternStore)(nil)

const patternColumns = `
	pattern_id, dimension, bucket, sample_size, win_rate, avg_roi,
	confidence, p_value, effect_size, status, detected_at, updated_at`

// Insert adds a new pattern. Returns ErrDuplicateKey if pattern_id exists.
func (s *PatternStore) Insert(ctx context.Context, p *domain.Pattern) error {
	query := `
		INSERT INTO patterns (` + patternColumns + `
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`

	_, err := s.pool.Exec(ctx, query,
		p.PatternID, p.Dimension, p.Bucket, p.SampleSize, p.WinRate, p.AvgROI,
		p.Confidence, p.PValue, p.EffectSize, p.Status, p.DetectedAt, p.UpdatedAt,
	)
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("insert pattern: %w", err)
	}
	return nil
}

// GetByID retrieves a pattern by its ID. Returns ErrNotFound if not exists.
func (s *PatternStore) GetByID(ctx context.Context, patternID string) (*domain.Pattern, error) {
	query := `SELECT ` + patternColumns + ` FROM patterns WHERE pattern_id = $1`

	row := s.pool.QueryRow(ctx, query, patternID)
	p, err := scanPattern(row)
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get pattern by id: %w", err)
	}
	return p, nil
}

// GetActive retrieves all active patterns ordered by detected_at ASC.
func (s *PatternStore) GetActive(ctx context.Context) ([]*domain.Pattern, error) {
	query := `SELECT ` + patternColumns + `
		FROM patterns
		WHERE status = $1
		ORDER BY detected_at ASC, pattern_id ASC`

	rows, err := s.pool.Query(ctx, query, domain.PatternStatusActive)
	if err != nil {
		return nil, fmt.Errorf("get active patterns: %w", err)
	}
	defer rows.Close()

	return scanPatterns(rows)
}

// GetByDimension retrieves all patterns for a dimension, any status.
func (s *PatternStore) GetByDimension(ctx context.Context, dimension string) ([]*domain.Pattern, error) {
	query := `SELECT ` + patternColumns + `
		FROM patterns
		WHERE dimension = $1
		ORDER BY detected_at ASC, pattern_id ASC`

	rows, err := s.pool.Query(ctx, query, dimension)
	if err != nil {
		return nil, fmt.Errorf("get patterns by dimension: %w", err)
	}
	defer rows.Close()

	return scanPatterns(rows)
}

// UpdateStatus transitions a pattern's lifecycle status.
func (s *PatternStore) UpdateStatus(ctx context.Context, patternID, status string) error {
	query := `UPDATE patterns SET status = $2, updated_at = $3 WHERE pattern_id = $1`

	tag, err := s.pool.Exec(ctx, query, patternID, status, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("update pattern status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// scanPattern scans a single row into a Pattern.
func scanPattern(row pgx.Row) (*domain.Pattern, error) {
	var p domain.Pattern

	err := row.Scan(
		&p.PatternID, &p.Dimension, &p.Bucket, &p.SampleSize, &p.WinRate, &p.AvgROI,
		&p.Confidence, &p.PValue, &p.EffectSize, &p.Status, &p.DetectedAt, &p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// scanPatterns scans multiple rows into a slice of Pattern.
func scanPatterns(rows pgx.Rows) ([]*domain.Pattern, error) {
	var patterns []*domain.Pattern

	for rows.Next() {
		p, err := scanPattern(rows)
		if err != nil {
			return nil, fmt.Errorf("scan pattern row: %w", err)
		}
		patterns = append(patterns, p)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate pattern rows: %w", err)
	}
	return patterns, nil
}
