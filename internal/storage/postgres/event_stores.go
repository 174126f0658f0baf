package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"short-options-loop/internal/domain"
	"short-options-loop/internal/storage"
)

// LearningEventStore implements storage.LearningEventStore using PostgreSQL.
// The table is append-only; no update path exists.
type LearningEventStore struct {
	pool *Pool
}

// NewLearningEventStore creates a new LearningEventStore.
func NewLearningEventStore(pool *Pool) *LearningEventStore {
	return &LearningEventStore{pool: pool}
}

// Compile-time interface check.
var _ storage.LearningEventStore = (*LearningEventStore)(nil)

// Insert adds a new event. Returns ErrDuplicateKey if event_id exists.
func (s *LearningEventStore) Insert(ctx context.Context, e *domain.LearningEvent) error {
	query := `
		INSERT INTO learning_events (
			event_id, event_type, parameter, before_value, after_value,
			justification, ref_id, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`

	_, err := s.pool.Exec(ctx, query,
		e.EventID, e.EventType, e.Parameter, e.BeforeValue, e.AfterValue,
		e.Justification, e.RefID, e.CreatedAt,
	)
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("insert learning event: %w", err)
	}
	return nil
}

// GetByTimeRange retrieves events created within [start, end].
func (s *LearningEventStore) GetByTimeRange(ctx context.Context, start, end time.Time) ([]*domain.LearningEvent, error) {
	query := `
		SELECT event_id, event_type, parameter, before_value, after_value,
			justification, ref_id, created_at
		FROM learning_events
		WHERE created_at >= $1 AND created_at <= $2
		ORDER BY created_at ASC, event_id ASC
	`

	rows, err := s.pool.Query(ctx, query, start, end)
	if err != nil {
		return nil, fmt.Errorf("get learning events by time range: %w", err)
	}
	defer rows.Close()

	return scanLearningEvents(rows)
}

// GetByType retrieves all events of one type.
func (s *LearningEventStore) GetByType(ctx context.Context, eventType string) ([]*domain.LearningEvent, error) {
	query := `
		SELECT event_id, event_type, parameter, before_value, after_value,
			justification, ref_id, created_at
		FROM learning_events
		WHERE event_type = $1
		ORDER BY created_at ASC, event_id ASC
	`

	rows, err := s.pool.Query(ctx, query, eventType)
	if err != nil {
		return nil, fmt.Errorf("get learning events by type: %w", err)
	}
	defer rows.Close()

	return scanLearningEvents(rows)
}

func scanLearningEvents(rows pgx.Rows) ([]*domain.LearningEvent, error) {
	var events []*domain.LearningEvent

	for rows.Next() {
		var e domain.LearningEvent
		err := rows.Scan(
			&e.EventID, &e.EventType, &e.Parameter, &e.BeforeValue, &e.AfterValue,
			&e.Justification, &e.RefID, &e.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan learning event row: %w", err)
		}
		events = append(events, &e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate learning event rows: %w", err)
	}
	return events, nil
}

// RiskEventStore implements storage.RiskEventStore using PostgreSQL.
type RiskEventStore struct {
	pool *Pool
}

// NewRiskEventStore creates a new RiskEventStore.
func NewRiskEventStore(pool *Pool) *RiskEventStore {
	return &RiskEventStore{pool: pool}
}

// Compile-time interface check.
var _ storage.RiskEventStore = (*RiskEventStore)(nil)

// Insert adds a new event. Returns ErrDuplicateKey if event_id exists.
func (s *RiskEventStore) Insert(ctx context.Context, e *domain.RiskEvent) error {
	query := `
		INSERT INTO risk_events (
			event_id, trade_id, "check", reason, observed, "limit", created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7)
	`

	_, err := s.pool.Exec(ctx, query,
		e.EventID, e.TradeID, e.Check, e.Reason, e.Observed, e.Limit, e.CreatedAt,
	)
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("insert risk event: %w", err)
	}
	return nil
}

// GetByTimeRange retrieves events created within [start, end].
func (s *RiskEventStore) GetByTimeRange(ctx context.Context, start, end time.Time) ([]*domain.RiskEvent, error) {
	query := `
		SELECT event_id, trade_id, "check", reason, observed, "limit", created_at
		FROM risk_events
		WHERE created_at >= $1 AND created_at <= $2
		ORDER BY created_at ASC, event_id ASC
	`

	rows, err := s.pool.Query(ctx, query, start, end)
	if err != nil {
		return nil, fmt.Errorf("get risk events by time range: %w", err)
	}
	defer rows.Close()

	var events []*domain.RiskEvent
	for rows.Next() {
		var e domain.RiskEvent
		err := rows.Scan(&e.EventID, &e.TradeID, &e.Check, &e.Reason, &e.Observed, &e.Limit, &e.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("scan risk event row: %w", err)
		}
		events = append(events, &e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate risk event rows: %w", err)
	}
	return events, nil
}

// CountByCheckSince counts events for one check since a cutoff.
func (s *RiskEventStore) CountByCheckSince(ctx context.Context, check string, since time.Time) (int, error) {
	query := `SELECT COUNT(*) FROM risk_events WHERE "check" = $1 AND created_at >= $2`

	var count int
	if err := s.pool.QueryRow(ctx, query, check, since).Scan(&count); err != nil {
		return 0, fmt.Errorf("count risk events: %w", err)
	}
	return count, nil
}
