package storage

import (
	"context"
	"time"

	"short-options-loop/internal/domain"
)

// TradeStore provides access to the trade ledger.
type TradeStore interface {
	// Insert adds a new trade. Returns ErrDuplicateKey if trade_id exists.
	Insert(ctx context.Context, t *domain.Trade) error

	// Finalize writes the exit fields and derived profit fields of a closed
	// trade exactly once. Returns ErrNotFound if the trade does not exist,
	// ErrAlreadyFinalized if exit fields were already written, and
	// ErrInvalidInput if the trade's exit fields are not all set.
	Finalize(ctx context.Context, t *domain.Trade) error

	// GetByID retrieves a trade by its ID. Returns ErrNotFound if not exists.
	GetByID(ctx context.Context, tradeID string) (*domain.Trade, error)

	// GetByStatus retrieves all trades in a lifecycle status, ordered by
	// entry time ASC.
	GetByStatus(ctx context.Context, status string) ([]*domain.Trade, error)

	// GetClosed retrieves closed trades with exit time within [start, end],
	// ordered by exit time ASC, trade_id ASC. Batch jobs read only through
	// this method, so a trade becomes visible to learning only after
	// Finalize committed.
	GetClosed(ctx context.Context, start, end time.Time) ([]*domain.Trade, error)

	// GetByExperiment retrieves all trades assigned to an experiment.
	GetByExperiment(ctx context.Context, experimentID string) ([]*domain.Trade, error)
}

// ConfigVersionStore provides access to strategy configuration history.
// Versions are append-only; no existing version's parameters ever change.
type ConfigVersionStore interface {
	// Insert adds a new version. Returns ErrDuplicateKey if version_id exists.
	Insert(ctx context.Context, v *domain.ConfigVersion) error

	// GetByID retrieves a version by its number. Returns ErrNotFound if not exists.
	GetByID(ctx context.Context, versionID int64) (*domain.ConfigVersion, error)

	// Latest retrieves the highest-numbered version. Returns ErrNotFound on
	// an empty store.
	Latest(ctx context.Context) (*domain.ConfigVersion, error)

	// GetAll retrieves all versions ordered by version_id ASC.
	GetAll(ctx context.Context) ([]*domain.ConfigVersion, error)
}

// PatternStore provides access to detected patterns.
type PatternStore interface {
	// Insert adds a new pattern. Returns ErrDuplicateKey if pattern_id exists.
	Insert(ctx context.Context, p *domain.Pattern) error

	// GetByID retrieves a pattern by its ID. Returns ErrNotFound if not exists.
	GetByID(ctx context.Context, patternID string) (*domain.Pattern, error)

	// GetActive retrieves all active patterns ordered by detected_at ASC.
	GetActive(ctx context.Context) ([]*domain.Pattern, error)

	// GetByDimension retrieves all patterns for a dimension, any status.
	GetByDimension(ctx context.Context, dimension string) ([]*domain.Pattern, error)

	// UpdateStatus transitions a pattern's lifecycle status. The status field
	// is the only mutable part of a pattern.
	UpdateStatus(ctx context.Context, patternID, status string) error
}

// ExperimentStore provides access to experiments.
type ExperimentStore interface {
	// Insert adds a new experiment. Returns ErrDuplicateKey if experiment_id exists.
	Insert(ctx context.Context, e *domain.Experiment) error

	// GetByID retrieves an experiment by its ID. Returns ErrNotFound if not exists.
	GetByID(ctx context.Context, experimentID string) (*domain.Experiment, error)

	// GetActive retrieves all active experiments ordered by created_at ASC.
	GetActive(ctx context.Context) ([]*domain.Experiment, error)

	// GetAll retrieves all experiments ordered by created_at ASC.
	GetAll(ctx context.Context) ([]*domain.Experiment, error)

	// IncrementArm adds one sample to the named arm of an active experiment.
	IncrementArm(ctx context.Context, experimentID, arm string) error

	// Decide records the adjudication result (p-value, effect size, decision,
	// terminal status, decided_at) exactly once.
	Decide(ctx context.Context, e *domain.Experiment) error
}

// LearningEventStore provides access to the learning audit log.
type LearningEventStore interface {
	// Insert adds a new event. Returns ErrDuplicateKey if event_id exists.
	Insert(ctx context.Context, e *domain.LearningEvent) error

	// GetByTimeRange retrieves events created within [start, end], ordered
	// by created_at ASC.
	GetByTimeRange(ctx context.Context, start, end time.Time) ([]*domain.LearningEvent, error)

	// GetByType retrieves all events of one type, ordered by created_at ASC.
	GetByType(ctx context.Context, eventType string) ([]*domain.LearningEvent, error)
}

// RiskEventStore provides access to the risk audit log.
type RiskEventStore interface {
	// Insert adds a new event. Returns ErrDuplicateKey if event_id exists.
	Insert(ctx context.Context, e *domain.RiskEvent) error

	// GetByTimeRange retrieves events created within [start, end], ordered
	// by created_at ASC.
	GetByTimeRange(ctx context.Context, start, end time.Time) ([]*domain.RiskEvent, error)

	// CountByCheckSince counts events for one check since a cutoff. Used by
	// the governor to rate-limit repeated violations.
	CountByCheckSince(ctx context.Context, check string, since time.Time) (int, error)
}
