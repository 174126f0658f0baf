package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"short-options-loop/internal/domain"
	"short-options-loop/internal/storage"
)

// ExperimentStore implements storage.ExperimentStore using PostgreSQL.
type ExperimentStore struct {
	pool *Pool
}

// NewExperimentStore creates a new ExperimentStore.
func NewExperimentStore(pool *Pool) *ExperimentStore {
	return &ExperimentStore{pool: pool}
}

// Compile-time interface check.
var _ storage.ExperimentStore = (*ExperimentStore)(nil)

const experimentColumns = `
	experiment_id, parameter, control_value, test_value, hypothesis, status,
	control_samples, test_samples, p_value, effect_size, decision,
	sample_budget, created_at, decided_at`

// Insert adds a new experiment. Returns ErrDuplicateKey if experiment_id exists.
func (s *ExperimentStore) Insert(ctx context.Context, e *domain.Experiment) error {
	query := `
		INSERT INTO experiments (` + experimentColumns + `
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
	`

	_, err := s.pool.Exec(ctx, query,
		e.ExperimentID, e.Parameter, e.ControlValue, e.TestValue, e.Hypothesis, e.Status,
		e.ControlSamples, e.TestSamples, e.PValue, e.EffectSize, nullableString(e.Decision),
		e.SampleBudget, e.CreatedAt, e.DecidedAt,
	)
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("insert experiment: %w", err)
	}
	return nil
}

// GetByID retrieves an experiment by its ID. Returns ErrNotFound if not exists.
func (s *ExperimentStore) GetByID(ctx context.Context, experimentID string) (*domain.Experiment, error) {
	query := `SELECT ` + experimentColumns + ` FROM experiments WHERE experiment_id = $1`

	row := s.pool.QueryRow(ctx, query, experimentID)
	e, err := scanExperiment(row)
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get experiment by id: %w", err)
	}
	return e, nil
}

// GetActive retrieves all active experiments ordered by created_at ASC.
func (s *ExperimentStore) GetActive(ctx context.Context) ([]*domain.Experiment, error) {
	query := `SELECT ` + experimentColumns + `
		FROM experiments
		WHERE status = $1
		ORDER BY created_at ASC, experiment_id ASC`

	rows, err := s.pool.Query(ctx, query, domain.ExperimentStatusActive)
	if err != nil {
		return nil, fmt.Errorf("get active experiments: %w", err)
	}
	defer rows.Close()

	return scanExperiments(rows)
}

// GetAll retrieves all experiments ordered by created_at ASC.
func (s *ExperimentStore) GetAll(ctx context.Context) ([]*domain.Experiment, error) {
	query := `SELECT ` + experimentColumns + `
		FROM experiments
		ORDER BY created_at ASC, experiment_id ASC`

	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("get all experiments: %w", err)
	}
	defer rows.Close()

	return scanExperiments(rows)
}

// IncrementArm adds one sample to the named arm of an active experiment.
func (s *ExperimentStore) IncrementArm(ctx context.Context, experimentID, arm string) error {
	var column string
	switch arm {
	case domain.ArmControl:
		column = "control_samples"
	case domain.ArmTest:
		column = "test_samples"
	default:
		return fmt.Errorf("%w: unknown arm %q", storage.ErrInvalidInput, arm)
	}

	query := fmt.Sprintf(`
		UPDATE experiments SET %s = %s + 1
		WHERE experiment_id = $1 AND status = $2
	`, column, column)

	tag, err := s.pool.Exec(ctx, query, experimentID, domain.ExperimentStatusActive)
	if err != nil {
		return fmt.Errorf("increment experiment arm: %w", err)
	}
	if tag.RowsAffected() == 0 {
		if _, err := s.GetByID(ctx, experimentID); errors.Is(err, storage.ErrNotFound) {
			return storage.ErrNotFound
		}
		return fmt.Errorf("%w: experiment %s is not active", storage.ErrInvalidInput, experimentID)
	}
	return nil
}

// Decide records the adjudication result exactly once. The decision IS NULL
// guard makes a second decision a duplicate, not an overwrite.
func (s *ExperimentStore) Decide(ctx context.Context, e *domain.Experiment) error {
	query := `
		UPDATE experiments SET
			p_value = $2,
			effect_size = $3,
			decision = $4,
			status = $5,
			decided_at = $6
		WHERE experiment_id = $1 AND decision IS NULL
	`

	tag, err := s.pool.Exec(ctx, query,
		e.ExperimentID, e.PValue, e.EffectSize, e.Decision, e.Status, e.DecidedAt,
	)
	if err != nil {
		return fmt.Errorf("decide experiment: %w", err)
	}
	if tag.RowsAffected() == 0 {
		if _, err := s.GetByID(ctx, e.ExperimentID); errors.Is(err, storage.ErrNotFound) {
			return storage.ErrNotFound
		}
		return storage.ErrDuplicateKey
	}
	return nil
}

// scanExperiment scans a single row into an Experiment.
func scanExperiment(row pgx.Row) (*domain.Experiment, error) {
	var e domain.Experiment
	var decision *string

	err := row.Scan(
		&e.ExperimentID, &e.Parameter, &e.ControlValue, &e.TestValue, &e.Hypothesis, &e.Status,
		&e.ControlSamples, &e.TestSamples, &e.PValue, &e.EffectSize, &decision,
		&e.SampleBudget, &e.CreatedAt, &e.DecidedAt,
	)
	if err != nil {
		return nil, err
	}

	if decision != nil {
		e.Decision = *decision
	}
	return &e, nil
}

// scanExperiments scans multiple rows into a slice of Experiment.
func scanExperiments(rows pgx.Rows) ([]*domain.Experiment, error) {
	var experiments []*domain.Experiment

	for rows.Next() {
		e, err := scanExperiment(rows)
		if err != nil {
			return nil, fmt.Errorf("scan experiment row: %w", err)
		}
		experiments = append(experiments, e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate experiment rows: %w", err)
	}
	return experiments, nil
}
