package memory

import (
	"context"
	"sort"
	"sync"

	"short-options-loop/internal/domain"
	"short-options-loop/internal/storage"
)

// ExperimentStore is an in-memory implementation of storage.ExperimentStore.
type ExperimentStore struct {
	mu   sync.RWMutex
	data map[string]*domain.Experiment // keyed by experiment_id
}

// NewExperimentStore creates a new in-memory experiment store.
func NewExperimentStore() *ExperimentStore {
	return &ExperimentStore{
		data: make(map[string]*domain.Experiment),
	}
}

// Insert adds a new experiment. Returns ErrDuplicateKey if experiment_id exists.
func (s *ExperimentStore) Insert(_ context.Context, e *domain.Experiment) error {
	if e == nil || e.ExperimentID == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.data[e.ExperimentID]; exists {
		return storage.ErrDuplicateKey
	}

	s.data[e.ExperimentID] = cloneExperiment(e)
	return nil
}

// GetByID retrieves an experiment by its ID. Returns ErrNotFound if not exists.
func (s *ExperimentStore) GetByID(_ context.Context, experimentID string) (*domain.Experiment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, exists := s.data[experimentID]
	if !exists {
		return nil, storage.ErrNotFound
	}

	return cloneExperiment(e), nil
}

// GetActive retrieves all active experiments ordered by created_at ASC.
func (s *ExperimentStore) GetActive(_ context.Context) ([]*domain.Experiment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.Experiment
	for _, e := range s.data {
		if e.Status == domain.ExperimentStatusActive {
			result = append(result, cloneExperiment(e))
		}
	}

	sortExperiments(result)
	return result, nil
}

// GetAll retrieves all experiments ordered by created_at ASC.
func (s *ExperimentStore) GetAll(_ context.Context) ([]*domain.Experiment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*domain.Experiment, 0, len(s.data))
	for _, e := range s.data {
		result = append(result, cloneExperiment(e))
	}

	sortExperiments(result)
	return result, nil
}

// IncrementArm adds one sample to the named arm of an active experiment.
func (s *ExperimentStore) IncrementArm(_ context.Context, experimentID, arm string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, exists := s.data[experimentID]
	if !exists {
		return storage.ErrNotFound
	}

	switch arm {
	case domain.ArmControl:
		e.ControlSamples++
	case domain.ArmTest:
		e.TestSamples++
	default:
		return storage.ErrInvalidInput
	}
	return nil
}

// Decide records the adjudication result exactly once.
func (s *ExperimentStore) Decide(_ context.Context, e *domain.Experiment) error {
	if e == nil || e.ExperimentID == "" || e.Decision == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	existing, exists := s.data[e.ExperimentID]
	if !exists {
		return storage.ErrNotFound
	}
	if existing.Decided() {
		return storage.ErrDuplicateKey
	}

	s.data[e.ExperimentID] = cloneExperiment(e)
	return nil
}

func cloneExperiment(e *domain.Experiment) *domain.Experiment {
	cp := *e
	if e.DecidedAt != nil {
		v := *e.DecidedAt
		cp.DecidedAt = &v
	}
	return &cp
}

func sortExperiments(es []*domain.Experiment) {
	sort.Slice(es, func(i, j int) bool {
		if !es[i].CreatedAt.Equal(es[j].CreatedAt) {
			return es[i].CreatedAt.Before(es[j].CreatedAt)
		}
		return es[i].ExperimentID < es[j].ExperimentID
	})
}

var _ storage.ExperimentStore = (*ExperimentStore)(nil)
