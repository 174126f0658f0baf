package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"short-options-loop/internal/domain"
	"short-options-loop/internal/storage"
)

// LearningEventStore is an in-memory implementation of storage.LearningEventStore.
type LearningEventStore struct {
	mu   sync.RWMutex
	data map[string]*domain.LearningEvent // keyed by event_id
}

// NewLearningEventStore creates a new in-memory learning event store.
func NewLearningEventStore() *LearningEventStore {
	return &LearningEventStore{
		data: make(map[string]*domain.LearningEvent),
	}
}

// Insert adds a new event. Returns ErrDuplicateKey if event_id exists.
func (s *LearningEventStore) Insert(_ context.Context, e *domain.LearningEvent) error {
	if e == nil || e.EventID == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.data[e.EventID]; exists {
		return storage.ErrDuplicateKey
	}

	cp := *e
	s.data[e.EventID] = &cp
	return nil
}

// GetByTimeRange retrieves events created within [start, end], ordered by
// created_at ASC.
func (s *LearningEventStore) GetByTimeRange(_ context.Context, start, end time.Time) ([]*domain.LearningEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.LearningEvent
	for _, e := range s.data {
		if e.CreatedAt.Before(start) || e.CreatedAt.After(end) {
			continue
		}
		cp := *e
		result = append(result, &cp)
	}

	sortLearningEvents(result)
	return result, nil
}

// GetByType retrieves all events of one type, ordered by created_at ASC.
func (s *LearningEventStore) GetByType(_ context.Context, eventType string) ([]*domain.LearningEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.LearningEvent
	for _, e := range s.data {
		if e.EventType == eventType {
			cp := *e
			result = append(result, &cp)
		}
	}

	sortLearningEvents(result)
	return result, nil
}

func sortLearningEvents(es []*domain.LearningEvent) {
	sort.Slice(es, func(i, j int) bool {
		if !es[i].CreatedAt.Equal(es[j].CreatedAt) {
			return es[i].CreatedAt.Before(es[j].CreatedAt)
		}
		return es[i].EventID < es[j].EventID
	})
}

var _ storage.LearningEventStore = (*LearningEventStore)(nil)

// RiskEventStore is an in-memory implementation of storage.RiskEventStore.
type RiskEventStore struct {
	mu   sync.RWMutex
	data map[string]*domain.RiskEvent // keyed by event_id
}

// NewRiskEventStore creates a new in-memory risk event store.
func NewRiskEventStore() *RiskEventStore {
	return &RiskEventStore{
		data: make(map[string]*domain.RiskEvent),
	}
}

// Insert adds a new event. Returns ErrDuplicateKey if event_id exists.
func (s *RiskEventStore) Insert(_ context.Context, e *domain.RiskEvent) error {
	if e == nil || e.EventID == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.data[e.EventID]; exists {
		return storage.ErrDuplicateKey
	}

	cp := *e
	s.data[e.EventID] = &cp
	return nil
}

// GetByTimeRange retrieves events created within [start, end], ordered by
// created_at ASC.
func (s *RiskEventStore) GetByTimeRange(_ context.Context, start, end time.Time) ([]*domain.RiskEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.RiskEvent
	for _, e := range s.data {
		if e.CreatedAt.Before(start) || e.CreatedAt.After(end) {
			continue
		}
		cp := *e
		result = append(result, &cp)
	}

	sort.Slice(result, func(i, j int) bool {
		if !result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].CreatedAt.Before(result[j].CreatedAt)
		}
		return result[i].EventID < result[j].EventID
	})

	return result, nil
}

// CountByCheckSince counts events for one check since a cutoff.
func (s *RiskEventStore) CountByCheckSince(_ context.Context, check string, since time.Time) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	count := 0
	for _, e := range s.data {
		if e.Check == check && !e.CreatedAt.Before(since) {
			count++
		}
	}
	return count, nil
}

var _ storage.RiskEventStore = (*RiskEventStore)(nil)
