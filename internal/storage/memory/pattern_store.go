package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"short-options-loop/internal/domain"
	"short-options-loop/internal/storage"
)

// PatternStore is an in-memory implementation of storage.PatternStore.
type PatternStore struct {
	mu   sync.RWMutex
	data map[string]*domain.Pattern // keyed by pattern_id
}

// NewPatternStore creates a new in-memory pattern store.
func NewPatternStore() *PatternStore {
	return &PatternStore{
		data: make(map[string]*domain.Pattern),
	}
}

// Insert adds a new pattern. Returns ErrDuplicateKey if pattern_id exists.
func (s *PatternStore) Insert(_ context.Context, p *domain.Pattern) error {
	if p == nil || p.PatternID == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.data[p.PatternID]; exists {
		return storage.ErrDuplicateKey
	}

	cp := *p
	s.data[p.PatternID] = &cp
	return nil
}

// GetByID retrieves a pattern by its ID. Returns ErrNotFound if not exists.
func (s *PatternStore) GetByID(_ context.Context, patternID string) (*domain.Pattern, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, exists := s.data[patternID]
	if !exists {
		return nil, storage.ErrNotFound
	}

	cp := *p
	return &cp, nil
}

// GetActive retrieves all active patterns ordered by detected_at ASC.
func (s *PatternStore) GetActive(_ context.Context) ([]*domain.Pattern, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.Pattern
	for _, p := range s.data {
		if p.Status == domain.PatternStatusActive {
			cp := *p
			result = append(result, &cp)
		}
	}

	sortPatterns(result)
	return result, nil
}

// GetByDimension retrieves all patterns for a dimension, any status.
func (s *PatternStore) GetByDimension(_ context.Context, dimension string) ([]*domain.Pattern, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.Pattern
	for _, p := range s.data {
		if p.Dimension == dimension {
			cp := *p
			result = append(result, &cp)
		}
	}

	sortPatterns(result)
	return result, nil
}

// UpdateStatus transitions a pattern's lifecycle status.
func (s *PatternStore) UpdateStatus(_ context.Context, patternID, status string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, exists := s.data[patternID]
	if !exists {
		return storage.ErrNotFound
	}

	p.Status = status
	p.UpdatedAt = time.Now().UTC()
	return nil
}

func sortPatterns(ps []*domain.Pattern) {
	sort.Slice(ps, func(i, j int) bool {
		if !ps[i].DetectedAt.Equal(ps[j].DetectedAt) {
			return ps[i].DetectedAt.Before(ps[j].DetectedAt)
		}
		return ps[i].PatternID < ps[j].PatternID
	})
}

var _ storage.PatternStore = (*PatternStore)(nil)
