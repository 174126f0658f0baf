package memory

import (
	"context"
	"sort"
	"sync"

	"short-options-loop/internal/domain"
	"short-options-loop/internal/storage"
)

// ConfigVersionStore is an in-memory implementation of storage.ConfigVersionStore.
type ConfigVersionStore struct {
	mu   sync.RWMutex
	data map[int64]*domain.ConfigVersion // keyed by version_id
}

// NewConfigVersionStore creates a new in-memory config version store.
func NewConfigVersionStore() *ConfigVersionStore {
	return &ConfigVersionStore{
		data: make(map[int64]*domain.ConfigVersion),
	}
}

// Insert adds a new version. Returns ErrDuplicateKey if version_id exists.
func (s *ConfigVersionStore) Insert(_ context.Context, v *domain.ConfigVersion) error {
	if v == nil || v.VersionID <= 0 {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.data[v.VersionID]; exists {
		return storage.ErrDuplicateKey
	}

	cp := *v
	s.data[v.VersionID] = &cp
	return nil
}

// GetByID retrieves a version by its number. Returns ErrNotFound if not exists.
func (s *ConfigVersionStore) GetByID(_ context.Context, versionID int64) (*domain.ConfigVersion, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	v, exists := s.data[versionID]
	if !exists {
		return nil, storage.ErrNotFound
	}

	cp := *v
	return &cp, nil
}

// Latest retrieves the highest-numbered version.
func (s *ConfigVersionStore) Latest(_ context.Context) (*domain.ConfigVersion, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var latest *domain.ConfigVersion
	for _, v := range s.data {
		if latest == nil || v.VersionID > latest.VersionID {
			latest = v
		}
	}
	if latest == nil {
		return nil, storage.ErrNotFound
	}

	cp := *latest
	return &cp, nil
}

// GetAll retrieves all versions ordered by version_id ASC.
func (s *ConfigVersionStore) GetAll(_ context.Context) ([]*domain.ConfigVersion, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*domain.ConfigVersion, 0, len(s.data))
	for _, v := range s.data {
		cp := *v
		result = append(result, &cp)
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].VersionID < result[j].VersionID
	})

	return result, nil
}

var _ storage.ConfigVersionStore = (*ConfigVersionStore)(nil)
