package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"short-options-loop/internal/domain"
	"short-options-loop/internal/storage"
)

// TradeStore is an in-memory implementation of storage.TradeStore.
type TradeStore struct {
	mu   sync.RWMutex
	data map[string]*domain.Trade // keyed by trade_id
}

// NewTradeStore creates a new in-memory trade store.
func NewTradeStore() *TradeStore {
	return &TradeStore{
		data: make(map[string]*domain.Trade),
	}
}

// Insert adds a new trade. Returns ErrDuplicateKey if trade_id exists.
func (s *TradeStore) Insert(_ context.Context, t *domain.Trade) error {
	if t == nil || t.TradeID == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.data[t.TradeID]; exists {
		return storage.ErrDuplicateKey
	}

	cp := cloneTrade(t)
	s.data[t.TradeID] = cp
	return nil
}

// Finalize writes the exit fields of a closed trade exactly once.
func (s *TradeStore) Finalize(_ context.Context, t *domain.Trade) error {
	if t == nil || t.TradeID == "" {
		return storage.ErrInvalidInput
	}
	if !t.IsClosed() {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	existing, exists := s.data[t.TradeID]
	if !exists {
		return storage.ErrNotFound
	}
	if existing.IsClosed() {
		return storage.ErrAlreadyFinalized
	}

	s.data[t.TradeID] = cloneTrade(t)
	return nil
}

// GetByID retrieves a trade by its ID. Returns ErrNotFound if not exists.
func (s *TradeStore) GetByID(_ context.Context, tradeID string) (*domain.Trade, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	t, exists := s.data[tradeID]
	if !exists {
		return nil, storage.ErrNotFound
	}

	return cloneTrade(t), nil
}

// GetByStatus retrieves all trades in a status, ordered by entry time ASC.
func (s *TradeStore) GetByStatus(_ context.Context, status string) ([]*domain.Trade, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.Trade
	for _, t := range s.data {
		if t.Status == status {
			result = append(result, cloneTrade(t))
		}
	}

	sort.Slice(result, func(i, j int) bool {
		if !result[i].EntryTime.Equal(result[j].EntryTime) {
			return result[i].EntryTime.Before(result[j].EntryTime)
		}
		return result[i].TradeID < result[j].TradeID
	})

	return result, nil
}

// GetClosed retrieves closed trades with exit time within [start, end],
// ordered by exit time ASC, trade_id ASC.
func (s *TradeStore) GetClosed(_ context.Context, start, end time.Time) ([]*domain.Trade, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.Trade
	for _, t := range s.data {
		if !t.IsClosed() {
			continue
		}
		if t.ExitTime.Before(start) || t.ExitTime.After(end) {
			continue
		}
		result = append(result, cloneTrade(t))
	}

	sort.Slice(result, func(i, j int) bool {
		if !result[i].ExitTime.Equal(*result[j].ExitTime) {
			return result[i].ExitTime.Before(*result[j].ExitTime)
		}
		return result[i].TradeID < result[j].TradeID
	})

	return result, nil
}

// GetByExperiment retrieves all trades assigned to an experiment.
func (s *TradeStore) GetByExperiment(_ context.Context, experimentID string) ([]*domain.Trade, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.Trade
	for _, t := range s.data {
		if t.ExperimentID != nil && *t.ExperimentID == experimentID {
			result = append(result, cloneTrade(t))
		}
	}

	sort.Slice(result, func(i, j int) bool {
		if !result[i].EntryTime.Equal(result[j].EntryTime) {
			return result[i].EntryTime.Before(result[j].EntryTime)
		}
		return result[i].TradeID < result[j].TradeID
	})

	return result, nil
}

// cloneTrade deep-copies a trade including its pointer-typed exit fields.
func cloneTrade(t *domain.Trade) *domain.Trade {
	cp := *t
	if t.ExitTime != nil {
		v := *t.ExitTime
		cp.ExitTime = &v
	}
	if t.ExitPremium != nil {
		v := *t.ExitPremium
		cp.ExitPremium = &v
	}
	if t.ExitMarket != nil {
		v := *t.ExitMarket
		cp.ExitMarket = &v
	}
	if t.ExperimentID != nil {
		v := *t.ExperimentID
		cp.ExperimentID = &v
	}
	return &cp
}

var _ storage.TradeStore = (*TradeStore)(nil)
