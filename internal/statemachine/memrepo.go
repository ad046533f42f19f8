package statemachine

import (
	"context"
	"sync"

	"ferrex/internal/ids"
	"ferrex/internal/model"
)

// MemRepository is an in-memory Repository for tests that don't need
// crash-safe persistence.
type MemRepository struct {
	mu     sync.Mutex
	states map[string]model.SeriesScanState
}

// NewMemRepository constructs an empty MemRepository.
func NewMemRepository() *MemRepository {
	return &MemRepository{states: make(map[string]model.SeriesScanState)}
}

func key(libraryID ids.LibraryId, path string) string {
	return libraryID.String() + "|" + path
}

func (m *MemRepository) Get(ctx context.Context, libraryID ids.LibraryId, seriesRootPath string) (*model.SeriesScanState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.states[key(libraryID, seriesRootPath)]
	if !ok {
		return nil, nil
	}
	return &s, nil
}

func (m *MemRepository) Put(ctx context.Context, state model.SeriesScanState) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.states[key(state.LibraryID, state.SeriesRootPath)] = state
	return nil
}

var _ Repository = (*MemRepository)(nil)
