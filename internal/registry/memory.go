package registry

import (
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/datalinker/correlation-backend/internal/domain"
	"github.com/datalinker/correlation-backend/internal/pkg/dbctx"
	"github.com/datalinker/correlation-backend/internal/platform/apierr"
)

// InMemory is a Registry backed by maps, for tests and local wiring.
type InMemory struct {
	mu       sync.RWMutex
	datasets map[uuid.UUID]*domain.Dataset
	profiles map[uuid.UUID]map[string]*domain.ColumnProfile
}

func NewInMemory() *InMemory {
	return &InMemory{
		datasets: make(map[uuid.UUID]*domain.Dataset),
		profiles: make(map[uuid.UUID]map[string]*domain.ColumnProfile),
	}
}

func (m *InMemory) PutDataset(d *domain.Dataset) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.datasets[d.ID] = d
}

func (m *InMemory) PutColumnProfile(p *domain.ColumnProfile) {
	m.mu.Lock()
	defer m.mu.Unlock()
	byColumn, ok := m.profiles[p.DatasetID]
	if !ok {
		byColumn = make(map[string]*domain.ColumnProfile)
		m.profiles[p.DatasetID] = byColumn
	}
	byColumn[p.Column] = p
}

func (m *InMemory) GetDataset(_ dbctx.Context, id uuid.UUID) (*domain.Dataset, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	d, ok := m.datasets[id]
	if !ok {
		return nil, apierr.NotFound("dataset_not_found", fmt.Errorf("dataset %s", id))
	}
	return d, nil
}

func (m *InMemory) GetColumnProfile(_ dbctx.Context, id uuid.UUID, column string) (*domain.ColumnProfile, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	byColumn, ok := m.profiles[id]
	if !ok {
		return nil, nil
	}
	return byColumn[column], nil
}
