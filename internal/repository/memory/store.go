package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/xela07ax/coffee-export-workflow/internal/domain"
)

// Store — in-memory реализация workflow.ExportStore.
// Используется в тестах и в dev-режиме без Postgres. Семантика версии
// идентична SQL-реализации: Update с устаревшей версией дает ErrConflict.
type Store struct {
	mu      sync.RWMutex
	records map[string]*domain.ExportRecord
	history map[string][]domain.TransitionEvent
}

func NewStore() *Store {
	return &Store{
		records: make(map[string]*domain.ExportRecord),
		history: make(map[string][]domain.TransitionEvent),
	}
}

func (s *Store) Create(ctx context.Context, rec *domain.ExportRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.records[rec.ID]; exists {
		return fmt.Errorf("%w: export %s already exists", domain.ErrConflict, rec.ID)
	}
	s.records[rec.ID] = rec.Clone()
	return nil
}

func (s *Store) Get(ctx context.Context, id string) (*domain.ExportRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.records[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrNotFound, id)
	}
	return rec.Clone(), nil
}

func (s *Store) List(ctx context.Context, status domain.Status, limit int) ([]*domain.ExportRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	// Пустой слайс, чтобы в JSON был [] вместо null
	out := make([]*domain.ExportRecord, 0)
	for _, rec := range s.records {
		if status != "" && rec.Status != status {
			continue
		}
		out = append(out, rec.Clone())
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// Update — атомарная фиксация перехода: статус, поля отклонения,
// событие журнала и инкремент версии меняются под одной блокировкой.
func (s *Store) Update(ctx context.Context, rec *domain.ExportRecord, ev *domain.TransitionEvent, expectedVersion int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, ok := s.records[rec.ID]
	if !ok {
		return fmt.Errorf("%w: %s", domain.ErrNotFound, rec.ID)
	}
	if stored.Version != expectedVersion {
		return fmt.Errorf("%w: export %s version %d, expected %d",
			domain.ErrConflict, rec.ID, stored.Version, expectedVersion)
	}

	ev.Seq = len(s.history[rec.ID]) + 1

	next := rec.Clone()
	next.Version = expectedVersion + 1
	s.records[rec.ID] = next
	s.history[rec.ID] = append(s.history[rec.ID], *ev)
	return nil
}

func (s *Store) History(ctx context.Context, id string) ([]domain.TransitionEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, ok := s.records[id]; !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrNotFound, id)
	}
	events := s.history[id]
	out := make([]domain.TransitionEvent, len(events))
	copy(out, events)
	return out, nil
}
