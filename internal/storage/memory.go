package storage

import (
	"context"
	"sort"
	"sync"

	"spikegen/internal/model"
)

type MemoryStore struct {
	mu          sync.RWMutex
	initialized bool
	runs        map[string]model.RunRecord
	layouts     map[string][]model.LayoutRecord
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) Init(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.initialized = true
	s.runs = make(map[string]model.RunRecord)
	s.layouts = make(map[string][]model.LayoutRecord)
	return nil
}

func (s *MemoryStore) SaveRun(_ context.Context, run model.RunRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.runs[run.ID] = run
	return nil
}

func (s *MemoryStore) GetRun(_ context.Context, id string) (model.RunRecord, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	run, ok := s.runs[id]
	return run, ok, nil
}

func (s *MemoryStore) ListRuns(_ context.Context, limit int) ([]model.RunRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	runs := make([]model.RunRecord, 0, len(s.runs))
	for _, run := range s.runs {
		runs = append(runs, run)
	}
	sort.Slice(runs, func(i, j int) bool {
		if runs[i].CreatedAt.Equal(runs[j].CreatedAt) {
			return runs[i].ID < runs[j].ID
		}
		return runs[i].CreatedAt.After(runs[j].CreatedAt)
	})
	if limit > 0 && len(runs) > limit {
		runs = runs[:limit]
	}
	return runs, nil
}

func (s *MemoryStore) SaveLayouts(_ context.Context, runID string, layouts []model.LayoutRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.layouts[runID] = copyLayouts(layouts)
	return nil
}

func (s *MemoryStore) GetLayout(_ context.Context, runID, typeName string) (model.LayoutRecord, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, layout := range s.layouts[runID] {
		if layout.TypeName == typeName {
			return copyLayouts([]model.LayoutRecord{layout})[0], true, nil
		}
	}
	return model.LayoutRecord{}, false, nil
}

func (s *MemoryStore) ListLayouts(_ context.Context, runID string) ([]model.LayoutRecord, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	layouts, ok := s.layouts[runID]
	if !ok {
		return nil, false, nil
	}
	return copyLayouts(layouts), true, nil
}

func (s *MemoryStore) DeleteRun(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.runs, id)
	delete(s.layouts, id)
	return nil
}

func copyLayouts(layouts []model.LayoutRecord) []model.LayoutRecord {
	copied := make([]model.LayoutRecord, 0, len(layouts))
	for _, layout := range layouts {
		fields := make([]model.LayoutField, 0, len(layout.Fields))
		for _, f := range layout.Fields {
			fields = append(fields, model.LayoutField{
				Name:   f.Name,
				Type:   f.Type,
				Kind:   f.Kind,
				Values: append([]string(nil), f.Values...),
			})
		}
		layout.Members = append([]string(nil), layout.Members...)
		layout.Fields = fields
		copied = append(copied, layout)
	}
	return copied
}
