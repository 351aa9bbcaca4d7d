package inmemory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/dvloznov/finance-report-agent/internal/runlog"
)

// Store is an in-memory implementation of runlog.Store.
// It is safe for concurrent use; data is lost when the process exits.
type Store struct {
	mu   sync.RWMutex
	runs map[string]*runlog.StageRun
	now  func() time.Time
}

// NewStore creates a new in-memory run store.
func NewStore() *Store {
	return &Store{
		runs: make(map[string]*runlog.StageRun),
		now:  time.Now,
	}
}

// Save implements runlog.Store.
func (s *Store) Save(ctx context.Context, run *runlog.StageRun) error {
	if run.ID == "" {
		return fmt.Errorf("stage run ID is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.runs[run.ID] = clone(run)
	return nil
}

// Get implements runlog.Store.
func (s *Store) Get(ctx context.Context, id string) (*runlog.StageRun, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	run, ok := s.runs[id]
	if !ok {
		return nil, fmt.Errorf("stage run not found: %s", id)
	}
	return clone(run), nil
}

// List implements runlog.Store.
func (s *Store) List(ctx context.Context, filter runlog.Filter) ([]*runlog.StageRun, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*runlog.StageRun
	for _, run := range s.runs {
		if filter.RunID != "" && run.RunID != filter.RunID {
			continue
		}
		if filter.Stage != "" && run.Stage != filter.Stage {
			continue
		}
		if filter.Status != "" && run.Status != filter.Status {
			continue
		}
		result = append(result, clone(run))
	}

	sort.SliceStable(result, func(i, j int) bool {
		return result[i].StartedAt.Before(result[j].StartedAt)
	})

	if filter.Limit > 0 && filter.Limit < len(result) {
		result = result[:filter.Limit]
	}
	return result, nil
}

// UpdateStatus implements runlog.Store. Terminal runs cannot move again.
func (s *Store) UpdateStatus(ctx context.Context, id string, status runlog.Status, errMsg string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	run, ok := s.runs[id]
	if !ok {
		return fmt.Errorf("stage run not found: %s", id)
	}
	if run.Status.Terminal() {
		return fmt.Errorf("stage run %s is already %s", id, run.Status)
	}

	run.Status = status
	if errMsg != "" {
		run.Error = errMsg
	}
	if status.Terminal() {
		now := s.now()
		run.CompletedAt = &now
	}
	return nil
}

// clone copies a run so callers never share memory with the store.
func clone(run *runlog.StageRun) *runlog.StageRun {
	c := *run
	if run.CompletedAt != nil {
		t := *run.CompletedAt
		c.CompletedAt = &t
	}
	if run.Warnings != nil {
		c.Warnings = append([]string(nil), run.Warnings...)
	}
	return &c
}

// Ensure Store implements runlog.Store.
var _ runlog.Store = (*Store)(nil)
