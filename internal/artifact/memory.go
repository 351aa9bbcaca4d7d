package artifact

import (
	"context"
	"fmt"
	"sync"
)

// MemoryStore keeps artifacts in memory. Content is lost when the process
// exits; it backs tests and dry runs.
type MemoryStore struct {
	mu    sync.RWMutex
	slots map[Slot][]byte
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		slots: make(map[Slot][]byte),
	}
}

func (s *MemoryStore) Read(ctx context.Context, slot Slot) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	data, ok := s.slots[slot]
	if !ok || len(data) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrMissingArtifact, slot)
	}

	// Return a copy to avoid external modifications
	out := make([]byte, len(data))
	copy(out, data)
	return out, nil
}

func (s *MemoryStore) Write(ctx context.Context, slot Slot, content []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data := make([]byte, len(content))
	copy(data, content)
	s.slots[slot] = data
	return nil
}

func (s *MemoryStore) Exists(ctx context.Context, slot Slot) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return len(s.slots[slot]) > 0, nil
}

var _ Store = (*MemoryStore)(nil)
