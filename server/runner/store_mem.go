package runner

import (
	"errors"
	"sync"
)

const defaultMaxHistorySize = 50

// MemoryStore keeps the most recent runs in memory only.
type MemoryStore struct {
	mu       sync.Mutex
	runs     []RunStatus
	maxCount int
}

// NewMemoryStore creates a store holding at most maxCount runs. A
// non-positive maxCount uses the default of 50.
func NewMemoryStore(maxCount int) *MemoryStore {
	if maxCount <= 0 {
		maxCount = defaultMaxHistorySize
	}
	return &MemoryStore{
		runs:     make([]RunStatus, 0),
		maxCount: maxCount,
	}
}

// Runs returns a copy of the stored runs, most recent first.
func (s *MemoryStore) Runs() []RunStatus {
	s.mu.Lock()
	defer s.mu.Unlock()

	result := make([]RunStatus, len(s.runs))
	copy(result, s.runs)
	return result
}

// Get returns the run with the given ID.
func (s *MemoryStore) Get(id string) (RunStatus, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, run := range s.runs {
		if run.ID == id {
			return run, true
		}
	}
	return RunStatus{}, false
}

// Save stores a run, evicting the oldest once the store is full.
func (s *MemoryStore) Save(run RunStatus) error {
	if run.ID == "" {
		return errors.New("cannot save run without an id")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// Prepend to keep most recent first
	s.runs = append([]RunStatus{run}, s.runs...)
	if len(s.runs) > s.maxCount {
		s.runs = s.runs[:s.maxCount]
	}
	return nil
}
