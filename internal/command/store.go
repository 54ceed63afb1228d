package command

import (
	"fmt"
	"sync"
	"time"

	"github.com/edgekit/device-manager/internal/api"
)

// Store is the bounded, in-memory command history.
//
// Records are kept in submission order. When the history limit is exceeded
// the oldest finished record is evicted; pending and running records are
// never evicted so a full history cannot lose live state.
type Store struct {
	mu    sync.RWMutex
	limit int
	order []string
	byID  map[string]*api.CommandRecord
}

// NewStore creates a history bounded to limit records.
func NewStore(limit int) *Store {
	return &Store{
		limit: limit,
		byID:  make(map[string]*api.CommandRecord),
	}
}

// Add registers a new pending record.
func (s *Store) Add(rec api.CommandRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.byID[rec.ID] = &rec
	s.order = append(s.order, rec.ID)
	s.evictLocked()
}

// Get returns a copy of the record with the given ID.
func (s *Store) Get(id string) (api.CommandRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.byID[id]
	if !ok {
		return api.CommandRecord{}, fmt.Errorf("command not found: %s", id)
	}
	return *rec, nil
}

// List returns copies of all records, newest first.
func (s *Store) List() []api.CommandRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]api.CommandRecord, 0, len(s.order))
	for i := len(s.order) - 1; i >= 0; i-- {
		if rec, ok := s.byID[s.order[i]]; ok {
			result = append(result, *rec)
		}
	}
	return result
}

// MarkRunning transitions a record to the running state.
func (s *Store) MarkRunning(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if rec, ok := s.byID[id]; ok {
		rec.State = api.CommandRunning
		rec.StartedAt = time.Now()
	}
}

// MarkFinished records the command outcome.
func (s *Store) MarkFinished(id string, output string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.byID[id]
	if !ok {
		return
	}

	rec.FinishedAt = time.Now()
	rec.Output = output
	if err != nil {
		rec.State = api.CommandFailed
		rec.Error = err.Error()
	} else {
		rec.State = api.CommandSucceeded
	}
}

func (s *Store) evictLocked() {
	for len(s.order) > s.limit {
		evicted := false
		for i, id := range s.order {
			rec := s.byID[id]
			if rec == nil || rec.State == api.CommandSucceeded || rec.State == api.CommandFailed {
				delete(s.byID, id)
				s.order = append(s.order[:i], s.order[i+1:]...)
				evicted = true
				break
			}
		}
		if !evicted {
			// Everything is live; allow the history to exceed the limit
			// rather than drop state.
			return
		}
	}
}
