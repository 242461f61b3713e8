// Package deadletter holds records that failed processing beyond the retry
// budget, for offline inspection and operator replay.
package deadletter

import (
	"errors"
	"sync"

	"github.com/FortiumPartners/devpulse/internal/metrics"
	"github.com/FortiumPartners/devpulse/internal/models"
)

// ErrStoreFull signals that an entry could not be admitted at all. It only
// occurs when the store has no usable capacity; a store under pressure
// prefers evicting its oldest entries.
var ErrStoreFull = errors.New("dead-letter store full")

// ErrNotFound is returned when an entry ID does not exist.
var ErrNotFound = errors.New("dead-letter entry not found")

// Store is an append-only FIFO buffer with a fixed capacity. When full, the
// oldest entries are evicted to admit new ones: a deliberate loss-of-data
// escape valve under sustained failure, surfaced to the caller so it can
// raise an operational alert.
type Store struct {
	mu       sync.Mutex
	capacity int
	order    []string // entry IDs, oldest first
	entries  map[string]*models.DeadLetterEntry
}

// NewStore creates a dead-letter store with the given capacity.
func NewStore(capacity int) *Store {
	return &Store{
		capacity: capacity,
		entries:  make(map[string]*models.DeadLetterEntry),
	}
}

// Add appends an entry. If the store is at capacity the oldest entry is
// evicted and returned so the caller can account for the dropped data.
func (s *Store) Add(entry *models.DeadLetterEntry) (evicted *models.DeadLetterEntry, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.capacity <= 0 {
		return nil, ErrStoreFull
	}

	if len(s.order) >= s.capacity {
		oldestID := s.order[0]
		s.order = s.order[1:]
		evicted = s.entries[oldestID]
		delete(s.entries, oldestID)
		metrics.DeadLetterDropped.Inc()
	}

	s.order = append(s.order, entry.ID)
	s.entries[entry.ID] = entry
	metrics.DeadLetterDepth.Set(float64(len(s.order)))
	return evicted, nil
}

// Get returns a copy of the entry with the given ID. Callers hold entries
// across lock boundaries (JSON encoding, replay), so the stored struct is
// never handed out directly.
func (s *Store) Get(id string) (*models.DeadLetterEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.entries[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *entry
	return &cp, nil
}

// IncrementRetry bumps the retry count of a stored entry and returns the new
// value. Retry accounting goes through the store so concurrent readers never
// observe a torn entry.
func (s *Store) IncrementRetry(id string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.entries[id]
	if !ok {
		return 0, ErrNotFound
	}
	entry.RetryCount++
	return entry.RetryCount, nil
}

// Remove deletes an entry, typically after a successful replay.
func (s *Store) Remove(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.entries[id]; !ok {
		return ErrNotFound
	}
	delete(s.entries, id)
	for i, candidate := range s.order {
		if candidate == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	metrics.DeadLetterDepth.Set(float64(len(s.order)))
	return nil
}

// List returns copies of up to limit entries, oldest first.
func (s *Store) List(limit int) []*models.DeadLetterEntry {
	s.mu.Lock()
	defer s.mu.Unlock()

	if limit <= 0 || limit > len(s.order) {
		limit = len(s.order)
	}
	out := make([]*models.DeadLetterEntry, 0, limit)
	for _, id := range s.order[:limit] {
		cp := *s.entries[id]
		out = append(out, &cp)
	}
	return out
}

// Len returns the number of stored entries.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.order)
}
