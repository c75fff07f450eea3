package store

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/obsidianstack/lookerhealth/agent/internal/report"
)

// DefaultCapacity is used when New is given a non-positive capacity.
const DefaultCapacity = 50

// Entry is a stored report together with run bookkeeping.
type Entry struct {
	Report   *report.Report
	StoredAt time.Time
	Duration time.Duration
}

// Store is a thread-safe, bounded history of reports. When full, Put evicts
// the oldest entry.
type Store struct {
	mu      sync.RWMutex
	entries []*Entry // oldest first
	byID    map[uuid.UUID]*Entry
	cap     int
	now     func() time.Time // injectable for deterministic tests
}

// New creates a Store holding at most capacity reports.
func New(capacity int) *Store {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Store{
		byID: make(map[uuid.UUID]*Entry),
		cap:  capacity,
		now:  time.Now,
	}
}

// Put stores rep. Callers must not modify rep after calling Put.
func (s *Store) Put(rep *report.Report, dur time.Duration) *Entry {
	e := &Entry{Report: rep, StoredAt: s.now(), Duration: dur}

	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.entries) == s.cap {
		oldest := s.entries[0]
		delete(s.byID, oldest.Report.RunID)
		s.entries[0] = nil
		s.entries = s.entries[1:]
	}
	s.entries = append(s.entries, e)
	s.byID[rep.RunID] = e
	return e
}

// Latest returns the most recently stored entry.
func (s *Store) Latest() (*Entry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(s.entries) == 0 {
		return nil, false
	}
	return s.entries[len(s.entries)-1], true
}

// Get returns the entry for a run ID.
func (s *Store) Get(id uuid.UUID) (*Entry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.byID[id]
	return e, ok
}

// List returns all entries, newest first.
func (s *Store) List() []*Entry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*Entry, len(s.entries))
	for i, e := range s.entries {
		out[len(s.entries)-1-i] = e
	}
	return out
}

// Count returns the number of stored entries.
func (s *Store) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}
