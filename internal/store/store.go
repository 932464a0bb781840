package store

import (
	"sync"
	"sync/atomic"

	"github.com/skypro1111/studentmarks-service/internal/protocol"
)

// Store caches student records in memory, keyed by name.
//
// Readers load an immutable snapshot through an atomic pointer, so they
// never observe a partially applied Replace or Upsert. Writers are
// serialized by mu and publish a new snapshot on every change.
type Store struct {
	current atomic.Pointer[snapshot]
	mu      sync.Mutex
}

// snapshot is never modified after it is published
type snapshot struct {
	records []protocol.StudentRecord
	index   map[string]int
}

// Summary describes the distribution of marks in the store
type Summary struct {
	Count   int     `json:"count"`
	Average float64 `json:"average"`
	Min     *int    `json:"min"`
	Max     *int    `json:"max"`
}

// New creates an empty store
func New() *Store {
	s := &Store{}
	s.current.Store(newSnapshot(nil))
	return s
}

func newSnapshot(records []protocol.StudentRecord) *snapshot {
	snap := &snapshot{
		records: make([]protocol.StudentRecord, 0, len(records)),
		index:   make(map[string]int, len(records)),
	}
	for _, record := range records {
		if i, exists := snap.index[record.Name]; exists {
			snap.records[i].Mark = record.Mark
			continue
		}
		snap.index[record.Name] = len(snap.records)
		snap.records = append(snap.records, record)
	}
	return snap
}

// Replace swaps the whole record set in one step. Duplicate names keep the
// position of their first occurrence and the mark of their last.
func (s *Store) Replace(records []protocol.StudentRecord) {
	snap := newSnapshot(records)

	s.mu.Lock()
	s.current.Store(snap)
	s.mu.Unlock()
}

// All returns a copy of every record in insertion order
func (s *Store) All() []protocol.StudentRecord {
	snap := s.current.Load()
	records := make([]protocol.StudentRecord, len(snap.records))
	copy(records, snap.records)
	return records
}

// Get looks up a record by name
func (s *Store) Get(name string) (protocol.StudentRecord, bool) {
	snap := s.current.Load()
	i, exists := snap.index[name]
	if !exists {
		return protocol.StudentRecord{}, false
	}
	return snap.records[i], true
}

// Upsert sets the mark for name, appending a new record if none exists.
// It reports whether a record was created.
func (s *Store) Upsert(name string, mark int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	old := s.current.Load()
	snap := &snapshot{
		records: make([]protocol.StudentRecord, len(old.records), len(old.records)+1),
		index:   make(map[string]int, len(old.index)+1),
	}
	copy(snap.records, old.records)
	for k, v := range old.index {
		snap.index[k] = v
	}

	i, exists := snap.index[name]
	if exists {
		snap.records[i].Mark = mark
	} else {
		snap.index[name] = len(snap.records)
		snap.records = append(snap.records, protocol.StudentRecord{Name: name, Mark: mark})
	}

	s.current.Store(snap)
	return !exists
}

// Len returns the number of records
func (s *Store) Len() int {
	return len(s.current.Load().records)
}

// Stats summarizes the marks currently held
func (s *Store) Stats() Summary {
	snap := s.current.Load()

	summary := Summary{Count: len(snap.records)}
	if summary.Count == 0 {
		return summary
	}

	minMark, maxMark := snap.records[0].Mark, snap.records[0].Mark
	sum := 0
	for _, record := range snap.records {
		sum += record.Mark
		if record.Mark < minMark {
			minMark = record.Mark
		}
		if record.Mark > maxMark {
			maxMark = record.Mark
		}
	}

	summary.Average = float64(sum) / float64(summary.Count)
	summary.Min = &minMark
	summary.Max = &maxMark
	return summary
}
