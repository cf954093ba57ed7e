package eventstore

import (
	"context"
	"sync"
	"time"

	"github.com/barkimedes/go-deepcopy"
	"github.com/thefabric-io/transactional"
)

// MemoryStore is an in-process Store for tests and throwaway local play.
// It ignores the transaction argument; there is nothing to roll back that
// outlives the process.
type MemoryStore struct {
	mu      sync.RWMutex
	streams map[StreamID][]int // indexes into all
	all     []Recorded
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		streams: make(map[StreamID][]int),
	}
}

func (s *MemoryStore) Append(_ context.Context, _ transactional.Transaction, stream StreamID, expected Version, events []EventData) (Version, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current := Version(len(s.streams[stream]))
	if current != expected {
		return current, ErrVersionConflict
	}

	for _, e := range events {
		current++

		rec := Recorded{
			EventData:    e,
			Stream:       stream,
			Version:      current,
			Global:       GlobalPosition(len(s.all) + 1),
			RegisteredAt: time.Now(),
		}

		s.all = append(s.all, rec)
		s.streams[stream] = append(s.streams[stream], len(s.all)-1)
	}

	return current, nil
}

func (s *MemoryStore) ReadStream(_ context.Context, _ transactional.Transaction, stream StreamID, after Version, limit int) ([]Recorded, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit <= 0 {
		limit = DefaultReadLimit
	}

	var res []Recorded
	for _, i := range s.streams[stream] {
		if s.all[i].Version <= after {
			continue
		}

		res = append(res, s.all[i])
		if len(res) == limit {
			break
		}
	}

	return copyRecords(res), nil
}

func (s *MemoryStore) ReadAll(_ context.Context, _ transactional.Transaction, after GlobalPosition, limit int) ([]Recorded, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit <= 0 {
		limit = DefaultReadLimit
	}

	var res []Recorded
	for _, rec := range s.all {
		if rec.Global <= after {
			continue
		}

		res = append(res, rec)
		if len(res) == limit {
			break
		}
	}

	return copyRecords(res), nil
}

func (s *MemoryStore) ReadLast(_ context.Context, _ transactional.Transaction, stream StreamID, n int) ([]Recorded, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	idx := s.streams[stream]

	var res []Recorded
	for i := len(idx) - 1; i >= 0 && len(res) < n; i-- {
		res = append(res, s.all[idx[i]])
	}

	return copyRecords(res), nil
}

// copyRecords hands out deep copies so callers cannot alias the payload
// bytes still referenced by the store.
func copyRecords(recs []Recorded) []Recorded {
	if recs == nil {
		return nil
	}

	return deepcopy.MustAnything(recs).([]Recorded)
}
