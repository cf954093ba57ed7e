// Package projection keeps derived read models in sync with the global
// event log. A projection's state is disposable: it can always be rebuilt
// by replaying the log from the start, so it is a cache, never a source of
// truth. What makes it safe is the checkpoint: derived rows and the
// last-applied global position commit in the same transaction, and events
// at or below the checkpoint are skipped, so redelivery is a no-op.
package projection

import (
	"context"
	"sync"

	"github.com/thefabric-io/transactional"

	"github.com/ubi-mirrors/hackyourjob-crazyeights/eventstore"
)

// Checkpoint is a projection's persisted progress: the schema guard its
// rows were written under and the last global position it applied.
type Checkpoint struct {
	Guard    string
	Position eventstore.GlobalPosition
}

// CheckpointStore persists one Checkpoint per named projection. Load of an
// unknown name returns the zero Checkpoint, whose empty guard never matches
// a projection's guard and therefore triggers a rebuild.
type CheckpointStore interface {
	Load(ctx context.Context, tx transactional.Transaction, name string) (Checkpoint, error)
	Save(ctx context.Context, tx transactional.Transaction, name string, cp Checkpoint) error
}

// Projection is one named read model fed from the log.
type Projection interface {
	// Name keys the checkpoint row.
	Name() string

	// Guard tags the derived rows' schema. Changing the update rules or
	// the row layout means bumping the guard, which discards and rebuilds
	// the read model on the next run.
	Guard() string

	// Apply folds one recorded event into the derived rows inside tx. It
	// is only called for events the runner routed to this projection.
	Apply(ctx context.Context, tx transactional.Transaction, rec eventstore.Recorded) error

	// Reset discards all derived rows, ahead of a rebuild.
	Reset(ctx context.Context, tx transactional.Transaction) error
}

// MemoryCheckpointStore is an in-process CheckpointStore for tests.
type MemoryCheckpointStore struct {
	mu  sync.RWMutex
	cps map[string]Checkpoint
}

func NewMemoryCheckpointStore() *MemoryCheckpointStore {
	return &MemoryCheckpointStore{cps: make(map[string]Checkpoint)}
}

func (s *MemoryCheckpointStore) Load(_ context.Context, _ transactional.Transaction, name string) (Checkpoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.cps[name], nil
}

func (s *MemoryCheckpointStore) Save(_ context.Context, _ transactional.Transaction, name string, cp Checkpoint) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.cps[name] = cp

	return nil
}
