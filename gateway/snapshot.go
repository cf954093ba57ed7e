package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/thefabric-io/transactional"

	"github.com/ubi-mirrors/hackyourjob-crazyeights/eventstore"
	"github.com/ubi-mirrors/hackyourjob-crazyeights/game"
)

// SnapshotGuard tags snapshots with the state encoding they were written
// under. Bump it whenever the encoding changes; stale snapshots are then
// ignored wholesale instead of migrated.
const SnapshotGuard = "crazyeights/state@v1"

const snapshotType = "snapshotted"

type snapshotPayload struct {
	Guard   string             `json:"guard"`
	Version eventstore.Version `json:"version"`
	State   json.RawMessage    `json:"state"`
}

// SnapshotStore caches periodic materializations of game state on each
// game's snapshot stream, bounding replay cost. It is a cache: a snapshot
// that cannot be trusted is treated as absent, never partially used.
type SnapshotStore struct {
	store eventstore.Store
	guard string
}

func NewSnapshotStore(store eventstore.Store, guard string) *SnapshotStore {
	return &SnapshotStore{store: store, guard: guard}
}

// TryLoad returns the newest compatible snapshot for the game, or ok=false
// when there is none: no snapshot yet, an unreadable record, or a guard
// written under a different state encoding.
func (s *SnapshotStore) TryLoad(ctx context.Context, tx transactional.Transaction, id game.GameID) (game.State, eventstore.Version, bool, error) {
	recs, err := s.store.ReadLast(ctx, tx, eventstore.StreamID(id.SnapshotStream()), 1)
	if err != nil {
		return nil, 0, false, err
	}

	if len(recs) == 0 || recs[0].Type != snapshotType {
		return nil, 0, false, nil
	}

	var payload snapshotPayload
	if err := json.Unmarshal(recs[0].Data, &payload); err != nil {
		return nil, 0, false, nil
	}

	if payload.Guard != s.guard {
		return nil, 0, false, nil
	}

	state, err := game.DecodeState(payload.State)
	if err != nil {
		return nil, 0, false, nil
	}

	return state, payload.Version, true, nil
}

// Save appends a snapshot of the state as materialized at the given stream
// version. Losing the race against a concurrent snapshotter is fine; the
// next save will land on the newer state anyway.
func (s *SnapshotStore) Save(ctx context.Context, tx transactional.Transaction, id game.GameID, state game.State, version eventstore.Version) error {
	encoded, err := game.EncodeState(state)
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}

	data, err := json.Marshal(snapshotPayload{
		Guard:   s.guard,
		Version: version,
		State:   encoded,
	})
	if err != nil {
		return err
	}

	stream := eventstore.StreamID(id.SnapshotStream())

	last, err := s.store.ReadLast(ctx, tx, stream, 1)
	if err != nil {
		return err
	}

	var expected eventstore.Version
	if len(last) > 0 {
		expected = last[0].Version
	}

	_, err = s.store.Append(ctx, tx, stream, expected, []eventstore.EventData{
		eventstore.NewEventData(snapshotType, data, nil),
	})
	if errors.Is(err, eventstore.ErrVersionConflict) {
		return nil
	}

	return err
}
