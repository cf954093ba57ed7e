// Package gateway owns the command cycle of one game stream: load state by
// replay, decide, append with an expected version, retry on conflict. It is
// the only writer-side coordinator; the log's total order per stream is what
// serializes concurrent writers, never a lock.
package gateway

import (
	"context"
	"errors"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/thefabric-io/transactional"

	"github.com/ubi-mirrors/hackyourjob-crazyeights/eventstore"
	"github.com/ubi-mirrors/hackyourjob-crazyeights/game"
)

// ErrConflict is returned when a command kept losing the optimistic append
// race until the attempt budget ran out. The command was not applied.
var ErrConflict = errors.New("too many concurrent writes, command not applied")

// Gateway reconstructs game state from the log (optionally shortcut by a
// snapshot), runs the decider, and appends the produced events under the
// version the state was loaded at.
type Gateway struct {
	transactional transactional.Transactional
	store         eventstore.Store
	snapshots     *SnapshotStore

	maxAttempts     int
	snapshotEvery   int
	retryInitial    time.Duration
	retryMultiplier float64
}

// Option configures optional Gateway parameters.
type Option func(*Gateway)

// WithMaxAttempts bounds the append retry loop, first try included.
func WithMaxAttempts(n int) Option {
	return func(g *Gateway) {
		if n > 0 {
			g.maxAttempts = n
		}
	}
}

// WithSnapshotEvery writes a snapshot whenever the stream version is a
// multiple of n. Zero disables snapshotting.
func WithSnapshotEvery(n int) Option {
	return func(g *Gateway) {
		if n >= 0 {
			g.snapshotEvery = n
		}
	}
}

// WithRetryPolicy sets the backoff between conflicting attempts.
func WithRetryPolicy(initial time.Duration, multiplier float64) Option {
	return func(g *Gateway) {
		if initial > 0 {
			g.retryInitial = initial
		}
		if multiplier >= 1 {
			g.retryMultiplier = multiplier
		}
	}
}

// WithGuard overrides the snapshot schema guard, mostly for tests.
func WithGuard(guard string) Option {
	return func(g *Gateway) {
		g.snapshots = NewSnapshotStore(g.store, guard)
	}
}

func New(tx transactional.Transactional, store eventstore.Store, opts ...Option) *Gateway {
	g := &Gateway{
		transactional:   tx,
		store:           store,
		maxAttempts:     3,
		snapshotEvery:   50,
		retryInitial:    50 * time.Millisecond,
		retryMultiplier: 2.0,
	}

	g.snapshots = NewSnapshotStore(store, SnapshotGuard)

	for _, opt := range opts {
		opt(g)
	}

	return g
}

// LoadState replays a game to its current state and version.
func (g *Gateway) LoadState(ctx context.Context, id game.GameID) (game.State, eventstore.Version, error) {
	tx, err := g.begin(ctx)
	if err != nil {
		return nil, 0, err
	}
	defer tx.Rollback()

	state, version, err := g.load(ctx, tx, id)
	if err != nil {
		return nil, 0, err
	}

	if err := tx.Commit(); err != nil {
		return nil, 0, err
	}

	return state, version, nil
}

// Submit runs one command cycle. On a version conflict it reloads only the
// delta appended since the version it held, re-runs the decider against the
// fresh state, and tries again, bounded by the attempt budget. Decision
// failures are surfaced immediately; they do not consume retries because no
// amount of reloading makes a structurally inapplicable command apply.
func (g *Gateway) Submit(ctx context.Context, id game.GameID, cmd game.Command) ([]game.Event, eventstore.Version, error) {
	var (
		state   game.State
		version eventstore.Version
		loaded  bool
	)

	backoff := g.retryInitial

	for attempt := 1; attempt <= g.maxAttempts; attempt++ {
		events, newVersion, err := g.try(ctx, id, cmd, &state, &version, &loaded)
		if err == nil {
			return events, newVersion, nil
		}

		if !errors.Is(err, eventstore.ErrVersionConflict) {
			return nil, 0, err
		}

		logrus.WithFields(logrus.Fields{
			"game":    id,
			"attempt": attempt,
		}).Warn("append conflicted, reloading")

		if attempt < g.maxAttempts {
			time.Sleep(backoff)
			backoff = time.Duration(float64(backoff) * g.retryMultiplier)
		}
	}

	return nil, 0, ErrConflict
}

func (g *Gateway) try(ctx context.Context, id game.GameID, cmd game.Command, state *game.State, version *eventstore.Version, loaded *bool) ([]game.Event, eventstore.Version, error) {
	tx, err := g.begin(ctx)
	if err != nil {
		return nil, 0, err
	}
	defer tx.Rollback()

	if !*loaded {
		s, v, err := g.load(ctx, tx, id)
		if err != nil {
			return nil, 0, err
		}

		*state, *version, *loaded = s, v, true
	} else {
		s, v, err := g.replayDelta(ctx, tx, id, *state, *version)
		if err != nil {
			return nil, 0, err
		}

		*state, *version = s, v
	}

	events, err := game.Decide(*state, cmd)
	if err != nil {
		return nil, 0, err
	}

	data := make([]eventstore.EventData, len(events))
	for i, e := range events {
		t, payload, err := game.EncodeEvent(e)
		if err != nil {
			return nil, 0, err
		}

		data[i] = eventstore.NewEventData(t, payload, nil)
	}

	newVersion, err := g.store.Append(ctx, tx, eventstore.StreamID(id.Stream()), *version, data)
	if err != nil {
		return nil, 0, err
	}

	if g.snapshotEvery > 0 && int64(newVersion)%int64(g.snapshotEvery) == 0 {
		next := game.ReplayFrom(*state, events)
		if err := g.snapshots.Save(ctx, tx, id, next, newVersion); err != nil {
			return nil, 0, err
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, 0, err
	}

	return events, newVersion, nil
}

// load reconstructs state from the newest compatible snapshot plus the
// events appended after it, or from the whole stream when no snapshot can
// be trusted.
func (g *Gateway) load(ctx context.Context, tx transactional.Transaction, id game.GameID) (game.State, eventstore.Version, error) {
	state := game.InitialState()

	var version eventstore.Version

	if s, v, ok, err := g.snapshots.TryLoad(ctx, tx, id); err != nil {
		return nil, 0, err
	} else if ok {
		state, version = s, v
	}

	return g.replayDelta(ctx, tx, id, state, version)
}

// replayDelta folds every event recorded after the given version onto the
// state. Events whose type this build does not know are skipped, which is
// what keeps old binaries replaying logs written by newer ones.
func (g *Gateway) replayDelta(ctx context.Context, tx transactional.Transaction, id game.GameID, state game.State, version eventstore.Version) (game.State, eventstore.Version, error) {
	stream := eventstore.StreamID(id.Stream())

	for {
		recs, err := g.store.ReadStream(ctx, tx, stream, version, eventstore.DefaultReadLimit)
		if err != nil {
			return nil, 0, err
		}

		for _, rec := range recs {
			events, err := game.DecodeEvent(rec.Type, rec.Data)
			if err != nil {
				return nil, 0, err
			}

			state = game.ReplayFrom(state, events)
			version = rec.Version
		}

		if len(recs) < eventstore.DefaultReadLimit {
			return state, version, nil
		}
	}
}

func (g *Gateway) begin(ctx context.Context) (transactional.Transaction, error) {
	return g.transactional.BeginTransaction(ctx, transactional.BeginTransactionOptions{
		AccessMode:     transactional.ReadWrite,
		IsolationLevel: transactional.RepeatableRead,
		DeferrableMode: transactional.NotDeferrable,
	})
}
