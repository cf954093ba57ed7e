package projection

import (
	"context"
	"testing"

	"github.com/thefabric-io/transactional"

	"github.com/ubi-mirrors/hackyourjob-crazyeights/eventstore"
	"github.com/ubi-mirrors/hackyourjob-crazyeights/game"
)

type txStub struct{}

func (txStub) Commit() error   { return nil }
func (txStub) Rollback() error { return nil }

type transactionalStub struct{}

func (transactionalStub) BeginTransaction(context.Context, transactional.BeginTransactionOptions) (transactional.Transaction, error) {
	return txStub{}, nil
}
func (transactionalStub) DefaultLogFields() map[string]any                           { return map[string]any{} }
func (t transactionalStub) WithLogFields(map[string]any) transactional.Transactional { return t }

// countingProjection records every global position it was asked to fold, so
// tests can observe exactly which events reached it and in which order.
type countingProjection struct {
	guard   string
	applied []eventstore.GlobalPosition
	resets  int
}

func (p *countingProjection) Name() string  { return "counting" }
func (p *countingProjection) Guard() string { return p.guard }

func (p *countingProjection) Apply(_ context.Context, _ transactional.Transaction, rec eventstore.Recorded) error {
	p.applied = append(p.applied, rec.Global)
	return nil
}

func (p *countingProjection) Reset(context.Context, transactional.Transaction) error {
	p.resets++
	p.applied = nil
	return nil
}

func appendEvent(t *testing.T, store eventstore.Store, stream string, expected eventstore.Version, e game.Event) {
	t.Helper()

	tag, data, err := game.EncodeEvent(e)
	if err != nil {
		t.Fatal(err)
	}

	_, err = store.Append(context.Background(), txStub{}, eventstore.StreamID(stream), expected, []eventstore.EventData{
		eventstore.NewEventData(tag, data, nil),
	})
	if err != nil {
		t.Fatal(err)
	}
}

func seedGame(t *testing.T, store eventstore.Store, id game.GameID) {
	t.Helper()

	six := game.Card{Rank: game.Six, Suit: game.Club}

	appendEvent(t, store, id.Stream(), 0, game.GameStarted{Players: 4, FirstCard: six, Effect: game.Next})
	appendEvent(t, store, id.Stream(), 1, game.CardPlayed{Player: 1, Card: game.Card{Rank: game.Six, Suit: game.Spade}, Effect: game.Next})
}

func TestRunOnceAppliesAndCheckpoints(t *testing.T) {
	store := eventstore.NewMemoryStore()
	cps := NewMemoryCheckpointStore()
	p := &countingProjection{guard: "counting@v1"}
	r := NewRunner(transactionalStub{}, store, cps, p)

	seedGame(t, store, 7)

	applied, err := r.runOnce(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if applied != 2 {
		t.Fatalf("expected 2 events seen, got %d", applied)
	}
	if len(p.applied) != 2 {
		t.Fatalf("expected 2 events applied, got %d", len(p.applied))
	}

	cp, err := cps.Load(context.Background(), txStub{}, p.Name())
	if err != nil {
		t.Fatal(err)
	}
	if cp.Position != 2 {
		t.Fatalf("expected checkpoint at position 2, got %d", cp.Position)
	}
	if cp.Guard != p.Guard() {
		t.Fatalf("expected guard %q, got %q", p.Guard(), cp.Guard)
	}
}

// Events at or below the checkpoint must fold exactly once no matter how
// often the poll loop rereads them.
func TestRedeliveryIsNoop(t *testing.T) {
	store := eventstore.NewMemoryStore()
	cps := NewMemoryCheckpointStore()
	p := &countingProjection{guard: "counting@v1"}
	r := NewRunner(transactionalStub{}, store, cps, p)

	seedGame(t, store, 7)

	if _, err := r.runOnce(context.Background()); err != nil {
		t.Fatal(err)
	}

	before := len(p.applied)

	// Force a reread of the same batch from position zero.
	for _, rec := range readAll(t, store) {
		if err := r.applyOne(context.Background(), rec); err != nil {
			t.Fatal(err)
		}
	}

	if len(p.applied) != before {
		t.Fatalf("redelivery changed the projection: %d -> %d applications", before, len(p.applied))
	}
}

func TestGuardMismatchRebuilds(t *testing.T) {
	store := eventstore.NewMemoryStore()
	cps := NewMemoryCheckpointStore()

	seedGame(t, store, 7)

	old := &countingProjection{guard: "counting@v1"}
	if _, err := NewRunner(transactionalStub{}, store, cps, old).runOnce(context.Background()); err != nil {
		t.Fatal(err)
	}

	// Same name, new guard: the persisted checkpoint no longer matches.
	next := &countingProjection{guard: "counting@v2"}
	r := NewRunner(transactionalStub{}, store, cps, next)

	applied, err := r.runOnce(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if next.resets != 1 {
		t.Fatalf("expected one reset, got %d", next.resets)
	}
	if applied != 2 {
		t.Fatalf("expected the full log replayed, got %d events", applied)
	}

	cp, _ := cps.Load(context.Background(), txStub{}, next.Name())
	if cp.Guard != "counting@v2" {
		t.Fatalf("expected rewritten guard, got %q", cp.Guard)
	}
	if cp.Position != 2 {
		t.Fatalf("expected checkpoint at position 2, got %d", cp.Position)
	}
}

// Snapshot streams and foreign streams never reach Apply, but their
// positions still advance the checkpoint so they are not reread forever.
func TestRoutingSkipsForeignStreams(t *testing.T) {
	store := eventstore.NewMemoryStore()
	cps := NewMemoryCheckpointStore()
	p := &countingProjection{guard: "counting@v1"}
	r := NewRunner(transactionalStub{}, store, cps, p)

	id := game.GameID(7)
	six := game.Card{Rank: game.Six, Suit: game.Club}

	appendEvent(t, store, id.Stream(), 0, game.GameStarted{Players: 4, FirstCard: six, Effect: game.Next})
	appendEvent(t, store, id.SnapshotStream(), 0, game.GameStarted{Players: 4, FirstCard: six, Effect: game.Next})
	appendEvent(t, store, "billing-42", 0, game.GameStarted{Players: 4, FirstCard: six, Effect: game.Next})

	if _, err := r.runOnce(context.Background()); err != nil {
		t.Fatal(err)
	}

	if len(p.applied) != 1 {
		t.Fatalf("expected only the game stream event applied, got %d", len(p.applied))
	}

	cp, _ := cps.Load(context.Background(), txStub{}, p.Name())
	if cp.Position != 3 {
		t.Fatalf("expected checkpoint past the skipped streams, got %d", cp.Position)
	}
}

func TestCatchUpFoldsSuffixOnce(t *testing.T) {
	store := eventstore.NewMemoryStore()
	cps := NewMemoryCheckpointStore()
	p := &countingProjection{guard: "counting@v1"}
	r := NewRunner(transactionalStub{}, store, cps, p, WithBatchSize(1))

	seedGame(t, store, 7)

	if err := r.CatchUp(context.Background()); err != nil {
		t.Fatal(err)
	}
	if len(p.applied) != 2 {
		t.Fatalf("expected 2 events applied, got %d", len(p.applied))
	}

	cp, _ := cps.Load(context.Background(), txStub{}, p.Name())
	if cp.Position != 2 {
		t.Fatalf("expected checkpoint at position 2, got %d", cp.Position)
	}

	// Nothing new: a second catch-up applies nothing and leaves the
	// checkpoint untouched.
	if err := r.CatchUp(context.Background()); err != nil {
		t.Fatal(err)
	}
	if len(p.applied) != 2 {
		t.Fatalf("expected no further applications, got %d", len(p.applied))
	}
}

// A suffix made only of snapshot and foreign-stream events must still move
// the checkpoint, or every later catch-up rescans the same records.
func TestCatchUpAdvancesPastUnroutedEvents(t *testing.T) {
	store := eventstore.NewMemoryStore()
	cps := NewMemoryCheckpointStore()
	p := &countingProjection{guard: "counting@v1"}
	r := NewRunner(transactionalStub{}, store, cps, p)

	// First run persists the guard so the next one has nothing forcing a
	// commit.
	if err := r.CatchUp(context.Background()); err != nil {
		t.Fatal(err)
	}

	id := game.GameID(7)
	six := game.Card{Rank: game.Six, Suit: game.Club}

	appendEvent(t, store, id.SnapshotStream(), 0, game.GameStarted{Players: 4, FirstCard: six, Effect: game.Next})
	appendEvent(t, store, "billing-42", 0, game.GameStarted{Players: 4, FirstCard: six, Effect: game.Next})

	if err := r.CatchUp(context.Background()); err != nil {
		t.Fatal(err)
	}
	if len(p.applied) != 0 {
		t.Fatalf("expected nothing applied, got %d", len(p.applied))
	}

	cp, _ := cps.Load(context.Background(), txStub{}, p.Name())
	if cp.Position != 2 {
		t.Fatalf("expected checkpoint past the unrouted events, got %d", cp.Position)
	}
}

func TestCatchUpGuardResetCommitsEvenWhenLogIsEmpty(t *testing.T) {
	store := eventstore.NewMemoryStore()
	cps := NewMemoryCheckpointStore()

	// Persist a checkpoint under an old guard with no events behind it.
	if err := cps.Save(context.Background(), txStub{}, "counting", Checkpoint{Guard: "counting@v0", Position: 0}); err != nil {
		t.Fatal(err)
	}

	p := &countingProjection{guard: "counting@v1"}
	r := NewRunner(transactionalStub{}, store, cps, p)

	if err := r.CatchUp(context.Background()); err != nil {
		t.Fatal(err)
	}
	if p.resets != 1 {
		t.Fatalf("expected one reset, got %d", p.resets)
	}

	cp, _ := cps.Load(context.Background(), txStub{}, p.Name())
	if cp.Guard != "counting@v1" {
		t.Fatalf("expected the new guard persisted, got %q", cp.Guard)
	}
}

func readAll(t *testing.T, store eventstore.Store) []eventstore.Recorded {
	t.Helper()

	recs, err := store.ReadAll(context.Background(), txStub{}, 0, 0)
	if err != nil {
		t.Fatal(err)
	}

	return recs
}
