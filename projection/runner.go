package projection

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/thefabric-io/transactional"

	"github.com/ubi-mirrors/hackyourjob-crazyeights/eventstore"
	"github.com/ubi-mirrors/hackyourjob-crazyeights/game"
)

// Runner drives one projection over the globally ordered log. It is a
// single sequential consumer: positions are never processed out of order or
// in parallel, because each update depends on the prior derived state for
// its key.
//
// Incremental mode (Start) commits one transaction per event, pairing the
// row update with the checkpoint advance. Batch mode (CatchUp) folds the
// whole unconsumed suffix in a single all-or-nothing transaction. Either
// way a cycle can be aborted mid-stream without losing recorded progress.
type Runner struct {
	transactional    transactional.Transactional
	store            eventstore.Store
	checkpoints      CheckpointStore
	projection       Projection
	batchSize        int
	waitTime         time.Duration
	waitTimeIfEvents time.Duration
}

// RunnerOption configures optional Runner parameters.
type RunnerOption func(*Runner)

// WithBatchSize sets the per-iteration fetch size.
func WithBatchSize(n int) RunnerOption {
	return func(r *Runner) {
		if n > 0 {
			r.batchSize = n
		}
	}
}

// WithWaitTimes sets the idle wait and the wait between batches when events
// were found.
func WithWaitTimes(wait, waitIfEvents time.Duration) RunnerOption {
	return func(r *Runner) {
		if wait < 0 {
			wait = 0
		}
		if waitIfEvents < 0 {
			waitIfEvents = 0
		}
		r.waitTime = wait
		r.waitTimeIfEvents = waitIfEvents
	}
}

func NewRunner(tx transactional.Transactional, store eventstore.Store, checkpoints CheckpointStore, p Projection, opts ...RunnerOption) *Runner {
	r := &Runner{
		transactional:    tx,
		store:            store,
		checkpoints:      checkpoints,
		projection:       p,
		batchSize:        100,
		waitTime:         time.Second,
		waitTimeIfEvents: 100 * time.Millisecond,
	}

	for _, opt := range opts {
		opt(r)
	}

	return r
}

// Start polls the log until the context is cancelled, applying new events
// incrementally.
func (r *Runner) Start(ctx context.Context) error {
	logrus.WithField("projection", r.projection.Name()).Info("projection runner started")

	for {
		func() {
			defer func() {
				if rec := recover(); rec != nil {
					logrus.Errorf("panic recovered in projection runner %s: %v", r.projection.Name(), rec)
					time.Sleep(r.waitTime)
				}
			}()

			if ctx.Err() != nil {
				return
			}

			applied, err := r.runOnce(ctx)
			if err != nil {
				logrus.WithField("projection", r.projection.Name()).Error("error processing events: ", err)
				time.Sleep(r.waitTime)
				return
			}

			if applied == 0 {
				time.Sleep(r.waitTime)
			} else {
				time.Sleep(r.waitTimeIfEvents)
			}
		}()

		if ctx.Err() != nil {
			return ctx.Err()
		}
	}
}

// runOnce processes at most one batch: it rebuilds first if the persisted
// guard does not match, then applies each newer event in its own
// transaction. It reports how many events it saw.
func (r *Runner) runOnce(ctx context.Context) (int, error) {
	cp, err := r.ensureGuard(ctx)
	if err != nil {
		return 0, err
	}

	recs, err := r.readBatch(ctx, cp.Position)
	if err != nil {
		return 0, err
	}

	for _, rec := range recs {
		if err := r.applyOne(ctx, rec); err != nil {
			return len(recs), err
		}
	}

	return len(recs), nil
}

// CatchUp folds the entire unconsumed suffix of the log in one transaction.
// It commits only if the guard had to be reset or at least one event was
// newer than the checkpoint; otherwise it rolls back and writes nothing.
func (r *Runner) CatchUp(ctx context.Context) error {
	tx, err := r.begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	cp, err := r.checkpoints.Load(ctx, tx, r.projection.Name())
	if err != nil {
		return err
	}

	mustCommit := false

	if cp.Guard != r.projection.Guard() {
		if err := r.projection.Reset(ctx, tx); err != nil {
			return err
		}

		cp = Checkpoint{Guard: r.projection.Guard()}
		mustCommit = true
	}

	position := cp.Position
	newer := 0

	for {
		recs, err := r.store.ReadAll(ctx, tx, position, r.batchSize)
		if err != nil {
			return err
		}

		for _, rec := range recs {
			position = rec.Global

			if rec.Global <= cp.Position {
				continue
			}

			// Unrouted events still count: the checkpoint must move past
			// them or every later run rescans the same suffix.
			newer++

			if !routed(rec) {
				continue
			}

			if err := r.projection.Apply(ctx, tx, rec); err != nil {
				return err
			}
		}

		if len(recs) < r.batchSize {
			break
		}
	}

	if newer == 0 && !mustCommit {
		return nil
	}

	cp.Position = position

	if err := r.checkpoints.Save(ctx, tx, r.projection.Name(), cp); err != nil {
		return err
	}

	return tx.Commit()
}

// ensureGuard loads the checkpoint and, when its guard does not match the
// projection, discards the derived rows and restarts the checkpoint from
// position zero, committing that reset before any replay begins.
func (r *Runner) ensureGuard(ctx context.Context) (Checkpoint, error) {
	tx, err := r.begin(ctx)
	if err != nil {
		return Checkpoint{}, err
	}
	defer tx.Rollback()

	cp, err := r.checkpoints.Load(ctx, tx, r.projection.Name())
	if err != nil {
		return Checkpoint{}, err
	}

	if cp.Guard == r.projection.Guard() {
		return cp, nil
	}

	logrus.WithFields(logrus.Fields{
		"projection": r.projection.Name(),
		"guard":      r.projection.Guard(),
	}).Info("projection guard changed, rebuilding from the start of the log")

	if err := r.projection.Reset(ctx, tx); err != nil {
		return Checkpoint{}, err
	}

	cp = Checkpoint{Guard: r.projection.Guard()}

	if err := r.checkpoints.Save(ctx, tx, r.projection.Name(), cp); err != nil {
		return Checkpoint{}, err
	}

	if err := tx.Commit(); err != nil {
		return Checkpoint{}, err
	}

	return cp, nil
}

func (r *Runner) readBatch(ctx context.Context, after eventstore.GlobalPosition) ([]eventstore.Recorded, error) {
	tx, err := r.begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	recs, err := r.store.ReadAll(ctx, tx, after, r.batchSize)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}

	return recs, nil
}

// applyOne commits the row update and the checkpoint advance as one atomic
// unit. The position gate makes redelivered events no-ops.
func (r *Runner) applyOne(ctx context.Context, rec eventstore.Recorded) error {
	tx, err := r.begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	cp, err := r.checkpoints.Load(ctx, tx, r.projection.Name())
	if err != nil {
		return err
	}

	if rec.Global <= cp.Position {
		return nil
	}

	if routed(rec) {
		if err := r.projection.Apply(ctx, tx, rec); err != nil {
			return err
		}
	}

	cp.Position = rec.Global

	if err := r.checkpoints.Save(ctx, tx, r.projection.Name(), cp); err != nil {
		return err
	}

	return tx.Commit()
}

// routed reports whether the record belongs to a recognized game stream.
// Snapshot streams and foreign streams are skipped (their positions still
// advance the checkpoint).
func routed(rec eventstore.Recorded) bool {
	_, ok := game.ParseStream(string(rec.Stream))
	return ok
}

func (r *Runner) begin(ctx context.Context) (transactional.Transaction, error) {
	return r.transactional.BeginTransaction(ctx, transactional.BeginTransactionOptions{
		AccessMode:     transactional.ReadWrite,
		IsolationLevel: transactional.Serializable,
		DeferrableMode: transactional.NotDeferrable,
	})
}
