package projection

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/thefabric-io/transactional"

	"github.com/ubi-mirrors/hackyourjob-crazyeights/eventstore"
)

// SQLCheckpointStore persists checkpoints in the same database as the
// derived rows, which is what lets a row update and its checkpoint advance
// share one transaction.
type SQLCheckpointStore struct{}

func NewSQLCheckpointStore() *SQLCheckpointStore {
	return &SQLCheckpointStore{}
}

func (s *SQLCheckpointStore) Load(ctx context.Context, transaction transactional.Transaction, name string) (Checkpoint, error) {
	tx := transaction.(*sqlx.Tx)

	var row struct {
		Guard        string `db:"guard"`
		LastPosition int64  `db:"last_position"`
	}

	query := tx.Rebind(`select guard, last_position from crazyeights_checkpoints where projection = ?`)

	if err := tx.GetContext(ctx, &row, query, name); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Checkpoint{}, nil
		}

		return Checkpoint{}, err
	}

	return Checkpoint{
		Guard:    row.Guard,
		Position: eventstore.GlobalPosition(row.LastPosition),
	}, nil
}

func (s *SQLCheckpointStore) Save(ctx context.Context, transaction transactional.Transaction, name string, cp Checkpoint) error {
	tx := transaction.(*sqlx.Tx)

	query := tx.Rebind(`insert into crazyeights_checkpoints(projection, guard, last_position, updated_at)
		values (?, ?, ?, ?)
		on conflict (projection) do update set
			guard = excluded.guard,
			last_position = excluded.last_position,
			updated_at = excluded.updated_at`)

	_, err := tx.ExecContext(ctx, query, name, cp.Guard, int64(cp.Position), time.Now())

	return err
}

// EnsureTables creates the read-model and checkpoint tables. The DDL is
// deliberately the portable subset both Postgres and SQLite accept.
func EnsureTables(db *sqlx.DB) error {
	ddl := []string{
		`create table if not exists crazyeights_cards_played(
			game_id bigint primary key,
			played bigint not null
		);`,
		`create table if not exists crazyeights_player_streaks(
			game_id bigint not null,
			player bigint not null,
			streak bigint not null,
			primary key (game_id, player)
		);`,
		`create table if not exists crazyeights_checkpoints(
			projection varchar primary key,
			guard varchar not null,
			last_position bigint not null,
			updated_at timestamp
		);`,
	}

	for _, q := range ddl {
		if _, err := db.Exec(q); err != nil {
			return err
		}
	}

	return nil
}
