// Package sqliteeventstore is the embedded, on-disk event log used when no
// Postgres is around: same contract as pgeventstore, one SQLite file.
package sqliteeventstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/thefabric-io/transactional"
	_ "modernc.org/sqlite"

	"github.com/ubi-mirrors/hackyourjob-crazyeights/eventstore"
)

// Init opens (or creates) the database file and builds the events table.
func Init(path string) (*sqlx.DB, error) {
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)", path)

	db, err := sqlx.Connect("sqlite", dsn)
	if err != nil {
		return nil, err
	}

	// A single writer at a time keeps the expected-version check and the
	// insert behind it atomic without relying on SQLite error mapping.
	db.SetMaxOpenConns(1)

	ddl := `create table if not exists events(
		"offset" integer primary key autoincrement,
		id text not null unique,
		stream text not null,
		version integer not null,
		type text not null,
		occurred_at timestamp,
		registered_at timestamp,
		data blob,
		metadata blob,
		unique (stream, version)
	);`

	if _, err := db.Exec(ddl); err != nil {
		return nil, err
	}

	return db, nil
}

// Storage returns the SQLite-backed event log.
func Storage() eventstore.Store {
	return &storage{}
}

type storage struct{}

type event struct {
	ID           sql.NullString  `db:"id"`
	Offset       sql.NullInt64   `db:"offset"`
	Stream       sql.NullString  `db:"stream"`
	Version      sql.NullInt64   `db:"version"`
	Type         sql.NullString  `db:"type"`
	OccurredAt   sql.NullTime    `db:"occurred_at"`
	RegisteredAt sql.NullTime    `db:"registered_at"`
	Data         json.RawMessage `db:"data"`
	Metadata     json.RawMessage `db:"metadata"`
}

func (s *storage) Append(ctx context.Context, transaction transactional.Transaction, stream eventstore.StreamID, expected eventstore.Version, events []eventstore.EventData) (eventstore.Version, error) {
	tx := transaction.(*sqlx.Tx)

	var current sql.NullInt64
	if err := tx.GetContext(ctx, &current, `select max(version) from events where stream = ?`, stream); err != nil {
		return 0, err
	}

	if eventstore.Version(current.Int64) != expected {
		return eventstore.Version(current.Int64), eventstore.ErrVersionConflict
	}

	query := `insert into events(id, stream, version, type, occurred_at, registered_at, data, metadata)
		values (?, ?, ?, ?, ?, ?, ?, ?)`

	version := expected
	for _, e := range events {
		version++

		data := e.Data
		if data == nil {
			data = json.RawMessage(`{}`)
		}

		metadata := e.Metadata
		if metadata == nil {
			metadata = json.RawMessage(`{}`)
		}

		_, err := tx.ExecContext(ctx, query,
			e.ID, string(stream), int64(version), e.Type, e.OccurredAt, time.Now(), []byte(data), []byte(metadata))
		if err != nil {
			if strings.Contains(err.Error(), "UNIQUE constraint failed") {
				return expected, eventstore.ErrVersionConflict
			}

			return 0, err
		}
	}

	return version, nil
}

func (s *storage) ReadStream(ctx context.Context, transaction transactional.Transaction, stream eventstore.StreamID, after eventstore.Version, limit int) ([]eventstore.Recorded, error) {
	if limit <= 0 {
		limit = eventstore.DefaultReadLimit
	}

	query := fmt.Sprintf(`select
		id, "offset", stream, version, type, occurred_at, registered_at, data, metadata
	from events where stream = ? and version > ?
	order by version asc limit %d`, limit)

	tx := transaction.(*sqlx.Tx)

	var events []event
	if err := tx.SelectContext(ctx, &events, query, stream, after); err != nil {
		return nil, err
	}

	return recordedAll(events), nil
}

func (s *storage) ReadAll(ctx context.Context, transaction transactional.Transaction, after eventstore.GlobalPosition, limit int) ([]eventstore.Recorded, error) {
	if limit <= 0 {
		limit = eventstore.DefaultReadLimit
	}

	query := fmt.Sprintf(`select
		id, "offset", stream, version, type, occurred_at, registered_at, data, metadata
	from events where "offset" > ?
	order by "offset" asc limit %d`, limit)

	tx := transaction.(*sqlx.Tx)

	var events []event
	if err := tx.SelectContext(ctx, &events, query, after); err != nil {
		return nil, err
	}

	return recordedAll(events), nil
}

func (s *storage) ReadLast(ctx context.Context, transaction transactional.Transaction, stream eventstore.StreamID, n int) ([]eventstore.Recorded, error) {
	query := fmt.Sprintf(`select
		id, "offset", stream, version, type, occurred_at, registered_at, data, metadata
	from events where stream = ?
	order by version desc limit %d`, n)

	tx := transaction.(*sqlx.Tx)

	var events []event
	if err := tx.SelectContext(ctx, &events, query, stream); err != nil {
		return nil, err
	}

	return recordedAll(events), nil
}

func recordedAll(events []event) []eventstore.Recorded {
	res := make([]eventstore.Recorded, len(events))
	for i, e := range events {
		res[i] = eventstore.Recorded{
			EventData: eventstore.EventData{
				ID:         e.ID.String,
				Type:       e.Type.String,
				Data:       e.Data,
				Metadata:   e.Metadata,
				OccurredAt: e.OccurredAt.Time,
			},
			Stream:       eventstore.StreamID(e.Stream.String),
			Version:      eventstore.Version(e.Version.Int64),
			Global:       eventstore.GlobalPosition(e.Offset.Int64),
			RegisteredAt: e.RegisteredAt.Time,
		}
	}

	return res
}
