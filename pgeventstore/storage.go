package pgeventstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/thefabric-io/transactional"

	"github.com/ubi-mirrors/hackyourjob-crazyeights/eventstore"
)

const maxBatchSize = 500

const pqUniqueViolation = "23505"

// Storage returns the Postgres-backed event log. Versions are serialized by
// the unique (stream, version) index: two writers racing on the same
// expected version cannot both win the insert.
func Storage() eventstore.Store {
	return &storage{}
}

type storage struct{}

func (s *storage) Append(ctx context.Context, transaction transactional.Transaction, stream eventstore.StreamID, expected eventstore.Version, events []eventstore.EventData) (eventstore.Version, error) {
	tx := transaction.(*sqlx.Tx)

	var current sql.NullInt64

	query := fmt.Sprintf(`select max(version) from %s.events where stream = $1`, schema)
	if err := tx.GetContext(ctx, &current, query, stream); err != nil {
		return 0, err
	}

	if eventstore.Version(current.Int64) != expected {
		return eventstore.Version(current.Int64), eventstore.ErrVersionConflict
	}

	rows := make([]*event, len(events))
	for i, e := range events {
		rows[i] = marshalSQL(stream, expected+eventstore.Version(i)+1, e)
	}

	if err := s.insertEvents(tx, rows); err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == pqUniqueViolation {
			return expected, eventstore.ErrVersionConflict
		}

		return 0, err
	}

	return expected + eventstore.Version(len(events)), nil
}

func (s *storage) ReadStream(ctx context.Context, transaction transactional.Transaction, stream eventstore.StreamID, after eventstore.Version, limit int) ([]eventstore.Recorded, error) {
	if limit <= 0 {
		limit = eventstore.DefaultReadLimit
	}

	query := fmt.Sprintf(`select
		id, "offset", stream, version, type, occurred_at, registered_at, data, metadata
	from %s.events where stream = $1 and version > $2
	order by version asc limit %d`, schema, limit)

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
	from %s.events where "offset" > $1
	order by "offset" asc limit %d`, schema, limit)

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
	from %s.events where stream = $1
	order by version desc limit %d`, schema, n)

	tx := transaction.(*sqlx.Tx)

	var events []event
	if err := tx.SelectContext(ctx, &events, query, stream); err != nil {
		return nil, err
	}

	return recordedAll(events), nil
}

func (s *storage) insertEvents(tx *sqlx.Tx, ee []*event) error {
	for i := 0; i < len(ee); i += maxBatchSize {
		end := i + maxBatchSize
		if end > len(ee) {
			end = len(ee)
		}

		if err := s.insertBatch(tx, ee[i:end]); err != nil {
			return err
		}
	}

	return nil
}

func (s *storage) insertBatch(tx *sqlx.Tx, ee []*event) error {
	query := fmt.Sprintf(`insert into %s.events(
		id, stream, version, type, occurred_at, registered_at, data, metadata
	) values `, schema)

	values := make([]any, 0)
	for _, e := range ee {
		query += "(?, ?, ?, ?, ?, ?, ?, ?),"
		values = append(values, e.ID, e.Stream, e.Version, e.Type, e.OccurredAt, e.RegisteredAt, e.Data, e.Metadata)
	}

	query = strings.TrimSuffix(query, ",")

	re := regexp.MustCompile(`\?`)

	var n int

	query = re.ReplaceAllStringFunc(query, func(string) string {
		n++
		return "$" + strconv.Itoa(n)
	})

	_, err := tx.Exec(query, values...)

	return err
}
