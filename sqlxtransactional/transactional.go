// Package sqlxtransactional adapts an sqlx database handle to the
// transactional contract the stores and runners are written against. The
// transactions it begins are *sqlx.Tx, which is what the SQL-backed stores
// assert them back to.
package sqlxtransactional

import (
	"context"
	"database/sql"

	"github.com/jmoiron/sqlx"
	"github.com/thefabric-io/transactional"
)

func New(db *sqlx.DB) transactional.Transactional {
	return &sqlxTransactional{db: db, logFields: map[string]any{}}
}

type sqlxTransactional struct {
	db        *sqlx.DB
	logFields map[string]any
}

func (t *sqlxTransactional) BeginTransaction(ctx context.Context, opts transactional.BeginTransactionOptions) (transactional.Transaction, error) {
	var txOpts *sql.TxOptions

	// SQLite transactions are serializable regardless; asking its driver
	// for an explicit level is an error, so only Postgres gets one.
	if t.db.DriverName() == "postgres" {
		txOpts = &sql.TxOptions{Isolation: isolation(opts.IsolationLevel)}
	}

	tx, err := t.db.BeginTxx(ctx, txOpts)
	if err != nil {
		return nil, err
	}

	return tx, nil
}

func (t *sqlxTransactional) DefaultLogFields() map[string]any {
	return t.logFields
}

func (t *sqlxTransactional) WithLogFields(fields map[string]any) transactional.Transactional {
	merged := make(map[string]any, len(t.logFields)+len(fields))
	for k, v := range t.logFields {
		merged[k] = v
	}
	for k, v := range fields {
		merged[k] = v
	}

	return &sqlxTransactional{db: t.db, logFields: merged}
}

func isolation(level transactional.TxIsoLevel) sql.IsolationLevel {
	switch level {
	case transactional.Serializable:
		return sql.LevelSerializable
	case transactional.RepeatableRead:
		return sql.LevelRepeatableRead
	default:
		return sql.LevelDefault
	}
}
