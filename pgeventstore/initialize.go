package pgeventstore

import (
	"errors"
	"fmt"
	"os"

	"github.com/jmoiron/sqlx"
	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
)

var schema = "crazyeights"

type EventStorageConfig struct {
	PostgresURL string
	Schema      string
}

// Init connects to Postgres and builds the event log schema if it does not
// exist yet. Without an explicit config it reads EVENT_STORE_PG_URL and
// EVENT_STORE_SCHEMA from the environment (a .env file is honored).
func Init(optionalConfig ...EventStorageConfig) (*sqlx.DB, error) {
	if len(optionalConfig) == 0 {
		_ = godotenv.Load()

		optionalConfig = append(optionalConfig, EventStorageConfig{
			PostgresURL: os.Getenv("EVENT_STORE_PG_URL"),
			Schema:      os.Getenv("EVENT_STORE_SCHEMA"),
		})
	} else if len(optionalConfig) > 1 {
		return nil, errors.New("only one config is allowed")
	}

	config := optionalConfig[0]

	if config.PostgresURL == "" {
		return nil, errors.New("database connection string is required")
	}

	db, err := sqlx.Connect("postgres", config.PostgresURL)
	if err != nil {
		return nil, err
	}

	if config.Schema != "" {
		schema = config.Schema
	}

	tx, err := db.Beginx()
	if err != nil {
		return nil, err
	}

	defer tx.Rollback()

	if err := buildSchema(tx); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}

	return db, nil
}

func buildSchema(tx *sqlx.Tx) error {
	if _, err := tx.Exec(fmt.Sprintf("create schema if not exists %s;", schema)); err != nil {
		return err
	}

	ddl := fmt.Sprintf(`create table if not exists %s.events(
			id varchar primary key,
			"offset" bigserial,
			stream varchar not null,
			version bigint not null,
			type varchar not null,
			occurred_at timestamptz,
			registered_at timestamptz default now(),
			data jsonb,
			metadata jsonb,
			unique (stream, version)
		);`, schema)

	if _, err := tx.Exec(ddl); err != nil {
		return err
	}

	if _, err := tx.Exec(fmt.Sprintf(`create index if not exists idx_events_offset
			on %s.events ("offset");`, schema)); err != nil {
		return err
	}

	if _, err := tx.Exec(fmt.Sprintf(`create index if not exists idx_events_stream_version
			on %s.events (stream, version);`, schema)); err != nil {
		return err
	}

	return nil
}
