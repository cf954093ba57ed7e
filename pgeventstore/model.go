package pgeventstore

import (
	"database/sql"
	"encoding/json"
	"time"

	"github.com/ubi-mirrors/hackyourjob-crazyeights/eventstore"
)

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

func marshalSQL(stream eventstore.StreamID, version eventstore.Version, e eventstore.EventData) *event {
	return &event{
		ID:           sqlString(e.ID, true),
		Stream:       sqlString(string(stream), true),
		Version:      sqlInt64(int64(version), true),
		Type:         sqlString(e.Type, true),
		OccurredAt:   sqlTime(e.OccurredAt, !e.OccurredAt.IsZero()),
		RegisteredAt: sqlTime(time.Now(), true),
		Data:         sqlBytes(e.Data, e.Data != nil),
		Metadata:     sqlBytes(e.Metadata, e.Metadata != nil),
	}
}

func (e event) recorded() eventstore.Recorded {
	return eventstore.Recorded{
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

func recordedAll(events []event) []eventstore.Recorded {
	res := make([]eventstore.Recorded, len(events))
	for i, e := range events {
		res[i] = e.recorded()
	}

	return res
}

func sqlString(s string, valid bool) sql.NullString {
	return sql.NullString{
		String: s,
		Valid:  valid,
	}
}

func sqlInt64(i int64, valid bool) sql.NullInt64 {
	return sql.NullInt64{
		Int64: i,
		Valid: valid,
	}
}

func sqlBytes(b []byte, valid bool) []byte {
	if !valid {
		return []byte(`{}`)
	}

	return b
}

func sqlTime(t time.Time, valid bool) sql.NullTime {
	return sql.NullTime{
		Time:  t,
		Valid: valid,
	}
}
