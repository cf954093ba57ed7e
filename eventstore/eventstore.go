package eventstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/segmentio/ksuid"
	"github.com/thefabric-io/transactional"
)

var (
	// ErrVersionConflict is returned by Append when the expected version no
	// longer matches the stream: another writer appended first. The caller
	// must reload before deciding again; retrying with the stale events is
	// never correct.
	ErrVersionConflict = errors.New("stream version conflict")
)

// StreamID identifies one append-only stream within the log.
type StreamID string

// Version counts the events appended to one stream. 0 is the empty stream;
// the n-th appended event has version n. It is the expected-version token
// of the optimistic-concurrency append.
type Version int64

// GlobalPosition is the log-assigned position of an event in the total
// order across all streams. Projections checkpoint on it.
type GlobalPosition int64

// EventData is an event to append: a type tag plus opaque payloads. The
// store never interprets Data or Metadata.
type EventData struct {
	ID         string
	Type       string
	Data       json.RawMessage
	Metadata   json.RawMessage
	OccurredAt time.Time
}

// NewEventData builds an EventData with a fresh id and the current time.
func NewEventData(eventType string, data json.RawMessage, metadata json.RawMessage) EventData {
	return EventData{
		ID:         fmt.Sprintf("evt_%s", ksuid.New().String()),
		Type:       eventType,
		Data:       data,
		Metadata:   metadata,
		OccurredAt: time.Now(),
	}
}

// Recorded is an event as read back from the log, with the positions the
// log assigned to it.
type Recorded struct {
	EventData

	Stream       StreamID
	Version      Version
	Global       GlobalPosition
	RegisteredAt time.Time
}

// Store is the append-only event log collaborator. Implementations must
// provide a total order of versions within a stream and of global
// positions across the whole log; that order, not any lock, is what
// serializes concurrent writers.
//
// All methods run inside the provided transaction so that an append and
// whatever row changes accompany it commit as one atomic unit.
type Store interface {
	// Append appends events to a stream if and only if the stream's
	// current version equals expected. It returns the new stream version
	// on success and ErrVersionConflict when another writer got there
	// first.
	Append(ctx context.Context, tx transactional.Transaction, stream StreamID, expected Version, events []EventData) (Version, error)

	// ReadStream reads a stream forward, strictly after the given version.
	// A non-positive limit means the implementation default.
	ReadStream(ctx context.Context, tx transactional.Transaction, stream StreamID, after Version, limit int) ([]Recorded, error)

	// ReadAll reads the whole log forward in global order, strictly after
	// the given position. A non-positive limit means the implementation
	// default.
	ReadAll(ctx context.Context, tx transactional.Transaction, after GlobalPosition, limit int) ([]Recorded, error)

	// ReadLast reads the last n events of a stream, newest first. It is
	// how snapshot streams are consulted.
	ReadLast(ctx context.Context, tx transactional.Transaction, stream StreamID, n int) ([]Recorded, error)
}

// DefaultReadLimit applies when a read is issued with a non-positive limit.
const DefaultReadLimit = 1000
