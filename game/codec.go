package game

import (
	"encoding/json"
	"fmt"
)

// Event type tags as stored in the log. Tags are part of the persisted
// contract: renaming one orphans every event already appended under it.
const (
	TypeGameStarted       = "game-started"
	TypeCardPlayed        = "card-played"
	TypeWrongCardPlayed   = "wrong-card-played"
	TypeWrongPlayerPlayed = "wrong-player-played"
	TypeInterruptMissed   = "interrupt-missed"
)

// Command type tags as accepted at the command boundary.
const (
	TypeStartGame = "start-game"
	TypePlay      = "play"
)

// EventType returns the log type tag for an event.
func EventType(e Event) string {
	switch e.(type) {
	case GameStarted:
		return TypeGameStarted
	case CardPlayed:
		return TypeCardPlayed
	case WrongCardPlayed:
		return TypeWrongCardPlayed
	case WrongPlayerPlayed:
		return TypeWrongPlayerPlayed
	case InterruptMissed:
		return TypeInterruptMissed
	default:
		return ""
	}
}

// EncodeEvent encodes an event as a (type tag, payload) pair.
func EncodeEvent(e Event) (string, json.RawMessage, error) {
	t := EventType(e)
	if t == "" {
		return "", nil, fmt.Errorf("cannot encode event %T", e)
	}

	data, err := json.Marshal(e)
	if err != nil {
		return "", nil, err
	}

	return t, data, nil
}

// DecodeEvent decodes a (type tag, payload) pair read back from the log.
// An unknown type tag decodes to an empty event list, never an error:
// replay must keep working across schema additions made after this build.
// A malformed payload under a known tag is an error.
func DecodeEvent(t string, data []byte) ([]Event, error) {
	var e Event

	switch t {
	case TypeGameStarted:
		var ev GameStarted
		if err := json.Unmarshal(data, &ev); err != nil {
			return nil, fmt.Errorf("decode %s: %w", t, err)
		}
		e = ev
	case TypeCardPlayed:
		var ev CardPlayed
		if err := json.Unmarshal(data, &ev); err != nil {
			return nil, fmt.Errorf("decode %s: %w", t, err)
		}
		e = ev
	case TypeWrongCardPlayed:
		var ev WrongCardPlayed
		if err := json.Unmarshal(data, &ev); err != nil {
			return nil, fmt.Errorf("decode %s: %w", t, err)
		}
		e = ev
	case TypeWrongPlayerPlayed:
		var ev WrongPlayerPlayed
		if err := json.Unmarshal(data, &ev); err != nil {
			return nil, fmt.Errorf("decode %s: %w", t, err)
		}
		e = ev
	case TypeInterruptMissed:
		var ev InterruptMissed
		if err := json.Unmarshal(data, &ev); err != nil {
			return nil, fmt.Errorf("decode %s: %w", t, err)
		}
		e = ev
	default:
		return nil, nil
	}

	return []Event{e}, nil
}

// DecodeCommand decodes a (type tag, payload) pair from the command
// boundary. Unlike events, malformed or unknown commands fail loudly: a
// silently dropped command would hide a user-facing input error.
func DecodeCommand(t string, data []byte) (Command, error) {
	switch t {
	case TypeStartGame:
		var cmd StartGame
		if err := json.Unmarshal(data, &cmd); err != nil {
			return nil, fmt.Errorf("malformed %s command: %w", t, err)
		}
		return cmd, nil
	case TypePlay:
		var cmd Play
		if err := json.Unmarshal(data, &cmd); err != nil {
			return nil, fmt.Errorf("malformed %s command: %w", t, err)
		}
		return cmd, nil
	default:
		return nil, fmt.Errorf("unknown command type %q", t)
	}
}

type stateJSON struct {
	Phase string `json:"phase"`
	Pile  *Pile  `json:"pile,omitempty"`
	Table *Table `json:"table,omitempty"`
}

const (
	phaseNotStarted = "not-started"
	phaseStarted    = "started"
)

// EncodeState encodes a state for snapshotting.
func EncodeState(s State) (json.RawMessage, error) {
	switch st := s.(type) {
	case NotStarted:
		return json.Marshal(stateJSON{Phase: phaseNotStarted})
	case Started:
		return json.Marshal(stateJSON{Phase: phaseStarted, Pile: &st.Pile, Table: &st.Table})
	default:
		return nil, fmt.Errorf("cannot encode state %T", s)
	}
}

// DecodeState decodes a snapshotted state.
func DecodeState(data []byte) (State, error) {
	var j stateJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("decode state: %w", err)
	}

	switch j.Phase {
	case phaseNotStarted:
		return NotStarted{}, nil
	case phaseStarted:
		if j.Pile == nil || j.Table == nil {
			return nil, fmt.Errorf("decode state: started state missing pile or table")
		}
		return Started{Pile: *j.Pile, Table: *j.Table}, nil
	default:
		return nil, fmt.Errorf("decode state: unknown phase %q", j.Phase)
	}
}
