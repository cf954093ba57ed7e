package game

import (
	"fmt"
	"strconv"
	"strings"
)

// Direction is the rotation sense of the table.
type Direction int

const (
	Forward Direction = 1
	Reverse Direction = -1
)

// Table is the turn-order cursor: whose turn it is, how many seats there
// are, and which way play rotates. Player is always in [0, Players).
type Table struct {
	Player    PlayerID  `json:"player"`
	Players   int       `json:"players"`
	Direction Direction `json:"direction"`
}

// NewTable seats the given number of players with player 0 up first,
// rotating forward.
func NewTable(players int) Table {
	return Table{Player: 0, Players: players, Direction: Forward}
}

// Advance returns the table after applying one turn effect.
func (t Table) Advance(e Effect) Table {
	switch e.Kind {
	case KindNext:
		t.Player = t.step(1)
	case KindSkip:
		t.Player = t.step(2)
	case KindBack:
		t.Direction = -t.Direction
		t.Player = t.step(1)
	case KindInterrupt:
		// current player unchanged
	case KindBreakingInterrupt:
		t.Player = e.Player
		t.Player = t.step(1)
	}

	return t
}

func (t Table) step(n int) PlayerID {
	p := (int(t.Player) + n*int(t.Direction)) % t.Players
	if p < 0 {
		p += t.Players
	}

	return PlayerID(p)
}

// Pile is the discard pile reduced to what the rules need: the top card and
// the card just below it. Second detects the one-play-wide missed-interrupt
// window; it is the zero Card until the second card lands on the pile.
type Pile struct {
	Top    Card `json:"top"`
	Second Card `json:"second,omitempty"`
}

// NewPile starts a pile from the first discarded card.
func NewPile(first Card) Pile {
	return Pile{Top: first}
}

// Push puts a card on top of the pile; the previous top becomes the second
// card.
func (p Pile) Push(c Card) Pile {
	return Pile{Top: c, Second: p.Top}
}

// State is the authoritative game state, derived entirely by folding events.
type State interface {
	isState()
}

// NotStarted is the unique initial state.
type NotStarted struct{}

// Started is reachable only through a GameStarted event. No further
// StartGame is accepted once reached.
type Started struct {
	Pile  Pile  `json:"pile"`
	Table Table `json:"table"`
}

func (NotStarted) isState() {}
func (Started) isState()    {}

// InitialState returns the state every stream starts from.
func InitialState() State {
	return NotStarted{}
}

// GameID identifies one game instance. It maps deterministically to the
// stream holding that game's events.
type GameID int64

const (
	streamPrefix   = "game-"
	snapshotSuffix = ":snapshot"
)

// Stream returns the event stream identifier for this game.
func (id GameID) Stream() string {
	return streamPrefix + strconv.FormatInt(int64(id), 10)
}

// SnapshotStream returns the stream holding this game's state snapshots.
func (id GameID) SnapshotStream() string {
	return id.Stream() + snapshotSuffix
}

// ParseStream recovers the game id from an event stream identifier. It
// reports false for snapshot streams and for streams owned by other
// aggregates, which is how projections route away events that are not
// theirs.
func ParseStream(stream string) (GameID, bool) {
	if !strings.HasPrefix(stream, streamPrefix) || strings.HasSuffix(stream, snapshotSuffix) {
		return 0, false
	}

	id, err := strconv.ParseInt(stream[len(streamPrefix):], 10, 64)
	if err != nil {
		return 0, false
	}

	return GameID(id), true
}

// String implements fmt.Stringer for log fields.
func (id GameID) String() string {
	return fmt.Sprintf("game %d", int64(id))
}
