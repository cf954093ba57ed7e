package game

// PlayerID is a zero-based seat index at the table.
type PlayerID int

// EffectKind tags the Effect variants.
type EffectKind string

const (
	KindNext              EffectKind = "Next"
	KindSkip              EffectKind = "Skip"
	KindBack              EffectKind = "Back"
	KindInterrupt         EffectKind = "Interrupt"
	KindBreakingInterrupt EffectKind = "BreakingInterrupt"
)

// Effect encodes how an event perturbs turn order. It is computed once at
// decision time and stored in the event, so replay does not depend on rule
// changes made after the fact. Player is only meaningful for
// BreakingInterrupt, where it names the player play resumes from.
type Effect struct {
	Kind   EffectKind `json:"kind"`
	Player PlayerID   `json:"player,omitempty"`
}

var (
	Next      = Effect{Kind: KindNext}
	Skip      = Effect{Kind: KindSkip}
	Back      = Effect{Kind: KindBack}
	Interrupt = Effect{Kind: KindInterrupt}
)

// BreakingInterrupt resumes play from the given player after an out-of-band
// interrupt resolves.
func BreakingInterrupt(player PlayerID) Effect {
	return Effect{Kind: KindBreakingInterrupt, Player: player}
}

// EffectOf maps a card rank to its turn effect: Seven skips the next player,
// Jack reverses direction, every other rank passes the turn along.
func EffectOf(r Rank) Effect {
	switch r {
	case Seven:
		return Skip
	case Jack:
		return Back
	default:
		return Next
	}
}

// Event is a domain fact appended to a game's stream. Events are immutable
// and carry everything needed to replay them deterministically, including
// their pre-computed Effect.
type Event interface {
	isEvent()
}

// GameStarted records the start of a game with a first discarded card.
type GameStarted struct {
	Players   int    `json:"players"`
	FirstCard Card   `json:"first_card"`
	Effect    Effect `json:"effect"`
}

// CardPlayed records a legal play, including the out-of-turn slap of a card
// identical to the top of the pile (Effect Interrupt).
type CardPlayed struct {
	Player PlayerID `json:"player"`
	Card   Card     `json:"card"`
	Effect Effect   `json:"effect"`
}

// WrongCardPlayed records an illegal card sharing neither rank nor suit with
// the top of the pile. A penalty fact, not an error: it still advances the
// turn by its Effect.
type WrongCardPlayed struct {
	Player PlayerID `json:"player"`
	Card   Card     `json:"card"`
	Effect Effect   `json:"effect"`
}

// WrongPlayerPlayed records an out-of-turn play.
type WrongPlayerPlayed struct {
	Player PlayerID `json:"player"`
	Card   Card     `json:"card"`
	Effect Effect   `json:"effect"`
}

// InterruptMissed records a play matching the card just below the top of the
// pile: the interrupt window was one play wide and has closed.
type InterruptMissed struct {
	Player PlayerID `json:"player"`
	Card   Card     `json:"card"`
	Effect Effect   `json:"effect"`
}

func (GameStarted) isEvent()       {}
func (CardPlayed) isEvent()        {}
func (WrongCardPlayed) isEvent()   {}
func (WrongPlayerPlayed) isEvent() {}
func (InterruptMissed) isEvent()   {}
