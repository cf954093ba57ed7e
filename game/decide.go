package game

import (
	"errors"
	"fmt"
)

var (
	// ErrAlreadyStarted is returned when StartGame reaches a started game.
	ErrAlreadyStarted = errors.New("game already started")

	// ErrNotStarted is returned when any command other than StartGame
	// reaches a game that has not started yet.
	ErrNotStarted = errors.New("game not started")

	// ErrNotEnoughPlayers is returned by StartGame below two players. The
	// table cannot rotate with fewer, so the command never becomes an event.
	ErrNotEnoughPlayers = errors.New("a game needs at least two players")
)

// Decide maps the current state and a command to the ordered list of events
// the command produces, or to a decision failure. It performs no I/O.
//
// An accepted command produces exactly one event. Decision failures produce
// no events and are not retryable: the command is structurally inapplicable
// to the state. Rule violations are not failures; they come back as penalty
// events carrying their own turn effect.
func Decide(s State, c Command) ([]Event, error) {
	switch cmd := c.(type) {
	case StartGame:
		if _, started := s.(Started); started {
			return nil, ErrAlreadyStarted
		}

		if cmd.Players < 2 {
			return nil, ErrNotEnoughPlayers
		}

		return []Event{GameStarted{
			Players:   cmd.Players,
			FirstCard: cmd.FirstCard,
			Effect:    EffectOf(cmd.FirstCard.Rank),
		}}, nil

	case Play:
		st, started := s.(Started)
		if !started {
			return nil, ErrNotStarted
		}

		return []Event{decidePlay(st, cmd)}, nil

	default:
		return nil, fmt.Errorf("unknown command %T", c)
	}
}

// decidePlay evaluates the play precedence. First match wins:
//
//  1. the exact top card again: a slap, legal from any seat, turn frozen;
//  2. not the current player: either the interrupt window just closed
//     (the card matches the one below the top) or a plain out-of-turn play;
//  3. a card sharing neither rank nor suit with the top: illegal card;
//  4. a legal play.
func decidePlay(st Started, cmd Play) Event {
	top := st.Pile.Top

	switch {
	case cmd.Card == top:
		return CardPlayed{Player: cmd.Player, Card: cmd.Card, Effect: Interrupt}

	case cmd.Player != st.Table.Player:
		if cmd.Card == st.Pile.Second {
			return InterruptMissed{Player: cmd.Player, Card: cmd.Card, Effect: EffectOf(cmd.Card.Rank)}
		}

		return WrongPlayerPlayed{Player: cmd.Player, Card: cmd.Card, Effect: EffectOf(cmd.Card.Rank)}

	case cmd.Card.Rank != top.Rank && cmd.Card.Suit != top.Suit:
		return WrongCardPlayed{Player: cmd.Player, Card: cmd.Card, Effect: EffectOf(cmd.Card.Rank)}

	default:
		return CardPlayed{Player: cmd.Player, Card: cmd.Card, Effect: EffectOf(cmd.Card.Rank)}
	}
}
