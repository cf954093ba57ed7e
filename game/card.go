package game

import (
	"fmt"
	"strings"
)

// Suit is one of the four French suits.
type Suit string

const (
	Club    Suit = "Club"
	Diamond Suit = "Diamond"
	Heart   Suit = "Heart"
	Spade   Suit = "Spade"
)

// Rank is a card rank from Ace to King.
type Rank string

const (
	Ace   Rank = "Ace"
	Two   Rank = "Two"
	Three Rank = "Three"
	Four  Rank = "Four"
	Five  Rank = "Five"
	Six   Rank = "Six"
	Seven Rank = "Seven"
	Eight Rank = "Eight"
	Nine  Rank = "Nine"
	Ten   Rank = "Ten"
	Jack  Rank = "Jack"
	Queen Rank = "Queen"
	King  Rank = "King"
)

// Card is a rank and a suit. Cards are compared by value; two cards are the
// same card when both rank and suit match.
type Card struct {
	Rank Rank `json:"rank"`
	Suit Suit `json:"suit"`
}

var rankCodes = map[Rank]string{
	Ace: "A", Two: "2", Three: "3", Four: "4", Five: "5", Six: "6",
	Seven: "7", Eight: "8", Nine: "9", Ten: "10", Jack: "J", Queen: "Q", King: "K",
}

var suitCodes = map[Suit]string{
	Club: "C", Diamond: "D", Heart: "H", Spade: "S",
}

// String renders the short form used by the command surface, e.g. "6C" or "10S".
func (c Card) String() string {
	return rankCodes[c.Rank] + suitCodes[c.Suit]
}

// ParseCard parses the short form produced by String. Parsing is
// case-insensitive. Malformed input is an error, never a zero card.
func ParseCard(s string) (Card, error) {
	in := strings.ToUpper(strings.TrimSpace(s))
	if len(in) < 2 {
		return Card{}, fmt.Errorf("malformed card %q", s)
	}

	var suit Suit
	switch in[len(in)-1] {
	case 'C':
		suit = Club
	case 'D':
		suit = Diamond
	case 'H':
		suit = Heart
	case 'S':
		suit = Spade
	default:
		return Card{}, fmt.Errorf("malformed card %q: unknown suit", s)
	}

	code := in[:len(in)-1]
	for r, rc := range rankCodes {
		if rc == code {
			return Card{Rank: r, Suit: suit}, nil
		}
	}

	return Card{}, fmt.Errorf("malformed card %q: unknown rank", s)
}
