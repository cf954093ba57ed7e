package game

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	sixOfClub    = Card{Rank: Six, Suit: Club}
	sixOfSpade   = Card{Rank: Six, Suit: Spade}
	threeOfSpade = Card{Rank: Three, Suit: Spade}
	sevenOfClub  = Card{Rank: Seven, Suit: Club}
	jackOfClub   = Card{Rank: Jack, Suit: Club}
	nineOfHeart  = Card{Rank: Nine, Suit: Heart}
)

func startedGame(t *testing.T, players int, first Card) State {
	t.Helper()

	events, err := Decide(NotStarted{}, StartGame{Players: players, FirstCard: first})
	require.NoError(t, err)

	return Replay(events)
}

func TestDecideStartGame(t *testing.T) {
	tests := []struct {
		name   string
		first  Card
		effect Effect
	}{
		{"six passes the turn", sixOfClub, Next},
		{"seven skips", sevenOfClub, Skip},
		{"jack reverses", jackOfClub, Back},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			events, err := Decide(NotStarted{}, StartGame{Players: 4, FirstCard: tt.first})
			require.NoError(t, err)
			require.Len(t, events, 1)

			started, ok := events[0].(GameStarted)
			require.True(t, ok)
			assert.Equal(t, 4, started.Players)
			assert.Equal(t, tt.first, started.FirstCard)
			assert.Equal(t, tt.effect, started.Effect)
		})
	}
}

func TestDecideStartGameRejectsBadPlayerCount(t *testing.T) {
	for _, players := range []int{-1, 0, 1} {
		events, err := Decide(NotStarted{}, StartGame{Players: players, FirstCard: sixOfClub})
		assert.ErrorIs(t, err, ErrNotEnoughPlayers, "players=%d", players)
		assert.Empty(t, events)
	}

	// A well-formed payload that simply omits the player count decodes to
	// zero players; the decider must refuse it rather than emit an event
	// whose replay cannot seat a table.
	cmd, err := DecodeCommand(TypeStartGame, []byte(`{"first_card":{"rank":"Six","suit":"Club"}}`))
	require.NoError(t, err)

	events, err := Decide(NotStarted{}, cmd)
	assert.ErrorIs(t, err, ErrNotEnoughPlayers)
	assert.Empty(t, events)
}

func TestDecideStartGameTwice(t *testing.T) {
	state := startedGame(t, 4, sixOfClub)

	events, err := Decide(state, StartGame{Players: 4, FirstCard: sixOfClub})
	assert.ErrorIs(t, err, ErrAlreadyStarted)
	assert.Empty(t, events)
}

func TestDecidePlayBeforeStart(t *testing.T) {
	events, err := Decide(NotStarted{}, Play{Player: 0, Card: sixOfClub})
	assert.ErrorIs(t, err, ErrNotStarted)
	assert.Empty(t, events)
}

func TestDecidePlayPrecedence(t *testing.T) {
	// Four players, 6C on the pile, player 1 up.
	state := startedGame(t, 4, sixOfClub)

	tests := []struct {
		name string
		play Play
		want Event
	}{
		{
			"exact top card is a slap from any seat",
			Play{Player: 3, Card: sixOfClub},
			CardPlayed{Player: 3, Card: sixOfClub, Effect: Interrupt},
		},
		{
			"wrong player, unrelated card",
			Play{Player: 2, Card: threeOfSpade},
			WrongPlayerPlayed{Player: 2, Card: threeOfSpade, Effect: Next},
		},
		{
			"current player, card sharing neither rank nor suit",
			Play{Player: 1, Card: threeOfSpade},
			WrongCardPlayed{Player: 1, Card: threeOfSpade, Effect: Next},
		},
		{
			"current player, same suit",
			Play{Player: 1, Card: jackOfClub},
			CardPlayed{Player: 1, Card: jackOfClub, Effect: Back},
		},
		{
			"current player, same rank",
			Play{Player: 1, Card: sixOfSpade},
			CardPlayed{Player: 1, Card: sixOfSpade, Effect: Next},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			events, err := Decide(state, tt.play)
			require.NoError(t, err)
			require.Len(t, events, 1)
			assert.Equal(t, tt.want, events[0])
		})
	}
}

func TestDecideInterruptMissed(t *testing.T) {
	// 6C started, player 1 legally plays 6S: pile is now 6S over 6C and
	// player 2 is up. Player 3 slapping 6C is one play too late.
	state := startedGame(t, 4, sixOfClub)
	state = Evolve(state, CardPlayed{Player: 1, Card: sixOfSpade, Effect: Next})

	events, err := Decide(state, Play{Player: 3, Card: sixOfClub})
	require.NoError(t, err)
	require.Len(t, events, 1)

	assert.Equal(t, InterruptMissed{Player: 3, Card: sixOfClub, Effect: Next}, events[0])
}

// The full scripted exchange: start, a slap freezing the turn, then an
// out-of-turn penalty.
func TestDecideScenario(t *testing.T) {
	events, err := Decide(NotStarted{}, StartGame{Players: 4, FirstCard: sixOfClub})
	require.NoError(t, err)
	require.Equal(t, GameStarted{Players: 4, FirstCard: sixOfClub, Effect: Next}, events[0])

	state := Replay(events)
	require.Equal(t, PlayerID(1), state.(Started).Table.Player)

	events, err = Decide(state, Play{Player: 1, Card: sixOfClub})
	require.NoError(t, err)
	require.Equal(t, CardPlayed{Player: 1, Card: sixOfClub, Effect: Interrupt}, events[0])

	state = ReplayFrom(state, events)
	require.Equal(t, PlayerID(1), state.(Started).Table.Player)

	events, err = Decide(state, Play{Player: 2, Card: threeOfSpade})
	require.NoError(t, err)
	require.Equal(t, WrongPlayerPlayed{Player: 2, Card: threeOfSpade, Effect: Next}, events[0])
}

func TestDecideWrongCardAdvancesByRankEffect(t *testing.T) {
	// 9H shares neither rank nor suit with 6C; the penalty still moves the
	// turn along by the card's own effect.
	state := startedGame(t, 4, sixOfClub)

	events, err := Decide(state, Play{Player: 1, Card: nineOfHeart})
	require.NoError(t, err)
	require.Equal(t, WrongCardPlayed{Player: 1, Card: nineOfHeart, Effect: Next}, events[0])

	next := ReplayFrom(state, events)
	assert.Equal(t, PlayerID(2), next.(Started).Table.Player)
}
