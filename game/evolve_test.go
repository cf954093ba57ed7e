package game

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEvolveGameStarted(t *testing.T) {
	state := Evolve(NotStarted{}, GameStarted{Players: 4, FirstCard: sixOfClub, Effect: Next})

	started, ok := state.(Started)
	require.True(t, ok)
	assert.Equal(t, sixOfClub, started.Pile.Top)
	assert.Equal(t, PlayerID(1), started.Table.Player)
	assert.Equal(t, Forward, started.Table.Direction)
}

func TestEvolvePushesPile(t *testing.T) {
	state := Evolve(NotStarted{}, GameStarted{Players: 4, FirstCard: sixOfClub, Effect: Next})
	state = Evolve(state, CardPlayed{Player: 1, Card: sixOfSpade, Effect: Next})

	started := state.(Started)
	assert.Equal(t, sixOfSpade, started.Pile.Top)
	assert.Equal(t, sixOfClub, started.Pile.Second)
	assert.Equal(t, PlayerID(2), started.Table.Player)
}

func TestEvolveInapplicableEventIsNoop(t *testing.T) {
	played := CardPlayed{Player: 1, Card: sixOfSpade, Effect: Next}

	assert.Equal(t, State(NotStarted{}), Evolve(NotStarted{}, played))
	assert.Equal(t, State(NotStarted{}), Evolve(NotStarted{}, GameStarted{Players: 0, FirstCard: sixOfClub, Effect: Next}))

	started := Evolve(NotStarted{}, GameStarted{Players: 4, FirstCard: sixOfClub, Effect: Next})
	assert.Equal(t, started, Evolve(started, GameStarted{Players: 2, FirstCard: sixOfSpade, Effect: Next}))
}

func TestTableAdvance(t *testing.T) {
	tests := []struct {
		name          string
		table         Table
		effect        Effect
		wantPlayer    PlayerID
		wantDirection Direction
	}{
		{"next", Table{Player: 0, Players: 4, Direction: Forward}, Next, 1, Forward},
		{"next wraps", Table{Player: 3, Players: 4, Direction: Forward}, Next, 0, Forward},
		{"next in reverse", Table{Player: 0, Players: 4, Direction: Reverse}, Next, 3, Reverse},
		{"skip", Table{Player: 0, Players: 4, Direction: Forward}, Skip, 2, Forward},
		{"skip wraps", Table{Player: 3, Players: 4, Direction: Forward}, Skip, 1, Forward},
		{"back flips then moves", Table{Player: 2, Players: 4, Direction: Forward}, Back, 1, Reverse},
		{"interrupt freezes", Table{Player: 2, Players: 4, Direction: Forward}, Interrupt, 2, Forward},
		{"breaking interrupt resumes after target", Table{Player: 2, Players: 4, Direction: Forward}, BreakingInterrupt(0), 1, Forward},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.table.Advance(tt.effect)
			assert.Equal(t, tt.wantPlayer, got.Player)
			assert.Equal(t, tt.wantDirection, got.Direction)
		})
	}
}

func TestTableBackTwiceRestoresDirection(t *testing.T) {
	table := Table{Player: 0, Players: 5, Direction: Forward}

	assert.Equal(t, Forward, table.Advance(Back).Advance(Back).Direction)
}

// Replaying the recorded events from scratch must land on the same state
// as deciding and folding command by command.
func TestFoldReplayEquivalence(t *testing.T) {
	commands := []Command{
		StartGame{Players: 4, FirstCard: sixOfClub},
		Play{Player: 1, Card: sixOfSpade},
		Play{Player: 2, Card: threeOfSpade},
		Play{Player: 2, Card: sixOfSpade}, // slap
		Play{Player: 2, Card: Card{Rank: Jack, Suit: Spade}},
		Play{Player: 1, Card: jackOfClub},
		Play{Player: 0, Card: nineOfHeart},
	}

	online := InitialState()

	var log []Event

	for _, cmd := range commands {
		events, err := Decide(online, cmd)
		require.NoError(t, err)
		require.Len(t, events, 1)

		online = ReplayFrom(online, events)
		log = append(log, events...)
	}

	assert.Equal(t, online, Replay(log))
}
