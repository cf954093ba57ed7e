package game

// Command is an externally supplied, immutable instruction to one game.
type Command interface {
	isCommand()
}

// StartGame initializes a game with a number of seats and the first
// discarded card.
type StartGame struct {
	Players   int  `json:"players"`
	FirstCard Card `json:"first_card"`
}

// Play submits one card for one player.
type Play struct {
	Player PlayerID `json:"player"`
	Card   Card     `json:"card"`
}

func (StartGame) isCommand() {}
func (Play) isCommand()      {}
