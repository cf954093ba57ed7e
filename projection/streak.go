package projection

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"
	"github.com/thefabric-io/transactional"

	"github.com/ubi-mirrors/hackyourjob-crazyeights/eventstore"
	"github.com/ubi-mirrors/hackyourjob-crazyeights/game"
)

// PlayerStreaks tracks, per (game, player), how many turns a player has
// played since their last error: CardPlayed increments, WrongCardPlayed and
// WrongPlayerPlayed reset to zero.
type PlayerStreaks struct{}

func NewPlayerStreaks() *PlayerStreaks {
	return &PlayerStreaks{}
}

func (p *PlayerStreaks) Name() string {
	return "player_streaks"
}

func (p *PlayerStreaks) Guard() string {
	return "crazyeights/player_streaks@v1"
}

func (p *PlayerStreaks) Apply(ctx context.Context, transaction transactional.Transaction, rec eventstore.Recorded) error {
	id, ok := game.ParseStream(string(rec.Stream))
	if !ok {
		return nil
	}

	events, err := game.DecodeEvent(rec.Type, rec.Data)
	if err != nil {
		return err
	}

	tx := transaction.(*sqlx.Tx)

	for _, e := range events {
		switch ev := e.(type) {
		case game.CardPlayed:
			if err := p.increment(ctx, tx, id, ev.Player); err != nil {
				return err
			}
		case game.WrongCardPlayed:
			if err := p.reset(ctx, tx, id, ev.Player); err != nil {
				return err
			}
		case game.WrongPlayerPlayed:
			if err := p.reset(ctx, tx, id, ev.Player); err != nil {
				return err
			}
		}
	}

	return nil
}

func (p *PlayerStreaks) increment(ctx context.Context, tx *sqlx.Tx, id game.GameID, player game.PlayerID) error {
	query := tx.Rebind(`insert into crazyeights_player_streaks(game_id, player, streak) values (?, ?, 1)
		on conflict (game_id, player) do update set streak = crazyeights_player_streaks.streak + 1`)

	_, err := tx.ExecContext(ctx, query, int64(id), int64(player))

	return err
}

func (p *PlayerStreaks) reset(ctx context.Context, tx *sqlx.Tx, id game.GameID, player game.PlayerID) error {
	query := tx.Rebind(`insert into crazyeights_player_streaks(game_id, player, streak) values (?, ?, 0)
		on conflict (game_id, player) do update set streak = 0`)

	_, err := tx.ExecContext(ctx, query, int64(id), int64(player))

	return err
}

func (p *PlayerStreaks) Reset(ctx context.Context, transaction transactional.Transaction) error {
	tx := transaction.(*sqlx.Tx)

	_, err := tx.ExecContext(ctx, `delete from crazyeights_player_streaks`)

	return err
}

// Streak reads the current turns-since-last-error counter for one seat.
func (p *PlayerStreaks) Streak(ctx context.Context, transaction transactional.Transaction, id game.GameID, player game.PlayerID) (int64, error) {
	tx := transaction.(*sqlx.Tx)

	var streak int64

	query := tx.Rebind(`select streak from crazyeights_player_streaks where game_id = ? and player = ?`)

	if err := tx.GetContext(ctx, &streak, query, int64(id), int64(player)); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, nil
		}

		return 0, err
	}

	return streak, nil
}
