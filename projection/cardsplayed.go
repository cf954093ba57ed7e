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

// CardsPlayed counts CardPlayed events per game.
type CardsPlayed struct{}

func NewCardsPlayed() *CardsPlayed {
	return &CardsPlayed{}
}

func (p *CardsPlayed) Name() string {
	return "cards_played"
}

func (p *CardsPlayed) Guard() string {
	return "crazyeights/cards_played@v1"
}

func (p *CardsPlayed) Apply(ctx context.Context, transaction transactional.Transaction, rec eventstore.Recorded) error {
	if rec.Type != game.TypeCardPlayed {
		return nil
	}

	id, ok := game.ParseStream(string(rec.Stream))
	if !ok {
		return nil
	}

	tx := transaction.(*sqlx.Tx)

	query := tx.Rebind(`insert into crazyeights_cards_played(game_id, played) values (?, 1)
		on conflict (game_id) do update set played = crazyeights_cards_played.played + 1`)

	_, err := tx.ExecContext(ctx, query, int64(id))

	return err
}

func (p *CardsPlayed) Reset(ctx context.Context, transaction transactional.Transaction) error {
	tx := transaction.(*sqlx.Tx)

	_, err := tx.ExecContext(ctx, `delete from crazyeights_cards_played`)

	return err
}

// Count reads the current count for one game; games with no legal play yet
// count zero.
func (p *CardsPlayed) Count(ctx context.Context, transaction transactional.Transaction, id game.GameID) (int64, error) {
	tx := transaction.(*sqlx.Tx)

	var count int64

	query := tx.Rebind(`select played from crazyeights_cards_played where game_id = ?`)

	if err := tx.GetContext(ctx, &count, query, int64(id)); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, nil
		}

		return 0, err
	}

	return count, nil
}
