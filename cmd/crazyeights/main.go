// Command crazyeights is the interactive surface of the game: it reads
// commands from stdin, forwards them to the aggregate gateway, and keeps
// the read models caught up in the background.
//
// Usage once running:
//
//	start <game> <players> <first-card>   e.g. start 1 4 6C
//	play <game> <player> <card>           e.g. play 1 1 6S
//	state <game>
//	score <game>
//	streak <game> <player>
//	quit
package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/caarlos0/env/v11"
	"github.com/jmoiron/sqlx"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"github.com/thefabric-io/transactional"

	"github.com/ubi-mirrors/hackyourjob-crazyeights/eventstore"
	"github.com/ubi-mirrors/hackyourjob-crazyeights/game"
	"github.com/ubi-mirrors/hackyourjob-crazyeights/gateway"
	"github.com/ubi-mirrors/hackyourjob-crazyeights/pgeventstore"
	"github.com/ubi-mirrors/hackyourjob-crazyeights/projection"
	"github.com/ubi-mirrors/hackyourjob-crazyeights/sqliteeventstore"
	"github.com/ubi-mirrors/hackyourjob-crazyeights/sqlxtransactional"
)

type config struct {
	Backend     string `env:"CRAZYEIGHTS_BACKEND" envDefault:"sqlite"`
	SQLitePath  string `env:"CRAZYEIGHTS_SQLITE_PATH" envDefault:"crazyeights.db"`
	PostgresURL string `env:"EVENT_STORE_PG_URL"`
	Schema      string `env:"EVENT_STORE_SCHEMA" envDefault:"crazyeights"`
}

func main() {
	_ = godotenv.Load()

	var cfg config
	if err := env.Parse(&cfg); err != nil {
		logrus.Fatal("parsing configuration: ", err)
	}

	db, store, err := openBackend(cfg)
	if err != nil {
		logrus.Fatal("opening event store: ", err)
	}
	defer db.Close()

	if err := projection.EnsureTables(db); err != nil {
		logrus.Fatal("creating read model tables: ", err)
	}

	tx := sqlxtransactional.New(db)
	gw := gateway.New(tx, store)

	checkpoints := projection.NewSQLCheckpointStore()
	cardsPlayed := projection.NewCardsPlayed()
	streaks := projection.NewPlayerStreaks()

	manager := projection.NewManager()
	manager.AddRunners(
		projection.NewRunner(tx, store, checkpoints, cardsPlayed),
		projection.NewRunner(tx, store, checkpoints, streaks),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan struct{})
	go func() {
		manager.Run(ctx)
		close(done)
	}()

	repl(ctx, gw, tx, cardsPlayed, streaks)

	cancel()
	<-done
}

func openBackend(cfg config) (*sqlx.DB, eventstore.Store, error) {
	switch cfg.Backend {
	case "postgres":
		db, err := pgeventstore.Init(pgeventstore.EventStorageConfig{
			PostgresURL: cfg.PostgresURL,
			Schema:      cfg.Schema,
		})
		if err != nil {
			return nil, nil, err
		}

		return db, pgeventstore.Storage(), nil

	case "sqlite":
		db, err := sqliteeventstore.Init(cfg.SQLitePath)
		if err != nil {
			return nil, nil, err
		}

		return db, sqliteeventstore.Storage(), nil

	default:
		return nil, nil, fmt.Errorf("unknown backend %q (want postgres or sqlite)", cfg.Backend)
	}
}

func repl(ctx context.Context, gw *gateway.Gateway, tx transactional.Transactional, cardsPlayed *projection.CardsPlayed, streaks *projection.PlayerStreaks) {
	scanner := bufio.NewScanner(os.Stdin)

	fmt.Println("crazy eights. try: start 1 4 6C")

	for {
		fmt.Print("> ")

		if !scanner.Scan() {
			return
		}

		fields := strings.Fields(scanner.Text())
		if len(fields) == 0 {
			continue
		}

		switch fields[0] {
		case "quit", "exit":
			return
		case "start", "play":
			id, cmd, err := parseCommand(fields)
			if err != nil {
				fmt.Println("error:", err)
				continue
			}

			events, version, err := gw.Submit(ctx, id, cmd)
			if err != nil {
				fmt.Println("rejected:", err)
				continue
			}

			for _, e := range events {
				fmt.Printf("%s (version %d)\n", describe(e), version)
			}
		case "state":
			id, err := parseGameID(fields)
			if err != nil {
				fmt.Println("error:", err)
				continue
			}

			state, version, err := gw.LoadState(ctx, id)
			if err != nil {
				fmt.Println("error:", err)
				continue
			}

			printState(state, version)
		case "score":
			id, err := parseGameID(fields)
			if err != nil {
				fmt.Println("error:", err)
				continue
			}

			count, err := readCount(ctx, tx, cardsPlayed, id)
			if err != nil {
				fmt.Println("error:", err)
				continue
			}

			fmt.Printf("cards played in %s: %d\n", id, count)
		case "streak":
			if len(fields) != 3 {
				fmt.Println("error: usage: streak <game> <player>")
				continue
			}

			id, err := parseGameID(fields)
			if err != nil {
				fmt.Println("error:", err)
				continue
			}

			player, err := strconv.Atoi(fields[2])
			if err != nil {
				fmt.Println("error: malformed player:", fields[2])
				continue
			}

			streak, err := readStreak(ctx, tx, streaks, id, game.PlayerID(player))
			if err != nil {
				fmt.Println("error:", err)
				continue
			}

			fmt.Printf("player %d streak in %s: %d\n", player, id, streak)
		default:
			fmt.Printf("error: unknown command %q\n", fields[0])
		}
	}
}

func parseCommand(fields []string) (game.GameID, game.Command, error) {
	switch fields[0] {
	case "start":
		if len(fields) != 4 {
			return 0, nil, fmt.Errorf("usage: start <game> <players> <first-card>")
		}

		id, err := strconv.ParseInt(fields[1], 10, 64)
		if err != nil {
			return 0, nil, fmt.Errorf("malformed game id %q", fields[1])
		}

		players, err := strconv.Atoi(fields[2])
		if err != nil || players < 2 {
			return 0, nil, fmt.Errorf("malformed player count %q", fields[2])
		}

		card, err := game.ParseCard(fields[3])
		if err != nil {
			return 0, nil, err
		}

		return game.GameID(id), game.StartGame{Players: players, FirstCard: card}, nil

	case "play":
		if len(fields) != 4 {
			return 0, nil, fmt.Errorf("usage: play <game> <player> <card>")
		}

		id, err := strconv.ParseInt(fields[1], 10, 64)
		if err != nil {
			return 0, nil, fmt.Errorf("malformed game id %q", fields[1])
		}

		player, err := strconv.Atoi(fields[2])
		if err != nil {
			return 0, nil, fmt.Errorf("malformed player %q", fields[2])
		}

		card, err := game.ParseCard(fields[3])
		if err != nil {
			return 0, nil, err
		}

		return game.GameID(id), game.Play{Player: game.PlayerID(player), Card: card}, nil
	}

	return 0, nil, fmt.Errorf("unknown command %q", fields[0])
}

func parseGameID(fields []string) (game.GameID, error) {
	if len(fields) < 2 {
		return 0, fmt.Errorf("missing game id")
	}

	id, err := strconv.ParseInt(fields[1], 10, 64)
	if err != nil {
		return 0, fmt.Errorf("malformed game id %q", fields[1])
	}

	return game.GameID(id), nil
}

func describe(e game.Event) string {
	switch ev := e.(type) {
	case game.GameStarted:
		return fmt.Sprintf("game started with %d players, first card %s", ev.Players, ev.FirstCard)
	case game.CardPlayed:
		if ev.Effect.Kind == game.KindInterrupt {
			return fmt.Sprintf("player %d slapped %s", ev.Player, ev.Card)
		}
		return fmt.Sprintf("player %d played %s", ev.Player, ev.Card)
	case game.WrongCardPlayed:
		return fmt.Sprintf("player %d played an illegal card %s, penalty", ev.Player, ev.Card)
	case game.WrongPlayerPlayed:
		return fmt.Sprintf("player %d played %s out of turn, penalty", ev.Player, ev.Card)
	case game.InterruptMissed:
		return fmt.Sprintf("player %d slapped %s too late", ev.Player, ev.Card)
	default:
		return fmt.Sprintf("%#v", e)
	}
}

func printState(state game.State, version eventstore.Version) {
	switch st := state.(type) {
	case game.Started:
		fmt.Printf("top of pile %s, player %d up, %d seats, version %d\n",
			st.Pile.Top, st.Table.Player, st.Table.Players, version)
	default:
		fmt.Println("not started")
	}
}

func readCount(ctx context.Context, t transactional.Transactional, p *projection.CardsPlayed, id game.GameID) (int64, error) {
	tx, err := t.BeginTransaction(ctx, transactional.BeginTransactionOptions{
		AccessMode:     transactional.ReadWrite,
		IsolationLevel: transactional.RepeatableRead,
		DeferrableMode: transactional.NotDeferrable,
	})
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	count, err := p.Count(ctx, tx, id)
	if err != nil {
		return 0, err
	}

	return count, tx.Commit()
}

func readStreak(ctx context.Context, t transactional.Transactional, p *projection.PlayerStreaks, id game.GameID, player game.PlayerID) (int64, error) {
	tx, err := t.BeginTransaction(ctx, transactional.BeginTransactionOptions{
		AccessMode:     transactional.ReadWrite,
		IsolationLevel: transactional.RepeatableRead,
		DeferrableMode: transactional.NotDeferrable,
	})
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	streak, err := p.Streak(ctx, tx, id, player)
	if err != nil {
		return 0, err
	}

	return streak, tx.Commit()
}
