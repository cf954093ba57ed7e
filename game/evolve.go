package game

// Evolve folds one event into the state. It is total and side-effect-free:
// a (state, event) pair the rules do not recognize is a no-op returning the
// state unchanged, which keeps replay robust to events that do not apply.
func Evolve(s State, e Event) State {
	switch ev := e.(type) {
	case GameStarted:
		if _, started := s.(Started); started {
			return s
		}

		// The decider refuses these; one written by another producer
		// cannot seat a table and folds as a no-op.
		if ev.Players < 2 {
			return s
		}

		return Started{
			Pile:  NewPile(ev.FirstCard),
			Table: NewTable(ev.Players).Advance(ev.Effect),
		}

	case CardPlayed:
		return played(s, ev.Card, ev.Effect)
	case WrongCardPlayed:
		return played(s, ev.Card, ev.Effect)
	case WrongPlayerPlayed:
		return played(s, ev.Card, ev.Effect)
	case InterruptMissed:
		return played(s, ev.Card, ev.Effect)
	}

	return s
}

// Replay folds a whole history from the initial state.
func Replay(events []Event) State {
	return ReplayFrom(InitialState(), events)
}

// ReplayFrom folds a history suffix onto an already materialized state,
// which is how a snapshot shortcuts replay.
func ReplayFrom(s State, events []Event) State {
	for _, e := range events {
		s = Evolve(s, e)
	}

	return s
}

func played(s State, c Card, e Effect) State {
	st, started := s.(Started)
	if !started {
		return s
	}

	return Started{Pile: st.Pile.Push(c), Table: st.Table.Advance(e)}
}
