package game

import (
	"fmt"

	"attribute-duel-server/deck"
	"attribute-duel-server/matcherrors"
)

// Advance ends the Comparing phase. If the last resolution decided the duel, the duel becomes
// Terminal without drawing; otherwise each side draws its next front card and a new round starts.
func (g *Duel) Advance() error {
	switch g.phase {
	case Terminal:
		return matcherrors.ErrDuelOver
	case Idle:
		return matcherrors.ErrNotIdle
	}
	if g.result != nil {
		g.phase = Terminal
		return nil
	}

	// Defensive: a hand with no front card ends the duel.
	if len(g.hands[Player]) == 0 || len(g.hands[Opponent]) == 0 {
		res := &Result{
			Reason:        Elimination,
			PlayerCards:   len(g.hands[Player]),
			OpponentCards: len(g.hands[Opponent]),
			Outcome:       Win,
		}
		if res.PlayerCards == 0 {
			res.Outcome = Lose
		}
		res.Message = g.resultMessage(*res)
		g.result = res
		g.phase = Terminal
		return nil
	}

	g.draw()
	return nil
}

// Abandon ends the duel immediately with an Aborted result. Active cards go back to their
// owners so the card count still holds. Calling Abandon on a finished duel is a no-op.
func (g *Duel) Abandon(note string) {
	if g.phase == Terminal {
		return
	}
	for s, c := range g.active {
		if c != nil {
			g.hands[s] = append(g.hands[s], *c)
		}
	}
	g.active = [2]*deck.Card{}
	if note == "" {
		note = fmt.Sprintf("Duel against %s aborted.", g.opponent.DisplayName())
	}
	g.result = &Result{
		Reason:        Aborted,
		PlayerCards:   len(g.hands[Player]),
		OpponentCards: len(g.hands[Opponent]),
		Message:       note,
	}
	g.revealed = ""
	g.phase = Terminal
}
