package game

import (
	"fmt"

	"attribute-duel-server/deck"
	"attribute-duel-server/matcherrors"
)

// Choose resolves the current round on attr, chosen by side. Only the turn holder may choose,
// and only while the duel is Idle.
func (g *Duel) Choose(side Side, attr string) (Round, error) {
	if err := g.checkChoice(side, attr); err != nil {
		return Round{}, err
	}
	return g.resolve(side, attr), nil
}

// Reveal exposes the opponent's pick without resolving the round. The local player resolves it
// with ConfirmReveal.
func (g *Duel) Reveal(attr string) error {
	if err := g.checkChoice(Opponent, attr); err != nil {
		return err
	}
	g.revealed = attr
	return nil
}

// ConfirmReveal resolves the round on the revealed opponent choice.
func (g *Duel) ConfirmReveal() (Round, error) {
	if g.phase == Terminal {
		return Round{}, matcherrors.ErrDuelOver
	}
	if g.revealed == "" {
		return Round{}, matcherrors.ErrNoRevealedChoice
	}
	return g.Choose(Opponent, g.revealed)
}

func (g *Duel) checkChoice(side Side, attr string) error {
	switch {
	case g.phase == Terminal:
		return matcherrors.ErrDuelOver
	case g.phase != Idle:
		return matcherrors.ErrNotIdle
	case side != g.turn:
		return matcherrors.ErrNotYourTurn
	}
	if _, ok := g.active[side].Attributes.Get(attr); !ok {
		return fmt.Errorf("%q: %w", attr, matcherrors.ErrUnknownAttribute)
	}
	return nil
}

// resolve compares the active cards and moves them into the hands. The winner appends its own
// card, then the loser's; a tie returns each card to its owner and hands the turn to the side
// that did not move first in this duel.
func (g *Duel) resolve(chooser Side, attr string) Round {
	pc, oc := *g.active[Player], *g.active[Opponent]
	pv, _ := pc.Attributes.Get(attr)
	ov, _ := oc.Attributes.Get(attr)
	out := Compare(pv, ov)

	switch out {
	case Win:
		g.hands[Player] = append(g.hands[Player], pc, oc)
		g.turn = Player
		g.wins[Player]++
	case Lose:
		g.hands[Opponent] = append(g.hands[Opponent], oc, pc)
		g.turn = Opponent
		g.wins[Opponent]++
	default:
		g.hands[Player] = append(g.hands[Player], pc)
		g.hands[Opponent] = append(g.hands[Opponent], oc)
		g.turn = g.firstMover.Other()
	}
	g.active = [2]*deck.Card{}
	g.revealed = ""
	g.phase = Comparing

	r := Round{
		Number:        g.round,
		Attribute:     attr,
		Chooser:       chooser,
		PlayerCard:    pc,
		OpponentCard:  oc,
		PlayerValue:   pv,
		OpponentValue: ov,
		Outcome:       out,
	}
	r.Message = g.roundMessage(r)
	g.last = &r
	g.result = g.checkTerminal()
	return r
}

// checkTerminal runs right after resolution. An empty hand always wins over the round cap.
func (g *Duel) checkTerminal() *Result {
	p, o := len(g.hands[Player]), len(g.hands[Opponent])
	res := &Result{PlayerCards: p, OpponentCards: o}
	switch {
	case p == 0:
		res.Outcome, res.Reason = Lose, Elimination
	case o == 0:
		res.Outcome, res.Reason = Win, Elimination
	case g.round >= g.totalRounds:
		res.Outcome, res.Reason = Compare(p, o), RoundCap
	default:
		return nil
	}
	res.Message = g.resultMessage(*res)
	return res
}

func (g *Duel) roundMessage(r Round) string {
	name := deck.DisplayName(r.Attribute)
	switch r.Outcome {
	case Win:
		return fmt.Sprintf("You won! %s (%d) > (%d).", name, r.PlayerValue, r.OpponentValue)
	case Lose:
		return fmt.Sprintf("%s won. %s (%d) > (%d).", g.opponent.DisplayName(), name, r.OpponentValue, r.PlayerValue)
	default:
		return fmt.Sprintf("Tie! %s (%d).", name, r.PlayerValue)
	}
}

func (g *Duel) resultMessage(res Result) string {
	opp := g.opponent.DisplayName()
	switch {
	case res.Reason == Elimination && res.Outcome == Lose:
		return fmt.Sprintf("%s won all your cards!", opp)
	case res.Reason == Elimination:
		return fmt.Sprintf("You won all of %s's cards!", opp)
	case res.Outcome == Win:
		return fmt.Sprintf("You won on points! (%d vs %d)", res.PlayerCards, res.OpponentCards)
	case res.Outcome == Lose:
		return fmt.Sprintf("%s won on points. (%d vs %d)", opp, res.OpponentCards, res.PlayerCards)
	default:
		return fmt.Sprintf("Draw on points! (%d vs %d)", res.PlayerCards, res.OpponentCards)
	}
}
