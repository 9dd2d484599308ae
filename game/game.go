package game

import (
	"fmt"
	"math/rand"

	"attribute-duel-server/config"
	"attribute-duel-server/deck"
	"attribute-duel-server/matcherrors"
)

// Phase is the per-round lifecycle state of a duel.
type Phase int

const (
	Idle      Phase = iota // waiting for the turn holder to choose
	Comparing              // round resolved, waiting for Advance
	Terminal
)

// String returns the protocol string for a Phase.
func (p Phase) String() string {
	switch p {
	case Idle:
		return "idle"
	case Comparing:
		return "comparing"
	case Terminal:
		return "terminal"
	default:
		return "unknown"
	}
}

// Reason explains why a duel ended.
type Reason int

const (
	ReasonNone Reason = iota
	Elimination
	RoundCap
	Aborted
)

func (r Reason) String() string {
	switch r {
	case Elimination:
		return "elimination"
	case RoundCap:
		return "round_cap"
	case Aborted:
		return "aborted"
	default:
		return "none"
	}
}

// Result is the terminal outcome of a duel. Outcome is meaningless when Reason is Aborted.
type Result struct {
	Outcome       Outcome
	Reason        Reason
	PlayerCards   int
	OpponentCards int
	Message       string
}

// Round records one resolved comparison. The cards are display copies; the real cards have
// already moved back into the hands.
type Round struct {
	Number        int
	Attribute     string
	Chooser       Side
	PlayerCard    deck.Card
	OpponentCard  deck.Card
	PlayerValue   int
	OpponentValue int
	Outcome       Outcome
	Message       string
}

// Duel is one attribute duel between the local player and an opponent. It is not safe for
// concurrent use; the owning loop serialises every call.
type Duel struct {
	opponent   Foe
	firstMover Side

	hands  [2][]deck.Card
	active [2]*deck.Card

	turn        Side
	round       int
	totalRounds int
	phase       Phase
	dealt       int

	revealed string
	last     *Round
	wins     [2]int
	result   *Result
}

// Deal shuffles a copy of d and starts a duel. The first mover receives cards[0:K] of the
// shuffle, the other side cards[K:2K], with K = cfg.CardsPerPlayer; a smaller deck is split in
// half and any odd card left out. Fewer than two cards fails with ErrDeckTooSmall. rng makes the
// shuffle reproducible; two clients dealing with the same seed get mirrored hands.
func Deal(d deck.Deck, cfg *config.Config, opp Foe, firstMover Side, rng *rand.Rand) (*Duel, error) {
	if len(d.Cards) < 2 {
		return nil, fmt.Errorf("deal %d cards: %w", len(d.Cards), matcherrors.ErrDeckTooSmall)
	}
	cards := d.Clone().Cards
	rng.Shuffle(len(cards), func(i, j int) { cards[i], cards[j] = cards[j], cards[i] })

	k := cfg.CardsPerPlayer
	if len(cards) < 2*k {
		k = len(cards) / 2
	}

	g := &Duel{
		opponent:    opp,
		firstMover:  firstMover,
		turn:        firstMover,
		totalRounds: cfg.TotalRounds,
		dealt:       2 * k,
	}
	g.hands[firstMover] = append([]deck.Card(nil), cards[:k]...)
	g.hands[firstMover.Other()] = append([]deck.Card(nil), cards[k:2*k]...)
	g.draw()
	return g, nil
}

// draw moves the front card of each hand into the active slots and starts the next round.
func (g *Duel) draw() {
	for s := range g.hands {
		c := g.hands[s][0]
		g.hands[s] = g.hands[s][1:]
		g.active[s] = &c
	}
	g.round++
	g.phase = Idle
	g.revealed = ""
}

// Opponent returns who the local player is facing.
func (g *Duel) Opponent() Foe { return g.opponent }

// FirstMover returns the local side that held the first turn.
func (g *Duel) FirstMover() Side { return g.firstMover }

// Turn returns the side that chooses the attribute this round.
func (g *Duel) Turn() Side { return g.turn }

// TurnSeat returns the session seat of the turn holder.
func (g *Duel) TurnSeat() Seat { return SeatOf(g.turn, g.firstMover) }

// IsMyTurn reports whether the local player is expected to choose now.
func (g *Duel) IsMyTurn() bool { return g.phase == Idle && g.turn == Player }

// Phase returns the lifecycle phase.
func (g *Duel) Phase() Phase { return g.phase }

// RoundNumber returns the current round, starting at 1.
func (g *Duel) RoundNumber() int { return g.round }

// TotalRounds returns the round cap.
func (g *Duel) TotalRounds() int { return g.totalRounds }

// Dealt returns the number of cards dealt at start.
func (g *Duel) Dealt() int { return g.dealt }

// Hand returns a copy of a side's queued cards, front first. The active card is not included.
func (g *Duel) Hand(s Side) []deck.Card {
	return append([]deck.Card(nil), g.hands[s]...)
}

// HandSize returns the number of queued cards for a side.
func (g *Duel) HandSize(s Side) int { return len(g.hands[s]) }

// Active returns the card a side is currently playing, if any.
func (g *Duel) Active(s Side) (deck.Card, bool) {
	if g.active[s] == nil {
		return deck.Card{}, false
	}
	return *g.active[s], true
}

// CardsInPlay counts hands plus active slots. It equals Dealt for the whole duel.
func (g *Duel) CardsInPlay() int {
	n := len(g.hands[Player]) + len(g.hands[Opponent])
	for _, c := range g.active {
		if c != nil {
			n++
		}
	}
	return n
}

// Wins returns how many rounds a side has won.
func (g *Duel) Wins(s Side) int { return g.wins[s] }

// LastRound returns the most recently resolved round.
func (g *Duel) LastRound() (Round, bool) {
	if g.last == nil {
		return Round{}, false
	}
	return *g.last, true
}

// Result returns the terminal result once one has been decided. It is available during the
// final Comparing phase, before Advance moves the duel to Terminal.
func (g *Duel) Result() (Result, bool) {
	if g.result == nil {
		return Result{}, false
	}
	return *g.result, true
}

// RevealedChoice returns the opponent's provisional attribute, if one is revealed.
func (g *Duel) RevealedChoice() (string, bool) {
	return g.revealed, g.revealed != ""
}
