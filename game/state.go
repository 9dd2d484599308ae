package game

import "attribute-duel-server/deck"

// RoundView is the presentation form of a resolved round.
type RoundView struct {
	Number        int       `json:"number"`
	Attribute     string    `json:"attribute"`
	Chooser       string    `json:"chooser"`
	PlayerCard    deck.Card `json:"playerCard"`
	OpponentCard  deck.Card `json:"opponentCard"`
	PlayerValue   int       `json:"playerValue"`
	OpponentValue int       `json:"opponentValue"`
	Outcome       string    `json:"outcome"`
	Message       string    `json:"message"`
}

// ResultView is the presentation form of a terminal result.
type ResultView struct {
	Outcome       string `json:"outcome"`
	Reason        string `json:"reason"`
	PlayerCards   int    `json:"playerCards"`
	OpponentCards int    `json:"opponentCards"`
	Message       string `json:"message"`
}

// DuelView is a read-only snapshot of a duel for the local viewer.
type DuelView struct {
	Opponent       string      `json:"opponent"`
	Remote         bool        `json:"remote"`
	SessionID      string      `json:"sessionId,omitempty"`
	Phase          string      `json:"phase"`
	Round          int         `json:"round"`
	TotalRounds    int         `json:"totalRounds"`
	MyTurn         bool        `json:"myTurn"`
	TurnSeat       string      `json:"turnSeat"`
	PlayerCard     *deck.Card  `json:"playerCard,omitempty"`
	OpponentCard   *deck.Card  `json:"opponentCard,omitempty"`
	PlayerHand     int         `json:"playerHand"`
	OpponentHand   int         `json:"opponentHand"`
	PlayerWins     int         `json:"playerWins"`
	OpponentWins   int         `json:"opponentWins"`
	RevealedChoice string      `json:"revealedChoice,omitempty"`
	LastRound      *RoundView  `json:"lastRound,omitempty"`
	Result         *ResultView `json:"result,omitempty"`
}

// BuildView returns the viewer projection of g. The opponent's active card is hidden while the
// round is still open.
func BuildView(g *Duel) DuelView {
	v := DuelView{
		Opponent:     g.opponent.DisplayName(),
		Phase:        g.phase.String(),
		Round:        g.round,
		TotalRounds:  g.totalRounds,
		MyTurn:       g.IsMyTurn(),
		TurnSeat:     g.TurnSeat().String(),
		PlayerHand:   len(g.hands[Player]),
		OpponentHand: len(g.hands[Opponent]),
		PlayerWins:   g.wins[Player],
		OpponentWins: g.wins[Opponent],
	}
	if r, ok := g.opponent.(Remote); ok {
		v.Remote = true
		v.SessionID = r.SessionID
	}
	if c, ok := g.Active(Player); ok {
		v.PlayerCard = &c
	}
	if v.RevealedChoice, _ = g.RevealedChoice(); v.RevealedChoice != "" {
		if c, ok := g.Active(Opponent); ok {
			v.OpponentCard = &c
		}
	}
	if r, ok := g.LastRound(); ok {
		v.LastRound = &RoundView{
			Number:        r.Number,
			Attribute:     r.Attribute,
			Chooser:       r.Chooser.String(),
			PlayerCard:    r.PlayerCard,
			OpponentCard:  r.OpponentCard,
			PlayerValue:   r.PlayerValue,
			OpponentValue: r.OpponentValue,
			Outcome:       r.Outcome.String(),
			Message:       r.Message,
		}
	}
	if res, ok := g.Result(); ok {
		v.Result = &ResultView{
			Outcome:       res.Outcome.String(),
			Reason:        res.Reason.String(),
			PlayerCards:   res.PlayerCards,
			OpponentCards: res.OpponentCards,
			Message:       res.Message,
		}
	}
	return v
}
