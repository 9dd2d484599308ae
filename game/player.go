package game

// Side identifies a participant relative to the local viewer.
type Side int

const (
	Player Side = iota
	Opponent
)

// Other returns the opposite side.
func (s Side) Other() Side {
	return 1 - s
}

func (s Side) String() string {
	switch s {
	case Player:
		return "player"
	case Opponent:
		return "opponent"
	default:
		return "unknown"
	}
}

// Seat identifies a participant relative to the session: the first mover sits in FirstSeat on
// both clients, whichever side it is locally.
type Seat int

const (
	FirstSeat Seat = iota
	SecondSeat
)

func (s Seat) String() string {
	if s == FirstSeat {
		return "first"
	}
	return "second"
}

// SeatOf projects a local side onto the session seat, given which local side moved first.
func SeatOf(side, firstMover Side) Seat {
	if side == firstMover {
		return FirstSeat
	}
	return SecondSeat
}

// Outcome is a round or duel result from the local player's point of view.
type Outcome int

const (
	Tie Outcome = iota
	Win
	Lose
)

func (o Outcome) String() string {
	switch o {
	case Win:
		return "win"
	case Lose:
		return "lose"
	default:
		return "tie"
	}
}

// Compare resolves the player's value against the opponent's. Total over all ints.
func Compare(playerValue, opponentValue int) Outcome {
	switch {
	case playerValue > opponentValue:
		return Win
	case playerValue < opponentValue:
		return Lose
	default:
		return Tie
	}
}

// Foe is who the local player faces: Scripted or Remote. The set is closed.
type Foe interface {
	DisplayName() string
	isFoe()
}

// Scripted is the local computer opponent.
type Scripted struct {
	Name string
}

func (s Scripted) DisplayName() string { return s.Name }
func (Scripted) isFoe()                {}

// Remote is a human peer reached through a lobby session.
type Remote struct {
	SessionID  string
	OpponentID string
	Nickname   string
}

func (r Remote) DisplayName() string { return r.Nickname }
func (Remote) isFoe()                {}
