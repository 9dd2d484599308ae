package matcherrors

import "errors"

// Duel and lobby sentinel errors. Shared by game, invite, matchmaking, ws and
// session packages to avoid circular imports.
var (
	ErrDeckTooSmall     = errors.New("deck too small: at least 2 cards are required")
	ErrInvalidDeck      = errors.New("invalid deck")
	ErrNotYourTurn      = errors.New("it is not your turn")
	ErrNotIdle          = errors.New("round is not waiting for a choice")
	ErrDuelOver         = errors.New("duel is over")
	ErrUnknownAttribute = errors.New("unknown attribute")
	ErrNoRevealedChoice = errors.New("no revealed choice to confirm")
	ErrNoDuel           = errors.New("no active duel")
	ErrInvitePending    = errors.New("an invitation is already pending")
	ErrNotConnected     = errors.New("not connected to the lobby")
	ErrUnknownProposal  = errors.New("invitation not found")
	ErrSelfChallenge    = errors.New("cannot send an invitation to yourself")
	ErrPlayerBusy       = errors.New("invited player is busy in a duel")
	ErrUnknownPlayer    = errors.New("invited player is not in the lobby")
	ErrUnknownSession   = errors.New("duel session not found")
	ErrNotRegistered    = errors.New("register a nickname first")
	ErrInvalidNickname  = errors.New("invalid nickname")
	ErrDeckNotFound     = errors.New("deck not found")
	ErrDuelInProgress   = errors.New("a duel is already in progress")
)
