package invite

import (
	"attribute-duel-server/matcherrors"
	"attribute-duel-server/protocol"
)

// OutgoingStatus tracks the local actor's own proposal.
type OutgoingStatus int

const (
	OutNone     OutgoingStatus = iota
	OutSending                 // send_challenge emitted, no ack yet
	OutPending                 // lobby registered the proposal
	OutAccepted                // invitee accepted, waiting for duel_started
	OutError                   // lobby rejected it; a new invite is allowed
)

func (s OutgoingStatus) String() string {
	switch s {
	case OutSending:
		return "sending"
	case OutPending:
		return "pending"
	case OutAccepted:
		return "accepted"
	case OutError:
		return "error"
	default:
		return "none"
	}
}

// Outgoing is the proposal the local actor sent.
type Outgoing struct {
	TargetID       string
	TargetNickname string
	ProposalID     string
	Status         OutgoingStatus
	Message        string
}

// Incoming is a proposal the local actor received.
type Incoming struct {
	InviterID       string
	InviterNickname string
	ProposalID      string
	Accepted        bool // accept sent, waiting for duel_started
}

// Committed is the handshake outcome handed to the duel engine.
type Committed struct {
	SessionID        string
	OpponentID       string
	OpponentNickname string
	FirstMover       bool
}

// Phase summarises a State.
type Phase int

const (
	Idle Phase = iota
	PendingOutgoing
	PendingIncoming
	CommittedPhase
)

func (p Phase) String() string {
	switch p {
	case PendingOutgoing:
		return "pending_outgoing"
	case PendingIncoming:
		return "pending_incoming"
	case CommittedPhase:
		return "committed"
	default:
		return "idle"
	}
}

// State is the local view of the invitation handshake. It is a plain value: Reduce never
// mutates its argument.
type State struct {
	Outgoing  Outgoing
	Incoming  Incoming
	Committed Committed

	// Notice is the invitation-scoped message shown to the user; it clears when the timer armed
	// under NoticeKey fires.
	Notice    string
	NoticeKey string
	seq       int
}

// Phase reports the most significant pending state.
func (s State) Phase() Phase {
	switch {
	case s.Committed.SessionID != "":
		return CommittedPhase
	case s.Outgoing.Status != OutNone && s.Outgoing.Status != OutError:
		return PendingOutgoing
	case s.Incoming.ProposalID != "":
		return PendingIncoming
	default:
		return Idle
	}
}

// CanInvite reports why an invite would be refused locally, or nil.
func (s State) CanInvite() error {
	if s.Committed.SessionID != "" {
		return matcherrors.ErrDuelInProgress
	}
	switch s.Outgoing.Status {
	case OutSending, OutPending, OutAccepted:
		return matcherrors.ErrInvitePending
	}
	return nil
}

// Input is anything Reduce accepts: local actions, lobby events, timer firings.
type Input interface{ isInput() }

// Invite proposes a duel to TargetID.
type Invite struct {
	TargetID       string
	TargetNickname string
}

// Accept answers the current incoming proposal with yes.
type Accept struct{}

// Decline answers the current incoming proposal with no.
type Decline struct{}

// Withdraw cancels the local actor's pending proposal.
type Withdraw struct{}

// Reset returns to Idle after a committed duel ends.
type Reset struct{}

// Disconnected drops every pending state after a channel fault.
type Disconnected struct{}

// NoticeExpired is the firing of the notice timer armed under Key.
type NoticeExpired struct{ Key string }

// Lobby events.
type (
	Received  struct{ protocol.ChallengeReceived }
	Ack       struct{ protocol.ChallengeAck }
	Resolved  struct{ protocol.ChallengeResolved }
	Withdrawn struct{ protocol.ChallengeWithdrawn }
	TimedOut  struct{ protocol.ChallengeTimedOut }
	Started   struct{ protocol.DuelStarted }
	Failed    struct{ protocol.Error }
)

func (Invite) isInput()        {}
func (Accept) isInput()        {}
func (Decline) isInput()       {}
func (Withdraw) isInput()      {}
func (Reset) isInput()         {}
func (Disconnected) isInput()  {}
func (NoticeExpired) isInput() {}
func (Received) isInput()      {}
func (Ack) isInput()           {}
func (Resolved) isInput()      {}
func (Withdrawn) isInput()     {}
func (TimedOut) isInput()      {}
func (Started) isInput()       {}
func (Failed) isInput()        {}

// Effect is an intent returned by Reduce for the runtime to carry out.
type Effect interface{ isEffect() }

// Emit sends Payload to the lobby as a message of Type.
type Emit struct {
	Type    string
	Payload any
}

// Schedule arms the notice auto-clear timer under Key.
type Schedule struct{ Key string }

// Cancel disarms the timer under Key.
type Cancel struct{ Key string }

// Notice surfaces a transient status line.
type Notice struct{ Text string }

func (Emit) isEffect()     {}
func (Schedule) isEffect() {}
func (Cancel) isEffect()   {}
func (Notice) isEffect()   {}
