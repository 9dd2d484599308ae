package invite

import (
	"fmt"
	"strings"

	"attribute-duel-server/protocol"
)

// Reduce applies one input to s and returns the next state with the effects the runtime must
// perform. Inputs that reference a proposal the state no longer knows are no-ops.
func Reduce(s State, in Input) (State, []Effect) {
	switch in := in.(type) {
	case Invite:
		return reduceInvite(s, in)
	case Accept:
		return respond(s, true)
	case Decline:
		return respond(s, false)
	case Withdraw:
		return reduceWithdraw(s)
	case Received:
		return reduceReceived(s, in)
	case Ack:
		return reduceAck(s, in)
	case Resolved:
		return reduceResolved(s, in)
	case Withdrawn:
		return reduceWithdrawn(s, in)
	case TimedOut:
		return reduceTimedOut(s, in)
	case Started:
		return reduceStarted(s, in)
	case Failed:
		return reduceFailed(s, in)
	case NoticeExpired:
		if in.Key == "" || in.Key != s.NoticeKey {
			return s, nil
		}
		s.Notice, s.NoticeKey = "", ""
		if s.Outgoing.Status == OutError {
			s.Outgoing = Outgoing{}
		}
		return s, nil
	case Reset:
		s.Committed = Committed{}
		return s, nil
	case Disconnected:
		var fx []Effect
		if s.NoticeKey != "" {
			fx = append(fx, Cancel{Key: s.NoticeKey})
		}
		return State{seq: s.seq}, fx
	}
	return s, nil
}

// notify sets the invitation-scoped notice and re-arms its auto-clear timer.
func notify(s State, fx []Effect, text string) (State, []Effect) {
	if s.NoticeKey != "" {
		fx = append(fx, Cancel{Key: s.NoticeKey})
	}
	s.seq++
	s.Notice = text
	s.NoticeKey = fmt.Sprintf("notice-%d", s.seq)
	return s, append(fx, Notice{Text: text}, Schedule{Key: s.NoticeKey})
}

func reduceInvite(s State, in Invite) (State, []Effect) {
	if err := s.CanInvite(); err != nil {
		if s.Committed.SessionID != "" {
			return s, []Effect{Notice{Text: "You are already in a duel."}}
		}
		return s, []Effect{Notice{Text: "You already have a pending invitation."}}
	}
	name := in.TargetNickname
	if name == "" {
		name = in.TargetID
	}
	s.Outgoing = Outgoing{
		TargetID:       in.TargetID,
		TargetNickname: name,
		Status:         OutSending,
		Message:        fmt.Sprintf("Sending invitation to %s...", name),
	}
	return s, []Effect{Emit{Type: protocol.TypeSendChallenge, Payload: protocol.SendChallenge{TargetID: in.TargetID}}}
}

func respond(s State, accepted bool) (State, []Effect) {
	if s.Incoming.ProposalID == "" || s.Incoming.Accepted || s.Committed.SessionID != "" {
		return s, nil
	}
	fx := []Effect{Emit{Type: protocol.TypeRespondChallenge, Payload: protocol.RespondChallenge{
		ProposalID: s.Incoming.ProposalID,
		InviterID:  s.Incoming.InviterID,
		Accepted:   accepted,
	}}}
	if accepted {
		s.Incoming.Accepted = true
		return s, append(fx, Notice{Text: "Invitation accepted."})
	}
	s.Incoming = Incoming{}
	return s, append(fx, Notice{Text: "Invitation declined."})
}

func reduceWithdraw(s State) (State, []Effect) {
	out := s.Outgoing
	if out.ProposalID == "" || (out.Status != OutPending && out.Status != OutError) {
		return s, []Effect{Notice{Text: "Cannot cancel the invitation."}}
	}
	s.Outgoing = Outgoing{}
	return s, []Effect{
		Emit{Type: protocol.TypeWithdrawChallenge, Payload: protocol.WithdrawChallenge{ProposalID: out.ProposalID}},
		Notice{Text: fmt.Sprintf("Cancelling invitation to %s...", out.TargetNickname)},
	}
}

func reduceReceived(s State, in Received) (State, []Effect) {
	if s.Committed.SessionID != "" || in.ProposalID == "" {
		return s, nil
	}
	s.Incoming = Incoming{
		InviterID:       in.InviterID,
		InviterNickname: in.InviterNickname,
		ProposalID:      in.ProposalID,
	}
	return s, []Effect{Notice{Text: fmt.Sprintf("%s invited you to a duel.", in.InviterNickname)}}
}

func reduceAck(s State, in Ack) (State, []Effect) {
	out := s.Outgoing
	if out.Status != OutSending || out.TargetID != in.InviteeID {
		return s, nil
	}
	s.Outgoing.ProposalID = in.ProposalID
	s.Outgoing.TargetNickname = in.InviteeNickname
	s.Outgoing.Status = OutPending
	s.Outgoing.Message = fmt.Sprintf("Invitation sent to %s. Waiting for a response...", in.InviteeNickname)
	return s, nil
}

// matchesOutgoing reports whether a lobby event refers to the local outgoing proposal. Before
// the ack arrives the proposal id is unknown, so the invitee id is used instead.
func matchesOutgoing(out Outgoing, proposalID, inviteeID string) bool {
	switch out.Status {
	case OutNone:
		return false
	case OutSending:
		return inviteeID != "" && inviteeID == out.TargetID
	default:
		return proposalID != "" && proposalID == out.ProposalID
	}
}

func reduceResolved(s State, in Resolved) (State, []Effect) {
	if !matchesOutgoing(s.Outgoing, in.ProposalID, in.InviteeID) {
		return s, nil
	}
	name := in.InviteeNickname
	if name == "" {
		name = s.Outgoing.TargetNickname
	}
	if in.Accepted {
		s.Outgoing.Status = OutAccepted
		s.Outgoing.ProposalID = in.ProposalID
		s.Outgoing.Message = fmt.Sprintf("%s accepted your invitation.", name)
		return s, nil
	}
	s.Outgoing = Outgoing{}
	text := strings.TrimSpace(fmt.Sprintf("%s declined your invitation. %s", name, in.Message))
	return notify(s, nil, text)
}

func reduceWithdrawn(s State, in Withdrawn) (State, []Effect) {
	if in.ProposalID != "" && in.ProposalID == s.Incoming.ProposalID {
		name := s.Incoming.InviterNickname
		s.Incoming = Incoming{}
		return notify(s, nil, fmt.Sprintf("The invitation from %s was cancelled: %s", name, in.Reason))
	}
	if in.ProposalID != "" && in.ProposalID == s.Outgoing.ProposalID {
		s.Outgoing = Outgoing{}
		return notify(s, nil, fmt.Sprintf("Your invitation was cancelled: %s", in.Reason))
	}
	return s, nil
}

func reduceTimedOut(s State, in TimedOut) (State, []Effect) {
	if in.ProposalID != "" && in.ProposalID == s.Incoming.ProposalID {
		s.Incoming = Incoming{}
		return notify(s, nil, "The duel invitation expired.")
	}
	if in.ProposalID != "" && in.ProposalID == s.Outgoing.ProposalID {
		s.Outgoing = Outgoing{}
		return notify(s, nil, "The invitation you sent expired.")
	}
	return s, nil
}

func reduceStarted(s State, in Started) (State, []Effect) {
	if s.Committed.SessionID != "" || in.SessionID == "" {
		return s, nil
	}
	var fx []Effect
	if s.NoticeKey != "" {
		fx = append(fx, Cancel{Key: s.NoticeKey})
	}
	s.Outgoing, s.Incoming = Outgoing{}, Incoming{}
	s.Notice, s.NoticeKey = "", ""
	s.Committed = Committed{
		SessionID:        in.SessionID,
		OpponentID:       in.OpponentID,
		OpponentNickname: in.OpponentNickname,
		FirstMover:       in.FirstMover,
	}
	return s, append(fx, Notice{Text: fmt.Sprintf("Duel against %s is starting!", in.OpponentNickname)})
}

// reduceFailed folds an invitation error into the outgoing Error sub-state when it answers a
// send_challenge still waiting for its ack. Anything else is only surfaced.
func reduceFailed(s State, in Failed) (State, []Effect) {
	text := "Server error: " + in.Message
	answersSend := s.Outgoing.Status == OutSending || s.Outgoing.Status == OutError
	if !isInvitationError(in.Message) || !answersSend || s.Committed.SessionID != "" {
		return s, []Effect{Notice{Text: text}}
	}
	s.Outgoing.Status = OutError
	s.Outgoing.Message = in.Message
	return notify(s, nil, text)
}

func isInvitationError(msg string) bool {
	m := strings.ToLower(msg)
	return strings.Contains(m, "invit") || strings.Contains(m, "challenge")
}
