package invite

import (
	"errors"
	"testing"

	"attribute-duel-server/matcherrors"
	"attribute-duel-server/protocol"
)

func emits(fx []Effect) []Emit {
	var out []Emit
	for _, e := range fx {
		if em, ok := e.(Emit); ok {
			out = append(out, em)
		}
	}
	return out
}

func scheduled(fx []Effect) []string {
	var keys []string
	for _, e := range fx {
		if sc, ok := e.(Schedule); ok {
			keys = append(keys, sc.Key)
		}
	}
	return keys
}

// pendingOutgoing drives a fresh state to an acknowledged outgoing proposal p1 to u2.
func pendingOutgoing(t *testing.T) State {
	t.Helper()
	s, fx := Reduce(State{}, Invite{TargetID: "u2", TargetNickname: "bob"})
	if len(emits(fx)) != 1 {
		t.Fatalf("expected one emit, got %v", fx)
	}
	s, _ = Reduce(s, Ack{protocol.ChallengeAck{InviteeID: "u2", InviteeNickname: "bob", ProposalID: "p1"}})
	if s.Outgoing.Status != OutPending || s.Outgoing.ProposalID != "p1" {
		t.Fatalf("expected pending p1, got %+v", s.Outgoing)
	}
	return s
}

func TestInviteEmitsSendChallenge(t *testing.T) {
	s, fx := Reduce(State{}, Invite{TargetID: "u2", TargetNickname: "bob"})
	em := emits(fx)
	if len(em) != 1 || em[0].Type != protocol.TypeSendChallenge {
		t.Fatalf("unexpected effects %v", fx)
	}
	if p := em[0].Payload.(protocol.SendChallenge); p.TargetID != "u2" {
		t.Errorf("unexpected payload %+v", p)
	}
	if s.Phase() != PendingOutgoing || s.Outgoing.Status != OutSending {
		t.Errorf("expected sending, got %v %v", s.Phase(), s.Outgoing.Status)
	}
}

func TestSecondInviteRejectedLocally(t *testing.T) {
	s := pendingOutgoing(t)
	if !errors.Is(s.CanInvite(), matcherrors.ErrInvitePending) {
		t.Errorf("expected ErrInvitePending, got %v", s.CanInvite())
	}
	next, fx := Reduce(s, Invite{TargetID: "u3", TargetNickname: "carl"})
	if len(emits(fx)) != 0 {
		t.Errorf("second invite must not reach the channel: %v", fx)
	}
	if next != s {
		t.Errorf("state changed on rejected invite: %+v", next)
	}
}

func TestAcceptedThenStartedCommits(t *testing.T) {
	s := pendingOutgoing(t)
	s, _ = Reduce(s, Resolved{protocol.ChallengeResolved{InviteeID: "u2", InviteeNickname: "bob", Accepted: true, ProposalID: "p1"}})
	if s.Outgoing.Status != OutAccepted {
		t.Fatalf("expected accepted, got %v", s.Outgoing.Status)
	}
	s, _ = Reduce(s, Started{protocol.DuelStarted{SessionID: "sess", OpponentID: "u2", OpponentNickname: "bob", FirstMover: true}})
	if s.Phase() != CommittedPhase {
		t.Fatalf("expected committed, got %v", s.Phase())
	}
	if s.Committed != (Committed{SessionID: "sess", OpponentID: "u2", OpponentNickname: "bob", FirstMover: true}) {
		t.Errorf("unexpected committed %+v", s.Committed)
	}
	if s.Outgoing.Status != OutNone {
		t.Error("outgoing should clear on commit")
	}

	// Committed is terminal: later lobby noise is ignored.
	again, fx := Reduce(s, Received{protocol.ChallengeReceived{InviterID: "u3", InviterNickname: "carl", ProposalID: "p9"}})
	if again != s || len(fx) != 0 {
		t.Errorf("committed state should ignore new challenges")
	}
	again, _ = Reduce(s, Started{protocol.DuelStarted{SessionID: "other"}})
	if again.Committed.SessionID != "sess" {
		t.Error("second duel_started must not replace the session")
	}

	s, _ = Reduce(s, Reset{})
	if s.Phase() != Idle || s.CanInvite() != nil {
		t.Errorf("expected idle after reset, got %v", s.Phase())
	}
}

func TestDeclineAllowsImmediateReinvite(t *testing.T) {
	s := pendingOutgoing(t)
	s, fx := Reduce(s, Resolved{protocol.ChallengeResolved{InviteeID: "u2", InviteeNickname: "bob", Accepted: false, ProposalID: "p1", Message: "busy"}})
	if s.Phase() != Idle {
		t.Fatalf("expected idle, got %v", s.Phase())
	}
	if s.Notice != "bob declined your invitation. busy" {
		t.Errorf("unexpected notice %q", s.Notice)
	}
	if keys := scheduled(fx); len(keys) != 1 || keys[0] != s.NoticeKey {
		t.Errorf("expected notice timer armed, got %v", keys)
	}
	_, fx = Reduce(s, Invite{TargetID: "u2", TargetNickname: "bob"})
	if len(emits(fx)) != 1 {
		t.Error("re-invite after decline should be sent")
	}
}

func TestNoticeAutoClearAndStaleKey(t *testing.T) {
	s, _ := Reduce(State{}, Invite{TargetID: "u2", TargetNickname: "bob"})
	s, _ = Reduce(s, Failed{protocol.Error{Message: "Invited player is busy in a duel"}})
	if s.Outgoing.Status != OutError {
		t.Fatalf("expected error sub-state, got %v", s.Outgoing.Status)
	}
	if s.CanInvite() != nil {
		t.Error("error sub-state should allow retry")
	}
	first := s.NoticeKey

	s, fx := Reduce(s, Failed{protocol.Error{Message: "challenge rejected"}})
	second := s.NoticeKey
	if first == second {
		t.Fatal("expected a new notice key")
	}
	var cancelled bool
	for _, e := range fx {
		if c, ok := e.(Cancel); ok && c.Key == first {
			cancelled = true
		}
	}
	if !cancelled {
		t.Error("old notice timer should be cancelled explicitly")
	}

	stale, _ := Reduce(s, NoticeExpired{Key: first})
	if stale != s {
		t.Error("stale timer firing must be a no-op")
	}
	s, _ = Reduce(s, NoticeExpired{Key: second})
	if s.Notice != "" || s.Outgoing.Status != OutNone {
		t.Errorf("expected notice and error to clear, got %q %v", s.Notice, s.Outgoing.Status)
	}
}

func TestUnrelatedErrorLeavesInvitation(t *testing.T) {
	s := pendingOutgoing(t)
	next, fx := Reduce(s, Failed{protocol.Error{Message: "Invalid message format."}})
	if next != s {
		t.Errorf("unrelated error changed state: %+v", next)
	}
	if len(fx) != 1 {
		t.Fatalf("expected a single notice, got %v", fx)
	}
	if n, ok := fx[0].(Notice); !ok || n.Text != "Server error: Invalid message format." {
		t.Errorf("unexpected effect %v", fx[0])
	}
}

func TestInvitationErrorFoldsOnlyIntoUnackedSend(t *testing.T) {
	s, _ := Reduce(State{}, Invite{TargetID: "u2", TargetNickname: "bob"})
	s, _ = Reduce(s, Failed{protocol.Error{Message: "cannot send an invitation to yourself"}})
	if s.Outgoing.Status != OutError || s.Phase() != Idle {
		t.Errorf("expected idle with error entry, got %v %v", s.Phase(), s.Outgoing.Status)
	}

	idle, fx := Reduce(State{}, Failed{protocol.Error{Message: "Invitation is no longer available."}})
	if idle != (State{}) {
		t.Errorf("error without an outgoing proposal changed state: %+v", idle)
	}
	if len(fx) != 1 {
		t.Errorf("expected a single notice, got %v", fx)
	}
}

func TestInvitationErrorKeepsAckedProposal(t *testing.T) {
	s := pendingOutgoing(t)
	// Answering someone else's stale invite must not release the acknowledged proposal p1.
	next, _ := Reduce(s, Failed{protocol.Error{Message: "Invitation is no longer available."}})
	if next.Outgoing.Status != OutPending || next.Outgoing.ProposalID != "p1" {
		t.Fatalf("outgoing = %+v, want pending p1", next.Outgoing)
	}
	if err := next.CanInvite(); !errors.Is(err, matcherrors.ErrInvitePending) {
		t.Errorf("CanInvite = %v, want ErrInvitePending", err)
	}
	if _, fx := Reduce(next, Invite{TargetID: "u3", TargetNickname: "dave"}); len(emits(fx)) != 0 {
		t.Errorf("second invite emitted %v", fx)
	}
}

func TestIncomingAcceptAndDecline(t *testing.T) {
	s, _ := Reduce(State{}, Received{protocol.ChallengeReceived{InviterID: "u1", InviterNickname: "ann", ProposalID: "p1"}})
	if s.Phase() != PendingIncoming {
		t.Fatalf("expected pending incoming, got %v", s.Phase())
	}

	declined, fx := Reduce(s, Decline{})
	em := emits(fx)
	if len(em) != 1 || em[0].Payload.(protocol.RespondChallenge) != (protocol.RespondChallenge{ProposalID: "p1", InviterID: "u1", Accepted: false}) {
		t.Errorf("unexpected decline effects %v", fx)
	}
	if declined.Phase() != Idle {
		t.Errorf("expected idle after decline, got %v", declined.Phase())
	}

	accepted, fx := Reduce(s, Accept{})
	if em := emits(fx); len(em) != 1 || !em[0].Payload.(protocol.RespondChallenge).Accepted {
		t.Errorf("unexpected accept effects %v", fx)
	}
	if accepted.Phase() != PendingIncoming {
		t.Error("accept waits for duel_started before committing")
	}
	_, fx = Reduce(accepted, Accept{})
	if len(fx) != 0 {
		t.Error("double accept should not emit twice")
	}
	committed, _ := Reduce(accepted, Started{protocol.DuelStarted{SessionID: "s", OpponentID: "u1", OpponentNickname: "ann"}})
	if committed.Phase() != CommittedPhase || committed.Committed.FirstMover {
		t.Errorf("unexpected commit %+v", committed.Committed)
	}
}

func TestWithdrawnIsSymmetricAndIdempotent(t *testing.T) {
	// Incoming side clears when the inviter withdraws.
	s, _ := Reduce(State{}, Received{protocol.ChallengeReceived{InviterID: "u1", InviterNickname: "ann", ProposalID: "p1"}})
	w := Withdrawn{protocol.ChallengeWithdrawn{ProposalID: "p1", InviterID: "u1", InviteeID: "me", Reason: "inviter cancelled"}}
	s, fx := Reduce(s, w)
	if s.Phase() != Idle {
		t.Fatalf("expected idle, got %v", s.Phase())
	}
	if len(scheduled(fx)) != 1 {
		t.Error("expected one notice")
	}
	again, fx := Reduce(s, w)
	if again != s || len(fx) != 0 {
		t.Errorf("second withdrawn should be a no-op, got %v", fx)
	}

	// Outgoing side clears when the invitee disconnects.
	o := pendingOutgoing(t)
	o, _ = Reduce(o, Withdrawn{protocol.ChallengeWithdrawn{ProposalID: "p1", Reason: "bob disconnected"}})
	if o.Phase() != Idle {
		t.Errorf("expected idle, got %v", o.Phase())
	}
}

func TestLocalWithdraw(t *testing.T) {
	s := pendingOutgoing(t)
	s, fx := Reduce(s, Withdraw{})
	em := emits(fx)
	if len(em) != 1 || em[0].Type != protocol.TypeWithdrawChallenge {
		t.Fatalf("unexpected effects %v", fx)
	}
	if s.Phase() != Idle {
		t.Errorf("expected idle, got %v", s.Phase())
	}
	// Echo from the lobby is stale for the originator.
	next, fx := Reduce(s, Withdrawn{protocol.ChallengeWithdrawn{ProposalID: "p1", Reason: "cancelled"}})
	if next != s || len(fx) != 0 {
		t.Error("originator should ignore its own withdrawal echo")
	}

	sending, _ := Reduce(State{}, Invite{TargetID: "u2"})
	_, fx = Reduce(sending, Withdraw{})
	if len(emits(fx)) != 0 {
		t.Error("cannot withdraw before the proposal id is known")
	}
}

func TestTimedOutBothRoles(t *testing.T) {
	o := pendingOutgoing(t)
	o, _ = Reduce(o, TimedOut{protocol.ChallengeTimedOut{ProposalID: "p1", OtherUserID: "u2", Role: protocol.RoleInviter}})
	if o.Phase() != Idle || o.Notice != "The invitation you sent expired." {
		t.Errorf("unexpected outgoing expiry %v %q", o.Phase(), o.Notice)
	}

	i, _ := Reduce(State{}, Received{protocol.ChallengeReceived{InviterID: "u1", InviterNickname: "ann", ProposalID: "p7"}})
	i, _ = Reduce(i, TimedOut{protocol.ChallengeTimedOut{ProposalID: "p7", OtherUserID: "u1", Role: protocol.RoleInvitee}})
	if i.Phase() != Idle || i.Notice != "The duel invitation expired." {
		t.Errorf("unexpected incoming expiry %v %q", i.Phase(), i.Notice)
	}

	stale, fx := Reduce(i, TimedOut{protocol.ChallengeTimedOut{ProposalID: "p7"}})
	if stale != i || len(fx) != 0 {
		t.Error("stale expiry must be a no-op")
	}
}

func TestUnknownProposalEventsAreNoOps(t *testing.T) {
	s := pendingOutgoing(t)
	inputs := []Input{
		Ack{protocol.ChallengeAck{InviteeID: "u9", ProposalID: "p9"}},
		Resolved{protocol.ChallengeResolved{InviteeID: "u9", ProposalID: "p9", Accepted: true}},
		Withdrawn{protocol.ChallengeWithdrawn{ProposalID: "p9"}},
		TimedOut{protocol.ChallengeTimedOut{ProposalID: "p9"}},
	}
	for _, in := range inputs {
		next, fx := Reduce(s, in)
		if next != s || len(fx) != 0 {
			t.Errorf("%T: expected no-op, got %+v %v", in, next, fx)
		}
	}
}

func TestDisconnectedClearsEverything(t *testing.T) {
	s := pendingOutgoing(t)
	s, _ = Reduce(s, Failed{protocol.Error{Message: "invitation failed"}})
	s, fx := Reduce(s, Disconnected{})
	if s.Phase() != Idle || s.Notice != "" || s.Outgoing.Status != OutNone {
		t.Errorf("expected clean state, got %+v", s)
	}
	if len(fx) != 1 {
		t.Errorf("expected notice timer cancel, got %v", fx)
	}
}
