package session

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"sync"
	"testing"
	"time"

	"attribute-duel-server/config"
	"attribute-duel-server/deck"
	"attribute-duel-server/matcherrors"
	"attribute-duel-server/protocol"
)

// recordChannel is a Channel that keeps every frame sent through it.
type recordChannel struct {
	mu     sync.Mutex
	sent   []protocol.Envelope
	closed bool
}

func (r *recordChannel) Send(msgType string, payload any) error {
	raw, err := protocol.Encode(msgType, payload)
	if err != nil {
		return err
	}
	env, err := protocol.Decode(raw)
	if err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return errors.New("channel closed")
	}
	r.sent = append(r.sent, env)
	return nil
}

func (r *recordChannel) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	return nil
}

func (r *recordChannel) last(msgType string) (protocol.Envelope, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := len(r.sent) - 1; i >= 0; i-- {
		if r.sent[i].Type == msgType {
			return r.sent[i], true
		}
	}
	return protocol.Envelope{}, false
}

func (r *recordChannel) count(msgType string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, env := range r.sent {
		if env.Type == msgType {
			n++
		}
	}
	return n
}

// harness runs a Client and remembers the latest snapshot it published.
type harness struct {
	t    *testing.T
	c    *Client
	last Snapshot
	seen bool
}

func newHarness(t *testing.T, cfg *config.Config, seed int64) *harness {
	t.Helper()
	c := NewClient(cfg, rand.New(rand.NewSource(seed)))
	ctx, cancel := context.WithCancel(context.Background())
	go c.Run(ctx)
	t.Cleanup(func() {
		cancel()
		<-c.Done()
	})
	return &harness{t: t, c: c}
}

func (h *harness) waitFor(desc string, pred func(Snapshot) bool) Snapshot {
	h.t.Helper()
	select {
	case s := <-h.c.Snapshots():
		h.last, h.seen = s, true
	default:
	}
	if h.seen && pred(h.last) {
		return h.last
	}
	deadline := time.After(2 * time.Second)
	for {
		select {
		case s := <-h.c.Snapshots():
			h.last, h.seen = s, true
			if pred(s) {
				return s
			}
		case <-deadline:
			h.t.Fatalf("timed out waiting for %s; last snapshot: %+v", desc, h.last)
		}
	}
}

func (h *harness) deliver(msgType string, payload any) {
	h.t.Helper()
	env, err := protocol.Decode(protocol.MustEncode(msgType, payload))
	if err != nil {
		h.t.Fatal(err)
	}
	h.c.Deliver(env)
}

func (h *harness) must(err error) {
	h.t.Helper()
	if err != nil {
		h.t.Fatal(err)
	}
}

func testConfig() *config.Config {
	cfg := config.Defaults()
	cfg.CardsPerPlayer = 2
	cfg.TotalRounds = 10
	cfg.NoticeDisplayMS = 5000
	cfg.Opponent.ThinkingMS = 5
	return cfg
}

func testDeck(n int) deck.Deck {
	d := deck.Deck{ID: "test", Name: "Test"}
	for i := 0; i < n; i++ {
		d.Cards = append(d.Cards, deck.Card{
			Name: fmt.Sprintf("c%d", i),
			Attributes: deck.Attributes{
				{Name: "Speed", Value: 20 + 7*i},
				{Name: "Power", Value: 90 - 5*i},
			},
		})
	}
	return d
}

func hasDuelPhase(phase string) func(Snapshot) bool {
	return func(s Snapshot) bool { return s.Duel != nil && s.Duel.Phase == phase }
}

// register connects h to a recordChannel and confirms an identity with the given roster.
func (h *harness) register(id, nickname string, roster ...protocol.RosterEntry) *recordChannel {
	h.t.Helper()
	ch := &recordChannel{}
	h.must(h.c.Connect(ch))
	h.must(h.c.Register(nickname))
	h.deliver(protocol.TypeIdentityConfirmed, protocol.IdentityConfirmed{ID: id, Nickname: nickname, Roster: roster})
	h.waitFor("identity", func(s Snapshot) bool { return s.Identity.ID == id })
	return ch
}

func TestScriptedDuelRunsToTerminal(t *testing.T) {
	h := newHarness(t, testConfig(), 7)
	h.must(h.c.StartScripted(testDeck(4)))

	for i := 0; i < 100; i++ {
		s := h.waitFor("duel to settle", func(s Snapshot) bool {
			d := s.Duel
			return d != nil && (d.MyTurn || d.Phase != "idle" || d.RevealedChoice != "")
		})
		d := s.Duel
		switch {
		case d.Phase == "terminal":
			if d.Result == nil || d.Result.Reason == "aborted" {
				t.Fatalf("result = %+v", d.Result)
			}
			if got := d.Result.PlayerCards + d.Result.OpponentCards; got != 4 {
				t.Errorf("cards at end = %d, want 4", got)
			}
			return
		case d.Phase == "comparing":
			h.must(h.c.Advance())
		case d.MyTurn:
			h.must(h.c.Choose(d.PlayerCard.Attributes[0].Name))
		default:
			if d.OpponentCard == nil {
				t.Fatal("revealed choice without opponent card")
			}
			h.must(h.c.ConfirmReveal())
		}
	}
	t.Fatal("duel did not finish")
}

func TestStartScriptedRejectsSmallDeck(t *testing.T) {
	h := newHarness(t, testConfig(), 1)
	err := h.c.StartScripted(testDeck(1))
	if !errors.Is(err, matcherrors.ErrDeckTooSmall) {
		t.Fatalf("err = %v, want ErrDeckTooSmall", err)
	}
	s := h.waitFor("message", func(s Snapshot) bool { return s.Message != "" })
	if s.Duel != nil {
		t.Error("duel created from a one-card deck")
	}
}

func TestStartScriptedWhileDuelRunning(t *testing.T) {
	h := newHarness(t, testConfig(), 1)
	h.must(h.c.StartScripted(testDeck(4)))
	if err := h.c.StartScripted(testDeck(4)); !errors.Is(err, matcherrors.ErrDuelInProgress) {
		t.Fatalf("err = %v, want ErrDuelInProgress", err)
	}
	h.must(h.c.Leave())
	h.must(h.c.StartScripted(testDeck(4)))
}

func TestRegisterValidation(t *testing.T) {
	h := newHarness(t, testConfig(), 1)
	if err := h.c.Register("ana"); !errors.Is(err, matcherrors.ErrNotConnected) {
		t.Fatalf("register before connect: %v", err)
	}
	ch := &recordChannel{}
	h.must(h.c.Connect(ch))
	if err := h.c.Register("   "); !errors.Is(err, matcherrors.ErrInvalidNickname) {
		t.Fatalf("blank nickname: %v", err)
	}
	if err := h.c.Register(strings.Repeat("x", 25)); !errors.Is(err, matcherrors.ErrInvalidNickname) {
		t.Fatalf("long nickname: %v", err)
	}
	h.must(h.c.Register(" ana "))
	env, ok := ch.last(protocol.TypeRegisterIdentity)
	if !ok {
		t.Fatal("register_identity not sent")
	}
	var msg protocol.RegisterIdentity
	h.must(env.Payload(&msg))
	if msg.Nickname != "ana" {
		t.Errorf("nickname = %q, want trimmed", msg.Nickname)
	}
}

func TestInviteChecks(t *testing.T) {
	h := newHarness(t, testConfig(), 1)
	if err := h.c.Invite("u2"); !errors.Is(err, matcherrors.ErrNotConnected) {
		t.Fatalf("invite offline: %v", err)
	}
	h.register("u1", "ana",
		protocol.RosterEntry{ID: "u1", Nickname: "ana", Status: protocol.StatusOnline},
		protocol.RosterEntry{ID: "u2", Nickname: "bob", Status: protocol.StatusOnline})

	if err := h.c.Invite("u1"); !errors.Is(err, matcherrors.ErrSelfChallenge) {
		t.Errorf("self invite: %v", err)
	}
	if err := h.c.Invite("u9"); !errors.Is(err, matcherrors.ErrUnknownPlayer) {
		t.Errorf("unknown target: %v", err)
	}
	h.must(h.c.Invite("u2"))
	if err := h.c.Invite("u2"); !errors.Is(err, matcherrors.ErrInvitePending) {
		t.Errorf("second invite: %v", err)
	}
	if err := h.c.Accept(); !errors.Is(err, matcherrors.ErrUnknownProposal) {
		t.Errorf("accept without proposal: %v", err)
	}
}

func TestInviteHandshakeStartsRemoteDuel(t *testing.T) {
	h := newHarness(t, testConfig(), 3)
	ch := h.register("u1", "ana",
		protocol.RosterEntry{ID: "u1", Nickname: "ana", Status: protocol.StatusOnline},
		protocol.RosterEntry{ID: "u2", Nickname: "bob", Status: protocol.StatusOnline})

	h.must(h.c.Invite("u2"))
	if ch.count(protocol.TypeSendChallenge) != 1 {
		t.Fatal("send_challenge not emitted")
	}
	h.deliver(protocol.TypeChallengeAck, protocol.ChallengeAck{InviteeID: "u2", InviteeNickname: "bob", ProposalID: "p1"})
	h.waitFor("pending outgoing", func(s Snapshot) bool { return s.Invite.Outgoing.ProposalID == "p1" })

	h.deliver(protocol.TypeChallengeResolved, protocol.ChallengeResolved{InviteeID: "u2", InviteeNickname: "bob", InviterID: "u1", Accepted: true, ProposalID: "p1"})
	h.deliver(protocol.TypeDuelStarted, protocol.DuelStarted{SessionID: "s1", OpponentID: "u2", OpponentNickname: "bob", FirstMover: true})
	h.waitFor("committed", func(s Snapshot) bool { return s.Invite.Committed.SessionID == "s1" })

	h.must(h.c.ProposeDeck(testDeck(4)))
	s := h.waitFor("remote duel", func(s Snapshot) bool { return s.Duel != nil })
	if !s.Duel.Remote || s.Duel.SessionID != "s1" || !s.Duel.MyTurn {
		t.Fatalf("duel = %+v", s.Duel)
	}
	env, ok := ch.last(protocol.TypeProposeDeck)
	if !ok {
		t.Fatal("propose_deck not sent")
	}
	var msg protocol.ProposeDeck
	h.must(env.Payload(&msg))
	if msg.SessionID != "s1" || len(msg.Deck.Cards) != 4 {
		t.Errorf("propose_deck = %+v", msg)
	}

	h.must(h.c.Choose("Speed"))
	env, ok = ch.last(protocol.TypePlayAttribute)
	if !ok {
		t.Fatal("play_attribute not sent")
	}
	var play protocol.PlayAttribute
	h.must(env.Payload(&play))
	if play.Round != 1 || play.Attribute != "Speed" || play.SessionID != "s1" {
		t.Errorf("play_attribute = %+v", play)
	}
}

func TestPeerLeftMidDuelAborts(t *testing.T) {
	h := newHarness(t, testConfig(), 3)
	ch := h.register("u2", "bob")
	h.deliver(protocol.TypeDuelStarted, protocol.DuelStarted{SessionID: "s1", OpponentID: "u1", OpponentNickname: "ana"})
	h.deliver(protocol.TypeDeckProposed, protocol.ProposeDeck{SessionID: "s1", Deck: testDeck(4), Seed: 42})
	h.waitFor("dealt", hasDuelPhase("idle"))

	h.deliver(protocol.TypePeerLeftDuel, protocol.PeerLeftDuel{SessionID: "s1", OpponentID: "u1", OpponentNickname: "ana", Disconnected: true})
	s := h.waitFor("aborted", hasDuelPhase("terminal"))
	if s.Duel.Result.Reason != "aborted" {
		t.Errorf("reason = %s", s.Duel.Result.Reason)
	}
	if got := s.Duel.Result.PlayerCards + s.Duel.Result.OpponentCards; got != 4 {
		t.Errorf("cards after abort = %d, want 4", got)
	}
	if s.Invite.Committed.SessionID != "" {
		t.Error("session still committed")
	}
	if ch.count(protocol.TypeLeaveDuel) != 1 {
		t.Errorf("leave_duel sent %d times", ch.count(protocol.TypeLeaveDuel))
	}
}

func TestChannelClosedAbortsRemoteDuel(t *testing.T) {
	h := newHarness(t, testConfig(), 3)
	ch := h.register("u2", "bob")
	h.deliver(protocol.TypeDuelStarted, protocol.DuelStarted{SessionID: "s1", OpponentID: "u1", OpponentNickname: "ana"})
	h.deliver(protocol.TypeDeckProposed, protocol.ProposeDeck{SessionID: "s1", Deck: testDeck(4), Seed: 42})
	h.waitFor("dealt", hasDuelPhase("idle"))

	h.c.ChannelClosed(ch, errors.New("connection reset"))
	s := h.waitFor("disconnected", func(s Snapshot) bool { return !s.Connected })
	if s.Identity.ID != "" || len(s.Roster) != 0 {
		t.Errorf("identity or roster kept: %+v %v", s.Identity, s.Roster)
	}
	if s.Duel == nil || s.Duel.Result == nil || s.Duel.Result.Reason != "aborted" {
		t.Fatalf("duel = %+v", s.Duel)
	}
	if !strings.HasPrefix(s.Message, "Disconnected: connection reset") {
		t.Errorf("message = %q", s.Message)
	}
	if err := h.c.Invite("u1"); !errors.Is(err, matcherrors.ErrNotConnected) {
		t.Errorf("invite after disconnect: %v", err)
	}
}

func TestLateCloseOfOldChannelIgnored(t *testing.T) {
	h := newHarness(t, testConfig(), 3)
	old := h.register("u1", "ana")
	h.must(h.c.Disconnect())

	fresh := &recordChannel{}
	h.must(h.c.Connect(fresh))
	h.must(h.c.Register("ana"))
	h.deliver(protocol.TypeIdentityConfirmed, protocol.IdentityConfirmed{ID: "u9", Nickname: "ana"})
	h.waitFor("new identity", func(s Snapshot) bool { return s.Identity.ID == "u9" })

	// The old read loop reports its close after the reconnect.
	h.c.ChannelClosed(old, nil)
	h.must(h.c.Refresh())
	s := h.waitFor("state after late close", func(Snapshot) bool { return true })
	if !s.Connected || s.Identity.ID != "u9" {
		t.Fatalf("new connection torn down: %+v", s)
	}
	if fresh.closed {
		t.Error("new channel was closed")
	}
}

func TestScriptedDuelSurvivesDisconnect(t *testing.T) {
	h := newHarness(t, testConfig(), 3)
	ch := h.register("u1", "ana")
	h.must(h.c.StartScripted(testDeck(4)))
	h.c.ChannelClosed(ch, errors.New("gone"))
	s := h.waitFor("disconnected", func(s Snapshot) bool { return !s.Connected })
	if s.Duel == nil || s.Duel.Phase == "terminal" {
		t.Fatalf("scripted duel ended on disconnect: %+v", s.Duel)
	}
}

func TestNoticeClearsAfterDisplayTime(t *testing.T) {
	cfg := testConfig()
	cfg.NoticeDisplayMS = 20
	h := newHarness(t, cfg, 1)
	h.register("u2", "bob")
	h.deliver(protocol.TypeChallengeReceived, protocol.ChallengeReceived{InviterID: "u1", InviterNickname: "ana", ProposalID: "p1"})
	h.deliver(protocol.TypeChallengeTimedOut, protocol.ChallengeTimedOut{ProposalID: "p1", OtherUserID: "u1", Role: protocol.RoleInvitee})
	h.waitFor("notice", func(s Snapshot) bool { return s.Invite.Notice == "The duel invitation expired." })
	s := h.waitFor("notice cleared", func(s Snapshot) bool { return s.Invite.Notice == "" })
	if s.Invite.Incoming.ProposalID != "" {
		t.Error("incoming proposal kept after timeout")
	}
	if s.Message != "" {
		t.Errorf("message = %q, want cleared", s.Message)
	}
}

func TestActionsAfterStopReturnErrStopped(t *testing.T) {
	c := NewClient(testConfig(), nil)
	ctx, cancel := context.WithCancel(context.Background())
	go c.Run(ctx)
	cancel()
	<-c.Done()
	if err := c.Advance(); !errors.Is(err, ErrStopped) {
		t.Fatalf("err = %v, want ErrStopped", err)
	}
}
