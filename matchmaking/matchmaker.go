// Package matchmaking is the lobby: identities, presence, invitation proposals and the relay
// between the two participants of a duel session.
package matchmaking

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"attribute-duel-server/config"
	"attribute-duel-server/protocol"
	"attribute-duel-server/ws"
)

type eventKind int

const (
	evMessage eventKind = iota
	evDisconnect
	evExpire
)

type event struct {
	kind       eventKind
	client     *ws.Client
	env        protocol.Envelope
	proposalID string
}

type participant struct {
	id        string
	nickname  string
	client    *ws.Client
	sessionID string
}

func (p *participant) status() string {
	if p.sessionID != "" {
		return protocol.StatusInDuel
	}
	return protocol.StatusOnline
}

type proposal struct {
	id        string
	inviterID string
	inviteeID string
	cancel    chan struct{}
}

type duelSession struct {
	id    string
	seats [2]string // participant ids; seats[0] moves first
}

func (s *duelSession) peerOf(id string) string {
	if s.seats[0] == id {
		return s.seats[1]
	}
	return s.seats[0]
}

// Matchmaker owns all lobby state. Every mutation happens on the Run goroutine; the hub and
// the connection pumps only post events.
type Matchmaker struct {
	config *config.Config
	rng    *rand.Rand
	events chan event
	done   chan struct{}
	logger *slog.Logger

	participants map[string]*participant
	byClient     map[*ws.Client]*participant
	proposals    map[string]*proposal
	sessions     map[string]*duelSession
}

// NewMatchmaker creates a Matchmaker. rng picks the first mover of each session; nil uses a
// time-based source.
func NewMatchmaker(cfg *config.Config, rng *rand.Rand) *Matchmaker {
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return &Matchmaker{
		config:       cfg,
		rng:          rng,
		events:       make(chan event, 256),
		done:         make(chan struct{}),
		logger:       slog.With("tag", "lobby"),
		participants: make(map[string]*participant),
		byClient:     make(map[*ws.Client]*participant),
		proposals:    make(map[string]*proposal),
		sessions:     make(map[string]*duelSession),
	}
}

// Handle queues an inbound message from c.
func (m *Matchmaker) Handle(c *ws.Client, env protocol.Envelope) {
	m.post(event{kind: evMessage, client: c, env: env})
}

// Disconnect queues the departure of c.
func (m *Matchmaker) Disconnect(c *ws.Client) {
	m.post(event{kind: evDisconnect, client: c})
}

func (m *Matchmaker) post(e event) {
	select {
	case m.events <- e:
	case <-m.done:
	}
}

// Run is the lobby's main loop. Should be run as a goroutine.
func (m *Matchmaker) Run(ctx context.Context) {
	defer close(m.done)
	for {
		select {
		case <-ctx.Done():
			for _, p := range m.proposals {
				close(p.cancel)
			}
			m.logger.Info("shutdown signal received, stopping")
			return
		case e := <-m.events:
			switch e.kind {
			case evMessage:
				m.handleMessage(e.client, e.env)
			case evDisconnect:
				m.handleDisconnect(e.client)
			case evExpire:
				m.handleExpire(e.proposalID)
			}
		}
	}
}

func (m *Matchmaker) handleMessage(c *ws.Client, env protocol.Envelope) {
	if env.Type == protocol.TypeRegisterIdentity {
		var msg protocol.RegisterIdentity
		if err := env.Payload(&msg); err != nil {
			c.SendError("Invalid register_identity message.")
			return
		}
		m.handleRegister(c, msg)
		return
	}

	p, ok := m.byClient[c]
	if !ok {
		c.SendError("Register a nickname first.")
		return
	}

	switch env.Type {
	case protocol.TypeSendChallenge:
		var msg protocol.SendChallenge
		if err := env.Payload(&msg); err != nil {
			c.SendError("Invalid invitation message.")
			return
		}
		m.handleSendChallenge(p, msg)
	case protocol.TypeRespondChallenge:
		var msg protocol.RespondChallenge
		if err := env.Payload(&msg); err != nil {
			c.SendError("Invalid invitation response.")
			return
		}
		m.handleRespond(p, msg)
	case protocol.TypeWithdrawChallenge:
		var msg protocol.WithdrawChallenge
		if err := env.Payload(&msg); err != nil {
			c.SendError("Invalid invitation withdrawal.")
			return
		}
		m.handleWithdraw(p, msg)
	case protocol.TypeLeaveDuel:
		var msg protocol.LeaveDuel
		if err := env.Payload(&msg); err != nil {
			c.SendError("Invalid leave_duel message.")
			return
		}
		if s, ok := m.sessions[msg.SessionID]; ok && p.sessionID == s.id {
			m.endSession(s, p, false)
		}
	case protocol.TypeProposeDeck:
		var msg protocol.ProposeDeck
		if err := env.Payload(&msg); err != nil {
			c.SendError("Invalid propose_deck message.")
			return
		}
		m.relay(p, msg.SessionID, protocol.TypeDeckProposed, msg)
	case protocol.TypePlayAttribute:
		var msg protocol.PlayAttribute
		if err := env.Payload(&msg); err != nil {
			c.SendError("Invalid play_attribute message.")
			return
		}
		m.relay(p, msg.SessionID, protocol.TypePeerPlayed, msg)
	default:
		c.SendError("Unknown message type: " + env.Type)
	}
}

func (m *Matchmaker) handleRegister(c *ws.Client, msg protocol.RegisterIdentity) {
	if _, ok := m.byClient[c]; ok {
		c.SendError("Already registered.")
		return
	}
	name := strings.TrimSpace(msg.Nickname)
	if len(name) < 1 || len(name) > m.config.MaxNameLength {
		c.SendError(fmt.Sprintf("Nickname must be between 1 and %d characters.", m.config.MaxNameLength))
		return
	}
	p := &participant{id: uuid.NewString(), nickname: name, client: c}
	m.participants[p.id] = p
	m.byClient[c] = p
	m.logger.Info("participant registered", "id", p.id, "nickname", name, "participants", len(m.participants))

	c.SendMessage(protocol.TypeIdentityConfirmed, protocol.IdentityConfirmed{
		ID:       p.id,
		Nickname: name,
		Roster:   m.rosterFor(p.id),
	})
	m.broadcastRoster(p.id)
}

// rosterFor lists every participant except viewer, ordered by nickname.
func (m *Matchmaker) rosterFor(viewer string) []protocol.RosterEntry {
	roster := make([]protocol.RosterEntry, 0, len(m.participants))
	for _, p := range m.participants {
		if p.id == viewer {
			continue
		}
		roster = append(roster, protocol.RosterEntry{ID: p.id, Nickname: p.nickname, Status: p.status()})
	}
	sort.Slice(roster, func(i, j int) bool {
		if roster[i].Nickname != roster[j].Nickname {
			return roster[i].Nickname < roster[j].Nickname
		}
		return roster[i].ID < roster[j].ID
	})
	return roster
}

// broadcastRoster sends each participant other than except its own view of the roster.
func (m *Matchmaker) broadcastRoster(except string) {
	for _, p := range m.participants {
		if p.id == except {
			continue
		}
		p.client.SendMessage(protocol.TypeRosterChanged, protocol.RosterChanged{Roster: m.rosterFor(p.id)})
	}
}

func (m *Matchmaker) handleSendChallenge(inviter *participant, msg protocol.SendChallenge) {
	invitee, ok := m.participants[msg.TargetID]
	switch {
	case msg.TargetID == inviter.id:
		inviter.client.SendError("You cannot send an invitation to yourself.")
		return
	case !ok:
		inviter.client.SendError("Invitation failed: player not found.")
		return
	case inviter.sessionID != "":
		inviter.client.SendError("Invitation failed: you are already in a duel.")
		return
	case invitee.sessionID != "":
		inviter.client.SendError(fmt.Sprintf("Invitation failed: %s is busy in a duel.", invitee.nickname))
		return
	}
	for _, p := range m.proposals {
		if p.inviterID == inviter.id && p.inviteeID == invitee.id {
			inviter.client.SendError(fmt.Sprintf("An invitation to %s is already pending.", invitee.nickname))
			return
		}
	}

	p := &proposal{id: uuid.NewString(), inviterID: inviter.id, inviteeID: invitee.id, cancel: make(chan struct{})}
	m.proposals[p.id] = p
	m.startExpiry(p)
	m.logger.Info("invitation sent", "proposal", p.id, "inviter", inviter.nickname, "invitee", invitee.nickname)

	inviter.client.SendMessage(protocol.TypeChallengeAck, protocol.ChallengeAck{
		InviteeID:       invitee.id,
		InviteeNickname: invitee.nickname,
		ProposalID:      p.id,
	})
	invitee.client.SendMessage(protocol.TypeChallengeReceived, protocol.ChallengeReceived{
		InviterID:       inviter.id,
		InviterNickname: inviter.nickname,
		ProposalID:      p.id,
	})
}

// startExpiry arms the proposal's timeout. No-op if Config.InviteExpirySec <= 0.
func (m *Matchmaker) startExpiry(p *proposal) {
	if m.config.InviteExpirySec <= 0 {
		return
	}
	limit := time.Duration(m.config.InviteExpirySec) * time.Second
	cancel, id := p.cancel, p.id
	go func() {
		select {
		case <-time.After(limit):
			m.post(event{kind: evExpire, proposalID: id})
		case <-cancel:
		}
	}()
}

func (m *Matchmaker) dropProposal(p *proposal) {
	close(p.cancel)
	delete(m.proposals, p.id)
}

func (m *Matchmaker) handleRespond(invitee *participant, msg protocol.RespondChallenge) {
	p, ok := m.proposals[msg.ProposalID]
	if !ok || p.inviteeID != invitee.id {
		m.logger.Debug("response to unknown invitation", "proposal", msg.ProposalID)
		return
	}
	inviter := m.participants[p.inviterID]
	m.dropProposal(p)

	if !msg.Accepted {
		inviter.client.SendMessage(protocol.TypeChallengeResolved, protocol.ChallengeResolved{
			InviteeID:       invitee.id,
			InviteeNickname: invitee.nickname,
			InviterID:       inviter.id,
			ProposalID:      p.id,
		})
		return
	}
	if inviter.sessionID != "" || invitee.sessionID != "" {
		invitee.client.SendError("Invitation is no longer available.")
		inviter.client.SendMessage(protocol.TypeChallengeWithdrawn, protocol.ChallengeWithdrawn{
			ProposalID: p.id, InviterID: inviter.id, InviteeID: invitee.id, Reason: "a player is already in a duel",
		})
		return
	}

	inviter.client.SendMessage(protocol.TypeChallengeResolved, protocol.ChallengeResolved{
		InviteeID:       invitee.id,
		InviteeNickname: invitee.nickname,
		InviterID:       inviter.id,
		Accepted:        true,
		ProposalID:      p.id,
	})
	m.startSession(inviter, invitee)
}

func (m *Matchmaker) startSession(a, b *participant) {
	s := &duelSession{id: uuid.NewString(), seats: [2]string{a.id, b.id}}
	if m.rng.Intn(2) == 1 {
		s.seats[0], s.seats[1] = b.id, a.id
	}
	m.sessions[s.id] = s
	a.sessionID, b.sessionID = s.id, s.id

	for _, p := range m.proposals {
		if p.inviterID == a.id || p.inviteeID == a.id || p.inviterID == b.id || p.inviteeID == b.id {
			m.withdraw(p, "player joined another duel")
		}
	}

	for i, id := range s.seats {
		self, peer := m.participants[id], m.participants[s.seats[1-i]]
		self.client.SendMessage(protocol.TypeDuelStarted, protocol.DuelStarted{
			SessionID:        s.id,
			OpponentID:       peer.id,
			OpponentNickname: peer.nickname,
			FirstMover:       i == 0,
		})
	}
	m.logger.Info("duel started", "session", s.id, "first", m.participants[s.seats[0]].nickname, "second", m.participants[s.seats[1]].nickname)
	m.broadcastRoster("")
}

// withdraw drops p and tells both of its parties why.
func (m *Matchmaker) withdraw(p *proposal, reason string) {
	m.dropProposal(p)
	msg := protocol.ChallengeWithdrawn{ProposalID: p.id, InviterID: p.inviterID, InviteeID: p.inviteeID, Reason: reason}
	for _, id := range []string{p.inviterID, p.inviteeID} {
		if q, ok := m.participants[id]; ok {
			q.client.SendMessage(protocol.TypeChallengeWithdrawn, msg)
		}
	}
}

func (m *Matchmaker) handleWithdraw(from *participant, msg protocol.WithdrawChallenge) {
	p, ok := m.proposals[msg.ProposalID]
	if !ok || (p.inviterID != from.id && p.inviteeID != from.id) {
		return
	}
	m.withdraw(p, fmt.Sprintf("withdrawn by %s", from.nickname))
}

func (m *Matchmaker) handleExpire(id string) {
	p, ok := m.proposals[id]
	if !ok {
		return
	}
	delete(m.proposals, id)
	m.logger.Info("invitation expired", "proposal", id)
	if q, ok := m.participants[p.inviterID]; ok {
		q.client.SendMessage(protocol.TypeChallengeTimedOut, protocol.ChallengeTimedOut{ProposalID: id, OtherUserID: p.inviteeID, Role: protocol.RoleInviter})
	}
	if q, ok := m.participants[p.inviteeID]; ok {
		q.client.SendMessage(protocol.TypeChallengeTimedOut, protocol.ChallengeTimedOut{ProposalID: id, OtherUserID: p.inviterID, Role: protocol.RoleInvitee})
	}
}

// relay forwards a duel message to the sender's peer in sessionID.
func (m *Matchmaker) relay(from *participant, sessionID, msgType string, payload any) {
	s, ok := m.sessions[sessionID]
	if !ok || from.sessionID != sessionID {
		from.client.SendError("Duel session not found.")
		return
	}
	if peer, ok := m.participants[s.peerOf(from.id)]; ok {
		peer.client.SendMessage(msgType, payload)
	}
}

// endSession frees both participants of s and tells the peer of leaver.
func (m *Matchmaker) endSession(s *duelSession, leaver *participant, disconnected bool) {
	delete(m.sessions, s.id)
	leaver.sessionID = ""
	if peer, ok := m.participants[s.peerOf(leaver.id)]; ok {
		peer.sessionID = ""
		peer.client.SendMessage(protocol.TypePeerLeftDuel, protocol.PeerLeftDuel{
			SessionID:        s.id,
			OpponentID:       leaver.id,
			OpponentNickname: leaver.nickname,
			Disconnected:     disconnected,
		})
	}
	m.logger.Info("duel ended", "session", s.id, "left", leaver.nickname, "disconnected", disconnected)
	m.broadcastRoster("")
}

func (m *Matchmaker) handleDisconnect(c *ws.Client) {
	p, ok := m.byClient[c]
	if !ok {
		return
	}
	delete(m.byClient, c)
	delete(m.participants, p.id)
	m.logger.Info("participant left", "id", p.id, "nickname", p.nickname, "participants", len(m.participants))

	for _, pr := range m.proposals {
		if pr.inviterID == p.id || pr.inviteeID == p.id {
			m.withdraw(pr, fmt.Sprintf("%s disconnected", p.nickname))
		}
	}
	if s, ok := m.sessions[p.sessionID]; ok {
		m.endSession(s, p, true)
		return
	}
	m.broadcastRoster("")
}
