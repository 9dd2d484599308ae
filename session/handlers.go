package session

import (
	"fmt"
	"math/rand"
	"strings"

	"attribute-duel-server/ai"
	"attribute-duel-server/deck"
	"attribute-duel-server/game"
	"attribute-duel-server/invite"
	"attribute-duel-server/matcherrors"
	"attribute-duel-server/protocol"
)

func (c *Client) send(msgType string, payload any) error {
	if c.ch == nil {
		return matcherrors.ErrNotConnected
	}
	if err := c.ch.Send(msgType, payload); err != nil {
		c.logger.Warn("send failed", "type", msgType, "err", err)
		return err
	}
	return nil
}

func (c *Client) handleConnect(ch Channel) error {
	if ch == nil {
		return matcherrors.ErrNotConnected
	}
	c.ch = ch
	c.connected = true
	c.message = "Connected. Choose a nickname."
	return nil
}

func (c *Client) handleRegister(nickname string) error {
	if !c.connected {
		return matcherrors.ErrNotConnected
	}
	nickname = strings.TrimSpace(nickname)
	if nickname == "" || len(nickname) > c.cfg.MaxNameLength {
		return fmt.Errorf("%w: must be 1 to %d characters", matcherrors.ErrInvalidNickname, c.cfg.MaxNameLength)
	}
	c.message = "Registering..."
	return c.send(protocol.TypeRegisterIdentity, protocol.RegisterIdentity{Nickname: nickname})
}

func (c *Client) handleInvite(targetID string) error {
	switch {
	case !c.connected:
		return matcherrors.ErrNotConnected
	case c.identity.ID == "":
		return matcherrors.ErrNotRegistered
	case targetID == c.identity.ID:
		return matcherrors.ErrSelfChallenge
	}
	if err := c.inv.CanInvite(); err != nil {
		return err
	}
	entry, ok := c.rosterEntry(targetID)
	if !ok {
		return matcherrors.ErrUnknownPlayer
	}
	if c.duel != nil && c.duel.Phase() != game.Terminal {
		return matcherrors.ErrDuelInProgress
	}
	c.reduceInvite(invite.Invite{TargetID: entry.ID, TargetNickname: entry.Nickname})
	return nil
}

func (c *Client) handleRespond(accepted bool) error {
	if c.inv.Incoming.ProposalID == "" {
		return matcherrors.ErrUnknownProposal
	}
	if !c.connected {
		return matcherrors.ErrNotConnected
	}
	if accepted {
		c.reduceInvite(invite.Accept{})
	} else {
		c.reduceInvite(invite.Decline{})
	}
	return nil
}

func (c *Client) handleWithdraw() error {
	if c.inv.Outgoing.ProposalID == "" {
		return matcherrors.ErrUnknownProposal
	}
	c.reduceInvite(invite.Withdraw{})
	return nil
}

func (c *Client) rosterEntry(id string) (protocol.RosterEntry, bool) {
	for _, e := range c.roster {
		if e.ID == id {
			return e, true
		}
	}
	return protocol.RosterEntry{}, false
}

// reduceInvite runs the invitation reducer and carries out its effects.
func (c *Client) reduceInvite(in invite.Input) {
	wasCommitted := c.inv.Committed.SessionID != ""
	next, fx := invite.Reduce(c.inv, in)
	c.inv = next
	for _, e := range fx {
		switch e := e.(type) {
		case invite.Emit:
			c.send(e.Type, e.Payload)
		case invite.Schedule:
			c.arm(e.Key, c.noticeTTL())
		case invite.Cancel:
			c.disarm(e.Key)
		case invite.Notice:
			c.message = e.Text
		}
	}
	if !wasCommitted && next.Committed.SessionID != "" {
		c.onCommitted()
	}
}

func (c *Client) handleInbound(env protocol.Envelope) {
	switch env.Type {
	case protocol.TypeIdentityConfirmed:
		var msg protocol.IdentityConfirmed
		if c.decode(env, &msg) {
			c.identity = Identity{ID: msg.ID, Nickname: msg.Nickname}
			c.roster = msg.Roster
			c.message = fmt.Sprintf("Registered as %s. Welcome to the lobby!", msg.Nickname)
		}
	case protocol.TypeRosterChanged:
		var msg protocol.RosterChanged
		if c.decode(env, &msg) {
			c.roster = msg.Roster
		}
	case protocol.TypeChallengeReceived:
		var msg protocol.ChallengeReceived
		if c.decode(env, &msg) {
			c.reduceInvite(invite.Received{ChallengeReceived: msg})
		}
	case protocol.TypeChallengeAck:
		var msg protocol.ChallengeAck
		if c.decode(env, &msg) {
			c.reduceInvite(invite.Ack{ChallengeAck: msg})
		}
	case protocol.TypeChallengeResolved:
		var msg protocol.ChallengeResolved
		if c.decode(env, &msg) {
			c.reduceInvite(invite.Resolved{ChallengeResolved: msg})
		}
	case protocol.TypeChallengeWithdrawn:
		var msg protocol.ChallengeWithdrawn
		if c.decode(env, &msg) {
			c.reduceInvite(invite.Withdrawn{ChallengeWithdrawn: msg})
		}
	case protocol.TypeChallengeTimedOut:
		var msg protocol.ChallengeTimedOut
		if c.decode(env, &msg) {
			c.reduceInvite(invite.TimedOut{ChallengeTimedOut: msg})
		}
	case protocol.TypeDuelStarted:
		var msg protocol.DuelStarted
		if c.decode(env, &msg) {
			c.reduceInvite(invite.Started{DuelStarted: msg})
		}
	case protocol.TypeError:
		var msg protocol.Error
		if c.decode(env, &msg) {
			c.reduceInvite(invite.Failed{Error: msg})
		}
	case protocol.TypePeerLeftDuel:
		var msg protocol.PeerLeftDuel
		if c.decode(env, &msg) {
			c.handlePeerLeft(msg)
		}
	case protocol.TypeDeckProposed:
		var msg protocol.ProposeDeck
		if c.decode(env, &msg) {
			c.handleDeckProposed(msg)
		}
	case protocol.TypePeerPlayed:
		var msg protocol.PlayAttribute
		if c.decode(env, &msg) {
			c.handlePeerPlayed(msg)
		}
	default:
		c.logger.Debug("ignoring unknown event", "type", env.Type)
	}
}

func (c *Client) decode(env protocol.Envelope, v any) bool {
	if err := env.Payload(v); err != nil {
		c.logger.Warn("malformed event", "type", env.Type, "err", err)
		return false
	}
	return true
}

func (c *Client) handleClosed(err error) {
	if !c.connected && c.ch == nil {
		return
	}
	c.ch = nil
	c.connected = false
	if c.remote() && c.duel != nil {
		c.duel.Abandon("Disconnected from the lobby.")
		c.leaveSent = true
	}
	c.pendingPlays = nil
	c.reduceInvite(invite.Disconnected{})
	c.identity = Identity{}
	c.roster = nil
	if err != nil {
		c.message = fmt.Sprintf("Disconnected: %v. Choose a nickname to reconnect.", err)
	} else {
		c.message = "Disconnected."
	}
	c.logger.Info("channel closed", "err", err)
}

// --- duel ---

// remote reports whether the current or pending duel is against a lobby peer.
func (c *Client) remote() bool {
	return c.inv.Committed.SessionID != ""
}

func (c *Client) remoteOpponent() game.Remote {
	return game.Remote{
		SessionID:  c.inv.Committed.SessionID,
		OpponentID: c.inv.Committed.OpponentID,
		Nickname:   c.inv.Committed.OpponentNickname,
	}
}

func checkDeck(d deck.Deck) error {
	if len(d.Cards) < 2 {
		return fmt.Errorf("%d cards: %w", len(d.Cards), matcherrors.ErrDeckTooSmall)
	}
	return deck.Validate(d, deck.Rules{})
}

func (c *Client) resetDuel(g *game.Duel) {
	c.disarmPrefix(thinkPrefix)
	c.duel = g
	c.pendingPlays = nil
	c.leaveSent = false
	c.peerLeft = ""
}

func (c *Client) handleStartScripted(d deck.Deck) error {
	if c.remote() || (c.duel != nil && c.duel.Phase() != game.Terminal) {
		return matcherrors.ErrDuelInProgress
	}
	if err := checkDeck(d); err != nil {
		c.message = "Cannot start duel: " + err.Error()
		return err
	}
	g, err := game.Deal(d, c.cfg, game.Scripted{Name: c.cfg.Opponent.Name}, game.Player, c.rng)
	if err != nil {
		c.message = "Cannot start duel: " + err.Error()
		return err
	}
	c.resetDuel(g)
	c.message = fmt.Sprintf("Duel against %s started. Round 1 of %d.", c.cfg.Opponent.Name, g.TotalRounds())
	c.scheduleThink()
	return nil
}

func (c *Client) handleProposeDeck(d deck.Deck) error {
	if err := checkDeck(d); err != nil {
		return err
	}
	c.deck = &d
	if c.remote() && c.inv.Committed.FirstMover && c.duel == nil {
		return c.startRemote(d)
	}
	return nil
}

// onCommitted runs once when the handshake commits to a remote session.
func (c *Client) onCommitted() {
	if c.duel != nil && c.duel.Phase() != game.Terminal {
		c.duel.Abandon("")
	}
	c.resetDuel(nil)
	com := c.inv.Committed
	switch {
	case com.FirstMover && c.deck != nil:
		if err := c.startRemote(*c.deck); err != nil {
			c.logger.Warn("cannot start remote duel", "session", com.SessionID, "err", err)
		}
	case com.FirstMover:
		c.message = fmt.Sprintf("Duel against %s! Choose a deck to start.", com.OpponentNickname)
	default:
		c.message = fmt.Sprintf("Duel against %s! Waiting for their deck...", com.OpponentNickname)
	}
}

// startRemote deals d as first mover and sends the deck with its shuffle seed to the peer.
func (c *Client) startRemote(d deck.Deck) error {
	seed := c.rng.Int63()
	g, err := game.Deal(d, c.cfg, c.remoteOpponent(), game.Player, rand.New(rand.NewSource(seed)))
	if err != nil {
		c.message = "Cannot start duel: " + err.Error()
		return err
	}
	if err := c.send(protocol.TypeProposeDeck, protocol.ProposeDeck{SessionID: c.inv.Committed.SessionID, Deck: d, Seed: seed}); err != nil {
		return err
	}
	c.resetDuel(g)
	c.message = fmt.Sprintf("Duel against %s started. Your move.", c.inv.Committed.OpponentNickname)
	return nil
}

func (c *Client) handleDeckProposed(msg protocol.ProposeDeck) {
	com := c.inv.Committed
	if msg.SessionID == "" || msg.SessionID != com.SessionID || com.FirstMover || c.duel != nil {
		return
	}
	if err := checkDeck(msg.Deck); err != nil {
		c.abortRemote(fmt.Sprintf("Rejected deck from %s: %v", com.OpponentNickname, err))
		return
	}
	g, err := game.Deal(msg.Deck, c.cfg, c.remoteOpponent(), game.Opponent, rand.New(rand.NewSource(msg.Seed)))
	if err != nil {
		c.abortRemote("Cannot start duel: " + err.Error())
		return
	}
	c.resetDuel(g)
	c.message = fmt.Sprintf("Duel against %s started. %s moves first.", com.OpponentNickname, com.OpponentNickname)
}

// abortRemote gives up on a committed session before any duel was dealt.
func (c *Client) abortRemote(note string) {
	c.send(protocol.TypeLeaveDuel, protocol.LeaveDuel{SessionID: c.inv.Committed.SessionID})
	c.reduceInvite(invite.Reset{})
	c.message = note
}

func (c *Client) handleChoose(attr string) error {
	if c.duel == nil {
		return matcherrors.ErrNoDuel
	}
	r, err := c.duel.Choose(game.Player, attr)
	if err != nil {
		return err
	}
	if rem, ok := c.duel.Opponent().(game.Remote); ok {
		c.send(protocol.TypePlayAttribute, protocol.PlayAttribute{SessionID: rem.SessionID, Round: r.Number, Attribute: attr})
	}
	c.message = r.Message
	return nil
}

func (c *Client) handleConfirmReveal() error {
	if c.duel == nil {
		return matcherrors.ErrNoDuel
	}
	r, err := c.duel.ConfirmReveal()
	if err != nil {
		return err
	}
	c.message = r.Message
	return nil
}

func (c *Client) handlePeerPlayed(msg protocol.PlayAttribute) {
	if c.duel == nil {
		return
	}
	rem, ok := c.duel.Opponent().(game.Remote)
	if !ok || rem.SessionID != msg.SessionID {
		return
	}
	c.pendingPlays = append(c.pendingPlays, msg)
	if c.duel.Phase() == game.Idle {
		c.applyPendingPlay()
	}
}

// applyPendingPlay resolves the current round with the buffered peer play for it, if any. Plays
// for rounds already past are dropped; later ones stay queued.
func (c *Client) applyPendingPlay() {
	current := c.duel.RoundNumber()
	for len(c.pendingPlays) > 0 {
		msg := c.pendingPlays[0]
		if msg.Round > current {
			return
		}
		c.pendingPlays = c.pendingPlays[1:]
		if msg.Round < current {
			c.logger.Warn("dropping play for a past round", "round", msg.Round, "current", current)
			continue
		}
		c.applyPeerPlay(msg)
		return
	}
}

func (c *Client) applyPeerPlay(msg protocol.PlayAttribute) {
	r, err := c.duel.Choose(game.Opponent, msg.Attribute)
	if err != nil {
		c.logger.Warn("peer play rejected", "attribute", msg.Attribute, "err", err)
		return
	}
	c.message = r.Message
}

func (c *Client) handleAdvance() error {
	if c.duel == nil {
		return matcherrors.ErrNoDuel
	}
	if err := c.duel.Advance(); err != nil {
		return err
	}
	if c.duel.Phase() == game.Terminal {
		c.finish()
		return nil
	}
	c.applyPendingPlay()
	if c.duel.Phase() == game.Comparing {
		return nil
	}
	// The peer is gone and no buffered play can move this round.
	if c.peerLeft != "" && len(c.pendingPlays) == 0 {
		if _, decided := c.duel.Result(); !decided {
			c.duel.Abandon(c.peerLeft)
			c.finish()
			return nil
		}
	}
	c.message = fmt.Sprintf("Round %d of %d.", c.duel.RoundNumber(), c.duel.TotalRounds())
	c.scheduleThink()
	return nil
}

// finish runs when the duel reaches Terminal. A remote duel tells the lobby it is over.
func (c *Client) finish() {
	c.disarmPrefix(thinkPrefix)
	if res, ok := c.duel.Result(); ok {
		c.message = res.Message
	}
	if _, ok := c.duel.Opponent().(game.Remote); ok {
		if !c.leaveSent {
			c.send(protocol.TypeLeaveDuel, protocol.LeaveDuel{SessionID: c.inv.Committed.SessionID})
			c.leaveSent = true
		}
		c.reduceInvite(invite.Reset{})
	}
}

func (c *Client) handleLeave() error {
	if c.duel == nil && !c.remote() {
		return matcherrors.ErrNoDuel
	}
	if c.remote() && !c.leaveSent {
		c.send(protocol.TypeLeaveDuel, protocol.LeaveDuel{SessionID: c.inv.Committed.SessionID})
	}
	if c.duel != nil {
		c.duel.Abandon("You left the duel.")
	}
	c.resetDuel(nil)
	if c.remote() {
		c.reduceInvite(invite.Reset{})
	}
	c.message = "Back in the lobby."
	return nil
}

func (c *Client) handlePeerLeft(msg protocol.PeerLeftDuel) {
	if msg.SessionID == "" || msg.SessionID != c.inv.Committed.SessionID {
		return
	}
	note := fmt.Sprintf("Duel over: %s left the duel.", msg.OpponentNickname)
	if msg.Disconnected {
		note = fmt.Sprintf("Duel aborted: %s disconnected.", msg.OpponentNickname)
	}
	if c.duel == nil {
		c.leaveSent = true
		c.reduceInvite(invite.Reset{})
		c.message = note
		return
	}
	// The peer may have finished first; let the local duel reach the same result.
	if _, decided := c.duel.Result(); decided || len(c.pendingPlays) > 0 {
		c.peerLeft = note
		return
	}
	c.duel.Abandon(note)
	c.finish()
}

// --- scripted opponent ---

const thinkPrefix = "think-"

// scheduleThink arms the scripted opponent's thinking delay when it holds the turn.
func (c *Client) scheduleThink() {
	if c.duel == nil || c.duel.Phase() != game.Idle || c.duel.Turn() != game.Opponent {
		return
	}
	if _, ok := c.duel.Opponent().(game.Scripted); !ok {
		return
	}
	c.arm(fmt.Sprintf("%s%d", thinkPrefix, c.duel.RoundNumber()), ai.ThinkingDelay(&c.cfg.Opponent))
}

func (c *Client) think(key string) {
	if c.duel == nil || key != fmt.Sprintf("%s%d", thinkPrefix, c.duel.RoundNumber()) {
		return
	}
	active, ok := c.duel.Active(game.Opponent)
	if !ok {
		return
	}
	attr, ok := ai.ChooseAttribute(active)
	if !ok {
		return
	}
	if err := c.duel.Reveal(attr); err != nil {
		c.logger.Debug("reveal skipped", "err", err)
		return
	}
	c.message = fmt.Sprintf("%s chose %s. Confirm to compare.", c.duel.Opponent().DisplayName(), deck.DisplayName(attr))
}
