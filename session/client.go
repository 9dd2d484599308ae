package session

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"math/rand"
	"time"

	"attribute-duel-server/config"
	"attribute-duel-server/deck"
	"attribute-duel-server/game"
	"attribute-duel-server/invite"
	"attribute-duel-server/protocol"
)

// ErrStopped is returned by actions once Run has exited.
var ErrStopped = errors.New("session client stopped")

// Channel is the transport to the lobby.
type Channel interface {
	Send(msgType string, payload any) error
	Close() error
}

// Identity is the id and nickname the lobby assigned to this client.
type Identity struct {
	ID       string `json:"id"`
	Nickname string `json:"nickname"`
}

// Snapshot is the client state published after every processed input.
type Snapshot struct {
	Connected bool                   `json:"connected"`
	Identity  Identity               `json:"identity"`
	Roster    []protocol.RosterEntry `json:"roster"`
	Invite    invite.State           `json:"-"`
	Duel      *game.DuelView         `json:"duel,omitempty"`
	Message   string                 `json:"message,omitempty"`
}

// ActionType enumerates the inputs the client loop processes.
type ActionType int

const (
	ActionConnect ActionType = iota
	ActionRegister
	ActionInvite
	ActionAccept
	ActionDecline
	ActionWithdraw
	ActionStartScripted
	ActionProposeDeck
	ActionChoose
	ActionConfirmReveal
	ActionAdvance
	ActionLeave
	ActionDisconnect
	actionInbound       // lobby event delivered by the channel
	actionChannelClosed // transport failed or closed
	actionTimer         // keyed timer fired
	actionSync          // no-op; republishes the current state
)

// Action is one input to the client loop.
type Action struct {
	Type     ActionType
	Text     string // nickname, target id, attribute or timer key
	Gen      int    // timer generation
	Deck     *deck.Deck
	Channel  Channel
	Envelope protocol.Envelope
	Err      error
	reply    chan error
}

type timer struct {
	gen    int
	cancel chan struct{}
}

// Client is the participant-side runtime: identity, roster cache, invitation handshake and the
// current duel. All state is owned by the Run goroutine; exported methods post actions to it.
type Client struct {
	cfg       *config.Config
	rng       *rand.Rand
	logger    *slog.Logger
	inputs    chan Action
	snapshots chan Snapshot
	done      chan struct{}

	ch        Channel
	connected bool
	identity  Identity
	roster    []protocol.RosterEntry
	inv       invite.State
	message   string

	duel         *game.Duel
	deck         *deck.Deck               // offered when this client moves first in a remote duel
	pendingPlays []protocol.PlayAttribute // peer plays ahead of the local round, in arrival order
	leaveSent    bool
	peerLeft     string // note shown if the peer left before the duel finished locally

	timers   map[string]timer
	timerGen int
}

// NewClient returns a client. rng seeds scripted deals and the shuffle seed proposed to remote
// peers; nil uses a time-based source.
func NewClient(cfg *config.Config, rng *rand.Rand) *Client {
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return &Client{
		cfg:       cfg,
		rng:       rng,
		logger:    slog.With("tag", "session"),
		inputs:    make(chan Action, 64),
		snapshots: make(chan Snapshot, 1),
		done:      make(chan struct{}),
		timers:    make(map[string]timer),
	}
}

// Snapshots returns the channel of published states. Only the latest unread snapshot is kept.
func (c *Client) Snapshots() <-chan Snapshot {
	return c.snapshots
}

// Done is closed when Run returns.
func (c *Client) Done() <-chan struct{} {
	return c.done
}

// Run processes inputs one at a time until ctx is cancelled. It should be run as a goroutine.
func (c *Client) Run(ctx context.Context) {
	defer close(c.done)
	defer c.disarmAll()

	c.publish()
	for {
		select {
		case <-ctx.Done():
			if c.ch != nil {
				c.ch.Close()
			}
			return
		case a := <-c.inputs:
			err := c.apply(a)
			c.publish()
			if a.reply != nil {
				a.reply <- err
			}
		}
	}
}

func (c *Client) apply(a Action) error {
	switch a.Type {
	case ActionConnect:
		return c.handleConnect(a.Channel)
	case ActionRegister:
		return c.handleRegister(a.Text)
	case ActionInvite:
		return c.handleInvite(a.Text)
	case ActionAccept:
		return c.handleRespond(true)
	case ActionDecline:
		return c.handleRespond(false)
	case ActionWithdraw:
		return c.handleWithdraw()
	case ActionStartScripted:
		return c.handleStartScripted(*a.Deck)
	case ActionProposeDeck:
		return c.handleProposeDeck(*a.Deck)
	case ActionChoose:
		return c.handleChoose(a.Text)
	case ActionConfirmReveal:
		return c.handleConfirmReveal()
	case ActionAdvance:
		return c.handleAdvance()
	case ActionLeave:
		return c.handleLeave()
	case ActionDisconnect:
		if c.ch != nil {
			c.ch.Close()
		}
		c.handleClosed(nil)
		return nil
	case actionInbound:
		c.handleInbound(a.Envelope)
	case actionChannelClosed:
		if a.Channel != c.ch {
			c.logger.Debug("ignoring close of a detached channel", "err", a.Err)
			return nil
		}
		c.handleClosed(a.Err)
	case actionTimer:
		c.handleTimer(a.Text, a.Gen)
	}
	return nil
}

// post queues a without waiting for it to be processed.
func (c *Client) post(a Action) {
	select {
	case c.inputs <- a:
	case <-c.done:
	}
}

// do queues a and waits for its result.
func (c *Client) do(a Action) error {
	a.reply = make(chan error, 1)
	select {
	case c.inputs <- a:
	case <-c.done:
		return ErrStopped
	}
	select {
	case err := <-a.reply:
		return err
	case <-c.done:
		return ErrStopped
	}
}

// Deliver hands an inbound lobby event to the loop. Events are processed in delivery order.
func (c *Client) Deliver(env protocol.Envelope) {
	c.post(Action{Type: actionInbound, Envelope: env})
}

// ChannelClosed reports that ch failed or closed. The client drops to the disconnected state and
// never retries on its own. A report about a channel other than the attached one is ignored.
func (c *Client) ChannelClosed(ch io.Closer, err error) {
	from, _ := ch.(Channel)
	c.post(Action{Type: actionChannelClosed, Channel: from, Err: err})
}

// Connect attaches a lobby channel.
func (c *Client) Connect(ch Channel) error {
	return c.do(Action{Type: ActionConnect, Channel: ch})
}

// Register asks the lobby for an identity under nickname.
func (c *Client) Register(nickname string) error {
	return c.do(Action{Type: ActionRegister, Text: nickname})
}

// Invite challenges the roster participant with targetID.
func (c *Client) Invite(targetID string) error {
	return c.do(Action{Type: ActionInvite, Text: targetID})
}

// Accept answers the pending incoming challenge with yes.
func (c *Client) Accept() error { return c.do(Action{Type: ActionAccept}) }

// Decline answers the pending incoming challenge with no.
func (c *Client) Decline() error { return c.do(Action{Type: ActionDecline}) }

// Withdraw cancels the pending outgoing challenge.
func (c *Client) Withdraw() error { return c.do(Action{Type: ActionWithdraw}) }

// StartScripted deals d against the scripted opponent. The local player moves first.
func (c *Client) StartScripted(d deck.Deck) error {
	return c.do(Action{Type: ActionStartScripted, Deck: &d})
}

// ProposeDeck sets the deck offered to a remote peer when this client moves first. If a
// session is already committed and waiting for a deck, the duel starts immediately.
func (c *Client) ProposeDeck(d deck.Deck) error {
	return c.do(Action{Type: ActionProposeDeck, Deck: &d})
}

// Choose plays attr for the local player.
func (c *Client) Choose(attr string) error {
	return c.do(Action{Type: ActionChoose, Text: attr})
}

// ConfirmReveal resolves the round on the scripted opponent's revealed choice.
func (c *Client) ConfirmReveal() error { return c.do(Action{Type: ActionConfirmReveal}) }

// Advance moves past a resolved round.
func (c *Client) Advance() error { return c.do(Action{Type: ActionAdvance}) }

// Leave abandons the current duel and returns to the lobby.
func (c *Client) Leave() error { return c.do(Action{Type: ActionLeave}) }

// Disconnect closes the lobby channel.
func (c *Client) Disconnect() error { return c.do(Action{Type: ActionDisconnect}) }

// Refresh republishes the current state without changing it.
func (c *Client) Refresh() error { return c.do(Action{Type: actionSync}) }

// publish replaces any unread snapshot with the current state.
func (c *Client) publish() {
	s := Snapshot{
		Connected: c.connected,
		Identity:  c.identity,
		Roster:    append([]protocol.RosterEntry(nil), c.roster...),
		Invite:    c.inv,
		Message:   c.message,
	}
	if c.duel != nil {
		v := game.BuildView(c.duel)
		s.Duel = &v
	}
	select {
	case c.snapshots <- s:
		return
	default:
	}
	select {
	case <-c.snapshots:
	default:
	}
	select {
	case c.snapshots <- s:
	default:
	}
}
