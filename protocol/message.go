package protocol

import (
	"encoding/json"
	"fmt"

	"attribute-duel-server/deck"
)

// Lobby-to-client events.
const (
	TypeIdentityConfirmed  = "identity_confirmed"
	TypeRosterChanged      = "roster_changed"
	TypeChallengeReceived  = "challenge_received"
	TypeChallengeAck       = "challenge_ack"
	TypeChallengeResolved  = "challenge_resolved"
	TypeChallengeWithdrawn = "challenge_withdrawn"
	TypeChallengeTimedOut  = "challenge_timed_out"
	TypeDuelStarted        = "duel_started"
	TypeError              = "error"
	TypePeerLeftDuel       = "peer_left_duel"
	TypeDeckProposed       = "deck_proposed"
	TypePeerPlayed         = "peer_played"
)

// Client-to-lobby events.
const (
	TypeRegisterIdentity  = "register_identity"
	TypeSendChallenge     = "send_challenge"
	TypeRespondChallenge  = "respond_challenge"
	TypeWithdrawChallenge = "withdraw_challenge"
	TypeLeaveDuel         = "leave_duel"
	TypeProposeDeck       = "propose_deck"
	TypePlayAttribute     = "play_attribute"
)

// Presence values for RosterEntry.Status.
const (
	StatusOnline = "online"
	StatusInDuel = "in_duel"
)

// Roles reported in ChallengeTimedOut.
const (
	RoleInviter = "inviter"
	RoleInvitee = "invitee"
)

// Envelope is the wire frame for every message in both directions.
type Envelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// Encode wraps payload in an envelope of the given type.
func Encode(msgType string, payload any) ([]byte, error) {
	var data json.RawMessage
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("encode %s: %w", msgType, err)
		}
		data = b
	}
	return json.Marshal(Envelope{Type: msgType, Data: data})
}

// MustEncode is Encode for payloads that cannot fail to marshal.
func MustEncode(msgType string, payload any) []byte {
	b, err := Encode(msgType, payload)
	if err != nil {
		panic(err)
	}
	return b
}

// Decode parses the envelope; the payload stays raw for type-routed decoding.
func Decode(raw []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return Envelope{}, err
	}
	if env.Type == "" {
		return Envelope{}, fmt.Errorf("missing message type")
	}
	return env, nil
}

// Payload decodes the envelope data into v.
func (e Envelope) Payload(v any) error {
	if len(e.Data) == 0 {
		return fmt.Errorf("%s: missing data", e.Type)
	}
	if err := json.Unmarshal(e.Data, v); err != nil {
		return fmt.Errorf("%s: %w", e.Type, err)
	}
	return nil
}

// RosterEntry is one lobby participant as seen by others.
type RosterEntry struct {
	ID       string `json:"id"`
	Nickname string `json:"nickname"`
	Status   string `json:"status"`
}

// --- Lobby-to-client payloads ---

type IdentityConfirmed struct {
	ID       string        `json:"id"`
	Nickname string        `json:"nickname"`
	Roster   []RosterEntry `json:"roster"`
}

type RosterChanged struct {
	Roster []RosterEntry `json:"roster"`
}

type ChallengeReceived struct {
	InviterID       string `json:"inviter_id"`
	InviterNickname string `json:"inviter_nickname"`
	ProposalID      string `json:"proposal_id"`
}

// ChallengeAck confirms to the inviter that the proposal is registered.
type ChallengeAck struct {
	InviteeID       string `json:"invitee_id"`
	InviteeNickname string `json:"invitee_nickname"`
	ProposalID      string `json:"proposal_id"`
}

// ChallengeResolved tells the inviter whether the invitee accepted.
type ChallengeResolved struct {
	InviteeID       string `json:"invitee_id"`
	InviteeNickname string `json:"invitee_nickname"`
	InviterID       string `json:"inviter_id"`
	Accepted        bool   `json:"accepted"`
	ProposalID      string `json:"proposal_id"`
	Message         string `json:"message,omitempty"`
}

// ChallengeWithdrawn is sent to both parties when a proposal is cancelled by either side or by
// a disconnect.
type ChallengeWithdrawn struct {
	ProposalID string `json:"proposal_id"`
	InviterID  string `json:"inviter_id"`
	InviteeID  string `json:"invitee_id"`
	Reason     string `json:"reason"`
}

type ChallengeTimedOut struct {
	ProposalID  string `json:"proposal_id"`
	OtherUserID string `json:"other_user_id"`
	Role        string `json:"role"`
}

// DuelStarted commits both parties to a session. Exactly one side receives FirstMover=true.
type DuelStarted struct {
	SessionID        string `json:"session_id"`
	OpponentID       string `json:"opponent_id"`
	OpponentNickname string `json:"opponent_nickname"`
	FirstMover       bool   `json:"first_mover"`
}

type Error struct {
	Message string `json:"message"`
}

type PeerLeftDuel struct {
	SessionID        string `json:"session_id"`
	OpponentID       string `json:"opponent_id"`
	OpponentNickname string `json:"opponent_nickname"`
	Disconnected     bool   `json:"disconnected"`
}

// --- Client-to-lobby payloads ---

type RegisterIdentity struct {
	Nickname string `json:"nickname"`
}

type SendChallenge struct {
	TargetID string `json:"target_id"`
}

type RespondChallenge struct {
	ProposalID string `json:"proposal_id"`
	InviterID  string `json:"inviter_id"`
	Accepted   bool   `json:"accepted"`
}

type WithdrawChallenge struct {
	ProposalID string `json:"proposal_id"`
}

type LeaveDuel struct {
	SessionID string `json:"session_id"`
}

// --- Relayed duel payloads ---

// ProposeDeck is sent by the first mover; the peer receives it unchanged as deck_proposed.
// Both sides deal with Seed so their hands mirror each other.
type ProposeDeck struct {
	SessionID string    `json:"session_id"`
	Deck      deck.Deck `json:"deck"`
	Seed      int64     `json:"seed"`
}

// PlayAttribute is the turn holder's choice; the peer receives it as peer_played.
type PlayAttribute struct {
	SessionID string `json:"session_id"`
	Round     int    `json:"round"`
	Attribute string `json:"attribute"`
}
