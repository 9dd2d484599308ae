package protocol

import (
	"strings"
	"testing"

	"attribute-duel-server/deck"
)

func TestEncodeWrapsPayload(t *testing.T) {
	b, err := Encode(TypeDuelStarted, DuelStarted{SessionID: "s1", OpponentID: "u2", OpponentNickname: "bob", FirstMover: true})
	if err != nil {
		t.Fatal(err)
	}
	want := `{"type":"duel_started","data":{"session_id":"s1","opponent_id":"u2","opponent_nickname":"bob","first_mover":true}}`
	if string(b) != want {
		t.Errorf("got %s\nwant %s", b, want)
	}
}

func TestDecodeRoutesByType(t *testing.T) {
	raw := []byte(`{"type":"challenge_received","data":{"inviter_id":"u1","inviter_nickname":"ann","proposal_id":"p1"}}`)
	env, err := Decode(raw)
	if err != nil {
		t.Fatal(err)
	}
	if env.Type != TypeChallengeReceived {
		t.Fatalf("unexpected type %q", env.Type)
	}
	var msg ChallengeReceived
	if err := env.Payload(&msg); err != nil {
		t.Fatal(err)
	}
	if msg.InviterID != "u1" || msg.InviterNickname != "ann" || msg.ProposalID != "p1" {
		t.Errorf("unexpected payload %+v", msg)
	}
}

func TestDecodeRejectsMalformed(t *testing.T) {
	if _, err := Decode([]byte(`not json`)); err == nil {
		t.Error("expected error for invalid JSON")
	}
	if _, err := Decode([]byte(`{"data":{}}`)); err == nil {
		t.Error("expected error for missing type")
	}
	env, err := Decode([]byte(`{"type":"send_challenge"}`))
	if err != nil {
		t.Fatal(err)
	}
	var sc SendChallenge
	if err := env.Payload(&sc); err == nil {
		t.Error("expected error for missing data")
	}
}

func TestEncodeWithoutPayload(t *testing.T) {
	b, err := Encode(TypeLeaveDuel, nil)
	if err != nil {
		t.Fatal(err)
	}
	if string(b) != `{"type":"leave_duel"}` {
		t.Errorf("unexpected encoding %s", b)
	}
}

func TestProposeDeckKeepsAttributeOrder(t *testing.T) {
	d := deck.Deck{ID: "d1", Cards: []deck.Card{{Name: "a", Attributes: deck.Attributes{{Name: "Z", Value: 1}, {Name: "A", Value: 2}}}}}
	b := MustEncode(TypeProposeDeck, ProposeDeck{SessionID: "s", Deck: d, Seed: 9})
	if !strings.Contains(string(b), `"attributes":{"Z":1,"A":2}`) {
		t.Errorf("attribute order lost: %s", b)
	}
	env, _ := Decode(b)
	var pd ProposeDeck
	if err := env.Payload(&pd); err != nil {
		t.Fatal(err)
	}
	if pd.Seed != 9 || pd.Deck.Cards[0].Attributes[0].Name != "Z" {
		t.Errorf("unexpected round trip %+v", pd)
	}
}
