package ai

import (
	"time"

	"attribute-duel-server/config"
	"attribute-duel-server/deck"
)

// ChooseAttribute picks the attribute with the highest value on c. Among equal maxima the first
// in card order wins. ok is false for a card without attributes.
func ChooseAttribute(c deck.Card) (attr string, ok bool) {
	best := 0
	for i, at := range c.Attributes {
		if i == 0 || at.Value > best {
			attr, best, ok = at.Name, at.Value, true
		}
	}
	return attr, ok
}

// ThinkingDelay is how long the scripted opponent waits before revealing its choice.
func ThinkingDelay(params *config.ScriptedOpponentParams) time.Duration {
	if params == nil || params.ThinkingMS <= 0 {
		return 0
	}
	return time.Duration(params.ThinkingMS) * time.Millisecond
}
