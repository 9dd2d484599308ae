package deck

import (
	"fmt"

	"attribute-duel-server/matcherrors"
)

// Rules bounds what a deck may contain. A zero CardCount accepts any deck of at least two cards;
// a zero AttributeCount accepts any non-empty schema. Min and Max are inclusive; Max == 0
// disables the range check.
type Rules struct {
	CardCount      int
	AttributeCount int
	Min            int
	Max            int
}

// Validate checks the deck against r. Errors wrap matcherrors.ErrInvalidDeck; a deck that fails
// is rejected as a whole and never truncated or padded.
func Validate(d Deck, r Rules) error {
	if r.CardCount > 0 && len(d.Cards) != r.CardCount {
		return fmt.Errorf("%w: expected %d cards, got %d", matcherrors.ErrInvalidDeck, r.CardCount, len(d.Cards))
	}
	if len(d.Cards) < 2 {
		return fmt.Errorf("%w: need at least 2 cards, got %d", matcherrors.ErrInvalidDeck, len(d.Cards))
	}

	schema := d.Cards[0].Attributes.Names()
	if len(schema) == 0 {
		return fmt.Errorf("%w: card %q has no attributes", matcherrors.ErrInvalidDeck, d.Cards[0].Name)
	}
	if r.AttributeCount > 0 && len(schema) != r.AttributeCount {
		return fmt.Errorf("%w: expected %d attributes per card, got %d", matcherrors.ErrInvalidDeck, r.AttributeCount, len(schema))
	}
	want := make(map[string]struct{}, len(schema))
	for _, n := range schema {
		if _, dup := want[n]; dup {
			return fmt.Errorf("%w: duplicate attribute %q", matcherrors.ErrInvalidDeck, n)
		}
		want[n] = struct{}{}
	}

	for i, c := range d.Cards {
		if c.Name == "" {
			return fmt.Errorf("%w: card %d has no name", matcherrors.ErrInvalidDeck, i)
		}
		if len(c.Attributes) != len(schema) {
			return fmt.Errorf("%w: card %q has %d attributes, want %d", matcherrors.ErrInvalidDeck, c.Name, len(c.Attributes), len(schema))
		}
		for _, at := range c.Attributes {
			if _, ok := want[at.Name]; !ok {
				return fmt.Errorf("%w: card %q has unexpected attribute %q", matcherrors.ErrInvalidDeck, c.Name, at.Name)
			}
			if r.Max > 0 && (at.Value < r.Min || at.Value > r.Max) {
				return fmt.Errorf("%w: card %q attribute %q = %d outside [%d, %d]", matcherrors.ErrInvalidDeck, c.Name, at.Name, at.Value, r.Min, r.Max)
			}
		}
	}
	return nil
}
