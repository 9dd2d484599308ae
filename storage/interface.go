package storage

import (
	"context"
	"time"

	"attribute-duel-server/deck"
)

// DeckSummary is a catalog entry without its cards.
type DeckSummary struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	CardCount   int       `json:"cardCount"`
	CreatedAt   time.Time `json:"createdAt"`
}

// DeckStore abstracts persistence for the deck catalog.
// Implementations can be swapped for testing (mocks) or different backends.
type DeckStore interface {
	// Read
	ListDecks(ctx context.Context) ([]DeckSummary, error)
	GetDeck(ctx context.Context, id string) (deck.Deck, error)

	// Write
	SaveDeck(ctx context.Context, d deck.Deck) error

	// Lifecycle
	Close()
}

// Ensure both backends implement DeckStore at compile time.
var (
	_ DeckStore = (*Store)(nil)
	_ DeckStore = (*RedisStore)(nil)
)

func summarize(d deck.Deck, createdAt time.Time) DeckSummary {
	return DeckSummary{
		ID:          d.ID,
		Name:        d.Name,
		Description: d.Description,
		CardCount:   len(d.Cards),
		CreatedAt:   createdAt,
	}
}
