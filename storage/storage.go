package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"attribute-duel-server/deck"
	"attribute-duel-server/matcherrors"
)

const createTableSQL = `
CREATE TABLE IF NOT EXISTS deck (
	id          TEXT PRIMARY KEY,
	name        TEXT NOT NULL,
	description TEXT NOT NULL DEFAULT '',
	card_count  INT  NOT NULL,
	cards       JSONB NOT NULL,
	created_at  TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS idx_deck_created_at ON deck(created_at DESC);
`

// Store persists the deck catalog in Postgres.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore connects to Postgres and ensures the deck table exists.
// If databaseURL is empty, NewStore returns (nil, nil) and no persistence occurs.
func NewStore(ctx context.Context, databaseURL string) (*Store, error) {
	if databaseURL == "" {
		return nil, nil
	}
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	if _, err := pool.Exec(ctx, createTableSQL); err != nil {
		pool.Close()
		return nil, err
	}
	slog.Info("deck store ready", "tag", "storage", "backend", "postgres")
	return &Store{pool: pool}, nil
}

// Close releases the connection pool. Safe on a nil Store.
func (s *Store) Close() {
	if s != nil && s.pool != nil {
		s.pool.Close()
	}
}

// SaveDeck inserts d, or replaces the deck with the same id.
func (s *Store) SaveDeck(ctx context.Context, d deck.Deck) error {
	cards, err := json.Marshal(d.Cards)
	if err != nil {
		return fmt.Errorf("encode cards: %w", err)
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO deck (id, name, description, card_count, cards)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO UPDATE
		SET name = EXCLUDED.name, description = EXCLUDED.description,
		    card_count = EXCLUDED.card_count, cards = EXCLUDED.cards`,
		d.ID, d.Name, d.Description, len(d.Cards), cards)
	return err
}

// GetDeck returns the deck with id, or matcherrors.ErrDeckNotFound.
func (s *Store) GetDeck(ctx context.Context, id string) (deck.Deck, error) {
	d := deck.Deck{ID: id}
	var cards []byte
	err := s.pool.QueryRow(ctx,
		`SELECT name, description, cards FROM deck WHERE id = $1`, id,
	).Scan(&d.Name, &d.Description, &cards)
	if errors.Is(err, pgx.ErrNoRows) {
		return deck.Deck{}, matcherrors.ErrDeckNotFound
	}
	if err != nil {
		return deck.Deck{}, err
	}
	if err := json.Unmarshal(cards, &d.Cards); err != nil {
		return deck.Deck{}, fmt.Errorf("decode cards of deck %s: %w", id, err)
	}
	return d, nil
}

// ListDecks returns the catalog, newest first.
func (s *Store) ListDecks(ctx context.Context) ([]DeckSummary, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, name, description, card_count, created_at
		FROM deck
		ORDER BY created_at DESC, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []DeckSummary
	for rows.Next() {
		var d DeckSummary
		if err := rows.Scan(&d.ID, &d.Name, &d.Description, &d.CardCount, &d.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}
