package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"attribute-duel-server/deck"
	"attribute-duel-server/matcherrors"
)

const keyDeckIndex = "decks"

func keyDeck(id string) string { return "deck:" + id }

type redisDeck struct {
	Deck      deck.Deck `json:"deck"`
	CreatedAt time.Time `json:"createdAt"`
}

// RedisStore keeps the deck catalog in Redis: one JSON value per deck plus a sorted set of ids
// scored by creation time.
type RedisStore struct {
	rdb *redis.Client
}

// NewRedisStore connects to redisURL (redis://host:port/db). If redisURL is empty it returns
// (nil, nil).
func NewRedisStore(ctx context.Context, redisURL string) (*RedisStore, error) {
	if redisURL == "" {
		return nil, nil
	}
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, err
	}
	rdb := redis.NewClient(opts)
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, err
	}
	slog.Info("deck store ready", "tag", "storage", "backend", "redis")
	return &RedisStore{rdb: rdb}, nil
}

// NewRedisStoreWithClient wraps an existing client.
func NewRedisStoreWithClient(rdb *redis.Client) *RedisStore { return &RedisStore{rdb: rdb} }

// Close closes the client. Safe on a nil RedisStore.
func (s *RedisStore) Close() {
	if s != nil && s.rdb != nil {
		s.rdb.Close()
	}
}

// SaveDeck stores d. Replacing a deck keeps its original creation time.
func (s *RedisStore) SaveDeck(ctx context.Context, d deck.Deck) error {
	createdAt := time.Now().UTC()
	if prev, err := s.load(ctx, d.ID); err == nil {
		createdAt = prev.CreatedAt
	} else if !errors.Is(err, matcherrors.ErrDeckNotFound) {
		return err
	}
	raw, err := json.Marshal(redisDeck{Deck: d, CreatedAt: createdAt})
	if err != nil {
		return fmt.Errorf("encode deck: %w", err)
	}
	_, err = s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, keyDeck(d.ID), raw, 0)
		pipe.ZAdd(ctx, keyDeckIndex, redis.Z{Score: float64(createdAt.UnixNano()), Member: d.ID})
		return nil
	})
	return err
}

func (s *RedisStore) load(ctx context.Context, id string) (redisDeck, error) {
	raw, err := s.rdb.Get(ctx, keyDeck(id)).Bytes()
	if err == redis.Nil {
		return redisDeck{}, matcherrors.ErrDeckNotFound
	}
	if err != nil {
		return redisDeck{}, err
	}
	var rd redisDeck
	if err := json.Unmarshal(raw, &rd); err != nil {
		return redisDeck{}, fmt.Errorf("decode deck %s: %w", id, err)
	}
	return rd, nil
}

// GetDeck returns the deck with id, or matcherrors.ErrDeckNotFound.
func (s *RedisStore) GetDeck(ctx context.Context, id string) (deck.Deck, error) {
	rd, err := s.load(ctx, id)
	if err != nil {
		return deck.Deck{}, err
	}
	return rd.Deck, nil
}

// ListDecks returns the catalog, newest first. Index entries whose value is gone are skipped.
func (s *RedisStore) ListDecks(ctx context.Context) ([]DeckSummary, error) {
	ids, err := s.rdb.ZRevRange(ctx, keyDeckIndex, 0, -1).Result()
	if err != nil {
		return nil, err
	}
	out := make([]DeckSummary, 0, len(ids))
	for _, id := range ids {
		rd, err := s.load(ctx, id)
		if errors.Is(err, matcherrors.ErrDeckNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		out = append(out, summarize(rd.Deck, rd.CreatedAt))
	}
	return out, nil
}
