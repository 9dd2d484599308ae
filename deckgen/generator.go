// Package deckgen asks a text-generation endpoint for a themed deck and validates the answer.
package deckgen

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"

	"attribute-duel-server/config"
	"attribute-duel-server/deck"
)

var (
	ErrEmptyTheme    = errors.New("enter a theme for the deck")
	ErrNotConfigured = errors.New("deck generation is not configured")
)

// Generator builds decks through an OpenAI responses-style endpoint.
type Generator struct {
	cfg    config.DeckGenConfig
	rules  deck.Rules
	client *http.Client
	logger *slog.Logger
}

// New returns a Generator for cfg. A nil client uses one with cfg.DeckGen.TimeoutSec.
func New(cfg *config.Config, client *http.Client) *Generator {
	if client == nil {
		client = &http.Client{Timeout: time.Duration(cfg.DeckGen.TimeoutSec) * time.Second}
	}
	return &Generator{
		cfg: cfg.DeckGen,
		rules: deck.Rules{
			CardCount:      cfg.DeckSize(),
			AttributeCount: cfg.Decks.AttributesPerCard,
			Min:            cfg.Decks.AttributeMin,
			Max:            cfg.Decks.AttributeMax,
		},
		client: client,
		logger: slog.With("tag", "deckgen"),
	}
}

// Rules reports what a generated deck must satisfy.
func (g *Generator) Rules() deck.Rules { return g.rules }

// Generate returns a validated deck about theme with a fresh id.
func (g *Generator) Generate(ctx context.Context, theme string) (deck.Deck, error) {
	theme = strings.TrimSpace(theme)
	if theme == "" {
		return deck.Deck{}, ErrEmptyTheme
	}
	if g.cfg.APIKey == "" || g.cfg.APIURL == "" {
		return deck.Deck{}, ErrNotConfigured
	}

	start := time.Now()
	text, err := g.invoke(ctx, buildPrompt(theme, g.rules))
	if err != nil {
		return deck.Deck{}, err
	}
	var d deck.Deck
	if err := json.Unmarshal([]byte(StripFences(text)), &d); err != nil {
		return deck.Deck{}, fmt.Errorf("generated deck is not valid JSON: %w", err)
	}
	if err := deck.Validate(d, g.rules); err != nil {
		return deck.Deck{}, fmt.Errorf("generated deck rejected: %w", err)
	}
	d.ID = fmt.Sprintf("deck-%s-%s", slug(theme), uuid.NewString()[:8])
	g.logger.Info("deck generated", "theme", theme, "id", d.ID, "cards", len(d.Cards), "elapsed", time.Since(start))
	return d, nil
}

func buildPrompt(theme string, r deck.Rules) string {
	return fmt.Sprintf(`You design cards for an attribute comparison card game.
Create a deck of %[1]d unique cards about the theme %[2]q.
Rules:
1. Exactly %[1]d cards. Each card has "name" (string), "icon" (one emoji) and "attributes".
2. "attributes" is an object with exactly %[3]d entries. The attribute names must be the SAME for every card, in the same order, and may include a unit in parentheses, for example "Speed (km/h)".
3. Every attribute value is an integer between %[4]d and %[5]d.
4. The deck has "id", "name" (an emoji followed by "%[2]s Deck") and "description" (one sentence).
Answer with JSON ONLY, in this shape:
{"id":"deck","name":"✨ %[2]s Deck","description":"...","cards":[{"name":"...","icon":"⭐","attributes":{"Attr 1 (unit)":50,"Attr 2":60}}]}`,
		r.CardCount, theme, r.AttributeCount, r.Min, r.Max)
}

func (g *Generator) invoke(ctx context.Context, prompt string) (string, error) {
	body, err := json.Marshal(map[string]any{
		"model":       g.cfg.Model,
		"input":       prompt,
		"temperature": g.cfg.Temperature,
	})
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.cfg.APIURL, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+g.cfg.APIKey)

	res, err := g.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("generation request failed: %w", err)
	}
	defer res.Body.Close()
	if res.StatusCode < 200 || res.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(res.Body, 4096))
		return "", fmt.Errorf("generation request status %d: %s", res.StatusCode, strings.TrimSpace(string(msg)))
	}

	var payload struct {
		OutputText string `json:"output_text"`
		Output     []struct {
			Content []struct {
				Type string `json:"type"`
				Text string `json:"text"`
			} `json:"content"`
		} `json:"output"`
	}
	if err := json.NewDecoder(res.Body).Decode(&payload); err != nil {
		return "", fmt.Errorf("decode response: %w", err)
	}
	if text := strings.TrimSpace(payload.OutputText); text != "" {
		return text, nil
	}
	for _, item := range payload.Output {
		for _, c := range item.Content {
			if text := strings.TrimSpace(c.Text); text != "" {
				return text, nil
			}
		}
	}
	return "", errors.New("generation response has no text")
}

var fence = regexp.MustCompile("(?s)^```(\\w*)?\\s*\\n?(.*?)\\n?\\s*```$")

// StripFences removes a surrounding markdown code fence, if any.
func StripFences(s string) string {
	s = strings.TrimSpace(s)
	if m := fence.FindStringSubmatch(s); m != nil && m[2] != "" {
		return strings.TrimSpace(m[2])
	}
	return s
}

var nonSlug = regexp.MustCompile(`[^a-z0-9]+`)

func slug(theme string) string {
	s := strings.Trim(nonSlug.ReplaceAllString(strings.ToLower(theme), "-"), "-")
	if s == "" {
		return "custom"
	}
	return s
}
