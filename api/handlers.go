package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"attribute-duel-server/auth"
	"attribute-duel-server/config"
	"attribute-duel-server/deck"
	"attribute-duel-server/deckgen"
	"attribute-duel-server/matcherrors"
	"attribute-duel-server/storage"
)

const (
	bearerPrefix = "Bearer "
	maxBodyBytes = 1 << 20
)

// DeckGenerator produces themed decks.
type DeckGenerator interface {
	Generate(ctx context.Context, theme string) (deck.Deck, error)
}

// TokenVerifier validates bearer tokens.
type TokenVerifier interface {
	Validate(token string) (jwt.MapClaims, error)
}

// Handler holds dependencies for API handlers. Decks, Generator and Verifier may be nil:
// without a store the catalog is empty, without a generator generation is unavailable, and
// without a verifier write endpoints are open.
type Handler struct {
	Config    *config.Config
	Decks     storage.DeckStore
	Generator DeckGenerator
	Verifier  TokenVerifier
	logger    *slog.Logger
}

// NewHandler creates a new API handler with the given dependencies.
func NewHandler(cfg *config.Config, decks storage.DeckStore, gen DeckGenerator, verifier TokenVerifier) *Handler {
	return &Handler{
		Config:    cfg,
		Decks:     decks,
		Generator: gen,
		Verifier:  verifier,
		logger:    slog.With("tag", "api"),
	}
}

// Routes registers the deck endpoints on mux.
func (h *Handler) Routes(mux *http.ServeMux) {
	mux.HandleFunc("/api/decks", h.Catalog)
	mux.HandleFunc("/api/decks/generate", h.GenerateDeck)
	mux.HandleFunc("/api/decks/{id}", h.GetDeck)
}

// CORS sets CORS headers on the response. Call before writing body.
func CORS(w http.ResponseWriter, r *http.Request) bool {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Authorization, Content-Type")
	if r.Method == http.MethodOptions {
		w.WriteHeader(http.StatusNoContent)
		return true
	}
	return false
}

// extractUserID validates the Authorization header and returns the user ID, or empty string on failure.
func (h *Handler) extractUserID(r *http.Request) string {
	authHeader := r.Header.Get("Authorization")
	if !strings.HasPrefix(authHeader, bearerPrefix) {
		return ""
	}
	token := strings.TrimSpace(authHeader[len(bearerPrefix):])
	claims, err := h.Verifier.Validate(token)
	if err != nil {
		h.logger.Debug("token rejected", "err", err)
		return ""
	}
	return auth.UserIDFromClaims(claims)
}

// authorize reports whether a write may proceed, answering 401 when it may not.
func (h *Handler) authorize(w http.ResponseWriter, r *http.Request) (userID string, ok bool) {
	if h.Verifier == nil {
		return "", true
	}
	userID = h.extractUserID(r)
	if userID == "" {
		http.Error(w, "authorization required", http.StatusUnauthorized)
		return "", false
	}
	return userID, true
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Warn("encode response", "err", err)
	}
}

// Catalog serves the catalog: GET lists it, POST validates and saves a deck.
func (h *Handler) Catalog(w http.ResponseWriter, r *http.Request) {
	if CORS(w, r) {
		return
	}
	switch r.Method {
	case http.MethodGet:
		h.ListDecks(w, r)
	case http.MethodPost:
		h.SaveDeck(w, r)
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

// ListDecks returns the catalog summaries, newest first.
func (h *Handler) ListDecks(w http.ResponseWriter, r *http.Request) {
	list := []storage.DeckSummary{}
	if h.Decks != nil {
		found, err := h.Decks.ListDecks(r.Context())
		if err != nil {
			h.logger.Error("list decks", "err", err)
			http.Error(w, "failed to load decks", http.StatusInternalServerError)
			return
		}
		if found != nil {
			list = found
		}
	}
	h.writeJSON(w, http.StatusOK, list)
}

// GetDeck returns one deck with its cards.
func (h *Handler) GetDeck(w http.ResponseWriter, r *http.Request) {
	if CORS(w, r) {
		return
	}
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if h.Decks == nil {
		http.Error(w, matcherrors.ErrDeckNotFound.Error(), http.StatusNotFound)
		return
	}
	d, err := h.Decks.GetDeck(r.Context(), r.PathValue("id"))
	if errors.Is(err, matcherrors.ErrDeckNotFound) {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}
	if err != nil {
		h.logger.Error("get deck", "id", r.PathValue("id"), "err", err)
		http.Error(w, "failed to load deck", http.StatusInternalServerError)
		return
	}
	h.writeJSON(w, http.StatusOK, d)
}

// SaveDeck validates the posted deck and stores it. A missing id is assigned.
func (h *Handler) SaveDeck(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.authorize(w, r)
	if !ok {
		return
	}
	if h.Decks == nil {
		http.Error(w, "deck storage is not configured", http.StatusServiceUnavailable)
		return
	}
	var d deck.Deck
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&d); err != nil {
		http.Error(w, "invalid deck JSON: "+err.Error(), http.StatusBadRequest)
		return
	}
	if err := deck.Validate(d, deck.Rules{}); err != nil {
		http.Error(w, err.Error(), http.StatusUnprocessableEntity)
		return
	}
	if d.ID == "" {
		d.ID = "deck-" + uuid.NewString()
	}
	if err := h.Decks.SaveDeck(r.Context(), d); err != nil {
		h.logger.Error("save deck", "id", d.ID, "err", err)
		http.Error(w, "failed to save deck", http.StatusInternalServerError)
		return
	}
	h.logger.Info("deck saved", "id", d.ID, "cards", len(d.Cards), "user", userID)
	h.writeJSON(w, http.StatusCreated, d)
}

// GenerateRequest is the body of POST /api/decks/generate.
type GenerateRequest struct {
	Theme string `json:"theme"`
}

// GenerateDeck asks the generator for a themed deck and stores it when a store is configured.
func (h *Handler) GenerateDeck(w http.ResponseWriter, r *http.Request) {
	if CORS(w, r) {
		return
	}
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if _, ok := h.authorize(w, r); !ok {
		return
	}
	if h.Generator == nil {
		http.Error(w, deckgen.ErrNotConfigured.Error(), http.StatusServiceUnavailable)
		return
	}
	var req GenerateRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		http.Error(w, "invalid request JSON", http.StatusBadRequest)
		return
	}

	d, err := h.Generator.Generate(r.Context(), req.Theme)
	switch {
	case errors.Is(err, deckgen.ErrEmptyTheme):
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	case errors.Is(err, deckgen.ErrNotConfigured):
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
		return
	case err != nil:
		h.logger.Warn("deck generation failed", "theme", req.Theme, "err", err)
		http.Error(w, "generation failed: "+err.Error(), http.StatusBadGateway)
		return
	}

	if h.Decks != nil {
		if err := h.Decks.SaveDeck(r.Context(), d); err != nil {
			h.logger.Error("save generated deck", "id", d.ID, "err", err)
		}
	}
	h.writeJSON(w, http.StatusCreated, d)
}
