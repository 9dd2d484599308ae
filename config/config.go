package config

import (
	"encoding/json"
	"log/slog"
	"os"
	"strconv"
)

// ScriptedOpponentParams holds the name and pacing of the scripted opponent.
type ScriptedOpponentParams struct {
	Name       string `json:"name"`
	ThinkingMS int    `json:"thinking_ms"`
}

// DeckRules constrains decks accepted from the generator or the deck API.
type DeckRules struct {
	AttributesPerCard int `json:"attributes_per_card"`
	AttributeMin      int `json:"attribute_min"`
	AttributeMax      int `json:"attribute_max"`
}

// DeckGenConfig configures the generative deck endpoint.
type DeckGenConfig struct {
	APIURL      string  `json:"api_url"`
	APIKey      string  `json:"-"`
	Model       string  `json:"model"`
	Temperature float64 `json:"temperature"`
	TimeoutSec  int     `json:"timeout_sec"`
}

// Config holds all configurable duel and lobby parameters.
type Config struct {
	CardsPerPlayer  int `json:"cards_per_player"`
	TotalRounds     int `json:"total_rounds"`
	NoticeDisplayMS int `json:"notice_display_ms"`
	InviteExpirySec int `json:"invite_expiry_sec"`
	MaxNameLength   int `json:"max_name_length"`
	WSPort          int `json:"ws_port"`

	// ServerURL is the lobby websocket address dialed by clients.
	ServerURL string `json:"server_url"`

	DatabaseURL     string `json:"-"`
	RedisURL        string `json:"-"`
	NeonAuthBaseURL string `json:"neon_auth_base_url"`
	LogLevel        string `json:"log_level"`

	Opponent ScriptedOpponentParams `json:"scripted_opponent"`
	Decks    DeckRules              `json:"decks"`
	DeckGen  DeckGenConfig          `json:"deckgen"`
}

// Defaults returns a Config with the reference game rules.
func Defaults() *Config {
	return &Config{
		CardsPerPlayer:  20,
		TotalRounds:     10,
		NoticeDisplayMS: 5000,
		InviteExpirySec: 30,
		MaxNameLength:   24,
		WSPort:          8000,
		ServerURL:       "ws://localhost:8000/ws",
		LogLevel:        "info",
		Opponent: ScriptedOpponentParams{
			Name:       "IA",
			ThinkingMS: 1500,
		},
		Decks: DeckRules{
			AttributesPerCard: 4,
			AttributeMin:      20,
			AttributeMax:      100,
		},
		DeckGen: DeckGenConfig{
			APIURL:      "https://api.openai.com/v1/responses",
			Model:       "gpt-4o-mini",
			Temperature: 0.7,
			TimeoutSec:  60,
		},
	}
}

// DeckSize is the number of cards a generated deck must contain.
func (c *Config) DeckSize() int {
	return c.CardsPerPlayer * 2
}

// Load reads configuration from an optional config.json file,
// then applies environment variable overrides. Fields not set
// in either source retain their default values.
func Load() *Config {
	cfg := Defaults()

	if f, err := os.Open("config.json"); err == nil {
		defer f.Close()
		if err := json.NewDecoder(f).Decode(cfg); err != nil {
			slog.Warn("failed to parse config.json", "tag", "config", "err", err)
		}
	}

	overrideInt(&cfg.CardsPerPlayer, "CARDS_PER_PLAYER")
	overrideInt(&cfg.TotalRounds, "TOTAL_ROUNDS")
	overrideInt(&cfg.NoticeDisplayMS, "NOTICE_DISPLAY_MS")
	overrideInt(&cfg.InviteExpirySec, "INVITE_EXPIRY_SEC")
	overrideInt(&cfg.MaxNameLength, "MAX_NAME_LENGTH")
	overrideInt(&cfg.WSPort, "WS_PORT")
	overrideString(&cfg.ServerURL, "SERVER_URL")
	overrideString(&cfg.DatabaseURL, "DATABASE_URL")
	overrideString(&cfg.RedisURL, "REDIS_URL")
	overrideString(&cfg.NeonAuthBaseURL, "NEON_AUTH_BASE_URL")
	overrideString(&cfg.LogLevel, "LOG_LEVEL")

	overrideString(&cfg.Opponent.Name, "AI_NAME")
	overrideInt(&cfg.Opponent.ThinkingMS, "AI_THINKING_MS")

	overrideInt(&cfg.Decks.AttributesPerCard, "ATTRIBUTES_PER_CARD")
	overrideInt(&cfg.Decks.AttributeMin, "ATTRIBUTE_MIN")
	overrideInt(&cfg.Decks.AttributeMax, "ATTRIBUTE_MAX")

	overrideString(&cfg.DeckGen.APIURL, "DECKGEN_API_URL")
	overrideString(&cfg.DeckGen.APIKey, "DECKGEN_API_KEY")
	overrideString(&cfg.DeckGen.Model, "DECKGEN_MODEL")
	overrideInt(&cfg.DeckGen.TimeoutSec, "DECKGEN_TIMEOUT_SEC")

	return cfg
}

// SlogLevel maps LogLevel to a slog.Level; unknown values mean info.
func (c *Config) SlogLevel() slog.Level {
	switch c.LogLevel {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func overrideInt(field *int, envKey string) {
	if val := os.Getenv(envKey); val != "" {
		if n, err := strconv.Atoi(val); err == nil {
			*field = n
		} else {
			slog.Warn("invalid integer in environment", "tag", "config", "key", envKey, "value", val)
		}
	}
}

func overrideString(field *string, envKey string) {
	if val := os.Getenv(envKey); val != "" {
		*field = val
	}
}
