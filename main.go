package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"attribute-duel-server/api"
	"attribute-duel-server/auth"
	"attribute-duel-server/config"
	"attribute-duel-server/deckgen"
	"attribute-duel-server/loghandler"
	"attribute-duel-server/matchmaking"
	"attribute-duel-server/storage"
	"attribute-duel-server/ws"
)

func main() {
	envErr := godotenv.Load()
	cfg := config.Load()
	slog.SetDefault(slog.New(loghandler.NewCompactHandler(os.Stderr, cfg.SlogLevel())))
	logger := slog.With("tag", "main")
	if envErr != nil {
		logger.Info("no .env file found; using environment variables")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Info("configuration",
		"cardsPerPlayer", cfg.CardsPerPlayer,
		"totalRounds", cfg.TotalRounds,
		"inviteExpirySec", cfg.InviteExpirySec,
		"wsPort", cfg.WSPort)

	decks, closeDecks, err := openDeckStore(ctx, cfg)
	if err != nil {
		logger.Error("deck storage unavailable", "err", err)
		os.Exit(1)
	}
	defer closeDecks()

	var verifier api.TokenVerifier
	if v, err := auth.NewVerifier(ctx, cfg.NeonAuthBaseURL); err == nil {
		verifier = v
		logger.Info("auth configured", "baseURL", cfg.NeonAuthBaseURL)
	} else if errors.Is(err, auth.ErrNotConfigured) {
		logger.Info("auth not configured; deck writes are open")
	} else {
		logger.Error("auth setup failed", "err", err)
		os.Exit(1)
	}

	var generator api.DeckGenerator
	if cfg.DeckGen.APIKey != "" {
		generator = deckgen.New(cfg, nil)
	} else {
		logger.Info("DECKGEN_API_KEY is not set; deck generation disabled")
	}

	mm := matchmaking.NewMatchmaker(cfg, nil)
	go mm.Run(ctx)

	hub := ws.NewHub(mm)
	go hub.Run(ctx)

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", hub.ServeWS)
	api.NewHandler(cfg, decks, generator, verifier).Routes(mux)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.WSPort),
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Warn("shutdown", "err", err)
		}
	}()

	logger.Info("attribute duel server listening", "addr", srv.Addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("server stopped", "err", err)
		os.Exit(1)
	}
	logger.Info("server stopped")
}

// openDeckStore picks Postgres when DATABASE_URL is set, else Redis when REDIS_URL is set. With
// neither, the catalog runs without persistence and the returned store is nil.
func openDeckStore(ctx context.Context, cfg *config.Config) (storage.DeckStore, func(), error) {
	logger := slog.With("tag", "main")
	if cfg.DatabaseURL != "" {
		s, err := storage.NewStore(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, nil, fmt.Errorf("postgres: %w", err)
		}
		logger.Info("deck storage: postgres")
		return s, s.Close, nil
	}
	if cfg.RedisURL != "" {
		s, err := storage.NewRedisStore(ctx, cfg.RedisURL)
		if err != nil {
			return nil, nil, fmt.Errorf("redis: %w", err)
		}
		logger.Info("deck storage: redis")
		return s, s.Close, nil
	}
	logger.Info("DATABASE_URL and REDIS_URL are not set; deck catalog is not persisted")
	return nil, func() {}, nil
}
