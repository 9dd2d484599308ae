package main

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"attribute-duel-server/config"
	"attribute-duel-server/deck"
	"attribute-duel-server/game"
	"attribute-duel-server/loghandler"
)

var (
	deckPath string
	verbose  bool
	cfg      *config.Config
)

var rootCmd = &cobra.Command{
	Use:          "duelbot",
	Short:        "Attribute duel bot",
	Long:         `duelbot plays attribute duels with the highest-attribute policy, either locally against the scripted opponent or through a lobby server.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		_ = godotenv.Load()
		cfg = config.Load()
		level := cfg.SlogLevel()
		if verbose {
			level = slog.LevelDebug
		}
		slog.SetDefault(slog.New(loghandler.NewCompactHandler(cmd.ErrOrStderr(), level)))
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&deckPath, "deck", "d", "", "deck JSON file")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "debug logging")
}

// loadDeck reads a deck file and checks it can be dealt.
func loadDeck(path string) (deck.Deck, error) {
	if path == "" {
		return deck.Deck{}, fmt.Errorf("--deck is required")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return deck.Deck{}, fmt.Errorf("failed to read deck: %w", err)
	}
	var d deck.Deck
	if err := json.Unmarshal(data, &d); err != nil {
		return deck.Deck{}, fmt.Errorf("failed to parse deck %s: %w", path, err)
	}
	if err := deck.Validate(d, deck.Rules{}); err != nil {
		return deck.Deck{}, err
	}
	return d, nil
}

func printRound(w io.Writer, r game.RoundView) {
	fmt.Fprintf(w, "Round %d: %s picks %s, %s (%d) vs %s (%d): %s\n",
		r.Number, r.Chooser, r.Attribute,
		r.PlayerCard.Name, r.PlayerValue,
		r.OpponentCard.Name, r.OpponentValue,
		r.Message)
}

func printResult(w io.Writer, res *game.ResultView) {
	if res == nil {
		fmt.Fprintln(w, "Duel ended without a result.")
		return
	}
	fmt.Fprintf(w, "\n%s\nOutcome: %s (%s), cards %d to %d\n", res.Message, res.Outcome, res.Reason, res.PlayerCards, res.OpponentCards)
}
