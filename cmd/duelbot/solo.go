package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"attribute-duel-server/game"
	"attribute-duel-server/session"
)

var soloTimeout time.Duration

var soloCmd = &cobra.Command{
	Use:   "solo",
	Short: "Play one duel against the scripted opponent",
	Long:  `Deal the deck against the scripted opponent and play it out, printing every round.`,
	RunE:  runSolo,
}

func init() {
	soloCmd.Flags().DurationVar(&soloTimeout, "timeout", 2*time.Minute, "give up after this long")
	rootCmd.AddCommand(soloCmd)
}

func runSolo(cmd *cobra.Command, args []string) error {
	d, err := loadDeck(deckPath)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), soloTimeout)
	defer cancel()

	c := session.NewClient(cfg, nil)
	go c.Run(ctx)

	if err := c.StartScripted(d); err != nil {
		return fmt.Errorf("failed to start duel: %w", err)
	}
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "%s: %d cards each against %s\n\n", d.Name, cfg.CardsPerPlayer, cfg.Opponent.Name)

	res, err := session.Autoplay(ctx, c, func(r game.RoundView) { printRound(out, r) })
	if err != nil {
		return err
	}
	printResult(out, res)
	return nil
}
