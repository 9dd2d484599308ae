package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"attribute-duel-server/game"
	"attribute-duel-server/invite"
	"attribute-duel-server/session"
	"attribute-duel-server/wsclient"
)

var (
	serverURL    string
	nickname     string
	lobbyTimeout time.Duration
)

var lobbyCmd = &cobra.Command{
	Use:   "lobby",
	Short: "Join a lobby and play the first challenge received",
	Long: `Connect to a lobby server, register a nickname and wait for a challenge. The bot accepts
the first one, proposes its deck when it moves first, plays the duel out and leaves.`,
	RunE: runLobby,
}

func init() {
	lobbyCmd.Flags().StringVar(&serverURL, "server", "", "lobby websocket URL (default SERVER_URL)")
	lobbyCmd.Flags().StringVar(&nickname, "name", "Bot", "nickname to register")
	lobbyCmd.Flags().DurationVar(&lobbyTimeout, "timeout", 10*time.Minute, "give up after this long")
	rootCmd.AddCommand(lobbyCmd)
}

func runLobby(cmd *cobra.Command, args []string) error {
	d, err := loadDeck(deckPath)
	if err != nil {
		return err
	}
	if serverURL == "" {
		serverURL = cfg.ServerURL
	}
	if serverURL == "" {
		return fmt.Errorf("--server or SERVER_URL is required")
	}
	logger := slog.With("tag", "duelbot")

	ctx, cancel := context.WithTimeout(cmd.Context(), lobbyTimeout)
	defer cancel()

	c := session.NewClient(cfg, nil)
	go c.Run(ctx)

	conn, err := wsclient.Dial(ctx, serverURL, c)
	if err != nil {
		return fmt.Errorf("failed to connect to %s: %w", serverURL, err)
	}
	if err := c.Connect(conn); err != nil {
		return err
	}
	if err := c.ProposeDeck(d); err != nil {
		return err
	}
	if err := c.Register(nickname); err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if err := waitForChallenge(ctx, c, logger); err != nil {
		return err
	}
	res, err := session.Autoplay(ctx, c, func(r game.RoundView) { printRound(out, r) })
	if err != nil {
		return err
	}
	printResult(out, res)
	return c.Disconnect()
}

// waitForChallenge accepts the first incoming challenge and returns once the session commits.
func waitForChallenge(ctx context.Context, c *session.Client, logger *slog.Logger) error {
	registered := false
	for {
		var s session.Snapshot
		select {
		case <-ctx.Done():
			return ctx.Err()
		case s = <-c.Snapshots():
		}
		if !s.Connected {
			return fmt.Errorf("lobby connection lost")
		}
		if s.Identity.ID != "" && !registered {
			registered = true
			logger.Info("registered, waiting for a challenge", "id", s.Identity.ID, "nickname", s.Identity.Nickname)
		}
		switch s.Invite.Phase() {
		case invite.PendingIncoming:
			if s.Invite.Incoming.Accepted {
				continue
			}
			logger.Info("accepting challenge", "from", s.Invite.Incoming.InviterNickname)
			if err := c.Accept(); err != nil {
				return err
			}
		case invite.CommittedPhase:
			logger.Info("duel started", "opponent", s.Invite.Committed.OpponentNickname, "firstMover", s.Invite.Committed.FirstMover)
			return nil
		}
	}
}
