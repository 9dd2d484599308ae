package session

import (
	"context"
	"fmt"

	"attribute-duel-server/ai"
	"attribute-duel-server/game"
)

// Autoplay drives the local side of c's current or next duel with the scripted opponent's
// max-attribute policy until it reaches the terminal phase. onRound, if non-nil, sees every
// resolved round once. It returns the terminal result.
func Autoplay(ctx context.Context, c *Client, onRound func(game.RoundView)) (*game.ResultView, error) {
	if err := c.Refresh(); err != nil {
		return nil, err
	}
	lastRound := 0
	for {
		var s Snapshot
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-c.Done():
			return nil, ErrStopped
		case s = <-c.Snapshots():
		}
		d := s.Duel
		if d == nil {
			continue
		}
		if d.LastRound != nil && d.LastRound.Number > lastRound {
			lastRound = d.LastRound.Number
			if onRound != nil {
				onRound(*d.LastRound)
			}
		}

		var err error
		switch {
		case d.Phase == game.Terminal.String():
			return d.Result, nil
		case d.Phase == game.Comparing.String():
			err = c.Advance()
		case d.MyTurn && d.PlayerCard != nil:
			attr, ok := ai.ChooseAttribute(*d.PlayerCard)
			if !ok {
				return nil, fmt.Errorf("card %q has no attributes", d.PlayerCard.Name)
			}
			err = c.Choose(attr)
		case !d.Remote && d.RevealedChoice != "":
			err = c.ConfirmReveal()
		}
		if err != nil {
			return nil, err
		}
	}
}
