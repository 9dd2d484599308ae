package session

import (
	"strings"
	"time"

	"attribute-duel-server/invite"
)

func (c *Client) noticeTTL() time.Duration {
	if c.cfg.NoticeDisplayMS <= 0 {
		return 5 * time.Second
	}
	return time.Duration(c.cfg.NoticeDisplayMS) * time.Millisecond
}

// arm starts a timer under key, replacing any timer already armed under it. When it expires,
// actionTimer is posted to the loop with the generation it was armed with.
func (c *Client) arm(key string, d time.Duration) {
	c.disarm(key)
	c.timerGen++
	t := timer{gen: c.timerGen, cancel: make(chan struct{})}
	c.timers[key] = t
	go func() {
		select {
		case <-time.After(d):
			select {
			case c.inputs <- Action{Type: actionTimer, Text: key, Gen: t.gen}:
			case <-c.done:
			}
		case <-t.cancel:
		}
	}()
}

// disarm cancels the timer under key. Safe if none is armed.
func (c *Client) disarm(key string) {
	if t, ok := c.timers[key]; ok {
		close(t.cancel)
		delete(c.timers, key)
	}
}

func (c *Client) disarmPrefix(prefix string) {
	for key := range c.timers {
		if strings.HasPrefix(key, prefix) {
			c.disarm(key)
		}
	}
}

func (c *Client) disarmAll() {
	for key := range c.timers {
		c.disarm(key)
	}
}

// handleTimer dispatches a firing. Firings from a disarmed or re-armed timer are dropped.
func (c *Client) handleTimer(key string, gen int) {
	t, ok := c.timers[key]
	if !ok || t.gen != gen {
		return
	}
	delete(c.timers, key)
	if strings.HasPrefix(key, thinkPrefix) {
		c.think(key)
		return
	}
	shown := c.inv.Notice
	c.reduceInvite(invite.NoticeExpired{Key: key})
	if shown != "" && c.inv.Notice == "" && c.message == shown {
		c.message = ""
	}
}
