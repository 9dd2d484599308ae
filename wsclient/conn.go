// Package wsclient connects a session client to the lobby over a websocket.
package wsclient

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"attribute-duel-server/protocol"
	"attribute-duel-server/wsutil"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 64 * 1024
)

var (
	ErrClosed     = errors.New("connection closed")
	ErrBufferFull = errors.New("send buffer full")
)

// Sink receives what the connection reads. Both methods must not block for long; they are
// called from the read goroutine.
type Sink interface {
	Deliver(env protocol.Envelope)
	ChannelClosed(ch io.Closer, err error)
}

// Conn is a lobby connection. It implements session.Channel.
type Conn struct {
	conn   *websocket.Conn
	send   chan []byte
	sink   Sink
	logger *slog.Logger

	closeOnce sync.Once
	closed    chan struct{}
}

// Dial opens a websocket to url and starts the read and write pumps.
func Dial(ctx context.Context, url string, sink Sink) (*Conn, error) {
	ws, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, err
	}
	c := &Conn{
		conn:   ws,
		send:   make(chan []byte, 256),
		sink:   sink,
		logger: slog.With("tag", "wsclient"),
		closed: make(chan struct{}),
	}
	go c.writePump()
	go c.readPump()
	return c, nil
}

// Send queues an envelope of msgType. It never blocks.
func (c *Conn) Send(msgType string, payload any) error {
	select {
	case <-c.closed:
		return ErrClosed
	default:
	}
	data, err := protocol.Encode(msgType, payload)
	if err != nil {
		return err
	}
	if !wsutil.SafeSend(c.send, data) {
		return ErrBufferFull
	}
	return nil
}

// Close shuts the connection down. Safe to call more than once.
func (c *Conn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.closed)
		c.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(writeWait))
		err = c.conn.Close()
	})
	return err
}

func (c *Conn) readPump() {
	var readErr error
	defer func() {
		c.Close()
		c.sink.ChannelClosed(c, readErr)
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPingHandler(func(data string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return c.conn.WriteControl(websocket.PongMessage, []byte(data), time.Now().Add(writeWait))
	})
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			select {
			case <-c.closed:
			default:
				if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
					readErr = errors.New("lobby closed the connection")
				} else {
					readErr = err
				}
			}
			return
		}
		env, err := protocol.Decode(message)
		if err != nil {
			c.logger.Warn("dropping malformed frame", "err", err)
			continue
		}
		c.sink.Deliver(env)
	}
}

func (c *Conn) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-c.closed:
			return
		case message := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				c.logger.Warn("write failed", "err", err)
				c.conn.Close()
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.conn.Close()
				return
			}
		}
	}
}
