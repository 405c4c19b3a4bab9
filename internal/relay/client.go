package relay

import (
	"context"
	"log/slog"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeWait  = 10 * time.Second    // Time allowed to write a frame to the peer.
	pongWait   = 60 * time.Second    // Time allowed to read the next pong from the peer.
	pingPeriod = (pongWait * 9) / 10 // Must be less than pongWait.
)

// EventHandler consumes raw inbound frames of one connection.
type EventHandler interface {
	Handle(ctx context.Context, from Replier, raw []byte)
}

// Client is a middleman between one websocket connection and the hub.
type Client struct {
	hub  *Hub
	conn *websocket.Conn
	// Buffered channel of outbound frames. Only the hub closes it.
	send chan []byte
	log  *slog.Logger
}

func NewClient(hub *Hub, conn *websocket.Conn, sendBuffer int, log *slog.Logger) *Client {
	return &Client{hub: hub, conn: conn, send: make(chan []byte, sendBuffer), log: log}
}

// Reply queues a frame for this connection only.
func (c *Client) Reply(frame []byte) bool {
	return c.hub.send(c, frame)
}

// ReadPump hands every inbound frame to handler, one at a time, until the
// connection fails. ctx must outlive the connection so in-flight events finish.
func (c *Client) ReadPump(ctx context.Context, handler EventHandler, maxMessageBytes int64) {
	defer func() {
		c.hub.Unregister(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageBytes)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.log.Warn("Websocket read failed", "error", err)
			}
			return
		}
		handler.Handle(ctx, c, message)
	}
}

// WritePump writes queued frames, one websocket message each, and keeps the
// connection alive with pings.
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case frame, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// The hub closed the channel.
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
