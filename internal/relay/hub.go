package relay

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/redis/go-redis/v9"
)

var ErrHubClosed = errors.New("hub is closed")

// delivery is a frame for one client, or for every client when client is nil.
type delivery struct {
	client *Client
	frame  []byte
}

// Hub is the connection registry. Run owns the client set; everything else
// talks to it through channels.
//
// Replies and broadcasts share one queue, so a client sees them in the order
// they were queued.
type Hub struct {
	clients    map[*Client]struct{}
	outbound   chan delivery
	register   chan *Client
	unregister chan *Client
	done       chan struct{}
	count      atomic.Int64

	// When set, broadcasts go through this Redis channel so every relay
	// process subscribed to it fans the frame out to its own clients.
	redis   *redis.Client
	channel string

	log *slog.Logger
}

func NewHub(log *slog.Logger, redisClient *redis.Client, channel string) *Hub {
	return &Hub{
		clients:    make(map[*Client]struct{}),
		outbound:   make(chan delivery, 128),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
		redis:      redisClient,
		channel:    channel,
		log:        log,
	}
}

func (h *Hub) Run(ctx context.Context) {
	defer func() {
		for client := range h.clients {
			delete(h.clients, client)
			close(client.send)
		}
		h.count.Store(0)
		close(h.done)
	}()

	for {
		select {
		case <-ctx.Done():
			return

		case client := <-h.register:
			h.clients[client] = struct{}{}
			h.count.Store(int64(len(h.clients)))

		case client := <-h.unregister:
			h.drop(client)

		case out := <-h.outbound:
			if out.client != nil {
				if _, ok := h.clients[out.client]; ok {
					h.push(out.client, out.frame)
				}
				continue
			}
			for client := range h.clients {
				h.push(client, out.frame)
			}
		}
	}
}

// push never blocks the run loop: a client whose buffer is full is dropped.
func (h *Hub) push(client *Client, frame []byte) {
	select {
	case client.send <- frame:
	default:
		h.log.Warn("Client send buffer full, disconnecting")
		h.drop(client)
	}
}

func (h *Hub) drop(client *Client) {
	if _, ok := h.clients[client]; ok {
		delete(h.clients, client)
		close(client.send)
		h.count.Store(int64(len(h.clients)))
	}
}

func (h *Hub) Register(client *Client) {
	if h.closed() {
		close(client.send)
		return
	}
	select {
	case h.register <- client:
	case <-h.done:
		close(client.send)
	}
}

func (h *Hub) Unregister(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.done:
	}
}

// Count is the number of registered clients.
func (h *Hub) Count() int {
	return int(h.count.Load())
}

// Broadcast implements Broadcaster.
func (h *Hub) Broadcast(ctx context.Context, frame []byte) error {
	if h.redis != nil {
		return h.redis.Publish(ctx, h.channel, frame).Err()
	}
	return h.deliver(ctx, frame)
}

func (h *Hub) closed() bool {
	select {
	case <-h.done:
		return true
	default:
		return false
	}
}

func (h *Hub) deliver(ctx context.Context, frame []byte) error {
	if h.closed() {
		return ErrHubClosed
	}
	select {
	case h.outbound <- delivery{frame: frame}:
		return nil
	case <-h.done:
		return ErrHubClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (h *Hub) send(client *Client, frame []byte) bool {
	if h.closed() {
		return false
	}
	select {
	case h.outbound <- delivery{client: client, frame: frame}:
		return true
	case <-h.done:
		return false
	}
}

// SubscribeToRedis feeds frames published by any relay process into the local fan-out.
func (h *Hub) SubscribeToRedis(ctx context.Context) error {
	if h.redis == nil {
		return nil
	}
	pubsub := h.redis.Subscribe(ctx, h.channel)
	defer pubsub.Close()

	// Wait for the subscription to be confirmed before reporting readiness.
	if _, err := pubsub.Receive(ctx); err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return fmt.Errorf("subscribe %s: %w", h.channel, err)
	}
	h.log.Info("Subscribed to Redis fan-out", "channel", h.channel)

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			if err := h.deliver(ctx, []byte(msg.Payload)); err != nil {
				return nil
			}
		}
	}
}
