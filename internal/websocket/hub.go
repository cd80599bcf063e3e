package websocket

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/farazbot/backend/internal/cache"
	"github.com/farazbot/backend/internal/models"
	"github.com/sirupsen/logrus"
)

// Hub maintains the set of connected dashboards and broadcasts moderation events to them
type Hub struct {
	// Registered clients
	clients map[*Client]bool

	// Outbound event frames
	broadcast chan []byte

	// Register requests from clients
	register chan *Client

	// Unregister requests from clients
	unregister chan *Client

	// Closed once Run has returned
	done chan struct{}

	// Redis client for pub/sub, nil when events are local only
	redis *cache.RedisClient

	logger logrus.FieldLogger

	mu sync.RWMutex
}

// NewHub creates a new Hub. redis may be nil.
func NewHub(redis *cache.RedisClient, logger logrus.FieldLogger) *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		broadcast:  make(chan []byte, 256),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
		redis:      redis,
		logger:     logger,
	}
}

// Run starts the hub and blocks until ctx is done
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)

	if h.redis != nil {
		go h.subscribeToRedis(ctx)
	}

	for {
		select {
		case <-ctx.Done():
			h.mu.Lock()
			for client := range h.clients {
				delete(h.clients, client)
				close(client.send)
			}
			h.mu.Unlock()
			return

		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			h.mu.Unlock()
			h.logger.WithField("operator", client.operator).Info("dashboard connected")

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
			}
			h.mu.Unlock()
			h.logger.WithField("operator", client.operator).Info("dashboard disconnected")

		case message := <-h.broadcast:
			h.fanOut(message)
		}
	}
}

// fanOut drops clients whose send buffer is full
func (h *Hub) fanOut(message []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for client := range h.clients {
		select {
		case client.send <- message:
		default:
			close(client.send)
			delete(h.clients, client)
		}
	}
}

// Register adds client to the hub. It reports false once the hub has stopped.
func (h *Hub) Register(client *Client) bool {
	select {
	case h.register <- client:
		return true
	case <-h.done:
		return false
	}
}

// Unregister removes client from the hub, returning at once if the hub has stopped
func (h *Hub) Unregister(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.done:
	}
}

// subscribeToRedis forwards events published by any bot instance
func (h *Hub) subscribeToRedis(ctx context.Context) {
	ps := h.redis.SubscribeToEvents(ctx)
	defer ps.Close()

	ch := ps.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			frame, err := json.Marshal(models.WSMessage{
				Event:   models.EventModeration,
				Payload: json.RawMessage(msg.Payload),
			})
			if err != nil {
				continue
			}
			h.enqueue(frame)
		}
	}
}

// PublishEvent broadcasts ev to local dashboards. It is used when Redis is unavailable.
func (h *Hub) PublishEvent(ctx context.Context, ev models.ModerationEvent) error {
	frame, err := json.Marshal(models.WSMessage{Event: models.EventModeration, Payload: ev})
	if err != nil {
		return err
	}
	h.enqueue(frame)
	return nil
}

func (h *Hub) enqueue(frame []byte) {
	select {
	case h.broadcast <- frame:
	default:
		h.logger.Warn("dashboard broadcast queue full, dropping event")
	}
}

// Operators returns the operators of connected dashboards
func (h *Hub) Operators() []string {
	h.mu.RLock()
	defer h.mu.RUnlock()

	out := make([]string, 0, len(h.clients))
	for client := range h.clients {
		out = append(out, client.operator)
	}
	return out
}
