package notifications

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/gofiber/websocket/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	// Max connections per user
	maxConnsPerUser = 12
	// Max total connections
	maxTotalConns = 10000
)

var eventsDelivered = promauto.NewCounter(prometheus.CounterOpts{
	Name: "nodetalk_realtime_events_delivered_total",
	Help: "Events fanned out to connected websocket clients.",
})

// Hub is the per-user delivery channel registry: userID -> set of Clients.
// It is created at server start, injected into whatever needs to publish,
// and cleared per disconnect. State is scoped to one process; cross-instance
// delivery goes through the Redis notifier.
type Hub struct {
	mu         sync.RWMutex
	conns      map[uint]map[*Client]struct{}
	totalConns int
}

// NewHub creates an empty Hub.
func NewHub() *Hub {
	return &Hub{conns: make(map[uint]map[*Client]struct{})}
}

// Register adds a connection to the user's channel. Every connection for
// the same user joins the same channel; all of them receive each event.
func (h *Hub) Register(userID uint, conn *websocket.Conn) (*Client, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.totalConns >= maxTotalConns {
		return nil, errors.New("server connection limit reached")
	}

	m, ok := h.conns[userID]
	if !ok {
		m = make(map[*Client]struct{})
		h.conns[userID] = m
	}
	if len(m) >= maxConnsPerUser {
		return nil, errors.New("user connection limit reached")
	}

	client := newClient(h, conn, userID)
	m[client] = struct{}{}
	h.totalConns++
	return client, nil
}

// UnregisterClient removes a connection and drops the channel when it was
// the user's last one.
func (h *Hub) UnregisterClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if m, ok := h.conns[client.UserID]; ok {
		if _, exists := m[client]; exists {
			delete(m, client)
			h.totalConns--
		}
		if len(m) == 0 {
			delete(h.conns, client.UserID)
		}
	}
}

// Broadcast queues message on every connection of userID's channel.
// A user with no connections is a normal no-op, never an error.
func (h *Hub) Broadcast(userID uint, message []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if clients, ok := h.conns[userID]; ok {
		for c := range clients {
			c.TrySend(message)
			eventsDelivered.Inc()
		}
	}
}

// IsOnline reports whether a user currently has at least one connection.
func (h *Hub) IsOnline(userID uint) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	clients, ok := h.conns[userID]
	return ok && len(clients) > 0
}

// ConnectionCount returns the number of live connections for userID.
func (h *Hub) ConnectionCount(userID uint) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.conns[userID])
}

// StartWiring subscribes the hub to the notifier's per-user channels so
// events published by other instances reach locally connected clients.
func (h *Hub) StartWiring(ctx context.Context, n *Notifier) error {
	return n.StartPatternSubscriber(ctx, func(channel string, payload string) {
		var userID uint
		if _, err := fmt.Sscanf(channel, "notifications:user:%d", &userID); err != nil {
			slog.Warn("invalid notification channel", "channel", channel)
			return
		}
		h.Broadcast(userID, []byte(payload))
	})
}

// Shutdown closes every connection and clears the registry.
func (h *Hub) Shutdown(_ context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	for userID, clients := range h.conns {
		for c := range clients {
			close(c.Send)
			if c.Conn != nil {
				_ = c.Conn.Close()
			}
		}
		delete(h.conns, userID)
	}
	h.totalConns = 0
	return nil
}
