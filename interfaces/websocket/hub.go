// Package websocket pushes live session events (snapshots, marker deltas,
// draft changes and reminders) to a user's browser connections.
package websocket

import (
	"context"
	"sync"
	"time"

	"github.com/jmhodges/clock"
	"go.uber.org/zap"
)

// statsInterval is how often the hub logs its connection counts.
const statsInterval = 30 * time.Second

// Hub maintains active connections and delivers frames to users.
type Hub struct {
	// One user can have several connections.
	connections map[string]map[*Client]struct{}
	mu          sync.RWMutex
	stopped     bool

	onDisconnect func(userID string, remaining int)

	clock   clock.Clock
	logger  *zap.Logger
	metrics *HubMetrics
}

// HubMetrics tracks delivery counts.
type HubMetrics struct {
	ActiveConnections int64
	MessagesSent      int64
	MessagesFailed    int64
	mu                sync.RWMutex
}

// NewHub creates a hub.
func NewHub(clk clock.Clock, logger *zap.Logger) *Hub {
	return &Hub{
		connections: make(map[string]map[*Client]struct{}),
		clock:       clk,
		logger:      logger.With(zap.String("component", "websocket_hub")),
		metrics:     &HubMetrics{},
	}
}

// OnDisconnect registers fn to run after a connection goes away, with the
// number of connections the user still has.
func (h *Hub) OnDisconnect(fn func(userID string, remaining int)) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.onDisconnect = fn
}

// Run logs periodic stats and closes every connection when ctx ends.
func (h *Hub) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			h.logger.Info("Hub shutting down")
			h.closeAllConnections()
			return nil
		case <-h.clock.After(statsInterval):
			h.logStats()
		}
	}
}

// register adds client and queues the frames built by initial while no
// other frame can be delivered to the user, so nothing interleaves with
// or precedes them.
func (h *Hub) register(client *Client, initial func() [][]byte) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.stopped {
		return false
	}
	if h.connections[client.userID] == nil {
		h.connections[client.userID] = make(map[*Client]struct{})
	}
	h.connections[client.userID][client] = struct{}{}

	if initial != nil {
		for _, frame := range initial() {
			client.send <- frame
		}
	}

	h.metrics.mu.Lock()
	h.metrics.ActiveConnections++
	h.metrics.mu.Unlock()

	h.logger.Info("Client registered",
		zap.String("userID", client.userID),
		zap.String("connectionID", client.id),
		zap.Int("userConnections", len(h.connections[client.userID])),
	)
	return true
}

// unregister removes client and closes its send channel.
func (h *Hub) unregister(client *Client) {
	h.mu.Lock()
	clients, ok := h.connections[client.userID]
	if !ok {
		h.mu.Unlock()
		return
	}
	if _, ok := clients[client]; !ok {
		h.mu.Unlock()
		return
	}
	delete(clients, client)
	close(client.send)
	remaining := len(clients)
	if remaining == 0 {
		delete(h.connections, client.userID)
	}
	onDisconnect := h.onDisconnect
	h.mu.Unlock()

	h.metrics.mu.Lock()
	h.metrics.ActiveConnections--
	h.metrics.mu.Unlock()

	h.logger.Info("Client unregistered",
		zap.String("userID", client.userID),
		zap.String("connectionID", client.id),
		zap.Int("remainingConnections", remaining),
	)
	if onDisconnect != nil {
		onDisconnect(client.userID, remaining)
	}
}

// SendToUser delivers a frame to every connection of userID and returns
// how many accepted it. A connection whose buffer is full is dropped.
func (h *Hub) SendToUser(userID, frameType string, payload any) int {
	data, err := encodeFrame(frameType, payload, h.clock.Now())
	if err != nil {
		h.logger.Error("Failed to encode frame",
			zap.String("frameType", frameType),
			zap.Error(err),
		)
		return 0
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	clients := h.connections[userID]
	if len(clients) == 0 {
		h.logger.Debug("No active connections for user",
			zap.String("userID", userID),
			zap.String("frameType", frameType),
		)
		return 0
	}

	sent, failed := 0, 0
	for client := range clients {
		select {
		case client.send <- data:
			sent++
		default:
			failed++
			h.logger.Warn("Closing slow client",
				zap.String("userID", client.userID),
				zap.String("connectionID", client.id),
			)
			// The read pump notices and unregisters.
			client.conn.Close()
		}
	}

	h.metrics.mu.Lock()
	h.metrics.MessagesSent += int64(sent)
	h.metrics.MessagesFailed += int64(failed)
	h.metrics.mu.Unlock()
	return sent
}

func (h *Hub) logStats() {
	h.mu.RLock()
	users := len(h.connections)
	total := 0
	for _, clients := range h.connections {
		total += len(clients)
	}
	h.mu.RUnlock()

	h.logger.Debug("Hub stats",
		zap.Int("totalConnections", total),
		zap.Int("totalUsers", users),
	)
}

func (h *Hub) closeAllConnections() {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.stopped = true
	for userID, clients := range h.connections {
		for client := range clients {
			close(client.send)
			client.conn.Close()
		}
		delete(h.connections, userID)
	}
	h.metrics.mu.Lock()
	h.metrics.ActiveConnections = 0
	h.metrics.mu.Unlock()
}

// GetMetrics returns current hub metrics.
func (h *Hub) GetMetrics() HubMetrics {
	h.metrics.mu.RLock()
	defer h.metrics.mu.RUnlock()
	return HubMetrics{
		ActiveConnections: h.metrics.ActiveConnections,
		MessagesSent:      h.metrics.MessagesSent,
		MessagesFailed:    h.metrics.MessagesFailed,
	}
}

// ConnectionCount returns the number of active connections for a user.
func (h *Hub) ConnectionCount(userID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.connections[userID])
}
