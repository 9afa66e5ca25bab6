package websocket

import (
	"context"
	"encoding/json"
	"sync"

	"snapfeed/internal/optimistic"

	"go.uber.org/zap"
)

// Event types pushed to clients.
const (
	EventToggleReverted = "toggle_reverted"
	EventSessionChange  = "session_change"
	EventNotifications  = "notifications"
)

// Event is the envelope written to the socket.
type Event struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

// MessageToSend defines the structure for sending a message to a specific user.
type MessageToSend struct {
	TargetUserID string
	Payload      []byte
}

const directBuffer = 256

// Hub maintains the set of active clients and routes messages to them.
type Hub struct {
	// Registered clients. Maps user ID to a set of active client connections.
	clients map[string]map[*Client]bool

	// Channel for sending messages to specific users.
	SendDirect chan *MessageToSend

	// Register requests from the clients.
	Register chan *Client

	// Unregister requests from clients.
	Unregister chan *Client

	// Mutex to protect concurrent access to the clients map.
	mu     sync.RWMutex
	logger *zap.Logger
	done   chan struct{}
}

func NewHub(logger *zap.Logger) *Hub {
	return &Hub{
		SendDirect: make(chan *MessageToSend, directBuffer),
		Register:   make(chan *Client),
		Unregister: make(chan *Client),
		clients:    make(map[string]map[*Client]bool),
		logger:     logger.Named("websocket"),
		done:       make(chan struct{}),
	}
}

// Run processes registrations and direct messages until ctx ends.
func (h *Hub) Run(ctx context.Context) {
	h.logger.Info("WebSocket hub started")
	for {
		select {
		case <-ctx.Done():
			close(h.done)
			h.closeAll()
			h.logger.Info("WebSocket hub stopped")
			return

		case client := <-h.Register:
			h.mu.Lock()
			if _, ok := h.clients[client.UserID]; !ok {
				h.clients[client.UserID] = make(map[*Client]bool)
			}
			h.clients[client.UserID][client] = true
			h.logger.Debug("Client registered",
				zap.String("user_id", client.UserID), zap.Int("connections", len(h.clients[client.UserID])))
			h.mu.Unlock()

		case client := <-h.Unregister:
			h.mu.Lock()
			if userClients, ok := h.clients[client.UserID]; ok && userClients[client] {
				delete(userClients, client)
				client.close()
				if len(userClients) == 0 {
					delete(h.clients, client.UserID)
				}
				h.logger.Debug("Client unregistered",
					zap.String("user_id", client.UserID), zap.Int("connections", len(userClients)))
			}
			h.mu.Unlock()

		case direct := <-h.SendDirect:
			h.mu.RLock()
			userClients := h.clients[direct.TargetUserID]
			if len(userClients) == 0 {
				h.logger.Debug("User not connected, message dropped", zap.String("user_id", direct.TargetUserID))
			}
			for client := range userClients {
				if !client.enqueue(direct.Payload) {
					h.logger.Warn("Send buffer full, message dropped", zap.String("user_id", client.UserID))
				}
			}
			h.mu.RUnlock()
		}
	}
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for id, userClients := range h.clients {
		for client := range userClients {
			client.close()
		}
		delete(h.clients, id)
	}
}

// Add registers a client. It reports false once the hub has stopped.
func (h *Hub) Add(c *Client) bool {
	select {
	case h.Register <- c:
		return true
	case <-h.done:
		return false
	}
}

func (h *Hub) remove(c *Client) {
	select {
	case h.Unregister <- c:
	case <-h.done:
	}
}

// SendEvent queues an event for every connection of the user without blocking.
func (h *Hub) SendEvent(targetUserID, eventType string, data interface{}) bool {
	payload, err := json.Marshal(Event{Type: eventType, Data: data})
	if err != nil {
		h.logger.Error("Failed to encode event", zap.String("type", eventType), zap.Error(err))
		return false
	}
	select {
	case h.SendDirect <- &MessageToSend{TargetUserID: targetUserID, Payload: payload}:
		return true
	default:
		h.logger.Warn("Hub queue full, event dropped", zap.String("user_id", targetUserID), zap.String("type", eventType))
		return false
	}
}

// Notice pushes a reverted toggle to the actor's connections.
func (h *Hub) Notice(n optimistic.Notice) {
	h.SendEvent(n.ActorID, EventToggleReverted, n)
}

// Connections reports how many sockets the user has open.
func (h *Hub) Connections(userID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[userID])
}
