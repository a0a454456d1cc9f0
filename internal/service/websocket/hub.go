package websocket

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"edgecounter/internal/dto"
	"edgecounter/internal/logger"
)

const writeWait = 2 * time.Second

// HubService fans display messages out to every connected viewer. New viewers
// receive the latest message of each type on arrival.
type HubService struct {
	clients    map[*websocket.Conn]bool
	broadcast  chan []byte
	register   chan *websocket.Conn
	unregister chan *websocket.Conn
	latest     map[string][]byte
	done       chan struct{}
	mutex      sync.RWMutex
	logger     *logger.Logger
}

// NewHubService creates a hub. Run must be started for messages to flow.
func NewHubService(logger *logger.Logger) *HubService {
	return &HubService{
		clients:    make(map[*websocket.Conn]bool),
		broadcast:  make(chan []byte, 16),
		register:   make(chan *websocket.Conn),
		unregister: make(chan *websocket.Conn),
		latest:     make(map[string][]byte),
		done:       make(chan struct{}),
		logger:     logger,
	}
}

// Run serves registrations and broadcasts until ctx ends, then closes every viewer.
func (h *HubService) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			h.mutex.Lock()
			for client := range h.clients {
				client.Close()
				delete(h.clients, client)
			}
			h.mutex.Unlock()
			return

		case client := <-h.register:
			h.mutex.Lock()
			h.clients[client] = true
			replay := make([][]byte, 0, len(h.latest))
			for _, msg := range h.latest {
				replay = append(replay, msg)
			}
			h.mutex.Unlock()
			for _, msg := range replay {
				h.send(client, msg)
			}
			h.logger.Info("Client connected. Total: %d", h.GetClientCount())

		case client := <-h.unregister:
			h.mutex.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				client.Close()
			}
			h.mutex.Unlock()
			h.logger.Info("Client disconnected. Total: %d", h.GetClientCount())

		case message := <-h.broadcast:
			h.mutex.RLock()
			clients := make([]*websocket.Conn, 0, len(h.clients))
			for client := range h.clients {
				clients = append(clients, client)
			}
			h.mutex.RUnlock()
			for _, client := range clients {
				h.send(client, message)
			}
		}
	}
}

// send writes one message, dropping the viewer on failure.
func (h *HubService) send(client *websocket.Conn, message []byte) {
	client.SetWriteDeadline(time.Now().Add(writeWait))
	if err := client.WriteMessage(websocket.TextMessage, message); err != nil {
		h.logger.Error("Error sending message: %v", err)
		h.mutex.Lock()
		delete(h.clients, client)
		h.mutex.Unlock()
		client.Close()
	}
}

// Register adds a viewer. It reports false when the hub has stopped.
func (h *HubService) Register(client *websocket.Conn) bool {
	select {
	case h.register <- client:
		return true
	case <-h.done:
		return false
	}
}

// Unregister removes a viewer.
func (h *HubService) Unregister(client *websocket.Conn) {
	select {
	case h.unregister <- client:
	case <-h.done:
	}
}

// Broadcast queues msg for every viewer. It never blocks: when viewers fall
// behind the message is dropped.
func (h *HubService) Broadcast(msg dto.DisplayMessage) {
	data, err := json.Marshal(msg)
	if err != nil {
		h.logger.Error("Error encoding display message: %v", err)
		return
	}

	h.mutex.Lock()
	h.latest[msg.Type] = data
	h.mutex.Unlock()

	select {
	case h.broadcast <- data:
	default:
	}
}

// GetClientCount returns the number of connected viewers.
func (h *HubService) GetClientCount() int {
	h.mutex.RLock()
	defer h.mutex.RUnlock()
	return len(h.clients)
}
