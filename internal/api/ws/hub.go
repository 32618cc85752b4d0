package ws

import (
	"sync"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/kestrelbrowser/shellhost/internal/infrastructure/logging"
	"github.com/kestrelbrowser/shellhost/internal/infrastructure/monitoring"
)

// client is one connected front-end with serialized writes
type client struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func (c *client) send(v interface{}) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.WriteJSON(v)
}

// Hub fans registry events out to every connected front-end. Both
// managers push through one hub so each client observes a single
// ordered feed.
type Hub struct {
	mu      sync.Mutex
	clients map[*client]bool
	logger  *logging.Logger
	metrics *monitoring.Metrics
}

// NewHub creates an empty hub
func NewHub(logger *logging.Logger, metrics *monitoring.Metrics) *Hub {
	if logger == nil {
		logger = logging.NewDefault()
	}
	return &Hub{
		clients: make(map[*client]bool),
		logger:  logger,
		metrics: metrics,
	}
}

// Broadcast sends v to every connected client. Clients whose write
// fails are dropped; a slow or dead front-end never wedges the feed
// for the others.
func (h *Hub) Broadcast(msgType string, v interface{}) {
	h.mu.Lock()
	clients := make([]*client, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.Unlock()

	for _, c := range clients {
		if err := c.send(v); err != nil {
			h.logger.Debug("dropping websocket client", zap.Error(err))
			h.remove(c)
			c.conn.Close()
			continue
		}
		if h.metrics != nil {
			h.metrics.RecordWSMessage("out", msgType)
		}
	}
}

func (h *Hub) add(c *client) {
	h.mu.Lock()
	h.clients[c] = true
	h.mu.Unlock()
	if h.metrics != nil {
		h.metrics.IncWSConnections()
	}
}

func (h *Hub) remove(c *client) {
	h.mu.Lock()
	_, present := h.clients[c]
	delete(h.clients, c)
	h.mu.Unlock()
	if present && h.metrics != nil {
		h.metrics.DecWSConnections()
	}
}

// Count returns the number of connected clients
func (h *Hub) Count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}
