package ws

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/kestrelbrowser/shellhost/internal/infrastructure/logging"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // The shell front-end is the only expected origin
	},
}

// Handler manages WebSocket connections
type Handler struct {
	hub    *Hub
	logger *logging.Logger
}

// NewHandler creates a new WebSocket handler
func NewHandler(hub *Hub, logger *logging.Logger) *Handler {
	if logger == nil {
		logger = logging.NewDefault()
	}
	return &Handler{hub: hub, logger: logger}
}

// HandleConnection handles WebSocket upgrade and messages. The feed is
// push-only; the client sends nothing but keepalive pings.
func (h *Handler) HandleConnection(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	cl := &client{conn: conn}
	h.hub.add(cl)
	defer func() {
		h.hub.remove(cl)
		conn.Close()
	}()

	cl.send(map[string]interface{}{
		"type":      "system",
		"message":   "connected",
		"timestamp": time.Now().Unix(),
	})

	for {
		var msg struct {
			Type string `json:"type"`
		}
		if err := conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.Debug("websocket read error", zap.Error(err))
			}
			return
		}

		switch msg.Type {
		case "ping":
			cl.send(map[string]interface{}{"type": "pong"})
		default:
			cl.send(map[string]interface{}{
				"type":    "error",
				"message": "unknown message type",
			})
		}
	}
}
