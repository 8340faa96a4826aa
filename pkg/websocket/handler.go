package websocket

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

type HandlerConfig struct {
	ReadBufferSize    int
	WriteBufferSize   int
	HandshakeTimeout  time.Duration
	PingInterval      time.Duration
	PongTimeout       time.Duration
	EnableCompression bool
	AllowedOrigins    []string
}

type Handler struct {
	hub      *Hub
	upgrader websocket.Upgrader
	config   HandlerConfig
}

func NewHandler(hub *Hub, config HandlerConfig) *Handler {
	if config.PongTimeout <= 0 {
		config.PongTimeout = 60 * time.Second
	}
	return &Handler{
		hub:    hub,
		config: config,
		upgrader: websocket.Upgrader{
			ReadBufferSize:    config.ReadBufferSize,
			WriteBufferSize:   config.WriteBufferSize,
			HandshakeTimeout:  config.HandshakeTimeout,
			EnableCompression: config.EnableCompression,
			CheckOrigin:       originChecker(config.AllowedOrigins),
		},
	}
}

func originChecker(allowed []string) func(r *http.Request) bool {
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		for _, o := range allowed {
			if o == "*" || o == origin {
				return true
			}
		}
		return false
	}
}

// HandleWebSocket upgrades the connection. The user id comes from the auth
// middleware when present, otherwise from the user_id query parameter.
func (h *Handler) HandleWebSocket(c *gin.Context) {
	var userID primitive.ObjectID
	if v, exists := c.Get("user_id"); exists {
		id, ok := v.(primitive.ObjectID)
		if !ok {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid user ID"})
			return
		}
		userID = id
	} else {
		id, err := primitive.ObjectIDFromHex(c.Query("user_id"))
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
			return
		}
		userID = id
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.hub.logger.WithError(err).Warn("WebSocket upgrade failed")
		return
	}

	pingPeriod := h.config.PingInterval
	if pingPeriod <= 0 || pingPeriod >= h.config.PongTimeout {
		pingPeriod = (h.config.PongTimeout * 9) / 10
	}

	client := NewClient(h.hub, conn, userID, h.config.PongTimeout, pingPeriod)
	h.hub.register <- client

	go client.writePump()
	go client.readPump()
}
