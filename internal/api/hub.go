package api

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"lagerverwaltung/server/internal/models"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

type delivery struct {
	userIDs []uint
	payload []byte
}

// Hub keeps the WebSocket connections of logged-in users and pushes new
// messages to sender and receiver.
type Hub struct {
	clients   map[uint]map[*websocket.Conn]bool
	broadcast chan delivery
	mutex     sync.RWMutex
	logger    *zap.Logger
}

func NewHub(logger *zap.Logger) *Hub {
	return &Hub{
		clients:   make(map[uint]map[*websocket.Conn]bool),
		broadcast: make(chan delivery, 256),
		logger:    logger,
	}
}

// Run writes queued deliveries. It is the only writer on the connections.
func (h *Hub) Run() {
	for d := range h.broadcast {
		for _, userID := range d.userIDs {
			for _, conn := range h.connections(userID) {
				conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
				if err := conn.WriteMessage(websocket.TextMessage, d.payload); err != nil {
					h.RemoveClient(userID, conn)
				}
			}
		}
	}
}

func (h *Hub) connections(userID uint) []*websocket.Conn {
	h.mutex.RLock()
	defer h.mutex.RUnlock()
	conns := make([]*websocket.Conn, 0, len(h.clients[userID]))
	for conn := range h.clients[userID] {
		conns = append(conns, conn)
	}
	return conns
}

func (h *Hub) AddClient(userID uint, conn *websocket.Conn) {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	if h.clients[userID] == nil {
		h.clients[userID] = make(map[*websocket.Conn]bool)
	}
	h.clients[userID][conn] = true
}

func (h *Hub) RemoveClient(userID uint, conn *websocket.Conn) {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	if conns, ok := h.clients[userID]; ok {
		if _, ok := conns[conn]; ok {
			delete(conns, conn)
			conn.Close()
		}
		if len(conns) == 0 {
			delete(h.clients, userID)
		}
	}
}

// ClientsCount returns the number of open connections.
func (h *Hub) ClientsCount() int {
	h.mutex.RLock()
	defer h.mutex.RUnlock()
	n := 0
	for _, conns := range h.clients {
		n += len(conns)
	}
	return n
}

type messagePush struct {
	Type       string    `json:"type"`
	ID         uint      `json:"id"`
	SenderID   uint      `json:"sender_id"`
	ReceiverID uint      `json:"receiver_id"`
	Content    string    `json:"content"`
	Timestamp  time.Time `json:"timestamp"`
}

// NotifyMessage queues a stored message for both participants. A full queue
// drops the push; clients see the message on reload.
func (h *Hub) NotifyMessage(msg models.Message) {
	payload, err := json.Marshal(messagePush{
		Type:       "message",
		ID:         msg.ID,
		SenderID:   msg.SenderID,
		ReceiverID: msg.ReceiverID,
		Content:    msg.Content,
		Timestamp:  msg.Timestamp,
	})
	if err != nil {
		h.logger.Error("failed to encode message push", zap.Error(err))
		return
	}
	userIDs := []uint{msg.ReceiverID}
	if msg.SenderID != msg.ReceiverID {
		userIDs = append(userIDs, msg.SenderID)
	}
	select {
	case h.broadcast <- delivery{userIDs: userIDs, payload: payload}:
	default:
		h.logger.Warn("message push queue full, dropping push", zap.Uint("message_id", msg.ID))
	}
}

// ServeWS upgrades the request of the current user.
// GET /messages/ws
func (h *Hub) ServeWS(c *gin.Context) {
	user := currentUser(c)
	if user == nil {
		c.AbortWithStatus(http.StatusUnauthorized)
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}
	h.AddClient(user.ID, conn)
	h.logger.Debug("websocket connected", zap.Uint("user_id", user.ID), zap.Int("clients", h.ClientsCount()))

	defer func() {
		h.RemoveClient(user.ID, conn)
		h.logger.Debug("websocket disconnected", zap.Uint("user_id", user.ID), zap.Int("clients", h.ClientsCount()))
	}()

	// clients only send pings; reading keeps close frames flowing
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				h.logger.Warn("websocket error", zap.Error(err))
			}
			return
		}
	}
}
