package sim

import (
	"sync"
	"time"

	"github.com/gofiber/contrib/websocket"
	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"
)

var codec = jsoniter.ConfigCompatibleWithStandardLibrary

const writeDeadline = 10 * time.Second

type client struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func (c *client) send(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.conn.SetWriteDeadline(time.Now().Add(writeDeadline))
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

// Hub fans push frames out to every subscribed connection.
type Hub struct {
	log     *zap.SugaredLogger
	mu      sync.RWMutex
	clients map[*websocket.Conn]*client
}

func NewHub(log *zap.SugaredLogger) *Hub {
	return &Hub{
		log:     log,
		clients: make(map[*websocket.Conn]*client),
	}
}

func (h *Hub) Register(conn *websocket.Conn) *client {
	c := &client{conn: conn}
	h.mu.Lock()
	h.clients[conn] = c
	total := len(h.clients)
	h.mu.Unlock()
	h.log.Infow("[SIM] subscriber connected", "total", total)
	return c
}

func (h *Hub) Unregister(conn *websocket.Conn) {
	h.mu.Lock()
	delete(h.clients, conn)
	total := len(h.clients)
	h.mu.Unlock()
	h.log.Infow("[SIM] subscriber disconnected", "total", total)
}

func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Broadcast sends one frame to all subscribers. Slow or dead connections
// only lose their own frames.
func (h *Hub) Broadcast(frameType string, data any) {
	raw, err := encodeFrame(frameType, data)
	if err != nil {
		h.log.Errorw("[SIM] broadcast marshal failed", "type", frameType, "err", err)
		return
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, c := range h.clients {
		if err := c.send(raw); err != nil {
			h.log.Warnw("[SIM] write failed", "err", err)
		}
	}
}

func encodeFrame(frameType string, data any) ([]byte, error) {
	return codec.Marshal(map[string]any{
		"type": frameType,
		"data": data,
	})
}
